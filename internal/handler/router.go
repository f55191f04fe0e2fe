package handler

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	govalidator "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"shorturl-go/internal/apperrors"
	"shorturl-go/internal/config"
	"shorturl-go/internal/i18n"
	"shorturl-go/internal/middleware"
)

// RouterConfig 路由挂载参数
type RouterConfig struct {
	Prefix     string
	Routes     config.RoutesConfig
	Authorizer middleware.Authorizer
	Catalog    *i18n.Catalog
}

func init() {
	// 绑定错误中的字段名使用 form / json 标签
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"form", "json"} {
				if name, _, _ := strings.Cut(f.Tag.Get(tag), ","); name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	}
}

// NewRouter 组装中间件并按开关注册路由
func NewRouter(h *ShortURLHandler, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.ZapGinLogger(logger))
	r.Use(gin.Recovery())
	r.Use(middleware.I18nMiddleware(cfg.Catalog))
	r.Use(middleware.CorsMiddleware())
	// 注册全局错误中间件
	r.Use(middleware.GlobalErrorMiddleware(logger))

	r.NoRoute(func(c *gin.Context) {
		_ = c.Error(apperrors.WithCode(apperrors.KindNotFound, http.StatusNotFound, apperrors.MsgRouteNotFound, "Route not found"))
	})

	Register(r, h, cfg)
	return r
}

// Register 将短链接口挂载到 prefix 下；特权接口先执行鉴权谓词
func Register(r gin.IRouter, h *ShortURLHandler, cfg RouterConfig) {
	routes := cfg.Routes
	auth := middleware.RequireAuth(cfg.Authorizer)

	g := r.Group(cfg.Prefix)
	if routes.Shorten {
		g.POST("/shorten", h.Shorten)
		g.POST("/qr", h.QRBatch)
	}
	if routes.Check {
		g.GET("/check", h.Check)
	}
	if routes.Health {
		g.GET("/health", h.Health)
	}
	if routes.List {
		g.GET("/list", auth, h.List)
	}
	if routes.OverallStats {
		g.GET("/stats/overall", auth, h.OverallStats)
	}
	if routes.Stats {
		g.GET("/:code/stats", h.Stats)
	}
	if routes.Redirect {
		g.GET("/:code", h.Redirect)
	}
	if routes.Update {
		g.PATCH("/:code", auth, h.Update)
	}
	if routes.Delete {
		g.DELETE("/:code", auth, h.Delete)
	}
}
