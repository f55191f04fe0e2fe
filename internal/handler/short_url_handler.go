package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	govalidator "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"shorturl-go/internal/apperrors"
	"shorturl-go/internal/dto"
	"shorturl-go/internal/service"
	"shorturl-go/pkg/validator"
	"shorturl-go/response"
)

// 访问者国家取自 CDN 注入的请求头
var countryHeaders = []string{"CF-IPCountry", "X-Country-Code"}

type ShortURLHandler struct {
	svc    *service.ShortURLService
	logger *zap.Logger
}

func NewShortURLHandler(svc *service.ShortURLService, logger *zap.Logger) *ShortURLHandler {
	return &ShortURLHandler{svc: svc, logger: logger}
}

func (h *ShortURLHandler) bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.logger.Warn("Request body binding failed",
			zap.Error(err),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		_ = c.Error(bindingError(err, "body", apperrors.MsgBodyInvalid))
		return false
	}
	return true
}

// bindingError 将 gin 绑定错误转换为与业务校验相同格式的违规列表
func bindingError(err error, field, messageID string) *apperrors.AppError {
	var verrs govalidator.ValidationErrors
	if !errors.As(err, &verrs) {
		v := validator.NewViolation(field, messageID, err.Error())
		v.Params = map[string]any{"Field": field}
		return apperrors.Validation(validator.Violations{v})
	}
	violations := make(validator.Violations, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		v := validator.NewViolation(name, apperrors.MsgQueryInvalid, "Parameter "+name+" is invalid")
		v.Params = map[string]any{"Field": name}
		violations = append(violations, v)
	}
	return apperrors.Validation(violations)
}

// Shorten 创建短链
func (h *ShortURLHandler) Shorten(c *gin.Context) {
	var req dto.ShortenRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Shorten(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, response.OK(resp, "Short URL created"))
}

// Check 查询别名是否可用
func (h *ShortURLHandler) Check(c *gin.Context) {
	resp, err := h.svc.CheckAvailability(c.Request.Context(), c.Query("alias"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.OK(resp, "success"))
}

// Redirect 解析短码或别名并 302 跳转
func (h *ShortURLHandler) Redirect(c *gin.Context) {
	visit := dto.VisitContext{
		EntryCode: c.Query("entryCode"),
		Referer:   c.Request.Referer(),
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}
	for _, header := range countryHeaders {
		if country := c.GetHeader(header); country != "" {
			visit.Country = country
			break
		}
	}

	result, err := h.svc.Resolve(c.Request.Context(), c.Param("code"), visit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	// 点击需要计数，禁止客户端缓存跳转
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Redirect(http.StatusFound, result.OriginalURL)
}

func (h *ShortURLHandler) Stats(c *gin.Context) {
	stats, err := h.svc.GetStats(c.Request.Context(), c.Param("code"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.OK(stats, "success"))
}

// List 分页查询短链列表
func (h *ShortURLHandler) List(c *gin.Context) {
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(bindingError(err, "query", apperrors.MsgQueryInvalid))
		return
	}

	page, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.OK(page, "success"))
}

// Update 部分更新
func (h *ShortURLHandler) Update(c *gin.Context) {
	var req dto.UpdateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Update(c.Request.Context(), c.Param("code"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.OK(resp, "Short URL updated"))
}

// Delete 软删除
func (h *ShortURLHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("code")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.OK(struct{}{}, "Short URL deleted"))
}

// Health 存储不可用时返回 503
func (h *ShortURLHandler) Health(c *gin.Context) {
	health := h.svc.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if !health.Storage {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response.Response[*dto.HealthResponse]{
		Success:   health.Storage,
		Message:   health.Status,
		Data:      health,
		Timestamp: health.CheckedAt.UnixMilli(),
	})
}

func (h *ShortURLHandler) OverallStats(c *gin.Context) {
	stats, err := h.svc.GetOverallStats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.OK(stats, "success"))
}

// QRBatch 批量生成二维码
func (h *ShortURLHandler) QRBatch(c *gin.Context) {
	var req dto.BatchQRRequest
	if !h.bindJSON(c, &req) {
		return
	}

	results, err := h.svc.RenderQRBatch(req.URLs)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.OK(results, "success"))
}
