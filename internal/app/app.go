package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gomodule/redigo/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"shorturl-go/internal/config"
	"shorturl-go/internal/handler"
	"shorturl-go/internal/i18n"
	"shorturl-go/internal/middleware"
	"shorturl-go/internal/model"
	"shorturl-go/internal/repository"
	"shorturl-go/internal/scheduler"
	"shorturl-go/internal/service"
	"shorturl-go/internal/storage"
	"shorturl-go/pkg/codegen"
	"shorturl-go/pkg/qr"
	"shorturl-go/pkg/validator"
)

const cleanupTimeout = time.Minute

// App 持有所有长生命周期的组件，由各个子命令共享
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Level   zap.AtomicLevel
	DB      *gorm.DB
	Store   storage.Adapter
	Service *service.ShortURLService

	relational *repository.RelationalAdapter
	redis      *redis.Pool
}

// New 按配置组装存储、缓存与业务服务，并建立存储连接
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, level zap.AtomicLevel) (*App, error) {
	db, err := repository.OpenDB(cfg.DB, logger, level.Level())
	if err != nil {
		return nil, err
	}

	relational := repository.NewRelationalAdapter(db, logger, repository.WithAutoMigrate(cfg.DB.AutoMigrate))
	if err := relational.Connect(ctx); err != nil {
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Level:      level,
		DB:         db,
		Store:      relational,
		relational: relational,
	}

	if cfg.Redis.Enabled {
		a.redis = repository.NewRedisPool(cfg.Redis, logger)
		if err := repository.PingRedis(a.redis); err != nil {
			// 缓存不可用时直接读库，缓存层会在每次访问时重试
			logger.Warn("Redis unavailable at startup, continuing with database reads", zap.Error(err))
		}
		a.Store = repository.NewCachedAdapter(relational, a.redis, logger, cfg.Redis.TTL, cfg.Redis.NegativeTTL)
	}

	svc, err := a.buildService()
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Service = svc
	return a, nil
}

func (a *App) buildService() (*service.ShortURLService, error) {
	cfg := a.Config
	var genOpts []codegen.Option
	if strings.EqualFold(cfg.Codegen.Strategy, codegen.StrategySequential) {
		// 计数器从已有记录数继续，重启后不会从头撞上已分配的短码
		var n int64
		if err := a.DB.Model(&model.ShortURL{}).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("seed sequential generator: %w", err)
		}
		genOpts = append(genOpts, codegen.WithStrategy(codegen.NewSequential(uint64(n))))
	}
	gen, err := codegen.New(cfg.Codegen, genOpts...)
	if err != nil {
		return nil, fmt.Errorf("code generator: %w", err)
	}

	opts := []service.Option{
		service.WithValidator(validator.New(validator.WithAllowedDomains(cfg.ShortURL.AllowedDomains...))),
	}
	if cfg.ShortURL.EnableQR {
		qrSvc, err := qr.New(cfg.QR)
		if err != nil {
			return nil, fmt.Errorf("qr service: %w", err)
		}
		opts = append(opts, service.WithQRService(qrSvc))
	}
	if cfg.ShortURL.EnableAnalytics && cfg.ShortURL.AsyncAnalytics {
		opts = append(opts, service.WithClickRecorder(service.NewAsyncClickRecorder(
			a.Store, a.Logger, cfg.ShortURL.AnalyticsBuffer, cfg.ShortURL.AnalyticsWorkers)))
	}

	return service.NewShortURLService(a.Store, gen, service.Config{
		BaseURL:         cfg.Server.BaseURL,
		Prefix:          cfg.Server.Prefix,
		EnableQR:        cfg.ShortURL.EnableQR,
		EnableAnalytics: cfg.ShortURL.EnableAnalytics,
		ReuseExisting:   cfg.ShortURL.ReuseExisting,
		MaxRetries:      cfg.ShortURL.MaxRetries,
	}, a.Logger, opts...), nil
}

// Router 构造 HTTP 路由
func (a *App) Router() (*gin.Engine, error) {
	catalog, err := i18n.New(a.Config.I18n.DefaultLang)
	if err != nil {
		return nil, fmt.Errorf("load i18n catalog: %w", err)
	}
	if mode := a.Config.Server.Mode; mode != "" {
		gin.SetMode(mode)
	}
	authorizer := middleware.NewCredentialAuthorizer(a.Config.Auth)
	if authorizer == nil {
		a.Logger.Warn("No api_keys or jwt_secret configured, privileged routes will reject every request")
	}
	return handler.NewRouter(handler.NewShortURLHandler(a.Service, a.Logger), handler.RouterConfig{
		Prefix:     a.Config.Server.Prefix,
		Routes:     a.Config.Routes,
		Authorizer: authorizer,
		Catalog:    catalog,
	}, a.Logger), nil
}

// Serve 启动 HTTP 服务与定时清理，ctx 结束后优雅关闭
func (a *App) Serve(ctx context.Context) error {
	router, err := a.Router()
	if err != nil {
		return err
	}

	var sched *scheduler.Scheduler
	if a.Config.ShortURL.AutoCleanup {
		sched = scheduler.New(a.Logger)
		if _, err := sched.ScheduleCleanup(a.Service, a.Config.ShortURL.CleanupInterval, cleanupTimeout); err != nil {
			return err
		}
		sched.Start()
	}

	srv := &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("Server is running", zap.String("addr", srv.Addr), zap.String("base_url", a.Config.Server.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var errs []error
	select {
	case err := <-errCh:
		if err != nil {
			errs = append(errs, fmt.Errorf("start server: %w", err))
		}
	case <-ctx.Done():
	}
	a.Logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("Server forced to shutdown", zap.Error(err))
		errs = append(errs, err)
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	a.Logger.Info("Server exiting")
	return errors.Join(errs...)
}

// Close 依次排空访问记录、关闭 Redis 连接池与数据库
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Service != nil {
		if err := a.Service.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain click recorder: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("Redis pool close failed", zap.Error(err))
		}
	}
	if err := a.relational.Disconnect(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disconnect storage: %w", err))
	}
	return errors.Join(errs...)
}
