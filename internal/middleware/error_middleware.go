package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shorturl-go/internal/apperrors"
	"shorturl-go/internal/i18n"
	"shorturl-go/pkg/validator"
	"shorturl-go/response"
)

// GlobalErrorMiddleware 全局错误中间件，将 c.Error 收集到的错误转换为统一响应
func GlobalErrorMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		var appErr *apperrors.AppError
		for _, err := range c.Errors {
			if errors.As(err.Err, &appErr) {
				break
			}
		}
		// 默认处理未定义的错误
		if appErr == nil {
			appErr = apperrors.Internal(c.Errors.Last().Err)
		}

		if appErr.Cause != nil {
			logger.Error("Request failed",
				zap.String("kind", string(appErr.Kind)),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetString(RequestIDKey)),
				zap.Error(appErr.Cause),
			)
		}

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(appErr.Code, ErrorBody(c.Request.Context(), appErr))
	}
}

// ErrorBody 构造本地化后的错误响应体
func ErrorBody(ctx context.Context, appErr *apperrors.AppError) *response.ErrorResponse {
	body := response.Error(string(appErr.Kind), i18n.T(ctx, appErr.MessageID, nil, appErr.Message))
	if len(appErr.Violations) > 0 {
		body.Errors = make(validator.Violations, 0, len(appErr.Violations))
		for _, v := range appErr.Violations {
			localized := *v
			localized.Message = i18n.T(ctx, v.MessageID, v.Params, v.Message)
			body.Errors = append(body.Errors, &localized)
		}
	}
	body.RequiresEntryCode = appErr.Kind == apperrors.KindEntryCodeRequired
	return body
}
