package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"shorturl-go/internal/apperrors"
	"shorturl-go/internal/config"
)

const APIKeyHeader = "X-API-Key"

// Authorizer 特权接口的鉴权谓词，返回非 nil 错误即拒绝
type Authorizer func(c *gin.Context) error

var errMissingCredential = errors.New("missing credential")

// NewCredentialAuthorizer 依据配置的 API Key 与 JWT 密钥构造谓词。
// 两者都未配置时返回 nil，RequireAuth 会拒绝所有请求。
func NewCredentialAuthorizer(cfg config.AuthConfig) Authorizer {
	keys := make([][]byte, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	secret := []byte(cfg.JWTSecret)
	if len(keys) == 0 && len(secret) == 0 {
		return nil
	}

	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.JWTIssuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.JWTIssuer))
	}

	return func(c *gin.Context) error {
		if key := c.GetHeader(APIKeyHeader); key != "" && len(keys) > 0 {
			for _, k := range keys {
				if subtle.ConstantTimeCompare([]byte(key), k) == 1 {
					return nil
				}
			}
			return errors.New("invalid api key")
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || len(secret) == 0 {
			return errMissingCredential
		}
		_, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
			return secret, nil
		}, parserOpts...)
		return err
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth 在处理函数之前执行鉴权谓词
func RequireAuth(authorize Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authorize == nil {
			_ = c.Error(apperrors.Unauthorized("No credentials are configured for this route"))
			c.Abort()
			return
		}
		if err := authorize(c); err != nil {
			_ = c.Error(apperrors.Unauthorized("Valid credentials are required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
