package middleware

import (
	"github.com/gin-gonic/gin"

	"shorturl-go/internal/i18n"
)

// I18nMiddleware 根据 Accept-Language 选择语言并把 Localizer 放入请求上下文
func I18nMiddleware(catalog *i18n.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := catalog.Match(c.GetHeader("Accept-Language"))
		c.Set("lang", lang)
		c.Request = c.Request.WithContext(i18n.WithLocalizer(c.Request.Context(), catalog.Localizer(lang)))
		c.Next()
	}
}
