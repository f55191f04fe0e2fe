package constant

import "fmt"

// 常量定义
const (
	BasePrefix = "shorturl:"
	Separator  = ":"
)

// Redis 键模板
const (
	ShortCode = BasePrefix + "code" + Separator + "%s"  // shorturl:code:{shortCode}
	Alias     = BasePrefix + "alias" + Separator + "%s" // shorturl:alias:{customAlias}
)

// GetShortCodeKey 生成 shortCode 缓存 key
func GetShortCodeKey(shortCode string) string {
	return fmt.Sprintf(ShortCode, shortCode)
}

// GetAliasKey 生成别名缓存 key
func GetAliasKey(alias string) string {
	return fmt.Sprintf(Alias, alias)
}
