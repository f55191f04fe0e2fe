package codegen

import (
	"fmt"
	"strings"
)

// 字符集名称
const (
	CharsetAlphanumeric = "alphanumeric"
	CharsetLowercase    = "lowercase"
	CharsetUppercase    = "uppercase"
	CharsetNumbers      = "numbers"
	CharsetSafe         = "safe"
	CharsetCustom       = "custom"
)

const (
	alphanumericChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	lowercaseChars    = "abcdefghijklmnopqrstuvwxyz0123456789"
	uppercaseChars    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	numberChars       = "0123456789"
	// 去掉 0/O、1/l/I/i 等易混淆字符
	safeChars = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789"
)

// ResolveCharset 根据名称返回字符表，custom 时使用调用方提供的字符
func ResolveCharset(name, custom string) (string, error) {
	switch strings.ToLower(name) {
	case "", CharsetAlphanumeric:
		return alphanumericChars, nil
	case CharsetLowercase:
		return lowercaseChars, nil
	case CharsetUppercase:
		return uppercaseChars, nil
	case CharsetNumbers:
		return numberChars, nil
	case CharsetSafe:
		return safeChars, nil
	case CharsetCustom:
		if err := checkAlphabet(custom); err != nil {
			return "", err
		}
		return custom, nil
	default:
		return "", fmt.Errorf("unknown charset %q", name)
	}
}

func checkAlphabet(alphabet string) error {
	if len(alphabet) < 2 {
		return fmt.Errorf("custom charset needs at least 2 characters")
	}
	seen := make(map[byte]struct{}, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		c := alphabet[i]
		if c < 0x21 || c > 0x7e {
			return fmt.Errorf("custom charset must be printable ASCII, got %q", c)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("custom charset has duplicate character %q", c)
		}
		seen[c] = struct{}{}
	}
	return nil
}
