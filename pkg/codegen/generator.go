package codegen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
)

const DefaultLength = 6

var (
	ErrEmptyCode   = errors.New("codegen: empty code")
	ErrInvalidChar = errors.New("codegen: character outside charset")
	ErrOverflow    = errors.New("codegen: value overflows uint64")
)

// Config 短码生成配置
type Config struct {
	Length        int    `mapstructure:"length"`
	Charset       string `mapstructure:"charset"`
	CustomCharset string `mapstructure:"custom_charset"`
	Strategy      string `mapstructure:"strategy"`
}

// Generator 短码生成器
type Generator struct {
	length    int
	alphabet  string
	index     [256]int16
	strategy  Strategy
	normalize func(string) string
	rand      io.Reader
}

type Option func(*Generator)

// WithStrategy 直接指定策略值，覆盖配置中的策略名
func WithStrategy(s Strategy) Option {
	return func(g *Generator) {
		g.strategy = s
	}
}

// WithNormalizer 生成后的规范化钩子，默认原样返回
func WithNormalizer(fn func(string) string) Option {
	return func(g *Generator) {
		if fn != nil {
			g.normalize = fn
		}
	}
}

// WithRandSource 替换随机源
func WithRandSource(r io.Reader) Option {
	return func(g *Generator) {
		g.rand = r
	}
}

func New(cfg Config, opts ...Option) (*Generator, error) {
	length := cfg.Length
	if length <= 0 {
		length = DefaultLength
	}

	alphabet, err := ResolveCharset(cfg.Charset, cfg.CustomCharset)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		length:    length,
		alphabet:  alphabet,
		normalize: func(s string) string { return s },
		rand:      rand.Reader,
	}
	for i := range g.index {
		g.index[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		g.index[alphabet[i]] = int16(i)
	}

	for _, opt := range opts {
		opt(g)
	}
	if g.strategy == nil {
		s, err := ParseStrategy(cfg.Strategy)
		if err != nil {
			return nil, err
		}
		g.strategy = s
	}
	return g, nil
}

func (g *Generator) Length() int        { return g.length }
func (g *Generator) Alphabet() string   { return g.alphabet }
func (g *Generator) Strategy() Strategy { return g.strategy }

// Generate 按当前策略生成一个候选短码
func (g *Generator) Generate() (string, error) {
	code, err := g.strategy.next(g)
	if err != nil {
		return "", fmt.Errorf("generate %s code: %w", g.strategy.Name(), err)
	}
	return g.normalize(code), nil
}

// Normalize 对外暴露规范化钩子
func (g *Generator) Normalize(code string) string {
	return g.normalize(code)
}

// IsValid 长度和字符集都匹配
func (g *Generator) IsValid(code string) bool {
	if len(code) != g.length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if g.index[code[i]] < 0 {
			return false
		}
	}
	return true
}

// Encode 以字符表为数字表做 N 进制编码
func (g *Generator) Encode(n uint64) string {
	base := uint64(len(g.alphabet))
	if n == 0 {
		return g.alphabet[:1]
	}
	var buf [64]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = g.alphabet[n%base]
		n /= base
	}
	return string(buf[i:])
}

// Decode 是 Encode 的逆运算
func (g *Generator) Decode(s string) (uint64, error) {
	if s == "" {
		return 0, ErrEmptyCode
	}
	base := uint64(len(g.alphabet))
	var n uint64
	for i := 0; i < len(s); i++ {
		idx := g.index[s[i]]
		if idx < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidChar, s[i])
		}
		if n > (math.MaxUint64-uint64(idx))/base {
			return 0, ErrOverflow
		}
		n = n*base + uint64(idx)
	}
	return n, nil
}

// fit 左侧补零位到固定长度，超长时保留末尾
func (g *Generator) fit(s string) string {
	if len(s) >= g.length {
		return s[len(s)-g.length:]
	}
	pad := make([]byte, g.length-len(s))
	for i := range pad {
		pad[i] = g.alphabet[0]
	}
	return string(pad) + s
}

func (g *Generator) randomString(n int) (string, error) {
	limit := big.NewInt(int64(len(g.alphabet)))
	code := make([]byte, n)
	for i := range code {
		num, err := rand.Int(g.rand, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		code[i] = g.alphabet[num.Int64()]
	}
	return string(code), nil
}
