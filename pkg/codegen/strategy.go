package codegen

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// 策略名称（配置文件中使用）
const (
	StrategyRandom     = "random"
	StrategySequential = "sequential"
	StrategyTimestamp  = "timestamp"
	StrategyCustom     = "custom"
)

// Strategy 是封闭的策略集合：Random、*Sequential、Timestamp、Custom
type Strategy interface {
	Name() string
	next(g *Generator) (string, error)
}

// Random 每一位独立均匀随机
type Random struct{}

func (Random) Name() string { return StrategyRandom }

func (Random) next(g *Generator) (string, error) {
	return g.randomString(g.length)
}

// Sequential 内部计数器递增，按字符表做 N 进制编码
type Sequential struct {
	counter atomic.Uint64
}

// NewSequential 从 start 开始计数
func NewSequential(start uint64) *Sequential {
	s := &Sequential{}
	s.counter.Store(start)
	return s
}

func (*Sequential) Name() string { return StrategySequential }

// Current 下一次将要编码的计数值
func (s *Sequential) Current() uint64 {
	return s.counter.Load()
}

func (s *Sequential) next(g *Generator) (string, error) {
	n := s.counter.Add(1) - 1
	return g.fit(g.Encode(n)), nil
}

// Timestamp 编码当前毫秒时间，过长截取末尾，过短随机补齐
type Timestamp struct {
	Now func() time.Time
}

func (Timestamp) Name() string { return StrategyTimestamp }

func (t Timestamp) next(g *Generator) (string, error) {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	encoded := g.Encode(uint64(now().UnixMilli()))
	if len(encoded) >= g.length {
		return encoded[len(encoded)-g.length:], nil
	}
	pad, err := g.randomString(g.length - len(encoded))
	if err != nil {
		return "", err
	}
	return encoded + pad, nil
}

// Custom 扩展点，Fn 为空时退化为 Random
type Custom struct {
	Fn func(g *Generator) (string, error)
}

func (Custom) Name() string { return StrategyCustom }

func (c Custom) next(g *Generator) (string, error) {
	if c.Fn == nil {
		return Random{}.next(g)
	}
	return c.Fn(g)
}

// ParseStrategy 将配置中的策略名转换为策略值
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "", StrategyRandom:
		return Random{}, nil
	case StrategySequential:
		return NewSequential(0), nil
	case StrategyTimestamp:
		return Timestamp{}, nil
	case StrategyCustom:
		return Custom{}, nil
	default:
		return nil, fmt.Errorf("unknown code generation strategy %q", name)
	}
}
