package qr

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const DataURLPrefix = "data:image/png;base64,"

// Options 渲染参数
type Options struct {
	Size            int    `mapstructure:"size"`
	Margin          int    `mapstructure:"margin"`
	ErrorCorrection string `mapstructure:"error_correction"`
	Foreground      string `mapstructure:"foreground"`
	Background      string `mapstructure:"background"`
}

// DefaultOptions 300px、4px 边距、M 级纠错、黑白配色
func DefaultOptions() Options {
	return Options{
		Size:            300,
		Margin:          4,
		ErrorCorrection: "M",
		Foreground:      "#000000",
		Background:      "#FFFFFF",
	}
}

// LogoCompositor 在二维码中央叠加 logo 的扩展点
type LogoCompositor interface {
	Composite(img draw.Image) error
}

// Service 将 URL 渲染为 PNG data URL
type Service struct {
	opts  Options
	level qrcode.RecoveryLevel
	fg    color.Color
	bg    color.Color
	logo  LogoCompositor
}

type Option func(*Service)

// WithLogo 设置 logo 合成器，纠错级别提升到最高
func WithLogo(l LogoCompositor) Option {
	return func(s *Service) {
		s.logo = l
		s.level = qrcode.Highest
	}
}

func New(opts Options, options ...Option) (*Service, error) {
	def := DefaultOptions()
	if opts.Size <= 0 {
		opts.Size = def.Size
	}
	if opts.Margin < 0 {
		opts.Margin = 0
	}
	if opts.ErrorCorrection == "" {
		opts.ErrorCorrection = def.ErrorCorrection
	}
	if opts.Foreground == "" {
		opts.Foreground = def.Foreground
	}
	if opts.Background == "" {
		opts.Background = def.Background
	}

	level, err := parseLevel(opts.ErrorCorrection)
	if err != nil {
		return nil, err
	}
	fg, err := parseHexColor(opts.Foreground)
	if err != nil {
		return nil, fmt.Errorf("foreground: %w", err)
	}
	bg, err := parseHexColor(opts.Background)
	if err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}

	s := &Service{opts: opts, level: level, fg: fg, bg: bg}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// Options 返回生效的渲染参数
func (s *Service) Options() Options { return s.opts }

// RenderPNG 渲染为 PNG 字节
func (s *Service) RenderPNG(content string) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("qr: empty content")
	}
	code, err := qrcode.New(content, s.level)
	if err != nil {
		return nil, fmt.Errorf("qr: encode %q: %w", content, err)
	}
	code.ForegroundColor = s.fg
	code.BackgroundColor = s.bg
	code.DisableBorder = true

	matrix := code.Image(s.opts.Size)
	bounds := matrix.Bounds()
	m := s.opts.Margin
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx()+2*m, bounds.Dy()+2*m))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: s.bg}, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(m, m, m+bounds.Dx(), m+bounds.Dy()), matrix, bounds.Min, draw.Src)

	if s.logo != nil {
		if err := s.logo.Composite(canvas); err != nil {
			return nil, fmt.Errorf("qr: logo: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("qr: png encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Render 渲染为 data:image/png;base64 形式
func (s *Service) Render(content string) (string, error) {
	raw, err := s.RenderPNG(content)
	if err != nil {
		return "", err
	}
	return DataURLPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

// BatchResult 批量渲染中的单项结果
type BatchResult struct {
	URL     string `json:"url"`
	DataURL string `json:"qrCode,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RenderBatch 逐个渲染，单项失败不影响其他项
func (s *Service) RenderBatch(urls []string) []BatchResult {
	results := make([]BatchResult, 0, len(urls))
	for _, u := range urls {
		r := BatchResult{URL: u}
		dataURL, err := s.Render(u)
		if err != nil {
			r.Error = err.Error()
		} else {
			r.DataURL = dataURL
		}
		results = append(results, r)
	}
	return results
}

// IsValid 检查是否为可解码的 PNG data URL
func IsValid(artifact string) bool {
	payload, ok := strings.CutPrefix(artifact, DataURLPrefix)
	if !ok || payload == "" {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return false
	}
	_, err = png.DecodeConfig(bytes.NewReader(raw))
	return err == nil
}

// EstimateSize 估算 data URL 解码后的字节数
func EstimateSize(artifact string) int {
	payload := strings.TrimPrefix(artifact, DataURLPrefix)
	if payload == "" {
		return 0
	}
	padding := 0
	if strings.HasSuffix(payload, "==") {
		padding = 2
	} else if strings.HasSuffix(payload, "=") {
		padding = 1
	}
	return len(payload)*3/4 - padding
}

func parseLevel(s string) (qrcode.RecoveryLevel, error) {
	switch strings.ToUpper(s) {
	case "L", "LOW":
		return qrcode.Low, nil
	case "M", "MEDIUM":
		return qrcode.Medium, nil
	case "Q", "QUARTILE", "HIGH":
		return qrcode.High, nil
	case "H", "HIGHEST":
		return qrcode.Highest, nil
	default:
		return qrcode.Medium, fmt.Errorf("unknown error correction level %q", s)
	}
}

// parseHexColor 支持 #RGB、#RRGGBB、#RRGGBBAA
func parseHexColor(s string) (color.Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return nil, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
