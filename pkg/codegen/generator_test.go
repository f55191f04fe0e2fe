package codegen

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	g, err := New(Config{})
	require.NoError(t, err)

	assert.Equal(t, DefaultLength, g.Length())
	assert.Equal(t, alphanumericChars, g.Alphabet())
	assert.Equal(t, StrategyRandom, g.Strategy().Name())
}

func TestNew_RejectsUnknownSettings(t *testing.T) {
	_, err := New(Config{Charset: "emoji"})
	assert.Error(t, err)

	_, err = New(Config{Strategy: "uuid"})
	assert.Error(t, err)

	_, err = New(Config{Charset: CharsetCustom, CustomCharset: "aa"})
	assert.Error(t, err)

	_, err = New(Config{Charset: CharsetCustom, CustomCharset: "x"})
	assert.Error(t, err)
}

func TestGenerate_LengthAndCharset(t *testing.T) {
	charsets := []string{CharsetAlphanumeric, CharsetLowercase, CharsetUppercase, CharsetNumbers, CharsetSafe}
	strategies := []string{StrategyRandom, StrategySequential, StrategyTimestamp, StrategyCustom}

	for _, cs := range charsets {
		for _, st := range strategies {
			t.Run(cs+"/"+st, func(t *testing.T) {
				g, err := New(Config{Length: 8, Charset: cs, Strategy: st})
				require.NoError(t, err)

				for i := 0; i < 50; i++ {
					code, err := g.Generate()
					require.NoError(t, err)
					assert.Len(t, code, 8)
					assert.True(t, g.IsValid(code), "code %q outside charset %q", code, g.Alphabet())
				}
			})
		}
	}
}

func TestSafeCharsetExcludesAmbiguousGlyphs(t *testing.T) {
	for _, c := range "0O1lIi" {
		assert.False(t, strings.ContainsRune(safeChars, c), "safe charset contains %q", c)
	}
}

func TestSequential_Monotonic(t *testing.T) {
	seq := NewSequential(0)
	g, err := New(Config{Length: 4, Charset: CharsetNumbers}, WithStrategy(seq))
	require.NoError(t, err)

	var codes []string
	for i := 0; i < 12; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		codes = append(codes, code)
	}

	assert.Equal(t, "0000", codes[0])
	assert.Equal(t, "0001", codes[1])
	assert.Equal(t, "0011", codes[11])
	assert.Equal(t, uint64(12), seq.Current())

	for i := 1; i < len(codes); i++ {
		prev, _ := g.Decode(codes[i-1])
		cur, _ := g.Decode(codes[i])
		assert.Equal(t, prev+1, cur)
	}
}

func TestSequential_WrapsToLength(t *testing.T) {
	g, err := New(Config{Length: 2, Charset: CharsetNumbers}, WithStrategy(NewSequential(12345)))
	require.NoError(t, err)

	code, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "45", code)
}

func TestTimestamp_TruncatesAndPads(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)

	long, err := New(Config{Length: 3, Charset: CharsetNumbers}, WithStrategy(Timestamp{Now: func() time.Time { return at }}))
	require.NoError(t, err)
	code, err := long.Generate()
	require.NoError(t, err)
	assert.Equal(t, "000", code)

	short, err := New(Config{Length: 12, Charset: CharsetAlphanumeric}, WithStrategy(Timestamp{Now: func() time.Time { return at }}))
	require.NoError(t, err)
	code, err = short.Generate()
	require.NoError(t, err)
	encoded := short.Encode(uint64(at.UnixMilli()))
	assert.Len(t, code, 12)
	assert.True(t, strings.HasPrefix(code, encoded))
}

func TestCustomStrategy(t *testing.T) {
	g, err := New(Config{Length: 5}, WithStrategy(Custom{Fn: func(g *Generator) (string, error) {
		return "ABCDE", nil
	}}))
	require.NoError(t, err)

	code, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "ABCDE", code)

	boom := errors.New("boom")
	g, err = New(Config{}, WithStrategy(Custom{Fn: func(*Generator) (string, error) { return "", boom }}))
	require.NoError(t, err)
	_, err = g.Generate()
	assert.ErrorIs(t, err, boom)
}

func TestNormalizer(t *testing.T) {
	g, err := New(Config{Charset: CharsetAlphanumeric}, WithNormalizer(strings.ToUpper))
	require.NoError(t, err)

	code, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, strings.ToUpper(code), code)
	assert.Equal(t, "ABC", g.Normalize("abc"))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 9, 10, 61, 62, 63, 3843, 1 << 32, 1_700_000_000_000, math.MaxUint64 - 1, math.MaxUint64}

	for _, cs := range []string{CharsetAlphanumeric, CharsetNumbers, CharsetSafe, CharsetLowercase} {
		g, err := New(Config{Charset: cs})
		require.NoError(t, err)

		for _, n := range values {
			got, err := g.Decode(g.Encode(n))
			require.NoError(t, err)
			assert.Equal(t, n, got, "charset %s value %d", cs, n)
		}
	}
}

func TestEncode_KnownValues(t *testing.T) {
	g, err := New(Config{Charset: CharsetNumbers})
	require.NoError(t, err)

	assert.Equal(t, "0", g.Encode(0))
	assert.Equal(t, "1234", g.Encode(1234))
}

func TestDecode_Errors(t *testing.T) {
	g, err := New(Config{Charset: CharsetNumbers})
	require.NoError(t, err)

	_, err = g.Decode("")
	assert.ErrorIs(t, err, ErrEmptyCode)

	_, err = g.Decode("12a")
	assert.ErrorIs(t, err, ErrInvalidChar)

	_, err = g.Decode("99999999999999999999999")
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestIsValid(t *testing.T) {
	g, err := New(Config{Length: 4, Charset: CharsetLowercase})
	require.NoError(t, err)

	assert.True(t, g.IsValid("ab12"))
	assert.False(t, g.IsValid("AB12"))
	assert.False(t, g.IsValid("ab1"))
	assert.False(t, g.IsValid("ab1-"))
}
