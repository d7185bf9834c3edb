package passgen

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgutierrezgil/guardiapass/internal/charset"
	"github.com/jgutierrezgil/guardiapass/internal/crypto"
)

func TestGenerate_LengthAndClasses(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"defaults", DefaultOptions()},
		{"min_length_all_classes", Options{Length: 12, Lower: true, Upper: true, Digits: true, Special: true, Extended: true}},
		{"max_length", Options{Length: 60, Lower: true, Upper: true, Digits: true, Special: true}},
		{"digits_only", Options{Length: 20, Digits: true}},
		{"extended_only", Options{Length: 30, Extended: true}},
		{"upper_special", Options{Length: 15, Upper: true, Special: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				pw, err := Generate(tt.opts)
				require.NoError(t, err)
				assert.Equal(t, tt.opts.Length, utf8.RuneCountInString(pw))

				for _, c := range tt.opts.Classes() {
					assert.Truef(t, charset.Has(pw, c), "%q missing a %s character", pw, c)
				}
				for _, r := range pw {
					assert.Truef(t, inAny(r, tt.opts.Classes()), "%q contains %q outside the enabled classes", pw, r)
				}
			}
		})
	}
}

func TestGenerate_NoClassesFallsBackToLowercase(t *testing.T) {
	pw, err := Generate(Options{Length: 24})
	require.NoError(t, err)

	assert.Equal(t, 24, utf8.RuneCountInString(pw))
	for _, r := range pw {
		assert.True(t, charset.Lower.Contains(r))
	}
}

func TestGenerate_InvalidLength(t *testing.T) {
	for _, n := range []int{-1, 0, 11, 61, 1000} {
		opts := DefaultOptions()
		opts.Length = n

		_, err := Generate(opts)
		assert.Truef(t, errors.Is(err, ErrInvalidLength), "length %d: error = %v", n, err)
	}
}

func TestGenerate_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		pw, err := Generate(DefaultOptions())
		require.NoError(t, err)
		assert.False(t, seen[pw], "duplicate password generated")
		seen[pw] = true
	}
}

func TestGenerate_SeedPositionsVary(t *testing.T) {
	opts := Options{Length: 12, Lower: true, Digits: true}
	positions := make(map[int]bool)
	for i := 0; i < 100; i++ {
		pw, err := Generate(opts)
		require.NoError(t, err)
		for j, r := range []rune(pw) {
			if charset.Digits.Contains(r) {
				positions[j] = true
				break
			}
		}
	}
	assert.Greater(t, len(positions), 1)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestGenerate_EntropyUnavailable(t *testing.T) {
	orig := randReader
	randReader = failingReader{}
	t.Cleanup(func() { randReader = orig })

	_, err := Generate(DefaultOptions())
	assert.ErrorIs(t, err, crypto.ErrEntropyUnavailable)
}

func TestGenerator(t *testing.T) {
	g := New(Options{Length: 40, Upper: true, Extended: true})
	assert.Equal(t, 40, g.Options().Length)

	pw, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, 40, utf8.RuneCountInString(pw))
	assert.True(t, charset.Has(pw, charset.Extended))
}

func TestOptionsClasses(t *testing.T) {
	assert.Equal(t,
		[]charset.Class{charset.Lower, charset.Upper, charset.Digits, charset.Special},
		DefaultOptions().Classes())
	assert.Equal(t, []charset.Class{charset.Lower}, Options{}.Classes())
}

func inAny(r rune, classes []charset.Class) bool {
	for _, c := range classes {
		if c.Contains(r) {
			return true
		}
	}
	return false
}
