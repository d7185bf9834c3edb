// Package passgen generates random passwords from configurable character classes.
package passgen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/jgutierrezgil/guardiapass/internal/charset"
	"github.com/jgutierrezgil/guardiapass/internal/crypto"
)

const (
	// MinLength is the shortest password Generate accepts.
	MinLength = 12
	// MaxLength is the longest password Generate accepts.
	MaxLength = 60
	// DefaultLength is the length used by DefaultOptions.
	DefaultLength = 16
)

// ErrInvalidLength is returned when the requested length is outside [MinLength, MaxLength].
var ErrInvalidLength = errors.New("invalid password length")

// randReader is the randomness source for character selection and shuffling.
var randReader io.Reader = rand.Reader

// Options selects the length and character classes of a generated password.
// Length is counted in characters, not bytes.
type Options struct {
	Length   int  `json:"length" yaml:"length"`
	Lower    bool `json:"use_lower" yaml:"use_lower"`
	Upper    bool `json:"use_upper" yaml:"use_upper"`
	Digits   bool `json:"use_digits" yaml:"use_digits"`
	Special  bool `json:"use_special" yaml:"use_special"`
	Extended bool `json:"use_extended" yaml:"use_extended"`
}

// DefaultOptions returns a 16 character policy using every class except extended.
func DefaultOptions() Options {
	return Options{
		Length:  DefaultLength,
		Lower:   true,
		Upper:   true,
		Digits:  true,
		Special: true,
	}
}

// Classes returns the enabled classes in canonical order. When none are
// enabled it returns lowercase only.
func (o Options) Classes() []charset.Class {
	enabled := map[charset.Class]bool{
		charset.Lower:    o.Lower,
		charset.Upper:    o.Upper,
		charset.Digits:   o.Digits,
		charset.Special:  o.Special,
		charset.Extended: o.Extended,
	}

	var classes []charset.Class
	for _, c := range charset.All {
		if enabled[c] {
			classes = append(classes, c)
		}
	}
	if len(classes) == 0 {
		classes = []charset.Class{charset.Lower}
	}
	return classes
}

// Validate checks the length bounds.
func (o Options) Validate() error {
	if o.Length < MinLength || o.Length > MaxLength {
		return fmt.Errorf("%w: must be between %d and %d, got %d", ErrInvalidLength, MinLength, MaxLength, o.Length)
	}
	return nil
}

// Generator produces passwords for a fixed set of Options. The zero value
// is not useful; construct with New. Generators hold no shared state and
// are safe for concurrent use.
type Generator struct {
	opts Options
}

// New returns a Generator for opts.
func New(opts Options) Generator {
	return Generator{opts: opts}
}

// Options returns the generator's options.
func (g Generator) Options() Options {
	return g.opts
}

// Generate returns a new password.
func (g Generator) Generate() (string, error) {
	return Generate(g.opts)
}

// Generate returns a password of opts.Length characters containing at least
// one character of every enabled class.
//
// One character is drawn from each enabled class, the rest are drawn from
// the union of all enabled classes, and the result is shuffled so seeded
// positions are not predictable.
func Generate(opts Options) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}

	classes := opts.Classes()

	var pool []rune
	for _, c := range classes {
		pool = append(pool, c.Chars()...)
	}

	password := make([]rune, 0, opts.Length)
	for _, c := range classes {
		r, err := pick(c.Chars())
		if err != nil {
			return "", err
		}
		password = append(password, r)
	}

	for len(password) < opts.Length {
		r, err := pick(pool)
		if err != nil {
			return "", err
		}
		password = append(password, r)
	}

	if err := shuffle(password); err != nil {
		return "", err
	}

	return string(password), nil
}

func pick(set []rune) (rune, error) {
	i, err := randIndex(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

// shuffle is a Fisher-Yates shuffle driven by the system CSPRNG.
func shuffle(s []rune) error {
	for i := len(s) - 1; i > 0; i-- {
		j, err := randIndex(i + 1)
		if err != nil {
			return err
		}
		s[i], s[j] = s[j], s[i]
	}
	return nil
}

func randIndex(n int) (int, error) {
	v, err := rand.Int(randReader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", crypto.ErrEntropyUnavailable, err)
	}
	return int(v.Int64()), nil
}
