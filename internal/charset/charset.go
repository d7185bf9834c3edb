// Package charset defines the character classes used to generate and
// score passwords.
package charset

import "strings"

// Class identifies a character class.
type Class int

const (
	Lower Class = iota
	Upper
	Digits
	Special
	Extended
)

const (
	// LowerChars is the ASCII lowercase alphabet.
	LowerChars = "abcdefghijklmnopqrstuvwxyz"
	// UpperChars is the ASCII uppercase alphabet.
	UpperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// DigitChars is the ASCII digits.
	DigitChars = "0123456789"
	// SpecialChars is the fixed punctuation set.
	SpecialChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"
	// ExtendedChars is the fixed set of accented Latin letters.
	ExtendedChars = "ñçáéíóúàèìòùâêîôûäëïöüÑÇÁÉÍÓÚÀÈÌÒÙÂÊÎÔÛÄËÏÖÜ"
)

// All lists the classes in their canonical order.
var All = []Class{Lower, Upper, Digits, Special, Extended}

var names = map[Class]string{
	Lower:    "lowercase",
	Upper:    "uppercase",
	Digits:   "digits",
	Special:  "special",
	Extended: "extended",
}

func (c Class) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "unknown"
}

// Chars returns the characters of class c as runes.
func (c Class) Chars() []rune {
	switch c {
	case Lower:
		return []rune(LowerChars)
	case Upper:
		return []rune(UpperChars)
	case Digits:
		return []rune(DigitChars)
	case Special:
		return []rune(SpecialChars)
	case Extended:
		return []rune(ExtendedChars)
	}
	return nil
}

// Contains reports whether r belongs to class c.
func (c Class) Contains(r rune) bool {
	switch c {
	case Lower:
		return r >= 'a' && r <= 'z'
	case Upper:
		return r >= 'A' && r <= 'Z'
	case Digits:
		return r >= '0' && r <= '9'
	case Special:
		return strings.ContainsRune(SpecialChars, r)
	case Extended:
		return strings.ContainsRune(ExtendedChars, r)
	}
	return false
}

// Has reports whether s contains at least one rune of class c.
func Has(s string, c Class) bool {
	for _, r := range s {
		if c.Contains(r) {
			return true
		}
	}
	return false
}
