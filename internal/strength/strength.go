// Package strength scores passwords and enforces the master password policy.
package strength

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jgutierrezgil/guardiapass/internal/charset"
)

const (
	// MinLength is the minimum length that earns the length bonus and passes Validate.
	MinLength = 12
	// MaxLength is the maximum length accepted by Validate.
	MaxLength = 60
)

// Label is a coarse strength rating derived from a score.
type Label int

const (
	Weak Label = iota
	Moderate
	Strong
	VeryStrong
)

func (l Label) String() string {
	switch l {
	case Weak:
		return "Weak"
	case Moderate:
		return "Moderate"
	case Strong:
		return "Strong"
	case VeryStrong:
		return "VeryStrong"
	default:
		return "Unknown"
	}
}

// MarshalJSON encodes the label by name.
func (l Label) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a label name.
func (l *Label) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLabel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLabel parses a label name as returned by Label.String.
func ParseLabel(s string) (Label, error) {
	for _, l := range []Label{Weak, Moderate, Strong, VeryStrong} {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return Weak, fmt.Errorf("unknown strength label %q", s)
}

// LabelFor maps a score to its label.
func LabelFor(score int) Label {
	switch {
	case score >= 8:
		return VeryStrong
	case score >= 6:
		return Strong
	case score >= 4:
		return Moderate
	default:
		return Weak
	}
}

// Feedback notes, in check order.
const (
	NoteLengthOK      = "Adequate length"
	NoteLengthShort   = "Password should be at least 12 characters long"
	NoteUppercase     = "Contains uppercase letters"
	NoteLowercase     = "Contains lowercase letters"
	NoteDigits        = "Contains digits"
	NoteSpecial       = "Contains special characters"
	NoteExtended      = "Contains extended characters"
	NoteRepeats       = "Avoid repeated characters"
	NoteCommonPattern = "Avoid common sequences"
)

// commonSequences are penalized when found anywhere in the lowercased password.
var commonSequences = []string{"123", "abc", "qwerty"}

// Result is the outcome of Measure.
type Result struct {
	Score    int      `json:"score"`
	Label    Label    `json:"strength"`
	Feedback []string `json:"feedback"`
}

// Measure scores password with an additive heuristic:
//
//	length >= 12                +2
//	uppercase, lowercase, digit +1 each
//	special                     +2
//	extended                    +1
//	length / 8                  +n
//	run of 3+ identical chars   -1
//	"123", "abc" or "qwerty"    -1
//
// Feedback always carries a length note, a note per class present, and a
// note per penalty applied, in that order.
func Measure(password string) Result {
	var score int
	var feedback []string
	length := utf8.RuneCountInString(password)

	if length >= MinLength {
		score += 2
		feedback = append(feedback, NoteLengthOK)
	} else {
		feedback = append(feedback, NoteLengthShort)
	}

	classBonus := []struct {
		class  charset.Class
		points int
		note   string
	}{
		{charset.Upper, 1, NoteUppercase},
		{charset.Lower, 1, NoteLowercase},
		{charset.Digits, 1, NoteDigits},
		{charset.Special, 2, NoteSpecial},
		{charset.Extended, 1, NoteExtended},
	}
	for _, b := range classBonus {
		if charset.Has(password, b.class) {
			score += b.points
			feedback = append(feedback, b.note)
		}
	}

	score += length / 8

	if hasRepeatRun(password, 3) {
		score--
		feedback = append(feedback, NoteRepeats)
	}

	if hasCommonSequence(password) {
		score--
		feedback = append(feedback, NoteCommonPattern)
	}

	return Result{
		Score:    score,
		Label:    LabelFor(score),
		Feedback: feedback,
	}
}

// Policy violation messages returned by Validate.
const (
	RuleTooShort    = "Password must be at least 12 characters long"
	RuleTooLong     = "Password must be at most 60 characters long"
	RuleNoUppercase = "Password must contain at least one uppercase letter"
	RuleNoLowercase = "Password must contain at least one lowercase letter"
	RuleNoDigit     = "Password must contain at least one digit"
	RuleNoSpecial   = "Password must contain at least one special character"
)

// Validate applies the master password policy and returns every rule the
// password violates.
func Validate(password string) (bool, []string) {
	var errs []string
	length := utf8.RuneCountInString(password)

	if length < MinLength {
		errs = append(errs, RuleTooShort)
	}
	if length > MaxLength {
		errs = append(errs, RuleTooLong)
	}
	if !charset.Has(password, charset.Upper) {
		errs = append(errs, RuleNoUppercase)
	}
	if !charset.Has(password, charset.Lower) {
		errs = append(errs, RuleNoLowercase)
	}
	if !charset.Has(password, charset.Digits) {
		errs = append(errs, RuleNoDigit)
	}
	if !charset.Has(password, charset.Special) {
		errs = append(errs, RuleNoSpecial)
	}

	return len(errs) == 0, errs
}

func hasRepeatRun(s string, n int) bool {
	var prev rune
	run := 0
	for i, r := range []rune(s) {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}

func hasCommonSequence(s string) bool {
	lower := strings.ToLower(s)
	for _, seq := range commonSequences {
		if strings.Contains(lower, seq) {
			return true
		}
	}
	return false
}
