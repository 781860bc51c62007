// Package validate checks user supplied identifiers, names and links
// before they reach a repository.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// String validation errors.
var (
	ErrEmpty             = errors.New("string is empty")
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // in runes, 0 = no minimum
	MaxLength      int            // in runes, 0 = no maximum
	AllowedPattern *regexp.Regexp // optional
	AllowEmpty     bool
	TrimSpace      bool
}

var (
	slugPattern     = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
)

// String validates s against constraints and returns it, trimmed when
// TrimSpace is set.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}
	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidCharacters)
	}

	length := utf8.RuneCountInString(s)
	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}
	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}
	return s, nil
}

// Slug validates a URL slug: lowercase letters and digits in groups joined
// by single dashes, at most 255 characters.
func Slug(slug string) (string, error) {
	return String(slug, StringConstraints{
		MaxLength:      255,
		AllowedPattern: slugPattern,
	})
}

// Username validates a profile handle: 1-64 letters, digits, dots, dashes
// or underscores.
func Username(username string) (string, error) {
	return String(username, StringConstraints{
		MaxLength:      64,
		AllowedPattern: usernamePattern,
	})
}

// Name validates a display name: 1-255 characters after trimming, without
// control characters.
func Name(name string) (string, error) {
	name, err := String(name, StringConstraints{MaxLength: 255, TrimSpace: true})
	if err != nil {
		return "", err
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: control character", ErrInvalidCharacters)
	}
	return name, nil
}
