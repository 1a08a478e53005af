package domain

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrNameTooLong  = errors.New("name exceeds maximum length")
)

// MaxNameLength is the longest display name accepted, in characters.
const MaxNameLength = 255

// Email is a bare, lowercased address. Processor customers and directory
// rows are matched on this form, so "Cook@Example.com " and
// "cook@example.com" are the same user.
type Email struct {
	value string
}

// NewEmail normalises value and rejects anything that is not a single
// bare address with a dotted domain. Display-name forms such as
// "Cook <cook@example.com>" are refused.
func NewEmail(value string) (Email, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return Email{}, ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Name != "" || addr.Address != value {
		return Email{}, ErrInvalidEmail
	}
	at := strings.LastIndexByte(value, '@')
	if domain := value[at+1:]; !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") {
		return Email{}, ErrInvalidEmail
	}
	return Email{value: value}, nil
}

func (e Email) String() string { return e.value }

// IsZero reports whether e was never set.
func (e Email) IsZero() bool { return e.value == "" }

func (e Email) Equals(other Email) bool { return e.value == other.value }

// Name is an optional display name; processor customers often have none.
type Name struct {
	value string
}

func NewName(value string) (Name, error) {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) > MaxNameLength {
		return Name{}, ErrNameTooLong
	}
	return Name{value: value}, nil
}

func (n Name) String() string { return n.value }
