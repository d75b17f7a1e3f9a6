package ident

import (
	"fmt"
	"strings"

	"presence-tracker-backend/internal/model"
)

// Kind tags the identifier variant chosen for a lookup.
type Kind int

const (
	KindNumericID Kind = iota
	KindPhone
	KindHandle
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNumericID:
		return "numeric_id"
	case KindPhone:
		return "phone"
	case KindHandle:
		return "handle"
	}
	return "invalid"
}

// Identifier is the single identifier used for one poll of one target.
type Identifier struct {
	Kind      Kind
	NumericID int64
	Value     string
}

// FromTarget picks the identifier to poll a target with. The priority rule
// lives here and nowhere else: numeric id, then phone, then handle.
func FromTarget(t model.Target) (Identifier, error) {
	if t.NumericID != nil && *t.NumericID != 0 {
		return Identifier{Kind: KindNumericID, NumericID: *t.NumericID}, nil
	}
	if phone := NormalizePhone(t.Phone); phone != "" {
		return Identifier{Kind: KindPhone, Value: phone}, nil
	}
	if handle := NormalizeHandle(t.Handle); handle != "" {
		return Identifier{Kind: KindHandle, Value: handle}, nil
	}
	return Identifier{}, fmt.Errorf("target %d has no usable identifier", t.ID)
}

// NormalizePhone strips separators and returns "" when the remainder is not
// a plausible phone number.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return ""
	}
	body := strings.TrimPrefix(s, "+")
	if body == "" {
		return ""
	}
	for _, r := range body {
		if r < '0' || r > '9' {
			return ""
		}
	}
	if len(body) < 5 {
		return ""
	}
	return s
}

// NormalizeHandle trims whitespace and a leading "@".
func NormalizeHandle(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "@")
}
