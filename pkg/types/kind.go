package types

import (
	"fmt"
	"strings"
)

// Kind is the category of a personal-metric measurement.
type Kind uint8

const (
	KindSleep Kind = iota + 1
	KindScreen
	KindSteps
	KindMood
)

var kindNames = map[Kind]string{
	KindSleep:  "sleep",
	KindScreen: "screen",
	KindSteps:  "steps",
	KindMood:   "mood",
}

// Kinds returns every recognized kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindSleep, KindScreen, KindSteps, KindMood}
}

// ParseKind maps a wire name (case-insensitive) to a Kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Valid reports whether k is one of the four recognized kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MarshalText encodes the kind as its wire name.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a wire name.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
