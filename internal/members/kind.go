package members

import (
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes the two member families backed by separate tables.
type Kind string

const (
	// KindHuman identifies members described by human_members YAML files.
	KindHuman Kind = "human"
	// KindVirtual identifies members described by virtual_members YAML files.
	KindVirtual Kind = "virtual"
)

// ErrInvalidKind indicates that a value does not name a supported member kind.
var ErrInvalidKind = errors.New("members: invalid member kind")

// AllKinds lists the supported kinds in registration order.
func AllKinds() []Kind {
	return []Kind{KindHuman, KindVirtual}
}

// ParseKind normalizes raw input into a Kind.
func ParseKind(rawInput string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(rawInput))) {
	case KindHuman:
		return KindHuman, nil
	case KindVirtual:
		return KindVirtual, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, rawInput)
	}
}

// Valid reports whether the kind is one of the supported kinds.
func (k Kind) Valid() bool {
	return k == KindHuman || k == KindVirtual
}

// String returns the underlying kind name.
func (k Kind) String() string {
	return string(k)
}

// DirectoryName returns the storage directory segment used by files of this kind.
func (k Kind) DirectoryName() string {
	return string(k) + "_members"
}
