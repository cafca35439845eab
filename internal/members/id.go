package members

import (
	"fmt"

	"github.com/google/uuid"
)

// IDProvider issues the immutable uuids of member, profile and audit rows.
type IDProvider interface {
	NewID() (string, error)
}

// IDProviderFunc adapts a plain function to IDProvider.
type IDProviderFunc func() (string, error)

// NewID calls f.
func (f IDProviderFunc) NewID() (string, error) {
	return f()
}

// NewUUIDProvider issues time-ordered UUIDv7 values, so rows sort by creation.
func NewUUIDProvider() IDProvider {
	return IDProviderFunc(func() (string, error) {
		value, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("members: issue uuid: %w", err)
		}
		return value.String(), nil
	})
}
