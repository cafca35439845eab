package members

import (
	"fmt"
	"strings"
)

var (
	humanRequiredFields   = []string{FieldName}
	virtualRequiredFields = []string{FieldName, FieldLLMModel}
)

// ValidationError lists the required fields missing from a record, in check order.
type ValidationError struct {
	Kind          Kind
	MissingFields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Required fields missing in %s member YAML: %s", e.Kind, strings.Join(e.MissingFields, ", "))
}

// ValidateHuman checks the fields required for a human member.
func ValidateHuman(record Record) error {
	return validateRequired(KindHuman, record, humanRequiredFields)
}

// ValidateVirtual checks the fields required for a virtual member.
func ValidateVirtual(record Record) error {
	return validateRequired(KindVirtual, record, virtualRequiredFields)
}

// Validate dispatches to the validator for kind.
func Validate(kind Kind, record Record) error {
	switch kind {
	case KindHuman:
		return ValidateHuman(record)
	case KindVirtual:
		return ValidateVirtual(record)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

func validateRequired(kind Kind, record Record, required []string) error {
	if record == nil {
		return ErrNoAttributes
	}
	var missing []string
	for _, field := range required {
		if !record.present(field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Kind: kind, MissingFields: missing}
	}
	return nil
}
