package members

import (
	"errors"
	"reflect"
	"testing"
)

func TestValidateReportsEveryMissingField(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		content  string
		expected []string
	}{
		{name: "human-missing-name", kind: KindHuman, content: "bio: hi\n", expected: []string{FieldName}},
		{name: "human-empty-name", kind: KindHuman, content: "name: \"\"\n", expected: []string{FieldName}},
		{name: "human-null-name", kind: KindHuman, content: "name: null\n", expected: []string{FieldName}},
		{name: "virtual-missing-model", kind: KindVirtual, content: "name: Rin\n", expected: []string{FieldLLMModel}},
		{name: "virtual-missing-both", kind: KindVirtual, content: "custom_prompt: x\n", expected: []string{FieldName, FieldLLMModel}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.kind, mustRecord(t, tc.content))
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !reflect.DeepEqual(validationErr.MissingFields, tc.expected) {
				t.Fatalf("expected missing %v, got %v", tc.expected, validationErr.MissingFields)
			}
			if validationErr.Kind != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, validationErr.Kind)
			}
		})
	}
}

func TestValidateAcceptsCompleteRecords(t *testing.T) {
	if err := ValidateHuman(mustRecord(t, "name: Syota\n")); err != nil {
		t.Fatalf("expected human record to validate: %v", err)
	}
	if err := ValidateVirtual(mustRecord(t, "name: Rin\nllm_model: gpt-4\n")); err != nil {
		t.Fatalf("expected virtual record to validate: %v", err)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := ValidateHuman(mustRecord(t, "bio: hi\n"))
	expected := "Required fields missing in human member YAML: name"
	if err == nil || err.Error() != expected {
		t.Fatalf("expected %q, got %v", expected, err)
	}
}

func TestValidateRejectsUnknownKindAndNilRecord(t *testing.T) {
	if err := Validate(Kind("robot"), Record{"name": "x"}); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
	if err := ValidateHuman(nil); !errors.Is(err, ErrNoAttributes) {
		t.Fatalf("expected ErrNoAttributes, got %v", err)
	}
}
