package members

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	FieldName         = "name"
	FieldBio          = "bio"
	FieldLLMModel     = "llm_model"
	FieldCustomPrompt = "custom_prompt"
)

var (
	// ErrNoAttributes indicates that a YAML document did not decode to a mapping.
	ErrNoAttributes = errors.New("members: content has no attributes")
	// ErrInvalidYAML indicates that the YAML document could not be parsed.
	ErrInvalidYAML = errors.New("members: invalid yaml")
)

// Record is the decoded attribute mapping of one member YAML file.
type Record map[string]any

// DecodeRecord parses YAML content into a Record. Documents that are empty,
// null, scalar or sequence valued return ErrNoAttributes.
func DecodeRecord(content []byte) (Record, error) {
	var document yaml.Node
	if err := yaml.Unmarshal(content, &document); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	if document.Kind != yaml.DocumentNode || len(document.Content) == 0 {
		return nil, ErrNoAttributes
	}
	root := document.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, ErrNoAttributes
	}

	record := Record{}
	if err := root.Decode(&record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return record, nil
}

// present reports whether the key exists with a non-null, non-empty-string value.
func (r Record) present(key string) bool {
	value, ok := r[key]
	if !ok || value == nil {
		return false
	}
	if text, isString := value.(string); isString && text == "" {
		return false
	}
	return true
}

// Text returns the value stored under key rendered as a string.
func (r Record) Text(key string) (string, bool) {
	if !r.present(key) {
		return "", false
	}
	switch value := r[key].(type) {
	case string:
		return value, true
	default:
		return fmt.Sprint(value), true
	}
}

// Name returns the member display name.
func (r Record) Name() string {
	name, _ := r.Text(FieldName)
	return name
}

// ProfileFields extracts the kind-specific profile attributes present in the record.
func (r Record) ProfileFields(kind Kind) ProfileFields {
	fields := ProfileFields{}
	switch kind {
	case KindHuman:
		if bio, ok := r.Text(FieldBio); ok {
			fields.Bio = &bio
		}
	case KindVirtual:
		if model, ok := r.Text(FieldLLMModel); ok {
			fields.LLMModel = &model
		}
		if prompt, ok := r.Text(FieldCustomPrompt); ok {
			fields.CustomPrompt = &prompt
		}
	}
	return fields
}
