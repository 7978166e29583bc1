package cms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FieldType is the kind of value a field holds.
type FieldType string

// Field types.
const (
	FieldText     FieldType = "text"
	FieldRichText FieldType = "richtext"
	FieldNumber   FieldType = "number"
	FieldBoolean  FieldType = "boolean"
	FieldDate     FieldType = "date"
	FieldSelect   FieldType = "select"
	FieldEmail    FieldType = "email"
	FieldURL      FieldType = "url"
	FieldJSON     FieldType = "json"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldRichText, FieldNumber, FieldBoolean, FieldDate,
		FieldSelect, FieldEmail, FieldURL, FieldJSON:
		return true
	}
	return false
}

// Field is one entry of a schema.
type Field struct {
	Name     string    `json:"name"`
	Label    string    `json:"label,omitempty"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	// Options lists the allowed values of a select field.
	Options []string `json:"options,omitempty"`
	Default any      `json:"default,omitempty"`
}

// Schema describes a content type.
type Schema struct {
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Fields      []Field   `json:"fields"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Validate checks the schema definition itself.
func (s *Schema) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(s.Name) == "" {
		verr.add("name", "name is required")
	}
	if !ValidSlug(s.Slug) {
		verr.add("slug", "slug must be lower-case letters, digits and single hyphens")
	}
	if len(s.Fields) == 0 {
		verr.add("fields", "at least one field is required")
	}

	seen := make(map[string]bool, len(s.Fields))
	for i, f := range s.Fields {
		key := fmt.Sprintf("fields[%d]", i)
		switch {
		case !fieldNamePattern.MatchString(f.Name):
			verr.add(key, fmt.Sprintf("invalid field name %q", f.Name))
		case seen[strings.ToLower(f.Name)]:
			verr.add(key, fmt.Sprintf("duplicate field name %q", f.Name))
		case !f.Type.Valid():
			verr.add(key, fmt.Sprintf("unknown field type %q", f.Type))
		case f.Type == FieldSelect && len(f.Options) == 0:
			verr.add(key, "select fields need at least one option")
		}
		seen[strings.ToLower(f.Name)] = true
	}
	if err := verr.orNil(); err != nil {
		return err
	}

	// A default must itself satisfy the field.
	if _, err := s.compile(); err != nil {
		return &ValidationError{Fields: map[string]string{"fields": err.Error()}}
	}
	for _, f := range s.Fields {
		if f.Default == nil {
			continue
		}
		if msg := checkValue(s, f, f.Default); msg != "" {
			verr.add(f.Name, "default: "+msg)
		}
	}
	return verr.orNil()
}

// Field returns the field named name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// JSONSchema returns the JSON Schema document item data is validated
// against.
func (s *Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	required := []string{}
	for _, f := range s.Fields {
		props[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	doc := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"title":                s.Name,
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func fieldSchema(f Field) map[string]any {
	out := map[string]any{}
	if f.Label != "" {
		out["title"] = f.Label
	}
	switch f.Type {
	case FieldText, FieldRichText:
		out["type"] = "string"
		if f.Required {
			out["minLength"] = 1
		}
	case FieldNumber:
		out["type"] = "number"
	case FieldBoolean:
		out["type"] = "boolean"
	case FieldDate:
		out["type"] = "string"
		out["format"] = "date"
	case FieldSelect:
		out["type"] = "string"
		out["enum"] = f.Options
	case FieldEmail:
		out["type"] = "string"
		out["format"] = "email"
	case FieldURL:
		out["type"] = "string"
		out["format"] = "uri"
	case FieldJSON:
		// any JSON value
	}
	return out
}

// compile builds the validator for the schema.
func (s *Schema) compile() (*jsonschema.Schema, error) {
	data, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true

	url := "apilab://schemas/" + s.Slug + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(url)
}

// ValidateData checks item data against the schema. Unknown keys are
// rejected.
func (s *Schema) ValidateData(data map[string]any) error {
	compiled, err := s.compile()
	if err != nil {
		return err
	}

	// Round-trip through JSON so Go numeric types validate like decoded ones.
	normalized, err := normalize(data)
	if err != nil {
		return &ValidationError{Fields: map[string]string{"": "data is not valid JSON: " + err.Error()}}
	}

	err = compiled.Validate(normalized)
	if err == nil {
		return nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("validate data: %w", err)
	}

	out := &ValidationError{}
	collectSchemaErrors(verr, s, data, out)
	if len(out.Fields) == 0 {
		out.add("", verr.Message)
	}
	return out
}

// checkValue validates a single value against field f of s and returns a
// message, or "" when it is valid.
func checkValue(s *Schema, f Field, v any) string {
	single := &Schema{Slug: s.Slug, Name: s.Name, Fields: []Field{{Name: f.Name, Type: f.Type, Options: f.Options}}}
	err := single.ValidateData(map[string]any{f.Name: v})
	if err == nil {
		return ""
	}
	if verr, ok := err.(*ValidationError); ok {
		if msg, ok := verr.Fields[f.Name]; ok {
			return msg
		}
	}
	return err.Error()
}

// collectSchemaErrors flattens validation causes into per-field messages.
func collectSchemaErrors(err *jsonschema.ValidationError, s *Schema, data map[string]any, out *ValidationError) {
	if len(err.Causes) > 0 {
		for _, cause := range err.Causes {
			collectSchemaErrors(cause, s, data, out)
		}
		return
	}

	field := fieldFromPointer(err.InstanceLocation)
	switch {
	case field != "":
		out.add(field, err.Message)
	case strings.HasSuffix(err.KeywordLocation, "/required"):
		for _, f := range s.Fields {
			if _, ok := data[f.Name]; f.Required && !ok {
				out.add(f.Name, "is required")
			}
		}
	case strings.HasSuffix(err.KeywordLocation, "/additionalProperties"):
		for key := range data {
			if _, ok := s.Field(key); !ok {
				out.add(key, "unknown field")
			}
		}
	default:
		out.add("", err.Message)
	}
}

// fieldFromPointer returns the top-level property a JSON pointer refers to.
func fieldFromPointer(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	first, _, _ := strings.Cut(ptr, "/")
	first = strings.ReplaceAll(first, "~1", "/")
	return strings.ReplaceAll(first, "~0", "~")
}

func normalize(data map[string]any) (any, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
