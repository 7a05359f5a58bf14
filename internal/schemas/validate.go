// Package schemas provides JSON Schema validation for LLM outputs and a field-path
// error type shared with request validation.
package schemas

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	schemafiles "github.com/codeW-Krish/ai-course-backend/schemas"
	"github.com/xeipuuv/gojsonschema"
)

// RootField is the field name used for errors that apply to the whole document.
const RootField = "(root)"

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// NewValidationError builds a ValidationError with one field error.
func NewValidationError(field, message string) *ValidationError {
	if field == "" {
		field = RootField
	}
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// WithPrefix returns a copy whose field paths are nested under prefix.
func (ve *ValidationError) WithPrefix(prefix string) *ValidationError {
	out := &ValidationError{Errors: make([]FieldError, 0, len(ve.Errors))}
	for _, fe := range ve.Errors {
		field := prefix
		if fe.Field != RootField {
			field = prefix + "." + fe.Field
		}
		out.Errors = append(out.Errors, FieldError{Field: field, Message: fe.Message})
	}
	return out
}

// Tree renders the errors as a nested map keyed by path segment. Every node carries an
// "_errors" list with the messages attached to that exact path:
//
//	{"_errors": [], "units": {"_errors": [], "0": {"_errors": [], "title": {"_errors": ["..."]}}}}
func (ve *ValidationError) Tree() map[string]any {
	root := map[string]any{"_errors": []string{}}
	for _, fe := range ve.Errors {
		node := root
		if fe.Field != RootField && fe.Field != "" {
			for _, part := range strings.Split(fe.Field, ".") {
				child, ok := node[part].(map[string]any)
				if !ok {
					child = map[string]any{"_errors": []string{}}
					node[part] = child
				}
				node = child
			}
		}
		node["_errors"] = append(node["_errors"].([]string), fe.Message)
	}
	return root
}

// Validator validates Go values against one compiled schema.
type Validator struct {
	name   string
	schema *gojsonschema.Schema
}

var (
	compiledMu sync.Mutex
	compiled   = make(map[string]*Validator)
)

// Compile loads an embedded schema by file name and compiles it once per process.
func Compile(name string) (*Validator, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()

	if v, ok := compiled[name]; ok {
		return v, nil
	}

	content, err := schemafiles.Load(name)
	if err != nil {
		return nil, &SchemaLoadError{Path: name, Message: "schema not embedded", Cause: err}
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(content))
	if err != nil {
		return nil, &SchemaLoadError{Path: name, Message: "schema failed to compile", Cause: err}
	}

	v := &Validator{name: name, schema: schema}
	compiled[name] = v
	return v, nil
}

// MustCompile is Compile for package-level initialisation.
func MustCompile(name string) *Validator {
	v, err := Compile(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks a decoded JSON value (maps, slices, strings, numbers) against the schema.
// A mismatch is reported as *ValidationError.
func (v *Validator) Validate(doc any) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &SchemaLoadError{Path: v.name, Message: "document could not be loaded", Cause: err}
	}
	return toValidationError(result)
}

// ValidateJSONString validates JSON string content against schema string content
func ValidateJSONString(schemaContent, jsonContent string) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaContent)
	documentLoader := gojsonschema.NewStringLoader(jsonContent)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &SchemaLoadError{
			Path:    "(string schema)",
			Message: "schema validation failed during load",
			Cause:   err,
		}
	}
	return toValidationError(result)
}

func toValidationError(result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   fieldPath(desc),
			Message: desc.Description(),
		})
	}
	sort.SliceStable(validationErr.Errors, func(i, j int) bool {
		return validationErr.Errors[i].Field < validationErr.Errors[j].Field
	})
	return validationErr
}

// fieldPath points "required" errors at the missing property rather than its parent.
func fieldPath(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if field == "" {
		field = RootField
	}
	if desc.Type() != "required" {
		return field
	}
	prop, ok := desc.Details()["property"].(string)
	if !ok || prop == "" || field == prop || strings.HasSuffix(field, "."+prop) {
		return field
	}
	if field == RootField {
		return prop
	}
	return field + "." + prop
}
