// Package schemas validates agent payloads against the JSON Schemas embedded
// from the top-level schemas directory.
package schemas

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	rootschemas "github.com/lzrong0203/memo-run/schemas"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
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

// DocumentError reports a document that is not parseable JSON.
type DocumentError struct {
	Cause error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("invalid JSON document: %v", e.Cause)
}

func (e *DocumentError) Unwrap() error {
	return e.Cause
}

var (
	monitoringOnce   sync.Once
	monitoringSchema *gojsonschema.Schema
	monitoringErr    error
)

func loadMonitoringSchema() (*gojsonschema.Schema, error) {
	monitoringOnce.Do(func() {
		raw, err := rootschemas.Files.ReadFile(rootschemas.MonitoringData)
		if err != nil {
			monitoringErr = &SchemaLoadError{Path: rootschemas.MonitoringData, Message: "embedded schema missing", Cause: err}
			return
		}
		monitoringSchema, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			monitoringErr = &SchemaLoadError{Path: rootschemas.MonitoringData, Message: "schema failed to compile", Cause: err}
		}
	})
	return monitoringSchema, monitoringErr
}

// ValidateMonitoringData checks an agent payload for the keys the report
// composer depends on. It returns *ValidationError listing every violation,
// *DocumentError when doc is not JSON, or *SchemaLoadError.
func ValidateMonitoringData(doc []byte) error {
	schema, err := loadMonitoringSchema()
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return &DocumentError{Cause: err}
	}
	return toValidationError(result)
}

// ValidateBytes validates a JSON document against a JSON Schema, both given as raw bytes.
func ValidateBytes(schema, doc []byte) error {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return &SchemaLoadError{
			Path:    "(bytes schema)",
			Message: "schema validation failed during load",
			Cause:   err,
		}
	}
	return toValidationError(result)
}

// ValidateJSONString validates JSON string content against schema string content
func ValidateJSONString(schemaContent, jsonContent string) error {
	return ValidateBytes([]byte(schemaContent), []byte(jsonContent))
}

func toValidationError(result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}
