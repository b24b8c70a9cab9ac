package validator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/entityhistory/internal/domain"
)

var knownTypes = map[domain.FieldType]struct{}{
	domain.FieldTypeString:    {},
	domain.FieldTypeInteger:   {},
	domain.FieldTypeFloat:     {},
	domain.FieldTypeBoolean:   {},
	domain.FieldTypeTimestamp: {},
	domain.FieldTypeJSON:      {},
}

// FieldError describes one offending field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every field error found in one pass.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Errors))
	for _, fieldErr := range e.Errors {
		messages = append(messages, fieldErr.Message)
	}
	return "validation failed: " + strings.Join(messages, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// ValidateFields ensures schema field definitions are named, unique and of a
// known type.
func ValidateFields(fields []domain.FieldDefinition) error {
	result := &ValidationError{}
	seen := make(map[string]struct{}, len(fields))

	for _, field := range fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			result.add(field.Name, "field name is required")
			continue
		}
		if _, dup := seen[name]; dup {
			result.add(name, "field '%s' is declared more than once", name)
		}
		seen[name] = struct{}{}

		if _, ok := knownTypes[normalizeFieldType(field.Type)]; !ok {
			result.add(name, "field '%s' has unknown type %s", name, field.Type)
		}
	}

	return result.orNil()
}

// ValidateProperties validates entity properties against field definitions.
// Required fields must be present and non-null, and properties the schema
// does not declare are rejected.
func ValidateProperties(properties map[string]any, fields []domain.FieldDefinition) error {
	result := &ValidationError{}
	declared := make(map[string]struct{}, len(fields))

	for _, field := range fields {
		declared[field.Name] = struct{}{}
		value, exists := properties[field.Name]

		if field.Required && (!exists || value == nil) {
			result.add(field.Name, "required field '%s' is missing", field.Name)
			continue
		}
		if !exists || value == nil {
			continue
		}
		if err := validateFieldType(field.Name, value, field.Type); err != nil {
			result.add(field.Name, "%s", err.Error())
		}
	}

	extra := make([]string, 0)
	for name := range properties {
		if _, ok := declared[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		result.add(name, "property '%s' is not defined in schema", name)
	}

	return result.orNil()
}

func normalizeFieldType(ft domain.FieldType) domain.FieldType {
	return domain.FieldType(strings.ToLower(strings.TrimSpace(string(ft))))
}

func validateFieldType(fieldName string, value any, expectedType domain.FieldType) error {
	switch normalizeFieldType(expectedType) {
	case domain.FieldTypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field '%s' must be a string, got %T", fieldName, value)
		}
	case domain.FieldTypeInteger:
		if !isInteger(value) {
			return fmt.Errorf("field '%s' must be an integer, got %T", fieldName, value)
		}
	case domain.FieldTypeFloat:
		if !isFloat(value) {
			return fmt.Errorf("field '%s' must be a float, got %T", fieldName, value)
		}
	case domain.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field '%s' must be a boolean, got %T", fieldName, value)
		}
	case domain.FieldTypeTimestamp:
		switch v := value.(type) {
		case string:
			if _, err := time.Parse(time.RFC3339, v); err != nil {
				return fmt.Errorf("field '%s' must be a valid timestamp (RFC3339): %v", fieldName, err)
			}
		case time.Time:
		default:
			return fmt.Errorf("field '%s' must be a timestamp string, got %T", fieldName, value)
		}
	case domain.FieldTypeJSON:
		if _, err := json.Marshal(value); err != nil {
			return fmt.Errorf("field '%s' contains invalid JSON: %v", fieldName, err)
		}
	default:
		return fmt.Errorf("unknown field type: %s", expectedType)
	}
	return nil
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return v == float64(int64(v))
	case json.Number:
		_, err := v.Int64()
		return err == nil
	case string:
		_, err := strconv.Atoi(v)
		return err == nil
	default:
		return false
	}
}

func isFloat(value any) bool {
	switch v := value.(type) {
	case float32, float64:
		return true
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := v.Float64()
		return err == nil
	case string:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	default:
		return false
	}
}
