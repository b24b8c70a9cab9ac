package validator

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rpattn/entityhistory/internal/domain"
)

func pumpFields() []domain.FieldDefinition {
	return []domain.FieldDefinition{
		{Name: "name", Type: domain.FieldTypeString, Required: true},
		{Name: "size", Type: domain.FieldTypeInteger},
		{Name: "rating", Type: domain.FieldTypeFloat},
		{Name: "active", Type: domain.FieldTypeBoolean},
		{Name: "installed", Type: domain.FieldTypeTimestamp},
		{Name: "meta", Type: domain.FieldTypeJSON},
	}
}

func TestValidateFieldsAcceptsKnownTypes(t *testing.T) {
	if err := ValidateFields(pumpFields()); err != nil {
		t.Fatalf("expected validation to pass, got error: %v", err)
	}
	if err := ValidateFields([]domain.FieldDefinition{{Name: "name", Type: "STRING"}}); err != nil {
		t.Fatalf("expected type comparison to ignore case, got %v", err)
	}
}

func TestValidateFieldsReportsEveryProblem(t *testing.T) {
	err := ValidateFields([]domain.FieldDefinition{
		{Name: "", Type: domain.FieldTypeString},
		{Name: "a", Type: domain.FieldTypeString},
		{Name: "a", Type: domain.FieldTypeString},
		{Name: "b", Type: "geometry"},
	})

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(validationErr.Errors) != 3 {
		t.Fatalf("expected 3 field errors, got %+v", validationErr.Errors)
	}
	if !strings.Contains(err.Error(), "unknown type geometry") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestValidateProperties(t *testing.T) {
	cases := []struct {
		name       string
		properties map[string]any
		wantField  string
	}{
		{"valid", map[string]any{"name": "P-1", "size": float64(3), "rating": "2.5", "active": true, "installed": "2024-05-01T00:00:00Z", "meta": map[string]any{"a": 1}}, ""},
		{"optional fields may be null", map[string]any{"name": "P-1", "size": nil}, ""},
		{"decoded numbers", map[string]any{"name": "P-1", "size": json.Number("9007199254740993"), "rating": json.Number("2.5")}, ""},
		{"fractional decoded integer", map[string]any{"name": "P-1", "size": json.Number("2.5")}, "size"},
		{"missing required", map[string]any{"size": 3}, "name"},
		{"wrong string type", map[string]any{"name": 7}, "name"},
		{"fractional integer", map[string]any{"name": "P-1", "size": 2.5}, "size"},
		{"bad boolean", map[string]any{"name": "P-1", "active": "yes"}, "active"},
		{"bad timestamp", map[string]any{"name": "P-1", "installed": "yesterday"}, "installed"},
		{"undeclared property", map[string]any{"name": "P-1", "legacy": "x"}, "legacy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateProperties(tc.properties, pumpFields())
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("expected valid properties, got %v", err)
				}
				return
			}
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(validationErr.Errors) != 1 || validationErr.Errors[0].Field != tc.wantField {
				t.Fatalf("expected one error on %s, got %+v", tc.wantField, validationErr.Errors)
			}
		})
	}
}
