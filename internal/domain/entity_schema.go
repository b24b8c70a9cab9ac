package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType represents the type of a field in an entity schema
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeJSON      FieldType = "json"
)

// FieldDefinition represents a field definition in a schema
type FieldDefinition struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
}

// EntitySchema declares the properties an entity type currently defines.
// Properties removed from a schema surface as PropertyNotExist in trails.
type EntitySchema struct {
	ID             uuid.UUID         `json:"id"`
	OrganizationID uuid.UUID         `json:"organization_id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Fields         []FieldDefinition `json:"fields"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewEntitySchema creates a new schema after validating its field list.
func NewEntitySchema(organizationID uuid.UUID, name, description string, fields []FieldDefinition) (EntitySchema, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return EntitySchema{}, fmt.Errorf("schema name is required")
	}

	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if strings.TrimSpace(field.Name) == "" {
			return EntitySchema{}, fmt.Errorf("schema %s: field name is required", name)
		}
		if _, dup := seen[field.Name]; dup {
			return EntitySchema{}, fmt.Errorf("schema %s: duplicate field %s", name, field.Name)
		}
		seen[field.Name] = struct{}{}
	}

	now := time.Now()
	return EntitySchema{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		Name:           name,
		Description:    description,
		Fields:         append([]FieldDefinition{}, fields...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// FieldNames returns the declared field names in declaration order.
func (s EntitySchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, field := range s.Fields {
		names = append(names, field.Name)
	}
	return names
}

// WithoutField returns a copy of the schema with the named field dropped.
func (s EntitySchema) WithoutField(name string) EntitySchema {
	fields := make([]FieldDefinition, 0, len(s.Fields))
	for _, field := range s.Fields {
		if field.Name != name {
			fields = append(fields, field)
		}
	}
	next := s
	next.Fields = fields
	next.UpdatedAt = time.Now()
	return next
}
