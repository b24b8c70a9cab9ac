package domain

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entity represents the current (live) state of a dynamic entity instance.
type Entity struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	SchemaID       uuid.UUID      `json:"schema_id"`
	EntityType     string         `json:"entity_type"`
	Properties     map[string]any `json:"properties"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	// Fields lists the property names declared by the entity's schema. A nil
	// slice means no schema was attached and the properties map is authoritative.
	Fields []string `json:"-"`
}

// NewEntity creates a new entity with immutable pattern
func NewEntity(organizationID uuid.UUID, entityType string, properties map[string]any) Entity {
	now := time.Now()
	return Entity{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		EntityType:     entityType,
		Properties:     copyProperties(properties),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// WithProperty returns a new entity with an added/updated property
func (e Entity) WithProperty(key string, value any) Entity {
	next := e.clone()
	next.Properties[key] = value
	next.UpdatedAt = time.Now()
	return next
}

// WithFields returns a new entity bound to the given declared field names.
func (e Entity) WithFields(fields []string) Entity {
	next := e.clone()
	next.Fields = append([]string{}, fields...)
	return next
}

// LookupProperty reports the live value of name and whether the entity's type
// defines it. Declared but unset properties resolve to nil.
func (e Entity) LookupProperty(name string) (any, bool) {
	if e.Fields != nil {
		for _, field := range e.Fields {
			if field == name {
				return e.Properties[name], true
			}
		}
		return nil, false
	}
	value, ok := e.Properties[name]
	return value, ok
}

func (e *Entity) GetPropertiesAsJSONB() (json.RawMessage, error) {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	return json.Marshal(e.Properties)
}

// FromJSONBProperties creates properties map from JSONB data. Numbers decode
// as json.Number so they render exactly as stored.
func FromJSONBProperties(propertiesJSON json.RawMessage) (map[string]any, error) {
	if len(propertiesJSON) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(propertiesJSON))
	dec.UseNumber()
	var properties map[string]any
	if err := dec.Decode(&properties); err != nil {
		return nil, err
	}
	if properties == nil {
		properties = map[string]any{}
	}
	return properties, nil
}

func (e Entity) clone() Entity {
	next := e
	next.Properties = copyProperties(e.Properties)
	if e.Fields != nil {
		next.Fields = append([]string{}, e.Fields...)
	}
	return next
}

// copyProperties creates a shallow copy of the properties map
func copyProperties(properties map[string]any) map[string]any {
	newProperties := make(map[string]any, len(properties))
	for k, v := range properties {
		newProperties[k] = v
	}
	return newProperties
}
