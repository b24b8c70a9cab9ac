package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ChangeType classifies a logged entity mutation.
type ChangeType string

const (
	ChangeTypeCreated ChangeType = "CREATED"
	ChangeTypeUpdated ChangeType = "UPDATED"
	ChangeTypeDeleted ChangeType = "DELETED"
)

// EntityChange is one audit entry recording that an entity was modified at a
// point in time. PropertyChanges keep the order in which they were captured.
type EntityChange struct {
	ID              int64                  `json:"id"`
	EntityID        uuid.UUID              `json:"entity_id"`
	EntityType      string                 `json:"entity_type"`
	ChangeType      ChangeType             `json:"change_type"`
	ChangeTime      time.Time              `json:"change_time"`
	Reason          *string                `json:"reason,omitempty"`
	PropertyChanges []EntityPropertyChange `json:"property_changes"`
}

// EntityPropertyChange records the value a single property held immediately
// before (OriginalValue) and after (NewValue) one logged change.
type EntityPropertyChange struct {
	PropertyName  string `json:"property_name"`
	OriginalValue string `json:"original_value"`
	NewValue      string `json:"new_value"`
	PropertyType  string `json:"property_type,omitempty"`
}

// NewPropertyChange captures a property transition, stringifying both sides
// the same way live values are rendered in trails.
func NewPropertyChange(name string, original, updated any) EntityPropertyChange {
	return EntityPropertyChange{
		PropertyName:  name,
		OriginalValue: StringifyValue(original),
		NewValue:      StringifyValue(updated),
		PropertyType:  propertyTypeOf(updated),
	}
}

// DiffProperties lists the property changes that turn before into after,
// ordered by property name. A property missing on one side reads as nil, and
// values are compared by their rendered form.
func DiffProperties(before, after map[string]any) []EntityPropertyChange {
	names := make([]string, 0, len(before)+len(after))
	for name := range before {
		names = append(names, name)
	}
	for name := range after {
		if _, ok := before[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	changes := []EntityPropertyChange{}
	for _, name := range names {
		original, updated := before[name], after[name]
		if StringifyValue(original) == StringifyValue(updated) {
			continue
		}
		changes = append(changes, NewPropertyChange(name, original, updated))
	}
	return changes
}

func propertyTypeOf(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string, *string:
		return string(FieldTypeString)
	case bool:
		return string(FieldTypeBoolean)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return string(FieldTypeInteger)
	case float32, float64:
		return string(FieldTypeFloat)
	case json.Number:
		if _, err := typed.Int64(); err == nil {
			return string(FieldTypeInteger)
		}
		return string(FieldTypeFloat)
	case time.Time:
		return string(FieldTypeTimestamp)
	default:
		return string(FieldTypeJSON)
	}
}
