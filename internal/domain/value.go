package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PropertyNotExist seeds a trail when the entity's type no longer defines the property.
const PropertyNotExist = "PropertyNotExist"

// TrailSeparator joins consecutive values in a change trail.
const TrailSeparator = " -> "

// StringifyValue renders a live property value the way change records store
// original values: strings verbatim, nil as "null", everything else as
// canonical JSON.
func StringifyValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "null"
	case string:
		return typed
	case *string:
		if typed == nil {
			return "null"
		}
		return *typed
	case json.RawMessage:
		if len(typed) == 0 {
			return "null"
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, typed); err != nil {
			return string(typed)
		}
		return buf.String()
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(encoded)
}
