package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// EntityHistorySnapshot holds the reconstructed property values of an entity
// as of a past timestamp together with the trail of values each changed
// property passed through. Keys keep the order in which the reconstruction
// first encountered them. The zero value is an empty snapshot.
type EntityHistorySnapshot struct {
	properties  []string
	finalValues map[string]string
	trails      map[string][]string
}

// SnapshotBuilder accumulates a snapshot. It is not safe for concurrent use
// and must not be reused after Build.
type SnapshotBuilder struct {
	properties  []string
	finalValues map[string]string
	trails      map[string][]string
}

// NewSnapshotBuilder returns an empty builder.
func NewSnapshotBuilder() *SnapshotBuilder {
	return &SnapshotBuilder{
		finalValues: map[string]string{},
		trails:      map[string][]string{},
	}
}

// Revoke overwrites the working value of name with an older recorded value.
func (b *SnapshotBuilder) Revoke(name, originalValue string) {
	if _, seen := b.finalValues[name]; !seen {
		b.properties = append(b.properties, name)
	}
	b.finalValues[name] = originalValue
}

// HasTrail reports whether a trail was already seeded for name.
func (b *SnapshotBuilder) HasTrail(name string) bool {
	_, ok := b.trails[name]
	return ok
}

// SeedTrail starts the trail for name at its live value.
func (b *SnapshotBuilder) SeedTrail(name, liveValue, originalValue string) {
	b.trails[name] = []string{liveValue, originalValue}
}

// ExtendTrail appends one older hop to the trail for name.
func (b *SnapshotBuilder) ExtendTrail(name, originalValue string) {
	b.trails[name] = append(b.trails[name], originalValue)
}

// Build freezes the accumulated state.
func (b *SnapshotBuilder) Build() EntityHistorySnapshot {
	snapshot := EntityHistorySnapshot{
		properties:  b.properties,
		finalValues: b.finalValues,
		trails:      b.trails,
	}
	b.properties, b.finalValues, b.trails = nil, nil, nil
	return snapshot
}

// Properties returns the changed property names in first-encountered order.
func (s EntityHistorySnapshot) Properties() []string {
	return append([]string{}, s.properties...)
}

// Len returns the number of changed properties.
func (s EntityHistorySnapshot) Len() int {
	return len(s.properties)
}

// IsEmpty reports whether no property was reconstructed. An absent entity and
// an entity without changes both produce an empty snapshot.
func (s EntityHistorySnapshot) IsEmpty() bool {
	return len(s.properties) == 0
}

// Value returns the reconstructed value of name.
func (s EntityHistorySnapshot) Value(name string) (string, bool) {
	value, ok := s.finalValues[name]
	return value, ok
}

// Trail returns the encoded trail of name, current value first.
func (s EntityHistorySnapshot) Trail(name string) (string, bool) {
	steps, ok := s.trails[name]
	if !ok {
		return "", false
	}
	return strings.Join(steps, TrailSeparator), true
}

// TrailSteps returns the individual values of name's trail, current value first.
func (s EntityHistorySnapshot) TrailSteps(name string) []string {
	steps, ok := s.trails[name]
	if !ok {
		return nil
	}
	return append([]string{}, steps...)
}

// FinalValues returns a copy of the property name to reconstructed value map.
func (s EntityHistorySnapshot) FinalValues() map[string]string {
	out := make(map[string]string, len(s.finalValues))
	for key, value := range s.finalValues {
		out[key] = value
	}
	return out
}

// ChangeTrail returns a copy of the property name to encoded trail map.
func (s EntityHistorySnapshot) ChangeTrail() map[string]string {
	out := make(map[string]string, len(s.trails))
	for key := range s.trails {
		out[key], _ = s.Trail(key)
	}
	return out
}

// MarshalJSON emits both maps with keys in insertion order.
func (s EntityHistorySnapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"finalValues":`)
	if err := s.writeOrdered(&buf, func(name string) string { return s.finalValues[name] }); err != nil {
		return nil, err
	}
	buf.WriteString(`,"changeTrail":`)
	if err := s.writeOrdered(&buf, func(name string) string {
		trail, _ := s.Trail(name)
		return trail
	}); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s EntityHistorySnapshot) writeOrdered(buf *bytes.Buffer, valueOf func(string) string) error {
	buf.WriteByte('{')
	for idx, name := range s.properties {
		if idx > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return err
		}
		value, err := json.Marshal(valueOf(name))
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return nil
}
