package snapshot

import (
	"github.com/rpattn/entityhistory/internal/domain"
)

// PropertySource exposes an entity's current property values by name. The
// boolean is false when the entity's type does not define the property.
type PropertySource interface {
	LookupProperty(name string) (any, bool)
}

// Reconstruct undoes changes, which must be ordered newest first, against the
// live entity. Each property change overwrites the working value, so the
// oldest change touching a property determines its value at the snapshot
// time, while the trail records every hop from the live value back to it.
//
// A nil entity yields an empty snapshot. The ordering of changes is trusted
// as given.
func Reconstruct(entity PropertySource, changes []domain.EntityChange) domain.EntityHistorySnapshot {
	if entity == nil {
		return domain.EntityHistorySnapshot{}
	}

	builder := domain.NewSnapshotBuilder()
	for _, change := range changes {
		for _, propertyChange := range change.PropertyChanges {
			name := propertyChange.PropertyName
			builder.Revoke(name, propertyChange.OriginalValue)

			if builder.HasTrail(name) {
				builder.ExtendTrail(name, propertyChange.OriginalValue)
				continue
			}
			builder.SeedTrail(name, liveValue(entity, name), propertyChange.OriginalValue)
		}
	}

	return builder.Build()
}

func liveValue(entity PropertySource, name string) string {
	value, ok := entity.LookupProperty(name)
	if !ok {
		return domain.PropertyNotExist
	}
	return domain.StringifyValue(value)
}

// Descriptor maps property names of a statically typed entity to accessors.
// Build one per entity type and reuse it for every lookup.
type Descriptor[T any] map[string]func(T) any

// Bind returns a PropertySource over entity.
func (d Descriptor[T]) Bind(entity T) PropertySource {
	return boundDescriptor[T]{descriptor: d, entity: entity}
}

type boundDescriptor[T any] struct {
	descriptor Descriptor[T]
	entity     T
}

func (b boundDescriptor[T]) LookupProperty(name string) (any, bool) {
	accessor, ok := b.descriptor[name]
	if !ok {
		return nil, false
	}
	return accessor(b.entity), true
}

// PropertyMap is a PropertySource over a plain map; keys absent from the map
// are treated as undefined properties.
type PropertyMap map[string]any

func (m PropertyMap) LookupProperty(name string) (any, bool) {
	value, ok := m[name]
	return value, ok
}
