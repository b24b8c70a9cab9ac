package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rpattn/entityhistory/internal/domain"
)

var (
	// ErrUnknownEntityType is returned when no snapshotter is registered for
	// the requested entity type.
	ErrUnknownEntityType = errors.New("unknown entity type")
	// ErrInvalidKey is returned when the primary key does not match the key
	// type of the registered snapshotter.
	ErrInvalidKey = errors.New("invalid primary key")
)

type binding struct {
	get func(ctx context.Context, key any, at time.Time) (domain.EntityHistorySnapshot, error)
}

// Manager dispatches snapshot requests to the snapshotter registered for
// each entity type. It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	bindings map[string]binding
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{bindings: map[string]binding{}}
}

// Register binds snapshotter to its entity type, replacing any previous
// binding. parseKey, when non-nil, converts string keys (as received from
// transports) into K.
func Register[K comparable](m *Manager, snapshotter *Snapshotter[K], parseKey func(string) (K, error)) {
	entityType := snapshotter.EntityType()
	b := binding{
		get: func(ctx context.Context, key any, at time.Time) (domain.EntityHistorySnapshot, error) {
			id, err := coerceKey(key, parseKey)
			if err != nil {
				return domain.EntityHistorySnapshot{}, fmt.Errorf("%s: %w", entityType, err)
			}
			return snapshotter.GetSnapshot(ctx, id, at)
		},
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[entityType] = b
}

// GetSnapshot reconstructs the entity of entityType identified by key as of at.
func (m *Manager) GetSnapshot(ctx context.Context, entityType string, key any, at time.Time) (domain.EntityHistorySnapshot, error) {
	m.mu.RLock()
	b, ok := m.bindings[entityType]
	m.mu.RUnlock()
	if !ok {
		return domain.EntityHistorySnapshot{}, fmt.Errorf("%w: %s", ErrUnknownEntityType, entityType)
	}
	return b.get(ctx, key, at)
}

// EntityTypes returns the registered entity types in sorted order.
func (m *Manager) EntityTypes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]string, 0, len(m.bindings))
	for entityType := range m.bindings {
		types = append(types, entityType)
	}
	sort.Strings(types)
	return types
}

func coerceKey[K comparable](key any, parseKey func(string) (K, error)) (K, error) {
	var zero K
	switch typed := key.(type) {
	case K:
		return typed, nil
	case string:
		if parseKey == nil {
			break
		}
		id, err := parseKey(typed)
		if err != nil {
			return zero, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return id, nil
	}
	return zero, fmt.Errorf("%w: unexpected key type %T", ErrInvalidKey, key)
}
