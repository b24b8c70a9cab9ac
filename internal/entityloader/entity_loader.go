package entityloader

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/entityhistory/internal/domain"
	"github.com/rpattn/entityhistory/internal/repository"
	"github.com/rpattn/entityhistory/internal/snapshot"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"
)

// DefaultWait is how long a loader collects keys before issuing a batch.
const DefaultWait = 5 * time.Millisecond

// EntityBatchReader is the slice of the entity repository the loader needs.
type EntityBatchReader interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error)
}

type EntityLoader struct {
	Loader *dataloader.Loader
}

func NewEntityLoader(repo EntityBatchReader, wait time.Duration) *EntityLoader {
	if wait <= 0 {
		wait = DefaultWait
	}

	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))

		// Convert keys to []uuid.UUID, failing only the malformed ones
		ids := make([]uuid.UUID, 0, len(keys))
		positions := make([]int, 0, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				results[i] = &dataloader.Result{Error: fmt.Errorf("invalid UUID: %w", err)}
				continue
			}
			ids = append(ids, id)
			positions = append(positions, i)
		}
		if len(ids) == 0 {
			return results
		}

		// Fetch entities in batch
		entities, err := repo.GetByIDs(ctx, ids)
		if err != nil {
			for _, pos := range positions {
				results[pos] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Map UUID -> entity for ordering
		entityMap := make(map[uuid.UUID]domain.Entity, len(entities))
		for _, e := range entities {
			entityMap[e.ID] = e
		}

		// Build results in the same order as keys
		for n, id := range ids {
			if e, ok := entityMap[id]; ok {
				results[positions[n]] = &dataloader.Result{Data: e}
			} else {
				results[positions[n]] = &dataloader.Result{Data: nil}
			}
		}

		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(wait))

	return &EntityLoader{Loader: loader}
}

// Load resolves one entity through the batch. ok is false when no row exists.
func (l *EntityLoader) Load(ctx context.Context, id uuid.UUID) (domain.Entity, bool, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(id.String()))()
	if err != nil {
		return domain.Entity{}, false, err
	}
	entity, ok := data.(domain.Entity)
	if !ok {
		return domain.Entity{}, false, nil
	}
	return entity, true, nil
}

type ctxKey string

const entityLoaderKey ctxKey = "entityLoader"

// WithLoader stores a request scoped loader in ctx.
func WithLoader(ctx context.Context, loader *EntityLoader) context.Context {
	return context.WithValue(ctx, entityLoaderKey, loader)
}

// FromContext retrieves the loader attached by WithLoader.
func FromContext(ctx context.Context) *EntityLoader {
	if l, ok := ctx.Value(entityLoaderKey).(*EntityLoader); ok {
		return l
	}
	return nil
}

// Source loads live entities of one type for snapshots. Lookups share the
// request's loader when one is attached, so snapshots of several entities
// served by the same request collapse into one query.
type Source struct {
	repo       EntityBatchReader
	entityType string
	wait       time.Duration
}

var _ snapshot.EntityLoader[uuid.UUID] = (*Source)(nil)

func NewSource(repo EntityBatchReader, entityType string, wait time.Duration) *Source {
	return &Source{repo: repo, entityType: entityType, wait: wait}
}

func (s *Source) LoadEntity(ctx context.Context, id uuid.UUID) (snapshot.PropertySource, error) {
	loader := FromContext(ctx)
	if loader == nil {
		loader = NewEntityLoader(s.repo, s.wait)
	}

	entity, found, err := loader.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load entity %s: %w", id, err)
	}
	if !found || !repository.Visible(ctx, s.entityType, entity) {
		return nil, nil
	}
	return entity, nil
}
