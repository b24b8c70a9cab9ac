// Package app wires the Postgres collaborators into snapshot managers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/entityhistory/internal/config"
	"github.com/rpattn/entityhistory/internal/domain"
	"github.com/rpattn/entityhistory/internal/entityloader"
	"github.com/rpattn/entityhistory/internal/repository"
	"github.com/rpattn/entityhistory/internal/snapshot"
)

// EntityTypeLister lists the entity types known to the store.
type EntityTypeLister interface {
	ListEntityTypes(ctx context.Context) ([]string, error)
}

// Binder registers a snapshotter for entityType on m.
type Binder func(m *snapshot.Manager, entityType string)

// DefaultMinRefreshInterval bounds how often lookups of unknown entity types
// may list the store's entity types.
const DefaultMinRefreshInterval = 5 * time.Second

// Catalog keeps a Manager's registrations in step with the entity types in
// the store. Types created after startup are picked up the first time a
// snapshot of them is requested.
type Catalog struct {
	manager     *snapshot.Manager
	lister      EntityTypeLister
	bind        Binder
	minRefresh  time.Duration
	now         func() time.Time
	mu          sync.Mutex
	lastRefresh time.Time
}

type CatalogOption func(*Catalog)

// WithMinRefreshInterval sets how long an unknown entity type lookup waits
// after the previous refresh before listing the store again.
func WithMinRefreshInterval(d time.Duration) CatalogOption {
	return func(c *Catalog) {
		if d >= 0 {
			c.minRefresh = d
		}
	}
}

func NewCatalog(manager *snapshot.Manager, lister EntityTypeLister, bind Binder, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		manager:    manager,
		lister:     lister,
		bind:       bind,
		minRefresh: DefaultMinRefreshInterval,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh registers every listed entity type that has no snapshotter yet.
func (c *Catalog) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// refreshIfStale refreshes unless the previous refresh is younger than the
// minimum interval.
func (c *Catalog) refreshIfStale(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lastRefresh.IsZero() && c.now().Sub(c.lastRefresh) < c.minRefresh {
		return nil
	}
	return c.refreshLocked(ctx)
}

func (c *Catalog) refreshLocked(ctx context.Context) error {
	c.lastRefresh = c.now()
	types, err := c.lister.ListEntityTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh entity types: %w", err)
	}

	registered := make(map[string]struct{})
	for _, entityType := range c.manager.EntityTypes() {
		registered[entityType] = struct{}{}
	}
	for _, entityType := range types {
		if _, ok := registered[entityType]; ok {
			continue
		}
		c.bind(c.manager, entityType)
	}
	return nil
}

// GetSnapshot delegates to the Manager, refreshing once when the entity type
// is not registered yet. Refreshes are rate limited by the minimum interval.
func (c *Catalog) GetSnapshot(ctx context.Context, entityType string, key any, at time.Time) (domain.EntityHistorySnapshot, error) {
	snap, err := c.manager.GetSnapshot(ctx, entityType, key, at)
	if !errors.Is(err, snapshot.ErrUnknownEntityType) {
		return snap, err
	}
	if refreshErr := c.refreshIfStale(ctx); refreshErr != nil {
		return domain.EntityHistorySnapshot{}, refreshErr
	}
	return c.manager.GetSnapshot(ctx, entityType, key, at)
}

// PostgresBinder binds entity types to snapshotters reading from pool.
func PostgresBinder(pool *pgxpool.Pool, cfg config.SnapshotConfig, logger *log.Logger, observer snapshot.Observer) Binder {
	entityRepo := repository.NewEntityRepository(pool)
	return func(m *snapshot.Manager, entityType string) {
		history := repository.NewHistorySource(pool, entityType)
		loader := entityloader.NewSource(entityRepo, entityType, cfg.BatchWait)
		snapshot.Register(m, snapshot.NewSnapshotter[uuid.UUID](entityType, loader, history, Options(cfg, logger, observer)...), uuid.Parse)
	}
}

// Options translates snapshot configuration into snapshotter options.
func Options(cfg config.SnapshotConfig, logger *log.Logger, observer snapshot.Observer) []snapshot.Option {
	var opts []snapshot.Option
	if cfg.ConcurrentLoads {
		opts = append(opts, snapshot.WithConcurrentLoads())
	}
	if cfg.ConsistentReads {
		opts = append(opts, snapshot.WithConsistentReads())
	}
	if logger != nil {
		opts = append(opts, snapshot.WithLogger(logger))
	}
	if observer != nil {
		opts = append(opts, snapshot.WithObserver(observer))
	}
	return opts
}
