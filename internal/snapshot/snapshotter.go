package snapshot

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rpattn/entityhistory/internal/domain"
)

// ErrEntityNotFound may be returned by an EntityLoader to signal an absent
// entity. It is never returned to callers of GetSnapshot.
var ErrEntityNotFound = errors.New("entity not found")

// EntityLoader looks up the current entity by primary key. An absent entity
// is reported as (nil, nil) or as an error matching ErrEntityNotFound.
type EntityLoader[K comparable] interface {
	LoadEntity(ctx context.Context, id K) (PropertySource, error)
}

// ChangeLogProvider returns the changes recorded strictly after since for
// the entity, ordered newest first.
type ChangeLogProvider[K comparable] interface {
	LoadChanges(ctx context.Context, id K, since time.Time) ([]domain.EntityChange, error)
}

// ConsistentReader reads the entity and its change log from a single
// consistent view of the store. Snapshotters prefer it when the loader or
// provider implements it and consistent reads are enabled.
type ConsistentReader[K comparable] interface {
	ReadSnapshot(ctx context.Context, id K, since time.Time) (PropertySource, []domain.EntityChange, error)
}

// Outcome classifies a finished GetSnapshot call for observers.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeAbsent Outcome = "absent"
	OutcomeError  Outcome = "error"
)

// Observation describes one GetSnapshot call.
type Observation struct {
	EntityType      string
	Outcome         Outcome
	Changes         int
	PropertyChanges int
	Properties      int
	Duration        time.Duration
}

// Observer receives one Observation per GetSnapshot call.
type Observer interface {
	ObserveSnapshot(Observation)
}

type settings struct {
	concurrentLoads bool
	consistentReads bool
	logger          *log.Logger
	observer        Observer
}

// Option configures a Snapshotter.
type Option func(*settings)

// WithConcurrentLoads issues the entity and change log reads concurrently.
// Both reads complete even when the entity turns out to be absent.
func WithConcurrentLoads() Option {
	return func(s *settings) { s.concurrentLoads = true }
}

// WithConsistentReads routes both reads through a ConsistentReader when the
// collaborators provide one.
func WithConsistentReads() Option {
	return func(s *settings) { s.consistentReads = true }
}

// WithLogger logs one line per reconstruction.
func WithLogger(logger *log.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithObserver reports each call to observer.
func WithObserver(observer Observer) Option {
	return func(s *settings) { s.observer = observer }
}

// Snapshotter produces history snapshots for one entity type.
type Snapshotter[K comparable] struct {
	entityType string
	loader     EntityLoader[K]
	changes    ChangeLogProvider[K]
	settings   settings
}

// NewSnapshotter binds an entity type to its loader and change log provider.
func NewSnapshotter[K comparable](entityType string, loader EntityLoader[K], changes ChangeLogProvider[K], opts ...Option) *Snapshotter[K] {
	s := &Snapshotter[K]{
		entityType: entityType,
		loader:     loader,
		changes:    changes,
	}
	for _, opt := range opts {
		opt(&s.settings)
	}
	return s
}

// EntityType returns the discriminator the snapshotter was bound to.
func (s *Snapshotter[K]) EntityType() string {
	return s.entityType
}

// GetSnapshot reconstructs the entity identified by id as of at. Collaborator
// errors are returned unchanged.
func (s *Snapshotter[K]) GetSnapshot(ctx context.Context, id K, at time.Time) (domain.EntityHistorySnapshot, error) {
	start := time.Now()

	entity, changes, err := s.load(ctx, id, at)
	if err != nil {
		s.observe(id, Observation{Outcome: OutcomeError, Duration: time.Since(start)})
		return domain.EntityHistorySnapshot{}, err
	}
	if entity == nil {
		s.observe(id, Observation{Outcome: OutcomeAbsent, Duration: time.Since(start)})
		return domain.EntityHistorySnapshot{}, nil
	}

	snapshot := Reconstruct(entity, changes)
	s.observe(id, Observation{
		Outcome:         OutcomeOK,
		Changes:         len(changes),
		PropertyChanges: countPropertyChanges(changes),
		Properties:      snapshot.Len(),
		Duration:        time.Since(start),
	})
	return snapshot, nil
}

func (s *Snapshotter[K]) load(ctx context.Context, id K, at time.Time) (PropertySource, []domain.EntityChange, error) {
	if s.settings.consistentReads {
		if reader, ok := s.consistentReader(); ok {
			entity, changes, err := reader.ReadSnapshot(ctx, id, at)
			if errors.Is(err, ErrEntityNotFound) {
				return nil, nil, nil
			}
			return entity, changes, err
		}
	}

	if s.settings.concurrentLoads {
		return s.loadConcurrently(ctx, id, at)
	}

	entity, err := s.loadEntity(ctx, id)
	if err != nil || entity == nil {
		return nil, nil, err
	}
	changes, err := s.changes.LoadChanges(ctx, id, at)
	if err != nil {
		return nil, nil, err
	}
	return entity, changes, nil
}

func (s *Snapshotter[K]) loadConcurrently(ctx context.Context, id K, at time.Time) (PropertySource, []domain.EntityChange, error) {
	var (
		entity  PropertySource
		changes []domain.EntityChange
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		entity, err = s.loadEntity(groupCtx, id)
		return err
	})
	group.Go(func() error {
		var err error
		changes, err = s.changes.LoadChanges(groupCtx, id, at)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	if entity == nil {
		return nil, nil, nil
	}
	return entity, changes, nil
}

func (s *Snapshotter[K]) loadEntity(ctx context.Context, id K) (PropertySource, error) {
	entity, err := s.loader.LoadEntity(ctx, id)
	if errors.Is(err, ErrEntityNotFound) {
		return nil, nil
	}
	return entity, err
}

func (s *Snapshotter[K]) consistentReader() (ConsistentReader[K], bool) {
	if reader, ok := s.loader.(ConsistentReader[K]); ok {
		return reader, true
	}
	reader, ok := s.changes.(ConsistentReader[K])
	return reader, ok
}

func (s *Snapshotter[K]) observe(id K, observation Observation) {
	observation.EntityType = s.entityType
	if s.settings.observer != nil {
		s.settings.observer.ObserveSnapshot(observation)
	}
	if s.settings.logger != nil {
		s.settings.logger.Printf("[SNAPSHOT] %s %v outcome=%s changes=%d properties=%d took %s",
			s.entityType, id, observation.Outcome, observation.Changes, observation.Properties, observation.Duration)
	}
}

func countPropertyChanges(changes []domain.EntityChange) int {
	total := 0
	for _, change := range changes {
		total += len(change.PropertyChanges)
	}
	return total
}
