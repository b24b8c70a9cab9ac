package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/entityhistory/internal/domain"
)

// SnapshotReader is the snapshot entry point the export service renders.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, entityType string, key any, at time.Time) (domain.EntityHistorySnapshot, error)
}

type Service struct {
	snapshots SnapshotReader
	now       func() time.Time
}

type Option func(*Service)

// WithClock overrides the clock used when no point in time is requested.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(snapshots SnapshotReader, opts ...Option) *Service {
	s := &Service{
		snapshots: snapshots,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Row is one property of a rendered snapshot.
type Row struct {
	Property string
	Value    string
	Trail    string
	Steps    []string
}

// SnapshotView is a reconstructed snapshot together with what was asked for.
type SnapshotView struct {
	EntityType string
	Key        string
	At         time.Time
	Snapshot   domain.EntityHistorySnapshot
}

// Snapshot reconstructs the entity identified by key as of at. A zero at
// means now.
func (s *Service) Snapshot(ctx context.Context, entityType, key string, at time.Time) (SnapshotView, error) {
	entityType = strings.TrimSpace(entityType)
	key = strings.TrimSpace(key)
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	snapshot, err := s.snapshots.GetSnapshot(ctx, entityType, key, at)
	if err != nil {
		return SnapshotView{}, err
	}
	return SnapshotView{EntityType: entityType, Key: key, At: at, Snapshot: snapshot}, nil
}

// Rows lists the snapshot's properties in the order they were first revoked.
func (v SnapshotView) Rows() []Row {
	properties := v.Snapshot.Properties()
	rows := make([]Row, 0, len(properties))
	for _, name := range properties {
		value, _ := v.Snapshot.Value(name)
		trail, _ := v.Snapshot.Trail(name)
		rows = append(rows, Row{
			Property: name,
			Value:    value,
			Trail:    trail,
			Steps:    v.Snapshot.TrailSteps(name),
		})
	}
	return rows
}

// DiffAgainstCurrent renders a unified diff from the live values, which head
// every trail, to the values at the view's point in time.
func DiffAgainstCurrent(view SnapshotView) string {
	return domain.DiffSnapshotAgainstCurrent(
		fmt.Sprintf("%s/%s (current)", view.EntityType, view.Key),
		fmt.Sprintf("%s/%s (%s)", view.EntityType, view.Key, view.At.Format(time.RFC3339)),
		view.Snapshot,
	)
}

type viewHeader struct {
	EntityType string    `json:"entityType"`
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	Properties []string  `json:"properties"`
}

// MarshalJSON emits the request fields followed by the snapshot maps, keeping
// the maps in property order.
func (v SnapshotView) MarshalJSON() ([]byte, error) {
	header, err := json.Marshal(viewHeader{
		EntityType: v.EntityType,
		ID:         v.Key,
		At:         v.At,
		Properties: v.Snapshot.Properties(),
	})
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(v.Snapshot)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(header[:len(header)-1])
	buf.WriteByte(',')
	buf.Write(body[1:])
	return buf.Bytes(), nil
}
