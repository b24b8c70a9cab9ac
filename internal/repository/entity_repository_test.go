package repository

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rpattn/entityhistory/internal/auth"
	"github.com/rpattn/entityhistory/internal/domain"
	"github.com/rpattn/entityhistory/internal/snapshot"
)

func text(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: true}
}

func TestGroupChangeRows(t *testing.T) {
	entityID := uuid.New()
	newer := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	rows := []changeRow{
		{ID: 7, EntityID: entityID, EntityType: "Pump", ChangeType: "UPDATED", ChangeTime: newer, Reason: text("fix"),
			PropertyName: text("name"), OriginalValue: text("B"), NewValue: text("C")},
		{ID: 7, EntityID: entityID, EntityType: "Pump", ChangeType: "UPDATED", ChangeTime: newer, Reason: text("fix"),
			PropertyName: text("size"), OriginalValue: text("1"), NewValue: text("2"), PropertyType: text("integer")},
		{ID: 5, EntityID: entityID, EntityType: "Pump", ChangeType: "UPDATED", ChangeTime: older},
		{ID: 3, EntityID: entityID, EntityType: "Pump", ChangeType: "CREATED", ChangeTime: older,
			PropertyName: text("name"), OriginalValue: text("A"), NewValue: text("B")},
	}

	changes := groupChangeRows(rows)

	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(changes))
	}
	if ids := []int64{changes[0].ID, changes[1].ID, changes[2].ID}; !reflect.DeepEqual(ids, []int64{7, 5, 3}) {
		t.Errorf("expected row order preserved, got %v", ids)
	}
	if changes[0].Reason == nil || *changes[0].Reason != "fix" {
		t.Errorf("expected reason to be carried, got %v", changes[0].Reason)
	}
	wantFirst := []domain.EntityPropertyChange{
		{PropertyName: "name", OriginalValue: "B", NewValue: "C"},
		{PropertyName: "size", OriginalValue: "1", NewValue: "2", PropertyType: "integer"},
	}
	if !reflect.DeepEqual(changes[0].PropertyChanges, wantFirst) {
		t.Errorf("unexpected property changes %+v", changes[0].PropertyChanges)
	}
	if len(changes[1].PropertyChanges) != 0 {
		t.Errorf("expected change without property rows to stay empty, got %+v", changes[1].PropertyChanges)
	}
	if changes[2].ChangeType != domain.ChangeTypeCreated {
		t.Errorf("unexpected change type %s", changes[2].ChangeType)
	}
}

func TestGroupChangeRowsEmpty(t *testing.T) {
	changes := groupChangeRows(nil)
	if changes == nil || len(changes) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", changes)
	}
}

func TestBuildEntityAttachesSchemaFields(t *testing.T) {
	id := uuid.New()
	schemaID := uuid.New()

	entity, err := buildEntity(id, uuid.New(), pgtype.UUID{Bytes: schemaID, Valid: true}, "Pump",
		[]byte(`{"name":"P-1","legacy":true}`), 3, time.Now(), time.Now(),
		[]byte(`[{"name":"name","type":"string","required":true},{"name":"serial","type":"string","required":false}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if entity.SchemaID != schemaID {
		t.Errorf("expected schema id %s, got %s", schemaID, entity.SchemaID)
	}
	if !reflect.DeepEqual(entity.Fields, []string{"name", "serial"}) {
		t.Errorf("unexpected fields %v", entity.Fields)
	}
	if _, ok := entity.LookupProperty("legacy"); ok {
		t.Errorf("expected property dropped from schema to be missing")
	}
}

func TestBuildEntityWithoutSchema(t *testing.T) {
	entity, err := buildEntity(uuid.New(), uuid.New(), pgtype.UUID{}, "Pump", []byte(`{"name":"P-1"}`), 1, time.Now(), time.Now(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entity.Fields != nil || entity.SchemaID != uuid.Nil {
		t.Errorf("expected no schema binding, got %v %s", entity.Fields, entity.SchemaID)
	}
	if value, ok := entity.LookupProperty("name"); !ok || value != "P-1" {
		t.Errorf("unexpected lookup %v %v", value, ok)
	}
}

func TestBuildEntityKeepsLargeIntegersExact(t *testing.T) {
	entity, err := buildEntity(uuid.New(), uuid.New(), pgtype.UUID{}, "Pump",
		[]byte(`{"serial":9007199254740993,"ratio":0.1}`), 2, time.Now(), time.Now(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recorded := domain.NewPropertyChange("serial", int64(9007199254740991), int64(9007199254740993))
	snap := snapshot.Reconstruct(entity, []domain.EntityChange{{PropertyChanges: []domain.EntityPropertyChange{recorded}}})

	trail, _ := snap.Trail("serial")
	if want := recorded.NewValue + " -> " + recorded.OriginalValue; trail != want {
		t.Fatalf("expected trail %q, got %q", want, trail)
	}
	if value, _ := entity.LookupProperty("ratio"); domain.StringifyValue(value) != "0.1" {
		t.Errorf("expected float to render as stored, got %v", value)
	}
}

func TestBuildEntityRejectsMalformedProperties(t *testing.T) {
	if _, err := buildEntity(uuid.New(), uuid.New(), pgtype.UUID{}, "Pump", []byte(`[1,2]`), 1, time.Now(), time.Now(), nil); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestVisible(t *testing.T) {
	orgID := uuid.New()
	entity := domain.Entity{EntityType: "Pump", OrganizationID: orgID}

	if !Visible(context.Background(), "Pump", entity) {
		t.Error("expected unscoped entity of matching type to be visible")
	}
	if Visible(context.Background(), "Valve", entity) {
		t.Error("expected entity of another type to be hidden")
	}
	if Visible(auth.ContextWithOrganizationID(context.Background(), uuid.New()), "Pump", entity) {
		t.Error("expected entity of another organization to be hidden")
	}
	if !Visible(auth.ContextWithOrganizationID(context.Background(), orgID), "Pump", entity) {
		t.Error("expected entity of scoped organization to be visible")
	}
}

func TestPropertyChangeBatchKeepsCapturedOrder(t *testing.T) {
	changes := domain.DiffProperties(
		map[string]any{"name": "A", "size": 2},
		map[string]any{"name": "B", "size": 2, "serial": int64(7)},
	)

	batch := propertyChangeBatch(42, changes)

	if len(batch.QueuedQueries) != 2 {
		t.Fatalf("expected one insert per changed property, got %d", len(batch.QueuedQueries))
	}
	wantArgs := [][]any{
		{int64(42), 0, "name", "A", "B", "string"},
		{int64(42), 1, "serial", "null", "7", "integer"},
	}
	for i, query := range batch.QueuedQueries {
		if query.SQL != insertPropertyChangeSQL {
			t.Errorf("unexpected sql %q", query.SQL)
		}
		if !reflect.DeepEqual(query.Arguments, wantArgs[i]) {
			t.Errorf("query %d: unexpected arguments %#v", i, query.Arguments)
		}
	}
}

func TestNewChange(t *testing.T) {
	entityID := uuid.New()

	change := newChange(entityID, "Pump", domain.ChangeTypeUpdated, "", nil)
	if change.Reason != nil {
		t.Errorf("expected empty reason to be stored as NULL, got %q", *change.Reason)
	}
	if change.EntityID != entityID || change.EntityType != "Pump" || change.ChangeTime.IsZero() {
		t.Errorf("unexpected change %+v", change)
	}
	if change.ChangeTime.Location() != time.UTC {
		t.Errorf("expected UTC change time, got %s", change.ChangeTime.Location())
	}

	change = newChange(entityID, "Pump", domain.ChangeTypeCreated, "import", nil)
	if change.Reason == nil || *change.Reason != "import" {
		t.Errorf("expected reason to be carried, got %v", change.Reason)
	}
}
