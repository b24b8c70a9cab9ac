package snapshot

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/rpattn/entityhistory/internal/domain"
)

func change(at time.Time, props ...domain.EntityPropertyChange) domain.EntityChange {
	return domain.EntityChange{
		ChangeType:      domain.ChangeTypeUpdated,
		ChangeTime:      at,
		PropertyChanges: props,
	}
}

func prop(name, original string) domain.EntityPropertyChange {
	return domain.EntityPropertyChange{PropertyName: name, OriginalValue: original}
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestReconstructNoChanges(t *testing.T) {
	snapshot := Reconstruct(PropertyMap{"Name": "Bob"}, nil)

	if !snapshot.IsEmpty() {
		t.Fatalf("expected empty snapshot, got %v", snapshot.Properties())
	}
	if len(snapshot.FinalValues()) != 0 || len(snapshot.ChangeTrail()) != 0 {
		t.Fatalf("expected empty maps, got %v / %v", snapshot.FinalValues(), snapshot.ChangeTrail())
	}
}

func TestReconstructAbsentEntityIgnoresChanges(t *testing.T) {
	changes := []domain.EntityChange{change(base, prop("Name", "Alice"))}

	snapshot := Reconstruct(nil, changes)

	if !snapshot.IsEmpty() {
		t.Fatalf("expected empty snapshot for absent entity, got %v", snapshot.FinalValues())
	}
}

func TestReconstructSingleChange(t *testing.T) {
	changes := []domain.EntityChange{change(base, prop("Name", "Alice"))}

	snapshot := Reconstruct(PropertyMap{"Name": "Bob"}, changes)

	if value, _ := snapshot.Value("Name"); value != "Alice" {
		t.Errorf("expected final value Alice, got %q", value)
	}
	if trail, _ := snapshot.Trail("Name"); trail != "Bob -> Alice" {
		t.Errorf("expected trail %q, got %q", "Bob -> Alice", trail)
	}
}

func TestReconstructTwoChangesSameProperty(t *testing.T) {
	changes := []domain.EntityChange{
		change(base.Add(time.Hour), prop("Name", "B")),
		change(base, prop("Name", "A")),
	}

	snapshot := Reconstruct(PropertyMap{"Name": "C"}, changes)

	if value, _ := snapshot.Value("Name"); value != "A" {
		t.Errorf("expected final value A, got %q", value)
	}
	if trail, _ := snapshot.Trail("Name"); trail != "C -> B -> A" {
		t.Errorf("expected trail %q, got %q", "C -> B -> A", trail)
	}
	if steps := snapshot.TrailSteps("Name"); !reflect.DeepEqual(steps, []string{"C", "B", "A"}) {
		t.Errorf("unexpected trail steps %v", steps)
	}
}

func TestReconstructIndependentProperties(t *testing.T) {
	entity := PropertyMap{"Name": "Carol", "Status": "closed"}
	changes := []domain.EntityChange{
		change(base.Add(2*time.Hour), prop("Status", "open")),
		change(base.Add(time.Hour), prop("Name", "Bob")),
		change(base, prop("Status", "draft")),
	}

	snapshot := Reconstruct(entity, changes)

	wantTrail := map[string]string{
		"Status": "closed -> open -> draft",
		"Name":   "Carol -> Bob",
	}
	if got := snapshot.ChangeTrail(); !reflect.DeepEqual(got, wantTrail) {
		t.Errorf("unexpected trails: %v", got)
	}
	wantValues := map[string]string{"Status": "draft", "Name": "Bob"}
	if got := snapshot.FinalValues(); !reflect.DeepEqual(got, wantValues) {
		t.Errorf("unexpected final values: %v", got)
	}
	if got := snapshot.Properties(); !reflect.DeepEqual(got, []string{"Status", "Name"}) {
		t.Errorf("expected first-encountered order, got %v", got)
	}
}

func TestReconstructMultiplePropertiesInOneChange(t *testing.T) {
	changes := []domain.EntityChange{
		change(base, prop("B", "b0"), prop("A", "a0")),
	}

	snapshot := Reconstruct(PropertyMap{"A": "a1", "B": "b1"}, changes)

	if got := snapshot.Properties(); !reflect.DeepEqual(got, []string{"B", "A"}) {
		t.Errorf("expected record order to be preserved, got %v", got)
	}
}

func TestReconstructIsDeterministic(t *testing.T) {
	entity := PropertyMap{"Name": "C", "Count": float64(3)}
	changes := []domain.EntityChange{
		change(base.Add(time.Hour), prop("Name", "B"), prop("Count", "2")),
		change(base, prop("Name", "A")),
	}

	first, err := json.Marshal(Reconstruct(entity, changes))
	if err != nil {
		t.Fatalf("marshal first: %v", err)
	}
	second, err := json.Marshal(Reconstruct(entity, changes))
	if err != nil {
		t.Fatalf("marshal second: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected identical output\n%s\n%s", first, second)
	}
}

func TestReconstructTrustsInputOrder(t *testing.T) {
	newestFirst := []domain.EntityChange{
		change(base.Add(time.Hour), prop("Name", "B")),
		change(base, prop("Name", "A")),
	}
	oldestFirst := []domain.EntityChange{newestFirst[1], newestFirst[0]}

	correct := Reconstruct(PropertyMap{"Name": "C"}, newestFirst)
	reversed := Reconstruct(PropertyMap{"Name": "C"}, oldestFirst)

	correctValue, _ := correct.Value("Name")
	reversedValue, _ := reversed.Value("Name")
	if correctValue != "A" {
		t.Fatalf("expected oldest original value A, got %q", correctValue)
	}
	if reversedValue != "B" {
		t.Fatalf("expected reversed input to end on B, got %q", reversedValue)
	}
	if trail, _ := reversed.Trail("Name"); trail != "C -> A -> B" {
		t.Fatalf("expected reversed trail to follow input order, got %q", trail)
	}
}

func TestReconstructMissingProperty(t *testing.T) {
	changes := []domain.EntityChange{change(base, prop("LegacyField", "42"))}

	snapshot := Reconstruct(PropertyMap{"Name": "Bob"}, changes)

	if trail, _ := snapshot.Trail("LegacyField"); trail != "PropertyNotExist -> 42" {
		t.Errorf("expected sentinel trail, got %q", trail)
	}
	if value, _ := snapshot.Value("LegacyField"); value != "42" {
		t.Errorf("expected final value 42, got %q", value)
	}
}

func TestReconstructStringifiesLiveValues(t *testing.T) {
	entity := PropertyMap{
		"Count":   float64(7),
		"Active":  true,
		"Tags":    []any{"a", "b"},
		"Meta":    map[string]any{"z": 1, "a": 2},
		"Deleted": nil,
	}
	changes := []domain.EntityChange{
		change(base, prop("Count", "6"), prop("Active", "false"), prop("Tags", `["a"]`), prop("Meta", "{}"), prop("Deleted", "x")),
	}

	snapshot := Reconstruct(entity, changes)

	want := map[string]string{
		"Count":   "7 -> 6",
		"Active":  "true -> false",
		"Tags":    `["a","b"] -> ["a"]`,
		"Meta":    `{"a":2,"z":1} -> {}`,
		"Deleted": "null -> x",
	}
	if got := snapshot.ChangeTrail(); !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected trails:\n got %v\nwant %v", got, want)
	}
}

type account struct {
	Name    string
	Balance int
}

func TestDescriptorBind(t *testing.T) {
	descriptor := Descriptor[account]{
		"Name":    func(a account) any { return a.Name },
		"Balance": func(a account) any { return a.Balance },
	}
	changes := []domain.EntityChange{
		change(base, prop("Balance", "10"), prop("Owner", "ops")),
	}

	snapshot := Reconstruct(descriptor.Bind(account{Name: "main", Balance: 25}), changes)

	if trail, _ := snapshot.Trail("Balance"); trail != "25 -> 10" {
		t.Errorf("unexpected balance trail %q", trail)
	}
	if trail, _ := snapshot.Trail("Owner"); trail != "PropertyNotExist -> ops" {
		t.Errorf("unexpected owner trail %q", trail)
	}
}

func TestReconstructDomainEntitySchemaFields(t *testing.T) {
	entity := domain.Entity{
		Properties: map[string]any{"name": "pump", "legacy": "still stored"},
	}.WithFields([]string{"name", "serial"})
	changes := []domain.EntityChange{
		change(base, prop("name", "valve"), prop("serial", "S-1"), prop("legacy", "old")),
	}

	snapshot := Reconstruct(entity, changes)

	want := map[string]string{
		"name":   "pump -> valve",
		"serial": "null -> S-1",
		"legacy": "PropertyNotExist -> old",
	}
	if got := snapshot.ChangeTrail(); !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected trails: %v", got)
	}
}
