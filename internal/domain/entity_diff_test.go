package domain

import (
	"strings"
	"testing"
)

func buildSnapshot() EntityHistorySnapshot {
	builder := NewSnapshotBuilder()
	builder.Revoke("name", "Base")
	builder.SeedTrail("name", "Target", "Base")
	builder.Revoke("count", "1")
	builder.SeedTrail("count", "2", "1")
	builder.Revoke("color", "red")
	builder.SeedTrail("color", "red", "red")
	return builder.Build()
}

func TestSnapshotCanonicalText(t *testing.T) {
	snapshot := buildSnapshot()

	expected := []string{
		"Properties:",
		"  name: Base",
		"  count: 1",
		"  color: red",
	}
	lines := snapshot.CanonicalText(false)
	if len(lines) != len(expected) {
		t.Fatalf("expected %d canonical lines, got %d\n%v", len(expected), len(lines), lines)
	}
	for idx, line := range expected {
		if lines[idx] != line {
			t.Errorf("line %d mismatch: expected %q got %q", idx, line, lines[idx])
		}
	}

	current := snapshot.CanonicalText(true)
	if current[1] != "  name: Target" {
		t.Errorf("expected live value in current text, got %q", current[1])
	}
}

func TestSnapshotCanonicalTextEmpty(t *testing.T) {
	lines := EntityHistorySnapshot{}.CanonicalText(false)
	if len(lines) != 2 || lines[1] != "  (empty)" {
		t.Fatalf("unexpected canonical text for empty snapshot: %v", lines)
	}
}

func TestDiffSnapshotAgainstCurrent(t *testing.T) {
	diff := DiffSnapshotAgainstCurrent("current", "as of 2024-01-01", buildSnapshot())

	if !strings.HasPrefix(diff, "--- current\n+++ as of 2024-01-01\n") {
		t.Errorf("diff missing headers: %s", diff)
	}
	if !strings.Contains(diff, "-  name: Target") {
		t.Errorf("diff missing live name: %s", diff)
	}
	if !strings.Contains(diff, "+  name: Base") {
		t.Errorf("diff missing reconstructed name: %s", diff)
	}
	if !strings.Contains(diff, "+  count: 1") {
		t.Errorf("diff missing reconstructed count: %s", diff)
	}
	if !strings.Contains(diff, "   color: red") {
		t.Errorf("diff should keep unchanged color as context: %s", diff)
	}
}
