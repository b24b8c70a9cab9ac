package domain

import (
	"fmt"
	"strings"
)

// CurrentValues returns the live value each changed property was seeded
// with, i.e. the head of every trail.
func (s EntityHistorySnapshot) CurrentValues() map[string]string {
	out := make(map[string]string, len(s.trails))
	for name, steps := range s.trails {
		if len(steps) > 0 {
			out[name] = steps[0]
		}
	}
	return out
}

// CanonicalText flattens the snapshot into one line per property, using either
// the live values or the reconstructed ones, in first-encountered order.
func (s EntityHistorySnapshot) CanonicalText(current bool) []string {
	values := s.finalValues
	if current {
		values = s.CurrentValues()
	}

	lines := []string{"Properties:"}
	if len(s.properties) == 0 {
		return append(lines, "  (empty)")
	}
	for _, name := range s.properties {
		lines = append(lines, fmt.Sprintf("  %s: %s", name, values[name]))
	}
	return lines
}

// DiffSnapshotAgainstCurrent produces a unified diff from the live values to
// the values reconstructed for the snapshot time.
func DiffSnapshotAgainstCurrent(currentLabel, snapshotLabel string, snapshot EntityHistorySnapshot) string {
	base := strings.Join(snapshot.CanonicalText(true), "\n") + "\n"
	target := strings.Join(snapshot.CanonicalText(false), "\n") + "\n"
	return buildUnifiedDiff(currentLabel, snapshotLabel, base, target)
}

type diffOp struct {
	prefix string
	line   string
}

func buildUnifiedDiff(baseLabel, targetLabel, baseContent, targetContent string) string {
	baseLines := splitLines(baseContent)
	targetLines := splitLines(targetContent)

	ops := diffLines(baseLines, targetLines)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("--- %s\n", baseLabel))
	builder.WriteString(fmt.Sprintf("+++ %s\n", targetLabel))
	builder.WriteString(fmt.Sprintf("@@ -1,%d +1,%d @@\n", len(baseLines), len(targetLines)))
	for _, operation := range ops {
		builder.WriteString(operation.prefix)
		builder.WriteString(operation.line)
		builder.WriteString("\n")
	}

	return builder.String()
}

func splitLines(input string) []string {
	lines := strings.Split(input, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// diffLines walks an LCS table to emit keep/remove/add operations.
func diffLines(base, target []string) []diffOp {
	m := len(base)
	n := len(target)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if base[i] == target[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	ops := make([]diffOp, 0, m+n)
	i, j := 0, 0
	for i < m && j < n {
		if base[i] == target[j] {
			ops = append(ops, diffOp{prefix: " ", line: base[i]})
			i++
			j++
			continue
		}

		if dp[i+1][j] >= dp[i][j+1] {
			ops = append(ops, diffOp{prefix: "-", line: base[i]})
			i++
		} else {
			ops = append(ops, diffOp{prefix: "+", line: target[j]})
			j++
		}
	}

	for i < m {
		ops = append(ops, diffOp{prefix: "-", line: base[i]})
		i++
	}

	for j < n {
		ops = append(ops, diffOp{prefix: "+", line: target[j]})
		j++
	}

	return ops
}
