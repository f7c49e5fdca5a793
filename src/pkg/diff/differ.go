package diff

import (
	"bytes"
	"fmt"
	"strings"
)

// TextDiffer produces a unified-style diff between two spec documents.
type TextDiffer interface {
	Diff(previous, proposed []byte) string
	HasChanges(previous, proposed []byte) bool
}

// Differ diffs YAML documents line by line.
type Differ struct{}

var _ TextDiffer = (*Differ)(nil)

func NewDiffer() *Differ {
	return &Differ{}
}

// HasChanges reports whether the two documents differ at all.
func (d *Differ) HasChanges(previous, proposed []byte) bool {
	return !bytes.Equal(previous, proposed)
}

// Diff returns a unified-style diff with "--- previous" / "+++ proposed"
// headers. Equal documents produce an empty string.
func (d *Differ) Diff(previous, proposed []byte) string {
	if bytes.Equal(previous, proposed) {
		return ""
	}

	prevLines := splitLines(previous)
	propLines := splitLines(proposed)

	var result strings.Builder
	result.WriteString("--- previous\n")
	result.WriteString("+++ proposed\n")
	for _, op := range diffLines(prevLines, propLines) {
		result.WriteString(op)
		result.WriteString("\n")
	}
	return result.String()
}

func splitLines(doc []byte) []string {
	text := strings.TrimSuffix(string(doc), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// diffLines aligns the two sides on their longest common subsequence and
// emits "  ", "- ", "+ " prefixed lines.
func diffLines(previous, proposed []string) []string {
	// lcs[i][j] is the LCS length of previous[i:] and proposed[j:].
	lcs := make([][]int, len(previous)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(proposed)+1)
	}
	for i := len(previous) - 1; i >= 0; i-- {
		for j := len(proposed) - 1; j >= 0; j-- {
			if previous[i] == proposed[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var ops []string
	i, j := 0, 0
	for i < len(previous) && j < len(proposed) {
		switch {
		case previous[i] == proposed[j]:
			ops = append(ops, "  "+previous[i])
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, "- "+previous[i])
			i++
		default:
			ops = append(ops, "+ "+proposed[j])
			j++
		}
	}
	for ; i < len(previous); i++ {
		ops = append(ops, "- "+previous[i])
	}
	for ; j < len(proposed); j++ {
		ops = append(ops, "+ "+proposed[j])
	}
	return ops
}

// FormatForMarkdown wraps the diff in a fenced block, collapsed behind
// <details> when it exceeds maxLines.
func (d *Differ) FormatForMarkdown(diff string, maxLines int) string {
	if diff == "" {
		return "_No textual changes_"
	}

	lines := strings.Split(strings.TrimSuffix(diff, "\n"), "\n")
	if len(lines) > maxLines {
		var result strings.Builder
		result.WriteString(fmt.Sprintf("<details>\n<summary>Diff (%d lines, click to expand)</summary>\n\n", len(lines)))
		result.WriteString("```diff\n")
		result.WriteString(diff)
		result.WriteString("```\n")
		result.WriteString("</details>")
		return result.String()
	}

	var result strings.Builder
	result.WriteString("```diff\n")
	result.WriteString(diff)
	result.WriteString("```")
	return result.String()
}
