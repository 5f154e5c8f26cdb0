package mover

import (
	"cmp"
	"slices"
	"strings"

	"github.com/starford/mdref/internal/apperr"
	"github.com/starford/mdref/internal/models"
	"github.com/starford/mdref/internal/parser"
)

// edit replaces the link text of one recorded reference.
type edit struct {
	ref     models.Reference
	newText string
}

// applyEdits rewrites the link texts named by edits inside content, which
// must be the file the references were recorded against. Every edit either
// lands or is returned in skipped with the reason. Bytes outside the
// rewritten link texts, including line terminators, are left untouched.
func applyEdits(path, content string, edits []edit) (string, []edit, []Skip) {
	lines := parser.SplitLines(content)

	// Right to left within a line keeps earlier byte offsets valid.
	sorted := slices.Clone(edits)
	slices.SortStableFunc(sorted, func(a, b edit) int {
		if c := cmp.Compare(a.ref.Line, b.ref.Line); c != 0 {
			return c
		}
		return cmp.Compare(b.ref.Column, a.ref.Column)
	})

	var applied []edit
	var skipped []Skip
	for _, e := range sorted {
		if e.ref.Line < 1 || e.ref.Line > len(lines) {
			skipped = append(skipped, Skip{
				Reference: e.ref,
				Reason:    apperr.InvalidLine(path, e.ref.Line, len(lines)).Error(),
			})
			continue
		}
		idx := e.ref.Line - 1
		line, ok := replaceAt(lines[idx], e.ref.Column, e.ref.LinkText, e.newText)
		if !ok {
			skipped = append(skipped, Skip{
				Reference: e.ref,
				Reason:    "link text not found on recorded line",
			})
			continue
		}
		lines[idx] = line
		applied = append(applied, e)
	}
	return strings.Join(lines, ""), applied, skipped
}

// replaceAt substitutes "](oldText)" with "](newText)" in the link token
// that opens at the given rune column. Only that token is touched, even
// when the same link text appears elsewhere on the line.
func replaceAt(line string, column int, oldText, newText string) (string, bool) {
	start := parser.ByteOffset(line, column)
	if start < 0 || line[start] != '[' {
		return line, false
	}
	// The label cannot contain ']', so the first "](" after the opening
	// bracket belongs to this token.
	rel := strings.Index(line[start:], "](")
	if rel < 0 {
		return line, false
	}
	pos := start + rel
	pattern := "](" + oldText + ")"
	if !strings.HasPrefix(line[pos:], pattern) {
		return line, false
	}
	return line[:pos] + "](" + newText + ")" + line[pos+len(pattern):], true
}
