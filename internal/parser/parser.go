// Package parser extracts inline link tokens from Markdown content.
package parser

import (
	"iter"
	"regexp"
	"strings"
	"unicode/utf8"
)

// linkRe matches [label](target) with no nesting and no space between the
// brackets and the parentheses. The compiled pattern is immutable and safe
// for concurrent use.
var linkRe = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)

// Occurrence is a single link token found in a document.
type Occurrence struct {
	Line   int    // 1-based
	Column int    // 1-based, in runes, position of the opening bracket
	Text   string // label between the brackets
	Target string // raw target between the parentheses
}

// Links returns a lazy sequence of the link tokens in content, top to
// bottom and left to right. The sequence can be ranged over repeatedly.
func Links(content string) iter.Seq[Occurrence] {
	return func(yield func(Occurrence) bool) {
		for i, raw := range SplitLines(content) {
			line := TrimEOL(raw)
			for _, m := range linkRe.FindAllStringSubmatchIndex(line, -1) {
				occ := Occurrence{
					Line:   i + 1,
					Column: utf8.RuneCountInString(line[:m[0]]) + 1,
					Text:   line[m[2]:m[3]],
					Target: line[m[4]:m[5]],
				}
				if !yield(occ) {
					return
				}
			}
		}
	}
}

// Extract collects Links(content) into a slice.
func Extract(content string) []Occurrence {
	var out []Occurrence
	for occ := range Links(content) {
		out = append(out, occ)
	}
	return out
}

// SplitLines splits content into lines that keep their terminators, so
// strings.Join(SplitLines(s), "") == s. A trailing newline does not start
// an extra line.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// TrimEOL strips a trailing "\n" or "\r\n" from line.
func TrimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// ByteOffset converts a 1-based rune column in line to a byte offset. It
// returns -1 when the column lies past the end of the line.
func ByteOffset(line string, column int) int {
	if column < 1 {
		return -1
	}
	n := 1
	for i := range line {
		if n == column {
			return i
		}
		n++
	}
	return -1
}
