package chunker

import (
	"regexp"
	"strings"
)

// clausePattern matches hierarchical numbered clauses such as
// "1.1", "1.1.1", "12.3.4", etc. at the start of a line.
var clausePattern = regexp.MustCompile(`^(\d+(?:\.\d+)+)\s`)

// DetectClauseBoundaries scans text and returns the byte offsets where
// new numbered clauses begin.
func DetectClauseBoundaries(text string) []int {
	lines := strings.Split(text, "\n")
	var boundaries []int
	offset := 0

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if clausePattern.MatchString(trimmed) {
			boundaries = append(boundaries, offset)
		}
		offset += len(line) + 1 // +1 for the newline
	}
	return boundaries
}

// SplitByClauses splits text at clause boundaries so that each returned
// string starts with a clause number. Text before the first clause
// (preamble) is returned as the first element if non-empty. Text without
// clause numbering comes back as a single element.
func SplitByClauses(text string) []string {
	boundaries := DetectClauseBoundaries(text)
	if len(boundaries) == 0 {
		return []string{text}
	}

	var parts []string
	for i, b := range boundaries {
		if i == 0 && b > 0 {
			preamble := strings.TrimSpace(text[:b])
			if preamble != "" {
				parts = append(parts, preamble)
			}
		}

		end := len(text)
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}
		part := strings.TrimSpace(text[b:end])
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// ExtractClauseNumber extracts the leading clause number from text.
// For example, given "4.2 The tenant shall..." it returns "4.2" and true.
func ExtractClauseNumber(text string) (string, bool) {
	text = strings.TrimSpace(text)
	m := clausePattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}
