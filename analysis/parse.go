package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NoIssueMarker is the literal reply affirming a clause has no problems.
const NoIssueMarker = "No issue found"

// NoInstitutionsMarker is the single-element reply when a clause names
// no legal institutions.
const NoInstitutionsMarker = "No legal institutions found"

// Finding is one identified issue with its remediation advice.
type Finding struct {
	ContextAndImplications string `json:"Context and Legal Implications"`
	Suggestion             string `json:"Suggestion"`
}

// stripCodeFence removes a surrounding markdown code fence from a model
// reply. Models occasionally fence JSON despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag like "json" on the opening fence line.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if len(first) <= 10 && !strings.ContainsAny(first, "{[\"") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseFindings validates an explainer reply. It accepts the no-issue
// marker (with or without a trailing period) or a JSON array of objects
// that each carry both required keys. Anything else is a schema error.
func parseFindings(reply string) (noIssue bool, findings []Finding, err error) {
	text := stripCodeFence(reply)

	if isNoIssue(text) {
		return true, nil, nil
	}

	var raw []map[string]string
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return false, nil, fmt.Errorf("reply is not a JSON array of objects: %w", err)
	}
	if len(raw) == 0 {
		return false, nil, fmt.Errorf("reply is an empty findings array")
	}

	findings = make([]Finding, 0, len(raw))
	for i, obj := range raw {
		var f Finding
		for k, v := range obj {
			switch normalizeKey(k) {
			case "context and legal implications":
				f.ContextAndImplications = v
			case "suggestion":
				f.Suggestion = v
			}
		}
		if f.ContextAndImplications == "" || f.Suggestion == "" {
			return false, nil, fmt.Errorf("finding %d missing a required key", i)
		}
		findings = append(findings, f)
	}
	return false, findings, nil
}

// parseInstitutions validates an extractor reply as a JSON array of
// non-empty strings.
func parseInstitutions(reply string) ([]string, error) {
	text := stripCodeFence(reply)

	var names []string
	if err := json.Unmarshal([]byte(text), &names); err != nil {
		return nil, fmt.Errorf("reply is not a JSON array of strings: %w", err)
	}
	out := names[:0]
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("reply contains no institution names")
	}
	return out, nil
}

func isNoIssue(text string) bool {
	t := strings.ToLower(strings.Trim(text, " \t\n.\"'`"))
	return t == strings.ToLower(NoIssueMarker)
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
