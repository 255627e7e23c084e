// Package rules loads the external rule data consumed by the drafting
// crew: compliance rules, the audit checklist, jurisdiction-specific
// rules, and the reference list of known legal institutions.
//
// Rule definitions are embedded into agent context as opaque text; the
// only structure this package imposes is that each file is valid JSON
// and that the jurisdictional file is keyed by jurisdiction name.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// ErrUnknownJurisdiction is returned in strict mode when a requested
// jurisdiction has no entry in the jurisdictional rules file.
var ErrUnknownJurisdiction = errors.New("rules: unknown jurisdiction")

// DefaultJurisdiction is the fallback key used when a requested
// jurisdiction is absent and strict resolution is disabled.
const DefaultJurisdiction = "default"

// Set holds all loaded rule data.
type Set struct {
	// Compliance and Audit are the raw JSON texts of their files.
	Compliance string
	Audit      string

	// Jurisdictional maps jurisdiction keys to their raw rule JSON.
	Jurisdictional map[string]json.RawMessage

	// Institutions is the reference list of recognized legal
	// institution names.
	Institutions []string

	strict bool
}

// Paths names the rule files to load. InstitutionsPath may be empty;
// the other three are required.
type Paths struct {
	CompliancePath     string
	AuditPath          string
	JurisdictionalPath string
	InstitutionsPath   string
}

// Load reads and validates all rule files. Any unreadable or
// syntactically invalid file fails the load, so a misconfigured
// deployment is caught at startup rather than mid-draft. strict
// controls jurisdiction resolution (see Resolve).
func Load(p Paths, strict bool) (*Set, error) {
	s := &Set{strict: strict}

	compliance, err := readJSON(p.CompliancePath)
	if err != nil {
		return nil, fmt.Errorf("compliance rules: %w", err)
	}
	s.Compliance = compliance

	audit, err := readJSON(p.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("audit checklist: %w", err)
	}
	s.Audit = audit

	raw, err := os.ReadFile(p.JurisdictionalPath)
	if err != nil {
		return nil, fmt.Errorf("jurisdictional rules: %w", err)
	}
	if err := json.Unmarshal(raw, &s.Jurisdictional); err != nil {
		return nil, fmt.Errorf("jurisdictional rules %s: %w", p.JurisdictionalPath, err)
	}
	if len(s.Jurisdictional) == 0 {
		return nil, fmt.Errorf("jurisdictional rules %s: no jurisdictions defined", p.JurisdictionalPath)
	}

	if p.InstitutionsPath != "" {
		insts, err := loadInstitutions(p.InstitutionsPath)
		if err != nil {
			return nil, fmt.Errorf("institutions list: %w", err)
		}
		s.Institutions = insts
	}

	return s, nil
}

// Jurisdictions returns the sorted jurisdiction keys.
func (s *Set) Jurisdictions() []string {
	keys := make([]string, 0, len(s.Jurisdictional))
	for k := range s.Jurisdictional {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve returns the rule text for a jurisdiction. An unknown key
// falls back to the "default" entry unless strict resolution is
// enabled, in which case it returns ErrUnknownJurisdiction. An unknown
// key with no default entry is an error in either mode.
func (s *Set) Resolve(jurisdiction string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(jurisdiction))
	if key == "" {
		key = DefaultJurisdiction
	}

	if raw, ok := s.lookup(key); ok {
		return string(raw), nil
	}
	if s.strict {
		return "", fmt.Errorf("%w: %q", ErrUnknownJurisdiction, jurisdiction)
	}
	if raw, ok := s.lookup(DefaultJurisdiction); ok {
		if key != DefaultJurisdiction {
			slog.Warn("rules: unknown jurisdiction, using default", "jurisdiction", jurisdiction)
		}
		return string(raw), nil
	}
	return "", fmt.Errorf("%w: %q and no %q entry to fall back to",
		ErrUnknownJurisdiction, jurisdiction, DefaultJurisdiction)
}

// lookup matches jurisdiction keys case-insensitively.
func (s *Set) lookup(key string) (json.RawMessage, bool) {
	if raw, ok := s.Jurisdictional[key]; ok {
		return raw, true
	}
	for k, raw := range s.Jurisdictional {
		if strings.EqualFold(k, key) {
			return raw, true
		}
	}
	return nil, false
}

// JurisdictionalText renders the full jurisdictional mapping as JSON
// text for embedding into agent context.
func (s *Set) JurisdictionalText() string {
	b, _ := json.MarshalIndent(s.Jurisdictional, "", "  ")
	return string(b)
}

// readJSON reads a file and verifies it parses as JSON, returning the
// raw text.
func readJSON(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("%s: not valid JSON", path)
	}
	return string(raw), nil
}

// loadInstitutions reads the reference list. The file is a JSON array
// of institution name strings.
func loadInstitutions(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := names[:0]
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out, nil
}
