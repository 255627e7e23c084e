package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/prlgl/prlgl/llm"
)

// InstitutionFinding is one extracted institution name with its
// reference-list verdict.
type InstitutionFinding struct {
	Name string `json:"name"`
	// Suspicious is set when the name is absent from the known
	// institutions reference list.
	Suspicious bool `json:"suspicious"`
}

// InstitutionExtractor asks the model to name legal institutions
// referenced in a clause, then locally re-validates candidates with a
// proper-noun filter and a reference list of known institutions.
type InstitutionExtractor struct {
	gateway *llm.Gateway
	audit   AuditLogger
	known   map[string]struct{}
}

// NewInstitutionExtractor creates an extractor. known is the reference
// list of recognized institution names; audit may be nil.
func NewInstitutionExtractor(g *llm.Gateway, known []string, audit AuditLogger) *InstitutionExtractor {
	m := make(map[string]struct{}, len(known))
	for _, k := range known {
		m[normalizeName(k)] = struct{}{}
	}
	return &InstitutionExtractor{gateway: g, audit: audit, known: m}
}

// Extract returns the institution names referenced in a clause, or the
// single-element marker list when none survive filtering. Candidate
// names are kept only when at least one constituent word is title-cased,
// since model output may include lowercase fragments that are not
// genuine institution names.
func (x *InstitutionExtractor) Extract(ctx context.Context, clause string) ([]string, error) {
	if clause == "" {
		return nil, fmt.Errorf("extract: clause is required")
	}

	messages := []llm.Message{
		{Role: "system", Content: extractorSystemPrompt},
		{Role: "user", Content: clause},
	}

	reply, err := x.complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	names, _ := parseInstitutions(reply.Content)

	var kept []string
	for _, name := range names {
		if name == NoInstitutionsMarker {
			continue
		}
		if hasTitleCasedWord(name) {
			kept = append(kept, name)
		}
	}
	if len(kept) == 0 {
		kept = []string{NoInstitutionsMarker}
	}

	x.log(ctx, "extract_institutions", clause, reply)
	return kept, nil
}

// ExtractVerified runs Extract and cross-checks each name against the
// known institutions reference list, marking unrecognized names as
// suspicious. A clause naming no institutions yields a nil slice.
func (x *InstitutionExtractor) ExtractVerified(ctx context.Context, clause string) ([]InstitutionFinding, error) {
	names, err := x.Extract(ctx, clause)
	if err != nil {
		return nil, err
	}

	var findings []InstitutionFinding
	for _, name := range names {
		if name == NoInstitutionsMarker {
			continue
		}
		_, ok := x.known[normalizeName(name)]
		findings = append(findings, InstitutionFinding{Name: name, Suspicious: !ok})
	}
	return findings, nil
}

// complete validates the reply shape locally, as in ClauseExplainer.
// The contract is a top-level JSON array, which provider JSON mode
// cannot express.
func (x *InstitutionExtractor) complete(ctx context.Context, messages []llm.Message) (*llm.ChatResponse, error) {
	reply, err := x.gateway.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	_, verr := parseInstitutions(reply.Content)
	if verr == nil {
		return reply, nil
	}
	slog.Debug("analysis: extractor reply failed validation, retrying once", "error", verr)

	retry := append(messages,
		llm.Message{Role: "assistant", Content: reply.Content},
		llm.Message{Role: "user", Content: correctivePrompt},
	)
	reply, err = x.gateway.Complete(ctx, retry)
	if err != nil {
		return nil, err
	}
	if _, verr := parseInstitutions(reply.Content); verr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, verr)
	}
	return reply, nil
}

func (x *InstitutionExtractor) log(ctx context.Context, op, input string, reply *llm.ChatResponse) {
	if x.audit == nil {
		return
	}
	logAnalysis(ctx, x.audit, op, input, reply)
}

// hasTitleCasedWord reports whether at least one word in name is
// title-cased: an upper-case first letter followed by lower-case
// letters.
func hasTitleCasedWord(name string) bool {
	for _, word := range strings.Fields(name) {
		if isTitleWord(word) {
			return true
		}
	}
	return false
}

func isTitleWord(word string) bool {
	runes := []rune(strings.Trim(word, ".,;:'\""))
	if len(runes) == 0 || !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if unicode.IsLetter(r) && !unicode.IsLower(r) {
			return false
		}
	}
	return true
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
