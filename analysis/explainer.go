// Package analysis turns retrieved agreement context and model replies
// into structured clause findings.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prlgl/prlgl/llm"
	"github.com/prlgl/prlgl/store"
)

// ErrMalformedReply is returned when the model's reply cannot be
// validated against the expected shape, even after one corrective
// round trip.
var ErrMalformedReply = errors.New("analysis: malformed model reply")

// ContextRetriever supplies the knowledge-base context for a clause.
// retrieval.Engine satisfies this.
type ContextRetriever interface {
	Context(ctx context.Context, query string, k int) (string, error)
}

// AuditLogger records completed analysis operations. store.Store
// satisfies this; a nil logger disables auditing.
type AuditLogger interface {
	LogAnalysis(ctx context.Context, l store.AnalysisLog) error
}

// ExplainRequest describes one clause to examine.
type ExplainRequest struct {
	Clause string
	Rule   string
	// ErrPhrase is the specific problematic phrase matched by rule
	// checking. When empty the clause is examined under the
	// wrong-institution template instead.
	ErrPhrase string
}

// ExplainResult is the validated outcome of a clause examination.
type ExplainResult struct {
	NoIssue  bool      `json:"no_issue"`
	Findings []Finding `json:"findings,omitempty"`
	// Context is the retrieved knowledge-base text the judgment was
	// grounded on.
	Context string `json:"context,omitempty"`
}

// ClauseExplainer combines retrieved context with a detected rule
// violation and asks the model for a structured judgment.
type ClauseExplainer struct {
	gateway   *llm.Gateway
	retriever ContextRetriever
	audit     AuditLogger
	topK      int
}

// NewClauseExplainer creates an explainer. audit may be nil.
func NewClauseExplainer(g *llm.Gateway, r ContextRetriever, audit AuditLogger, topK int) *ClauseExplainer {
	if topK <= 0 {
		topK = 5
	}
	return &ClauseExplainer{gateway: g, retriever: r, audit: audit, topK: topK}
}

// Explain examines a clause and returns either the no-issue marker or
// one or more findings. A reply that fails validation is retried once
// with a corrective prompt before ErrMalformedReply is surfaced.
func (e *ClauseExplainer) Explain(ctx context.Context, req ExplainRequest) (*ExplainResult, error) {
	if req.Clause == "" {
		return nil, fmt.Errorf("explain: clause is required")
	}

	kbContext, err := e.retriever.Context(ctx, req.Clause, e.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	var prompt string
	if req.ErrPhrase != "" {
		prompt = matchedErrorTemplate(kbContext, req.Rule, req.Clause, req.ErrPhrase)
	} else {
		prompt = wrongInstitutionTemplate(kbContext, req.Clause)
	}

	messages := []llm.Message{
		{Role: "system", Content: explainerSystemPrompt},
		{Role: "user", Content: prompt},
	}

	reply, err := e.complete(ctx, messages, func(text string) error {
		_, _, perr := parseFindings(text)
		return perr
	})
	if err != nil {
		return nil, err
	}

	noIssue, findings, _ := parseFindings(reply.Content)
	result := &ExplainResult{NoIssue: noIssue, Findings: findings, Context: kbContext}

	e.log(ctx, "explain_clause", req.Clause, reply)
	return result, nil
}

// complete sends the conversation and validates the reply, retrying
// once with a corrective prompt on validation failure. Provider JSON
// mode is not used here: it forces a top-level JSON object, while the
// reply contract is either the bare no-issue marker or a top-level
// array, so the shape is enforced by validation and retry instead.
func (e *ClauseExplainer) complete(ctx context.Context, messages []llm.Message, validate func(string) error) (*llm.ChatResponse, error) {
	reply, err := e.gateway.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	verr := validate(reply.Content)
	if verr == nil {
		return reply, nil
	}

	slog.Debug("analysis: reply failed validation, retrying once", "error", verr)

	retry := append(messages,
		llm.Message{Role: "assistant", Content: reply.Content},
		llm.Message{Role: "user", Content: correctivePrompt},
	)
	reply, err = e.gateway.Complete(ctx, retry)
	if err != nil {
		return nil, err
	}
	if verr = validate(reply.Content); verr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, verr)
	}
	return reply, nil
}

func (e *ClauseExplainer) log(ctx context.Context, op, input string, reply *llm.ChatResponse) {
	if e.audit == nil {
		return
	}
	logAnalysis(ctx, e.audit, op, input, reply)
}

func logAnalysis(ctx context.Context, audit AuditLogger, op, input string, reply *llm.ChatResponse) {
	err := audit.LogAnalysis(ctx, store.AnalysisLog{
		Operation:        op,
		Input:            input,
		Output:           reply.Content,
		ModelUsed:        reply.Model,
		PromptTokens:     reply.PromptTokens,
		CompletionTokens: reply.CompletionTokens,
		TotalTokens:      reply.TotalTokens,
	})
	if err != nil {
		slog.Warn("analysis: audit log write failed", "operation", op, "error", err)
	}
}
