// Package crew drafts rental agreements through a sequential pipeline
// of specialized agents: information gathering, jurisdictional
// compliance, drafting, and review. Each stage consumes the previous
// stage's output explicitly rather than re-deriving it from static
// context.
package crew

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prlgl/prlgl/llm"
	"github.com/prlgl/prlgl/rules"
)

// ErrStageFailed is returned when any pipeline stage's model call
// fails. A failed stage fails the whole run; no partial contract is
// returned.
var ErrStageFailed = errors.New("crew: stage failed")

// Stage identifies one step of the drafting pipeline.
type Stage string

const (
	StageInfoGathering       Stage = "INFO_GATHERING"
	StageJurisdictionalCheck Stage = "JURISDICTIONAL_CHECK"
	StageDrafting            Stage = "DRAFTING"
	StageReview              Stage = "REVIEW"
	StageDone                Stage = "DONE"
)

// StageRecord captures one completed stage's typed output.
type StageRecord struct {
	Stage     Stage  `json:"stage"`
	Agent     string `json:"agent"`
	Output    string `json:"output"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Tokens    int    `json:"tokens"`
}

// RunResult is the outcome of a full drafting run.
type RunResult struct {
	// Contract is the review stage's final text with markdown
	// asterisks stripped, ready for document rendering.
	Contract string        `json:"contract"`
	Stages   []StageRecord `json:"stages"`
}

// Crew orchestrates the four-stage drafting pipeline.
type Crew struct {
	gateway *llm.Gateway
	rules   *rules.Set
}

// New creates a drafting crew over the given gateway and rule set.
func New(g *llm.Gateway, rs *rules.Set) *Crew {
	return &Crew{gateway: g, rules: rs}
}

// Run validates the details, resolves the jurisdiction's rules, and
// executes the pipeline stages strictly in order, threading each
// stage's output into the next stage's prompt. The review stage's
// output becomes the finished contract.
func (c *Crew) Run(ctx context.Context, details RentalDetails) (*RunResult, error) {
	if err := details.Validate(); err != nil {
		return nil, err
	}

	jurisdictionalRules, err := c.rules.Resolve(details.Jurisdiction)
	if err != nil {
		return nil, err
	}

	stages := []struct {
		stage Stage
		task  Task
	}{
		{StageInfoGathering, Task{
			Description: fmt.Sprintf(
				"Process and validate the following rental information:\n%s\nEnsure all required fields are present and valid.",
				details.JSON()),
			ExpectedOutput: "Validated rental information in JSON format",
			Agent:          infoGathererAgent(details),
		}},
		{StageJurisdictionalCheck, Task{
			Description:    "Review the agreement requirements for jurisdiction-specific compliance.",
			ExpectedOutput: "Compliance report and required modifications",
			Agent:          legalSpecialistAgent(details, jurisdictionalRules),
		}},
		{StageDrafting, Task{
			Description:    "Draft a rent agreement following legal requirements and best practices.",
			ExpectedOutput: "Complete rent agreement text content",
			Agent:          contractDrafterAgent(details, c.rules.Compliance),
		}},
		{StageReview, Task{
			Description:    "Review and finalize the rent agreement ensuring compliance.",
			ExpectedOutput: "Final validated rent agreement ready for document generation",
			Agent:          contractReviewerAgent(details, c.rules.Audit),
		}},
	}

	result := &RunResult{Stages: make([]StageRecord, 0, len(stages))}
	priorOutput := ""

	for _, s := range stages {
		record, err := c.runStage(ctx, s.stage, s.task, priorOutput)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrStageFailed, s.stage, err)
		}
		result.Stages = append(result.Stages, *record)
		priorOutput = record.Output
	}

	result.Contract = CleanContract(priorOutput)
	slog.Info("crew: drafting run complete",
		"stages", len(result.Stages),
		"contract_chars", len(result.Contract))
	return result, nil
}

func (c *Crew) runStage(ctx context.Context, stage Stage, task Task, priorOutput string) (*StageRecord, error) {
	start := time.Now()

	messages := []llm.Message{
		{Role: "system", Content: task.Agent.systemPrompt()},
		{Role: "user", Content: task.userPrompt(priorOutput)},
	}

	reply, err := c.gateway.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	record := &StageRecord{
		Stage:     stage,
		Agent:     task.Agent.Role,
		Output:    reply.Content,
		ElapsedMs: time.Since(start).Milliseconds(),
		Tokens:    reply.TotalTokens,
	}
	slog.Debug("crew: stage complete",
		"stage", stage,
		"agent", task.Agent.Role,
		"elapsed_ms", record.ElapsedMs)
	return record, nil
}

// CleanContract strips markdown emphasis asterisks from drafted text so
// the output is plain contract prose.
func CleanContract(content string) string {
	return strings.TrimSpace(strings.ReplaceAll(content, "*", ""))
}
