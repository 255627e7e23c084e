package crew

import (
	"fmt"
	"strings"
)

// Agent is one drafting persona: a role with a goal, backstory, and the
// static context it reasons from.
type Agent struct {
	Role      string
	Goal      string
	Backstory string
	Context   string
}

// systemPrompt renders the agent's persona as the conversation's system
// message.
func (a Agent) systemPrompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s. %s\n\nYour goal: %s\n", a.Role, a.Backstory, a.Goal)
	if a.Context != "" {
		fmt.Fprintf(&sb, "\nContext:\n%s\n", a.Context)
	}
	return sb.String()
}

// Task is one unit of work assigned to an agent.
type Task struct {
	Description    string
	ExpectedOutput string
	Agent          Agent
}

// userPrompt renders the task as the conversation's user message,
// appending the prior stage's output so data flows explicitly through
// the pipeline.
func (t Task) userPrompt(priorOutput string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(t.Description))
	fmt.Fprintf(&sb, "\n\nExpected output: %s\n", t.ExpectedOutput)
	if priorOutput != "" {
		fmt.Fprintf(&sb, "\nOutput of the previous stage:\n%s\n", priorOutput)
	}
	return sb.String()
}

// infoGathererAgent validates the rental information.
func infoGathererAgent(details RentalDetails) Agent {
	return Agent{
		Role:      "Information Gatherer",
		Goal:      "Process and validate the provided rental information",
		Backstory: "I am an expert at collecting and validating rental agreement information.",
		Context:   fmt.Sprintf("Working with rental details: %s", details.JSON()),
	}
}

// legalSpecialistAgent checks jurisdiction-specific compliance.
func legalSpecialistAgent(details RentalDetails, jurisdictionalRules string) Agent {
	return Agent{
		Role:      "Legal Specialist",
		Goal:      "Ensure the agreement complies with jurisdiction-specific laws",
		Backstory: "I am a legal specialist with expertise in rental law across multiple jurisdictions.",
		Context: fmt.Sprintf("Jurisdictional rules: %s\n\nRental details: %s",
			jurisdictionalRules, details.JSON()),
	}
}

// contractDrafterAgent writes the agreement.
func contractDrafterAgent(details RentalDetails, complianceRules string) Agent {
	return Agent{
		Role:      "Legal Contract Drafter",
		Goal:      "Draft a comprehensive rent agreement following legal requirements",
		Backstory: "I am an expert legal document drafter specializing in rental agreements.",
		Context: fmt.Sprintf("Using compliance rules: %s\n\nRental details: %s",
			complianceRules, details.JSON()),
	}
}

// contractReviewerAgent finalizes the agreement against the audit
// checklist.
func contractReviewerAgent(details RentalDetails, auditChecklist string) Agent {
	return Agent{
		Role:      "Legal Document Reviewer",
		Goal:      "Review and finalize the rent agreement ensuring all requirements are met",
		Backstory: "I am a legal document reviewer ensuring compliance and completeness.",
		Context: fmt.Sprintf("Using audit requirements: %s\n\nRental details: %s",
			auditChecklist, details.JSON()),
	}
}
