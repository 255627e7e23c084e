// Command e2e_test runs a live end-to-end smoke test against a real
// provider: index a sample agreement, explain a flagged clause, extract
// institutions, and draft a contract.
//
// Usage:
//
//	OPENAI_API_KEY=... go run ./cmd/e2e_test
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prlgl/prlgl"
	"github.com/prlgl/prlgl/analysis"
	"github.com/prlgl/prlgl/crew"
)

const sampleAgreement = `RENTAL AGREEMENT

1.1 Security Deposit. The tenant shall pay a non-refundable deposit of
three months rent before taking possession of the premises.

1.2 Notice. Either party may terminate this agreement with 30 days
written notice.

2.1 Dispute Resolution. Any dispute arising under this agreement shall
be referred to the International Chamber of Commerce for arbitration.
`

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "OPENAI_API_KEY not set")
		os.Exit(1)
	}

	tmpDir, _ := os.MkdirTemp("", "prlgl-e2e-*")
	defer os.RemoveAll(tmpDir)

	rulePaths := writeRuleFiles(tmpDir)

	cfg := prlgl.DefaultConfig()
	cfg.StorageDir = filepath.Join(tmpDir, "sessions")
	cfg.Chat.APIKey = apiKey
	cfg.Embedding.APIKey = apiKey
	cfg.ComplianceRulesPath = rulePaths["compliance"]
	cfg.AuditChecklistPath = rulePaths["audit"]
	cfg.JurisdictionalRulesPath = rulePaths["jurisdictional"]
	cfg.InstitutionsPath = rulePaths["institutions"]

	engine, err := prlgl.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	sess, err := engine.NewSession(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating session: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	// Index
	docPath := filepath.Join(tmpDir, "agreement.txt")
	os.WriteFile(docPath, []byte(sampleAgreement), 0644)
	fmt.Fprintf(os.Stderr, "\n=== INDEXING %s ===\n", docPath)
	docID, err := sess.Index(ctx, docPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "index error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Indexed doc_id=%d\n", docID)

	// Explain a clause flagged by rule checking
	clause := "The tenant shall pay a non-refundable deposit of three months rent."
	fmt.Fprintf(os.Stderr, "\n=== ANALYZING CLAUSE ===\n%s\n", clause)
	explained, err := sess.ExplainClause(ctx, analysis.ExplainRequest{
		Clause:    clause,
		Rule:      "Security deposit must not exceed two months rent.",
		ErrPhrase: "non-refundable",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze error: %v\n", err)
		os.Exit(1)
	}
	printJSON("analysis", explained)

	// Extract institutions
	instClause := "Any dispute shall be referred to the International Chamber of Commerce."
	findings, err := sess.ExtractInstitutions(ctx, instClause)
	if err != nil {
		fmt.Fprintf(os.Stderr, "extract error: %v\n", err)
		os.Exit(1)
	}
	printJSON("institutions", findings)

	// Draft
	fmt.Fprintln(os.Stderr, "\n=== DRAFTING CONTRACT ===")
	draft, err := engine.Draft(ctx, crew.RentalDetails{
		LandlordName:    "Jane Doe",
		TenantName:      "John Roe",
		PropertyAddress: "12 Main St, Springfield",
		RentAmount:      1500,
		LeaseTermMonths: 12,
		Jurisdiction:    "default",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "draft error: %v\n", err)
		os.Exit(1)
	}
	for _, stage := range draft.Stages {
		fmt.Fprintf(os.Stderr, "stage %s (%s) completed in %dms\n",
			stage.Stage, stage.Agent, stage.ElapsedMs)
	}
	fmt.Println(draft.Contract)
}

func writeRuleFiles(dir string) map[string]string {
	files := map[string]string{
		"compliance":     `{"deposit": "Security deposit must not exceed two months rent and must be refundable."}`,
		"audit":          `{"parties": "Both parties must be identified by full legal name."}`,
		"jurisdictional": `{"default": "Notice period is 30 days.", "california": "Notice period is 60 days."}`,
		"institutions":   `["International Chamber of Commerce", "American Arbitration Association"]`,
	}
	paths := make(map[string]string, len(files))
	for name, content := range files {
		path := filepath.Join(dir, name+".json")
		os.WriteFile(path, []byte(content), 0644)
		paths[name] = path
	}
	return paths
}

func printJSON(label string, v interface{}) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintf(os.Stderr, "\n=== %s ===\n%s\n", label, out)
}
