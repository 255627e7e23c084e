package crew

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prlgl/prlgl/llm"
	"github.com/prlgl/prlgl/rules"
)

// scriptedProvider replies with each scripted string in turn and records
// every request.
type scriptedProvider struct {
	replies  []string
	failAt   int // 1-based call index that errors; 0 disables
	calls    int
	requests []llm.ChatRequest
}

func (s *scriptedProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.calls++
	s.requests = append(s.requests, req)
	if s.failAt != 0 && s.calls == s.failAt {
		return nil, errors.New("provider down")
	}
	reply := "stage output"
	if len(s.replies) > 0 {
		reply = s.replies[0]
		s.replies = s.replies[1:]
	}
	return &llm.ChatResponse{Content: reply, Model: "test", FinishReason: "stop", TotalTokens: 10}, nil
}

func (s *scriptedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func testRules(t *testing.T) *rules.Set {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
		return path
	}
	rs, err := rules.Load(rules.Paths{
		CompliancePath:     write("compliance.json", `{"deposit": "max two months"}`),
		AuditPath:          write("audit.json", `{"checklist": ["parties named"]}`),
		JurisdictionalPath: write("jurisdictional.json", `{"default": {"notice": "30 days"}, "california": {"notice": "60 days"}}`),
	}, false)
	if err != nil {
		t.Fatalf("loading rules: %v", err)
	}
	return rs
}

func validDetails() RentalDetails {
	return RentalDetails{
		LandlordName:    "Ada Landlord",
		TenantName:      "Tom Tenant",
		PropertyAddress: "12 Main St",
		RentAmount:      1500,
		LeaseTermMonths: 12,
		Jurisdiction:    "california",
	}
}

func newTestCrew(t *testing.T, p *scriptedProvider) *Crew {
	t.Helper()
	g := llm.NewGateway(p, llm.GenerationParams{Model: "test"}, time.Minute)
	return New(g, testRules(t))
}

func TestRunExecutesAllStagesInOrder(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		"validated details", "compliance report", "draft agreement", "FINAL RENT AGREEMENT",
	}}
	c := newTestCrew(t, p)

	res, err := c.Run(context.Background(), validDetails())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if p.calls != 4 {
		t.Fatalf("got %d model calls, want 4", p.calls)
	}
	if len(res.Stages) != 4 {
		t.Fatalf("got %d stage records, want 4", len(res.Stages))
	}

	wantStages := []Stage{StageInfoGathering, StageJurisdictionalCheck, StageDrafting, StageReview}
	for i, w := range wantStages {
		if res.Stages[i].Stage != w {
			t.Errorf("stage %d = %s, want %s", i, res.Stages[i].Stage, w)
		}
	}
	if res.Contract != "FINAL RENT AGREEMENT" {
		t.Errorf("contract = %q", res.Contract)
	}
}

func TestRunThreadsStageOutputs(t *testing.T) {
	p := &scriptedProvider{replies: []string{"gathered info", "report", "draft", "final"}}
	c := newTestCrew(t, p)

	if _, err := c.Run(context.Background(), validDetails()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// The first stage gets no prior output; every later stage carries
	// its predecessor's output verbatim.
	first := p.requests[0].Messages[1].Content
	if strings.Contains(first, "previous stage") {
		t.Error("first stage prompt should have no prior output")
	}
	second := p.requests[1].Messages[1].Content
	if !strings.Contains(second, "gathered info") {
		t.Errorf("second stage prompt missing first stage output: %q", second)
	}
	fourth := p.requests[3].Messages[1].Content
	if !strings.Contains(fourth, "draft") {
		t.Errorf("review stage prompt missing draft: %q", fourth)
	}
}

func TestRunUsesJurisdictionRules(t *testing.T) {
	p := &scriptedProvider{}
	c := newTestCrew(t, p)

	if _, err := c.Run(context.Background(), validDetails()); err != nil {
		t.Fatalf("run: %v", err)
	}

	specialist := p.requests[1].Messages[0].Content
	if !strings.Contains(specialist, "60 days") {
		t.Errorf("specialist context missing california rules: %q", specialist)
	}
	drafter := p.requests[2].Messages[0].Content
	if !strings.Contains(drafter, "max two months") {
		t.Errorf("drafter context missing compliance rules: %q", drafter)
	}
	reviewer := p.requests[3].Messages[0].Content
	if !strings.Contains(reviewer, "parties named") {
		t.Errorf("reviewer context missing audit checklist: %q", reviewer)
	}
}

func TestRunStageFailureFailsWholeRun(t *testing.T) {
	p := &scriptedProvider{failAt: 3}
	c := newTestCrew(t, p)

	res, err := c.Run(context.Background(), validDetails())
	if !errors.Is(err, ErrStageFailed) {
		t.Fatalf("expected ErrStageFailed, got %v", err)
	}
	if res != nil {
		t.Error("partial result returned after stage failure")
	}
	if !strings.Contains(err.Error(), string(StageDrafting)) {
		t.Errorf("error does not name the failed stage: %v", err)
	}
	if p.calls != 3 {
		t.Errorf("pipeline continued after failure: %d calls", p.calls)
	}
}

func TestRunRejectsInvalidDetails(t *testing.T) {
	p := &scriptedProvider{}
	c := newTestCrew(t, p)

	d := validDetails()
	d.RentAmount = -100
	_, err := c.Run(context.Background(), d)
	if !errors.Is(err, ErrInvalidDetails) {
		t.Fatalf("expected ErrInvalidDetails, got %v", err)
	}
	if p.calls != 0 {
		t.Errorf("invalid details reached the model: %d calls", p.calls)
	}
}

func TestRunUnknownJurisdictionFallsBack(t *testing.T) {
	p := &scriptedProvider{}
	c := newTestCrew(t, p)

	d := validDetails()
	d.Jurisdiction = "atlantis"
	if _, err := c.Run(context.Background(), d); err != nil {
		t.Fatalf("run with unknown jurisdiction: %v", err)
	}
	specialist := p.requests[1].Messages[0].Content
	if !strings.Contains(specialist, "30 days") {
		t.Errorf("specialist context missing default rules: %q", specialist)
	}
}

func TestCleanContract(t *testing.T) {
	got := CleanContract("**RENT AGREEMENT**\n\n*1. Parties*\n")
	if strings.Contains(got, "*") {
		t.Errorf("asterisks not stripped: %q", got)
	}
	if !strings.HasPrefix(got, "RENT AGREEMENT") {
		t.Errorf("content mangled: %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RentalDetails)
		wantOK bool
	}{
		{"valid", func(d *RentalDetails) {}, true},
		{"negative rent", func(d *RentalDetails) { d.RentAmount = -100 }, false},
		{"zero rent", func(d *RentalDetails) { d.RentAmount = 0 }, false},
		{"missing landlord", func(d *RentalDetails) { d.LandlordName = " " }, false},
		{"missing tenant", func(d *RentalDetails) { d.TenantName = "" }, false},
		{"missing address", func(d *RentalDetails) { d.PropertyAddress = "" }, false},
		{"zero lease term", func(d *RentalDetails) { d.LeaseTermMonths = 0 }, false},
		{"negative deposit", func(d *RentalDetails) { d.SecurityDeposit = -1 }, false},
		{"zero deposit ok", func(d *RentalDetails) { d.SecurityDeposit = 0 }, true},
		{"due day too late", func(d *RentalDetails) { d.PaymentDueDay = 31 }, false},
		{"due day in range", func(d *RentalDetails) { d.PaymentDueDay = 15 }, true},
		{"bad start date", func(d *RentalDetails) { d.StartDate = "next tuesday" }, false},
		{"iso start date", func(d *RentalDetails) { d.StartDate = "2026-09-01" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDetails()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantOK && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.wantOK {
				if !errors.Is(err, ErrInvalidDetails) {
					t.Errorf("expected ErrInvalidDetails, got %v", err)
				}
			}
		})
	}
}
