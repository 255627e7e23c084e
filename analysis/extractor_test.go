package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prlgl/prlgl/llm"
)

func newTestExtractor(p *scriptedProvider, known []string) *InstitutionExtractor {
	g := llm.NewGateway(p, llm.GenerationParams{Model: "test"}, time.Minute)
	return NewInstitutionExtractor(g, known, nil)
}

func TestExtractInstitutions(t *testing.T) {
	p := &scriptedProvider{replies: []string{`["American Arbitration Association", "Superior Court"]`}}
	x := newTestExtractor(p, nil)

	names, err := x.Extract(context.Background(), "Disputes go to the American Arbitration Association or the Superior Court.")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("got %v, want 2 names", names)
	}
}

func TestExtractFiltersLowercase(t *testing.T) {
	p := &scriptedProvider{replies: []string{`["the arbitration body", "District Court", "some tribunal"]`}}
	x := newTestExtractor(p, nil)

	names, err := x.Extract(context.Background(), "clause")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(names) != 1 || names[0] != "District Court" {
		t.Errorf("got %v, want only District Court", names)
	}
}

func TestExtractNoneFound(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"marker reply", `["No legal institutions found"]`},
		{"all filtered out", `["the tenant", "a landlord"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{replies: []string{tt.reply}}
			x := newTestExtractor(p, nil)

			names, err := x.Extract(context.Background(), "Rent is due monthly.")
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if len(names) != 1 || names[0] != NoInstitutionsMarker {
				t.Errorf("got %v, want the marker list", names)
			}
		})
	}
}

func TestExtractEveryKeptNameHasTitleCasedWord(t *testing.T) {
	p := &scriptedProvider{replies: []string{`["ICC Court", "lowercase body", "Landlord-Tenant Board"]`}}
	x := newTestExtractor(p, nil)

	names, err := x.Extract(context.Background(), "clause")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	for _, n := range names {
		if n != NoInstitutionsMarker && !hasTitleCasedWord(n) {
			t.Errorf("kept name %q has no title-cased word", n)
		}
	}
}

func TestExtractVerifiedMarksUnknownSuspicious(t *testing.T) {
	p := &scriptedProvider{replies: []string{`["Xanadu Arbitration Council"]`}}
	x := newTestExtractor(p, []string{"American Arbitration Association", "JAMS"})

	findings, err := x.ExtractVerified(context.Background(),
		"Disputes shall be resolved by the Xanadu Arbitration Council.")
	if err != nil {
		t.Fatalf("extract verified: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	if findings[0].Name != "Xanadu Arbitration Council" {
		t.Errorf("name = %q", findings[0].Name)
	}
	if !findings[0].Suspicious {
		t.Error("unknown institution not marked suspicious")
	}
}

func TestExtractVerifiedKnownNotSuspicious(t *testing.T) {
	p := &scriptedProvider{replies: []string{`["American Arbitration Association"]`}}
	x := newTestExtractor(p, []string{"american arbitration association"})

	findings, err := x.ExtractVerified(context.Background(), "clause")
	if err != nil {
		t.Fatalf("extract verified: %v", err)
	}
	if len(findings) != 1 || findings[0].Suspicious {
		t.Errorf("known institution marked suspicious: %+v", findings)
	}
}

func TestExtractVerifiedNone(t *testing.T) {
	p := &scriptedProvider{replies: []string{`["No legal institutions found"]`}}
	x := newTestExtractor(p, nil)

	findings, err := x.ExtractVerified(context.Background(), "Rent is due monthly.")
	if err != nil {
		t.Fatalf("extract verified: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("got %d findings, want none", len(findings))
	}
}

func TestExtractCorrectiveRetry(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		"The institutions mentioned are the ICC and the LCIA.",
		`["ICC Court", "LCIA Court"]`,
	}}
	x := newTestExtractor(p, nil)

	names, err := x.Extract(context.Background(), "clause")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("got %v after retry", names)
	}
	if len(p.requests) != 2 {
		t.Errorf("expected exactly 2 calls, got %d", len(p.requests))
	}
}

func TestExtractMalformedAfterRetry(t *testing.T) {
	p := &scriptedProvider{replies: []string{"prose", "more prose"}}
	x := newTestExtractor(p, nil)

	_, err := x.Extract(context.Background(), "clause")
	if !errors.Is(err, ErrMalformedReply) {
		t.Fatalf("expected ErrMalformedReply, got %v", err)
	}
}

func TestIsTitleWord(t *testing.T) {
	tests := []struct {
		word string
		want bool
	}{
		{"Council", true},
		{"Court,", true},
		{"ICC", false}, // all-caps is not title case
		{"tribunal", false},
		{"", false},
		{"Xanadu", true},
	}
	for _, tt := range tests {
		if got := isTitleWord(tt.word); got != tt.want {
			t.Errorf("isTitleWord(%q) = %v, want %v", tt.word, got, tt.want)
		}
	}
}
