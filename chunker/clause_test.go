package chunker

import (
	"strings"
	"testing"
)

func TestDetectClauseBoundaries(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{
			name: "numbered clauses",
			text: "1.1 First provision.\n1.2 Second provision.\n1.3 Third provision.",
			want: 3,
		},
		{
			name: "nested numbering",
			text: "2.1 Parent clause.\n2.1.1 Sub clause.\n2.1.2 Another sub clause.",
			want: 3,
		},
		{
			name: "no clauses",
			text: "This agreement has no numbered structure at all.",
			want: 0,
		},
		{
			name: "plain integers ignored",
			text: "1 is a page number\n2 is another",
			want: 0,
		},
		{
			name: "indented clause lines",
			text: "  3.1 Indented provision.\n\t3.2 Tab-indented provision.",
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectClauseBoundaries(tt.text)
			if len(got) != tt.want {
				t.Errorf("got %d boundaries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSplitByClauses(t *testing.T) {
	text := "PREAMBLE: the parties agree as follows.\n" +
		"1.1 Rent is due monthly.\n" +
		"1.2 The deposit is refundable.\n" +
		"1.3 Notice must be in writing."

	parts := SplitByClauses(text)
	if len(parts) != 4 {
		t.Fatalf("got %d parts, want 4: %q", len(parts), parts)
	}
	if !strings.HasPrefix(parts[0], "PREAMBLE") {
		t.Errorf("first part should be the preamble, got %q", parts[0])
	}
	for i, want := range []string{"1.1", "1.2", "1.3"} {
		if !strings.HasPrefix(parts[i+1], want) {
			t.Errorf("part %d = %q, want prefix %q", i+1, parts[i+1], want)
		}
	}
}

func TestSplitByClausesNoNumbering(t *testing.T) {
	text := "An informal note with no clause structure."
	parts := SplitByClauses(text)
	if len(parts) != 1 || parts[0] != text {
		t.Errorf("got %q, want the input back as a single part", parts)
	}
}

func TestExtractClauseNumber(t *testing.T) {
	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{"4.2 The tenant shall maintain the premises.", "4.2", true},
		{"  10.3.1 Subletting requires consent.", "10.3.1", true},
		{"The tenant shall pay rent.", "", false},
		{"4 lone integer is not a clause", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ExtractClauseNumber(tt.text)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ExtractClauseNumber(%q) = (%q, %v), want (%q, %v)",
				tt.text, got, ok, tt.want, tt.wantOK)
		}
	}
}
