package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryFormats(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		format string
		wantOK bool
	}{
		{"pdf", true},
		{"txt", true},
		{"xlsx", true},
		{"xlsm", true},
		{"docx", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			_, err := r.Get(tt.format)
			if (err == nil) != tt.wantOK {
				t.Errorf("Get(%q) err = %v, want ok=%v", tt.format, err, tt.wantOK)
			}
		})
	}
}

func TestRegistryRegisterOverride(t *testing.T) {
	r := NewRegistry()
	custom := &TextParser{}
	r.Register("pdf", custom)

	p, err := r.Get("pdf")
	if err != nil {
		t.Fatalf("Get(pdf) after override: %v", err)
	}
	if _, ok := p.(*TextParser); !ok {
		t.Errorf("override not applied, got %T", p)
	}
}

func TestTextParser(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lease.txt")
	content := "1.1 The tenant shall pay rent monthly.\n1.2 The deposit is refundable."
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	p := &TextParser{}
	res, err := p.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(res.Pages))
	}
	if res.Pages[0].Content != content {
		t.Errorf("content mismatch: %q", res.Pages[0].Content)
	}
	if res.Method != "native" {
		t.Errorf("method = %q, want native", res.Method)
	}
}

func TestTextParserMissingFile(t *testing.T) {
	p := &TextParser{}
	if _, err := p.Parse(context.Background(), "/does/not/exist.txt"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPDFParserCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	if err := os.WriteFile(path, []byte("not a pdf at all"), 0644); err != nil {
		t.Fatal(err)
	}

	p := &PDFParser{}
	if _, err := p.Parse(context.Background(), path); err == nil {
		t.Fatal("expected parse error for corrupt PDF")
	}
}

func TestNormalizePageText(t *testing.T) {
	in := "  ARTICLE   1  \n\n   The  parties   agree.  "
	want := "ARTICLE 1\n\nThe parties agree."
	if got := normalizePageText(in); got != want {
		t.Errorf("normalizePageText = %q, want %q", got, want)
	}
}
