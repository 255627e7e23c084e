package parser

import "context"

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Pages  []Page // Ordered page-level texts extracted from the document
	Method string // "native"
}

// Page is one page (or sheet) of extracted document text.
type Page struct {
	Number  int
	Content string
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
