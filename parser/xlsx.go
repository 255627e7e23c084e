package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser handles spreadsheet annexes (rent schedules, utility
// breakdowns) that accompany rental agreements. Each sheet becomes one
// page, rows rendered as pipe-separated lines so the chunker sees
// coherent text.
type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx", "xlsm"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet: %w", err)
	}
	defer f.Close()

	var pages []Page
	for i, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
		}

		var b strings.Builder
		b.WriteString(sheet)
		b.WriteString("\n")
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " | "))
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteString("\n")
		}

		content := strings.TrimSpace(b.String())
		if content == sheet {
			continue // empty sheet
		}
		pages = append(pages, Page{Number: i + 1, Content: content})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no data in any sheet")
	}

	return &ParseResult{Pages: pages, Method: "native"}, nil
}
