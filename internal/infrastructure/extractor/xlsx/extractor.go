package xlsx

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/avdeenko/docqa/internal/core/domain"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract renders each sheet as one unit, rows joined by newlines and cells
// by " | ". The sheet position stands in for the page number so spreadsheet
// answers can still cite a location.
func (e *Extractor) Extract(_ context.Context, data []byte) ([]domain.Unit, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var units []domain.Unit
	for sheetIdx, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
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
		text := strings.TrimSpace(b.String())
		if text == sheet {
			continue
		}
		pageNo := sheetIdx + 1
		units = append(units, domain.Unit{Text: text, Page: &pageNo})
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("workbook contains no data")
	}
	return units, nil
}
