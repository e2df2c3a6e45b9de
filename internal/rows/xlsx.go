package rows

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/cognicore/docasm/pkg/docasm/dataset"
)

// LoadFromXLSX reads a worksheet whose first row holds column names.
// Every cell becomes a string; empty cells become null.
func LoadFromXLSX(path, sheet string) ([]dataset.Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, fmt.Errorf("no sheets found in %s", path)
	}

	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(cells) < 2 {
		return nil, fmt.Errorf("sheet %q needs a header row and at least one data row", sheet)
	}

	headers := make([]string, len(cells[0]))
	for i, h := range cells[0] {
		headers[i] = strings.TrimSpace(h)
	}

	var out []dataset.Row
	for _, record := range cells[1:] {
		if isEmptyRecord(record) {
			continue
		}
		row := make(dataset.Row, len(headers))
		for i, name := range headers {
			if name == "" {
				continue
			}
			if i < len(record) && record[i] != "" {
				row[name] = record[i]
			} else {
				row[name] = nil
			}
		}
		out = append(out, row)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no data rows found in sheet %q", sheet)
	}
	return out, nil
}

func isEmptyRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
