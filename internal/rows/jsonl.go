package rows

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/cognicore/docasm/pkg/docasm/dataset"
)

// LoadFromJSONL loads one row per line. Malformed lines are logged and skipped.
func LoadFromJSONL(path string) ([]dataset.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	var out []dataset.Row
	lines := strings.Split(string(data), "\n")

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var row dataset.Row
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			log.Printf("Warning: skipping malformed JSON at line %d in %s: %v", i+1, path, err)
			continue
		}
		if row == nil {
			log.Printf("Warning: skipping null row at line %d in %s", i+1, path)
			continue
		}
		out = append(out, row)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no valid rows found in %s", path)
	}

	return out, nil
}
