package rows

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cognicore/docasm/pkg/docasm/dataset"
)

// Options controls how an input file becomes rows
type Options struct {
	Format   string // jsonl or xlsx; empty picks by file extension
	Sheet    string // xlsx only; empty reads the first sheet
	HTMLCols []string
}

// Load reads rows from path and strips HTML from the configured columns
func Load(path string, opts Options) ([]dataset.Row, error) {
	format := strings.ToLower(opts.Format)
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".xlsx", ".xlsm":
			format = "xlsx"
		default:
			format = "jsonl"
		}
	}

	var (
		out []dataset.Row
		err error
	)
	switch format {
	case "jsonl":
		out, err = LoadFromJSONL(path)
	case "xlsx":
		out, err = LoadFromXLSX(path, opts.Sheet)
	default:
		return nil, fmt.Errorf("unsupported input format %q", opts.Format)
	}
	if err != nil {
		return nil, err
	}

	StripHTMLColumns(out, opts.HTMLCols)
	return out, nil
}
