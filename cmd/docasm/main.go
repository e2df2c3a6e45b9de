package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/cognicore/docasm/internal/rows"
	"github.com/cognicore/docasm/pkg/docasm"
	"github.com/cognicore/docasm/pkg/docasm/assembler"
	"github.com/cognicore/docasm/pkg/docasm/config"
	"github.com/cognicore/docasm/pkg/docasm/dataset"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (optional)")
		dataPath   = flag.String("data", "", "Input JSONL or XLSX file (required)")
		dbPath     = flag.String("db", "", "SQLite database for runs (optional)")
		outPath    = flag.String("out", "", "Output JSONL file (default stdout)")
		mode       = flag.String("mode", "", "Cleanup mode override")
	)
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("--data required")
	}

	// .env is optional
	_ = godotenv.Load()

	ctx := context.Background()

	engine, file, cleanup, err := buildEngine(ctx, *configPath, *dbPath, *mode)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	defer cleanup()

	input, err := rows.Load(*dataPath, rows.Options{
		Format:   file.Input.Format,
		Sheet:    file.Input.Sheet,
		HTMLCols: file.Input.HTMLCols,
	})
	if err != nil {
		log.Fatal("Failed to load rows:", err)
	}
	log.Printf("Loaded %d rows from %s", len(input), *dataPath)

	res, err := engine.Process(ctx, input)
	if err != nil {
		log.Fatal("Failed to assemble:", err)
	}

	var w io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatal("Failed to create output:", err)
		}
		defer f.Close()
		w = f
	}

	if err := writeJSONL(w, input, res.Rows); err != nil {
		log.Fatal("Failed to write output:", err)
	}

	log.Printf("Run %s: %d rows, cleanup=%s", res.Run.ID, res.Run.Rows, res.Run.CleanupMode)
}

func buildEngine(ctx context.Context, configPath, dbPath, mode string) (*docasm.Engine, *config.File, func(), error) {
	loader := config.Loader{
		ConfigPath:  configPath,
		Lookup:      os.LookupEnv,
		Logger:      log.Default(),
		StorePath:   dbPath,
		CleanupMode: mode,
	}

	components, err := loader.Load(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	engine := docasm.New(docasm.Options{
		Assembler: components.Assembler,
		Store:     components.Store,
		Workers:   components.Config.Assembler.Workers,
	})

	cleanup := func() {
		engine.Close()
	}

	return engine, components.Config, cleanup, nil
}

// writeJSONL writes every input row with its output columns added
func writeJSONL(w io.Writer, input []dataset.Row, out []assembler.Columns) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	for i, row := range input {
		rec := make(map[string]any, len(row)+len(out[i]))
		for k, v := range row {
			rec[k] = v
		}
		for k, v := range out[i] {
			rec[k] = v
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return bw.Flush()
}
