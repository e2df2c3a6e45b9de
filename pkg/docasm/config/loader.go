package config

import (
	"context"
	"fmt"
	"log"

	"github.com/cognicore/docasm/pkg/docasm/assembler"
	"github.com/cognicore/docasm/pkg/docasm/dataset"
	"github.com/cognicore/docasm/pkg/docasm/store"
	"github.com/cognicore/docasm/pkg/docasm/store/memstore"
	"github.com/cognicore/docasm/pkg/docasm/store/sqlite"
)

// Loader loads the configuration file and constructs components
type Loader struct {
	ConfigPath  string
	Lookup      func(string) (string, bool) // environment; nil skips overrides
	Logger      *log.Logger
	StorePath   string // overrides file and environment when set
	CleanupMode string // overrides file and environment when set
}

// Components holds all loaded configuration components
type Components struct {
	Config    *File
	Schema    dataset.Schema
	Assembler *assembler.Assembler
	Store     store.Store
}

// Load reads the configuration and returns initialized components
func (l *Loader) Load(ctx context.Context) (*Components, error) {
	var (
		file *File
		err  error
	)
	if l.ConfigPath != "" {
		file, err = Load(l.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		file = Default()
	}

	if l.Lookup != nil {
		if err := file.ApplyEnv(l.Lookup); err != nil {
			return nil, fmt.Errorf("apply environment: %w", err)
		}
	}

	if l.StorePath != "" {
		file.Store.Path = l.StorePath
	}
	if l.CleanupMode != "" {
		file.Assembler.CleanupMode = l.CleanupMode
		if err := file.Validate(); err != nil {
			return nil, err
		}
	}

	schema, err := file.DatasetSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	cfg, err := file.AssemblerConfig()
	if err != nil {
		return nil, fmt.Errorf("assembler config: %w", err)
	}

	var opts []assembler.Option
	if l.Logger != nil {
		opts = append(opts, assembler.WithLogger(l.Logger))
	}
	asm, err := assembler.New(cfg, schema, opts...)
	if err != nil {
		return nil, fmt.Errorf("create assembler: %w", err)
	}

	// Open store (sqlite when a path is configured)
	var st store.Store
	if file.Store.Path != "" {
		st, err = sqlite.OpenSQLite(ctx, file.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	} else {
		st = memstore.New()
	}

	return &Components{
		Config:    file,
		Schema:    schema,
		Assembler: asm,
		Store:     st,
	}, nil
}
