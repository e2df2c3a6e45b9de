package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/docasm/pkg/docasm/assembler"
	"github.com/cognicore/docasm/pkg/docasm/dataset"
	"github.com/cognicore/docasm/pkg/docasm/ingest"
	"github.com/cognicore/docasm/pkg/docasm/internalerr"
)

// File is the root of a docasm YAML configuration file
type File struct {
	Assembler AssemblerSection `yaml:"assembler"`
	Schema    []ColumnSpec     `yaml:"schema"`
	Input     InputSection     `yaml:"input"`
	Store     StoreSection     `yaml:"store"`
	Server    ServerSection    `yaml:"server"`
}

// AssemblerSection configures column bindings and cleanup
type AssemblerSection struct {
	InputCols   []string `yaml:"input_cols"`
	OutputCols  []string `yaml:"output_cols"`
	IDCol       string   `yaml:"id_col"`
	MetadataCol string   `yaml:"metadata_col"`
	CleanupMode string   `yaml:"cleanup_mode"`
	UnicodeForm string   `yaml:"unicode_form"`
	Workers     int      `yaml:"workers"`
}

// ColumnSpec declares one input column
type ColumnSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable *bool  `yaml:"nullable,omitempty"`
}

// InputSection describes how rows are read
type InputSection struct {
	Format   string   `yaml:"format"` // jsonl or xlsx; empty picks by extension
	Sheet    string   `yaml:"sheet"`
	HTMLCols []string `yaml:"html_cols"`
}

// StoreSection selects the run store; an empty path keeps runs in memory
type StoreSection struct {
	Path string `yaml:"path"`
}

// ServerSection configures the HTTP server
type ServerSection struct {
	Addr      string  `yaml:"addr"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second, 0 disables
	Burst     int     `yaml:"burst"`
	MaxRows   int     `yaml:"max_rows"`
}

// Environment variables that override file values
const (
	EnvCleanupMode = "DOCASM_CLEANUP_MODE"
	EnvDB          = "DOCASM_DB"
	EnvAddr        = "DOCASM_ADDR"
	EnvWorkers     = "DOCASM_WORKERS"
)

// Default returns a configuration that assembles a single "text" column
func Default() *File {
	f := &File{}
	applyDefaults(f)
	return f
}

// Load reads a YAML config. A missing file yields defaults.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	applyDefaults(&f)
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func applyDefaults(f *File) {
	if len(f.Assembler.InputCols) == 0 {
		f.Assembler.InputCols = []string{"text"}
	}
	if f.Assembler.CleanupMode == "" {
		f.Assembler.CleanupMode = string(ingest.ModeDisabled)
	}
	if f.Assembler.UnicodeForm == "" {
		f.Assembler.UnicodeForm = string(ingest.UnicodeNone)
	}
	if f.Server.Addr == "" {
		f.Server.Addr = ":8080"
	}
	if f.Server.Burst <= 0 {
		f.Server.Burst = 20
	}
	if f.Server.MaxRows <= 0 {
		f.Server.MaxRows = 10000
	}
}

// ApplyEnv overrides file values from the environment
func (f *File) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvCleanupMode); ok && v != "" {
		f.Assembler.CleanupMode = v
	}
	if v, ok := lookup(EnvDB); ok && v != "" {
		f.Store.Path = v
	}
	if v, ok := lookup(EnvAddr); ok && v != "" {
		f.Server.Addr = v
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", internalerr.ErrInvalidConfig, EnvWorkers, v)
		}
		f.Assembler.Workers = n
	}
	return f.Validate()
}

// Validate rejects unknown cleanup modes, unicode forms and column types
func (f *File) Validate() error {
	if _, err := ingest.ParseMode(f.Assembler.CleanupMode); err != nil {
		return err
	}
	if _, err := ingest.ParseUnicodeForm(f.Assembler.UnicodeForm); err != nil {
		return err
	}
	if _, err := f.DatasetSchema(); err != nil {
		return err
	}
	switch strings.ToLower(f.Input.Format) {
	case "", "jsonl", "xlsx":
	default:
		return fmt.Errorf("%w: input format %q", internalerr.ErrInvalidConfig, f.Input.Format)
	}
	return nil
}

// AssemblerConfig converts the assembler section
func (f *File) AssemblerConfig() (assembler.Config, error) {
	cfg := assembler.Config{
		InputCols:   append([]string(nil), f.Assembler.InputCols...),
		OutputCols:  append([]string(nil), f.Assembler.OutputCols...),
		IDCol:       f.Assembler.IDCol,
		MetadataCol: f.Assembler.MetadataCol,
	}
	if err := cfg.SetCleanupMode(f.Assembler.CleanupMode); err != nil {
		return assembler.Config{}, err
	}
	if err := cfg.SetUnicodeForm(f.Assembler.UnicodeForm); err != nil {
		return assembler.Config{}, err
	}
	return cfg, nil
}

// DatasetSchema builds the input schema. Without a schema section every
// input column is a nullable string, the id column a string and the
// metadata column a string map.
func (f *File) DatasetSchema() (dataset.Schema, error) {
	if len(f.Schema) == 0 {
		return f.inferredSchema()
	}

	fields := make([]dataset.Field, 0, len(f.Schema))
	for _, c := range f.Schema {
		t, err := dataset.ParseType(c.Type)
		if err != nil {
			return dataset.Schema{}, fmt.Errorf("column %q: %w", c.Name, err)
		}
		nullable := true
		if c.Nullable != nil {
			nullable = *c.Nullable
		}
		fields = append(fields, dataset.Field{Name: c.Name, Type: t, Nullable: nullable})
	}
	return dataset.NewSchema(fields...)
}

func (f *File) inferredSchema() (dataset.Schema, error) {
	var fields []dataset.Field
	seen := make(map[string]bool)
	add := func(name string, t dataset.Type) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		fields = append(fields, dataset.Field{Name: name, Type: t, Nullable: true})
	}
	for _, in := range f.Assembler.InputCols {
		add(in, dataset.TypeString)
	}
	add(f.Assembler.IDCol, dataset.TypeString)
	add(f.Assembler.MetadataCol, dataset.TypeStringMap)
	return dataset.NewSchema(fields...)
}
