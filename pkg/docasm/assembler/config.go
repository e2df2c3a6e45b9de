package assembler

import (
	"fmt"
	"strings"

	"github.com/cognicore/docasm/pkg/docasm/ingest"
	"github.com/cognicore/docasm/pkg/docasm/internalerr"
)

// DefaultOutputPrefix names output columns that were not configured.
const DefaultOutputPrefix = "finished_"

// Config is the assembler configuration. It is fixed once New returns.
type Config struct {
	InputCols   []string
	OutputCols  []string
	IDCol       string
	MetadataCol string
	CleanupMode ingest.Mode
	UnicodeForm ingest.UnicodeForm
}

// SetCleanupMode parses and stores the mode, rejecting unknown values.
func (c *Config) SetCleanupMode(s string) error {
	m, err := ingest.ParseMode(s)
	if err != nil {
		return err
	}
	c.CleanupMode = m
	return nil
}

// SetUnicodeForm parses and stores the Unicode normalization form.
func (c *Config) SetUnicodeForm(s string) error {
	f, err := ingest.ParseUnicodeForm(s)
	if err != nil {
		return err
	}
	c.UnicodeForm = f
	return nil
}

// ResolvedOutputCols returns OutputCols, or finished_<input> for every
// input column when none are configured.
func (c Config) ResolvedOutputCols() []string {
	if len(c.OutputCols) > 0 {
		out := make([]string, len(c.OutputCols))
		copy(out, c.OutputCols)
		return out
	}
	out := make([]string, len(c.InputCols))
	for i, in := range c.InputCols {
		out[i] = DefaultOutputPrefix + in
	}
	return out
}

// Validate checks the configuration without looking at any schema.
func (c Config) Validate() error {
	if len(c.InputCols) == 0 {
		return fmt.Errorf("%w: at least one input column is required", internalerr.ErrInvalidConfig)
	}
	for _, name := range c.InputCols {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: blank input column name", internalerr.ErrInvalidConfig)
		}
	}
	if len(c.OutputCols) > 0 && len(c.OutputCols) != len(c.InputCols) {
		return fmt.Errorf("%w: %d input columns but %d output columns",
			internalerr.ErrInvalidConfig, len(c.InputCols), len(c.OutputCols))
	}

	seen := make(map[string]struct{})
	for _, name := range c.ResolvedOutputCols() {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: blank output column name", internalerr.ErrInvalidConfig)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: output column %q configured twice", internalerr.ErrInvalidConfig, name)
		}
		seen[name] = struct{}{}
	}

	if _, err := ingest.ParseMode(string(c.CleanupMode)); err != nil {
		return err
	}
	if _, err := ingest.ParseUnicodeForm(string(c.UnicodeForm)); err != nil {
		return err
	}
	return nil
}
