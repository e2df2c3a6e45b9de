package assembler

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/docasm/pkg/docasm/dataset"
	"github.com/cognicore/docasm/pkg/docasm/ingest"
	"github.com/cognicore/docasm/pkg/docasm/internalerr"
)

// Assembler turns text columns into columns of document annotations.
// It holds no mutable state after New, so Transform is safe to call
// from any number of goroutines.
type Assembler struct {
	mode        ingest.Mode
	form        ingest.UnicodeForm
	idCol       string
	metadataCol string
	bindings    []Binding
	logger      *log.Logger
	onAnomaly   func(Anomaly)
}

// Option customizes an Assembler.
type Option func(*Assembler)

// WithLogger sets where dropped units are logged. A nil logger disables logging.
func WithLogger(l *log.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// WithAnomalyHandler registers a callback for dropped units. It may be
// called concurrently from TransformBatch.
func WithAnomalyHandler(fn func(Anomaly)) Option {
	return func(a *Assembler) { a.onAnomaly = fn }
}

// Columns maps each output column to its annotations for one row.
// Every configured output is present and never nil.
type Columns map[string][]ingest.Annotation

// New validates cfg against the input schema and resolves one Binding
// per input column.
func New(cfg Config, schema dataset.Schema, opts ...Option) (*Assembler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, _ := ingest.ParseMode(string(cfg.CleanupMode))
	form, _ := ingest.ParseUnicodeForm(string(cfg.UnicodeForm))

	a := &Assembler{
		mode:        mode,
		form:        form,
		idCol:       cfg.IDCol,
		metadataCol: cfg.MetadataCol,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.idCol != "" {
		f, ok := schema.Lookup(a.idCol)
		if !ok {
			return nil, fmt.Errorf("%w: id column %q not found", internalerr.ErrInvalidConfig, a.idCol)
		}
		switch f.Type {
		case dataset.TypeString, dataset.TypeInt, dataset.TypeFloat, dataset.TypeBool:
		default:
			return nil, fmt.Errorf("%w: id column %q has type %s", internalerr.ErrInvalidConfig, a.idCol, f.Type)
		}
	}
	if a.metadataCol != "" {
		f, ok := schema.Lookup(a.metadataCol)
		if !ok {
			return nil, fmt.Errorf("%w: metadata column %q not found", internalerr.ErrInvalidConfig, a.metadataCol)
		}
		if f.Type != dataset.TypeStringMap {
			return nil, fmt.Errorf("%w: metadata column %q has type %s, want %s",
				internalerr.ErrInvalidConfig, a.metadataCol, f.Type, dataset.TypeStringMap)
		}
	}

	outputs := cfg.ResolvedOutputCols()
	a.bindings = make([]Binding, len(cfg.InputCols))
	for i, in := range cfg.InputCols {
		variant, err := a.variantFor(schema, in)
		if err != nil {
			return nil, err
		}
		if schema.Has(outputs[i]) {
			return nil, fmt.Errorf("%w: output column %q already exists", internalerr.ErrInvalidConfig, outputs[i])
		}
		a.bindings[i] = Binding{Input: in, Output: outputs[i], Variant: variant}
	}

	return a, nil
}

func (a *Assembler) variantFor(schema dataset.Schema, input string) (Variant, error) {
	f, ok := schema.Lookup(input)
	if !ok {
		return 0, fmt.Errorf("%w: input column %q not found", internalerr.ErrInvalidConfig, input)
	}
	switch f.Type {
	case dataset.TypeStringArray:
		return VariantArray, nil
	case dataset.TypeString:
		return scalarVariant(a.idCol != "", a.metadataCol != ""), nil
	default:
		return 0, fmt.Errorf("%w: input column %q has type %s, want %s or %s",
			internalerr.ErrInvalidConfig, input, f.Type, dataset.TypeString, dataset.TypeStringArray)
	}
}

// Bindings returns the resolved column bindings in configuration order.
func (a *Assembler) Bindings() []Binding {
	out := make([]Binding, len(a.bindings))
	copy(out, a.bindings)
	return out
}

// Mode returns the cleanup mode in use.
func (a *Assembler) Mode() ingest.Mode { return a.mode }

// OutputCols lists the output column names in binding order.
func (a *Assembler) OutputCols() []string {
	out := make([]string, len(a.bindings))
	for i, b := range a.bindings {
		out[i] = b.Output
	}
	return out
}

// TransformSchema appends one non-nullable annotation column per binding.
func (a *Assembler) TransformSchema(schema dataset.Schema) (dataset.Schema, error) {
	fields := make([]dataset.Field, 0, len(a.bindings))
	for _, b := range a.bindings {
		if _, err := a.variantFor(schema, b.Input); err != nil {
			return dataset.Schema{}, err
		}
		fields = append(fields, dataset.Field{
			Name:     b.Output,
			Type:     dataset.TypeAnnotationArray,
			Nullable: false,
			Element:  dataset.AnnotationShape(),
		})
	}
	return schema.Append(fields...)
}

// Transform assembles every binding for one row.
func (a *Assembler) Transform(row dataset.Row) Columns {
	out := make(Columns, len(a.bindings))
	for _, b := range a.bindings {
		out[b.Output] = a.assemble(row, b)
	}
	return out
}

// TransformBatch runs Transform over rows with at most workers goroutines.
// Results keep the order of rows.
func (a *Assembler) TransformBatch(ctx context.Context, rows []dataset.Row, workers int) ([]Columns, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([]Columns, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, row := range rows {
		if gctx.Err() != nil {
			break
		}
		i, row := i, row
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = a.Transform(row)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Assembler) assemble(row dataset.Row, b Binding) []ingest.Annotation {
	anns := []ingest.Annotation{}

	if b.Variant == VariantArray {
		texts, bad, err := row.TextElements(b.Input)
		if err != nil {
			a.report(Anomaly{Cause: CauseTypeMismatch, Column: b.Input, Err: err})
			return anns
		}
		for i, text := range texts {
			if err, ok := bad[i]; ok {
				a.report(Anomaly{Cause: CauseTypeMismatch, Column: b.Input, Index: i, Err: err})
				continue
			}
			meta := ingest.NewMetadata(ingest.MetaSentence, strconv.Itoa(i))
			if ann, ok := a.unit(b.Input, i, text, meta); ok {
				anns = append(anns, ann)
			}
		}
		return anns
	}

	text, err := row.Text(b.Input)
	if err != nil {
		a.report(Anomaly{Cause: CauseTypeMismatch, Column: b.Input, Err: err})
		return anns
	}

	meta := ingest.NewMetadata(ingest.MetaSentence, "0")
	if b.Variant.withID() {
		if !row.IsNull(a.idCol) {
			id, ok := row.Scalar(a.idCol)
			if !ok {
				a.report(Anomaly{Cause: CauseBadID, Column: b.Input,
					Err: fmt.Errorf("%w: id column %q holds %T", internalerr.ErrInvalidInput, a.idCol, row[a.idCol])})
				return anns
			}
			meta.Set(ingest.MetaID, id)
		}
	}
	if b.Variant.withMetadata() {
		extra, err := row.StringMap(a.metadataCol)
		if err != nil {
			a.report(Anomaly{Cause: CauseBadMetadata, Column: b.Input, Err: err})
			return anns
		}
		meta.Merge(extra)
	}

	if ann, ok := a.unit(b.Input, 0, text, meta); ok {
		anns = append(anns, ann)
	}
	return anns
}

// unit normalizes one text and builds its annotation. Null and empty
// texts are dropped without a report.
func (a *Assembler) unit(column string, index int, text *string, meta ingest.Metadata) (ann ingest.Annotation, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.report(Anomaly{Cause: CausePanic, Column: column, Index: index, Err: fmt.Errorf("%v", r)})
			ann, ok = ingest.Annotation{}, false
		}
	}()

	if text == nil {
		return ingest.Annotation{}, false
	}

	cleaned, err := ingest.Normalize(a.form.Apply(*text), a.mode)
	if err != nil {
		a.report(Anomaly{Cause: CauseNormalize, Column: column, Index: index, Err: err})
		return ingest.Annotation{}, false
	}

	return ingest.NewDocument(cleaned, meta)
}

func (a *Assembler) report(an Anomaly) {
	if a.logger != nil {
		a.logger.Printf("Warning: dropped unit %v", an)
	}
	if a.onAnomaly != nil {
		a.onAnomaly(an)
	}
}
