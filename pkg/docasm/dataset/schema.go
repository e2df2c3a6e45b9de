package dataset

import (
	"fmt"
	"strings"

	"github.com/cognicore/docasm/pkg/docasm/internalerr"
)

// Type is the logical type of a column.
type Type int

const (
	TypeUnknown Type = iota
	TypeString
	TypeStringArray
	TypeStringMap
	TypeInt
	TypeFloat
	TypeBool
	TypeAnnotationArray
)

var typeNames = map[Type]string{
	TypeString:          "string",
	TypeStringArray:     "array<string>",
	TypeStringMap:       "map<string,string>",
	TypeInt:             "int",
	TypeFloat:           "float",
	TypeBool:            "bool",
	TypeAnnotationArray: "array<annotation>",
}

var typeAliases = map[string]Type{
	"text":         TypeString,
	"string_array": TypeStringArray,
	"strings":      TypeStringArray,
	"string_map":   TypeStringMap,
	"map":          TypeStringMap,
	"long":         TypeInt,
	"integer":      TypeInt,
	"double":       TypeFloat,
	"boolean":      TypeBool,
	"annotations":  TypeAnnotationArray,
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseType resolves a type name as written in schema files.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.Join(strings.Fields(s), ""))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	if t, ok := typeAliases[s]; ok {
		return t, nil
	}
	return TypeUnknown, fmt.Errorf("%w: unknown column type %q", internalerr.ErrInvalidConfig, s)
}

// Field declares one column. Element describes the record shape of
// array<annotation> columns.
type Field struct {
	Name     string
	Type     Type
	Nullable bool
	Element  []Field
}

// Schema is an ordered list of columns.
type Schema struct {
	Fields []Field
}

// NewSchema builds a schema and rejects duplicate names.
func NewSchema(fields ...Field) (Schema, error) {
	return Schema{}.Append(fields...)
}

// Lookup returns the field with the given name.
func (s Schema) Lookup(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Has reports whether the schema declares name.
func (s Schema) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Names lists column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Append returns a new schema with fields added after the existing ones.
// The receiver is left untouched.
func (s Schema) Append(fields ...Field) (Schema, error) {
	out := Schema{Fields: make([]Field, 0, len(s.Fields)+len(fields))}
	out.Fields = append(out.Fields, s.Fields...)
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return Schema{}, fmt.Errorf("%w: column name is required", internalerr.ErrInvalidConfig)
		}
		if out.Has(f.Name) {
			return Schema{}, fmt.Errorf("%w: column %q already exists", internalerr.ErrInvalidConfig, f.Name)
		}
		out.Fields = append(out.Fields, f)
	}
	return out, nil
}

// AnnotationShape is the record layout stored in array<annotation> columns.
func AnnotationShape() []Field {
	return []Field{
		{Name: "annotatorType", Type: TypeString},
		{Name: "begin", Type: TypeInt},
		{Name: "end", Type: TypeInt},
		{Name: "result", Type: TypeString},
		{Name: "metadata", Type: TypeStringMap},
		{Name: "embeddings", Type: TypeUnknown},
	}
}
