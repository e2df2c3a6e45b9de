package dataset

import (
	"fmt"
	"strconv"

	"github.com/cognicore/docasm/pkg/docasm/internalerr"
)

// Row holds the values of one dataset row keyed by column name.
// Values may come straight from encoding/json, so []any and
// map[string]any are accepted wherever typed slices and maps are.
type Row map[string]any

// Text returns a string column value. A missing or null value yields nil.
func (r Row) Text(name string) (*string, error) {
	switch v := r[name].(type) {
	case nil:
		return nil, nil
	case string:
		return &v, nil
	case *string:
		return v, nil
	default:
		return nil, mismatch(name, "string", v)
	}
}

// Texts returns a string array column value. Elements may be nil.
// A non-string element fails the whole column.
func (r Row) Texts(name string) ([]*string, error) {
	texts, bad, err := r.TextElements(name)
	if err != nil {
		return nil, err
	}
	for i := range texts {
		if e, ok := bad[i]; ok {
			return nil, e
		}
	}
	return texts, nil
}

// TextElements is Texts with per-element failures. A non-string element
// is left nil in texts and its error is keyed by index in bad. The
// returned error is set only when the value is not an array at all.
func (r Row) TextElements(name string) (texts []*string, bad map[int]error, err error) {
	switch v := r[name].(type) {
	case nil:
		return nil, nil, nil
	case []*string:
		return v, nil, nil
	case []string:
		out := make([]*string, len(v))
		for i := range v {
			out[i] = &v[i]
		}
		return out, nil, nil
	case []any:
		out := make([]*string, len(v))
		for i, elem := range v {
			switch e := elem.(type) {
			case nil:
			case string:
				out[i] = &e
			case *string:
				out[i] = e
			default:
				if bad == nil {
					bad = make(map[int]error)
				}
				bad[i] = mismatch(fmt.Sprintf("%s[%d]", name, i), "string", e)
			}
		}
		return out, bad, nil
	default:
		return nil, nil, mismatch(name, "array<string>", v)
	}
}

// StringMap returns a map column value. Scalar values are stringified;
// nested values are rejected.
func (r Row) StringMap(name string) (map[string]string, error) {
	switch v := r[name].(type) {
	case nil:
		return nil, nil
	case map[string]string:
		return v, nil
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, elem := range v {
			s, ok := scalarString(elem)
			if !ok {
				return nil, mismatch(name+"."+k, "string", elem)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, mismatch(name, "map<string,string>", v)
	}
}

// IsNull reports whether a column is missing, nil or a nil *string.
func (r Row) IsNull(name string) bool {
	switch v := r[name].(type) {
	case nil:
		return true
	case *string:
		return v == nil
	default:
		return false
	}
}

// Scalar stringifies a scalar column value. It reports false for a
// missing or null value, or one that is not a scalar.
func (r Row) Scalar(name string) (string, bool) {
	v, ok := r[name]
	if !ok || v == nil {
		return "", false
	}
	return scalarString(v)
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case *string:
		if x == nil {
			return "", false
		}
		return *x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		return fmt.Sprint(x), true
	default:
		return "", false
	}
}

func mismatch(column, want string, got any) error {
	return fmt.Errorf("%w: column %q holds %T, want %s", internalerr.ErrInvalidInput, column, got, want)
}
