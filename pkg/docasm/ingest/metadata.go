package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Metadata is a string map that remembers insertion order.
// The zero value is ready to use.
type Metadata struct {
	keys   []string
	values map[string]string
}

// NewMetadata builds metadata from alternating key/value pairs.
func NewMetadata(pairs ...string) Metadata {
	var m Metadata
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

// Set stores value under key. An existing key keeps its position.
func (m *Metadata) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Merge layers other on top of m; keys of other are visited in sorted order.
func (m *Metadata) Merge(other map[string]string) {
	keys := make([]string, 0, len(other))
	for k := range other {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.Set(k, other[k])
	}
}

// Get returns the value for key.
func (m Metadata) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m Metadata) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m Metadata) Len() int { return len(m.keys) }

// Map returns an unordered copy.
func (m Metadata) Map() map[string]string {
	out := make(map[string]string, len(m.keys))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy.
func (m Metadata) Clone() Metadata {
	var out Metadata
	for _, k := range m.keys {
		out.Set(k, m.values[k])
	}
	return out
}

// MarshalJSON writes the object with keys in insertion order.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object and keeps the order keys appear in.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = Metadata{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("metadata: expected object, got %v", tok)
	}

	var out Metadata
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("metadata: expected string key, got %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("metadata: value for %q: %w", key, err)
		}
		out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}
