package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Document is a structured key/value payload persisted as a JSON object
// (generation_params, parameters, layout_params).
type Document map[string]any

// MarshalDocument encodes the document as a JSON object. A nil or empty
// document encodes to nil so that the column is stored as NULL.
func MarshalDocument(d Document) ([]byte, error) {
	if len(d) == 0 {
		return nil, nil
	}
	if err := checkFinite(map[string]any(d)); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any(d))
}

// UnmarshalDocument decodes a stored JSON object. Numbers without a fraction or
// exponent decode to int64, everything else numeric to float64.
func UnmarshalDocument(raw []byte) (Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	normalized, ok := normalizeNumbers(out).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode document: not an object")
	}
	return Document(normalized), nil
}

// Equal reports whether two documents hold the same content. Key order and
// numeric representation (int vs float) are ignored.
func (d Document) Equal(other Document) bool {
	if len(d) == 0 && len(other) == 0 {
		return true
	}
	a, errA := canonical(d)
	b, errB := canonical(other)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	cloned, _ := cloneValue(map[string]any(d)).(map[string]any)
	return Document(cloned)
}

// MarshalEigenvalues encodes the eigenvalue array; nil for an empty slice.
func MarshalEigenvalues(values []float64) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("eigenvalue %d is not finite", i)
		}
	}
	return json.Marshal(values)
}

// UnmarshalEigenvalues decodes a stored numeric array.
func UnmarshalEigenvalues(raw []byte) ([]float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var out []float64
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("decode eigenvalues: %w", err)
	}
	return out, nil
}

func canonical(d Document) ([]byte, error) {
	// Round-trip through the decoder so ints and floats with equal value
	// collapse to the same encoding.
	raw, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		s := val.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := val.Int64(); err == nil {
				return i
			}
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, inner := range val {
			val[k] = normalizeNumbers(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = normalizeNumbers(inner)
		}
		return val
	default:
		return v
	}
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case Document:
		return Document(cloneValue(map[string]any(val)).(map[string]any))
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	case []float64:
		return append([]float64(nil), val...)
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

func checkFinite(v any) error {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("non-finite number %v", val)
		}
	case float32:
		return checkFinite(float64(val))
	case map[string]any:
		for k, inner := range val {
			if err := checkFinite(inner); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
	case Document:
		return checkFinite(map[string]any(val))
	case []any:
		for i, inner := range val {
			if err := checkFinite(inner); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	case []float64:
		for i, inner := range val {
			if err := checkFinite(inner); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	}
	return nil
}
