package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var textTimeLayouts = []string{
	TextTimeLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// timeValue scans timestamps delivered either as time.Time or as text.
type timeValue struct {
	Time time.Time
}

func (t *timeValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("scan time: unsupported type %T", src)
	}
}

func (t *timeValue) parse(s string) error {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	for _, layout := range textTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("scan time: unrecognized layout %q", s)
}

// jsonValue scans JSON columns regardless of whether the driver hands back
// text, bytes, or an already decoded value.
type jsonValue struct {
	Raw []byte
}

func (j *jsonValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		j.Raw = nil
	case string:
		j.Raw = []byte(v)
	case []byte:
		j.Raw = append([]byte(nil), v...)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("scan json: %w", err)
		}
		j.Raw = raw
	}
	return nil
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

// arg converts an optional field into a bind argument, nil meaning NULL.
func arg[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func blobArg(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
