package sqlstore

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

// Dialect captures the engine-specific pieces of the shared SQL store.
type Dialect struct {
	// Name identifies the engine in errors and logs.
	Name string
	// Schema holds the DDL statements applied by ApplySchema, in order.
	Schema []string
	// Numbered selects $1-style placeholders instead of '?'.
	Numbered bool
	// EncodeTime converts a normalized UTC time into a bind argument.
	EncodeTime func(time.Time) any
	// Classify maps a driver error to a domain sentinel; ok is false for
	// errors that are not constraint failures.
	Classify func(error) (kind error, ok bool)
	// ViewOptions are used for read-only snapshots.
	ViewOptions *sql.TxOptions
}

// Rebind rewrites '?' placeholders for dialects with numbered parameters.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) encodeTime(t time.Time) any {
	if d.EncodeTime == nil {
		return t
	}
	return d.EncodeTime(t)
}

// TextTimeLayout is the fixed-width UTC layout used by engines that store
// timestamps as text; equal widths keep lexicographic and chronological order
// identical.
const TextTimeLayout = "2006-01-02 15:04:05.000000"

// EncodeTextTime formats t with TextTimeLayout.
func EncodeTextTime(t time.Time) any {
	return t.UTC().Format(TextTimeLayout)
}
