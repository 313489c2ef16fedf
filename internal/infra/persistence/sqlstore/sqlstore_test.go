package sqlstore

import (
	"errors"
	"testing"
	"time"

	"spectrabench/pkg/domain"
)

func TestRebind(t *testing.T) {
	q := "SELECT 1 FROM t WHERE a = ? AND b = ?"
	if got := (Dialect{}).Rebind(q); got != q {
		t.Fatalf("question-mark dialect rewrote query: %q", got)
	}
	want := "SELECT 1 FROM t WHERE a = $1 AND b = $2"
	if got := (Dialect{Numbered: true}).Rebind(q); got != want {
		t.Fatalf("Rebind = %q, want %q", got, want)
	}
}

func TestEncodeTextTimeIsFixedWidth(t *testing.T) {
	a := EncodeTextTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)).(string)
	b := EncodeTextTime(time.Date(2024, 1, 2, 3, 4, 5, 120000000, time.FixedZone("x", 3600))).(string)
	if len(a) != len(b) {
		t.Fatalf("widths differ: %q %q", a, b)
	}
	if a != "2024-01-02 03:04:05.000000" {
		t.Fatalf("unexpected encoding %q", a)
	}
	if b >= a {
		t.Fatalf("expected %q (02:04:05.12 UTC) to sort before %q", b, a)
	}
}

func TestTimeValueScan(t *testing.T) {
	want := time.Date(2024, 5, 6, 7, 8, 9, 123456000, time.UTC)
	inputs := []any{
		want,
		want.In(time.FixedZone("plus2", 7200)),
		"2024-05-06 07:08:09.123456",
		[]byte("2024-05-06T07:08:09.123456Z"),
	}
	for _, in := range inputs {
		var tv timeValue
		if err := tv.Scan(in); err != nil {
			t.Fatalf("scan %v: %v", in, err)
		}
		if !tv.Time.Equal(want) || tv.Time.Location() != time.UTC {
			t.Fatalf("scan %v = %v", in, tv.Time)
		}
	}
	var tv timeValue
	if err := tv.Scan("2024-05-06 07:08:09"); err != nil || tv.Time.Second() != 9 {
		t.Fatalf("CURRENT_TIMESTAMP layout: %v %v", tv.Time, err)
	}
	if err := tv.Scan(nil); err != nil || !tv.Time.IsZero() {
		t.Fatalf("nil scan: %v %v", tv.Time, err)
	}
	if err := tv.Scan("yesterday"); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := tv.Scan(42); err == nil {
		t.Fatalf("expected type error")
	}
}

func TestJSONValueScan(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{`{"a":1}`, `{"a":1}`},
		{[]byte(`[1,2]`), `[1,2]`},
		{map[string]any{"p": 0.1}, `{"p":0.1}`},
	}
	for _, tc := range cases {
		var jv jsonValue
		if err := jv.Scan(tc.in); err != nil {
			t.Fatalf("scan %v: %v", tc.in, err)
		}
		if string(jv.Raw) != tc.want {
			t.Fatalf("scan %v = %q, want %q", tc.in, jv.Raw, tc.want)
		}
	}
}

func TestTranslate(t *testing.T) {
	fkErr := errors.New("driver: fk")
	d := Dialect{Name: "fake", Classify: func(err error) (error, bool) {
		if err == fkErr {
			return domain.ErrForeignKeyViolation, true
		}
		return nil, false
	}}
	err := translate(d, domain.EntityExperiment, fkErr)
	var cv *domain.ConstraintViolation
	if !errors.As(err, &cv) || !errors.Is(err, domain.ErrForeignKeyViolation) || cv.Entity != domain.EntityExperiment {
		t.Fatalf("translate fk = %v", err)
	}

	other := errors.New("disk full")
	err = translate(d, domain.EntityNetwork, other)
	if !errors.Is(err, other) || errors.Is(err, domain.ErrForeignKeyViolation) {
		t.Fatalf("translate other = %v", err)
	}

	original := domain.NewForeignKeyViolation(domain.EntityExperiment, "network_id", 3)
	if got := translate(d, domain.EntityExperiment, original); got != original {
		t.Fatalf("existing violations must pass through, got %v", got)
	}
	if translate(d, domain.EntityNetwork, nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}

func TestArgHelpers(t *testing.T) {
	if arg[string](nil) != nil {
		t.Fatalf("nil pointer should bind NULL")
	}
	if arg(domain.Ptr(2.5)) != 2.5 {
		t.Fatalf("pointer should bind its value")
	}
	if jsonArg(nil) != nil || jsonArg([]byte(`{}`)) != "{}" {
		t.Fatalf("jsonArg mismatch")
	}
	if blobArg([]byte{}) != nil {
		t.Fatalf("empty blob should bind NULL")
	}
}
