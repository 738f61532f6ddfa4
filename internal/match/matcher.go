package match

import (
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seeflaw/seeflaw/internal/document"
)

// Matcher compares expected strings with actual values.
type Matcher struct {
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets the logger used for unhandled value kinds.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// WithClock sets the clock used to resolve "TODAY".
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// New creates a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Matches reports whether expected matches actual. tolerance is a decimal
// for float values and a duration such as "10s" for time values; it is
// ignored for other kinds.
func (m *Matcher) Matches(expected string, actual Value, tolerance string) bool {
	switch actual.kind {
	case KindString, KindInt:
		return expected == actual.text
	case KindBool:
		want := expected == "1" || strings.EqualFold(expected, "true")
		return want == actual.b
	case KindFloat:
		return m.matchFloat(expected, actual, tolerance)
	case KindTime:
		return m.matchTime(expected, actual.t, tolerance)
	case KindNull:
		return expected == "" || strings.EqualFold(expected, "NULL")
	default:
		m.logger.Warn("unhandled data type in result", "value", actual.text, "expected", expected)
		return false
	}
}

func (m *Matcher) matchFloat(expected string, actual Value, tolerance string) bool {
	got, err := ParseDecimal(actual.text)
	if err != nil {
		m.logger.Debug("unreadable actual decimal", "value", actual.text, "error", err)
		return false
	}
	want, err := ParseDecimal(expected)
	if err != nil {
		m.logger.Debug("unreadable expected decimal", "value", expected, "error", err)
		return false
	}
	tol, err := ParseDecimal(tolerance)
	if err != nil {
		tol = decimal.Zero
	}
	return want.Sub(got).Abs().LessThanOrEqual(tol.Abs())
}

func (m *Matcher) matchTime(expected string, actual time.Time, tolerance string) bool {
	var want time.Time
	if strings.EqualFold(strings.TrimSpace(expected), "TODAY") {
		now := m.now().In(actual.Location())
		want = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, actual.Location())
	} else {
		t, ok := ParseTime(expected, actual.Location())
		if !ok {
			return false
		}
		want = t
	}
	if tolerance != "" {
		tol := ParseTolerance(tolerance)
		if tol == 0 {
			m.logger.Debug("unreadable time tolerance", "tolerance", tolerance)
			return false
		}
		diff := actual.Sub(want)
		if diff < 0 {
			diff = -diff
		}
		return diff <= tol
	}
	if len(expected) < 11 {
		ay, am, ad := actual.Date()
		wy, wm, wd := want.Date()
		return ay == wy && am == wm && ad == wd
	}
	return actual.Equal(want)
}

// KeyMatches reports whether key of an actual row satisfies the expected
// row. It is the per-key score used when pairing rows: an empty expectation
// matches any row, a missing actual row or key does not. NULL matches a null
// or empty actual value, as in Compare.
func (m *Matcher) KeyMatches(key string, expected *document.Fields, actual map[string]Value, tolerance *document.Fields) bool {
	if actual == nil {
		return false
	}
	want := expected.Value(key)
	if want == "" {
		return true
	}
	got, ok := actual[key]
	if !ok {
		return false
	}
	switch {
	case strings.EqualFold(want, "NULL"):
		return got.IsNull() || got.String() == ""
	case got.IsNull():
		return false
	}
	return m.Matches(want, got, tolerance.Value(key))
}

// Outcome is the comparison of one output key.
type Outcome struct {
	Expected string
	Actual   string
	Match    bool
	Missing  bool
}

// Compare compares one output key of a row.
//
// An absent actual row or key is missing. An empty expectation accepts any
// value and displays it. "NULL" matches a null or empty value. Everything
// else goes through Matches with the key's tolerance.
func (m *Matcher) Compare(key string, expected *document.Fields, actual map[string]Value, tolerance *document.Fields) Outcome {
	out := Outcome{Expected: expected.Value(key)}
	if actual == nil {
		out.Missing = true
		return out
	}
	got, ok := actual[key]
	if !ok {
		out.Missing = true
		return out
	}
	switch {
	case out.Expected == "":
		out.Actual = got.String()
		out.Match = true
	case strings.EqualFold(out.Expected, "NULL"):
		out.Match = got.IsNull() || got.String() == ""
	case got.IsNull():
		out.Match = false
	default:
		out.Actual = got.String()
		out.Match = m.Matches(out.Expected, got, tolerance.Value(key))
	}
	return out
}
