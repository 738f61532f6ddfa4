// Package result records the outcome of one fixture call: its inputs, the
// expected outputs, what the fixture returned and how long it took.
package result

import (
	"sync"
	"time"

	"github.com/seeflaw/seeflaw/internal/document"
	"github.com/seeflaw/seeflaw/internal/match"
)

// Call types. The result tree element is named after the type plus "result".
const (
	TypeCall  = "call"
	TypeParam = "param"
	TypeInit  = "init"
)

// Row is one input/expected output/actual result triple.
type Row struct {
	Inputs   *document.Fields
	Expected *document.Fields
	Actual   map[string]match.Value
	Err      error
	Elapsed  time.Duration
}

// MultiRows holds the expected and actual rows of a row-set call.
type MultiRows struct {
	Expected []*document.Fields
	Actual   []map[string]match.Value
}

// Holder accumulates the rows of one call. It is safe for concurrent use:
// a killed call is marked from the orchestrator while its abandoned task may
// still be writing.
type Holder struct {
	Fixture   string
	Method    string
	ParamName string
	CallType  string
	SkipTime  bool

	mu           sync.Mutex
	inputKeys    []string
	outputKeys   []string
	multiRowKeys []string
	rows         []*Row
	multi        *MultiRows
	tolerance    *document.Fields
	allowSurplus bool
	failed       bool
	sealed       bool
	start        time.Time
	rowStart     time.Time
	now          func() time.Time
}

// Option configures a Holder.
type Option func(*Holder)

// WithTolerance sets per-key tolerances.
func WithTolerance(t *document.Fields) Option {
	return func(h *Holder) { h.tolerance = t }
}

// WithParamName sets the parameter bound by a fixture param call.
func WithParamName(name string) Option {
	return func(h *Holder) { h.ParamName = name }
}

// WithCallType sets the call type.
func WithCallType(t string) Option {
	return func(h *Holder) { h.CallType = t }
}

// WithoutTime leaves timings out of the result tree.
func WithoutTime() Option {
	return func(h *Holder) { h.SkipTime = true }
}

// WithClock sets the clock used for timings.
func WithClock(now func() time.Time) Option {
	return func(h *Holder) { h.now = now }
}

// New creates a Holder for a call of fixture.method.
func New(fixture, method string, opts ...Option) *Holder {
	h := &Holder{Fixture: fixture, Method: method, CallType: TypeCall, now: time.Now}
	for _, o := range opts {
		o(h)
	}
	h.start = h.now()
	h.rowStart = h.start
	return h
}

// NewGroup creates a Holder for grouped param or init nodes. The call type
// doubles as the fixture name and group holders carry no timing.
func NewGroup(callType string) *Holder {
	return New(callType, "", WithCallType(callType), WithoutTime())
}

// AddRow records a complete row.
func (h *Holder) AddRow(inputs, expected *document.Fields, actual map[string]match.Value, err error) {
	h.CreateRow(inputs, expected)
	h.SetRowResult(actual, err)
}

// CreateRow starts a row. Its result is set by SetRowResult.
func (h *Holder) CreateRow(inputs, expected *document.Fields) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sealed {
		return
	}
	h.inputKeys = addKeys(h.inputKeys, inputs)
	h.outputKeys = addKeys(h.outputKeys, expected)
	h.rows = append(h.rows, &Row{Inputs: inputs.Clone(), Expected: expected})
}

// SetRowResult sets the result of the last created row.
func (h *Holder) SetRowResult(actual map[string]match.Value, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setRowResult(actual, err)
}

func (h *Holder) setRowResult(actual map[string]match.Value, err error) {
	if h.sealed {
		return
	}
	end := h.now()
	if len(h.rows) == 0 {
		h.rows = append(h.rows, &Row{})
	}
	row := h.rows[len(h.rows)-1]
	row.Actual = actual
	row.Err = err
	row.Elapsed = end.Sub(h.rowStart)
	h.rowStart = end
}

// CreateMultiRows starts a row-set call with explicit expected rows. The
// multi-row keys are the union of the expected rows' keys. Returned rows
// left unpaired fail the call unless allowSurplus is set.
func (h *Holder) CreateMultiRows(inputs *document.Fields, expected []*document.Fields, allowSurplus bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sealed {
		return
	}
	h.inputKeys = addKeys(h.inputKeys, inputs)
	h.rows = append(h.rows, &Row{Inputs: inputs.Clone()})
	h.allowSurplus = allowSurplus
	for _, e := range expected {
		h.multiRowKeys = addKeys(h.multiRowKeys, e)
	}
	h.multi = &MultiRows{Expected: expected}
}

// CreateMultiRowsWithKeys starts a row-set call declared by output keys
// only; every returned row is surplus.
func (h *Holder) CreateMultiRowsWithKeys(inputs *document.Fields, keys []string, allowSurplus bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sealed {
		return
	}
	h.inputKeys = addKeys(h.inputKeys, inputs)
	h.rows = append(h.rows, &Row{Inputs: inputs.Clone()})
	h.allowSurplus = allowSurplus
	h.multiRowKeys = append([]string(nil), keys...)
	h.multi = &MultiRows{}
}

// SetMultiRowsResult records what a row-set call returned.
func (h *Holder) SetMultiRowsResult(actual []map[string]match.Value, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sealed || h.multi == nil || len(h.rows) == 0 {
		return
	}
	h.rows[0].Elapsed = h.now().Sub(h.start)
	h.rows[0].Err = err
	h.multi.Actual = actual
}

// SetRowError marks the last row as failed with err.
func (h *Holder) SetRowError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setRowResult(nil, err)
}

// Kill marks the last row with err and ignores all later writes.
func (h *Holder) Kill(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setRowResult(nil, err)
	h.sealed = true
}

// Fail marks the call as failed. A failed call never becomes successful.
func (h *Holder) Fail() {
	h.mu.Lock()
	h.failed = true
	h.mu.Unlock()
}

// Successful reports whether the call has not failed.
func (h *Holder) Successful() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.failed
}

// RunTime returns the time since the holder was created.
func (h *Holder) RunTime() time.Duration {
	return h.now().Sub(h.start)
}

// Snapshot is a consistent copy of a holder's recorded data.
type Snapshot struct {
	InputKeys    []string
	OutputKeys   []string
	MultiRowKeys []string
	Rows         []Row
	Multi        *MultiRows
	Tolerance    *document.Fields
	AllowSurplus bool
}

// Snapshot returns a copy of the recorded data for rendering.
func (h *Holder) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Snapshot{
		InputKeys:    append([]string(nil), h.inputKeys...),
		OutputKeys:   append([]string(nil), h.outputKeys...),
		MultiRowKeys: append([]string(nil), h.multiRowKeys...),
		Tolerance:    h.tolerance,
		AllowSurplus: h.allowSurplus,
	}
	for _, r := range h.rows {
		s.Rows = append(s.Rows, *r)
	}
	if h.multi != nil {
		m := *h.multi
		s.Multi = &m
	}
	return s
}

func addKeys(keys []string, f *document.Fields) []string {
	for _, k := range f.Keys() {
		if !contains(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func contains(keys []string, k string) bool {
	for _, have := range keys {
		if have == k {
			return true
		}
	}
	return false
}
