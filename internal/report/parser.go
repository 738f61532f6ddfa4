// Package report renders call results into the result tree and the console
// summary.
package report

import (
	"fmt"
	"time"

	"github.com/beevik/etree"

	"github.com/seeflaw/seeflaw/internal/document"
	"github.com/seeflaw/seeflaw/internal/match"
	"github.com/seeflaw/seeflaw/internal/result"
)

// Statuses used in the result tree.
const (
	StatusPassed      = "passed"
	StatusFailed      = "failed"
	StatusError       = "error"
	StatusMissing     = "missing"
	StatusUnmatch     = "unmatch"
	StatusSurplus     = "surplus"
	StatusUnprocessed = "unprocessed"
)

// status tracks the overall outcome of one call.
type status struct {
	passed bool
	typ    string
}

func newStatus() *status { return &status{passed: true, typ: StatusPassed} }

func (s *status) fail() {
	s.passed = false
	s.typ = StatusFailed
}

func (s *status) setError() {
	s.passed = false
	s.typ = StatusError
}

// Parser turns result holders into result tree elements.
type Parser struct {
	errors  *Errors
	matcher *match.Matcher
	noTime  bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithoutTime renders every time as "(00:00:00)" so trees are reproducible.
func WithoutTime() Option {
	return func(p *Parser) { p.noTime = true }
}

// NewParser creates a Parser numbering errors in errs.
func NewParser(errs *Errors, m *match.Matcher, opts ...Option) *Parser {
	p := &Parser{errors: errs, matcher: m}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Errors returns the error listing the parser numbers into.
func (p *Parser) Errors() *Errors { return p.errors }

// Parse renders h as a <{calltype}result> element. The holder is marked
// failed when any of its rows did not pass. Parse returns nil for a nil
// holder.
func (p *Parser) Parse(h *result.Holder) *etree.Element {
	if h == nil {
		return nil
	}
	snap := h.Snapshot()
	st := newStatus()

	var rows []*etree.Element
	methodType := "single"
	if snap.Multi != nil {
		methodType = "multi"
		rows = []*etree.Element{p.multiRows(snap, st, h.SkipTime)}
	} else {
		rows = p.singleRows(snap, st, h.SkipTime)
	}

	head := p.head(h, snap, st, methodType)
	for _, r := range rows {
		head.AddChild(r)
	}
	if !st.passed {
		h.Fail()
	}
	return head
}

func (p *Parser) head(h *result.Holder, snap result.Snapshot, st *status, methodType string) *etree.Element {
	callType := h.CallType
	if callType == "" {
		callType = result.TypeCall
	}
	el := etree.NewElement(callType + "result")
	el.CreateAttr("fixture", h.Fixture)
	el.CreateAttr("method", h.Method)
	el.CreateAttr("status", st.typ)
	el.CreateAttr("type", methodType)
	if !h.SkipTime {
		el.CreateAttr("time", p.Elapsed(h.RunTime()))
	}
	if h.ParamName != "" {
		el.CreateAttr("name", h.ParamName)
	}

	inputs := el.CreateElement("inputkeys")
	for _, k := range snap.InputKeys {
		inputs.CreateElement(k)
	}
	outputs := el.CreateElement("outputkeys")
	for _, k := range append(snap.OutputKeys, snap.MultiRowKeys...) {
		outputs.CreateElement(k).CreateAttr("tolerance", snap.Tolerance.Value(k))
	}
	return el
}

func (p *Parser) singleRows(snap result.Snapshot, st *status, skipTime bool) []*etree.Element {
	var out []*etree.Element
	for _, row := range snap.Rows {
		el := etree.NewElement("result")
		el.CreateAttr("status", StatusPassed)
		if !skipTime {
			el.CreateAttr("time", p.Elapsed(row.Elapsed))
		}
		p.inputRow(el, snap.InputKeys, row.Inputs)

		if row.Err != nil {
			el.CreateAttr("status", StatusError)
			el.AddChild(p.errors.Add(row.Err))
			st.setError()
			unprocessed(el.CreateElement("output"), snap.OutputKeys, row.Expected)
		} else if p.matchingData(el.CreateElement("output"), row.Expected, row.Actual, snap.OutputKeys, snap.Tolerance) != StatusPassed {
			el.CreateAttr("status", StatusFailed)
			st.fail()
		}
		out = append(out, el)
	}
	return out
}

func (p *Parser) multiRows(snap result.Snapshot, st *status, skipTime bool) *etree.Element {
	el := etree.NewElement("result")
	if len(snap.Rows) > 0 {
		row := snap.Rows[0]
		if !skipTime {
			el.CreateAttr("time", p.Elapsed(row.Elapsed))
		}
		p.inputRow(el, snap.InputKeys, row.Inputs)
		if row.Err != nil {
			el.CreateAttr("status", StatusUnprocessed)
			el.AddChild(p.errors.Add(row.Err))
			st.setError()
			for _, expected := range snap.Multi.Expected {
				out := el.CreateElement("output")
				out.CreateAttr("status", StatusUnprocessed)
				unprocessed(out, snap.MultiRowKeys, expected)
			}
		}
	}

	if snap.Multi.Actual != nil {
		matched := p.matcher.MatchRows(snap.Multi.Expected, snap.Multi.Actual, snap.MultiRowKeys, snap.Tolerance)
		for i, expected := range snap.Multi.Expected {
			out := etree.NewElement("output")
			part := p.matchingData(out, expected, matched[i], snap.MultiRowKeys, snap.Tolerance)
			if part != StatusPassed {
				st.fail()
			}
			out.CreateAttr("status", part)
			el.AddChild(out)
		}
		surplus := matched[len(snap.Multi.Expected):]
		if len(surplus) > 0 && !snap.AllowSurplus {
			st.fail()
		}
		for _, row := range surplus {
			out := el.CreateElement("output")
			out.CreateAttr("status", StatusSurplus)
			for _, k := range snap.MultiRowKeys {
				key := out.CreateElement(k)
				key.CreateAttr("expected", "")
				key.CreateAttr("actual", row[k].String())
				key.CreateAttr("status", StatusSurplus)
			}
		}
	}
	el.CreateAttr("status", st.typ)
	return el
}

func (p *Parser) inputRow(parent *etree.Element, keys []string, inputs *document.Fields) {
	in := parent.CreateElement("input")
	for _, k := range keys {
		in.CreateAttr(k, inputs.Value(k))
	}
}

func unprocessed(parent *etree.Element, keys []string, expected *document.Fields) {
	for _, k := range keys {
		key := parent.CreateElement(k)
		key.CreateAttr("expected", expected.Value(k))
		key.CreateAttr("actual", "")
		key.CreateAttr("status", StatusUnprocessed)
	}
}

// matchingData writes one <key expected actual status/> element per output
// key under parent and returns the row status: passed, failed, or missing
// when the fixture returned no row at all.
func (p *Parser) matchingData(parent *etree.Element, expected *document.Fields, actual map[string]match.Value, keys []string, tolerance *document.Fields) string {
	part := StatusPassed
	if len(keys) == 0 {
		return part
	}
	if actual == nil {
		part = StatusMissing
	}
	for _, k := range keys {
		key := parent.CreateElement(k)
		o := p.matcher.Compare(k, expected, actual, tolerance)
		key.CreateAttr("expected", o.Expected)
		key.CreateAttr("actual", o.Actual)
		switch {
		case part == StatusMissing:
			key.CreateAttr("status", StatusMissing)
		case o.Match:
			key.CreateAttr("status", StatusPassed)
		case o.Missing:
			key.CreateAttr("status", StatusMissing)
			part = StatusFailed
		default:
			key.CreateAttr("status", StatusUnmatch)
			part = StatusFailed
		}
	}
	return part
}

// Elapsed formats d as "(hh:mm:ss.fffffff)", with a leading "d." for
// durations of a day or more and no fraction for whole seconds.
func (p *Parser) Elapsed(d time.Duration) string {
	if p.noTime {
		return "(00:00:00)"
	}
	return "(" + FormatDuration(d) + ")"
}

// FormatDuration formats d as [-][d.]hh:mm:ss[.fffffff].
func FormatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	ticks := int64(d / 100) // 100ns units
	frac := ticks % 10_000_000
	secs := ticks / 10_000_000
	days := secs / 86400
	secs %= 86400

	s := sign
	if days > 0 {
		s += fmt.Sprintf("%d.", days)
	}
	s += fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
	if frac > 0 {
		s += fmt.Sprintf(".%07d", frac)
	}
	return s
}
