// Package seeflaw runs a test document: it validates the document, walks its
// nodes in order, dispatches calls to fixtures and assembles the result tree.
package seeflaw

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/seeflaw/seeflaw/internal/details"
	"github.com/seeflaw/seeflaw/internal/document"
	"github.com/seeflaw/seeflaw/internal/errors"
	"github.com/seeflaw/seeflaw/internal/match"
	"github.com/seeflaw/seeflaw/internal/report"
	"github.com/seeflaw/seeflaw/internal/syntax"
)

// Version is written to the head of every result tree.
const Version = "SeeFlaw v1.0"

// Event reports a node starting or finishing.
type Event struct {
	Node       string
	Fixture    string
	Method     string
	Done       bool
	Successful bool
}

// SeeFlaw runs test documents with one set of run details.
type SeeFlaw struct {
	details  *details.Details
	logger   *slog.Logger
	matcher  *match.Matcher
	noTime   bool
	observer func(Event)
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	killOnce sync.Once
	killCh   chan struct{}

	saveInput *etree.Element
}

// Option configures a SeeFlaw.
type Option func(*SeeFlaw)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *SeeFlaw) { s.logger = l }
}

// WithoutTime leaves timings, the run time and the run id out of the result
// tree.
func WithoutTime() Option {
	return func(s *SeeFlaw) { s.noTime = true }
}

// WithObserver sets a function called when a node starts and finishes. It
// is called from the goroutine running the document.
func WithObserver(fn func(Event)) Option {
	return func(s *SeeFlaw) { s.observer = fn }
}

// WithClock sets the clock used for the result head.
func WithClock(now func() time.Time) Option {
	return func(s *SeeFlaw) { s.now = now }
}

// New creates a SeeFlaw running with d.
func New(d *details.Details, opts ...Option) *SeeFlaw {
	s := &SeeFlaw{
		details: d,
		logger:  slog.Default(),
		now:     time.Now,
		stopCh:  make(chan struct{}),
		killCh:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.matcher = match.New(match.WithLogger(s.logger), match.WithClock(s.now))
	return s
}

// Stop ends the run after the rows in flight. No further rows or nodes are
// started.
func (s *SeeFlaw) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Kill abandons the calls in flight and ends the run. The active row of each
// abandoned call is marked as killed. A fixture that ignores its context
// keeps running in the background until it returns.
func (s *SeeFlaw) Kill() {
	s.Stop()
	s.killOnce.Do(func() { close(s.killCh) })
}

// Outcome is the result of a run.
type Outcome struct {
	Test       string
	RunID      string
	Successful bool
	Tree       *etree.Element
	Errors     []report.ErrorEntry
	RunTime    time.Duration
}

// Document returns the result tree as an indented document.
func (o *Outcome) Document() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.SetRoot(o.Tree)
	doc.Indent(2)
	return doc
}

// Summary returns the console summary of the run.
func (o *Outcome) Summary() report.Summary {
	return report.Summarize(o.Test, o.Tree, o.Successful, o.RunTime, o.Errors)
}

// ExitCode is 0 for a passed run and 2 for a failed one.
func (o *Outcome) ExitCode() int {
	if o.Successful {
		return errors.ExitSuccess
	}
	return errors.ExitTestFailed
}

// RunFile reads and runs the test document at path.
func (s *SeeFlaw) RunFile(ctx context.Context, path string) (*Outcome, error) {
	doc, err := document.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, doc, path)
}

// Run validates and runs doc. The pre-case runs first and the post-case last,
// receiving the result tree for its save nodes; their failures are logged.
// The returned error is set only when the document could not be run.
func (s *SeeFlaw) Run(ctx context.Context, doc *etree.Document, testFile string) (*Outcome, error) {
	start := s.now()
	ctx, stop, cancel := s.watch(ctx)
	defer cancel()

	if pre := s.details.PreCase(); pre != "" {
		s.runCase(ctx, stop, pre, "PreCase")
	}

	v, err := syntax.Validate(ctx, doc, testFile, s.details, s.saveInput)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Test: testFile, RunID: uuid.NewString()}
	errs := report.NewErrors()
	out.Tree = etree.NewElement("seeflawresult")
	head := out.Tree.CreateElement("head")
	head.CreateAttr("test", testFile)
	head.CreateAttr("version", Version)
	if !s.noTime {
		head.CreateAttr("runtime", start.Format("2006-01-02 15:04:05"))
		head.CreateAttr("run", out.RunID)
	}

	s.logger.Info("running test", "test", testFile, "run", out.RunID)
	out.Successful = s.runTest(ctx, stop, v.Root, out.Tree, s.details.Copy(), v.Loads, errs)
	out.Errors = errs.Entries()
	out.RunTime = s.now().Sub(start)

	if post := s.details.PostCase(); post != "" {
		s.saveInput = out.Tree
		s.runCase(ctx, stop, post, "PostCase")
		s.saveInput = nil
	}
	s.logger.Info("test finished", "test", testFile, "successful", out.Successful, "duration", out.RunTime)
	return out, nil
}

// watch derives the fixture context, cancelled on Kill, and the stop
// context, done on Stop or Kill.
func (s *SeeFlaw) watch(parent context.Context) (context.Context, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop, stopCancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.stopCh:
			stopCancel()
		case <-ctx.Done():
			return
		}
		select {
		case <-s.killCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, stop, func() {
		stopCancel()
		cancel()
	}
}

func (s *SeeFlaw) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// runCase runs a pre- or post-case document into a throwaway tree.
func (s *SeeFlaw) runCase(ctx, stop context.Context, path, label string) {
	path = strings.Trim(path, `"`)
	log := s.logger.With("case", label, "file", path)
	log.Info("start of " + label)
	defer log.Info("end of " + label)

	if _, err := os.Stat(path); err != nil {
		log.Error("No such " + label + " file " + path)
		return
	}
	doc, err := document.ReadFile(path)
	if err != nil {
		log.Error("reading case failed", "error", err)
		return
	}
	v, err := syntax.Validate(ctx, doc, path, s.details, s.saveInput)
	if err != nil {
		log.Error(err.Error())
		return
	}
	tree := etree.NewElement("caseresult")
	if !s.runTest(ctx, stop, v.Root, tree, s.details.Copy(), v.Loads, report.NewErrors()) {
		log.Error(label + " failed")
		for _, el := range tree.FindElements(".//result[@status='error']/error") {
			log.Error(el.Text())
		}
	}
}

// runTest walks the nodes below root and appends their results to body.
func (s *SeeFlaw) runTest(ctx, stop context.Context, root, body *etree.Element, d *details.Details, loads map[string]*etree.Element, errs *report.Errors) bool {
	var popts []report.Option
	if s.noTime {
		popts = append(popts, report.WithoutTime())
	}
	t := &test{
		SeeFlaw: s,
		ctx:     ctx,
		stop:    stop,
		details: d,
		parser:  report.NewParser(errs, s.matcher, popts...),
		ok:      true,
	}
	nodes := root.ChildElements()
	for i := 0; i < len(nodes) && !s.stopped(); i++ {
		node := nodes[i]
		switch node.Tag {
		case document.KindText:
			group := consecutive(nodes, i, func(n *etree.Element) bool { return n.Tag == document.KindText })
			text := body.CreateElement("text")
			for _, n := range group {
				text.CreateElement("row").SetText(document.InnerText(n))
			}
			i += len(group) - 1

		case document.KindParam:
			group := consecutive(nodes, i, func(n *etree.Element) bool {
				_, hasFixture := document.OptAttr(n, "fixture")
				return n.Tag == document.KindParam && !hasFixture
			})
			if len(group) > 0 {
				t.append(body, t.runner().Params(group))
				i += len(group) - 1
				continue
			}
			t.call(body, node)

		case document.KindInit:
			group := consecutive(nodes, i, func(n *etree.Element) bool { return n.Tag == document.KindInit })
			t.append(body, t.runner().Inits(ctx, group))
			i += len(group) - 1

		case document.KindCall:
			t.call(body, node)

		case document.KindSave:
			t.call(body, s.withSaveInput(node))

		case document.KindLoad:
			file, _ := document.OptAttr(node, "file")
			loaded, ok := loads[file]
			if !ok {
				continue
			}
			el := etree.NewElement("load")
			el.CreateAttr("file", file)
			if !s.runTest(ctx, stop, loaded, el, d.LoadCopy(file), nil, errs) {
				t.ok = false
			}
			body.AddChild(el)

		case document.KindAsync:
			t.async(body, node)

		default:
			s.logger.Debug("skipping unknown node", "node", node.Tag)
		}
	}
	return t.ok
}

// withSaveInput returns a copy of a save node whose input elements hold the
// result tree to save. A save node without input gets one.
func (s *SeeFlaw) withSaveInput(node *etree.Element) *etree.Element {
	c := node.Copy()
	inputs := document.Children(c, document.TagInput)
	if len(inputs) == 0 {
		c.CreateElement(document.TagInput).AddChild(s.saveInput.Copy())
		return c
	}
	for _, in := range inputs {
		in.InsertChildAt(0, s.saveInput.Copy())
	}
	return c
}

// consecutive returns the nodes from i on that satisfy keep.
func consecutive(nodes []*etree.Element, i int, keep func(*etree.Element) bool) []*etree.Element {
	var out []*etree.Element
	for ; i < len(nodes) && keep(nodes[i]); i++ {
		out = append(out, nodes[i])
	}
	return out
}

func (s *SeeFlaw) notify(e Event) {
	if s.observer != nil {
		s.observer(e)
	}
}
