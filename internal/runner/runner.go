package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beevik/etree"

	"github.com/seeflaw/seeflaw/internal/details"
	"github.com/seeflaw/seeflaw/internal/document"
	"github.com/seeflaw/seeflaw/internal/errors"
	"github.com/seeflaw/seeflaw/internal/fixture"
	"github.com/seeflaw/seeflaw/internal/match"
	"github.com/seeflaw/seeflaw/internal/result"
)

// Runner executes the nodes of a test document against their fixtures and
// records the outcome in result holders. A Runner serves one task at a time;
// concurrent tasks use one Runner each.
type Runner struct {
	details *details.Details
	logger  *slog.Logger
	stop    context.Context
	now     func() time.Time

	mu     sync.Mutex
	active *result.Holder
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithStop sets the context checked before each input row. Once it is done
// no further rows are started; the row in flight completes.
func WithStop(ctx context.Context) Option {
	return func(r *Runner) { r.stop = ctx }
}

// WithClock sets the clock of the holders the runner creates.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner working on d.
func New(d *details.Details, opts ...Option) *Runner {
	r := &Runner{details: d, logger: slog.Default(), stop: context.Background(), now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Active returns the holder of the call in flight, or nil.
func (r *Runner) Active() *result.Holder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Runner) setActive(h *result.Holder) *result.Holder {
	r.mu.Lock()
	r.active = h
	r.mu.Unlock()
	return h
}

func (r *Runner) stopped() bool {
	return r.stop.Err() != nil
}

// Params binds a group of literal and argument param nodes.
func (r *Runner) Params(nodes []*etree.Element) *result.Holder {
	h := result.NewGroup(result.TypeParam)
	for _, node := range nodes {
		if err := r.param(h, node); err != nil {
			h.AddRow(nil, nil, nil, err)
		}
	}
	return h
}

func (r *Runner) param(h *result.Holder, node *etree.Element) error {
	name, err := document.Attr(node, "name")
	if err != nil {
		return err
	}
	inputs := document.FieldsOf("name", name)
	expected := document.NewFields()
	actual := map[string]match.Value{}

	value, hasValue := document.OptAttr(node, "value")
	argument, hasArgument := document.OptAttr(node, "argument")
	var rowErr error
	if !hasValue && !hasArgument {
		rowErr = errors.Validation("argument and value attributes missing in param node")
	}
	if hasValue {
		inputs.Set("value", value)
	}
	if hasArgument {
		if v := r.details.Argument(argument); v != "" {
			value = v
			inputs.Set("argument", argument)
			expected.Set("read_value", "")
			actual["read_value"] = match.String(v)
		} else if !hasValue {
			return errors.Validationf("Argument %s in param node is missing in argument list", argument)
		}
	}
	if _, ok := actual["read_value"]; !ok {
		actual["read_value"] = match.String("")
	}
	if err := r.details.AddParameter(name, value); err != nil {
		return err
	}
	r.logger.Debug("parameter bound", "name", name, "value", value)
	h.AddRow(inputs, expected, actual, rowErr)
	return nil
}

// Inits instantiates a group of init nodes.
func (r *Runner) Inits(ctx context.Context, nodes []*etree.Element) *result.Holder {
	h := result.NewGroup(result.TypeInit)
	for _, node := range nodes {
		typeName, err := document.Attr(node, "fixture")
		if err == nil {
			var id string
			if id, err = document.Attr(node, "id"); err == nil {
				if _, err = r.details.InitFixture(ctx, typeName, id); err == nil {
					h.AddRow(document.FieldsOf("fixture", typeName, "id", id), nil, nil, nil)
					continue
				}
			}
		}
		h.AddRow(nil, nil, nil, err)
	}
	return h
}

// Call resolves the fixture named by the node's fixture attribute and runs
// the node. Param nodes run as fixture params.
func (r *Runner) Call(ctx context.Context, node *etree.Element) *result.Holder {
	name, err := document.Attr(node, "fixture")
	if err != nil {
		return r.setupFailed("", node, err)
	}
	b, err := r.details.Fixture(ctx, name)
	if err != nil {
		return r.setupFailed(name, node, errors.Dispatch(name, methodOf(node), err))
	}
	if node.Tag == document.KindParam {
		return r.ParamFixture(ctx, node, b, name)
	}
	return r.CallBound(ctx, node, b, name)
}

// Async runs the calls below an async fixture node in order against b.
func (r *Runner) Async(ctx context.Context, fixtureNode *etree.Element, b fixture.Bound) []*result.Holder {
	id, _ := document.OptAttr(fixtureNode, "id")
	var out []*result.Holder
	for _, call := range document.Children(fixtureNode, document.KindCall) {
		if r.stopped() {
			break
		}
		out = append(out, r.CallBound(ctx, call, b, id))
	}
	return out
}

// ParamFixture binds the string returned by a fixture method to the param
// node's name.
func (r *Runner) ParamFixture(ctx context.Context, node *etree.Element, b fixture.Bound, fixName string) *result.Holder {
	r.setActive(nil)
	methodName := methodOf(node)
	name, err := document.Attr(node, "name")
	if err == nil {
		methodName, err = document.Attr(node, "method")
	}
	if err != nil {
		return r.setupFailed(fixName, node, err)
	}
	m, ok := b.Method(methodName)
	if !ok {
		return r.setupFailed(fixName, node, errors.Dispatch(fixName, methodName,
			fmt.Errorf("no such method '%s' found for fixture %s", methodName, fixName)))
	}

	h := r.setActive(result.New(fixName, methodName, result.WithCallType(result.TypeParam),
		result.WithParamName(name), result.WithClock(r.now)))
	visible, args := document.NewFields(), fixture.Args{}
	if m.Input() != fixture.InputNone {
		visible, args = r.arguments(document.Child(node, document.TagInput), m.Input())
	}

	res, err := b.Call(ctx, methodName, args)
	if err != nil {
		return r.setupFailed(fixName, node, err)
	}
	if err := r.details.AddParameter(name, res.Text); err != nil {
		return r.setupFailed(fixName, node, err)
	}
	h.AddRow(visible, document.FieldsOf("read_value", ""), map[string]match.Value{"read_value": match.String(res.Text)}, nil)
	return h
}

// CallBound runs a call or save node against b. fixName is how the fixture
// is named in the result.
func (r *Runner) CallBound(ctx context.Context, node *etree.Element, b fixture.Bound, fixName string) *result.Holder {
	r.setActive(nil)
	methodName, err := document.Attr(node, "method")
	if err != nil {
		return r.setupFailed(fixName, node, err)
	}
	m, ok := b.Method(methodName)
	if !ok {
		return r.setupFailed(fixName, node, errors.Dispatch(fixName, methodName,
			fmt.Errorf("no such method '%s' found for fixture %s", methodName, fixName)))
	}

	var tolerance *document.Fields
	if t := document.Child(node, document.TagTolerance); t != nil {
		tolerance = r.fields(t, true, false)
	}
	h := r.setActive(result.New(fixName, methodName, result.WithTolerance(tolerance), result.WithClock(r.now)))
	log := r.logger.With("fixture", fixName, "method", methodName)
	log.Debug("calling fixture method", "shape", m.Shape(), "input", m.Input())

	switch m.Shape() {
	case fixture.ShapeVoid:
		r.callVoid(ctx, node, b, methodName, m, h)
	case fixture.ShapeRow:
		r.callRow(ctx, node, b, methodName, m, h)
	case fixture.ShapeRows:
		r.callRows(ctx, node, b, methodName, m, h)
	default:
		return r.setupFailed(fixName, node, errors.Dispatch(fixName, methodName,
			fmt.Errorf("fixture method return type not supported")))
	}
	return h
}

func (r *Runner) callVoid(ctx context.Context, node *etree.Element, b fixture.Bound, name string, m fixture.Method, h *result.Holder) {
	inputs := document.Children(node, document.TagInput)
	if len(inputs) == 0 {
		h.CreateRow(nil, nil)
		_, err := b.Call(ctx, name, fixture.Args{})
		h.SetRowResult(nil, err)
		return
	}
	for _, in := range inputs {
		visible, args := r.arguments(in, m.Input())
		h.CreateRow(visible, nil)
		if r.stopped() {
			h.SetRowResult(nil, errors.Stopped)
			continue
		}
		_, err := b.Call(ctx, name, args)
		h.SetRowResult(nil, err)
	}
}

func (r *Runner) callRow(ctx context.Context, node *etree.Element, b fixture.Bound, name string, m fixture.Method, h *result.Holder) {
	var (
		visible *document.Fields
		args    fixture.Args
	)
	for _, c := range node.ChildElements() {
		switch c.Tag {
		case document.TagInput:
			visible, args = r.arguments(c, m.Input())
		case document.TagOutput:
			expected := r.fields(c, true, false)
			h.CreateRow(visible, expected)
			if r.stopped() {
				h.SetRowResult(nil, errors.Stopped)
				continue
			}
			args.OutputKeys = expected.Keys()
			res, err := b.Call(ctx, name, args)
			h.SetRowResult(match.Values(res.Row), err)
		}
	}
}

func (r *Runner) callRows(ctx context.Context, node *etree.Element, b fixture.Bound, name string, m fixture.Method, h *result.Holder) {
	visible, args := r.arguments(document.Child(node, document.TagInput), m.Input())

	var expected []*document.Fields
	for _, out := range document.Children(node, document.TagOutput) {
		expected = append(expected, r.fields(out, true, false))
	}
	_, allowSurplus := document.OptAttr(node, "allowsurplus")
	if len(expected) == 0 {
		h.CreateMultiRowsWithKeys(visible, outputKeys(node), allowSurplus)
	} else {
		h.CreateMultiRows(visible, expected, allowSurplus)
	}
	if r.stopped() {
		h.SetMultiRowsResult(nil, errors.Stopped)
		return
	}
	args.OutputKeys = h.Snapshot().MultiRowKeys
	res, err := b.Call(ctx, name, args)
	if err != nil {
		h.SetMultiRowsResult(nil, err)
		return
	}
	rows := make([]map[string]match.Value, 0, len(res.Rows))
	for _, row := range res.Rows {
		rows = append(rows, match.Values(row))
	}
	h.SetMultiRowsResult(rows, nil)
}

// setupFailed returns a fresh holder with a single error row. It replaces
// whatever the failed call had recorded.
func (r *Runner) setupFailed(fixName string, node *etree.Element, err error) *result.Holder {
	r.logger.Debug("call failed", "fixture", fixName, "node", node.Tag, "error", err)
	h := result.New(fixName, methodOf(node), result.WithoutTime(), result.WithClock(r.now))
	h.AddRow(nil, nil, nil, err)
	return r.setActive(h)
}

func methodOf(node *etree.Element) string {
	m, _ := document.OptAttr(node, "method")
	return m
}
