package seeflaw

import (
	"context"

	"github.com/beevik/etree"

	"github.com/seeflaw/seeflaw/internal/details"
	"github.com/seeflaw/seeflaw/internal/document"
	"github.com/seeflaw/seeflaw/internal/errors"
	"github.com/seeflaw/seeflaw/internal/report"
	"github.com/seeflaw/seeflaw/internal/result"
	"github.com/seeflaw/seeflaw/internal/runner"
)

// test is the state of one document walk.
type test struct {
	*SeeFlaw
	ctx     context.Context
	stop    context.Context
	details *details.Details
	parser  *report.Parser
	ok      bool
}

func (t *test) runner() *runner.Runner {
	return runner.New(t.details, runner.WithLogger(t.logger), runner.WithStop(t.stop), runner.WithClock(t.now))
}

// append parses h into parent. A holder that did not pass fails the test.
func (t *test) append(parent *etree.Element, h *result.Holder) {
	el := t.parser.Parse(h)
	if el == nil {
		return
	}
	parent.AddChild(el)
	if !h.Successful() {
		t.ok = false
	}
}

// task is a call running on its own goroutine.
type task struct {
	r    *runner.Runner
	done chan []*result.Holder
}

func (t *test) start(fn func(r *runner.Runner) []*result.Holder) *task {
	tk := &task{r: t.runner(), done: make(chan []*result.Holder, 1)}
	go func() { tk.done <- fn(tk.r) }()
	return tk
}

// wait returns the holders of a finished task. On kill the task is
// abandoned and only its active holder, marked as killed, is returned.
func (t *test) wait(tk *task) []*result.Holder {
	select {
	case hs := <-tk.done:
		return hs
	case <-t.killCh:
	}
	select {
	case hs := <-tk.done:
		return hs
	default:
	}
	h := tk.r.Active()
	if h == nil {
		return nil
	}
	t.logger.Warn("call killed", "fixture", h.Fixture, "method", h.Method)
	h.Kill(errors.Killed)
	return []*result.Holder{h}
}

// call runs a call, save or fixture param node.
func (t *test) call(body *etree.Element, node *etree.Element) {
	fix, _ := document.OptAttr(node, "fixture")
	method, _ := document.OptAttr(node, "method")
	t.notify(Event{Node: node.Tag, Fixture: fix, Method: method})

	tk := t.start(func(r *runner.Runner) []*result.Holder {
		return []*result.Holder{r.Call(t.ctx, node)}
	})
	ok := true
	for _, h := range t.wait(tk) {
		t.append(body, h)
		ok = ok && h.Successful()
	}
	t.notify(Event{Node: node.Tag, Fixture: fix, Method: method, Done: true, Successful: ok})
}

// async runs the fixtures of an async node concurrently, one goroutine per
// fixture, and appends their results in declaration order.
func (t *test) async(body *etree.Element, node *etree.Element) {
	type pending struct {
		id string
		tk *task
	}
	t.notify(Event{Node: node.Tag})

	var tasks []pending
	for _, fixNode := range document.Children(node, document.TagFixture) {
		id, _ := document.OptAttr(fixNode, "id")
		b, ok := t.details.InitiatedFixture(id)
		if !ok {
			continue
		}
		tasks = append(tasks, pending{id: id, tk: t.start(func(r *runner.Runner) []*result.Holder {
			return r.Async(t.ctx, fixNode, b)
		})})
	}

	ok := true
	el := body.CreateElement(document.KindAsync)
	for _, p := range tasks {
		fixEl := el.CreateElement(document.TagFixture)
		fixEl.CreateAttr("id", p.id)
		for _, h := range t.wait(p.tk) {
			t.append(fixEl, h)
			ok = ok && h.Successful()
		}
	}
	t.notify(Event{Node: node.Tag, Done: true, Successful: ok})
}
