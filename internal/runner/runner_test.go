package runner

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/beevik/etree"

	"github.com/seeflaw/seeflaw/internal/details"
	"github.com/seeflaw/seeflaw/internal/document"
	sferrors "github.com/seeflaw/seeflaw/internal/errors"
	"github.com/seeflaw/seeflaw/internal/fixture"
	"github.com/seeflaw/seeflaw/internal/fixture/example"
	"github.com/seeflaw/seeflaw/internal/match"
	"github.com/seeflaw/seeflaw/internal/report"
)

const ex = example.TypeName

func newRunner(t *testing.T, args map[string]string) (*Runner, *details.Details) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	r := fixture.NewRegistry()
	example.Register(r, logger)
	d := details.New(args, r, details.WithLogger(logger))
	return New(d, WithLogger(logger)), d
}

func node(t *testing.T, xml string) *etree.Element {
	t.Helper()
	doc, err := document.Parse([]byte(xml))
	if err != nil {
		t.Fatal(err)
	}
	return doc.Root()
}

func newParser() *report.Parser {
	return report.NewParser(report.NewErrors(), match.New(), report.WithoutTime())
}

func attr(t *testing.T, el *etree.Element, path, name string) string {
	t.Helper()
	found := el.FindElement(path)
	if found == nil {
		t.Fatalf("no element at %q", path)
	}
	return found.SelectAttrValue(name, "")
}

func TestParams_ValueAndArgument(t *testing.T) {
	r, d := newRunner(t, map[string]string{"user": "Arne"})

	h := r.Params([]*etree.Element{
		node(t, `<param name="p1" value="v1"/>`),
		node(t, `<param name="p2" argument="User"/>`),
		node(t, `<param name="p3" argument="none" value="fallback"/>`),
	})

	for name, want := range map[string]string{"p1": "v1", "p2": "Arne", "p3": "fallback"} {
		got, ok := d.Parameter(name)
		if !ok || got != want {
			t.Errorf("parameter %s = %q, %v; want %q", name, got, ok, want)
		}
	}

	tree := newParser().Parse(h)
	if tree.Tag != "paramresult" {
		t.Fatalf("tag = %q, want paramresult", tree.Tag)
	}
	if got := tree.SelectAttrValue("status", ""); got != "passed" {
		t.Errorf("status = %q, want passed", got)
	}
	if got := attr(t, tree, "./result[2]/output/read_value", "actual"); got != "Arne" {
		t.Errorf("read_value = %q, want Arne", got)
	}
	if !h.Successful() {
		t.Error("expected successful holder")
	}
}

func TestParams_Errors(t *testing.T) {
	r, d := newRunner(t, nil)
	if err := d.AddParameter("bound", "1"); err != nil {
		t.Fatal(err)
	}

	h := r.Params([]*etree.Element{
		node(t, `<param name="a" argument="missing"/>`),
		node(t, `<param name="b"/>`),
		node(t, `<param name="bound" value="2"/>`),
	})
	snap := h.Snapshot()
	if len(snap.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(snap.Rows))
	}
	want := []string{
		"Argument missing in param node is missing in argument list",
		"argument and value attributes missing in param node",
		`parameter "bound" already bound to "1", can not rebind to "2"`,
	}
	for i, w := range want {
		if snap.Rows[i].Err == nil || snap.Rows[i].Err.Error() != w {
			t.Errorf("row %d error = %v, want %q", i, snap.Rows[i].Err, w)
		}
	}
	newParser().Parse(h)
	if h.Successful() {
		t.Error("expected failed holder")
	}
}

func TestParamFixture(t *testing.T) {
	r, d := newRunner(t, nil)

	h := r.Call(context.Background(), node(t, `<param name="p" fixture="`+ex+`" method="GetParamWithInputExampleMethod"><input first="one"/></param>`))
	if got, _ := d.Parameter("p"); got != "param one" {
		t.Errorf("parameter = %q, want %q", got, "param one")
	}
	tree := newParser().Parse(h)
	if tree.Tag != "paramresult" || tree.SelectAttrValue("name", "") != "p" {
		t.Errorf("head = %s name=%q", tree.Tag, tree.SelectAttrValue("name", ""))
	}
	if got := attr(t, tree, "./result/input", "first"); got != "one" {
		t.Errorf("input first = %q", got)
	}

	h = r.Call(context.Background(), node(t, `<param name="q" fixture="`+ex+`" method="GetParamExampleMethod"/>`))
	newParser().Parse(h)
	if got, _ := d.Parameter("q"); got != "param test" || !h.Successful() {
		t.Errorf("parameter = %q, successful = %v", got, h.Successful())
	}
}

func TestInits(t *testing.T) {
	r, d := newRunner(t, nil)

	h := r.Inits(context.Background(), []*etree.Element{
		node(t, `<init fixture="`+ex+`" id="e1"/>`),
		node(t, `<init fixture="No.Such" id="e2"/>`),
	})
	if _, ok := d.InitiatedFixture("e1"); !ok {
		t.Error("e1 not initiated")
	}
	snap := h.Snapshot()
	if len(snap.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(snap.Rows))
	}
	if snap.Rows[0].Inputs.Value("id") != "e1" || snap.Rows[0].Err != nil {
		t.Errorf("row 0 = %+v", snap.Rows[0])
	}
	if snap.Rows[1].Err == nil {
		t.Error("expected error for unknown fixture")
	}
	tree := newParser().Parse(h)
	if tree.Tag != "initresult" || tree.SelectAttrValue("status", "") != "error" {
		t.Errorf("tree = %s status=%q", tree.Tag, tree.SelectAttrValue("status", ""))
	}
}

func TestCall_Void(t *testing.T) {
	r, _ := newRunner(t, nil)

	h := r.Call(context.Background(), node(t, `<call fixture="`+ex+`" method="NoOutputExampleMethod"><input name="Arne"/><input/></call>`))
	snap := h.Snapshot()
	if len(snap.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(snap.Rows))
	}
	if snap.Rows[0].Err != nil {
		t.Errorf("row 0 error = %v", snap.Rows[0].Err)
	}
	if snap.Rows[1].Err == nil {
		t.Error("row 1 expected missing input error")
	}
	tree := newParser().Parse(h)
	if got := attr(t, tree, "./result[1]", "status"); got != "passed" {
		t.Errorf("row 1 status = %q", got)
	}
	if got := attr(t, tree, "./result[2]", "status"); got != "error" {
		t.Errorf("row 2 status = %q", got)
	}
}

func TestCall_SingleOutput(t *testing.T) {
	r, _ := newRunner(t, nil)

	h := r.Call(context.Background(), node(t, `<call fixture="`+ex+`" method="SingleOutputExampleMethod">
		<input name="Arne"/><output message="Hello Arne"/>
		<input name="Bo"/><output message="Hello Arne"/>
		<input name="Cy"/><output message="Hello Cy" other="x"/>
	</call>`))
	tree := newParser().Parse(h)

	cases := []struct{ path, want string }{
		{"./result[1]", "passed"},
		{"./result[2]", "failed"},
		{"./result[2]/output/message", "unmatch"},
		{"./result[3]/output/message", "passed"},
		{"./result[3]/output/other", "missing"},
	}
	for _, c := range cases {
		if got := attr(t, tree, c.path, "status"); got != c.want {
			t.Errorf("%s status = %q, want %q", c.path, got, c.want)
		}
	}
	if h.Successful() {
		t.Error("expected failed call")
	}
}

func TestCall_ParameterSubstitution(t *testing.T) {
	r, d := newRunner(t, nil)
	if err := d.AddParameter("user", "Arne"); err != nil {
		t.Fatal(err)
	}

	h := r.Call(context.Background(), node(t, `<call fixture="`+ex+`" method="SingleOutputExampleMethod"><input name="user"/><output message="Hello Arne"/></call>`))
	tree := newParser().Parse(h)
	if got := tree.SelectAttrValue("status", ""); got != "passed" {
		t.Errorf("status = %q, want passed", got)
	}
	if got := attr(t, tree, "./result/input", "name"); got != "Arne" {
		t.Errorf("visible input = %q, want substituted value", got)
	}
}

func TestCall_MultiOutput(t *testing.T) {
	r, _ := newRunner(t, nil)

	tests := []struct {
		name   string
		xml    string
		status string
	}{
		{"two lines", `<call fixture="` + ex + `" method="MultiOutputExampleMethod"><input lines="2"/><output message="line2"/><output message="line1"/></call>`, "passed"},
		{"one missing", `<call fixture="` + ex + `" method="MultiOutputExampleMethod"><input lines="2"/><output message="line1"/><output message="line2"/><output message="line3"/></call>`, "failed"},
		{"one surplus", `<call fixture="` + ex + `" method="MultiOutputExampleMethod"><input lines="2"/><output message="line1"/></call>`, "failed"},
		{"keys surplus", `<call fixture="` + ex + `" method="MultiOutputExampleMethod"><input lines="2"/><outputkeys message=""/></call>`, "failed"},
		{"keys allowed surplus", `<call fixture="` + ex + `" method="MultiOutputExampleMethod" allowsurplus="true"><input lines="2"/><outputkeys message=""/></call>`, "passed"},
		{"error", `<call fixture="` + ex + `" method="MultiOutputExampleMethod"><input/><output message="line1"/></call>`, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := newParser().Parse(r.Call(context.Background(), node(t, tt.xml)))
			if got := tree.SelectAttrValue("status", ""); got != tt.status {
				t.Errorf("status = %q, want %q", got, tt.status)
			}
			if got := tree.SelectAttrValue("type", ""); got != "multi" {
				t.Errorf("type = %q, want multi", got)
			}
		})
	}
}

func TestCall_DifferentTypesWithTolerance(t *testing.T) {
	r, _ := newRunner(t, nil)

	h := r.Call(context.Background(), node(t, `<call fixture="`+ex+`" method="SingleOutputDifferentObjectTypesExampleMethod">
		<tolerance double="0.2"/>
		<input/><output int="12345" long="12345" double="12345,2" bool="True" date="2009-05-20 14:30"/>
	</call>`))
	tree := newParser().Parse(h)
	if got := tree.SelectAttrValue("status", ""); got != "passed" {
		t.Errorf("status = %q, want passed\n%s", got, dump(tree))
	}
	if got := attr(t, tree, "./outputkeys/double", "tolerance"); got != "0.2" {
		t.Errorf("tolerance = %q", got)
	}
}

func TestCall_TreeInput(t *testing.T) {
	r, _ := newRunner(t, nil)

	h := r.Call(context.Background(), node(t, `<call fixture="`+ex+`" method="SingleOutputXmlInputExampleMethod">
		<input><item/><item/><other/></input><output item="2" other="1"/>
	</call>`))
	if tree := newParser().Parse(h); tree.SelectAttrValue("status", "") != "passed" {
		t.Errorf("single tree input failed:\n%s", dump(tree))
	}

	h = r.Call(context.Background(), node(t, `<call fixture="`+ex+`" method="MultiOutputXmlInputExampleMethod">
		<input><row a="1"/><row a="2"/></input><output a="2"/><output a="1"/>
	</call>`))
	if tree := newParser().Parse(h); tree.SelectAttrValue("status", "") != "passed" {
		t.Errorf("multi tree input failed:\n%s", dump(tree))
	}
}

func TestCall_SetupFailures(t *testing.T) {
	r, _ := newRunner(t, nil)

	tests := []struct {
		name string
		xml  string
	}{
		{"unknown fixture", `<call fixture="No.Such" method="M"/>`},
		{"unknown method", `<call fixture="` + ex + `" method="Nope"/>`},
		{"string method", `<call fixture="` + ex + `" method="GetParamExampleMethod"/>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := r.Call(context.Background(), node(t, tt.xml))
			if !h.SkipTime {
				t.Error("setup failure holder should skip time")
			}
			tree := newParser().Parse(h)
			if got := tree.SelectAttrValue("status", ""); got != "error" {
				t.Errorf("status = %q, want error", got)
			}
			if r.Active() != h {
				t.Error("active holder not the returned one")
			}
		})
	}
}

func TestCall_StopBeforeRows(t *testing.T) {
	stop, cancel := context.WithCancel(context.Background())
	cancel()
	r, d := newRunner(t, nil)
	r = New(d, WithStop(stop))

	tests := []struct {
		name string
		xml  string
		rows int
		path string
	}{
		{"void", `<call fixture="` + ex + `" method="NoOutputExampleMethod"><input name="a"/><input name="b"/></call>`, 2, ""},
		{"row", `<call fixture="` + ex + `" method="SingleOutputExampleMethod"><input name="a"/><output message="Hello a"/><output message="Hello a"/></call>`, 2, "result/output/message"},
		{"rows", `<call fixture="` + ex + `" method="MultiOutputExampleMethod"><input lines="1"/><output message="line1"/></call>`, 1, "result/output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := r.Call(context.Background(), node(t, tt.xml))
			rows := h.Snapshot().Rows
			if len(rows) != tt.rows {
				t.Fatalf("rows = %d, want %d", len(rows), tt.rows)
			}
			for i, row := range rows {
				if !sferrors.Is(row.Err, sferrors.KindCancel) {
					t.Errorf("row %d error = %v, want cancel", i, row.Err)
				}
				if row.Actual != nil {
					t.Errorf("row %d has actual values after stop", i)
				}
			}

			tree := newParser().Parse(h)
			if got := tree.SelectAttrValue("status", ""); got != "error" {
				t.Errorf("status = %q, want error\n%s", got, dump(tree))
			}
			if tree.FindElement("result/error") == nil {
				t.Error("stopped call has no error element")
			}
			if tt.path != "" {
				if got := attr(t, tree, tt.path, "status"); got != "unprocessed" {
					t.Errorf("%s status = %q, want unprocessed", tt.path, got)
				}
			}
		})
	}
}

func TestCall_AllowSurplusWithExpectedRows(t *testing.T) {
	r, _ := newRunner(t, nil)

	for _, allow := range []bool{false, true} {
		call := `<call fixture="` + ex + `" method="MultiOutputExampleMethod"`
		if allow {
			call += ` allowsurplus="true"`
		}
		call += `><input lines="3"/><output message="line1"/><output message="line3"/></call>`

		h := r.Call(context.Background(), node(t, call))
		tree := newParser().Parse(h)
		want := "failed"
		if allow {
			want = "passed"
		}
		if got := tree.SelectAttrValue("status", ""); got != want {
			t.Errorf("allowsurplus=%v: status = %q, want %q\n%s", allow, got, want, dump(tree))
		}
		if got := attr(t, tree, "result/output[3]", "status"); got != "surplus" {
			t.Errorf("allowsurplus=%v: third output status = %q, want surplus", allow, got)
		}
		if h.Successful() != allow {
			t.Errorf("allowsurplus=%v: successful = %v", allow, h.Successful())
		}
	}
}

func TestAsync(t *testing.T) {
	r, d := newRunner(t, nil)
	b, err := d.InitFixture(context.Background(), ex, "e")
	if err != nil {
		t.Fatal(err)
	}

	holders := r.Async(context.Background(), node(t, `<fixture id="e">
		<call method="SingleOutputExampleMethod"><input name="a"/><output message="Hello a"/></call>
		<call method="NoOutputExampleMethod"><input name="b"/></call>
	</fixture>`), b)
	if len(holders) != 2 {
		t.Fatalf("holders = %d, want 2", len(holders))
	}
	for i, h := range holders {
		if h.Fixture != "e" {
			t.Errorf("holder %d fixture = %q, want id", i, h.Fixture)
		}
		if tree := newParser().Parse(h); tree.SelectAttrValue("status", "") != "passed" {
			t.Errorf("holder %d:\n%s", i, dump(tree))
		}
	}
}

func dump(el *etree.Element) string {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	doc.Indent(2)
	s, _ := doc.WriteToString()
	return s
}
