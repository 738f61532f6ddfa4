package syntax

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seeflaw/seeflaw/internal/details"
	"github.com/seeflaw/seeflaw/internal/document"
	"github.com/seeflaw/seeflaw/internal/errors"
	"github.com/seeflaw/seeflaw/internal/fixture"
	"github.com/seeflaw/seeflaw/internal/fixture/example"
)

const ex = example.TypeName

func newDetails(args map[string]string) *details.Details {
	r := fixture.NewRegistry()
	example.Register(r, nil)
	return details.New(args, r)
}

func validate(t *testing.T, xml string, saveInput *etree.Element) (*Validated, error) {
	t.Helper()
	doc, err := document.Parse([]byte(xml))
	require.NoError(t, err)
	return Validate(context.Background(), doc, "testfile", newDetails(nil), saveInput)
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		xml  string
		want string
	}{
		{"no root", `<other/>`, "No seeflaw root node in xml file"},
		{"two roots", `<x><seeflaw/><seeflaw/></x>`, "More than one seeflaw node in xml file"},
		{"param without name", `<seeflaw><param value="tp1"/></seeflaw>`, "name attribute missing in param node."},
		{"param without value", `<seeflaw><param name="tp1"/></seeflaw>`, "No argument or value attribute in param node."},
		{"param unknown argument", `<seeflaw><param name="tp1" argument="user"/></seeflaw>`, "Argument user in param node was not found in argument list."},
		{"param duplicate", `<seeflaw><param name="p1" value="some"/><param name="p1" value="test"/></seeflaw>`, "More than one param node with same name attribute p1."},
		{"param fixture unknown", `<seeflaw><param name="p" fixture="No.Such" method="M"/></seeflaw>`, "Fixture No.Such in param node could not be found"},
		{"param fixture no method attr", `<seeflaw><param name="p" fixture="` + ex + `"/></seeflaw>`, "Missing method attribute for fixture param p"},
		{"param fixture bad method", `<seeflaw><param name="p" fixture="` + ex + `" method="Nope"/></seeflaw>`, "No such method 'Nope' found for fixture " + ex},
		{"param fixture not string", `<seeflaw><param name="p" fixture="` + ex + `" method="SingleOutputExampleMethod"/></seeflaw>`, "Fixture " + ex + " in param node has wrong return type, must be string"},
		{"init without fixture", `<seeflaw><init id="tp1"/></seeflaw>`, "fixture attribute missing in init node."},
		{"init without id", `<seeflaw><init fixture="printFixture"/></seeflaw>`, "id attribute missing in init node."},
		{"init bad format", `<seeflaw><init fixture="invalidFixture" id="tp1"/></seeflaw>`, "fixture 'invalidFixture' is given in bad format, should be Namespace.Type"},
		{"init unknown", `<seeflaw><init fixture="No.Such" id="tp1"/></seeflaw>`, "Invalid fixture No.Such in init node."},
		{"init duplicate id", `<seeflaw><init fixture="` + ex + `" id="a"/><init fixture="` + ex + `" id="a"/></seeflaw>`, "More than one init fixture with id a"},
		{"call without fixture", `<seeflaw><call method="some"/></seeflaw>`, "fixture attribute missing in call node."},
		{"call without method", `<seeflaw><call fixture="test"/></seeflaw>`, "method attribute missing in call node."},
		{"call bad format", `<seeflaw><call fixture="invalidFixture" method="some"/></seeflaw>`, "fixture 'invalidFixture' is given in bad format, should be Namespace.Type"},
		{"call unknown fixture", `<seeflaw><call fixture="No.Such" method="some"/></seeflaw>`, "Invalid fixture No.Such in call node."},
		{"call bad method", `<seeflaw><call fixture="` + ex + `" method="some"/></seeflaw>`, "Invalid method some in call node."},
		{"row no input", `<seeflaw><call fixture="` + ex + `" method="SingleOutputExampleMethod"/></seeflaw>`, "No input node in " + ex + " : SingleOutputExampleMethod"},
		{"row no output", `<seeflaw><call fixture="` + ex + `" method="SingleOutputExampleMethod"><input/></call></seeflaw>`, "No output node after last input node in " + ex + " : SingleOutputExampleMethod"},
		{"row double input", `<seeflaw><call fixture="` + ex + `" method="SingleOutputExampleMethod"><input/><output/><input/><input/><output/></call></seeflaw>`, "Multiple input nodes not allowed in " + ex + " : SingleOutputExampleMethod"},
		{"row double output", `<seeflaw><call fixture="` + ex + `" method="SingleOutputExampleMethod"><input/><output/><output/><input/><output/></call></seeflaw>`, "output node without input node in " + ex + " : SingleOutputExampleMethod"},
		{"void with output", `<seeflaw><call fixture="` + ex + `" method="NoOutputExampleMethod"><input/><output/></call></seeflaw>`, "No output node allowed in " + ex + " : NoOutputExampleMethod"},
		{"void missing input", `<seeflaw><call fixture="` + ex + `" method="NoOutputExampleMethod"/></seeflaw>`, "Missing input node in " + ex + " : NoOutputExampleMethod"},
		{"rows output first", `<seeflaw><call fixture="` + ex + `" method="MultiOutputExampleMethod"><output/><input/></call></seeflaw>`, "No input node before output nodes in " + ex + " : MultiOutputExampleMethod"},
		{"rows double input", `<seeflaw><call fixture="` + ex + `" method="MultiOutputExampleMethod"><input/><input/></call></seeflaw>`, "Multiple input nodes not allowed in " + ex + " : MultiOutputExampleMethod"},
		{"rows no input", `<seeflaw><call fixture="` + ex + `" method="MultiOutputExampleMethod"/></seeflaw>`, "No input node in " + ex + " : MultiOutputExampleMethod"},
		{"string method called", `<seeflaw><call fixture="` + ex + `" method="GetParamExampleMethod"/></seeflaw>`, "Wrong return type of method GetParamExampleMethod in " + ex + "."},
		{"async unknown id", `<seeflaw><async><fixture id="ExampleFixture"><call method="SingleOutputExampleMethod"><input/><output/></call></fixture></async></seeflaw>`, "Invalid id 'ExampleFixture' in async fixture node."},
		{"save without input", `<seeflaw><save fixture="` + ex + `" method="SingleOutputXmlInputExampleMethod"/></seeflaw>`, "No result data to save"},
		{"load duplicate", `<seeflaw><load file="a.xml"/><load file="a.xml"/></seeflaw>`, "More than one load node with same file attribute a.xml."},
		{"load missing", `<seeflaw><load file="does-not-exist.xml"/></seeflaw>`, "Can not find load file does-not-exist.xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validate(t, tt.xml, nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.True(t, errors.Is(err, errors.KindValidation), "kind of %v", err)
		})
	}
}

func TestValidate_Save(t *testing.T) {
	t.Parallel()
	saved := etree.NewElement("seeflawresult")

	_, err := validate(t, `<seeflaw><save fixture="`+ex+`" method="NoOutputExampleMethod"/></seeflaw>`, saved)
	require.Error(t, err)
	assert.Equal(t, "Method NoOutputExampleMethod parameter is of wrong type. Must be XmlNode", err.Error())

	_, err = validate(t, `<seeflaw><save fixture="`+ex+`" method="GetParamExampleMethod"/></seeflaw>`, saved)
	require.Error(t, err)
	assert.Equal(t, "Method GetParamExampleMethod takes no input parameter.", err.Error())

	_, err = validate(t, `<seeflaw><save fixture="`+ex+`" method="Nope"/></seeflaw>`, saved)
	require.Error(t, err)
	assert.Equal(t, "Invalid method Nope in save node.", err.Error())

	_, err = validate(t, `<seeflaw><save fixture="`+ex+`" method="SingleOutputXmlInputExampleMethod"><input/><output/></save></seeflaw>`, saved)
	assert.NoError(t, err)
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	docs := []string{
		`<seeflaw><call fixture="` + ex + `" method="SingleOutputExampleMethod"><input/><output/><input/><output/></call></seeflaw>`,
		`<seeflaw><init fixture="` + ex + `" id="id1"/><async><fixture id="id1"><call method="SingleOutputExampleMethod"><input name="t"/><output/></call></fixture></async></seeflaw>`,
		`<seeflaw><text>hello</text><param name="p" value="v"/><param name="q" fixture="` + ex + `" method="GetParamExampleMethod"/></seeflaw>`,
		`<seeflaw><init fixture="` + ex + `" id="e"/><call fixture="e" method="MultiOutputExampleMethod"><input lines="2"/><output message="line1"/></call></seeflaw>`,
		`<seeflaw><call fixture="` + ex + `" method="MultiOutputExampleMethod"><input lines="2"/></call></seeflaw>`,
		`<seeflaw><unknown/></seeflaw>`,
	}
	for _, xml := range docs {
		v, err := validate(t, xml, nil)
		require.NoError(t, err, xml)
		assert.Equal(t, "seeflaw", v.Root.Tag)
	}
}

func TestValidate_ArgumentParam(t *testing.T) {
	t.Parallel()
	doc, err := document.Parse([]byte(`<seeflaw><param name="u" argument="User"/></seeflaw>`))
	require.NoError(t, err)

	_, err = Validate(context.Background(), doc, "testfile", newDetails(map[string]string{"user": "Arne"}), nil)
	assert.NoError(t, err)
}

func TestValidate_Loads(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "part.xml", `<seeflaw><call fixture="`+ex+`" method="SingleOutputExampleMethod"><input name="a"/><output/></call></seeflaw>`)
	writeFile(t, dir, "nested.xml", `<seeflaw><load file="part.xml"/></seeflaw>`)
	writeFile(t, dir, "broken.xml", `<seeflaw><call fixture="`+ex+`" method="Nope"/></seeflaw>`)
	testFile := filepath.Join(dir, "main.xml")

	run := func(xml string) (*Validated, error) {
		doc, err := document.Parse([]byte(xml))
		require.NoError(t, err)
		return Validate(context.Background(), doc, testFile, newDetails(nil), nil)
	}

	v, err := run(`<seeflaw><load file="part.xml"/></seeflaw>`)
	require.NoError(t, err)
	require.Contains(t, v.Loads, "part.xml")
	assert.Equal(t, "seeflaw", v.Loads["part.xml"].Tag)

	_, err = run(`<seeflaw><load file="nested.xml"/></seeflaw>`)
	require.Error(t, err)
	assert.Equal(t, "Load file from within a load file not allowed. load file: part.xml", err.Error())

	_, err = run(`<seeflaw><load file="broken.xml"/></seeflaw>`)
	require.Error(t, err)
	assert.Equal(t, "Invalid method Nope in call node.", err.Error())
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
