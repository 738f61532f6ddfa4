package runner

import (
	"github.com/beevik/etree"

	"github.com/seeflaw/seeflaw/internal/document"
	"github.com/seeflaw/seeflaw/internal/fixture"
)

// arguments reads an input element. The visible fields are the element's
// own attributes and text, shown as input columns; args is what the method
// receives in its input mode.
func (r *Runner) arguments(in *etree.Element, mode fixture.Input) (*document.Fields, fixture.Args) {
	tree := mode == fixture.InputTree
	visible := r.fields(in, false, tree)
	switch mode {
	case fixture.InputFields:
		return visible, fixture.Args{Fields: r.fields(in, true, false).Map()}
	case fixture.InputTree:
		return visible, fixture.Args{Tree: r.substituteTree(in)}
	}
	return visible, fixture.Args{}
}

// fields flattens el and replaces values naming a bound parameter.
func (r *Runner) fields(el *etree.Element, recursive, skipQualified bool) *document.Fields {
	f := document.Flatten(el, recursive, skipQualified)
	if !r.details.HasParameters() {
		return f
	}
	for _, k := range f.Keys() {
		f.Replace(k, r.details.Substitute(f.Value(k)))
	}
	return f
}

// substituteTree returns el itself when no parameters are bound, otherwise
// a copy with parameter names replaced in attribute values and text.
func (r *Runner) substituteTree(el *etree.Element) *etree.Element {
	if el == nil || !r.details.HasParameters() {
		return el
	}
	c := el.Copy()
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for i := range e.Attr {
			e.Attr[i].Value = r.details.Substitute(e.Attr[i].Value)
		}
		for _, tok := range e.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				if !t.IsWhitespace() {
					t.Data = r.details.Substitute(t.Data)
				}
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(c)
	return c
}

// outputKeys returns the attribute names of the <outputkeys> children,
// declaring the columns of a row-set call without expected rows.
func outputKeys(node *etree.Element) []string {
	var keys []string
	for _, el := range document.Children(node, document.TagOutputKeys) {
		for _, a := range el.Attr {
			keys = append(keys, a.FullKey())
		}
	}
	return keys
}
