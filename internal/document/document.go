// Package document reads SeeFlaw test documents.
//
// A test document is XML with a single <seeflaw> root holding an ordered
// sequence of text, param, init, load, call, save and async nodes.
package document

import (
	"fmt"
	"os"
	"strings"

	"github.com/beevik/etree"

	sferrors "github.com/seeflaw/seeflaw/internal/errors"
)

// RootTag is the element name of a test document root.
const RootTag = "seeflaw"

// Node kinds.
const (
	KindText  = "text"
	KindParam = "param"
	KindInit  = "init"
	KindLoad  = "load"
	KindCall  = "call"
	KindSave  = "save"
	KindAsync = "async"
)

// Child shapes of call, save and param nodes.
const (
	TagInput      = "input"
	TagOutput     = "output"
	TagOutputKeys = "outputkeys"
	TagTolerance  = "tolerance"
	TagFixture    = "fixture"
)

// ReadFile loads and parses a test document from disk.
func ReadFile(path string) (*etree.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading test document: %w", err)
	}
	return Parse(data)
}

// Parse parses a test document.
func Parse(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parsing test document: %w", err)
	}
	return doc, nil
}

// Root returns the single <seeflaw> element of doc.
func Root(doc *etree.Document) (*etree.Element, error) {
	nodes := doc.FindElements("//" + RootTag)
	switch {
	case len(nodes) == 0:
		return nil, sferrors.Validation("No seeflaw root node in xml file")
	case len(nodes) > 1:
		return nil, sferrors.Validation("More than one seeflaw node in xml file")
	}
	return nodes[0], nil
}

// Attr returns the named attribute of el, or a validation error naming the
// node when it is absent.
func Attr(el *etree.Element, name string) (string, error) {
	if v, ok := OptAttr(el, name); ok {
		return v, nil
	}
	return "", sferrors.Validationf("%s attribute missing in %s node.", name, el.Tag)
}

// OptAttr returns the named attribute of el matched on its local name.
func OptAttr(el *etree.Element, name string) (string, bool) {
	if el == nil {
		return "", false
	}
	for _, a := range el.Attr {
		if a.Key == name {
			return a.Value, true
		}
	}
	return "", false
}

// Child returns the first child element with the given tag, or nil.
func Child(el *etree.Element, tag string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// Children returns the child elements with the given tag in document order.
func Children(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// InnerText concatenates all character data below el.
func InnerText(el *etree.Element) string {
	var b strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, tok := range e.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				b.WriteString(t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(el)
	return b.String()
}
