package document

import (
	"strings"

	"github.com/beevik/etree"
)

// Fields is an insertion-ordered string map. Column order in reports follows
// the order keys were first seen in the document.
type Fields struct {
	keys   []string
	values map[string]string
}

// NewFields returns an empty Fields.
func NewFields() *Fields {
	return &Fields{values: make(map[string]string)}
}

// FieldsOf builds Fields from alternating key, value pairs.
func FieldsOf(kv ...string) *Fields {
	f := NewFields()
	for i := 0; i+1 < len(kv); i += 2 {
		f.Set(kv[i], kv[i+1])
	}
	return f
}

// Set stores value under key unless key is already present. It reports
// whether the value was stored.
func (f *Fields) Set(key, value string) bool {
	if _, ok := f.values[key]; ok {
		return false
	}
	f.keys = append(f.keys, key)
	f.values[key] = value
	return true
}

// Replace overwrites the value of an existing key.
func (f *Fields) Replace(key, value string) {
	if _, ok := f.values[key]; ok {
		f.values[key] = value
	}
}

// Get returns the value stored under key.
func (f *Fields) Get(key string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f.values[key]
	return v, ok
}

// Value returns the value stored under key, or "".
func (f *Fields) Value(key string) string {
	v, _ := f.Get(key)
	return v
}

// Keys returns the keys in insertion order.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.keys...)
}

// Len returns the number of keys.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Map returns a plain copy of the fields.
func (f *Fields) Map() map[string]string {
	m := make(map[string]string, f.Len())
	if f == nil {
		return m
	}
	for k, v := range f.values {
		m[k] = v
	}
	return m
}

// Clone returns an independent copy.
func (f *Fields) Clone() *Fields {
	if f == nil {
		return nil
	}
	c := NewFields()
	for _, k := range f.keys {
		c.Set(k, f.values[k])
	}
	return c
}

// Flatten reads the attributes and text of el into Fields. Nested elements
// are walked when recursive is set and their keys are joined with '.', so
// <input><sub1 arg1="x"/></input> yields "sub1.arg1". The first value seen
// for a key wins. With skipQualified, keys containing ':' are dropped.
func Flatten(el *etree.Element, recursive, skipQualified bool) *Fields {
	f := NewFields()
	if el == nil {
		return f
	}
	flatten(el, "", f, recursive, skipQualified)
	return f
}

func flatten(el *etree.Element, prefix string, f *Fields, recursive, skipQualified bool) {
	for _, a := range el.Attr {
		key := a.FullKey()
		if prefix != "" {
			key = prefix + "." + key
		}
		addField(f, key, a.Value, skipQualified)
	}
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			if t.IsWhitespace() {
				continue
			}
			addField(f, prefix, t.Data, skipQualified)
		case *etree.Element:
			if !recursive {
				continue
			}
			name := t.FullTag()
			if prefix != "" {
				name = prefix + "." + name
			}
			flatten(t, name, f, true, skipQualified)
		}
	}
}

func addField(f *Fields, key, value string, skipQualified bool) {
	if key == "" {
		return
	}
	if skipQualified && strings.Contains(key, ":") {
		return
	}
	f.Set(key, value)
}
