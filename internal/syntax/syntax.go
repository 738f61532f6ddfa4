// Package syntax validates a test document before it is run. Every check
// that can fail without running a fixture method fails here, so a run never
// stops halfway on a malformed document.
package syntax

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beevik/etree"

	"github.com/seeflaw/seeflaw/internal/details"
	"github.com/seeflaw/seeflaw/internal/document"
	"github.com/seeflaw/seeflaw/internal/errors"
	"github.com/seeflaw/seeflaw/internal/fixture"
)

// Validated is a document that passed validation.
type Validated struct {
	Root *etree.Element
	// Loads maps the file attribute of each load node to the root of the
	// loaded document.
	Loads map[string]*etree.Element
}

// Validate checks doc, loading every referenced fixture through d to verify
// its methods. saveInput is the result tree save nodes will receive; nil
// when the document is not a post case.
func Validate(ctx context.Context, doc *etree.Document, testFile string, d *details.Details, saveInput *etree.Element) (*Validated, error) {
	root, err := document.Root(doc)
	if err != nil {
		return nil, err
	}
	v := &validator{ctx: ctx, details: d, testDir: filepath.Dir(testFile), saveInput: saveInput}
	out := &Validated{Root: root, Loads: make(map[string]*etree.Element)}

	var loads []string
	if err := v.check(root, &loads); err != nil {
		return nil, err
	}
	for _, name := range loads {
		loaded, err := v.load(name)
		if err != nil {
			return nil, err
		}
		out.Loads[name] = loaded
	}
	return out, nil
}

// ResolveLoad returns the path of a load file: the name as given when it
// exists, otherwise the name relative to testDir.
func ResolveLoad(name, testDir string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	if !filepath.IsAbs(name) {
		p := filepath.Join(testDir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.Validationf("Can not find load file %s", name)
}

type validator struct {
	ctx       context.Context
	details   *details.Details
	testDir   string
	saveInput *etree.Element
}

func (v *validator) load(name string) (*etree.Element, error) {
	path, err := ResolveLoad(name, v.testDir)
	if err != nil {
		return nil, err
	}
	doc, err := document.ReadFile(path)
	if err != nil {
		return nil, errors.Validationf("Can not read load file %s: %v", name, err)
	}
	root, err := document.Root(doc)
	if err != nil {
		return nil, err
	}
	if err := v.check(root, nil); err != nil {
		return nil, err
	}
	return root, nil
}

// check validates the nodes of one document. loads collects load file
// names; nil forbids load nodes.
func (v *validator) check(root *etree.Element, loads *[]string) error {
	initiated := make(map[string]fixture.Bound)
	params := make(map[string]bool)

	for _, node := range root.ChildElements() {
		switch node.Tag {
		case document.KindParam:
			name, err := document.Attr(node, "name")
			if err != nil {
				return err
			}
			if params[name] {
				return errors.Validationf("More than one param node with same name attribute %s.", name)
			}
			if err := v.checkParam(node, name, initiated); err != nil {
				return err
			}
			params[name] = true

		case document.KindInit:
			typeName, err := document.Attr(node, "fixture")
			if err != nil {
				return err
			}
			id, err := document.Attr(node, "id")
			if err != nil {
				return err
			}
			b, err := v.fixture(typeName, node.Tag)
			if err != nil {
				return err
			}
			if _, ok := initiated[id]; ok {
				return errors.Validationf("More than one init fixture with id %s", id)
			}
			initiated[id] = b

		case document.KindLoad:
			file, err := document.Attr(node, "file")
			if err != nil {
				return err
			}
			if loads == nil {
				return errors.Validationf("Load file from within a load file not allowed. load file: %s", file)
			}
			for _, seen := range *loads {
				if seen == file {
					return errors.Validationf("More than one load node with same file attribute %s.", file)
				}
			}
			*loads = append(*loads, file)

		case document.KindCall:
			if err := v.checkCall(node, initiated, nil); err != nil {
				return err
			}

		case document.KindSave:
			if err := v.checkSave(node, initiated); err != nil {
				return err
			}

		case document.KindAsync:
			for _, fixNode := range document.Children(node, document.TagFixture) {
				id, err := document.Attr(fixNode, "id")
				if err != nil {
					return err
				}
				b, ok := initiated[id]
				if !ok {
					return errors.Validationf("Invalid id '%s' in async fixture node.", id)
				}
				for _, call := range document.Children(fixNode, document.KindCall) {
					if err := v.checkCall(call, nil, &b); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// fixture resolves a fixture type for a node. A type that no loader knows
// is reported as invalid for the node; other load failures keep their
// message.
func (v *validator) fixture(typeName, nodeTag string) (fixture.Bound, error) {
	b, err := v.details.Fixture(v.ctx, typeName)
	if err == nil {
		return b, nil
	}
	if stderrors.Is(err, fixture.ErrNotFound) {
		return fixture.Bound{}, errors.Validationf("Invalid fixture %s in %s node.", typeName, nodeTag)
	}
	return fixture.Bound{}, asValidation(err)
}

func asValidation(err error) error {
	return &errors.Error{Kind: errors.KindValidation, Message: err.Error(), Cause: err}
}

func (v *validator) checkedFixture(node *etree.Element, initiated map[string]fixture.Bound) (fixture.Bound, error) {
	name, err := document.Attr(node, "fixture")
	if err != nil {
		return fixture.Bound{}, err
	}
	if b, ok := initiated[name]; ok {
		return b, nil
	}
	return v.fixture(name, node.Tag)
}

func (v *validator) checkParam(node *etree.Element, name string, initiated map[string]fixture.Bound) error {
	_, hasValue := document.OptAttr(node, "value")
	argument, hasArgument := document.OptAttr(node, "argument")
	fixName, hasFixture := document.OptAttr(node, "fixture")

	if !hasValue && !hasArgument && !hasFixture {
		return errors.Validation("No argument or value attribute in param node.")
	}
	if hasArgument && v.details.Argument(argument) == "" && !hasValue {
		return errors.Validationf("Argument %s in param node was not found in argument list.", argument)
	}
	if !hasFixture {
		return nil
	}

	prefix := fmt.Sprintf("Fixture %s in param node", fixName)
	b, ok := initiated[fixName]
	if !ok {
		var err error
		b, err = v.details.Fixture(v.ctx, fixName)
		if stderrors.Is(err, fixture.ErrNotFound) {
			return errors.Validation(prefix + " could not be found")
		}
		if err != nil {
			return asValidation(err)
		}
	}
	methodName, ok := document.OptAttr(node, "method")
	if !ok {
		return errors.Validationf("Missing method attribute for fixture param %s", name)
	}
	m, ok := b.Method(methodName)
	if !ok {
		return errors.Validationf("No such method '%s' found for fixture %s", methodName, fixName)
	}
	if m.Shape() != fixture.ShapeString {
		return errors.Validation(prefix + " has wrong return type, must be string")
	}
	return nil
}

func (v *validator) checkCall(node *etree.Element, initiated map[string]fixture.Bound, bound *fixture.Bound) error {
	methodName, err := document.Attr(node, "method")
	if err != nil {
		return err
	}
	var b fixture.Bound
	if bound != nil {
		b = *bound
	} else if b, err = v.checkedFixture(node, initiated); err != nil {
		return err
	}
	m, ok := b.Method(methodName)
	if !ok {
		return errors.Validationf("Invalid method %s in call node.", methodName)
	}
	return checkShape(node, b.Type, methodName, m, m.Input() != fixture.InputNone)
}

func (v *validator) checkSave(node *etree.Element, initiated map[string]fixture.Bound) error {
	if v.saveInput == nil {
		return errors.Validation("No result data to save")
	}
	methodName, err := document.Attr(node, "method")
	if err != nil {
		return err
	}
	b, err := v.checkedFixture(node, initiated)
	if err != nil {
		return err
	}
	m, ok := b.Method(methodName)
	if !ok {
		return errors.Validationf("Invalid method %s in save node.", methodName)
	}
	switch m.Input() {
	case fixture.InputNone:
		return errors.Validationf("Method %s takes no input parameter.", methodName)
	case fixture.InputFields:
		return errors.Validationf("Method %s parameter is of wrong type. Must be XmlNode", methodName)
	}
	return checkShape(node, b.Type, methodName, m, false)
}

// checkShape verifies the input/output children of a call against what the
// method returns.
func checkShape(node *etree.Element, fixName, methodName string, m fixture.Method, voidRequiresInput bool) error {
	where := fixName + " : " + methodName
	children := node.ChildElements()

	switch m.Shape() {
	case fixture.ShapeVoid:
		inputFound := false
		for _, c := range children {
			switch c.Tag {
			case document.TagOutput:
				return errors.Validationf("No output node allowed in %s", where)
			case document.TagInput:
				inputFound = true
			}
		}
		if voidRequiresInput && !inputFound {
			return errors.Validationf("Missing input node in %s", where)
		}

	case fixture.ShapeRow:
		inputFound, expectOutput := false, false
		for _, c := range children {
			switch c.Tag {
			case document.TagOutput:
				if !expectOutput {
					return errors.Validationf("output node without input node in %s", where)
				}
				expectOutput = false
			case document.TagInput:
				inputFound = true
				if expectOutput {
					return errors.Validationf("Multiple input nodes not allowed in %s", where)
				}
				expectOutput = true
			}
		}
		if !inputFound {
			return errors.Validationf("No input node in %s", where)
		}
		if expectOutput {
			return errors.Validationf("No output node after last input node in %s", where)
		}

	case fixture.ShapeRows:
		inputFound := false
		for _, c := range children {
			switch c.Tag {
			case document.TagOutput:
				if !inputFound {
					return errors.Validationf("No input node before output nodes in %s", where)
				}
			case document.TagInput:
				if inputFound {
					return errors.Validationf("Multiple input nodes not allowed in %s", where)
				}
				inputFound = true
			}
		}
		if !inputFound {
			return errors.Validationf("No input node in %s", where)
		}

	default:
		return errors.Validationf("Wrong return type of method %s in %s.", methodName, fixName)
	}
	return nil
}
