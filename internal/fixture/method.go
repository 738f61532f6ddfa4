package fixture

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/beevik/etree"

	"github.com/seeflaw/seeflaw/internal/errors"
)

// Shape is what a method returns.
type Shape int

const (
	ShapeVoid   Shape = iota // nothing
	ShapeRow                 // one output row per input row
	ShapeRows                // a set of rows for one input
	ShapeString              // a single string; param fixtures only
)

func (s Shape) String() string {
	switch s {
	case ShapeRow:
		return "row"
	case ShapeRows:
		return "rows"
	case ShapeString:
		return "string"
	default:
		return "void"
	}
}

// Input is how a method receives its input row.
type Input int

const (
	InputNone   Input = iota
	InputFields       // flattened key/value map
	InputTree         // the <input> element itself
)

func (i Input) String() string {
	switch i {
	case InputFields:
		return "fields"
	case InputTree:
		return "tree"
	default:
		return "none"
	}
}

// Args is the input of one method invocation.
type Args struct {
	Fields     map[string]string
	Tree       *etree.Element
	OutputKeys []string
}

// Result is what one invocation returned. Which field is set follows the
// method's shape.
type Result struct {
	Row  map[string]any
	Rows []map[string]any
	Text string
}

// Method is an invocable fixture method of a fixed shape and input mode.
type Method struct {
	shape Shape
	input Input
	fn    func(ctx context.Context, a Args) (Result, error)
}

// Shape returns what the method returns.
func (m Method) Shape() Shape { return m.shape }

// Input returns how the method takes its input.
func (m Method) Input() Input { return m.input }

// Valid reports whether m was built by one of the constructors.
func (m Method) Valid() bool { return m.fn != nil }

// Call invokes the method. A panic in the method is returned as a callee
// error carrying the stack.
func (m Method) Call(ctx context.Context, a Args) (res Result, err error) {
	if m.fn == nil {
		return Result{}, fmt.Errorf("method not implemented")
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Callee("", "", fmt.Errorf("panic: %v", r), string(debug.Stack()))
		}
	}()
	return m.fn(ctx, a)
}

// Void takes no input and returns nothing.
func Void(fn func(ctx context.Context) error) Method {
	return Method{ShapeVoid, InputNone, func(ctx context.Context, _ Args) (Result, error) {
		return Result{}, fn(ctx)
	}}
}

// VoidFields takes a flattened input row and returns nothing.
func VoidFields(fn func(ctx context.Context, in map[string]string) error) Method {
	return Method{ShapeVoid, InputFields, func(ctx context.Context, a Args) (Result, error) {
		return Result{}, fn(ctx, a.Fields)
	}}
}

// VoidTree takes the input element and returns nothing.
func VoidTree(fn func(ctx context.Context, in *etree.Element) error) Method {
	return Method{ShapeVoid, InputTree, func(ctx context.Context, a Args) (Result, error) {
		return Result{}, fn(ctx, a.Tree)
	}}
}

// Row returns one output row for each input row.
func Row(fn func(ctx context.Context, in map[string]string, keys []string) (map[string]any, error)) Method {
	return Method{ShapeRow, InputFields, func(ctx context.Context, a Args) (Result, error) {
		row, err := fn(ctx, a.Fields, a.OutputKeys)
		return Result{Row: row}, err
	}}
}

// RowTree is Row taking the input element.
func RowTree(fn func(ctx context.Context, in *etree.Element, keys []string) (map[string]any, error)) Method {
	return Method{ShapeRow, InputTree, func(ctx context.Context, a Args) (Result, error) {
		row, err := fn(ctx, a.Tree, a.OutputKeys)
		return Result{Row: row}, err
	}}
}

// Rows returns a set of rows for its input.
func Rows(fn func(ctx context.Context, in map[string]string, keys []string) ([]map[string]any, error)) Method {
	return Method{ShapeRows, InputFields, func(ctx context.Context, a Args) (Result, error) {
		rows, err := fn(ctx, a.Fields, a.OutputKeys)
		return Result{Rows: rows}, err
	}}
}

// RowsTree is Rows taking the input element.
func RowsTree(fn func(ctx context.Context, in *etree.Element, keys []string) ([]map[string]any, error)) Method {
	return Method{ShapeRows, InputTree, func(ctx context.Context, a Args) (Result, error) {
		rows, err := fn(ctx, a.Tree, a.OutputKeys)
		return Result{Rows: rows}, err
	}}
}

// Param returns a parameter value.
func Param(fn func(ctx context.Context) (string, error)) Method {
	return Method{ShapeString, InputNone, func(ctx context.Context, _ Args) (Result, error) {
		s, err := fn(ctx)
		return Result{Text: s}, err
	}}
}

// ParamFields returns a parameter value computed from an input row.
func ParamFields(fn func(ctx context.Context, in map[string]string) (string, error)) Method {
	return Method{ShapeString, InputFields, func(ctx context.Context, a Args) (Result, error) {
		s, err := fn(ctx, a.Fields)
		return Result{Text: s}, err
	}}
}

// ParamTree returns a parameter value computed from the input element.
func ParamTree(fn func(ctx context.Context, in *etree.Element) (string, error)) Method {
	return Method{ShapeString, InputTree, func(ctx context.Context, a Args) (Result, error) {
		s, err := fn(ctx, a.Tree)
		return Result{Text: s}, err
	}}
}
