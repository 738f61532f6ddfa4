// Package example is a fixture bundled with the binary, used by the sample
// test documents and as a reference for fixture authors.
package example

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/seeflaw/seeflaw/internal/fixture"
)

// TypeName is the name documents use to reach the fixture.
const TypeName = "SeeFlaw.Example"

// Fixture implements the example methods.
type Fixture struct {
	log *slog.Logger
}

// New returns an example fixture logging to l.
func New(l *slog.Logger) *Fixture {
	if l == nil {
		l = slog.Default()
	}
	return &Fixture{log: l.With("fixture", TypeName)}
}

// Register adds the example fixture to r.
func Register(r *fixture.Registry, l *slog.Logger) {
	r.Register(TypeName, func() fixture.Fixture { return New(l) })
}

func (f *Fixture) Methods() fixture.Table {
	return fixture.Table{
		"GetParamExampleMethod":                         fixture.Param(f.getParam),
		"GetParamWithInputExampleMethod":                fixture.ParamFields(f.getParamWithInput),
		"NoOutputExampleMethod":                         fixture.VoidFields(f.noOutput),
		"SingleOutputExampleMethod":                     fixture.Row(f.singleOutput),
		"SingleOutputDifferentObjectTypesExampleMethod": fixture.Row(f.differentTypes),
		"MultiOutputExampleMethod":                      fixture.Rows(f.multiOutput),
		"SingleOutputXmlInputExampleMethod":             fixture.RowTree(f.singleOutputTree),
		"MultiOutputXmlInputExampleMethod":              fixture.RowsTree(f.multiOutputTree),
		"Sleep":                                         fixture.VoidFields(f.sleep),
	}
}

func (f *Fixture) getParam(context.Context) (string, error) {
	return "param test", nil
}

func (f *Fixture) getParamWithInput(_ context.Context, in map[string]string) (string, error) {
	return "param " + in["first"], nil
}

func required(in map[string]string, key string) (string, error) {
	v, ok := in[key]
	if !ok {
		return "", fmt.Errorf("Mandatory input '%s' missing.", key)
	}
	return v, nil
}

func (f *Fixture) noOutput(_ context.Context, in map[string]string) error {
	f.log.Debug("NoOutputExampleMethod called")
	_, err := required(in, "name")
	return err
}

func (f *Fixture) singleOutput(_ context.Context, in map[string]string, _ []string) (map[string]any, error) {
	f.log.Debug("SingleOutputExampleMethod called")
	name, err := required(in, "name")
	if err != nil {
		return nil, err
	}
	return map[string]any{"message": "Hello " + name}, nil
}

func (f *Fixture) differentTypes(context.Context, map[string]string, []string) (map[string]any, error) {
	return map[string]any{
		"int":    int32(12345),
		"long":   int64(12345),
		"double": 12345.12345,
		"bool":   true,
		"date":   time.Date(2009, 5, 20, 14, 30, 0, 0, time.Local),
	}, nil
}

func (f *Fixture) multiOutput(_ context.Context, in map[string]string, _ []string) ([]map[string]any, error) {
	f.log.Debug("MultiOutputExampleMethod called")
	lines, err := required(in, "lines")
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(lines)
	if err != nil {
		return nil, fmt.Errorf("input 'lines': %w", err)
	}
	out := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, map[string]any{"message": "line" + strconv.Itoa(i)})
	}
	return out, nil
}

// singleOutputTree counts the child elements of the input by tag.
func (f *Fixture) singleOutputTree(_ context.Context, in *etree.Element, _ []string) (map[string]any, error) {
	out := make(map[string]any)
	for _, child := range in.ChildElements() {
		n, _ := out[child.Tag].(int)
		out[child.Tag] = n + 1
	}
	return out, nil
}

// multiOutputTree returns one row per child element holding its attributes.
func (f *Fixture) multiOutputTree(_ context.Context, in *etree.Element, _ []string) ([]map[string]any, error) {
	var out []map[string]any
	for _, child := range in.ChildElements() {
		row := make(map[string]any, len(child.Attr))
		for _, a := range child.Attr {
			row[a.Key] = a.Value
		}
		out = append(out, row)
	}
	return out, nil
}

func (f *Fixture) sleep(ctx context.Context, in map[string]string) error {
	s, err := required(in, "seconds")
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("input 'seconds': %w", err)
	}
	select {
	case <-time.After(time.Duration(n) * time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
