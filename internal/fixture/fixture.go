// Package fixture defines the contract between the runner and user code:
// fixtures publish a table of typed methods and loaders turn a
// Namespace.Type name into a fixture instance.
package fixture

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/seeflaw/seeflaw/internal/errors"
)

// Fixture is a user-supplied test adapter.
type Fixture interface {
	Methods() Table
}

// Table maps method names to methods.
type Table map[string]Method

// Names returns the method names in sorted order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for n := range t {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Bound is a loaded fixture together with the type name it was loaded by.
type Bound struct {
	Type    string
	Fixture Fixture
	methods Table
}

// Bind wraps f loaded as typeName. The method table is read once.
func Bind(typeName string, f Fixture) Bound {
	return Bound{Type: typeName, Fixture: f, methods: f.Methods()}
}

// Method looks up a method by name.
func (b Bound) Method(name string) (Method, bool) {
	m, ok := b.methods[name]
	return m, ok && m.Valid()
}

// Methods returns the fixture's method table.
func (b Bound) Methods() Table { return b.methods }

// Call invokes a method by name. Errors returned by the method are wrapped
// as callee errors naming the fixture and method.
func (b Bound) Call(ctx context.Context, name string, a Args) (Result, error) {
	m, ok := b.Method(name)
	if !ok {
		return Result{}, errors.Dispatch(b.Type, name, fmt.Errorf("no such method '%s' found for fixture %s", name, b.Type))
	}
	res, err := m.Call(ctx, a)
	if err == nil {
		return res, nil
	}
	var se *errors.Error
	if stderrors.As(err, &se) && se.Kind == errors.KindCallee && se.Fixture == "" {
		return res, errors.Callee(b.Type, name, se.Cause, se.Stack)
	}
	return res, errors.Callee(b.Type, name, err, "")
}

// ErrNotFound is returned by a Loader that does not know a type name.
var ErrNotFound = stderrors.New("fixture not found")

// Loader creates fixtures by type name. paths are the directories to search
// for fixture binaries, in order.
type Loader interface {
	Load(ctx context.Context, typeName string, paths []string) (Fixture, error)
}

// SplitName splits Namespace.Type at the last dot.
func SplitName(typeName string) (namespace, typ string, ok bool) {
	i := strings.LastIndex(typeName, ".")
	if i <= 0 || i == len(typeName)-1 {
		return "", "", false
	}
	return typeName[:i], typeName[i+1:], true
}

// Factory creates a fresh fixture instance.
type Factory func() Fixture

// Registry is a Loader for fixtures compiled into the binary.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under typeName. Registering a name twice replaces
// the earlier factory.
func (r *Registry) Register(typeName string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = f
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load creates a new instance of typeName.
func (r *Registry) Load(_ context.Context, typeName string, _ []string) (Fixture, error) {
	r.mu.RLock()
	f, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return f(), nil
}

// Chain tries each loader in order and returns the first fixture found.
type Chain []Loader

// Load implements Loader.
func (c Chain) Load(ctx context.Context, typeName string, paths []string) (Fixture, error) {
	for _, l := range c {
		f, err := l.Load(ctx, typeName, paths)
		if stderrors.Is(err, ErrNotFound) {
			continue
		}
		return f, err
	}
	return nil, ErrNotFound
}
