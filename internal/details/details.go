// Package details holds the state shared by the runner during one test run:
// the run arguments, parameters bound so far and the initiated fixtures.
package details

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/seeflaw/seeflaw/internal/errors"
	"github.com/seeflaw/seeflaw/internal/fixture"
)

// Well-known argument keys.
const (
	ArgTestFile   = "testfile"
	ArgPreCase    = "precase"
	ArgPostCase   = "postcase"
	ArgPluginPath = "pluginpath"
)

// Details is the run context of one test document. Arguments are read-only
// after construction; parameters and fixtures are safe for concurrent use.
type Details struct {
	args   map[string]string
	loader fixture.Loader
	logger *slog.Logger

	testFile    string
	preCase     string
	postCase    string
	pluginPaths []string

	mu       sync.RWMutex
	params   map[string]string
	fixtures map[string]fixture.Bound
}

// Option configures Details.
type Option func(*Details)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Details) { d.logger = l }
}

// New creates Details from run arguments. Argument keys are case-insensitive.
func New(args map[string]string, loader fixture.Loader, opts ...Option) *Details {
	folded := make(map[string]string, len(args))
	for k, v := range args {
		folded[fold(k)] = v
	}
	d := &Details{args: folded, loader: loader, logger: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	d.init()
	return d
}

func (d *Details) init() {
	d.params = make(map[string]string)
	d.fixtures = make(map[string]fixture.Bound)
	d.testFile = d.args[ArgTestFile]
	d.preCase = d.args[ArgPreCase]
	d.postCase = d.args[ArgPostCase]
	d.pluginPaths = strings.FieldsFunc(d.args[ArgPluginPath], func(r rune) bool {
		return r == ';' || r == os.PathListSeparator
	})
}

func fold(key string) string {
	return cases.Fold().String(key)
}

// Argument returns the value of a run argument, or "".
func (d *Details) Argument(key string) string {
	return d.args[fold(key)]
}

// HasArgument reports whether a run argument is set.
func (d *Details) HasArgument(key string) bool {
	_, ok := d.args[fold(key)]
	return ok
}

// Arguments returns a copy of the run arguments with folded keys.
func (d *Details) Arguments() map[string]string {
	out := make(map[string]string, len(d.args))
	for k, v := range d.args {
		out[k] = v
	}
	return out
}

// TestFile returns the path of the test document.
func (d *Details) TestFile() string { return d.testFile }

// PreCase returns the document run before the test, or "".
func (d *Details) PreCase() string { return d.preCase }

// PostCase returns the document run after the test, or "".
func (d *Details) PostCase() string { return d.postCase }

// Loader returns the fixture loader.
func (d *Details) Loader() fixture.Loader { return d.loader }

// AddParameter binds name to value. Binding the same value again is a
// no-op; a different value is a conflict.
func (d *Details) AddParameter(name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if have, ok := d.params[name]; ok {
		if have != value {
			return errors.Conflict(name, have, value)
		}
		return nil
	}
	d.params[name] = value
	return nil
}

// Parameter returns the value bound to name.
func (d *Details) Parameter(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.params[name]
	return v, ok
}

// HasParameters reports whether any parameter is bound.
func (d *Details) HasParameters() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.params) > 0
}

// Substitute returns the parameter bound to value when value names one,
// otherwise value itself.
func (d *Details) Substitute(value string) string {
	if v, ok := d.Parameter(value); ok {
		return v
	}
	return value
}

// InitFixture loads typeName and stores the instance under id.
func (d *Details) InitFixture(ctx context.Context, typeName, id string) (fixture.Bound, error) {
	b, err := d.load(ctx, typeName)
	if err != nil {
		return fixture.Bound{}, err
	}
	d.mu.Lock()
	d.fixtures[id] = b
	d.mu.Unlock()
	d.logger.Debug("fixture initiated", "fixture", typeName, "id", id)
	return b, nil
}

// Fixture returns the fixture initiated as nameOrID, or a fresh instance of
// the type nameOrID.
func (d *Details) Fixture(ctx context.Context, nameOrID string) (fixture.Bound, error) {
	if b, ok := d.InitiatedFixture(nameOrID); ok {
		return b, nil
	}
	return d.load(ctx, nameOrID)
}

// InitiatedFixture returns the fixture initiated as id.
func (d *Details) InitiatedFixture(id string) (fixture.Bound, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.fixtures[id]
	return b, ok
}

func (d *Details) load(ctx context.Context, typeName string) (fixture.Bound, error) {
	if _, _, ok := fixture.SplitName(typeName); !ok {
		return fixture.Bound{}, errors.Loadf("fixture '%s' is given in bad format, should be Namespace.Type", typeName)
	}
	notFound := &errors.Error{
		Kind:    errors.KindLoad,
		Message: "Could not find/load Fixture: " + typeName,
		Cause:   fixture.ErrNotFound,
	}
	if d.loader == nil {
		return fixture.Bound{}, notFound
	}
	f, err := d.loader.Load(ctx, typeName, d.SearchPaths())
	if stderrors.Is(err, fixture.ErrNotFound) || (err == nil && f == nil) {
		return fixture.Bound{}, notFound
	}
	if err != nil {
		return fixture.Bound{}, err
	}
	return fixture.Bind(typeName, f), nil
}

// SearchPaths returns the directories searched for fixture binaries: the
// plugin path entries, the test document's directory, the working
// directory, the directory of the running binary and $PATH.
func (d *Details) SearchPaths() []string {
	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}

	for _, p := range d.pluginPaths {
		add(p)
	}
	if d.testFile != "" {
		add(filepath.Dir(d.testFile))
	}
	add(".")
	if wd, err := os.Getwd(); err == nil {
		add(wd)
	}
	if exe, err := os.Executable(); err == nil {
		add(filepath.Dir(exe))
	}
	for _, p := range filepath.SplitList(os.Getenv("PATH")) {
		add(p)
	}
	return paths
}

// Copy returns Details sharing the arguments and loader, with no
// parameters or fixtures.
func (d *Details) Copy() *Details {
	c := &Details{args: d.args, loader: d.loader, logger: d.logger}
	c.init()
	return c
}

// LoadCopy is Copy with the test file replaced by file, resolved against
// the directory of the current test file.
func (d *Details) LoadCopy(file string) *Details {
	args := d.Arguments()
	if !filepath.IsAbs(file) {
		file = filepath.Join(filepath.Dir(d.testFile), file)
	}
	args[ArgTestFile] = file
	c := &Details{args: args, loader: d.loader, logger: d.logger}
	c.init()
	return c
}
