package fixture

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/seeflaw/seeflaw/internal/errors"
)

// Pin fixes the executable of a namespace, optionally verified by hash.
type Pin struct {
	Path    string
	SHA256  string // hex; empty skips verification
	Timeout time.Duration
}

// ExecLoader loads fixtures implemented by external executables. The
// namespace of Namespace.Type names the executable; the type is passed on
// its command line:
//
//	exe methods Type            prints Name=shape lines
//	exe call Type Method        reads SEEFLAW_IN_<KEY> and SEEFLAW_OUTPUT_KEYS,
//	                            prints KEY=VALUE lines, rows separated by "--"
//
// A non-zero exit fails the call with stderr as the message.
type ExecLoader struct {
	Pins    map[string]Pin
	Timeout time.Duration
	Logger  *slog.Logger
}

// Load resolves the executable for typeName and reads its method table.
func (l *ExecLoader) Load(ctx context.Context, typeName string, paths []string) (Fixture, error) {
	ns, typ, ok := SplitName(typeName)
	if !ok {
		return nil, ErrNotFound
	}
	path, timeout, err := l.resolve(ns, paths)
	if err != nil {
		return nil, err
	}
	log := l.logger().With("fixture", typeName, "path", path)

	res, err := run(ctx, execOpts{Path: path, Args: []string{"methods", typ}, Timeout: timeout})
	if err != nil {
		return nil, errors.Loadf("reading methods of %s: %v", typeName, err)
	}
	if res.ExitCode != 0 {
		return nil, errors.Loadf("reading methods of %s: exit code %d: %s", typeName, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	decls, err := ParseMethods(res.Stdout)
	if err != nil {
		return nil, errors.Loadf("reading methods of %s: %v", typeName, err)
	}
	log.Debug("loaded exec fixture", "methods", len(decls))

	f := &execFixture{path: path, typ: typ, timeout: timeout, table: make(Table, len(decls))}
	for name, shape := range decls {
		f.table[name] = f.method(name, shape)
	}
	return f, nil
}

func (l *ExecLoader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *ExecLoader) resolve(ns string, paths []string) (string, time.Duration, error) {
	timeout := l.Timeout
	if pin, ok := l.Pins[ns]; ok {
		if pin.Timeout > 0 {
			timeout = pin.Timeout
		}
		if err := checkExecutable(pin.Path); err != nil {
			return "", 0, errors.Load(err.Error())
		}
		if pin.SHA256 != "" {
			if err := VerifySHA256(pin.Path, pin.SHA256); err != nil {
				return "", 0, errors.Load(err.Error())
			}
		}
		return pin.Path, timeout, nil
	}
	for _, dir := range paths {
		path := filepath.Join(dir, ns)
		if checkExecutable(path) == nil {
			return path, timeout, nil
		}
	}
	return "", 0, ErrNotFound
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("fixture not found: %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("fixture is a directory: %s", path)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("fixture is not executable: %s", path)
	}
	return nil
}

// HashFile returns the hex sha256 of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifySHA256 checks a file against a hex sha256.
func VerifySHA256(path, want string) error {
	got, err := HashFile(path)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", path, err)
	}
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("sha256 mismatch for %s: got %s, want %s", path, got, want)
	}
	return nil
}

type execFixture struct {
	path    string
	typ     string
	timeout time.Duration
	table   Table
}

func (f *execFixture) Methods() Table { return f.table }

func (f *execFixture) method(name, shape string) Method {
	call := func(ctx context.Context, in map[string]string, keys []string) (string, error) {
		return f.call(ctx, name, in, keys)
	}
	switch shape {
	case "void":
		return Void(func(ctx context.Context) error {
			_, err := call(ctx, nil, nil)
			return err
		})
	case "void:fields":
		return VoidFields(func(ctx context.Context, in map[string]string) error {
			_, err := call(ctx, in, nil)
			return err
		})
	case "row":
		return Row(func(ctx context.Context, in map[string]string, keys []string) (map[string]any, error) {
			out, err := call(ctx, in, keys)
			if err != nil {
				return nil, err
			}
			rows := ParseRows(out)
			if len(rows) == 0 {
				return nil, nil
			}
			return rows[0], nil
		})
	case "rows":
		return Rows(func(ctx context.Context, in map[string]string, keys []string) ([]map[string]any, error) {
			out, err := call(ctx, in, keys)
			if err != nil {
				return nil, err
			}
			return ParseRows(out), nil
		})
	case "param":
		return Param(func(ctx context.Context) (string, error) {
			out, err := call(ctx, nil, nil)
			return strings.TrimSpace(out), err
		})
	case "param:fields":
		return ParamFields(func(ctx context.Context, in map[string]string) (string, error) {
			out, err := call(ctx, in, nil)
			return strings.TrimSpace(out), err
		})
	}
	return Method{}
}

func (f *execFixture) call(ctx context.Context, method string, in map[string]string, keys []string) (string, error) {
	res, err := run(ctx, execOpts{
		Path:    f.path,
		Args:    []string{"call", f.typ, method},
		Timeout: f.timeout,
		Env:     buildEnv(in, keys),
	})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit code %d", res.ExitCode)
		}
		return "", stderrors.New(msg)
	}
	return res.Stdout, nil
}

type execResult struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
	ExitCode int
}

type execOpts struct {
	Path    string
	Args    []string
	Timeout time.Duration
	Env     []string
}

// run executes a fixture binary and captures its output. Non-zero exit codes
// are captured, timeouts are errors.
func run(ctx context.Context, opts execOpts) (*execResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, opts.Path, opts.Args...)
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &execResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return res, fmt.Errorf("fixture timed out after %s", opts.Timeout)
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("executing fixture: %w", err)
	}
	return res, nil
}

func buildEnv(in map[string]string, keys []string) []string {
	names := make([]string, 0, len(in))
	for k := range in {
		names = append(names, k)
	}
	sort.Strings(names)

	env := make([]string, 0, len(in)+1)
	for _, k := range names {
		env = append(env, "SEEFLAW_IN_"+envName(k)+"="+in[k])
	}
	env = append(env, "SEEFLAW_OUTPUT_KEYS="+strings.Join(keys, ","))
	return env
}

// envName upper-cases key and replaces everything but letters and digits
// with '_', so "sub1.arg1" becomes SUB1_ARG1.
func envName(key string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, key)
}
