package fixture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seeflaw/seeflaw/internal/errors"
)

const shopScript = `#!/bin/sh
case "$1" in
methods)
  echo "Greet=row"
  echo "List=rows"
  echo "Token=param"
  echo "Fail=void"
  echo "Slow=void"
  ;;
call)
  case "$3" in
  Greet)
    echo "message=Hello $SEEFLAW_IN_NAME"
    echo "keys=$SEEFLAW_OUTPUT_KEYS"
    echo "type=$2"
    ;;
  List)
    echo "n=1"
    echo "--"
    echo "n=2"
    ;;
  Token) echo " abc " ;;
  Fail)
    echo "went wrong" >&2
    exit 3
    ;;
  Slow) exec sleep 10 ;;
  esac
  ;;
esac
`

func writeExecutable(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadShop(t *testing.T, l *ExecLoader) Bound {
	t.Helper()
	dir := t.TempDir()
	writeExecutable(t, dir, "shop", shopScript)
	f, err := l.Load(context.Background(), "shop.Cart", []string{t.TempDir(), dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return Bind("shop.Cart", f)
}

func TestExecLoader_Methods(t *testing.T) {
	b := loadShop(t, &ExecLoader{})

	want := map[string]Shape{
		"Greet": ShapeRow,
		"List":  ShapeRows,
		"Token": ShapeString,
		"Fail":  ShapeVoid,
	}
	for name, shape := range want {
		m, ok := b.Method(name)
		if !ok {
			t.Fatalf("method %s missing", name)
		}
		if m.Shape() != shape {
			t.Errorf("%s shape = %v, want %v", name, m.Shape(), shape)
		}
	}
}

func TestExecLoader_Row(t *testing.T) {
	b := loadShop(t, &ExecLoader{})

	res, err := b.Call(context.Background(), "Greet", Args{
		Fields:     map[string]string{"name": "Arne"},
		OutputKeys: []string{"message", "keys"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Row["message"] != "Hello Arne" {
		t.Errorf("message = %v, want %q", res.Row["message"], "Hello Arne")
	}
	if res.Row["keys"] != "message,keys" {
		t.Errorf("keys = %v, want %q", res.Row["keys"], "message,keys")
	}
	if res.Row["type"] != "Cart" {
		t.Errorf("type = %v, want %q", res.Row["type"], "Cart")
	}
}

func TestExecLoader_Rows(t *testing.T) {
	b := loadShop(t, &ExecLoader{})

	res, err := b.Call(context.Background(), "List", Args{Fields: map[string]string{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 2 || res.Rows[1]["n"] != "2" {
		t.Errorf("rows = %v, want n=1, n=2", res.Rows)
	}
}

func TestExecLoader_Param(t *testing.T) {
	b := loadShop(t, &ExecLoader{})

	res, err := b.Call(context.Background(), "Token", Args{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "abc" {
		t.Errorf("text = %q, want %q", res.Text, "abc")
	}
}

func TestExecLoader_NonZeroExit(t *testing.T) {
	b := loadShop(t, &ExecLoader{})

	_, err := b.Call(context.Background(), "Fail", Args{})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !errors.Is(err, errors.KindCallee) {
		t.Errorf("kind = %v, want callee", err)
	}
	if !strings.Contains(err.Error(), "went wrong") {
		t.Errorf("error = %q, want stderr", err.Error())
	}
	if !strings.Contains(err.Error(), "[shop.Cart : Fail]") {
		t.Errorf("error = %q, want fixture and method", err.Error())
	}
}

func TestExecLoader_Timeout(t *testing.T) {
	b := loadShop(t, &ExecLoader{Timeout: 100 * time.Millisecond})

	_, err := b.Call(context.Background(), "Slow", Args{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %q, want timeout message", err.Error())
	}
}

func TestExecLoader_NotFound(t *testing.T) {
	l := &ExecLoader{}
	if _, err := l.Load(context.Background(), "missing.Type", []string{t.TempDir()}); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := l.Load(context.Background(), "nodot", nil); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExecLoader_NotExecutable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "shop"), []byte(shopScript), 0o644); err != nil {
		t.Fatal(err)
	}
	l := &ExecLoader{}
	if _, err := l.Load(context.Background(), "shop.Cart", []string{dir}); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExecLoader_PinnedHash(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "shop", shopScript)
	sum, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}

	l := &ExecLoader{Pins: map[string]Pin{"shop": {Path: path, SHA256: sum}}}
	if _, err := l.Load(context.Background(), "shop.Cart", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Pins["shop"] = Pin{Path: path, SHA256: strings.Repeat("0", 64)}
	_, err = l.Load(context.Background(), "shop.Cart", nil)
	if err == nil {
		t.Fatal("expected hash mismatch")
	}
	if !errors.Is(err, errors.KindLoad) || !strings.Contains(err.Error(), "sha256 mismatch") {
		t.Errorf("error = %v, want load error with mismatch", err)
	}
}

func TestBuildEnv(t *testing.T) {
	env := buildEnv(map[string]string{"sub1.arg1": "x", "name": "Arne"}, []string{"a", "b"})
	want := []string{"SEEFLAW_IN_NAME=Arne", "SEEFLAW_IN_SUB1_ARG1=x", "SEEFLAW_OUTPUT_KEYS=a,b"}
	if len(env) != len(want) {
		t.Fatalf("env = %v, want %v", env, want)
	}
	for i := range want {
		if env[i] != want[i] {
			t.Errorf("env[%d] = %q, want %q", i, env[i], want[i])
		}
	}
}
