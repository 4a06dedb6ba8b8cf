package files_test

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/files"
)

func newResolver(t *testing.T) *files.Resolver {
	t.Helper()
	r, err := files.New(t.TempDir(), "eclaim", "stm")
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return r
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolve(t *testing.T) {
	r := newResolver(t)
	write(t, filepath.Join(r.Root(), "stm", "STM_10670_256801.xls"), "x")

	t.Run("finds file in subdirectory", func(t *testing.T) {
		path, err := r.Resolve("STM_10670_256801.xls")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if filepath.Base(filepath.Dir(path)) != "stm" {
			t.Errorf("path = %s, want under stm", path)
		}
		if !r.Exists("STM_10670_256801.xls") {
			t.Error("Exists = false")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := r.Resolve("missing.xls")
		if !errors.Is(err, files.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("rejects traversal", func(t *testing.T) {
		for _, name := range []string{"", "..", "../etc/passwd", `a\b.xls`, "sub/a.xls"} {
			if _, err := r.Resolve(name); !errors.Is(err, files.ErrInvalidName) {
				t.Errorf("Resolve(%q) err = %v, want ErrInvalidName", name, err)
			}
		}
	})
}

func TestList(t *testing.T) {
	r := newResolver(t)
	write(t, filepath.Join(r.Root(), "eclaim", "eclaim_10670_OP_25680105.xls"), "a")
	write(t, filepath.Join(r.Root(), "eclaim", ".eclaim_10670_IP_25680105.xls.123.part"), "partial")
	write(t, filepath.Join(r.Root(), "stm", "STM_10670_256801.xls"), "b")
	write(t, filepath.Join(r.Root(), "notes.txt"), "c")

	all, err := r.List(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("List(nil) = %v, want 3 names", all)
	}

	eclaim, err := r.List(regexp.MustCompile(`^eclaim_`))
	if err != nil {
		t.Fatal(err)
	}
	if len(eclaim) != 1 || eclaim[0] != "eclaim_10670_OP_25680105.xls" {
		t.Errorf("List(eclaim) = %v", eclaim)
	}
}

func TestWriteAtomic(t *testing.T) {
	r := newResolver(t)
	path, err := r.Target("eclaim", "eclaim_10670_OP_25680105.xls")
	if err != nil {
		t.Fatal(err)
	}

	content := "claim rows"
	n, hash, err := files.WriteAtomic(path, strings.NewReader(content))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	sum := sha256.Sum256([]byte(content))
	if hash != hex.EncodeToString(sum[:]) {
		t.Errorf("hash = %s", hash)
	}
	if n != int64(len(content)) {
		t.Errorf("n = %d, want %d", n, len(content))
	}

	got, size, err := files.HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != hash || size != n {
		t.Errorf("HashFile = %s/%d, want %s/%d", got, size, hash, n)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the final file", len(entries))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteAtomicLeavesNoPartialOnError(t *testing.T) {
	r := newResolver(t)
	path, _ := r.Target("eclaim", "broken.xls")

	if _, _, err := files.WriteAtomic(path, failingReader{}); err == nil {
		t.Fatal("expected error")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 0 {
		t.Errorf("directory has %d entries after failed write, want 0", len(entries))
	}
}
