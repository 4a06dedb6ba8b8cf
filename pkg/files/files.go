// Package files resolves logical filenames to paths in the local download store
// and provides content hashing and atomic writes for stored files.
package files

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

var (
	// ErrNotFound indicates no stored file carries the requested name.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidName indicates a filename that is empty or contains path segments.
	ErrInvalidName = errors.New("invalid filename")
)

// Resolver maps filenames to paths beneath a root directory. Each source keeps
// its files in its own subdirectory; lookups search every known subdirectory.
type Resolver struct {
	root string
	dirs []string
}

// New creates a Resolver rooted at root that searches the given subdirectories
// in order. The root itself is always searched last.
func New(root string, dirs ...string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	return &Resolver{root: abs, dirs: dirs}, nil
}

// Root returns the absolute root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Dir returns the absolute directory for a subdirectory, creating it if missing.
func (r *Resolver) Dir(sub string) (string, error) {
	dir := filepath.Join(r.root, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return dir, nil
}

// Target returns the path a file named filename is stored at within sub.
func (r *Resolver) Target(sub, filename string) (string, error) {
	if err := ValidateName(filename); err != nil {
		return "", err
	}
	dir, err := r.Dir(sub)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}

// Resolve returns the path of the first stored file named filename.
func (r *Resolver) Resolve(filename string) (string, error) {
	if err := ValidateName(filename); err != nil {
		return "", err
	}

	for _, dir := range r.searchDirs() {
		path := filepath.Join(dir, filename)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, filename)
}

// Exists reports whether a stored file named filename exists.
func (r *Resolver) Exists(filename string) bool {
	_, err := r.Resolve(filename)
	return err == nil
}

// List returns the sorted, de-duplicated names of stored files matching pattern.
// A nil pattern matches every file. Partial downloads are never listed.
func (r *Resolver) List(pattern *regexp.Regexp) ([]string, error) {
	var names []string

	for _, dir := range r.searchDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}

		for _, e := range entries {
			name := e.Name()
			if !e.Type().IsRegular() || isPartial(name) {
				continue
			}
			if pattern != nil && !pattern.MatchString(name) {
				continue
			}
			names = append(names, name)
		}
	}

	slices.Sort(names)
	return slices.Compact(names), nil
}

// WriteAtomic streams src into path through a hidden partial file and renames it
// into place only after the content is fully written and synced. It returns the
// number of bytes written and the sha256 hex digest of the content.
func WriteAtomic(path string, src io.Reader) (int64, string, error) {
	dir, name := filepath.Split(path)
	part, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return 0, "", fmt.Errorf("create partial file: %w", err)
	}
	partName := part.Name()
	defer os.Remove(partName)

	hasher := sha256.New()
	n, err := io.Copy(part, io.TeeReader(src, hasher))
	if err != nil {
		part.Close()
		return n, "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := part.Sync(); err != nil {
		part.Close()
		return n, "", fmt.Errorf("sync %s: %w", name, err)
	}
	if err := part.Close(); err != nil {
		return n, "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(partName, path); err != nil {
		return n, "", fmt.Errorf("rename %s: %w", name, err)
	}

	return n, hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashFile returns the sha256 hex digest and size of the file at path.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	hasher := sha256.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return "", n, fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

// ValidateName rejects empty names and names carrying path segments.
func ValidateName(filename string) error {
	if filename == "" || filename == "." || filename == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return fmt.Errorf("%w: %s", ErrInvalidName, filename)
	}
	return nil
}

func (r *Resolver) searchDirs() []string {
	dirs := make([]string, 0, len(r.dirs)+1)
	for _, d := range r.dirs {
		dirs = append(dirs, filepath.Join(r.root, d))
	}
	return append(dirs, r.root)
}

func isPartial(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".part")
}
