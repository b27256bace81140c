// Package resource implements the content-addressed binary store
// (spec.md §4.B): SHA-256-keyed storage for STL/SVG/PNG assets referenced
// from profile settings, with a JSON manifest and garbage collection of
// entries absent from a caller-supplied set of referenced hashes.
package resource

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Entry is one manifest record.
type Entry struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
}

// Store is a single slicer's resource subtree: {root}/_resources/.
type Store struct {
	Logger *zap.SugaredLogger
	Root   string

	manifest map[string]Entry
}

func Open(logger *zap.SugaredLogger, root string) (*Store, error) {
	s := &Store{Logger: logger, Root: root, manifest: map[string]Entry{}}
	path := s.manifestPath()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("resource: read manifest: %w", err)
	}
	if err := json.Unmarshal(b, &s.manifest); err != nil {
		return nil, fmt.Errorf("resource: decode manifest: %w", err)
	}
	return s, nil
}

func (s *Store) manifestPath() string {
	return filepath.Join(s.Root, "manifest.json")
}

func (s *Store) filePath(hash, ext string) string {
	return filepath.Join(s.Root, hash+"."+ext)
}

// Store reads bytes from the given path, computes its SHA-256 digest,
// writes {hex}.{ext} if not already present, records the original
// filename and size in the manifest, and returns the hex digest.
func (s *Store) Store(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("resource: read %s: %w", path, err)
	}
	sum := sha256.Sum256(b)
	hash := hex.EncodeToString(sum[:])

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	dst := s.filePath(hash, ext)

	if _, err := os.Stat(dst); os.IsNotExist(err) {
		if err := os.MkdirAll(s.Root, 0o755); err != nil {
			return "", fmt.Errorf("resource: mkdir: %w", err)
		}
		if err := os.WriteFile(dst, b, 0o644); err != nil {
			return "", fmt.Errorf("resource: write %s: %w", dst, err)
		}
	}

	s.manifest[hash] = Entry{Filename: filepath.Base(path), Size: int64(len(b)), Type: ext}
	return hash, nil
}

// Save persists the manifest as a JSON object keyed by hex digest, with
// keys sorted for deterministic output.
func (s *Store) Save() error {
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return fmt.Errorf("resource: mkdir: %w", err)
	}
	keys := make([]string, 0, len(s.manifest))
	for k := range s.manifest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]Entry, len(keys))
	for _, k := range keys {
		ordered[k] = s.manifest[k]
	}
	b, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return fmt.Errorf("resource: encode manifest: %w", err)
	}
	return os.WriteFile(s.manifestPath(), b, 0o644)
}

// Lookup returns the manifest entry for a hash, if present.
func (s *Store) Lookup(hash string) (Entry, bool) {
	e, ok := s.manifest[hash]
	return e, ok
}

// Manifest returns a copy of the full manifest.
func (s *Store) Manifest() map[string]Entry {
	out := make(map[string]Entry, len(s.manifest))
	for k, v := range s.manifest {
		out[k] = v
	}
	return out
}

// GC removes any manifest entry not present in referenced, deleting its
// backing file.
func (s *Store) GC(referenced map[string]bool) error {
	for hash, entry := range s.manifest {
		if referenced[hash] {
			continue
		}
		if err := os.Remove(s.filePath(hash, entry.Type)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("resource: gc remove %s: %w", hash, err)
		}
		delete(s.manifest, hash)
		if s.Logger != nil {
			s.Logger.Debugf("resource: gc removed unreferenced hash %s", hash)
		}
	}
	return nil
}

var resourceRefExpr = regexp.MustCompile(`^sha256:([0-9a-f]+)$`)

// ParseRef extracts the hex digest from a "sha256:{hex}" reference value,
// or returns false if the string does not match that shape.
func ParseRef(s string) (string, bool) {
	m := resourceRefExpr.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Ref formats a hex digest as a "sha256:{hex}" reference value.
func Ref(hash string) string {
	return "sha256:" + hash
}
