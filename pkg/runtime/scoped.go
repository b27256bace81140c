// Package runtime provides the scoped work-directory lifecycle spec.md §5
// requires: a directory created per ingestion invocation and guaranteed
// removed on every exit path, success or failure. Adapted from
// roboll-helmfile's pkg/runtime.TempDir/UniqueTempDir, dropping the
// package-level directory cache (a single ingestion call must own an
// exclusive work directory, not share one keyed by pattern across the
// process).
package runtime

import (
	"fmt"
	"hash/fnv"
	"os"

	"github.com/davecgh/go-spew/spew"
)

// WithScopedDir creates a temp directory named from pattern, invokes fn
// with its path, and removes the directory afterward regardless of
// whether fn returns an error or panics.
func WithScopedDir(pattern string, fn func(dir string) error) (err error) {
	dir, mkErr := ScopedDir(pattern)
	if mkErr != nil {
		return mkErr
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()
	return fn(dir)
}

// ScopedDir creates and returns a fresh temp directory for a single
// ingestion call. The caller is responsible for removing it; prefer
// WithScopedDir, which does this automatically.
func ScopedDir(pattern string) (string, error) {
	if pattern == "" {
		pattern = "slicerprofiledb"
	}
	dir, err := os.MkdirTemp("", pattern+"-")
	if err != nil {
		return "", fmt.Errorf("runtime: create scoped dir: %w", err)
	}
	return dir, nil
}

// HashObject computes a stable, order-independent identity hash of obj,
// used by pkg/ingest as the call identifier in its log lines.
// Kept from the teacher's implementation: fnv-32a over a sorted spew
// dump, a non-cryptographic identity hash distinct from the SHA-256
// content addressing pkg/resource performs on file bytes.
func HashObject(obj interface{}) string {
	hash := fnv.New32a()
	printer := spew.ConfigState{
		Indent:         " ",
		SortKeys:       true,
		DisableMethods: true,
		SpewKeys:       true,
	}
	printer.Fprintf(hash, "%#v", obj)
	return fmt.Sprint(hash.Sum32())
}
