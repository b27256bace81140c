// Package ingest wires fetch, squash/parse, resource discovery and the
// versioned store into the single end-to-end ingestion call spec.md §5
// describes: one slicer, one version, fetched and parsed in a scoped work
// directory that is removed on exit whether or not the call succeeds, and
// folded into the store once fetch, parse and resource storage have
// succeeded. Adapted from
// roboll-helmfile's main.go command bodies (visitAllDesiredStates and
// friends), which likewise thread a handful of collaborators through a
// single converge function rather than a framework-shaped pipeline
// object.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/fetch"
	"github.com/roboll/slicerprofiledb/pkg/parsers"
	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/roboll/slicerprofiledb/pkg/report"
	"github.com/roboll/slicerprofiledb/pkg/resource"
	"github.com/roboll/slicerprofiledb/pkg/runtime"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
	"github.com/roboll/slicerprofiledb/pkg/store"
	"github.com/roboll/slicerprofiledb/pkg/version"
	"go.uber.org/zap"
)

// ProgressFunc mirrors pkg/mapping.ProgressFunc; ingestion reports its own
// stages (fetch, parse, store) the same way the mapping pipeline reports
// its stages, per SPEC_FULL.md's ambient progress-reporting requirement.
type ProgressFunc func(stage string, done, total int)

// Options configures a single slicer/version ingestion call.
type Options struct {
	SlicerType slicer.Type
	// Version is the raw tag or branch name to ingest. Required unless
	// SourceDir is set.
	Version string
	// SourceDir ingests directly from a local, already-extracted
	// directory instead of fetching an archive (the "ingest-local"
	// command's mode).
	SourceDir string
	// OverlayDir, if non-empty, is parsed after the main source and its
	// profiles replace or add to the main parse by (vendor, type, name)
	// key, mirroring the original pipeline's pre-squashed overlay
	// directory applied on top of extracted profiles.
	OverlayDir string
	StoreRoot  string
	Fetcher    fetch.Fetcher
	Progress   ProgressFunc
}

// Run fetches (or locates) profiles for one slicer/version, discovers and
// stores any resource-key files they reference, and folds the result into
// the store, returning the store's ingestion report.
func Run(ctx context.Context, logger *zap.SugaredLogger, opts Options) (*report.IngestionReport, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	callID := runtime.HashObject(map[string]string{
		"slicer": string(opts.SlicerType), "version": opts.Version, "overlay": opts.OverlayDir,
	})
	logger.Infow("ingest: starting", "call_id", callID, "slicer", opts.SlicerType, "version", opts.Version)

	var rep *report.IngestionReport
	err := runtime.WithScopedDir("ingest-"+string(opts.SlicerType), func(workDir string) error {
		root, err := resolveRoot(ctx, opts, workDir)
		if err != nil {
			return &report.DownloadError{Source: opts.Version, Cause: err}
		}
		progress(opts.Progress, "fetch", 1, 1)

		profiles, err := parsers.ParseDirectory(opts.SlicerType, root)
		if err != nil {
			return &report.ParseError{Path: root, Cause: err}
		}

		if opts.OverlayDir != "" {
			overlay, err := parsers.ParseDirectory(opts.SlicerType, opts.OverlayDir)
			if err == nil {
				profiles = mergeOverlay(profiles, overlay)
			}
		}
		progress(opts.Progress, "parse", 1, 1)

		st := store.Open(logger, opts.StoreRoot)
		if err := discoverAndRewriteResources(logger, root, st, opts.SlicerType, profiles); err != nil {
			return &report.StoreError{Path: st.ResourcesDir(opts.SlicerType), Cause: err}
		}

		v := version.Normalize(opts.Version)
		ingestRep, err := st.IngestProfiles(opts.SlicerType, v, profiles)
		if err != nil {
			return &report.StoreError{Path: opts.StoreRoot, Cause: err}
		}
		progress(opts.Progress, "store", 1, 1)
		rep = ingestRep
		return nil
	})
	return rep, err
}

func progress(p ProgressFunc, stage string, done, total int) {
	if p != nil {
		p(stage, done, total)
	}
}

// resolveRoot locates the directory ParseDirectory should walk: the
// caller-supplied local directory, or a freshly fetched archive's
// configured profile subtree.
func resolveRoot(ctx context.Context, opts Options, workDir string) (string, error) {
	if opts.SourceDir != "" {
		return opts.SourceDir, nil
	}
	if opts.Version == "" {
		return "", fmt.Errorf("ingest: version required when no source directory is given")
	}

	cfg, ok := slicer.SourceConfigs[opts.SlicerType]
	if !ok {
		return "", fmt.Errorf("ingest: no source config for %s", opts.SlicerType)
	}
	if opts.Fetcher == nil {
		return "", fmt.Errorf("ingest: no fetcher configured")
	}

	url := buildArchiveURL(cfg.ArchiveURLPattern, opts.Version)
	dst := filepath.Join(workDir, "archive")
	if _, err := opts.Fetcher.Fetch(ctx, url, dst); err != nil {
		return "", err
	}
	return filepath.Join(dst, cfg.ProfileRoot), nil
}

var tagPlaceholder = regexp.MustCompile(`\{tag\}`)

func buildArchiveURL(pattern, tag string) string {
	return tagPlaceholder.ReplaceAllString(pattern, tag)
}

// ResolveLatestVersion picks the greatest non-mutable, non-prerelease tag
// matching cfg.TagPattern, compared under version.Compare, and returns it
// as the raw tag name; used by the CLI's "--version latest" mode. Tags are
// enumerated via ts.
func ResolveLatestVersion(ctx context.Context, ts fetch.TagSource, cfg slicer.SourceConfig, token string) (string, error) {
	var pattern *regexp.Regexp
	if cfg.TagPattern != "" {
		pattern = regexp.MustCompile(cfg.TagPattern)
	}
	tags, err := ts.ListTags(ctx, cfg.Repo, pattern)
	if err != nil {
		return "", err
	}

	var candidates []string
	for _, t := range tags {
		if version.IsPreRelease(t.Raw) || version.IsMutable(t.Raw) {
			continue
		}
		candidates = append(candidates, t.Raw)
	}
	best := version.Max(candidates)
	if best == "" {
		return "", fmt.Errorf("ingest: no stable tag found for %s", cfg.Repo)
	}
	return best, nil
}

// mergeOverlay replaces any base profile sharing an overlay profile's
// (vendor, type, name) key, and appends overlay profiles with no match.
func mergeOverlay(base, overlay []profile.ParsedProfile) []profile.ParsedProfile {
	type key struct {
		Type   slicer.ProfileType
		Vendor string
		Name   string
	}
	overlayByKey := make(map[key]profile.ParsedProfile, len(overlay))
	for _, p := range overlay {
		overlayByKey[key{p.ProfileType, p.Vendor, p.Name}] = p
	}

	out := make([]profile.ParsedProfile, 0, len(base)+len(overlay))
	used := map[key]bool{}
	for _, p := range base {
		k := key{p.ProfileType, p.Vendor, p.Name}
		if replacement, ok := overlayByKey[k]; ok {
			out = append(out, replacement)
			used[k] = true
			continue
		}
		out = append(out, p)
	}
	for _, p := range overlay {
		k := key{p.ProfileType, p.Vendor, p.Name}
		if !used[k] {
			out = append(out, p)
		}
	}
	return out
}

// resourceExtensions lists the file extensions resource-key values name,
// scanned for under the parsed source root and stored content-addressed
// before ingestion (spec.md §4.B).
var resourceExtensions = map[string]bool{
	".png": true,
	".svg": true,
	".stl": true,
	".jpg": true,
}

// discoverAndRewriteResources walks root for resource-key candidate
// files, stores each into the slicer's resource subtree, and rewrites
// every profile's matching settings from a bare filename to a
// "sha256:{hex}" reference before storage, per spec.md §4.B's "must run
// before storage" ordering.
func discoverAndRewriteResources(logger *zap.SugaredLogger, root string, st *store.Store, slicerType slicer.Type, profiles []profile.ParsedProfile) error {
	rs, err := resource.Open(logger, st.ResourcesDir(slicerType))
	if err != nil {
		return err
	}

	collected := map[string]string{}
	walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !resourceExtensions[ext] {
			return nil
		}
		hash, storeErr := rs.Store(path)
		if storeErr != nil {
			return nil
		}
		collected[filepath.Base(path)] = hash
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return walkErr
	}

	for i := range profiles {
		resource.RewriteReferences(profiles[i].Settings, collected)
	}

	return rs.Save()
}
