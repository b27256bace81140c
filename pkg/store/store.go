// Package store implements the versioned on-disk profile store, spec.md
// §4.F: each ingestion call folds a batch of freshly parsed profiles for
// one slicer/version into per-profile JSON files carrying per-setting
// history, without ever mutating or discarding history already on disk.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/roboll/slicerprofiledb/pkg/report"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
	"go.uber.org/zap"
)

// Store is a directory-rooted handle onto the versioned profile tree.
// Root is resolved by main.go and passed in; Store never reads the
// environment itself.
type Store struct {
	Logger *zap.SugaredLogger
	Root   string
}

func Open(logger *zap.SugaredLogger, root string) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{Logger: logger, Root: root}
}

// meta is the per-slicer `_meta.json` document.
type meta struct {
	Versions     []string `json:"versions"`
	LastIngested string   `json:"last_ingested"`
}

var sanitizeChars = regexp.MustCompile(`[<>:"/\\|?*]`)
var collapseUnderscores = regexp.MustCompile(`_+`)

// SanitizeName applies spec.md §4.F's name-sanitization rule: replace
// reserved characters with underscore, collapse underscore runs, then
// strip leading/trailing underscore, dot, and space.
func SanitizeName(name string) string {
	s := sanitizeChars.ReplaceAllString(name, "_")
	s = collapseUnderscores.ReplaceAllString(s, "_")
	return strings.Trim(s, "_. ")
}

func (s *Store) slicerDir(slicerType slicer.Type) string {
	return filepath.Join(s.Root, string(slicerType))
}

func (s *Store) profilePath(slicerType slicer.Type, pt slicer.ProfileType, vendor, name string) string {
	return filepath.Join(s.slicerDir(slicerType), vendor, string(pt), SanitizeName(name)+".json")
}

func (s *Store) metaPath(slicerType slicer.Type) string {
	return filepath.Join(s.slicerDir(slicerType), "_meta.json")
}

// wireStoredProfile is the on-disk JSON shape. StoredProfile itself keeps
// History as an unexported ordered type, so persistence goes through this
// intermediate.
type wireStoredProfile struct {
	Slicer      slicer.Type           `json:"slicer"`
	ProfileType slicer.ProfileType    `json:"profile_type"`
	Vendor      string                `json:"vendor"`
	Name        string                `json:"name"`
	FirstSeen   string                `json:"first_seen"`
	LastSeen    string                `json:"last_seen"`
	FilamentID  string                `json:"filament_id,omitempty"`
	SettingID   string                `json:"setting_id,omitempty"`
	RenamedFrom string                `json:"renamed_from,omitempty"`
	Settings    map[string][]wireEntry `json:"settings"`
}

type wireEntry struct {
	Version string      `json:"version"`
	Value   interface{} `json:"value"`
}

func toWire(sp *profile.StoredProfile) wireStoredProfile {
	w := wireStoredProfile{
		Slicer:      sp.Slicer,
		ProfileType: sp.ProfileType,
		Vendor:      sp.Vendor,
		Name:        sp.Name,
		FirstSeen:   sp.FirstSeen,
		LastSeen:    sp.LastSeen,
		FilamentID:  sp.FilamentID,
		SettingID:   sp.SettingID,
		RenamedFrom: sp.RenamedFrom,
		Settings:    map[string][]wireEntry{},
	}
	for key, h := range sp.Settings {
		entries := make([]wireEntry, 0, h.Len())
		for _, v := range h.Versions() {
			val, _ := h.At(v)
			entries = append(entries, wireEntry{Version: v, Value: val.V})
		}
		w.Settings[key] = entries
	}
	return w
}

func fromWire(w wireStoredProfile) *profile.StoredProfile {
	sp := profile.NewStoredProfile(w.Slicer, w.ProfileType, w.Vendor, w.Name)
	sp.FirstSeen = w.FirstSeen
	sp.LastSeen = w.LastSeen
	sp.FilamentID = w.FilamentID
	sp.SettingID = w.SettingID
	sp.RenamedFrom = w.RenamedFrom
	for key, entries := range w.Settings {
		h := profile.NewHistory()
		for _, e := range entries {
			h.Append(e.Version, profile.NewValue(e.Value))
		}
		sp.Settings[key] = h
	}
	return sp
}

func (s *Store) load(path string) (*profile.StoredProfile, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var w wireStoredProfile
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	return fromWire(w), nil
}

func (s *Store) save(path string, sp *profile.StoredProfile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(toWire(sp), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func (s *Store) loadMeta(slicerType slicer.Type) (*meta, error) {
	b, err := os.ReadFile(s.metaPath(slicerType))
	if os.IsNotExist(err) {
		return &meta{}, nil
	}
	if err != nil {
		return nil, err
	}
	var m meta
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) saveMeta(slicerType slicer.Type, m *meta) error {
	if err := os.MkdirAll(s.slicerDir(slicerType), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.metaPath(slicerType), b, 0o644)
}

// reservedVendorPrefix marks directories ingestion never treats as a
// vendor (_meta.json, _resources/).
const reservedVendorPrefix = "_"

// IngestProfiles folds a batch of freshly parsed profiles for one slicer
// at one version into the store, per spec.md §4.F.
func (s *Store) IngestProfiles(slicerType slicer.Type, v string, profiles []profile.ParsedProfile) (*report.IngestionReport, error) {
	rep := report.NewIngestionReport()
	seen := map[string]bool{}

	for _, p := range profiles {
		path := s.profilePath(slicerType, p.ProfileType, p.Vendor, p.Name)
		seen[path] = true

		existing, err := s.load(path)
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}

		if existing == nil {
			sp := profile.NewStoredProfile(slicerType, p.ProfileType, p.Vendor, p.Name)
			sp.FirstSeen = v
			sp.LastSeen = v
			sp.FilamentID = p.FilamentID
			sp.SettingID = p.SettingID
			for key, val := range p.Settings {
				h := profile.NewHistory()
				h.Append(v, val)
				sp.Settings[key] = h
			}

			if p.RenamedFrom != "" {
				oldPath := s.profilePath(slicerType, p.ProfileType, p.Vendor, p.RenamedFrom)
				predecessor, err := s.load(oldPath)
				if err == nil && predecessor != nil {
					mergeRename(sp, predecessor, p.RenamedFrom)
					os.Remove(oldPath)
					delete(seen, oldPath)
				}
			}

			if err := s.save(path, sp); err != nil {
				rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", path, err))
				continue
			}
			rep.Added = append(rep.Added, p.Name)
			continue
		}

		var changedKeys []string
		for key, val := range p.Settings {
			latest, ok := existing.GetLatest(key)
			if ok && latest.Equal(val) {
				continue
			}
			h := existing.Settings[key]
			if h == nil {
				h = profile.NewHistory()
				existing.Settings[key] = h
			}
			h.Append(v, val)
			changedKeys = append(changedKeys, key)
		}

		advanced := existing.LastSeen != v
		existing.LastSeen = v

		if len(changedKeys) > 0 || advanced {
			sort.Strings(changedKeys)
			if len(changedKeys) > 0 {
				rep.Changed[p.Name] = changedKeys
			} else {
				rep.Unchanged = append(rep.Unchanged, p.Name)
			}
			if err := s.save(path, existing); err != nil {
				rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", path, err))
			}
		} else {
			rep.Unchanged = append(rep.Unchanged, p.Name)
		}
	}

	removed, err := s.enumerateRemoved(slicerType, seen)
	if err != nil {
		rep.Errors = append(rep.Errors, err.Error())
	} else {
		rep.Removed = removed
	}

	m, err := s.loadMeta(slicerType)
	if err != nil {
		return rep, err
	}
	if !containsString(m.Versions, v) {
		m.Versions = append(m.Versions, v)
	}
	m.LastIngested = v
	if err := s.saveMeta(slicerType, m); err != nil {
		return rep, err
	}

	return rep, nil
}

// mergeRename applies spec.md §4.F.1: the successor adopts the
// predecessor's first_seen, records renamed_from, and prepends
// predecessor history (old->new ordering) onto any key the successor
// also defines, or copies it wholesale where the successor doesn't.
func mergeRename(successor, predecessor *profile.StoredProfile, oldName string) {
	successor.FirstSeen = predecessor.FirstSeen
	successor.RenamedFrom = oldName

	for key, predHist := range predecessor.Settings {
		succHist, ok := successor.Settings[key]
		if !ok {
			successor.Settings[key] = predHist
			continue
		}
		merged := profile.NewHistory()
		for _, ver := range predHist.Versions() {
			val, _ := predHist.At(ver)
			merged.Append(ver, val)
		}
		for _, ver := range succHist.Versions() {
			val, _ := succHist.At(ver)
			merged.Append(ver, val)
		}
		successor.Settings[key] = merged
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// enumerateRemoved walks every on-disk profile file for slicerType and
// reports (without deleting) any whose path was not touched by this
// ingestion.
func (s *Store) enumerateRemoved(slicerType slicer.Type, seen map[string]bool) ([]string, error) {
	root := s.slicerDir(slicerType)
	var removed []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Base(path) == "_meta.json" {
			return nil
		}
		if !strings.HasSuffix(path, ".json") {
			return nil
		}
		if isUnderReservedVendor(root, path) {
			return nil
		}
		if !seen[path] {
			sp, err := s.load(path)
			if err == nil && sp != nil {
				removed = append(removed, sp.Name)
			}
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	sort.Strings(removed)
	return removed, err
}

func isUnderReservedVendor(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) == 0 {
		return false
	}
	return strings.HasPrefix(parts[0], reservedVendorPrefix)
}

// Load returns the StoredProfile at the given identity, or nil if absent.
func (s *Store) Load(key profile.Key) (*profile.StoredProfile, error) {
	path := s.profilePath(key.Slicer, key.ProfileType, key.Vendor, key.Name)
	return s.load(path)
}

// LoadPath loads a StoredProfile directly from an on-disk JSON path, the
// path-keyed loader pkg/index.BuildFromStoreDir requires to stay
// decoupled from package store's own identity scheme.
func (s *Store) LoadPath(path string) (*profile.StoredProfile, error) {
	return s.load(path)
}

// ResourcesDir is the per-slicer resource root referenced from
// pkg/envvar.OverlayDir-configured overlays and pkg/resource.Store.
func (s *Store) ResourcesDir(slicerType slicer.Type) string {
	return filepath.Join(s.slicerDir(slicerType), "_resources")
}

// DefaultRoot resolves the store root: the caller-supplied override wins,
// else a `store` subdirectory of the working directory. Reading
// pkg/envvar.StoreRoot to produce override is main.go's job, not this
// package's: the core never reads the environment directly (spec.md §6).
func DefaultRoot(override string) string {
	if override != "" {
		return override
	}
	return "store"
}
