// Package index builds the in-memory multi-keyed view over a store scan
// that every downstream matching/mapping/reconciling stage queries
// against, per spec.md §4.H.
package index

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/condition"
	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
)

// Index is read-only once built; a fresh Index is built from a full store
// scan for every pipeline run (spec.md §5: no shared mutable state).
type Index struct {
	byID       map[string][]*profile.StoredProfile
	byExact    map[nameKey][]*profile.StoredProfile
	byBase     map[nameKey][]*profile.StoredProfile
	byGeneric  map[genericKey][]*profile.StoredProfile
	byType     map[typeKey]map[string]map[string][]*profile.StoredProfile
	allByType  map[typeKey][]*profile.StoredProfile
}

type nameKey struct {
	Slicer slicer.Type
	Vendor string
	Name   string
}

type genericKey struct {
	Slicer       slicer.Type
	Vendor       string
	FilamentType string
}

type typeKey struct {
	Slicer      slicer.Type
	ProfileType slicer.ProfileType
}

func New() *Index {
	return &Index{
		byID:      map[string][]*profile.StoredProfile{},
		byExact:   map[nameKey][]*profile.StoredProfile{},
		byBase:    map[nameKey][]*profile.StoredProfile{},
		byGeneric: map[genericKey][]*profile.StoredProfile{},
		byType:    map[typeKey]map[string]map[string][]*profile.StoredProfile{},
		allByType: map[typeKey][]*profile.StoredProfile{},
	}
}

// BaseName returns the prefix of name before its first " @", which is how
// PrusaSlicer-family profiles encode printer-specific variants.
func BaseName(name string) string {
	if i := strings.Index(name, " @"); i >= 0 {
		return name[:i]
	}
	return name
}

// Add registers one StoredProfile under every applicable view.
func (idx *Index) Add(sp *profile.StoredProfile) {
	if sp.FilamentID != "" {
		idx.byID[sp.FilamentID] = append(idx.byID[sp.FilamentID], sp)
	}
	if sp.SettingID != "" {
		idx.byID[sp.SettingID] = append(idx.byID[sp.SettingID], sp)
	}

	ek := nameKey{Slicer: sp.Slicer, Vendor: sp.Vendor, Name: sp.Name}
	idx.byExact[ek] = append(idx.byExact[ek], sp)

	bk := nameKey{Slicer: sp.Slicer, Vendor: sp.Vendor, Name: strings.ToLower(BaseName(sp.Name))}
	idx.byBase[bk] = append(idx.byBase[bk], sp)

	if fv, ok := sp.GetLatest("filament_vendor"); ok {
		if s, ok := fv.V.(string); ok && s == "Generic" {
			if ft, ok := sp.GetLatest("filament_type"); ok {
				if fts, ok := ft.V.(string); ok {
					gk := genericKey{Slicer: sp.Slicer, Vendor: sp.Vendor, FilamentType: fts}
					idx.byGeneric[gk] = append(idx.byGeneric[gk], sp)
				}
			}
		}
	}

	tk := typeKey{Slicer: sp.Slicer, ProfileType: sp.ProfileType}
	idx.allByType[tk] = append(idx.allByType[tk], sp)
	if idx.byType[tk] == nil {
		idx.byType[tk] = map[string]map[string][]*profile.StoredProfile{}
	}
	if idx.byType[tk][sp.Vendor] == nil {
		idx.byType[tk][sp.Vendor] = map[string][]*profile.StoredProfile{}
	}
	idx.byType[tk][sp.Vendor][sp.Name] = append(idx.byType[tk][sp.Vendor][sp.Name], sp)
}

func (idx *Index) ByID(id string) []*profile.StoredProfile {
	return idx.byID[id]
}

func (idx *Index) ByExactName(slicerType slicer.Type, vendor, name string) []*profile.StoredProfile {
	return idx.byExact[nameKey{Slicer: slicerType, Vendor: vendor, Name: name}]
}

func (idx *Index) ByBaseName(slicerType slicer.Type, vendor, name string) []*profile.StoredProfile {
	return idx.byBase[nameKey{Slicer: slicerType, Vendor: vendor, Name: strings.ToLower(BaseName(name))}]
}

// ByExactNameAnyVendor scans every vendor for slicerType and returns every
// profile whose exact name matches, used by the "template" resolver step
// (spec.md §4.H step 2).
func (idx *Index) ByExactNameAnyVendor(slicerType slicer.Type, name string) []*profile.StoredProfile {
	var out []*profile.StoredProfile
	for k, list := range idx.byExact {
		if k.Slicer == slicerType && k.Name == name {
			out = append(out, list...)
		}
	}
	return out
}

// ByBaseNameAnyVendor scans every vendor for slicerType and returns every
// profile whose lowercased base name matches name, used by the
// reconciler's forward resolution (spec.md §4.K).
func (idx *Index) ByBaseNameAnyVendor(slicerType slicer.Type, name string) []*profile.StoredProfile {
	var out []*profile.StoredProfile
	want := strings.ToLower(BaseName(name))
	for k, list := range idx.byBase {
		if k.Slicer == slicerType && k.Name == want {
			out = append(out, list...)
		}
	}
	return out
}

func (idx *Index) ByGeneric(slicerType slicer.Type, vendor, filamentType string) []*profile.StoredProfile {
	return idx.byGeneric[genericKey{Slicer: slicerType, Vendor: vendor, FilamentType: filamentType}]
}

// ByGenericAnyVendor scans every vendor's generic index for filamentType.
func (idx *Index) ByGenericAnyVendor(slicerType slicer.Type, filamentType string) []*profile.StoredProfile {
	var out []*profile.StoredProfile
	for k, list := range idx.byGeneric {
		if k.Slicer == slicerType && k.FilamentType == filamentType {
			out = append(out, list...)
		}
	}
	return out
}

func (idx *Index) ByType(slicerType slicer.Type, pt slicer.ProfileType) []*profile.StoredProfile {
	return idx.allByType[typeKey{Slicer: slicerType, ProfileType: pt}]
}

func (idx *Index) VendorsForType(slicerType slicer.Type, pt slicer.ProfileType) map[string]map[string][]*profile.StoredProfile {
	return idx.byType[typeKey{Slicer: slicerType, ProfileType: pt}]
}

// allProfileTypes enumerates every ProfileType BuildAll scans for, since
// slicer.ProfileType has no exported slice of its own (unlike
// slicer.Types).
var allProfileTypes = []slicer.ProfileType{slicer.Filament, slicer.Machine, slicer.MachineModel, slicer.Print}

// BuildAll scans every slicer's store subtree into a single combined
// Index, the shape pkg/mapping and pkg/reconciler both require (neither
// is scoped to one slicer at a time). Built atop BuildFromStoreDir rather
// than duplicating its walk, one per-slicer scratch Index feeding the
// combined one.
func BuildAll(load func(path string) (*profile.StoredProfile, error), storeRoot string, slicers []slicer.Type) (*Index, error) {
	combined := New()
	for _, slicerType := range slicers {
		scratch, err := BuildFromStoreDir(load, storeRoot, slicerType)
		if err != nil {
			return nil, err
		}
		for _, pt := range allProfileTypes {
			for _, sp := range scratch.ByType(slicerType, pt) {
				combined.Add(sp)
			}
		}
	}
	return combined, nil
}

// BuildFromStoreDir walks every `{vendor}/{type}/*.json` file under
// storeRoot/slicer (mirroring store.Store's own on-disk layout) and loads
// each into the index. It is deliberately decoupled from package store to
// avoid a store<->index import cycle; store.Store.Load covers the
// single-profile case, this covers a full scan.
func BuildFromStoreDir(load func(path string) (*profile.StoredProfile, error), storeRoot string, slicerType slicer.Type) (*Index, error) {
	idx := New()
	root := filepath.Join(storeRoot, string(slicerType))
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
		rel, relErr := filepath.Rel(root, path)
		if relErr == nil {
			if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 0 && strings.HasPrefix(parts[0], "_") {
				return nil
			}
		}
		sp, err := load(path)
		if err != nil || sp == nil {
			return nil
		}
		idx.Add(sp)
		return nil
	})
	if os.IsNotExist(err) {
		return idx, nil
	}
	return idx, err
}

// FindCompatible returns the first profile among profiles compatible with
// printerName/config, or nil.
func FindCompatible(profiles []*profile.StoredProfile, v string, printerName string, cfg map[string]interface{}, defaults map[string]interface{}) *profile.StoredProfile {
	for _, p := range profiles {
		if isCompatible(p, v, printerName, cfg, defaults) {
			return p
		}
	}
	return nil
}

// FindAllCompatible returns every profile among profiles compatible with
// printerName/config.
func FindAllCompatible(profiles []*profile.StoredProfile, v string, printerName string, cfg map[string]interface{}, defaults map[string]interface{}) []*profile.StoredProfile {
	var out []*profile.StoredProfile
	for _, p := range profiles {
		if isCompatible(p, v, printerName, cfg, defaults) {
			out = append(out, p)
		}
	}
	return out
}

func isCompatible(p *profile.StoredProfile, v string, printerName string, cfg map[string]interface{}, defaults map[string]interface{}) bool {
	snap := p.Evaluate(v)
	if cp, ok := snap["compatible_printers"]; ok {
		if listContainsPrinter(cp.V, printerName) {
			return true
		}
	}
	if cond, ok := snap["compatible_printers_condition"]; ok {
		if expr, ok := cond.V.(string); ok && expr != "" {
			ctx := condition.Context{Slicer: p.Slicer, Config: cfg, Defaults: defaults}
			ok, err := condition.Evaluate(expr, ctx)
			if err == nil && ok {
				return true
			}
		}
	}
	return false
}

// listContainsPrinter handles compatible_printers as either a []interface{}
// or a semicolon-separated string with quoted entries.
func listContainsPrinter(v interface{}, printerName string) bool {
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			if s, ok := e.(string); ok && strings.Trim(s, `"`) == printerName {
				return true
			}
		}
	case string:
		for _, part := range strings.Split(t, ";") {
			if strings.Trim(strings.TrimSpace(part), `"`) == printerName {
				return true
			}
		}
	}
	return false
}

// ResolveFilament implements the hierarchical filament resolver, spec.md
// §4.H: specific by-name match, then template (cross-vendor exact-name
// singleton), then printer-generic, then any-vendor generic singleton.
func (idx *Index) ResolveFilament(slicerType slicer.Type, vendor string, v string, printerName string, cfg, defaults map[string]interface{}, filamentName, filamentType string) *profile.StoredProfile {
	if found := FindCompatible(idx.ByExactName(slicerType, vendor, filamentName), v, printerName, cfg, defaults); found != nil {
		return found
	}

	templates := idx.ByExactNameAnyVendor(slicerType, filamentName)
	if len(templates) == 1 {
		return templates[0]
	}

	if found := FindCompatible(idx.ByGeneric(slicerType, vendor, filamentType), v, printerName, cfg, defaults); found != nil {
		return found
	}

	anyGeneric := idx.ByGenericAnyVendor(slicerType, filamentType)
	if len(anyGeneric) == 1 {
		return anyGeneric[0]
	}

	return nil
}
