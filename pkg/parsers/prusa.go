package parsers

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
	"github.com/roboll/slicerprofiledb/pkg/squash"
)

// parsePrusaFamilyDirectory parses every INI bundle under root (one
// bundle per vendor subdirectory or a single root bundle) via
// pkg/squash's INI splitter, then converts flattened sections into
// ParsedProfile records. It additionally parses any standalone
// marker-inferred JSON overlay files (spec.md §4.D's PrusaSlicer/
// SuperSlicer JSON branch), used for pre-squashed overlays applied on
// top of extracted profiles.
func parsePrusaFamilyDirectory(slicerType slicer.Type, root string) ([]profile.ParsedProfile, error) {
	var out []profile.ParsedProfile

	iniFiles, err := walkFiles(root, ".ini")
	if err != nil {
		return nil, err
	}
	for _, path := range iniFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		sections, err := squash.ParseBundle(data)
		if err != nil || sections == nil {
			continue
		}
		flat, err := squash.FlattenBundle(sections)
		if err != nil {
			continue
		}
		vendor := vendorFromBundlePath(path)
		for _, pt := range []slicer.ProfileType{slicer.MachineModel, slicer.Machine, slicer.Filament, slicer.Print} {
			byName := flat[pt]
			for _, name := range squash.SortedNames(byName) {
				settings := make(map[string]profile.Value, len(byName[name]))
				for k, v := range byName[name] {
					settings[k] = profile.NewValue(v)
				}
				out = append(out, profile.ParsedProfile{
					Slicer:      slicerType,
					ProfileType: pt,
					Name:        name,
					Vendor:      vendor,
					Settings:    settings,
					SourcePath:  path,
				})
			}
		}
	}

	jsonFiles, err := walkFiles(root, ".json")
	if err != nil {
		return nil, err
	}
	for _, path := range jsonFiles {
		raw, err := readJSONMap(path)
		if err != nil {
			continue
		}
		pt, ok := inferPrusaProfileType(raw)
		if !ok {
			continue
		}
		name := stringField(raw, "name")
		if name == "" {
			base := filepath.Base(path)
			name = strings.TrimSuffix(base, filepath.Ext(base))
		}
		vendor := discoverVendor(path)
		settings := toSettingsMap(raw, map[string]bool{"name": true})

		pp := profile.ParsedProfile{
			Slicer:      slicerType,
			ProfileType: pt,
			Name:        name,
			Vendor:      vendor,
			Settings:    settings,
			SourcePath:  path,
		}
		pp.FilamentID = stringField(raw, "filament_id")
		pp.SettingID = stringField(raw, "setting_id")
		out = append(out, pp)
	}

	return out, nil
}

func vendorFromBundlePath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(dir)
	if base == "." || base == string(filepath.Separator) {
		base := filepath.Base(path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return base
}

// inferPrusaProfileType infers a standalone JSON file's profile type from
// the presence of marker keys, per spec.md §4.D: variants -> MachineModel;
// printer_settings_id without filament_settings_id -> Machine;
// print_settings_id without filament_settings_id -> Print; otherwise
// Filament.
func inferPrusaProfileType(raw map[string]interface{}) (slicer.ProfileType, bool) {
	_, hasVariants := raw["variants"]
	_, hasPrinterID := raw["printer_settings_id"]
	_, hasPrintID := raw["print_settings_id"]
	_, hasFilamentID := raw["filament_settings_id"]

	switch {
	case hasVariants:
		return slicer.MachineModel, true
	case hasPrinterID && !hasFilamentID:
		return slicer.Machine, true
	case hasPrintID && !hasFilamentID:
		return slicer.Print, true
	default:
		return slicer.Filament, true
	}
}
