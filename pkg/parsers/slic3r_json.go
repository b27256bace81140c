package parsers

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
	"github.com/roboll/slicerprofiledb/pkg/squash"
)

var vendorWalkDirs = map[string]bool{"filament": true, "machine": true, "process": true}

// discoverVendor walks a file's ancestors until a directory named
// filament/machine/process is found; the vendor is that directory's
// parent.
func discoverVendor(path string) string {
	dir := filepath.Dir(path)
	for dir != "." && dir != string(filepath.Separator) && dir != "" {
		base := filepath.Base(dir)
		if vendorWalkDirs[base] {
			return filepath.Base(filepath.Dir(dir))
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return filepath.Base(filepath.Dir(path))
}

// unwrapSingleton unwraps a one-element list, except for PrusaSlicer
// where semicolon-separated strings are kept as-is (this path is never
// reached for PrusaSlicer, which has its own parser, but the rule is
// centralized here since multiple ID fields share it).
func unwrapSingleton(v interface{}) interface{} {
	if list, ok := v.([]interface{}); ok && len(list) == 1 {
		return list[0]
	}
	return v
}

func idField(raw map[string]interface{}, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	v = unwrapSingleton(v)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func parseSlic3rJSONDirectory(slicerType slicer.Type, root string) ([]profile.ParsedProfile, error) {
	files, err := walkFiles(root, ".json")
	if err != nil {
		return nil, err
	}

	type loaded struct {
		path       string
		raw        map[string]interface{}
		pt         slicer.ProfileType
		name       string
		vendor     string
	}

	byVendor := map[string]map[string]*squash.RawJSONProfile{}
	meta := map[string]*loaded{} // name -> loaded, per vendor scoping handled via composite key
	vendorOf := map[string]string{}

	for _, path := range files {
		raw, err := readJSONMap(path)
		if err != nil {
			continue
		}
		rawType, _ := raw["type"].(string)
		if rawType == "" {
			// Base templates / gcode snippets without a type still
			// participate in include/inherits resolution.
			rawType = ""
		}

		var pt slicer.ProfileType
		isMachineModel := false
		if rawType != "" {
			canon, err := slicer.CanonicalProfileType(rawType)
			if err != nil {
				continue
			}
			pt = canon
			isMachineModel = canon == slicer.MachineModel
		}

		name := stringField(raw, "name")
		if name == "" {
			switch rawType {
			case "filament":
				name = stringField(raw, "filament_settings_id")
			case "machine":
				name = stringField(raw, "setting_id")
			case "process", "print":
				name = stringField(raw, "print_settings_id")
			}
		}
		if name == "" {
			base := filepath.Base(path)
			name = strings.TrimSuffix(base, filepath.Ext(base))
		}

		vendor := discoverVendor(path)

		include := []string{}
		if inc, ok := raw["include"].([]interface{}); ok {
			for _, i := range inc {
				if s, ok := i.(string); ok {
					include = append(include, s)
				}
			}
		}
		inherits := stringField(raw, "inherits")
		instantiation := stringField(raw, "instantiation")

		rp := &squash.RawJSONProfile{
			Name:           name,
			Settings:       raw,
			Include:        include,
			Inherits:       inherits,
			Instantiation:  instantiation,
			IsMachineModel: isMachineModel,
		}

		if byVendor[vendor] == nil {
			byVendor[vendor] = map[string]*squash.RawJSONProfile{}
		}
		byVendor[vendor][name] = rp
		vendorOf[vendor+"\x00"+name] = vendor
		meta[vendor+"\x00"+name] = &loaded{path: path, raw: raw, pt: pt, name: name, vendor: vendor}
	}

	var out []profile.ParsedProfile
	vendors := make([]string, 0, len(byVendor))
	for vendor := range byVendor {
		vendors = append(vendors, vendor)
	}
	sort.Strings(vendors)
	for _, vendor := range vendors {
		profiles := byVendor[vendor]
		flat, err := squash.FlattenJSONVendor(profiles)
		if err != nil {
			continue
		}
		names := squash.SortedNames(flat)
		for _, name := range names {
			m, ok := meta[vendor+"\x00"+name]
			if !ok || m.pt == "" {
				continue
			}
			settings := toSettingsMap(flat[name], map[string]bool{
				"type": true, "name": true, "include": true, "inherits": true, "instantiation": true,
			})

			pp := profile.ParsedProfile{
				Slicer:      slicerType,
				ProfileType: m.pt,
				Name:        name,
				Vendor:      vendor,
				Settings:    settings,
				SourcePath:  m.path,
			}
			pp.FilamentID = idField(m.raw, "filament_id")
			pp.SettingID = idField(m.raw, "setting_id")
			pp.FilamentType = idField(m.raw, "filament_type")
			pp.FilamentSettingsID = idField(m.raw, "filament_settings_id")
			if rf, ok := m.raw["renamed_from"].(string); ok {
				pp.RenamedFrom = rf
			}
			out = append(out, pp)
		}
	}
	return out, nil
}
