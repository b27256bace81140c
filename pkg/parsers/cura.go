package parsers

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
)

// fdmMaterial mirrors the subset of the Ultimaker material-XML namespace
// this system extracts: brand/material/color/label/GUID plus every
// <setting key=...> and <machine><setting>.
type fdmMaterial struct {
	XMLName  xml.Name `xml:"fdmmaterial"`
	Metadata struct {
		Name struct {
			Brand    string `xml:"brand"`
			Material string `xml:"material"`
			Color    string `xml:"color"`
			Label    string `xml:"label"`
		} `xml:"name"`
		GUID string `xml:"GUID"`
	} `xml:"metadata"`
	Properties struct {
		Settings []fdmSetting `xml:"setting"`
		Machines []fdmMachine `xml:"machine"`
	} `xml:"properties"`
}

// fdmSetting is defined separately so both top-level and per-machine
// <setting> elements decode identically.
type fdmSetting struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

type fdmMachine struct {
	Identifier struct {
		Product string `xml:"product,attr"`
	} `xml:"machine_identifier"`
	Settings []fdmSetting `xml:"setting"`
}

func parseCuraDirectory(root string) ([]profile.ParsedProfile, error) {
	var out []profile.ParsedProfile

	materials, err := walkFiles(root, ".fdm_material")
	if err != nil {
		return nil, err
	}
	for _, path := range materials {
		pp, ok := parseFdmMaterial(path)
		if ok {
			out = append(out, pp)
		}
	}

	defs, err := walkFiles(root, ".def.json")
	if err != nil {
		return nil, err
	}
	vendorOfMachine := map[string]string{}
	rawDefs := map[string]map[string]interface{}{}
	var defNames []string
	for _, path := range defs {
		raw, err := readJSONMap(path)
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(filepath.Base(path), ".def.json")
		if _, seen := rawDefs[name]; !seen {
			defNames = append(defNames, name)
		}
		rawDefs[name] = raw
	}
	for _, name := range defNames {
		raw := rawDefs[name]
		visible := true
		if meta, ok := raw["metadata"].(map[string]interface{}); ok {
			if v, ok := meta["visible"].(bool); ok {
				visible = v
			}
		}
		if !visible {
			continue
		}

		vendor := resolveCuraVendor(name, rawDefs, map[string]bool{})
		vendorOfMachine[name] = vendor

		settings := flattenCuraOverrides(raw)
		out = append(out, profile.ParsedProfile{
			Slicer:      slicer.Cura,
			ProfileType: slicer.MachineModel,
			Name:        name,
			Vendor:      vendor,
			Settings:    settings,
		})
	}

	return out, nil
}

func parseFdmMaterial(path string) (profile.ParsedProfile, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return profile.ParsedProfile{}, false
	}
	var m fdmMaterial
	if err := xml.Unmarshal(b, &m); err != nil {
		return profile.ParsedProfile{}, false
	}

	settings := map[string]profile.Value{}
	for _, s := range m.Properties.Settings {
		settings[s.Key] = profile.NewValue(strings.TrimSpace(s.Value))
	}
	for _, mach := range m.Properties.Machines {
		for _, s := range mach.Settings {
			key := "machine:" + mach.Identifier.Product + ":" + s.Key
			settings[key] = profile.NewValue(strings.TrimSpace(s.Value))
		}
	}
	settings["brand"] = profile.NewValue(m.Metadata.Name.Brand)
	settings["material"] = profile.NewValue(m.Metadata.Name.Material)
	settings["color"] = profile.NewValue(m.Metadata.Name.Color)
	settings["guid"] = profile.NewValue(m.Metadata.GUID)

	name := m.Metadata.Name.Label
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	vendor := m.Metadata.Name.Brand
	if vendor == "" {
		vendor = "Generic"
	}

	return profile.ParsedProfile{
		Slicer:      slicer.Cura,
		ProfileType: slicer.Filament,
		Name:        name,
		Vendor:      vendor,
		Settings:    settings,
		SourcePath:  path,
	}, true
}

// resolveCuraVendor follows inherits transitively until a known vendor
// string is found, cycle-detected by a visited set. Per the "Cura
// inheritance resolution does not apply settings from parents, only the
// vendor string" design note, only the vendor walk recurses — settings
// never inherit.
func resolveCuraVendor(name string, defs map[string]map[string]interface{}, visited map[string]bool) string {
	raw, ok := defs[name]
	if !ok {
		return "Generic"
	}
	if meta, ok := raw["metadata"].(map[string]interface{}); ok {
		if m, ok := meta["manufacturer"].(string); ok && m != "" {
			return m
		}
	}
	if visited[name] {
		return "Generic"
	}
	visited[name] = true

	parent, _ := raw["inherits"].(string)
	if parent == "" {
		return "Generic"
	}
	return resolveCuraVendor(parent, defs, visited)
}

// flattenCuraOverrides flattens overrides[k] to its default_value, value,
// or raw form, and copies metadata fields onto settings.
func flattenCuraOverrides(raw map[string]interface{}) map[string]profile.Value {
	out := map[string]profile.Value{}

	if overrides, ok := raw["overrides"].(map[string]interface{}); ok {
		for k, v := range overrides {
			entry, ok := v.(map[string]interface{})
			if !ok {
				out[k] = profile.NewValue(v)
				continue
			}
			if dv, ok := entry["default_value"]; ok {
				out[k] = profile.NewValue(dv)
			} else if vv, ok := entry["value"]; ok {
				out[k] = profile.NewValue(vv)
			} else {
				out[k] = profile.NewValue(entry)
			}
		}
	}

	if meta, ok := raw["metadata"].(map[string]interface{}); ok {
		for k, v := range meta {
			out["metadata:"+k] = profile.NewValue(v)
		}
	}

	return out
}
