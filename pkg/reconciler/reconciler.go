// Package reconciler implements the external FILAMENT DB reconciler,
// spec.md §4.K: it resolves each DB filament to a store profile per
// slicer and writes slicer_settings back into filament.json. Every
// conflict is collected into the report; if any is found, no file is
// written.
package reconciler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/index"
	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/roboll/slicerprofiledb/pkg/report"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
)

// brandPrefixOverrides covers brands whose profile-name prefix differs
// from their DB brand name.
var brandPrefixOverrides = map[string]string{
	"bambu_lab":   "Bambu",
	"esun_3d":     "eSUN",
	"add_north":   "addnorth",
	"3d_fuel":     "3D-Fuel",
	"filamentpm":  "Filament PM",
	"voxel_pla":   "VOXELPLA",
	"protopasta":  "Proto-pasta",
	"tectonic_3d": "Tectonic-3D",
}

// ProfilePrefixes returns candidate profile-name prefixes for a brand,
// override first, then the brand name as-is.
func ProfilePrefixes(brandID, brandName string) []string {
	var prefixes []string
	if override, ok := brandPrefixOverrides[brandID]; ok {
		prefixes = append(prefixes, override)
	}
	if brandName != "" && (len(prefixes) == 0 || prefixes[0] != brandName) {
		prefixes = append(prefixes, brandName)
	}
	return prefixes
}

// ComposeCandidates generates candidate base profile names to search for,
// spec.md §4.K's ordered composition rules.
func ComposeCandidates(prefix, material, filamentName string) []string {
	materialUpper := strings.ToUpper(material)
	var candidates []string

	if filamentName != "" {
		candidates = append(candidates, fmt.Sprintf("%s %s %s", prefix, materialUpper, filamentName))
		candidates = append(candidates, fmt.Sprintf("%s %s-%s", prefix, materialUpper, filamentName))

		if strings.HasPrefix(strings.ToLower(filamentName), "for ") {
			candidates = append(candidates, fmt.Sprintf("%s Support %s", prefix, filamentName))
		}

		nameUpper := strings.ToUpper(filamentName)
		if strings.HasPrefix(nameUpper, materialUpper) {
			suffix := strings.TrimLeft(filamentName[len(materialUpper):], "-+ ")
			if suffix != "" {
				candidates = append(candidates, fmt.Sprintf("%s %s %s", prefix, materialUpper, suffix))
			}
		}

		candidates = append(candidates, fmt.Sprintf("%s %s", prefix, filamentName))
	}

	if filamentName == "" || strings.ToUpper(filamentName) == materialUpper {
		candidates = append(candidates, fmt.Sprintf("%s %s", prefix, materialUpper))
	}

	return candidates
}

// IsProperID reports whether value looks like a slicer-native short code
// rather than a profile display name.
func IsProperID(value string) bool {
	return value != "" && !strings.Contains(value, " @") && !strings.Contains(value, " ")
}

// matchFilamentRaw searches idx across every vendor for the first
// candidate, in prefix then candidate order, that resolves to a base
// profile name, attaching the best slicer ID found among the matched
// profiles (spec.md §4.K: "ID extraction").
func matchFilamentRaw(idx *index.Index, brandID, brandName, material, filamentName string, slicerType slicer.Type) (profileName, slicerID, vendor string, ok bool) {
	for _, prefix := range ProfilePrefixes(brandID, brandName) {
		for _, candidate := range ComposeCandidates(prefix, material, filamentName) {
			matches := idx.ByBaseNameAnyVendor(slicerType, candidate)
			if len(matches) == 0 {
				continue
			}
			base := matches[0]
			profileName = index.BaseName(base.Name)
			slicerID = bestSlicerID(matches)
			vendor = base.Vendor
			ok = true
			return
		}
	}
	return "", "", "", false
}

func bestSlicerID(profiles []*profile.StoredProfile) string {
	for _, p := range profiles {
		if IsProperID(p.FilamentID) {
			return p.FilamentID
		}
	}
	for _, p := range profiles {
		if IsProperID(p.SettingID) {
			return p.SettingID
		}
	}
	return ""
}

// Run walks dbRoot ({brand}/{material}/{filament}/filament.json), matches
// every (filament, slicer) pair against idx, and reports conflicts per
// spec.md §4.K. Writes are skipped when dryRun is true or any conflict is
// detected.
func Run(idx *index.Index, dbRoot string, slicers []slicer.Type, dryRun bool, genericResolve func(slicer.Type, string, string) string) (*report.ReconcileReport, error) {
	rep := report.NewReconcileReport()
	var toWrite []resolvedWrite

	brandDirs, err := os.ReadDir(dbRoot)
	if err != nil {
		return nil, err
	}
	sort.Slice(brandDirs, func(i, j int) bool { return brandDirs[i].Name() < brandDirs[j].Name() })

	for _, bd := range brandDirs {
		if !bd.IsDir() {
			continue
		}
		brandID := bd.Name()
		brandName := readBrandName(filepath.Join(dbRoot, brandID))

		materialDirs, err := os.ReadDir(filepath.Join(dbRoot, brandID))
		if err != nil {
			continue
		}
		sort.Slice(materialDirs, func(i, j int) bool { return materialDirs[i].Name() < materialDirs[j].Name() })

		for _, md := range materialDirs {
			if !md.IsDir() {
				continue
			}
			material := md.Name()
			filamentDirs, err := os.ReadDir(filepath.Join(dbRoot, brandID, material))
			if err != nil {
				continue
			}
			sort.Slice(filamentDirs, func(i, j int) bool { return filamentDirs[i].Name() < filamentDirs[j].Name() })

			for _, fd := range filamentDirs {
				if !fd.IsDir() {
					continue
				}
				path := filepath.Join(dbRoot, brandID, material, fd.Name(), "filament.json")
				raw, err := readFilamentRaw(path)
				if err != nil {
					continue
				}
				filamentName, _ := raw["name"].(string)

				for _, slicerType := range slicers {
					profileName, slicerID, _, ok := matchFilamentRaw(idx, brandID, brandName, material, filamentName, slicerType)
					if !ok {
						rep.Skipped = append(rep.Skipped, fmt.Sprintf("%s: no match for %s/%s [%s]", path, brandName, filamentName, slicerType))
						continue
					}

					var genericID string
					if genericResolve != nil {
						genericID = genericResolve(slicerType, strings.ToUpper(material), profileName)
					}

					existing := existingSlicerSettings(raw, string(slicerType))
					conflicted := false

					if existing.ProfileName != "" && existing.ProfileName != profileName {
						rep.Conflicts = append(rep.Conflicts, report.ReconcileConflict{
							FilamentPath: path, Slicer: string(slicerType), Field: "profile_name",
							Existing: existing.ProfileName, Derived: profileName,
						})
						conflicted = true
					}

					effectiveID := slicerID
					if slicerID != "" && existing.ID != "" && existing.ID != slicerID {
						if len(idx.ByID(existing.ID)) == 0 {
							effectiveID = existing.ID
						} else {
							rep.Conflicts = append(rep.Conflicts, report.ReconcileConflict{
								FilamentPath: path, Slicer: string(slicerType), Field: "id",
								Existing: existing.ID, Derived: slicerID,
							})
							conflicted = true
						}
					}

					if conflicted {
						continue
					}

					nameMatches := existing.ProfileName == profileName
					idMatches := effectiveID == "" || existing.ID == effectiveID
					gidMatches := genericID == "" || existing.GenericID == genericID

					w := resolvedWrite{path: path, slicer: string(slicerType), profileName: profileName, slicerID: effectiveID, genericID: genericID}
					if nameMatches && idMatches && gidMatches {
						rep.AlreadyCorrect = append(rep.AlreadyCorrect, fmt.Sprintf("%s[%s]", path, slicerType))
					} else {
						rep.Updated = append(rep.Updated, fmt.Sprintf("%s[%s]", path, slicerType))
					}
					toWrite = append(toWrite, w)
				}
			}
		}
	}

	if rep.HasConflicts() {
		return rep, nil
	}
	if !dryRun {
		if err := writeUpdates(toWrite); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

type resolvedWrite struct {
	path        string
	slicer      string
	profileName string
	slicerID    string
	genericID   string
}

func readBrandName(brandDir string) string {
	b, err := os.ReadFile(filepath.Join(brandDir, "brand.json"))
	if err != nil {
		return ""
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return ""
	}
	if n, ok := m["name"].(string); ok {
		return n
	}
	return ""
}

func readFilamentRaw(path string) (map[string]interface{}, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

type slicerSettings struct {
	ProfileName string
	ID          string
	GenericID   string
}

func existingSlicerSettings(raw map[string]interface{}, slicerKey string) slicerSettings {
	ss, _ := raw["slicer_settings"].(map[string]interface{})
	if ss == nil {
		return slicerSettings{}
	}
	entry, _ := ss[slicerKey].(map[string]interface{})
	if entry == nil {
		return slicerSettings{}
	}
	out := slicerSettings{}
	if v, ok := entry["profile_name"].(string); ok {
		out.ProfileName = v
	}
	if v, ok := entry["id"].(string); ok {
		out.ID = v
	}
	if v, ok := entry["generic_id"].(string); ok {
		out.GenericID = v
	}
	return out
}

// writeUpdates applies every resolved write, grouped by file, migrating
// any legacy top-level slicer_ids block into slicer_settings[...].id and
// deleting it, per spec.md §4.K.
func writeUpdates(writes []resolvedWrite) error {
	byPath := map[string][]resolvedWrite{}
	var order []string
	for _, w := range writes {
		if _, ok := byPath[w.path]; !ok {
			order = append(order, w.path)
		}
		byPath[w.path] = append(byPath[w.path], w)
	}

	for _, path := range order {
		raw, err := readFilamentRaw(path)
		if err != nil {
			return err
		}

		if legacy, ok := raw["slicer_ids"].(map[string]interface{}); ok {
			ss, _ := raw["slicer_settings"].(map[string]interface{})
			if ss == nil {
				ss = map[string]interface{}{}
			}
			for slicerKey, sid := range legacy {
				entry, _ := ss[slicerKey].(map[string]interface{})
				if entry == nil {
					entry = map[string]interface{}{}
				}
				if _, has := entry["id"]; !has {
					if s, ok := sid.(string); ok {
						entry["id"] = s
					}
				}
				ss[slicerKey] = entry
			}
			raw["slicer_settings"] = ss
			delete(raw, "slicer_ids")
		}

		ss, _ := raw["slicer_settings"].(map[string]interface{})
		if ss == nil {
			ss = map[string]interface{}{}
		}
		for _, w := range byPath[path] {
			entry, _ := ss[w.slicer].(map[string]interface{})
			if entry == nil {
				entry = map[string]interface{}{}
			}
			entry["profile_name"] = w.profileName
			if w.slicerID != "" {
				entry["id"] = w.slicerID
			}
			if w.genericID != "" {
				entry["generic_id"] = w.genericID
			}
			ss[w.slicer] = entry
		}
		raw["slicer_settings"] = ss

		b, err := json.MarshalIndent(raw, "", "    ")
		if err != nil {
			return err
		}
		b = append(b, '\n')
		if err := os.WriteFile(path, b, 0o644); err != nil {
			return err
		}
	}
	return nil
}
