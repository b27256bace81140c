package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/index"
	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/roboll/slicerprofiledb/pkg/resource"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
)

// Output bundles the per-model/per-slicer machine profile record written
// under models/{id}/{slicer}/machine_profiles.json.
type Output struct {
	Vendor       string                        `json:"vendor"`
	MachineModel map[string]interface{}        `json:"machine_model"`
	Variants     map[string]map[string]interface{} `json:"variants"`
}

// WriteOutput is Stage 4: deletes and recreates outputDir, writes every
// mapped model/slicer tree, the per-vendor generic filament files, the
// top-level profile map, and the global resource manifest.
func WriteOutput(mm *ModelMap, filamentMap map[int]map[slicer.Type][]FilamentEntry, printMap map[int]map[slicer.Type][]PrintEntry, idx *index.Index, storeRoot, outputDir string, progress ProgressFunc) error {
	if err := os.RemoveAll(outputDir); err != nil {
		return fmt.Errorf("mapping: clean output dir: %w", err)
	}

	modelsDir := filepath.Join(outputDir, "models")
	brandsDir := filepath.Join(outputDir, "brands")

	modelIDs := sortedModelIDs(mm.ModelToProfiles)
	for i, modelID := range modelIDs {
		for slicerType, refs := range mm.ModelToProfiles[modelID] {
			slicerPath := filepath.Join(modelsDir, fmt.Sprint(modelID), string(slicerType))
			if err := os.MkdirAll(slicerPath, 0o755); err != nil {
				return err
			}

			var machineProfiles []Output
			for _, ref := range refs {
				mmProfile, ok := lookupProfile(idx, slicerType, slicer.MachineModel, ref.Vendor, ref.Name)
				if !ok {
					continue
				}
				mmData := evaluateStable(mmProfile)
				modelName := valueOrDefault(mmData, "name", ref.Name)

				flat := flattenSnapshot(mmData)
				injectCoverThumbnail(flat, storeRoot, slicerType, modelName)

				variants := extractVariants(mmData)
				variantOut := map[string]map[string]interface{}{}
				variantMap := mm.VariantMap[slicerType]
				for _, variant := range variants {
					if ventry, ok := resolveVariant(variantMap, mmData, modelName, variant); ok {
						variantOut[variant] = map[string]interface{}{
							"name": ventry.Name,
							"data": flattenSnapshot(ventry.Data),
						}
					}
				}

				machineProfiles = append(machineProfiles, Output{
					Vendor:       ref.Vendor,
					MachineModel: flat,
					Variants:     variantOut,
				})
			}

			if err := writeJSON(filepath.Join(slicerPath, "machine_profiles.json"), machineProfiles); err != nil {
				return err
			}

			if entries, ok := filamentMap[modelID][slicerType]; ok && len(entries) > 0 {
				if err := writeJSON(filepath.Join(slicerPath, "filament_profiles.json"), flattenFilamentEntries(entries)); err != nil {
					return err
				}
			}
			if entries, ok := printMap[modelID][slicerType]; ok && len(entries) > 0 {
				if err := writeJSON(filepath.Join(slicerPath, "print_profiles.json"), flattenPrintEntries(entries)); err != nil {
					return err
				}
			}
		}
		if progress != nil {
			progress("export", i+1, len(modelIDs))
		}
	}

	if err := exportGenericFilaments(idx, mm, brandsDir); err != nil {
		return err
	}

	sortedMap := map[int]map[string][]string{}
	for _, modelID := range modelIDs {
		sortedMap[modelID] = map[string][]string{}
		for slicerType, refs := range mm.ModelToProfiles[modelID] {
			var keys []string
			for _, r := range refs {
				keys = append(keys, r.Vendor+"/"+r.Name)
			}
			sortedMap[modelID][string(slicerType)] = keys
		}
	}
	if err := writeJSON(filepath.Join(outputDir, "profile_map_out.json"), sortedMap); err != nil {
		return err
	}

	return writeResourceManifest(storeRoot, outputDir)
}

func flattenSnapshot(data map[string]profile.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v.V
	}
	return out
}

func flattenFilamentEntries(entries []FilamentEntry) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		m := map[string]interface{}{
			"name":                e.Name,
			"compatible_printers": e.CompatiblePrinters,
			"data":                flattenSnapshot(e.Data),
		}
		if len(e.FilamentDBIDs) > 0 {
			m["filament_db_ids"] = e.FilamentDBIDs
		}
		if e.GenericID != "" {
			m["generic_id"] = e.GenericID
		}
		out = append(out, m)
	}
	return out
}

func flattenPrintEntries(entries []PrintEntry) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{
			"name":                e.Name,
			"compatible_printers": e.CompatiblePrinters,
			"data":                flattenSnapshot(e.Data),
		})
	}
	return out
}

// injectCoverThumbnail searches the slicer's resource manifest for
// "{name}_cover.png"/"{name}_thumbnail.png" and, if found, adds the
// sha256 reference under cover_png/thumbnail_png, spec.md §4.J "Cover/
// thumbnail injection".
func injectCoverThumbnail(flat map[string]interface{}, storeRoot string, slicerType slicer.Type, name string) {
	resDir := filepath.Join(storeRoot, string(slicerType), "_resources")
	rs, err := resource.Open(nil, resDir)
	if err != nil {
		return
	}
	for _, suffix := range []string{"_cover.png", "_thumbnail.png"} {
		wantFilename := name + suffix
		for hash, entry := range rs.Manifest() {
			if entry.Filename == wantFilename {
				key := strings.TrimPrefix(suffix, "_")
				key = strings.Replace(key, ".", "_", 1)
				flat[key] = resource.Ref(hash)
				break
			}
		}
	}
}

// isModelSpecific implements spec.md §4.J.2: PrusaSlicer filaments are
// model-specific when their compatibility condition names a printer
// model; other JSON slicers' filaments are model-specific when they list
// fewer compatible printers than the vendor publishes model profiles.
func isModelSpecific(idx *index.Index, slicerType slicer.Type, vendor string, fp *profile.StoredProfile) bool {
	data := evaluateStable(fp)
	if slicerType == slicer.PrusaSlicer {
		cond, _ := valueAsString(data["compatible_printers_condition"])
		return strings.Contains(cond, ".*PRINTER_MODEL_") || strings.Contains(cond, "printer_model=")
	}
	compat := compatibleList(data["compatible_printers"])
	total := countModelProfiles(idx, slicerType, vendor)
	return len(compat) < total
}

func countModelProfiles(idx *index.Index, slicerType slicer.Type, vendor string) int {
	names, ok := idx.VendorsForType(slicerType, slicer.MachineModel)[vendor]
	if !ok {
		return 0
	}
	n := 0
	for _, profiles := range names {
		n += len(profiles)
	}
	return n
}

func exportGenericFilaments(idx *index.Index, mm *ModelMap, brandsDir string) error {
	vendorsPerSlicer := map[slicer.Type]map[string]bool{}
	for _, slicerProfiles := range mm.ModelToProfiles {
		for slicerType, refs := range slicerProfiles {
			if vendorsPerSlicer[slicerType] == nil {
				vendorsPerSlicer[slicerType] = map[string]bool{}
			}
			for _, ref := range refs {
				vendorsPerSlicer[slicerType][ref.Vendor] = true
			}
		}
	}

	var slicerTypes []slicer.Type
	for st := range vendorsPerSlicer {
		slicerTypes = append(slicerTypes, st)
	}
	sort.Slice(slicerTypes, func(i, j int) bool { return slicerTypes[i] < slicerTypes[j] })

	for _, slicerType := range slicerTypes {
		var vendors []string
		for v := range vendorsPerSlicer[slicerType] {
			vendors = append(vendors, v)
		}
		sort.Strings(vendors)

		for _, vendor := range vendors {
			filamentProfiles := vendorProfiles(idx, slicerType, slicer.Filament, vendor)
			if len(filamentProfiles) == 0 {
				continue
			}

			var genericData []map[string]interface{}
			for _, fp := range filamentProfiles {
				if isModelSpecific(idx, slicerType, vendor, fp) {
					continue
				}
				data := evaluateStable(fp)
				name := valueOrDefault(data, "name", valueOrDefault(data, "filament_settings_id", ""))
				if name == "" {
					continue
				}
				genericData = append(genericData, map[string]interface{}{
					"name": name,
					"data": flattenSnapshot(data),
				})
			}

			if len(genericData) > 0 {
				outPath := filepath.Join(brandsDir, string(slicerType), vendor, "generic_filament_profiles.json")
				if err := writeJSON(outPath, genericData); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func writeResourceManifest(storeRoot, outputDir string) error {
	manifest := map[string]map[string]interface{}{}

	for _, slicerType := range Slicers {
		resDir := filepath.Join(storeRoot, string(slicerType), "_resources")
		rs, err := resource.Open(nil, resDir)
		if err != nil {
			continue
		}
		for hash, entry := range rs.Manifest() {
			refKey := resource.Ref(hash)
			if _, exists := manifest[refKey]; exists {
				continue
			}
			suffix := ""
			if entry.Type != "" {
				suffix = "." + entry.Type
			}
			manifest[refKey] = map[string]interface{}{
				"path":     fmt.Sprintf("profiles/%s/_resources/%s%s", slicerType, hash, suffix),
				"filename": entry.Filename,
				"size":     entry.Size,
				"type":     entry.Type,
			}
		}
	}

	return writeJSON(filepath.Join(outputDir, "resources.json"), manifest)
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
