// Package mapping implements the catalogue-side resolution pipeline,
// spec.md §4.J: matching machine-model profiles to catalogue model ids,
// then resolving compatible filament and print profiles for every mapped
// printer variant, and finally exporting the result (see output.go).
package mapping

import (
	"sort"
	"strconv"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/catalogue"
	"github.com/roboll/slicerprofiledb/pkg/condition"
	"github.com/roboll/slicerprofiledb/pkg/index"
	"github.com/roboll/slicerprofiledb/pkg/matching"
	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
	"github.com/roboll/slicerprofiledb/pkg/version"
)

// Slicers lists the slicers that participate in model mapping.
var Slicers = []slicer.Type{
	slicer.PrusaSlicer, slicer.OrcaSlicer, slicer.BambuStudio,
	slicer.ElegooSlicer, slicer.SuperSlicer, slicer.Cura,
}

// ProfileRef identifies a stored profile by its vendor/name pair within
// one slicer, the unit Stage 1 accumulates per model id.
type ProfileRef struct {
	Vendor string
	Name   string
}

// VariantEntry is one printer configuration keyed by "printer_model +
// variant" (or "model_id + variant") in the variant lookup map.
type VariantEntry struct {
	Name string
	Data map[string]profile.Value
}

// ModelMap is Stage 1's result.
type ModelMap struct {
	ModelToProfiles map[int]map[slicer.Type][]ProfileRef
	VariantMap      map[slicer.Type]map[string]VariantEntry
	FailedBrands    map[string]bool
	FailedModels    map[string]bool
}

func newModelMap() *ModelMap {
	return &ModelMap{
		ModelToProfiles: map[int]map[slicer.Type][]ProfileRef{},
		VariantMap:      map[slicer.Type]map[string]VariantEntry{},
		FailedBrands:    map[string]bool{},
		FailedModels:    map[string]bool{},
	}
}

// ProgressFunc reports (stage, done, total) between mapping stages; an
// ambient injectable collaborator (SPEC_FULL §4.Z), never required.
type ProgressFunc func(stage string, done, total int)

// MapPrinterModels is Stage 1: match every machine_model profile against
// the catalogue, accumulate model_id → slicer → profile refs, and build
// the variant lookup map.
func MapPrinterModels(idx *index.Index, cat *catalogue.Catalogue, slicers []slicer.Type, progress ProgressFunc) *ModelMap {
	if slicers == nil {
		slicers = Slicers
	}
	result := newModelMap()

	for i, slicerType := range slicers {
		for _, mp := range idx.ByType(slicerType, slicer.MachineModel) {
			name := stringOf(mp, "name", mp.Name)
			vendor := mp.Vendor

			ids := matching.MatchIDs(cat, slicerType, vendor, name)
			if len(ids) > 0 {
				ref := ProfileRef{Vendor: vendor, Name: mp.Name}
				for _, modelID := range ids {
					if result.ModelToProfiles[modelID] == nil {
						result.ModelToProfiles[modelID] = map[slicer.Type][]ProfileRef{}
					}
					result.ModelToProfiles[modelID][slicerType] = append(result.ModelToProfiles[modelID][slicerType], ref)
				}
			} else {
				normalized := matching.NormalizeBrand(slicerType, strings.ToLower(vendor))
				if !cat.HasBrand(normalized) {
					result.FailedBrands[vendor] = true
				} else {
					result.FailedModels[vendor+"/"+name] = true
				}
			}
		}

		buildVariantMap(idx, slicerType, result)
		if progress != nil {
			progress("map_printer_models", i+1, len(slicers))
		}
	}

	return result
}

func buildVariantMap(idx *index.Index, slicerType slicer.Type, result *ModelMap) {
	if result.VariantMap[slicerType] == nil {
		result.VariantMap[slicerType] = map[string]VariantEntry{}
	}
	variantMap := result.VariantMap[slicerType]

	for _, mp := range idx.ByType(slicerType, slicer.Machine) {
		data := evaluateStable(mp)

		printerModel := valueOrDefault(data, "printer_model", "")
		if printerModel == "" {
			continue
		}

		variant, ok := determineVariant(data)
		if !ok {
			continue
		}

		if ptype, present := valueAsString(data["type"]); present && ptype != "" && ptype != "machine" {
			continue
		}

		lookupKey := printerModel + variant
		profileName := valueOrDefault(data, "name", mp.Name)

		variantMap[lookupKey] = VariantEntry{Name: profileName, Data: data}

		if modelID, present := valueAsString(data["model_id"]); present && modelID != "" && modelID != printerModel {
			altKey := modelID + variant
			if _, exists := variantMap[altKey]; !exists {
				variantMap[altKey] = VariantEntry{Name: profileName, Data: data}
			}
		}
	}
}

// determineVariant computes printer_variant, falling back to the first
// element of nozzle_diameter (list or ";"-joined string).
func determineVariant(data map[string]profile.Value) (string, bool) {
	if v, present := valueAsString(data["printer_variant"]); present && v != "" {
		return v, true
	}
	nd, ok := data["nozzle_diameter"]
	if !ok {
		return "", false
	}
	switch t := nd.V.(type) {
	case []interface{}:
		if len(t) == 0 {
			return "", false
		}
		return toStr(t[0]), true
	case string:
		if t == "" {
			return "", false
		}
		if strings.Contains(t, ";") {
			return strings.TrimSpace(strings.SplitN(t, ";", 2)[0]), true
		}
		return t, true
	default:
		return "", false
	}
}

// FilamentEntry is one exported filament-profile record, merging every
// profile variant sharing identical settings.
type FilamentEntry struct {
	Name               string
	CompatiblePrinters map[string][]string
	Data               map[string]profile.Value
	FilamentDBIDs      []string
	GenericID          string
}

// FilamentDBResolver resolves a matched store filament profile to an
// external FILAMENT DB id, the mirror of pkg/reconciler's forward
// direction; nil when no FILAMENT DB is configured for this run.
type FilamentDBResolver func(slicerType slicer.Type, vendor, filamentType, filamentName string) string

// MapFilamentProfiles is Stage 2: for each mapped (model, slicer), resolve
// every variant's printer configuration and collect compatible filament
// profiles of the same vendor, grouped by filament name.
func MapFilamentProfiles(idx *index.Index, mm *ModelMap, resolveDBID FilamentDBResolver, progress ProgressFunc) map[int]map[slicer.Type][]FilamentEntry {
	output := map[int]map[slicer.Type][]FilamentEntry{}

	activeSlicers := map[slicer.Type]bool{}
	for _, slicerProfiles := range mm.ModelToProfiles {
		for slicerType := range slicerProfiles {
			activeSlicers[slicerType] = true
		}
	}
	genericProfiles := map[slicer.Type][]genericEntry{}
	for slicerType := range activeSlicers {
		genericProfiles[slicerType] = buildGenericProfileIndex(idx, slicerType)
	}

	modelIDs := sortedModelIDs(mm.ModelToProfiles)
	for i, modelID := range modelIDs {
		for slicerType, refs := range mm.ModelToProfiles[modelID] {
			variantMap := mm.VariantMap[slicerType]
			compatibleFilaments := map[string][]*FilamentEntry{}

			for _, ref := range refs {
				mmProfile, ok := lookupProfile(idx, slicerType, slicer.MachineModel, ref.Vendor, ref.Name)
				if !ok {
					continue
				}
				mmData := evaluateStable(mmProfile)
				modelName := valueOrDefault(mmData, "name", ref.Name)
				variants := extractVariants(mmData)
				filamentProfiles := vendorProfiles(idx, slicerType, slicer.Filament, ref.Vendor)

				for _, variant := range variants {
					ventry, ok := resolveVariant(variantMap, mmData, modelName, variant)
					if !ok {
						continue
					}
					variantData := ventry.Data
					printerName := valueOrDefault(variantData, "name", ventry.Name)

					for _, fp := range filamentProfiles {
						fpData := evaluateStable(fp)
						filamentName := valueOrDefault(fpData, "name", fp.Name)
						filamentType := firstOrString(fpData["filament_type"])

						if !isCompatiblePrinter(fpData, printerName, variantData, slicerType) {
							continue
						}

						var filamentDBID string
						if resolveDBID != nil {
							filamentDBID = resolveDBID(slicerType, fp.Vendor, filamentType, filamentName)
						}

						entries := compatibleFilaments[filamentName]
						var existing *FilamentEntry
						for _, e := range entries {
							if settingsEqual(e.Data, fpData) {
								existing = e
								break
							}
						}

						if existing == nil {
							entry := &FilamentEntry{
								Name:               filamentName,
								CompatiblePrinters: map[string][]string{modelName: {variant}},
								Data:               fpData,
							}
							if filamentDBID != "" {
								entry.FilamentDBIDs = []string{filamentDBID}
							}
							if gid := resolveGenericID(genericProfiles[slicerType], filamentType, filamentName); gid != "" {
								entry.GenericID = gid
							}
							compatibleFilaments[filamentName] = append(entries, entry)
						} else {
							cp := existing.CompatiblePrinters
							if !containsString(cp[modelName], variant) {
								cp[modelName] = append(cp[modelName], variant)
							}
							if filamentDBID != "" && !containsString(existing.FilamentDBIDs, filamentDBID) {
								existing.FilamentDBIDs = append(existing.FilamentDBIDs, filamentDBID)
							}
						}
					}
				}
			}

			if len(compatibleFilaments) > 0 {
				var flat []FilamentEntry
				for _, name := range sortedStringKeysFE(compatibleFilaments) {
					for _, e := range compatibleFilaments[name] {
						flat = append(flat, *e)
					}
				}
				if output[modelID] == nil {
					output[modelID] = map[slicer.Type][]FilamentEntry{}
				}
				output[modelID][slicerType] = flat
			}
		}
		if progress != nil {
			progress("map_filament_profiles", i+1, len(modelIDs))
		}
	}

	return output
}

// PrintEntry is one exported print-profile record.
type PrintEntry struct {
	Name               string
	CompatiblePrinters map[string][]string
	Data               map[string]profile.Value
}

// MapPrintProfiles is Stage 3: identical variant walk as Stage 2, grouping
// by print name; for PrusaSlicer the comparison name is the variant's
// printer_settings_id when set.
func MapPrintProfiles(idx *index.Index, mm *ModelMap, progress ProgressFunc) map[int]map[slicer.Type][]PrintEntry {
	output := map[int]map[slicer.Type][]PrintEntry{}

	modelIDs := sortedModelIDs(mm.ModelToProfiles)
	for i, modelID := range modelIDs {
		for slicerType, refs := range mm.ModelToProfiles[modelID] {
			variantMap := mm.VariantMap[slicerType]
			compatiblePrints := map[string]*PrintEntry{}

			for _, ref := range refs {
				mmProfile, ok := lookupProfile(idx, slicerType, slicer.MachineModel, ref.Vendor, ref.Name)
				if !ok {
					continue
				}
				mmData := evaluateStable(mmProfile)
				modelName := valueOrDefault(mmData, "name", ref.Name)
				variants := extractVariants(mmData)
				printProfiles := vendorProfiles(idx, slicerType, slicer.Print, ref.Vendor)

				for _, variant := range variants {
					ventry, ok := resolveVariant(variantMap, mmData, modelName, variant)
					if !ok {
						continue
					}
					variantData := ventry.Data
					printerName := valueOrDefault(variantData, "name", ventry.Name)
					if slicerType == slicer.PrusaSlicer {
						if psID, ok := valueAsString(variantData["printer_settings_id"]); ok && psID != "" {
							printerName = psID
						}
					}

					for _, pp := range printProfiles {
						ppData := evaluateStable(pp)
						printName := valueOrDefault(ppData, "name", valueOrDefault(ppData, "print_settings_id", pp.Name))

						if !isCompatiblePrinter(ppData, printerName, variantData, slicerType) {
							continue
						}

						out, ok := compatiblePrints[printName]
						if !ok {
							out = &PrintEntry{Name: printName, CompatiblePrinters: map[string][]string{}, Data: ppData}
							compatiblePrints[printName] = out
						}
						if !containsString(out.CompatiblePrinters[modelName], variant) {
							out.CompatiblePrinters[modelName] = append(out.CompatiblePrinters[modelName], variant)
						}
					}
				}
			}

			if len(compatiblePrints) > 0 {
				var flat []PrintEntry
				for _, name := range sortedStringKeysPE(compatiblePrints) {
					flat = append(flat, *compatiblePrints[name])
				}
				if output[modelID] == nil {
					output[modelID] = map[slicer.Type][]PrintEntry{}
				}
				output[modelID][slicerType] = flat
			}
		}
		if progress != nil {
			progress("map_print_profiles", i+1, len(modelIDs))
		}
	}

	return output
}

func isCompatiblePrinter(data map[string]profile.Value, printerName string, variantData map[string]profile.Value, slicerType slicer.Type) bool {
	compat := compatibleList(data["compatible_printers"])
	if containsString(compat, printerName) {
		return true
	}
	expr, ok := valueAsString(data["compatible_printers_condition"])
	if !ok || expr == "" {
		return false
	}
	ok2, err := condition.Evaluate(expr, condition.Context{Slicer: slicerType, Config: toRawMap(variantData)})
	return err == nil && ok2
}

// resolveVariant looks up modelName+variant, then model_id+variant, then
// falls back to a "{modelName} {variant} nozzle" name scan.
func resolveVariant(variantMap map[string]VariantEntry, mmData map[string]profile.Value, modelName, variant string) (VariantEntry, bool) {
	if e, ok := variantMap[modelName+variant]; ok {
		return e, true
	}
	if modelID, ok := valueAsString(mmData["model_id"]); ok && modelID != "" {
		if e, ok := variantMap[modelID+variant]; ok {
			return e, true
		}
	}
	nozzleName := modelName + " " + variant + " nozzle"
	for _, e := range variantMap {
		if e.Name == nozzleName {
			return e, true
		}
	}
	return VariantEntry{}, false
}

func vendorProfiles(idx *index.Index, slicerType slicer.Type, pt slicer.ProfileType, vendor string) []*profile.StoredProfile {
	names, ok := idx.VendorsForType(slicerType, pt)[vendor]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []*profile.StoredProfile
	for _, k := range keys {
		out = append(out, names[k]...)
	}
	return out
}

func lookupProfile(idx *index.Index, slicerType slicer.Type, pt slicer.ProfileType, vendor, name string) (*profile.StoredProfile, bool) {
	vendors := idx.VendorsForType(slicerType, pt)
	names, ok := vendors[vendor]
	if !ok {
		return nil, false
	}
	profiles, ok := names[name]
	if !ok || len(profiles) == 0 {
		return nil, false
	}
	return profiles[0], true
}

func sortedModelIDs(m map[int]map[slicer.Type][]ProfileRef) []int {
	out := make([]int, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func sortedStringKeysFE(m map[string][]*FilamentEntry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedStringKeysPE(m map[string]*PrintEntry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func valueOrDefault(data map[string]profile.Value, key, def string) string {
	if v, ok := valueAsString(data[key]); ok && v != "" {
		return v
	}
	return def
}

func stringOf(sp *profile.StoredProfile, key, def string) string {
	if v, ok := sp.GetLatest(key); ok {
		if s, ok := v.V.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func valueAsString(v profile.Value) (string, bool) {
	if v.V == nil {
		return "", false
	}
	if s, ok := v.V.(string); ok {
		return s, true
	}
	return toStr(v.V), true
}

func firstOrString(v profile.Value) string {
	if list, ok := v.V.([]interface{}); ok {
		if len(list) == 0 {
			return ""
		}
		return toStr(list[0])
	}
	return toStr(v.V)
}

func toStr(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// extractVariants reads "variants" (";"-separated string, or list),
// falling back to "nozzle_diameter" the same way.
func extractVariants(data map[string]profile.Value) []string {
	v, ok := data["variants"]
	if !ok {
		v = data["nozzle_diameter"]
	}
	return splitVariantList(v.V)
}

func splitVariantList(v interface{}) []string {
	switch t := v.(type) {
	case string:
		var out []string
		for _, part := range strings.Split(t, ";") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
		return out
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, toStr(e))
		}
		return out
	default:
		return nil
	}
}

// compatibleList normalizes compatible_printers, either a JSON list or a
// ";"-separated, quote-wrapped string.
func compatibleList(v profile.Value) []string {
	switch t := v.V.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, strings.Trim(s, `"`))
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(t, ";") {
			part = strings.Trim(strings.TrimSpace(part), `"`)
			if part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return nil
	}
}

func containsString(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

func settingsEqual(a, b map[string]profile.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// toRawMap unwraps a snapshot of profile.Value into plain interface{}
// values, as pkg/condition's Context.Config expects.
func toRawMap(data map[string]profile.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v.V
	}
	return out
}

func stableVersion(sp *profile.StoredProfile) string {
	last := sp.LastSeen
	if !strings.HasPrefix(last, "nightly") {
		return last
	}
	var best string
	for _, h := range sp.Settings {
		for _, ver := range h.Versions() {
			if strings.HasPrefix(ver, "nightly") {
				continue
			}
			if best == "" || version.Compare(ver, best) > 0 {
				best = ver
			}
		}
	}
	if best != "" {
		return best
	}
	return last
}

func evaluateStable(sp *profile.StoredProfile) map[string]profile.Value {
	return sp.Evaluate(stableVersion(sp))
}

// genericEntry is one (generic-name, material, filament-id) tuple used by
// the §4.J.1 generic-id resolver.
type genericEntry struct {
	NameLower         string
	FilamentTypeUpper string
	FilamentID        string
}

// buildGenericProfileIndex collects every qualifying generic filament
// profile for slicerType, sorted longest-name-first so specific generics
// (e.g. "Generic PLA Silk") are tried before base generics ("Generic
// PLA").
func buildGenericProfileIndex(idx *index.Index, slicerType slicer.Type) []genericEntry {
	var entries []genericEntry
	for _, fp := range idx.ByType(slicerType, slicer.Filament) {
		if !strings.Contains(fp.Name, "Generic") || strings.Contains(fp.Name, " @") {
			continue
		}
		if fp.FilamentID == "" || strings.Contains(fp.FilamentID, " ") {
			continue
		}
		data := evaluateStable(fp)
		ft := firstOrString(data["filament_type"])
		if ft == "" {
			continue
		}
		entries = append(entries, genericEntry{
			NameLower:         strings.ToLower(fp.Name),
			FilamentTypeUpper: strings.ToUpper(ft),
			FilamentID:        fp.FilamentID,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return len(entries[i].NameLower) > len(entries[j].NameLower)
	})
	return entries
}

// resolveGenericID finds the best-matching generic profile id for a
// filament, spec.md §4.J.1.
func resolveGenericID(generics []genericEntry, filamentType, filamentName string) string {
	ftUpper := strings.ToUpper(filamentType)
	nameLower := strings.ToLower(filamentName)
	baseFallback := ""

	for _, g := range generics {
		if g.FilamentTypeUpper != ftUpper {
			continue
		}
		prefix := "generic " + strings.ToLower(g.FilamentTypeUpper)
		suffix := ""
		if strings.HasPrefix(g.NameLower, prefix) {
			suffix = strings.TrimSpace(g.NameLower[len(prefix):])
		}
		if suffix != "" {
			if strings.Contains(nameLower, suffix) {
				return g.FilamentID
			}
		} else {
			baseFallback = g.FilamentID
		}
	}

	return baseFallback
}
