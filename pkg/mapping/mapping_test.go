package mapping

import (
	"strings"
	"testing"

	"github.com/roboll/slicerprofiledb/pkg/catalogue"
	"github.com/roboll/slicerprofiledb/pkg/index"
	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedWith(slicerType slicer.Type, pt slicer.ProfileType, vendor, name string, settings map[string]interface{}) *profile.StoredProfile {
	sp := profile.NewStoredProfile(slicerType, pt, vendor, name)
	sp.FirstSeen = "01.00.00"
	sp.LastSeen = "01.00.00"
	for k, v := range settings {
		h := profile.NewHistory()
		h.Append("01.00.00", profile.NewValue(v))
		sp.Settings[k] = h
	}
	return sp
}

func testCatalogue(t *testing.T) *catalogue.Catalogue {
	t.Helper()
	cat, err := catalogue.Decode(strings.NewReader(`{"brands":["prusa"],"models":[{"id":7,"brand":"prusa","name":"mk3s"}]}`))
	require.NoError(t, err)
	return cat
}

func TestMapPrinterModelsAccumulatesByModelID(t *testing.T) {
	idx := index.New()
	idx.Add(storedWith(slicer.PrusaSlicer, slicer.MachineModel, "Prusa", "Original Prusa MK3S",
		map[string]interface{}{"name": "mk3s", "nozzle_diameter": []interface{}{0.4}}))

	mm := MapPrinterModels(idx, testCatalogue(t), []slicer.Type{slicer.PrusaSlicer}, nil)

	require.Contains(t, mm.ModelToProfiles, 7)
	refs := mm.ModelToProfiles[7][slicer.PrusaSlicer]
	require.Len(t, refs, 1)
	assert.Equal(t, ProfileRef{Vendor: "Prusa", Name: "Original Prusa MK3S"}, refs[0])
	assert.Empty(t, mm.FailedBrands)
	assert.Empty(t, mm.FailedModels)
}

func TestMapPrinterModelsRecordsFailedModelForKnownBrand(t *testing.T) {
	idx := index.New()
	idx.Add(storedWith(slicer.PrusaSlicer, slicer.MachineModel, "Prusa", "Something Else",
		map[string]interface{}{"name": "totally different printer"}))

	mm := MapPrinterModels(idx, testCatalogue(t), []slicer.Type{slicer.PrusaSlicer}, nil)

	assert.Empty(t, mm.ModelToProfiles)
	assert.Contains(t, mm.FailedModels, "Prusa/totally different printer")
}

// buildScenario wires one mapped model, one machine variant, one
// compatible filament profile and one compatible print profile, the
// minimal fixture exercising all three mapping stages end to end.
func buildScenario(t *testing.T) (*index.Index, *ModelMap) {
	t.Helper()
	idx := index.New()
	idx.Add(storedWith(slicer.PrusaSlicer, slicer.MachineModel, "Prusa", "Original Prusa MK3S",
		map[string]interface{}{"name": "mk3s", "nozzle_diameter": []interface{}{0.4}}))
	idx.Add(storedWith(slicer.PrusaSlicer, slicer.Machine, "Prusa", "0.4 nozzle",
		map[string]interface{}{
			"printer_model":   "mk3s",
			"nozzle_diameter": []interface{}{0.4},
			"name":            "mk3s 0.4 nozzle",
		}))
	idx.Add(storedWith(slicer.PrusaSlicer, slicer.Filament, "Prusa", "Prusament PLA",
		map[string]interface{}{
			"name":                "Prusament PLA",
			"filament_type":       "PLA",
			"compatible_printers": []interface{}{"mk3s 0.4 nozzle"},
		}))
	idx.Add(storedWith(slicer.PrusaSlicer, slicer.Print, "Prusa", "0.20mm QUALITY",
		map[string]interface{}{
			"name":                "0.20mm QUALITY",
			"compatible_printers": []interface{}{"mk3s 0.4 nozzle"},
		}))

	mm := MapPrinterModels(idx, testCatalogue(t), []slicer.Type{slicer.PrusaSlicer}, nil)
	require.Contains(t, mm.ModelToProfiles, 7)
	return idx, mm
}

func TestMapFilamentProfilesGroupsByName(t *testing.T) {
	idx, mm := buildScenario(t)

	filamentMap := MapFilamentProfiles(idx, mm, nil, nil)

	entries := filamentMap[7][slicer.PrusaSlicer]
	require.Len(t, entries, 1)
	assert.Equal(t, "Prusament PLA", entries[0].Name)
	assert.Equal(t, []string{"0.4"}, entries[0].CompatiblePrinters["mk3s"])
}

func TestMapPrintProfilesGroupsByName(t *testing.T) {
	idx, mm := buildScenario(t)

	printMap := MapPrintProfiles(idx, mm, nil)

	entries := printMap[7][slicer.PrusaSlicer]
	require.Len(t, entries, 1)
	assert.Equal(t, "0.20mm QUALITY", entries[0].Name)
	assert.Equal(t, []string{"0.4"}, entries[0].CompatiblePrinters["mk3s"])
}

func TestResolveGenericIDPrefersSpecificSuffixOverBase(t *testing.T) {
	generics := []genericEntry{
		{NameLower: "generic pla silk", FilamentTypeUpper: "PLA", FilamentID: "GFL-SILK"},
		{NameLower: "generic pla", FilamentTypeUpper: "PLA", FilamentID: "GFL-BASE"},
	}
	assert.Equal(t, "GFL-SILK", resolveGenericID(generics, "PLA", "Bambu PLA Silk"))
	assert.Equal(t, "GFL-BASE", resolveGenericID(generics, "PLA", "Bambu PLA Basic"))
}

func TestResolveGenericIDIgnoresWrongMaterial(t *testing.T) {
	generics := []genericEntry{
		{NameLower: "generic abs", FilamentTypeUpper: "ABS", FilamentID: "GFA-BASE"},
	}
	assert.Equal(t, "", resolveGenericID(generics, "PLA", "Bambu PLA Basic"))
}

func TestDetermineVariantFallsBackToNozzleDiameterList(t *testing.T) {
	data := map[string]profile.Value{
		"nozzle_diameter": profile.NewValue([]interface{}{0.6, 0.4}),
	}
	v, ok := determineVariant(data)
	require.True(t, ok)
	assert.Equal(t, "0.6", v)
}

func TestDetermineVariantSplitsSemicolonString(t *testing.T) {
	data := map[string]profile.Value{
		"nozzle_diameter": profile.NewValue("0.4;0.6"),
	}
	v, ok := determineVariant(data)
	require.True(t, ok)
	assert.Equal(t, "0.4", v)
}

func TestDetermineVariantPrefersExplicitPrinterVariant(t *testing.T) {
	data := map[string]profile.Value{
		"printer_variant": profile.NewValue("0.6 nozzle"),
		"nozzle_diameter": profile.NewValue([]interface{}{0.4}),
	}
	v, ok := determineVariant(data)
	require.True(t, ok)
	assert.Equal(t, "0.6 nozzle", v)
}

func TestExtractVariantsSplitsSemicolonString(t *testing.T) {
	data := map[string]profile.Value{"variants": profile.NewValue("0.4;0.6; 0.8")}
	assert.Equal(t, []string{"0.4", "0.6", "0.8"}, extractVariants(data))
}

func TestIsModelSpecificPrusaDetectsPrinterModelCondition(t *testing.T) {
	idx := index.New()
	fp := storedWith(slicer.PrusaSlicer, slicer.Filament, "Prusa", "MK3S Only PLA", map[string]interface{}{
		"compatible_printers_condition": "printer_model=\"MK3S\"",
	})
	idx.Add(fp)
	assert.True(t, isModelSpecific(idx, slicer.PrusaSlicer, "Prusa", fp))
}

func TestIsModelSpecificNonPrusaUsesCompatibleCount(t *testing.T) {
	idx := index.New()
	idx.Add(storedWith(slicer.BambuStudio, slicer.MachineModel, "BBL", "X1 Carbon", nil))
	idx.Add(storedWith(slicer.BambuStudio, slicer.MachineModel, "BBL", "P1S", nil))
	fp := storedWith(slicer.BambuStudio, slicer.Filament, "BBL", "Bambu PLA Basic", map[string]interface{}{
		"compatible_printers": []interface{}{"X1 Carbon"},
	})
	idx.Add(fp)
	assert.True(t, isModelSpecific(idx, slicer.BambuStudio, "BBL", fp))
}
