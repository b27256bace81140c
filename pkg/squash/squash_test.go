package squash

import (
	"testing"

	"github.com/roboll/slicerprofiledb/pkg/slicer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBundleSkipsAbstractAndReadsInherits(t *testing.T) {
	data := []byte(`
[vendor]
name = Test Vendor

[filament:*Generic Base]
filament_type = PLA

[filament:Generic PLA]
inherits = *Generic Base
filament_cost = 20
`)
	sections, err := ParseBundle(data)
	require.NoError(t, err)

	var base, child *Section
	for i := range sections {
		if sections[i].Name == "Generic Base" {
			base = &sections[i]
		}
		if sections[i].Name == "Generic PLA" {
			child = &sections[i]
		}
	}
	require.NotNil(t, base)
	require.NotNil(t, child)
	assert.True(t, base.Abstract)
	assert.Equal(t, []string{"Generic Base"}, child.Inherits)

	flat, err := FlattenBundle(sections)
	require.NoError(t, err)
	_, hasAbstract := flat[slicer.Filament]["Generic Base"]
	assert.False(t, hasAbstract, "abstract sections never appear in output")

	childFlat := flat[slicer.Filament]["Generic PLA"]
	assert.Equal(t, "PLA", childFlat["filament_type"])
	assert.Equal(t, "20", childFlat["filament_cost"])
	assert.Equal(t, "Generic PLA", childFlat["filament_settings_id"])
	_, hasInherits := childFlat["inherits"]
	assert.False(t, hasInherits)
}

func TestFlattenJSONVendorIncludeThenInherits(t *testing.T) {
	profiles := map[string]*RawJSONProfile{
		"base": {
			Name:          "base",
			Settings:      map[string]interface{}{"nozzle_temperature": float64(200)},
			Instantiation: "false",
		},
		"shared": {
			Name:     "shared",
			Settings: map[string]interface{}{"bed_temperature": float64(60), "name": "shared"},
		},
		"child": {
			Name:          "child",
			Settings:      map[string]interface{}{"filament_type": "PLA"},
			Include:       []string{"shared"},
			Inherits:      "base",
			Instantiation: "true",
		},
	}

	out, err := FlattenJSONVendor(profiles)
	require.NoError(t, err)

	require.Contains(t, out, "child")
	assert.Equal(t, float64(200), out["child"]["nozzle_temperature"])
	assert.Equal(t, float64(60), out["child"]["bed_temperature"])
	assert.Equal(t, "PLA", out["child"]["filament_type"])

	assert.NotContains(t, out, "base", "non-instantiable base template is discarded")
	assert.NotContains(t, out, "shared")
}

func TestFlattenJSONVendorEmitsMachineModelWithoutInstantiation(t *testing.T) {
	profiles := map[string]*RawJSONProfile{
		"X1 Carbon": {
			Name:           "X1 Carbon",
			Settings:       map[string]interface{}{"bed_shape": "0x0"},
			IsMachineModel: true,
		},
	}
	out, err := FlattenJSONVendor(profiles)
	require.NoError(t, err)
	assert.Contains(t, out, "X1 Carbon")
}
