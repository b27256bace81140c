package profile

import (
	"testing"

	"github.com/roboll/slicerprofiledb/pkg/slicer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAtVersionPicksGreatestLE(t *testing.T) {
	sp := NewStoredProfile(slicer.BambuStudio, slicer.Filament, "BBL", "Bambu ABS")
	h := NewHistory()
	h.Append("01.00.00", NewValue(float64(270)))
	h.Append("02.00.00", NewValue(float64(280)))
	sp.Settings["nozzle_temperature"] = h

	v, ok := sp.GetAtVersion("nozzle_temperature", "01.00.00")
	require.True(t, ok)
	assert.Equal(t, float64(270), v.V)

	v, ok = sp.GetAtVersion("nozzle_temperature", "01.50.00")
	require.True(t, ok)
	assert.Equal(t, float64(270), v.V)

	v, ok = sp.GetAtVersion("nozzle_temperature", "02.00.00")
	require.True(t, ok)
	assert.Equal(t, float64(280), v.V)

	_, ok = sp.GetAtVersion("nozzle_temperature", "00.50.00")
	assert.False(t, ok)
}

func TestEvaluateMonotone(t *testing.T) {
	sp := NewStoredProfile(slicer.BambuStudio, slicer.Filament, "BBL", "Bambu ABS")
	h1 := NewHistory()
	h1.Append("01.00.00", NewValue("ABS"))
	sp.Settings["filament_type"] = h1
	h2 := NewHistory()
	h2.Append("02.00.00", NewValue(float64(280)))
	sp.Settings["nozzle_temperature"] = h2

	e1 := sp.Evaluate("01.00.00")
	e2 := sp.Evaluate("02.00.00")
	for k := range e1 {
		_, ok := e2[k]
		assert.True(t, ok, "key %s present at v1 must be present at v2", k)
	}
	assert.Len(t, e1, 1)
	assert.Len(t, e2, 2)
}

func TestChangedSettingsEmptyForSameVersion(t *testing.T) {
	sp := NewStoredProfile(slicer.BambuStudio, slicer.Filament, "BBL", "Bambu ABS")
	h := NewHistory()
	h.Append("01.00.00", NewValue(float64(270)))
	h.Append("02.00.00", NewValue(float64(280)))
	sp.Settings["nozzle_temperature"] = h

	assert.Empty(t, sp.ChangedSettings("01.00.00", "01.00.00"))
	assert.Empty(t, sp.ChangedSettings("02.00.00", "02.00.00"))

	changed := sp.ChangedSettings("01.00.00", "02.00.00")
	require.Contains(t, changed, "nozzle_temperature")
	assert.Equal(t, float64(270), changed["nozzle_temperature"].Before.V)
	assert.Equal(t, float64(280), changed["nozzle_temperature"].After.V)
}

func TestValueEqualCanonicalizesMapKeyOrder(t *testing.T) {
	a := NewValue(map[string]interface{}{"x": float64(1), "y": float64(2)})
	b := NewValue(map[string]interface{}{"y": float64(2), "x": float64(1)})
	assert.True(t, a.Equal(b))

	c := NewValue([]interface{}{float64(1), float64(2)})
	d := NewValue([]interface{}{float64(2), float64(1)})
	assert.False(t, c.Equal(d), "list order is significant")
}
