package reconciler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/roboll/slicerprofiledb/pkg/index"
	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

func storedProfile(slicerType slicer.Type, vendor, name string) *profile.StoredProfile {
	return profile.NewStoredProfile(slicerType, slicer.Filament, vendor, name)
}

// TestScenario6ReconcilerConflict is spec.md §8 scenario 6.
func TestScenario6ReconcilerConflict(t *testing.T) {
	idx := index.New()
	idx.Add(storedProfile(slicer.BambuStudio, "BBL", "Bambu PLA Basic"))

	dbRoot := t.TempDir()
	writeJSON(t, filepath.Join(dbRoot, "bambu_lab", "brand.json"), map[string]string{"name": "Bambu Lab"})
	filamentPath := filepath.Join(dbRoot, "bambu_lab", "PLA", "basic", "filament.json")
	writeJSON(t, filamentPath, map[string]interface{}{
		"name": "Basic",
		"slicer_settings": map[string]interface{}{
			"bambustudio": map[string]interface{}{
				"profile_name": "Bambu PLA Basic OLD",
			},
		},
	})
	before, err := os.ReadFile(filamentPath)
	require.NoError(t, err)

	rep, err := Run(idx, dbRoot, []slicer.Type{slicer.BambuStudio}, false, nil)
	require.NoError(t, err)

	require.Len(t, rep.Conflicts, 1)
	c := rep.Conflicts[0]
	assert.Equal(t, "profile_name", c.Field)
	assert.Equal(t, "Bambu PLA Basic OLD", c.Existing)
	assert.Equal(t, "Bambu PLA Basic", c.Derived)
	assert.True(t, rep.HasConflicts())

	after, err := os.ReadFile(filamentPath)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "a conflict must abort the run without writing")
}

func TestComposeCandidatesOrder(t *testing.T) {
	got := ComposeCandidates("Bambu", "PLA", "Matte")
	assert.Equal(t, []string{
		"Bambu PLA Matte",
		"Bambu PLA-Matte",
		"Bambu Matte",
	}, got)
}

func TestComposeCandidatesSupportPattern(t *testing.T) {
	got := ComposeCandidates("Bambu", "PVA", "for ABS")
	assert.Contains(t, got, "Bambu Support for ABS")
}

func TestComposeCandidatesEmptyNameUsesMaterial(t *testing.T) {
	got := ComposeCandidates("Bambu", "PLA", "")
	assert.Equal(t, []string{"Bambu PLA"}, got)
}

func TestProfilePrefixesUsesOverrideFirst(t *testing.T) {
	got := ProfilePrefixes("bambu_lab", "Bambu Lab")
	assert.Equal(t, []string{"Bambu", "Bambu Lab"}, got)
}

func TestIsProperID(t *testing.T) {
	assert.True(t, IsProperID("GFB00"))
	assert.False(t, IsProperID("Bambu PLA Basic @BBL X1C"))
	assert.False(t, IsProperID(""))
}

func TestAlreadyCorrectWhenNoDisagreement(t *testing.T) {
	idx := index.New()
	sp := storedProfile(slicer.BambuStudio, "BBL", "Bambu PLA Basic")
	sp.FilamentID = "GFL99"
	idx.Add(sp)

	dbRoot := t.TempDir()
	writeJSON(t, filepath.Join(dbRoot, "bambu_lab", "brand.json"), map[string]string{"name": "Bambu Lab"})
	filamentPath := filepath.Join(dbRoot, "bambu_lab", "PLA", "basic", "filament.json")
	writeJSON(t, filamentPath, map[string]interface{}{
		"name": "Basic",
		"slicer_settings": map[string]interface{}{
			"bambustudio": map[string]interface{}{
				"profile_name": "Bambu PLA Basic",
				"id":           "GFL99",
			},
		},
	})

	rep, err := Run(idx, dbRoot, []slicer.Type{slicer.BambuStudio}, false, nil)
	require.NoError(t, err)
	assert.Empty(t, rep.Conflicts)
	assert.Len(t, rep.AlreadyCorrect, 1)
	assert.Empty(t, rep.Updated)
}
