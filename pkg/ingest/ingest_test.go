package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/roboll/slicerprofiledb/pkg/fetch"
	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
	"github.com/roboll/slicerprofiledb/pkg/store"
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

func TestRunIngestsFromLocalSourceDir(t *testing.T) {
	src := t.TempDir()
	writeJSON(t, filepath.Join(src, "BBL", "filament", "Bambu PLA.json"), map[string]interface{}{
		"type":          "filament",
		"name":          "Bambu PLA",
		"filament_type": "PLA",
	})

	storeRoot := t.TempDir()
	rep, err := Run(context.Background(), nil, Options{
		SlicerType: slicer.BambuStudio,
		Version:    "01.05.00",
		SourceDir:  src,
		StoreRoot:  storeRoot,
	})
	require.NoError(t, err)
	assert.Len(t, rep.Added, 1)

	st := store.Open(nil, storeRoot)
	sp, err := st.Load(profile.Key{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu PLA"})
	require.NoError(t, err)
	require.NotNil(t, sp)
}

func TestRunAppliesOverlayOnTopOfBaseParse(t *testing.T) {
	src := t.TempDir()
	writeJSON(t, filepath.Join(src, "BBL", "filament", "Bambu PLA.json"), map[string]interface{}{
		"type":          "filament",
		"name":          "Bambu PLA",
		"filament_type": "PLA",
		"fan_speed":     30,
	})

	overlay := t.TempDir()
	writeJSON(t, filepath.Join(overlay, "BBL", "filament", "Bambu PLA.json"), map[string]interface{}{
		"type":          "filament",
		"name":          "Bambu PLA",
		"filament_type": "PLA",
		"fan_speed":     80,
	})

	storeRoot := t.TempDir()
	_, err := Run(context.Background(), nil, Options{
		SlicerType: slicer.BambuStudio,
		Version:    "01.05.00",
		SourceDir:  src,
		OverlayDir: overlay,
		StoreRoot:  storeRoot,
	})
	require.NoError(t, err)

	st := store.Open(nil, storeRoot)
	sp, err := st.Load(profile.Key{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu PLA"})
	require.NoError(t, err)
	require.NotNil(t, sp)
	v, ok := sp.GetLatest("fan_speed")
	require.True(t, ok)
	assert.EqualValues(t, 80, v.V)
}

func TestMergeOverlayReplacesMatchedKeysAndAppendsRest(t *testing.T) {
	base := []profile.ParsedProfile{
		{ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu PLA", SourcePath: "base"},
	}
	overlay := []profile.ParsedProfile{
		{ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu PLA", SourcePath: "overlay"},
		{ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu PETG", SourcePath: "overlay"},
	}

	merged := mergeOverlay(base, overlay)
	require.Len(t, merged, 2)

	byName := map[string]profile.ParsedProfile{}
	for _, p := range merged {
		byName[p.Name] = p
	}
	assert.Equal(t, "overlay", byName["Bambu PLA"].SourcePath)
	assert.Equal(t, "overlay", byName["Bambu PETG"].SourcePath)
}

func TestBuildArchiveURLSubstitutesTag(t *testing.T) {
	got := buildArchiveURL("git::https://github.com/bambulab/BambuStudio.git?ref={tag}", "v01.09.00")
	assert.Equal(t, "git::https://github.com/bambulab/BambuStudio.git?ref=v01.09.00", got)
}

// fakeTagSource is a minimal fetch.TagSource fake returning fixed raw tag
// names, mirroring the teacher's preference for small function-backed
// fakes over mock-generation frameworks.
type fakeTagSource struct {
	tags []string
}

func (f *fakeTagSource) ListTags(ctx context.Context, repo string, tagPattern *regexp.Regexp) ([]fetch.Tag, error) {
	var out []fetch.Tag
	for _, raw := range f.tags {
		if tagPattern != nil && !tagPattern.MatchString(raw) {
			continue
		}
		out = append(out, fetch.Tag{Raw: raw})
	}
	return out, nil
}

func TestResolveLatestVersionSkipsPreReleaseAndMutableTags(t *testing.T) {
	ts := &fakeTagSource{tags: []string{"v01.05.00", "v01.09.00-beta", "main", "v01.07.00"}}

	cfg := slicer.SourceConfigs[slicer.BambuStudio]
	got, err := ResolveLatestVersion(context.Background(), ts, cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "v01.07.00", got)
}
