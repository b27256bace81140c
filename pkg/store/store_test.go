package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
	"github.com/roboll/slicerprofiledb/pkg/testhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingsOf(nozzleTemp int, filamentType string) map[string]profile.Value {
	return map[string]profile.Value{
		"nozzle_temperature": profile.NewValue(nozzleTemp),
		"filament_type":      profile.NewValue(filamentType),
	}
}

// TestScenario1SingleIngestion is spec.md §8 scenario 1.
func TestScenario1SingleIngestion(t *testing.T) {
	s := Open(nil, t.TempDir())

	rep, err := s.IngestProfiles(slicer.BambuStudio, "01.00.00", []profile.ParsedProfile{
		{
			Slicer: slicer.BambuStudio, ProfileType: slicer.Filament,
			Vendor: "BBL", Name: "Bambu ABS",
			Settings: settingsOf(270, "ABS"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bambu ABS"}, rep.Added)
	assert.Empty(t, rep.Changed)

	path := s.profilePath(slicer.BambuStudio, slicer.Filament, "BBL", "Bambu ABS")
	_, err = os.Stat(path)
	require.NoError(t, err)

	sp, err := s.Load(profile.Key{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu ABS"})
	require.NoError(t, err)
	require.NotNil(t, sp)

	snap := sp.Evaluate("01.00.00")
	assert.EqualValues(t, 270, snap["nozzle_temperature"].V)
	assert.Equal(t, "ABS", snap["filament_type"].V)
}

// TestScenario2VersionDiff is spec.md §8 scenario 2.
func TestScenario2VersionDiff(t *testing.T) {
	s := Open(nil, t.TempDir())

	_, err := s.IngestProfiles(slicer.BambuStudio, "01.00.00", []profile.ParsedProfile{
		{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu ABS", Settings: settingsOf(270, "ABS")},
	})
	require.NoError(t, err)

	rep, err := s.IngestProfiles(slicer.BambuStudio, "02.00.00", []profile.ParsedProfile{
		{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu ABS", Settings: settingsOf(280, "ABS")},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"Bambu ABS": {"nozzle_temperature"}}, rep.Changed)

	sp, err := s.Load(profile.Key{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu ABS"})
	require.NoError(t, err)

	changed := sp.ChangedSettings("01.00.00", "02.00.00")
	require.Contains(t, changed, "nozzle_temperature")
	assert.EqualValues(t, 270, changed["nozzle_temperature"].Before.V)
	assert.EqualValues(t, 280, changed["nozzle_temperature"].After.V)

	assert.EqualValues(t, 270, sp.Evaluate("01.00.00")["nozzle_temperature"].V)
	assert.EqualValues(t, 280, sp.Evaluate("02.00.00")["nozzle_temperature"].V)
}

// TestScenario2OnDiskJSONOnlyChangesTheAppendedSetting re-derives scenario
// 2's assertion directly against the stored JSON bytes, confirming that in
// the rewritten file the setting that actually changed gains a new history
// entry while the unchanged setting's lines stay as they were.
func TestScenario2OnDiskJSONOnlyChangesTheAppendedSetting(t *testing.T) {
	s := Open(nil, t.TempDir())

	_, err := s.IngestProfiles(slicer.BambuStudio, "01.00.00", []profile.ParsedProfile{
		{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu ABS", Settings: settingsOf(270, "ABS")},
	})
	require.NoError(t, err)

	path := s.profilePath(slicer.BambuStudio, slicer.Filament, "BBL", "Bambu ABS")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = s.IngestProfiles(slicer.BambuStudio, "02.00.00", []profile.ParsedProfile{
		{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu ABS", Settings: settingsOf(280, "ABS")},
	})
	require.NoError(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)

	delta, changed := testhelper.Diff(string(before), string(after), 0)
	require.True(t, changed)
	assert.Contains(t, delta, "280")
	assert.NotContains(t, delta, `"filament_type"`)
}

// TestScenario3RenameMerge is spec.md §8 scenario 3.
func TestScenario3RenameMerge(t *testing.T) {
	s := Open(nil, t.TempDir())

	_, err := s.IngestProfiles(slicer.BambuStudio, "01.00.00", []profile.ParsedProfile{
		{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu ABS", Settings: settingsOf(270, "ABS")},
	})
	require.NoError(t, err)
	_, err = s.IngestProfiles(slicer.BambuStudio, "02.00.00", []profile.ParsedProfile{
		{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu ABS", Settings: settingsOf(280, "ABS")},
	})
	require.NoError(t, err)

	oldPath := s.profilePath(slicer.BambuStudio, slicer.Filament, "BBL", "Bambu ABS")

	rep, err := s.IngestProfiles(slicer.BambuStudio, "03.00.00", []profile.ParsedProfile{
		{
			Slicer: slicer.BambuStudio, ProfileType: slicer.Filament,
			Vendor: "BBL", Name: "Bambu ABS Pro", RenamedFrom: "Bambu ABS",
			Settings: settingsOf(285, "ABS"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bambu ABS Pro"}, rep.Added)

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))

	sp, err := s.Load(profile.Key{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu ABS Pro"})
	require.NoError(t, err)
	require.NotNil(t, sp)

	assert.Equal(t, "01.00.00", sp.FirstSeen)
	assert.Equal(t, "Bambu ABS", sp.RenamedFrom)

	hist := sp.Settings["nozzle_temperature"]
	require.NotNil(t, hist)
	assert.Equal(t, []string{"01.00.00", "02.00.00", "03.00.00"}, hist.Versions())
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "Foo_Bar", SanitizeName(`Foo<>Bar`))
	assert.Equal(t, "a_b", SanitizeName(`a//b`))
	assert.Equal(t, "trimmed", SanitizeName(" . trimmed _ "))
}

func TestIngestReportsRemovedWithoutDeleting(t *testing.T) {
	s := Open(nil, t.TempDir())

	_, err := s.IngestProfiles(slicer.BambuStudio, "01.00.00", []profile.ParsedProfile{
		{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu ABS", Settings: settingsOf(270, "ABS")},
		{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu PLA", Settings: settingsOf(210, "PLA")},
	})
	require.NoError(t, err)

	rep, err := s.IngestProfiles(slicer.BambuStudio, "02.00.00", []profile.ParsedProfile{
		{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu ABS", Settings: settingsOf(270, "ABS")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bambu PLA"}, rep.Removed)

	path := s.profilePath(slicer.BambuStudio, slicer.Filament, "BBL", "Bambu PLA")
	_, err = os.Stat(path)
	require.NoError(t, err, "removed profiles are reported but not deleted")
}

func TestIngestWritesSlicerMeta(t *testing.T) {
	s := Open(nil, t.TempDir())
	_, err := s.IngestProfiles(slicer.BambuStudio, "01.00.00", []profile.ParsedProfile{
		{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu ABS", Settings: settingsOf(270, "ABS")},
	})
	require.NoError(t, err)
	_, err = s.IngestProfiles(slicer.BambuStudio, "02.00.00", []profile.ParsedProfile{
		{Slicer: slicer.BambuStudio, ProfileType: slicer.Filament, Vendor: "BBL", Name: "Bambu ABS", Settings: settingsOf(280, "ABS")},
	})
	require.NoError(t, err)

	m, err := s.loadMeta(slicer.BambuStudio)
	require.NoError(t, err)
	assert.Equal(t, []string{"01.00.00", "02.00.00"}, m.Versions)
	assert.Equal(t, "02.00.00", m.LastIngested)

	b, err := os.ReadFile(filepath.Join(s.Root, "bambustudio", "_meta.json"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "02.00.00")
}
