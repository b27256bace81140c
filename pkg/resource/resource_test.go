package resource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreIdempotentAndDeduplicates(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cover.png")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0o644))

	resDir := filepath.Join(dir, "_resources")
	s, err := Open(nil, resDir)
	require.NoError(t, err)

	h1, err := s.Store(src)
	require.NoError(t, err)
	h2, err := s.Store(src)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	require.NoError(t, s.Save())

	entries, err := os.ReadDir(resDir)
	require.NoError(t, err)
	// manifest.json plus exactly one {hash}.png
	assert.Len(t, entries, 2)
}

func TestGCRemovesUnreferenced(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	require.NoError(t, os.WriteFile(a, []byte("aaa"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("bbb"), 0o644))

	resDir := filepath.Join(dir, "_resources")
	s, err := Open(nil, resDir)
	require.NoError(t, err)

	ha, err := s.Store(a)
	require.NoError(t, err)
	hb, err := s.Store(b)
	require.NoError(t, err)
	require.NoError(t, s.Save())

	require.NoError(t, s.GC(map[string]bool{ha: true}))
	require.NoError(t, s.Save())

	_, ok := s.Lookup(hb)
	assert.False(t, ok)
	_, ok = s.Lookup(ha)
	assert.True(t, ok)

	_, err = os.Stat(filepath.Join(resDir, hb+".png"))
	assert.True(t, os.IsNotExist(err))
}

func TestRewriteReferencesLeavesUnmatchedUnchanged(t *testing.T) {
	settings := map[string]profile.Value{
		"thumbnail":  profile.NewValue("thumb.png"),
		"bed_model":  profile.NewValue("missing.stl"),
		"unrelated":  profile.NewValue("thumb.png"),
	}
	RewriteReferences(settings, map[string]string{"thumb.png": "deadbeef"})

	assert.Equal(t, Ref("deadbeef"), settings["thumbnail"].V)
	assert.Equal(t, "missing.stl", settings["bed_model"].V)
	assert.Equal(t, "thumb.png", settings["unrelated"].V)
}
