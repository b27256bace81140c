package runtime

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithScopedDirRemovesDirOnSuccess(t *testing.T) {
	var seen string
	err := WithScopedDir("slicerprofiledb-test", func(dir string) error {
		seen = dir
		_, statErr := os.Stat(dir)
		require.NoError(t, statErr)
		return nil
	})
	require.NoError(t, err)

	_, statErr := os.Stat(seen)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWithScopedDirRemovesDirOnError(t *testing.T) {
	var seen string
	boom := errors.New("boom")
	err := WithScopedDir("slicerprofiledb-test", func(dir string) error {
		seen = dir
		return boom
	})
	assert.Equal(t, boom, err)

	_, statErr := os.Stat(seen)
	assert.True(t, os.IsNotExist(statErr))
}

func TestScopedDirDefaultsPatternWhenEmpty(t *testing.T) {
	dir, err := ScopedDir("")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	_, statErr := os.Stat(dir)
	require.NoError(t, statErr)
}

func TestHashObjectIsStableAndOrderIndependent(t *testing.T) {
	a := map[string]string{"a": "1", "b": "2"}
	b := map[string]string{"b": "2", "a": "1"}
	assert.Equal(t, HashObject(a), HashObject(b))

	c := map[string]string{"a": "1", "b": "3"}
	assert.NotEqual(t, HashObject(a), HashObject(c))
}
