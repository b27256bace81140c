package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/roboll/slicerprofiledb/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func writeFixture(t *testing.T, path string, v interface{}) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

// TestIngestLocalCommandPrintsIngestionReportJSON runs the ingest-local
// subcommand end to end through the same cli.App wiring main() uses,
// the smoke-test shape the teacher's app_test.go exercised before
// deletion.
func TestIngestLocalCommandPrintsIngestionReportJSON(t *testing.T) {
	src := t.TempDir()
	writeFixture(t, filepath.Join(src, "BBL", "filament", "Bambu PLA.json"), map[string]interface{}{
		"type":          "filament",
		"name":          "Bambu PLA",
		"filament_type": "PLA",
	})
	storeRoot := t.TempDir()

	app := cli.NewApp()
	app.Before = configureLogging
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "log-level"},
		cli.BoolFlag{Name: "quiet, q"},
		cli.StringFlag{Name: "store, s"},
	}
	app.Commands = []cli.Command{ingestLocalCommand()}

	var runErr error
	out := testutil.CaptureStdout(func() {
		runErr = app.Run([]string{"slicerprofiledb", "--quiet", "--store", storeRoot,
			"ingest-local", "bambustudio", "01.05.00", src})
	})
	require.NoError(t, runErr)

	var rep struct {
		Added []string `json:"added"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, []string{"Bambu PLA"}, rep.Added)
}
