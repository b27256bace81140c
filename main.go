package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roboll/slicerprofiledb/pkg/catalogue"
	"github.com/roboll/slicerprofiledb/pkg/envvar"
	"github.com/roboll/slicerprofiledb/pkg/fetch"
	"github.com/roboll/slicerprofiledb/pkg/index"
	"github.com/roboll/slicerprofiledb/pkg/ingest"
	"github.com/roboll/slicerprofiledb/pkg/logging"
	"github.com/roboll/slicerprofiledb/pkg/mapping"
	"github.com/roboll/slicerprofiledb/pkg/reconciler"
	"github.com/roboll/slicerprofiledb/pkg/report"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
	"github.com/roboll/slicerprofiledb/pkg/store"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

var Version string

var logger *zap.SugaredLogger

func configureLogging(c *cli.Context) error {
	logLevel := c.GlobalString("log-level")
	if c.GlobalBool("quiet") {
		logLevel = "warn"
	}
	if logLevel == "" {
		logLevel = "info"
	}
	logger = logging.New(os.Stdout, logLevel)
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "slicerprofiledb"
	app.Usage = "ingest, map and reconcile slicer profile archives"
	app.Version = Version
	app.Before = configureLogging
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, error"},
		cli.BoolFlag{Name: "quiet, q", Usage: "silence output; equivalent to log-level warn"},
		cli.StringFlag{Name: "store, s", Usage: "store directory (default: env SLICERPROFILEDB_STORE_ROOT or ./store)"},
	}

	app.Commands = []cli.Command{
		ingestLocalCommand(),
		ingestCommand(),
		ingestAllCommand(),
		mapCommand(),
		reconcileCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "err: %v\n", err)
		os.Exit(toExitCode(err))
	}
}

// storeRootFrom resolves the store root: the --store flag wins, else
// envvar.StoreRoot, else store.DefaultRoot's "store" subdirectory
// fallback. store itself never reads the environment (spec.md §6).
func storeRootFrom(c *cli.Context) string {
	override := c.GlobalString("store")
	if override == "" {
		override = os.Getenv(envvar.StoreRoot)
	}
	return store.DefaultRoot(override)
}

// toExitCode maps spec.md §6's four failure classes (download, parse,
// store, reconciler conflict) to distinct process exit codes; anything
// else exits 1.
func toExitCode(err error) int {
	switch err.(type) {
	case *report.DownloadError:
		return 10
	case *report.ParseError:
		return 11
	case *report.StoreError:
		return 12
	case *conflictError:
		return 13
	default:
		return 1
	}
}

// conflictError wraps a non-empty ReconcileReport so toExitCode can
// recognize it without the reconciler package depending on the CLI.
type conflictError struct {
	rep *report.ReconcileReport
}

func (e *conflictError) Error() string {
	return fmt.Sprintf("reconciler: %d conflict(s) detected, aborting without writing", len(e.rep.Conflicts))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseSlicerFlag(name string) (slicer.Type, error) {
	t := slicer.Type(name)
	if !t.Valid() {
		return "", fmt.Errorf("unknown slicer %q", name)
	}
	return t, nil
}

func ingestLocalCommand() cli.Command {
	return cli.Command{
		Name:      "ingest-local",
		Usage:     "ingest profiles from a local, already-extracted directory",
		ArgsUsage: "<slicer> <version> <profiles-dir>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 3 {
				return fmt.Errorf("ingest-local: expected <slicer> <version> <profiles-dir>")
			}
			slicerType, err := parseSlicerFlag(c.Args().Get(0))
			if err != nil {
				return err
			}
			rep, err := ingest.Run(context.Background(), logger, ingest.Options{
				SlicerType: slicerType,
				Version:    c.Args().Get(1),
				SourceDir:  c.Args().Get(2),
				StoreRoot:  storeRootFrom(c),
			})
			if err != nil {
				return err
			}
			return printJSON(rep)
		},
	}
}

func ingestCommand() cli.Command {
	return cli.Command{
		Name:      "ingest",
		Usage:     "download, squash/parse, and store profiles from GitHub",
		ArgsUsage: "<slicer>",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "version, v", Value: "latest", Usage: "tag to ingest, or \"latest\""},
			cli.StringFlag{Name: "overlay", Usage: "overlay directory applied after the main parse"},
			cli.StringFlag{Name: "token", Usage: "bearer token for tag enumeration (default: env SLICERPROFILEDB_CATALOGUE_TOKEN)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("ingest: expected <slicer>")
			}
			slicerType, err := parseSlicerFlag(c.Args().Get(0))
			if err != nil {
				return err
			}
			return runIngest(c, slicerType)
		},
	}
}

func ingestAllCommand() cli.Command {
	return cli.Command{
		Name:  "ingest-all",
		Usage: "ingest profiles for every slicer sequentially",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "version, v", Value: "latest", Usage: "tag to ingest, or \"latest\""},
			cli.StringFlag{Name: "overlay", Usage: "overlay directory applied after the main parse"},
			cli.StringSliceFlag{Name: "skip", Usage: "slicers to skip"},
		},
		Action: func(c *cli.Context) error {
			skip := map[string]bool{}
			for _, s := range c.StringSlice("skip") {
				skip[s] = true
			}
			for _, slicerType := range slicer.Types {
				if skip[string(slicerType)] {
					continue
				}
				logger.Infof("ingest-all: %s", slicerType)
				if err := runIngest(c, slicerType); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func runIngest(c *cli.Context, slicerType slicer.Type) error {
	ctx := context.Background()
	token := c.String("token")
	if token == "" {
		token = os.Getenv(envvar.CatalogueToken)
	}

	fetcher := fetch.NewRetryingFetcher(logger, "")
	requested := c.String("version")

	version := requested
	if requested == "" || requested == "latest" {
		cfg := slicer.SourceConfigs[slicerType]
		ts := &fetch.GitHubTagSource{Token: token}
		resolved, err := ingest.ResolveLatestVersion(ctx, ts, cfg, token)
		if err != nil {
			return &report.DownloadError{Source: cfg.Repo, Cause: err}
		}
		version = resolved
	}

	rep, err := ingest.Run(ctx, logger, ingest.Options{
		SlicerType: slicerType,
		Version:    version,
		OverlayDir: c.String("overlay"),
		StoreRoot:  storeRootFrom(c),
		Fetcher:    fetcher,
	})
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func mapCommand() cli.Command {
	return cli.Command{
		Name:  "map",
		Usage: "run the mapping pipeline: match models, map filaments and print profiles, export",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "output, o", Value: "out", Usage: "output directory"},
			cli.StringFlag{Name: "catalogue", Usage: "catalogue URL or local path (default: env SLICERPROFILEDB_CATALOGUE_URL)"},
			cli.StringSliceFlag{Name: "skip", Usage: "slicers to skip"},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			storeRoot := storeRootFrom(c)

			skip := map[string]bool{}
			for _, s := range c.StringSlice("skip") {
				skip[s] = true
			}
			var slicers []slicer.Type
			for _, t := range mapping.Slicers {
				if !skip[string(t)] {
					slicers = append(slicers, t)
				}
			}

			st := store.Open(logger, storeRoot)
			idx, err := index.BuildAll(st.LoadPath, storeRoot, slicer.Types)
			if err != nil {
				return &report.StoreError{Path: storeRoot, Cause: err}
			}

			catalogueURL := c.String("catalogue")
			if catalogueURL == "" {
				catalogueURL = os.Getenv(envvar.CatalogueURL)
			}
			if catalogueURL == "" {
				return fmt.Errorf("map: catalogue URL required (flag --catalogue or env %s)", envvar.CatalogueURL)
			}
			fetcher := fetch.NewRetryingFetcher(logger, "")
			cat, err := catalogue.Fetch(ctx, fetcher, filepath.Join(c.String("output"), ".catalogue-cache"), catalogueURL)
			if err != nil {
				return &report.DownloadError{Source: catalogueURL, Cause: err}
			}

			progress := func(stage string, done, total int) {
				logger.Infof("map: %s %d/%d", stage, done, total)
			}

			mm := mapping.MapPrinterModels(idx, cat, slicers, progress)
			filamentMap := mapping.MapFilamentProfiles(idx, mm, nil, progress)
			printMap := mapping.MapPrintProfiles(idx, mm, progress)

			if err := mapping.WriteOutput(mm, filamentMap, printMap, idx, storeRoot, c.String("output"), progress); err != nil {
				return &report.StoreError{Path: c.String("output"), Cause: err}
			}

			return printJSON(map[string]interface{}{
				"models_mapped": len(mm.ModelToProfiles),
				"failed_brands": mm.FailedBrands,
				"failed_models": mm.FailedModels,
			})
		},
	}
}

func reconcileCommand() cli.Command {
	return cli.Command{
		Name:      "reconcile",
		Usage:     "resolve the external FILAMENT DB's filaments against the store and write slicer_settings back",
		ArgsUsage: "<db-root>",
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "dry-run", Usage: "report what would change without writing"},
			cli.StringSliceFlag{Name: "slicer", Usage: "slicers to reconcile (default: all six)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("reconcile: expected <db-root>")
			}
			storeRoot := storeRootFrom(c)
			st := store.Open(logger, storeRoot)

			slicers := slicer.Types
			if names := c.StringSlice("slicer"); len(names) > 0 {
				slicers = nil
				for _, n := range names {
					t, err := parseSlicerFlag(n)
					if err != nil {
						return err
					}
					slicers = append(slicers, t)
				}
			}

			idx, err := index.BuildAll(st.LoadPath, storeRoot, slicers)
			if err != nil {
				return &report.StoreError{Path: storeRoot, Cause: err}
			}

			rep, err := reconciler.Run(idx, c.Args().Get(0), slicers, c.Bool("dry-run"), nil)
			if err != nil {
				return &report.StoreError{Path: c.Args().Get(0), Cause: err}
			}
			if rep.HasConflicts() {
				printJSON(rep)
				return &conflictError{rep: rep}
			}
			return printJSON(rep)
		},
	}
}
