package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	tmerr "github.com/rmraya/hybridtm/internal/errors"
	"github.com/rmraya/hybridtm/internal/importer"
	"github.com/rmraya/hybridtm/internal/tm"
	"github.com/rmraya/hybridtm/internal/tmx"
	"github.com/rmraya/hybridtm/internal/xliff"
)

// importOptions holds CLI flags for import.
type importOptions struct {
	instance        string
	skipEmpty       bool
	skipUnconfirmed bool
	minState        string
	extractMetadata bool
	batchSize       int
	watch           bool
}

func newImportCmd(root *rootOptions) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <file|dir>",
		Short: "Import an XLIFF 2.x or TMX 1.4b file into a memory",
		Long: `Import bilingual segments from an XLIFF 2.x or TMX 1.4b file.

The file is streamed into entry candidates, embedded in batches, and
upserted into the instance's store. Re-importing the same file replaces
existing rows by ID.

Examples:
  hybridtm import project.xlf
  hybridtm import memory.tmx --instance legal --min-state translated
  hybridtm import ./dropbox --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), root, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.instance, "instance", "i", "default", "Instance name")
	cmd.Flags().BoolVar(&opts.skipEmpty, "skip-empty", true, "Skip segments with an empty target")
	cmd.Flags().BoolVar(&opts.skipUnconfirmed, "skip-unconfirmed", false, "Skip segments without an explicit state")
	cmd.Flags().StringVar(&opts.minState, "min-state", "", "Minimum segment state (initial, translated, reviewed, final)")
	cmd.Flags().BoolVar(&opts.extractMetadata, "metadata", true, "Extract segment metadata")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Entries per import batch (default from config)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Watch a directory and import dropped files")

	return cmd
}

func runImport(ctx context.Context, root *rootOptions, path string, opts importOptions) error {
	if opts.minState != "" {
		if _, ok := tm.NormalizeState(opts.minState); !ok {
			return fmt.Errorf("invalid --min-state %q", opts.minState)
		}
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if opts.batchSize <= 0 {
		opts.batchSize = cfg.Import.BatchSize
	}

	eng, err := openEngine(ctx, root, opts.instance)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	imp := importer.New(eng,
		importer.WithBatchSize(opts.batchSize),
		importer.WithLogger(slog.Default()))

	if opts.watch {
		return importer.Watch(ctx, path, slog.Default(), func(dropped string) error {
			return importOne(ctx, imp, dropped, opts)
		})
	}
	return importOne(ctx, imp, path, opts)
}

// importOne ingests a single file and streams the candidates into the store.
func importOne(ctx context.Context, imp *importer.Importer, path string, opts importOptions) error {
	var candidates string
	var total int

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlf", ".xliff":
		res, err := xliff.Ingest(ctx, path, xliff.Options{
			SkipEmpty:       opts.skipEmpty,
			SkipUnconfirmed: opts.skipUnconfirmed,
			MinState:        tm.State(strings.ToLower(opts.minState)),
			ExtractMetadata: opts.extractMetadata,
		})
		if err != nil {
			return err
		}
		candidates, total = res.Path, res.Count
	case ".tmx":
		res, err := tmx.Ingest(ctx, path, tmx.Options{
			SkipEmpty:       opts.skipEmpty,
			ExtractMetadata: opts.extractMetadata,
		})
		if err != nil {
			return err
		}
		candidates, total = res.Path, res.Count
	default:
		return tmerr.Newf(tmerr.KindUnsupportedFormat, "unsupported file extension %q", filepath.Ext(path)).WithPath(path)
	}

	_, err := imp.Run(ctx, candidates, total)
	return err
}
