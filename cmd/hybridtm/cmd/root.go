// Package cmd provides the CLI commands for HybridTM.
package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rmraya/hybridtm/internal/config"
	"github.com/rmraya/hybridtm/internal/embed"
	"github.com/rmraya/hybridtm/internal/engine"
	"github.com/rmraya/hybridtm/internal/logging"
	"github.com/rmraya/hybridtm/internal/registry"
	"github.com/rmraya/hybridtm/internal/store"
	"github.com/rmraya/hybridtm/pkg/version"
)

// rootOptions holds the global flags shared by all subcommands.
type rootOptions struct {
	configPath string
	debug      bool

	loggingCleanup func()
}

// NewRootCmd creates the root command for the hybridtm CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "hybridtm",
		Short: "Hybrid translation memory engine",
		Long: `HybridTM stores bilingual segments and retrieves previously translated
material by combining lexical (edit-distance-style) similarity with dense
vector semantic similarity.

Memories are populated from XLIFF 2.x and TMX 1.4b files and queried with
concordance, semantic, and bilingual translation searches.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := ""
			if opts.debug {
				level = "debug"
			}
			cleanup, err := logging.SetupDefault(level)
			if err != nil {
				return err
			}
			opts.loggingCleanup = cleanup
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.loggingCleanup != nil {
				opts.loggingCleanup()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		newImportCmd(opts),
		newSearchCmd(opts),
		newConcordanceCmd(opts),
		newInfoCmd(opts),
		newRemoveCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// openEngine resolves the named instance (registering it on first use)
// and opens its store and embedder. The returned engine must be closed.
func openEngine(ctx context.Context, opts *rootOptions, name string) (*engine.Engine, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	reg, err := registry.Load()
	if err != nil {
		return nil, err
	}

	storeDir := cfg.Storage.Path
	if inst, ok := reg.Resolve(name); ok {
		storeDir = inst.Path
	} else if storeDir == "" {
		storeDir = config.DefaultStoreDir(name)
	}

	embedder, err := embed.New(ctx, embed.Config{
		Provider:  embed.Provider(cfg.Embeddings.Provider),
		Model:     cfg.Embeddings.Model,
		Host:      cfg.Embeddings.OllamaHost,
		BatchSize: cfg.Embeddings.BatchSize,
		CacheSize: cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return nil, err
	}

	st, err := store.OpenOrCreate(ctx, storeDir)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	eng, err := engine.New(ctx, name, st, embedder, slog.Default())
	if err != nil {
		_ = st.Close()
		_ = embedder.Close()
		return nil, err
	}

	if err := reg.Register(name, storeDir, embedder.ModelName()); err != nil {
		slog.Warn("failed to update instance registry", slog.String("error", err.Error()))
	}
	return eng, nil
}

// loadConfig loads the config for commands that do not open an engine.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	return config.Load(opts.configPath)
}
