package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rmraya/hybridtm/internal/engine"
	"github.com/rmraya/hybridtm/internal/tm"
)

// searchOptions holds CLI flags for translation search.
type searchOptions struct {
	instance string
	srcLang  string
	tgtLang  string
	minScore int
	limit    int
	minState string
	provider string
	contexts []string
	format   string
	semantic bool
}

var (
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	targetStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search the memory for translations of a text",
		Long: `Search stored segments for the given text.

By default this is a bilingual translation search: source-language
segments similar to the text are paired with their target-language
counterparts and ranked by the hybrid (semantic + lexical) score.
With --semantic-only, the raw monolingual semantic matches in the
source language are returned instead.

Examples:
  hybridtm search "Save the settings" -s en -t es
  hybridtm search "Save the settings" -s en -t es --min-score 75 --min-state reviewed
  hybridtm search "settings" -s en --semantic-only`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), root, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.instance, "instance", "i", "default", "Instance name")
	cmd.Flags().StringVarP(&opts.srcLang, "source", "s", "", "Source language (required)")
	cmd.Flags().StringVarP(&opts.tgtLang, "target", "t", "", "Target language")
	cmd.Flags().IntVar(&opts.minScore, "min-score", 0, "Minimum hybrid score (default from config)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVar(&opts.minState, "min-state", "", "Minimum target state")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Require segment provider")
	cmd.Flags().StringSliceVar(&opts.contexts, "context", nil, "Require context substrings")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.semantic, "semantic-only", false, "Monolingual semantic search, no pairing")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func buildFilter(opts searchOptions) *tm.Filter {
	f := &tm.Filter{
		MinState:        tm.State(strings.ToLower(opts.minState)),
		ContextIncludes: opts.contexts,
		Provider:        opts.provider,
	}
	if f.IsZero() {
		return nil
	}
	return f
}

func runSearch(ctx context.Context, root *rootOptions, query string, opts searchOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if opts.minScore <= 0 {
		opts.minScore = cfg.Search.MinScore
	}
	if opts.limit <= 0 {
		opts.limit = cfg.Search.MaxResults
	}

	eng, err := openEngine(ctx, root, opts.instance)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	filter := buildFilter(opts)

	if opts.semantic {
		entries, err := eng.SemanticSearch(ctx, query, opts.srcLang, opts.limit, filter)
		if err != nil {
			return err
		}
		return printEntries(entries, opts.format)
	}

	if opts.tgtLang == "" {
		return fmt.Errorf("--target is required for translation search")
	}

	matches, err := eng.SemanticTranslationSearch(ctx, query, opts.srcLang, opts.tgtLang,
		opts.minScore, opts.limit, engine.SearchFilters{Target: filter})
	if err != nil {
		return err
	}
	return printMatches(matches, opts.format)
}

func printMatches(matches []*engine.Match, format string) error {
	if format == "json" {
		type jsonMatch struct {
			Source   string `json:"source"`
			Target   string `json:"target"`
			Origin   string `json:"origin"`
			Semantic int    `json:"semantic"`
			Fuzzy    int    `json:"fuzzy"`
			Hybrid   int    `json:"hybrid"`
		}
		out := make([]jsonMatch, len(matches))
		for i, m := range matches {
			out[i] = jsonMatch{
				Source:   m.Source.Element,
				Target:   m.Target.Element,
				Origin:   m.Origin,
				Semantic: m.Semantic,
				Fuzzy:    m.Fuzzy,
				Hybrid:   m.HybridScore(),
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(matches) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, m := range matches {
		fmt.Println(scoreStyle.Render(fmt.Sprintf("%3d%%", m.HybridScore())),
			fmt.Sprintf("(semantic %d, fuzzy %d)", m.Semantic, m.Fuzzy))
		fmt.Println("  " + sourceStyle.Render(m.Source.PureText))
		fmt.Println("  " + targetStyle.Render(m.Target.PureText))
	}
	return nil
}

func printEntries(entries []*tm.Entry, format string) error {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s\n", e.ID, e.PureText)
	}
	return nil
}
