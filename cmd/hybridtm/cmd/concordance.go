package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// concordanceOptions holds CLI flags for concordance search.
type concordanceOptions struct {
	instance string
	language string
	limit    int
	format   string
}

func newConcordanceCmd(root *rootOptions) *cobra.Command {
	var opts concordanceOptions

	cmd := &cobra.Command{
		Use:   "concordance <fragment>",
		Short: "Find segments containing a text fragment, with all language variants",
		Long: `Find every segment whose text contains the fragment (case-insensitive)
and print each segment with all of its language variants.

Examples:
  hybridtm concordance "settings" -l en
  hybridtm concordance "Speichern" -l de -n 5 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConcordance(cmd.Context(), root, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.instance, "instance", "i", "default", "Instance name")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Language of the fragment (required)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of segments")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	_ = cmd.MarkFlagRequired("language")

	return cmd
}

func runConcordance(ctx context.Context, root *rootOptions, fragment string, opts concordanceOptions) error {
	eng, err := openEngine(ctx, root, opts.instance)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	matches, err := eng.ConcordanceSearch(ctx, fragment, opts.language, opts.limit, nil)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	}

	if len(matches) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for i, m := range matches {
		fmt.Printf("match %d:\n", i+1)
		for lang, element := range m {
			fmt.Printf("  %s\t%s\n", lang, element)
		}
	}
	return nil
}
