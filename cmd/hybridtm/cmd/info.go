package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rmraya/hybridtm/internal/registry"
)

func newInfoCmd(root *rootOptions) *cobra.Command {
	var instance string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show registered instances and store statistics",
		Long: `Show the registered instances with their store paths, embedding model
and dimension, and row counts per language.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load()
			if err != nil {
				return err
			}

			instances := reg.List()
			if instance != "" {
				inst, ok := reg.Resolve(instance)
				if !ok {
					return fmt.Errorf("unknown instance %q", instance)
				}
				instances = []*registry.Instance{inst}
			}
			if len(instances) == 0 {
				fmt.Println("no registered instances")
				return nil
			}

			for _, inst := range instances {
				fmt.Printf("%s\n", inst.Name)
				fmt.Printf("  path:  %s\n", inst.Path)

				eng, err := openEngine(cmd.Context(), root, inst.Name)
				if err != nil {
					fmt.Printf("  (unavailable: %v)\n", err)
					continue
				}

				fmt.Printf("  model: %s\n", eng.ModelName())
				fmt.Printf("  dimension: %d\n", eng.Dimension())

				total, err := eng.EntryCount(cmd.Context())
				if err == nil {
					fmt.Printf("  entries: %d\n", total)
				}
				counts, err := eng.LanguageCounts(cmd.Context())
				if err == nil && len(counts) > 0 {
					languages := make([]string, 0, len(counts))
					for lang := range counts {
						languages = append(languages, lang)
					}
					sort.Strings(languages)
					for _, lang := range languages {
						fmt.Printf("    %s: %d\n", lang, counts[lang])
					}
				}
				_ = eng.Close()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&instance, "instance", "i", "", "Limit to one instance")
	return cmd
}
