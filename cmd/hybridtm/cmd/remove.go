package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmraya/hybridtm/internal/registry"
)

// removeOptions holds CLI flags for entry removal.
type removeOptions struct {
	instance     string
	fileID       string
	unitID       string
	language     string
	segmentIndex int
	allSegments  bool
	deregister   bool
}

func newRemoveCmd(root *rootOptions) *cobra.Command {
	var opts removeOptions

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove entries from a memory, or deregister an instance",
		Long: `Remove a single entry (by file, unit, segment index and language),
every segment of a unit's language side (--all-segments), or the
instance's registry record (--deregister).

Examples:
  hybridtm remove --file demo.xlf --unit u1 --lang es --segment 1
  hybridtm remove --file demo.xlf --unit u1 --lang es --all-segments
  hybridtm remove -i old-memory --deregister`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.deregister {
				reg, err := registry.Load()
				if err != nil {
					return err
				}
				removed, err := reg.Remove(opts.instance)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("unknown instance %q", opts.instance)
				}
				fmt.Printf("deregistered %s (store left on disk)\n", opts.instance)
				return nil
			}

			if opts.fileID == "" || opts.unitID == "" || opts.language == "" {
				return fmt.Errorf("--file, --unit and --lang are required")
			}

			eng, err := openEngine(cmd.Context(), root, opts.instance)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			if opts.allSegments {
				n, err := eng.DeleteUnitEntries(cmd.Context(), opts.fileID, opts.unitID, opts.language)
				if err != nil {
					return err
				}
				fmt.Printf("removed %d entries\n", n)
				return nil
			}

			removed, err := eng.DeleteLangEntry(cmd.Context(), opts.fileID, opts.unitID, opts.language, opts.segmentIndex)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("entry not found")
			}
			fmt.Println("removed 1 entry")
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.instance, "instance", "i", "default", "Instance name")
	cmd.Flags().StringVar(&opts.fileID, "file", "", "File ID")
	cmd.Flags().StringVar(&opts.unitID, "unit", "", "Unit ID")
	cmd.Flags().StringVar(&opts.language, "lang", "", "Language tag")
	cmd.Flags().IntVar(&opts.segmentIndex, "segment", 0, "Segment index (0 = merged/TMX entry)")
	cmd.Flags().BoolVar(&opts.allSegments, "all-segments", false, "Remove every segment of the unit's language side")
	cmd.Flags().BoolVar(&opts.deregister, "deregister", false, "Remove the instance from the registry")
	return cmd
}
