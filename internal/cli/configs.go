package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/grouper/internal/config"
	"github.com/rafaeljc/grouper/internal/grouper"
	"github.com/rafaeljc/grouper/internal/store"
	"github.com/rafaeljc/grouper/internal/strategy"
)

// NewConfigsCommand creates the configs command.
func NewConfigsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "configs",
		Short:         "List the registered grouping configurations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			svc := grouper.NewService(store.NewMemoryStore(), nil, &config.GroupingConfig{DefaultConfigID: strategy.DefaultID()})
			configs := svc.Configurations()

			return out.Success(configs, func(w io.Writer) {
				for _, c := range configs {
					marker := " "
					if c.IsDefault {
						marker = "*"
					}
					fmt.Fprintf(w, "%s %-22s enhancements=%s", marker, c.ID, c.EnhancementsBase)
					if len(c.FingerprintingBases) > 0 {
						fmt.Fprintf(w, " fingerprinting=%s", strings.Join(c.FingerprintingBases, ","))
					}
					fmt.Fprintln(w)
				}
			})
		},
	}
}
