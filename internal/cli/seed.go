package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <catalog-dir>",
		Short: "Load a catalog into the store",
		Long: `Load function types, functions and forwarders from a catalog directory.

The directory may hold *.cue, *.hcl, *.yaml and *.yml files. Forwarders
already in the store keep their dictionaries; only their locators change.
Chains are parsed and validated but not resolved.

Example:
  sfcpath seed --db ./sfc.db ./catalog`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			_, sum, err := a.seed(ctx, args[0])
			if err != nil {
				return err
			}
			return a.out.Emit(sum, func() string {
				return fmt.Sprintf("Seeded %d function type(s), %d function(s), %d forwarder(s); %d chain(s) defined\n",
					sum.FunctionTypes, sum.Functions, sum.Forwarders, sum.Chains)
			})
		},
	}
}
