package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/sfcpath/internal/dispatch"
	"github.com/roach88/sfcpath/internal/model"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Chains []string // chain names to resolve; all when empty

	// IDGenerator allows overriding request ids (for testing).
	// If nil, the dispatcher default is used.
	IDGenerator dispatch.IDGenerator
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <catalog-dir>",
		Short: "Seed a catalog and resolve its chains into paths",
		Long: `Seed the catalog in the given directory, then resolve its chains.

Each chain becomes one unit of work. Units run concurrently, bounded by
the configured worker count. A chain whose path is committed but whose
forwarder bindings partly failed is reported as PARTIAL_BINDING.

Exit codes:
  0 - Every chain was resolved and bound
  1 - One or more chains failed
  2 - Command error (unreadable catalog, unknown chain, etc.)

Examples:
  sfcpath resolve --db ./sfc.db ./catalog
  sfcpath resolve --db ./sfc.db ./catalog --chain C1 --chain C2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Chains, "chain", nil, "resolve only the named chain (repeatable)")

	return cmd
}

func runResolve(opts *ResolveOptions, dir string, cmd *cobra.Command) error {
	a, ctx, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	cat, _, err := a.seed(ctx, dir)
	if err != nil {
		return err
	}

	chains := cat.Chains
	if len(opts.Chains) > 0 {
		chains = make([]model.Chain, 0, len(opts.Chains))
		for _, name := range opts.Chains {
			ch, ok := cat.Chain(name)
			if !ok {
				return NewExitError(ExitCommandError, fmt.Sprintf("chain %q is not defined in %s", name, dir))
			}
			chains = append(chains, ch)
		}
	}

	var dopts []dispatch.Option
	if opts.IDGenerator != nil {
		dopts = append(dopts, dispatch.WithIDGenerator(opts.IDGenerator))
	}
	results, err := runUnits(ctx, a.dispatcher(dopts...), func(d *dispatch.Dispatcher) ([]string, error) {
		ids := make([]string, 0, len(chains))
		for _, ch := range chains {
			id, err := d.CreatePath(ch)
			if err != nil {
				return ids, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	})
	if err != nil {
		return WrapExitError(ExitFailure, "resolve interrupted", err)
	}
	return reportUnits(a.out, results)
}

// NewUnresolveCommand creates the unresolve command.
func NewUnresolveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unresolve <chain>...",
		Short: "Delete the paths realizing the named chains",
		Long: `Delete each chain's path and release the forwarder bindings no other
path still uses. Deleting a chain that has no path succeeds.

Example:
  sfcpath unresolve --db ./sfc.db C1 C2`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			results, err := runUnits(ctx, a.dispatcher(), func(d *dispatch.Dispatcher) ([]string, error) {
				ids := make([]string, 0, len(args))
				for _, name := range args {
					id, err := d.DeletePath(name)
					if err != nil {
						return ids, err
					}
					ids = append(ids, id)
				}
				return ids, nil
			})
			if err != nil {
				return WrapExitError(ExitFailure, "unresolve interrupted", err)
			}
			return reportUnits(a.out, results)
		},
	}
}

// runUnits runs d, lets submit queue work, then closes d and collects every
// result in submission order.
func runUnits(ctx context.Context, d *dispatch.Dispatcher, submit func(*dispatch.Dispatcher) ([]string, error)) ([]dispatch.Result, error) {
	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	ids, submitErr := submit(d)
	d.Close()

	order := make(map[string]int, len(ids))
	for i, id := range ids {
		order[id] = i
	}
	var results []dispatch.Result
	for r := range d.Results() {
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return order[results[i].ID] < order[results[j].ID]
	})
	if err := <-runErr; err != nil {
		return results, err
	}
	if submitErr != nil {
		return results, submitErr
	}
	return results, nil
}

// reportUnits prints results and fails the command if any unit failed.
func reportUnits(out *OutputFormatter, results []dispatch.Result) error {
	v := unitsView{Units: make([]unitView, 0, len(results))}
	for _, r := range results {
		v.Units = append(v.Units, newUnitView(r))
		if r.Err != nil {
			v.Failed++
		} else {
			v.Committed++
		}
	}

	if err := out.Report(v.Failed > 0, v, func() string { return formatUnits(v, results) }); err != nil {
		return err
	}
	if v.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d unit(s) failed", v.Failed, len(results)))
	}
	return nil
}
