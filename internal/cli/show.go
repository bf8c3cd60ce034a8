package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sfcpath/internal/model"
)

// NewPathCommand creates the path command.
func NewPathCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path <name>",
		Short: "Show one path",
		Long: `Show a committed path by name. A chain name is accepted too and
looked up as "<chain>-Path".

Example:
  sfcpath path --db ./sfc.db C1-Path`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			name := args[0]
			p, found, err := a.resolver.Lookup(ctx, name)
			if err == nil && !found && !strings.HasSuffix(name, model.PathSuffix) {
				name = model.PathName(name)
				p, found, err = a.resolver.Lookup(ctx, name)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read path", err)
			}
			if !found {
				_ = a.out.Error(CodeNotFound, fmt.Sprintf("path %q not found", args[0]), nil)
				return NewExitError(ExitFailure, fmt.Sprintf("path %q not found", args[0]))
			}
			return a.out.Emit(p, func() string { return formatPath(p) })
		},
	}
}

// NewPathsCommand creates the paths command.
func NewPathsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "paths",
		Short:         "List committed paths",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			paths, err := a.resolver.List(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list paths", err)
			}
			if paths == nil {
				paths = []model.Path{}
			}
			return a.out.Emit(paths, func() string { return formatPaths(paths) })
		},
	}
}

// NewForwarderCommand creates the forwarder command.
func NewForwarderCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forwarder <name>",
		Short: "Show one forwarder and its bound functions",
		Long: `Show a forwarder's locator, the id of the last path bound onto it and
its dictionary of bound functions.

Example:
  sfcpath forwarder --db ./sfc.db F1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			f, found, err := a.registry.Lookup(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read forwarder", err)
			}
			if !found {
				_ = a.out.Error(CodeNotFound, fmt.Sprintf("forwarder %q not found", args[0]), nil)
				return NewExitError(ExitFailure, fmt.Sprintf("forwarder %q not found", args[0]))
			}
			return a.out.Emit(f, func() string { return formatForwarder(f) })
		},
	}
}

// NewForwardersCommand creates the forwarders command.
func NewForwardersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "forwarders",
		Short:         "List forwarders and their bound functions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			fwds, err := a.registry.List(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list forwarders", err)
			}
			if fwds == nil {
				fwds = []model.Forwarder{}
			}
			return a.out.Emit(fwds, func() string { return formatForwarders(fwds) })
		},
	}
}
