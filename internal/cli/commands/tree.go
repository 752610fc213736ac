package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/objectserver/internal/cli/ui"
)

func newTreeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Check and repair nested-set hierarchies",
		Long: `Hierarchical models store a nested-set interval next to the parent link.

Available subcommands:
  verify   - List nodes whose interval disagrees with the parent links
  rebuild  - Recompute the intervals from the parent links`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "verify <model>",
		Short: "List nodes whose interval disagrees with the parent links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				violations, err := a.engine.VerifyTree(cmd.Context(), args[0])
				if err != nil {
					return a.callFailed(cmd.ErrOrStderr(), err)
				}
				ui.WriteViolations(cmd.OutOrStdout(), args[0], violations, a.noColor)
				if len(violations) > 0 {
					return errReported
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild <model>",
		Short: "Recompute the intervals from the parent links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				n, err := a.engine.RebuildTree(cmd.Context(), args[0])
				if err != nil {
					return a.callFailed(cmd.ErrOrStderr(), err)
				}
				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s: %d nodes rewritten", args[0], n), a.noColor)
				return nil
			})
		},
	})

	return cmd
}
