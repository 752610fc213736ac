package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/objectserver/internal/cli/ui"
	"github.com/conduit-lang/objectserver/internal/orm/core"
)

// adminPasswordEnv supplies the administrator password when the flag is absent
const adminPasswordEnv = "OBJECTSERVER_ADMIN_PASSWORD"

func newInitCommand(opts *rootOptions) *cobra.Command {
	var adminPassword string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create tables and the catalog, then the administrator",
		Long: `Create the tables of every registered model, synchronize the catalog
and create the administrator account on first run.

Running init on an initialized database only adds what is missing; the
administrator password is not changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if adminPassword == "" {
				adminPassword = os.Getenv(adminPasswordEnv)
			}
			if adminPassword == "" {
				return fmt.Errorf("administrator password required: use --admin-password or %s", adminPasswordEnv)
			}

			return withApp(cmd, opts, func(a *app) error {
				report, err := a.engine.Init(cmd.Context(), adminPassword)
				if err != nil {
					return a.callFailed(cmd.ErrOrStderr(), err)
				}

				out := cmd.OutOrStdout()
				ui.WriteSyncReport(out, report.Sync, verbose, a.noColor)
				fmt.Fprintln(out)

				kv := ui.NewKeyValueTable(out, a.noColor)
				kv.AddRow("Models", strconv.Itoa(len(report.Sync)))
				kv.AddRow("Administrator", fmt.Sprintf("%d (login %q)", report.AdminID, core.AdminLogin))
				kv.AddRow("Created", strconv.FormatBool(report.AdminCreated))
				kv.Render()
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "password of the administrator created on first run")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list unchanged models too")
	return cmd
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize tables and the catalog with the model declarations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				reports, err := a.engine.Sync(cmd.Context())
				if err != nil {
					return a.callFailed(cmd.ErrOrStderr(), err)
				}
				ui.WriteSyncReport(cmd.OutOrStdout(), reports, verbose, a.noColor)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list unchanged models too")
	return cmd
}
