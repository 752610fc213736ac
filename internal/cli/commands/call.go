package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// passwordEnv supplies the --login password when the flag is absent
const passwordEnv = "OBJECTSERVER_PASSWORD"

func newCallCommand(opts *rootOptions) *cobra.Command {
	var login, password string

	cmd := &cobra.Command{
		Use:   "call <model> <method> [json-args]",
		Short: "Call a model method and print the result as JSON",
		Long: `Call a model method. Arguments are given as one JSON array.

Without --login the call runs as the server itself and skips access checks.

Examples:
  objectserver call core.user search '[[["login", "=", "admin"]]]'
  objectserver call core.user read '[[1], ["name", "login"]]'
  objectserver call core.role create '[{"name": "Sales"}]' --login admin`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, method := args[0], args[1]

			var callArgs []interface{}
			if len(args) == 3 {
				if err := json.Unmarshal([]byte(args[2]), &callArgs); err != nil {
					return fmt.Errorf("arguments must be a JSON array: %w", err)
				}
			}
			if login != "" && password == "" {
				password = os.Getenv(passwordEnv)
			}

			return withApp(cmd, opts, func(a *app) error {
				ctx := cmd.Context()

				var result interface{}
				var err error
				if login != "" {
					var uid int64
					uid, err = a.engine.Authenticate(ctx, login, password)
					if err == nil {
						result, err = a.engine.Execute(ctx, uid, model, method, callArgs...)
					}
				} else {
					result, err = a.engine.ExecuteInternal(ctx, model, method, callArgs...)
				}
				if err != nil {
					return a.callFailed(cmd.ErrOrStderr(), err)
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			})
		},
	}

	cmd.Flags().StringVarP(&login, "login", "l", "", "act as this user")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password of --login (default $"+passwordEnv+")")
	return cmd
}
