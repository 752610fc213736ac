package commands

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// errReported is returned by commands that already printed their failure
var errReported = errors.New("command failed")

// Registrar declares application models in the registry
type Registrar func(r *schema.Registry) error

type rootOptions struct {
	configPath string
	logLevel   string
	noColor    bool
	registrars []Registrar
}

// NewRootCommand creates the root command. The core models are always
// registered; registrars add the application's own models.
func NewRootCommand(registrars ...Registrar) *cobra.Command {
	opts := &rootOptions{registrars: registrars}

	rootCmd := &cobra.Command{
		Use:   "objectserver",
		Short: "Metadata-driven object server",
		Long: color.CyanString(`objectserver - metadata-driven relational object layer

Models are declared in Go and mirrored into a catalog stored in the
database. The server creates their tables, keeps the catalog in sync and
serves count, search, create, read, write and delete on every model, with
per-role access rules and nested-set hierarchies.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default ./objectserver.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log.level")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(newInitCommand(opts))
	rootCmd.AddCommand(newSyncCommand(opts))
	rootCmd.AddCommand(newTreeCommand(opts))
	rootCmd.AddCommand(newCallCommand(opts))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			titleColor := color.New(color.FgCyan, color.Bold)
			out := cmd.OutOrStdout()

			titleColor.Fprint(out, "objectserver version: ")
			fmt.Fprintln(out, Version)
			titleColor.Fprint(out, "Git commit: ")
			fmt.Fprintln(out, GitCommit)
			titleColor.Fprint(out, "Build date: ")
			fmt.Fprintln(out, BuildDate)
			titleColor.Fprint(out, "Go version: ")
			fmt.Fprintln(out, goVer)
		},
	}
}

// Execute runs the root command
func Execute(registrars ...Registrar) error {
	rootCmd := NewRootCommand(registrars...)
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			errorColor := color.New(color.FgRed, color.Bold)
			errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return err
	}
	return nil
}
