package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string // SQLite path or PostgreSQL connection string
	Driver   string // "sqlite" | "postgres"
	Rules    string // catalog directory, optional
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ValidDrivers defines the supported event log backends.
var ValidDrivers = []string{"sqlite", "postgres"}

// DefaultDatabase is the SQLite file used when --db is not given.
const DefaultDatabase = "crab.db"

// NewRootCommand creates the root command for the crab CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "crab",
		Short: "crab - order event log",
		Long:  "Submit order commands, inspect snapshots and verify the event log of the order engine.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if !slices.Contains(ValidDrivers, opts.Driver) {
				return fmt.Errorf("invalid driver %q: must be one of %v", opts.Driver, ValidDrivers)
			}
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", DefaultDatabase, "SQLite path or PostgreSQL connection string")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "sqlite", "event log backend (sqlite|postgres)")
	cmd.PersistentFlags().StringVar(&opts.Rules, "rules", "", "directory of CUE pricing rules and products")

	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}
