package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mottobotto/testflight-bot/internal/data"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Database string
	Format   string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for botctl. defaultDB is used
// when --db is not given.
func NewRootCommand(defaultDB string) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "botctl",
		Short: "Operate the TestFlight reaction-role bot's store",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Database == "" {
				return fmt.Errorf("no database: set --db or DB_PATH")
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", defaultDB, "path to SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewRequestsCommand(opts))
	cmd.AddCommand(NewTesterCommand(opts))

	return cmd
}

func openStore(opts *RootOptions) (*data.Store, error) {
	st, err := data.NewStore(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
