package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the store migrates it
			st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "ok", "database": opts.Database})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database %s is up to date\n", opts.Database)
			return nil
		},
	}
}
