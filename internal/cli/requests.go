package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mottobotto/testflight-bot/internal/api"
	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

// RequestsOptions holds flags for the requests command.
type RequestsOptions struct {
	*RootOptions
	Tester         string
	App            string
	Status         string
	IncludeRemoved bool
}

// NewRequestsCommand creates the requests command.
func NewRequestsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RequestsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List testing requests",
		Long: `List testing requests, oldest first. Removed requests are hidden
unless --include-removed is set.

Examples:
  botctl requests --status pending
  botctl requests --tester 1234567890 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.RequestFilter{
				TesterDiscordID: opts.Tester,
				ExcludeRemoved:  !opts.IncludeRemoved,
			}
			if opts.App != "" {
				filter.AppIDs = []string{opts.App}
			}
			if opts.Status != "" {
				status := domain.RequestStatus(strings.ToUpper(opts.Status))
				if !status.Valid() {
					return fmt.Errorf("invalid status %q: must be pending, approved or rejected", opts.Status)
				}
				filter.Approval = domain.ApprovalFilter(status)
			}

			st, err := openStore(opts.RootOptions)
			if err != nil {
				return err
			}
			defer st.Close()

			requests, err := st.ListRequests(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), api.ConvertRequests(requests))
			}
			if len(requests) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No requests found")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTESTER\tAPP\tSTATUS\tREMOVED\tCREATED")
			for _, r := range requests {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
					r.ID, r.TesterDiscordID, r.AppName, r.Status, r.Removed, r.Created.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&opts.Tester, "tester", "", "filter by tester Discord ID")
	cmd.Flags().StringVar(&opts.App, "app", "", "filter by app ID")
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (pending|approved|rejected)")
	cmd.Flags().BoolVar(&opts.IncludeRemoved, "include-removed", false, "include removed requests")
	return cmd
}

// NewTesterCommand creates the tester command.
func NewTesterCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tester <discord-id>",
		Short: "Show a tester",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			tester, err := st.FindTester(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if tester == nil {
				return fmt.Errorf("no tester with Discord ID %s", args[0])
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), api.ConvertTester(tester))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:         %s\n", tester.ID)
			fmt.Fprintf(out, "Discord ID: %s\n", tester.DiscordID)
			fmt.Fprintf(out, "Username:   %s\n", tester.Username)
			fmt.Fprintf(out, "Name:       %s\n", tester.FullName())
			fmt.Fprintf(out, "Registered: %t\n", tester.HasEmail())
			if len(tester.LeaveMessageIDs) > 0 {
				fmt.Fprintf(out, "Left:       %s\n", strings.Join(tester.LeaveMessageIDs, ", "))
			}
			return nil
		},
	}
}
