package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webpilot/internal/store"
)

func newSessionsCmd(app *appContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored session records",
	}
	sessionsCmd.AddCommand(newSessionsListCmd(app), newSessionsShowCmd(app))
	return sessionsCmd
}

func newSessionsListCmd(app *appContext) *cobra.Command {
	var limit int

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionStore, err := store.New(ctx, app.cfg.Store, app.logger)
			if err != nil {
				return fmt.Errorf("initializing session store: %w", err)
			}
			defer closeQuietly(app.logger, "session store", sessionStore.Close)

			summaries, err := sessionStore.ListSessions(ctx, limit)
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}
			if len(summaries) == 0 {
				cmd.Println("No stored sessions.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tSTEPS\tSTARTED\tGOAL")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					s.ID, s.Status, s.Steps,
					s.StartedAt.Local().Format("2006-01-02 15:04:05"),
					ellipsize(s.Goal, 60))
			}
			return w.Flush()
		},
	}

	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of sessions to list (0 for all)")
	return listCmd
}

func newSessionsShowCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print one stored session record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionStore, err := store.New(ctx, app.cfg.Store, app.logger)
			if err != nil {
				return fmt.Errorf("initializing session store: %w", err)
			}
			defer closeQuietly(app.logger, "session store", sessionStore.Close)

			rec, err := sessionStore.GetSession(ctx, args[0])
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("session %s not found", args[0])
				}
				return fmt.Errorf("loading session: %w", err)
			}

			data, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding session record: %w", err)
			}
			cmd.Println(string(data))
			return nil
		},
	}
}

func ellipsize(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
