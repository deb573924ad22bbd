package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/credentials"
	"github.com/xkilldash9x/webpilot/internal/provider"
	"github.com/xkilldash9x/webpilot/internal/store"
)

// newRunCmd creates the `run` command: one goal-driven session in the
// foreground, record printed when it finishes.
func newRunCmd(app *appContext) *cobra.Command {
	var (
		goal     string
		startURL string
		maxSteps int
		headful  bool
		jsonOut  bool
	)

	runCmd := &cobra.Command{
		Use:     "run",
		Short:   "Run one goal-driven browser session in the foreground",
		Example: `  webpilot run -u https://shop.example.com -g "add oat milk to the cart and check out"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.cfg
			if maxSteps > 0 {
				cfg.Agent.MaxSteps = maxSteps
			}
			if headful {
				cfg.Browser.Headless = false
			}

			rec, err := runSession(cmd.Context(), cfg, app.logger, goal, startURL)
			if rec != nil {
				printRecord(cmd, rec, jsonOut)
			}
			if err != nil {
				return err
			}
			if rec.Status != schemas.StatusCompleted {
				return fmt.Errorf("session ended with status %s", rec.Status)
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&goal, "goal", "g", "", "natural-language goal for the session")
	runCmd.Flags().StringVarP(&startURL, "url", "u", "", "URL the session starts from")
	runCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "override the configured step budget")
	runCmd.Flags().BoolVar(&headful, "headful", false, "run the browser with a visible window")
	runCmd.Flags().BoolVar(&jsonOut, "json", false, "print the full session record as JSON")
	runCmd.MarkFlagRequired("goal")
	runCmd.MarkFlagRequired("url")

	return runCmd
}

// runSession wires the store, provider, credential vault and browser, then
// drives one session to completion. The agent persists the record and
// releases its tab on every exit path; only the process-level pieces are
// torn down here.
func runSession(ctx context.Context, cfg *config.Config, logger *zap.Logger, goal, startURL string) (*schemas.SessionRecord, error) {
	sessionStore, err := store.New(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing session store: %w", err)
	}
	defer closeQuietly(logger, "session store", sessionStore.Close)

	decider, err := provider.New(cfg.Provider, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing decision provider: %w", err)
	}
	defer closeQuietly(logger, "decision provider", decider.Close)

	vault, err := credentials.Load(cfg.Credentials.File, logger)
	if err != nil {
		// A broken vault never blocks a run; the session starts logged out.
		logger.Warn("Credential vault unavailable.", zap.Error(err))
	}

	manager, err := browser.NewManager(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, fmt.Errorf("starting browser: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown reported an error.", zap.Error(err))
		}
	}()

	id := agent.NewSessionID()
	session, err := manager.NewSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("opening browser session: %w", err)
	}

	pilot, err := agent.New(cfg.Agent, logger, agent.Deps{
		ID:          id,
		Browser:     session,
		Provider:    decider,
		Store:       sessionStore,
		Credentials: vault,
	})
	if err != nil {
		session.Close(ctx)
		return nil, err
	}

	return pilot.Run(ctx, startURL, goal)
}

// printRecord renders the finished session for a terminal reader. A "json"
// output hint from the model (or the --json flag) prints machine-readable
// output instead of the summary.
func printRecord(cmd *cobra.Command, rec *schemas.SessionRecord, jsonOut bool) {
	out := cmd.OutOrStdout()

	if jsonOut {
		if data, err := json.MarshalIndent(rec, "", "  "); err == nil {
			fmt.Fprintln(out, string(data))
		}
		return
	}
	if rec.OutputFormat == "json" && len(rec.Extracted) > 0 {
		if data, err := json.MarshalIndent(rec.Extracted, "", "  "); err == nil {
			fmt.Fprintln(out, string(data))
		}
		return
	}

	title := rec.OutputTitle
	if title == "" {
		title = "Session " + rec.ID
	}
	fmt.Fprintf(out, "\n%s\n", title)
	fmt.Fprintf(out, "  status:  %s\n", rec.Status)
	fmt.Fprintf(out, "  steps:   %d\n", rec.Steps)
	fmt.Fprintf(out, "  elapsed: %s\n", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond))
	if last := rec.LastEntry(); last != nil && last.Reasoning != "" {
		fmt.Fprintf(out, "  outcome: %s\n", last.Reasoning)
	}
	if len(rec.Extracted) > 0 {
		if data, err := json.MarshalIndent(rec.Extracted, "", "  "); err == nil {
			fmt.Fprintf(out, "  extracted:\n%s\n", string(data))
		}
	}
}
