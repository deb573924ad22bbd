package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/api"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/credentials"
	"github.com/xkilldash9x/webpilot/internal/provider"
	"github.com/xkilldash9x/webpilot/internal/store"
)

// newServeCmd creates the `serve` command: the HTTP/SSE front door over a
// shared browser, provider and store.
func newServeCmd(app *appContext) *cobra.Command {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session API over HTTP",
		Long: `Serve starts the HTTP front door. Launch sessions with POST /api/sessions,
inspect them with GET /api/sessions and GET /api/sessions/{id}, and follow
live step events on GET /api/sessions/{id}/events (server-sent events).
Set WEBPILOT_SERVER_AUTH_SECRET to require bearer tokens on /api.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := app.cfg
			logger := app.logger
			if addr != "" {
				cfg.Server.Addr = addr
			}

			sessionStore, err := store.New(ctx, cfg.Store, logger)
			if err != nil {
				return fmt.Errorf("initializing session store: %w", err)
			}
			defer closeQuietly(logger, "session store", sessionStore.Close)

			decider, err := provider.New(cfg.Provider, logger)
			if err != nil {
				return fmt.Errorf("initializing decision provider: %w", err)
			}
			defer closeQuietly(logger, "decision provider", decider.Close)

			vault, err := credentials.Load(cfg.Credentials.File, logger)
			if err != nil {
				logger.Warn("Credential vault unavailable.", zap.Error(err))
			}

			manager, err := browser.NewManager(ctx, cfg.Browser, logger)
			if err != nil {
				return fmt.Errorf("starting browser: %w", err)
			}
			defer func() {
				// In-flight sessions get a grace period to finish and persist.
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Browser shutdown reported an error.", zap.Error(err))
				}
			}()

			start := func(runCtx context.Context, params api.LaunchParams, observer agent.StepObserver) (string, func() (*schemas.SessionRecord, error), error) {
				agentCfg := cfg.Agent
				if params.MaxSteps > 0 {
					agentCfg.MaxSteps = params.MaxSteps
				}

				id := agent.NewSessionID()
				session, err := manager.NewSession(runCtx, id)
				if err != nil {
					return "", nil, fmt.Errorf("opening browser session: %w", err)
				}

				pilot, err := agent.New(agentCfg, logger, agent.Deps{
					ID:          id,
					Browser:     session,
					Provider:    decider,
					Store:       sessionStore,
					Credentials: vault,
					Observer:    observer,
				})
				if err != nil {
					session.Close(runCtx)
					return "", nil, err
				}

				run := func() (*schemas.SessionRecord, error) {
					return pilot.Run(runCtx, params.StartURL, params.Goal)
				}
				return pilot.SessionID(), run, nil
			}

			service := api.NewSessionService(start, cfg.Server.MaxSessions, logger)
			handlers := api.NewHandlers(logger, service, sessionStore, cfg.Server.AuthSecret)
			server := api.NewServer(cfg.Server, logger, handlers)

			return server.Start(ctx)
		},
	}

	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return serveCmd
}
