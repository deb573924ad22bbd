package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// osExit is indirected so tests can intercept process exits.
var osExit = os.Exit

// appContext carries the loaded configuration and logger into subcommands.
// PersistentPreRunE populates it before any RunE fires.
type appContext struct {
	cfg    *config.Config
	logger *zap.Logger
}

// newRootCmd builds the root command tree and the app context its
// subcommands share.
func newRootCmd() (*cobra.Command, *appContext) {
	app := &appContext{}
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "webpilot",
		Short: "Webpilot steers a real browser toward a goal you describe.",
		Long: `Webpilot drives a headless browser toward a natural-language goal.
Each step it reads the page, asks the configured model what to do next,
and executes the chosen action until the goal is met or the step budget
runs out.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, cfgFile); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "webpilot"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			if err := v.BindPFlag("logger.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "webpilot"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			app.cfg = cfg
			app.logger = observability.GetLogger()
			app.logger.Debug("Configuration loaded.", zap.String("version", Version))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./config.yaml, then ~/.webpilot/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "override the configured log level (debug, info, warn, error)")
	cmd.SetVersionTemplate(`{{printf "webpilot version %s\n" .Version}}`)

	cmd.AddCommand(
		newRunCmd(app),
		newServeCmd(app),
		newSessionsCmd(app),
		newLogsCmd(app),
		newVersionCmd(),
	)
	return cmd, app
}

// Execute runs the CLI with a signal-aware context. Interrupts cancel the
// command context so in-flight sessions terminate and persist their records.
func Execute() {
	root, _ := newRootCmd()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		observability.Sync()
		osExit(1)
	}
	observability.Sync()
}

// initializeConfig layers the config file and WEBPILOT_* environment
// variables into v. A missing config file is not an error.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".webpilot"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("WEBPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file found; defaults and environment apply.
	}
	return nil
}

// closeQuietly logs instead of failing the command when teardown errors.
func closeQuietly(logger *zap.Logger, component string, close func() error) {
	if err := close(); err != nil {
		logger.Warn("Close failed.", zap.String("component", component), zap.Error(err))
	}
}
