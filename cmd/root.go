// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/browser"
	"github.com/xkilldash9x/storewalk/internal/config"
	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// flagKeys maps command line flags onto the configuration keys they override.
var flagKeys = map[string]string{
	"url":      "journey.base_url",
	"query":    "journey.query",
	"runs":     "journey.runs",
	"parallel": "journey.parallelism",
	"headless": "browser.headless",
	"browser":  "browser.kind",
	"engine":   "browser.engine",
	"report":   "report.path",
	"format":   "report.format",
	"store":    "store.url",
}

// openerFactory builds the session opener for a browser configuration.
type openerFactory func(cfg config.BrowserConfig, logger *zap.Logger) (driver.Opener, error)

// dependencies are the outside-world collaborators of the commands.
type dependencies struct {
	openers openerFactory
	stores  storeProvider
}

func defaultDependencies() dependencies {
	return dependencies{
		openers: func(cfg config.BrowserConfig, logger *zap.Logger) (driver.Opener, error) {
			o, err := browser.NewOpener(cfg, logger)
			if err != nil {
				return nil, err
			}
			return o, nil
		},
		stores: NewStoreProvider(),
	}
}

// Execute runs the root command with ctx, which should be canceled on
// interrupt.
func Execute(ctx context.Context) error {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, ErrJourneysFailed) {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
		}
		return err
	}
	return nil
}

// NewRootCommand creates a fresh command tree. Every call has its own flag
// and configuration state.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultDependencies())
}

func newRootCommand(deps dependencies) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:          "storewalk",
		Short:        "Storewalk drives a scripted shopper journey through a storefront.",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "storewalk"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting storewalk", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(newRunCmd(deps))
	rootCmd.AddCommand(newShowCmd(deps))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// initializeConfig reads the config file and binds the flags of the
// executing command. Precedence is flag, environment, file, default.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return bindErr
	}

	if raw := v.GetString("journey.base_url"); raw != normalizeURL(raw) {
		v.Set("journey.base_url", normalizeURL(raw))
	}
	return nil
}

// getConfigFromContext returns the configuration loaded by the root command.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	if ctx == nil {
		return nil, errors.New("command context is not set")
	}
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration is not loaded")
	}
	return cfg, nil
}

// normalizeURL adds a scheme to bare host names.
func normalizeURL(raw string) string {
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}
