// internal/cli/root.go
package stochprobe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/mwiater/stochprobe/internal/appconfig"
	"github.com/mwiater/stochprobe/internal/logging"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
)

var rootCmd = &cobra.Command{
	Use:          "stochprobe",
	Short:        "stochprobe — statistical probes of LLM sampling behaviour",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := logging.Init(cfg.LogFilePath()); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		currentConfig = &cfg

		if cfg.Debug {
			logging.LogEvent("[CONFIG] file=%q effective configuration:\n%s", cfg.ConfigPath, pp.Sprint(cfg))
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Close()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.yaml)")

	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("logFile", "", "append log output to this file")
	rootCmd.PersistentFlags().String("dataDir", "", "directory for result files")
	rootCmd.PersistentFlags().String("metricsFile", "", "write Prometheus metrics to this file after each run")

	bindFlags()
}

// bindFlags binds the persistent flags to viper keys (flags override config).
func bindFlags() {
	for _, name := range []string{"debug", "logFile", "dataDir", "metricsFile"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

// loadConfig merges .env, the config file, defaults and flags. The file is
// checked against the schema before viper reads it; a missing file is fine.
func loadConfig() (appconfig.Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return appconfig.Config{}, fmt.Errorf("load .env: %w", err)
	}

	appconfig.SetDefaults(viper.GetViper())
	if cfgFile != "" {
		if err := appconfig.ValidateFile(cfgFile); err != nil {
			return appconfig.Config{}, err
		}
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return appconfig.Config{}, fmt.Errorf("failed to load config: %w", err)
			}
		}
	}
	return appconfig.Load(viper.GetViper())
}

// getConfig returns the configuration loaded by the root command.
func getConfig() *appconfig.Config {
	return currentConfig
}
