package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/packetflow/knet"
	"github.com/packetflow/knet/config"
)

var (
	cfgFile  string
	logLevel string

	// activeConfig is loaded once in rootCmd's PersistentPreRunE and read by
	// every subcommand thereafter; it is the CLI's only mutable global.
	activeConfig config.Config
)

var rootCmd = &cobra.Command{
	Use:   "knet-chat",
	Short: "A minimal chat client/server built on the knet transport",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		activeConfig = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a knet config file (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config/env)")

	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(dialCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds a Logger at the level named by --log-level, falling back
// to the level resolved from activeConfig (file, KNET_LOG_LEVEL env, or the
// built-in default) when the flag was left unset.
func newLogger() knet.Logger {
	level := logLevel
	if level == "" {
		level = activeConfig.LogLevel
	}
	l := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return knet.NewLogrusLogger(l)
}
