package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	debug       bool
	dataDir     string
	groupName   string
	noReuse     bool
	selectorSet string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "kitchenwatch",
	Short: "Kitchen alert dispatcher for WhatsApp Web",
	Long: `kitchenwatch watches the kitchen-management database and sends alerts
(low stock, cleaning reminders, packing materials, gas level) into one fixed
WhatsApp group by driving a Chrome session over the DevTools protocol.

It prefers reattaching to an already-authenticated Chrome started with
--remote-debugging-port; otherwise it launches its own persistent profile so
the WhatsApp login survives restarts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if debug {
			config = zap.NewDevelopmentConfig()
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "verbose debug logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "state directory (default: OS config dir)")
	rootCmd.PersistentFlags().StringVar(&groupName, "group", "", "override the target group name")
	rootCmd.PersistentFlags().BoolVar(&noReuse, "no-reuse-session", false, "use a disposable browser profile instead of the persistent one")
	rootCmd.PersistentFlags().StringVar(&selectorSet, "selectors", "", "path to a selector override file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
