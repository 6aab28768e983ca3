package main

import (
	"os"

	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Concurrency drills for the inventory service",
	Long: `loadtest hammers a single product ledger with concurrent reservations
and reports how each reservation algorithm and cache mode holds up.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every failed request")
}

// newLogger writes to the console. It stays in production mode so an
// invariant violation is reported instead of panicking mid-drill.
func newLogger() logger.ZapLogger {
	level := "info"
	if verbose {
		level = "debug"
	}
	return logger.NewZapLogger(&logger.ZapLoggerConfig{
		Encoding:          "console",
		Level:             level,
		DisableCaller:     true,
		DisableStacktrace: true,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		l := newLogger()
		l.Error("command failed", zap.Error(err))
		_ = l.Sync()
		os.Exit(1)
	}
}
