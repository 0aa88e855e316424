// Command bunlog queries, stores and serves structured log records.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunbase/bunlog/internal/logger"
)

func newRootCmd() *cobra.Command {
	var logCfg logger.Config
	root := &cobra.Command{
		Use:           "bunlog",
		Short:         "Query, store and serve structured logs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(logCfg)
		},
	}
	root.PersistentFlags().StringVar(&logCfg.Level, "log-level", "WARN", "Diagnostic log level (DEBUG, INFO, WARN, ERROR)")
	root.PersistentFlags().StringVar(&logCfg.Format, "log-format", "text", "Diagnostic log format (text, json)")

	root.AddCommand(
		newQueryCmd(),
		newValidateCmd(),
		newShellCmd(),
		newPipeCmd(),
		newServeCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bunlog:", err)
		os.Exit(1)
	}
}
