package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"acemem/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the store and run the reflection worker until interrupted",
	Long: `serve opens the configured session's memory store and task queue,
starts its reflection worker, and blocks until SIGINT/SIGTERM - the
long-running mode an agent graph's sidecar process would run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		if _, err := mgr.Get(sessionID); err != nil {
			return fmt.Errorf("opening session %q: %w", sessionID, err)
		}

		logging.Boot("acememd serve: running, session=%q", sessionID)
		waitForSignal()
		logging.Boot("acememd serve: shutting down")
		return nil
	},
}
