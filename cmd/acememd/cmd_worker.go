package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"acemem/internal/logging"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the reflection worker for a session, with no recall/observe surface",
	Long: `worker is the dedicated background-processing deployment mode: it opens
the session's store and task queue purely to run the reflection worker,
for operators who split recall/observe traffic and reflection onto
separate processes sharing the same database file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		if _, err := mgr.Get(sessionID); err != nil {
			return fmt.Errorf("opening session %q: %w", sessionID, err)
		}

		logging.Reflection("acememd worker: running, session=%q", sessionID)
		waitForSignal()
		logging.Reflection("acememd worker: shutting down")
		return nil
	},
}
