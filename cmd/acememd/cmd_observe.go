package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var observeCmd = &cobra.Command{
	Use:   "observe <user_input> <agent_output>",
	Short: "Enqueue an interaction for the reflection worker to analyze",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		s, err := mgr.Get(sessionID)
		if err != nil {
			return fmt.Errorf("opening session %q: %w", sessionID, err)
		}

		if err := s.Observe(context.Background(), args[0], args[1]); err != nil {
			return fmt.Errorf("observe: %w", err)
		}
		fmt.Println("queued")
		return nil
	},
}
