package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rebuild the session's vector index from its document table",
	Long: `migrate re-encodes every stored document and replaces the vector index
contents from scratch - the maintenance path for recovering from a
corrupt or deleted index file without losing any documents.`,
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

		if err := s.Rebuild(context.Background()); err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
		fmt.Println("index rebuilt")
		return nil
	},
}
