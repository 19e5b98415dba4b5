package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var recallK int

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search the memory store and print matching document contents",
	Args:  cobra.ExactArgs(1),
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

		results, err := s.Recall(context.Background(), args[0], recallK)
		if err != nil {
			return fmt.Errorf("recall: %w", err)
		}

		if len(results) == 0 {
			fmt.Println("(no matches)")
			return nil
		}
		for i, r := range results {
			fmt.Printf("[%d] %s\n", i+1, r)
		}
		return nil
	},
}

func init() {
	recallCmd.Flags().IntVar(&recallK, "k", 5, "Maximum number of results")
}
