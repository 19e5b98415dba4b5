package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"acemem/internal/agentmem"
	"acemem/internal/embedding"
	"acemem/internal/oracle"
)

// newManager wires an agentmem.Manager from the loaded config - the shared
// construction path every subcommand that touches the store goes through.
func newManager() (*agentmem.Manager, error) {
	engine, err := embedding.GetShared(loadedConfig.Embedding)
	if err != nil {
		return nil, fmt.Errorf("constructing embedding engine: %w", err)
	}

	oracleCli, err := oracle.NewClient(loadedConfig.Oracle)
	if err != nil {
		return nil, fmt.Errorf("constructing oracle client: %w", err)
	}

	return agentmem.NewManager(loadedConfig.Store, loadedConfig.Embedding, engine, oracleCli, loadedConfig.Reflection), nil
}

// waitForSignal blocks until SIGINT/SIGTERM, for subcommands whose job is
// to keep a background worker alive rather than return a result.
func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
