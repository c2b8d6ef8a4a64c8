package config_test

import (
	"fmt"

	"github.com/wonny/stockbt/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	// Access configuration values
	fmt.Printf("Data source: %s (%s)\n", cfg.Data.Source, cfg.Data.Dir)
	fmt.Printf("Results: %s, retention %s\n", cfg.Results.Backend, cfg.Results.Retention)
}
