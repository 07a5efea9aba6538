package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rollcall/internal/config"
	"rollcall/internal/portal"
)

// stateCmd inspects the saved login without launching a browser
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Check whether the saved storage state looks usable",
	RunE:  checkState,
}

func checkState(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	path := cfg.Browser.StorageState
	if path == "" {
		return fmt.Errorf("browser.storage_state is not configured")
	}
	if !portal.StorageStateEffective(path) {
		return fmt.Errorf("storage state at %s carries no cookies; log in and capture it again", path)
	}
	fmt.Printf("storage state at %s looks usable\n", path)
	return nil
}
