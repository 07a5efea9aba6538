package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rollcall/internal/cache"
	"rollcall/internal/config"
)

// purgeCmd drops both on-disk caches
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete the mailbox and image-decode caches",
	RunE:  purgeCaches,
}

func purgeCaches(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	stores := []*cache.Store{
		cache.New(cfg.Mailbox.CachePath, cfg.Mailbox.CacheTTLMinutes, logger),
		cache.New(cfg.Decode.CachePath, cfg.Decode.CacheTTLMinutes, logger),
	}
	for _, s := range stores {
		if err := s.Purge(); err != nil {
			return fmt.Errorf("purge %s: %w", s.Path(), err)
		}
		fmt.Printf("purged %s\n", s.Path())
	}
	return nil
}
