package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rollcall/internal/config"
	"rollcall/internal/portal"
)

var (
	extractWeek         string
	extractForceRefresh bool
)

// extractCmd runs mailbox extraction on its own and prints the groups
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract codes from webmail and print them grouped by course",
	RunE:  extractCodes,
}

func init() {
	extractCmd.Flags().StringVar(&extractWeek, "week", "", "roster week number")
	extractCmd.Flags().BoolVar(&extractForceRefresh, "force-refresh", false, "bypass the mailbox result cache")
}

func extractCodes(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	mgr := portal.NewManager(mailBrowserConfig(cfg), logger)
	defer func() {
		if err := mgr.Shutdown(context.Background()); err != nil {
			logger.Warn("mailbox browser shutdown failed", zap.Error(err))
		}
	}()

	extractor, err := buildExtractor(ctx, cfg, mgr)
	if err != nil {
		return err
	}

	p := mailParams(cfg)
	p.Week = extractWeek
	if p.Week == "" {
		p.Week = cfg.Run.Week
	}
	p.ForceRefresh = p.ForceRefresh || extractForceRefresh

	grouped, err := extractor.Extract(ctx, p)
	if err != nil {
		return err
	}
	if len(grouped) == 0 {
		fmt.Println("no codes found")
		return nil
	}

	courses := make([]string, 0, len(grouped))
	for course := range grouped {
		courses = append(courses, course)
	}
	sort.Strings(courses)

	for _, course := range courses {
		fmt.Printf("%s:\n", course)
		for _, c := range grouped[course] {
			slot := c.SlotHint
			if slot == "" {
				slot = "-"
			}
			fmt.Printf("  %-8s  slot=%-12s  %s\n", c.Code, slot, c.Provenance)
		}
	}
	return nil
}
