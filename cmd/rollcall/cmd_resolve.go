package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rollcall/internal/codes"
	"rollcall/internal/config"
)

var (
	resolveCourse string
	resolveWeek   string
)

// resolveCmd prints the candidate chain without touching a browser
var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve candidate codes for a course/week without a browser",
	RunE:  resolveCodes,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveCourse, "course", "", "unit code, e.g. FIT1045")
	resolveCmd.Flags().StringVar(&resolveWeek, "week", "", "roster week number")
	_ = resolveCmd.MarkFlagRequired("course")
}

func resolveCodes(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	week := resolveWeek
	if week == "" {
		week = cfg.Run.Week
	}
	if week == "" {
		var ok bool
		if week, ok = codes.LatestLocalWeek(cfg.Data.Dir, resolveCourse); !ok {
			return fmt.Errorf("no week given and no local roster for %s", resolveCourse)
		}
	}

	agg := codes.NewAggregator(sourceConfig(cfg), logger)
	candidates := agg.Resolve(cmd.Context(), resolveCourse, week)
	if len(candidates) == 0 {
		fmt.Printf("no candidates for %s week %s\n", resolveCourse, week)
		return nil
	}

	fmt.Printf("%s week %s: %d candidate(s)\n", codes.CanonicalCourse(resolveCourse), week, len(candidates))
	for _, c := range candidates {
		slot := c.SlotHint
		if slot == "" {
			slot = "-"
		}
		fmt.Printf("  %-8s  slot=%-12s  %s/%s\n", c.Code, slot, c.Provenance, c.Confidence)
	}
	return nil
}
