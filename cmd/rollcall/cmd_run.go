package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rollcall/internal/cache"
	"rollcall/internal/codes"
	"rollcall/internal/config"
	"rollcall/internal/decode"
	"rollcall/internal/mailbox"
	"rollcall/internal/orchestrator"
	"rollcall/internal/portal"
)

var (
	runWeek         string
	runDryRun       bool
	runForceRefresh bool
)

// runCmd executes the full submission pipeline
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full attendance submission pipeline",
	Long: `Opens the portal with the saved login, resolves candidate codes for
every discovered course, and submits them day by day:
  1. Restore storage state, verify the session is accepted
  2. Discover courses (enrolment table, pending-entry fallback)
  3. Resolve codes (overrides, mailbox, feed, roster, inline)
  4. Walk day anchors and submit against pending entries`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runWeek, "week", "", "roster week (default: latest local week per course)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "rank and log candidates without submitting")
	runCmd.Flags().BoolVar(&runForceRefresh, "force-refresh", false, "bypass the mailbox result cache")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if runWeek != "" {
		cfg.Run.Week = runWeek
	}
	if cfg.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url is not configured")
	}

	mgr := portal.NewManager(browserConfig(cfg), logger)
	defer func() {
		if err := mgr.Shutdown(context.Background()); err != nil {
			logger.Warn("browser shutdown failed", zap.Error(err))
		}
	}()

	page, session, err := mgr.NewPage(ctx, cfg.Portal.BaseURL)
	if err != nil {
		return fmt.Errorf("open portal: %w", err)
	}
	driver := portal.NewDriver(page, cfg.Portal.BaseURL, navigationTimeout(cfg), logger)

	var mail orchestrator.MailSource
	var extractor *mailbox.Extractor
	if cfg.Mailbox.Enabled {
		// The mailbox gets its own browser instance: the webmail session
		// must never share cookies or profile state with the in-flight
		// portal session, and it may run visible while the portal stays
		// headless. The file-backed caches are the only state they share.
		mailMgr := portal.NewManager(mailBrowserConfig(cfg), logger)
		defer func() {
			if err := mailMgr.Shutdown(context.Background()); err != nil {
				logger.Warn("mailbox browser shutdown failed", zap.Error(err))
			}
		}()

		extractor, err = buildExtractor(ctx, cfg, mailMgr)
		if err != nil {
			logger.Warn("mailbox unavailable, continuing without it", zap.Error(err))
		} else {
			mail = extractor
		}
	}

	agg := codes.NewAggregator(sourceConfig(cfg), logger)

	weekStart, _ := cfg.WeekStart()
	opts := orchestrator.Options{
		Week:          cfg.Run.Week,
		WeekStart:     weekStart,
		DataDir:       cfg.Data.Dir,
		GlobalTimeout: cfg.GlobalTimeout(),
		DayDelayMin:   time.Duration(cfg.Run.DayDelayMinMs) * time.Millisecond,
		DayDelayMax:   time.Duration(cfg.Run.DayDelayMaxMs) * time.Millisecond,
		Retry: orchestrator.RetryPolicy{
			Attempts: cfg.Run.RetryAttempts,
			Backoff:  time.Duration(cfg.Run.RetryBackoffMs) * time.Millisecond,
		},
		DryRun: runDryRun,
		Mail:   mailParams(cfg),
	}

	o := orchestrator.New(driver, agg, mail, opts, logger)
	report, runErr := o.Run(ctx)
	printReport(report)

	if err := mgr.SaveState(session.ID); err != nil {
		logger.Warn("storage state refresh failed", zap.Error(err))
	}
	if cfg.Mailbox.PurgeAfter && extractor != nil {
		if err := extractor.PurgeCache(); err != nil {
			logger.Warn("mailbox cache purge failed", zap.Error(err))
		}
	}
	return runErr
}

// buildExtractor opens a webmail page in the dedicated mailbox browser
// and wires extraction behind it. mgr must be the mailbox manager, not
// the portal one.
func buildExtractor(ctx context.Context, cfg config.Config, mgr *portal.Manager) (*mailbox.Extractor, error) {
	mailPage, _, err := mgr.NewPage(ctx, mailBaseURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("open webmail: %w", err)
	}

	backend, err := decode.SelectBackend(ctx, decodeOptions(cfg), logger)
	if err != nil {
		return nil, err
	}

	httpFetcher, err := decode.NewHTTPFetcher()
	if err != nil {
		return nil, err
	}
	fetcher := decode.ChainFetcher{
		decode.NewPageFetcher(mailPage),
		httpFetcher,
		decode.CurlFetcher{},
	}

	ocrStore := cache.New(cfg.Decode.CachePath, cfg.Decode.CacheTTLMinutes, logger)
	decoder := decode.NewDecoder(backend, fetcher, ocrStore, logger)

	mailStore := cache.New(cfg.Mailbox.CachePath, cfg.Mailbox.CacheTTLMinutes, logger)
	webmail := mailbox.NewWebmailDriver(mailPage, cfg.Mailbox.BaseURL, logger)
	return mailbox.NewExtractor(webmail, decoder, mailStore, logger), nil
}

func printReport(report orchestrator.Report) {
	if report.DryRun {
		fmt.Println("dry run: no codes were submitted")
	}
	for _, c := range report.Courses {
		fmt.Printf("%s (week %s): %d submitted, %d failed, %d skipped\n",
			c.Course, c.Week, c.Submitted, c.Failed, c.Skipped)
	}
}

func browserConfig(cfg config.Config) portal.Config {
	return portal.Config{
		DebuggerURL:         cfg.Browser.DebuggerURL,
		Bin:                 cfg.Browser.Bin,
		Headless:            cfg.Browser.Headless,
		ViewportWidth:       cfg.Browser.ViewportWidth,
		ViewportHeight:      cfg.Browser.ViewportHeight,
		NavigationTimeoutMs: cfg.Browser.NavigationTimeoutMs,
		SessionStore:        cfg.Browser.SessionStore,
		StorageState:        cfg.Browser.StorageState,
	}
}

// mailBrowserConfig is the configuration for the second, independent
// browser instance the mailbox runs in. It restores the same storage
// state but carries its own headless flag and no session store, so the
// two browsers share nothing mutable beyond the cache files.
func mailBrowserConfig(cfg config.Config) portal.Config {
	return portal.Config{
		Bin:                 cfg.Browser.Bin,
		Headless:            cfg.Mailbox.Headless,
		ViewportWidth:       cfg.Browser.ViewportWidth,
		ViewportHeight:      cfg.Browser.ViewportHeight,
		NavigationTimeoutMs: cfg.Browser.NavigationTimeoutMs,
		StorageState:        cfg.Browser.StorageState,
	}
}

func sourceConfig(cfg config.Config) codes.SourceConfig {
	return codes.SourceConfig{
		BaseURL:   cfg.Data.BaseURL,
		DataDir:   cfg.Data.Dir,
		CodesURL:  cfg.Data.CodesURL,
		CodesFile: cfg.Data.CodesFile,
		Inline:    cfg.Data.Inline,
	}
}

func decodeOptions(cfg config.Config) decode.Options {
	return decode.Options{
		Policy:       cfg.Decode.Policy,
		GeminiAPIKey: cfg.Decode.GeminiAPIKey,
		GeminiModel:  cfg.Decode.GeminiModel,
		OpenAIAPIKey: cfg.Decode.OpenAIAPIKey,
		OpenAIModel:  cfg.Decode.OpenAIModel,
	}
}

func mailParams(cfg config.Config) mailbox.Params {
	return mailbox.Params{
		SearchDays:    cfg.Mailbox.SearchDays,
		MaxMessages:   cfg.Mailbox.MaxMessages,
		DomainHint:    cfg.Mailbox.DomainHint,
		Identity:      cfg.Mailbox.Identity,
		QueryOverride: cfg.Mailbox.QueryOverride,
		ForceRefresh:  runForceRefresh || cfg.Mailbox.ForceRefresh,
		DataDir:       cfg.Data.Dir,
	}
}

func mailBaseURL(cfg config.Config) string {
	if cfg.Mailbox.BaseURL != "" {
		return cfg.Mailbox.BaseURL
	}
	return "https://mail.google.com/mail/u/0/"
}

func navigationTimeout(cfg config.Config) time.Duration {
	return time.Duration(cfg.Browser.NavigationTimeoutMs) * time.Millisecond
}
