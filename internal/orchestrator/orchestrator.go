// Package orchestrator runs the day-by-day submission loop: course
// discovery, candidate resolution, entry matching, bounded submission
// retries, and pacing, all under one wall-clock budget.
package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"rollcall/internal/codes"
	"rollcall/internal/mailbox"
	"rollcall/internal/portal"
)

// Fatal run conditions the CLI maps to distinct exit codes.
var (
	ErrNoCourses        = errors.New("no courses discovered")
	ErrRunDeadline      = errors.New("run wall-clock budget exhausted")
	ErrNotAuthenticated = errors.New("portal session not authenticated")
)

// Portal is the DOM surface the orchestrator drives. portal.Driver is
// the production implementation; tests substitute a fake.
type Portal interface {
	Open(ctx context.Context) error
	Authenticated(ctx context.Context) bool
	EnrolledCourses(ctx context.Context) ([]string, error)
	PendingCourses(ctx context.Context) ([]string, error)
	DayAnchors(ctx context.Context) ([]portal.DayAnchor, error)
	SelectDay(ctx context.Context, anchor portal.DayAnchor) error
	PendingEntries(ctx context.Context, anchor portal.DayAnchor, course string) ([]portal.Entry, error)
	OpenEntry(ctx context.Context, entry portal.Entry) error
	SubmitCode(ctx context.Context, code string) (portal.Outcome, error)
	BackToSchedule(ctx context.Context) error
}

// MailSource resolves mailbox-extracted candidates grouped by course.
type MailSource interface {
	Extract(ctx context.Context, p mailbox.Params) (map[string][]codes.Candidate, error)
}

// Options tunes one run.
type Options struct {
	// Week selects the roster week; empty means latest local week per
	// course.
	Week string
	// WeekStart bounds day anchors to this Monday's week when set.
	WeekStart time.Time
	DataDir   string

	// GlobalTimeout is the run's wall-clock budget; zero disables it.
	GlobalTimeout time.Duration
	// DayDelayMin/Max bound the randomized sleep between day visits.
	DayDelayMin time.Duration
	DayDelayMax time.Duration

	Retry  RetryPolicy
	DryRun bool

	Mail mailbox.Params
}

// CourseResult summarizes one course's outcomes.
type CourseResult struct {
	Course    string
	Week      string
	Submitted int
	Failed    int
	Skipped   int
}

// Report is the run summary.
type Report struct {
	Courses []CourseResult
	DryRun  bool
}

// Orchestrator wires the loop's collaborators.
type Orchestrator struct {
	portal Portal
	agg    *codes.Aggregator
	mail   MailSource
	opts   Options
	log    *zap.Logger

	now   func() time.Time
	sleep func(time.Duration)
	rng   *rand.Rand
}

// New builds an orchestrator. Mail may be nil (mailbox disabled).
func New(p Portal, agg *codes.Aggregator, mail MailSource, opts Options, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		portal: p,
		agg:    agg,
		mail:   mail,
		opts:   opts,
		log:    log,
		now:    time.Now,
		sleep:  time.Sleep,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes the full pipeline and returns a summary. A deadline or
// missing-course condition surfaces as a sentinel error alongside the
// partial report.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	report := Report{DryRun: o.opts.DryRun}

	var deadline time.Time
	if o.opts.GlobalTimeout > 0 {
		deadline = o.now().Add(o.opts.GlobalTimeout)
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	if err := o.portal.Open(ctx); err != nil {
		return report, err
	}
	if !o.portal.Authenticated(ctx) {
		return report, ErrNotAuthenticated
	}

	courses, err := o.discoverCourses(ctx)
	if err != nil {
		return report, err
	}

	for _, course := range courses {
		result, err := o.runCourse(ctx, course, deadline)
		report.Courses = append(report.Courses, result)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func (o *Orchestrator) discoverCourses(ctx context.Context) ([]string, error) {
	courses, err := o.portal.EnrolledCourses(ctx)
	if err != nil {
		o.log.Warn("enrolment scan failed", zap.Error(err))
	}
	if len(courses) == 0 {
		courses, err = o.portal.PendingCourses(ctx)
		if err != nil {
			o.log.Warn("pending scan failed", zap.Error(err))
		}
	}
	if len(courses) == 0 {
		return nil, ErrNoCourses
	}
	o.log.Info("courses discovered", zap.Strings("courses", courses))
	return courses, nil
}

func (o *Orchestrator) runCourse(ctx context.Context, course string, deadline time.Time) (CourseResult, error) {
	result := CourseResult{Course: course}

	week := o.opts.Week
	if week == "" {
		var ok bool
		if week, ok = codes.LatestLocalWeek(o.opts.DataDir, course); !ok {
			o.log.Warn("no week configured and no local roster, skipping course",
				zap.String("course", course))
			result.Skipped++
			return result, nil
		}
	}
	result.Week = week

	candidates := o.resolveCandidates(ctx, course, week)
	if len(candidates) == 0 {
		o.log.Info("no candidates for course",
			zap.String("course", course), zap.String("week", week))
		result.Skipped++
		return result, nil
	}

	anchors, err := o.portal.DayAnchors(ctx)
	if err != nil {
		o.log.Warn("day anchors unavailable", zap.String("course", course), zap.Error(err))
		result.Skipped++
		return result, nil
	}
	anchors = portal.FilterWeek(anchors, o.weekMonday(candidates))
	anchors = portal.UpToToday(anchors, o.now())

	used := make(map[string]bool)

	for i, anchor := range anchors {
		if !deadline.IsZero() && !o.now().Before(deadline) {
			o.log.Warn("run budget exhausted",
				zap.String("course", course), zap.String("anchor", anchor.ID))
			return result, ErrRunDeadline
		}

		if err := o.portal.SelectDay(ctx, anchor); err != nil {
			o.log.Warn("day select failed", zap.String("anchor", anchor.ID), zap.Error(err))
			continue
		}

		entries, err := o.portal.PendingEntries(ctx, anchor, course)
		if err != nil {
			o.log.Warn("entry scan failed", zap.String("anchor", anchor.ID), zap.Error(err))
			continue
		}

		for _, entry := range entries {
			ranked := codes.Rank(entry.Text, candidates, used)
			if len(ranked) == 0 {
				o.log.Info("no unused candidates left for entry",
					zap.String("anchor", anchor.ID), zap.String("entry", entry.Text))
				result.Skipped++
				continue
			}
			if o.opts.DryRun {
				o.log.Info("dry run: would submit",
					zap.String("anchor", anchor.ID),
					zap.String("entry", entry.Text),
					zap.String("code", ranked[0].Code),
					zap.String("provenance", string(ranked[0].Provenance)))
				result.Skipped++
				continue
			}
			if o.submitEntry(ctx, entry, ranked, used) {
				result.Submitted++
			} else {
				result.Failed++
			}
		}

		if i < len(anchors)-1 {
			o.pause()
		}
	}
	return result, nil
}

// submitEntry tries ranked candidates against one entry until the
// portal confirms. Every tried code is marked used whatever happened,
// so it is never replayed against another entry.
func (o *Orchestrator) submitEntry(ctx context.Context, entry portal.Entry, ranked []codes.Candidate, used map[string]bool) bool {
	if err := o.portal.OpenEntry(ctx, entry); err != nil {
		o.log.Warn("entry open failed", zap.String("entry", entry.Text), zap.Error(err))
		return false
	}
	defer func() {
		if err := o.portal.BackToSchedule(ctx); err != nil {
			o.log.Warn("return to schedule failed", zap.Error(err))
		}
	}()

	for _, cand := range ranked {
		var outcome portal.Outcome
		err := o.opts.Retry.Do(ctx, func() error {
			var submitErr error
			outcome, submitErr = o.portal.SubmitCode(ctx, cand.Code)
			return submitErr
		})
		codes.MarkUsed(used, cand.Code)

		if err != nil {
			o.log.Warn("submission failed",
				zap.String("entry", entry.Text), zap.String("code", cand.Code), zap.Error(err))
			continue
		}
		if outcome.Success {
			o.log.Info("attendance recorded",
				zap.String("entry", entry.Text),
				zap.String("code", cand.Code),
				zap.String("provenance", string(cand.Provenance)),
				zap.String("hint", outcome.Hint))
			return true
		}
		o.log.Info("code rejected",
			zap.String("entry", entry.Text),
			zap.String("code", cand.Code),
			zap.String("hint", outcome.Hint))
	}
	return false
}

func (o *Orchestrator) resolveCandidates(ctx context.Context, course, week string) []codes.Candidate {
	if o.agg != nil {
		if overrides := o.agg.SlotOverrides(); len(overrides) > 0 {
			o.log.Info("using slot overrides", zap.Int("count", len(overrides)))
			return overrides
		}
	}

	if o.mail != nil {
		p := o.opts.Mail
		p.Week = week
		p.DataDir = o.opts.DataDir
		grouped, err := o.mail.Extract(ctx, p)
		if err != nil {
			o.log.Warn("mailbox extraction failed", zap.Error(err))
		} else {
			list := append([]codes.Candidate{}, grouped[codes.CanonicalCourse(course)]...)
			list = append(list, grouped[mailbox.UnknownCourse]...)
			if list = codes.Dedupe(list); len(list) > 0 {
				o.log.Info("using mailbox candidates",
					zap.String("course", course), zap.Int("count", len(list)))
				return list
			}
		}
	}

	if o.agg == nil {
		return nil
	}
	return o.agg.Resolve(ctx, course, week)
}

// weekMonday derives the anchor window from an explicit week start or,
// failing that, from the earliest parseable candidate date hint.
func (o *Orchestrator) weekMonday(candidates []codes.Candidate) time.Time {
	if !o.opts.WeekStart.IsZero() {
		return portal.MondayOf(o.opts.WeekStart)
	}
	var earliest time.Time
	for _, c := range candidates {
		if c.DateHint == "" {
			continue
		}
		d, err := time.Parse("2006-01-02", c.DateHint)
		if err != nil {
			continue
		}
		if earliest.IsZero() || d.Before(earliest) {
			earliest = d
		}
	}
	if earliest.IsZero() {
		return time.Time{}
	}
	return portal.MondayOf(earliest)
}

// pause sleeps a randomized interval between day visits so runs do not
// hammer the portal at machine speed.
func (o *Orchestrator) pause() {
	min, max := o.opts.DayDelayMin, o.opts.DayDelayMax
	if max <= 0 {
		return
	}
	if min < 0 {
		min = 0
	}
	d := min
	if max > min {
		d = min + time.Duration(o.rng.Int63n(int64(max-min)))
	}
	o.sleep(d)
}
