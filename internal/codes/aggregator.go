package codes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	feedUserAgent = "rollcall/1.0"
	feedTimeout   = 20 * time.Second
)

// slotOverridePattern matches per-slot environment overrides such as
// LAB_01=AB12CD, yielding the slot label "LAB 01".
var slotOverridePattern = regexp.MustCompile(`^([A-Z]+)_([0-9]+)$`)

// SourceConfig selects and parameterizes the aggregation sources.
type SourceConfig struct {
	// BaseURL is the root of the auto-discovery feed; the per-course
	// roster is fetched from {BaseURL}/data/{COURSE}/{week}.json.
	BaseURL string
	// DataDir holds local rosters under {DataDir}/{COURSE}/{week}.json.
	DataDir string
	// CodesURL is an explicit roster URL override.
	CodesURL string
	// CodesFile is an explicit roster file override.
	CodesFile string
	// Inline is a literal "slot:code;slot:code" list; bare codes allowed.
	Inline string
	// Environ is the process environment to scan for per-slot
	// overrides; defaults to os.Environ when nil.
	Environ []string
}

// Aggregator resolves candidate codes for a course/week by walking a
// fixed source priority chain. Resolution never fails the run: a
// malformed source logs and falls through, and an empty result is valid.
type Aggregator struct {
	cfg    SourceConfig
	client *http.Client
	log    *zap.Logger
}

// NewAggregator builds an aggregator. A nil logger is replaced with a nop.
func NewAggregator(cfg SourceConfig, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		cfg:    cfg,
		client: &http.Client{Timeout: feedTimeout},
		log:    log,
	}
}

// SlotOverrides scans the environment for LAB_01-style variables and
// returns them as precise candidates. Their presence short-circuits
// every other source, mailbox extraction included, because they apply
// across all courses at once.
func (a *Aggregator) SlotOverrides() []Candidate {
	environ := a.cfg.Environ
	if environ == nil {
		environ = os.Environ()
	}

	var out []Candidate
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		m := slotOverridePattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if !IsValidCode(value) {
			continue
		}
		slot := m[1] + " " + m[2]
		out = append(out, NewCandidate(value, slot, ProvenancePrecise, ConfidenceHigh))
	}
	return Dedupe(out)
}

// Resolve walks the source chain for one course/week and returns the
// first non-empty candidate set.
func (a *Aggregator) Resolve(ctx context.Context, course, week string) []Candidate {
	course = CanonicalCourse(course)
	week = CanonicalWeek(week)

	if list := a.SlotOverrides(); len(list) > 0 {
		a.log.Info("codes resolved from slot overrides", zap.Int("count", len(list)))
		return list
	}

	if a.cfg.BaseURL != "" {
		url := fmt.Sprintf("%s/data/%s/%s.json", strings.TrimRight(a.cfg.BaseURL, "/"), course, week)
		if list := a.fetchRoster(ctx, url); len(list) > 0 {
			a.log.Info("codes resolved from remote feed",
				zap.String("course", course), zap.String("week", week), zap.Int("count", len(list)))
			return list
		}
	}

	if a.cfg.DataDir != "" {
		entries, err := LoadLocalRoster(a.cfg.DataDir, course, week)
		if err != nil && !os.IsNotExist(err) {
			a.log.Warn("local roster unreadable", zap.String("course", course), zap.Error(err))
		}
		if list := RosterCandidates(entries); len(list) > 0 {
			a.log.Info("codes resolved from local roster",
				zap.String("course", course), zap.String("week", week), zap.Int("count", len(list)))
			return list
		}
	}

	if a.cfg.CodesURL != "" {
		if list := a.fetchRoster(ctx, a.cfg.CodesURL); len(list) > 0 {
			a.log.Info("codes resolved from codes URL", zap.Int("count", len(list)))
			return list
		}
	}

	if a.cfg.CodesFile != "" {
		data, err := os.ReadFile(a.cfg.CodesFile)
		if err != nil {
			a.log.Warn("codes file unreadable", zap.String("path", a.cfg.CodesFile), zap.Error(err))
		} else if entries, err := ParseRoster(data); err != nil {
			a.log.Warn("codes file malformed", zap.String("path", a.cfg.CodesFile), zap.Error(err))
		} else if list := RosterCandidates(entries); len(list) > 0 {
			a.log.Info("codes resolved from codes file", zap.Int("count", len(list)))
			return list
		}
	}

	if a.cfg.Inline != "" {
		if list := ParseInline(a.cfg.Inline); len(list) > 0 {
			a.log.Info("codes resolved from inline list", zap.Int("count", len(list)))
			return list
		}
	}

	a.log.Info("no codes resolved", zap.String("course", course), zap.String("week", week))
	return nil
}

func (a *Aggregator) fetchRoster(ctx context.Context, url string) []Candidate {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		a.log.Warn("roster request invalid", zap.String("url", url), zap.Error(err))
		return nil
	}
	req.Header.Set("User-Agent", feedUserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Warn("roster fetch failed", zap.String("url", url), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.Debug("roster fetch non-200", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		a.log.Warn("roster read failed", zap.String("url", url), zap.Error(err))
		return nil
	}

	entries, err := ParseRoster(data)
	if err != nil {
		a.log.Warn("roster malformed", zap.String("url", url), zap.Error(err))
		return nil
	}
	return RosterCandidates(entries)
}

// ParseInline parses a literal "slot:code;slot:code" list. Entries
// without a colon are treated as bare codes.
func ParseInline(inline string) []Candidate {
	var out []Candidate
	for _, part := range strings.Split(inline, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		slot, code, ok := strings.Cut(part, ":")
		if !ok {
			slot, code = "", part
		}
		c := NewCandidate(code, slot, ProvenanceInline, ConfidenceHigh)
		if IsValidCode(c.Code) {
			out = append(out, c)
		}
	}
	return Dedupe(out)
}
