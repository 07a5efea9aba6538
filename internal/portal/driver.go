package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"rollcall/internal/codes"
)

// Selector priority lists for the submission form. The named ASP.NET
// controls come first; the generic shapes cover theme variations.
var (
	codeInputSelectors = []string{
		"input[name='ctl00$ContentPlaceHolder1$txtAttendanceCode']",
		"#txtAttendanceCode",
		"input[id*='AttendanceCode']",
		"input[type='text']",
	}
	submitButtonSelectors = []string{
		"#btnSubmitAttendanceCode",
		"input[name='ctl00$ContentPlaceHolder1$btnSubmitAttendanceCode']",
		"input[id*='Submit']",
		"input[type='submit']",
		"button[type='submit']",
	}
)

// Outcome hint fragments, matched case-insensitively against the page
// after a submission.
var (
	successHints = []string{"attendance recorded", "successfully", "thank you"}
	errorHints   = []string{"invalid", "incorrect", "expired", "not recognised", "not recognized", "error"}
)

// Entry is one pending attendance row on a day panel.
type Entry struct {
	Anchor string
	Index  int
	Text   string
	Href   string
}

// Outcome reports what the portal said after a submission attempt.
type Outcome struct {
	Success bool
	Hint    string
}

// Driver performs schedule navigation and code submission on one page.
type Driver struct {
	page     *rod.Page
	baseURL  string
	timeout  time.Duration
	log      *zap.Logger
}

// NewDriver wraps an authenticated portal page.
func NewDriver(page *rod.Page, baseURL string, timeout time.Duration, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Driver{page: page, baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout, log: log}
}

func (d *Driver) scheduleURL() string {
	return d.baseURL + "/AttendanceInfo.aspx"
}

// Open navigates to the schedule page.
func (d *Driver) Open(ctx context.Context) error {
	page := d.page.Context(ctx).Timeout(d.timeout)
	if err := page.Navigate(d.scheduleURL()); err != nil {
		return fmt.Errorf("open schedule: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("schedule load: %w", err)
	}
	return nil
}

// Authenticated reports whether the portal accepted the restored
// session. A bounce to a login or SSO page means it did not.
func (d *Driver) Authenticated(ctx context.Context) bool {
	info, err := d.page.Context(ctx).Info()
	if err != nil || info == nil {
		return false
	}
	u := strings.ToLower(info.URL)
	for _, marker := range []string{"login", "signin", "sso", "authenticate"} {
		if strings.Contains(u, marker) {
			return false
		}
	}
	return true
}

// HTML returns the current page markup.
func (d *Driver) HTML(ctx context.Context) (string, error) {
	return d.page.Context(ctx).Timeout(d.timeout).HTML()
}

// EnrolledCourses scans the schedule page for unit codes.
func (d *Driver) EnrolledCourses(ctx context.Context) ([]string, error) {
	html, err := d.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	return CoursesFromHTML(html), nil
}

// PendingCourses scans for units that still have pending entries. Used
// as a fallback when the enrolment table yields nothing.
func (d *Driver) PendingCourses(ctx context.Context) ([]string, error) {
	html, err := d.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	return PendingCoursesFromHTML(html), nil
}

// DayAnchors reads the day selector options, falling back to day-panel
// element IDs, and returns parsed anchors sorted by date.
func (d *Driver) DayAnchors(ctx context.Context) ([]DayAnchor, error) {
	page := d.page.Context(ctx).Timeout(d.timeout)

	var ids []string
	if opts, err := page.Elements("#daySel option"); err == nil {
		for _, opt := range opts {
			if v, err := opt.Attribute("value"); err == nil && v != nil {
				ids = append(ids, *v)
			}
		}
	}
	if len(ids) == 0 {
		if panels, err := page.Elements("[id^='dayPanel_']"); err == nil {
			for _, p := range panels {
				if id, err := p.Attribute("id"); err == nil && id != nil {
					ids = append(ids, strings.TrimPrefix(*id, "dayPanel_"))
				}
			}
		}
	}

	anchors := ParseAnchors(ids)
	if len(anchors) == 0 {
		return nil, fmt.Errorf("no day anchors on schedule page")
	}
	return anchors, nil
}

// SelectDay switches the schedule view to one day anchor.
func (d *Driver) SelectDay(ctx context.Context, anchor DayAnchor) error {
	page := d.page.Context(ctx).Timeout(d.timeout)

	if sel, err := page.Element("#daySel"); err == nil {
		if err := sel.Select([]string{anchor.ID}, true, rod.SelectorTypeRegex); err == nil {
			time.Sleep(500 * time.Millisecond)
			return nil
		}
	}

	panel, err := page.Element("#dayPanel_" + anchor.ID)
	if err != nil {
		return fmt.Errorf("day %s not on page: %w", anchor.ID, err)
	}
	if err := panel.ScrollIntoView(); err != nil {
		d.log.Debug("day panel scroll failed", zap.String("anchor", anchor.ID), zap.Error(err))
	}
	return nil
}

// PendingEntries lists rows on the selected day that still want a code
// for the given course. Ticked and PASS-marked rows are excluded.
func (d *Driver) PendingEntries(ctx context.Context, anchor DayAnchor, course string) ([]Entry, error) {
	html, err := d.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read day panel: %w", err)
	}
	return pendingEntriesFromHTML(html, anchor, course), nil
}

// OpenEntry navigates into one pending entry's submission form.
func (d *Driver) OpenEntry(ctx context.Context, entry Entry) error {
	page := d.page.Context(ctx).Timeout(d.timeout)

	if entry.Href != "" {
		target := entry.Href
		if strings.HasPrefix(target, "/") {
			target = d.baseURL + target
		}
		if err := page.Navigate(target); err != nil {
			return fmt.Errorf("open entry: %w", err)
		}
		return page.WaitLoad()
	}

	links, err := page.Elements("a[href*='d=" + entry.Anchor + "']")
	if err != nil || len(links) == 0 {
		return fmt.Errorf("entry link not found for %s", entry.Anchor)
	}
	idx := entry.Index
	if idx >= len(links) {
		idx = 0
	}
	if err := links[idx].Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click entry: %w", err)
	}
	return page.WaitLoad()
}

// SubmitCode fills the code input, submits, and reads the outcome.
func (d *Driver) SubmitCode(ctx context.Context, code string) (Outcome, error) {
	page := d.page.Context(ctx).Timeout(d.timeout)

	input, err := firstElement(page, codeInputSelectors)
	if err != nil {
		return Outcome{}, fmt.Errorf("code input not found: %w", err)
	}
	if err := input.SelectAllText(); err == nil {
		_ = input.Input("")
	}
	if err := input.Input(code); err != nil {
		return Outcome{}, fmt.Errorf("type code: %w", err)
	}

	button, err := firstElement(page, submitButtonSelectors)
	if err != nil {
		return Outcome{}, fmt.Errorf("submit button not found: %w", err)
	}
	if err := button.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return Outcome{}, fmt.Errorf("click submit: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		d.log.Debug("post-submit load wait failed", zap.Error(err))
	}
	time.Sleep(time.Second)

	return d.readOutcome(ctx)
}

// BackToSchedule returns to the schedule page after an entry.
func (d *Driver) BackToSchedule(ctx context.Context) error {
	return d.Open(ctx)
}

func (d *Driver) readOutcome(ctx context.Context) (Outcome, error) {
	html, err := d.HTML(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("read outcome: %w", err)
	}
	lower := strings.ToLower(html)

	for _, hint := range successHints {
		if strings.Contains(lower, hint) {
			return Outcome{Success: true, Hint: hint}, nil
		}
	}
	if strings.Contains(lower, "tick.png") {
		return Outcome{Success: true, Hint: "tick indicator"}, nil
	}
	for _, hint := range errorHints {
		if strings.Contains(lower, hint) {
			return Outcome{Success: false, Hint: hint}, nil
		}
	}
	return Outcome{Success: false, Hint: "no outcome hint"}, nil
}

func firstElement(page *rod.Page, selectors []string) (*rod.Element, error) {
	var lastErr error
	for _, sel := range selectors {
		el, err := page.Element(sel)
		if err == nil {
			if visible, err := el.Visible(); err == nil && visible {
				return el, nil
			}
			continue
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no selector matched")
	}
	return nil, lastErr
}

// pendingEntriesFromHTML parses day-panel rows without touching the
// live DOM, keeping entry discovery testable against static markup.
func pendingEntriesFromHTML(html string, anchor DayAnchor, course string) []Entry {
	course = codes.CanonicalCourse(course)
	var out []Entry
	for i, row := range parsePendingRows(html, anchor.ID) {
		if course != "" && !strings.Contains(strings.ToUpper(row.text), course) {
			continue
		}
		out = append(out, Entry{
			Anchor: anchor.ID,
			Index:  i,
			Text:   row.text,
			Href:   row.href,
		})
	}
	return out
}
