// Package portal drives the attendance portal: browser session
// lifecycle, storage-state auth reuse, schedule discovery, day-anchor
// navigation, and code submission against pending entries.
package portal

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// monthAbbr is the portal's month vocabulary for day anchors. Parsing
// goes through this list rather than time.Parse so anchor IDs round-trip
// byte for byte.
var monthAbbr = []string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// DayAnchor is one day tab on the schedule page, identified by the
// portal's D_Mon_YY token (e.g. "20_Aug_25").
type DayAnchor struct {
	ID   string
	Date time.Time
}

// ParseAnchor decodes a D_Mon_YY token.
func ParseAnchor(id string) (DayAnchor, error) {
	parts := strings.Split(strings.TrimSpace(id), "_")
	if len(parts) != 3 {
		return DayAnchor{}, fmt.Errorf("malformed day anchor: %q", id)
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil || day < 1 || day > 31 {
		return DayAnchor{}, fmt.Errorf("malformed day in anchor: %q", id)
	}

	month := 0
	for i, abbr := range monthAbbr {
		if strings.EqualFold(parts[1], abbr) {
			month = i + 1
			break
		}
	}
	if month == 0 {
		return DayAnchor{}, fmt.Errorf("unknown month in anchor: %q", id)
	}

	year, err := strconv.Atoi(parts[2])
	if err != nil || year < 0 || year > 99 {
		return DayAnchor{}, fmt.Errorf("malformed year in anchor: %q", id)
	}

	date := time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day {
		return DayAnchor{}, fmt.Errorf("impossible date in anchor: %q", id)
	}
	return DayAnchor{ID: id, Date: date}, nil
}

// FormatAnchor renders a date back into the portal's anchor token.
func FormatAnchor(t time.Time) string {
	return fmt.Sprintf("%d_%s_%02d", t.Day(), monthAbbr[int(t.Month())-1], t.Year()%100)
}

// ParseAnchors parses a batch of tokens, dropping malformed ones, and
// returns the result sorted by ascending date.
func ParseAnchors(ids []string) []DayAnchor {
	out := make([]DayAnchor, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		a, err := ParseAnchor(id)
		if err != nil {
			continue
		}
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// MondayOf returns the Monday of the week containing t, at midnight UTC.
func MondayOf(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

// FilterWeek keeps anchors inside the Monday..Sunday window starting at
// monday. A zero monday leaves the set unchanged.
func FilterWeek(anchors []DayAnchor, monday time.Time) []DayAnchor {
	if monday.IsZero() {
		return anchors
	}
	sunday := monday.AddDate(0, 0, 6)
	out := make([]DayAnchor, 0, len(anchors))
	for _, a := range anchors {
		if a.Date.Before(monday) || a.Date.After(sunday) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// UpToToday drops anchors dated after today; future days have no codes
// and visiting them wastes the run budget.
func UpToToday(anchors []DayAnchor, today time.Time) []DayAnchor {
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]DayAnchor, 0, len(anchors))
	for _, a := range anchors {
		if a.Date.After(today) {
			continue
		}
		out = append(out, a)
	}
	return out
}
