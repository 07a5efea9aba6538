package codes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// RosterEntry is one row of a published code roster for a course/week.
type RosterEntry struct {
	Slot string `json:"slot,omitempty"`
	Date string `json:"date,omitempty"`
	Code string `json:"code"`
}

// ParseRoster decodes roster JSON. Three shapes are accepted: a bare
// entry list, an object wrapping the list under "codes", and a flat
// slot->code map.
func ParseRoster(data []byte) ([]RosterEntry, error) {
	var entries []RosterEntry
	if err := json.Unmarshal(data, &entries); err == nil {
		return entries, nil
	}

	var wrapped struct {
		Codes []RosterEntry `json:"codes"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Codes) > 0 {
		return wrapped.Codes, nil
	}

	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err == nil && len(flat) > 0 {
		entries = make([]RosterEntry, 0, len(flat))
		for slot, code := range flat {
			entries = append(entries, RosterEntry{Slot: slot, Code: code})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Slot < entries[j].Slot })
		return entries, nil
	}

	return nil, fmt.Errorf("unrecognized roster format")
}

// RosterCandidates turns roster entries into candidates: entries bound
// to a slot become precise, the rest fallback. Invalid codes are dropped.
func RosterCandidates(entries []RosterEntry) []Candidate {
	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		prov := ProvenanceFallback
		if strings.TrimSpace(e.Slot) != "" {
			prov = ProvenancePrecise
		}
		c := NewCandidate(e.Code, e.Slot, prov, ConfidenceHigh)
		c.DateHint = strings.TrimSpace(e.Date)
		if IsValidCode(c.Code) {
			out = append(out, c)
		}
	}
	return Dedupe(out)
}

// ApplyRoster upgrades extracted candidates using a local roster: a
// candidate whose code appears in the roster inherits the roster's slot
// and becomes precise, everything else keeps its provenance.
func ApplyRoster(entries []RosterEntry, found []Candidate) []Candidate {
	bySlot := make(map[string]RosterEntry, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Slot) == "" {
			continue
		}
		bySlot[CanonicalCode(e.Code)] = e
	}

	out := make([]Candidate, 0, len(found))
	for _, c := range found {
		if e, ok := bySlot[CanonicalCode(c.Code)]; ok {
			up := NewCandidate(c.Code, e.Slot, ProvenancePrecise, ConfidenceHigh)
			up.DateHint = e.Date
			up.CourseHint = c.CourseHint
			out = append(out, up)
			continue
		}
		out = append(out, c)
	}
	return out
}

// RosterPath returns the on-disk roster location for a course/week.
func RosterPath(dataDir, course, week string) string {
	return filepath.Join(dataDir, CanonicalCourse(course), CanonicalWeek(week)+".json")
}

// LoadLocalRoster reads and parses {dataDir}/{COURSE}/{week}.json.
func LoadLocalRoster(dataDir, course, week string) ([]RosterEntry, error) {
	data, err := os.ReadFile(RosterPath(dataDir, course, week))
	if err != nil {
		return nil, err
	}
	return ParseRoster(data)
}

// LatestLocalWeek scans a course's data directory for the numerically
// highest week roster.
func LatestLocalWeek(dataDir, course string) (string, bool) {
	dir := filepath.Join(dataDir, CanonicalCourse(course))
	names, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	best := -1
	for _, e := range names {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		if n > best {
			best = n
		}
	}
	if best < 0 {
		return "", false
	}
	return strconv.Itoa(best), true
}
