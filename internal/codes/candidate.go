// Package codes models attendance-code candidates: where a code came from,
// how strongly it is tied to a timetable slot, and how candidates are
// filtered, deduplicated, and ranked against a pending entry.
package codes

import "strings"

// Provenance records which pipeline stage produced a candidate.
type Provenance string

const (
	// ProvenancePrecise marks a candidate whose originating roster
	// explicitly ties it to a named slot. Requires a non-empty SlotHint.
	ProvenancePrecise Provenance = "precise"
	// ProvenanceFallback marks a roster candidate with no slot binding.
	ProvenanceFallback Provenance = "fallback"
	// ProvenanceText marks a code found in a message subject or preview.
	ProvenanceText Provenance = "text"
	// ProvenanceTextBody marks a code found in an opened message body.
	ProvenanceTextBody Provenance = "text_body"
	// ProvenanceOCR marks a code decoded from an image by a vision backend.
	ProvenanceOCR Provenance = "ocr"
	// ProvenanceCached marks a candidate replayed from the result cache.
	ProvenanceCached Provenance = "cached"
	// ProvenanceInline marks a candidate from an inline slot:code list or
	// a per-slot environment override.
	ProvenanceInline Provenance = "inline"
)

// Confidence is a coarse trust level attached to a candidate.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Candidate is one attendance code plus the hints that travelled with it.
type Candidate struct {
	Code       string     `json:"code"`
	SlotHint   string     `json:"slot,omitempty"`
	DateHint   string     `json:"date,omitempty"`
	CourseHint string     `json:"course,omitempty"`
	Provenance Provenance `json:"provenance"`
	Confidence Confidence `json:"confidence"`
}

// NewCandidate builds a candidate with a canonical (uppercased, trimmed)
// code. A precise provenance without a slot hint is downgraded to
// fallback so the precise invariant holds everywhere downstream.
func NewCandidate(code, slot string, prov Provenance, conf Confidence) Candidate {
	c := Candidate{
		Code:       CanonicalCode(code),
		SlotHint:   strings.TrimSpace(slot),
		Provenance: prov,
		Confidence: conf,
	}
	if c.Provenance == ProvenancePrecise && c.SlotHint == "" {
		c.Provenance = ProvenanceFallback
	}
	return c
}

// CanonicalCode uppercases and trims a raw code string.
func CanonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CanonicalCourse strips a course token down to uppercase alphanumerics.
func CanonicalCourse(course string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(course)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalWeek keeps only the digits of a week designator ("Week 6" -> "6").
func CanonicalWeek(week string) string {
	var b strings.Builder
	for _, r := range week {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}

// Dedupe removes duplicate codes case-insensitively, preserving order.
// The first occurrence wins, which keeps the highest-priority provenance
// when sources are appended in priority order.
func Dedupe(list []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(list))
	out := make([]Candidate, 0, len(list))
	for _, c := range list {
		key := CanonicalCode(c.Code)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
