package codes

// Rank orders candidates for one pending entry. Precise candidates whose
// slot hint matches the entry text come first in original order, then the
// remaining precise candidates, then everything else. Codes already in
// the used set are excluded from every bucket.
func Rank(entryText string, candidates []Candidate, used map[string]bool) []Candidate {
	var slotMatched, precise, rest []Candidate
	seen := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		code := CanonicalCode(c.Code)
		if code == "" || used[code] {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		switch {
		case c.Provenance == ProvenancePrecise && SlotMatches(entryText, c.SlotHint):
			slotMatched = append(slotMatched, c)
		case c.Provenance == ProvenancePrecise:
			precise = append(precise, c)
		default:
			rest = append(rest, c)
		}
	}

	out := make([]Candidate, 0, len(slotMatched)+len(precise)+len(rest))
	out = append(out, slotMatched...)
	out = append(out, precise...)
	out = append(out, rest...)
	return out
}

// MarkUsed records a code as consumed. Called after any submission
// attempt, successful or not, so a rejected code is never retried
// against a different entry.
func MarkUsed(used map[string]bool, code string) {
	if code = CanonicalCode(code); code != "" {
		used[code] = true
	}
}
