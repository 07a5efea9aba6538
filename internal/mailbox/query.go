// Package mailbox extracts attendance-code candidates from a webmail
// account: a scoped search, a bounded message scan, text extraction
// from subjects and bodies, and vision decoding of embedded images,
// all behind a TTL result cache.
package mailbox

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultSearchDays  = 7
	defaultMaxMessages = 4
)

// BuildQuery assembles the webmail search string. The window runs from
// searchDays ago through tomorrow so messages landing today are caught.
func BuildQuery(domainHint, week string, searchDays int, now time.Time) string {
	if searchDays <= 0 {
		searchDays = defaultSearchDays
	}

	parts := []string{"attendance codes"}
	if domainHint != "" {
		parts = append(parts, domainHint)
	}
	if week != "" {
		parts = append(parts, fmt.Sprintf("week %s", week))
	}
	after := now.AddDate(0, 0, -searchDays)
	before := now.AddDate(0, 0, 1)
	parts = append(parts,
		"after:"+after.Format("2006/01/02"),
		"before:"+before.Format("2006/01/02"),
	)
	return strings.Join(parts, " ")
}
