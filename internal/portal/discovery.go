package portal

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"rollcall/internal/codes"
)

// CoursesFromHTML scans the schedule page for enrolled unit codes.
// Tables and headings are preferred; anything matching the unit token
// shape elsewhere in the body is a fallback.
func CoursesFromHTML(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	found := make(map[string]struct{})
	collect := func(_ int, s *goquery.Selection) {
		for _, m := range codes.CourseToken.FindAllString(strings.ToUpper(s.Text()), -1) {
			found[m] = struct{}{}
		}
	}

	doc.Find("table td, table th, h1, h2, h3, legend").Each(collect)
	if len(found) == 0 {
		doc.Find("body").Each(collect)
	}

	out := make([]string, 0, len(found))
	for c := range found {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// PendingAnchorsFromHTML pulls day-anchor tokens out of pending-entry
// links, which carry the target day as a d= query parameter.
func PendingAnchorsFromHTML(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	doc.Find("a[href*='d=']").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		anchor := anchorFromHref(href)
		if anchor == "" {
			return
		}
		if _, dup := seen[anchor]; dup {
			return
		}
		seen[anchor] = struct{}{}
		out = append(out, anchor)
	})
	return out
}

// PendingCoursesFromHTML lists unit codes that appear in rows still
// waiting on a code (question-mark indicator, no tick, not PASS).
func PendingCoursesFromHTML(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	found := make(map[string]struct{})
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if !rowIsPending(row) {
			return
		}
		for _, m := range codes.CourseToken.FindAllString(strings.ToUpper(row.Text()), -1) {
			found[m] = struct{}{}
		}
	})

	out := make([]string, 0, len(found))
	for c := range found {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func rowIsPending(row *goquery.Selection) bool {
	if row.Find("img[src*='tick']").Length() > 0 {
		return false
	}
	text := strings.ToUpper(row.Text())
	if strings.Contains(text, " PASS ") || strings.HasSuffix(strings.TrimSpace(text), "PASS") {
		return false
	}
	return row.Find("img[src*='question']").Length() > 0 ||
		row.Find("a[href*='d=']").Length() > 0
}

type pendingRow struct {
	text string
	href string
}

// parsePendingRows extracts pending rows for one day anchor. Rows
// inside the day's panel are preferred; rows anywhere whose entry link
// targets the anchor are the fallback for flat layouts.
func parsePendingRows(html, anchorID string) []pendingRow {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	scope := doc.Find("#dayPanel_" + anchorID + " tr")
	if scope.Length() == 0 {
		scope = doc.Find("tr").FilterFunction(func(_ int, row *goquery.Selection) bool {
			match := false
			row.Find("a[href*='d=']").Each(func(_ int, a *goquery.Selection) {
				if href, ok := a.Attr("href"); ok && anchorFromHref(href) == anchorID {
					match = true
				}
			})
			return match
		})
	}

	var out []pendingRow
	scope.Each(func(_ int, row *goquery.Selection) {
		if !rowIsPending(row) {
			return
		}
		r := pendingRow{text: strings.Join(strings.Fields(row.Text()), " ")}
		if a := row.Find("a[href*='d=']").First(); a.Length() > 0 {
			if href, ok := a.Attr("href"); ok {
				r.href = href
			}
		}
		out = append(out, r)
	})
	return out
}

func anchorFromHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	d := u.Query().Get("d")
	if d == "" {
		return ""
	}
	if _, err := ParseAnchor(d); err != nil {
		return ""
	}
	return d
}
