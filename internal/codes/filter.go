package codes

import "regexp"

var (
	codeShape   = regexp.MustCompile(`^[A-Z0-9]+$`)
	courseShape = regexp.MustCompile(`^[A-Z]{3}\d{4}$`)
	// CourseToken matches unit codes embedded in free text, e.g. "FIT1045".
	CourseToken = regexp.MustCompile(`\b[A-Z]{2,4}\d{4}\b`)
	// codePattern pulls candidate tokens out of free text before filtering.
	codePattern = regexp.MustCompile(`\b[A-Z0-9]{4,8}\b`)
)

// stopWords are common uppercase tokens that look like codes but never are.
var stopWords = map[string]struct{}{
	"HTTP": {}, "HTTPS": {}, "HTML": {}, "CSS": {}, "JSON": {}, "XML": {},
	"USER": {}, "PASS": {}, "LOGIN": {}, "AUTH": {}, "TEST": {}, "DEMO": {},
	"ADMIN": {}, "ROOT": {}, "NULL": {}, "TRUE": {}, "FALSE": {},
}

// IsValidCode reports whether a token is plausibly an attendance code:
// 4-8 uppercase alphanumerics containing at least one letter and one
// digit, not a stop word, and not shaped like a unit code.
func IsValidCode(raw string) bool {
	code := CanonicalCode(raw)
	if len(code) < 4 || len(code) > 8 {
		return false
	}
	if !codeShape.MatchString(code) {
		return false
	}
	if _, stop := stopWords[code]; stop {
		return false
	}
	if courseShape.MatchString(code) {
		return false
	}
	hasLetter, hasDigit := false, false
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// FilterValid keeps only candidates whose codes pass IsValidCode.
func FilterValid(list []Candidate) []Candidate {
	out := make([]Candidate, 0, len(list))
	for _, c := range list {
		if IsValidCode(c.Code) {
			out = append(out, c)
		}
	}
	return out
}

// ExtractFromText pulls every valid-looking code token out of free text.
// The text is scanned as-is; tokens are canonicalized before filtering
// so lowercase codes in message bodies are still caught.
func ExtractFromText(text string) []string {
	matches := codePattern.FindAllString(toUpperASCII(text), -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if !IsValidCode(m) {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func toUpperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
