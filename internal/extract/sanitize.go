package extract

import (
	"regexp"
	"strings"
)

// MinContentLength is the threshold below which an extraction is considered
// to have failed: anything shorter is navigation chrome, not an article.
const MinContentLength = 150

var (
	multiSpace   = regexp.MustCompile(` {2,}`)
	multiNewline = regexp.MustCompile(`\n{3,}`)

	// Patterns that mark a text as leaked code rather than prose: inline
	// JavaScript, JSON-LD blobs, CSS, analytics snippets.
	garbagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`var\s+\w+\s*=`),
		regexp.MustCompile(`function\s*\(`),
		regexp.MustCompile(`\(function\s*\(`),
		regexp.MustCompile(`window\[|document\.`),
		regexp.MustCompile(`\.push\(|\.apply\(`),
		regexp.MustCompile(`(?i)<iframe\s`),
		regexp.MustCompile(`src\s*=\s*["']//`),
		regexp.MustCompile(`\{["']@context["']`),
		regexp.MustCompile(`@media\s+\(`),
		regexp.MustCompile(`GoogleTag|gtag\(|_gaq\.`),
		regexp.MustCompile(`(?s)^.{0,50}\{.*\}.{0,50}$`),
	}
)

// Sanitize normalizes whitespace in extracted text: line endings, tabs,
// non-breaking and zero-width spaces, runs of blanks.
func Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.ReplaceAll(s, "​", "")
	s = multiSpace.ReplaceAllString(s, " ")
	s = multiNewline.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// IsGarbage reports whether text looks like code or markup debris instead of
// article prose. Too-short text counts as garbage.
func IsGarbage(text string) bool {
	if len(strings.TrimSpace(text)) < MinContentLength {
		return true
	}
	for _, p := range garbagePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
