package extractor

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	htmlPolicy = bluemonday.StrictPolicy()

	blockBoundary = regexp.MustCompile(`(?i)<\s*(/\s*(p|div|li|tr|h[1-6]|section|article|table|blockquote)|br\s*/?)\s*>`)
	blankRuns     = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLines    = regexp.MustCompile(`\n{3,}`)
)

// extractHTML strips all markup and keeps block boundaries as line breaks.
// Script and style bodies are dropped by the policy.
func extractHTML(data []byte) string {
	marked := blockBoundary.ReplaceAllStringFunc(decodeText(data), func(tag string) string {
		return tag + "\n"
	})
	text := html.UnescapeString(htmlPolicy.Sanitize(marked))

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(blankRuns.ReplaceAllString(line, " "))
	}
	return blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
}
