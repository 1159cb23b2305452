package media

import (
	"regexp"
	"strings"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	htmlTag     = regexp.MustCompile(`<[^>]*>`)
)

// Sanitize strips script blocks and markup from user text and trims it.
func Sanitize(input string) string {
	out := scriptBlock.ReplaceAllString(input, "")
	out = htmlTag.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
