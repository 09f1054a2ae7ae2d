// Package privacy removes user-marked private spans from text that arrives
// from agents before it is kept as a memory.
package privacy

import (
	"regexp"
	"strings"
)

var privateTagRegex = regexp.MustCompile(`(?s)<private>.*?</private>`)

// StripPrivateTags removes all <private>...</private> blocks from content.
func StripPrivateTags(content string) string {
	return strings.TrimSpace(privateTagRegex.ReplaceAllString(content, ""))
}

// HasOnlyPrivateContent reports whether nothing but private blocks and
// whitespace is left in content.
func HasOnlyPrivateContent(content string) bool {
	return StripPrivateTags(content) == ""
}
