package tools

import "unicode/utf8"

// maxOutputChars is the Unicode-safe output cap every canonical tool applies
// to its for_llm payload, per spec.md §4.4.
const maxOutputChars = 30000

// truncateMiddle keeps the first two-thirds and the last third of the
// allowed length and drops the middle when s is over maxOutputChars runes,
// so a huge file or search result still shows its head and tail rather than
// being cut off at the end. The result, marker included, is exactly
// maxOutputChars runes.
func truncateMiddle(s string) string {
	if utf8.RuneCountInString(s) <= maxOutputChars {
		return s
	}
	runes := []rune(s)
	marker := "\n...[truncated]...\n"
	keep := maxOutputChars - utf8.RuneCountInString(marker)
	head := keep * 2 / 3
	tail := keep - head
	return string(runes[:head]) + marker + string(runes[len(runes)-tail:])
}
