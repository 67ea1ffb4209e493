package richtext

import "regexp"

var (
	displayMath = regexp.MustCompile(`(?s)\$\$(.+?)\$\$`)
	inlineMath  = regexp.MustCompile(`(?s)\$(.+?)\$`)
)

// ProtectMath shields TeX from markdown interpretation: $$…$$ becomes a
// fenced code block and $…$ an inline code span.
func ProtectMath(s string) string {
	s = displayMath.ReplaceAllString(s, "\n```\n${1}\n```\n")
	return inlineMath.ReplaceAllString(s, "`${1}`")
}
