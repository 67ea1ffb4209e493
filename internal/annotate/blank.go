package annotate

import (
	"regexp"
	"sort"
	"unicode/utf8"
)

// DefaultMinChars is the shortest explanation that is not blank.
const DefaultMinChars = 10

// blankStrip matches whitespace plus ASCII and CJK punctuation and
// decorative characters.
var blankStrip = regexp.MustCompile("[\\s`~!@#$%^&*()\\-_=+\\[\\]{}|;:'\",.<>/?，。？！、·—【】（）《》“”‘’\\\\]+")

// IsBlank reports whether text carries fewer than minChars meaningful runes.
// A nil text is blank.
func IsBlank(text *string, minChars int) bool {
	if text == nil {
		return true
	}
	return IsBlankString(*text, minChars)
}

// IsBlankString is IsBlank for a present text.
func IsBlankString(text string, minChars int) bool {
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	return utf8.RuneCountInString(blankStrip.ReplaceAllString(text, "")) < minChars
}

// ExplanationMap maps 0-based page index to explanation text.
type ExplanationMap map[int]string

// Pages returns the keys in ascending order.
func (m ExplanationMap) Pages() []int {
	pages := make([]int, 0, len(m))
	for p := range m {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// BlankPages returns the pages among candidates whose explanation is absent
// or blank, in ascending order.
func BlankPages(m ExplanationMap, candidates []int, minChars int) []int {
	var blank []int
	for _, p := range candidates {
		text, ok := m[p]
		if !ok || IsBlankString(text, minChars) {
			blank = append(blank, p)
		}
	}
	sort.Ints(blank)
	return blank
}
