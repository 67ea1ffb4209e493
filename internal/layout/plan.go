package layout

import "strings"

// ShortText is the length at or below which a single column is always used.
const ShortText = 500

// splitFloor is the earliest point, as a fraction of a column's span, at
// which a separator may end the column.
const splitFloor = 0.75

// separators end a column cleanly. Cuts go after the separator.
const separators = "。！？；，、：.!?;,:\n "

// Plan is the column arrangement for one page.
type Plan struct {
	Columns  int
	Rects    []ColumnRect
	Segments []string

	// Leftovers holds text the columns could not take. Only the last entry
	// is ever set by planning; it is carried to the continuation page.
	Leftovers []string
}

// Overflow reports whether any text was deferred.
func (p Plan) Overflow() bool {
	for _, l := range p.Leftovers {
		if l != "" {
			return true
		}
	}
	return false
}

// Text reassembles the planned text.
func (p Plan) Text() string {
	var b strings.Builder
	for _, s := range p.Segments {
		b.WriteString(s)
	}
	for _, l := range p.Leftovers {
		b.WriteString(l)
	}
	return b.String()
}

// ChooseColumns returns the smallest column count whose capacity covers
// textLen, or MaxColumns.
func ChooseColumns(srcWidth, srcHeight float64, textLen int, opts Options) int {
	if textLen <= ShortText {
		return 1
	}
	for n := 1; n <= MaxColumns; n++ {
		if totalCapacity(Columns(srcWidth, srcHeight, n, opts, 0)) >= textLen {
			return n
		}
	}
	return MaxColumns
}

// PlanPage chooses a column count and partitions text across the columns.
func PlanPage(srcWidth, srcHeight float64, text string, opts Options) Plan {
	opts = opts.WithDefaults()
	runes := []rune(text)
	n := ChooseColumns(srcWidth, srcHeight, len(runes), opts)
	rects := Columns(srcWidth, srcHeight, n, opts, 0)
	segments, leftovers := Partition(runes, rects)
	return Plan{
		Columns:   n,
		Rects:     rects,
		Segments:  segments,
		Leftovers: leftovers,
	}
}

// Partition splits text across rects. If the text fits the total capacity
// each column gets a share proportional to its capacity and the last takes
// the exact remainder. Otherwise every column but the last is filled to
// capacity and the remainder is returned as the last leftover, leaving the
// last segment empty.
func Partition(text []rune, rects []ColumnRect) (segments, leftovers []string) {
	n := len(rects)
	segments = make([]string, n)
	leftovers = make([]string, n)
	if n == 0 {
		return segments, leftovers
	}

	total := totalCapacity(rects)
	fits := len(text) <= total

	start := 0
	for i := 0; i < n-1; i++ {
		var share int
		if fits {
			if total > 0 {
				share = len(text) * rects[i].Capacity / total
			}
		} else {
			share = rects[i].Capacity
		}
		end := min(start+share, len(text))
		end = cutPoint(text, start, end)
		segments[i] = string(text[start:end])
		start = end
	}

	// A lone column always takes the text; placement measures what fits.
	if fits || n == 1 {
		segments[n-1] = string(text[start:])
	} else {
		leftovers[n-1] = string(text[start:])
	}
	return segments, leftovers
}

// cutPoint moves end back to just after the nearest separator that lies no
// earlier than splitFloor of the span. Without one, end is kept.
func cutPoint(text []rune, start, end int) int {
	if end >= len(text) || end <= start {
		return end
	}
	floor := start + int(float64(end-start)*splitFloor)
	for i := end - 1; i >= floor && i >= start; i-- {
		if strings.ContainsRune(separators, text[i]) {
			return i + 1
		}
	}
	return end
}

func totalCapacity(rects []ColumnRect) int {
	total := 0
	for _, r := range rects {
		total += r.Capacity
	}
	return total
}
