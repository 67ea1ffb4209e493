package layout

import "strings"

// Line is one placed line of a fitted box. Start and End are rune offsets
// into the fitted text; Text excludes the break character.
type Line struct {
	Text       string
	Start, End int
	Width      float64
}

// Fitted is the result of filling a box with plain text.
type Fitted struct {
	Lines []Line

	// Consumed is the number of runes placed (including break characters).
	Consumed int

	// Leftover is the unplaced suffix of the text.
	Leftover string
}

// MaxLines is the number of lines a box of the given height holds.
func MaxLines(height float64, opts Options) int {
	opts = opts.WithDefaults()
	if height < opts.FontSize {
		return 0
	}
	return int(height / opts.LineHeight())
}

// Fit fills a width×height box with text, breaking at spaces, newlines and
// around wide runes, and reports the suffix that did not fit. A word wider
// than the box is broken between runes.
func Fit(text string, width, height float64, opts Options, m Measurer) Fitted {
	opts = opts.WithDefaults()
	runes := []rune(text)
	maxLines := MaxLines(height, opts)
	size := opts.FontSize

	var lines []Line
	pos := 0
	for len(lines) < maxLines && pos < len(runes) {
		start := pos
		end, resume := len(runes), len(runes)
		breakEnd, breakResume := -1, -1
		w := 0.0

	scan:
		for i := start; i < len(runes); i++ {
			r := runes[i]
			if r == '\n' {
				end, resume = i, i+1
				break scan
			}
			if i > start && (Wide(r) || Wide(runes[i-1])) && runes[i-1] != ' ' {
				breakEnd, breakResume = i, i
			}

			adv := m.Advance(r, size, StyleRegular)
			if w+adv > width && i > start {
				switch {
				case r == ' ':
					end, resume = i, i+1
				case breakEnd > start:
					end, resume = breakEnd, breakResume
				default:
					end, resume = i, i
				}
				break scan
			}
			w += adv
			if r == ' ' {
				breakEnd, breakResume = i, i+1
			}
		}

		lineText := string(runes[start:end])
		lines = append(lines, Line{
			Text:  strings.TrimRight(lineText, " \r"),
			Start: start,
			End:   end,
			Width: TextWidth(m, lineText, size, StyleRegular),
		})
		pos = resume
	}

	return Fitted{
		Lines:    lines,
		Consumed: pos,
		Leftover: string(runes[pos:]),
	}
}
