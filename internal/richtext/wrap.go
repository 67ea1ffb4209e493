package richtext

import (
	"strings"

	"github.com/smartlecturer/lecturer/internal/layout"
)

type token struct {
	text    string
	style   layout.FontStyle
	space   bool
	newline bool
	width   float64
}

// tokenize splits spans into words, single wide runes, spaces and newlines.
func (t *typesetter) tokenize(spans []span, size float64) []token {
	var toks []token
	for _, s := range spans {
		var word strings.Builder
		flush := func() {
			if word.Len() > 0 {
				toks = append(toks, t.token(word.String(), s.style, size))
				word.Reset()
			}
		}
		for _, r := range s.text {
			switch {
			case r == '\n':
				flush()
				toks = append(toks, token{newline: true})
			case r == ' ' || r == '\t':
				flush()
				tok := t.token(" ", s.style, size)
				tok.space = true
				toks = append(toks, tok)
			case layout.Wide(r):
				flush()
				toks = append(toks, t.token(string(r), s.style, size))
			default:
				word.WriteRune(r)
			}
		}
		flush()
	}
	return toks
}

func (t *typesetter) token(s string, style layout.FontStyle, size float64) token {
	return token{text: s, style: style, width: layout.TextWidth(t.m, s, size, style)}
}

// paragraph wraps spans into lines inside the box at the given indent.
// The marker, if any, hangs to the left of the first line.
func (t *typesetter) paragraph(spans []span, size, indent float64, marker string) {
	avail := t.box.X1 - t.box.X0 - indent
	if avail < size {
		indent = 0
		avail = t.box.X1 - t.box.X0
	}

	var (
		line  []token
		width float64
	)
	emit := func() bool {
		ok := t.line(line, size, indent, marker)
		marker = ""
		line, width = line[:0], 0
		return ok
	}

	toks := t.tokenize(spans, size)
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		switch {
		case tok.newline:
			if !emit() {
				return
			}
			continue
		case tok.space && len(line) == 0:
			continue
		}

		if width+tok.width > avail && len(line) > 0 {
			if !emit() {
				return
			}
			if tok.space {
				continue
			}
		}

		if tok.width > avail {
			// Break an over-long word between runes.
			head, rest := t.splitToken(tok, avail, size)
			line = append(line, head)
			if !emit() {
				return
			}
			if rest.text != "" {
				toks = append(toks[:i+1], append([]token{rest}, toks[i+1:]...)...)
			}
			continue
		}

		line = append(line, tok)
		width += tok.width
	}
	if len(line) > 0 || marker != "" {
		emit()
	}
}

func (t *typesetter) splitToken(tok token, avail, size float64) (token, token) {
	runes := []rune(tok.text)
	w := 0.0
	cut := 0
	for cut < len(runes) {
		adv := t.m.Advance(runes[cut], size, tok.style)
		if w+adv > avail && cut > 0 {
			break
		}
		w += adv
		cut++
	}
	return t.token(string(runes[:cut]), tok.style, size), t.token(string(runes[cut:]), tok.style, size)
}

// line places one line of tokens. It returns false once the box is full.
func (t *typesetter) line(toks []token, size, indent float64, marker string) bool {
	baseline := t.y + size
	if baseline > t.box.Y1 {
		t.res.Clipped = true
		return false
	}

	x := t.box.X0 + indent
	if marker != "" {
		mw := layout.TextWidth(t.m, marker+" ", size, layout.StyleRegular)
		t.res.Runs = append(t.res.Runs, Run{X: x - mw, Y: baseline, Text: marker, Size: size})
	}

	// Trailing spaces are not drawn.
	for len(toks) > 0 && toks[len(toks)-1].space {
		toks = toks[:len(toks)-1]
	}

	cur := -1
	for _, tok := range toks {
		if cur >= 0 && t.res.Runs[cur].Style == tok.style {
			t.res.Runs[cur].Text += tok.text
		} else {
			t.res.Runs = append(t.res.Runs, Run{X: x, Y: baseline, Text: tok.text, Size: size, Style: tok.style})
			cur = len(t.res.Runs) - 1
		}
		x += tok.width
	}

	t.y += size * t.opts.LineSpacing
	return true
}
