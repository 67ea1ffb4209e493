package pdfout

import (
	"errors"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrNoUnicodeFont is returned when text needs glyphs outside WinAnsi and
// no TrueType font is available.
var ErrNoUnicodeFont = errors.New("no font for non-Latin text: set layout.font_path to a TrueType font (e.g. SimHei or Noto Sans SC)")

// CJKProbe is the rune a system font must cover to be picked.
const CJKProbe = '中'

// SystemFonts are TrueType files with CJK coverage at their usual install
// locations. Collections (.ttc) and CFF fonts cannot be embedded and are
// not listed.
var SystemFonts = []string{
	"assets/fonts/SIMHEI.TTF",
	`C:\Windows\Fonts\simhei.ttf`,
	`C:\Windows\Fonts\simkai.ttf`,
	"/Library/Fonts/Arial Unicode.ttf",
	"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",
	"/usr/share/fonts/truetype/noto/NotoSansSC-Regular.ttf",
	"/usr/share/fonts/truetype/droid/DroidSansFallbackFull.ttf",
	"/usr/share/fonts/google-droid-sans-fonts/DroidSansFallbackFull.ttf",
	"/usr/share/fonts/droid/DroidSansFallbackFull.ttf",
}

// FindFont returns the first candidate that parses as an embeddable
// TrueType font and has a glyph for probe.
func FindFont(candidates []string, probe rune) (string, bool) {
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		face, err := parseTrueType(data)
		if err != nil {
			continue
		}
		if face.covers(probe) {
			return path, true
		}
	}
	return "", false
}

// WinAnsiOnly reports whether every rune of s can be drawn with the core
// fonts.
func WinAnsiOnly(s string) bool {
	for len(s) > 0 {
		r, n := utf8.DecodeRuneInString(s)
		s = s[n:]
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
			return false
		}
	}
	return true
}
