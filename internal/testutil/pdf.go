// Package testutil builds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"fmt"
	"strings"
)

// PageSpec describes one page of a generated test PDF.
type PageSpec struct {
	Width, Height float64
	Rotate        int
	// Content is the raw content stream. Empty draws a labelled box.
	Content string
}

// PDF returns a small, well-formed PDF with the given pages. Object layout:
// 1 catalog, 2 page tree, 3 Helvetica, then one page and one content stream
// per page.
func PDF(pages ...PageSpec) []byte {
	var buf bytes.Buffer
	offsets := []int{0}

	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets)-1, body)
	}

	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	writeObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, p := range pages {
		content := p.Content
		if content == "" {
			content = fmt.Sprintf("0 0 1 RG 10 10 %.2f %.2f re S BT /F1 24 Tf 20 %.2f Td (Page %d) Tj ET",
				p.Width-20, p.Height-20, p.Height-50, i+1)
		}
		rotate := ""
		if p.Rotate != 0 {
			rotate = fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		writeObj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.2f %.2f]%s /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			p.Width, p.Height, rotate, 5+2*i))
		writeObj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets))
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets[1:] {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets), xref)
	return buf.Bytes()
}

// Letter returns n plain US-letter pages.
func Letter(n int) []byte {
	pages := make([]PageSpec, n)
	for i := range pages {
		pages[i] = PageSpec{Width: 612, Height: 792}
	}
	return PDF(pages...)
}
