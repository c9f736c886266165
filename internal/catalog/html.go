package catalog

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// plainText reduces HTML-formatted cells (syllabus exports often carry
// <p>/<li> markup) to text with one line per block. Cells without markup
// are returned unchanged.
func plainText(raw string) string {
	if !strings.Contains(raw, "<") || !strings.Contains(raw, ">") {
		return raw
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	doc.Find("br, p, li, div, tr, h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml("\n")
	})
	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("- ")
	})

	lines := strings.Split(doc.Text(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
