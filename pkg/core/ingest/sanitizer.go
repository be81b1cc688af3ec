// Package ingest converts documents saved from patient portals and
// insurer websites into the plain text the pipeline consumes. Portal
// exports are HTML with heavy chrome; billing data lives in tables.
package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLSanitizer flattens portal HTML into line-oriented plain text. Table
// rows become tab-separated lines so charge tables survive as the
// "description  code  amount" lines the classifier and extractors expect.
type HTMLSanitizer struct {
	tableCount int
}

func NewHTMLSanitizer() *HTMLSanitizer {
	return &HTMLSanitizer{}
}

var multiBlankRe = regexp.MustCompile(`\n{3,}`)

// Sanitize parses the HTML and returns plain text. Input that does not
// parse as HTML comes back trimmed but otherwise untouched, so plain-text
// documents can pass through the same entry point.
func (s *HTMLSanitizer) Sanitize(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	s.removeChrome(doc)
	s.flattenTables(doc)
	s.markBlocks(doc)

	body := doc.Find("body")
	text := body.Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	return tidy(text), nil
}

// TableCount reports how many tables the last Sanitize call flattened.
func (s *HTMLSanitizer) TableCount() int {
	return s.tableCount
}

// removeChrome strips everything that is portal navigation rather than
// document content.
func (s *HTMLSanitizer) removeChrome(doc *goquery.Document) {
	doc.Find("script, style, noscript, iframe, svg").Remove()
	doc.Find("nav, header, footer, aside").Remove()
	doc.Find("[hidden], [style*='display:none'], [style*='display: none'], [aria-hidden='true']").Remove()

	doc.Find("img").Each(func(i int, sel *goquery.Selection) {
		alt, _ := sel.Attr("alt")
		if strings.TrimSpace(alt) != "" {
			sel.ReplaceWithHtml(" " + alt + " ")
			return
		}
		sel.Remove()
	})

	// Cookie banners, print buttons and the like.
	doc.Find("button, [role='button'], [class*='cookie'], [class*='banner'], [id*='cookie']").Remove()
}

// flattenTables rewrites each table as tab-separated rows. Cell order is
// preserved; header rows come out like any other row.
func (s *HTMLSanitizer) flattenTables(doc *goquery.Document) {
	s.tableCount = 0
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		s.tableCount++
		var rows []string
		table.Find("tr").Each(func(j int, tr *goquery.Selection) {
			var cells []string
			tr.Find("th, td").Each(func(k int, cell *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(collapseSpace(cell.Text())))
			})
			if row := strings.TrimSpace(strings.Join(cells, "\t")); row != "" {
				rows = append(rows, row)
			}
		})
		table.ReplaceWithHtml("\n" + strings.Join(rows, "\n") + "\n")
	})
}

// markBlocks inserts newlines around block-level elements so goquery's
// Text() does not glue adjacent blocks into one run-on line.
func (s *HTMLSanitizer) markBlocks(doc *goquery.Document) {
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, br, tr, section, article").Each(func(i int, sel *goquery.Selection) {
		sel.BeforeHtml("\n")
		sel.AfterHtml("\n")
	})
}

var spaceRe = regexp.MustCompile(`[ \x{00a0}]+`)

func collapseSpace(s string) string {
	return spaceRe.ReplaceAllString(s, " ")
}

func tidy(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(collapseSpace(line), " \t")
	}
	out := strings.Join(lines, "\n")
	out = multiBlankRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
