package report

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/sitemirror/internal/model"
)

// ExtractTitles records the <title> of every saved HTML page of the
// report's graph. Pages without a title, or that do not parse, are skipped.
// It returns the number of titles recorded.
func ExtractTitles(report *model.MirrorReport) int {
	if report.Graph == nil {
		return 0
	}

	n := 0
	for _, res := range report.Graph.All() {
		if res.ContentType() != model.ContentTypeHTML || !res.Status().HasContent() {
			continue
		}
		title := PageTitle(res.Bytes())
		if title == "" {
			continue
		}
		report.SetTitle(res.URL, title)
		n++
	}
	return n
}

// PageTitle returns the whitespace-collapsed text of the first <title>
// element of an HTML document.
func PageTitle(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}
