package handler

import (
	"regexp"
	"sort"
	"strings"

	"github.com/nao1215/sitemirror/internal/model"
	"golang.org/x/net/html"
)

// Stylesheet reference patterns.
//
// Design decision: We use regular expressions rather than a full CSS parser
// because:
//  1. Only two constructs carry references (url() and @import "...")
//  2. We need byte offsets into the original text, which tokenizers that
//     normalize whitespace and escapes do not give back
//  3. Malformed stylesheets are common and must still be rewritten
var (
	// cssURLPattern matches url(x), url('x') and url("x").
	// Group 1 is double-quoted, group 2 single-quoted, group 3 bareword.
	cssURLPattern = regexp.MustCompile(`(?i)\burl\(\s*(?:"([^"]*)"|'([^']*)'|([^'"()\s]+))\s*\)`)

	// cssImportPattern matches the string form of @import.
	// The url() form is covered by cssURLPattern.
	cssImportPattern = regexp.MustCompile(`(?i)@import\s*(?:"([^"]*)"|'([^']*)')`)

	// cssCommentPattern matches /* ... */ comments.
	cssCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// CSSExtractor finds references in stylesheet text.
type CSSExtractor struct{}

// Extract returns the distinct references of text in order of first
// occurrence.
func (CSSExtractor) Extract(text string) []model.Reference {
	return model.Group(extractCSS(text, 0, false))
}

// extractCSS returns one single-occurrence reference per match, in source
// order. Offsets are shifted by offset so stylesheets embedded in markup
// report positions in the enclosing document. When entity is set the text is
// an HTML attribute value and raw references are entity-decoded.
func extractCSS(text string, offset int, entity bool) []model.Reference {
	comments := cssCommentPattern.FindAllStringIndex(text, -1)
	inComment := func(pos int) bool {
		for _, c := range comments {
			if pos >= c[0] && pos < c[1] {
				return true
			}
		}
		return false
	}

	found := make([]model.Reference, 0)
	for _, pattern := range []*regexp.Regexp{cssURLPattern, cssImportPattern} {
		for _, m := range pattern.FindAllStringSubmatchIndex(text, -1) {
			if inComment(m[0]) {
				continue
			}

			vs, ve := -1, -1
			for g := 1; g*2+1 < len(m); g++ {
				if m[g*2] >= 0 {
					vs, ve = m[g*2], m[g*2+1]
					break
				}
			}
			if vs < 0 {
				continue
			}
			for vs < ve && isCSSSpace(text[vs]) {
				vs++
			}
			for ve > vs && isCSSSpace(text[ve-1]) {
				ve--
			}
			if entity {
				vs, ve = trimEncodedQuotes(text, vs, ve)
			}

			raw := text[vs:ve]
			if entity {
				raw = strings.TrimSpace(html.UnescapeString(raw))
			}
			if skipReference(raw) {
				continue
			}

			found = append(found, model.Reference{
				Raw:  raw,
				Kind: model.KindAsset,
				Occurrences: []model.Occurrence{{
					Start:  offset + vs,
					End:    offset + ve,
					Prefix: text[m[0]:vs],
					Suffix: text[ve:m[1]],
					Entity: entity,
				}},
			})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Occurrences[0].Start < found[j].Occurrences[0].Start
	})
	return found
}

func isCSSSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// encodedQuotes are the entity spellings of quote characters that appear
// when a quoted url() sits inside an HTML style attribute.
var encodedQuotes = []string{"&quot;", "&#34;", "&#x22;", "&apos;", "&#39;", "&#x27;"}

// trimEncodedQuotes narrows [vs, ve) past a leading and trailing encoded
// quote so that url(&quot;a.png&quot;) reports the span of a.png.
func trimEncodedQuotes(text string, vs, ve int) (int, int) {
	for _, q := range encodedQuotes {
		if !strings.HasPrefix(text[vs:ve], q) {
			continue
		}
		for _, closing := range encodedQuotes {
			if ve-vs >= len(q)+len(closing) && strings.HasSuffix(text[vs:ve], closing) {
				return vs + len(q), ve - len(closing)
			}
		}
	}
	return vs, ve
}
