package handler

import (
	"strings"

	"github.com/nao1215/sitemirror/internal/model"
	"golang.org/x/net/html"
)

// attrRule names an attribute that carries a reference.
type attrRule struct {
	attr   string
	kind   model.Kind
	srcset bool
}

// referenceAttributes lists, per element, the attributes holding references.
// link is handled separately because only some rel values embed content.
var referenceAttributes = map[string][]attrRule{
	"a":      {{attr: "href", kind: model.KindNavigation}},
	"area":   {{attr: "href", kind: model.KindNavigation}},
	"iframe": {{attr: "src", kind: model.KindNavigation}},
	"frame":  {{attr: "src", kind: model.KindNavigation}},
	"img":    {{attr: "src"}, {attr: "srcset", srcset: true}},
	"source": {{attr: "src"}, {attr: "srcset", srcset: true}},
	"script": {{attr: "src"}},
	"video":  {{attr: "src"}, {attr: "poster"}},
	"audio":  {{attr: "src"}},
	"track":  {{attr: "src"}},
	"embed":  {{attr: "src"}},
	"object": {{attr: "data"}},
	"input":  {{attr: "src"}},
	"image":  {{attr: "href"}, {attr: "xlink:href"}},
	"body":   {{attr: "background"}},
	"table":  {{attr: "background"}},
	"td":     {{attr: "background"}},
	"th":     {{attr: "background"}},
}

// embeddingRels are link rel values whose href is content the page needs.
var embeddingRels = map[string]bool{
	"stylesheet": true,
	"preload":    true,
	"manifest":   true,
}

// HTMLExtractor finds references in markup.
//
// Design decision: We drive golang.org/x/net/html's tokenizer instead of
// building a DOM with html.Parse because:
//  1. The tokenizer exposes the raw bytes of every token, so we can keep exact
//     byte offsets into the document
//  2. html.Parse rewrites the tree (implied tags, moved nodes), losing positions
//  3. The tokenizer already knows which elements hold raw text (style, script)
type HTMLExtractor struct{}

// Extract returns the distinct references of text in order of first
// occurrence. If the document has a <base href>, every reference carries it.
func (HTMLExtractor) Extract(text string) []model.Reference {
	z := html.NewTokenizer(strings.NewReader(text))
	found := make([]model.Reference, 0)
	base := ""
	baseSeen := false
	inStyle := false
	offset := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}

		raw := z.Raw()
		start := offset
		offset += len(raw)
		if offset > len(text) || text[start:offset] != string(raw) {
			// The tokenizer no longer lines up with the source; stop rather
			// than report wrong spans.
			break
		}

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			attrs := scanAttributes(text[start:offset], start)

			if tag == "base" && !baseSeen {
				if href, ok := findAttribute(attrs, "href"); ok {
					base = strings.TrimSpace(html.UnescapeString(text[href.start:href.end]))
					baseSeen = true
				}
			}
			found = append(found, referencesFromTag(text, tag, attrs)...)
			inStyle = tag == "style" && tt == html.StartTagToken
		case html.TextToken:
			if inStyle {
				found = append(found, extractCSS(text[start:offset], start, false)...)
			}
			inStyle = false
		default:
			inStyle = false
		}
	}

	if base != "" {
		for i := range found {
			found[i].Base = base
		}
	}
	return model.Group(found)
}

// Neutralize returns the href attribute of every <base> element, leading
// whitespace included. The mirror writes references relative to the page's
// own local path, which only holds once the base is gone.
func (HTMLExtractor) Neutralize(text string) []model.Occurrence {
	z := html.NewTokenizer(strings.NewReader(text))
	spans := make([]model.Occurrence, 0)
	offset := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}

		raw := z.Raw()
		start := offset
		offset += len(raw)
		if offset > len(text) || text[start:offset] != string(raw) {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		if name, _ := z.TagName(); string(name) != "base" {
			continue
		}

		href, ok := findAttribute(scanAttributes(text[start:offset], start), "href")
		if !ok {
			continue
		}
		from := href.nameStart
		for from > start && isHTMLSpace(text[from-1]) {
			from--
		}
		spans = append(spans, model.Occurrence{
			Start:  from,
			End:    href.end + len(href.quote),
			Prefix: text[start:from],
		})
	}
	return spans
}

// referencesFromTag returns the references carried by one start tag.
func referencesFromTag(text, tag string, attrs []rawAttribute) []model.Reference {
	found := make([]model.Reference, 0)

	rules := referenceAttributes[tag]
	if tag == "link" && linkEmbeds(text, attrs) {
		rules = []attrRule{{attr: "href"}}
	}

	for _, attr := range attrs {
		if attr.name == "style" {
			found = append(found, extractCSS(text[attr.start:attr.end], attr.start, true)...)
			continue
		}
		for _, rule := range rules {
			if attr.name != rule.attr {
				continue
			}
			if rule.srcset {
				found = append(found, srcsetReferences(text, attr)...)
				continue
			}
			if ref, ok := attributeReference(text, attr, rule.kind); ok {
				found = append(found, ref)
			}
		}
	}
	return found
}

// linkEmbeds reports whether a <link> pulls content into the page
// (stylesheets, icons, preloads, manifests) rather than pointing elsewhere.
func linkEmbeds(text string, attrs []rawAttribute) bool {
	rel, ok := findAttribute(attrs, "rel")
	if !ok {
		return false
	}
	for _, token := range strings.Fields(strings.ToLower(html.UnescapeString(text[rel.start:rel.end]))) {
		if embeddingRels[token] || strings.HasSuffix(token, "icon") {
			return true
		}
	}
	return false
}

// attributeReference builds the reference for a whole attribute value.
func attributeReference(text string, attr rawAttribute, kind model.Kind) (model.Reference, bool) {
	vs, ve := attr.start, attr.end
	for vs < ve && isHTMLSpace(text[vs]) {
		vs++
	}
	for ve > vs && isHTMLSpace(text[ve-1]) {
		ve--
	}

	raw := strings.TrimSpace(html.UnescapeString(text[vs:ve]))
	if skipReference(raw) {
		return model.Reference{}, false
	}

	return model.Reference{
		Raw:  raw,
		Kind: kind,
		Occurrences: []model.Occurrence{{
			Start:  vs,
			End:    ve,
			Prefix: text[attr.nameStart:vs],
			Suffix: text[ve : attr.end+len(attr.quote)],
			Entity: true,
		}},
	}, true
}

// srcsetReferences returns one reference per image candidate of a srcset
// value ("a.png 1x, b.png 2x").
func srcsetReferences(text string, attr rawAttribute) []model.Reference {
	found := make([]model.Reference, 0)
	i := attr.start
	prev := attr.nameStart

	for i < attr.end {
		for i < attr.end && (isHTMLSpace(text[i]) || text[i] == ',') {
			i++
		}
		if i >= attr.end {
			break
		}

		us := i
		for i < attr.end && !isHTMLSpace(text[i]) {
			i++
		}
		ue := i
		for ue > us && text[ue-1] == ',' {
			ue--
		}

		// Skip the descriptor up to the next comma.
		if ue == i {
			for i < attr.end && text[i] != ',' {
				i++
			}
		}

		raw := html.UnescapeString(text[us:ue])
		if !skipReference(raw) {
			suffixEnd := ue + 1
			if suffixEnd > len(text) {
				suffixEnd = ue
			}
			found = append(found, model.Reference{
				Raw:  raw,
				Kind: model.KindAsset,
				Occurrences: []model.Occurrence{{
					Start:  us,
					End:    ue,
					Prefix: text[prev:us],
					Suffix: text[ue:suffixEnd],
					Entity: true,
				}},
			})
		}
		prev = ue
	}
	return found
}

// rawAttribute is an attribute located in the source text.
// [start, end) is the value without its quotes.
type rawAttribute struct {
	name      string
	nameStart int
	start     int
	end       int
	quote     string
}

// findAttribute returns the first attribute with the given name.
func findAttribute(attrs []rawAttribute, name string) (rawAttribute, bool) {
	for _, a := range attrs {
		if a.name == name {
			return a, true
		}
	}
	return rawAttribute{}, false
}

// scanAttributes locates the attributes of a raw start tag such as
// `<img src="a.png" alt=x>`. Offsets are shifted by base. Attributes
// without a value are omitted.
func scanAttributes(tag string, base int) []rawAttribute {
	attrs := make([]rawAttribute, 0)

	i := 1
	for i < len(tag) && !isHTMLSpace(tag[i]) && tag[i] != '>' && tag[i] != '/' {
		i++
	}

	for i < len(tag) {
		for i < len(tag) && (isHTMLSpace(tag[i]) || tag[i] == '/') {
			i++
		}
		if i >= len(tag) || tag[i] == '>' {
			break
		}

		ns := i
		for i < len(tag) && !isHTMLSpace(tag[i]) && tag[i] != '=' && tag[i] != '>' && tag[i] != '/' {
			i++
		}
		if i == ns {
			i++
			continue
		}
		name := strings.ToLower(tag[ns:i])

		j := i
		for j < len(tag) && isHTMLSpace(tag[j]) {
			j++
		}
		if j >= len(tag) || tag[j] != '=' {
			i = j
			continue
		}
		j++
		for j < len(tag) && isHTMLSpace(tag[j]) {
			j++
		}
		if j >= len(tag) {
			break
		}

		attr := rawAttribute{name: name, nameStart: base + ns}
		if q := tag[j]; q == '"' || q == '\'' {
			end := strings.IndexByte(tag[j+1:], q)
			if end < 0 {
				break
			}
			attr.quote = string(q)
			attr.start = base + j + 1
			attr.end = base + j + 1 + end
			i = j + 1 + end + 1
		} else {
			vs := j
			for j < len(tag) && !isHTMLSpace(tag[j]) && tag[j] != '>' {
				j++
			}
			attr.start = base + vs
			attr.end = base + j
			i = j
		}
		attrs = append(attrs, attr)
	}
	return attrs
}

func isHTMLSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
