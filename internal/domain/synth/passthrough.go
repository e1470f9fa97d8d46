package synth

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// refAttrs are the attributes whose library references are made absolute.
var refAttrs = []struct{ selector, attr string }{
	{"script[src]", "src"},
	{"link[href]", "href"},
	{"img[src]", "src"},
	{"source[src]", "src"},
	{"audio[src]", "src"},
	{"video[src]", "src"},
}

// libString matches a quoted library path inside module scripts and import
// maps.
var libString = regexp.MustCompile(`(["'])((?:\./|/)?(?:static/)?libs/[^"'\s]+)(["'])`)

// passthrough serves a self-contained document as is. Only relative library
// references are rewritten against the host origin; a document with nothing
// to rewrite is returned byte for byte.
func (s *Synthesizer) passthrough(in Input) Document {
	raw := in.Source.Markup
	d := Document{HTML: raw, Profile: in.Profile, Kind: KindPassthrough, NeedsModules: in.Plan.Capabilities.SelfWired}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		s.logger.Warn("Could not parse self-contained document; serving it unchanged", zap.Error(err))
		return d
	}

	changed := false
	for _, ra := range refAttrs {
		doc.Find(ra.selector).Each(func(_ int, sel *goquery.Selection) {
			ref, _ := sel.Attr(ra.attr)
			if abs, ok := s.resolver.Absolute(ref); ok && abs != ref {
				sel.SetAttr(ra.attr, abs)
				changed = true
			}
		})
	}

	doc.Find("script[type]").Each(func(_ int, sel *goquery.Selection) {
		typ, _ := sel.Attr("type")
		typ = strings.ToLower(strings.TrimSpace(typ))
		if typ != "module" && typ != "importmap" {
			return
		}
		d.NeedsModules = true

		text := sel.Text()
		rewritten := libString.ReplaceAllStringFunc(text, func(m string) string {
			parts := libString.FindStringSubmatch(m)
			if abs, ok := s.resolver.Absolute(parts[2]); ok {
				return parts[1] + abs + parts[3]
			}
			return m
		})
		if rewritten != text {
			replaceText(sel.Get(0), rewritten)
			changed = true
		}
	})

	if !changed {
		return d
	}
	out, err := doc.Html()
	if err != nil {
		s.logger.Warn("Could not render rewritten document; serving it unchanged", zap.Error(err))
		return d
	}
	d.HTML = out
	return d
}

// replaceText swaps the children of a raw-text element for one text node, so
// rendering writes it back unescaped.
func replaceText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}
