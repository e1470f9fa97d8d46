package isolate

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// parseDocument parses a full document and returns the description of its
// root element.
func parseDocument(doc string) (map[string]any, error) {
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	root := parsed.Find("html")
	if root.Length() == 0 {
		return nil, fmt.Errorf("parse document: no root element")
	}
	return describe(root.Nodes[0]), nil
}

// parseFragment parses markup as body content.
func parseFragment(markup string) []any {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return []any{}
	}
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		if d := describe(n); d != nil {
			out = append(out, d)
		}
	}
	return out
}

// describe converts a parsed node into the plain shape the in-frame DOM
// builder consumes: {t, tag, attrs, c} for elements and {t, text} otherwise.
func describe(n *html.Node) map[string]any {
	switch n.Type {
	case html.TextNode:
		return map[string]any{"t": 3, "text": n.Data}
	case html.CommentNode:
		return map[string]any{"t": 8, "text": n.Data}
	case html.ElementNode:
		attrs := make([]any, 0, len(n.Attr))
		for _, a := range n.Attr {
			attrs = append(attrs, []any{a.Key, a.Val})
		}
		children := make([]any, 0)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if d := describe(c); d != nil {
				children = append(children, d)
			}
		}
		return map[string]any{"t": 1, "tag": n.Data, "attrs": attrs, "c": children}
	}
	return nil
}
