package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Attribute whitelist retained on skeleton survivors.
var skeletonAttrs = map[string]bool{
	"id":          true,
	"class":       true,
	"role":        true,
	"name":        true,
	"placeholder": true,
	"href":        true,
	"type":        true,
	"value":       true,
}

func keepSkeletonAttr(name string) bool {
	return skeletonAttrs[name] || strings.HasPrefix(name, "data-") || strings.HasPrefix(name, "aria-")
}

// Tags never emitted into a skeleton.
var skeletonDropTags = map[string]bool{
	"script":   true,
	"style":    true,
	"meta":     true,
	"link":     true,
	"noscript": true,
	"svg":      true,
	"path":     true,
	"iframe":   true,
}

// ancestorGenerations is how many levels of structural context survive
// above each interactive node.
const ancestorGenerations = 3

// Skeleton strips non-essential structure from compressed HTML: the set
// of interactive nodes plus up to three ancestor generations keep their
// tags (with a whitelisted attribute subset); every other node is
// unwrapped, preserving its text. Scripts, styles, meta tags, and
// comments never survive.
func (p *Processor) Skeleton(compressedHTML string) string {
	doc, err := html.Parse(strings.NewReader(compressedHTML))
	if err != nil {
		// A document the parser rejects still yields a usable skeleton:
		// the tag-stripped text.
		return truncateText(tagStripRe.ReplaceAllString(compressedHTML, " "), p.cfg.SkeletonBudget)
	}

	keep := make(map[*html.Node]bool)
	parents := make(map[*html.Node]*html.Node)

	var index func(n *html.Node)
	index = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			parents[c] = n
			index(c)
		}
	}
	index(doc)

	var mark func(n *html.Node)
	mark = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, ok := p.elementFromNode(n); ok {
				anc := n
				for i := 0; anc != nil && i <= ancestorGenerations; i++ {
					keep[anc] = true
					anc = parents[anc]
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			mark(c)
		}
	}
	mark(doc)

	var b strings.Builder
	var render func(n *html.Node)
	render = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(text)
				b.WriteByte(' ')
			}
			return
		case html.CommentNode, html.DoctypeNode:
			return
		case html.ElementNode:
			tag := strings.ToLower(n.Data)
			if skeletonDropTags[tag] {
				return
			}
			if keep[n] {
				b.WriteByte('<')
				b.WriteString(tag)
				for _, a := range n.Attr {
					name := strings.ToLower(a.Key)
					if keepSkeletonAttr(name) {
						b.WriteByte(' ')
						b.WriteString(name)
						b.WriteString(`="`)
						b.WriteString(html.EscapeString(a.Val))
						b.WriteByte('"')
					}
				}
				b.WriteByte('>')
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					render(c)
				}
				b.WriteString("</")
				b.WriteString(tag)
				b.WriteByte('>')
				return
			}
			// Unwrap: drop the tag, keep the content.
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				render(c)
			}
			return
		default:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				render(c)
			}
		}
	}
	render(doc)

	return truncateText(strings.TrimSpace(b.String()), p.cfg.SkeletonBudget)
}
