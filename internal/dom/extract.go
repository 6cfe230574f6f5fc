package dom

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"webnerd/internal/logging"
	"webnerd/internal/webtypes"
)

// Tags always treated as interactive.
var interactiveTags = map[string]bool{
	"a":      true,
	"button": true,
	"input":  true,
	"select": true,
}

// Generic containers that may be interactive given the right affordances.
var containerTags = map[string]bool{
	"div":  true,
	"span": true,
	"li":   true,
}

var interactiveRoles = map[string]bool{
	"button":   true,
	"link":     true,
	"option":   true,
	"menuitem": true,
	"tab":      true,
	"checkbox": true,
	"radio":    true,
	"combobox": true,
	"textbox":  true,
	"searchbox": true,
}

// Attribute subset retained on extracted elements.
var keptAttrs = map[string]bool{
	"id":          true,
	"class":       true,
	"role":        true,
	"name":        true,
	"placeholder": true,
	"href":        true,
	"onclick":     true,
	"tabindex":    true,
	"type":        true,
	"value":       true,
	"title":       true,
	"alt":         true,
}

func keepAttr(name string) bool {
	return keptAttrs[name] || strings.HasPrefix(name, "data-") || strings.HasPrefix(name, "aria-")
}

// Data attributes whose values are trusted as the element's label.
var labelDataAttrs = []string{
	"data-qa-item-name",
	"data-qa-group-name",
	"data-testid",
	"data-test",
	"data-item-name",
	"data-name",
	"aria-label",
}

// Class fragments that mark an affordance on a generic container.
var affordanceClassFragments = []string{
	"btn", "button", "clickable", "link", "card", "item", "tile",
	"menu", "nav", "select", "option", "add-to", "checkout", "cursor-pointer",
}

var priceMarkerRe = regexp.MustCompile(`[$€£]|\b\d+[.,]\d{2}\b`)

// Class fragments used by screen-reader-only and bot-trap elements.
// Clicking these wastes a step at best and trips bot detection at worst.
var hiddenClassFragments = []string{
	"sr-only", "visually-hidden", "screen-reader", "honeypot", "offscreen",
}

var hiddenStyleRe = regexp.MustCompile(`display\s*:\s*none|visibility\s*:\s*hidden|opacity\s*:\s*0(?:[;\s]|$)`)

// Extract parses raw HTML and returns interactive element candidates in
// document order. Parsing is tree-based first; on any parse error it
// falls back to a regex scan with the same output contract. Never
// returns an error: a page we cannot read yields an empty list.
func (p *Processor) Extract(rawHTML string) []webtypes.Element {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		logging.DOM("html parse failed, using regex fallback: %v", err)
		return dedupe(p.extractRegex(rawHTML))
	}

	var out []webtypes.Element
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if el, ok := p.elementFromNode(n); ok {
				out = append(out, el)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(out) == 0 {
		// Framework artifacts occasionally produce a tree the walker
		// sees as empty; the regex pass catches those.
		out = p.extractRegex(rawHTML)
	}
	return dedupe(out)
}

func (p *Processor) elementFromNode(n *html.Node) (webtypes.Element, bool) {
	tag := strings.ToLower(n.Data)
	raw := make(map[string]string, len(n.Attr))
	attrs := make(map[string]string)
	for _, a := range n.Attr {
		name := strings.ToLower(a.Key)
		raw[name] = a.Val
		if keepAttr(name) {
			attrs[name] = a.Val
		}
	}

	if hiddenTrap(raw) {
		return webtypes.Element{}, false
	}

	isTraditional := interactiveTags[tag]
	if !isTraditional {
		if !containerTags[tag] || !clickableContainer(attrs) {
			return webtypes.Element{}, false
		}
	}

	text := p.meaningfulText(attrs, nodeText(n))
	if text == "" && !hasAffordanceClass(attrs["class"]) && tag != "input" && tag != "select" {
		return webtypes.Element{}, false
	}

	return webtypes.Element{
		Tag:       tag,
		Text:      text,
		Attrs:     attrs,
		Selectors: buildSelectors(tag, attrs, text),
	}, true
}

// hiddenTrap reports whether an element is statically invisible. These
// are never real affordances for a user, and some sites plant them
// deliberately to catch automated clicks.
func hiddenTrap(attrs map[string]string) bool {
	if _, ok := attrs["hidden"]; ok {
		return true
	}
	if strings.EqualFold(attrs["aria-hidden"], "true") {
		return true
	}
	if strings.EqualFold(attrs["type"], "hidden") {
		return true
	}
	if style := strings.ToLower(attrs["style"]); style != "" && hiddenStyleRe.MatchString(style) {
		return true
	}
	class := strings.ToLower(attrs["class"])
	for _, frag := range hiddenClassFragments {
		if strings.Contains(class, frag) {
			return true
		}
	}
	return false
}

// clickableContainer decides whether a generic div/span/li carries
// enough affordance signals to count as interactive.
func clickableContainer(attrs map[string]string) bool {
	if attrs["onclick"] != "" {
		return true
	}
	if interactiveRoles[strings.ToLower(attrs["role"])] {
		return true
	}
	if attrs["tabindex"] != "" && attrs["tabindex"] != "-1" {
		return true
	}
	if hasAffordanceClass(attrs["class"]) {
		return true
	}
	for name := range attrs {
		if strings.HasPrefix(name, "data-qa-") || strings.HasPrefix(name, "data-menu-") {
			return true
		}
	}
	return false
}

func hasAffordanceClass(class string) bool {
	if class == "" {
		return false
	}
	lower := strings.ToLower(class)
	for _, frag := range affordanceClassFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// nodeText collects the visible text beneath a node, skipping nested
// script/style content.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
			return
		}
		if c.Type == html.ElementNode && (c.Data == "script" || c.Data == "style") {
			return
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			walk(gc)
		}
	}
	walk(n)
	return strings.TrimSpace(spaceRe.ReplaceAllString(b.String(), " "))
}

// meaningfulText chooses the element label, in priority order: a
// recognized data-attribute value, short clean visible text, then the
// leading words of longer text with noise stripped.
func (p *Processor) meaningfulText(attrs map[string]string, visible string) string {
	for _, name := range labelDataAttrs {
		if v := strings.TrimSpace(attrs[name]); v != "" {
			return truncateText(v, p.cfg.IncludeTextMax)
		}
	}
	for _, name := range []string{"placeholder", "value", "title", "alt", "name"} {
		if v := strings.TrimSpace(attrs[name]); v != "" && visible == "" {
			return truncateText(v, p.cfg.IncludeTextMax)
		}
	}

	visible = strings.TrimSpace(visible)
	if visible == "" {
		return ""
	}
	if len(visible) <= p.cfg.IncludeTextMax && cleanText(visible) {
		return visible
	}
	return truncateText(leadingWords(visible, 3), p.cfg.IncludeTextMax)
}

// cleanText accepts short labels with a high alphanumeric ratio and no
// price markers.
func cleanText(s string) bool {
	if priceMarkerRe.MatchString(s) {
		return false
	}
	if len(s) == 0 {
		return false
	}
	alnum := 0
	for _, r := range s {
		if r == ' ' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			alnum++
		}
	}
	return float64(alnum)/float64(len([]rune(s))) > 0.7
}

func leadingWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	cleaned := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, `.,:;!?()[]{}"'|`)
		if w != "" && !priceMarkerRe.MatchString(w) {
			cleaned = append(cleaned, w)
		}
	}
	return strings.Join(cleaned, " ")
}

func truncateText(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

// buildSelectors emits up to 5 candidate selectors, most-unique first:
// tag[data-*] > #id > tag.class > [role] > text-contains.
func buildSelectors(tag string, attrs map[string]string, text string) []string {
	var out []string

	for _, name := range []string{"data-qa-item-name", "data-qa-group-name", "data-testid", "data-test", "data-item-name"} {
		if v := attrs[name]; v != "" {
			out = append(out, fmt.Sprintf(`%s[%s=%q]`, tag, name, v))
			break
		}
	}
	if id := attrs["id"]; id != "" {
		out = append(out, "#"+id)
	}
	if class := strings.TrimSpace(attrs["class"]); class != "" {
		first := strings.Fields(class)[0]
		if validClassToken(first) {
			out = append(out, tag+"."+first)
		}
	}
	if role := attrs["role"]; role != "" {
		out = append(out, fmt.Sprintf(`%s[role=%q]`, tag, role))
	}
	if text != "" {
		out = append(out, fmt.Sprintf(`%s:contains(%q)`, tag, text))
	}

	if len(out) == 0 {
		out = append(out, tag)
	}
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

func validClassToken(s string) bool {
	for _, r := range s {
		if !(r == '-' || r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')) {
			return false
		}
	}
	return s != ""
}

// dedupe removes elements sharing (tag, class signature, first 30 chars
// of text), keeping the first occurrence.
func dedupe(elements []webtypes.Element) []webtypes.Element {
	seen := make(map[string]bool, len(elements))
	out := elements[:0]
	for _, el := range elements {
		key := dedupKey(el)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, el)
	}
	return out
}

func dedupKey(el webtypes.Element) string {
	text := el.Text
	if len(text) > 30 {
		text = text[:30]
	}
	return el.Tag + "|" + el.Attrs["class"] + "|" + text
}
