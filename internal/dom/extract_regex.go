package dom

import (
	"regexp"
	"strings"

	"webnerd/internal/webtypes"
)

// Regex fallback extraction. HTML parsers occasionally choke on
// framework artifacts; this path has the same output contract as the
// tree-based extractor.

var (
	// Pass 1: traditional interactive tags, including self-closing inputs.
	traditionalTagRe = regexp.MustCompile(`(?is)<(a|button|select)\b([^>]*)>(.*?)</\s*(?:a|button|select)\s*>|<(input)\b([^>]*?)/?>`)

	// Pass 2: generic containers that may satisfy clickable heuristics.
	containerTagRe = regexp.MustCompile(`(?is)<(div|span|li)\b([^>]*)>(.*?)</\s*(?:div|span|li)\s*>`)

	attrRe   = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9_:-]*)(?:\s*=\s*"([^"]*)")?`)
	tagStripRe = regexp.MustCompile(`(?s)<[^>]*>`)
)

// extractRegex scans rawHTML in two passes: interactive tags first,
// then clickable containers.
func (p *Processor) extractRegex(rawHTML string) []webtypes.Element {
	var out []webtypes.Element

	for _, m := range traditionalTagRe.FindAllStringSubmatch(rawHTML, -1) {
		tag, attrStr, inner := m[1], m[2], m[3]
		if tag == "" {
			tag, attrStr, inner = m[4], m[5], ""
		}
		if el, ok := p.elementFromRegexMatch(strings.ToLower(tag), attrStr, inner); ok {
			out = append(out, el)
		}
	}

	for _, m := range containerTagRe.FindAllStringSubmatch(rawHTML, -1) {
		tag, attrStr, inner := strings.ToLower(m[1]), m[2], m[3]
		attrs := parseAttrs(attrStr)
		if !clickableContainer(attrs) {
			continue
		}
		if el, ok := p.elementFromRegexMatch(tag, attrStr, inner); ok {
			out = append(out, el)
		}
	}

	return out
}

func (p *Processor) elementFromRegexMatch(tag, attrStr, inner string) (webtypes.Element, bool) {
	raw := parseAttrs(attrStr)
	if hiddenTrap(raw) {
		return webtypes.Element{}, false
	}
	attrs := make(map[string]string, len(raw))
	for name, val := range raw {
		if keepAttr(name) {
			attrs[name] = val
		}
	}

	visible := strings.TrimSpace(spaceRe.ReplaceAllString(tagStripRe.ReplaceAllString(inner, " "), " "))
	text := p.meaningfulText(attrs, visible)
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

// parseAttrs returns every attribute in the match, including bot-trap
// markers like style and bare hidden, so hiddenTrap and
// clickableContainer see the same inputs as the tree path.
func parseAttrs(attrStr string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(attrStr, -1) {
		attrs[strings.ToLower(m[1])] = m[2]
	}
	return attrs
}
