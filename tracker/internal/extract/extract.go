// Package extract matches CSS selectors against serialized product pages.
//
// Supports a subset of CSS selectors:
//   - tag: "span", "p", "div"
//   - .class: ".price", ".product-title"
//   - #id: "#product-price"
//   - tag.class: "span.value"
//   - tag#id: "h1#title"
//   - tag[attr]: "span[data-auto]"
//   - tag[attr=val]: "span[data-auto=product-price]"
//   - combinations separated by space (descendant combinator)
package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parse parses a serialized HTML document.
func Parse(page string) (*html.Node, error) {
	return html.Parse(strings.NewReader(page))
}

// FirstText returns the visible text of the first node matching any selector
// in the fallback list, in list order. The second return is false when no
// selector matched a node with non-empty text.
func FirstText(doc *html.Node, selectors []string) (string, bool) {
	for _, sel := range selectors {
		for _, n := range QuerySelectorAll(doc, sel) {
			if text := Text(n); text != "" {
				return text, true
			}
		}
	}
	return "", false
}

// Exists reports whether any selector in the list matches at least one node.
func Exists(doc *html.Node, selectors []string) bool {
	for _, sel := range selectors {
		if len(QuerySelectorAll(doc, sel)) > 0 {
			return true
		}
	}
	return false
}

// QuerySelectorAll returns all nodes matching a simple CSS selector.
func QuerySelectorAll(doc *html.Node, selector string) []*html.Node {
	parts := strings.Fields(selector)
	if len(parts) == 0 {
		return nil
	}

	matches := matchSimple(doc, parts[0])

	// For descendant combinators, filter through subsequent parts.
	for i := 1; i < len(parts); i++ {
		var next []*html.Node
		for _, parent := range matches {
			next = append(next, matchSimple(parent, parts[i])...)
		}
		matches = next
	}

	return matches
}

// Text extracts all visible text from a node subtree, whitespace-normalized.
func Text(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		// Skip script, style, noscript.
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

// matchSimple finds all nodes matching a single CSS selector part.
func matchSimple(root *html.Node, sel string) []*html.Node {
	m := parseSimpleSelector(sel)
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if matchesSelector(n, m) {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

type simpleSelector struct {
	tag     string
	id      string
	class   string
	attrKey string
	attrVal string
}

// parseSimpleSelector parses "tag.class", "#id", "tag[attr=val]", etc.
func parseSimpleSelector(sel string) simpleSelector {
	var s simpleSelector

	// Attribute selector: tag[attr] or tag[attr=val]
	if idx := strings.IndexByte(sel, '['); idx >= 0 {
		attrPart := strings.TrimRight(sel[idx+1:], "]")
		sel = sel[:idx]
		if eqIdx := strings.IndexByte(attrPart, '='); eqIdx >= 0 {
			s.attrKey = attrPart[:eqIdx]
			s.attrVal = strings.Trim(attrPart[eqIdx+1:], `"'`)
		} else {
			s.attrKey = attrPart
		}
	}

	if idx := strings.IndexByte(sel, '#'); idx >= 0 {
		s.id = sel[idx+1:]
		sel = sel[:idx]
	}

	if idx := strings.IndexByte(sel, '.'); idx >= 0 {
		s.class = sel[idx+1:]
		sel = sel[:idx]
	}

	s.tag = sel
	return s
}

// matchesSelector checks if a node matches a parsed simple selector.
func matchesSelector(n *html.Node, s simpleSelector) bool {
	if n.Type != html.ElementNode {
		return false
	}

	if s.tag != "" && n.Data != s.tag {
		return false
	}

	if s.id != "" && getAttr(n, "id") != s.id {
		return false
	}

	if s.class != "" {
		classes := strings.Fields(getAttr(n, "class"))
		found := false
		for _, c := range classes {
			if c == s.class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if s.attrKey != "" {
		if s.attrVal != "" {
			if getAttr(n, s.attrKey) != s.attrVal {
				return false
			}
		} else if !hasAttr(n, s.attrKey) {
			return false
		}
	}

	return true
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}
