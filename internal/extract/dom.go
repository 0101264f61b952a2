package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// matcher selects element nodes, the small subset of CSS selectors the
// extractor needs.
type matcher func(*html.Node) bool

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func tagIs(tag string) matcher {
	return func(n *html.Node) bool { return isElement(n, tag) }
}

// hasClass matches ".name": a whitespace-separated class token.
func hasClass(name string) matcher {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == name {
				return true
			}
		}
		return false
	}
}

// classContains matches "[class*=sub]".
func classContains(sub string) matcher {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && strings.Contains(attr(n, "class"), sub)
	}
}

// listItem matches "ul li, ol li".
func listItem(n *html.Node) bool {
	if !isElement(n, "li") {
		return false
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if isElement(p, "ul") || isElement(p, "ol") {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// skipped elements never contribute text.
func skipped(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

// findAll returns every node matching m in document order. Matches nested in
// other matches are included, as a CSS engine would.
func findAll(root *html.Node, m matcher) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if skipped(n) {
			return
		}
		if m(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, m matcher) *html.Node {
	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if skipped(n) {
			return false
		}
		if m(n) {
			found = n
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(root)
	return found
}

// textOf concatenates the descendant text nodes of n verbatim.
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if skipped(n) {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// firstText is the trimmed text of the first node matching m.
func firstText(root *html.Node, m matcher) string {
	return strings.TrimSpace(textOf(findFirst(root, m)))
}

// metaContent returns the content of <meta name=name>.
func metaContent(root *html.Node, name string) string {
	n := findFirst(root, func(n *html.Node) bool {
		return isElement(n, "meta") && strings.EqualFold(attr(n, "name"), name)
	})
	if n == nil {
		return ""
	}
	return strings.TrimSpace(attr(n, "content"))
}
