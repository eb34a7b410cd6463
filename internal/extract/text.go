package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText converts article content, which collectors store as HTML or plain text,
// into whitespace-normalized text with one paragraph per line
func PlainText(content string) string {
	if !strings.ContainsAny(content, "<&") {
		return normalizeLines(content)
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return normalizeLines(content)
	}

	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "figcaption":
				return
			}
		}

		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && isBlock(n.Data) {
			buf.WriteString("\n")
		}
	}

	walk(doc)
	return normalizeLines(buf.String())
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "br", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "section", "article":
		return true
	}
	return false
}

// normalizeLines collapses runs of whitespace inside lines and drops empty lines
func normalizeLines(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
