package browser

import (
	"strings"

	"golang.org/x/net/html"
)

// skipTags are elements whose text never contributes to a page summary.
var skipTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"head":     true,
	"iframe":   true,
	"object":   true,
}

// blockTags end their text with a line break so the summary keeps a trace of
// document structure.
var blockTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"p": true, "li": true, "tr": true, "div": true, "section": true,
	"article": true, "br": true,
}

// buildSummary reduces raw page HTML to readable text, capped at maxChars
// runes. Whitespace is collapsed and hidden machinery (scripts, styles) is
// dropped.
func buildSummary(rawHTML string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = 2000
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var b strings.Builder
	last := byte('\n')

	writeText := func(text string) {
		text = strings.Join(strings.Fields(text), " ")
		if text == "" {
			return
		}
		if last != '\n' {
			b.WriteByte(' ')
		}
		b.WriteString(text)
		last = text[len(text)-1]
	}
	newline := func() {
		if last != '\n' && b.Len() > 0 {
			b.WriteByte('\n')
			last = '\n'
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			writeText(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			newline()
		}
	}
	walk(doc)

	out := strings.TrimSpace(b.String())
	runes := []rune(out)
	if len(runes) > maxChars {
		out = strings.TrimSpace(string(runes[:maxChars]))
	}
	return out
}
