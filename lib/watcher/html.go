package watcher

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/carlmjohnson/requests"
	"golang.org/x/net/html"
)

var whitespace = regexp.MustCompile(`\s+`)

func (w *Watcher) fetchContent(ctx context.Context, endpoint, xpath string) (string, error) {
	var page string
	err := requests.URL(endpoint).
		Transport(w.transport).
		ToString(&page).
		Fetch(ctx)
	if err != nil {
		return "", err
	}

	doc, err := htmlquery.Parse(strings.NewReader(page))
	if err != nil {
		return "", err
	}
	return selectText(doc, xpath), nil
}

func selectText(n *html.Node, xpath string) string {
	node := htmlquery.FindOne(n, xpath)
	if node == nil {
		return ""
	}
	buf := new(bytes.Buffer)
	dig(node, buf)
	return compactWhitespace(buf.String())
}

func dig(n *html.Node, buf *bytes.Buffer) {
	if n == nil {
		return
	}
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		dig(c, buf)
	}
}

func compactWhitespace(s string) string {
	s = whitespace.ReplaceAllString(s, " ")
	s = strings.Trim(s, " ")
	return s
}
