package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

// Page is a fetched document. Parsed forms are built on first use and shared
// by every extractor applied to the page.
type Page struct {
	URL  string
	Body string

	root    *html.Node
	doc     *goquery.Document
	feed    *gofeed.Feed
	rootErr error
	feedErr error
	parsed  bool
	fed     bool
}

// NewPage wraps body fetched from url.
func NewPage(url, body string) *Page {
	return &Page{URL: url, Body: body}
}

// Node returns the parsed HTML tree.
func (p *Page) Node() (*html.Node, error) {
	if !p.parsed {
		p.parsed = true
		p.root, p.rootErr = htmlquery.Parse(strings.NewReader(p.Body))
		if p.rootErr != nil {
			p.rootErr = fmt.Errorf("failed to parse HTML: %w", p.rootErr)
		}
	}
	return p.root, p.rootErr
}

// Document returns the page as a goquery document sharing Node's tree.
func (p *Page) Document() (*goquery.Document, error) {
	if p.doc != nil {
		return p.doc, nil
	}
	root, err := p.Node()
	if err != nil {
		return nil, err
	}
	p.doc = goquery.NewDocumentFromNode(root)
	return p.doc, nil
}

// Feed returns the page parsed as RSS or Atom.
func (p *Page) Feed() (*gofeed.Feed, error) {
	if !p.fed {
		p.fed = true
		p.feed, p.feedErr = gofeed.NewParser().ParseString(p.Body)
		if p.feedErr != nil {
			p.feedErr = fmt.Errorf("failed to parse feed: %w", p.feedErr)
		}
	}
	return p.feed, p.feedErr
}
