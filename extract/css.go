package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

type cssExtractor struct {
	selector string
	attr     string
}

func newCSSExtractor(selector, attr string) (*cssExtractor, error) {
	if _, err := cascadia.Compile(selector); err != nil {
		return nil, fmt.Errorf("invalid css selector %q: %w", selector, err)
	}
	return &cssExtractor{selector: selector, attr: attr}, nil
}

func (e *cssExtractor) All(page *Page) ([]string, error) {
	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	var values []string
	doc.Find(e.selector).Each(func(_ int, sel *goquery.Selection) {
		switch e.attr {
		case "":
			values = append(values, strings.TrimSpace(sel.Text()))
		case AttrHTML:
			h, err := sel.Html()
			if err == nil {
				values = append(values, strings.TrimSpace(h))
			}
		default:
			if v, ok := sel.Attr(e.attr); ok {
				values = append(values, strings.TrimSpace(v))
			} else {
				values = append(values, "")
			}
		}
	})
	return values, nil
}
