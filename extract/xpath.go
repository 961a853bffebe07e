package extract

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
)

type xpathExtractor struct {
	expr *xpath.Expr
	attr string
}

func newXPathExtractor(expr, attr string) (*xpathExtractor, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	return &xpathExtractor{expr: compiled, attr: attr}, nil
}

func (e *xpathExtractor) All(page *Page) ([]string, error) {
	root, err := page.Node()
	if err != nil {
		return nil, err
	}

	nodes := htmlquery.QuerySelectorAll(root, e.expr)
	values := make([]string, 0, len(nodes))
	for _, n := range nodes {
		switch e.attr {
		case "":
			values = append(values, strings.TrimSpace(htmlquery.InnerText(n)))
		case AttrHTML:
			values = append(values, strings.TrimSpace(htmlquery.OutputHTML(n, false)))
		default:
			values = append(values, strings.TrimSpace(htmlquery.SelectAttr(n, e.attr)))
		}
	}
	return values, nil
}
