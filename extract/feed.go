package extract

import (
	"fmt"

	"github.com/mmcdole/gofeed"
)

var feedFields = map[string]func(*gofeed.Item) string{
	"link":        func(i *gofeed.Item) string { return i.Link },
	"title":       func(i *gofeed.Item) string { return i.Title },
	"description": func(i *gofeed.Item) string { return i.Description },
	"guid":        func(i *gofeed.Item) string { return i.GUID },
}

type feedExtractor struct {
	field func(*gofeed.Item) string
}

func newFeedExtractor(field string) (*feedExtractor, error) {
	f, ok := feedFields[field]
	if !ok {
		return nil, fmt.Errorf("unknown feed field %q (want link, title, description or guid)", field)
	}
	return &feedExtractor{field: f}, nil
}

func (e *feedExtractor) All(page *Page) ([]string, error) {
	feed, err := page.Feed()
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		values = append(values, e.field(item))
	}
	return values, nil
}
