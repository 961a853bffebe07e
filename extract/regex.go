package extract

import (
	"fmt"
	"regexp"
)

type regexExtractor struct {
	re *regexp.Regexp
}

func newRegexExtractor(pattern string) (*regexExtractor, error) {
	re, err := regexp.Compile("(?s)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return &regexExtractor{re: re}, nil
}

func (e *regexExtractor) All(page *Page) ([]string, error) {
	matches := e.re.FindAllStringSubmatch(page.Body, -1)
	values := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 {
			values = append(values, m[1])
		} else {
			values = append(values, m[0])
		}
	}
	return values, nil
}
