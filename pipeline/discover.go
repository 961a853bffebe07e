package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pevans/collect/extract"
	"github.com/pevans/collect/fetch"
	"go.uber.org/zap"
)

// DiscoverReport describes one discovery call.
type DiscoverReport struct {
	TotalPages int     `json:"total_pages"`
	Page       int     `json:"page"`
	URL        string  `json:"url"`
	Found      int     `json:"found"`
	New        int     `json:"new"`
	Duplicates int     `json:"duplicates"`
	Malformed  int     `json:"malformed"`
	FetchError string  `json:"fetch_error,omitempty"`
	NewIDs     []int64 `json:"new_ids,omitempty"`
}

// candidate is a (url, title) pair read from a listing page.
type candidate struct {
	url   string
	title string
}

// Discover processes listing page cursor (1-based) of pc's node: it reads
// the candidates, skips those already in history and stages the rest. When
// cursor is the last page the node's last run time is set.
//
// A page that cannot be fetched yields no candidates and still counts as
// processed.
func (p *Pipeline) Discover(ctx context.Context, pc Context, cursor int) (DiscoverReport, error) {
	var rep DiscoverReport
	err := p.withNodeLock(ctx, pc.Node.ID, func() error {
		var err error
		rep, err = p.discover(ctx, pc, cursor)
		return err
	})
	return rep, err
}

func (p *Pipeline) discover(ctx context.Context, pc Context, cursor int) (DiscoverReport, error) {
	start := time.Now()
	n := &pc.Node
	rep := DiscoverReport{
		TotalPages: n.PageCount(),
		Page:       cursor,
	}
	pageURL, ok := n.PageURL(cursor)
	if !ok {
		return rep, fmt.Errorf("%w: %d not in 1..%d", ErrCursorOutOfRange, cursor, rep.TotalPages)
	}
	rep.URL = pageURL

	body, err := p.fetcher.Fetch(ctx, fetch.Request{URL: rep.URL, Charset: n.Charset})
	if err != nil {
		rep.FetchError = err.Error()
		p.metrics.ListingPage(n.Name, false)
		pc.printf("page %d/%d %s: fetch failed: %v", cursor, rep.TotalPages, rep.URL, err)
	} else {
		p.metrics.ListingPage(n.Name, true)
		if err := p.stageCandidates(ctx, pc, extract.NewPage(rep.URL, body), &rep); err != nil {
			return rep, err
		}
		pc.printf("page %d/%d %s: %d found, %d new, %d duplicate, %d malformed",
			cursor, rep.TotalPages, rep.URL, rep.Found, rep.New, rep.Duplicates, rep.Malformed)
	}

	if cursor == rep.TotalPages {
		if err := p.nodes.MarkRun(ctx, n.ID, pc.Now); err != nil {
			return rep, err
		}
	}

	p.metrics.Candidate(n.Name, "new", rep.New)
	p.metrics.Candidate(n.Name, "duplicate", rep.Duplicates)
	p.metrics.Candidate(n.Name, "malformed", rep.Malformed)
	p.metrics.ObserveStep(string(StageDiscover), time.Since(start))
	p.logger.Info("discovered listing page",
		zap.String("node", n.Name),
		zap.Int("page", cursor),
		zap.Int("total_pages", rep.TotalPages),
		zap.Int("new", rep.New),
		zap.Int("duplicates", rep.Duplicates),
		zap.Int("malformed", rep.Malformed),
		zap.Bool("fetch_failed", rep.FetchError != ""),
	)

	return rep, nil
}

func (p *Pipeline) stageCandidates(ctx context.Context, pc Context, page *extract.Page, rep *DiscoverReport) error {
	n := &pc.Node
	candidates, malformed, err := readCandidates(n.URLRule, n.TitleRule, page)
	if err != nil {
		// A rule that cannot be applied to this page is reported like a
		// page without matches.
		pc.printf("page %d: %v", rep.Page, err)
		p.logger.Warn("listing rule failed", zap.String("node", n.Name), zap.String("url", page.URL), zap.Error(err))
	}

	rep.Found = len(candidates) + malformed
	rep.Malformed = malformed

	for _, c := range candidates {
		claimed, err := p.history.Claim(ctx, n.ID, c.url)
		if err != nil {
			return err
		}
		if !claimed {
			rep.Duplicates++
			continue
		}

		item, err := p.staging.Add(ctx, n.ID, c.url, c.title)
		if err != nil {
			// Give the URL back so the next pass can stage it.
			if ferr := p.history.Forget(ctx, c.url); ferr != nil {
				p.logger.Error("failed to release history claim", zap.String("url", c.url), zap.Error(ferr))
			}
			return err
		}
		rep.New++
		rep.NewIDs = append(rep.NewIDs, item.ID)
	}

	return nil
}

// readCandidates pairs the i-th URL match with the i-th title match. A pair
// missing either side is malformed. Without a title rule the URL doubles as
// the title.
func readCandidates(urlRule, titleRule extract.Rule, page *extract.Page) ([]candidate, int, error) {
	urlEx, err := extract.Compile(urlRule)
	if err != nil {
		return nil, 0, fmt.Errorf("url rule: %w", err)
	}
	urls, err := urlEx.All(page)
	if err != nil {
		return nil, 0, fmt.Errorf("url rule: %w", err)
	}

	var titles []string
	hasTitleRule := !titleRule.IsZero()
	if hasTitleRule {
		titleEx, err := extract.Compile(titleRule)
		if err != nil {
			return nil, 0, fmt.Errorf("title rule: %w", err)
		}
		if titles, err = titleEx.All(page); err != nil {
			return nil, 0, fmt.Errorf("title rule: %w", err)
		}
	}

	count := len(urls)
	if hasTitleRule && len(titles) > count {
		count = len(titles)
	}

	var candidates []candidate
	malformed := 0
	for i := 0; i < count; i++ {
		var c candidate
		if i < len(urls) {
			c.url = extract.ResolveURL(page.URL, urls[i])
		}
		if !hasTitleRule {
			c.title = c.url
		} else if i < len(titles) {
			c.title = extract.StripMarkup(titles[i])
		}

		if c.url == "" || c.title == "" {
			malformed++
			continue
		}
		candidates = append(candidates, c)
	}

	return candidates, malformed, nil
}
