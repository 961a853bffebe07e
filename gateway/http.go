package gateway

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pevans/collect/mapping"
	"github.com/pevans/collect/node"
)

// HTTPGateway posts records to a remote content store at
// {BaseURL}/import/{kind}. The remote answers with a JSON Result; any
// non-2xx status is a rejection carrying the response body.
type HTTPGateway struct {
	client *resty.Client
}

// NewHTTPGateway creates an HTTP gateway. token, when set, is sent as a
// bearer token.
func NewHTTPGateway(baseURL, token string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}

	return &HTTPGateway{client: client}
}

// Import implements Gateway.
func (g *HTTPGateway) Import(ctx context.Context, kind node.TargetKind, rec mapping.Record) (Result, error) {
	var result Result
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(rec).
		SetResult(&result).
		Post("/import/" + url.PathEscape(string(kind)))
	if err != nil {
		return Result{}, fmt.Errorf("import request failed: %w", err)
	}

	if resp.IsError() {
		msg := string(resp.Body())
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return Result{Message: fmt.Sprintf("status %d: %s", resp.StatusCode(), msg)}, nil
	}

	return result, nil
}
