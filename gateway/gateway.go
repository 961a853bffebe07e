// Package gateway hands mapped records to the target content store.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/pevans/collect/content"
	"github.com/pevans/collect/mapping"
	"github.com/pevans/collect/node"
)

// Result is the content store's answer for one record. A record that was
// rejected has Success false and a reason in Message.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Gateway creates or updates a record of the given kind. An error means
// the store could not be reached; a rejection is reported in Result.
type Gateway interface {
	Import(ctx context.Context, kind node.TargetKind, rec mapping.Record) (Result, error)
}

// DefaultRequired lists the fields each kind must carry to be accepted by a
// ContentGateway.
var DefaultRequired = map[node.TargetKind][]string{
	node.KindArticle:  {"title"},
	node.KindDownload: {"title"},
	node.KindPhoto:    {"title"},
}

// ContentGateway imports into a local content.Store.
type ContentGateway struct {
	store    *content.Store
	required map[node.TargetKind][]string
}

// NewContentGateway creates a gateway writing to store. A nil required map
// selects DefaultRequired.
func NewContentGateway(store *content.Store, required map[node.TargetKind][]string) *ContentGateway {
	if required == nil {
		required = DefaultRequired
	}
	return &ContentGateway{
		store:    store,
		required: required,
	}
}

// Import upserts rec keyed by its kind and source URL.
func (g *ContentGateway) Import(ctx context.Context, kind node.TargetKind, rec mapping.Record) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var missing []string
	for _, name := range g.required[kind] {
		v, ok := rec.Fields[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Result{Message: "missing required fields: " + strings.Join(missing, ", ")}, nil
	}

	entry, created, err := g.store.Upsert(string(kind), rec.SourceURL, rec.Fields)
	if err != nil {
		return Result{}, fmt.Errorf("failed to store record: %w", err)
	}

	if created {
		return Result{Success: true, Message: "created " + entry.ID.String()}, nil
	}
	return Result{Success: true, Message: "updated " + entry.ID.String()}, nil
}
