package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pevans/collect/category"
	"github.com/pevans/collect/node"
	"github.com/pevans/collect/staging"
)

// printNodeTable prints nodes in human-readable table format
func printNodeTable(w io.Writer, nodes []node.Node) {
	if len(nodes) == 0 {
		fmt.Fprintln(w, "No nodes configured.")
		return
	}

	fmt.Fprintf(w, "%-36s %-24s %-8s %-6s %-16s %s\n", "ID", "NAME", "KIND", "MODE", "LAST RUN", "SCHEDULE")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, n := range nodes {
		lastRun := "never"
		if n.LastRunAt != nil {
			lastRun = n.LastRunAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%-36s %-24s %-8s %-6s %-16s %s\n",
			n.ID.String(),
			truncate(n.Name, 24),
			n.TargetKind,
			n.SourceMode,
			lastRun,
			n.Schedule,
		)
	}
}

// printItemTable prints staged items in human-readable table format
func printItemTable(w io.Writer, items []staging.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No items to display.")
		return
	}

	for _, item := range items {
		title := item.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "#%d [%s] %s\n", item.ID, item.Status, truncate(title, 70))
		fmt.Fprintf(w, "   URL: %s\n", item.URL)
		fmt.Fprintf(w, "   Updated: %s\n", item.UpdatedAt.Local().Format("2006-01-02 15:04"))
		if item.Message != "" {
			fmt.Fprintf(w, "   Message: %s\n", truncate(item.Message, 150))
		}
		fmt.Fprintln(w)
	}
}

// printCategoryTable prints categories in human-readable table format
func printCategoryTable(w io.Writer, cats []category.Category) {
	if len(cats) == 0 {
		fmt.Fprintln(w, "No categories configured.")
		return
	}

	fmt.Fprintf(w, "%-10s %-40s %s\n", "KIND", "NAME", "ID")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, c := range cats {
		fmt.Fprintf(w, "%-10s %-40s %d\n", c.Kind, truncate(c.Name, 40), c.ID)
	}
}
