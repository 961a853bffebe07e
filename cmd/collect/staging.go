package main

import (
	"fmt"
	"strconv"

	"github.com/pevans/collect/staging"
	"github.com/spf13/cobra"
)

func newStagingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staging",
		Short: "inspect and purge staged items",
	}
	cmd.AddCommand(newStagingListCmd(), newStagingStatsCmd(), newStagingPurgeCmd())
	return cmd
}

func newStagingListCmd() *cobra.Command {
	var status string
	var limit, offset int
	var format string

	cmd := &cobra.Command{
		Use:   "list <node>",
		Short: "list a node's staged items, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.findNode(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			filter := staging.Filter{NodeID: &n.ID, Limit: limit, Offset: offset}
			if status != "" {
				st := staging.Status(status)
				if !validStatus(st) {
					return fmt.Errorf("invalid status %q: must be discovered, extracted or imported", status)
				}
				filter.Status = &st
			}

			items, err := a.staging.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				return printJSON(out, items)
			}
			printItemTable(out, items)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only items with this status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of items")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of items to skip")
	cmd.Flags().StringVar(&format, "format", "table", "output format (table, json)")
	return cmd
}

func newStagingStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <node>",
		Short: "count a node's staged items per status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.findNode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			stats, err := a.staging.Stats(cmd.Context(), n.ID)
			if err != nil {
				return err
			}
			seen, err := a.history.Count(cmd.Context(), n.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Node: %s\n", n.Name)
			for _, st := range staging.Statuses {
				fmt.Fprintf(out, "  %-10s %d\n", st, stats[st])
			}
			fmt.Fprintf(out, "  %-10s %d\n", "history", seen)
			return nil
		},
	}
}

func newStagingPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <item-id>",
		Short: "delete a staged item and forget its URL",
		Long:  "purge removes a staged item and its history entry, so the next discovery stages the URL again.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item ID %q", args[0])
			}

			a, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			item, err := a.controller.Pipeline().PurgeItem(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Purged item %d: %s\n", item.ID, item.URL)
			return nil
		},
	}
}

func validStatus(st staging.Status) bool {
	for _, s := range staging.Statuses {
		if s == st {
			return true
		}
	}
	return false
}
