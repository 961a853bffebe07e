package main

import (
	"fmt"
	"strconv"

	"github.com/pevans/collect/category"
	"github.com/spf13/cobra"
)

func newCategoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "manage the category lookup table",
	}

	list := &cobra.Command{
		Use:   "list [kind]",
		Short: "list categories, optionally of one kind",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			kind := ""
			if len(args) == 1 {
				kind = args[0]
			}
			cats, err := a.categories.List(cmd.Context(), kind)
			if err != nil {
				return err
			}
			printCategoryTable(cmd.OutOrStdout(), cats)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <kind> <name> <id>",
		Short: "add or change a category",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid category ID %q", args[2])
			}

			a, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.categories.Set(cmd.Context(), category.Category{Kind: args[0], Name: args[1], ID: id}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s/%s = %d\n", args[0], args[1], id)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <kind> <name>",
		Short: "remove a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.categories.Delete(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s/%s\n", args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(list, set, del)
	return cmd
}
