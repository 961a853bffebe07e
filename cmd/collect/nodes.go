package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pevans/collect/node"
	"github.com/spf13/cobra"
)

func newNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "manage collection nodes",
	}
	cmd.AddCommand(newNodeListCmd(), newNodeShowCmd(), newNodeImportCmd(), newNodeExportCmd(), newNodeDeleteCmd())
	return cmd
}

func newNodeListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "list all nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			nodes, err := a.nodes.List(cmd.Context(), node.Filter{})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				return printJSON(out, nodes)
			}
			printNodeTable(out, nodes)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format (table, json)")
	return cmd
}

func newNodeShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <node>",
		Short: "print a node as YAML",
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
			return node.WriteFile(cmd.OutOrStdout(), []node.Node{*n})
		},
	}
}

func newNodeImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "create or update nodes from a YAML file",
		Long:  "import reads a node file and creates or updates nodes by name. Nothing is written unless every node in the file is valid.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := node.LoadFile(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.nodes.Import(cmd.Context(), f)
			if err != nil {
				var verr *node.ValidationError
				if errors.As(err, &verr) {
					for _, p := range verr.Problems {
						fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", p)
					}
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %s: %d created, %d updated\n", args[0], result.Created, result.Updated)
			return nil
		},
	}
}

func newNodeExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "write every node to a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			nodes, err := a.nodes.List(cmd.Context(), node.Filter{})
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return node.WriteFile(cmd.OutOrStdout(), nodes)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := node.WriteFile(f, nodes); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newNodeDeleteCmd() *cobra.Command {
	var purgeHistory bool

	cmd := &cobra.Command{
		Use:   "delete <node>",
		Short: "delete a node and its staged items",
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
			if err := a.controller.Pipeline().DeleteNode(cmd.Context(), n.ID, purgeHistory); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted node: %s\n", n.Name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&purgeHistory, "purge-history", false, "also forget the node's URLs so they can be discovered again")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
