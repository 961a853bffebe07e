package main

import (
	"fmt"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/pevans/collect/pipeline"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var stage string
	var batch int

	cmd := &cobra.Command{
		Use:   "run <node>",
		Short: "run a node to completion",
		Long:  "run discovers, extracts and imports everything for a node. With --stage only that stage is run.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.findNode(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if stage == "" {
				_, err = a.controller.RunAll(ctx, n.ID, out)
				return err
			}

			st := pipeline.Stage(stage)
			if !st.Valid() {
				return fmt.Errorf("invalid stage %q: must be discover, extract or import", stage)
			}
			_, err = a.controller.RunToCompletion(ctx, pipeline.Start(st, n.ID, batch, false), out)
			return err
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "run only this stage (discover, extract, import)")
	cmd.Flags().IntVar(&batch, "batch", 0, "batch size for extract and import")
	return cmd
}

func newStepCmd() *cobra.Command {
	var batch int
	var chain bool

	cmd := &cobra.Command{
		Use:   "step <token> | step <stage> <node>",
		Short: "do one step of a stage",
		Long: "step does one bounded unit of work and prints the token to continue with. " +
			"Pass the printed token back to resume.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var tok pipeline.Token
			if len(args) == 1 {
				q, err := url.ParseQuery(args[0])
				if err != nil {
					return fmt.Errorf("invalid token: %w", err)
				}
				if tok, err = pipeline.DecodeToken(q); err != nil {
					return err
				}
			} else {
				st := pipeline.Stage(args[0])
				if !st.Valid() {
					return fmt.Errorf("invalid stage %q: must be discover, extract or import", args[0])
				}
				n, err := a.findNode(ctx, args[1])
				if err != nil {
					return err
				}
				tok = pipeline.Start(st, n.ID, batch, chain)
			}

			out := cmd.OutOrStdout()
			next, err := a.controller.Step(ctx, tok, out)
			if err != nil {
				return err
			}

			if next.Done {
				fmt.Fprintln(out, "Done.")
				return nil
			}
			fmt.Fprintf(out, "next: %s\n", next.Encode().Encode())
			return nil
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 0, "batch size for extract and import")
	cmd.Flags().BoolVar(&chain, "chain", false, "continue into the following stages")
	return cmd
}
