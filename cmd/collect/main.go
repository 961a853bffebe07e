package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pevans/collect/config"
	"github.com/pevans/collect/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
	logCloser  io.Closer
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "collect",
		Short:         "collect web content into a site",
		Long:          "collect discovers content URLs on listing pages, extracts fields from detail pages and imports the mapped records.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			logger, logCloser, err = log.New(log.Options{Level: cfg.Log.Level, File: cfg.Log.File})
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Sync()
			}
			if logCloser != nil {
				logCloser.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $COLLECT_CONFIG or ~/.collect/config.yaml)")

	root.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newStepCmd(),
		newNodeCmd(),
		newCategoryCmd(),
		newStagingCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
