package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MalithGihan/steelminer/internal/pipeline"
)

var opts = pipeline.DefaultOptions(time.Now())

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run harvest, download and extraction in order",
	Long: `Runs the three stages in order. A failing stage is logged and the next
stage still runs. Extraction is skipped when steel_data.json is newer than
every downloaded PDF, unless --force-extract is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()
		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		return a.pipeline.Run(ctx, opts)
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Harvest DOIs from Crossref and OpenAlex into the DOI list",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()
		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		added, total, err := a.pipeline.Fetch(ctx, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d new DOIs, %d total\n", added, total)
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download open-access PDFs for the DOI list",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()
		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		n, err := a.pipeline.Download(ctx, opts.ForceDownload)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d papers downloaded\n", n)
		return nil
	},
}

var skipTables bool

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract steel data from downloaded PDFs into steel_data.json and .xlsx",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()
		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		a.extractor.SkipTables = skipTables
		saved, err := a.pipeline.Extract(ctx, opts.ForceExtract)
		if err != nil {
			return err
		}
		if saved.JSONPath == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "dataset is up to date")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d records written to %s (%d rejected)\n",
			len(saved.Records), saved.JSONPath, len(saved.Errors))
		return nil
	},
}

func addPipelineFlags() {
	for _, c := range []*cobra.Command{runCmd, fetchCmd} {
		c.Flags().IntVar(&opts.StartYear, "start-year", opts.StartYear, "First publication year to harvest")
		c.Flags().IntVar(&opts.EndYear, "end-year", opts.EndYear, "Last publication year to harvest")
		c.Flags().IntVar(&opts.PerSourceLimit, "per-source-limit", opts.PerSourceLimit, "Maximum new DOIs per source and keyword")
	}
	for _, c := range []*cobra.Command{runCmd, downloadCmd} {
		c.Flags().BoolVar(&opts.ForceDownload, "force-download", false, "Download papers again even if the file exists")
	}
	for _, c := range []*cobra.Command{runCmd, extractCmd} {
		c.Flags().BoolVar(&opts.ForceExtract, "force-extract", false, "Extract even if the dataset is up to date")
	}
	runCmd.Flags().BoolVar(&opts.SkipFetch, "skip-fetch", false, "Skip DOI harvesting")
	extractCmd.Flags().BoolVar(&skipTables, "skip-tables", false, "Only mine text, skip table extraction")
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
