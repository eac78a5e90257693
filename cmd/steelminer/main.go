package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MalithGihan/steelminer/internal/collect"
	"github.com/MalithGihan/steelminer/internal/config"
	"github.com/MalithGihan/steelminer/internal/deps"
	"github.com/MalithGihan/steelminer/internal/download"
	"github.com/MalithGihan/steelminer/internal/extract"
	"github.com/MalithGihan/steelminer/internal/httpx"
	"github.com/MalithGihan/steelminer/internal/ingest"
	"github.com/MalithGihan/steelminer/internal/logging"
	"github.com/MalithGihan/steelminer/internal/metrics"
	"github.com/MalithGihan/steelminer/internal/ocr/tesseract"
	"github.com/MalithGihan/steelminer/internal/pipeline"
	"github.com/MalithGihan/steelminer/internal/store"
)

var (
	// Global flags
	verbose bool
	logFile string

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "steelminer",
	Short: "Mine steel composition, processing and property data from the literature",
	Long: `steelminer harvests DOIs of steel research papers from Crossref and OpenAlex,
downloads open-access PDFs, extracts tables and text, and mines composition,
heat treatment, mechanical property and microstructure values into a validated
JSON and Excel dataset.

PDF tables and OCR need Java (tabula), Poppler and Tesseract on PATH.
Run "steelminer doctor" to check them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if logger, err = logging.New(verbose, logFile); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file")

	addPipelineFlags()
	addQualityFlags()

	rootCmd.AddCommand(runCmd, fetchCmd, downloadCmd, extractCmd, qualityCmd, doctorCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the components shared by the commands.
type app struct {
	store     *store.FS
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	loader    *ingest.Loader
	extractor *extract.Extractor
	pipeline  *pipeline.Pipeline
}

func newApp(c config.Config, log *zap.Logger) (*app, error) {
	st, err := store.New(c.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("data root: %w", err)
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	fetchClient := httpx.New(c.UserAgent(), c.RequestsPerSecond, 8, 30*time.Second)
	fetchClient.Metrics = m
	downloadClient := httpx.New(c.UserAgent(), c.RequestsPerSecond, 5, 60*time.Second)
	downloadClient.Metrics = m

	loader := &ingest.Loader{PDF: &ingest.PDF{
		Runner:    deps.Exec{},
		TabulaJar: c.TabulaJar,
		OCR:       tesseract.New(c.OCRDPI),
		Languages: strings.Split(c.OCRLang, "+"),
		DPI:       c.OCRDPI,
		Log:       log,
		Metrics:   m,
	}}
	x := &extract.Extractor{Loader: loader, Workers: c.Workers, Log: log, Metrics: m}

	return &app{
		store:     st,
		registry:  reg,
		metrics:   m,
		loader:    loader,
		extractor: x,
		pipeline: &pipeline.Pipeline{
			Store: st,
			Harvester: &collect.Harvester{
				Client:        fetchClient,
				Store:         st,
				Email:         c.Email,
				CrossrefURL:   c.CrossrefURL,
				OpenAlexURL:   c.OpenAlexURL,
				RateLimitWait: c.RateLimitWait,
				Log:           log,
				Metrics:       m,
			},
			Downloader: &download.Downloader{
				Client:       downloadClient,
				Store:        st,
				Email:        c.Email,
				ElsevierKey:  c.ElsevierKey,
				UnpaywallURL: c.UnpaywallURL,
				ResolverURL:  c.ResolverURL,
				Log:          log,
				Metrics:      m,
				DelayMin:     c.DelayMin,
				DelayMax:     c.DelayMax,
			},
			Extractor: x,
			Log:       log,
			Metrics:   m,
		},
	}, nil
}
