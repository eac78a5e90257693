// Package pipeline runs the harvest, download and extraction stages in order.
// A failing stage is logged and the next one still runs on whatever the
// previous runs left on disk.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/MalithGihan/steelminer/internal/collect"
	"github.com/MalithGihan/steelminer/internal/download"
	"github.com/MalithGihan/steelminer/internal/extract"
	"github.com/MalithGihan/steelminer/internal/metrics"
	"github.com/MalithGihan/steelminer/internal/store"
)

type Options struct {
	StartYear      int
	EndYear        int
	PerSourceLimit int
	ForceDownload  bool
	ForceExtract   bool
	SkipFetch      bool
}

// DefaultOptions mirrors the CLI defaults for the given clock.
func DefaultOptions(now time.Time) Options {
	return Options{StartYear: 2012, EndYear: now.Year(), PerSourceLimit: 300}
}

type Pipeline struct {
	Store      *store.FS
	Harvester  *collect.Harvester
	Downloader *download.Downloader
	Extractor  *extract.Extractor
	Log        *zap.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Fetch harvests DOIs and merges them into the DOI list.
func (p *Pipeline) Fetch(ctx context.Context, o Options) (added, total int, err error) {
	if o.EndYear < o.StartYear {
		return 0, 0, fmt.Errorf("end year %d is before start year %d", o.EndYear, o.StartYear)
	}
	items, err := p.Harvester.FetchAll(ctx, o.StartYear, o.EndYear, o.PerSourceLimit)
	if err != nil {
		return 0, 0, fmt.Errorf("harvest: %w", err)
	}
	added, total, err = collect.SaveIncremental(p.Store, items, true, p.now())
	if err != nil {
		return 0, 0, fmt.Errorf("save doi list: %w", err)
	}
	p.Log.Info("doi list updated", zap.Int("new", added), zap.Int("total", total))
	return added, total, nil
}

// Download fetches every listed paper not yet on disk, or all of them when
// force is set.
func (p *Pipeline) Download(ctx context.Context, force bool) (int, error) {
	p.Downloader.Force = force
	all, err := p.Downloader.Batch(ctx)
	return len(all), err
}

// NeedsExtraction reports whether the dataset is missing or older than the
// newest PDF in the papers directory.
func NeedsExtraction(papersDir, dataset string) (bool, string, error) {
	out, err := os.Stat(dataset)
	if errors.Is(err, os.ErrNotExist) {
		return true, "dataset missing", nil
	}
	if err != nil {
		return false, "", err
	}
	pdfs, err := extract.PDFs(papersDir)
	if errors.Is(err, os.ErrNotExist) {
		return false, "no papers directory", nil
	}
	if err != nil {
		return false, "", err
	}
	var newest time.Time
	for _, f := range pdfs {
		fi, err := os.Stat(f)
		if err != nil {
			continue
		}
		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}
	if newest.After(out.ModTime()) {
		return true, "new papers since last extraction", nil
	}
	return false, "dataset is up to date", nil
}

// Extract mines the papers directory into the output directory when needed.
// It returns the zero Saved value when extraction was skipped.
func (p *Pipeline) Extract(ctx context.Context, force bool) (extract.Saved, error) {
	outDir := p.Store.OutputDir()
	if !force {
		need, why, err := NeedsExtraction(p.Store.PapersDir(), filepath.Join(outDir, extract.DatasetFile))
		if err != nil {
			return extract.Saved{}, err
		}
		if !need {
			p.Log.Info("extraction skipped", zap.String("reason", why))
			return extract.Saved{}, nil
		}
		p.Log.Info("extraction needed", zap.String("reason", why))
	}
	dataset, err := p.Extractor.ProcessDirectory(ctx, p.Store.PapersDir())
	if err != nil {
		return extract.Saved{}, fmt.Errorf("extract: %w", err)
	}
	saved, err := extract.Save(dataset, outDir, p.Log, p.Metrics)
	if err != nil {
		return saved, fmt.Errorf("save dataset: %w", err)
	}
	p.Log.Info("dataset saved", zap.String("json", saved.JSONPath), zap.String("excel", saved.ExcelPath),
		zap.Int("records", len(saved.Records)), zap.Int("rejected", len(saved.Errors)))
	return saved, nil
}

// Run executes the three stages. Stage errors are collected rather than
// stopping the run; cancellation stops it.
func (p *Pipeline) Run(ctx context.Context, o Options) error {
	var errs []error
	stage := func(name string, fn func() error) {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		p.Log.Info("stage started", zap.String("stage", name))
		if err := fn(); err != nil {
			p.Log.Error("stage failed", zap.String("stage", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		p.Log.Info("stage finished", zap.String("stage", name), zap.Duration("took", time.Since(start)))
	}

	if o.SkipFetch {
		p.Log.Info("stage skipped", zap.String("stage", "fetch"))
	} else {
		stage("fetch", func() error {
			_, _, err := p.Fetch(ctx, o)
			return err
		})
	}
	stage("download", func() error {
		_, err := p.Download(ctx, o.ForceDownload)
		return err
	})
	stage("extract", func() error {
		_, err := p.Extract(ctx, o.ForceExtract)
		return err
	})

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
