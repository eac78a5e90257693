// Package extract mines composition, heat treatment, mechanical property and
// microstructure data out of papers.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MalithGihan/steelminer/internal/ingest"
	"github.com/MalithGihan/steelminer/internal/metrics"
	"github.com/MalithGihan/steelminer/pkg/types"
)

const snippetLen = 1000

type Extractor struct {
	Loader *ingest.Loader
	// Workers bounds how many papers are processed at once.
	Workers int
	// SkipTables disables table extraction, which for PDFs runs external tools.
	SkipTables bool
	Log        *zap.Logger
	Metrics    *metrics.Metrics
}

func (x *Extractor) log() *zap.Logger {
	if x.Log == nil {
		return zap.NewNop()
	}
	return x.Log
}

func snippet(text string) string {
	if text == "" {
		return ""
	}
	if utf8.RuneCountInString(text) <= snippetLen {
		return text + "..."
	}
	return string([]rune(text)[:snippetLen]) + "..."
}

// ProcessPaper extracts one record from a paper file. Text values win over
// table values for the same field.
func (x *Extractor) ProcessPaper(ctx context.Context, path string) (types.SteelRecord, error) {
	start := time.Now()
	defer func() { x.Metrics.ObserveExtract(time.Since(start)) }()

	paper, err := x.Loader.Load(ctx, path)
	if err != nil {
		return types.SteelRecord{}, fmt.Errorf("load %s: %w", path, err)
	}
	for _, n := range paper.Notes {
		x.log().Warn("paper loaded with problems", zap.String("file", path), zap.String("note", n))
	}
	text := strings.TrimSpace(strings.Join([]string{paper.Title, paper.Abstract, paper.Body}, "\n\n"))

	rec := FromText(text)
	rec.FilePath = path
	rec.TextSnippet = snippet(text)
	route := ingest.DetectType(path) + " -> text"

	if !x.SkipTables {
		tables, err := x.Loader.Tables(ctx, paper, path)
		if err != nil {
			x.log().Warn("table extraction failed", zap.String("file", path), zap.Error(err))
		}
		if fromTables, page := TableValues(tables); fromTables.HasData() {
			Merge(&rec, fromTables)
			rec.SourcePage = page
			route += " + tables(" + tables[0].Method + ")"
		}
	}
	rec.QualityMetadata.ParsingPath = route
	return rec, nil
}

// PDFs lists the PDF files of dir, matched case-insensitively, in name order.
func PDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// ProcessDirectory extracts every PDF in dir on a bounded worker pool. Papers
// that fail or yield nothing are logged and left out; the result keeps file
// name order.
func (x *Extractor) ProcessDirectory(ctx context.Context, dir string) ([]types.SteelRecord, error) {
	files, err := PDFs(dir)
	if err != nil {
		return nil, err
	}
	results := make([]*types.SteelRecord, len(files))

	g, gctx := errgroup.WithContext(ctx)
	workers := x.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			x.log().Info("processing paper", zap.String("file", filepath.Base(f)))
			rec, err := x.ProcessPaper(gctx, f)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				x.log().Error("paper failed", zap.String("file", f), zap.Error(err))
				return nil
			}
			if !rec.HasData() {
				x.log().Warn("no data extracted", zap.String("file", filepath.Base(f)))
				return nil
			}
			results[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dataset := make([]types.SteelRecord, 0, len(files))
	for _, r := range results {
		if r != nil {
			dataset = append(dataset, *r)
		}
	}
	x.log().Info("papers processed", zap.Int("records", len(dataset)), zap.Int("files", len(files)))
	return dataset, nil
}
