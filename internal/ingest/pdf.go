package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/MalithGihan/steelminer/internal/deps"
	"github.com/MalithGihan/steelminer/internal/metrics"
	"github.com/MalithGihan/steelminer/internal/ocr"
	"github.com/MalithGihan/steelminer/pkg/types"
)

// PDF extracts tables and text from PDF files through a chain of external
// tools. Every tool is optional; a missing one only skips its step.
type PDF struct {
	Runner    deps.Runner
	TabulaJar string
	OCR       ocr.Engine
	Languages []string
	DPI       int
	Log       *zap.Logger
	Metrics   *metrics.Metrics
}

type pdfStrategy struct {
	name string
	run  func(ctx context.Context, path string) ([]types.Table, error)
}

func (p *PDF) strategies() []pdfStrategy {
	return []pdfStrategy{
		{"tabula-lattice", func(ctx context.Context, path string) ([]types.Table, error) {
			return p.tabula(ctx, path, "lattice")
		}},
		{"tabula-stream", func(ctx context.Context, path string) ([]types.Table, error) {
			return p.tabula(ctx, path, "stream")
		}},
		{"poppler-layout", p.layoutTables},
		{"ocr", p.ocrTables},
	}
}

func (p *PDF) log() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}

// Tables returns the tables of the first strategy that finds any.
func (p *PDF) Tables(ctx context.Context, path string) ([]types.Table, error) {
	log := p.log().With(zap.String("file", path))
	for _, s := range p.strategies() {
		tables, err := s.run(ctx, path)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		switch {
		case errors.Is(err, deps.ErrToolMissing):
			log.Debug("pdf strategy skipped", zap.String("strategy", s.name), zap.Error(err))
			continue
		case err != nil:
			log.Warn("pdf strategy failed", zap.String("strategy", s.name), zap.Error(err))
			continue
		}
		if len(tables) > 0 {
			log.Info("pdf tables extracted", zap.String("strategy", s.name), zap.Int("tables", len(tables)))
			p.Metrics.Tables(s.name, len(tables))
			return tables, nil
		}
		log.Debug("pdf strategy found no tables", zap.String("strategy", s.name))
	}
	log.Warn("no tables extracted from pdf")
	return nil, ErrNoTables
}

func (p *PDF) require(name string) error {
	if p.Runner == nil {
		return fmt.Errorf("%s: %w", name, deps.ErrToolMissing)
	}
	if _, err := p.Runner.LookPath(name); err != nil {
		return fmt.Errorf("%s: %w", name, deps.ErrToolMissing)
	}
	return nil
}

type tabulaTable struct {
	Method string `json:"extraction_method"`
	Page   int    `json:"page_number"`
	Data   [][]struct {
		Text string `json:"text"`
	} `json:"data"`
}

func (p *PDF) tabula(ctx context.Context, path, mode string) ([]types.Table, error) {
	if p.TabulaJar == "" {
		return nil, fmt.Errorf("tabula jar not configured: %w", deps.ErrToolMissing)
	}
	if _, err := os.Stat(p.TabulaJar); err != nil {
		return nil, fmt.Errorf("tabula jar %s: %w", p.TabulaJar, deps.ErrToolMissing)
	}
	if err := p.require("java"); err != nil {
		return nil, err
	}
	out, err := p.Runner.Run(ctx, "java", "-jar", p.TabulaJar, "-f", "JSON", "-p", "all", "--"+mode, path)
	if err != nil {
		return nil, err
	}
	var raw []tabulaTable
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("decode tabula output: %w", err)
	}
	var tables []types.Table
	for _, rt := range raw {
		var rows [][]string
		for _, r := range rt.Data {
			row := make([]string, len(r))
			filled := false
			for i, c := range r {
				row[i] = CleanCell(c.Text)
				filled = filled || row[i] != ""
			}
			if filled {
				rows = append(rows, row)
			}
		}
		if len(rows) == 0 {
			continue
		}
		t := types.Table{Caption: "Tabula table", Rows: rows, Method: "tabula-" + mode}
		if rt.Page > 0 {
			t.Page = rt.Page
			t.Caption = fmt.Sprintf("Tabula table on page %d", rt.Page)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// layoutTables reads captioned tables out of pdftotext's layout-preserving
// output, page by page.
func (p *PDF) layoutTables(ctx context.Context, path string) ([]types.Table, error) {
	if err := p.require("pdftotext"); err != nil {
		return nil, err
	}
	out, err := p.Runner.Run(ctx, "pdftotext", "-layout", path, "-")
	if err != nil {
		return nil, err
	}
	var tables []types.Table
	for i, page := range strings.Split(string(out), "\f") {
		for _, tt := range textTables(page) {
			if !looksLikeTable(tt.rows) {
				continue
			}
			tables = append(tables, types.Table{Caption: tt.caption, Rows: cleanRows(tt.rows), Page: i + 1, Method: "poppler-layout"})
		}
	}
	return tables, nil
}

func cleanRows(rows [][]string) [][]string {
	for _, r := range rows {
		for i := range r {
			r[i] = CleanCell(r[i])
		}
	}
	return rows
}

var rePageImage = regexp.MustCompile(`-(\d+)\.png$`)

// renderPages rasterises every page with pdftoppm and returns the image paths
// in page order together with a cleanup func.
func (p *PDF) renderPages(ctx context.Context, path string) ([]string, func(), error) {
	if err := p.require("pdftoppm"); err != nil {
		return nil, nil, err
	}
	dir, err := os.MkdirTemp("", "steelminer-pages-")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 300
	}
	if _, err := p.Runner.Run(ctx, "pdftoppm", "-r", strconv.Itoa(dpi), "-png", path, filepath.Join(dir, "page")); err != nil {
		cleanup()
		return nil, nil, err
	}
	images, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	sort.Slice(images, func(i, j int) bool { return pageNumber(images[i]) < pageNumber(images[j]) })
	return images, cleanup, nil
}

func pageNumber(image string) int {
	m := rePageImage.FindStringSubmatch(image)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func (p *PDF) ocrTables(ctx context.Context, path string) ([]types.Table, error) {
	if p.OCR == nil {
		return nil, fmt.Errorf("ocr engine: %w", deps.ErrToolMissing)
	}
	images, cleanup, err := p.renderPages(ctx, path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var tables []types.Table
	for i, img := range images {
		page := i + 1
		b, err := os.ReadFile(img)
		if err != nil {
			return nil, err
		}
		words, err := p.OCR.Words(ctx, b, p.Languages)
		if err != nil {
			p.log().Error("ocr failed", zap.String("file", path), zap.Int("page", page), zap.Error(err))
			continue
		}
		for _, block := range ocr.Group(words) {
			var rows [][]string
			for _, line := range block {
				row := make([]string, 0, len(line))
				for _, w := range line {
					row = append(row, CleanCell(w.Text))
				}
				rows = append(rows, row)
			}
			if looksLikeTable(rows) {
				tables = append(tables, types.Table{
					Caption: fmt.Sprintf("OCR table on page %d", page),
					Rows:    rows,
					Page:    page,
					Method:  "ocr",
				})
			}
		}
	}
	return tables, nil
}

// Text returns the plain text of a PDF: the embedded text layer first, then
// pdftotext, then OCR of the rendered pages for scanned documents.
func (p *PDF) Text(ctx context.Context, path string) (string, error) {
	log := p.log().With(zap.String("file", path))
	text, err := plainText(path)
	if err != nil {
		log.Debug("pdf text layer unreadable", zap.Error(err))
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}
	if err := p.require("pdftotext"); err == nil {
		out, err := p.Runner.Run(ctx, "pdftotext", path, "-")
		if err != nil {
			log.Debug("pdftotext failed", zap.Error(err))
		} else if strings.TrimSpace(string(out)) != "" {
			return string(out), nil
		}
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	text, err = p.ocrText(ctx, path)
	if errors.Is(err, deps.ErrToolMissing) {
		log.Warn("no text layer and ocr unavailable", zap.Error(err))
		return "", nil
	}
	return text, err
}

func (p *PDF) ocrText(ctx context.Context, path string) (string, error) {
	if p.OCR == nil {
		return "", fmt.Errorf("ocr engine: %w", deps.ErrToolMissing)
	}
	images, cleanup, err := p.renderPages(ctx, path)
	if err != nil {
		return "", err
	}
	defer cleanup()
	var pages []string
	for i, img := range images {
		b, err := os.ReadFile(img)
		if err != nil {
			return "", err
		}
		t, err := p.OCR.Text(ctx, b, p.Languages)
		if err != nil {
			p.log().Error("ocr text failed", zap.String("file", path), zap.Int("page", i+1), zap.Error(err))
			continue
		}
		if strings.TrimSpace(t) != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n"), nil
}

// plainText reads the embedded text layer. The pdf reader panics on some
// malformed files, which is reported as an error.
func plainText(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf %s: %v", path, r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(t)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
