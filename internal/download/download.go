// Package download fetches open-access PDFs for harvested DOIs, trying the
// OpenAlex link, Unpaywall, a publisher-specific URL and finally doi.org
// resolution with landing-page scraping.
package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MalithGihan/steelminer/internal/collect"
	"github.com/MalithGihan/steelminer/internal/httpx"
	"github.com/MalithGihan/steelminer/internal/metrics"
	"github.com/MalithGihan/steelminer/internal/store"
	"github.com/MalithGihan/steelminer/pkg/types"
)

// minPDFSize rejects error pages and stubs served with a PDF content type.
const minPDFSize = 2048

var ErrNotFound = errors.New("all download strategies failed")

type Downloader struct {
	Client       *httpx.Client
	Store        *store.FS
	Email        string
	ElsevierKey  string
	UnpaywallURL string
	ResolverURL  string
	Log          *zap.Logger
	Metrics      *metrics.Metrics

	Force    bool
	DelayMin time.Duration
	DelayMax time.Duration
	Now      func() time.Time
}

func (d *Downloader) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// FileName is the on-disk name for a DOI's PDF.
func FileName(doi string) string {
	return strings.ReplaceAll(collect.NormDOI(doi), "/", "_") + ".pdf"
}

// Paper downloads one record and reports which strategy produced the file.
// An existing file is reused unless Force is set.
func (d *Downloader) Paper(ctx context.Context, rec types.DOIRecord) (string, string, error) {
	doi := collect.NormDOI(rec.DOI)
	if doi == "" {
		return "", "", fmt.Errorf("empty doi: %w", ErrNotFound)
	}
	path := filepath.Join(d.Store.PapersDir(), FileName(doi))
	if !d.Force {
		if _, err := os.Stat(path); err == nil {
			d.Log.Debug("file exists", zap.String("file", filepath.Base(path)))
			return path, "cached", nil
		}
	}
	if err := os.MkdirAll(d.Store.PapersDir(), 0o755); err != nil {
		return "", "", err
	}

	if rec.OAPDFURL != "" && d.tryPDF(ctx, rec.OAPDFURL, nil, path) {
		return path, "openalex", nil
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	if u := d.unpaywall(ctx, doi); u != "" && d.tryPDF(ctx, u, nil, path) {
		return path, "unpaywall", nil
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	for _, key := range strategyKeys(rec.Publisher, doi) {
		s := strategies(d.ElsevierKey)[key]
		u := strategyURL(key, s.URL, doi, rec.URL)
		if u == "" {
			continue
		}
		if len(s.Params) > 0 {
			u += "?" + s.Params.Encode()
		}
		if d.tryPDF(ctx, u, s.Header, path) {
			return path, key, nil
		}
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	if d.resolve(ctx, doi, path) {
		return path, "doi", nil
	}
	return "", "", fmt.Errorf("%s: %w", doi, ErrNotFound)
}

func (d *Downloader) unpaywall(ctx context.Context, doi string) string {
	u := fmt.Sprintf("%s/v2/%s?%s", d.UnpaywallURL, escapeDOI(doi), url.Values{"email": {d.Email}}.Encode())
	resp, err := d.Client.Get(ctx, u, nil)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ""
	}
	var data struct {
		Best *struct {
			URLForPDF string `json:"url_for_pdf"`
		} `json:"best_oa_location"`
		Locations []struct {
			URLForPDF string `json:"url_for_pdf"`
		} `json:"oa_locations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return ""
	}
	if data.Best != nil && data.Best.URLForPDF != "" {
		return data.Best.URLForPDF
	}
	for _, l := range data.Locations {
		if l.URLForPDF != "" {
			return l.URLForPDF
		}
	}
	return ""
}

// tryPDF accepts only a 200 PDF response larger than minPDFSize.
func (d *Downloader) tryPDF(ctx context.Context, u string, header http.Header, path string) bool {
	resp, err := d.Client.Get(ctx, u, header)
	if err != nil {
		d.Log.Debug("pdf request failed", zap.String("url", u), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !isPDF(resp) {
		return false
	}
	ok, err := saveBody(resp.Body, path)
	if err != nil {
		d.Log.Warn("save pdf", zap.String("path", path), zap.Error(err))
	}
	return ok
}

func (d *Downloader) resolve(ctx context.Context, doi, path string) bool {
	resp, err := d.Client.Get(ctx, d.ResolverURL+"/"+escapeDOI(doi), nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(ct, "application/pdf") {
		ok, _ := saveBody(resp.Body, path)
		return ok
	}
	if !strings.Contains(ct, "text/html") {
		return false
	}
	page, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return false
	}
	for _, link := range PDFLinks(string(page), resp.Request.URL) {
		if d.tryPDF(ctx, link, nil, path) {
			return true
		}
	}
	return false
}

func isPDF(resp *http.Response) bool {
	return strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "pdf")
}

// saveBody streams r to path through a temp file and keeps it only when it
// is big enough to be a real paper.
func saveBody(r io.Reader, path string) (bool, error) {
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return false, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil || n <= minPDFSize {
		os.Remove(tmp)
		return false, err
	}
	return true, os.Rename(tmp, path)
}

// Batch downloads every record in the DOI list, writes a per-run log after
// each item, merges successes into downloaded_papers.json and records failures.
// It returns the cumulative downloaded list.
func (d *Downloader) Batch(ctx context.Context) ([]types.DOIRecord, error) {
	var list []types.DOIRecord
	if err := store.ReadJSON(d.Store.DOIList(), &list); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			d.Log.Warn("doi list not found", zap.String("path", d.Store.DOIList()))
			return nil, nil
		}
		return nil, err
	}
	d.Log.Info("starting downloads", zap.Int("papers", len(list)))

	logPath := filepath.Join(d.Store.LogsDir(), fmt.Sprintf("download_log_%s.json", d.now().Format("20060102_150405")))
	var (
		entries    []types.DownloadLogEntry
		downloaded []types.DOIRecord
		failed     []string
	)
	for i, rec := range list {
		if err := ctx.Err(); err != nil {
			break
		}
		doi := collect.NormDOI(rec.DOI)
		start := time.Now()
		path, strat, err := d.Paper(ctx, rec)
		elapsed := time.Since(start)
		if err != nil {
			strat = "none"
		}

		entry := types.DownloadLogEntry{
			DOI:       doi,
			Timestamp: d.now().Format(time.RFC3339),
			Duration:  float64(elapsed.Round(10*time.Millisecond)) / float64(time.Second),
			Success:   err == nil,
		}
		if err == nil {
			rec.FilePath = path
			downloaded = append(downloaded, rec)
			entry.FilePath = path
			entry.Strategy = strat
			d.Log.Info("downloaded", zap.Int("n", i+1), zap.Int("of", len(list)), zap.String("doi", doi),
				zap.String("strategy", strat), zap.Duration("took", elapsed))
		} else {
			failed = append(failed, doi)
			d.Log.Info("download failed", zap.Int("n", i+1), zap.Int("of", len(list)), zap.String("doi", doi))
		}
		d.Metrics.Download(strat, err == nil)
		entries = append(entries, entry)
		if err := store.WriteJSON(logPath, entries); err != nil {
			d.Log.Warn("write download log", zap.Error(err))
		}

		if i < len(list)-1 && strat != "cached" {
			if err := sleepCtx(ctx, jitter(d.DelayMin, d.DelayMax)); err != nil {
				break
			}
		}
	}

	all, err := d.mergeDownloaded(downloaded)
	if err != nil {
		return nil, err
	}
	d.Log.Info("download summary", zap.Int("ok", len(downloaded)), zap.Int("failed", len(failed)), zap.Int("total", len(all)))

	if len(failed) > 0 {
		if err := store.WriteJSON(d.Store.FailedFile(), uniqueSorted(failed)); err != nil {
			return all, err
		}
	}
	return all, ctx.Err()
}

func (d *Downloader) mergeDownloaded(fresh []types.DOIRecord) ([]types.DOIRecord, error) {
	var old []types.DOIRecord
	if err := store.ReadJSON(d.Store.DownloadedFile(), &old); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.Log.Warn("unreadable downloaded list, starting over", zap.Error(err))
		old = nil
	}
	idx := map[string]int{}
	var out []types.DOIRecord
	for _, r := range append(old, fresh...) {
		k := collect.NormDOI(r.DOI)
		if k == "" {
			continue
		}
		if i, ok := idx[k]; ok {
			out[i] = r
			continue
		}
		idx[k] = len(out)
		out = append(out, r)
	}
	if out == nil {
		out = []types.DOIRecord{}
	}
	return out, store.WriteJSON(d.Store.DownloadedFile(), out)
}

func uniqueSorted(in []string) []string {
	set := map[string]bool{}
	for _, s := range in {
		set[s] = true
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min))) // #nosec G404 -- politeness delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
