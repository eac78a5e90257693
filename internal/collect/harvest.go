// Package collect harvests candidate paper DOIs from Crossref and OpenAlex,
// resuming from persisted cursors and skipping DOIs seen in earlier runs.
package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MalithGihan/steelminer/internal/httpx"
	"github.com/MalithGihan/steelminer/internal/metrics"
	"github.com/MalithGihan/steelminer/internal/store"
	"github.com/MalithGihan/steelminer/pkg/types"
)

// rateLimitRetries bounds how often one keyword may wait out a rate limit.
const rateLimitRetries = 3

// DefaultRateLimitWait is the back-off after a 429 (or OpenAlex 403) when
// RateLimitWait is unset.
const DefaultRateLimitWait = 60 * time.Second

type Harvester struct {
	Client      *httpx.Client
	Store       *store.FS
	Email       string
	CrossrefURL string
	OpenAlexURL string
	Log         *zap.Logger
	Metrics     *metrics.Metrics

	// Sleep waits between pages; nil means a real, context-aware sleep.
	Sleep         func(ctx context.Context, d time.Duration) error
	RateLimitWait time.Duration
}

func (h *Harvester) sleep(ctx context.Context, d time.Duration) error {
	if h.Sleep != nil {
		return h.Sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

func (h *Harvester) rateLimitWait() time.Duration {
	if h.RateLimitWait > 0 {
		return h.RateLimitWait
	}
	return DefaultRateLimitWait
}

func (h *Harvester) cursors() Cursors { return Cursors{Dir: h.Store.CursorDir()} }

type crossrefPage struct {
	Message struct {
		NextCursor string `json:"next-cursor"`
		Items      []struct {
			DOI            string          `json:"DOI"`
			Title          json.RawMessage `json:"title"`
			Publisher      string          `json:"publisher"`
			ContainerTitle json.RawMessage `json:"container-title"`
			URL            string          `json:"URL"`
			Created        struct {
				DateParts [][]*int `json:"date-parts"`
			} `json:"created"`
		} `json:"items"`
	} `json:"message"`
}

// Crossref collects up to max unseen records per keyword.
func (h *Harvester) Crossref(ctx context.Context, keywords []string, startYear, endYear, max int) ([]types.DOIRecord, error) {
	seen := LoadSeen(h.Store)
	cur := h.cursors()
	var out []types.DOIRecord

	for _, kw := range keywords {
		cursor := cur.Load("crossref", kw)
		collected, waits := 0, 0
		for collected < max && cursor != "" {
			q := url.Values{}
			q.Set("query", kw)
			q.Set("filter", fmt.Sprintf("from-pub-date:%d,until-pub-date:%d", startYear, endYear))
			q.Set("rows", "50")
			q.Set("cursor", cursor)
			q.Set("mailto", h.Email)
			q.Set("select", "DOI,title,created,publisher,container-title,URL")

			var page crossrefPage
			status, err := h.getJSON(ctx, h.CrossrefURL+"/works?"+q.Encode(), &page)
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				h.Log.Warn("crossref request failed", zap.String("keyword", kw), zap.Error(err))
				break
			}
			if status == http.StatusTooManyRequests && waits < rateLimitRetries {
				waits++
				h.Log.Info("crossref rate limited, waiting", zap.Duration("wait", h.rateLimitWait()))
				if err := h.sleep(ctx, h.rateLimitWait()); err != nil {
					return out, err
				}
				continue
			}
			if status >= 400 {
				h.Log.Warn("crossref error status", zap.String("keyword", kw), zap.Int("status", status))
				break
			}

			cursor = page.Message.NextCursor
			if cursor != "" {
				if err := cur.Save("crossref", kw, cursor); err != nil {
					h.Log.Warn("save cursor", zap.Error(err))
				}
			}
			if len(page.Message.Items) == 0 {
				break
			}
			for _, it := range page.Message.Items {
				doi := NormDOI(it.DOI)
				if doi == "" || seen[doi] {
					continue
				}
				rec := types.DOIRecord{
					DOI:       doi,
					Title:     firstString(it.Title),
					Publisher: it.Publisher,
					Journal:   firstString(it.ContainerTitle),
					URL:       it.URL,
				}
				if dp := it.Created.DateParts; len(dp) > 0 && len(dp[0]) > 0 && dp[0][0] != nil {
					rec.Year = types.Year(strconv.Itoa(*dp[0][0]))
				}
				out = append(out, rec)
				seen[doi] = true
				collected++
				if collected >= max {
					break
				}
			}
			if err := h.sleep(ctx, jitter(time.Second, 2*time.Second)); err != nil {
				return out, err
			}
		}
	}
	h.Metrics.DOIs("crossref", len(out))
	return out, nil
}

type openAlexPage struct {
	Meta struct {
		NextCursor string `json:"next_cursor"`
	} `json:"meta"`
	Results []struct {
		DOI             string `json:"doi"`
		Title           string `json:"title"`
		PublicationYear *int   `json:"publication_year"`
		HostVenue       struct {
			Publisher   string `json:"publisher"`
			DisplayName string `json:"display_name"`
		} `json:"host_venue"`
		PrimaryLocation struct {
			Source struct {
				DisplayName          string `json:"display_name"`
				HostOrganizationName string `json:"host_organization_name"`
			} `json:"source"`
		} `json:"primary_location"`
		Locations []struct {
			PDFURL string `json:"pdf_url"`
		} `json:"locations"`
	} `json:"results"`
}

// OpenAlex collects open-access journal articles, keeping the first PDF
// location as the record's OA link.
func (h *Harvester) OpenAlex(ctx context.Context, keywords []string, startYear, endYear, max int) ([]types.DOIRecord, error) {
	seen := LoadSeen(h.Store)
	cur := h.cursors()
	var out []types.DOIRecord

	for _, kw := range keywords {
		cursor := cur.Load("openalex", kw)
		collected, waits := 0, 0
		for collected < max && cursor != "" {
			perPage := max - collected
			if perPage > 200 {
				perPage = 200
			}
			q := url.Values{}
			q.Set("search", `"`+kw+`"`)
			q.Set("filter", fmt.Sprintf("publication_year:%d-%d,is_oa:true,type:journal-article", startYear, endYear))
			q.Set("per-page", strconv.Itoa(perPage))
			q.Set("cursor", cursor)
			q.Set("mailto", h.Email)

			var page openAlexPage
			status, err := h.getJSON(ctx, h.OpenAlexURL+"/works?"+q.Encode(), &page)
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				h.Log.Warn("openalex request failed", zap.String("keyword", kw), zap.Error(err))
				break
			}
			if (status == http.StatusForbidden || status == http.StatusTooManyRequests) && waits < rateLimitRetries {
				waits++
				if err := h.sleep(ctx, h.rateLimitWait()); err != nil {
					return out, err
				}
				continue
			}
			if status >= 400 {
				h.Log.Warn("openalex error status", zap.String("keyword", kw), zap.Int("status", status))
				break
			}

			cursor = page.Meta.NextCursor
			if cursor != "" {
				if err := cur.Save("openalex", kw, cursor); err != nil {
					h.Log.Warn("save cursor", zap.Error(err))
				}
			}
			if len(page.Results) == 0 {
				break
			}
			for _, w := range page.Results {
				doi := NormDOI(w.DOI)
				if doi == "" || seen[doi] {
					continue
				}
				rec := types.DOIRecord{
					DOI:       doi,
					Title:     w.Title,
					Publisher: w.HostVenue.Publisher,
					Journal:   w.HostVenue.DisplayName,
					URL:       w.DOI,
				}
				if rec.Publisher == "" {
					rec.Publisher = w.PrimaryLocation.Source.HostOrganizationName
				}
				if rec.Journal == "" {
					rec.Journal = w.PrimaryLocation.Source.DisplayName
				}
				if w.PublicationYear != nil {
					rec.Year = types.Year(strconv.Itoa(*w.PublicationYear))
				}
				for _, loc := range w.Locations {
					if loc.PDFURL != "" {
						rec.OAPDFURL = loc.PDFURL
						break
					}
				}
				out = append(out, rec)
				seen[doi] = true
				collected++
				if collected >= max {
					break
				}
			}
			if err := h.sleep(ctx, jitter(800*time.Millisecond, 1500*time.Millisecond)); err != nil {
				return out, err
			}
		}
	}
	h.Metrics.DOIs("openalex", len(out))
	return out, nil
}

// FetchAll queries both sources; OpenAlex gets a third of the per-source
// budget (at least 50) and wins duplicates when it has a PDF link.
func (h *Harvester) FetchAll(ctx context.Context, startYear, endYear, perSource int) ([]types.DOIRecord, error) {
	h.Log.Info("fetching DOIs from Crossref")
	cr, err := h.Crossref(ctx, Keywords, startYear, endYear, perSource)
	if err != nil {
		return nil, err
	}
	h.Log.Info("crossref done", zap.Int("new", len(cr)))

	oaMax := perSource / 3
	if oaMax < 50 {
		oaMax = 50
	}
	h.Log.Info("fetching DOIs from OpenAlex")
	oa, err := h.OpenAlex(ctx, Keywords, startYear, endYear, oaMax)
	if err != nil {
		return nil, err
	}
	h.Log.Info("openalex done", zap.Int("new", len(oa)))
	return Merge(cr, oa), nil
}

func (h *Harvester) getJSON(ctx context.Context, u string, v any) (int, error) {
	resp, err := h.Client.Get(ctx, u, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", strings.SplitN(u, "?", 2)[0], err)
	}
	return resp.StatusCode, nil
}

// firstString reads a JSON value that is either a string or a list of strings.
func firstString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}
