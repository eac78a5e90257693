package collect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MalithGihan/steelminer/internal/httpx"
	"github.com/MalithGihan/steelminer/internal/store"
	"github.com/MalithGihan/steelminer/pkg/types"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newHarvester(t *testing.T, srv *httptest.Server) *Harvester {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	c := httpx.New("test", 0, 1, 5*time.Second)
	return &Harvester{
		Client:      c,
		Store:       st,
		Email:       "test@example.org",
		CrossrefURL: srv.URL + "/crossref",
		OpenAlexURL: srv.URL + "/openalex",
		Log:         zap.NewNop(),
		Sleep:       noSleep,
	}
}

func TestNormDOI(t *testing.T) {
	assert.Equal(t, "10.1016/j.msea.2020.1", NormDOI("  https://doi.org/10.1016/J.MSEA.2020.1 "))
	assert.Equal(t, "10.1/x", NormDOI("http://doi.org/10.1/X"))
	assert.Equal(t, "", NormDOI(""))
}

func TestCursors(t *testing.T) {
	c := Cursors{Dir: filepath.Join(t.TempDir(), "cursors")}
	assert.Equal(t, "*", c.Load("crossref", "bainitic steel"))
	require.NoError(t, c.Save("crossref", "bainitic steel", "AoJ+abc"))
	assert.Equal(t, "AoJ+abc", c.Load("crossref", "bainitic steel"))
	assert.FileExists(t, filepath.Join(c.Dir, "crossref_bainitic_steel.txt"))

	require.NoError(t, c.Save("openalex", "x", ""))
	assert.Equal(t, "*", c.Load("openalex", "x"))
	assert.Len(t, sanitize(strings.Repeat("a b ", 50)), 80)
}

func TestCrossrefPagesAndSkipsSeen(t *testing.T) {
	var cursorsSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crossref/works", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "from-pub-date:2015,until-pub-date:2020", q.Get("filter"))
		cursorsSeen = append(cursorsSeen, q.Get("cursor"))
		switch q.Get("cursor") {
		case "*":
			w.Write([]byte(`{"message":{"next-cursor":"page2","items":[
				{"DOI":"10.1/SEEN","title":["Old"]},
				{"DOI":"10.1/A","title":["Bainite kinetics"],"publisher":"Elsevier BV",
				 "container-title":["Mater. Sci. Eng. A"],"URL":"http://dx.doi.org/10.1/a",
				 "created":{"date-parts":[[2018,5,1]]}}]}}`))
		default:
			w.Write([]byte(`{"message":{"next-cursor":"page3","items":[]}}`))
		}
	}))
	defer srv.Close()

	h := newHarvester(t, srv)
	require.NoError(t, SaveSeen(h.Store, map[string]bool{"10.1/seen": true}))

	recs, err := h.Crossref(context.Background(), []string{"bainitic steel"}, 2015, 2020, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, types.DOIRecord{
		DOI: "10.1/a", Title: "Bainite kinetics", Year: "2018", Publisher: "Elsevier BV",
		Journal: "Mater. Sci. Eng. A", URL: "http://dx.doi.org/10.1/a",
	}, recs[0])
	assert.Equal(t, []string{"*", "page2"}, cursorsSeen)
	assert.Equal(t, "page3", Cursors{Dir: h.Store.CursorDir()}.Load("crossref", "bainitic steel"))
}

func TestCrossrefStopsAtLimitAndOnErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "broken") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"message":{"next-cursor":"n","items":[{"DOI":"10.1/a"},{"DOI":"10.1/b"},{"DOI":"10.1/c"}]}}`))
	}))
	defer srv.Close()

	h := newHarvester(t, srv)
	recs, err := h.Crossref(context.Background(), []string{"broken", "steel"}, 2012, 2025, 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestOpenAlexKeepsPDFLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, `"steel"`, q.Get("search"))
		assert.Equal(t, "publication_year:2012-2025,is_oa:true,type:journal-article", q.Get("filter"))
		if q.Get("cursor") != "*" {
			assert.Equal(t, "4", q.Get("per-page"))
			w.Write([]byte(`{"meta":{"next_cursor":null},"results":[]}`))
			return
		}
		assert.Equal(t, "5", q.Get("per-page"))
		w.Write([]byte(`{"meta":{"next_cursor":"c2"},"results":[
			{"doi":"https://doi.org/10.3390/MET1","title":"Q&P steel","publication_year":2021,
			 "primary_location":{"source":{"display_name":"Metals","host_organization_name":"MDPI"}},
			 "locations":[{"pdf_url":null},{"pdf_url":"https://www.mdpi.com/met1.pdf"}]}]}`))
	}))
	defer srv.Close()

	h := newHarvester(t, srv)
	recs, err := h.OpenAlex(context.Background(), []string{"steel"}, 2012, 2025, 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "10.3390/met1", recs[0].DOI)
	assert.Equal(t, types.Year("2021"), recs[0].Year)
	assert.Equal(t, "MDPI", recs[0].Publisher)
	assert.Equal(t, "Metals", recs[0].Journal)
	assert.Equal(t, "https://www.mdpi.com/met1.pdf", recs[0].OAPDFURL)
}

func TestMergePrefersOALink(t *testing.T) {
	cr := []types.DOIRecord{{DOI: "10.1/a", Title: "from crossref"}, {DOI: "10.1/b"}}
	oa := []types.DOIRecord{{DOI: "10.1/a", OAPDFURL: "https://x/a.pdf"}, {DOI: "10.1/b"}, {DOI: "10.1/c"}}
	got := Merge(cr, oa)
	require.Len(t, got, 3)
	assert.Equal(t, "https://x/a.pdf", got[0].OAPDFURL)
	assert.Equal(t, "", got[1].OAPDFURL)
	assert.Equal(t, "10.1/c", got[2].DOI)
}

func TestSaveIncremental(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.WriteJSON(st.DOIList(), []types.DOIRecord{
		{DOI: "10.1/a", Title: "A"},
	}))

	now := time.Date(2024, 3, 9, 10, 11, 12, 0, time.UTC)
	added, total, err := SaveIncremental(st, []types.DOIRecord{
		{DOI: "10.1/A", Journal: "J", OAPDFURL: "https://x/a.pdf", Title: "ignored"},
		{DOI: "10.1/b"},
		{DOI: ""},
	}, true, now)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 2, total)

	var list []types.DOIRecord
	require.NoError(t, store.ReadJSON(st.DOIList(), &list))
	assert.Equal(t, "A", list[0].Title)
	assert.Equal(t, "J", list[0].Journal)
	assert.Equal(t, "https://x/a.pdf", list[0].OAPDFURL)

	var seen []string
	require.NoError(t, store.ReadJSON(st.SeenFile(), &seen))
	assert.Equal(t, []string{"10.1/a", "10.1/b"}, seen)

	snap := filepath.Join(st.RawDir(), "doi_list_20240309_101112.json")
	b, err := os.ReadFile(snap)
	require.NoError(t, err)
	var snapItems []map[string]any
	require.NoError(t, json.Unmarshal(b, &snapItems))
	assert.Len(t, snapItems, 3)
}

func TestRateLimitWaitsBeforeRetry(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	h := newHarvester(t, srv)
	var waits []time.Duration
	h.Sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	recs, err := h.OpenAlex(context.Background(), []string{"steel"}, 2012, 2025, 5)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 4, hits)
	assert.Equal(t, []time.Duration{DefaultRateLimitWait, DefaultRateLimitWait, DefaultRateLimitWait}, waits)

	waits, hits = nil, 0
	h.RateLimitWait = 5 * time.Second
	_, err = h.OpenAlex(context.Background(), []string{"steel"}, 2012, 2025, 5)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, waits)
}
