package collect

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/MalithGihan/steelminer/internal/store"
	"github.com/MalithGihan/steelminer/pkg/types"
)

var Keywords = []string{
	"bainitic steel",
	"steel heat treatment",
	"mechanical properties steel",
	"isothermal treatment steel",
	"steel composition",
	"steel microstructure",
	"steel mechanical properties",
	"steel alloy design",
}

// NormDOI strips resolver prefixes and lowercases.
func NormDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.ReplaceAll(doi, "https://doi.org/", "")
	doi = strings.ReplaceAll(doi, "http://doi.org/", "")
	return strings.ToLower(doi)
}

var reNonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func sanitize(name string) string {
	s := reNonAlnum.ReplaceAllString(name, "_")
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}

// Cursors persists paging cursors so a later run resumes where the last stopped.
type Cursors struct{ Dir string }

func (c Cursors) path(source, key string) string {
	return filepath.Join(c.Dir, source+"_"+sanitize(key)+".txt")
}

// Load returns "*" (start of results) when nothing was saved.
func (c Cursors) Load(source, key string) string {
	b, err := os.ReadFile(c.path(source, key))
	if err != nil {
		return "*"
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s
	}
	return "*"
}

func (c Cursors) Save(source, key, cursor string) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path(source, key), []byte(cursor), 0o644)
}

func LoadSeen(s *store.FS) map[string]bool {
	var list []string
	_ = store.ReadJSON(s.SeenFile(), &list)
	seen := make(map[string]bool, len(list))
	for _, d := range list {
		seen[d] = true
	}
	return seen
}

func SaveSeen(s *store.FS, seen map[string]bool) error {
	list := make([]string, 0, len(seen))
	for d := range seen {
		if d != "" {
			list = append(list, d)
		}
	}
	sort.Strings(list)
	return store.WriteJSON(s.SeenFile(), list)
}

// Merge folds lists in order. A later duplicate replaces the earlier one only
// when it brings an open-access PDF link.
func Merge(lists ...[]types.DOIRecord) []types.DOIRecord {
	idx := map[string]int{}
	var out []types.DOIRecord
	for _, l := range lists {
		for _, r := range l {
			i, ok := idx[r.DOI]
			switch {
			case !ok:
				idx[r.DOI] = len(out)
				out = append(out, r)
			case r.OAPDFURL != "":
				out[i] = r
			}
		}
	}
	return out
}

// SaveIncremental merges items into the DOI list, refreshes the seen set and
// optionally snapshots this run's items next to the list.
func SaveIncremental(s *store.FS, items []types.DOIRecord, snapshot bool, now time.Time) (added, total int, err error) {
	var existing []types.DOIRecord
	if err := store.ReadJSON(s.DOIList(), &existing); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, 0, err
	}

	idx := map[string]int{}
	var merged []types.DOIRecord
	for _, r := range existing {
		d := NormDOI(r.DOI)
		if d == "" {
			continue
		}
		if i, ok := idx[d]; ok {
			merged[i] = r
			continue
		}
		idx[d] = len(merged)
		merged = append(merged, r)
	}

	for _, it := range items {
		d := NormDOI(it.DOI)
		if d == "" {
			continue
		}
		i, ok := idx[d]
		if !ok {
			idx[d] = len(merged)
			merged = append(merged, it)
			added++
			continue
		}
		old := &merged[i]
		if it.OAPDFURL != "" {
			old.OAPDFURL = it.OAPDFURL
		}
		fill(&old.Title, it.Title)
		fill((*string)(&old.Year), string(it.Year))
		fill(&old.Publisher, it.Publisher)
		fill(&old.Journal, it.Journal)
		fill(&old.URL, it.URL)
	}

	if merged == nil {
		merged = []types.DOIRecord{}
	}
	if err := store.WriteJSON(s.DOIList(), merged); err != nil {
		return 0, 0, err
	}

	seen := LoadSeen(s)
	for d := range idx {
		seen[d] = true
	}
	if err := SaveSeen(s, seen); err != nil {
		return 0, 0, err
	}

	if snapshot {
		snap := filepath.Join(s.RawDir(), fmt.Sprintf("doi_list_%s.json", now.Format("20060102_150405")))
		if items == nil {
			items = []types.DOIRecord{}
		}
		if err := store.WriteJSON(snap, items); err != nil {
			return 0, 0, err
		}
	}
	return added, len(merged), nil
}

func fill(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
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
