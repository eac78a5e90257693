package quality

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MalithGihan/steelminer/internal/store"
	"github.com/MalithGihan/steelminer/pkg/types"
)

// raiseFields are the reviewed fields whose approved values can lift the
// tempering temperature limit.
var raiseFields = map[string]bool{"tempering_temperature": true, "austenitizing_temperature": true}

func LoadDataset(path string) ([]types.SteelRecord, error) {
	var dataset []types.SteelRecord
	if err := store.ReadJSON(path, &dataset); err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return dataset, nil
}

func LoadReviews(path string) ([]types.ReviewEntry, error) {
	var entries []types.ReviewEntry
	if err := store.ReadJSON(path, &entries); err != nil {
		return nil, fmt.Errorf("read review results %s: %w", path, err)
	}
	return entries, nil
}

// Attach groups review entries by file and stores them in the matching
// records' quality metadata. The last entry of a file sets its latest
// decision. It returns how many records were updated.
func Attach(dataset []types.SteelRecord, entries []types.ReviewEntry) int {
	byFile := map[string]*types.ManualReview{}
	for _, e := range entries {
		if e.FilePath == "" {
			continue
		}
		mr, ok := byFile[e.FilePath]
		if !ok {
			mr = &types.ManualReview{}
			byFile[e.FilePath] = mr
		}
		mr.Issues = append(mr.Issues, e)
		mr.LatestDecision = e.Decision
		mr.UpdatedAt = e.ReviewedAt
	}
	updated := 0
	for i := range dataset {
		if mr, ok := byFile[dataset[i].FilePath]; ok {
			dataset[i].QualityMetadata.ManualReview = mr
			updated++
		}
	}
	return updated
}

// ApplyReviews writes the dataset with review results attached to out, or
// back over datasetPath when out is empty.
func ApplyReviews(datasetPath, reviewsPath, out string) (string, int, error) {
	dataset, err := LoadDataset(datasetPath)
	if err != nil {
		return "", 0, err
	}
	entries, err := LoadReviews(reviewsPath)
	if err != nil {
		return "", 0, err
	}
	n := Attach(dataset, entries)
	if out == "" {
		out = datasetPath
	}
	if err := store.WriteJSON(out, dataset); err != nil {
		return "", 0, err
	}
	return out, n, nil
}

// RaiseLimits sets max_tempering_temperature to 110% of the highest approved
// temperature, rounded to two places. It reports whether the rules changed.
func RaiseLimits(rules Rules, entries []types.ReviewEntry) bool {
	best, found := 0.0, false
	for _, e := range entries {
		if e.Decision != "approved" || !raiseFields[e.Field] {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(string(e.Value)), 64)
		if err != nil {
			continue
		}
		if !found || v > best {
			best, found = v, true
		}
	}
	if !found {
		return false
	}
	rules["max_tempering_temperature"] = round(best*1.1, 2)
	return true
}

// UpdateRules applies approved review decisions to the rules file.
func UpdateRules(reviewsPath, rulesPath string) (Rules, error) {
	entries, err := LoadReviews(reviewsPath)
	if err != nil {
		return nil, err
	}
	rules, err := LoadRules(rulesPath)
	if err != nil {
		return nil, err
	}
	RaiseLimits(rules, entries)
	if err := SaveRules(rulesPath, rules); err != nil {
		return nil, err
	}
	return rules, nil
}
