package extract

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/MalithGihan/steelminer/internal/metrics"
	"github.com/MalithGihan/steelminer/internal/sheet"
	"github.com/MalithGihan/steelminer/internal/store"
	"github.com/MalithGihan/steelminer/internal/validate"
	"github.com/MalithGihan/steelminer/pkg/types"
)

const (
	DatasetFile  = "steel_data.json"
	WorkbookFile = "steel_data.xlsx"
)

// Saved describes what Save wrote.
type Saved struct {
	JSONPath  string
	ExcelPath string
	Records   []types.SteelRecord
	Errors    []string
}

// Save validates the dataset and writes the valid records as JSON and as a
// three-sheet workbook under dir.
func Save(dataset []types.SteelRecord, dir string, log *zap.Logger, m *metrics.Metrics) (Saved, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Saved{}, err
	}
	valid, errs := validate.Dataset(dataset)
	for range valid {
		m.Record(true)
	}
	for _, e := range errs {
		m.Record(false)
		log.Warn("record rejected", zap.String("error", e))
	}

	out := Saved{
		JSONPath:  filepath.Join(dir, DatasetFile),
		ExcelPath: filepath.Join(dir, WorkbookFile),
		Records:   valid,
		Errors:    errs,
	}
	if err := store.WriteJSON(out.JSONPath, valid); err != nil {
		return out, err
	}
	if err := sheet.Write(out.ExcelPath, Sheets(valid)...); err != nil {
		return out, err
	}
	return out, nil
}

var sectionPrefixes = []struct {
	name, prefix string
}{
	{"composition", "composition_"},
	{"heat_treatment", "heat_treatment_"},
	{"mechanical_properties", "mechanical_"},
	{"microstructure", "microstructure_"},
}

// Sheets lays the dataset out as the steel_data, derived_metrics and
// quality_metadata worksheets.
func Sheets(dataset []types.SteelRecord) []sheet.Sheet {
	data := sheet.Sheet{Name: "steel_data"}
	derived := sheet.Sheet{Name: "derived_metrics", Columns: []string{"file", "total_key_alloy_content", "carbon_equivalent"}}
	meta := sheet.Sheet{Name: "quality_metadata", Columns: []string{"file", "confidence", "source_page", "parsing_path", "issues", "manual_review"}}

	for _, r := range dataset {
		file := filepath.Base(r.FilePath)
		row := map[string]any{"file": file}
		order := []string{"file"}
		for _, sp := range sectionPrefixes {
			sec := r.Sections()[sp.name]
			for _, k := range sortedKeys(sec.Values) {
				row[sp.prefix+k] = sec.Values[k]
				order = append(order, sp.prefix+k)
			}
			for _, k := range sortedKeys(sec.Labels) {
				row[sp.prefix+k] = sec.Labels[k]
				order = append(order, sp.prefix+k)
			}
		}
		data.Add(row, order...)

		dm := map[string]any{"file": file}
		if v := r.DerivedMetrics.TotalKeyAlloyContent; v != nil {
			dm["total_key_alloy_content"] = *v
		}
		if v := r.DerivedMetrics.CarbonEquivalent; v != nil {
			dm["carbon_equivalent"] = *v
		}
		derived.Add(dm)

		qm := r.QualityMetadata
		mr := map[string]any{
			"file":         file,
			"confidence":   qm.Confidence,
			"parsing_path": qm.ParsingPath,
		}
		if len(qm.Issues) > 0 {
			mr["issues"] = strings.Join(qm.Issues, "; ")
		}
		if qm.SourcePage != nil {
			mr["source_page"] = *qm.SourcePage
		}
		if qm.ManualReview != nil {
			mr["manual_review"] = qm.ManualReview.LatestDecision
		}
		meta.Add(mr)
	}
	return []sheet.Sheet{data, derived, meta}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
