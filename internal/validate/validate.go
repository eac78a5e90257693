// Package validate checks extracted steel records, rounds their values and
// enriches them with derived metrics and quality metadata.
package validate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/MalithGihan/steelminer/pkg/types"
)

//go:embed schema/steel_record.schema.json
var schemaJSON []byte

const schemaURL = "mem://steelminer/steel_record.schema.json"

// DefaultParsingPath describes the directory extraction flow.
const DefaultParsingPath = "ProcessDirectory -> ProcessPaper -> FromText"

var KeyAlloyElements = []string{"C", "Si", "Mn", "Cr", "Mo", "Ni", "V", "Ti", "Nb", "Cu", "B"}

var (
	once    sync.Once
	schema  *jsonschema.Schema
	loadErr error
)

func load() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		loadErr = err
		return
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		loadErr = err
		return
	}
	schema = s
}

// ValidateMap validates a decoded JSON document against the record schema.
func ValidateMap(m map[string]any) error {
	once.Do(load)
	if loadErr != nil {
		return loadErr
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return schema.Validate(v)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// cleanSection rounds every value and collects range violations.
func cleanSection(name string, s types.Section, check func(key string, v float64) string) (types.Section, []string) {
	var (
		out  types.Section
		errs []string
	)
	for _, k := range sortedKeys(s.Values) {
		v := s.Values[k]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Sprintf("%s.%s is not a finite number", name, k))
			continue
		}
		if msg := check(k, v); msg != "" {
			errs = append(errs, fmt.Sprintf("%s.%s %s: %v", name, k, msg, v))
			continue
		}
		out.Set(k, round(v, 4))
	}
	for k, v := range s.Labels {
		out.SetLabel(k, v)
	}
	return out, errs
}

func percent(_ string, v float64) string {
	if v < 0 || v > 100 {
		return "outside 0-100%"
	}
	return ""
}

func nonNegative(_ string, v float64) string {
	if v < 0 {
		return "is negative"
	}
	return ""
}

func heatTreatment(key string, v float64) string {
	if v < 0 {
		return "is negative"
	}
	if strings.Contains(key, "temperature") && v > 1500 {
		return "exceeds 1500 °C"
	}
	return ""
}

// DerivedMetricsFor computes the key alloy total and the carbon equivalent
// C + Mn/6 + (Cr+Mo+V)/5 + (Ni+Cu)/15. Zero results are left unset.
func DerivedMetricsFor(comp types.Section) types.DerivedMetrics {
	var dm types.DerivedMetrics
	total := 0.0
	for _, e := range KeyAlloyElements {
		total += comp.Values[e]
	}
	if total != 0 {
		v := round(total, 4)
		dm.TotalKeyAlloyContent = &v
	}
	if len(comp.Values) > 0 {
		c := comp.Values
		ce := c["C"] + c["Mn"]/6 + (c["Cr"]+c["Mo"]+c["V"])/5 + (c["Ni"]+c["Cu"])/15
		if ce != 0 {
			v := round(ce, 4)
			dm.CarbonEquivalent = &v
		}
	}
	return dm
}

// Confidence is the share of populated sections, rounded to three places.
func Confidence(r types.SteelRecord) float64 {
	filled := 0
	for _, name := range types.SectionNames {
		if !r.Sections()[name].Empty() {
			filled++
		}
	}
	return round(float64(filled)/float64(len(types.SectionNames)), 3)
}

func enrich(r types.SteelRecord) types.SteelRecord {
	r.DerivedMetrics = DerivedMetricsFor(r.Composition)

	qm := r.QualityMetadata
	qm.Confidence = Confidence(r)
	if r.SourcePage > 0 {
		page := r.SourcePage
		qm.SourcePage = &page
	}
	if qm.ParsingPath == "" {
		qm.ParsingPath = DefaultParsingPath
	}
	qm.Issues = []string{}
	if r.Composition.Empty() {
		qm.Issues = append(qm.Issues, "missing key field: composition")
	}
	if r.HeatTreatment.Empty() {
		qm.Issues = append(qm.Issues, "missing key field: heat_treatment")
	}
	r.QualityMetadata = qm
	return r
}

// Record validates one record and returns its cleaned, enriched form.
func Record(r types.SteelRecord) (types.SteelRecord, error) {
	if r.FilePath == "" {
		return r, errors.New("file_path is required")
	}
	var errs []string
	var e []string

	r.Composition, e = cleanSection("composition", r.Composition, percent)
	errs = append(errs, e...)

	ht := r.HeatTreatment
	if m, ok := ht.Labels["quenching_medium"]; ok {
		ht.SetLabel("quenching_medium", strings.ToLower(m))
	}
	r.HeatTreatment, e = cleanSection("heat_treatment", ht, heatTreatment)
	errs = append(errs, e...)

	r.MechanicalProperties, e = cleanSection("mechanical_properties", r.MechanicalProperties, nonNegative)
	errs = append(errs, e...)

	r.Microstructure, e = cleanSection("microstructure", r.Microstructure, percent)
	errs = append(errs, e...)

	if len(errs) > 0 {
		return r, errors.New(strings.Join(errs, "; "))
	}

	r = enrich(r)

	b, err := json.Marshal(r)
	if err != nil {
		return r, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return r, err
	}
	if err := ValidateMap(m); err != nil {
		return r, fmt.Errorf("schema: %w", err)
	}
	return r, nil
}

// Dataset validates every record. Invalid records are dropped and reported by
// index.
func Dataset(records []types.SteelRecord) ([]types.SteelRecord, []string) {
	valid := make([]types.SteelRecord, 0, len(records))
	var errs []string
	for i, r := range records {
		v, err := Record(r)
		if err != nil {
			errs = append(errs, fmt.Sprintf("record %d failed validation: %v", i, err))
			continue
		}
		valid = append(valid, v)
	}
	return valid, errs
}
