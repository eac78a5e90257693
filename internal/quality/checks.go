// Package quality audits an extracted dataset: missing sections, values out
// of the configured ranges and implausible combinations, plus the manual
// review loop that feeds decisions back into the dataset and the rules.
package quality

import (
	"math"
	"time"

	"github.com/MalithGihan/steelminer/pkg/types"
)

var rangeChecks = []struct {
	field, limit string
}{
	{"austenitizing_temperature", "max_austenitizing_temperature"},
	{"isothermal_temperature", "max_isothermal_temperature"},
	{"tempering_temperature", "max_tempering_temperature"},
	{"tempering_time", "max_tempering_time"},
	{"austenitizing_time", "max_austenitizing_time"},
	{"isothermal_time", "max_isothermal_time"},
}

var timeFields = []string{"tempering_time", "austenitizing_time", "isothermal_time"}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func ptr(v float64) *float64 { return &v }

// MissingRates is the share of records lacking each section.
func MissingRates(dataset []types.SteelRecord) map[string]float64 {
	total := len(dataset)
	if total == 0 {
		total = 1
	}
	rates := make(map[string]float64, len(types.SectionNames))
	for _, name := range types.SectionNames {
		missing := 0
		for _, r := range dataset {
			if r.Sections()[name].Empty() {
				missing++
			}
		}
		rates[name] = round(float64(missing)/float64(total), 3)
	}
	return rates
}

// Anomalies flags heat treatment values and the carbon equivalent above their
// rule limits.
func Anomalies(r types.SteelRecord, rules Rules) []types.Flag {
	var flags []types.Flag
	check := func(field string, v float64, limitKey string) {
		limit, ok := rules[limitKey]
		if ok && v > limit {
			flags = append(flags, types.Flag{
				FilePath: r.FilePath, Field: field, Value: ptr(v), Limit: ptr(limit), Type: "range",
			})
		}
	}
	for _, c := range rangeChecks {
		if v, ok := r.HeatTreatment.Values[c.field]; ok {
			check(c.field, v, c.limit)
		}
	}
	if ce := r.DerivedMetrics.CarbonEquivalent; ce != nil {
		check("carbon_equivalent", *ce, "max_carbon_equivalent")
	}
	return flags
}

// Inconsistencies flags zero treatment times and a tempering temperature with
// no tempering time.
func Inconsistencies(r types.SteelRecord) []types.Flag {
	var flags []types.Flag
	ht := r.HeatTreatment.Values
	for _, f := range timeFields {
		if v, ok := ht[f]; ok && v == 0 {
			flags = append(flags, types.Flag{
				FilePath: r.FilePath, Field: f, Value: ptr(0), Type: "logical",
				Message: "heat treatment time is 0, needs manual confirmation",
			})
		}
	}
	if ht["tempering_temperature"] != 0 && ht["tempering_time"] == 0 {
		flags = append(flags, types.Flag{
			FilePath: r.FilePath, Field: "tempering_time", Type: "logical",
			Message: "tempering temperature present but tempering time missing",
		})
	}
	return flags
}

type Report struct {
	GeneratedAt            string             `json:"generated_at"`
	TotalRecords           int                `json:"total_records"`
	MissingRates           map[string]float64 `json:"missing_rates"`
	Anomalies              []types.Flag       `json:"anomalies"`
	LogicalInconsistencies []types.Flag       `json:"logical_inconsistencies"`
}

// Run checks the whole dataset and returns the report plus every flagged
// field, anomalies first.
func Run(dataset []types.SteelRecord, rules Rules, now time.Time) (Report, []types.Flag) {
	rep := Report{
		GeneratedAt:            now.UTC().Format(time.RFC3339),
		TotalRecords:           len(dataset),
		MissingRates:           MissingRates(dataset),
		Anomalies:              []types.Flag{},
		LogicalInconsistencies: []types.Flag{},
	}
	for _, r := range dataset {
		rep.Anomalies = append(rep.Anomalies, Anomalies(r, rules)...)
		rep.LogicalInconsistencies = append(rep.LogicalInconsistencies, Inconsistencies(r)...)
	}
	flagged := make([]types.Flag, 0, len(rep.Anomalies)+len(rep.LogicalInconsistencies))
	flagged = append(flagged, rep.Anomalies...)
	flagged = append(flagged, rep.LogicalInconsistencies...)
	return rep, flagged
}
