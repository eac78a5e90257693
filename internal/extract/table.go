package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MalithGihan/steelminer/internal/ingest"
	"github.com/MalithGihan/steelminer/pkg/types"
)

type column struct {
	section string
	key     string
	re      *regexp.Regexp
}

// Property and process columns are tried before element columns so headers
// such as "Tempering temperature" are not read as carbon.
var columnPatterns = []column{
	{"mechanical_properties", "yield_strength", regexp.MustCompile(`(?i:yield\s*strength)|\bYS\b|σ_?y`)},
	{"mechanical_properties", "tensile_strength", regexp.MustCompile(`(?i:tensile\s*strength|ultimate\s*strength)|\bUTS\b|σ_?u`)},
	{"mechanical_properties", "elongation", regexp.MustCompile(`(?i:elongation)|\bEL\b|δ`)},
	{"mechanical_properties", "reduction_of_area", regexp.MustCompile(`(?i:reduction\s*of\s*area)|\bRA\b`)},
	{"mechanical_properties", "hardness_value", regexp.MustCompile(`(?i:hardness)|\bHRC\b|\bHV\b`)},
	{"mechanical_properties", "impact_toughness", regexp.MustCompile(`(?i:impact\s*toughness|charpy)|\bCVN\b`)},
	{"heat_treatment", "austenitizing_time", regexp.MustCompile(`(?i:austeniti[sz]ation\s*time|holding\s*time)|\bt1\b`)},
	{"heat_treatment", "austenitizing_temperature", regexp.MustCompile(`(?i:austeniti[sz]ation|heating\s*temperature)|\bT1\b`)},
	{"heat_treatment", "isothermal_time", regexp.MustCompile(`(?i:isothermal\s*time)|\bt2\b`)},
	{"heat_treatment", "isothermal_temperature", regexp.MustCompile(`(?i:isothermal\s*temperature|bainite\s*transformation)|\bT2\b`)},
	{"heat_treatment", "tempering_time", regexp.MustCompile(`(?i:tempering\s*time)|\bt3\b`)},
	{"heat_treatment", "tempering_temperature", regexp.MustCompile(`(?i:tempering\s*temperature)|\bT3\b`)},
	{"composition", "C", regexp.MustCompile(`\bC\b|(?i:carbon)`)},
	{"composition", "Si", regexp.MustCompile(`\bSi\b|(?i:silicon)`)},
	{"composition", "Mn", regexp.MustCompile(`\bMn\b|(?i:manganese)`)},
	{"composition", "Ni", regexp.MustCompile(`\bNi\b|(?i:nickel)`)},
	{"composition", "Cr", regexp.MustCompile(`\bCr\b|(?i:chromium)`)},
	{"composition", "Mo", regexp.MustCompile(`\bMo\b|(?i:molybdenum)`)},
	{"composition", "Al", regexp.MustCompile(`\bAl\b|(?i:alumin(?:i)?um)`)},
	{"composition", "V", regexp.MustCompile(`\bV\b|(?i:vanadium)`)},
	{"composition", "B", regexp.MustCompile(`\bB\b|(?i:boron)`)},
	{"composition", "Co", regexp.MustCompile(`\bCo\b|(?i:cobalt)`)},
	{"composition", "Ti", regexp.MustCompile(`\bTi\b|(?i:titanium)`)},
	{"composition", "Nb", regexp.MustCompile(`\bNb\b|(?i:niobium)`)},
	{"composition", "Cu", regexp.MustCompile(`\bCu\b|(?i:copper)`)},
}

var (
	reNumber    = regexp.MustCompile(`(\d+\.?\d*)`)
	reUnitParen = regexp.MustCompile(`°\s*C`)
	reHardUnit  = regexp.MustCompile(`\b(HV|HRC)\b`)
)

func classify(header string) (column, bool) {
	h := reUnitParen.ReplaceAllString(header, "")
	for _, c := range columnPatterns {
		if c.re.MatchString(h) {
			return c, true
		}
	}
	return column{}, false
}

// TableValues reads materials tables column by column. Each classified column
// contributes the numeric part of its last non-empty cell; later tables win.
func TableValues(tables []types.Table) (types.SteelRecord, int) {
	var (
		rec  types.SteelRecord
		page int
	)
	for _, t := range tables {
		if len(t.Rows) < 2 || !ingest.IsMaterialsTable(t) {
			continue
		}
		found := false
		for col, header := range t.Header() {
			c, ok := classify(header)
			if !ok {
				continue
			}
			var last string
			for _, row := range t.Rows[1:] {
				if col < len(row) && strings.TrimSpace(row[col]) != "" {
					last = row[col]
				}
			}
			m := reNumber.FindString(last)
			if m == "" {
				continue
			}
			v, err := strconv.ParseFloat(m, 64)
			if err != nil {
				continue
			}
			sec := sectionOf(&rec, c.section)
			sec.Set(c.key, v)
			if c.key == "hardness_value" {
				if u := reHardUnit.FindString(header); u != "" {
					sec.SetLabel("hardness_unit", u)
				}
			}
			found = true
		}
		if found && page == 0 && t.Page > 0 {
			page = t.Page
		}
	}
	return rec, page
}

func sectionOf(r *types.SteelRecord, name string) *types.Section {
	switch name {
	case "composition":
		return &r.Composition
	case "heat_treatment":
		return &r.HeatTreatment
	case "mechanical_properties":
		return &r.MechanicalProperties
	default:
		return &r.Microstructure
	}
}

// Merge copies table values into rec for keys the text did not provide.
func Merge(rec *types.SteelRecord, from types.SteelRecord) {
	for _, name := range types.SectionNames {
		dst := sectionOf(rec, name)
		src := from.Sections()[name]
		for k, v := range src.Values {
			if !dst.Has(k) {
				dst.Set(k, v)
			}
		}
		for k, v := range src.Labels {
			if !dst.Has(k) {
				dst.SetLabel(k, v)
			}
		}
	}
}
