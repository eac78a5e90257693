package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MalithGihan/steelminer/pkg/types"
)

var (
	reHyphenBreak = regexp.MustCompile(`-\s*\n`)
	reWhitespace  = regexp.MustCompile(`\s+`)
	reCompSpan    = regexp.MustCompile(`(?i)composition[^.]*?(\bC\b[\s\S]*?)\n\n`)
)

// Elements are the composition symbols searched for, in output order.
var Elements = []string{"C", "Si", "Mn", "Cr", "Mo", "Ni", "V", "Ti", "Al", "Cu", "Nb", "B", "P", "S", "N"}

var elementPatterns = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(Elements))
	for _, e := range Elements {
		m[e] = regexp.MustCompile(`\b` + e + `[\s:]*([\d.]+)\s*%?`)
	}
	return m
}()

type pattern struct {
	key string
	re  *regexp.Regexp
}

var heatTreatmentPatterns = []pattern{
	{"austenitizing_temperature", regexp.MustCompile(`(?i)austenitiz(?:ation|ing|ed)?\s*at\s*(\d+)\s*°?C`)},
	{"austenitizing_time", regexp.MustCompile(`(?i)austenitiz(?:ation|ing|ed)?[^\d]*(?:\d+\s*°?C\s*for\s*)?(\d+)\s*min`)},
	{"isothermal_temperature", regexp.MustCompile(`(?i)isothermal\s*(?:treatment|transformation)\s*at\s*(\d+)\s*°?C`)},
	{"isothermal_time", regexp.MustCompile(`(?i)isothermal\s*(?:treatment|transformation)[^\d]*(?:\d+\s*°?C\s*for\s*)?(\d+)\s*min`)},
	{"quenching_medium", regexp.MustCompile(`(?i)quench(?:ing|ed)?\s*(?:in|to)?\s*(oil|water|air)`)},
	{"tempering_temperature", regexp.MustCompile(`(?i)temper(?:ing|ed)?\s*at\s*(\d+)\s*°?C`)},
	{"tempering_time", regexp.MustCompile(`(?i)temper(?:ing|ed)?[^\d]*(?:\d+\s*°?C\s*for\s*)?(\d+)\s*(?:min|h)`)},
	{"cooling_rate", regexp.MustCompile(`(?i)cooling rate\s*[:=]?\s*([\d.]+)\s*°C/s`)},
}

var mechanicalPatterns = []pattern{
	{"tensile_strength", regexp.MustCompile(`(?i)tensile strength\s*[:=]?\s*(\d+)\s*MPa`)},
	{"yield_strength", regexp.MustCompile(`(?i)yield strength\s*[:=]?\s*(\d+)\s*MPa`)},
	{"elongation", regexp.MustCompile(`(?i)elongation\s*[:=]?\s*([\d.]+)\s*%`)},
	{"reduction_of_area", regexp.MustCompile(`(?i)reduction of area\s*[:=]?\s*([\d.]+)\s*%`)},
	{"hardness_value", regexp.MustCompile(`(?i)hardness\s*[:=]?\s*(\d+)\s*(HV|HRC)`)},
	{"impact_toughness", regexp.MustCompile(`(?i)impact toughness\s*[:=]?\s*(\d+)\s*J`)},
	{"fatigue_strength", regexp.MustCompile(`(?i)fatigue strength\s*[:=]?\s*(\d+)\s*MPa`)},
}

var microstructurePatterns = []pattern{
	{"bainite_fraction", regexp.MustCompile(`(?i)bainite\s*fraction\s*[:=]?\s*([\d.]+)\s*%`)},
	{"martensite_fraction", regexp.MustCompile(`(?i)martensite\s*fraction\s*[:=]?\s*([\d.]+)\s*%`)},
	{"ferrite_fraction", regexp.MustCompile(`(?i)ferrite\s*fraction\s*[:=]?\s*([\d.]+)\s*%`)},
	{"austenite_fraction", regexp.MustCompile(`(?i)austenite\s*fraction\s*[:=]?\s*([\d.]+)\s*%`)},
	{"grain_size", regexp.MustCompile(`(?i)grain size\s*[:=]?\s*([\d.]+)\s*[μµ]m`)},
}

// JoinHyphenation removes line-break hyphenation.
func JoinHyphenation(text string) string {
	return reHyphenBreak.ReplaceAllString(text, "")
}

// Normalize joins hyphenated line breaks and collapses whitespace.
func Normalize(text string) string {
	return reWhitespace.ReplaceAllString(JoinHyphenation(text), " ")
}

// Composition finds element contents. The last numeric match of each element
// wins and only values strictly between 0 and 100 are kept. When the text has a
// "composition ... C ..." paragraph only that paragraph is searched.
func Composition(text string) types.Section {
	scope := text
	if m := reCompSpan.FindStringSubmatch(text); m != nil {
		scope = m[1]
	}
	var s types.Section
	for _, e := range Elements {
		matches := elementPatterns[e].FindAllStringSubmatch(scope, -1)
		for i := len(matches) - 1; i >= 0; i-- {
			v, err := strconv.ParseFloat(matches[i][1], 64)
			if err != nil {
				continue
			}
			if v > 0 && v < 100 {
				s.Set(e, v)
			}
			break
		}
	}
	return s
}

func firstMatches(text string, patterns []pattern, label func(s *types.Section, key string, m []string) bool) types.Section {
	var s types.Section
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if label != nil && label(&s, p.key, m) {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		s.Set(p.key, v)
	}
	return s
}

func HeatTreatment(text string) types.Section {
	return firstMatches(text, heatTreatmentPatterns, func(s *types.Section, key string, m []string) bool {
		if key != "quenching_medium" {
			return false
		}
		s.SetLabel(key, strings.ToLower(m[1]))
		return true
	})
}

func Mechanical(text string) types.Section {
	return firstMatches(text, mechanicalPatterns, func(s *types.Section, key string, m []string) bool {
		if key != "hardness_value" {
			return false
		}
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			s.Set(key, v)
			s.SetLabel("hardness_unit", strings.ToUpper(m[2]))
		}
		return true
	})
}

func Microstructure(text string) types.Section {
	return firstMatches(text, microstructurePatterns, nil)
}

// FromText extracts all four sections from raw paper text. Composition is read
// before whitespace is collapsed so the paragraph scope still sees blank lines.
func FromText(text string) types.SteelRecord {
	joined := JoinHyphenation(text)
	norm := reWhitespace.ReplaceAllString(joined, " ")
	return types.SteelRecord{
		Composition:          Composition(joined),
		HeatTreatment:        HeatTreatment(norm),
		MechanicalProperties: Mechanical(norm),
		Microstructure:       Microstructure(norm),
	}
}
