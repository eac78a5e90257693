package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/MalithGihan/steelminer/internal/ingest"
	"github.com/MalithGihan/steelminer/internal/store"
	"github.com/MalithGihan/steelminer/pkg/types"
)

const paperText = `Bainitic steel with improved tough-
ness

The chemical composition of the steel was C 0.21, Si 1.52, Mn: 2.01 and Cr 0.98 wt%.

Samples were austenitized at 950 °C for 30 min and quenched in Oil to 300 °C,
followed by isothermal treatment at 320 °C for 60 min. The cooling rate = 25 °C/s.
Specimens were tempered at 200 °C for 2 h.
The tensile strength: 1450 MPa, yield strength 1120 MPa, elongation 14.5 %,
hardness 480 HV and impact toughness 35 J.
The bainite fraction = 72 % and grain size 3.5 μm.`

func TestFromText(t *testing.T) {
	rec := FromText(paperText)

	assert.Equal(t, map[string]float64{"C": 0.21, "Si": 1.52, "Mn": 2.01, "Cr": 0.98}, rec.Composition.Values)

	ht := rec.HeatTreatment
	assert.Equal(t, 950.0, ht.Values["austenitizing_temperature"])
	assert.Equal(t, 30.0, ht.Values["austenitizing_time"])
	assert.Equal(t, 320.0, ht.Values["isothermal_temperature"])
	assert.Equal(t, 60.0, ht.Values["isothermal_time"])
	assert.Equal(t, 200.0, ht.Values["tempering_temperature"])
	assert.Equal(t, 2.0, ht.Values["tempering_time"])
	assert.Equal(t, 25.0, ht.Values["cooling_rate"])
	assert.Equal(t, "oil", ht.Labels["quenching_medium"])

	mp := rec.MechanicalProperties
	assert.Equal(t, 1450.0, mp.Values["tensile_strength"])
	assert.Equal(t, 1120.0, mp.Values["yield_strength"])
	assert.Equal(t, 14.5, mp.Values["elongation"])
	assert.Equal(t, 480.0, mp.Values["hardness_value"])
	assert.Equal(t, "HV", mp.Labels["hardness_unit"])
	assert.Equal(t, 35.0, mp.Values["impact_toughness"])

	assert.Equal(t, map[string]float64{"bainite_fraction": 72, "grain_size": 3.5}, rec.Microstructure.Values)
}

func TestCompositionLastMatchAndRange(t *testing.T) {
	s := Composition("C 0.5 at first, later C 0.45 %. Mn 150 and Si 0 and Cr. Ni 3.")
	assert.Equal(t, 0.45, s.Values["C"])
	assert.False(t, s.Has("Mn"))
	assert.False(t, s.Has("Si"))
	assert.Equal(t, 3.0, s.Values["Ni"])
	assert.False(t, s.Has("Cr"))
}

func TestCompositionScopesToParagraph(t *testing.T) {
	text := "Reference steel had C 0.8.\n\nNominal composition (wt%): C 0.3 Mn 1.1\n\nLater we note C 0.9."
	s := Composition(text)
	assert.Equal(t, 0.3, s.Values["C"])
	assert.Equal(t, 1.1, s.Values["Mn"])
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "martensite start", Normalize("marten-\nsite \n\t start"))
}

func TestTableValues(t *testing.T) {
	tables := []types.Table{
		{Caption: "Chemical composition (wt.%)", Page: 4, Rows: [][]string{
			{"Steel", "C", "Mn", "Tempering temperature (°C)"},
			{"A", "0.21", "1.5", "200"},
			{"B", "0.35 ± 0.01", "", "250"},
		}},
		{Caption: "Mechanical properties", Rows: [][]string{
			{"Sample", "YS (MPa)", "UTS", "Hardness (HRC)", "Steel grade"},
			{"A", "1100", "1400", "52", "S1"},
		}},
		{Caption: "Literature", Rows: [][]string{{"Author", "Year"}, {"Smith", "2019"}}},
	}
	rec, page := TableValues(tables)
	assert.Equal(t, 4, page)
	assert.Equal(t, map[string]float64{"C": 0.35, "Mn": 1.5}, rec.Composition.Values)
	assert.Equal(t, 250.0, rec.HeatTreatment.Values["tempering_temperature"])
	assert.Equal(t, map[string]float64{"yield_strength": 1100, "tensile_strength": 1400, "hardness_value": 52}, rec.MechanicalProperties.Values)
	assert.Equal(t, "HRC", rec.MechanicalProperties.Labels["hardness_unit"])
}

func TestClassifyAbbreviationsAreCaseSensitive(t *testing.T) {
	cases := map[string]string{
		"EL (%)":            "elongation",
		"Elongation":        "elongation",
		"total ELONGATION":  "elongation",
		"RA (%)":            "reduction_of_area",
		"Reduction of area": "reduction_of_area",
		"YS":                "yield_strength",
		"Charpy energy (J)": "impact_toughness",
		"Hardness (HV)":     "hardness_value",
		"Ultimate Strength": "tensile_strength",
	}
	for header, want := range cases {
		c, ok := classify(header)
		if assert.True(t, ok, header) {
			assert.Equal(t, want, c.key, header)
		}
	}
	for _, header := range []string{"el", "Ra (µm)", "ra", "ys", "hv"} {
		_, ok := classify(header)
		assert.False(t, ok, header)
	}
}

func TestMergeKeepsTextValues(t *testing.T) {
	rec := types.SteelRecord{}
	rec.Composition.Set("C", 0.2)
	var from types.SteelRecord
	from.Composition.Set("C", 0.9)
	from.Composition.Set("Mn", 1.4)
	from.MechanicalProperties.SetLabel("hardness_unit", "HV")
	Merge(&rec, from)
	assert.Equal(t, map[string]float64{"C": 0.2, "Mn": 1.4}, rec.Composition.Values)
	assert.Equal(t, "HV", rec.MechanicalProperties.Labels["hardness_unit"])
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "", snippet(""))
	assert.Equal(t, "abc...", snippet("abc"))
	long := strings.Repeat("é", 1500)
	assert.Equal(t, 1003, len([]rune(snippet(long))))
}

type textRunner struct {
	texts map[string]string
}

func (r textRunner) LookPath(name string) (string, error) {
	if name == "pdftotext" {
		return "/usr/bin/pdftotext", nil
	}
	return "", errors.New("not found")
}

func (r textRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	file := filepath.Base(args[len(args)-2])
	if args[0] == "-layout" {
		return []byte(r.texts[file+".layout"]), nil
	}
	return []byte(r.texts[file]), nil
}

func writePDFs(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("not really a pdf"), 0o644))
	}
	return dir
}

func TestProcessDirectory(t *testing.T) {
	dir := writePDFs(t, "b.PDF", "a.pdf", "empty.pdf", "notes.txt")
	runner := textRunner{texts: map[string]string{
		"a.pdf": "Specimens were tempered at 180 °C for 60 min.",
		"a.pdf.layout": "Table 1. Chemical composition\n" +
			"Steel    C      Si\nA        0.40   1.20\n",
		"b.PDF":     "hardness 45 HRC and C 0.3 wt%",
		"empty.pdf": "nothing to see",
	}}
	x := &Extractor{
		Loader:  &ingest.Loader{PDF: &ingest.PDF{Runner: runner}},
		Workers: 2,
	}

	dataset, err := x.ProcessDirectory(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, dataset, 2)

	a := dataset[0]
	assert.Equal(t, filepath.Join(dir, "a.pdf"), a.FilePath)
	assert.Equal(t, 180.0, a.HeatTreatment.Values["tempering_temperature"])
	assert.Equal(t, map[string]float64{"C": 0.40, "Si": 1.20}, a.Composition.Values)
	assert.Equal(t, 1, a.SourcePage)
	assert.Equal(t, "pdf -> text + tables(poppler-layout)", a.QualityMetadata.ParsingPath)
	assert.True(t, strings.HasSuffix(a.TextSnippet, "..."))

	b := dataset[1]
	assert.Equal(t, filepath.Join(dir, "b.PDF"), b.FilePath)
	assert.Equal(t, "HRC", b.MechanicalProperties.Labels["hardness_unit"])
	assert.Equal(t, "pdf -> text", b.QualityMetadata.ParsingPath)
}

func TestProcessDirectoryMissingDir(t *testing.T) {
	x := &Extractor{Loader: &ingest.Loader{}}
	_, err := x.ProcessDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestSave(t *testing.T) {
	var good types.SteelRecord
	good.FilePath = "papers/a.pdf"
	good.Composition.Set("C", 0.2)
	good.Composition.Set("Mn", 1.2)
	good.HeatTreatment.Set("tempering_temperature", 200)
	good.HeatTreatment.SetLabel("quenching_medium", "Water")
	good.SourcePage = 2

	var bad types.SteelRecord
	bad.FilePath = "papers/b.pdf"
	bad.Microstructure.Set("bainite_fraction", 140)

	dir := filepath.Join(t.TempDir(), "steel_data")
	saved, err := Save([]types.SteelRecord{good, bad}, dir, nil, nil)
	require.NoError(t, err)
	require.Len(t, saved.Records, 1)
	require.Len(t, saved.Errors, 1)

	var back []types.SteelRecord
	require.NoError(t, store.ReadJSON(saved.JSONPath, &back))
	require.Len(t, back, 1)
	assert.Equal(t, "water", back[0].HeatTreatment.Labels["quenching_medium"])
	require.NotNil(t, back[0].QualityMetadata.SourcePage)
	assert.Equal(t, 2, *back[0].QualityMetadata.SourcePage)

	f, err := excelize.OpenFile(saved.ExcelPath)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"steel_data", "derived_metrics", "quality_metadata"}, f.GetSheetList())

	rows, err := f.GetRows("steel_data")
	require.NoError(t, err)
	assert.Equal(t, []string{"file", "composition_C", "composition_Mn", "heat_treatment_tempering_temperature", "heat_treatment_quenching_medium"}, rows[0])
	assert.Equal(t, []string{"a.pdf", "0.2", "1.2", "200", "water"}, rows[1])

	rows, err = f.GetRows("quality_metadata")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "0.5", "2", "ProcessDirectory -> ProcessPaper -> FromText"}, rows[1])
}
