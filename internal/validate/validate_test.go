package validate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalithGihan/steelminer/pkg/types"
)

func section(values map[string]float64, labels map[string]string) types.Section {
	return types.Section{Values: values, Labels: labels}
}

func TestRecordEnriches(t *testing.T) {
	r := types.SteelRecord{
		FilePath:      "papers/a.pdf",
		Composition:   section(map[string]float64{"C": 0.212345, "Mn": 1.5, "Cr": 1.0, "Ni": 0.3, "S": 0.01}, nil),
		HeatTreatment: section(map[string]float64{"austenitizing_temperature": 900}, map[string]string{"quenching_medium": "Oil"}),
		SourcePage:    3,
	}
	got, err := Record(r)
	require.NoError(t, err)

	assert.Equal(t, 0.2123, got.Composition.Values["C"])
	assert.Equal(t, "oil", got.HeatTreatment.Labels["quenching_medium"])
	require.NotNil(t, got.DerivedMetrics.TotalKeyAlloyContent)
	assert.InDelta(t, 3.0123, *got.DerivedMetrics.TotalKeyAlloyContent, 1e-9)
	require.NotNil(t, got.DerivedMetrics.CarbonEquivalent)
	assert.InDelta(t, 0.2123+0.25+0.2+0.02, *got.DerivedMetrics.CarbonEquivalent, 1e-4)

	qm := got.QualityMetadata
	assert.Equal(t, 0.5, qm.Confidence)
	require.NotNil(t, qm.SourcePage)
	assert.Equal(t, 3, *qm.SourcePage)
	assert.Equal(t, DefaultParsingPath, qm.ParsingPath)
	assert.Empty(t, qm.Issues)
}

func TestRecordMissingSections(t *testing.T) {
	got, err := Record(types.SteelRecord{
		FilePath:       "b.pdf",
		Microstructure: section(map[string]float64{"bainite_fraction": 60}, nil),
		QualityMetadata: types.QualityMetadata{
			ParsingPath:  "custom",
			ManualReview: &types.ManualReview{LatestDecision: "approved"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"missing key field: composition", "missing key field: heat_treatment"}, got.QualityMetadata.Issues)
	assert.Equal(t, 0.25, got.QualityMetadata.Confidence)
	assert.Nil(t, got.DerivedMetrics.CarbonEquivalent)
	assert.Nil(t, got.DerivedMetrics.TotalKeyAlloyContent)
	assert.Equal(t, "custom", got.QualityMetadata.ParsingPath)
	require.NotNil(t, got.QualityMetadata.ManualReview)
	assert.Nil(t, got.QualityMetadata.SourcePage)
}

func TestRecordRangeErrors(t *testing.T) {
	cases := []struct {
		name   string
		record types.SteelRecord
		want   string
	}{
		{"composition", types.SteelRecord{FilePath: "x", Composition: section(map[string]float64{"C": 120}, nil)}, "composition.C outside 0-100%"},
		{"temperature", types.SteelRecord{FilePath: "x", HeatTreatment: section(map[string]float64{"tempering_temperature": 1600}, nil)}, "exceeds 1500"},
		{"negative time", types.SteelRecord{FilePath: "x", HeatTreatment: section(map[string]float64{"tempering_time": -1}, nil)}, "tempering_time is negative"},
		{"mechanical", types.SteelRecord{FilePath: "x", MechanicalProperties: section(map[string]float64{"elongation": -2}, nil)}, "elongation is negative"},
		{"microstructure", types.SteelRecord{FilePath: "x", Microstructure: section(map[string]float64{"ferrite_fraction": 101}, nil)}, "ferrite_fraction outside"},
		{"file path", types.SteelRecord{}, "file_path is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Record(tc.record)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSchemaRejectsTextInComposition(t *testing.T) {
	_, err := Record(types.SteelRecord{
		FilePath:    "x",
		Composition: section(map[string]float64{"C": 0.2}, map[string]string{"Mn": "balance"}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestDataset(t *testing.T) {
	records := []types.SteelRecord{
		{FilePath: "ok.pdf", Composition: section(map[string]float64{"C": 0.4}, nil)},
		{FilePath: "bad.pdf", Composition: section(map[string]float64{"C": -1}, nil)},
	}
	valid, errs := Dataset(records)
	require.Len(t, valid, 1)
	assert.Equal(t, "ok.pdf", valid[0].FilePath)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "record 1 failed validation")

	b, err := json.Marshal(valid[0])
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.NoError(t, ValidateMap(m))
}
