package types

import (
	"encoding/json"
	"strings"
)

// Table is a grid of cleaned cells pulled out of a paper.
type Table struct {
	Caption string     `json:"caption"`
	Rows    [][]string `json:"data"`
	Page    int        `json:"page,omitempty"`
	Method  string     `json:"extraction_method,omitempty"`
}

// Header returns the first row or nil.
func (t Table) Header() []string {
	if len(t.Rows) == 0 {
		return nil
	}
	return t.Rows[0]
}

type Paper struct {
	Title    string  `json:"title"`
	Abstract string  `json:"abstract"`
	Body     string  `json:"body"`
	Tables   []Table `json:"tables"`
	// Notes records recoverable parse problems, such as a truncated document.
	Notes []string `json:"notes,omitempty"`
}

// Year accepts both the numeric form Crossref returns and the string form OpenAlex returns.
type Year string

func (y *Year) UnmarshalJSON(b []byte) error {
	v, err := scalar(b)
	*y = Year(v)
	return err
}

// Scalar is free text that may arrive as a JSON string or a bare number, as
// hand-edited review files do.
type Scalar string

func (s *Scalar) UnmarshalJSON(b []byte) error {
	v, err := scalar(b)
	*s = Scalar(v)
	return err
}

func scalar(b []byte) (string, error) {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		return "", nil
	case strings.HasPrefix(s, `"`):
		var v string
		err := json.Unmarshal(b, &v)
		return v, err
	default:
		return s, nil
	}
}

type DOIRecord struct {
	DOI       string `json:"doi"`
	Title     string `json:"title"`
	Year      Year   `json:"year"`
	Publisher string `json:"publisher"`
	Journal   string `json:"journal"`
	URL       string `json:"url"`
	OAPDFURL  string `json:"oa_pdf_url,omitempty"`
	FilePath  string `json:"filepath,omitempty"`
}

type DownloadLogEntry struct {
	DOI       string  `json:"doi"`
	Timestamp string  `json:"timestamp"`
	Duration  float64 `json:"duration"`
	Success   bool    `json:"success"`
	FilePath  string  `json:"filepath,omitempty"`
	Strategy  string  `json:"strategy,omitempty"`
}

// Section holds one group of extracted values. Numeric values live in Values,
// textual ones (quenching medium, hardness unit) in Labels. Both serialise flat.
type Section struct {
	Values map[string]float64
	Labels map[string]string
}

func (s Section) Empty() bool { return len(s.Values) == 0 && len(s.Labels) == 0 }

func (s Section) Len() int { return len(s.Values) + len(s.Labels) }

func (s *Section) Set(key string, v float64) {
	if s.Values == nil {
		s.Values = map[string]float64{}
	}
	s.Values[key] = v
}

func (s *Section) SetLabel(key, v string) {
	if s.Labels == nil {
		s.Labels = map[string]string{}
	}
	s.Labels[key] = v
}

func (s Section) Has(key string) bool {
	if _, ok := s.Values[key]; ok {
		return true
	}
	_, ok := s.Labels[key]
	return ok
}

func (s Section) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, s.Len())
	for k, v := range s.Values {
		flat[k] = v
	}
	for k, v := range s.Labels {
		flat[k] = v
	}
	return json.Marshal(flat)
}

func (s *Section) UnmarshalJSON(b []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	*s = Section{}
	for k, v := range flat {
		switch x := v.(type) {
		case float64:
			s.Set(k, x)
		case string:
			s.SetLabel(k, x)
		}
	}
	return nil
}

type DerivedMetrics struct {
	TotalKeyAlloyContent *float64 `json:"total_key_alloy_content"`
	CarbonEquivalent     *float64 `json:"carbon_equivalent"`
}

type ReviewEntry struct {
	FilePath   string `json:"file_path"`
	Field      string `json:"field"`
	Value      Scalar `json:"value"`
	Message    string `json:"message"`
	Decision   string `json:"decision"`
	Notes      string `json:"notes"`
	ReviewedAt string `json:"reviewed_at"`
}

type ManualReview struct {
	Issues         []ReviewEntry `json:"issues"`
	LatestDecision string        `json:"latest_decision"`
	UpdatedAt      string        `json:"updated_at"`
}

type QualityMetadata struct {
	Confidence   float64       `json:"confidence"`
	SourcePage   *int          `json:"source_page"`
	ParsingPath  string        `json:"parsing_path"`
	Issues       []string      `json:"issues"`
	ManualReview *ManualReview `json:"manual_review"`
}

type SteelRecord struct {
	FilePath             string          `json:"file_path"`
	Composition          Section         `json:"composition"`
	HeatTreatment        Section         `json:"heat_treatment"`
	MechanicalProperties Section         `json:"mechanical_properties"`
	Microstructure       Section         `json:"microstructure"`
	TextSnippet          string          `json:"text_snippet,omitempty"`
	SourcePage           int             `json:"-"`
	DerivedMetrics       DerivedMetrics  `json:"derived_metrics"`
	QualityMetadata      QualityMetadata `json:"quality_metadata"`
}

// Sections lists the four extracted groups in report order.
func (r SteelRecord) Sections() map[string]Section {
	return map[string]Section{
		"composition":           r.Composition,
		"heat_treatment":        r.HeatTreatment,
		"mechanical_properties": r.MechanicalProperties,
		"microstructure":        r.Microstructure,
	}
}

func (r SteelRecord) HasData() bool {
	return !r.Composition.Empty() || !r.HeatTreatment.Empty() ||
		!r.MechanicalProperties.Empty() || !r.Microstructure.Empty()
}

// Flag is a record field that needs a human to look at it.
type Flag struct {
	FilePath string   `json:"file_path"`
	Field    string   `json:"field"`
	Value    *float64 `json:"value,omitempty"`
	Limit    *float64 `json:"limit,omitempty"`
	Type     string   `json:"type"`
	Message  string   `json:"message,omitempty"`
}

var SectionNames = []string{"composition", "heat_treatment", "mechanical_properties", "microstructure"}
