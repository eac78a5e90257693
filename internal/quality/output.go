package quality

import (
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/MalithGihan/steelminer/internal/sheet"
	"github.com/MalithGihan/steelminer/internal/store"
	"github.com/MalithGihan/steelminer/pkg/types"
)

const (
	ReportFile     = "quality_report.json"
	FlaggedJSON    = "flagged_samples.json"
	FlaggedExcel   = "flagged_samples.xlsx"
	ReviewFormFile = "manual_review_form.html"
	ReviewResults  = "manual_review_results.json"
)

func SaveReport(rep Report, dir string) (string, error) {
	path := filepath.Join(dir, ReportFile)
	return path, store.WriteJSON(path, rep)
}

// ExportFlagged writes the flagged fields as JSON and xlsx. Nothing is written
// when there is nothing to review.
func ExportFlagged(flagged []types.Flag, dir string) ([]string, error) {
	if len(flagged) == 0 {
		return nil, nil
	}
	jsonPath := filepath.Join(dir, FlaggedJSON)
	if err := store.WriteJSON(jsonPath, flagged); err != nil {
		return nil, err
	}
	sh := sheet.Sheet{Name: "flagged_samples", Columns: []string{"file_path", "field", "value", "limit", "type", "message"}}
	for _, f := range flagged {
		row := map[string]any{"file_path": f.FilePath, "field": f.Field, "type": f.Type}
		if f.Value != nil {
			row["value"] = *f.Value
		}
		if f.Limit != nil {
			row["limit"] = *f.Limit
		}
		if f.Message != "" {
			row["message"] = f.Message
		}
		sh.Add(row)
	}
	excelPath := filepath.Join(dir, FlaggedExcel)
	if err := sheet.Write(excelPath, sh); err != nil {
		return nil, err
	}
	return []string{jsonPath, excelPath}, nil
}

var reviewForm = template.Must(template.New("review").Funcs(template.FuncMap{"value": flagValue}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8" />
<title>Steel data manual review</title>
<style>
  table { border-collapse: collapse; width: 100%; }
  th, td { border: 1px solid #ddd; padding: 8px; }
  th { background-color: #f2f2f2; }
  .controls { margin-top: 16px; }
</style>
</head>
<body>
<h1>Steel data manual review</h1>
<p>Review the flagged entries below, record a decision for each and download the results.</p>
<table>
  <thead>
    <tr><th>File</th><th>Field</th><th>Value</th><th>Issue</th><th>Decision</th><th>Notes</th></tr>
  </thead>
  <tbody>
{{- range $i, $f := .}}
    <tr>
      <td>{{$f.FilePath}}</td>
      <td>{{$f.Field}}</td>
      <td>{{value $f}}</td>
      <td>{{if $f.Message}}{{$f.Message}}{{else}}automatic range check{{end}}</td>
      <td>
        <select name="decision_{{$i}}">
          <option value="approved">valid</option>
          <option value="rejected">invalid</option>
          <option value="needs_followup">needs follow-up</option>
        </select>
      </td>
      <td><input type="text" name="notes_{{$i}}" placeholder="notes" /></td>
    </tr>
{{- end}}
  </tbody>
</table>
<div class="controls">
  <button onclick="downloadResults()">Download review results (JSON)</button>
</div>
<script>
  function downloadResults() {
    var rows = Array.from(document.querySelectorAll('tbody tr'));
    var results = rows.map(function (row, index) {
      var cells = row.querySelectorAll('td');
      return {
        file_path: cells[0].innerText,
        field: cells[1].innerText,
        value: cells[2].innerText,
        message: cells[3].innerText,
        decision: row.querySelector('select[name="decision_' + index + '"]').value,
        notes: row.querySelector('input[name="notes_' + index + '"]').value,
        reviewed_at: new Date().toISOString()
      };
    });
    var blob = new Blob([JSON.stringify(results, null, 2)], { type: 'application/json' });
    var url = URL.createObjectURL(blob);
    var link = document.createElement('a');
    link.href = url;
    link.download = 'manual_review_results.json';
    link.click();
    URL.revokeObjectURL(url);
  }
</script>
</body>
</html>
`))

// ReviewForm renders the HTML review form. No file is written when nothing
// was flagged.
func ReviewForm(flagged []types.Flag, path string) (bool, error) {
	if len(flagged) == 0 {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	f, err := os.Create(path)
	if err != nil {
		return false, err
	}
	if err := reviewForm.Execute(f, flagged); err != nil {
		f.Close()
		return false, err
	}
	return true, f.Close()
}

func flagValue(f types.Flag) string {
	if f.Value == nil {
		return ""
	}
	return strconv.FormatFloat(*f.Value, 'f', -1, 64)
}

type Result struct {
	Report     Report
	Flagged    []types.Flag
	ReportPath string
	Exported   []string
	FormPath   string
}

// Audit runs the checks and writes the report, the flagged samples and the
// review form into dir.
func Audit(dataset []types.SteelRecord, rules Rules, dir string, now time.Time) (Result, error) {
	var res Result
	res.Report, res.Flagged = Run(dataset, rules, now)

	var err error
	if res.ReportPath, err = SaveReport(res.Report, dir); err != nil {
		return res, err
	}
	if res.Exported, err = ExportFlagged(res.Flagged, dir); err != nil {
		return res, err
	}
	form := filepath.Join(dir, ReviewFormFile)
	wrote, err := ReviewForm(res.Flagged, form)
	if err != nil {
		return res, err
	}
	if wrote {
		res.FormPath = form
	}
	return res, nil
}
