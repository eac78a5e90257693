package ingest

import (
	"regexp"
	"strings"

	"github.com/MalithGihan/steelminer/pkg/types"
)

var (
	reTableCaption = regexp.MustCompile(`Table \d+[.:]? ([^\n]+)\n`)
	reColumnGap    = regexp.MustCompile(`\s{2,}`)
)

// TablesFromText finds "Table N. caption" headings and reads the following
// lines, up to a blank line, as rows whose cells are separated by two or more
// spaces.
func TablesFromText(text string) []types.Table {
	var tables []types.Table
	for _, blk := range textTables(text) {
		tables = append(tables, types.Table{Caption: blk.caption, Rows: blk.rows, Method: "text"})
	}
	return tables
}

type textTable struct {
	caption string
	rows    [][]string
}

func textTables(text string) []textTable {
	var out []textTable
	pos := 0
	for pos < len(text) {
		loc := reTableCaption.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		caption := strings.TrimSpace(text[pos+loc[2] : pos+loc[3]])
		start := pos + loc[1]
		end := strings.Index(text[start:], "\n\n")
		if end < 0 {
			end = len(text)
		} else {
			end += start
		}
		pos = end
		if start >= end {
			continue
		}
		var rows [][]string
		for _, line := range strings.Split(strings.TrimSpace(text[start:end]), "\n") {
			var row []string
			for _, cell := range reColumnGap.Split(line, -1) {
				if c := strings.TrimSpace(cell); c != "" {
					row = append(row, c)
				}
			}
			if len(row) > 0 {
				rows = append(rows, row)
			}
		}
		if len(rows) > 0 {
			out = append(out, textTable{caption: caption, rows: rows})
		}
	}
	return out
}

var (
	captionKeywords = []string{"composition", "chemical", "element", "properties", "mechanical", "heat treatment"}
	headerSymbols   = regexp.MustCompile(`\b(C|Si|Mn|Cr|Ni|YS|UTS|EL)\b`)
	headerWords     = []string{"temperature", "time"}
)

// IsMaterialsTable reports whether a table likely holds composition, process
// or property data. Element symbols are matched case-sensitively as whole
// tokens.
func IsMaterialsTable(t types.Table) bool {
	caption := strings.ToLower(t.Caption)
	for _, kw := range captionKeywords {
		if strings.Contains(caption, kw) {
			return true
		}
	}
	for _, h := range t.Header() {
		if headerSymbols.MatchString(h) {
			return true
		}
		lh := strings.ToLower(h)
		for _, w := range headerWords {
			if strings.Contains(lh, w) {
				return true
			}
		}
	}
	return false
}

// looksLikeTable needs at least two rows and a modal row width of two or more
// cells shared by at least two rows.
func looksLikeTable(rows [][]string) bool {
	if len(rows) < 2 {
		return false
	}
	counts := map[int]int{}
	for _, r := range rows {
		if len(r) > 0 {
			counts[len(r)]++
		}
	}
	mode, best := 0, 0
	for w, c := range counts {
		if c > best || (c == best && w > mode) {
			mode, best = w, c
		}
	}
	return mode >= 2 && best >= 2
}
