package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MalithGihan/steelminer/pkg/types"
)

// ErrNoTables is returned when every PDF table strategy comes up empty.
var ErrNoTables = errors.New("no tables found")

func DetectType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf":
		return "pdf"
	case ".xml":
		return "xml"
	case ".html", ".htm":
		return "html"
	case ".txt":
		return "text"
	default:
		return "unknown"
	}
}

// Loader turns paper files into text plus tables. PDF may be nil, in which
// case PDFs are rejected.
type Loader struct {
	PDF *PDF
}

// Load parses a paper file according to its extension.
func (l *Loader) Load(ctx context.Context, path string) (types.Paper, error) {
	kind := DetectType(path)
	if kind == "pdf" {
		if l.PDF == nil {
			return types.Paper{}, fmt.Errorf("pdf support not configured")
		}
		text, err := l.PDF.Text(ctx, path)
		if err != nil {
			return types.Paper{}, err
		}
		return types.Paper{Body: text}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Paper{}, err
	}
	switch kind {
	case "xml":
		return ParseElsevier(b)
	case "html":
		return ParseHTML(b)
	case "text":
		return types.Paper{Body: string(b)}, nil
	default:
		return types.Paper{}, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

// Tables returns the tables already attached to the paper, else those a
// format-specific extractor finds in the file, else text tables in the body.
// A PDF whose extractors all come up empty falls back to its body text.
func (l *Loader) Tables(ctx context.Context, paper types.Paper, path string) ([]types.Table, error) {
	if len(paper.Tables) > 0 {
		return paper.Tables, nil
	}
	if path != "" {
		switch DetectType(path) {
		case "xml":
			return TablesFromXML(path)
		case "html":
			return TablesFromHTML(path)
		case "pdf":
			if l.PDF != nil {
				tables, err := l.PDF.Tables(ctx, path)
				if !errors.Is(err, ErrNoTables) {
					return tables, err
				}
			}
		}
	}
	return TablesFromText(paper.Body), nil
}

// ParsedFile is the soft-failing result of ingesting one upload.
type ParsedFile struct {
	Name   string        `json:"name"`
	Type   string        `json:"type"`
	Tables []types.Table `json:"tables"`
	Notes  []string      `json:"notes,omitempty"`
}

// Parse loads one file and its tables. Failures become notes so a batch of
// uploads is never rejected because of one bad file.
func (l *Loader) Parse(ctx context.Context, path string) ParsedFile {
	pf := ParsedFile{Name: filepath.Base(path), Type: DetectType(path)}
	paper, err := l.Load(ctx, path)
	if err != nil {
		pf.Notes = append(pf.Notes, fmt.Sprintf("%s: %v", pf.Type, err))
		return pf
	}
	pf.Notes = append(pf.Notes, paper.Notes...)
	tables, err := l.Tables(ctx, paper, path)
	if err != nil {
		pf.Notes = append(pf.Notes, fmt.Sprintf("tables: %v", err))
	}
	pf.Tables = tables
	if len(tables) == 0 {
		pf.Notes = append(pf.Notes, "no tables found")
	}
	return pf
}

type Summary struct {
	Files           []ParsedFile `json:"files"`
	Tables          int          `json:"tables"`
	MaterialsTables int          `json:"materialsTables"`
	Notes           []string     `json:"notes,omitempty"`
}

// Summarize counts tables across parsed files.
func Summarize(files []ParsedFile) Summary {
	s := Summary{Files: files}
	for _, f := range files {
		s.Tables += len(f.Tables)
		for _, t := range f.Tables {
			if IsMaterialsTable(t) {
				s.MaterialsTables++
			}
		}
		for _, n := range f.Notes {
			s.Notes = append(s.Notes, f.Name+": "+n)
		}
	}
	return s
}
