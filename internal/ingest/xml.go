package ingest

import (
	"fmt"
	"os"
	"strings"

	"github.com/MalithGihan/steelminer/pkg/types"
)

// ce matches an Elsevier common-element tag whether the ce prefix was bound to
// its namespace or left undeclared.
func ce(local string) func(*node) bool {
	return func(n *node) bool {
		if n.Name != local {
			return false
		}
		return n.Space == "ce" || strings.Contains(n.Space, "elsevier.com/xml/common")
	}
}

// ParseElsevier reads an Elsevier full-text XML document. A document that
// breaks off midway keeps what was read before the error and records the
// error in Notes; one with no elements at all is an error.
func ParseElsevier(b []byte) (types.Paper, error) {
	root, err := parseXMLTree(b)
	var p types.Paper
	if err != nil {
		if len(root.Kids) == 0 {
			return p, fmt.Errorf("parse xml: %w", err)
		}
		p.Notes = append(p.Notes, fmt.Sprintf("xml parsed partially: %v", err))
	}
	if t := root.find(ce("title")); t != nil {
		p.Title = strings.TrimSpace(t.text(false))
	}
	if abs := root.find(ce("abstract")); abs != nil {
		var paras []string
		for _, para := range abs.findAll(ce("para")) {
			paras = append(paras, para.text(false))
		}
		p.Abstract = strings.TrimSpace(strings.Join(paras, "\n"))
	}
	if body := root.find(ce("body")); body != nil {
		var sb strings.Builder
		for _, sec := range body.findAll(ce("section")) {
			title := ""
			if t := sec.find(ce("section-title")); t != nil {
				title = t.text(false)
			}
			fmt.Fprintf(&sb, "\n\n%s\n", title)
			for _, para := range ownParas(sec) {
				sb.WriteString(para.text(false))
				sb.WriteString("\n")
			}
		}
		p.Body = strings.TrimSpace(sb.String())
	}
	for _, tbl := range root.findAll(ce("table")) {
		t := types.Table{Method: "xml"}
		if c := tbl.find(ce("caption")); c != nil {
			t.Caption = CleanCell(c.text(false))
		}
		if inner := tbl.find(byName("table", "tgroup")); inner != nil {
			t.Rows = tableRows(inner)
		}
		p.Tables = append(p.Tables, t)
	}
	return p, nil
}

// ownParas returns the paragraphs of a section that do not belong to one of
// its subsections, which are visited on their own.
func ownParas(sec *node) []*node {
	var out []*node
	var walk func(*node)
	walk = func(n *node) {
		for _, k := range n.Kids {
			switch {
			case ce("section")(k):
				continue
			case ce("para")(k):
				out = append(out, k)
			default:
				walk(k)
			}
		}
	}
	walk(sec)
	return out
}

// TablesFromXML extracts every table element of an XML file with the nearest
// preceding caption. On a parse error the tables read before it are returned
// together with the error.
func TablesFromXML(path string) ([]types.Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, perr := parseXMLTree(b)
	var tables []types.Table
	for _, tn := range captionedTables(root, "caption") {
		tables = append(tables, types.Table{Caption: tn.caption, Rows: tableRows(tn.el), Method: "xml"})
	}
	if perr != nil {
		return tables, fmt.Errorf("parse xml: %w", perr)
	}
	return tables, nil
}
