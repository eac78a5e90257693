package ingest

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/MalithGihan/steelminer/pkg/types"
)

var reBodyClass = regexp.MustCompile(`(content|body|text)`)

// ParseHTML reads a publisher landing or full-text page.
func ParseHTML(b []byte) (types.Paper, error) {
	root, err := parseHTMLTree(b)
	if err != nil {
		return types.Paper{}, fmt.Errorf("parse html: %w", err)
	}
	var p types.Paper
	if h1 := root.find(byName("h1")); h1 != nil {
		p.Title = strings.TrimSpace(h1.text(false))
	}
	abstract := root.find(func(n *node) bool {
		if !n.is("div", "section") {
			return false
		}
		return hasClass(n, "abstract") || strings.Contains(strings.ToLower(n.Attr["id"]), "abstract")
	})
	if abstract != nil {
		p.Abstract = strings.TrimSpace(abstract.text(true))
	}
	var sb strings.Builder
	for _, sec := range root.findAll(func(n *node) bool {
		return n.is("section", "div") && reBodyClass.MatchString(n.Attr["class"])
	}) {
		sb.WriteString(sec.text(false))
		sb.WriteString("\n\n")
	}
	p.Body = strings.TrimSpace(sb.String())
	p.Tables = htmlTables(root)
	return p, nil
}

// TablesFromHTML extracts every table of an HTML file.
func TablesFromHTML(path string) ([]types.Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, err := parseHTMLTree(b)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return htmlTables(root), nil
}

func htmlTables(root *node) []types.Table {
	var tables []types.Table
	for _, tn := range captionedTables(root, "caption", "h2", "h3", "h4") {
		tables = append(tables, types.Table{Caption: tn.caption, Rows: tableRows(tn.el), Method: "html"})
	}
	return tables
}

func hasClass(n *node, class string) bool {
	for _, c := range strings.Fields(n.Attr["class"]) {
		if c == class {
			return true
		}
	}
	return false
}
