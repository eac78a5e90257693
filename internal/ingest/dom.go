package ingest

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// node is a minimal element tree shared by the XML and HTML parsers so table
// walking is written once. Text nodes have an empty Name.
type node struct {
	Space string
	Name  string
	Attr  map[string]string
	Kids  []*node
	Data  string
}

func (n *node) is(names ...string) bool {
	if n.Name == "" {
		return false
	}
	for _, name := range names {
		if n.Name == name {
			return true
		}
	}
	return false
}

// text concatenates descendant text. With strip set each text run is trimmed
// and the runs are joined without separators.
func (n *node) text(strip bool) string {
	var sb strings.Builder
	var walk func(*node)
	walk = func(c *node) {
		if c.Name == "" {
			if strip {
				sb.WriteString(strings.TrimSpace(c.Data))
			} else {
				sb.WriteString(c.Data)
			}
			return
		}
		for _, k := range c.Kids {
			walk(k)
		}
	}
	walk(n)
	return sb.String()
}

// find returns the first descendant in document order accepted by match.
func (n *node) find(match func(*node) bool) *node {
	for _, k := range n.Kids {
		if match(k) {
			return k
		}
		if f := k.find(match); f != nil {
			return f
		}
	}
	return nil
}

func (n *node) findAll(match func(*node) bool) []*node {
	var out []*node
	var walk func(*node)
	walk = func(c *node) {
		for _, k := range c.Kids {
			if match(k) {
				out = append(out, k)
			}
			walk(k)
		}
	}
	walk(n)
	return out
}

func byName(names ...string) func(*node) bool {
	return func(n *node) bool { return n.is(names...) }
}

func (n *node) span() int {
	v, err := strconv.Atoi(strings.TrimSpace(n.Attr["colspan"]))
	if err != nil || v < 1 {
		return 1
	}
	return v
}

func parseXMLTree(b []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(b))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	root := &node{Name: "#document"}
	stack := []*node{root}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return root, err
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{Space: t.Name.Space, Name: t.Name.Local, Attr: map[string]string{}}
			for _, a := range t.Attr {
				n.Attr[a.Name.Local] = a.Value
			}
			top.Kids = append(top.Kids, n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			top.Kids = append(top.Kids, &node{Data: string(t)})
		}
	}
	return root, nil
}

func parseHTMLTree(b []byte) (*node, error) {
	doc, err := html.Parse(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	var conv func(*html.Node) *node
	conv = func(h *html.Node) *node {
		n := &node{}
		switch h.Type {
		case html.TextNode:
			n.Data = h.Data
			return n
		case html.ElementNode:
			n.Name = strings.ToLower(h.Data)
			n.Attr = make(map[string]string, len(h.Attr))
			for _, a := range h.Attr {
				n.Attr[strings.ToLower(a.Key)] = a.Val
			}
		case html.DocumentNode:
			n.Name = "#document"
		default:
			return nil
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			if h.Type == html.ElementNode && (h.Data == "script" || h.Data == "style") {
				break
			}
			if k := conv(c); k != nil {
				n.Kids = append(n.Kids, k)
			}
		}
		return n
	}
	return conv(doc), nil
}

// tableRows turns a table element into padded rows. Header cells from thead
// come first when present, and rows of nested tables are ignored.
func tableRows(table *node) [][]string {
	var rows [][]string
	var walk func(*node)
	walk = func(n *node) {
		for _, k := range n.Kids {
			switch {
			case k.is("table"):
				continue
			case k.is("tr", "row"):
				var row []string
				for _, c := range k.Kids {
					if !c.is("td", "th", "entry") {
						continue
					}
					cell := CleanCell(c.text(true))
					for i := 0; i < c.span(); i++ {
						row = append(row, cell)
					}
				}
				if len(row) > 0 {
					rows = append(rows, row)
				}
			default:
				walk(k)
			}
		}
	}
	walk(table)
	return padRows(rows)
}

func padRows(rows [][]string) [][]string {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	for i, r := range rows {
		for len(r) < width {
			r = append(r, "")
		}
		rows[i] = r
	}
	return rows
}

// captionedTables walks the tree in document order. A table's caption is its
// own caption child, else the text of the nearest element before it matching
// one of captionNames.
func captionedTables(root *node, captionNames ...string) []tableNode {
	var (
		out  []tableNode
		last string
	)
	var walk func(*node)
	walk = func(n *node) {
		for _, k := range n.Kids {
			if k.Name == "" {
				continue
			}
			if k.is(captionNames...) {
				last = CleanCell(k.text(true))
			}
			if k.is("table") {
				caption := last
				for _, c := range k.Kids {
					if c.is("caption") {
						caption = CleanCell(c.text(true))
						break
					}
				}
				out = append(out, tableNode{caption: caption, el: k})
			}
			walk(k)
		}
	}
	walk(root)
	return out
}

type tableNode struct {
	caption string
	el      *node
}
