package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalithGihan/steelminer/pkg/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDetectType(t *testing.T) {
	cases := map[string]string{
		"a.PDF":     "pdf",
		"b.xml":     "xml",
		"c.htm":     "html",
		"d.html":    "html",
		"e.txt":     "text",
		"f.drawio":  "unknown",
		"no-suffix": "unknown",
	}
	for name, want := range cases {
		assert.Equal(t, want, DetectType(name), name)
	}
}

func TestCleanCell(t *testing.T) {
	assert.Equal(t, "0.21 wt% •", CleanCell("  0.21 \n\t wt%   "))
	assert.Equal(t, "", CleanCell("   "))
}

const elsevierDoc = `<?xml version="1.0" encoding="UTF-8"?>
<full-text-retrieval-response xmlns:ce="http://www.elsevier.com/xml/common/dtd" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <coredata><dc:title>Metadata title</dc:title></coredata>
  <ce:title>Bainite in medium carbon steel</ce:title>
  <ce:abstract>
    <ce:para>First abstract paragraph.</ce:para>
    <ce:para>Second one.</ce:para>
  </ce:abstract>
  <ce:body>
    <ce:section>
      <ce:section-title>Experimental</ce:section-title>
      <ce:para>Samples were austenitized at 900 °C.</ce:para>
      <ce:section>
        <ce:section-title>Materials</ce:section-title>
        <ce:para>The steel contained 0.3 C.</ce:para>
      </ce:section>
    </ce:section>
  </ce:body>
  <ce:table>
    <ce:caption>Table 1. Chemical composition (wt.%)</ce:caption>
    <table>
      <tr><th>Steel</th><th>C</th><th>Mn</th></tr>
      <tr><td>A</td><td>0.30</td><td>1.20</td></tr>
    </table>
  </ce:table>
</full-text-retrieval-response>`

func TestParseElsevier(t *testing.T) {
	p, err := ParseElsevier([]byte(elsevierDoc))
	require.NoError(t, err)

	assert.Equal(t, "Bainite in medium carbon steel", p.Title)
	assert.Equal(t, "First abstract paragraph.\nSecond one.", p.Abstract)
	assert.Equal(t, "Experimental\nSamples were austenitized at 900 °C.\n\n\nMaterials\nThe steel contained 0.3 C.", p.Body)
	require.Len(t, p.Tables, 1)
	assert.Equal(t, "Table 1. Chemical composition (wt.%)", p.Tables[0].Caption)
	assert.Equal(t, [][]string{{"Steel", "C", "Mn"}, {"A", "0.30", "1.20"}}, p.Tables[0].Rows)
}

func TestParseElsevierKeepsPartialDocument(t *testing.T) {
	cut := strings.Index(elsevierDoc, "<ce:body>")
	p, err := ParseElsevier([]byte(elsevierDoc[:cut] + "<ce:body><ce:section><ce:para>Partial"))
	require.NoError(t, err)
	assert.Equal(t, "Bainite in medium carbon steel", p.Title)
	assert.Equal(t, "First abstract paragraph.\nSecond one.", p.Abstract)
	require.Len(t, p.Notes, 1)
	assert.Contains(t, p.Notes[0], "xml parsed partially")
	assert.Contains(t, p.Notes[0], "unexpected EOF")

	_, err = ParseElsevier([]byte("<<<"))
	assert.ErrorContains(t, err, "parse xml")
}

func TestTablesFromXMLReportsTruncation(t *testing.T) {
	path := writeFile(t, "cut.xml", `<doc><caption>Composition</caption>
<table><tr><td>C</td><td>0.2</td></tr><tr><td>Si</td><td>1.5</td></tr>`)
	tables, err := TablesFromXML(path)
	assert.ErrorContains(t, err, "parse xml")
	require.Len(t, tables, 1)
	assert.Equal(t, "Composition", tables[0].Caption)
	assert.Equal(t, [][]string{{"C", "0.2"}, {"Si", "1.5"}}, tables[0].Rows)
}

func TestLoaderParseNotesPartialXML(t *testing.T) {
	cut := strings.Index(elsevierDoc, "</ce:body>")
	path := writeFile(t, "cut.xml", elsevierDoc[:cut])
	pf := (&Loader{}).Parse(context.Background(), path)
	require.Len(t, pf.Tables, 0)
	require.NotEmpty(t, pf.Notes)
	assert.Contains(t, pf.Notes[0], "xml parsed partially")
}

func TestTablesFromXMLUsesPrecedingCaption(t *testing.T) {
	path := writeFile(t, "paper.xml", `<doc>
  <ce:caption>Mechanical properties</ce:caption>
  <table>
    <thead><tr><th colspan="2">Strength</th><th>EL</th></tr></thead>
    <tr><td>950</td><td>1100</td><td>12</td></tr>
    <tr><td>900</td></tr>
  </table>
</doc>`)
	tables, err := TablesFromXML(path)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "Mechanical properties", tables[0].Caption)
	assert.Equal(t, [][]string{
		{"Strength", "Strength", "EL"},
		{"950", "1100", "12"},
		{"900", "", ""},
	}, tables[0].Rows)
}

const htmlDoc = `<html><body>
<h1>Quenching and partitioning</h1>
<div class="abstract author"><p>We study <b>Q&amp;P</b> steels.</p></div>
<div class="article-body"><p>Partitioning at 400 °C.</p></div>
<h3>Table 2 Heat treatment schedule</h3>
<table>
  <thead><tr><th>Step</th><th>Temperature</th></tr></thead>
  <tbody>
    <tr><td>Austenitize</td><td>900</td></tr>
    <tr><td colspan="2">Quench in oil</td></tr>
  </tbody>
</table>
<table>
  <caption>Table 3 Hardness</caption>
  <tr><td>HV</td><td>450</td></tr>
</table>
</body></html>`

func TestParseHTML(t *testing.T) {
	p, err := ParseHTML([]byte(htmlDoc))
	require.NoError(t, err)

	assert.Equal(t, "Quenching and partitioning", p.Title)
	assert.Equal(t, "We studyQ&Psteels.", p.Abstract)
	assert.Equal(t, "Partitioning at 400 °C.", p.Body)
	require.Len(t, p.Tables, 2)
	assert.Equal(t, "Table 2 Heat treatment schedule", p.Tables[0].Caption)
	assert.Equal(t, [][]string{
		{"Step", "Temperature"},
		{"Austenitize", "900"},
		{"Quench in oil", "Quench in oil"},
	}, p.Tables[0].Rows)
	assert.Equal(t, "Table 3 Hardness", p.Tables[1].Caption)
	assert.Equal(t, "html", p.Tables[1].Method)
}

func TestTablesFromText(t *testing.T) {
	body := "Intro.\n\nTable 1. Chemical composition of steels\n" +
		"Steel   C     Mn\nA       0.21  1.50\n\n" +
		"Discussion.\nTable 2: Tensile results\nYS    UTS\n950   1200"
	tables := TablesFromText(body)
	require.Len(t, tables, 2)
	assert.Equal(t, "Chemical composition of steels", tables[0].Caption)
	assert.Equal(t, [][]string{{"Steel", "C", "Mn"}, {"A", "0.21", "1.50"}}, tables[0].Rows)
	assert.Equal(t, "Tensile results", tables[1].Caption)
	assert.Equal(t, [][]string{{"YS", "UTS"}, {"950", "1200"}}, tables[1].Rows)
	assert.Empty(t, TablesFromText("no tables at all"))
}

func TestIsMaterialsTable(t *testing.T) {
	assert.True(t, IsMaterialsTable(types.Table{Caption: "Chemical COMPOSITION"}))
	assert.True(t, IsMaterialsTable(types.Table{Rows: [][]string{{"Sample", "Mn"}}}))
	assert.True(t, IsMaterialsTable(types.Table{Rows: [][]string{{"Holding Time (s)"}}}))
	assert.False(t, IsMaterialsTable(types.Table{Caption: "Literature survey", Rows: [][]string{{"Author", "Cell"}}}))
	assert.False(t, IsMaterialsTable(types.Table{}))
}

func TestLooksLikeTable(t *testing.T) {
	assert.True(t, looksLikeTable([][]string{{"a", "b"}, {"1", "2"}, {"x"}}))
	assert.False(t, looksLikeTable([][]string{{"a", "b"}}))
	assert.False(t, looksLikeTable([][]string{{"a"}, {"b"}, {"c"}}))
	assert.False(t, looksLikeTable([][]string{{"a", "b"}, {"1", "2", "3"}}))
}

func TestLoaderTablesPreferExisting(t *testing.T) {
	l := &Loader{}
	existing := []types.Table{{Caption: "given"}}
	got, err := l.Tables(context.Background(), types.Paper{Tables: existing}, "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, existing, got)

	got, err = l.Tables(context.Background(), types.Paper{Body: "Table 1 Data\nA  B\n1  2"}, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "text", got[0].Method)
}

func TestLoaderTablesPDFFallsBackToBody(t *testing.T) {
	l := &Loader{PDF: &PDF{Runner: &fakeRunner{}}}
	body := "Table 2. Mechanical properties\nSteel  YS    UTS\nA      900   1200\n"
	got, err := l.Tables(context.Background(), types.Paper{Body: body}, "scan.pdf")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Mechanical properties", got[0].Caption)
	assert.Equal(t, "text", got[0].Method)
}

func TestLoaderParseSoftFails(t *testing.T) {
	l := &Loader{}
	txt := writeFile(t, "notes.txt", "Table 1. Composition\nC    Si\n0.2  0.3\n")
	bad := writeFile(t, "scan.pdf", "%PDF")
	files := []ParsedFile{
		l.Parse(context.Background(), txt),
		l.Parse(context.Background(), bad),
		l.Parse(context.Background(), filepath.Join(t.TempDir(), "missing.xml")),
	}
	assert.Equal(t, "text", files[0].Type)
	assert.Len(t, files[0].Tables, 1)
	assert.Empty(t, files[0].Notes)
	assert.Contains(t, files[1].Notes[0], "pdf support not configured")
	assert.Len(t, files[2].Notes, 1)

	s := Summarize(files)
	assert.Equal(t, 1, s.Tables)
	assert.Equal(t, 1, s.MaterialsTables)
	assert.Len(t, s.Notes, 2)
}
