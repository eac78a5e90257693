package ingest

import (
	"regexp"
	"strings"
)

var reSpaces = regexp.MustCompile(`\s+`)

// CleanCell trims a cell, collapses inner whitespace and maps the Symbol-font
// bullet to a regular one.
func CleanCell(s string) string {
	s = reSpaces.ReplaceAllString(strings.TrimSpace(s), " ")
	return strings.ReplaceAll(s, "\uf0b7", "•")
}
