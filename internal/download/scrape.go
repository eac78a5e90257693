package download

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// PDFLinks lists candidate PDF links found in a landing page, resolved
// against base. A citation_pdf_url meta tag comes first, then the first hit
// of each link pattern in order.
func PDFLinks(page string, base *url.URL) []string {
	var raw []string
	if meta := citationPDF(page); meta != "" {
		raw = append(raw, meta)
	}
	for _, re := range pdfLinkPatterns {
		if m := re.FindStringSubmatch(page); m != nil {
			raw = append(raw, html.UnescapeString(m[1]))
		}
	}

	seen := map[string]bool{}
	var out []string
	for _, l := range raw {
		u, err := url.Parse(l)
		if err != nil {
			continue
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if s := u.String(); !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func citationPDF(page string) string {
	z := html.NewTokenizer(strings.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			if t.Data == "body" {
				return ""
			}
			if t.Data != "meta" {
				continue
			}
			var name, content string
			for _, a := range t.Attr {
				switch strings.ToLower(a.Key) {
				case "name":
					name = strings.ToLower(a.Val)
				case "content":
					content = a.Val
				}
			}
			if name == "citation_pdf_url" && content != "" {
				return content
			}
		}
	}
}
