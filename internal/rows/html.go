package rows

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/cognicore/docasm/pkg/docasm/dataset"
)

// blockTags are followed by a line break in extracted text
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "section": true, "article": true,
}

// StripHTML returns the text content of an HTML fragment. Script and
// style bodies are dropped.
func StripHTML(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		// Fallback to string if parsing fails
		return s
	}

	var buf strings.Builder
	var extractText func(*html.Node)
	extractText = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extractText(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			buf.WriteByte('\n')
		}
	}
	extractText(doc)

	return buf.String()
}

// StripHTMLColumns replaces HTML in the named string and string-array
// columns with its text content, in place.
func StripHTMLColumns(rows []dataset.Row, cols []string) {
	for _, row := range rows {
		for _, col := range cols {
			switch v := row[col].(type) {
			case string:
				row[col] = StripHTML(v)
			case []string:
				out := make([]string, len(v))
				for i, s := range v {
					out[i] = StripHTML(s)
				}
				row[col] = out
			case []any:
				out := make([]any, len(v))
				for i, elem := range v {
					if s, ok := elem.(string); ok {
						out[i] = StripHTML(s)
					} else {
						out[i] = elem
					}
				}
				row[col] = out
			}
		}
	}
}
