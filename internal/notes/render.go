package notes

import (
	"bytes"
	"html"
	"html/template"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// PreviewChars is the length of list previews, in runes.
const PreviewChars = 130

var (
	contentPolicy = newContentPolicy()
	stripPolicy   = bluemonday.StrictPolicy()

	// Paragraph and line breaks become newlines in plain text.
	blockBreak = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</h[1-6]>|</li>|</pre>|</blockquote>`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

// newContentPolicy allows what the rich-text editor produces: paragraphs,
// headings, emphasis, lists, code and links.
func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)).OnElements("pre", "code")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// SanitizeHTML removes scripts, event handlers and other unsafe markup from
// serialized note content.
func SanitizeHTML(content string) string {
	return contentPolicy.Sanitize(content)
}

// PlainText strips all markup from content. Block ends become newlines and
// entities are decoded.
func PlainText(content string) string {
	withBreaks := blockBreak.ReplaceAllString(content, "$0\n")
	stripped := html.UnescapeString(stripPolicy.Sanitize(withBreaks))
	stripped = blankRuns.ReplaceAllString(stripped, "\n\n")
	return strings.TrimSpace(stripped)
}

// Preview returns the first PreviewChars runes of the plain text, with "..."
// when cut.
func Preview(content string) string {
	text := strings.Join(strings.Fields(PlainText(content)), " ")
	if utf8.RuneCountInString(text) <= PreviewChars {
		return text
	}
	return string([]rune(text)[:PreviewChars]) + "..."
}

// RenderMarkdown converts markdown to a sanitized HTML fragment.
func RenderMarkdown(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(md))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	return SanitizeHTML(string(bytes.TrimSpace(markdown.Render(doc, renderer))))
}

const documentTemplate = `<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            line-height: 1.6;
            max-width: 720px;
            margin: 0 auto;
            padding: 2rem 1rem;
        }
        pre, code { font-family: 'SF Mono', Consolas, monospace; }
        pre { background: #f5f5f5; padding: 1rem; border-radius: 6px; overflow-x: auto; }
    </style>
</head>
<body>
    <article>
        <h1>{{.Title}}</h1>
        {{.Content}}
    </article>
</body>
</html>`

var docTmpl = template.Must(template.New("note").Parse(documentTemplate))

type documentData struct {
	Lang    string
	Title   string
	Content template.HTML
}

// RenderDocument wraps note content in a standalone HTML page for export.
// The content is sanitized; title and lang are escaped by the template.
func RenderDocument(title, content, lang string) []byte {
	if lang == "" {
		lang = "en"
	}
	var buf bytes.Buffer
	err := docTmpl.Execute(&buf, documentData{
		Lang:    lang,
		Title:   title,
		Content: template.HTML(SanitizeHTML(content)),
	})
	if err != nil {
		return []byte("<!DOCTYPE html><html><head><title>Error</title></head><body><h1>Error rendering note</h1></body></html>")
	}
	return buf.Bytes()
}
