package content

import (
	"html"
	"io"
	"strings"
	"unicode/utf8"

	xhtml "golang.org/x/net/html"
)

const DefaultPreviewChars = 200

// RevealFraction caps how much of a post a preview may show.
const RevealFraction = 0.3

// Preview returns at most min(maxChars, floor(0.3*n)) runes of the plain
// text of fullHTML, where n is its rune length, wrapped in one paragraph.
// Text that needs no cut is returned whole.
func Preview(fullHTML string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultPreviewChars
	}
	text := PlainText(fullHTML)
	n := utf8.RuneCountInString(text)
	limit := min(maxChars, int(float64(n)*RevealFraction))
	if limit >= n {
		return "<p>" + html.EscapeString(text) + "</p>"
	}
	cut := strings.TrimRight(string([]rune(text)[:limit]), " ")
	return "<p>" + html.EscapeString(cut) + "...</p>"
}

// PlainText strips markup and collapses whitespace.
func PlainText(fragment string) string {
	z := xhtml.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			if z.Err() != io.EOF {
				return ""
			}
			return strings.Join(strings.Fields(b.String()), " ")
		case xhtml.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case xhtml.StartTagToken:
			if isRawText(z) {
				skip++
			}
			b.WriteByte(' ')
		case xhtml.EndTagToken:
			if isRawText(z) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		default:
			b.WriteByte(' ')
		}
	}
}

func isRawText(z *xhtml.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}
