package content

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func previewText(t *testing.T, out string) string {
	t.Helper()
	if !strings.HasPrefix(out, "<p>") || !strings.HasSuffix(out, "</p>") {
		t.Fatalf("expected single paragraph, got %q", out)
	}
	return strings.TrimSuffix(strings.TrimSuffix(strings.TrimPrefix(out, "<p>"), "</p>"), "...")
}

func TestPreviewNeverExceedsRevealFraction(t *testing.T) {
	for n := 0; n <= 1000; n += 7 {
		body := "<p>" + strings.Repeat("x", n) + "</p>"
		got := previewText(t, Preview(body, DefaultPreviewChars))
		revealed := utf8.RuneCountInString(got)
		bound := min(DefaultPreviewChars, int(float64(n)*RevealFraction))
		if revealed > bound {
			t.Fatalf("n=%d: revealed %d runes, bound %d", n, revealed, bound)
		}
	}
}

func TestPreviewEdgeCases(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "<p></p>"},
		{"single char", "<p>a</p>", "<p>...</p>"},
		{"ten chars", "<p>abcdefghij</p>", "<p>abc...</p>"},
		{"markup stripped", "<h1>Title</h1><p>one   two</p>", "<p>Tit...</p>"},
		{"trailing space trimmed", "<p>ab cdefghij</p>", "<p>ab...</p>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Preview(tc.in, DefaultPreviewChars); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPreviewCapsAtMaxChars(t *testing.T) {
	body := "<p>" + strings.Repeat("word ", 400) + "</p>"
	got := previewText(t, Preview(body, 50))
	if n := utf8.RuneCountInString(got); n > 50 {
		t.Fatalf("expected at most 50 runes, got %d", n)
	}
}

func TestPreviewEscapesAndSkipsScripts(t *testing.T) {
	body := `<p>5 &lt; 6 and more text here</p><script>alert("x")</script>`
	got := Preview(body, 3)
	if got != "<p>5 &lt;...</p>" {
		t.Fatalf("unexpected preview %q", got)
	}
	if strings.Contains(PlainText(body), "alert") {
		t.Fatalf("script content leaked into plain text")
	}
}

func TestPreviewCountsRunes(t *testing.T) {
	body := "<p>" + strings.Repeat("é", 10) + "</p>"
	got := Preview(body, DefaultPreviewChars)
	if got != "<p>ééé...</p>" {
		t.Fatalf("unexpected preview %q", got)
	}
}

func TestRender(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("# Hello\n\n**bold** <script>x</script>")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<h1>Hello</h1>") || !strings.Contains(out, "<strong>bold</strong>") {
		t.Fatalf("unexpected html %q", out)
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("raw html must be dropped: %q", out)
	}
}
