package content

import (
	"strings"

	"golang.org/x/net/html"
)

// StripHTML removes all markup from an HTML fragment, returning the
// concatenated text content. Parsing uses the tokenizer so malformed
// fragments degrade gracefully instead of erroring.
func StripHTML(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	depthSkip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				depthSkip++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && depthSkip > 0 {
				depthSkip--
			}
		case html.TextToken:
			if depthSkip == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

// DeriveExcerpt produces a plain-text excerpt of at most maxRunes runes from
// an HTML body, appending an ellipsis when truncated.
func DeriveExcerpt(htmlBody string, maxRunes int) string {
	text := strings.Join(strings.Fields(StripHTML(htmlBody)), " ")
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}
