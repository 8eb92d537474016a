package content

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// md is the shared markdown converter. GFM covers tables, strikethrough and
// autolinks; unsafe rendering is required because posts may embed raw HTML.
var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Typographer),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// RenderMarkdown converts a markdown body to HTML.
func RenderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// CountWords counts space-separated words plus individual CJK characters,
// which do not use word separators.
func CountWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r):
			count++
			inWord = false
		case unicode.IsSpace(r):
			inWord = false
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}

// ReadingTime estimates minutes to read for a word count, never below one.
func ReadingTime(wordCount int) int {
	minutes := wordCount / 200
	if minutes < 1 {
		return 1
	}
	return minutes
}

// Transform derives a Post from a Record: renders markdown, fills in a
// missing excerpt and computes reading statistics.
func Transform(rec Record) (Post, error) {
	htmlBody, err := RenderMarkdown(rec.Body)
	if err != nil {
		return Post{}, fmt.Errorf("transform %s: %w", rec.Slug, err)
	}

	post := Post{Record: rec, HTML: htmlBody}
	post.WordCount = CountWords(rec.Body)
	post.ReadingTime = ReadingTime(post.WordCount)
	if strings.TrimSpace(post.Excerpt) == "" {
		post.Excerpt = DeriveExcerpt(htmlBody, 160)
	}
	return post, nil
}
