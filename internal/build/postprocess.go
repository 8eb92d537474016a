package build

import (
	"io"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

// postprocess applies the enabled output transformations to one rendered
// page, after render and before write.
func postprocess(doc string, cfg *config.Config) string {
	if cfg.Features.ImageOptimize.Enabled {
		doc = addLazyImageLoading(doc)
	}
	return doc
}

// addLazyImageLoading marks every <img> without an explicit loading attribute
// as lazy. Only <img> tags are re-serialized; every other token passes
// through byte for byte, and input the tokenizer cannot parse is returned
// unchanged.
func addLazyImageLoading(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var b strings.Builder
	b.Grow(len(doc) + 64)

	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return b.String()
			}
			return doc
		case html.StartTagToken, html.SelfClosingTagToken:
			raw := string(z.Raw())
			tok := z.Token()
			if tok.Data != "img" || hasAttr(tok, "loading") {
				b.WriteString(raw)
				continue
			}
			tok.Attr = append(tok.Attr, html.Attribute{Key: "loading", Val: "lazy"})
			b.WriteString(tok.String())
		default:
			b.Write(z.Raw())
		}
	}
}

func hasAttr(tok html.Token, key string) bool {
	for _, attr := range tok.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}
