package build

import (
	"strings"
	"testing"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

func TestAddLazyImageLoading(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain img gains the attribute",
			in:   `<p><img src="/a.png" alt="x"></p>`,
			want: `<p><img src="/a.png" alt="x" loading="lazy"></p>`,
		},
		{
			name: "self closing img",
			in:   `<img src="/a.png"/>`,
			want: `<img src="/a.png" loading="lazy"/>`,
		},
		{
			name: "explicit loading is respected",
			in:   `<img src="/a.png" loading="eager">`,
			want: `<img src="/a.png" loading="eager">`,
		},
		{
			name: "other tags pass through untouched",
			in:   `<article><h1>Hi &amp; bye</h1><a href="/x?a=1&amp;b=2">x</a></article>`,
			want: `<article><h1>Hi &amp; bye</h1><a href="/x?a=1&amp;b=2">x</a></article>`,
		},
		{
			name: "multiple images",
			in:   `<img src="/a.png"><img src="/b.png" loading="lazy"><img src="/c.png">`,
			want: `<img src="/a.png" loading="lazy"><img src="/b.png" loading="lazy"><img src="/c.png" loading="lazy">`,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := addLazyImageLoading(c.in); got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestPostprocessDisabledLeavesOutputAlone(t *testing.T) {
	cfg := testSiteConfig()
	in := `<img src="/a.png">`
	if got := postprocess(in, cfg); got != in {
		t.Errorf("disabled feature must not rewrite output, got %q", got)
	}

	cfg.Features.ImageOptimize.Enabled = true
	if got := postprocess(in, cfg); !strings.Contains(got, `loading="lazy"`) {
		t.Errorf("enabled feature must rewrite output, got %q", got)
	}
}

func TestPostprocessFeatureFromConfig(t *testing.T) {
	cfg := &config.Config{
		Features: config.FeaturesConfig{
			ImageOptimize: config.ImageOptimizeConfig{Enabled: true},
		},
	}
	if got := postprocess(`<img src="/a.png">`, cfg); !strings.Contains(got, `loading="lazy"`) {
		t.Errorf("got %q", got)
	}
}
