package templates

import (
	"testing"
	"time"

	"github.com/flosch/pongo2/v6"
)

func renderString(t *testing.T, tmpl string, ctx pongo2.Context) string {
	t.Helper()
	RegisterFilters("https://example.com")
	pt, err := pongo2.FromString(tmpl)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := pt.Execute(ctx)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	return out
}

func TestFilterDate(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	if got := renderString(t, "{{ t|date }}", pongo2.Context{"t": ts}); got != "March 14, 2026" {
		t.Errorf("default layout = %q", got)
	}
	if got := renderString(t, `{{ t|date:"2006-01" }}`, pongo2.Context{"t": ts}); got != "2026-03" {
		t.Errorf("custom layout = %q", got)
	}
	// String timestamps from contexts parse too.
	if got := renderString(t, "{{ t|iso }}", pongo2.Context{"t": "2026-03-14"}); got != "2026-03-14T00:00:00Z" {
		t.Errorf("iso = %q", got)
	}
}

func TestFilterSlugifyAndURLs(t *testing.T) {
	cases := []struct{ tmpl, want string }{
		{`{{ "Héllo Wörld!"|slugify }}`, "hello-world"},
		{`{{ "Open Source"|tag_url }}`, "/tags/open-source/"},
		{`{{ "Dev Log"|category_url }}`, "/categories/dev-log/"},
		{`{{ "/about/"|abs_url }}`, "https://example.com/about/"},
	}
	for _, tc := range cases {
		if got := renderString(t, tc.tmpl, nil); got != tc.want {
			t.Errorf("%s = %q, want %q", tc.tmpl, got, tc.want)
		}
	}
}

func TestFilterTruncate(t *testing.T) {
	got := renderString(t, `{{ s|truncate:5 }}`, pongo2.Context{"s": "abcdefghij"})
	if got != "abcde…" {
		t.Errorf("truncate = %q", got)
	}
	got = renderString(t, `{{ s|truncate:20 }}`, pongo2.Context{"s": "short"})
	if got != "short" {
		t.Errorf("no-op truncate = %q", got)
	}
}

func TestFilterReadingTime(t *testing.T) {
	if got := renderString(t, "{{ 800|reading_time }}", nil); got != "4" {
		t.Errorf("reading_time = %q", got)
	}
	if got := renderString(t, "{{ 1|reading_time_label }}", nil); got != "about 1 minute read" {
		t.Errorf("label = %q", got)
	}
	if got := renderString(t, "{{ 7|reading_time_label }}", nil); got != "about 7 minutes read" {
		t.Errorf("label = %q", got)
	}
}

func TestFilterActiveClass(t *testing.T) {
	if got := renderString(t, "{{ on|active_class }}", pongo2.Context{"on": true}); got != "active" {
		t.Errorf("true = %q", got)
	}
	if got := renderString(t, "{{ on|active_class }}", pongo2.Context{"on": false}); got != "" {
		t.Errorf("false = %q", got)
	}
}

func TestFilterJSONIsSafe(t *testing.T) {
	got := renderString(t, "{{ v|json }}", pongo2.Context{"v": map[string]any{"a": 1}})
	if got != `{"a":1}` {
		t.Errorf("json = %q", got)
	}
}

func TestFilterMD5(t *testing.T) {
	got := renderString(t, `{{ "abc"|md5 }}`, nil)
	if got != "900150983cd24fb0d6963f7d28e17f72" {
		t.Errorf("md5 = %q", got)
	}
}
