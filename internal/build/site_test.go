package build

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
)

func testService() *DefaultBuildService {
	return NewBuildService(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testSiteConfig() *config.Config {
	return &config.Config{
		Site: config.SiteConfig{
			Title:    "Test",
			URL:      "https://example.com",
			Language: "en",
		},
		Build: config.BuildConfig{PostsPerPage: 2},
		Theme: config.ThemeConfig{Active: "default"},
	}
}

func makePost(slug, title string, created time.Time, tags []string, category string) *content.Post {
	return &content.Post{
		Record: content.Record{
			Slug:      slug,
			Title:     title,
			Tags:      tags,
			Category:  category,
			CreatedAt: created,
			UpdatedAt: created,
		},
		HTML: "<p>" + title + "</p>",
	}
}

func TestStageTaxonomyGroupsBySlug(t *testing.T) {
	s := testService()
	posts := []*content.Post{
		makePost("a", "A", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), []string{"Go Lang"}, "Dev Log"),
		makePost("b", "B", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), []string{"Go Lang", "web"}, ""),
		makePost("c", "C", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil, "Dev Log"),
	}

	site := s.stageTaxonomy(posts)

	if got := len(site.Tags["go-lang"]); got != 2 {
		t.Errorf("tag go-lang has %d posts, want 2", got)
	}
	if got := len(site.Tags["web"]); got != 1 {
		t.Errorf("tag web has %d posts, want 1", got)
	}
	if got := len(site.Categories["dev-log"]); got != 2 {
		t.Errorf("category dev-log has %d posts, want 2", got)
	}
	if got := len(site.Archives["2025"]); got != 2 {
		t.Errorf("archive 2025 has %d posts, want 2", got)
	}
	if got := len(site.Archives["2024"]); got != 1 {
		t.Errorf("archive 2024 has %d posts, want 1", got)
	}
}

func TestStageGeneratePostPages(t *testing.T) {
	s := testService()
	posts := []*content.Post{
		makePost("hello", "Hello", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), nil, ""),
	}
	site := s.stageTaxonomy(posts)

	if err := s.stageGenerate(testSiteConfig(), site); err != nil {
		t.Fatalf("generate: %v", err)
	}

	var page *Page
	for _, p := range site.Pages {
		if p.URL == "/posts/hello/" {
			page = p
		}
	}
	if page == nil {
		t.Fatalf("post page missing; pages = %v", pageURLs(site))
	}
	if page.Template != "post.cbt" {
		t.Errorf("template = %q", page.Template)
	}
	if page.Fingerprint != posts[0].Record.Hash() {
		t.Error("post page fingerprint must be the record hash")
	}
	if _, ok := page.Context["post"]; !ok {
		t.Error("post context missing")
	}
}

func TestStageGenerateTemplateOverride(t *testing.T) {
	s := testService()
	post := makePost("special", "Special", time.Now(), nil, "")
	post.Record.Template = "feature"
	site := s.stageTaxonomy([]*content.Post{post})

	if err := s.stageGenerate(testSiteConfig(), site); err != nil {
		t.Fatal(err)
	}
	if site.Pages[0].Template != "feature.cbt" {
		t.Errorf("template = %q", site.Pages[0].Template)
	}
}

func TestGenerateIndexPagination(t *testing.T) {
	s := testService()
	posts := make([]*content.Post, 5)
	for i := range posts {
		posts[i] = makePost(string(rune('a'+i)), "P", time.Now(), nil, "")
	}
	site := s.stageTaxonomy(posts)

	cfg := testSiteConfig() // 2 per page -> 3 index pages
	if err := s.stageGenerate(cfg, site); err != nil {
		t.Fatal(err)
	}

	index := map[string]*Page{}
	for _, p := range site.Pages {
		if p.Template == "index.cbt" {
			index[p.URL] = p
		}
	}
	for _, url := range []string{"/", "/page/2/", "/page/3/"} {
		if index[url] == nil {
			t.Fatalf("index page %q missing; pages = %v", url, pageURLs(site))
		}
	}
	if len(index) != 3 {
		t.Errorf("index page count = %d", len(index))
	}

	p2 := index["/page/2/"].Context["pagination"].(map[string]any)
	if p2["prev_url"] != "/" || p2["next_url"] != "/page/3/" {
		t.Errorf("page 2 pagination = %v", p2)
	}
	p3 := index["/page/3/"].Context["pagination"].(map[string]any)
	if p3["prev_url"] != "/page/2/" {
		t.Errorf("page 3 pagination = %v", p3)
	}
	if _, ok := p3["next_url"]; ok {
		t.Error("last page must have no next_url")
	}

	// First page carries the first slice of posts.
	if got := len(index["/"].Context["posts"].([]map[string]any)); got != 2 {
		t.Errorf("first page post count = %d", got)
	}
}

func TestGenerateIndexEmptySiteStillHasFrontPage(t *testing.T) {
	s := testService()
	site := s.stageTaxonomy(nil)
	if err := s.stageGenerate(testSiteConfig(), site); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, p := range site.Pages {
		if p.URL == "/" {
			found = true
		}
	}
	if !found {
		t.Error("empty site must still emit /")
	}
}

func TestGenerateGroupPageURLs(t *testing.T) {
	s := testService()
	posts := []*content.Post{
		makePost("a", "A", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), []string{"Go"}, "Dev Log"),
	}
	site := s.stageTaxonomy(posts)
	if err := s.stageGenerate(testSiteConfig(), site); err != nil {
		t.Fatal(err)
	}

	urls := map[string]bool{}
	for _, p := range site.Pages {
		urls[p.URL] = true
	}
	for _, want := range []string{"/tags/go/", "/categories/dev-log/", "/archives/2025/"} {
		if !urls[want] {
			t.Errorf("missing %q; pages = %v", want, pageURLs(site))
		}
	}
}

// Aggregate fingerprints must be a pure function of the page context so
// unchanged pages plan clean across builds.
func TestAggregateFingerprintsStable(t *testing.T) {
	s := testService()
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	build := func() map[string]string {
		posts := []*content.Post{
			makePost("a", "A", created, []string{"go"}, ""),
			makePost("b", "B", created, []string{"go"}, ""),
		}
		site := s.stageTaxonomy(posts)
		if err := s.stageGenerate(testSiteConfig(), site); err != nil {
			t.Fatal(err)
		}
		prints := map[string]string{}
		for _, p := range site.Pages {
			prints[p.URL] = p.Fingerprint
		}
		return prints
	}

	first, second := build(), build()
	for url, fp := range first {
		if second[url] != fp {
			t.Errorf("fingerprint for %s not stable", url)
		}
	}
}

func TestAggregateFingerprintTracksMembership(t *testing.T) {
	s := testService()
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	tagPrint := func(posts []*content.Post) string {
		site := s.stageTaxonomy(posts)
		if err := s.stageGenerate(testSiteConfig(), site); err != nil {
			t.Fatal(err)
		}
		for _, p := range site.Pages {
			if p.URL == "/tags/go/" {
				return p.Fingerprint
			}
		}
		t.Fatal("tag page missing")
		return ""
	}

	one := tagPrint([]*content.Post{makePost("a", "A", created, []string{"go"}, "")})
	two := tagPrint([]*content.Post{
		makePost("a", "A", created, []string{"go"}, ""),
		makePost("b", "B", created, []string{"go"}, ""),
	})
	if one == two {
		t.Error("tag page fingerprint must change when membership changes")
	}
}

func pageURLs(site *Site) []string {
	urls := make([]string, 0, len(site.Pages))
	for _, p := range site.Pages {
		urls = append(urls, p.URL)
	}
	return urls
}
