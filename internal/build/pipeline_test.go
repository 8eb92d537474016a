package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
)

type fakeLoader struct {
	records []content.Record
}

func (l *fakeLoader) ListContentRecords(ctx context.Context) ([]content.Record, error) {
	return l.records, nil
}

func fixtureRecords() []content.Record {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []content.Record{
		{
			ID: "1", Slug: "hello", Title: "Hello World",
			Body:      "# Hello\n\nFirst post.",
			Tags:      []string{"go"},
			Category:  "dev",
			CreatedAt: created, UpdatedAt: created,
		},
		{
			ID: "2", Slug: "second", Title: "Second Post",
			Body:      "More **content** here.",
			Tags:      []string{"go", "web"},
			CreatedAt: created.AddDate(0, 1, 0), UpdatedAt: created.AddDate(0, 1, 0),
		},
	}
}

// fixtureSite lays out a workspace with a theme, an asset and a content store,
// and wires a build service onto it.
func fixtureSite(t *testing.T) (*config.Config, *fakeLoader, *DefaultBuildService) {
	t.Helper()
	root := t.TempDir()

	tmplDir := filepath.Join(root, "themes", "default", "templates")
	require.NoError(t, os.MkdirAll(tmplDir, 0o755))
	templates := map[string]string{
		"base.cbt": strings.Join([]string{
			"html",
			"  body",
			"    slot content",
			"      | fallback",
		}, "\n"),
		"post.cbt": strings.Join([]string{
			"extends default:base",
			"slot content",
			"  article",
			"    h1 {{ post.title }}",
			"    raw post.content",
		}, "\n"),
		"index.cbt": strings.Join([]string{
			"for p in posts",
			"  h2 {{ p.title }}",
			"end",
		}, "\n"),
		"tag.cbt":      "h1 {{ tag }}",
		"category.cbt": "h1 {{ category }}",
		"archive.cbt":  "h1 {{ archive }}",
	}
	for name, src := range templates {
		require.NoError(t, os.WriteFile(filepath.Join(tmplDir, name), []byte(src), 0o644))
	}

	assetDir := filepath.Join(root, "themes", "default", "assets", "css")
	require.NoError(t, os.MkdirAll(assetDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(assetDir, "site.css"), []byte("body{margin:0}"), 0o644))

	cfg := &config.Config{
		Site: config.SiteConfig{
			Title:    "Fixture",
			URL:      "https://example.com",
			Language: "en",
		},
		Build: config.BuildConfig{
			OutputDir:    filepath.Join(root, "public"),
			CacheDir:     filepath.Join(root, ".cache"),
			PostsPerPage: 10,
			Workers:      2,
		},
		Theme: config.ThemeConfig{Active: "default", Dir: filepath.Join(root, "themes")},
	}

	loader := &fakeLoader{records: fixtureRecords()}
	svc := testService().WithLoaderFactory(func(cfg *config.Config) (content.Loader, func() error, error) {
		return loader, func() error { return nil }, nil
	})
	return cfg, loader, svc
}

func TestRunFullBuild(t *testing.T) {
	cfg, _, svc := fixtureSite(t)

	result, err := svc.Run(context.Background(), BuildRequest{Config: cfg})
	require.NoError(t, err)
	require.Equal(t, BuildStatusSuccess, result.Status)

	// 2 posts + index + 2 tags + 1 category + 1 archive year
	require.Equal(t, 7, result.Pages)
	require.Equal(t, 7, result.PagesRendered)
	require.Zero(t, result.PagesSkipped)
	require.Zero(t, result.PageErrors)

	html, err := os.ReadFile(filepath.Join(cfg.Build.OutputDir, "posts", "hello", "index.html"))
	require.NoError(t, err)
	require.Contains(t, string(html), "<h1>Hello World</h1>")
	require.Contains(t, string(html), "First post.")
	// Inheritance resolved: page body sits inside the base skeleton.
	require.Contains(t, string(html), "<body>")

	for _, rel := range []string{
		"index.html",
		filepath.Join("tags", "go", "index.html"),
		filepath.Join("categories", "dev", "index.html"),
		filepath.Join("archives", "2025", "index.html"),
		filepath.Join("assets", "css", "site.css"),
		"sitemap.xml",
		"feed.xml",
	} {
		_, statErr := os.Stat(filepath.Join(cfg.Build.OutputDir, rel))
		require.NoError(t, statErr, rel)
	}

	// No staging leftovers next to the published output.
	entries, err := os.ReadDir(filepath.Dir(cfg.Build.OutputDir))
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".staging-")
		require.NotContains(t, e.Name(), ".old")
	}
}

func TestRunSecondBuildSkipsEverything(t *testing.T) {
	cfg, _, svc := fixtureSite(t)

	first, err := svc.Run(context.Background(), BuildRequest{Config: cfg})
	require.NoError(t, err)

	second, err := svc.Run(context.Background(), BuildRequest{Config: cfg})
	require.NoError(t, err)
	require.Equal(t, BuildStatusSuccess, second.Status)
	require.Zero(t, second.PagesRendered, "unchanged inputs must render nothing")
	require.Equal(t, first.Pages, second.PagesSkipped)

	// Carried-over output is still complete.
	_, statErr := os.Stat(filepath.Join(cfg.Build.OutputDir, "posts", "hello", "index.html"))
	require.NoError(t, statErr)
}

func TestRunForceRendersEverything(t *testing.T) {
	cfg, _, svc := fixtureSite(t)

	_, err := svc.Run(context.Background(), BuildRequest{Config: cfg})
	require.NoError(t, err)

	forced, err := svc.Run(context.Background(), BuildRequest{Config: cfg, Options: BuildOptions{Force: true}})
	require.NoError(t, err)
	require.Equal(t, forced.Pages, forced.PagesRendered)
	require.Zero(t, forced.PagesSkipped)
}

func TestRunContentChangeRebuildsChangedPost(t *testing.T) {
	cfg, loader, svc := fixtureSite(t)

	_, err := svc.Run(context.Background(), BuildRequest{Config: cfg})
	require.NoError(t, err)

	loader.records[0].Body = "# Hello\n\nEdited body."
	loader.records[0].UpdatedAt = loader.records[0].UpdatedAt.Add(time.Hour)

	result, err := svc.Run(context.Background(), BuildRequest{Config: cfg})
	require.NoError(t, err)
	require.Positive(t, result.PagesRendered)
	require.Less(t, result.PagesRendered, result.Pages, "untouched pages must stay cached")

	html, err := os.ReadFile(filepath.Join(cfg.Build.OutputDir, "posts", "hello", "index.html"))
	require.NoError(t, err)
	require.Contains(t, string(html), "Edited body.")

	// The unrelated post was carried over, not dropped.
	_, statErr := os.Stat(filepath.Join(cfg.Build.OutputDir, "posts", "second", "index.html"))
	require.NoError(t, statErr)
}

func TestRunTemplateChangeRebuildsDependents(t *testing.T) {
	cfg, _, svc := fixtureSite(t)

	_, err := svc.Run(context.Background(), BuildRequest{Config: cfg})
	require.NoError(t, err)

	// Editing the shared parent dirties both posts but not the aggregates.
	base := filepath.Join(cfg.Theme.Dir, "default", "templates", "base.cbt")
	src := strings.Join([]string{
		"html",
		"  body.themed",
		"    slot content",
		"      | fallback",
	}, "\n")
	require.NoError(t, os.WriteFile(base, []byte(src), 0o644))

	result, err := svc.Run(context.Background(), BuildRequest{Config: cfg})
	require.NoError(t, err)
	require.Equal(t, 2, result.PagesRendered)

	html, err := os.ReadFile(filepath.Join(cfg.Build.OutputDir, "posts", "hello", "index.html"))
	require.NoError(t, err)
	require.Contains(t, string(html), `class="themed"`)
}

func TestRunRenderFailureIsolatedPerPage(t *testing.T) {
	cfg, loader, svc := fixtureSite(t)

	// One post points at a template that does not exist.
	loader.records[0].Template = "missing"

	result, err := svc.Run(context.Background(), BuildRequest{Config: cfg})
	require.NoError(t, err)
	require.Equal(t, BuildStatusWarning, result.Status)
	require.Equal(t, 1, result.PageErrors)
	require.True(t, result.Status.IsSuccess())

	// The healthy post still rendered.
	_, statErr := os.Stat(filepath.Join(cfg.Build.OutputDir, "posts", "second", "index.html"))
	require.NoError(t, statErr)
}

func TestRunImageOptimizeMarksImagesLazy(t *testing.T) {
	cfg, loader, svc := fixtureSite(t)
	cfg.Features.ImageOptimize.Enabled = true
	loader.records[0].Body = "A photo:\n\n![photo](/img/photo.png)"

	_, err := svc.Run(context.Background(), BuildRequest{Config: cfg})
	require.NoError(t, err)

	html, err := os.ReadFile(filepath.Join(cfg.Build.OutputDir, "posts", "hello", "index.html"))
	require.NoError(t, err)
	require.Contains(t, string(html), `loading="lazy"`)
}

func TestRunCancelledContext(t *testing.T) {
	cfg, _, svc := fixtureSite(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Run(ctx, BuildRequest{Config: cfg})
	require.Error(t, err)
	require.Equal(t, BuildStatusCancelled, result.Status)
}

func TestCheckTemplatesReportsErrors(t *testing.T) {
	cfg, _, _ := fixtureSite(t)

	broken := filepath.Join(cfg.Theme.Dir, "default", "templates", "broken.cbt")
	require.NoError(t, os.WriteFile(broken, []byte("if user\n  | yes\n"), 0o644))

	checked, errs := CheckTemplates(cfg)
	require.Positive(t, checked)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Error(), "broken")
}
