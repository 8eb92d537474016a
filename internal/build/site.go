package build

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"git.home.luguber.info/inful/sitebuilder/internal/cbtml"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
	"git.home.luguber.info/inful/sitebuilder/internal/incremental"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Site is the immutable in-memory model the render stage works from. It is
// fully materialized before any parallel rendering starts and never mutated
// afterwards.
type Site struct {
	Posts      []*content.Post
	Tags       map[string][]*content.Post
	Categories map[string][]*content.Post
	Archives   map[string][]*content.Post
	Pages      []*Page
}

// Page is one output document: a URL, the template that renders it, and the
// render context.
type Page struct {
	URL      string
	Template string
	Context  map[string]any

	// Fingerprint is the content hash tracked for incremental planning.
	// Post pages hash their source record; aggregate pages hash their
	// context payload, so membership or ordering changes mark them dirty.
	Fingerprint string
}

// stageLoad fetches published records from the content store.
func (s *DefaultBuildService) stageLoad(ctx context.Context, loader content.Loader) ([]content.Record, error) {
	records, err := loader.ListContentRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	s.logger.Info("content loaded", logfields.Stage("load"), logfields.Count(len(records)))
	return records, nil
}

// stageTransform converts records to posts. A record that fails to transform
// is logged and dropped; one bad document never fails the build.
func (s *DefaultBuildService) stageTransform(records []content.Record) []*content.Post {
	posts := make([]*content.Post, 0, len(records))
	for i := range records {
		post, err := content.Transform(records[i])
		if err != nil {
			s.logger.Warn("record transform failed, skipped",
				logfields.Stage("transform"),
				logfields.Page(records[i].Slug),
				logfields.Error(err))
			continue
		}
		posts = append(posts, &post)
	}
	return posts
}

// stageTaxonomy groups posts by tag, category and archive period. Group keys
// are slugs; within each group posts keep their load order (newest first).
func (s *DefaultBuildService) stageTaxonomy(posts []*content.Post) *Site {
	site := &Site{
		Posts:      posts,
		Tags:       make(map[string][]*content.Post),
		Categories: make(map[string][]*content.Post),
		Archives:   make(map[string][]*content.Post),
	}
	for _, post := range posts {
		for _, tag := range post.Tags {
			slug := content.Slugify(tag)
			site.Tags[slug] = append(site.Tags[slug], post)
		}
		if post.Category != "" {
			slug := content.Slugify(post.Category)
			site.Categories[slug] = append(site.Categories[slug], post)
		}
		period := post.CreatedAt.Format("2006")
		site.Archives[period] = append(site.Archives[period], post)
	}
	return site
}

// stageGenerate expands the site model into the full page set.
func (s *DefaultBuildService) stageGenerate(cfg *config.Config, site *Site) error {
	siteCtx := siteContext(cfg)

	for _, post := range site.Posts {
		tmpl := post.Record.Template
		if tmpl == "" {
			tmpl = "post"
		}
		site.Pages = append(site.Pages, &Page{
			URL:      post.Record.URL(),
			Template: tmpl + cbtml.Ext,
			Context: map[string]any{
				"site": siteCtx,
				"page": postContext(post),
				"post": postContext(post),
			},
			Fingerprint: post.Record.Hash(),
		})
	}

	if err := s.generateIndexPages(cfg, site, siteCtx); err != nil {
		return err
	}
	s.generateGroupPages(site, siteCtx, site.Tags, "tag", "/tags/")
	s.generateGroupPages(site, siteCtx, site.Categories, "category", "/categories/")
	s.generateGroupPages(site, siteCtx, site.Archives, "archive", "/archives/")

	return nil
}

// generateIndexPages paginates the post list onto / and /page/N/.
func (s *DefaultBuildService) generateIndexPages(cfg *config.Config, site *Site, siteCtx map[string]any) error {
	perPage := cfg.Build.PostsPerPage
	total := (len(site.Posts) + perPage - 1) / perPage
	if total == 0 {
		total = 1
	}

	for n := 1; n <= total; n++ {
		lo := (n - 1) * perPage
		hi := lo + perPage
		if hi > len(site.Posts) {
			hi = len(site.Posts)
		}

		url := "/"
		if n > 1 {
			url = fmt.Sprintf("/page/%d/", n)
		}
		pagination := map[string]any{
			"current": n,
			"total":   total,
		}
		if n > 1 {
			prev := "/"
			if n > 2 {
				prev = fmt.Sprintf("/page/%d/", n-1)
			}
			pagination["prev_url"] = prev
		}
		if n < total {
			pagination["next_url"] = fmt.Sprintf("/page/%d/", n+1)
		}

		page := &Page{
			URL:      url,
			Template: "index" + cbtml.Ext,
			Context: map[string]any{
				"site":       siteCtx,
				"posts":      postListContext(site.Posts[lo:hi]),
				"pagination": pagination,
			},
		}
		if err := fingerprint(page); err != nil {
			return err
		}
		site.Pages = append(site.Pages, page)
	}
	return nil
}

// generateGroupPages emits one page per taxonomy group, sorted by group key
// so page order is stable across builds.
func (s *DefaultBuildService) generateGroupPages(site *Site, siteCtx map[string]any, groups map[string][]*content.Post, kind, prefix string) {
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		page := &Page{
			URL:      prefix + key + "/",
			Template: kind + cbtml.Ext,
			Context: map[string]any{
				"site":  siteCtx,
				kind:    key,
				"posts": postListContext(groups[key]),
			},
		}
		if err := fingerprint(page); err != nil {
			s.logger.Warn("page fingerprint failed",
				logfields.Page(page.URL), logfields.Error(err))
			continue
		}
		site.Pages = append(site.Pages, page)
	}
}

// fingerprint hashes an aggregate page's context payload. JSON object keys
// marshal sorted, so equal contexts always hash equal.
func fingerprint(page *Page) error {
	data, err := json.Marshal(page.Context)
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", page.URL, err)
	}
	page.Fingerprint = incremental.HashBytes(data)
	return nil
}

// siteContext is the shared "site" variable every template sees.
func siteContext(cfg *config.Config) map[string]any {
	return map[string]any{
		"title":       cfg.Site.Title,
		"subtitle":    cfg.Site.Subtitle,
		"description": cfg.Site.Description,
		"url":         cfg.Site.URL,
		"language":    cfg.Site.Language,
		"author": map[string]any{
			"name":   cfg.Site.Author.Name,
			"email":  cfg.Site.Author.Email,
			"avatar": cfg.Site.Author.Avatar,
			"bio":    cfg.Site.Author.Bio,
		},
		"theme": cfg.Theme.Params,
	}
}

func postContext(post *content.Post) map[string]any {
	return map[string]any{
		"id":           post.Record.ID,
		"slug":         post.Record.Slug,
		"url":          post.Record.URL(),
		"title":        post.Record.Title,
		"content":      post.HTML,
		"excerpt":      post.Excerpt,
		"tags":         post.Tags,
		"category":     post.Category,
		"author":       post.Record.Author,
		"cover_image":  post.Record.CoverImage,
		"created_at":   post.Record.CreatedAt,
		"updated_at":   post.Record.UpdatedAt,
		"word_count":   post.WordCount,
		"reading_time": post.ReadingTime,
	}
}

func postListContext(posts []*content.Post) []map[string]any {
	out := make([]map[string]any, 0, len(posts))
	for _, post := range posts {
		out = append(out, postContext(post))
	}
	return out
}
