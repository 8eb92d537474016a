package build

import (
	"encoding/xml"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/incremental"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// stageAssets copies the active theme's static assets into the staging tree.
// A file already present with an identical content hash (carried over from
// the previous output) is skipped.
func (s *DefaultBuildService) stageAssets(cfg *config.Config, staging string) (copied, skipped int, err error) {
	assetsDir := filepath.Join(cfg.Theme.Dir, cfg.Theme.Active, "assets")
	if _, statErr := os.Stat(assetsDir); os.IsNotExist(statErr) {
		return 0, 0, nil
	}

	walkErr := filepath.WalkDir(assetsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(assetsDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(staging, "assets", rel)

		srcHash, err := incremental.HashFile(path)
		if err != nil {
			return err
		}
		if dstHash, err := incremental.HashFile(dst); err == nil && dstHash == srcHash {
			skipped++
			return nil
		}

		if err := copyFile(path, dst); err != nil {
			return err
		}
		copied++
		return nil
	})
	if walkErr != nil {
		return copied, skipped, fmt.Errorf("%w: %v", ErrAssets, walkErr)
	}

	s.logger.Debug("assets processed", logfields.Stage("assets"),
		logfields.Count(copied))
	return copied, skipped, nil
}

// stageFinalize writes the machine-readable site artifacts: sitemap.xml and
// the RSS feed.
func (s *DefaultBuildService) stageFinalize(cfg *config.Config, site *Site, staging string) error {
	if err := writeSitemap(cfg, site, staging); err != nil {
		return fmt.Errorf("%w: %v", ErrFinalize, err)
	}
	if err := writeFeed(cfg, site, staging); err != nil {
		return fmt.Errorf("%w: %v", ErrFinalize, err)
	}
	return nil
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type sitemapSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

func writeSitemap(cfg *config.Config, site *Site, staging string) error {
	base := strings.TrimRight(cfg.Site.URL, "/")

	set := sitemapSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, page := range site.Pages {
		set.URLs = append(set.URLs, sitemapURL{Loc: base + page.URL})
	}
	for _, post := range site.Posts {
		for i := range set.URLs {
			if set.URLs[i].Loc == base+post.URL() {
				set.URLs[i].LastMod = post.UpdatedAt.UTC().Format("2006-01-02")
			}
		}
	}

	return writeXML(filepath.Join(staging, "sitemap.xml"), set)
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Language    string    `xml:"language,omitempty"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description,omitempty"`
	PubDate     string `xml:"pubDate"`
}

// feedLimit caps the number of entries in the RSS feed.
const feedLimit = 20

func writeFeed(cfg *config.Config, site *Site, staging string) error {
	base := strings.TrimRight(cfg.Site.URL, "/")

	channel := rssChannel{
		Title:       cfg.Site.Title,
		Link:        cfg.Site.URL,
		Description: cfg.Site.Description,
		Language:    cfg.Site.Language,
	}
	for i, post := range site.Posts {
		if i >= feedLimit {
			break
		}
		channel.Items = append(channel.Items, rssItem{
			Title:       post.Title,
			Link:        base + post.URL(),
			GUID:        base + post.URL(),
			Description: post.Excerpt,
			PubDate:     post.CreatedAt.UTC().Format(time.RFC1123Z),
		})
	}

	return writeXML(filepath.Join(staging, "feed.xml"), rssFeed{Version: "2.0", Channel: channel})
}

func writeXML(path string, v any) error {
	data, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	out := append([]byte(xml.Header), data...)
	out = append(out, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// copyFile copies one file, creating destination directories as needed.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// copyTree mirrors src into dst. Used to carry the previous output into the
// staging tree so clean pages need no re-render.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
