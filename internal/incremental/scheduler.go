package incremental

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// PageInput describes one generation unit for planning purposes.
type PageInput struct {
	// URL is the page's output path.
	URL string

	// ContentKey is the tracked input key of the page's content source.
	ContentKey string

	// Templates are the tracked input keys of every template in the page's
	// rendering chain (direct template plus transitive includes/parents).
	Templates []string
}

// Plan is the scheduler's verdict for one build.
type Plan struct {
	// Dirty holds the URLs of pages that must be re-rendered.
	Dirty map[string]bool

	// FullRebuild is set when global configuration changed, when this is the
	// first build, or when a rebuild was forced.
	FullRebuild bool

	// ChangedKeys lists the tracked inputs whose hash differs from the cache.
	ChangedKeys []string
}

// IsDirty reports whether a page must be rendered this build.
func (p *Plan) IsDirty(url string) bool {
	return p.FullRebuild || p.Dirty[url]
}

// DirtyCount returns how many of the given pages the plan marks dirty.
func (p *Plan) DirtyCount(pages []PageInput) int {
	if p.FullRebuild {
		return len(pages)
	}
	n := 0
	for _, page := range pages {
		if p.Dirty[page.URL] {
			n++
		}
	}
	return n
}

// Scheduler computes the dirty page set and owns the persisted caches. It is
// the only component that reads or writes them: load once at build start,
// commit once after success.
type Scheduler struct {
	cacheDir string
	logger   *slog.Logger
	hashes   *HashCache
	graph    *DepGraph
}

// NewScheduler creates a scheduler over the given cache directory.
func NewScheduler(cacheDir string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cacheDir: cacheDir, logger: logger}
}

// Load reads the previous build's hash cache and dependency graph.
func (s *Scheduler) Load() {
	s.hashes = LoadHashCache(s.cacheDir)
	s.graph = LoadDepGraph(s.cacheDir)
}

// Plan computes the dirty page set. current maps every tracked input key to
// its hash for this build; pages describes the generation units.
//
// A page is dirty when (a) its content source's hash changed, (b) any
// template in its rendering chain changed, or (c) global configuration
// changed, which forces a full rebuild.
func (s *Scheduler) Plan(current map[string]string, pages []PageInput, force bool) *Plan {
	if s.hashes == nil {
		s.Load()
	}

	plan := &Plan{Dirty: make(map[string]bool)}

	for key, hash := range current {
		if s.hashes.Changed(key, hash) {
			plan.ChangedKeys = append(plan.ChangedKeys, key)
		}
	}

	if force || s.hashes.Empty() {
		plan.FullRebuild = true
		return plan
	}
	for _, key := range plan.ChangedKeys {
		if key == KeyConfig {
			s.logger.Info("configuration changed, full rebuild")
			plan.FullRebuild = true
			return plan
		}
	}

	changed := make(map[string]bool, len(plan.ChangedKeys))
	for _, key := range plan.ChangedKeys {
		changed[key] = true
	}

	known := make(map[string]bool, len(pages))
	for _, page := range pages {
		known[page.URL] = true
	}

	for _, page := range pages {
		if changed[page.ContentKey] {
			plan.Dirty[page.URL] = true
			continue
		}
		for _, tmpl := range page.Templates {
			if changed[tmpl] {
				plan.Dirty[page.URL] = true
				break
			}
		}
	}

	// The previous build's fan-out catches pages whose chain shrank this
	// build but whose old output still depends on a changed template.
	for key := range changed {
		for _, url := range s.graph.AffectedPages(key) {
			if known[url] {
				plan.Dirty[url] = true
			}
		}
	}

	s.logger.Debug("incremental plan computed",
		slog.Int("changed_inputs", len(plan.ChangedKeys)),
		slog.Int("dirty_pages", len(plan.Dirty)))

	return plan
}

// Commit persists the new hash table and dependency graph after a successful
// build. Both files are replaced wholesale by atomic rename; a failed build
// never reaches this point, so the previous state stays intact.
func (s *Scheduler) Commit(current map[string]string, graph map[string][]string) error {
	if s.hashes == nil {
		s.Load()
	}
	if err := s.hashes.Save(current); err != nil {
		return fmt.Errorf("persist hash cache: %w", err)
	}
	if err := s.graph.Save(graph); err != nil {
		return fmt.Errorf("persist dependency graph: %w", err)
	}
	s.logger.Debug("caches committed", logfields.Path(s.cacheDir))
	return nil
}
