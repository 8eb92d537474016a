package build

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/cbtml"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
	"git.home.luguber.info/inful/sitebuilder/internal/incremental"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/templates"
)

// LoaderFactory opens the content store for one build.
type LoaderFactory func(cfg *config.Config) (content.Loader, func() error, error)

// DefaultBuildService is the standard implementation of BuildService. Stages
// run strictly sequentially; only page rendering inside the render stage is
// parallel. Starting a new build supersedes a still-running one by cancelling
// its context.
type DefaultBuildService struct {
	logger        *slog.Logger
	recorder      metrics.Recorder
	events        EventSink
	hooks         HookDispatcher
	loaderFactory LoaderFactory

	mu         sync.Mutex
	cancelPrev context.CancelFunc
}

// NewBuildService creates a build service with default collaborators.
func NewBuildService(logger *slog.Logger) *DefaultBuildService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultBuildService{
		logger:   logger,
		recorder: metrics.NoopRecorder{},
		events:   &LogSink{Logger: logger},
		loaderFactory: func(cfg *config.Config) (content.Loader, func() error, error) {
			loader, err := content.OpenSQLite(cfg.Build.Database)
			if err != nil {
				return nil, nil, err
			}
			return loader, loader.Close, nil
		},
	}
}

// WithRecorder injects a metrics recorder.
func (s *DefaultBuildService) WithRecorder(r metrics.Recorder) *DefaultBuildService {
	s.recorder = r
	return s
}

// WithEventSink injects an event sink.
func (s *DefaultBuildService) WithEventSink(sink EventSink) *DefaultBuildService {
	s.events = sink
	return s
}

// WithHooks injects the extension hook dispatcher.
func (s *DefaultBuildService) WithHooks(h HookDispatcher) *DefaultBuildService {
	s.hooks = h
	return s
}

// WithLoaderFactory injects a custom content loader (for testing).
func (s *DefaultBuildService) WithLoaderFactory(f LoaderFactory) *DefaultBuildService {
	s.loaderFactory = f
	return s
}

// supersede cancels any still-running build and registers this build's
// cancel function in its place.
func (s *DefaultBuildService) supersede(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelPrev != nil {
		s.cancelPrev()
	}
	s.cancelPrev = cancel
}

// Run executes the complete build pipeline.
func (s *DefaultBuildService) Run(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	start := time.Now()
	cfg := req.Config

	buildID := uuid.NewString()[:8]
	logger := s.logger.With(logfields.BuildID(buildID))

	ctx, cancel := context.WithCancel(ctx)
	s.supersede(cancel)
	defer cancel()

	result := &BuildResult{
		BuildID:    buildID,
		StartTime:  start,
		OutputPath: cfg.Build.OutputDir,
	}
	s.events.Publish(Event{BuildID: buildID, Type: EventBuildStarted, Time: start})

	err := s.run(ctx, cfg, req.Options, buildID, logger, result)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(start)
	s.recorder.ObserveBuildDuration(result.Duration)

	switch {
	case ctx.Err() != nil:
		result.Status = BuildStatusCancelled
		s.recorder.IncBuildOutcome("canceled")
		s.events.Publish(Event{BuildID: buildID, Type: EventBuildFailed, Time: result.EndTime,
			Detail: map[string]any{"reason": "cancelled"}})
		return result, ctx.Err()
	case err != nil:
		result.Status = BuildStatusFailed
		s.recorder.IncBuildOutcome("failed")
		s.events.Publish(Event{BuildID: buildID, Type: EventBuildFailed, Time: result.EndTime,
			Detail: map[string]any{"error": err.Error()}})
		return result, err
	case result.PageErrors > 0:
		result.Status = BuildStatusWarning
		s.recorder.IncBuildOutcome("success")
	default:
		result.Status = BuildStatusSuccess
		s.recorder.IncBuildOutcome("success")
	}

	s.events.Publish(Event{BuildID: buildID, Type: EventBuildCompleted, Time: result.EndTime,
		Detail: map[string]any{
			"pages":    result.Pages,
			"rendered": result.PagesRendered,
			"skipped":  result.PagesSkipped,
			"errors":   result.PageErrors,
			"duration": result.Duration.String(),
		}})

	logger.Info("build finished",
		slog.String("status", string(result.Status)),
		slog.Int("pages", result.Pages),
		slog.Int("rendered", result.PagesRendered),
		slog.Int("skipped", result.PagesSkipped),
		logfields.DurationMS(float64(result.Duration.Milliseconds())))

	return result, nil
}

func (s *DefaultBuildService) run(ctx context.Context, cfg *config.Config, opts BuildOptions, buildID string, logger *slog.Logger, result *BuildResult) error {
	// load
	loader, closeLoader, err := s.loaderFactory(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoad, err)
	}
	defer closeLoader() //nolint:errcheck

	records, err := runStage(s, ctx, "load", func() ([]content.Record, error) {
		return s.stageLoad(ctx, loader)
	})
	if err != nil {
		return err
	}
	s.dispatch(HookAfterLoad, AfterLoadPayload{Records: len(records)})

	// transform
	posts, err := runStage(s, ctx, "transform", func() ([]*content.Post, error) {
		return s.stageTransform(records), nil
	})
	if err != nil {
		return err
	}

	// taxonomy
	site, err := runStage(s, ctx, "taxonomy", func() (*Site, error) {
		return s.stageTaxonomy(posts), nil
	})
	if err != nil {
		return err
	}
	s.dispatch(HookAfterTaxonomy, AfterTaxonomyPayload{
		Posts:      len(site.Posts),
		Tags:       sortedKeys(site.Tags),
		Categories: sortedKeys(site.Categories),
	})

	// generate
	if _, err := runStage(s, ctx, "generate", func() (struct{}, error) {
		return struct{}{}, s.stageGenerate(cfg, site)
	}); err != nil {
		return err
	}
	result.Pages = len(site.Pages)

	// templates + incremental plan
	templates.RegisterFilters(cfg.Site.URL)
	registry, templateHashes, err := s.compileTemplates(cfg, logger)
	if err != nil {
		return err
	}
	if s.hooks != nil {
		registry.SetHookFunc(s.templateHook)
	}

	current, pageInputs, graph, err := s.trackedInputs(cfg, site, registry, templateHashes)
	if err != nil {
		return err
	}

	scheduler := incremental.NewScheduler(cfg.Build.CacheDir, logger)
	scheduler.Load()
	plan := scheduler.Plan(current, pageInputs, opts.Force)

	// staging
	staging := cfg.Build.OutputDir + ".staging-" + buildID
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("%w: clear staging: %v", ErrPublish, err)
	}
	if !plan.FullRebuild {
		if _, statErr := os.Stat(cfg.Build.OutputDir); statErr == nil {
			if err := copyTree(cfg.Build.OutputDir, staging); err != nil {
				return fmt.Errorf("%w: carry over previous output: %v", ErrPublish, err)
			}
		}
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	defer os.RemoveAll(staging)

	// render
	render, err := runStage(s, ctx, "render", func() (renderOutcome, error) {
		return s.stageRender(ctx, cfg, registry, site, plan, staging, logger)
	})
	if err != nil {
		return err
	}
	result.PagesRendered = render.rendered
	result.PagesSkipped = render.skipped
	result.PageErrors = render.failed
	s.recorder.SetPagesRendered(render.rendered)
	s.recorder.SetPagesSkipped(render.skipped)
	s.dispatch(HookAfterRender, AfterRenderPayload{
		Rendered: render.rendered, Skipped: render.skipped, Errors: render.failed})

	// assets
	assets, err := runStage(s, ctx, "assets", func() (assetOutcome, error) {
		copied, skippedAssets, err := s.stageAssets(cfg, staging)
		return assetOutcome{copied: copied, skipped: skippedAssets}, err
	})
	if err != nil {
		return err
	}
	s.dispatch(HookAfterAssets, AfterAssetsPayload{Copied: assets.copied, Skipped: assets.skipped})

	// finalize
	if _, err := runStage(s, ctx, "finalize", func() (struct{}, error) {
		return struct{}{}, s.stageFinalize(cfg, site, staging)
	}); err != nil {
		return err
	}

	// publish + commit
	if err := publishOutput(staging, cfg.Build.OutputDir); err != nil {
		return err
	}
	if err := scheduler.Commit(current, graph); err != nil {
		return err
	}

	s.dispatch(HookAfterFinalize, AfterFinalizePayload{
		OutputDir:  cfg.Build.OutputDir,
		Pages:      result.Pages,
		DurationMS: time.Since(result.StartTime).Milliseconds(),
	})
	return nil
}

// runStage wraps one stage with timing, metrics and cancellation checks.
func runStage[T any](s *DefaultBuildService, ctx context.Context, name string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		s.recorder.IncStageResult(name, metrics.ResultCanceled)
		return zero, err
	}
	start := time.Now()
	out, err := fn()
	s.recorder.ObserveStageDuration(name, time.Since(start))
	if err != nil {
		s.recorder.IncStageResult(name, metrics.ResultFatal)
		return zero, err
	}
	s.recorder.IncStageResult(name, metrics.ResultSuccess)
	s.events.Publish(Event{Type: EventStageCompleted, Stage: name, Time: time.Now()})
	return out, nil
}

// templateHook backs the hook(...) template function: the named filter chain
// transforms the optional data argument, and the result is inserted into the
// page as markup. With no handlers registered the call site renders empty.
func (s *DefaultBuildService) templateHook(name string, data any) string {
	out := s.hooks.ApplyFilter(name, data)
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// compileTemplates compiles every theme's templates into one registry. A
// template that fails to compile is logged and left out; pages depending on
// it fail individually at render time instead of failing the build.
func (s *DefaultBuildService) compileTemplates(cfg *config.Config, logger *slog.Logger) (*templates.Registry, map[string]string, error) {
	registry := templates.NewRegistry(cfg.Theme.Active)
	hashes := make(map[string]string)

	themes, err := os.ReadDir(cfg.Theme.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read theme dir %s: %v", ErrTemplates, cfg.Theme.Dir, err)
	}

	for _, theme := range themes {
		if !theme.IsDir() {
			continue
		}
		namespace := theme.Name()
		tmplDir := filepath.Join(cfg.Theme.Dir, namespace, "templates")
		if _, err := os.Stat(tmplDir); os.IsNotExist(err) {
			continue
		}

		walkErr := filepath.WalkDir(tmplDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, cbtml.Ext) {
				return nil
			}
			rel, err := filepath.Rel(tmplDir, path)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)

			source, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			tmpl, err := registry.Compile(namespace, name, string(source))
			if err != nil {
				logger.Warn("template compile failed, excluded",
					logfields.Template(namespace+"/"+name),
					logfields.Error(err))
				return nil
			}
			hashes[incremental.TemplateKey(tmpl.FullName)] = incremental.HashBytes(source)
			return nil
		})
		if walkErr != nil {
			return nil, nil, fmt.Errorf("%w: walk %s: %v", ErrTemplates, tmplDir, walkErr)
		}
	}

	return registry, hashes, nil
}

// trackedInputs assembles the hash map the scheduler diffs, the per-page
// planning inputs, and the template→pages graph persisted after success.
func (s *DefaultBuildService) trackedInputs(cfg *config.Config, site *Site, registry *templates.Registry, templateHashes map[string]string) (map[string]string, []incremental.PageInput, map[string][]string, error) {
	cfgBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("hash config: %w", err)
	}

	current := map[string]string{
		incremental.KeyConfig: incremental.HashBytes(cfgBytes),
	}
	for key, hash := range templateHashes {
		current[key] = hash
	}

	inputs := make([]incremental.PageInput, 0, len(site.Pages))
	graph := make(map[string][]string)

	for _, page := range site.Pages {
		pageKey := incremental.PageKey(page.URL)
		current[pageKey] = page.Fingerprint

		input := incremental.PageInput{URL: page.URL, ContentKey: pageKey}
		closure, err := registry.Dependencies(page.Template)
		if err == nil {
			for _, full := range closure {
				key := incremental.TemplateKey(full)
				input.Templates = append(input.Templates, key)
				graph[key] = append(graph[key], page.URL)
			}
		}
		inputs = append(inputs, input)
	}

	return current, inputs, graph, nil
}

// renderOutcome summarizes the render stage.
type renderOutcome struct {
	rendered int
	skipped  int
	failed   int
}

// assetOutcome summarizes the asset stage.
type assetOutcome struct {
	copied  int
	skipped int
}

// stageRender renders dirty pages through a worker pool. The site model and
// plan are read-only here; each worker writes only its own output files.
// Failures are isolated per page: the page is excluded and counted.
func (s *DefaultBuildService) stageRender(ctx context.Context, cfg *config.Config, registry *templates.Registry, site *Site, plan *incremental.Plan, staging string, logger *slog.Logger) (renderOutcome, error) {
	workers := cfg.Build.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var renderedN, failedN atomic.Int64
	jobs := make(chan *Page)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range jobs {
				if ctx.Err() != nil {
					return
				}
				out, rerr := registry.Render(page.Template, page.Context)
				if rerr != nil {
					failedN.Add(1)
					logger.Error("page render failed, excluded",
						logfields.Page(page.URL),
						logfields.Template(page.Template),
						logfields.Error(rerr))
					continue
				}
				out = postprocess(out, cfg)
				if werr := writePage(staging, page.URL, out); werr != nil {
					failedN.Add(1)
					logger.Error("page write failed",
						logfields.Page(page.URL), logfields.Error(werr))
					continue
				}
				renderedN.Add(1)
			}
		}()
	}

	skipped := 0
	for _, page := range site.Pages {
		if !plan.IsDirty(page.URL) {
			skipped++
			continue
		}
		select {
		case jobs <- page:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return renderOutcome{}, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil {
		return renderOutcome{}, ctx.Err()
	}
	return renderOutcome{
		rendered: int(renderedN.Load()),
		skipped:  skipped,
		failed:   int(failedN.Load()),
	}, nil
}

// writePage materializes one page as <staging>/<url>/index.html.
func writePage(staging, url, html string) error {
	dir := filepath.Join(staging, filepath.FromSlash(strings.Trim(url, "/")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "index.html"), []byte(html), 0o644)
}

// publishOutput swaps the staging tree into place. The previous output stays
// intact until the rename succeeds, so readers never observe a partial site.
func publishOutput(staging, output string) error {
	old := output + ".old"
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	if _, err := os.Stat(output); err == nil {
		if err := os.Rename(output, old); err != nil {
			return fmt.Errorf("%w: %v", ErrPublish, err)
		}
	}
	if err := os.Rename(staging, output); err != nil {
		// Restore the previous output before reporting failure.
		if _, statErr := os.Stat(old); statErr == nil {
			os.Rename(old, output) //nolint:errcheck
		}
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	return os.RemoveAll(old)
}

func sortedKeys(m map[string][]*content.Post) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
