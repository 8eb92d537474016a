package build

// The pipeline exposes five fixed action-hook boundaries to extensions, one
// after each externally observable stage. Payload shapes are closed: the
// fields below are the whole contract, and extensions receive them as plain
// tables across the value bridge.

// HookDispatcher is what the pipeline needs from the extension runtime.
// A nil dispatcher disables hooks entirely.
type HookDispatcher interface {
	// CallAction notifies every handler on the named hook in dispatch
	// order. Handler failures are contained inside the dispatcher.
	CallAction(name string, payload any)

	// ApplyFilter threads value through the named filter chain and returns
	// the result. A failing handler leaves the value unchanged.
	ApplyFilter(name string, value any) any
}

// Action hook names, in pipeline order.
const (
	HookAfterLoad     = "after_load"
	HookAfterTaxonomy = "after_taxonomy"
	HookAfterRender   = "after_render"
	HookAfterAssets   = "after_assets"
	HookAfterFinalize = "after_finalize"
)

// AfterLoadPayload is sent on after_load.
type AfterLoadPayload struct {
	Records int
}

func (p AfterLoadPayload) payload() map[string]any {
	return map[string]any{"records": p.Records}
}

// AfterTaxonomyPayload is sent on after_taxonomy.
type AfterTaxonomyPayload struct {
	Posts      int
	Tags       []string
	Categories []string
}

func (p AfterTaxonomyPayload) payload() map[string]any {
	return map[string]any{
		"posts":      p.Posts,
		"tags":       p.Tags,
		"categories": p.Categories,
	}
}

// AfterRenderPayload is sent on after_render.
type AfterRenderPayload struct {
	Rendered int
	Skipped  int
	Errors   int
}

func (p AfterRenderPayload) payload() map[string]any {
	return map[string]any{
		"rendered": p.Rendered,
		"skipped":  p.Skipped,
		"errors":   p.Errors,
	}
}

// AfterAssetsPayload is sent on after_assets.
type AfterAssetsPayload struct {
	Copied  int
	Skipped int
}

func (p AfterAssetsPayload) payload() map[string]any {
	return map[string]any{"copied": p.Copied, "skipped": p.Skipped}
}

// AfterFinalizePayload is sent on after_finalize.
type AfterFinalizePayload struct {
	OutputDir  string
	Pages      int
	DurationMS int64
}

func (p AfterFinalizePayload) payload() map[string]any {
	return map[string]any{
		"output_dir":  p.OutputDir,
		"pages":       p.Pages,
		"duration_ms": p.DurationMS,
	}
}

// dispatch sends one action payload through the extension runtime. Action
// hooks fire only between stages; template-level hook() calls can fire from
// parallel render workers and are serialized by the runtime's engine lock.
func (s *DefaultBuildService) dispatch(name string, payload interface{ payload() map[string]any }) {
	if s.hooks == nil {
		return
	}
	s.hooks.CallAction(name, payload.payload())
}
