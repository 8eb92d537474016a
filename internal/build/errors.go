package build

import "errors"

// Sentinel domain errors used to classify high-level pipeline failures.
// They should always be wrapped with contextual information at the call site.
var (
	ErrLoad      = errors.New("sitebuilder: content load error")
	ErrTemplates = errors.New("sitebuilder: template compile error")
	ErrAssets    = errors.New("sitebuilder: asset copy error")
	ErrFinalize  = errors.New("sitebuilder: finalize error")
	ErrPublish   = errors.New("sitebuilder: output publish error")
)
