// Package build provides the canonical build execution pipeline. All
// execution paths (CLI one-shot, watch mode, tests) route through
// BuildService.
package build

import (
	"context"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

// BuildService is the canonical interface for executing site builds.
type BuildService interface {
	// Run executes a complete build pipeline:
	// load → transform → taxonomy → generate → render → assets → finalize.
	Run(ctx context.Context, req BuildRequest) (*BuildResult, error)
}

// BuildRequest contains all inputs required to execute a site build.
type BuildRequest struct {
	// Config is the loaded configuration for this build.
	Config *config.Config

	// Options provides optional build behavior modifiers.
	Options BuildOptions
}

// BuildOptions provides optional configuration for build behavior.
type BuildOptions struct {
	// Force disables incremental planning and rebuilds every page.
	Force bool

	// Verbose enables detailed logging during the build.
	Verbose bool
}

// BuildResult contains the outcome of a build execution.
type BuildResult struct {
	// BuildID uniquely identifies this build run.
	BuildID string

	// Status indicates the overall build outcome.
	Status BuildStatus

	// Pages is the total number of pages the site comprises.
	Pages int

	// PagesRendered is the count of pages rendered this run.
	PagesRendered int

	// PagesSkipped is the count of pages carried over unchanged.
	PagesSkipped int

	// PageErrors is the count of pages that failed to render and were
	// excluded from the output.
	PageErrors int

	// OutputPath is the final output directory.
	OutputPath string

	// Duration is the total build execution time.
	Duration time.Duration

	// StartTime is when the build started.
	StartTime time.Time

	// EndTime is when the build completed.
	EndTime time.Time
}

// BuildStatus represents the outcome of a build execution.
type BuildStatus string

const (
	// BuildStatusSuccess indicates the build completed successfully.
	BuildStatusSuccess BuildStatus = "success"

	// BuildStatusWarning indicates the build completed but some pages failed.
	BuildStatusWarning BuildStatus = "warning"

	// BuildStatusFailed indicates the build encountered a fatal error.
	BuildStatusFailed BuildStatus = "failed"

	// BuildStatusCancelled indicates the build was superseded or cancelled.
	BuildStatusCancelled BuildStatus = "cancelled"
)

// IsSuccess returns true if the build produced usable output.
func (s BuildStatus) IsSuccess() bool {
	return s == BuildStatusSuccess || s == BuildStatusWarning
}
