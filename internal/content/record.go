// Package content defines the content units the build pipeline consumes and
// the loader that supplies them. The core only ever reads records; nothing
// here mutates the underlying store.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Record is one opaque external content unit as supplied by a Loader.
type Record struct {
	ID         string
	Slug       string
	Title      string
	Body       string // markdown source
	Excerpt    string // author-provided; derived later when empty
	Tags       []string
	Category   string
	Template   string // template override; "" selects the default
	Author     string
	CoverImage string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Hash returns the content hash used for incremental change tracking. It
// covers everything that influences the rendered page.
func (r *Record) Hash() string {
	h := sha256.New()
	h.Write([]byte(r.Slug))
	h.Write([]byte{0})
	h.Write([]byte(r.Title))
	h.Write([]byte{0})
	h.Write([]byte(r.Body))
	h.Write([]byte{0})
	h.Write([]byte(r.Template))
	h.Write([]byte{0})
	h.Write([]byte(r.Category))
	h.Write([]byte{0})
	for _, tag := range r.Tags {
		h.Write([]byte(tag))
		h.Write([]byte{0})
	}
	h.Write([]byte(r.UpdatedAt.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))
}

// URL returns the canonical page URL for the record.
func (r *Record) URL() string {
	return "/posts/" + r.Slug + "/"
}

// Loader supplies content records to the build pipeline.
type Loader interface {
	// ListContentRecords returns all publishable records, newest first.
	ListContentRecords(ctx context.Context) ([]Record, error)
}

// Post is a record after the transform stage: markdown rendered, excerpt and
// reading statistics derived. Records stay untouched; Post is the pipeline's
// own working copy.
type Post struct {
	Record

	HTML        string
	WordCount   int
	ReadingTime int // minutes
}
