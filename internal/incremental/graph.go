package incremental

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

const depGraphFile = "deps.json"

// DepGraph maps each template input key to the output pages that used it in
// the previous successful build. It is rebuilt fully on every pass and only
// ever read incrementally.
type DepGraph struct {
	path string
	deps map[string][]string
}

// LoadDepGraph reads the graph from cacheDir, degrading to an empty graph
// when missing or corrupt.
func LoadDepGraph(cacheDir string) *DepGraph {
	g := &DepGraph{
		path: filepath.Join(cacheDir, depGraphFile),
		deps: make(map[string][]string),
	}
	data, err := os.ReadFile(g.path)
	if err != nil {
		return g
	}
	var stored map[string][]string
	if err := json.Unmarshal(data, &stored); err != nil {
		return g
	}
	g.deps = stored
	return g
}

// AffectedPages returns the pages that used the given template key.
func (g *DepGraph) AffectedPages(templateKey string) []string {
	return g.deps[templateKey]
}

// Save replaces the persisted graph wholesale via atomic rename. Page lists
// are sorted so repeated builds write identical files.
func (g *DepGraph) Save(current map[string][]string) error {
	normalized := make(map[string][]string, len(current))
	for key, pages := range current {
		cp := append([]string(nil), pages...)
		sort.Strings(cp)
		normalized[key] = cp
	}
	return writeJSONAtomic(g.path, normalized)
}
