// Package templates stores compiled templates and renders pages with them.
// Every template is registered under its namespaced name ("theme/name.cbt");
// templates of the active namespace are additionally registered under their
// short name, which is what makes cross-namespace inheritance possible while
// keeping the active theme's own templates addressable directly.
package templates

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"

	"git.home.luguber.info/inful/sitebuilder/internal/cbtml"
)

// CompiledTemplate is one compiled template plus its resolved references.
type CompiledTemplate struct {
	Name      string   // short name within its namespace, e.g. "post.cbt"
	Namespace string   // owning namespace (theme), e.g. "aurora"
	FullName  string   // namespaced name, e.g. "aurora/post.cbt"
	Output    string   // lowered template text
	Parent    string   // normalized parent path, "" when the template extends nothing
	Blocks    []string // declared slot names
	Includes  []string // normalized include paths
}

// CycleError reports a template inheritance cycle.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "template inheritance cycle: " + strings.Join(e.Chain, " -> ")
}

// RenderError wraps a failure while rendering one template.
type RenderError struct {
	Template string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render template %s: %v", e.Template, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// HookFunc is invoked for hook(...) call sites embedded in templates. The
// returned markup is inserted verbatim.
type HookFunc func(name string, data any) string

// Registry maps template names to compiled templates.
type Registry struct {
	mu      sync.RWMutex
	active  string
	entries map[string]*CompiledTemplate // both short and namespaced keys
	set     *pongo2.TemplateSet
	hookFn  HookFunc
}

// NewRegistry creates an empty registry. Templates from activeNamespace are
// the ones addressable by short name.
func NewRegistry(activeNamespace string) *Registry {
	r := &Registry{
		active:  activeNamespace,
		entries: make(map[string]*CompiledTemplate),
	}
	r.set = pongo2.NewSet("cbtml", &registryLoader{reg: r})
	return r
}

// SetHookFunc wires the hook(...) template function to the extension runtime.
func (r *Registry) SetHookFunc(fn HookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hookFn = fn
}

// Compile compiles source and registers the result. The namespaced key must
// be unique; the short key is only written for the active namespace, where
// the last registration wins.
func (r *Registry) Compile(namespace, name, source string) (*CompiledTemplate, error) {
	fullName := namespace + "/" + name
	compiled, err := cbtml.Compile(source, fullName)
	if err != nil {
		return nil, err
	}

	tmpl := &CompiledTemplate{
		Name:      name,
		Namespace: namespace,
		FullName:  fullName,
		Output:    compiled.Output,
		Blocks:    compiled.Blocks,
	}
	if compiled.Parent != "" {
		tmpl.Parent = cbtml.RefToPath(compiled.Parent)
	}
	for _, inc := range compiled.Includes {
		tmpl.Includes = append(tmpl.Includes, cbtml.RefToPath(inc))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[fullName]; exists {
		return nil, fmt.Errorf("template %s already registered", fullName)
	}
	r.entries[fullName] = tmpl
	if namespace == r.active {
		r.entries[name] = tmpl
	}

	return tmpl, nil
}

// Lookup resolves a short or namespaced template name.
func (r *Registry) Lookup(name string) (*CompiledTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.entries[name]
	return t, ok
}

// Names returns all namespaced template names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for key, t := range r.entries {
		if key == t.FullName {
			names = append(names, key)
		}
	}
	return names
}

// ResolveInheritance returns the ordered parent chain of a template, nearest
// parent first. Resolution is iterative with an explicit visited set so that
// cycles fail with a CycleError instead of unbounded recursion.
func (r *Registry) ResolveInheritance(name string) ([]string, error) {
	tmpl, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("template %s not found", name)
	}

	var chain []string
	visited := map[string]bool{tmpl.FullName: true}

	current := tmpl
	for current.Parent != "" {
		parent, ok := r.Lookup(current.Parent)
		if !ok {
			return nil, fmt.Errorf("template %s extends unknown template %s", current.FullName, current.Parent)
		}
		if visited[parent.FullName] {
			return nil, &CycleError{Chain: append([]string{tmpl.FullName}, append(chain, parent.FullName)...)}
		}
		visited[parent.FullName] = true
		chain = append(chain, parent.FullName)
		current = parent
	}

	return chain, nil
}

// Dependencies returns the transitive template closure of name: the template
// itself, its inheritance chain, and everything included along the way. The
// result is what the incremental scheduler diffs against changed inputs.
func (r *Registry) Dependencies(name string) ([]string, error) {
	start, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("template %s not found", name)
	}

	seen := map[string]bool{}
	var order []string
	queue := []string{start.FullName}

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		order = append(order, next)

		tmpl, ok := r.Lookup(next)
		if !ok {
			// Unknown references surface as render errors, not here.
			continue
		}
		if tmpl.Parent != "" {
			queue = append(queue, r.canonical(tmpl.Parent))
		}
		for _, inc := range tmpl.Includes {
			queue = append(queue, r.canonical(inc))
		}
	}

	return order, nil
}

// canonical maps a possibly short reference to its namespaced name.
func (r *Registry) canonical(name string) string {
	if t, ok := r.Lookup(name); ok {
		return t.FullName
	}
	return name
}

// Render executes a template against the given context. The inheritance
// chain is validated first so that cycles fail with a typed error before the
// render engine recurses into them.
func (r *Registry) Render(name string, context map[string]any) (string, error) {
	tmpl, ok := r.Lookup(name)
	if !ok {
		return "", &RenderError{Template: name, Err: fmt.Errorf("not registered")}
	}

	if _, err := r.ResolveInheritance(tmpl.FullName); err != nil {
		return "", &RenderError{Template: tmpl.FullName, Err: err}
	}

	pt, err := r.set.FromCache(tmpl.FullName)
	if err != nil {
		return "", &RenderError{Template: tmpl.FullName, Err: err}
	}

	ctx := pongo2.Context{}
	for k, v := range context {
		ctx[k] = v
	}
	ctx["hook"] = r.hookValue()

	out, err := pt.Execute(ctx)
	if err != nil {
		return "", &RenderError{Template: tmpl.FullName, Err: err}
	}
	return out, nil
}

// hookValue adapts the registered HookFunc for template expressions.
func (r *Registry) hookValue() func(args ...*pongo2.Value) *pongo2.Value {
	r.mu.RLock()
	fn := r.hookFn
	r.mu.RUnlock()

	return func(args ...*pongo2.Value) *pongo2.Value {
		if fn == nil || len(args) == 0 {
			return pongo2.AsValue("")
		}
		name := args[0].String()
		var data any
		if len(args) > 1 {
			data = args[1].Interface()
		}
		return pongo2.AsValue(fn(name, data))
	}
}

// registryLoader resolves extends/include references against the registry.
type registryLoader struct {
	reg *Registry
}

func (l *registryLoader) Abs(base, name string) string { return name }

func (l *registryLoader) Get(path string) (io.Reader, error) {
	tmpl, ok := l.reg.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("template %s not registered", path)
	}
	return strings.NewReader(tmpl.Output), nil
}
