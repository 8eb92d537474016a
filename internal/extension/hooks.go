package extension

import (
	"fmt"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// handler is one registered callback on a named hook.
type handler struct {
	priority int
	seq      int // registration order, the tie-break within a priority
	owner    string
	fn       *lua.LFunction
}

// HookRegistry holds filter and action handlers keyed by hook name. Handlers
// on the same hook run in (priority ascending, registration order ascending)
// order, so dispatch is deterministic for a fixed load order.
type HookRegistry struct {
	mu      sync.Mutex
	filters map[string][]handler
	actions map[string][]handler
	seq     int
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		filters: make(map[string][]handler),
		actions: make(map[string][]handler),
	}
}

// AddFilter registers a value-transforming handler.
func (r *HookRegistry) AddFilter(name string, priority int, owner string, fn *lua.LFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.filters[name] = insertSorted(r.filters[name], handler{priority: priority, seq: r.seq, owner: owner, fn: fn})
}

// AddAction registers a notification handler.
func (r *HookRegistry) AddAction(name string, priority int, owner string, fn *lua.LFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.actions[name] = insertSorted(r.actions[name], handler{priority: priority, seq: r.seq, owner: owner, fn: fn})
}

// insertSorted keeps the slice ordered by (priority, seq).
func insertSorted(hs []handler, h handler) []handler {
	hs = append(hs, h)
	sort.SliceStable(hs, func(i, j int) bool {
		if hs[i].priority != hs[j].priority {
			return hs[i].priority < hs[j].priority
		}
		return hs[i].seq < hs[j].seq
	})
	return hs
}

// FilterNames returns the names of all hooks with at least one filter.
func (r *HookRegistry) FilterNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.filters))
	for name := range r.filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActionNames returns the names of all hooks with at least one action.
func (r *HookRegistry) ActionNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *HookRegistry) filterChain(name string) []handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]handler(nil), r.filters[name]...)
}

func (r *HookRegistry) actionChain(name string) []handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]handler(nil), r.actions[name]...)
}

// applyFilter threads value through every filter on name in dispatch order.
// A failing handler is logged and skipped: the value passes through it
// unchanged, and the remaining handlers still run.
func (e *Engine) applyFilter(name string, value lua.LValue) lua.LValue {
	for _, h := range e.hooks.filterChain(name) {
		result, err := e.callLua(h.fn, value)
		if err != nil {
			e.logger.Warn("filter handler failed, value passed through unchanged",
				logfields.Hook(name),
				logfields.Priority(h.priority),
				logfields.Plugin(h.owner),
				logfields.Error(err))
			continue
		}
		if result != lua.LNil {
			value = result
		}
	}
	return value
}

// ApplyFilter runs the named filter chain over a Go value, crossing the
// value bridge once on each side.
func (e *Engine) ApplyFilter(name string, value any) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return luaToGo(e.applyFilter(name, goToLua(e.state, value)))
}

// CallAction runs every action handler on name in dispatch order. Handler
// return values are ignored; a failing handler is logged and skipped without
// disturbing the rest of the chain.
func (e *Engine) CallAction(name string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	arg := goToLua(e.state, payload)
	for _, h := range e.hooks.actionChain(name) {
		if _, err := e.callLua(h.fn, arg); err != nil {
			e.logger.Warn("action handler failed, skipped",
				logfields.Hook(name),
				logfields.Priority(h.priority),
				logfields.Plugin(h.owner),
				logfields.Error(err))
		}
	}
}

// callLua invokes fn with a single argument under protected call semantics.
func (e *Engine) callLua(fn *lua.LFunction, arg lua.LValue) (lua.LValue, error) {
	if err := e.state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, arg); err != nil {
		return lua.LNil, fmt.Errorf("handler: %w", err)
	}
	ret := e.state.Get(-1)
	e.state.Pop(1)
	return ret, nil
}
