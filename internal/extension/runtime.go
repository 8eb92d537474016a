// Package extension embeds a Lua interpreter that hosts site plugins. All
// enabled plugins share one interpreter state; the capability surface exposed
// to them is limited to sandboxed file access, structured logging, JSON
// conversion, and a handful of pure helpers.
package extension

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/plugin"
	"git.home.luguber.info/inful/sitebuilder/internal/version"
)

// Engine owns the single interpreter state and everything registered into
// it. The state is not goroutine safe, so every entry point takes the engine
// lock; callers must not invoke hooks from parallel render workers.
type Engine struct {
	mu      sync.Mutex
	state   *lua.LState
	hooks   *HookRegistry
	sandbox *Sandbox
	logger  *slog.Logger
	cfg     *config.Config

	loading string // plugin currently executing its entry script
	loaded  []string
}

// NewEngine creates the interpreter with a restricted library set. Only the
// base, table, string and math libraries are opened; io, os, debug and the
// network-capable libraries are never loaded, so the sandbox API is the only
// way plugins touch the outside world.
func NewEngine(cfg *config.Config, sandboxRoot string, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sb, err := NewSandbox(sandboxRoot)
	if err != nil {
		return nil, err
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	e := &Engine{
		state:   L,
		hooks:   NewHookRegistry(),
		sandbox: sb,
		logger:  logger,
		cfg:     cfg,
	}
	e.installAPI()
	return e, nil
}

// Close releases the interpreter state.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Close()
}

// Hooks exposes the registry for introspection (plugin listing, tests).
func (e *Engine) Hooks() *HookRegistry { return e.hooks }

// Loaded returns the plugins that initialized, in load order.
func (e *Engine) Loaded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.loaded...)
}

// LoadPlugins resolves the deterministic load order for the enabled set and
// executes each plugin's entry script in that order. Ordering problems
// (conflicts, cycles) fail before any script runs; a script error fails the
// whole load, since later plugins may depend on the broken one.
func (e *Engine) LoadPlugins(pluginsDir string, enabled []string) error {
	if len(enabled) == 0 {
		return nil
	}

	descriptors, err := plugin.LoadEnabled(pluginsDir, enabled)
	if err != nil {
		return err
	}
	order, err := plugin.ResolveLoadOrder(descriptors, enabled)
	if err != nil {
		return err
	}

	for _, name := range order {
		entry := filepath.Join(pluginsDir, name, plugin.EntryFile)
		start := time.Now()
		if err := e.loadOne(name, entry); err != nil {
			return fmt.Errorf("load plugin %s: %w", name, err)
		}
		e.logger.Info("plugin loaded",
			logfields.Plugin(name),
			logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	}
	return nil
}

func (e *Engine) loadOne(name, entry string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loading = name
	defer func() { e.loading = "" }()

	if err := e.state.DoFile(entry); err != nil {
		return fmt.Errorf("execute %s: %w", entry, err)
	}
	e.loaded = append(e.loaded, name)
	return nil
}

// installAPI registers the two global tables plugins see: `site` carrying
// the capability surface, and `plugin` carrying hook registration.
func (e *Engine) installAPI() {
	L := e.state

	site := L.NewTable()
	L.SetField(site, "version", lua.LString(version.Version))
	L.SetField(site, "info", L.NewFunction(e.luaSiteInfo))
	L.SetField(site, "config", L.NewFunction(e.luaPluginConfig))
	L.SetField(site, "slugify", L.NewFunction(luaSlugify))
	L.SetField(site, "strip_html", L.NewFunction(luaStripHTML))
	L.SetField(site, "date", L.NewFunction(luaDate))
	L.SetField(site, "version_lt", L.NewFunction(luaVersionLess))

	jsonTbl := L.NewTable()
	L.SetField(jsonTbl, "encode", L.NewFunction(luaJSONEncode))
	L.SetField(jsonTbl, "decode", L.NewFunction(luaJSONDecode))
	L.SetField(site, "json", jsonTbl)

	logTbl := L.NewTable()
	L.SetField(logTbl, "debug", L.NewFunction(e.luaLog(slog.LevelDebug)))
	L.SetField(logTbl, "info", L.NewFunction(e.luaLog(slog.LevelInfo)))
	L.SetField(logTbl, "warn", L.NewFunction(e.luaLog(slog.LevelWarn)))
	L.SetField(logTbl, "error", L.NewFunction(e.luaLog(slog.LevelError)))
	L.SetField(site, "log", logTbl)

	files := L.NewTable()
	L.SetField(files, "read", L.NewFunction(e.luaFileRead))
	L.SetField(files, "write", L.NewFunction(e.luaFileWrite))
	L.SetField(files, "append", L.NewFunction(e.luaFileAppend))
	L.SetField(files, "exists", L.NewFunction(e.luaFileExists))
	L.SetField(files, "list", L.NewFunction(e.luaFileList))
	L.SetField(files, "remove", L.NewFunction(e.luaFileRemove))
	L.SetField(files, "mkdir", L.NewFunction(e.luaFileMkdir))
	L.SetField(files, "copy", L.NewFunction(e.luaFileCopy))
	L.SetField(site, "files", files)

	L.SetGlobal("site", site)

	pluginTbl := L.NewTable()
	L.SetField(pluginTbl, "filter", L.NewFunction(e.luaRegisterFilter))
	L.SetField(pluginTbl, "action", L.NewFunction(e.luaRegisterAction))
	L.SetGlobal("plugin", pluginTbl)
}

// --- hook registration -----------------------------------------------------

func (e *Engine) luaRegisterFilter(L *lua.LState) int {
	name := L.CheckString(1)
	priority := L.CheckInt(2)
	fn := L.CheckFunction(3)
	e.hooks.AddFilter(name, priority, e.loading, fn)
	return 0
}

func (e *Engine) luaRegisterAction(L *lua.LState) int {
	name := L.CheckString(1)
	priority := L.CheckInt(2)
	fn := L.CheckFunction(3)
	e.hooks.AddAction(name, priority, e.loading, fn)
	return 0
}

// --- site info & config ----------------------------------------------------

func (e *Engine) luaSiteInfo(L *lua.LState) int {
	tbl := L.NewTable()
	L.SetField(tbl, "title", lua.LString(e.cfg.Site.Title))
	L.SetField(tbl, "subtitle", lua.LString(e.cfg.Site.Subtitle))
	L.SetField(tbl, "description", lua.LString(e.cfg.Site.Description))
	L.SetField(tbl, "url", lua.LString(e.cfg.Site.URL))
	L.SetField(tbl, "language", lua.LString(e.cfg.Site.Language))
	L.SetField(tbl, "author", lua.LString(e.cfg.Site.Author.Name))
	L.Push(tbl)
	return 1
}

// luaPluginConfig exposes the calling plugin's settings block. Settings are
// scoped per plugin; no plugin can read another plugin's block.
func (e *Engine) luaPluginConfig(L *lua.LState) int {
	name := e.loading
	if name == "" {
		// Outside of load, the plugin names itself explicitly.
		name = L.CheckString(1)
	}
	settings := e.cfg.Plugins.Settings[name]
	if settings == nil {
		L.Push(L.NewTable())
		return 1
	}
	L.Push(goToLua(L, settings))
	return 1
}

// --- pure helpers ------------------------------------------------------------

func luaSlugify(L *lua.LState) int {
	L.Push(lua.LString(content.Slugify(L.CheckString(1))))
	return 1
}

func luaStripHTML(L *lua.LState) int {
	L.Push(lua.LString(content.StripHTML(L.CheckString(1))))
	return 1
}

// luaDate normalizes a date string to a requested layout. Input accepts
// RFC3339 and the common date-only forms; the second argument is a strftime
// style subset, defaulting to "%Y-%m-%d".
func luaDate(L *lua.LState) int {
	input := L.CheckString(1)
	layout := L.OptString(2, "%Y-%m-%d")

	t, err := parseFlexibleTime(input)
	if err != nil {
		L.Push(lua.LString(input))
		return 1
	}
	L.Push(lua.LString(formatStrftime(t, layout)))
	return 1
}

func parseFlexibleTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// formatStrftime supports the directives plugins actually use.
func formatStrftime(t time.Time, layout string) string {
	out := make([]byte, 0, len(layout)+16)
	for i := 0; i < len(layout); i++ {
		if layout[i] != '%' || i+1 >= len(layout) {
			out = append(out, layout[i])
			continue
		}
		i++
		switch layout[i] {
		case 'Y':
			out = t.AppendFormat(out, "2006")
		case 'm':
			out = t.AppendFormat(out, "01")
		case 'd':
			out = t.AppendFormat(out, "02")
		case 'H':
			out = t.AppendFormat(out, "15")
		case 'M':
			out = t.AppendFormat(out, "04")
		case 'S':
			out = t.AppendFormat(out, "05")
		case 'B':
			out = t.AppendFormat(out, "January")
		case 'b':
			out = t.AppendFormat(out, "Jan")
		case '%':
			out = append(out, '%')
		default:
			out = append(out, '%', layout[i])
		}
	}
	return string(out)
}

func luaVersionLess(L *lua.LState) int {
	L.Push(lua.LBool(version.Less(L.CheckString(1), L.CheckString(2))))
	return 1
}

// --- json --------------------------------------------------------------------

func luaJSONEncode(L *lua.LState) int {
	data, err := json.Marshal(luaToGo(L.CheckAny(1)))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(data))
	return 1
}

func luaJSONDecode(L *lua.LState) int {
	var v any
	if err := json.Unmarshal([]byte(L.CheckString(1)), &v); err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(goToLua(L, v))
	return 1
}

// --- logging -----------------------------------------------------------------

func (e *Engine) luaLog(level slog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)
		owner := e.loading
		if owner == "" {
			owner = "extension"
		}
		e.logger.Log(context.Background(), level, msg, logfields.Plugin(owner))
		return 0
	}
}

// --- sandboxed files -----------------------------------------------------------

// resolveArg maps a Lua path argument through the sandbox, raising a Lua
// error (caught by the protected call) on violation so the failing handler
// is contained rather than crashing the build.
func (e *Engine) resolveArg(L *lua.LState, idx int) string {
	requested := L.CheckString(idx)
	path, err := e.sandbox.Resolve(requested)
	if err != nil {
		e.logger.Warn("sandbox violation rejected",
			logfields.Plugin(e.loading),
			logfields.Path(requested))
		L.RaiseError("%s", err.Error())
	}
	return path
}

func (e *Engine) luaFileRead(L *lua.LState) int {
	data, err := os.ReadFile(e.resolveArg(L, 1))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(data))
	return 1
}

func (e *Engine) luaFileWrite(L *lua.LState) int {
	path := e.resolveArg(L, 1)
	data := L.CheckString(2)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func (e *Engine) luaFileAppend(L *lua.LState) int {
	path := e.resolveArg(L, 1)
	data := L.CheckString(2)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	defer f.Close()
	if _, err := f.WriteString(data); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func (e *Engine) luaFileExists(L *lua.LState) int {
	_, err := os.Stat(e.resolveArg(L, 1))
	L.Push(lua.LBool(err == nil))
	return 1
}

func (e *Engine) luaFileList(L *lua.LState) int {
	entries, err := os.ReadDir(e.resolveArg(L, 1))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	tbl := L.NewTable()
	for _, entry := range entries {
		tbl.Append(lua.LString(entry.Name()))
	}
	L.Push(tbl)
	return 1
}

func (e *Engine) luaFileRemove(L *lua.LState) int {
	if err := os.Remove(e.resolveArg(L, 1)); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func (e *Engine) luaFileMkdir(L *lua.LState) int {
	if err := os.MkdirAll(e.resolveArg(L, 1), 0o755); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func (e *Engine) luaFileCopy(L *lua.LState) int {
	src := e.resolveArg(L, 1)
	dst := e.resolveArg(L, 2)
	if err := copyFile(src, dst); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
