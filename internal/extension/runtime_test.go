package extension

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Site: config.SiteConfig{
			Title:    "Test Site",
			URL:      "https://example.com",
			Language: "en",
		},
		Plugins: config.PluginsConfig{
			Settings: map[string]map[string]any{
				"widget": {"color": "red", "depth": 3},
			},
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(testConfig(), t.TempDir(), quietLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

// writePlugin creates a plugin directory with a manifest and entry script.
func writePlugin(t *testing.T, pluginsDir, name, manifestExtra, script string) {
	t.Helper()
	dir := filepath.Join(pluginsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "name: " + name + "\nversion: 1.0.0\n" + manifestExtra
	if err := os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.lua"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
}

func loadScript(t *testing.T, e *Engine, script string) {
	t.Helper()
	pluginsDir := t.TempDir()
	writePlugin(t, pluginsDir, "test", "", script)
	if err := e.LoadPlugins(pluginsDir, []string{"test"}); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestFilterDispatchOrder(t *testing.T) {
	e := newTestEngine(t)
	loadScript(t, e, `
plugin.filter("title", 30, function(v) return v .. "C" end)
plugin.filter("title", 10, function(v) return v .. "A" end)
plugin.filter("title", 20, function(v) return v .. "B" end)
`)

	got := e.ApplyFilter("title", "x")
	if got != "xABC" {
		t.Errorf("filtered = %v, want xABC", got)
	}
}

func TestFilterEqualPriorityKeepsRegistrationOrder(t *testing.T) {
	e := newTestEngine(t)
	loadScript(t, e, `
plugin.filter("title", 10, function(v) return v .. "1" end)
plugin.filter("title", 10, function(v) return v .. "2" end)
plugin.filter("title", 10, function(v) return v .. "3" end)
`)

	got := e.ApplyFilter("title", "")
	if got != "123" {
		t.Errorf("filtered = %v, want 123", got)
	}
}

func TestFilterHandlerErrorPassesValueThrough(t *testing.T) {
	e := newTestEngine(t)
	loadScript(t, e, `
plugin.filter("title", 10, function(v) error("boom") end)
plugin.filter("title", 20, function(v) return v .. "!" end)
`)

	got := e.ApplyFilter("title", "keep")
	if got != "keep!" {
		t.Errorf("filtered = %v; failing handler must not alter the value or break the chain", got)
	}
}

func TestActionHandlerErrorIsSkipped(t *testing.T) {
	e := newTestEngine(t)
	loadScript(t, e, `
seen = ""
plugin.action("evt", 10, function(p) error("boom") end)
plugin.action("evt", 20, function(p) seen = seen .. "ok:" .. p.stage end)
plugin.filter("report", 10, function(v) return seen end)
`)

	e.CallAction("evt", map[string]any{"stage": "render"})
	if got := e.ApplyFilter("report", ""); got != "ok:render" {
		t.Errorf("report = %v", got)
	}
}

func TestSandboxViolationContainedInHandler(t *testing.T) {
	e := newTestEngine(t)
	loadScript(t, e, `
plugin.filter("title", 10, function(v)
  site.files.read("../secret.txt")
  return "never"
end)
`)

	got := e.ApplyFilter("title", "orig")
	if got != "orig" {
		t.Errorf("filtered = %v; sandbox violation must leave the value unchanged", got)
	}
}

func TestSandboxedFileRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	loadScript(t, e, `
site.files.write("out/data.txt", "hello")
plugin.filter("report", 10, function(v)
  return site.files.read("out/data.txt")
end)
`)

	if got := e.ApplyFilter("report", ""); got != "hello" {
		t.Errorf("read back = %v", got)
	}
}

func TestJSONBridgeRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	loadScript(t, e, `
plugin.filter("report", 10, function(v)
  local decoded = site.json.decode('{"a":[1,2],"b":"x"}')
  return site.json.encode(decoded.a)
end)
`)

	if got := e.ApplyFilter("report", ""); got != "[1,2]" {
		t.Errorf("json round trip = %v", got)
	}
}

func TestPluginConfigScoped(t *testing.T) {
	e, err := NewEngine(testConfig(), t.TempDir(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Close)

	pluginsDir := t.TempDir()
	writePlugin(t, pluginsDir, "widget", "", `
local cfg = site.config()
plugin.filter("report", 10, function(v) return cfg.color end)
`)
	if err := e.LoadPlugins(pluginsDir, []string{"widget"}); err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := e.ApplyFilter("report", ""); got != "red" {
		t.Errorf("config value = %v", got)
	}
}

func TestLoadOrderRespectsAfterConstraint(t *testing.T) {
	e := newTestEngine(t)
	pluginsDir := t.TempDir()
	writePlugin(t, pluginsDir, "beta", "after:\n  - alpha\n", `
order = (order or "") .. "beta;"
`)
	writePlugin(t, pluginsDir, "alpha", "", `
order = (order or "") .. "alpha;"
plugin.filter("report", 10, function(v) return order end)
`)

	if err := e.LoadPlugins(pluginsDir, []string{"beta", "alpha"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	loaded := e.Loaded()
	if len(loaded) != 2 || loaded[0] != "alpha" || loaded[1] != "beta" {
		t.Errorf("load order = %v", loaded)
	}
	if got := e.ApplyFilter("report", ""); got != "alpha;beta;" {
		t.Errorf("execution order = %v", got)
	}
}

func TestTimestampsCrossBridgeAsRFC3339(t *testing.T) {
	e := newTestEngine(t)
	loadScript(t, e, `
plugin.filter("stamp", 10, function(v) return v.created end)
`)

	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	got := e.ApplyFilter("stamp", map[string]any{"created": created})
	if got != "2026-03-14T09:30:00Z" {
		t.Errorf("timestamp = %v", got)
	}
}

func TestRestrictedLibraries(t *testing.T) {
	e := newTestEngine(t)
	loadScript(t, e, `
plugin.filter("report", 10, function(v)
  if io ~= nil then return "io" end
  if os ~= nil then return "os" end
  return "clean"
end)
`)

	if got := e.ApplyFilter("report", ""); got != "clean" {
		t.Errorf("dangerous library exposed: %v", got)
	}
}

func TestPureHelpers(t *testing.T) {
	e := newTestEngine(t)
	loadScript(t, e, `
plugin.filter("report", 10, function(v)
  local parts = {}
  parts[1] = site.slugify("Héllo World")
  parts[2] = site.strip_html("<b>bold</b>")
  parts[3] = site.date("2026-03-14", "%d/%m/%Y")
  parts[4] = tostring(site.version_lt("1.2.0", "1.10.0"))
  return table.concat(parts, "|")
end)
`)

	want := "hello-world|bold|14/03/2026|true"
	if got := e.ApplyFilter("report", ""); got != want {
		t.Errorf("helpers = %v, want %s", got, want)
	}
}
