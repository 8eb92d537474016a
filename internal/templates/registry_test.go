package templates

import (
	"errors"
	"strings"
	"testing"
)

func TestCompileRegistersBothNames(t *testing.T) {
	r := NewRegistry("aurora")

	tmpl, err := r.Compile("aurora", "post.cbt", "h1 {{ post.title }}")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if tmpl.FullName != "aurora/post.cbt" {
		t.Errorf("full name = %q", tmpl.FullName)
	}

	if _, ok := r.Lookup("aurora/post.cbt"); !ok {
		t.Error("namespaced lookup failed")
	}
	if _, ok := r.Lookup("post.cbt"); !ok {
		t.Error("short lookup failed for active namespace")
	}
}

func TestCompileInactiveNamespaceHasNoShortName(t *testing.T) {
	r := NewRegistry("aurora")

	if _, err := r.Compile("minimal", "post.cbt", "p other"); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, ok := r.Lookup("minimal/post.cbt"); !ok {
		t.Error("namespaced lookup failed")
	}
	if _, ok := r.Lookup("post.cbt"); ok {
		t.Error("short name must not resolve to an inactive namespace")
	}
}

func TestCompileDuplicateFails(t *testing.T) {
	r := NewRegistry("aurora")
	if _, err := r.Compile("aurora", "post.cbt", "p one"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Compile("aurora", "post.cbt", "p two"); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestResolveInheritanceChain(t *testing.T) {
	r := NewRegistry("aurora")
	mustCompile(t, r, "aurora", "base.cbt", "slot content\n  | fallback")
	mustCompile(t, r, "aurora", "page.cbt", "extends aurora:base\nslot content\n  | page")
	mustCompile(t, r, "aurora", "post.cbt", "extends aurora:page\nslot content\n  | post")

	chain, err := r.ResolveInheritance("post.cbt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"aurora/page.cbt", "aurora/base.cbt"}
	if len(chain) != len(want) {
		t.Fatalf("chain = %v", chain)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("chain[%d] = %q, want %q", i, chain[i], want[i])
		}
	}
}

func TestResolveInheritanceCycle(t *testing.T) {
	r := NewRegistry("aurora")
	mustCompile(t, r, "aurora", "a.cbt", "extends aurora:b\ndiv")
	mustCompile(t, r, "aurora", "b.cbt", "extends aurora:a\ndiv")

	_, err := r.ResolveInheritance("a.cbt")
	var cerr *CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CycleError, got %v", err)
	}
	if !strings.Contains(cerr.Error(), "aurora/a.cbt") {
		t.Errorf("chain missing start: %v", cerr)
	}
}

func TestDependenciesClosure(t *testing.T) {
	r := NewRegistry("aurora")
	mustCompile(t, r, "aurora", "base.cbt", "include aurora:nav\nslot content")
	mustCompile(t, r, "aurora", "nav.cbt", "div nav")
	mustCompile(t, r, "aurora", "post.cbt", "extends aurora:base\nslot content\n  | x")

	deps, err := r.Dependencies("post.cbt")
	if err != nil {
		t.Fatalf("dependencies: %v", err)
	}
	got := map[string]bool{}
	for _, d := range deps {
		got[d] = true
	}
	for _, want := range []string{"aurora/post.cbt", "aurora/base.cbt", "aurora/nav.cbt"} {
		if !got[want] {
			t.Errorf("closure missing %s (have %v)", want, deps)
		}
	}
}

func TestRenderWithInheritance(t *testing.T) {
	r := NewRegistry("aurora")
	mustCompile(t, r, "aurora", "base.cbt", "main\n  slot content\n    | fallback")
	mustCompile(t, r, "aurora", "post.cbt", "extends aurora:base\nslot content\n  h1 {{ title }}")

	out, err := r.Render("post.cbt", map[string]any{"title": "Hello"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "<main><h1>Hello</h1></main>" {
		t.Errorf("output = %q", out)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	r := NewRegistry("aurora")
	_, err := r.Render("nope.cbt", nil)
	var rerr *RenderError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RenderError, got %v", err)
	}
}

func TestRenderCycleFailsTyped(t *testing.T) {
	r := NewRegistry("aurora")
	mustCompile(t, r, "aurora", "a.cbt", "extends aurora:b\ndiv")
	mustCompile(t, r, "aurora", "b.cbt", "extends aurora:a\ndiv")

	_, err := r.Render("a.cbt", nil)
	var cerr *CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected cycle error before rendering, got %v", err)
	}
}

func TestHookFunctionInTemplates(t *testing.T) {
	r := NewRegistry("aurora")
	r.SetHookFunc(func(name string, data any) string {
		if name != "banner" {
			t.Errorf("hook name = %q", name)
		}
		return "<b>ad</b>"
	})
	mustCompile(t, r, "aurora", "page.cbt", "div\n  hook(\"banner\")")

	out, err := r.Render("page.cbt", nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "<div><b>ad</b></div>" {
		t.Errorf("output = %q", out)
	}
}

func mustCompile(t *testing.T, r *Registry, namespace, name, src string) {
	t.Helper()
	if _, err := r.Compile(namespace, name, src); err != nil {
		t.Fatalf("compile %s/%s: %v", namespace, name, err)
	}
}
