package stencil_test

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"golang.org/x/text/language"

	"impractical.co/stencil"
)

func newTestEngine(t *testing.T, cfg stencil.Config, components map[string]stencil.Component) *stencil.Engine {
	t.Helper()

	engine, err := stencil.NewEngine(nil, cfg)
	if err != nil {
		t.Fatalf("Unexpected error creating engine: %s", err)
	}
	for name, comp := range components {
		if err := engine.Register(context.Background(), name, comp); err != nil {
			t.Fatalf("Unexpected error registering %s: %s", name, err)
		}
	}
	return engine
}

func renderString(t *testing.T, engine *stencil.Engine, src string, data map[string]any) string {
	t.Helper()

	out, err := engine.RenderString(context.Background(), src, data)
	if err != nil {
		t.Fatalf("Unexpected error rendering %q: %s", src, err)
	}
	return out
}

type badge struct{}

func (badge) Template(_ context.Context) string {
	return ""
}

func (badge) TemplateString(_ context.Context) string {
	return `{{ label }}-{{ size }}{% if attrs.title %} ({{ attrs.title }}){% endif %}`
}

func (badge) Signature() stencil.Signature {
	return stencil.Signature{Params: []stencil.Param{
		{Name: "label", Kind: stencil.PositionalOrKeyword},
		{Name: "size", Kind: stencil.PositionalOrKeyword, Default: "md", HasDefault: true},
		{Name: "attrs", Kind: stencil.VarKeyword},
	}}
}

func TestEngineSignatureComponent(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, stencil.DefaultConfig(), map[string]stencil.Component{"badge": badge{}})
	cases := map[string]string{
		`{% component "badge" "Hi" / %}`:                  "Hi-md",
		`{% component "badge" "Hi" "lg" / %}`:             "Hi-lg",
		`{% component "badge" label="Yo" size="sm" / %}`:  "Yo-sm",
		`{% component "badge" "Hi" title="greeting" / %}`: "Hi-md (greeting)",
		`{% component "badge" ...args / %}`:               "A-B",
	}
	for src, expected := range cases {
		if out := renderString(t, engine, src, map[string]any{"args": []string{"A", "B"}}); out != expected {
			t.Errorf("Expected %q to render %q, got %q", src, expected, out)
		}
	}

	_, err := engine.RenderString(context.Background(), `{% component "badge" / %}`, nil)
	if !errors.Is(err, stencil.ErrBinding) {
		t.Fatalf("Expected ErrBinding, got %v", err)
	}
	if !strings.Contains(err.Error(), "badge: missing a required argument: 'label'") {
		t.Errorf("Unexpected error message %q", err)
	}
}

func TestEngineRenderErrorPath(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, stencil.DefaultConfig(), map[string]stencil.Component{
		"a": stencil.Inline(`<a>{% component "b" / %}</a>`),
		"b": stencil.Inline(`<b>{% component "c" / %}</b>`),
	})
	_, err := engine.RenderString(context.Background(), `{% component "a" / %}`, nil)
	if !errors.Is(err, stencil.ErrRegistration) {
		t.Fatalf("Expected ErrRegistration, got %v", err)
	}
	var renderErr *stencil.RenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("Expected a *RenderError, got %T", err)
	}
	if expected := []string{"string", "a", "b"}; !slices.Equal(renderErr.Path, expected) {
		t.Errorf("Expected path %v, got %v", expected, renderErr.Path)
	}
}

func TestEngineDuplicateKeywords(t *testing.T) {
	t.Parallel()

	components := map[string]stencil.Component{"echo": stencil.Inline(`{{ x }}`)}
	src := `{% component "echo" x="a" x="b" / %}`

	strict := newTestEngine(t, stencil.DefaultConfig(), components)
	_, err := strict.RenderString(context.Background(), src, nil)
	if !errors.Is(err, stencil.ErrBinding) {
		t.Errorf("Expected ErrBinding, got %v", err)
	}

	cfg := stencil.DefaultConfig()
	cfg.MergeDuplicateKwargs = true
	merging := newTestEngine(t, cfg, components)
	if out := renderString(t, merging, src, nil); out != "a b" {
		t.Errorf("Expected merged value %q, got %q", "a b", out)
	}
	_, err = merging.RenderString(context.Background(), `{% component "echo" x="a" x=1 / %}`, nil)
	if !errors.Is(err, stencil.ErrBinding) {
		t.Errorf("Expected merging a non-string to fail with ErrBinding, got %v", err)
	}
}

func TestEngineAggregateAttributes(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, stencil.DefaultConfig(), map[string]stencil.Component{
		"box": stencil.Inline(`<div class="{{ attrs.class }}" id="{{ attrs.id }}"></div>`),
	})
	out := renderString(t, engine, `{% component "box" attrs:class="wide" attrs:id="main" / %}`, nil)
	if expected := `<div class="wide" id="main"></div>`; out != expected {
		t.Errorf("Expected %q, got %q", expected, out)
	}

	_, err := engine.RenderString(context.Background(), `{% component "box" attrs={} attrs:class="wide" / %}`, nil)
	if !errors.Is(err, stencil.ErrBinding) {
		t.Errorf("Expected mixing attrs and attrs:key to fail with ErrBinding, got %v", err)
	}
}

func TestEngineNestedComponentInAttribute(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, stencil.DefaultConfig(), map[string]stencil.Component{
		"echo":  stencil.Inline(`[{{ x }}]`),
		"inner": stencil.Inline(`I{{ n }}`),
	})
	out := renderString(t, engine, `{% component "echo" x="<b>{% component 'inner' n=2 / %}</b>" / %} after`, nil)
	if expected := "[<b>I2</b>] after"; out != expected {
		t.Errorf("Expected %q, got %q", expected, out)
	}
}

func TestEngineContextBehavior(t *testing.T) {
	t.Parallel()

	components := map[string]stencil.Component{"greet": stencil.Inline(`[{{ who }}{{ extra }}]`)}
	data := map[string]any{"who": "World"}

	django := newTestEngine(t, stencil.DefaultConfig(), components)
	cases := map[string]string{
		`{% component "greet" / %}`:                "[World]",
		`{% component "greet" extra="!" / %}`:      "[World!]",
		`{% component "greet" only / %}`:           "[]",
		`{% component "greet" who="Ada" only / %}`: "[Ada]",
	}
	for src, expected := range cases {
		if out := renderString(t, django, src, data); out != expected {
			t.Errorf("Expected %q to render %q, got %q", src, expected, out)
		}
	}

	cfg := stencil.DefaultConfig()
	cfg.ContextBehavior = stencil.ContextIsolated
	isolated := newTestEngine(t, cfg, components)
	if out := renderString(t, isolated, `{% component "greet" extra="!" / %}`, data); out != "[!]" {
		t.Errorf("Expected isolated render %q, got %q", "[!]", out)
	}
}

func TestEngineDeepNesting(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, stencil.DefaultConfig(), map[string]stencil.Component{
		"node": stencil.Inline(`{% if depth %}<i>{% component "node" depth=depth|add:-1 / %}</i>{% endif %}`),
	})
	for _, depth := range []int{0, 5, 10, 20, 500} {
		out, err := engine.RenderComponent(context.Background(), "node", stencil.Call{
			Kwargs: map[string]any{"depth": depth},
		})
		if err != nil {
			t.Fatalf("Unexpected error at depth %d: %s", depth, err)
		}
		if expected := strings.Repeat("<i>", depth) + strings.Repeat("</i>", depth); out != expected {
			t.Errorf("Unexpected output at depth %d: %q", depth, out)
		}
	}
}

func TestEngineRenderComponentRejectsMixedFills(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, stencil.DefaultConfig(), map[string]stencil.Component{
		"card": stencil.Inline(`{% slot "body" default %}{% endslot %}`),
	})
	_, err := engine.RenderComponent(context.Background(), "card", stencil.Call{
		Body:  "body",
		Fills: map[string]string{"body": "fill"},
	})
	if !errors.Is(err, stencil.ErrSlot) {
		t.Errorf("Expected ErrSlot, got %v", err)
	}
	out, err := engine.RenderComponent(context.Background(), "card", stencil.Call{Body: "<p>{{ 1|add:2 }}</p>"})
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if out != "<p>3</p>" {
		t.Errorf("Expected %q, got %q", "<p>3</p>", out)
	}
}

func TestEngineRegistry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := newTestEngine(t, stencil.DefaultConfig(), nil)
	registry := engine.Components()

	if err := engine.Register(ctx, "", stencil.Inline("x")); !errors.Is(err, stencil.ErrRegistration) {
		t.Errorf("Expected an empty name to fail with ErrRegistration, got %v", err)
	}
	if err := engine.Register(ctx, "nil", nil); !errors.Is(err, stencil.ErrRegistration) {
		t.Errorf("Expected a nil component to fail with ErrRegistration, got %v", err)
	}
	if err := engine.Register(ctx, "b", stencil.Inline("b")); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if err := engine.Register(ctx, "a", stencil.Inline("a")); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if err := engine.Register(ctx, "a", stencil.Inline("a")); err != nil {
		t.Errorf("Expected registering the same definition again to succeed, got %s", err)
	}
	if err := engine.Register(ctx, "a", stencil.Inline("different")); !errors.Is(err, stencil.ErrRegistration) {
		t.Errorf("Expected registering a different definition to fail with ErrRegistration, got %v", err)
	}
	if err := engine.Register(ctx, "a", badge{}); !errors.Is(err, stencil.ErrRegistration) {
		t.Errorf("Expected registering a different type to fail with ErrRegistration, got %v", err)
	}
	if names := registry.Names(); !slices.Equal(names, []string{"a", "b"}) {
		t.Errorf("Expected names [a b], got %v", names)
	}
	if comp, err := registry.Get("a"); err != nil || comp != stencil.Inline("a") {
		t.Errorf("Expected to get component a back, got %v, %v", comp, err)
	}

	registry.Unregister("a")
	if _, err := registry.Get("a"); !errors.Is(err, stencil.ErrRegistration) {
		t.Errorf("Expected an unregistered name to fail with ErrRegistration, got %v", err)
	}
	if _, err := engine.RenderString(ctx, `{% component "a" / %}`, nil); !errors.Is(err, stencil.ErrRegistration) {
		t.Errorf("Expected rendering an unregistered name to fail with ErrRegistration, got %v", err)
	}

	engine.Clear()
	if names := registry.Names(); len(names) != 0 {
		t.Errorf("Expected Clear to unregister everything, got %v", names)
	}
}

func TestEngineLogsRenderPasses(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := stencil.LoggingContext(context.Background(), logger)

	engine := newTestEngine(t, stencil.DefaultConfig(), nil)
	if err := engine.Register(ctx, "echo", stencil.Inline(`{{ x }}`)); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if _, err := engine.RenderString(ctx, `{% component "echo" x=1 / %}`, nil); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if _, err := engine.RenderString(ctx, `{% component "missing" / %}`, nil); err == nil {
		t.Fatal("Expected an error rendering a missing component")
	}
	logs := buf.String()
	for _, msg := range []string{
		`msg="registered component" component=echo`,
		`msg="starting render pass" template=string`,
		`msg="finished render pass" template=string components=1`,
		`level=ERROR msg="error rendering template" template=string`,
	} {
		if !strings.Contains(logs, msg) {
			t.Errorf("Expected logs to contain %q, got:\n%s", msg, logs)
		}
	}
}

func TestEngineTranslations(t *testing.T) {
	t.Parallel()

	cfg := stencil.DefaultConfig()
	cfg.Language = "de"
	engine := newTestEngine(t, cfg, map[string]stencil.Component{
		"echo": stencil.Inline(`{{ label }}`),
	})
	if got := engine.Translator().Language().String(); got != "de" {
		t.Errorf("Expected de, got %s", got)
	}
	if err := engine.Translator().AddTranslation(language.German, "Hello", "Hallo"); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	out := renderString(t, engine, `{% trans "Hello" %} {{ _("Hello")|upper }} {% component "echo" label=_("Hello") / %} {% trans "Goodbye" %}`, nil)
	if expected := "Hallo HALLO Hallo Goodbye"; out != expected {
		t.Errorf("Expected %q, got %q", expected, out)
	}
}

func TestEngineConfigValidation(t *testing.T) {
	t.Parallel()

	for _, cfg := range []stencil.Config{
		{ContextBehavior: "shared", Dependencies: stencil.DependenciesDocument, Language: "en"},
		{ContextBehavior: stencil.ContextDjango, Dependencies: "footer", Language: "en"},
		{ContextBehavior: stencil.ContextDjango, Dependencies: stencil.DependenciesDocument, Language: "not a language!"},
	} {
		if _, err := stencil.NewEngine(nil, cfg); !errors.Is(err, stencil.ErrInvalidConfig) {
			t.Errorf("Expected %+v to fail with ErrInvalidConfig, got %v", cfg, err)
		}
	}
}

func TestEngineEscapesForeignPlaceholders(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, stencil.DefaultConfig(), map[string]stencil.Component{
		"card": stencil.Inline(`<div>{% slot "header" %}<b>{% component "echo" text="H" / %}</b>{% endslot %}</div>`),
		"echo": stencil.Inline(`{{ text }}`),
	})
	marker := `<template data-stencil-render="ABCDEFGHIJKL"></template>`
	escaped := `&lt;template data-stencil-render="ABCDEFGHIJKL"></template>`
	cases := []struct {
		src      string
		data     map[string]any
		expected string
	}{
		{src: `{{ raw|safe }}`, data: map[string]any{"raw": marker}, expected: escaped},
		{src: `{{ raw }}`, data: map[string]any{"raw": template.HTML("a" + marker)}, expected: "a" + escaped},
		{src: `{{ raw }}`, data: map[string]any{"raw": marker}, expected: template.HTMLEscapeString(marker)},
		{src: `{% component "card" %}{% fill "header" as h %}[{{ h.default }}]{% endfill %}{% endcomponent %}`, expected: `<div>[<b>H</b>]</div>`},
	}
	for _, tc := range cases {
		if out := renderString(t, engine, tc.src, tc.data); out != tc.expected {
			t.Errorf("Expected %q to render %q, got %q", tc.src, tc.expected, out)
		}
	}
}
