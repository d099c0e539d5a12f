package stencil_test

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"testing"
	"testing/fstest"
	"time"

	"impractical.co/stencil"
)

type CachedSitePage struct {
	Name string
}

func (CachedSitePage) Template(_ context.Context) string {
	return "page.html"
}

func (page CachedSitePage) Data(_ context.Context) map[string]any {
	return map[string]any{"name": page.Name}
}

type CachedSiteCard struct{}

func (CachedSiteCard) Template(_ context.Context) string {
	return "card.html"
}

func renderPage(t *testing.T, ctx context.Context, engine *stencil.Engine, page stencil.Page) string {
	t.Helper()

	var out bytes.Buffer
	stencil.Render(ctx, &out, engine, page)
	return out.String()
}

func TestCachedSite(t *testing.T) {
	t.Parallel()

	ctx := stencil.LoggingContext(context.Background(), slog.Default())
	templateFS := fstest.MapFS(map[string]*fstest.MapFile{
		"page.html": {
			Data:    []byte(`{{ name }}:{% component "card" / %}`),
			Mode:    0777,
			ModTime: time.Now(),
		},
		"card.html": {
			Data:    []byte(`v1`),
			Mode:    0777,
			ModTime: time.Now(),
		},
	})
	site := stencil.NewCachedSite(templateFS)
	engine, err := stencil.NewEngine(site, stencil.DefaultConfig())
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if err := engine.Register(ctx, "card", CachedSiteCard{}); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	page := CachedSitePage{Name: "home"}

	if out := renderPage(t, ctx, engine, page); out != "home:v1" {
		t.Errorf("Expected %q, got %q", "home:v1", out)
	}
	if site.Len() != 2 {
		t.Errorf("Expected both templates to be cached, got %d", site.Len())
	}

	templateFS["card.html"].Data = []byte(`v2`)
	if out := renderPage(t, ctx, engine, page); out != "home:v1" {
		t.Errorf("Expected the cached template after modifying underlying data, got %q", out)
	}

	site.InvalidatePath("card.html")
	if site.Len() != 1 {
		t.Errorf("Expected one template left in the cache, got %d", site.Len())
	}
	if out := renderPage(t, ctx, engine, page); out != "home:v2" {
		t.Errorf("Expected the invalidated template to be reloaded, got %q", out)
	}

	templateFS["page.html"].Data = []byte(`{{ name }}!{% component "card" / %}`)
	templateFS["card.html"].Data = []byte(`v3`)
	site.InvalidateAll()
	if site.Len() != 0 {
		t.Errorf("Expected an empty cache, got %d", site.Len())
	}
	if out := renderPage(t, ctx, engine, page); out != "home!v3" {
		t.Errorf("Expected every template to be reloaded, got %q", out)
	}
}

type uncachedSite struct {
	templates fs.FS
}

func (s uncachedSite) TemplateDir(_ context.Context) fs.FS {
	return s.templates
}

func TestUncachedSite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, err := stencil.NewEngine(uncachedSite{templates: staticFS{
		"page.html": `<h1>{{ name|title }}</h1>{% component "card" / %}`,
		"card.html": `card`,
	}}, stencil.DefaultConfig())
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if err := engine.Register(ctx, "card", CachedSiteCard{}); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	for range 2 {
		if out := renderPage(t, ctx, engine, CachedSitePage{Name: "hello there"}); out != "<h1>Hello There</h1>card" {
			t.Errorf("Expected %q, got %q", "<h1>Hello There</h1>card", out)
		}
	}
	if out := renderPage(t, ctx, engine, CachedSitePage{Name: "<x>"}); out != "<h1>&lt;X&gt;</h1>card" {
		t.Errorf("Expected %q, got %q", "<h1>&lt;X&gt;</h1>card", out)
	}
}

type missingPage struct{}

func (missingPage) Template(_ context.Context) string {
	return "nope.html"
}

func (missingPage) Data(_ context.Context) map[string]any {
	return nil
}

func TestRenderMissingTemplate(t *testing.T) {
	t.Parallel()

	engine, err := stencil.NewEngine(uncachedSite{templates: staticFS{}}, stencil.DefaultConfig())
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if out := renderPage(t, context.Background(), engine, missingPage{}); out != "Server error." {
		t.Errorf("Expected the server error message, got %q", out)
	}
}
