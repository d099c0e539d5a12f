package stencil_test

import (
	"context"
	"log/slog"
	"os"

	"impractical.co/stencil"
)

type LinkedCSSExplicitDependencyHomePage struct {
	User string
}

func (LinkedCSSExplicitDependencyHomePage) Template(_ context.Context) string {
	return "home.html"
}

func (h LinkedCSSExplicitDependencyHomePage) Data(_ context.Context) map[string]any {
	return map[string]any{
		"title": "My Example Site",
		"user":  h.User,
	}
}

func (LinkedCSSExplicitDependencyHomePage) LinkCSS(_ context.Context) []stencil.CSSLink {
	// we want all our dependencies to render before the
	// dependencies from LinkedCSSExplicitDependencyLayout.
	//
	// we also want https://example.com/c.css to render before
	// https://example.com/a.css.
	beforeGlobalInlines := func(_ context.Context, other stencil.CSSInline) stencil.ResourceRelationship {
		if other.TemplatePath == "global.css" {
			return stencil.ResourceRelationshipBefore
		}
		return stencil.ResourceRelationshipNeutral
	}
	beforeGlobalLinks := func(_ context.Context, other stencil.CSSLink) stencil.ResourceRelationship {
		if other.Href == "https://example.com/global/a.css" {
			return stencil.ResourceRelationshipBefore
		}
		return stencil.ResourceRelationshipNeutral
	}
	return []stencil.CSSLink{
		{Href: "https://example.com/a.css", CSSInlineRelationCalculator: beforeGlobalInlines, CSSLinkRelationCalculator: beforeGlobalLinks},
		{Href: "https://example.com/b.css", CSSInlineRelationCalculator: beforeGlobalInlines, CSSLinkRelationCalculator: beforeGlobalLinks},
		{Href: "https://example.com/c.css", CSSInlineRelationCalculator: beforeGlobalInlines, CSSLinkRelationCalculator: func(ctx context.Context, other stencil.CSSLink) stencil.ResourceRelationship {
			if other.Href == "https://example.com/a.css" {
				return stencil.ResourceRelationshipBefore
			}
			return beforeGlobalLinks(ctx, other)
		}},
	}
}

type LinkedCSSExplicitDependencyLayout struct{}

func (LinkedCSSExplicitDependencyLayout) Template(_ context.Context) string {
	return "base.html"
}

func (LinkedCSSExplicitDependencyLayout) EmbedCSS(_ context.Context) []stencil.CSSInline {
	return []stencil.CSSInline{
		{TemplatePath: "global.css"},
	}
}

func (LinkedCSSExplicitDependencyLayout) LinkCSS(_ context.Context) []stencil.CSSLink {
	return []stencil.CSSLink{
		{Href: "https://example.com/global/a.css"},
	}
}

func ExampleRender_linkedCSSWithExplicitDependency() {
	// normally you'd use something like embed.FS or os.DirFS for this
	// for example purposes, we're just hardcoding values
	var templates = staticFS{
		"home.html": `{% component "layout" %}{% fill "body" %}Hello, {{ user }}. This is my home page.{% endfill %}{% endcomponent %}`,
		"base.html": `
<!doctype html>
<html lang="en">
	<head>
		<title>{{ title }}</title>
		{% component_css_dependencies %}
	</head>
	<body>
		{% slot "body" default %}{% endslot %}
	</body>
</html>`,
		"global.css": "body { margin: 0; }",
	}

	// usually the context comes from the request, but here we're building it from scratch and adding a logger
	ctx := stencil.LoggingContext(context.Background(), slog.Default())

	engine, err := stencil.NewEngine(stencil.NewCachedSite(templates), stencil.DefaultConfig())
	if err != nil {
		panic(err)
	}
	if err := engine.Register(ctx, "layout", LinkedCSSExplicitDependencyLayout{}); err != nil {
		panic(err)
	}
	page := LinkedCSSExplicitDependencyHomePage{User: "Visitor"}
	stencil.Render(ctx, os.Stdout, engine, page)

	//Output:
	// <!doctype html>
	// <html lang="en">
	// 	<head>
	// 		<title>My Example Site</title>
	// 		<link rel="stylesheet" href="https://example.com/b.css">
	// <link rel="stylesheet" href="https://example.com/c.css">
	// <link rel="stylesheet" href="https://example.com/a.css">
	// <link rel="stylesheet" href="https://example.com/global/a.css">
	// <style>
	// body { margin: 0; }
	// </style>
	// 	</head>
	// 	<body>
	// 		Hello, Visitor. This is my home page.
	// 	</body>
	// </html>
}
