package stencil

import (
	"context"
	"fmt"
	"strings"
)

// ResourceKind is the kind of resource a dependencies tag collects.
type ResourceKind string

const (
	ResourceCSS ResourceKind = "css"
	ResourceJS  ResourceKind = "js"
)

func dependencyMarker(kind ResourceKind) string {
	return `<template data-stencil-deps="` + string(kind) + `"></template>`
}

// renderedResources are the resources of one root render, rendered to HTML.
type renderedResources struct {
	css    string
	headJS string
	footJS string
}

// injectDependencies places the CSS and JS of components into html according
// to the Engine's DependencyStrategy.
func (e *Engine) injectDependencies(ctx context.Context, html string, data map[string]any, components []Component) (string, error) {
	if e.cfg.Dependencies == DependenciesIgnore {
		return stripMarkers(html), nil
	}
	resources, err := e.renderResources(ctx, components, data)
	if err != nil {
		return "", err
	}
	if e.cfg.Dependencies == DependenciesAppend {
		return stripMarkers(html) + joinNonEmpty(resources.css, resources.headJS, resources.footJS), nil
	}

	cssMarker, jsMarker := dependencyMarker(ResourceCSS), dependencyMarker(ResourceJS)
	hasCSSMarker, hasJSMarker := strings.Contains(html, cssMarker), strings.Contains(html, jsMarker)
	if hasCSSMarker {
		html = replaceFirst(html, cssMarker, resources.css)
	}
	if hasJSMarker {
		html = replaceFirst(html, jsMarker, resources.headJS)
	}
	var beforeHead []string
	if !hasCSSMarker {
		beforeHead = append(beforeHead, resources.css)
	}
	if !hasJSMarker {
		beforeHead = append(beforeHead, resources.headJS)
	}
	html = insertBefore(html, joinNonEmpty(beforeHead...), joinNonEmpty(resources.footJS))
	return html, nil
}

func (e *Engine) renderResources(ctx context.Context, components []Component, data map[string]any) (renderedResources, error) {
	var result renderedResources
	graphs := buildGraphs(ctx, components)
	css, err := walkGraph(ctx, graphs.css)
	if err != nil {
		return result, fmt.Errorf("error ordering CSS: %w", err)
	}
	headJS, err := walkGraph(ctx, graphs.headJS)
	if err != nil {
		return result, fmt.Errorf("error ordering header JavaScript: %w", err)
	}
	footJS, err := walkGraph(ctx, graphs.footJS)
	if err != nil {
		return result, fmt.Errorf("error ordering footer JavaScript: %w", err)
	}
	if result.css, err = renderAll(ctx, e, css, data); err != nil {
		return result, err
	}
	if result.headJS, err = renderAll(ctx, e, headJS, data); err != nil {
		return result, err
	}
	if result.footJS, err = renderAll(ctx, e, footJS, data); err != nil {
		return result, err
	}
	return result, nil
}

func renderAll[Res interface {
	render(context.Context, *Engine, map[string]any) (string, error)
	describe() string
}](ctx context.Context, e *Engine, resources []Res, data map[string]any) (string, error) {
	out := make([]string, 0, len(resources))
	for _, res := range resources {
		html, err := res.render(ctx, e, data)
		if err != nil {
			return "", fmt.Errorf("error rendering %s: %w", res.describe(), err)
		}
		out = append(out, html)
	}
	return strings.Join(out, "\n"), nil
}

// renderResource renders an inline CSS or JS template with the root data of
// the page. Components it calls are rendered, but their own resources are
// not collected.
func (e *Engine) renderResource(ctx context.Context, path string, data map[string]any) (string, error) {
	tmpl, err := e.loadTemplate(ctx, path)
	if err != nil {
		return "", err
	}
	pass := newRenderPass(ctx, e, nil)
	root := &Context{vars: data, goCtx: ctx, engine: e, pass: pass}
	return pass.run(path, func(_ string, _ []string) (string, map[string][]string, error) {
		out, err := tmpl.Render(root)
		return out, nil, err
	})
}

// insertBefore puts head right before </head> and foot right before the
// last </body>. Documents without those tags don't get the resources.
func insertBefore(html, head, foot string) string {
	headPos, bodyPos := closingTagOffsets(html)
	if foot != "" && bodyPos >= 0 {
		html = html[:bodyPos] + foot + html[bodyPos:]
	}
	if head != "" && headPos >= 0 {
		html = html[:headPos] + head + html[headPos:]
	}
	return html
}

func replaceFirst(html, marker, replacement string) string {
	html = strings.Replace(html, marker, replacement, 1)
	return strings.ReplaceAll(html, marker, "")
}

func stripMarkers(html string) string {
	html = strings.ReplaceAll(html, dependencyMarker(ResourceCSS), "")
	return strings.ReplaceAll(html, dependencyMarker(ResourceJS), "")
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "\n")
}
