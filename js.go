package stencil

import (
	"context"
	"html"
)

// JSLinker is an interface that Components can fulfill to include some
// JavaScript that should be loaded separately from the HTML document, using a
// <script> tag with a src attribute.
type JSLinker interface {
	// LinkJS returns a list of JavaScript files that should be linked to
	// from the output HTML.
	LinkJS(context.Context) []JSLink
}

// JSEmbedder is an interface that Components can fulfill to include some
// JavaScript that should be embedded directly into the rendered HTML.
type JSEmbedder interface {
	// EmbedJS returns the JavaScript templates that should be rendered
	// inside <script> elements in the output HTML.
	EmbedJS(context.Context) []JSInline
}

// JSLink is a JavaScript file loaded with a <script src> element.
type JSLink struct {
	// Src is the URL of the JavaScript file.
	Src string

	// PlaceInFooter renders the script at the end of <body> instead of
	// with the head scripts.
	PlaceInFooter bool

	// DisableImplicitOrdering stops the script from being rendered after
	// the script that precedes it in the same LinkJS output.
	DisableImplicitOrdering bool

	// JSLinkRelationCalculator and JSInlineRelationCalculator, when set,
	// decide where this script goes relative to every other script in
	// the same place. Setting either one disables implicit ordering.
	JSLinkRelationCalculator   func(context.Context, JSLink) ResourceRelationship
	JSInlineRelationCalculator func(context.Context, JSInline) ResourceRelationship
}

// JSInline is JavaScript rendered from a template and embedded in a <script>
// element.
type JSInline struct {
	// TemplatePath is the path to the JavaScript template in the Site's
	// TemplateDir. It renders with the data of the page being rendered.
	TemplatePath string

	// PlaceInFooter renders the script at the end of <body> instead of
	// with the head scripts.
	PlaceInFooter bool

	// DisableImplicitOrdering stops the script from being rendered after
	// the script that precedes it in the same EmbedJS output.
	DisableImplicitOrdering bool

	// JSLinkRelationCalculator and JSInlineRelationCalculator, when set,
	// decide where this script goes relative to every other script in
	// the same place. Setting either one disables implicit ordering.
	JSLinkRelationCalculator   func(context.Context, JSLink) ResourceRelationship
	JSInlineRelationCalculator func(context.Context, JSInline) ResourceRelationship
}

// jsResource is either a JSLink or a JSInline.
type jsResource interface {
	equal(jsResource) bool
	getKey() string
	linked() bool
	describe() string
	implicitlyOrdered() bool
	hasRelations() bool
	relationTo(context.Context, jsResource) ResourceRelationship
	render(context.Context, *Engine, map[string]any) (string, error)
	inFooter() bool
}

func (l JSLink) inFooter() bool   { return l.PlaceInFooter }
func (i JSInline) inFooter() bool { return i.PlaceInFooter }

func (l JSLink) equal(other jsResource) bool {
	o, ok := other.(JSLink)
	return ok && o.Src == l.Src
}

func (l JSLink) getKey() string          { return l.Src }
func (JSLink) linked() bool              { return true }
func (l JSLink) describe() string        { return "JSLink(" + l.Src + ")" }
func (l JSLink) implicitlyOrdered() bool { return !l.DisableImplicitOrdering && !l.hasRelations() }

func (l JSLink) hasRelations() bool {
	return l.JSLinkRelationCalculator != nil || l.JSInlineRelationCalculator != nil
}

func (l JSLink) relationTo(ctx context.Context, other jsResource) ResourceRelationship {
	return jsRelation(ctx, l.JSLinkRelationCalculator, l.JSInlineRelationCalculator, other)
}

func (l JSLink) render(_ context.Context, _ *Engine, _ map[string]any) (string, error) {
	return `<script src="` + html.EscapeString(l.Src) + `"></script>`, nil
}

func (i JSInline) equal(other jsResource) bool {
	o, ok := other.(JSInline)
	return ok && o.TemplatePath == i.TemplatePath
}

func (i JSInline) getKey() string          { return i.TemplatePath }
func (JSInline) linked() bool              { return false }
func (i JSInline) describe() string        { return "JSInline(" + i.TemplatePath + ")" }
func (i JSInline) implicitlyOrdered() bool { return !i.DisableImplicitOrdering && !i.hasRelations() }

func (i JSInline) hasRelations() bool {
	return i.JSLinkRelationCalculator != nil || i.JSInlineRelationCalculator != nil
}

func (i JSInline) relationTo(ctx context.Context, other jsResource) ResourceRelationship {
	return jsRelation(ctx, i.JSLinkRelationCalculator, i.JSInlineRelationCalculator, other)
}

func (i JSInline) render(ctx context.Context, engine *Engine, data map[string]any) (string, error) {
	js, err := engine.renderResource(ctx, i.TemplatePath, data)
	if err != nil {
		return "", err
	}
	return "<script>\n" + js + "\n</script>", nil
}

func jsRelation(ctx context.Context, links func(context.Context, JSLink) ResourceRelationship, inlines func(context.Context, JSInline) ResourceRelationship, other jsResource) ResourceRelationship {
	switch o := other.(type) {
	case JSLink:
		if links != nil {
			return links(ctx, o)
		}
	case JSInline:
		if inlines != nil {
			return inlines(ctx, o)
		}
	}
	return ResourceRelationshipNeutral
}
