package stencil

import (
	"context"
	"html"
)

// CSSLinker is an interface that Components can fulfill to include some CSS
// that should be loaded through a <link> element. The links of every
// rendered Component are deduplicated and injected into the output.
type CSSLinker interface {
	// LinkCSS returns a list of CSS files that should be linked to from
	// the output HTML.
	LinkCSS(context.Context) []CSSLink
}

// CSSEmbedder is an interface that Components can fulfill to include some CSS
// that should be embedded directly into the rendered HTML.
type CSSEmbedder interface {
	// EmbedCSS returns the CSS templates that should be rendered inside
	// <style> elements in the output HTML.
	EmbedCSS(context.Context) []CSSInline
}

// CSSLink is a CSS file loaded with a <link> element.
type CSSLink struct {
	// Href is the URL of the CSS file.
	Href string

	// DisableImplicitOrdering stops the link from being rendered after
	// the link that precedes it in the same LinkCSS output.
	DisableImplicitOrdering bool

	// CSSLinkRelationCalculator and CSSInlineRelationCalculator, when
	// set, decide where this link goes relative to every other CSS
	// resource. Setting either one disables implicit ordering.
	CSSLinkRelationCalculator   func(context.Context, CSSLink) ResourceRelationship
	CSSInlineRelationCalculator func(context.Context, CSSInline) ResourceRelationship
}

// CSSInline is CSS rendered from a template and embedded in a <style>
// element.
type CSSInline struct {
	// TemplatePath is the path to the CSS template in the Site's
	// TemplateDir. It renders with the data of the page being rendered.
	TemplatePath string

	// DisableImplicitOrdering stops the CSS from being rendered after the
	// CSS that precedes it in the same EmbedCSS output.
	DisableImplicitOrdering bool

	// CSSLinkRelationCalculator and CSSInlineRelationCalculator, when
	// set, decide where this CSS goes relative to every other CSS
	// resource. Setting either one disables implicit ordering.
	CSSLinkRelationCalculator   func(context.Context, CSSLink) ResourceRelationship
	CSSInlineRelationCalculator func(context.Context, CSSInline) ResourceRelationship
}

// cssResource is either a CSSLink or a CSSInline.
type cssResource interface {
	equal(cssResource) bool
	getKey() string
	linked() bool
	describe() string
	implicitlyOrdered() bool
	hasRelations() bool
	relationTo(context.Context, cssResource) ResourceRelationship
	render(context.Context, *Engine, map[string]any) (string, error)
	isCSS()
}

func (CSSLink) isCSS()   {}
func (CSSInline) isCSS() {}

func (l CSSLink) equal(other cssResource) bool {
	o, ok := other.(CSSLink)
	return ok && o.Href == l.Href
}

func (l CSSLink) getKey() string          { return l.Href }
func (CSSLink) linked() bool              { return true }
func (l CSSLink) describe() string        { return "CSSLink(" + l.Href + ")" }
func (l CSSLink) implicitlyOrdered() bool { return !l.DisableImplicitOrdering && !l.hasRelations() }

func (l CSSLink) hasRelations() bool {
	return l.CSSLinkRelationCalculator != nil || l.CSSInlineRelationCalculator != nil
}

func (l CSSLink) relationTo(ctx context.Context, other cssResource) ResourceRelationship {
	return cssRelation(ctx, l.CSSLinkRelationCalculator, l.CSSInlineRelationCalculator, other)
}

func (l CSSLink) render(_ context.Context, _ *Engine, _ map[string]any) (string, error) {
	return `<link rel="stylesheet" href="` + html.EscapeString(l.Href) + `">`, nil
}

func (i CSSInline) equal(other cssResource) bool {
	o, ok := other.(CSSInline)
	return ok && o.TemplatePath == i.TemplatePath
}

func (i CSSInline) getKey() string          { return i.TemplatePath }
func (CSSInline) linked() bool              { return false }
func (i CSSInline) describe() string        { return "CSSInline(" + i.TemplatePath + ")" }
func (i CSSInline) implicitlyOrdered() bool { return !i.DisableImplicitOrdering && !i.hasRelations() }

func (i CSSInline) hasRelations() bool {
	return i.CSSLinkRelationCalculator != nil || i.CSSInlineRelationCalculator != nil
}

func (i CSSInline) relationTo(ctx context.Context, other cssResource) ResourceRelationship {
	return cssRelation(ctx, i.CSSLinkRelationCalculator, i.CSSInlineRelationCalculator, other)
}

func (i CSSInline) render(ctx context.Context, engine *Engine, data map[string]any) (string, error) {
	css, err := engine.renderResource(ctx, i.TemplatePath, data)
	if err != nil {
		return "", err
	}
	return "<style>\n" + css + "\n</style>", nil
}

func cssRelation(ctx context.Context, links func(context.Context, CSSLink) ResourceRelationship, inlines func(context.Context, CSSInline) ResourceRelationship, other cssResource) ResourceRelationship {
	switch o := other.(type) {
	case CSSLink:
		if links != nil {
			return links(ctx, o)
		}
	case CSSInline:
		if inlines != nil {
			return inlines(ctx, o)
		}
	}
	return ResourceRelationshipNeutral
}
