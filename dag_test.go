package stencil

import (
	"context"
	"errors"
	"slices"
	"testing"
)

type resourceComponent struct {
	links   []CSSLink
	inlines []CSSInline
}

func (resourceComponent) Template(_ context.Context) string {
	return ""
}

func (r resourceComponent) LinkCSS(_ context.Context) []CSSLink {
	return r.links
}

func (r resourceComponent) EmbedCSS(_ context.Context) []CSSInline {
	return r.inlines
}

func describeAll[Res interface{ describe() string }](resources []Res) []string {
	result := make([]string, 0, len(resources))
	for _, res := range resources {
		result = append(result, res.describe())
	}
	return result
}

func TestWalkGraphOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	first := resourceComponent{links: []CSSLink{
		{Href: "/c.css"},
		{Href: "/a.css"},
		{Href: "/d.css", DisableImplicitOrdering: true},
	}}
	second := resourceComponent{
		links:   []CSSLink{{Href: "/a.css"}},
		inlines: []CSSInline{{TemplatePath: "a.css"}},
	}
	graphs := buildGraphs(ctx, []Component{first, second})
	result, err := walkGraph(ctx, graphs.css)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	expected := []string{"CSSLink(/c.css)", "CSSLink(/a.css)", "CSSLink(/d.css)", "CSSInline(a.css)"}
	if got := describeAll(result); !slices.Equal(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestWalkGraphRelationCalculators(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	first := resourceComponent{links: []CSSLink{
		{Href: "/c.css"},
		{Href: "/a.css"},
		{Href: "/d.css", DisableImplicitOrdering: true},
	}}
	reset := resourceComponent{
		links: []CSSLink{{
			Href: "/z.css",
			CSSLinkRelationCalculator: func(_ context.Context, _ CSSLink) ResourceRelationship {
				return ResourceRelationshipBefore
			},
		}},
		inlines: []CSSInline{{TemplatePath: "a.css"}},
	}
	graphs := buildGraphs(ctx, []Component{first, reset})
	result, err := walkGraph(ctx, graphs.css)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	expected := []string{"CSSLink(/z.css)", "CSSLink(/c.css)", "CSSLink(/a.css)", "CSSLink(/d.css)", "CSSInline(a.css)"}
	if got := describeAll(result); !slices.Equal(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestWalkGraphCycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	after := func(_ context.Context, _ CSSLink) ResourceRelationship {
		return ResourceRelationshipAfter
	}
	comp := resourceComponent{links: []CSSLink{
		{Href: "/a.css", CSSLinkRelationCalculator: after},
		{Href: "/b.css", CSSLinkRelationCalculator: after},
	}}
	graphs := buildGraphs(ctx, []Component{comp})
	if _, err := walkGraph(ctx, graphs.css); !errors.Is(err, ErrResourceCycle) {
		t.Errorf("Expected ErrResourceCycle, got %v", err)
	}
}

func TestBuildGraphsSplitsFooterScripts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	graphs := buildGraphs(ctx, []Component{jsComponent{}})
	head, err := walkGraph(ctx, graphs.headJS)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	foot, err := walkGraph(ctx, graphs.footJS)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if expected := []string{"JSLink(/head.js)", "JSInline(init.js)"}; !slices.Equal(describeAll(head), expected) {
		t.Errorf("Expected head scripts %v, got %v", expected, describeAll(head))
	}
	if expected := []string{"JSLink(/foot.js)"}; !slices.Equal(describeAll(foot), expected) {
		t.Errorf("Expected footer scripts %v, got %v", expected, describeAll(foot))
	}
}

type jsComponent struct{}

func (jsComponent) Template(_ context.Context) string {
	return ""
}

func (jsComponent) LinkJS(_ context.Context) []JSLink {
	return []JSLink{
		{Src: "/head.js"},
		{Src: "/foot.js", PlaceInFooter: true},
	}
}

func (jsComponent) EmbedJS(_ context.Context) []JSInline {
	return []JSInline{{TemplatePath: "init.js"}}
}
