package stencil_test

import (
	"errors"
	"reflect"
	"testing"

	"impractical.co/stencil"
)

func resolveText(t *testing.T, c *stencil.Context, text string) ([]stencil.TagParam, error) {
	t.Helper()

	attrs, err := stencil.ParseTagAttrs(text)
	if err != nil {
		t.Fatalf("Unexpected error parsing %q: %s", text, err)
	}
	return stencil.ResolveAttrs(c, attrs)
}

func TestResolveAttrsScalars(t *testing.T) {
	t.Parallel()

	c := stencil.NewContext(map[string]any{"name": "Ada"})
	params, err := resolveText(t, c, `"pos" a=1 b="x" c=True d=None e=1.5 f=name g=name|upper h=_("Hi") i='it\'s' j=missing`)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	expected := []stencil.TagParam{
		{Value: "pos"},
		{Key: "a", Value: 1},
		{Key: "b", Value: "x"},
		{Key: "c", Value: true},
		{Key: "d", Value: nil},
		{Key: "e", Value: 1.5},
		{Key: "f", Value: "Ada"},
		{Key: "g", Value: "ADA"},
		{Key: "h", Value: "Hi"},
		{Key: "i", Value: "it's"},
		{Key: "j", Value: nil},
	}
	if !reflect.DeepEqual(params, expected) {
		t.Errorf("Expected %#v, got %#v", expected, params)
	}
}

func TestResolveAttrsSpreads(t *testing.T) {
	t.Parallel()

	c := stencil.NewContext(map[string]any{
		"opts":  map[string]any{"b": 2, "a": 1},
		"more":  []string{"y", "z"},
		"attrs": map[string]string{"title": "hi"},
	})

	spread, err := resolveText(t, c, `...opts`)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	explicit, err := resolveText(t, c, `a=1 b=2`)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if !reflect.DeepEqual(spread, explicit) {
		t.Errorf("Expected spreading a dict to match passing its keys, got %#v and %#v", spread, explicit)
	}

	params, err := resolveText(t, c, `...more ...attrs`)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	expected := []stencil.TagParam{{Value: "y"}, {Value: "z"}, {Key: "title", Value: "hi"}}
	if !reflect.DeepEqual(params, expected) {
		t.Errorf("Expected %#v, got %#v", expected, params)
	}
}

func TestResolveAttrsLiterals(t *testing.T) {
	t.Parallel()

	c := stencil.NewContext(map[string]any{
		"opts": map[string]any{"a": 1, "c": "old"},
		"key":  "k",
	})
	cases := map[string]any{
		`[*[1,2,*[3],4]]`:            []any{1, 2, 3, 4},
		`[]`:                         []any{},
		`{**opts, "c": 3}`:           map[string]any{"a": 1, "c": 3},
		`{"a"|upper: 1, key: [key]}`: map[string]any{"A": 1, "k": []any{"k"}},
		`{"x": {"y": [True, None]}}`: map[string]any{"x": map[string]any{"y": []any{true, nil}}},
		`{"c": 1, **opts}`:           map[string]any{"a": 1, "c": "old"},
	}
	for text, want := range cases {
		params, err := resolveText(t, c, text)
		if err != nil {
			t.Errorf("Unexpected error resolving %q: %s", text, err)
			continue
		}
		if len(params) != 1 {
			t.Errorf("Expected 1 param resolving %q, got %d", text, len(params))
			continue
		}
		if !reflect.DeepEqual(params[0].Value, want) {
			t.Errorf("Expected %q to resolve to %#v, got %#v", text, want, params[0].Value)
		}
	}
}

func TestResolveAttrsErrors(t *testing.T) {
	t.Parallel()

	c := stencil.NewContext(map[string]any{
		"opts": map[string]any{"a": 1},
		"n":    5,
	})
	cases := map[string]error{
		`...n`:          stencil.ErrBinding,
		`[*opts]`:       stencil.ErrBinding,
		`[*n]`:          stencil.ErrBinding,
		`{**n}`:         stencil.ErrBinding,
		`x=n|imaginary`: stencil.ErrParse,
	}
	for text, want := range cases {
		_, err := resolveText(t, c, text)
		if !errors.Is(err, want) {
			t.Errorf("Expected resolving %q to fail with %v, got %v", text, want, err)
		}
	}
}

type resolveUser struct {
	Name   string
	Emails []string
	hidden string
}

func (u resolveUser) Initial() string {
	return u.Name[:1]
}

func TestContextResolve(t *testing.T) {
	t.Parallel()

	user := resolveUser{Name: "Ada", Emails: []string{"ada@example.com", "countess@example.com"}, hidden: "x"}
	c := stencil.NewContext(map[string]any{
		"user":  user,
		"ptr":   &user,
		"site":  map[string]any{"nav": []any{map[string]any{"href": "/"}}},
		"title": "outer",
	})
	inner := c.Push(map[string]any{"title": "inner"})

	cases := map[string]any{
		"user.Name":       "Ada",
		"user.Initial":    "A",
		"user.Emails.0":   "ada@example.com",
		"user.Emails.-1":  "countess@example.com",
		"ptr.Name":        "Ada",
		"ptr.Initial":     "A",
		"site.nav.0.href": "/",
		"title":           "inner",
	}
	for path, want := range cases {
		got, ok := inner.Resolve(path)
		if !ok {
			t.Errorf("Expected %q to resolve", path)
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Expected %q to resolve to %#v, got %#v", path, want, got)
		}
	}
	for _, path := range []string{"missing", "user.hidden", "user.Emails.2", "user.Emails.-3", "site.nav.x", "title.length"} {
		if got, ok := inner.Resolve(path); ok {
			t.Errorf("Expected %q not to resolve, got %#v", path, got)
		}
	}

	if got, _ := c.Get("title"); got != "outer" {
		t.Errorf("Expected Push to leave the parent untouched, got %v", got)
	}
	flat := inner.Flatten()
	if flat["title"] != "inner" || flat["user"] == nil {
		t.Errorf("Expected Flatten to merge layers with inner values winning, got %v", flat)
	}
}
