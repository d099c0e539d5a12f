package stencil

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// tagRootElements adds attrs to every top-level element of src. Placeholders
// at the top level aren't tagged; the attributes are returned for them
// instead, keyed by render ID, so the components they stand for can tag
// their own top-level elements.
func tagRootElements(src string, attrs []string) (string, map[string][]string, error) {
	childAttrs := map[string][]string{}
	insert := " " + strings.Join(attrs, " ")
	var out strings.Builder
	out.Grow(len(src) + len(insert)*4)
	z := html.NewTokenizer(strings.NewReader(src))
	depth := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return out.String(), childAttrs, nil
			}
			return "", nil, fmt.Errorf("error finding root elements: %w", z.Err())
		}
		// TagName lowercases the token in place, so Raw has to be copied
		// first
		raw := string(z.Raw())
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := atom.Lookup(name)
			if depth == 0 {
				id, internal := internalMarker(z, tag, hasAttr)
				switch {
				case id != "":
					childAttrs[id] = attrs
				case !internal:
					raw = insertAttrs(raw, insert)
				}
			}
			if tt == html.StartTagToken && !isVoid(tag) {
				depth++
			}
		case html.EndTagToken:
			if depth > 0 {
				depth--
			}
		}
		out.WriteString(raw)
	}
}

// internalMarker reports whether the current token is a template element
// stencil emitted, and the render ID if it's a render placeholder.
func internalMarker(z *html.Tokenizer, tag atom.Atom, hasAttr bool) (string, bool) {
	if tag != atom.Template {
		return "", false
	}
	internal := false
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		switch string(key) {
		case "data-stencil-render":
			return string(val), true
		case "data-stencil-deps":
			internal = true
		}
	}
	return "", internal
}

func insertAttrs(raw, insert string) string {
	if strings.HasSuffix(raw, "/>") {
		return raw[:len(raw)-2] + insert + "/>"
	}
	return raw[:len(raw)-1] + insert + ">"
}

func isVoid(tag atom.Atom) bool {
	switch tag {
	case atom.Area, atom.Base, atom.Br, atom.Col, atom.Embed, atom.Hr, atom.Img,
		atom.Input, atom.Link, atom.Meta, atom.Param, atom.Source, atom.Track, atom.Wbr:
		return true
	}
	return false
}

// closingTagOffsets returns the byte offsets of the first </head> and the
// last </body> end tags in src, or -1 for those that are missing.
func closingTagOffsets(src string) (head, body int) {
	head, body = -1, -1
	z := html.NewTokenizer(strings.NewReader(src))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return head, body
		}
		size := len(z.Raw())
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Head:
				if head < 0 {
					head = offset
				}
			case atom.Body:
				body = offset
			}
		}
		offset += size
	}
}
