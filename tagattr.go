package stencil

import "strings"

// StructType is the shape of a TagValueStruct.
type StructType int

const (
	// StructSimple wraps a single TagValue.
	StructSimple StructType = iota
	// StructList is a `[a, b, *c]` literal.
	StructList
	// StructDict is a `{k: v, **d}` literal.
	StructDict
)

// Spread markers.
const (
	SpreadAttr = "..."
	SpreadList = "*"
	SpreadDict = "**"
)

// TagValuePart is one link in a filter chain. The first part of a TagValue
// is the base value and has no Prefix; later parts are filters (Prefix '|')
// or filter arguments (Prefix ':').
type TagValuePart struct {
	Value string

	// Quote is the quote character the value was written with, or 0 for
	// an unquoted value. Escaped quotes are kept verbatim in Value.
	Quote byte

	Prefix byte

	// Translation is set for `_("...")` values. It implies Quote != 0.
	Translation bool

	Start int

	// nodes holds the compiled sub-template for quoted values that contain
	// template syntax. It's set by the compiler, never by the parser.
	nodes NodeList
}

func (p TagValuePart) String() string {
	var b strings.Builder
	if p.Prefix != 0 {
		b.WriteByte(p.Prefix)
	}
	switch {
	case p.Translation:
		b.WriteString("_(")
		b.WriteByte(p.Quote)
		b.WriteString(p.Value)
		b.WriteByte(p.Quote)
		b.WriteString(")")
	case p.Quote != 0:
		b.WriteByte(p.Quote)
		b.WriteString(p.Value)
		b.WriteByte(p.Quote)
	default:
		b.WriteString(p.Value)
	}
	return b.String()
}

// TagValue is a base value followed by any number of filters and filter
// arguments.
type TagValue struct {
	Parts []TagValuePart
}

func (v TagValue) String() string {
	var b strings.Builder
	for _, part := range v.Parts {
		b.WriteString(part.String())
	}
	return b.String()
}

// IsLiteral reports whether the value is a single quoted string without
// filters.
func (v TagValue) IsLiteral() bool {
	return len(v.Parts) == 1 && v.Parts[0].Quote != 0 && !v.Parts[0].Translation
}

// TagValueStruct is a parsed attribute value: either a single TagValue or a
// list or dict literal whose entries are themselves TagValueStructs. Dict
// entries alternate key, value, key, value, except `**` entries which take a
// single slot.
type TagValueStruct struct {
	Type    StructType
	Value   TagValue
	Entries []*TagValueStruct
	Spread  string
	Start   int
}

func (s *TagValueStruct) String() string {
	var b strings.Builder
	b.WriteString(s.Spread)
	switch s.Type {
	case StructSimple:
		b.WriteString(s.Value.String())
	case StructList:
		b.WriteByte('[')
		for pos, entry := range s.Entries {
			if pos > 0 {
				b.WriteString(", ")
			}
			b.WriteString(entry.String())
		}
		b.WriteByte(']')
	case StructDict:
		b.WriteByte('{')
		first := true
		for pos := 0; pos < len(s.Entries); pos++ {
			if !first {
				b.WriteString(", ")
			}
			first = false
			entry := s.Entries[pos]
			if entry.Spread == SpreadDict {
				b.WriteString(entry.String())
				continue
			}
			b.WriteString(entry.String())
			b.WriteString(": ")
			pos++
			if pos < len(s.Entries) {
				b.WriteString(s.Entries[pos].String())
			}
		}
		b.WriteByte('}')
	}
	return b.String()
}

// TagAttr is one attribute of a tag call, either positional (Key is empty)
// or keyword. Spread attributes (`...value`) are always positional.
type TagAttr struct {
	Key    string
	Value  *TagValueStruct
	Start  int
	Spread bool
}

// String formats the attribute so that parsing the result yields an equal
// attribute.
func (a TagAttr) String() string {
	if a.Key == "" {
		return a.Value.String()
	}
	return a.Key + "=" + a.Value.String()
}

// flag reports whether the attribute is a bare unquoted word, and the word.
func (a TagAttr) flag() (string, bool) {
	if a.Key != "" || a.Spread || a.Value.Type != StructSimple {
		return "", false
	}
	parts := a.Value.Value.Parts
	if len(parts) != 1 || parts[0].Quote != 0 {
		return "", false
	}
	return parts[0].Value, true
}

// FormatAttrs serializes attrs back into tag argument text.
func FormatAttrs(attrs []TagAttr) string {
	out := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, attr.String())
	}
	return strings.Join(out, " ")
}
