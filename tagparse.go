package stencil

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Continuation hands the tag parser the raw source that followed a tag, for
// when the host lexer ended the tag too early: a quoted attribute value that
// itself contains a tag (`title="{% trans 'hi' %}"`) gets cut at the first
// closing delimiter, which belongs to the embedded tag.
type Continuation interface {
	// Delims returns the opening and closing delimiters of the tag being
	// parsed, e.g. "{%" and "%}".
	Delims() (open, close string)

	// Next returns the raw source of the next token, delimiters included.
	Next() (string, bool)

	// Unread gives back source that turned out to follow the real end of
	// the tag.
	Unread(string)
}

type valueContext int

const (
	ctxAttr valueContext = iota
	ctxList
	ctxDictKey
	ctxDictValue
)

const (
	keyStop   = " \t\n\r=\"'[]{}(),|"
	valueStop = " \t\n\r|:,]}"
)

type tagParser struct {
	text string
	pos  int

	// openQuote is the offset of a quote that ran to the end of the text,
	// or -1.
	openQuote int
}

// ParseTagAttrs parses the argument text of a single tag call, everything
// after the tag name, into attributes.
func ParseTagAttrs(text string) ([]TagAttr, error) {
	_, attrs, err := ParseTagAttrsContinued(text, nil)
	return attrs, err
}

// ParseTagAttrsContinued is ParseTagAttrs with the nested-tag fix-up: when
// text ends inside a quoted value that opened an embedded tag, it pulls more
// source from cont until the real end of the tag, and returns the corrected
// text alongside the attributes parsed from it.
func ParseTagAttrsContinued(text string, cont Continuation) (string, []TagAttr, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	attrs, open, err := parseAttrText(text)
	if err != nil || open < 0 || cont == nil {
		return text, attrs, err
	}
	opener, closer := cont.Delims()
	if !strings.Contains(text[open:], opener) {
		return text, attrs, nil
	}

	joined := text + closer
	var consumed strings.Builder
	for {
		raw, ok := cont.Next()
		if !ok {
			// no real end in sight; the unterminated quote stays a literal
			if consumed.Len() > 0 {
				cont.Unread(consumed.String())
			}
			return text, attrs, nil
		}
		consumed.WriteString(raw)
		joined += raw
		end := findCloser(joined, closer)
		if end < 0 {
			continue
		}
		fixed := joined[:end]
		if rest := joined[end+len(closer):]; rest != "" {
			cont.Unread(rest)
		}
		attrs, _, err = parseAttrText(fixed)
		return fixed, attrs, err
	}
}

// findCloser returns the offset of the first closer outside of quotes.
func findCloser(text, closer string) int {
	var quote byte
	for pos := 0; pos < len(text); pos++ {
		c := text[pos]
		switch {
		case quote != 0 && c == '\\':
			pos++
		case quote != 0 && c == quote:
			quote = 0
		case quote != 0:
		case c == '"' || c == '\'':
			quote = c
		case strings.HasPrefix(text[pos:], closer):
			return pos
		}
	}
	return -1
}

func parseAttrText(text string) ([]TagAttr, int, error) {
	p := &tagParser{text: text, openQuote: -1}
	attrs, err := p.parse()
	return attrs, p.openQuote, err
}

func (p *tagParser) parse() ([]TagAttr, error) {
	var attrs []TagAttr
	for {
		p.skipSpace()
		if p.eof() {
			return attrs, nil
		}
		attr := TagAttr{Start: p.pos}
		if strings.HasPrefix(p.rest(), SpreadAttr) {
			p.pos += len(SpreadAttr)
			if p.eof() || isSpace(p.peek()) {
				return nil, p.errorf(attr.Start, "Spread syntax '...' is missing a value")
			}
			val, err := p.parseValue(ctxAttr)
			if err != nil {
				return nil, err
			}
			val.Spread = SpreadAttr
			val.Start = attr.Start
			attr.Value = val
			attr.Spread = true
		} else {
			if key, ok := p.scanKey(); ok {
				attr.Key = key
				p.pos++ // =
				if strings.HasPrefix(p.rest(), SpreadAttr) {
					return nil, p.errorf(p.pos, "Spread syntax '...' cannot follow a key (%s=...)", key)
				}
				if p.eof() || isSpace(p.peek()) {
					return nil, p.errorf(attr.Start, "Keyword argument %q is missing a value", key)
				}
			}
			val, err := p.parseValue(ctxAttr)
			if err != nil {
				return nil, err
			}
			attr.Value = val
		}
		if !p.eof() && !isSpace(p.peek()) {
			return nil, p.errorf(p.pos, "Unexpected character %q", p.peek())
		}
		attrs = append(attrs, attr)
	}
}

func (p *tagParser) scanKey() (string, bool) {
	end := p.pos
	for end < len(p.text) && strings.IndexByte(keyStop, p.text[end]) < 0 {
		end++
	}
	if end == p.pos || end >= len(p.text) || p.text[end] != '=' {
		return "", false
	}
	key := p.text[p.pos:end]
	p.pos = end
	return key, true
}

func (p *tagParser) parseValue(ctx valueContext) (*TagValueStruct, error) {
	start := p.pos
	if p.eof() {
		return nil, p.errorf(start, "Expected a value")
	}
	var (
		result *TagValueStruct
		err    error
	)
	switch p.peek() {
	case '[':
		result, err = p.parseList()
	case '{':
		result, err = p.parseDict()
	default:
		if err := p.checkSpread(ctx); err != nil {
			return nil, err
		}
		value, err := p.parseFilterChain(ctx)
		if err != nil {
			return nil, err
		}
		return &TagValueStruct{Type: StructSimple, Value: value, Start: start}, nil
	}
	if err != nil {
		return nil, err
	}
	if !p.eof() && p.peek() == '|' {
		return nil, p.errorf(p.pos, "Filters can't be applied to list or dictionary literals")
	}
	return result, nil
}

// checkSpread rejects spread markers that appear where a plain value is
// expected.
func (p *tagParser) checkSpread(ctx valueContext) error {
	rest := p.rest()
	switch {
	case strings.HasPrefix(rest, SpreadAttr):
		switch ctx {
		case ctxList:
			return p.errorf(p.pos, "Spread syntax '...' found inside a list, use '*' to spread into a list")
		case ctxDictKey, ctxDictValue:
			return p.errorf(p.pos, "Spread syntax '...' found inside a dictionary, use '**' to spread into a dictionary")
		default:
			return p.errorf(p.pos, "Spread syntax '...' may only precede a whole tag attribute")
		}
	case strings.HasPrefix(rest, SpreadDict):
		if ctx == ctxDictValue {
			return p.errorf(p.pos, "Spread syntax '**' must be a whole dictionary entry, not a value")
		}
		return p.errorf(p.pos, "Spread syntax '**' found outside of a dictionary")
	case strings.HasPrefix(rest, SpreadList):
		return p.errorf(p.pos, "Spread syntax '*' found outside of a list")
	}
	return nil
}

func (p *tagParser) parseFilterChain(ctx valueContext) (TagValue, error) {
	var value TagValue
	base, err := p.parseScalar(0)
	if err != nil {
		return value, err
	}
	value.Parts = append(value.Parts, base)
	afterFilter := false
	for !p.eof() {
		switch p.peek() {
		case '|':
			start := p.pos
			p.pos++
			name := p.scanIdent()
			if name == "" {
				return value, p.errorf(start, "Filter name is missing after '|'")
			}
			value.Parts = append(value.Parts, TagValuePart{Value: name, Prefix: '|', Start: start})
			afterFilter = true
		case ':':
			// in a dict key, a bare ':' or one followed by a space ends the key
			if ctx == ctxDictKey && (!afterFilter || p.pos+1 >= len(p.text) || isSpace(p.text[p.pos+1])) {
				return value, nil
			}
			if !afterFilter {
				if ctx == ctxDictValue {
					return value, p.errorf(p.pos, "Unexpected ':' in dictionary value")
				}
				return value, p.errorf(p.pos, "Filter argument must follow a filter")
			}
			start := p.pos
			p.pos++
			if p.eof() || strings.IndexByte(valueStop, p.peek()) >= 0 {
				return value, p.errorf(start, "Filter argument is missing after ':'")
			}
			arg, err := p.parseScalar(':')
			if err != nil {
				return value, err
			}
			arg.Start = start
			value.Parts = append(value.Parts, arg)
			afterFilter = false
		default:
			return value, nil
		}
	}
	return value, nil
}

func (p *tagParser) parseScalar(prefix byte) (TagValuePart, error) {
	start := p.pos
	part := TagValuePart{Prefix: prefix, Start: start}
	if strings.HasPrefix(p.rest(), "_(") {
		p.pos += 2
		p.skipSpace()
		if p.eof() || !isQuote(p.peek()) {
			return part, p.errorf(start, "Translation _() must wrap a quoted string")
		}
		quote, val, closed := p.scanQuoted()
		if !closed {
			return part, p.errorf(start, "Translation _() has an unterminated string")
		}
		p.skipSpace()
		if p.eof() || p.peek() != ')' {
			return part, p.errorf(start, "Translation _() is missing its closing ')'")
		}
		p.pos++
		part.Value, part.Quote, part.Translation = val, quote, true
		return part, nil
	}
	if !p.eof() && isQuote(p.peek()) {
		part.Quote, part.Value, _ = p.scanQuoted()
		return part, nil
	}
	for !p.eof() && strings.IndexByte(valueStop, p.peek()) < 0 {
		p.pos++
	}
	if p.pos == start {
		if p.eof() {
			return part, p.errorf(start, "Expected a value")
		}
		return part, p.errorf(start, "Expected a value, found %q", p.peek())
	}
	part.Value = p.text[start:p.pos]
	return part, nil
}

// scanQuoted consumes a quoted string starting at the current position. An
// unterminated string runs to the end of the text and is recorded in
// openQuote rather than treated as an error.
func (p *tagParser) scanQuoted() (quote byte, value string, closed bool) {
	start := p.pos
	quote = p.text[start]
	p.pos++
	for p.pos < len(p.text) {
		c := p.text[p.pos]
		if c == '\\' && p.pos+1 < len(p.text) {
			p.pos += 2
			continue
		}
		if c == quote {
			value = p.text[start+1 : p.pos]
			p.pos++
			return quote, value, true
		}
		p.pos++
	}
	p.pos = len(p.text)
	p.openQuote = start
	return quote, p.text[start+1:], false
}

func (p *tagParser) parseList() (*TagValueStruct, error) {
	list := &TagValueStruct{Type: StructList, Start: p.pos}
	p.pos++ // [
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf(list.Start, "List is missing its closing ']'")
		}
		if p.peek() == ']' {
			p.pos++
			return list, nil
		}
		entryStart := p.pos
		spread := ""
		if p.peek() == '*' && !strings.HasPrefix(p.rest(), SpreadDict) {
			p.pos++
			spread = SpreadList
			if p.eof() || isSpace(p.peek()) {
				return nil, p.errorf(entryStart, "Spread syntax '*' is missing a value")
			}
		}
		entry, err := p.parseValue(ctxList)
		if err != nil {
			return nil, err
		}
		entry.Spread = spread
		entry.Start = entryStart
		list.Entries = append(list.Entries, entry)

		p.skipSpace()
		if p.eof() {
			return nil, p.errorf(list.Start, "List is missing its closing ']'")
		}
		switch c := p.peek(); c {
		case ',':
			p.pos++
		case ']':
		default:
			return nil, p.errorf(p.pos, "Expected ',' or ']' in list, found %q", c)
		}
	}
}

func (p *tagParser) parseDict() (*TagValueStruct, error) {
	dict := &TagValueStruct{Type: StructDict, Start: p.pos}
	p.pos++ // {
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf(dict.Start, "Dictionary is missing its closing '}'")
		}
		if p.peek() == '}' {
			p.pos++
			return dict, nil
		}
		entryStart := p.pos
		if strings.HasPrefix(p.rest(), SpreadDict) {
			p.pos += len(SpreadDict)
			if p.eof() || isSpace(p.peek()) {
				return nil, p.errorf(entryStart, "Spread syntax '**' is missing a value")
			}
			entry, err := p.parseValue(ctxDictValue)
			if err != nil {
				return nil, err
			}
			entry.Spread = SpreadDict
			entry.Start = entryStart
			dict.Entries = append(dict.Entries, entry)
		} else {
			key, err := p.parseValue(ctxDictKey)
			if err != nil {
				return nil, err
			}
			if key.Type != StructSimple {
				return nil, p.errorf(entryStart, "Dictionary keys must be strings or variables")
			}
			p.skipSpace()
			if p.eof() || p.peek() != ':' {
				return nil, p.errorf(entryStart, "Dictionary key is missing a value")
			}
			p.pos++ // :
			p.skipSpace()
			if p.eof() || p.peek() == ',' || p.peek() == '}' {
				return nil, p.errorf(entryStart, "Dictionary key is missing a value")
			}
			val, err := p.parseValue(ctxDictValue)
			if err != nil {
				return nil, err
			}
			dict.Entries = append(dict.Entries, key, val)
		}

		p.skipSpace()
		if p.eof() {
			return nil, p.errorf(dict.Start, "Dictionary is missing its closing '}'")
		}
		switch c := p.peek(); c {
		case ',':
			p.pos++
		case '}':
		case ':':
			return nil, p.errorf(p.pos, "Unexpected ':' in dictionary")
		default:
			return nil, p.errorf(p.pos, "Expected ',' or '}' in dictionary, found %q", c)
		}
	}
}

func (p *tagParser) scanIdent() string {
	start := p.pos
	for !p.eof() && isIdentByte(p.peek()) {
		p.pos++
	}
	return p.text[start:p.pos]
}

func (p *tagParser) skipSpace() {
	for !p.eof() && isSpace(p.peek()) {
		p.pos++
	}
}

func (p *tagParser) eof() bool    { return p.pos >= len(p.text) }
func (p *tagParser) peek() byte   { return p.text[p.pos] }
func (p *tagParser) rest() string { return p.text[p.pos:] }

func (p *tagParser) errorf(offset int, format string, args ...any) error {
	return &ParseError{Msg: fmt.Sprintf(format, args...), Text: p.text, Offset: offset}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isQuote(c byte) bool {
	return c == '"' || c == '\''
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// isIdentifier reports whether s can be used as a parameter or variable name.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for pos, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if pos > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return utf8.ValidString(s)
}
