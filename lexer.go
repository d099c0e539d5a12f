package stencil

import (
	"strings"
)

type tokenType int

const (
	tokenText    tokenType = iota // plain text
	tokenVar                      // {{ value }}
	tokenBlock                    // {% tag args %}
	tokenComment                  // {# comment #}
)

var (
	varDelims     = [2]string{"{{", "}}"}
	blockDelims   = [2]string{"{%", "%}"}
	commentDelims = [2]string{"{#", "#}"}
)

type token struct {
	typ tokenType

	// raw is the token's source, delimiters included.
	raw string

	// content is the text between the delimiters, trimmed.
	content string

	line int
}

type lexer struct {
	src    string
	pos    int
	tail   int
	line   int
	tokens []token
}

type lexerState func(l *lexer) lexerState

// lex splits src into tokens. Like Django, a tag ends at the first closing
// delimiter, even when that delimiter sits inside a quoted string.
func lex(src string, line int) []token {
	l := &lexer{
		src:  src,
		line: line,
	}
	for state := lexText; state != nil; {
		state = state(l)
	}
	return l.tokens
}

func (l *lexer) emit(typ tokenType, content string) {
	raw := l.src[l.tail:l.pos]
	l.tokens = append(l.tokens, token{
		typ:     typ,
		raw:     raw,
		content: content,
		line:    l.line,
	})
	l.line += strings.Count(raw, "\n")
	l.tail = l.pos
}

func lexText(l *lexer) lexerState {
	for {
		next := strings.IndexByte(l.src[l.pos:], '{')
		if next < 0 {
			break
		}
		l.pos += next
		if delimsAt(l.src[l.pos:]) != nil {
			if l.pos > l.tail {
				l.emit(tokenText, l.src[l.tail:l.pos])
			}
			return lexTag
		}
		l.pos++
	}
	l.pos = len(l.src)
	if l.pos > l.tail {
		l.emit(tokenText, l.src[l.tail:l.pos])
	}
	return nil
}

func lexTag(l *lexer) lexerState {
	delims := delimsAt(l.src[l.pos:])
	end := strings.Index(l.src[l.pos+len(delims[0]):], delims[1])
	if end < 0 {
		// an unclosed tag is just text
		l.pos = len(l.src)
		l.emit(tokenText, l.src[l.tail:l.pos])
		return nil
	}
	inner := l.src[l.pos+len(delims[0]) : l.pos+len(delims[0])+end]
	l.pos += len(delims[0]) + end + len(delims[1])
	var typ tokenType
	switch *delims {
	case varDelims:
		typ = tokenVar
	case blockDelims:
		typ = tokenBlock
	default:
		typ = tokenComment
	}
	l.emit(typ, strings.TrimSpace(inner))
	return lexText
}

func delimsAt(s string) *[2]string {
	switch {
	case strings.HasPrefix(s, varDelims[0]):
		return &varDelims
	case strings.HasPrefix(s, blockDelims[0]):
		return &blockDelims
	case strings.HasPrefix(s, commentDelims[0]):
		return &commentDelims
	}
	return nil
}

// hasTemplateSyntax reports whether s contains anything the lexer would
// treat as a tag.
func hasTemplateSyntax(s string) bool {
	return strings.Contains(s, varDelims[0]) || strings.Contains(s, blockDelims[0]) || strings.Contains(s, commentDelims[0])
}
