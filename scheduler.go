package stencil

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

const (
	renderIDLen   = 12
	renderIDChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// placeholderPattern matches the markers deferred renders leave in the output.
// The markup is reserved: safe values printing it for a render that isn't
// pending are escaped.
var placeholderPattern = regexp.MustCompile(`<template data-stencil-render="([0-9A-Za-z]{12})"></template>`)

// newRenderID returns a random base62 ID, about 71 bits of entropy.
func newRenderID() string {
	id := make([]byte, 0, renderIDLen)
	buf := make([]byte, renderIDLen*2)
	for len(id) < renderIDLen {
		_, _ = rand.Read(buf)
		for _, b := range buf {
			// 248 is the largest multiple of 62 that fits in a byte
			if b >= 248 {
				continue
			}
			id = append(id, renderIDChars[b%62])
			if len(id) == renderIDLen {
				break
			}
		}
	}
	return string(id)
}

func placeholder(id string) string {
	return `<template data-stencil-render="` + id + `"></template>`
}

type segment struct {
	text string
	id   string
}

// splitPlaceholders splits html into the text before each placeholder and
// the placeholder's render ID. The last segment never has an ID.
func splitPlaceholders(html string) []segment {
	matches := placeholderPattern.FindAllStringSubmatchIndex(html, -1)
	segments := make([]segment, 0, len(matches)+1)
	last := 0
	for _, match := range matches {
		segments = append(segments, segment{
			text: html[last:match[0]],
			id:   html[match[2]:match[3]],
		})
		last = match[1]
	}
	return append(segments, segment{text: html[last:]})
}

// renderFunc produces the HTML of the deferred render registered under id.
// attrs are the attributes a parent passed down to the render's root
// elements; the returned map holds attributes for child placeholders, by
// render ID.
type renderFunc func(id string, attrs []string) (string, map[string][]string, error)

type renderEntry struct {
	id     string
	name   string
	parent *renderEntry
	render renderFunc

	// done hooks run once the entry and everything rendered inside it has
	// finished, or when the pass is aborted.
	done   []func() error
	closed bool
}

func (e *renderEntry) path() []string {
	var path []string
	for entry := e; entry != nil; entry = entry.parent {
		path = append(path, entry.name)
	}
	slices.Reverse(path)
	return path
}

// renderPass owns the deferred renders of one root render. Renders register
// entries while they run; only run consumes them.
type renderPass struct {
	engine *Engine
	goCtx  context.Context

	// parent is set for nested passes, which render quoted attribute
	// values holding template syntax.
	parent *renderPass

	entries map[string]*renderEntry
	all     []*renderEntry
	current *renderEntry

	// rendered lists the components rendered, in document order, and
	// active is the innermost pass currently running. Both are only used
	// on the root pass.
	rendered []Component
	active   *renderPass
}

func newRenderPass(ctx context.Context, engine *Engine, parent *renderPass) *renderPass {
	return &renderPass{
		engine:  engine,
		goCtx:   ctx,
		parent:  parent,
		entries: map[string]*renderEntry{},
	}
}

func (p *renderPass) root() *renderPass {
	pass := p
	for pass.parent != nil {
		pass = pass.parent
	}
	return pass
}

// activePass returns the innermost pass currently running in p's tree.
// Deferred renders always register there, even when the Context they were
// captured in belongs to an outer pass.
func (p *renderPass) activePass() *renderPass {
	root := p.root()
	if root.active != nil {
		return root.active
	}
	return root
}

// register stores a deferred render under a fresh ID.
func (p *renderPass) register(name string, parent *renderEntry, fn renderFunc) *renderEntry {
	id := newRenderID()
	for p.entries[id] != nil {
		id = newRenderID()
	}
	entry := &renderEntry{id: id, name: name, parent: parent, render: fn}
	p.entries[id] = entry
	p.all = append(p.all, entry)
	return entry
}

// onDone adds a hook to the entry currently rendering.
func (p *renderPass) onDone(fn func() error) {
	if p.current == nil {
		return
	}
	p.current.done = append(p.current.done, fn)
}

func (p *renderPass) close(entry *renderEntry) error {
	entry.closed = true
	var errs []error
	for _, hook := range entry.done {
		errs = append(errs, hook())
	}
	return errors.Join(errs...)
}

// abort runs the hooks of every entry that didn't finish and forgets every
// entry that wasn't rendered.
func (p *renderPass) abort() {
	for pos := len(p.all) - 1; pos >= 0; pos-- {
		entry := p.all[pos]
		if entry.closed {
			continue
		}
		if err := p.close(entry); err != nil {
			logger(p.goCtx).ErrorContext(p.goCtx, "error cleaning up aborted render", "render_id", entry.id, "component", entry.name, "error", err)
		}
	}
	clear(p.entries)
}

// run renders root and every render it defers, splicing each result in place
// of its placeholder. Renders are driven by an explicit stack rather than by
// recursion, so nesting depth doesn't grow the call stack.
func (p *renderPass) run(name string, root renderFunc) (result string, err error) {
	type item struct {
		text   string
		id     string
		attrs  []string
		closes *renderEntry
	}

	rootEntry := p.register(name, nil, root)
	defer func() {
		if err != nil {
			p.abort()
		}
	}()

	var out strings.Builder
	stack := []item{{id: rootEntry.id}}
	for len(stack) > 0 {
		if err := p.goCtx.Err(); err != nil {
			return "", fmt.Errorf("render of %s stopped: %w", name, err)
		}
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.closes != nil {
			if err := p.close(cur.closes); err != nil {
				return "", p.wrap(cur.closes, err)
			}
			continue
		}
		out.WriteString(cur.text)
		if cur.id == "" {
			continue
		}
		entry, ok := p.entries[cur.id]
		if !ok {
			return "", &SchedulerInvariantError{RenderID: cur.id, Msg: "found a placeholder with no registered renderer"}
		}
		delete(p.entries, cur.id)

		p.current = entry
		html, childAttrs, err := entry.render(entry.id, cur.attrs)
		p.current = nil
		if err != nil {
			return "", p.wrap(entry, err)
		}

		stack = append(stack, item{closes: entry})
		segments := splitPlaceholders(html)
		for pos := len(segments) - 1; pos >= 0; pos-- {
			seg := segments[pos]
			stack = append(stack, item{text: seg.text, id: seg.id, attrs: childAttrs[seg.id]})
		}
	}
	if len(p.entries) > 0 {
		leftover := make([]string, 0, len(p.entries))
		for id, entry := range p.entries {
			leftover = append(leftover, fmt.Sprintf("%s (%s)", id, entry.name))
		}
		slices.Sort(leftover)
		return "", &SchedulerInvariantError{Msg: "renderers were registered but never rendered: " + strings.Join(leftover, ", ")}
	}
	return out.String(), nil
}

// wrap attaches the path of components that led to entry. Errors from nested
// passes already carry a path, which is appended to entry's.
func (p *renderPass) wrap(entry *renderEntry, err error) error {
	path := entry.path()
	if p.parent != nil {
		// the enclosing pass adds its own path
		path = path[1:]
	}
	var renderErr *RenderError
	if errors.As(err, &renderErr) {
		return &RenderError{Path: append(path, renderErr.Path...), Err: renderErr.Err}
	}
	if len(path) == 0 {
		return err
	}
	return &RenderError{Path: path, Err: err}
}
