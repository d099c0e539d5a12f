package stencil

import (
	"context"
	"html/template"
	"reflect"
	"strconv"
	"strings"
)

// Context is the data a template renders against. It's a persistent stack of
// layers: Push returns a new Context and never modifies the receiver, so a
// Context can be captured by a deferred renderer and used after the code that
// built it has moved on.
type Context struct {
	parent *Context
	vars   map[string]any
	slots  *SlotBinding

	// shared by every layer of one render
	goCtx  context.Context
	engine *Engine
	pass   *renderPass
}

// NewContext returns a root Context holding vars.
func NewContext(vars map[string]any) *Context {
	return &Context{vars: vars, goCtx: context.Background()}
}

// Push returns a Context with vars layered on top of c.
func (c *Context) Push(vars map[string]any) *Context {
	return &Context{
		parent: c,
		vars:   vars,
		goCtx:  c.goCtx,
		engine: c.engine,
		pass:   c.pass,
	}
}

func (c *Context) withSlots(binding *SlotBinding) *Context {
	next := c.Push(nil)
	next.slots = binding
	return next
}

// isolated returns a root Context that shares c's render state but none of
// its variables. Provide scopes visible from c stay visible.
func (c *Context) isolated(vars map[string]any) *Context {
	root := map[string]any{}
	for _, key := range c.keysWithPrefix(provideKeyPrefix) {
		root[key], _ = c.Get(key)
	}
	for k, v := range vars {
		root[k] = v
	}
	return &Context{vars: root, goCtx: c.goCtx, engine: c.engine, pass: c.pass}
}

// Get returns the value of name in the innermost layer that defines it.
func (c *Context) Get(name string) (any, bool) {
	for layer := c; layer != nil; layer = layer.parent {
		if val, ok := layer.vars[name]; ok {
			return val, true
		}
	}
	return nil, false
}

// Flatten merges every layer into one map, inner layers winning.
func (c *Context) Flatten() map[string]any {
	var layers []*Context
	for layer := c; layer != nil; layer = layer.parent {
		layers = append(layers, layer)
	}
	result := map[string]any{}
	for pos := len(layers) - 1; pos >= 0; pos-- {
		for k, v := range layers[pos].vars {
			result[k] = v
		}
	}
	return result
}

// keysWithPrefix returns the visible keys starting with prefix, innermost
// first, without duplicates.
func (c *Context) keysWithPrefix(prefix string) []string {
	var keys []string
	seen := map[string]struct{}{}
	for layer := c; layer != nil; layer = layer.parent {
		for key := range layer.vars {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

// lookupSlot finds the fill bound to the named slot of tmpl in the innermost
// binding made for tmpl. Outer renders of the same template never leak their
// fills into an inner one.
func (c *Context) lookupSlot(name string, tmpl *Template) (*boundFill, bool) {
	for layer := c; layer != nil; layer = layer.parent {
		if layer.slots == nil || layer.slots.tmpl != tmpl {
			continue
		}
		return layer.slots.get(name, tmpl)
	}
	return nil, false
}

// Resolve looks up a dotted path like "user.address.0.city". Each segment
// after the first indexes a map, a struct field or method, or a slice.
func (c *Context) Resolve(path string) (any, bool) {
	segments := strings.Split(path, ".")
	val, ok := c.Get(segments[0])
	if !ok {
		return nil, false
	}
	for _, segment := range segments[1:] {
		val, ok = lookupMember(val, segment)
		if !ok {
			return nil, false
		}
	}
	return val, true
}

func lookupMember(val any, name string) (any, bool) {
	switch v := val.(type) {
	case nil:
		return nil, false
	case map[string]any:
		res, ok := v[name]
		return res, ok
	case SlotRef:
		switch name {
		case "Name", "name":
			return v.Name, true
		case "Default", "default":
			return v.Default, true
		}
		return nil, false
	}

	rv := reflect.ValueOf(val)
	if method := rv.MethodByName(name); method.IsValid() && method.Type().NumIn() == 0 && method.Type().NumOut() >= 1 {
		return method.Call(nil)[0].Interface(), true
	}
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		res := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !res.IsValid() {
			return nil, false
		}
		return res.Interface(), true
	case reflect.Struct:
		field := rv.FieldByName(name)
		if !field.IsValid() || !field.CanInterface() {
			return nil, false
		}
		return field.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(name)
		if err != nil {
			return nil, false
		}
		if idx < 0 {
			idx += rv.Len()
		}
		if idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	}
	return nil, false
}

func (c *Context) with(ctx context.Context) *Context {
	next := c.Push(nil)
	next.goCtx = ctx
	return next
}

func (c *Context) withPass(pass *renderPass) *Context {
	next := c.Push(nil)
	next.pass = pass
	return next
}

func (c *Context) filter(name string) (FilterFunc, bool) {
	if c.engine != nil {
		return c.engine.filter(name)
	}
	fn, ok := defaultFilters[name]
	return fn, ok
}

func (c *Context) translate(text string) string {
	if c.engine == nil {
		return text
	}
	return c.engine.translator.Translate(text)
}

// renderString renders nodes compiled from a quoted attribute value. The
// components inside them are rendered completely before the value is used.
func (c *Context) renderString(nodes NodeList) (any, error) {
	if c.engine == nil || c.pass == nil {
		out, err := nodes.Render(c)
		if err != nil {
			return nil, err
		}
		return template.HTML(out), nil // #nosec G203
	}
	html, err := c.engine.renderNested(c, nodes)
	if err != nil {
		return nil, err
	}
	return html, nil
}
