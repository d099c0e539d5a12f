package stencil

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/language"
)

// Engine compiles and renders templates that call components. It owns the
// component Registry, the filters, the translations and the provide scopes
// its renders use. Every Engine is independent; programs that want a single
// default should keep one around and pass it where it's needed.
//
// An Engine can safely be used by multiple goroutines.
type Engine struct {
	site  Site
	cache TemplateCacher
	cfg   Config
	lang  language.Tag

	components *Registry
	provides   *ProvideRegistry
	translator *Translator
	telemetry  telemetry

	filtersMu sync.RWMutex
	filters   map[string]FilterFunc

	closersMu sync.Mutex
	closers   []func() error
}

// NewEngine returns an Engine loading component templates from site. If site
// implements TemplateCacher, compiled templates are cached there; otherwise
// the Engine keeps its own cache.
func NewEngine(site Site, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lang := cfg.language()
	engine := &Engine{
		site:       site,
		cfg:        cfg,
		lang:       lang,
		components: NewRegistry(),
		provides:   NewProvideRegistry(),
		translator: NewTranslator(lang),
		telemetry:  newTelemetry(),
		filters:    builtinFilters(lang),
	}
	if cacher, ok := site.(TemplateCacher); ok {
		engine.cache = cacher
	} else {
		engine.cache = NewCachedSite(nil)
	}
	return engine, nil
}

// NewEngineFromConfig loads the config file at path and returns an Engine
// serving templates from its template_root, relative to the config file.
// With reload set, cached templates are dropped when their files change,
// until ctx is canceled or the Engine is closed.
func NewEngineFromConfig(ctx context.Context, path string) (*Engine, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	root := cfg.TemplateRoot
	if !filepath.IsAbs(root) {
		root = filepath.Join(filepath.Dir(path), root)
	}
	site := NewCachedSite(os.DirFS(root))
	engine, err := NewEngine(site, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Reload {
		stop, err := site.Watch(ctx, root)
		if err != nil {
			return nil, err
		}
		engine.onClose(stop)
	}
	return engine, nil
}

// Config returns the Engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Components returns the Engine's component Registry.
func (e *Engine) Components() *Registry {
	return e.components
}

// Provides returns the registry holding the data of `{% provide %}` blocks
// while components rendered inside them are pending.
func (e *Engine) Provides() *ProvideRegistry {
	return e.provides
}

// Translator returns the Translator used by `_("...")` values and the
// `trans` tag.
func (e *Engine) Translator() *Translator {
	return e.translator
}

// Register makes comp available to `{% component %}` tags under name.
func (e *Engine) Register(ctx context.Context, name string, comp Component) error {
	return e.components.Register(ctx, name, comp)
}

// AddFilter makes fn available as a filter under name, replacing any filter
// already using that name. Templates compiled before the call can't use it.
func (e *Engine) AddFilter(name string, fn FilterFunc) {
	e.filtersMu.Lock()
	defer e.filtersMu.Unlock()
	e.filters[name] = fn
}

func (e *Engine) filter(name string) (FilterFunc, bool) {
	e.filtersMu.RLock()
	defer e.filtersMu.RUnlock()
	fn, ok := e.filters[name]
	return fn, ok
}

func (e *Engine) hasFilter(name string) bool {
	_, ok := e.filter(name)
	return ok
}

// Clear unregisters every component, drops every provide scope and, when the
// Engine keeps its own template cache or uses a CachedSite, every cached
// template.
func (e *Engine) Clear() {
	e.components.Clear()
	e.provides.Clear()
	if site, ok := e.cache.(*CachedSite); ok {
		site.InvalidateAll()
	}
}

// Close stops any file watchers the Engine started.
func (e *Engine) Close() error {
	e.closersMu.Lock()
	closers := e.closers
	e.closers = nil
	e.closersMu.Unlock()
	var errs []error
	for _, closer := range closers {
		errs = append(errs, closer())
	}
	return errors.Join(errs...)
}

func (e *Engine) onClose(fn func() error) {
	e.closersMu.Lock()
	defer e.closersMu.Unlock()
	e.closers = append(e.closers, fn)
}

// loadTemplate returns the compiled template at path in the Site's
// TemplateDir.
func (e *Engine) loadTemplate(ctx context.Context, path string) (*Template, error) {
	key := templatePathKey(path)
	if cached := e.cache.GetCachedTemplate(ctx, key); cached != nil {
		return cached, nil
	}
	if e.site == nil {
		return nil, fmt.Errorf("error loading %q: %w", path, ErrTemplateNotFound)
	}
	src, err := fs.ReadFile(e.site.TemplateDir(ctx), path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading %q: %w", path, ErrTemplateNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading %q: %w", path, err)
	}
	tmpl, err := Compile(path, string(src), e.hasFilter)
	if err != nil {
		return nil, fmt.Errorf("error compiling %q: %w", path, err)
	}
	e.cache.SetCachedTemplate(ctx, key, tmpl)
	return tmpl, nil
}

// inlineTemplate returns src compiled, caching it by name and content.
func (e *Engine) inlineTemplate(ctx context.Context, name, src string) (*Template, error) {
	key := "inline:" + name + ":" + strconv.FormatUint(xxhash.Sum64String(src), 16)
	if cached := e.cache.GetCachedTemplate(ctx, key); cached != nil {
		return cached, nil
	}
	tmpl, err := Compile(name, src, e.hasFilter)
	if err != nil {
		return nil, fmt.Errorf("error compiling %s: %w", name, err)
	}
	e.cache.SetCachedTemplate(ctx, key, tmpl)
	return tmpl, nil
}

func (e *Engine) componentTemplate(ctx context.Context, name string, comp Component) (*Template, error) {
	if inline, ok := comp.(InlineTemplater); ok {
		if src := inline.TemplateString(ctx); src != "" {
			return e.inlineTemplate(ctx, "component "+name, src)
		}
	}
	path := comp.Template(ctx)
	if path == "" {
		return nil, fmt.Errorf("component %q: %w", name, ErrNoTemplatePath)
	}
	return e.loadTemplate(ctx, path)
}

// RenderTemplate renders the template at path in the Site's TemplateDir.
func (e *Engine) RenderTemplate(ctx context.Context, path string, data map[string]any) (string, error) {
	tmpl, err := e.loadTemplate(ctx, path)
	if err != nil {
		return "", err
	}
	return e.renderRoot(ctx, tmpl.Name, data, nil, tmpl.Render)
}

// RenderString compiles and renders src.
func (e *Engine) RenderString(ctx context.Context, src string, data map[string]any) (string, error) {
	tmpl, err := e.inlineTemplate(ctx, "string", src)
	if err != nil {
		return "", err
	}
	return e.renderRoot(ctx, tmpl.Name, data, nil, tmpl.Render)
}

// Call holds the arguments and fills of a component rendered with
// RenderComponent.
type Call struct {
	Args   []any
	Kwargs map[string]any

	// Fills maps slot names to template source rendered into them. Body
	// is template source for the default slot. A Call can't use both.
	Fills map[string]string
	Body  string
}

// RenderComponent renders the component registered under name as if it
// were called from a template with no variables.
func (e *Engine) RenderComponent(ctx context.Context, name string, call Call) (string, error) {
	if call.Body != "" && len(call.Fills) > 0 {
		return "", mixedFillsError(name)
	}
	params := make([]TagParam, 0, len(call.Args)+len(call.Kwargs))
	for _, arg := range call.Args {
		params = append(params, TagParam{Value: arg})
	}
	for _, key := range slices.Sorted(maps.Keys(call.Kwargs)) {
		params = append(params, TagParam{Key: key, Value: call.Kwargs[key]})
	}
	fillTemplates := map[string]*Template{}
	for _, slot := range slices.Sorted(maps.Keys(call.Fills)) {
		tmpl, err := e.inlineTemplate(ctx, "fill "+slot, call.Fills[slot])
		if err != nil {
			return "", err
		}
		fillTemplates[slot] = tmpl
	}
	var body *Template
	if call.Body != "" {
		tmpl, err := e.inlineTemplate(ctx, "component body", call.Body)
		if err != nil {
			return "", err
		}
		body = tmpl
	}
	return e.renderRoot(ctx, "root", nil, nil, func(root *Context) (string, error) {
		cc := &componentCall{
			name:   name,
			caller: root,
			params: func(*Context) ([]TagParam, error) { return params, nil },
			fills: func(caller *Context) ([]fillContent, error) {
				var fills []fillContent
				if body != nil {
					fills = append(fills, fillContent{nodes: body.Nodes, ctx: caller})
				}
				for _, slot := range slices.Sorted(maps.Keys(fillTemplates)) {
					fills = append(fills, fillContent{name: slot, nodes: fillTemplates[slot].Nodes, ctx: caller})
				}
				return fills, nil
			},
		}
		id, err := e.deferCall(root, cc)
		if err != nil {
			return "", err
		}
		return placeholder(id), nil
	})
}

// renderRoot runs a root render pass: body renders against a fresh Context
// holding data, then every component it deferred is rendered in turn, then
// the CSS and JS of every rendered component are injected. seed lists
// components whose resources are included even though they weren't
// rendered through a tag.
func (e *Engine) renderRoot(ctx context.Context, name string, data map[string]any, seed []Component, body func(*Context) (string, error)) (string, error) {
	ctx, span := e.telemetry.start(ctx, "stencil.render", attribute.String("stencil.template", name))
	if data == nil {
		data = map[string]any{}
	}
	pass := newRenderPass(ctx, e, nil)
	pass.rendered = append(pass.rendered, seed...)
	root := &Context{vars: data, goCtx: ctx, engine: e, pass: pass}

	logger(ctx).DebugContext(ctx, "starting render pass", "template", name)
	html, err := pass.run(name, func(_ string, _ []string) (string, map[string][]string, error) {
		out, err := body(root)
		return out, nil, err
	})
	if err == nil {
		html, err = e.injectDependencies(ctx, html, data, pass.rendered)
	}
	endSpan(span, err)
	if err != nil {
		logger(ctx).ErrorContext(ctx, "error rendering template", "template", name, "error", err)
		return "", err
	}
	logger(ctx).DebugContext(ctx, "finished render pass", "template", name, "components", len(pass.rendered))
	return html, nil
}

// renderNested renders nodes in a pass of their own, nested in the pass c
// belongs to. The components rendered are reported to the root pass, which
// injects their resources once it's done.
func (e *Engine) renderNested(c *Context, nodes NodeList) (template.HTML, error) {
	root := c.pass.root()
	outer := c.pass.activePass()
	pass := newRenderPass(c.goCtx, e, outer)
	root.active = pass
	defer func() {
		root.active = outer
	}()
	inner := c.withPass(pass)
	html, err := pass.run("nested", func(_ string, _ []string) (string, map[string][]string, error) {
		out, err := nodes.Render(inner)
		return out, nil, err
	})
	if err != nil {
		return "", err
	}
	return template.HTML(html), nil // #nosec G203
}

// componentCall is a component call waiting to be rendered. params and
// fills are evaluated against the caller's Context when the render runs.
type componentCall struct {
	name   string
	comp   Component
	caller *Context
	only   bool
	params func(caller *Context) ([]TagParam, error)
	fills  func(caller *Context) ([]fillContent, error)
}

func (c *Context) deferComponent(n *ComponentNode, out *strings.Builder) error {
	if c.engine == nil || c.pass == nil {
		return fmt.Errorf("component %s: %w", n.Name, ErrNoEngine)
	}
	nameVal, err := resolveStruct(c, n.Name)
	if err != nil {
		return err
	}
	name := stringify(nameVal)
	if name == "" {
		return &ParseError{Msg: fmt.Sprintf("component name %s is empty", n.Name), Template: n.Template, Line: n.Line}
	}
	id, err := c.engine.deferCall(c, &componentCall{
		name:   name,
		caller: c,
		only:   n.Only,
		params: func(caller *Context) ([]TagParam, error) {
			return ResolveAttrs(caller, n.Attrs)
		},
		fills: func(caller *Context) ([]fillContent, error) {
			return collectFills(caller, n)
		},
	})
	if err != nil {
		return err
	}
	out.WriteString(placeholder(id))
	return nil
}

// deferCall registers call with the innermost running pass and returns the
// render ID its placeholder needs. The call keeps every provide scope
// visible to the caller alive until it's finished.
func (e *Engine) deferCall(c *Context, call *componentCall) (string, error) {
	comp, err := e.components.Get(call.name)
	if err != nil {
		return "", err
	}
	call.comp = comp
	pass := c.pass.activePass()
	entry := pass.register(call.name, pass.current, func(id string, attrs []string) (string, map[string][]string, error) {
		return e.renderComponent(pass, call, id, attrs)
	})
	for _, token := range c.provideTokens() {
		if !e.provides.Subscribe(token, entry.id) {
			continue
		}
		entry.done = append(entry.done, func() error {
			e.provides.Unsubscribe(c.goCtx, token, entry.id)
			return nil
		})
	}
	return entry.id, nil
}

func (e *Engine) renderComponent(pass *renderPass, call *componentCall, id string, attrs []string) (string, map[string][]string, error) {
	ctx, span := e.telemetry.start(call.caller.goCtx, "stencil.component",
		attribute.String("stencil.component", call.name),
		attribute.String("stencil.render_id", id),
	)
	html, childAttrs, err := e.renderComponentInner(ctx, pass, call, id, attrs)
	endSpan(span, err)
	return html, childAttrs, err
}

func (e *Engine) renderComponentInner(ctx context.Context, pass *renderPass, call *componentCall, id string, attrs []string) (string, map[string][]string, error) {
	caller := call.caller.with(ctx).withPass(pass)

	params, err := call.params(caller)
	if err != nil {
		return "", nil, err
	}
	split, err := splitParams(params, e.cfg.MergeDuplicateKwargs)
	if err != nil {
		return "", nil, tagBindingError(call.name, err)
	}
	inputs := Inputs{
		Name:     call.name,
		RenderID: id,
		Args:     split.args,
		Kwargs:   split.kwargs,
		Extra:    split.extra,
		inject: func(name string) (map[string]any, bool) {
			token, _ := caller.Get(provideKeyPrefix + name)
			tok, ok := token.(string)
			if !ok {
				return nil, false
			}
			return e.provides.Data(tok)
		},
	}
	if sig, ok := call.comp.(SignatureProvider); ok {
		bound, err := sig.Signature().Bind(call.name, split.args, split.kwargs)
		if err != nil {
			return "", nil, err
		}
		inputs.Args = nil
		inputs.Kwargs = bound
	}

	tmpl, err := e.componentTemplate(ctx, call.name, call.comp)
	if err != nil {
		return "", nil, err
	}
	fills, err := call.fills(caller)
	if err != nil {
		return "", nil, err
	}
	binding, err := bindSlots(call.name, tmpl, fills)
	if err != nil {
		return "", nil, err
	}
	inputs.filled = map[string]bool{}
	isFilled := map[string]any{}
	for _, slot := range tmpl.Slots() {
		filled := binding.Filled(slot.Name, tmpl)
		inputs.filled[slot.Name] = filled
		isFilled[slot.Name] = filled
	}

	var data map[string]any
	if getter, ok := call.comp.(ContextDataGetter); ok {
		data, err = getter.GetContextData(ctx, inputs)
		if err != nil {
			return "", nil, fmt.Errorf("error getting context data: %w", err)
		}
	} else {
		data = inputs.Kwargs
	}
	vars := maps.Clone(data)
	if vars == nil {
		vars = map[string]any{}
	}
	vars["component_vars"] = map[string]any{"is_filled": isFilled}

	base := caller
	if call.only || e.cfg.ContextBehavior == ContextIsolated {
		base = caller.isolated(nil)
	}
	rendering := base.Push(vars).withSlots(binding)

	root := pass.root()
	root.rendered = append(root.rendered, call.comp)
	html, err := tmpl.Render(rendering)
	if err != nil {
		return "", nil, err
	}
	if err := binding.consume(); err != nil {
		return "", nil, err
	}
	pass.onDone(binding.release)

	var childAttrs map[string][]string
	if e.cfg.TagRootElements {
		html, childAttrs, err = tagRootElements(html, append([]string{"data-stencil-id-" + id}, attrs...))
		if err != nil {
			return "", nil, err
		}
	}
	e.telemetry.componentRendered(ctx, call.name)
	return html, childAttrs, nil
}

// tagBindingError names the component in binding errors raised before its
// Signature is consulted.
func tagBindingError(name string, err error) error {
	var bindErr *BindingError
	if errors.As(err, &bindErr) && bindErr.Tag == "" {
		bindErr.Tag = name
	}
	return err
}

// collectFills gathers the fills of a component call. Fills inside if blocks
// count only when their branch is chosen.
func collectFills(c *Context, n *ComponentNode) ([]fillContent, error) {
	if !n.HasFills {
		if isBlankBody(n.Body) {
			return nil, nil
		}
		return []fillContent{{nodes: n.Body, ctx: c}}, nil
	}
	var fills []fillContent
	pending := slices.Clone(n.Body)
	for len(pending) > 0 {
		node := pending[0]
		pending = pending[1:]
		switch node := node.(type) {
		case *FillNode:
			nameVal, err := resolveStruct(c, node.Name)
			if err != nil {
				return nil, err
			}
			name := stringify(nameVal)
			if name == "" {
				return nil, &SlotError{Slot: node.Name.String(), Msg: "fill name resolved to an empty string"}
			}
			fills = append(fills, fillContent{name: name, nodes: node.Body, ctx: c, alias: node.Alias})
		case *IfNode:
			body, err := node.choose(c)
			if err != nil {
				return nil, err
			}
			pending = append(slices.Clone(body), pending...)
		}
	}
	return fills, nil
}

func isBlankBody(nodes NodeList) bool {
	for _, node := range nodes {
		switch n := node.(type) {
		case *CommentNode:
		case *TextNode:
			if !n.isBlank() {
				return false
			}
		default:
			return false
		}
	}
	return true
}
