package stencil

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// Component is an interface for a UI component that can be rendered to HTML
// from a `{% component %}` tag.
type Component interface {
	// Template returns the path, within the Site's TemplateDir, of the
	// template the Component renders. Components implementing
	// InlineTemplater may return an empty string.
	Template(context.Context) string
}

// InlineTemplater is an interface that Components can fulfill to supply
// their template source directly instead of through the Site's fs.FS. When
// TemplateString returns a non-empty string, it's used instead of Template.
type InlineTemplater interface {
	TemplateString(context.Context) string
}

// ContextDataGetter is an interface that Components can fulfill to build the
// data their template renders with from the arguments of the tag that called
// them. Components that don't implement it render with their keyword
// arguments as data.
type ContextDataGetter interface {
	GetContextData(context.Context, Inputs) (map[string]any, error)
}

// SignatureProvider is an interface that Components can fulfill to declare
// the parameters they accept. The arguments of every call are bound against
// the Signature before GetContextData is called, and calls that don't fit
// fail with a *BindingError.
type SignatureProvider interface {
	Signature() Signature
}

// Inline is a Component whose template is the string itself.
type Inline string

// Template implements Component. Inline components have no template path.
func (Inline) Template(_ context.Context) string {
	return ""
}

// TemplateString implements InlineTemplater.
func (i Inline) TemplateString(_ context.Context) string {
	return string(i)
}

// Inputs are the arguments a component was called with.
type Inputs struct {
	// Name is the name the component was called by.
	Name string

	// RenderID identifies this render of the component.
	RenderID string

	// Args holds the positional arguments. Kwargs holds the keyword
	// arguments; when the component has a Signature, Kwargs holds every
	// bound parameter, defaults included, and Args is empty.
	Args   []any
	Kwargs map[string]any

	// Extra holds keyword arguments whose keys aren't identifiers, like
	// `data-id` or `@click`.
	Extra map[string]any

	filled map[string]bool
	inject func(name string) (map[string]any, bool)
}

// Inject returns the data of the innermost `{% provide %}` block with the
// passed name that encloses the component.
func (i Inputs) Inject(name string) (map[string]any, bool) {
	if i.inject == nil {
		return nil, false
	}
	return i.inject(name)
}

// IsFilled reports whether the caller passed a fill for the named slot.
func (i Inputs) IsFilled(slot string) bool {
	return i.filled[slot]
}

// Registry maps component names to Components. The zero value isn't usable;
// use NewRegistry.
//
// It can safely be used by multiple goroutines.
type Registry struct {
	mu         sync.RWMutex
	components map[string]Component
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{components: map[string]Component{}}
}

// Register makes comp available under name. Registering a name again is only
// allowed with the same definition: the same type, rendering the same
// template.
func (r *Registry) Register(ctx context.Context, name string, comp Component) error {
	if name == "" {
		return &RegistrationError{Name: name, Msg: "component names can't be empty"}
	}
	if comp == nil {
		return &RegistrationError{Name: name, Msg: "can't register a nil component"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.components[name]; ok {
		if sameDefinition(ctx, existing, comp) {
			logger(ctx).DebugContext(ctx, "component registered again with the same definition", "component", name)
			return nil
		}
		return &RegistrationError{Name: name, Msg: fmt.Sprintf("already registered as %T, can't register %T", existing, comp)}
	}
	r.components[name] = comp
	logger(ctx).DebugContext(ctx, "registered component", "component", name, "type", fmt.Sprintf("%T", comp))
	return nil
}

func sameDefinition(ctx context.Context, a, b Component) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	if a.Template(ctx) != b.Template(ctx) {
		return false
	}
	aInline, aok := a.(InlineTemplater)
	bInline, bok := b.(InlineTemplater)
	if aok && bok {
		return aInline.TemplateString(ctx) == bInline.TemplateString(ctx)
	}
	return aok == bok
}

// Unregister removes the component registered under name, if any.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.components, name)
}

// Get returns the component registered under name.
func (r *Registry) Get(name string) (Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	comp, ok := r.components[name]
	if !ok {
		return nil, &RegistrationError{Name: name, Msg: "is not registered"}
	}
	return comp, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Clear unregisters every component.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.components)
}
