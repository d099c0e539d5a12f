package stencil

import (
	"context"
	"io/fs"
	"strings"
	"sync"
)

// Site is an interface for the singleton that holds the templates
// Components render. Consumers should use it to store any clients or
// cross-request state they need.
//
// A Site needs to be able to surface the templates it relies on as an fs.FS.
type Site interface {
	// TemplateDir returns an fs.FS containing all the templates needed to
	// render every Component on the Site.
	//
	// The path to templates within the fs.FS should match the output of
	// Template for Components.
	TemplateDir(ctx context.Context) fs.FS
}

// TemplateCacher is an optional interface for Sites. Those fulfilling it can
// cache compiled templates, to save on the overhead of compiling a template
// every time it's rendered. Keys start with "path:" for templates loaded
// from the TemplateDir and "inline:" for inline template sources.
type TemplateCacher interface {
	// GetCachedTemplate returns the *Template specified by the passed
	// key. It should return nil if the template hasn't been cached yet.
	GetCachedTemplate(ctx context.Context, key string) *Template

	// SetCachedTemplate stores the passed *Template under the passed
	// key, for later retrieval with GetCachedTemplate.
	//
	// Any errors encountered should be logged, but as this is a
	// best-effort operation, will not be surfaced outside the function.
	SetCachedTemplate(ctx context.Context, key string, tmpl *Template)
}

// ServerErrorPager defines an interface that Sites can optionally implement.
// If a Site implements ServerErrorPager and Render encounters an error,
// the output of ServerErrorPage will be rendered.
type ServerErrorPager interface {
	ServerErrorPage(ctx context.Context) Page
}

var _ Site = &CachedSite{}
var _ TemplateCacher = &CachedSite{}

// CachedSite is an implementation of the Site interface that can be embedded
// in other Site implementations. It fulfills the Site interface and the
// TemplateCacher interface, caching templates in memory and exposing the
// template fs.FS passed to it in NewCachedSite. A CachedSite must be
// instantiated through NewCachedSite, its empty value is not usable.
type CachedSite struct {
	templateCache   map[string]*Template
	templateCacheMu sync.RWMutex

	// templateDir is where the Engine will look for the templates
	// required by Components.
	templateDir fs.FS
}

// NewCachedSite returns a CachedSite instance that is ready to be used.
func NewCachedSite(templates fs.FS) *CachedSite {
	return &CachedSite{
		templateCache: map[string]*Template{},
		templateDir:   templates,
	}
}

// GetCachedTemplate returns the cached template associated with the passed
// key, if one exists. If no template is cached for that key, it returns nil.
//
// It can safely be used by multiple goroutines.
func (s *CachedSite) GetCachedTemplate(_ context.Context, key string) *Template {
	s.templateCacheMu.RLock()
	defer s.templateCacheMu.RUnlock()
	return s.templateCache[key]
}

// SetCachedTemplate caches a template for the given key.
//
// It can safely be used by multiple goroutines.
func (s *CachedSite) SetCachedTemplate(_ context.Context, key string, tmpl *Template) {
	s.templateCacheMu.Lock()
	defer s.templateCacheMu.Unlock()
	s.templateCache[key] = tmpl
}

// InvalidatePath drops the cached template loaded from path.
//
// It can safely be used by multiple goroutines.
func (s *CachedSite) InvalidatePath(path string) {
	s.templateCacheMu.Lock()
	defer s.templateCacheMu.Unlock()
	delete(s.templateCache, templatePathKey(path))
}

// InvalidateAll drops every cached template.
//
// It can safely be used by multiple goroutines.
func (s *CachedSite) InvalidateAll() {
	s.templateCacheMu.Lock()
	defer s.templateCacheMu.Unlock()
	clear(s.templateCache)
}

// Len returns the number of cached templates.
func (s *CachedSite) Len() int {
	s.templateCacheMu.RLock()
	defer s.templateCacheMu.RUnlock()
	return len(s.templateCache)
}

// TemplateDir returns an fs.FS containing all the templates needed to render a
// Site's Components. In this case, we just pass back what the consumer passed
// in.
func (s *CachedSite) TemplateDir(_ context.Context) fs.FS {
	return s.templateDir
}

func templatePathKey(path string) string {
	return "path:" + strings.TrimPrefix(path, "./")
}
