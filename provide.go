package stencil

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// provideKeyPrefix prefixes the Context keys that point at provide scopes.
// The rest of the key is the name the data was provided under.
const provideKeyPrefix = "_stencil_provide:"

type provideScope struct {
	name        string
	data        map[string]any
	subscribers map[string]struct{}
	exited      bool
}

// ProvideRegistry holds the data of `{% provide %}` scopes outside of the
// render Context, so deferred component renders can still reach it after the
// scope's body has finished rendering. A scope's data is dropped once its body
// has finished and no component rendered inside it is still pending.
//
// It can safely be used by multiple goroutines.
type ProvideRegistry struct {
	mu     sync.Mutex
	scopes map[string]*provideScope
}

// NewProvideRegistry returns an empty ProvideRegistry.
func NewProvideRegistry() *ProvideRegistry {
	return &ProvideRegistry{scopes: map[string]*provideScope{}}
}

// EnterScope stores data and returns the token that identifies it.
func (r *ProvideRegistry) EnterScope(ctx context.Context, name string, data map[string]any) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	token := newRenderID()
	for r.scopes[token] != nil {
		token = newRenderID()
	}
	r.scopes[token] = &provideScope{
		name:        name,
		data:        data,
		subscribers: map[string]struct{}{},
	}
	logger(ctx).DebugContext(ctx, "entered provide scope", "name", name, "token", token)
	return token
}

// Lookup returns the value of key in the scope identified by token, or def.
func (r *ProvideRegistry) Lookup(token, key string, def any) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	scope, ok := r.scopes[token]
	if !ok {
		return def
	}
	val, ok := scope.data[key]
	if !ok {
		return def
	}
	return val
}

// Data returns all the data of the scope identified by token.
func (r *ProvideRegistry) Data(token string) (map[string]any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scope, ok := r.scopes[token]
	if !ok {
		return nil, false
	}
	return scope.data, true
}

// Subscribe keeps the scope's data alive until subscriber unsubscribes. It
// returns false if the scope doesn't exist.
func (r *ProvideRegistry) Subscribe(token, subscriber string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	scope, ok := r.scopes[token]
	if !ok {
		return false
	}
	scope.subscribers[subscriber] = struct{}{}
	return true
}

// Unsubscribe releases subscriber's hold on the scope, dropping the scope if
// it was the last one and the scope's body has finished.
func (r *ProvideRegistry) Unsubscribe(ctx context.Context, token, subscriber string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scope, ok := r.scopes[token]
	if !ok {
		return
	}
	delete(scope.subscribers, subscriber)
	r.evictIfUnused(ctx, token, scope)
}

// ExitScope marks the scope's body as finished, dropping the scope if nothing
// is subscribed to it.
func (r *ProvideRegistry) ExitScope(ctx context.Context, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scope, ok := r.scopes[token]
	if !ok {
		return
	}
	scope.exited = true
	r.evictIfUnused(ctx, token, scope)
}

// Rollback drops the scope regardless of its subscribers. It's used when the
// scope's body fails to render.
func (r *ProvideRegistry) Rollback(ctx context.Context, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scopes[token]; !ok {
		return
	}
	delete(r.scopes, token)
	logger(ctx).DebugContext(ctx, "rolled back provide scope", "token", token)
}

// must be called with r.mu held
func (r *ProvideRegistry) evictIfUnused(ctx context.Context, token string, scope *provideScope) {
	if !scope.exited || len(scope.subscribers) > 0 {
		return
	}
	delete(r.scopes, token)
	logger(ctx).DebugContext(ctx, "evicted provide scope", "name", scope.name, "token", token)
}

// Len returns the number of live scopes.
func (r *ProvideRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scopes)
}

// Clear drops every scope.
func (r *ProvideRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.scopes)
}

// provideTokens returns the tokens of the provide scopes visible from c.
func (c *Context) provideTokens() []string {
	keys := c.keysWithPrefix(provideKeyPrefix)
	tokens := make([]string, 0, len(keys))
	for _, key := range keys {
		val, _ := c.Get(key)
		if token, ok := val.(string); ok {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func (c *Context) provide(n *ProvideNode, out *strings.Builder) error {
	if c.engine == nil {
		return fmt.Errorf("provide %q: %w", n.Name, ErrNoEngine)
	}
	params, err := ResolveAttrs(c, n.Attrs)
	if err != nil {
		return fmt.Errorf("provide %q: %w", n.Name, err)
	}
	data := make(map[string]any, len(params))
	for _, param := range params {
		if param.Key == "" {
			return &BindingError{Tag: "provide " + n.Name, Msg: fmt.Sprintf("only takes keyword arguments, got %v", param.Value)}
		}
		data[param.Key] = param.Value
	}
	registry := c.engine.provides
	token := registry.EnterScope(c.goCtx, n.Name, data)
	inner := c.Push(map[string]any{provideKeyPrefix + n.Name: token})
	if err := n.Body.renderTo(inner, out); err != nil {
		registry.Rollback(c.goCtx, token)
		return err
	}
	registry.ExitScope(c.goCtx, token)
	return nil
}
