package stencil

import (
	"html/template"
	"slices"
	"strings"
)

// Node is one element of a compiled template. The set of Node types is
// closed; every implementation lives in this package.
type Node interface {
	// Render writes the node's output for c to out.
	Render(c *Context, out *strings.Builder) error

	// ChildNodeLists returns the node lists nested inside the node, so
	// generic walkers can reach every node of a template.
	ChildNodeLists() []NodeList

	isNode()
}

// NodeList is a sequence of nodes rendered one after the other.
type NodeList []Node

// Render renders every node in the list and returns the concatenated output.
func (l NodeList) Render(c *Context) (string, error) {
	var out strings.Builder
	if err := l.renderTo(c, &out); err != nil {
		return "", err
	}
	return out.String(), nil
}

func (l NodeList) renderTo(c *Context, out *strings.Builder) error {
	for _, node := range l {
		if err := node.Render(c, out); err != nil {
			return err
		}
	}
	return nil
}

// Walk calls fn for every node in nodes and their children, in document
// order. When fn returns false, the node's children are skipped.
func Walk(nodes NodeList, fn func(Node) bool) {
	stack := slices.Clone(nodes)
	slices.Reverse(stack)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(node) {
			continue
		}
		children := node.ChildNodeLists()
		for pos := len(children) - 1; pos >= 0; pos-- {
			for child := len(children[pos]) - 1; child >= 0; child-- {
				stack = append(stack, children[pos][child])
			}
		}
	}
}

// TextNode is literal template text.
type TextNode struct {
	Text string
}

func (n *TextNode) Render(_ *Context, out *strings.Builder) error {
	out.WriteString(n.Text)
	return nil
}

func (*TextNode) ChildNodeLists() []NodeList { return nil }
func (*TextNode) isNode()                    {}

func (n *TextNode) isBlank() bool {
	return strings.TrimSpace(n.Text) == ""
}

// CommentNode is a `{# ... #}` comment. It renders nothing.
type CommentNode struct {
	Text string
}

func (*CommentNode) Render(_ *Context, _ *strings.Builder) error { return nil }
func (*CommentNode) ChildNodeLists() []NodeList                  { return nil }
func (*CommentNode) isNode()                                     {}

// VarNode prints a value, HTML-escaped unless it's a template.HTML.
type VarNode struct {
	Value *TagValueStruct
}

func (n *VarNode) Render(c *Context, out *strings.Builder) error {
	val, err := resolveStruct(c, n.Value)
	if err != nil {
		return err
	}
	html := escapeValue(val)
	if _, ok := val.(template.HTML); ok {
		html = c.escapeForeignPlaceholders(html)
	}
	out.WriteString(html)
	return nil
}

func (*VarNode) ChildNodeLists() []NodeList { return nil }
func (*VarNode) isNode()                    {}

// escapeForeignPlaceholders escapes the render placeholders in html whose
// render isn't pending in c's pass.
func (c *Context) escapeForeignPlaceholders(html string) string {
	if !strings.Contains(html, "data-stencil-render") {
		return html
	}
	return placeholderPattern.ReplaceAllStringFunc(html, func(marker string) string {
		if c.pendingRender(placeholderPattern.FindStringSubmatch(marker)[1]) {
			return marker
		}
		return "&lt;" + marker[1:]
	})
}

func (c *Context) pendingRender(id string) bool {
	if c.pass == nil {
		return false
	}
	for pass := c.pass.activePass(); pass != nil; pass = pass.parent {
		if _, ok := pass.entries[id]; ok {
			return true
		}
	}
	return false
}

func escapeValue(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case template.HTML:
		return string(v)
	}
	return template.HTMLEscapeString(stringify(val))
}

// SlotNode is a `{% slot %}` placeholder. Body is the content rendered when
// no fill is bound to the slot.
type SlotNode struct {
	Name      string
	Body      NodeList
	Required  bool
	IsDefault bool

	// owner is the template the slot was compiled in. Fills are bound to
	// a (name, template) pair.
	owner *Template
}

// SlotRef is what a fill's alias refers to: the slot being filled and its
// rendered default content.
type SlotRef struct {
	Name    string
	Default template.HTML
}

func (n *SlotNode) Render(c *Context, out *strings.Builder) error {
	fill, ok := c.lookupSlot(n.Name, n.owner)
	if !ok {
		return n.Body.renderTo(c, out)
	}
	fillCtx := fill.ctx
	if fill.alias != "" {
		def, err := c.renderString(n.Body)
		if err != nil {
			return err
		}
		html, _ := def.(template.HTML)
		fillCtx = fillCtx.Push(map[string]any{
			fill.alias: SlotRef{Name: n.Name, Default: html},
		})
	}
	return fill.nodes.renderTo(fillCtx, out)
}

func (n *SlotNode) ChildNodeLists() []NodeList { return []NodeList{n.Body} }
func (*SlotNode) isNode()                      {}

// FillNode is a `{% fill %}` block inside a component's body. It's never
// rendered in place; the component collects it and binds it to a slot.
type FillNode struct {
	Name  *TagValueStruct
	Alias string
	Body  NodeList
}

func (n *FillNode) Render(_ *Context, _ *strings.Builder) error {
	return &SlotError{Slot: n.Name.String(), Msg: "fill tag rendered outside of a component"}
}

func (n *FillNode) ChildNodeLists() []NodeList { return []NodeList{n.Body} }
func (*FillNode) isNode()                      {}

// ComponentNode is a `{% component %}` call.
type ComponentNode struct {
	Name  *TagValueStruct
	Attrs []TagAttr
	Only  bool
	Body  NodeList

	// HasFills is set when the body is made of fill tags rather than
	// implicit content for the default slot.
	HasFills bool

	Template string
	Line     int
}

func (n *ComponentNode) Render(c *Context, out *strings.Builder) error {
	return c.deferComponent(n, out)
}

func (n *ComponentNode) ChildNodeLists() []NodeList { return []NodeList{n.Body} }
func (*ComponentNode) isNode()                      {}

// ProvideNode is a `{% provide %}` block making data available to the
// components rendered inside it.
type ProvideNode struct {
	Name  string
	Attrs []TagAttr
	Body  NodeList
}

func (n *ProvideNode) Render(c *Context, out *strings.Builder) error {
	return c.provide(n, out)
}

func (n *ProvideNode) ChildNodeLists() []NodeList { return []NodeList{n.Body} }
func (*ProvideNode) isNode()                      {}

// IfBranch is one `if` or `elif` condition and its body.
type IfBranch struct {
	Cond *TagValueStruct
	Not  bool
	Body NodeList
}

// IfNode is an `{% if %}` block.
type IfNode struct {
	Branches []IfBranch
	Else     NodeList
}

func (n *IfNode) Render(c *Context, out *strings.Builder) error {
	body, err := n.choose(c)
	if err != nil {
		return err
	}
	return body.renderTo(c, out)
}

// choose returns the body of the first branch whose condition holds.
func (n *IfNode) choose(c *Context) (NodeList, error) {
	for _, branch := range n.Branches {
		val, err := resolveStruct(c, branch.Cond)
		if err != nil {
			return nil, err
		}
		if truthy(val) != branch.Not {
			return branch.Body, nil
		}
	}
	return n.Else, nil
}

func (n *IfNode) ChildNodeLists() []NodeList {
	lists := make([]NodeList, 0, len(n.Branches)+1)
	for _, branch := range n.Branches {
		lists = append(lists, branch.Body)
	}
	if n.Else != nil {
		lists = append(lists, n.Else)
	}
	return lists
}

func (*IfNode) isNode() {}

// ForNode is a `{% for %}` loop. Empty renders when there's nothing to
// iterate over.
type ForNode struct {
	Var   string
	Iter  *TagValueStruct
	Body  NodeList
	Empty NodeList
}

func (n *ForNode) Render(c *Context, out *strings.Builder) error {
	val, err := resolveStruct(c, n.Iter)
	if err != nil {
		return err
	}
	items, ok := iterableOf(val)
	if !ok {
		if keys, _, isMap := mappingOf(val); isMap {
			for _, key := range keys {
				items = append(items, key)
			}
		}
	}
	if len(items) < 1 {
		return n.Empty.renderTo(c, out)
	}
	for pos, item := range items {
		loop := c.Push(map[string]any{
			n.Var: item,
			"forloop": map[string]any{
				"counter":  pos + 1,
				"counter0": pos,
				"first":    pos == 0,
				"last":     pos == len(items)-1,
			},
		})
		if err := n.Body.renderTo(loop, out); err != nil {
			return err
		}
	}
	return nil
}

func (n *ForNode) ChildNodeLists() []NodeList {
	if n.Empty == nil {
		return []NodeList{n.Body}
	}
	return []NodeList{n.Body, n.Empty}
}

func (*ForNode) isNode() {}

// TransNode prints a translated string.
type TransNode struct {
	Text string
}

func (n *TransNode) Render(c *Context, out *strings.Builder) error {
	out.WriteString(template.HTMLEscapeString(c.translate(n.Text)))
	return nil
}

func (*TransNode) ChildNodeLists() []NodeList { return nil }
func (*TransNode) isNode()                    {}

// DependenciesNode marks where the CSS or JS of the rendered components is
// injected.
type DependenciesNode struct {
	Kind ResourceKind
}

func (n *DependenciesNode) Render(_ *Context, out *strings.Builder) error {
	out.WriteString(dependencyMarker(n.Kind))
	return nil
}

func (*DependenciesNode) ChildNodeLists() []NodeList { return nil }
func (*DependenciesNode) isNode()                    {}
