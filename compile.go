package stencil

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Template is a compiled template.
type Template struct {
	Name  string
	Nodes NodeList

	slots []*SlotNode
}

// Slots returns the template's slots in document order.
func (t *Template) Slots() []*SlotNode {
	return t.slots
}

// Render renders the template against c.
func (t *Template) Render(c *Context) (string, error) {
	return t.Nodes.Render(c)
}

type compiler struct {
	tmpl   *Template
	tokens []token
	pos    int
	line   int

	hasFilter func(string) bool
}

// Compile compiles src into a Template. hasFilter reports whether a filter
// name exists; when nil, only the built-in filters are accepted.
func Compile(name, src string, hasFilter func(string) bool) (*Template, error) {
	if hasFilter == nil {
		hasFilter = func(name string) bool {
			_, ok := defaultFilters[name]
			return ok
		}
	}
	tmpl := &Template{Name: name}
	nodes, err := compileInto(tmpl, src, 1, hasFilter)
	if err != nil {
		return nil, err
	}
	if err := checkFillPlacement(nodes); err != nil {
		return nil, err
	}
	tmpl.Nodes = nodes
	return tmpl, nil
}

func compileInto(tmpl *Template, src string, line int, hasFilter func(string) bool) (NodeList, error) {
	c := &compiler{
		tmpl:      tmpl,
		tokens:    lex(strings.ReplaceAll(src, "\r\n", "\n"), line),
		hasFilter: hasFilter,
	}
	nodes, end, err := c.parseUntil()
	if err != nil {
		return nil, err
	}
	if end != nil {
		return nil, c.errorf("Unexpected tag %q", end.name)
	}
	return nodes, nil
}

// Delims implements Continuation.
func (c *compiler) Delims() (string, string) {
	return blockDelims[0], blockDelims[1]
}

// Next implements Continuation.
func (c *compiler) Next() (string, bool) {
	if c.pos >= len(c.tokens) {
		return "", false
	}
	tok := c.tokens[c.pos]
	c.pos++
	return tok.raw, true
}

// Unread implements Continuation.
func (c *compiler) Unread(src string) {
	c.tokens = slices.Insert(c.tokens, c.pos, lex(src, c.line)...)
}

type blockTag struct {
	name string
	args string
}

func splitBlock(tok token) blockTag {
	inner := strings.TrimLeft(tok.raw[len(blockDelims[0]):len(tok.raw)-len(blockDelims[1])], " \t\n\r")
	name, args, _ := strings.Cut(inner, " ")
	if end := strings.IndexAny(name, "\t\n\r"); end >= 0 {
		args = name[end:] + " " + args
		name = name[:end]
	}
	return blockTag{name: name, args: strings.TrimLeft(args, " \t\n\r")}
}

// parseUntil compiles tokens until one of the end tags, returning the end tag
// it stopped at, or nil at the end of the source.
func (c *compiler) parseUntil(ends ...string) (NodeList, *blockTag, error) {
	var nodes NodeList
	for c.pos < len(c.tokens) {
		tok := c.tokens[c.pos]
		c.pos++
		c.line = tok.line
		switch tok.typ {
		case tokenText:
			nodes = append(nodes, &TextNode{Text: tok.raw})
		case tokenComment:
			nodes = append(nodes, &CommentNode{Text: tok.content})
		case tokenVar:
			node, err := c.parseVar(tok.content)
			if err != nil {
				return nil, nil, c.annotate(err)
			}
			nodes = append(nodes, node)
		case tokenBlock:
			tag := splitBlock(tok)
			if slices.Contains(ends, tag.name) {
				return nodes, &tag, nil
			}
			node, err := c.parseTag(tag)
			if err != nil {
				return nil, nil, c.annotate(err)
			}
			nodes = append(nodes, node)
		}
	}
	if len(ends) > 0 {
		return nil, nil, c.errorf("Unclosed tag, expected %s", strings.Join(ends, " or "))
	}
	return nodes, nil, nil
}

func (c *compiler) parseVar(content string) (Node, error) {
	attrs, err := ParseTagAttrs(content)
	if err != nil {
		return nil, err
	}
	if len(attrs) != 1 || attrs[0].Key != "" || attrs[0].Spread {
		return nil, c.errorf("Variable tag must hold exactly one value, got %q", content)
	}
	if err := c.prepareStruct(attrs[0].Value); err != nil {
		return nil, err
	}
	return &VarNode{Value: attrs[0].Value}, nil
}

func (c *compiler) parseTag(tag blockTag) (Node, error) {
	switch tag.name {
	case "component":
		return c.parseComponent(tag)
	case "slot":
		return c.parseSlot(tag)
	case "fill":
		return c.parseFill(tag)
	case "provide":
		return c.parseProvide(tag)
	case "if":
		return c.parseIf(tag)
	case "for":
		return c.parseFor(tag)
	case "trans":
		attrs, err := c.parseAttrs(tag.args)
		if err != nil {
			return nil, err
		}
		if len(attrs) != 1 || !attrs[0].Value.Value.IsLiteral() || attrs[0].Key != "" {
			return nil, c.errorf("trans tag takes a single quoted string")
		}
		part := attrs[0].Value.Value.Parts[0]
		return &TransNode{Text: unescapeQuoted(part.Value, part.Quote)}, nil
	case "component_css_dependencies":
		return &DependenciesNode{Kind: ResourceCSS}, nil
	case "component_js_dependencies":
		return &DependenciesNode{Kind: ResourceJS}, nil
	case "":
		return nil, c.errorf("Empty block tag")
	}
	if strings.HasPrefix(tag.name, "end") || tag.name == "else" || tag.name == "elif" || tag.name == "empty" {
		return nil, c.errorf("Unexpected tag %q", tag.name)
	}
	return nil, c.errorf("Unknown tag %q", tag.name)
}

// parseAttrs parses tag arguments, joining tags the lexer split too early,
// and compiles any templates embedded in quoted values.
func (c *compiler) parseAttrs(args string) ([]TagAttr, error) {
	_, attrs, err := ParseTagAttrsContinued(args, c)
	if err != nil {
		return nil, err
	}
	for _, attr := range attrs {
		if err := c.prepareStruct(attr.Value); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}

// prepareStruct checks the filters a value uses, and compiles quoted values
// holding template syntax into sub-templates.
func (c *compiler) prepareStruct(s *TagValueStruct) error {
	stack := []*TagValueStruct{s}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stack = append(stack, cur.Entries...)
		for pos, part := range cur.Value.Parts {
			if part.Prefix == '|' && !c.hasFilter(part.Value) {
				return &ParseError{Msg: fmt.Sprintf("Unknown filter %q", part.Value), Text: cur.Value.String(), Offset: part.Start}
			}
			if part.Quote == 0 || part.Translation {
				continue
			}
			text := unescapeQuoted(part.Value, part.Quote)
			if !hasTemplateSyntax(text) {
				continue
			}
			nodes, err := compileInto(c.tmpl, text, c.line, c.hasFilter)
			if err != nil {
				return err
			}
			cur.Value.Parts[pos].nodes = nodes
		}
	}
	return nil
}

// splitFlags removes bare-word flags from attrs.
func splitFlags(attrs []TagAttr, flags ...string) ([]TagAttr, map[string]bool) {
	found := map[string]bool{}
	kept := attrs[:0:0]
	for _, attr := range attrs {
		if word, ok := attr.flag(); ok && slices.Contains(flags, word) {
			found[word] = true
			continue
		}
		kept = append(kept, attr)
	}
	return kept, found
}

func (c *compiler) parseComponent(tag blockTag) (Node, error) {
	attrs, err := c.parseAttrs(tag.args)
	if err != nil {
		return nil, err
	}
	selfClosing := false
	if len(attrs) > 0 {
		if word, ok := attrs[len(attrs)-1].flag(); ok && word == "/" {
			selfClosing = true
			attrs = attrs[:len(attrs)-1]
		}
	}
	attrs, flags := splitFlags(attrs, "only")
	if len(attrs) < 1 || attrs[0].Key != "" || attrs[0].Spread {
		return nil, c.errorf("component tag needs the component name as its first argument")
	}
	node := &ComponentNode{
		Name:     attrs[0].Value,
		Attrs:    attrs[1:],
		Only:     flags["only"],
		Template: c.tmpl.Name,
		Line:     c.line,
	}
	sawKeyword := false
	for _, attr := range node.Attrs {
		switch {
		case attr.Key != "":
			sawKeyword = true
		case !attr.Spread && sawKeyword:
			return nil, &ParseError{Msg: fmt.Sprintf("Positional argument %s follows a keyword argument", attr.String()), Text: tag.args, Offset: attr.Start}
		}
	}
	if selfClosing {
		return node, nil
	}
	body, _, err := c.parseUntil("endcomponent")
	if err != nil {
		return nil, err
	}
	node.Body = body
	node.HasFills, err = classifyBody(componentLabel(node.Name), body)
	if err != nil {
		return nil, err
	}
	return node, nil
}

// classifyBody reports whether a component body is made of fill tags. A
// body with fills may hold nothing else but blank text, comments, and if
// blocks that themselves hold only fills.
func classifyBody(component string, body NodeList) (bool, error) {
	hasFills := false
	Walk(body, func(node Node) bool {
		switch node.(type) {
		case *FillNode:
			hasFills = true
			return false
		case *IfNode:
			return true
		}
		return false
	})
	if !hasFills {
		return false, nil
	}
	stack := []NodeList{body}
	for len(stack) > 0 {
		list := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, node := range list {
			switch n := node.(type) {
			case *FillNode, *CommentNode:
			case *TextNode:
				if !n.isBlank() {
					return false, mixedFillsError(component)
				}
			case *IfNode:
				stack = append(stack, n.ChildNodeLists()...)
			case *VarNode, *SlotNode, *ComponentNode, *ProvideNode, *ForNode, *TransNode, *DependenciesNode:
				return false, mixedFillsError(component)
			}
		}
	}
	return true, nil
}

// componentLabel names a component in errors: the name itself for quoted
// literals, the expression otherwise.
func componentLabel(name *TagValueStruct) string {
	if name.Type == StructSimple && name.Value.IsLiteral() {
		part := name.Value.Parts[0]
		return unescapeQuoted(part.Value, part.Quote)
	}
	return name.String()
}

func mixedFillsError(component string) error {
	return &SlotError{
		Component: component,
		Msg:       "component body must hold either only fill tags, or no fill tags at all",
	}
}

// checkFillPlacement rejects fill tags that aren't part of a component body.
func checkFillPlacement(nodes NodeList) error {
	type level struct {
		nodes   NodeList
		allowed bool
	}
	stack := []level{{nodes: nodes}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, node := range cur.nodes {
			switch n := node.(type) {
			case *FillNode:
				if !cur.allowed {
					return &SlotError{Slot: n.Name.String(), Msg: "fill tag must be placed directly inside a component"}
				}
				stack = append(stack, level{nodes: n.Body})
			case *ComponentNode:
				stack = append(stack, level{nodes: n.Body, allowed: true})
			case *IfNode:
				for _, list := range n.ChildNodeLists() {
					stack = append(stack, level{nodes: list, allowed: cur.allowed})
				}
			default:
				for _, list := range n.ChildNodeLists() {
					stack = append(stack, level{nodes: list})
				}
			}
		}
	}
	return nil
}

func (c *compiler) parseSlot(tag blockTag) (Node, error) {
	attrs, err := c.parseAttrs(tag.args)
	if err != nil {
		return nil, err
	}
	attrs, flags := splitFlags(attrs, "required", "default")
	if len(attrs) != 1 || attrs[0].Key != "" || attrs[0].Value.Type != StructSimple || len(attrs[0].Value.Value.Parts) != 1 {
		return nil, c.errorf("slot tag takes a name and the optional flags 'required' and 'default'")
	}
	part := attrs[0].Value.Value.Parts[0]
	name := part.Value
	if part.Quote != 0 {
		name = unescapeQuoted(part.Value, part.Quote)
	}
	slot := &SlotNode{
		Name:      name,
		Required:  flags["required"],
		IsDefault: flags["default"],
		owner:     c.tmpl,
	}
	if err := checkSlots(c.tmpl.Name, append(slices.Clone(c.tmpl.slots), slot)); err != nil {
		return nil, err
	}
	c.tmpl.slots = append(c.tmpl.slots, slot)
	body, _, err := c.parseUntil("endslot")
	if err != nil {
		return nil, err
	}
	slot.Body = body
	return slot, nil
}

func (c *compiler) parseFill(tag blockTag) (Node, error) {
	attrs, err := c.parseAttrs(tag.args)
	if err != nil {
		return nil, err
	}
	node := &FillNode{}
	switch {
	case len(attrs) == 1:
	case len(attrs) == 3:
		if word, ok := attrs[1].flag(); !ok || word != "as" {
			return nil, c.errorf("fill tag expects 'as' before the alias")
		}
		alias := attrs[2].Value
		if alias.Type != StructSimple || len(alias.Value.Parts) != 1 || alias.Value.Parts[0].Translation {
			return nil, c.errorf("Fill alias must be a valid identifier, got %q", alias.String())
		}
		node.Alias = alias.Value.Parts[0].Value
		if !isIdentifier(node.Alias) {
			return nil, c.errorf("Fill alias must be a valid identifier, got %q", node.Alias)
		}
	default:
		return nil, c.errorf("fill tag takes a slot name and an optional 'as <alias>'")
	}
	if attrs[0].Key != "" || attrs[0].Spread {
		return nil, c.errorf("fill tag needs the slot name as its first argument")
	}
	node.Name = attrs[0].Value
	body, _, err := c.parseUntil("endfill")
	if err != nil {
		return nil, err
	}
	node.Body = body
	return node, nil
}

func (c *compiler) parseProvide(tag blockTag) (Node, error) {
	attrs, err := c.parseAttrs(tag.args)
	if err != nil {
		return nil, err
	}
	if len(attrs) < 1 || attrs[0].Key != "" || !attrs[0].Value.Value.IsLiteral() {
		return nil, c.errorf("provide tag needs a quoted name as its first argument")
	}
	for _, attr := range attrs[1:] {
		if attr.Key == "" && !attr.Spread {
			return nil, c.errorf("provide tag only takes keyword arguments after its name, got %s", attr.String())
		}
	}
	part := attrs[0].Value.Value.Parts[0]
	node := &ProvideNode{
		Name:  unescapeQuoted(part.Value, part.Quote),
		Attrs: attrs[1:],
	}
	node.Body, _, err = c.parseUntil("endprovide")
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (c *compiler) parseCondition(args string) (IfBranch, error) {
	attrs, err := c.parseAttrs(args)
	if err != nil {
		return IfBranch{}, err
	}
	attrs, flags := splitFlags(attrs, "not")
	if len(attrs) != 1 || attrs[0].Key != "" || attrs[0].Spread {
		return IfBranch{}, c.errorf("if tag takes a single value, optionally preceded by 'not'")
	}
	return IfBranch{Cond: attrs[0].Value, Not: flags["not"]}, nil
}

func (c *compiler) parseIf(tag blockTag) (Node, error) {
	node := &IfNode{}
	branch, err := c.parseCondition(tag.args)
	if err != nil {
		return nil, err
	}
	for {
		body, end, err := c.parseUntil("elif", "else", "endif")
		if err != nil {
			return nil, err
		}
		branch.Body = body
		node.Branches = append(node.Branches, branch)
		switch end.name {
		case "elif":
			branch, err = c.parseCondition(end.args)
			if err != nil {
				return nil, err
			}
			continue
		case "else":
			node.Else, _, err = c.parseUntil("endif")
			if err != nil {
				return nil, err
			}
		}
		return node, nil
	}
}

func (c *compiler) parseFor(tag blockTag) (Node, error) {
	attrs, err := c.parseAttrs(tag.args)
	if err != nil {
		return nil, err
	}
	if len(attrs) != 3 {
		return nil, c.errorf("for tag must look like 'for item in items'")
	}
	name, ok := attrs[0].flag()
	in, inOK := attrs[1].flag()
	if !ok || !inOK || in != "in" || !isIdentifier(name) {
		return nil, c.errorf("for tag must look like 'for item in items'")
	}
	node := &ForNode{Var: name, Iter: attrs[2].Value}
	body, end, err := c.parseUntil("empty", "endfor")
	if err != nil {
		return nil, err
	}
	node.Body = body
	if end.name == "empty" {
		node.Empty, _, err = c.parseUntil("endfor")
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

func (c *compiler) errorf(format string, args ...any) error {
	return &ParseError{Msg: fmt.Sprintf(format, args...), Template: c.tmpl.Name, Line: c.line}
}

// annotate fills in the template name and line on parse errors.
func (c *compiler) annotate(err error) error {
	var parseErr *ParseError
	if errors.As(err, &parseErr) && parseErr.Template == "" {
		parseErr.Template = c.tmpl.Name
		parseErr.Line = c.line
	}
	return err
}
