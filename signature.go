package stencil

import (
	"fmt"
	"slices"
	"strings"
)

// ParamKind describes how a Param can be passed.
type ParamKind int

const (
	// PositionalOnly params can only be passed by position.
	PositionalOnly ParamKind = iota
	// PositionalOrKeyword params can be passed either way.
	PositionalOrKeyword
	// VarPositional collects positional arguments left over after the
	// positional params are filled, as a []any.
	VarPositional
	// KeywordOnly params can only be passed by name.
	KeywordOnly
	// VarKeyword collects keyword arguments that match no other param, as
	// a map[string]any.
	VarKeyword
)

func (k ParamKind) String() string {
	switch k {
	case PositionalOnly:
		return "positional-only"
	case PositionalOrKeyword:
		return "positional-or-keyword"
	case VarPositional:
		return "var-positional"
	case KeywordOnly:
		return "keyword-only"
	case VarKeyword:
		return "var-keyword"
	}
	return fmt.Sprintf("ParamKind(%d)", int(k))
}

// Param is one parameter a component accepts.
type Param struct {
	Name       string
	Kind       ParamKind
	Default    any
	HasDefault bool
}

// Signature lists the parameters a component accepts, in declaration order.
// Params must be ordered by Kind, the way a function's would be.
type Signature struct {
	Params []Param
}

// Bind matches args and kwargs to the Signature's params, returning every
// param's value by name, defaults included. Errors name the tag the
// arguments were passed to.
func (s Signature) Bind(tag string, args []any, kwargs map[string]any) (map[string]any, error) {
	bound := map[string]any{}
	fail := func(format string, a ...any) (map[string]any, error) {
		return nil, &BindingError{Tag: tag, Msg: fmt.Sprintf(format, a...)}
	}

	var positional []Param
	var varPos, varKw *Param
	byName := map[string]Param{}
	for pos, param := range s.Params {
		switch param.Kind {
		case PositionalOnly, PositionalOrKeyword:
			positional = append(positional, param)
		case VarPositional:
			varPos = &s.Params[pos]
		case VarKeyword:
			varKw = &s.Params[pos]
		}
		byName[param.Name] = param
	}

	for pos, arg := range args {
		if pos < len(positional) {
			bound[positional[pos].Name] = arg
			continue
		}
		if varPos == nil {
			return fail("takes %d positional arguments but %d were given", len(positional), len(args))
		}
		extra, _ := bound[varPos.Name].([]any)
		bound[varPos.Name] = append(extra, arg)
	}

	keys := make([]string, 0, len(kwargs))
	for key := range kwargs {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	var extraKw map[string]any
	var positionalOnly []string
	for _, key := range keys {
		param, ok := byName[key]
		if ok && param.Kind == PositionalOnly && varKw == nil {
			positionalOnly = append(positionalOnly, key)
			continue
		}
		if !ok || param.Kind == PositionalOnly || param.Kind == VarPositional || param.Kind == VarKeyword {
			if varKw == nil {
				return fail("got an unexpected keyword argument '%s'", key)
			}
			if extraKw == nil {
				extraKw = map[string]any{}
			}
			extraKw[key] = kwargs[key]
			continue
		}
		if _, dup := bound[key]; dup {
			return fail("multiple values for argument '%s'", key)
		}
		bound[key] = kwargs[key]
	}
	if len(positionalOnly) > 0 {
		return fail("got some positional-only arguments passed as keyword arguments: '%s'", strings.Join(positionalOnly, ", "))
	}

	for _, param := range s.Params {
		if _, ok := bound[param.Name]; ok {
			continue
		}
		switch {
		case param.Kind == VarPositional:
			bound[param.Name] = []any{}
		case param.Kind == VarKeyword:
			if extraKw == nil {
				extraKw = map[string]any{}
			}
			bound[param.Name] = extraKw
		case param.HasDefault:
			bound[param.Name] = param.Default
		default:
			return fail("missing a required argument: '%s'", param.Name)
		}
	}
	return bound, nil
}
