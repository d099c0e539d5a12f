package stencil

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// TagParam is a resolved tag attribute: a positional value when Key is empty,
// a keyword value otherwise.
type TagParam struct {
	Key   string
	Value any
}

// ResolveAttrs turns parsed attributes into concrete values against c,
// expanding `...` spreads in place.
func ResolveAttrs(c *Context, attrs []TagAttr) ([]TagParam, error) {
	params := make([]TagParam, 0, len(attrs))
	for _, attr := range attrs {
		if !attr.Spread {
			val, err := resolveStruct(c, attr.Value)
			if err != nil {
				return nil, err
			}
			params = append(params, TagParam{Key: attr.Key, Value: val})
			continue
		}
		val, err := resolveStruct(c, attr.Value)
		if err != nil {
			return nil, err
		}
		spread, err := spreadAttr(attr.Value.String(), val)
		if err != nil {
			return nil, err
		}
		params = append(params, spread...)
	}
	return params, nil
}

func spreadAttr(expr string, val any) ([]TagParam, error) {
	if keys, lookup, ok := mappingOf(val); ok {
		params := make([]TagParam, 0, len(keys))
		for _, key := range keys {
			params = append(params, TagParam{Key: key, Value: lookup(key)})
		}
		return params, nil
	}
	if items, ok := iterableOf(val); ok {
		params := make([]TagParam, 0, len(items))
		for _, item := range items {
			params = append(params, TagParam{Value: item})
		}
		return params, nil
	}
	return nil, &BindingError{Msg: fmt.Sprintf("cannot spread %s: %T is neither a mapping nor an iterable", expr, val)}
}

// mappingOf reports whether val is a string-keyed map, returning its keys in
// sorted order and a lookup func.
func mappingOf(val any) ([]string, func(string) any, bool) {
	if m, ok := val.(map[string]any); ok {
		keys := make([]string, 0, len(m))
		for key := range m {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		return keys, func(k string) any { return m[k] }, true
	}
	rv := reflect.ValueOf(val)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, nil, false
	}
	keys := make([]string, 0, rv.Len())
	for _, key := range rv.MapKeys() {
		keys = append(keys, key.String())
	}
	slices.Sort(keys)
	return keys, func(k string) any {
		return rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()
	}, true
}

func iterableOf(val any) ([]any, bool) {
	if items, ok := val.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(val)
	if !rv.IsValid() {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for pos := range items {
			items[pos] = rv.Index(pos).Interface()
		}
		return items, true
	}
	return nil, false
}

func resolveStruct(c *Context, s *TagValueStruct) (any, error) {
	switch s.Type {
	case StructList:
		result := []any{}
		for _, entry := range s.Entries {
			val, err := resolveStruct(c, entry)
			if err != nil {
				return nil, err
			}
			if entry.Spread != SpreadList {
				result = append(result, val)
				continue
			}
			if _, _, ok := mappingOf(val); ok {
				return nil, &BindingError{Msg: fmt.Sprintf("cannot spread mapping %s into a list", entry.String())}
			}
			items, ok := iterableOf(val)
			if !ok {
				return nil, &BindingError{Msg: fmt.Sprintf("cannot spread %s into a list: %T is not iterable", entry.String(), val)}
			}
			result = append(result, items...)
		}
		return result, nil
	case StructDict:
		result := map[string]any{}
		for pos := 0; pos < len(s.Entries); pos++ {
			entry := s.Entries[pos]
			if entry.Spread == SpreadDict {
				val, err := resolveStruct(c, entry)
				if err != nil {
					return nil, err
				}
				keys, lookup, ok := mappingOf(val)
				if !ok {
					return nil, &BindingError{Msg: fmt.Sprintf("cannot spread %s into a dictionary: %T is not a mapping", entry.String(), val)}
				}
				for _, key := range keys {
					result[key] = lookup(key)
				}
				continue
			}
			key, err := resolveStruct(c, entry)
			if err != nil {
				return nil, err
			}
			pos++
			val, err := resolveStruct(c, s.Entries[pos])
			if err != nil {
				return nil, err
			}
			result[stringify(key)] = val
		}
		return result, nil
	}
	return resolveValue(c, s.Value)
}

// resolveValue resolves the base value of a filter chain and applies each
// filter, left to right.
func resolveValue(c *Context, v TagValue) (any, error) {
	val, err := resolvePart(c, v.Parts[0])
	if err != nil {
		return nil, err
	}
	for pos := 1; pos < len(v.Parts); pos++ {
		part := v.Parts[pos]
		if part.Prefix != '|' {
			continue
		}
		filter, ok := c.filter(part.Value)
		if !ok {
			return nil, &ParseError{Msg: fmt.Sprintf("Unknown filter %q", part.Value), Text: v.String(), Offset: part.Start}
		}
		var args []any
		if pos+1 < len(v.Parts) && v.Parts[pos+1].Prefix == ':' {
			arg, err := resolvePart(c, v.Parts[pos+1])
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		val, err = filter(val, args...)
		if err != nil {
			return nil, fmt.Errorf("error applying filter %q to %s: %w", part.Value, v.Parts[0].String(), err)
		}
	}
	return val, nil
}

func resolvePart(c *Context, part TagValuePart) (any, error) {
	if part.Quote != 0 {
		text := unescapeQuoted(part.Value, part.Quote)
		if part.Translation {
			return c.translate(text), nil
		}
		if part.nodes != nil {
			return c.renderString(part.nodes)
		}
		return text, nil
	}
	switch part.Value {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "None", "nil":
		return nil, nil
	}
	if n, err := strconv.Atoi(part.Value); err == nil {
		return n, nil
	}
	if strings.ContainsAny(part.Value, ".eE") {
		if f, err := strconv.ParseFloat(part.Value, 64); err == nil {
			return f, nil
		}
	}
	val, _ := c.Resolve(part.Value)
	return val, nil
}

func unescapeQuoted(s string, quote byte) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return strings.NewReplacer(`\`+string(quote), string(quote), `\\`, `\`).Replace(s)
}

func stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(val)
}

// callParams are TagParams split up the way a component receives them.
type callParams struct {
	args   []any
	kwargs map[string]any

	// extra holds keys that aren't identifiers, like "@click" or
	// "data-id", which bypass signature binding.
	extra map[string]any
}

// splitParams separates positional and keyword params, folds `prefix:key`
// params into a map under prefix, and rejects duplicate keywords unless merge
// is set, in which case string values are joined with a space.
func splitParams(params []TagParam, merge bool) (callParams, error) {
	result := callParams{kwargs: map[string]any{}, extra: map[string]any{}}
	aggregates := map[string]map[string]any{}
	sawKeyword := false
	for _, param := range params {
		if param.Key == "" {
			if sawKeyword {
				return result, &BindingError{Msg: "positional argument follows keyword argument"}
			}
			result.args = append(result.args, param.Value)
			continue
		}
		sawKeyword = true
		if prefix, sub, ok := strings.Cut(param.Key, ":"); ok && isIdentifier(prefix) && sub != "" {
			agg, ok := aggregates[prefix]
			if !ok {
				agg = map[string]any{}
				aggregates[prefix] = agg
			}
			if _, dup := agg[sub]; dup {
				return result, &BindingError{Msg: fmt.Sprintf("received multiple values for %q", param.Key)}
			}
			agg[sub] = param.Value
			continue
		}
		target := result.kwargs
		if !isIdentifier(param.Key) {
			target = result.extra
		}
		existing, dup := target[param.Key]
		if !dup {
			target[param.Key] = param.Value
			continue
		}
		if !merge {
			return result, &BindingError{Msg: fmt.Sprintf("received multiple values for keyword argument %q", param.Key)}
		}
		prev, prevOK := existing.(string)
		next, nextOK := param.Value.(string)
		if !prevOK || !nextOK {
			return result, &BindingError{Msg: fmt.Sprintf("received multiple values for keyword argument %q, and only strings can be merged", param.Key)}
		}
		target[param.Key] = prev + " " + next
	}
	for prefix, agg := range aggregates {
		if _, ok := result.kwargs[prefix]; ok {
			return result, &BindingError{Msg: fmt.Sprintf("received argument %q both as a regular input (%s=...) and as an aggregate dict (%s:key=...)", prefix, prefix, prefix)}
		}
		result.kwargs[prefix] = agg
	}
	return result, nil
}
