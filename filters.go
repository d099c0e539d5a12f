package stencil

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"html/template"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/goodsign/monday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FilterFunc transforms a value in a filter chain like `name|upper` or
// `items|join:", "`. args holds the filter argument, if one was given.
type FilterFunc func(value any, args ...any) (any, error)

// ErrFilterArgument is returned by filters given an argument they can't use.
var ErrFilterArgument = errors.New("invalid filter argument")

// DefaultDateLayout is the layout the date filter uses when it isn't given
// one.
const DefaultDateLayout = "January 2, 2006"

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// defaultFilters serve Contexts that don't belong to an Engine.
var defaultFilters = builtinFilters(language.English)

// builtinFilters returns the filters every Engine starts with, localized for
// lang. Casers hold state, so each call gets its own.
func builtinFilters(lang language.Tag) map[string]FilterFunc {
	locale := mondayLocale(lang)
	return map[string]FilterFunc{
		"default": func(value any, args ...any) (any, error) {
			if truthy(value) {
				return value, nil
			}
			return firstArg(args), nil
		},
		"default_if_none": func(value any, args ...any) (any, error) {
			if value == nil {
				return firstArg(args), nil
			}
			return value, nil
		},
		"upper": func(value any, _ ...any) (any, error) {
			return keepSafe(value, cases.Upper(lang).String(stringify(value))), nil
		},
		"lower": func(value any, _ ...any) (any, error) {
			return keepSafe(value, cases.Lower(lang).String(stringify(value))), nil
		},
		"title": func(value any, _ ...any) (any, error) {
			return keepSafe(value, cases.Title(lang).String(stringify(value))), nil
		},
		"length": func(value any, _ ...any) (any, error) {
			return length(value), nil
		},
		"join": func(value any, args ...any) (any, error) {
			items, ok := iterableOf(value)
			if !ok {
				return value, nil
			}
			strs := make([]string, 0, len(items))
			for _, item := range items {
				strs = append(strs, stringify(item))
			}
			return strings.Join(strs, stringify(firstArg(args))), nil
		},
		"yesno": yesno,
		"add":   add,
		"cut": func(value any, args ...any) (any, error) {
			return strings.ReplaceAll(stringify(value), stringify(firstArg(args)), ""), nil
		},
		"first": func(value any, _ ...any) (any, error) {
			if items, ok := iterableOf(value); ok && len(items) > 0 {
				return items[0], nil
			}
			if s, ok := value.(string); ok && s != "" {
				r, _ := utf8.DecodeRuneInString(s)
				return string(r), nil
			}
			return "", nil
		},
		"last": func(value any, _ ...any) (any, error) {
			if items, ok := iterableOf(value); ok && len(items) > 0 {
				return items[len(items)-1], nil
			}
			if s, ok := value.(string); ok && s != "" {
				r, _ := utf8.DecodeLastRuneInString(s)
				return string(r), nil
			}
			return "", nil
		},
		"safe": func(value any, _ ...any) (any, error) {
			return template.HTML(stringify(value)), nil // #nosec G203
		},
		"escape": func(value any, _ ...any) (any, error) {
			return template.HTML(html.EscapeString(stringify(value))), nil // #nosec G203
		},
		"truncatechars": func(value any, args ...any) (any, error) {
			limit, ok := toInt(firstArg(args))
			if !ok {
				return nil, fmt.Errorf("%w: truncatechars needs a number, got %v", ErrFilterArgument, firstArg(args))
			}
			s := stringify(value)
			if utf8.RuneCountInString(s) <= limit {
				return s, nil
			}
			if limit < 1 {
				return "…", nil
			}
			runes := []rune(s)
			return string(runes[:limit-1]) + "…", nil
		},
		"markdown": func(value any, _ ...any) (any, error) {
			var buf bytes.Buffer
			if err := markdown.Convert([]byte(stringify(value)), &buf); err != nil {
				return nil, fmt.Errorf("error converting markdown: %w", err)
			}
			return template.HTML(buf.String()), nil // #nosec G203
		},
		"date": func(value any, args ...any) (any, error) {
			var t time.Time
			switch v := value.(type) {
			case nil:
				return "", nil
			case time.Time:
				t = v
			case *time.Time:
				if v == nil {
					return "", nil
				}
				t = *v
			default:
				parsed, err := dateparse.ParseAny(stringify(v))
				if err != nil {
					return nil, fmt.Errorf("error parsing date %q: %w", stringify(v), err)
				}
				t = parsed
			}
			layout := DefaultDateLayout
			if arg := firstArg(args); arg != nil {
				layout = stringify(arg)
			}
			return monday.Format(t, layout, locale), nil
		},
	}
}

var mondayLocales = map[string]monday.Locale{
	"en":    monday.LocaleEnUS,
	"en-GB": monday.LocaleEnGB,
	"de":    monday.LocaleDeDE,
	"fr":    monday.LocaleFrFR,
	"fr-CA": monday.LocaleFrCA,
	"es":    monday.LocaleEsES,
	"it":    monday.LocaleItIT,
	"pt":    monday.LocalePtPT,
	"pt-BR": monday.LocalePtBR,
	"nl":    monday.LocaleNlNL,
	"ru":    monday.LocaleRuRU,
	"pl":    monday.LocalePlPL,
	"ja":    monday.LocaleJaJP,
	"zh":    monday.LocaleZhCN,
}

func mondayLocale(lang language.Tag) monday.Locale {
	base, _ := lang.Base()
	region, _ := lang.Region()
	if locale, ok := mondayLocales[base.String()+"-"+region.String()]; ok {
		return locale
	}
	if locale, ok := mondayLocales[base.String()]; ok {
		return locale
	}
	return monday.LocaleEnUS
}

func firstArg(args []any) any {
	if len(args) < 1 {
		return nil
	}
	return args[0]
}

// keepSafe returns s as template.HTML if the value it came from was already
// marked safe.
func keepSafe(orig any, s string) any {
	if _, ok := orig.(template.HTML); ok {
		return template.HTML(s) // #nosec G203
	}
	return s
}

func yesno(value any, args ...any) (any, error) {
	mapping := "yes,no,maybe"
	if arg := firstArg(args); arg != nil {
		mapping = stringify(arg)
	}
	choices := strings.Split(mapping, ",")
	if len(choices) < 2 {
		return value, nil
	}
	switch {
	case value == nil && len(choices) > 2:
		return choices[2], nil
	case truthy(value):
		return choices[0], nil
	}
	return choices[1], nil
}

func add(value any, args ...any) (any, error) {
	arg := firstArg(args)
	a, aok := toInt(value)
	b, bok := toInt(arg)
	if aok && bok {
		return a + b, nil
	}
	af, aok := toFloat(value)
	bf, bok := toFloat(arg)
	if aok && bok {
		return af + bf, nil
	}
	if as, ok := value.(string); ok {
		return as + stringify(arg), nil
	}
	if items, ok := iterableOf(value); ok {
		if more, ok := iterableOf(arg); ok {
			return append(append([]any{}, items...), more...), nil
		}
	}
	return "", nil
}

func toInt(val any) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	if n, ok := toInt(val); ok {
		return float64(n), true
	}
	return 0, false
}

func length(val any) int {
	switch v := val.(type) {
	case nil:
		return 0
	case string:
		return utf8.RuneCountInString(v)
	case template.HTML:
		return utf8.RuneCountInString(string(v))
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return rv.Len()
	}
	return 0
}

// truthy follows Django: nil, false, zero numbers and empty strings and
// collections are false.
func truthy(val any) bool {
	switch v := val.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case template.HTML:
		return v != ""
	case int:
		return v != 0
	case float64:
		return v != 0
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	}
	return true
}
