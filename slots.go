package stencil

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// suggestionCutoff is the lowest similarity ratio at which a slot name is
// suggested for a misspelled fill.
const suggestionCutoff = 0.7

type slotState int

const (
	slotUnbound slotState = iota
	slotBound
	slotConsumed
	slotReleased
)

func (s slotState) String() string {
	switch s {
	case slotUnbound:
		return "unbound"
	case slotBound:
		return "bound"
	case slotConsumed:
		return "consumed"
	case slotReleased:
		return "released"
	}
	return fmt.Sprintf("slotState(%d)", int(s))
}

type slotKey struct {
	name string
	tmpl *Template
}

// boundFill is the content bound to one slot, with the Context it renders in
// and the alias it exposes the slot under.
type boundFill struct {
	nodes NodeList
	ctx   *Context
	alias string
}

// fillContent is a fill as collected from a component call. An empty name
// means implicit content for the default slot.
type fillContent struct {
	name  string
	nodes NodeList
	ctx   *Context
	alias string
}

// SlotBinding maps the slots of one component render to the fills bound to
// them. Slots without a fill aren't in the binding and render their default
// content. Bindings are layered through Context, innermost first, and never
// modified once bound.
type SlotBinding struct {
	component string
	tmpl      *Template
	fills     map[slotKey]*boundFill
	state     slotState
}

func (b *SlotBinding) get(name string, tmpl *Template) (*boundFill, bool) {
	if b.state == slotReleased {
		return nil, false
	}
	fill, ok := b.fills[slotKey{name: name, tmpl: tmpl}]
	return fill, ok
}

// Len returns the number of filled slots.
func (b *SlotBinding) Len() int {
	return len(b.fills)
}

// Filled reports whether the named slot of tmpl received a fill.
func (b *SlotBinding) Filled(name string, tmpl *Template) bool {
	_, ok := b.fills[slotKey{name: name, tmpl: tmpl}]
	return ok
}

func (b *SlotBinding) transition(from, to slotState) error {
	if b.state != from {
		return &SchedulerInvariantError{Msg: fmt.Sprintf("slot binding for %q moved from %s to %s, expected it to be %s", b.component, b.state, to, from)}
	}
	b.state = to
	return nil
}

// consume marks the binding as used by a rendered template.
func (b *SlotBinding) consume() error {
	return b.transition(slotBound, slotConsumed)
}

// release marks the binding as no longer reachable by any pending render.
func (b *SlotBinding) release() error {
	return b.transition(slotConsumed, slotReleased)
}

// checkSlots rejects duplicate slot names and more than one default slot.
func checkSlots(tmplName string, slots []*SlotNode) error {
	seen := map[string]struct{}{}
	var defaultSlot string
	for _, slot := range slots {
		if _, ok := seen[slot.Name]; ok {
			return &SlotError{Slot: slot.Name, Msg: fmt.Sprintf("slot names must be unique within a template, %q appears more than once in %q", slot.Name, tmplName)}
		}
		seen[slot.Name] = struct{}{}
		if !slot.IsDefault {
			continue
		}
		if defaultSlot != "" {
			return &SlotError{Slot: slot.Name, Msg: fmt.Sprintf("only one slot may be marked 'default', found %q and %q in %q", defaultSlot, slot.Name, tmplName)}
		}
		defaultSlot = slot.Name
	}
	return nil
}

// bindSlots matches fills to the slots of tmpl. On error nothing is bound.
func bindSlots(component string, tmpl *Template, fills []fillContent) (*SlotBinding, error) {
	slots := tmpl.Slots()
	if err := checkSlots(tmpl.Name, slots); err != nil {
		var slotErr *SlotError
		if errors.As(err, &slotErr) {
			slotErr.Component = component
		}
		return nil, err
	}
	byName := map[string]*SlotNode{}
	var defaultSlot *SlotNode
	for _, slot := range slots {
		byName[slot.Name] = slot
		if slot.IsDefault {
			defaultSlot = slot
		}
	}

	targets := map[string]fillContent{}
	var unmatched []string
	for _, fill := range fills {
		target := fill.name
		switch {
		case target == "":
			if defaultSlot == nil {
				return nil, &SlotError{
					Component: component,
					Msg:       "passed default fill content (content without a fill tag), even though none of its slots is marked as 'default'",
				}
			}
			target = defaultSlot.Name
		case target == "default" && byName["default"] == nil && defaultSlot != nil:
			target = defaultSlot.Name
		}
		if _, dup := targets[target]; dup {
			return nil, &SlotError{Component: component, Slot: target, Msg: fmt.Sprintf("multiple fill tags cannot target the same slot %q", target)}
		}
		if _, ok := byName[target]; !ok {
			unmatched = append(unmatched, fill.name)
		}
		targets[target] = fill
	}

	var unfilled []string
	for _, slot := range slots {
		if _, ok := targets[slot.Name]; !ok {
			unfilled = append(unfilled, slot.Name)
		}
	}

	for _, slot := range slots {
		if !slot.Required || !slices.Contains(unfilled, slot.Name) {
			continue
		}
		msg := fmt.Sprintf("slot %q is marked as 'required', yet no fill was provided for it", slot.Name)
		if len(unmatched) > 0 {
			msg += fmt.Sprintf(". Fills that matched no slot: '%s'", strings.Join(unmatched, "', '"))
		}
		suggestion := closestName(unmatched, []string{slot.Name})
		if suggestion != "" {
			msg += fmt.Sprintf(". Did you mean '%s'?", suggestion)
		}
		return nil, &SlotError{Component: component, Slot: slot.Name, Msg: msg, Unfilled: unfilled, Suggestion: suggestion}
	}

	for _, name := range unmatched {
		msg := fmt.Sprintf("passed a fill for undefined slot %q. Unfilled slot names are: ['%s']", name, strings.Join(unfilled, "', '"))
		suggestion := closestName([]string{name}, unfilled)
		if suggestion != "" {
			msg += fmt.Sprintf(". Did you mean '%s'?", suggestion)
		}
		return nil, &SlotError{Component: component, Slot: name, Msg: msg, Unfilled: unfilled, Suggestion: suggestion}
	}

	binding := &SlotBinding{component: component, tmpl: tmpl, fills: map[slotKey]*boundFill{}}
	for target, fill := range targets {
		binding.fills[slotKey{name: target, tmpl: tmpl}] = &boundFill{
			nodes: fill.nodes,
			ctx:   fill.ctx,
			alias: fill.alias,
		}
	}
	if err := binding.transition(slotUnbound, slotBound); err != nil {
		return nil, err
	}
	return binding, nil
}

// closestName returns the candidate most similar to any of names, if its
// similarity ratio reaches suggestionCutoff.
func closestName(names, candidates []string) string {
	best, bestRatio := "", 0.0
	for _, name := range names {
		for _, candidate := range candidates {
			matcher := difflib.NewMatcher(strings.Split(name, ""), strings.Split(candidate, ""))
			ratio := matcher.Ratio()
			if ratio >= suggestionCutoff && ratio > bestRatio {
				best, bestRatio = candidate, ratio
			}
		}
	}
	return best
}
