package stencil

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParse is the sentinel wrapped by every *ParseError. It's returned
	// when tag attribute text or template source can't be compiled.
	ErrParse = errors.New("template syntax error")

	// ErrBinding is the sentinel wrapped by every *BindingError. It's
	// returned when the arguments passed to a component don't match the
	// parameters it declares.
	ErrBinding = errors.New("invalid component arguments")

	// ErrSlot is the sentinel wrapped by every *SlotError.
	ErrSlot = errors.New("slot error")

	// ErrRegistration is the sentinel wrapped by every *RegistrationError.
	ErrRegistration = errors.New("component registration error")

	// ErrSchedulerInvariant is the sentinel wrapped by every
	// *SchedulerInvariantError. It always indicates a bug in stencil, not
	// in the templates being rendered.
	ErrSchedulerInvariant = errors.New("render scheduler invariant violated")

	// ErrNoTemplatePath is returned when a component needs a template,
	// but doesn't supply one.
	ErrNoTemplatePath = errors.New("need a template path or inline template")

	// ErrNoEngine is returned when a component or provide tag is rendered
	// against a Context that doesn't belong to an Engine.
	ErrNoEngine = errors.New("components need an Engine to render")

	// ErrTemplateNotFound is returned when a template path doesn't exist
	// in the Site's fs.FS.
	ErrTemplateNotFound = errors.New("template not found")
)

// ParseError describes malformed template source or tag attribute text.
// Offset is a byte offset into Text.
type ParseError struct {
	Msg    string
	Text   string
	Offset int

	// Template and Line are filled in by the compiler when known.
	Template string
	Line     int
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.Template != "" {
		fmt.Fprintf(&b, "%s:%d: ", e.Template, e.Line)
	}
	b.WriteString(e.Msg)
	if e.Text != "" {
		fmt.Fprintf(&b, " (at offset %d in %q)", e.Offset, e.Text)
	}
	return b.String()
}

func (*ParseError) Unwrap() error { return ErrParse }

// BindingError is returned when the resolved arguments of a component call
// don't fit the component's Signature.
type BindingError struct {
	Tag string
	Msg string
}

func (e *BindingError) Error() string {
	if e.Tag == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Msg)
}

func (*BindingError) Unwrap() error { return ErrBinding }

// SlotError is returned when fills can't be matched to the slots of a
// component's template.
type SlotError struct {
	Component string
	Slot      string
	Msg       string

	// Unfilled lists slot names that received no fill, when relevant.
	Unfilled []string

	// Suggestion is the closest slot name to a fill that matched no slot.
	Suggestion string
}

func (e *SlotError) Error() string {
	if e.Component == "" {
		return e.Msg
	}
	return fmt.Sprintf("component %q: %s", e.Component, e.Msg)
}

func (*SlotError) Unwrap() error { return ErrSlot }

// RegistrationError is returned when a component name is registered twice
// with different definitions, or when an unknown name is looked up.
type RegistrationError struct {
	Name string
	Msg  string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("component %q: %s", e.Name, e.Msg)
}

func (*RegistrationError) Unwrap() error { return ErrRegistration }

// SchedulerInvariantError means the deferred renderer found a placeholder it
// never registered, or registered a renderer that was never consumed.
type SchedulerInvariantError struct {
	RenderID string
	Msg      string
}

func (e *SchedulerInvariantError) Error() string {
	if e.RenderID == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s (render id %s)", e.Msg, e.RenderID)
}

func (*SchedulerInvariantError) Unwrap() error { return ErrSchedulerInvariant }

// RenderError attaches the chain of components that were rendering when Err
// happened, outermost first.
type RenderError struct {
	Path []string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("error rendering %s: %s", strings.Join(e.Path, " > "), e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
