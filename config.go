package stencil

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a Config fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// ContextBehavior controls which variables a component's template can see.
type ContextBehavior string

const (
	// ContextDjango layers the component's data over the variables of the
	// template that called it.
	ContextDjango ContextBehavior = "django"

	// ContextIsolated renders components with only their own data. Fill
	// content still renders with the caller's variables.
	ContextIsolated ContextBehavior = "isolated"
)

// DependencyStrategy controls where the CSS and JS of rendered components
// end up in the output.
type DependencyStrategy string

const (
	// DependenciesDocument injects resources at the
	// `{% component_css_dependencies %}` and
	// `{% component_js_dependencies %}` tags, falling back to the end of
	// <head> for CSS and head JS, and the end of <body> for footer JS.
	DependenciesDocument DependencyStrategy = "document"

	// DependenciesAppend appends every resource to the end of the output.
	DependenciesAppend DependencyStrategy = "append"

	// DependenciesIgnore leaves resources out of the output entirely.
	DependenciesIgnore DependencyStrategy = "ignore"
)

// Config holds the settings of an Engine.
type Config struct {
	// TemplateRoot is the directory NewEngineFromConfig serves templates
	// from.
	TemplateRoot string `yaml:"template_root"`

	// Reload watches TemplateRoot and drops cached templates when they
	// change.
	Reload bool `yaml:"reload"`

	ContextBehavior ContextBehavior    `yaml:"context_behavior"`
	Dependencies    DependencyStrategy `yaml:"dependencies"`

	// TagRootElements adds a data-stencil-id-<render id> attribute to the
	// top-level elements of every component.
	TagRootElements bool `yaml:"tag_root_elements"`

	// MergeDuplicateKwargs joins duplicate string keyword arguments with a
	// space instead of failing the call.
	//
	// Deprecated: pass a single value instead.
	MergeDuplicateKwargs bool `yaml:"merge_duplicate_kwargs"`

	// Language is the BCP 47 tag used for translations, dates and casing.
	Language string `yaml:"language"`
}

// DefaultConfig returns the Config used when none is supplied.
func DefaultConfig() Config {
	return Config{
		TemplateRoot:    "templates",
		ContextBehavior: ContextDjango,
		Dependencies:    DependenciesDocument,
		Language:        "en",
	}
}

// LoadConfig reads a YAML config file. Settings the file doesn't mention
// keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return cfg, fmt.Errorf("error reading config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config file %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("error validating config file %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every setting holds a known value.
func (c Config) Validate() error {
	switch c.ContextBehavior {
	case ContextDjango, ContextIsolated:
	default:
		return fmt.Errorf("%w: unknown context_behavior %q, expected %q or %q", ErrInvalidConfig, c.ContextBehavior, ContextDjango, ContextIsolated)
	}
	switch c.Dependencies {
	case DependenciesDocument, DependenciesAppend, DependenciesIgnore:
	default:
		return fmt.Errorf("%w: unknown dependencies strategy %q", ErrInvalidConfig, c.Dependencies)
	}
	if _, err := language.Parse(c.Language); err != nil {
		return fmt.Errorf("%w: language %q: %w", ErrInvalidConfig, c.Language, err)
	}
	return nil
}

func (c Config) language() language.Tag {
	tag, err := language.Parse(c.Language)
	if err != nil {
		return language.English
	}
	return tag
}
