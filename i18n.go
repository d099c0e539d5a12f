package stencil

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Translator looks up the strings wrapped in `_("...")` and the `trans` tag.
// Strings without a translation render unchanged.
type Translator struct {
	lang    language.Tag
	catalog *catalog.Builder

	mu      sync.RWMutex
	printer *message.Printer
}

// NewTranslator returns a Translator rendering strings in lang.
func NewTranslator(lang language.Tag) *Translator {
	builder := catalog.NewBuilder(catalog.Fallback(lang))
	return &Translator{
		lang:    lang,
		catalog: builder,
		printer: message.NewPrinter(lang, message.Catalog(builder)),
	}
}

// Language returns the language strings are translated into.
func (t *Translator) Language() language.Tag {
	return t.lang
}

// AddTranslation registers translated as the translation of source in lang.
func (t *Translator) AddTranslation(lang language.Tag, source, translated string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.catalog.SetString(lang, escapePercent(source), escapePercent(translated)); err != nil {
		return fmt.Errorf("error adding translation for %q: %w", source, err)
	}
	t.printer = message.NewPrinter(t.lang, message.Catalog(t.catalog))
	return nil
}

// Translate returns the translation of s, or s itself.
func (t *Translator) Translate(s string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.printer.Sprintf(escapePercent(s))
}

// catalog entries are format strings
func escapePercent(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}
