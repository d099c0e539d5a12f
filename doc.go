// Package stencil provides reusable HTML components for a small
// Django-flavoured template language.
//
// stencil is organized around Components, Templates and an Engine. A
// Component is a piece of the HTML document with its own template, called
// from other templates with the component tag:
//
//	{% component "card" title="Hello" %}
//		{% fill "footer" %}Posted today{% endfill %}
//		...
//	{% endcomponent %}
//
// Component templates declare slots, placeholders that callers can fill:
//
//	<div class="card">
//		<h2>{{ title }}</h2>
//		{% slot "body" default %}Nothing here yet.{% endslot %}
//		{% slot "footer" %}{% endslot %}
//	</div>
//
// Content passed without a fill tag goes to the slot marked default. Slots
// marked required must be filled, and fills that match no slot are errors
// that suggest the closest slot name.
//
// Tag arguments support literals, variables, filters (`name|upper`,
// `items|join:", "`), translated strings (`_("Hello")`), list and dict
// literals, spreads (`...attrs`, `[*items]`, `{**defaults}`), aggregate keys
// (`attrs:class="wide"`) and quoted values that are templates themselves
// (`label="{{ count }} items"`).
//
// The Engine owns the component Registry and renders templates. Components
// are never rendered recursively: each call leaves a placeholder that the
// Engine replaces once the calling template has finished, so components can
// nest arbitrarily deep. Once every component has rendered, the CSS and JS
// they declare through CSSLinker, CSSEmbedder, JSLinker and JSEmbedder are
// ordered and injected into the document.
//
// Each server should have a Site, which acts as a singleton for the server
// and provides the fs.FS containing the templates that Components are using.
// CachedSite is a Site that caches compiled templates and can watch a
// directory to drop them when they change. To render a whole page with a
// fallback error page, pass it to the Render function.
package stencil
