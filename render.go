package stencil

import (
	"context"
	"fmt"
	"io"
)

// Page is a single logical page of the application: a template rendered at
// the root, and the data it renders with. A Page may also implement any of
// CSSLinker, CSSEmbedder, JSLinker and JSEmbedder; its resources are
// injected along with those of the components it renders.
type Page interface {
	// Template returns the path of the page's template in the Site's
	// TemplateDir.
	Template(context.Context) string

	// Data returns the variables the page's template renders with.
	Data(context.Context) map[string]any
}

// Render renders the passed Page to the Writer. If it can't, a server error
// page is written instead. If the Engine's Site implements ServerErrorPager,
// that will be rendered; if not, a simple text page indicating a server error
// will be written.
//
// Nothing is written until the page has rendered completely.
func Render(ctx context.Context, out io.Writer, engine *Engine, page Page) {
	defer func() {
		// if the ResponseWriter can be closed, let's try to close it
		if closer, ok := out.(io.Closer); ok {
			err := closer.Close()
			// if there's an error closing it, logging it's about all we can do
			if err != nil {
				logger(ctx).ErrorContext(ctx, "error closing response writer", "error", err)
			}
		}
	}()

	// try to render the page
	err := basicRender(ctx, out, engine, page)

	// if there's no error, we're done here
	if err == nil {
		return
	}

	// if there is an error, we now need to try and render a server error
	// page

	// but first we're logging whatever went wrong
	logger(ctx).ErrorContext(ctx, "error rendering page", "error", err)

	// now let's render the server error page
	if pager, ok := engine.site.(ServerErrorPager); ok {
		err = basicRender(ctx, out, engine, pager.ServerErrorPage(ctx))
		if err != nil {
			// if we can't do that, everything's doomed, doomed, doomed
			// just log it and we'll move on
			logger(ctx).ErrorContext(ctx, "error rendering server error page", "error", err)
		}
		return
	}

	// there's no default server error page, write a server error message
	_, err = out.Write([]byte("Server error."))
	if err != nil {
		logger(ctx).ErrorContext(ctx, "error writing server error message", "error", err)
	}
}

func basicRender(ctx context.Context, out io.Writer, engine *Engine, page Page) error {
	path := page.Template(ctx)
	if path == "" {
		return fmt.Errorf("error rendering %T: %w", page, ErrNoTemplatePath)
	}
	tmpl, err := engine.loadTemplate(ctx, path)
	if err != nil {
		return fmt.Errorf("error loading template for %T: %w", page, err)
	}
	// every Page is a Component, so its own resources are collected too
	html, err := engine.renderRoot(ctx, tmpl.Name, page.Data(ctx), []Component{page}, tmpl.Render)
	if err != nil {
		return fmt.Errorf("error rendering %T: %w", page, err)
	}
	_, err = io.WriteString(out, html)
	if err != nil {
		return fmt.Errorf("error writing %T: %w", page, err)
	}
	return nil
}
