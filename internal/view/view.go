// Package view renders the board's HTML pages.
//
// Every page is parsed together with base.html, which supplies the layout,
// the navigation and the flash messages. Templates and static assets are
// compiled into the binary.
//
// Text fields are stored HTML-escaped. The "stored" template func unescapes
// them so html/template can escape them exactly once on output.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/Masterminds/sprig/v3"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page names.
const (
	PageHome       = "home"
	PageSignUp     = "sign-up"
	PageJoinClub   = "join-club"
	PageAdmin      = "admin"
	PageNewMessage = "new-message"
	PageError      = "error"
)

var pages = []string{PageHome, PageSignUp, PageJoinClub, PageAdmin, PageNewMessage, PageError}

// Page is the data every template receives.
type Page struct {
	Title string
	User  *model.User
	Flash []string

	// Form echoes submitted values back into the inputs.
	Form map[string]string
	// Errors holds the field errors of a rejected form, if any.
	Errors *apperror.ValidationErrors

	Messages      []model.Message
	CanSeeAuthors bool
	CanDelete     bool
	CanJoinClub   bool
	CanBeAdmin    bool
	AdminEnabled  bool

	// Status and Message describe an error page.
	Status  int
	Message string
}

// FieldError returns the first error message for field, or "".
func (p *Page) FieldError(field string) string {
	if p.Errors == nil {
		return ""
	}
	for _, e := range p.Errors.Errors {
		if e.Field == field {
			return e.Message
		}
	}
	return ""
}

// Value returns the echoed form value for field, unescaped for display.
func (p *Page) Value(field string) string {
	return html.UnescapeString(p.Form[field])
}

// Templates holds one parsed template set per page.
type Templates struct {
	pages map[string]*template.Template
}

// New parses every page. It fails only on a broken template, which is a
// programming error caught at startup.
func New() (*Templates, error) {
	funcs := sprig.FuncMap()
	funcs["stored"] = html.UnescapeString

	t := &Templates{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/base.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("view: parsing %s: %w", name, err)
		}
		t.pages[name] = tmpl
	}
	return t, nil
}

// Render executes page into a buffer and writes it with status. Nothing is
// written when execution fails, so the caller can still send an error page.
func (t *Templates) Render(w http.ResponseWriter, status int, name string, p *Page) error {
	tmpl, ok := t.pages[name]
	if !ok {
		return fmt.Errorf("view: unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", p); err != nil {
		return fmt.Errorf("view: rendering %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Static returns the embedded static assets rooted at static/.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
