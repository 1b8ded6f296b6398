package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/brojonat/aascan/service/browser"
	"github.com/brojonat/aascan/service/networks"
	"github.com/brojonat/aascan/service/pagestate"
	"github.com/brojonat/aascan/service/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"pageQuery": pageQuery,
		"add":       func(a, b int) int { return a + b },
		"succeeded": func(b *bool) bool { return b == nil || *b },
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render renders a template with the given data
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tr.templates.ExecuteTemplate(w, name, data)
}

type pageData struct {
	Title     string
	Canonical string
	Networks  []networks.Descriptor
	Network   string
	PageSizes []int
	Kind      browser.Kind
	Dashboard *browser.DashboardSnapshot
	Table     *browser.Snapshot
	Detail    *browser.DetailSnapshot
}

func newPageData(sessions *session.Store, title, network string) pageData {
	return pageData{
		Title:     title,
		Networks:  sessions.Registry().List(),
		Network:   network,
		PageSizes: pagestate.AllowedPageSizes,
	}
}

// handleHomePage renders the dashboard.
func handleHomePage(renderer *TemplateRenderer, sessions *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessions.FromRequest(w, r)
		snap := refreshHome(r.Context(), sess, r.URL.Query())

		data := newPageData(sessions, "Home", snap.Network)
		data.Canonical = canonicalURL("/", snap.Query)
		data.Dashboard = &snap
		renderer.render(w, "home.html", data)
	}
}

// handleListPage renders one paginated list.
func handleListPage(renderer *TemplateRenderer, sessions *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := browser.ParseListKind(r.PathValue("kind"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		sess := sessions.FromRequest(w, r)
		snap := refreshList(r.Context(), sess, kind, r.URL.Query(), renderer.logger)

		data := newPageData(sessions, kind.Title(), snap.Page.Network)
		data.Canonical = canonicalURL("/"+string(kind), snap.Query)
		data.Kind = kind
		data.Table = &snap
		renderer.render(w, "list.html", data)
	}
}

// handleDetailPage renders a paymaster, bundler or account page.
func handleDetailPage(renderer *TemplateRenderer, sessions *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := browser.ParseDetailKind(r.PathValue("kind"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		address := r.PathValue("address")
		if err := validateSubject(address); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		sess := sessions.FromRequest(w, r)
		snap, err := loadDetail(r.Context(), sess, kind, address, r.URL.Query(), renderer.logger)
		if err != nil {
			return
		}

		data := newPageData(sessions, kind.Title(), snap.Table.Page.Network)
		data.Canonical = canonicalURL("/"+string(kind)+"/"+snap.Subject.Hash, snap.Table.Query)
		data.Kind = kind
		data.Detail = &snap
		data.Table = &snap.Table
		renderer.render(w, "detail.html", data)
	}
}

func (tr *TemplateRenderer) render(w http.ResponseWriter, name string, data pageData) {
	if err := tr.Render(w, name, data); err != nil {
		tr.logger.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// canonicalURL is the address the page's state encodes to. The page script
// replaces the visitor's URL with it, so corrected parameters are what a
// reload or a shared link carries.
func canonicalURL(path, query string) string {
	if query == "" {
		return path
	}
	return path + "?" + query
}

// pageQuery is the query string for page p of the table's current state.
func pageQuery(s pagestate.State, p int) string {
	s.PageNo = p
	return pagestate.Encode(s).Encode()
}
