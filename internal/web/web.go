// Package web holds the embedded HTML templates and static assets, and the
// gin renderer that serves them.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin/render"

	"github.com/mamadbah2/stockapp/internal/domain/models"
)

//go:embed templates static
var files embed.FS

// Page names accepted by Renderer.Instance.
const (
	PageLogin     = "login"
	PageRegister  = "register"
	PageDashboard = "dashboard"
	PageProducts  = "products"
	PageSupplies  = "supplies"
	PageOutputs   = "outputs"
	PageError     = "error"
)

var pageLayouts = map[string]string{
	PageLogin:     "auth",
	PageRegister:  "auth",
	PageDashboard: "app",
	PageProducts:  "app",
	PageSupplies:  "app",
	PageOutputs:   "app",
	PageError:     "auth",
}

// NavItem is one sidebar entry. Href identifies the active page; Link, when
// set, is the URL the entry points to.
type NavItem struct {
	Label string
	Href  string
	Link  string
	Icon  string
}

// Navigation lists the sidebar entries in display order.
var Navigation = []NavItem{
	{Label: "Tableau de bord", Href: "/dashboard", Icon: "chart"},
	{Label: "Produits", Href: "/products", Link: "/products?refresh=1", Icon: "package"},
	{Label: "Approvisionnements", Href: "/supplies", Icon: "truck"},
	{Label: "Sorties", Href: "/outputs", Icon: "cart"},
}

// Renderer implements gin's render.HTMLRender with one template set per
// page, each combining the page with its layout and the shared partials.
type Renderer struct {
	templates map[string]*pageTemplate
}

type pageTemplate struct {
	layout string
	tmpl   *template.Template
}

// NewRenderer parses every page. Product images are resolved against
// assetBaseURL.
func NewRenderer(assetBaseURL string) (*Renderer, error) {
	funcs := Funcs(assetBaseURL)
	r := &Renderer{templates: make(map[string]*pageTemplate, len(pageLayouts))}
	for page, layout := range pageLayouts {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(files,
			"templates/layouts/"+layout+".html",
			"templates/partials/*.html",
			"templates/pages/"+page+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", page, err)
		}
		r.templates[page] = &pageTemplate{layout: layout, tmpl: tmpl}
	}
	return r, nil
}

// Instance implements render.HTMLRender.
func (r *Renderer) Instance(name string, data any) render.Render {
	page, ok := r.templates[name]
	if !ok {
		page = r.templates[PageError]
		data = Page{Title: "Erreur", Content: ErrorView{Message: "Page introuvable: " + name}}
	}
	return render.HTML{Template: page.tmpl, Name: page.layout, Data: data}
}

// Static returns the embedded static assets rooted at static/.
func Static() http.FileSystem {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}

// Funcs are the helpers available to every template.
func Funcs(assetBaseURL string) template.FuncMap {
	base := strings.TrimSuffix(assetBaseURL, "/")
	return template.FuncMap{
		"assetURL": func(path string) string {
			if path == "" {
				return ""
			}
			if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
				return path
			}
			return base + "/" + strings.TrimPrefix(path, "/")
		},
		"price": func(v float64) string {
			return strconv.FormatFloat(v, 'f', 2, 64)
		},
		"number": func(v float64) string {
			return strconv.FormatFloat(v, 'f', -1, 64)
		},
		"productOptions": func(products []models.Product, selected string, withStock bool) ProductOptions {
			return ProductOptions{Products: products, Selected: selected, WithStock: withStock}
		},
		"optionLabel": func(p models.Product, withStock bool) string {
			if withStock {
				return fmt.Sprintf("%s (Stock: %d)", p.Name, p.CurrentStock)
			}
			return p.Name
		},
	}
}
