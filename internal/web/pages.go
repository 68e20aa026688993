package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/jogardn/orderdesk/internal/presentation"
	"github.com/jogardn/orderdesk/pkg/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"shortID": presentation.ShortID,
	"address": presentation.Address,
	"date":    presentation.Date,
	"money":   presentation.Money,
	"found":   presentation.OrdersFound,
	"pageOf":  presentation.PageOf,
	"statusStyle": func(s models.Status) template.CSS {
		c := presentation.ColorFor(s)
		return template.CSS("background:" + c.Background + ";color:" + c.Text + ";border:1px solid " + c.Border)
	},
}

type pages map[string]*template.Template

var pageNames = []string{"landing", "list", "form", "detail", "confirm", "notfound"}

func parsePages() (pages, error) {
	p := pages{}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		p[name] = t
	}
	return p, nil
}

// page is the part of every view the layout reads.
type page struct {
	Title  string
	Notice string
	Error  string
}

func (s *Server) render(w http.ResponseWriter, code int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := s.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.WithError(err).WithField("page", name).Error("Failed to render page")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	buf.WriteTo(w)
}
