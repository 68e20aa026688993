package web

import (
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/jogardn/orderdesk/internal/presentation"
	"github.com/jogardn/orderdesk/internal/query"
	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

const DeleteWarning = "Are you sure? This action is permanent and cannot be undone."

type landingPage struct {
	page
	Connected bool
}

type header struct {
	Header string
	Align  presentation.Align
	URL    string
	Arrow  string
}

type listPage struct {
	page
	Params     query.Params
	Statuses   []models.Status
	Headers    []header
	Rows       []models.Order
	TotalCount int
	PageCount  int
	PrevURL    string
	NextURL    string
}

type formPage struct {
	page
	Action   string
	Cancel   string
	Editing  bool
	Form     formValues
	Errors   map[string]string
	Statuses []models.Status
}

type orderPage struct {
	page
	Order   *models.Order
	Warning string
}

func (s *Server) Landing(w http.ResponseWriter, r *http.Request) {
	data := landingPage{page: page{Title: "Welcome"}, Connected: true}
	if err := s.fetcher.Table().Ping(r.Context()); err != nil {
		s.logger.WithError(err).Warn("Order store connection check failed")
		data.Connected = false
		data.Error = err.Error()
	}
	s.render(w, http.StatusOK, "landing", data)
}

func (s *Server) ListOrders(w http.ResponseWriter, r *http.Request) {
	p, err := ParseParams(r.URL.Query())
	data := listPage{
		page:      page{Title: "Orders", Notice: r.URL.Query().Get("notice")},
		Params:    p,
		Statuses:  models.Statuses,
		Rows:      []models.Order{},
		PageCount: 1,
	}
	if err != nil {
		data.Error = err.Error()
		data.Headers = headers(query.DefaultParams())
		s.render(w, http.StatusBadRequest, "list", data)
		return
	}
	data.Headers = headers(p)

	res, err := s.fetcher.FetchPage(r.Context(), p)
	if err != nil {
		data.Error = err.Error()
		s.render(w, statusFor(err), "list", data)
		return
	}

	data.Rows = res.Rows
	data.TotalCount = res.TotalCount
	data.PageCount = query.PageCount(res.TotalCount, p.PageSize)
	if p.Page > 0 {
		prev := p
		prev.Page--
		data.PrevURL = listURL(prev)
	}
	if p.Page+1 < data.PageCount {
		next := p
		next.Page++
		data.NextURL = listURL(next)
	}
	s.render(w, http.StatusOK, "list", data)
}

// headers links each sortable column to the list sorted by it, toggling the
// direction of the active column. Sorting keeps the current page.
func headers(p query.Params) []header {
	q, _ := query.Compose(p)
	active := q.Sort

	out := make([]header, 0, len(presentation.Columns))
	for _, c := range presentation.Columns {
		h := header{Header: c.Header, Align: c.Align}
		if c.Sortable {
			next := p
			next.SortField = c.Field
			next.SortDirection = store.Ascending
			if active.Field == c.Field {
				if active.Direction == store.Ascending {
					h.Arrow = " ▲"
					next.SortDirection = store.Descending
				} else {
					h.Arrow = " ▼"
				}
			}
			h.URL = listURL(next)
		}
		out = append(out, h)
	}
	return out
}

func (s *Server) NewOrder(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "form", formPage{
		page:     page{Title: "New order"},
		Action:   "/orders",
		Cancel:   "/orders",
		Form:     formValues{Status: string(models.StatusCreated)},
		Statuses: models.Statuses,
	})
}

func (s *Server) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	form := readForm(r.PostForm)

	resp := s.actions.Create(r.Context(), form.data())
	if resp.Success {
		redirectWithNotice(w, r, resp.Message)
		return
	}
	s.render(w, statusFor(resp.Cause), "form", formPage{
		page:     page{Title: "New order", Error: resp.Message},
		Action:   "/orders",
		Cancel:   "/orders",
		Form:     form,
		Errors:   resp.Errors,
		Statuses: models.Statuses,
	})
}

func (s *Server) ShowOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	order, ok := s.loadOrder(w, r, id)
	if !ok {
		return
	}

	if r.URL.Query().Get("edit") == "true" {
		s.render(w, http.StatusOK, "form", formPage{
			page:     page{Title: "Edit order " + presentation.ShortID(id)},
			Action:   "/orders/" + id,
			Cancel:   "/orders/" + id,
			Editing:  true,
			Form:     formFromOrder(order),
			Statuses: models.Statuses,
		})
		return
	}
	s.render(w, http.StatusOK, "detail", orderPage{
		page:  page{Title: "Order " + presentation.ShortID(id), Notice: r.URL.Query().Get("notice")},
		Order: &order,
	})
}

func (s *Server) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	form := readForm(r.PostForm)

	resp := s.actions.Update(r.Context(), id, form.data())
	if resp.Success {
		redirectWithNotice(w, r, resp.Message)
		return
	}
	if models.IsNotFound(resp.Cause) {
		s.render(w, http.StatusNotFound, "notfound", page{Title: "Order not found", Error: resp.Message})
		return
	}
	s.render(w, statusFor(resp.Cause), "form", formPage{
		page:     page{Title: "Edit order " + presentation.ShortID(id), Error: resp.Message},
		Action:   "/orders/" + id,
		Cancel:   "/orders/" + id,
		Editing:  true,
		Form:     form,
		Errors:   resp.Errors,
		Statuses: models.Statuses,
	})
}

func (s *Server) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	order, ok := s.loadOrder(w, r, id)
	if !ok {
		return
	}
	s.render(w, http.StatusOK, "confirm", orderPage{
		page:    page{Title: "Delete order " + presentation.ShortID(id)},
		Order:   &order,
		Warning: DeleteWarning,
	})
}

func (s *Server) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	resp := s.actions.Delete(r.Context(), id)
	if resp.Success {
		redirectWithNotice(w, r, resp.Message)
		return
	}
	if models.IsNotFound(resp.Cause) {
		s.render(w, http.StatusNotFound, "notfound", page{Title: "Order not found", Error: resp.Message})
		return
	}
	// The row is still there; show the confirmation again with the failure.
	data := orderPage{page: page{Title: "Delete order " + presentation.ShortID(id), Error: resp.Message}, Warning: DeleteWarning}
	if order, err := s.fetcher.FetchOrder(r.Context(), id); err == nil {
		data.Order = &order
	}
	s.render(w, statusFor(resp.Cause), "confirm", data)
}

// loadOrder writes the not-found or error page itself and reports false
// when the order cannot be shown.
func (s *Server) loadOrder(w http.ResponseWriter, r *http.Request, id string) (models.Order, bool) {
	order, err := s.fetcher.FetchOrder(r.Context(), id)
	switch {
	case err == nil:
		return order, true
	case models.IsNotFound(err):
		s.render(w, http.StatusNotFound, "notfound", page{Title: "Order not found"})
	default:
		s.logger.WithError(err).WithField("order_id", id).Error("Failed to load order")
		s.render(w, statusFor(err), "notfound", page{Title: "Order unavailable", Error: err.Error()})
	}
	return models.Order{}, false
}

func redirectWithNotice(w http.ResponseWriter, r *http.Request, notice string) {
	http.Redirect(w, r, "/orders?"+url.Values{"notice": {notice}}.Encode(), http.StatusSeeOther)
}
