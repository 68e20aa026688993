package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jogardn/orderdesk/internal/actions"
	"github.com/jogardn/orderdesk/internal/query"
	"github.com/jogardn/orderdesk/pkg/models"
)

type listResponse struct {
	Orders     []models.Order `json:"orders"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	PageCount  int            `json:"page_count"`
}

func (s *Server) APIListOrders(w http.ResponseWriter, r *http.Request) {
	p, err := ParseParams(r.URL.Query())
	if err != nil {
		s.respondWithErr(w, err)
		return
	}

	res, err := s.fetcher.FetchPage(r.Context(), p)
	if err != nil {
		s.respondWithErr(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, listResponse{
		Orders:     res.Rows,
		TotalCount: res.TotalCount,
		Page:       p.Page,
		PageSize:   p.PageSize,
		PageCount:  query.PageCount(res.TotalCount, p.PageSize),
	})
}

func (s *Server) APIGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.fetcher.FetchOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithErr(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, order)
}

func (s *Server) APICreateOrder(w http.ResponseWriter, r *http.Request) {
	form, ok := s.decodeForm(w, r)
	if !ok {
		return
	}
	s.respondWithAction(w, http.StatusCreated, s.actions.Create(r.Context(), form))
}

func (s *Server) APIUpdateOrder(w http.ResponseWriter, r *http.Request) {
	form, ok := s.decodeForm(w, r)
	if !ok {
		return
	}
	s.respondWithAction(w, http.StatusOK, s.actions.Update(r.Context(), mux.Vars(r)["id"], form))
}

func (s *Server) APIDeleteOrder(w http.ResponseWriter, r *http.Request) {
	s.respondWithAction(w, http.StatusOK, s.actions.Delete(r.Context(), mux.Vars(r)["id"]))
}

func (s *Server) decodeForm(w http.ResponseWriter, r *http.Request) (models.OrderFormData, bool) {
	var form models.OrderFormData
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.logger.WithError(err).Error("Failed to decode order request")
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body", nil)
		return form, false
	}
	return form, true
}

func (s *Server) respondWithAction(w http.ResponseWriter, okCode int, resp models.ActionResponse) {
	code := okCode
	if !resp.Success {
		code = statusFor(resp.Cause)
	}
	s.respondWithJSON(w, code, resp)
}

func (s *Server) respondWithErr(w http.ResponseWriter, err error) {
	var fields map[string]string
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		fields = ve.Fields
	}
	msg := err.Error()
	if models.IsNotFound(err) {
		msg = actions.MsgNotFound
	}
	s.respondWithError(w, statusFor(err), msg, fields)
}
