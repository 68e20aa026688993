// Package web serves the order desk over HTTP: server-rendered HTML pages,
// a JSON API with the same semantics, and the live list websocket.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/orderdesk/internal/actions"
	"github.com/jogardn/orderdesk/internal/circuitbreaker"
	"github.com/jogardn/orderdesk/internal/query"
	"github.com/jogardn/orderdesk/pkg/models"
)

// LiveHub is the websocket side of the server.
type LiveHub interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	ClientCount() int
}

type Deps struct {
	Actions  *actions.Service
	Fetcher  *query.Fetcher
	Live     LiveHub
	Breakers *circuitbreaker.Manager
	Logger   *logrus.Logger
}

type Server struct {
	actions  *actions.Service
	fetcher  *query.Fetcher
	live     LiveHub
	breakers *circuitbreaker.Manager
	pages    pages
	logger   *logrus.Logger
}

func New(deps Deps) (*Server, error) {
	p, err := parsePages()
	if err != nil {
		return nil, err
	}
	return &Server{
		actions:  deps.Actions,
		fetcher:  deps.Fetcher,
		live:     deps.Live,
		breakers: deps.Breakers,
		pages:    p,
		logger:   deps.Logger,
	}, nil
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.HealthCheck).Methods("GET")
	api.HandleFunc("/orders", s.APIListOrders).Methods("GET")
	api.HandleFunc("/orders", s.APICreateOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.APIGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}", s.APIUpdateOrder).Methods("PUT")
	api.HandleFunc("/orders/{id}", s.APIDeleteOrder).Methods("DELETE")

	router.HandleFunc("/", s.Landing).Methods("GET")
	router.HandleFunc("/orders", s.ListOrders).Methods("GET")
	router.HandleFunc("/orders", s.CreateOrder).Methods("POST")
	router.HandleFunc("/orders/new", s.NewOrder).Methods("GET")
	router.HandleFunc("/orders/{id}", s.ShowOrder).Methods("GET")
	router.HandleFunc("/orders/{id}", s.UpdateOrder).Methods("POST")
	router.HandleFunc("/orders/{id}/delete", s.ConfirmDelete).Methods("GET")
	router.HandleFunc("/orders/{id}/delete", s.DeleteOrder).Methods("POST")

	if s.live != nil {
		router.HandleFunc("/ws", s.live.HandleWebSocket)
	}

	router.Use(corsMiddleware())
	router.Use(loggingMiddleware(s.logger))

	return router
}

func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	storeHealth := map[string]interface{}{"status": "healthy"}
	if err := s.fetcher.Table().Ping(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		storeHealth = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
	}

	breakers := []circuitbreaker.Metrics{}
	if s.breakers != nil {
		breakers = s.breakers.AllMetrics()
	}
	liveClients := 0
	if s.live != nil {
		liveClients = s.live.ClientCount()
	}

	s.respondWithJSON(w, status, map[string]interface{}{
		"status":           storeHealth["status"],
		"service":          "orderdesk",
		"store":            storeHealth,
		"circuit_breakers": breakers,
		"live_clients":     liveClients,
		"timestamp":        time.Now().UTC(),
	})
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) int {
	var ve *models.ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case models.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
		code = http.StatusInternalServerError
		response = []byte(`{"success":false,"message":"Failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, fields map[string]string) {
	s.respondWithJSON(w, code, models.ActionResponse{
		Success: false,
		Message: message,
		Errors:  fields,
	})
}
