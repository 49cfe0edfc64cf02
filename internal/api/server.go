package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/signalsfoundry/coverage-mapper/internal/engine"
	"github.com/signalsfoundry/coverage-mapper/internal/logging"
	"github.com/signalsfoundry/coverage-mapper/internal/observability"
)

// Server exposes the mapping engine over HTTP/JSON.
type Server struct {
	engine  *engine.MappingEngine
	log     logging.Logger
	metrics *observability.SurveyCollector
}

// NewServer wires handlers around an engine. The collector is optional.
func NewServer(eng *engine.MappingEngine, log logging.Logger, metrics *observability.SurveyCollector) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{engine: eng, log: log, metrics: metrics}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	s.handle(r, "/health", s.health, http.MethodGet)

	s.handle(r, "/v1/status", s.status, http.MethodGet)
	s.handle(r, "/v1/position", s.position, http.MethodGet)
	s.handle(r, "/v1/heatmap", s.heatmap, http.MethodGet)
	s.handle(r, "/v1/bands", s.bands, http.MethodGet)
	s.handle(r, "/v1/gaps", s.gaps, http.MethodGet)
	s.handle(r, "/v1/recommendations", s.recommendations, http.MethodGet)

	s.handle(r, "/v1/samples", s.postSamples, http.MethodPost)
	s.handle(r, "/v1/recompute", s.postRecompute, http.MethodPost)
	s.handle(r, "/v1/calibration/start", s.calibrationStart, http.MethodPost)
	s.handle(r, "/v1/calibration/point", s.calibrationPoint, http.MethodPost)
	s.handle(r, "/v1/calibration/complete", s.calibrationComplete, http.MethodPost)

	return r
}

func (s *Server) handle(r *mux.Router, route string, h http.HandlerFunc, method string) {
	var handler http.Handler = s.requestID(h)
	if s.metrics != nil {
		handler = s.metrics.Middleware(route, handler)
	}
	r.Handle(route, handler).Methods(method)
}

// requestID tags every request with an ID so handler logs correlate.
func (s *Server) requestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, id := logging.EnsureRequestID(r.Context())
		w.Header().Set("X-Request-Id", id)
		next(w, r.WithContext(ctx))
	}
}
