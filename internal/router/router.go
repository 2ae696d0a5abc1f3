package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	httpserver "CallCoordinator/internal/http_server"
	"CallCoordinator/internal/metrics"
)

func NewRouter(s *httpserver.HttpServer, gatherer prometheus.Gatherer, logger zerolog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RealIP, middleware.RequestID, middleware.Recoverer, instrument(logger))

	r.HandleFunc("/ws", s.ServeWS).Methods("GET")
	r.HandleFunc("/healthz", s.Health).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.RequireAdmin)
	// calls
	api.HandleFunc("/calls", s.ListCallJournal).Methods("GET")
	api.HandleFunc("/calls/active", s.ListActiveCalls).Methods("GET")
	// presence
	api.HandleFunc("/presence", s.ListPresence).Methods("GET")

	return r
}

// instrument records HTTP metrics per route template and logs each request.
// The chi wrapper keeps http.Hijacker available for the websocket upgrade.
func instrument(logger zerolog.Logger) mux.MiddlewareFunc {
	logger = logger.With().Str("component", "router").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			metrics.HTTPInFlight.Inc()
			defer metrics.HTTPInFlight.Dec()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())

			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("route", route).
				Int("status", status).
				Dur("elapsed", time.Since(start)).
				Msg("http request")
		})
	}
}
