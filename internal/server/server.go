// Package server exposes the document's surfaces over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/andresmejia3/framewall/internal/logging"
	"github.com/andresmejia3/framewall/internal/snapshot"
	"github.com/andresmejia3/framewall/internal/surface"
	"github.com/andresmejia3/framewall/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = logging.MustGetLogger("server")

// StateReporter reports the connection state of each bound surface.
// render.Group implements it.
type StateReporter interface {
	States() map[string]types.ConnState
}

// SurfaceInfo is the JSON view of one surface.
type SurfaceInfo struct {
	ID     string `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Draws  uint64 `json:"draws"`
	State  string `json:"state,omitempty"`
}

// Server serves the surface routes and, when a registry is given, /metrics.
type Server struct {
	doc      *surface.Document
	states   StateReporter
	registry *prometheus.Registry
	router   chi.Router
}

// New builds the router. states and registry may be nil.
func New(doc *surface.Document, states StateReporter, registry *prometheus.Registry) *Server {
	s := &Server{doc: doc, states: states, registry: registry}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/surfaces", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/{id}.jpg", s.handleImage)
		r.Put("/{id}", s.handleCreate)
	})
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	}

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Annotatef(err, "listen %s", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Trace(err)
	}
	if err := <-errc; err != nil && err != http.ErrServerClosed {
		return errors.Trace(err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var states map[string]types.ConnState
	if s.states != nil {
		states = s.states.States()
	}

	ids := s.doc.IDs()
	out := make([]SurfaceInfo, 0, len(ids))
	for _, id := range ids {
		surf, ok := s.doc.Lookup(id)
		if !ok {
			continue
		}
		width, height := surf.Size()
		info := SurfaceInfo{ID: id, Width: width, Height: height, Draws: surf.Draws()}
		if st, ok := states[id]; ok {
			info.State = st.String()
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	surf, ok := s.doc.Lookup(id)
	if !ok {
		http.Error(w, "surface not found", http.StatusNotFound)
		return
	}

	img := surf.Snapshot()
	if img.Bounds().Empty() {
		// Nothing drawn yet
		w.WriteHeader(http.StatusNoContent)
		return
	}

	data, err := snapshot.EncodeJPEG(img, 85)
	if err != nil {
		log.Errorf("encode %s: %v", id, err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	surf, err := s.doc.Create(id)
	if errors.IsAlreadyExists(err) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Infof("surface %s inserted", id)
	writeJSON(w, http.StatusCreated, SurfaceInfo{ID: surf.ID()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warningf("write response: %v", err)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debugf("%s %s %d %s [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}
