// Package server exposes the grounding service over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"

	"github.com/cognicore/grounding/pkg/grounding/datasource/chebi"
	"github.com/cognicore/grounding/pkg/grounding/datasource/uniprot"
	"github.com/cognicore/grounding/pkg/grounding/ingest"
	"github.com/cognicore/grounding/pkg/grounding/internalerr"
	"github.com/cognicore/grounding/pkg/grounding/organism"
	"github.com/cognicore/grounding/pkg/grounding/store"
)

// Grounder is the part of grounding.Service the server uses
type Grounder interface {
	Search(ctx context.Context, ns, q string, from, size int) ([]store.Record, error)
	Get(ctx context.Context, ns, id string) (*store.Record, error)
	Update(ctx context.Context, ns string, force bool) (ingest.Report, error)
	Clear(ctx context.Context, ns string) error
	Runs(ctx context.Context, limit int) ([]store.Run, error)
	Namespaces() []string
}

// Options configures a Server
type Options struct {
	Addr string
	// MaxConns caps simultaneous connections; zero means no cap
	MaxConns  int
	Organisms *organism.AllowList
}

// Server handles grounding HTTP requests
type Server struct {
	svc    Grounder
	opts   Options
	router *httprouter.Router
}

// route describes one endpoint for the /api/docs listing
type route struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var routes = []route{
	{"POST", "/uniprot", "search UniProt: {q, from?, size?}"},
	{"POST", "/chebi", "search ChEBI: {q, from?, size?}"},
	{"POST", "/search", "search one namespace or all of them: {q, namespace?, from?, size?}"},
	{"POST", "/get", "look up a record: {namespace, id}"},
	{"POST", "/update/:namespace", "reindex a namespace; ?force=true downloads again"},
	{"POST", "/clear/:namespace", "remove every record of a namespace"},
	{"GET", "/runs", "recent ingestion runs; ?limit=N"},
	{"GET", "/organisms", "supported organisms"},
	{"GET", "/metrics", "Prometheus metrics"},
}

// New creates a server over svc
func New(svc Grounder, opts Options) *Server {
	if opts.Organisms == nil {
		opts.Organisms = organism.DefaultAllowList()
	}
	s := &Server{svc: svc, opts: opts}

	m := httprouter.New()
	m.GET("/", s.index)
	m.GET("/api/docs", s.docs)
	m.POST("/uniprot", s.searchIn(uniprot.Namespace))
	m.POST("/chebi", s.searchIn(chebi.Namespace))
	m.POST("/search", s.search)
	m.POST("/get", s.get)
	m.POST("/update/:namespace", s.update)
	m.POST("/clear/:namespace", s.clear)
	m.GET("/runs", s.runs)
	m.GET("/organisms", s.organisms)
	m.Handler("GET", "/metrics", promhttp.Handler())
	s.router = m
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Debugf("[API] %v %v", r.Method, r.URL)
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on the configured address until ctx is done
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.opts.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.opts.MaxConns)
	}
	hs := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- hs.Serve(ln)
	}()
	log.WithField("addr", ln.Addr().String()).Info("Grounding server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	http.Redirect(w, r, "/api/docs", http.StatusFound)
}

func (s *Server) docs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	write(w, r, map[string]interface{}{
		"namespaces": s.svc.Namespaces(),
		"routes":     routes,
	})
}

type searchRequest struct {
	Q         string `json:"q"`
	Namespace string `json:"namespace"`
	From      int    `json:"from"`
	Size      int    `json:"size"`
}

func (req searchRequest) validate() error {
	if strings.TrimSpace(req.Q) == "" {
		return newError(http.StatusBadRequest, "missing search text q")
	}
	if req.From < 0 || req.Size < 0 {
		return newError(http.StatusBadRequest, "from and size must not be negative")
	}
	return nil
}

// searchIn serves the fixed-namespace search routes
func (s *Server) searchIn(ns string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req searchRequest
		if err := decode(r, &req); err != nil {
			write(w, r, err)
			return
		}
		if err := req.validate(); err != nil {
			write(w, r, err)
			return
		}
		recs, err := s.svc.Search(r.Context(), ns, req.Q, req.From, req.Size)
		write(w, r, err, recs)
	}
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req searchRequest
	if err := decode(r, &req); err != nil {
		write(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		write(w, r, err)
		return
	}
	recs, err := s.svc.Search(r.Context(), req.Namespace, req.Q, req.From, req.Size)
	write(w, r, err, recs)
}

type getRequest struct {
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
}

// get answers null for an unknown id in a known namespace
func (s *Server) get(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req getRequest
	if err := decode(r, &req); err != nil {
		write(w, r, err)
		return
	}
	if req.Namespace == "" || req.ID == "" {
		write(w, r, newError(http.StatusBadRequest, "namespace and id are required"))
		return
	}
	rec, err := s.svc.Get(r.Context(), req.Namespace, req.ID)
	if err != nil {
		write(w, r, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	write(w, r, rec)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ns := ps.ByName("namespace")
	force, err := boolParam(r, "force")
	if err != nil {
		write(w, r, err)
		return
	}
	// ingestion outlives a client that stops waiting
	ctx := context.WithoutCancel(r.Context())
	rep, err := s.svc.Update(ctx, ns, force)
	write(w, r, err, rep)
}

func (s *Server) clear(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ns := ps.ByName("namespace")
	if err := s.svc.Clear(r.Context(), ns); err != nil {
		write(w, r, err)
		return
	}
	write(w, r, map[string]string{"namespace": ns, "status": "cleared"})
}

func (s *Server) runs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			write(w, r, newError(http.StatusBadRequest, "invalid limit %q", raw))
			return
		}
		limit = n
	}
	runs, err := s.svc.Runs(r.Context(), limit)
	if runs == nil && err == nil {
		runs = []store.Run{}
	}
	write(w, r, err, runs)
}

func (s *Server) organisms(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	write(w, r, s.opts.Organisms.All())
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, newError(http.StatusBadRequest, "invalid %s %q: %v", name, raw, internalerr.ErrInvalidInput)
	}
	return v, nil
}
