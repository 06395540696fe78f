// Package api exposes the synchronization operations over HTTP: pack,
// unpack, fetch, push, pull, clone, bundle, unbundle, and the resumable
// upload endpoint. Handlers decode requests, delegate to the engine, and
// wrap results or taxonomy errors in the JSON envelope.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sourcegraph/conc"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/stratadb/strata/internal/auth"
	"github.com/stratadb/strata/internal/repo"
	"github.com/stratadb/strata/internal/syncerr"
	"github.com/stratadb/strata/internal/transport"
	"github.com/stratadb/strata/internal/tus"
	protocol "github.com/stratadb/strata/pkg/protocol/sync"
)

// Config tunes the API server.
type Config struct {
	// AuthSecret validates bearer tokens. Required unless Anonymous is set.
	AuthSecret []byte
	// Anonymous grants full capabilities to unauthenticated requests.
	// Development only.
	Anonymous bool
	// UploadDir spools resumable uploads.
	UploadDir string
	// OutboundToken authenticates this server against remotes it fetches
	// from on behalf of clients.
	OutboundToken string
	// TUSThreshold sets the outbound resumable-upload switchover size.
	TUSThreshold int64
}

// Server hosts the synchronization API over one engine.
type Server struct {
	engine  *repo.Engine
	uploads *tus.Handler
	cfg     Config
}

// NewServer builds a server and its upload spool.
func NewServer(engine *repo.Engine, cfg Config) (*Server, error) {
	uploads, err := tus.NewHandler(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	return &Server{engine: engine, uploads: uploads, cfg: cfg}, nil
}

// outbound builds the transport used when this server contacts a remote on
// behalf of a client (fetch, pull, clone).
func (s *Server) outbound() transport.Transport {
	return transport.NewHTTP(transport.HTTPOptions{
		Token:        s.cfg.OutboundToken,
		TUSThreshold: s.cfg.TUSThreshold,
	})
}

// Router assembles the API routes with version, logging, and
// authentication middleware.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/pack/{org}/{db}", s.handlePack).Methods(http.MethodPost)
	r.HandleFunc("/api/unpack/{org}/{db}", s.handleUnpack).Methods(http.MethodPost)
	r.HandleFunc("/api/fetch/{org}/{db}", s.handleFetch).Methods(http.MethodPost)
	r.HandleFunc("/api/push/{org}/{db}", s.handlePush).Methods(http.MethodPost)
	r.HandleFunc("/api/pull/{org}/{db}/local/branch/{branch}", s.handlePull).Methods(http.MethodPost)
	r.HandleFunc("/api/clone/{org}/{db}", s.handleClone).Methods(http.MethodPost)
	r.HandleFunc("/api/bundle/{org}/{db}", s.handleBundle).Methods(http.MethodPost)
	r.HandleFunc("/api/unbundle/{org}/{db}", s.handleUnbundle).Methods(http.MethodPost)
	s.uploads.Register(r)

	r.Use(s.versionMiddleware, s.logMiddleware, s.authMiddleware)
	return r
}

// ListenAndServe runs the API until ctx is cancelled, then drains
// in-flight requests. h2c is enabled so resumable-upload clients can
// multiplex chunks.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(s.Router(), &http2.Server{}),
		ReadHeaderTimeout: 30 * time.Second,
	}

	done := make(chan struct{})
	var wg conc.WaitGroup
	wg.Go(func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutting down api server", "error", err)
		}
	})
	defer wg.Wait()
	defer close(done)

	slog.InfoContext(ctx, "api server listening", "addr", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type contextKey int

const authKey contextKey = iota

// authContext extracts the request's capability context.
func authContext(r *http.Request) *auth.Context {
	if actx, ok := r.Context().Value(authKey).(*auth.Context); ok {
		return actx
	}
	return auth.NewContext("anonymous")
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		switch {
		case strings.HasPrefix(header, "Bearer "):
			actx, err := auth.ParseBearer(strings.TrimPrefix(header, "Bearer "), s.cfg.AuthSecret)
			if err != nil {
				writeError(w, r, err)
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), authKey, actx))
		case s.cfg.Anonymous:
			r = r.WithContext(context.WithValue(r.Context(), authKey, auth.System()))
		default:
			writeError(w, r, syncerr.New(syncerr.KindUnauthorized, "missing bearer token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) versionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Header.Get(protocol.VersionHeader); v != "" && v != protocol.ProtocolVersion {
			w.Header().Set(protocol.VersionHeader, protocol.ProtocolVersion)
			writeJSON(w, http.StatusBadRequest, protocol.Failure("api:version_mismatch",
				"protocol version "+v+" not supported"))
			return
		}
		w.Header().Set(protocol.VersionHeader, protocol.ProtocolVersion)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.InfoContext(r.Context(), "api request",
			"method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encoding api response", "error", err)
	}
}

// writeError maps a taxonomy error onto its status and failure envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := syncerr.KindOf(err)
	resp := protocol.ErrorResponse{
		Envelope: protocol.Failure(string(kind), err.Error()),
	}
	if e := syncerr.AsError(err); e != nil {
		resp.Path = e.Path
	}
	if kind == syncerr.KindInternal {
		slog.ErrorContext(r.Context(), "internal api error", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, syncerr.HTTPStatus(kind), resp)
}
