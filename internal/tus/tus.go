// Package tus implements the resumable-upload endpoint large pack payloads
// arrive through (creation, HEAD offset probe, PATCH chunks, DELETE
// abandonment). Uploads land in a spool directory and are handed to the
// unpack endpoint by resource URI.
package tus

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Protocol constants (resumable upload 1.0.0).
const (
	Version         = "1.0.0"
	HeaderResumable = "Tus-Resumable"
	HeaderLength    = "Upload-Length"
	HeaderOffset    = "Upload-Offset"
	ContentType     = "application/offset+octet-stream"
)

// ErrUnknownResource indicates a resource URI that maps to no upload.
var ErrUnknownResource = errors.New("unknown upload resource")

type upload struct {
	length int64
	offset int64
}

// Handler serves the upload endpoint and resolves finished uploads for the
// unpack endpoint.
type Handler struct {
	dir string

	mu      sync.Mutex
	uploads map[string]*upload
}

// NewHandler spools uploads under dir.
func NewHandler(dir string) (*Handler, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating upload spool directory: %w", err)
	}
	return &Handler{dir: dir, uploads: make(map[string]*upload)}, nil
}

// Register mounts the upload routes on a router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/files", h.create).Methods(http.MethodPost)
	r.HandleFunc("/api/files/{id}", h.head).Methods(http.MethodHead)
	r.HandleFunc("/api/files/{id}", h.patch).Methods(http.MethodPatch)
	r.HandleFunc("/api/files/{id}", h.delete).Methods(http.MethodDelete)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	length, err := strconv.ParseInt(r.Header.Get(HeaderLength), 10, 64)
	if err != nil || length < 0 {
		http.Error(w, "missing or invalid Upload-Length", http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	f, err := os.Create(h.path(id))
	if err != nil {
		http.Error(w, "creating upload", http.StatusInternalServerError)
		return
	}
	_ = f.Close()

	h.mu.Lock()
	h.uploads[id] = &upload{length: length}
	h.mu.Unlock()

	w.Header().Set(HeaderResumable, Version)
	w.Header().Set("Location", "/api/files/"+id)
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) head(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.mu.Lock()
	up, ok := h.uploads[id]
	h.mu.Unlock()
	if !ok {
		http.Error(w, "unknown upload", http.StatusNotFound)
		return
	}

	w.Header().Set(HeaderResumable, Version)
	w.Header().Set(HeaderOffset, strconv.FormatInt(up.offset, 10))
	w.Header().Set(HeaderLength, strconv.FormatInt(up.length, 10))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if ct := r.Header.Get("Content-Type"); ct != ContentType {
		http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
		return
	}
	offset, err := strconv.ParseInt(r.Header.Get(HeaderOffset), 10, 64)
	if err != nil || offset < 0 {
		http.Error(w, "missing or invalid Upload-Offset", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	up, ok := h.uploads[id]
	h.mu.Unlock()
	if !ok {
		http.Error(w, "unknown upload", http.StatusNotFound)
		return
	}
	if offset != up.offset {
		http.Error(w, fmt.Sprintf("offset mismatch: have %d, got %d", up.offset, offset), http.StatusConflict)
		return
	}

	f, err := os.OpenFile(h.path(id), os.O_WRONLY, 0o600)
	if err != nil {
		http.Error(w, "opening upload", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		http.Error(w, "seeking upload", http.StatusInternalServerError)
		return
	}
	n, err := io.Copy(f, r.Body)
	if err != nil {
		http.Error(w, "writing chunk", http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	up.offset += n
	newOffset := up.offset
	h.mu.Unlock()

	w.Header().Set(HeaderResumable, Version)
	w.Header().Set(HeaderOffset, strconv.FormatInt(newOffset, 10))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.mu.Lock()
	_, ok := h.uploads[id]
	delete(h.uploads, id)
	h.mu.Unlock()
	if !ok {
		http.Error(w, "unknown upload", http.StatusNotFound)
		return
	}
	_ = os.Remove(h.path(id))

	w.Header().Set(HeaderResumable, Version)
	w.WriteHeader(http.StatusNoContent)
}

// Resolve reads a completed upload by its resource URI and removes it from
// the spool. Incomplete uploads are rejected.
func (h *Handler) Resolve(resourceURI string) ([]byte, error) {
	idx := strings.LastIndex(resourceURI, "/api/files/")
	if idx < 0 {
		return nil, fmt.Errorf("resource %s: %w", resourceURI, ErrUnknownResource)
	}
	id := resourceURI[idx+len("/api/files/"):]

	h.mu.Lock()
	up, ok := h.uploads[id]
	if ok {
		delete(h.uploads, id)
	}
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("resource %s: %w", resourceURI, ErrUnknownResource)
	}
	if up.offset != up.length {
		return nil, fmt.Errorf("upload %s incomplete: %d of %d bytes", id, up.offset, up.length)
	}

	data, err := os.ReadFile(h.path(id))
	if err != nil {
		return nil, fmt.Errorf("reading upload %s: %w", id, err)
	}
	_ = os.Remove(h.path(id))
	return data, nil
}

func (h *Handler) path(id string) string {
	return filepath.Join(h.dir, filepath.Base(id))
}
