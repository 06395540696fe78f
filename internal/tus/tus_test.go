package tus

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Handler, *httptest.Server) {
	t.Helper()
	h, err := NewHandler(t.TempDir())
	require.NoError(t, err)
	r := mux.NewRouter()
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return h, srv
}

func createUpload(t *testing.T, srv *httptest.Server, length int) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/files", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderResumable, Version)
	req.Header.Set(HeaderLength, strconv.Itoa(length))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.NotEmpty(t, location)
	return srv.URL + location
}

func patchChunk(t *testing.T, srv *httptest.Server, resource string, offset int, chunk []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPatch, resource, bytes.NewReader(chunk))
	require.NoError(t, err)
	req.Header.Set(HeaderResumable, Version)
	req.Header.Set(HeaderOffset, strconv.Itoa(offset))
	req.Header.Set("Content-Type", ContentType)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestUploadRoundTrip(t *testing.T) {
	h, srv := newTestServer(t)
	payload := []byte("a payload split across two chunks")

	resource := createUpload(t, srv, len(payload))

	resp := patchChunk(t, srv, resource, 0, payload[:10])
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "10", resp.Header.Get(HeaderOffset))

	resp = patchChunk(t, srv, resource, 10, payload[10:])
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, strconv.Itoa(len(payload)), resp.Header.Get(HeaderOffset))

	got, err := h.Resolve(resource)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// resolved uploads are gone
	_, err = h.Resolve(resource)
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestOffsetMismatchRejected(t *testing.T) {
	_, srv := newTestServer(t)
	resource := createUpload(t, srv, 10)

	resp := patchChunk(t, srv, resource, 5, []byte("hello"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHeadReportsOffset(t *testing.T) {
	_, srv := newTestServer(t)
	resource := createUpload(t, srv, 10)
	patchChunk(t, srv, resource, 0, []byte("abcde"))

	req, err := http.NewRequest(http.MethodHead, resource, nil)
	require.NoError(t, err)
	req.Header.Set(HeaderResumable, Version)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get(HeaderOffset))
	assert.Equal(t, "10", resp.Header.Get(HeaderLength))
}

func TestDeleteAbandonsUpload(t *testing.T) {
	h, srv := newTestServer(t)
	resource := createUpload(t, srv, 10)

	req, err := http.NewRequest(http.MethodDelete, resource, nil)
	require.NoError(t, err)
	req.Header.Set(HeaderResumable, Version)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = h.Resolve(resource)
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestResolveIncomplete(t *testing.T) {
	h, srv := newTestServer(t)
	resource := createUpload(t, srv, 10)
	patchChunk(t, srv, resource, 0, []byte("abc"))

	_, err := h.Resolve(resource)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownResource)
}
