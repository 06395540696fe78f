package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/internal/auth"
	"github.com/stratadb/strata/internal/meta"
	"github.com/stratadb/strata/internal/repo"
	"github.com/stratadb/strata/internal/syncerr"
	"github.com/stratadb/strata/internal/testutil"
	"github.com/stratadb/strata/internal/transport"
	protocol "github.com/stratadb/strata/pkg/protocol/sync"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestAPI(t *testing.T) (*testutil.DB, *httptest.Server) {
	t.Helper()
	db := testutil.NewNamedDB(t, meta.DBPath{Org: "acme", Name: "widgets"})
	engine := repo.New(db.Store, db.Meta)
	srv, err := NewServer(engine, Config{
		AuthSecret: testSecret,
		UploadDir:  t.TempDir(),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return db, ts
}

func token(t *testing.T, caps ...auth.Capability) string {
	t.Helper()
	tok, err := auth.SignToken("alice", testSecret, caps...)
	require.NoError(t, err)
	return tok
}

func doJSON(t *testing.T, ts *httptest.Server, path, bearer string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(protocol.VersionHeader, protocol.ProtocolVersion)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestAuthRequired(t *testing.T) {
	_, ts := newTestAPI(t)

	resp := doJSON(t, ts, "/api/pack/acme/widgets", "", protocol.PackRequest{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var envelope protocol.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, protocol.StatusFailure, envelope.Status)
	assert.Equal(t, string(syncerr.KindUnauthorized), envelope.ErrorTerm)
}

func TestVersionNegotiation(t *testing.T) {
	_, ts := newTestAPI(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/pack/acme/widgets", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	req.Header.Set(protocol.VersionHeader, "99")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, protocol.ProtocolVersion, resp.Header.Get(protocol.VersionHeader))
}

func TestPackEndpoint(t *testing.T) {
	db, ts := newTestAPI(t)
	bearer := token(t, auth.CapCommitRead)

	t.Run("EmptyRepositoryIs204", func(t *testing.T) {
		resp := doJSON(t, ts, "/api/pack/acme/widgets", bearer, protocol.PackRequest{})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	c1 := db.Commit("main", "initial", []byte("triples"))

	t.Run("FullPack", func(t *testing.T) {
		resp := doJSON(t, ts, "/api/pack/acme/widgets", bearer, protocol.PackRequest{})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, protocol.ContentTypeOctets, resp.Header.Get("Content-Type"))
	})

	t.Run("UpToDateBaselineIs204", func(t *testing.T) {
		head := c1.Layers.Instance.Hex()
		resp := doJSON(t, ts, "/api/pack/acme/widgets", bearer, protocol.PackRequest{RepositoryHead: &head})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}

// TestPushOverHTTP drives a full push through the HTTP transport against
// the API server, including the diverged rejection surfacing through the
// envelope.
func TestPushOverHTTP(t *testing.T) {
	ctx := t.Context()
	serverDB, ts := newTestAPI(t)
	serverDB.Commit("main", "initial", []byte("triples-1"))

	remoteURL := ts.URL + "/acme/widgets"
	httpTransport := func() transport.Transport {
		return transport.NewHTTP(transport.HTTPOptions{
			Token: token(t, auth.CapCommitRead, auth.CapInstanceWrite),
		})
	}

	// two independent clients clone over HTTP
	newHTTPClient := func(name string) (*testutil.DB, *repo.Engine) {
		db := testutil.NewBare(t, meta.DBPath{Org: "acme", Name: name})
		eng := repo.New(db.Store, db.Meta)
		_, err := eng.Clone(ctx, auth.System(), db.Path, repo.CloneOptions{}, remoteURL, httpTransport())
		require.NoError(t, err)
		return db, eng
	}

	d1, e1 := newHTTPClient("d1")
	d2, e2 := newHTTPClient("d2")
	assert.Equal(t, serverDB.BranchHead("main"), d1.BranchHead("main"))

	c2 := d1.Commit("main", "from d1", []byte("triples-2"))
	res, err := e1.Push(ctx, auth.System(), meta.BranchPath{DBPath: d1.Path, Branch: "main"}, repo.OriginRemote, httpTransport())
	require.NoError(t, err)
	assert.True(t, res.New)
	assert.Equal(t, c2.ID, serverDB.BranchHead("main"))

	t.Run("DivergedSurfacesThroughEnvelope", func(t *testing.T) {
		d2.Commit("main", "from d2", []byte("triples-2-prime"))
		_, err := e2.Push(ctx, auth.System(), meta.BranchPath{DBPath: d2.Path, Branch: "main"}, repo.OriginRemote, httpTransport())
		require.Error(t, err)
		assert.Equal(t, syncerr.KindRemoteDiverged, syncerr.KindOf(err))
		assert.Equal(t, []string{c2.ID}, syncerr.AsError(err).Path)
	})

	t.Run("ResumableUploadPath", func(t *testing.T) {
		d3, e3 := newHTTPClient("d3")
		d3.Commit("main", "chunked", []byte("triples-3"))
		// force every payload through the resumable upload endpoint
		small := transport.NewHTTP(transport.HTTPOptions{
			Token:        token(t, auth.CapCommitRead, auth.CapInstanceWrite),
			TUSThreshold: 1,
			ChunkSize:    16,
		})
		res, err := e3.Push(ctx, auth.System(), meta.BranchPath{DBPath: d3.Path, Branch: "main"}, repo.OriginRemote, small)
		require.NoError(t, err)
		assert.True(t, res.New)
		assert.Equal(t, d3.BranchHead("main"), serverDB.BranchHead("main"))
	})
}

func TestUnbundleEndpoint(t *testing.T) {
	db, ts := newTestAPI(t)
	db.Commit("main", "a", []byte("aaaa"))

	engine := repo.New(db.Store, db.Meta)
	payload, err := engine.Bundle(t.Context(), auth.System(), db.Path, "main")
	require.NoError(t, err)

	// a second database on the same server consumes the bundle
	require.NoError(t, db.Meta.Update(t.Context(), func(tx *meta.Tx) error {
		return tx.CreateDatabase(meta.DBPath{Org: "acme", Name: "copy"}, meta.DatabaseRecord{})
	}))

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/unbundle/acme/copy", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", protocol.ContentTypeOctets)
	req.Header.Set("Authorization", "Bearer "+token(t, auth.CapSchemaWrite, auth.CapInstanceWrite, auth.CapFetch))
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body protocol.UnbundleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, protocol.StatusSuccess, body.Status)
	assert.Len(t, body.AppliedCommits, 1)
}

func TestPullEndpoint(t *testing.T) {
	// server hosting the remote side
	remoteDB, remoteTS := newTestAPI(t)
	remoteDB.Commit("main", "initial", []byte("triples"))

	// server hosting the puller, wired to fetch outbound over HTTP
	localDB := testutil.NewNamedDB(t, meta.DBPath{Org: "acme", Name: "local"})
	engine := repo.New(localDB.Store, localDB.Meta)
	srv, err := NewServer(engine, Config{
		AuthSecret:    testSecret,
		UploadDir:     t.TempDir(),
		OutboundToken: token(t, auth.CapCommitRead),
	})
	require.NoError(t, err)
	localTS := httptest.NewServer(srv.Router())
	t.Cleanup(localTS.Close)

	require.NoError(t, localDB.Meta.Update(t.Context(), func(tx *meta.Tx) error {
		return tx.InsertRemoteRepository(localDB.Path, "origin", remoteTS.URL+"/acme/widgets")
	}))

	bearer := token(t, auth.CapFetch, auth.CapSchemaWrite, auth.CapInstanceWrite)
	resp := doJSON(t, localTS, "/api/pull/acme/local/local/branch/main", bearer,
		protocol.PullRequest{RemoteName: "origin", RemoteBranch: "main"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body protocol.PullResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, protocol.PullFastForwarded, body.PullStatus)
	assert.Len(t, body.AppliedCommits, 1)
}
