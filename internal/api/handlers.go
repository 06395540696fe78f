package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/stratadb/strata/internal/auth"
	"github.com/stratadb/strata/internal/layer"
	"github.com/stratadb/strata/internal/meta"
	"github.com/stratadb/strata/internal/repo"
	"github.com/stratadb/strata/internal/syncerr"
	protocol "github.com/stratadb/strata/pkg/protocol/sync"
)

func dbPath(r *http.Request) meta.DBPath {
	vars := mux.Vars(r)
	return meta.DBPath{Org: vars["org"], Name: vars["db"]}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return syncerr.Wrap(syncerr.KindInternal, err, "decoding request body")
	}
	return nil
}

// handlePack answers a pack request with the layers above the caller's
// baseline, or 204 when the caller is up to date.
func (s *Server) handlePack(w http.ResponseWriter, r *http.Request) {
	path := dbPath(r)
	actx := authContext(r)
	if err := actx.Require(path.String(), auth.CapCommitRead); err != nil {
		writeError(w, r, err)
		return
	}

	var req protocol.PackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	baseline := layer.Zero
	if req.RepositoryHead != nil {
		var err error
		baseline, err = layer.FromHex(*req.RepositoryHead)
		if err != nil {
			writeError(w, r, syncerr.Wrap(syncerr.KindPackFailed, err, "parsing repository head"))
			return
		}
	}

	payload, ok, err := s.engine.PackForRemote(r.Context(), path, baseline)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", protocol.ContentTypeOctets)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// handleUnpack admits a payload, inline or via an uploaded resource.
func (s *Server) handleUnpack(w http.ResponseWriter, r *http.Request) {
	path := dbPath(r)
	actx := authContext(r)
	if err := actx.Require(path.String(), auth.CapInstanceWrite); err != nil {
		writeError(w, r, err)
		return
	}

	var payload []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req protocol.UnpackRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		resolved, err := s.uploads.Resolve(req.ResourceURI)
		if err != nil {
			writeError(w, r, syncerr.PackFailed("missing_resource", err))
			return
		}
		payload = resolved
	} else {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, r, syncerr.Wrap(syncerr.KindNetwork, err, "reading payload"))
			return
		}
		payload = body
	}

	head, err := s.engine.UnpackPayload(r.Context(), path, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.UnpackResponse{
		Envelope: protocol.OK("payload unpacked"),
		Head:     head.Hex(),
	})
}

// handleFetch fetches a registered remote on behalf of the caller.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	path := dbPath(r)
	var req protocol.FetchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	remoteName, err := s.resolveRemoteName(r, path, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	head, advanced, err := s.engine.Fetch(r.Context(), authContext(r), path, remoteName, s.outbound())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := protocol.FetchResponse{
		Envelope:       protocol.OK("fetch complete"),
		HeadHasUpdated: advanced,
	}
	if !head.IsZero() {
		resp.Head = head.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolveRemoteName maps a fetch request onto a registered remote: by
// name, by URL, or the clone default.
func (s *Server) resolveRemoteName(r *http.Request, path meta.DBPath, req protocol.FetchRequest) (string, error) {
	if req.RemoteName != "" {
		return req.RemoteName, nil
	}
	if req.RemoteURL == "" {
		return repo.OriginRemote, nil
	}
	var name string
	err := s.engine.Meta().View(r.Context(), func(tx *meta.Tx) error {
		remotes, err := tx.Remotes(path)
		if err != nil {
			return err
		}
		for _, remote := range remotes {
			if remote.URL == req.RemoteURL {
				name = remote.Name
				return nil
			}
		}
		return syncerr.New(syncerr.KindNotFound, "no remote registered for %s", req.RemoteURL)
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// handlePush pushes a branch to a registered remote.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	path := dbPath(r)
	var req protocol.PushRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Branch == "" {
		writeError(w, r, syncerr.New(syncerr.KindPushRequiresBranch, "push requires a branch"))
		return
	}

	res, err := s.engine.Push(r.Context(), authContext(r),
		meta.BranchPath{DBPath: path, Branch: req.Branch}, req.RemoteName, s.outbound())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := protocol.PushResponse{Envelope: protocol.OK("push complete")}
	if res.New {
		resp.New = res.Head.Hex()
	} else {
		resp.Same = res.Head.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePull fetches and fast-forwards the addressed local branch.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	path := dbPath(r)
	branch := mux.Vars(r)["branch"]
	var req protocol.PullRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	remoteBranch := req.RemoteBranch
	if remoteBranch == "" {
		remoteBranch = branch
	}
	remoteName := req.RemoteName
	if remoteName == "" {
		remoteName = repo.OriginRemote
	}

	res, err := s.engine.Pull(r.Context(), authContext(r),
		meta.BranchPath{DBPath: path, Branch: branch}, remoteName, remoteBranch, s.outbound())
	if err != nil {
		writeError(w, r, err)
		return
	}

	applied := res.Applied
	if applied == nil {
		applied = []string{}
	}
	writeJSON(w, http.StatusOK, protocol.PullResponse{
		Envelope:       protocol.OK("pull complete"),
		PullStatus:     pullStatus(res.Outcome),
		CommonAncestor: res.Common,
		AppliedCommits: applied,
	})
}

func pullStatus(outcome repo.PullOutcome) protocol.PullStatus {
	switch outcome {
	case repo.PullFastForwarded:
		return protocol.PullFastForwarded
	case repo.PullAhead:
		return protocol.PullAhead
	case repo.PullDivergent:
		return protocol.PullDivergent
	case repo.PullNoCommonHistory:
		return protocol.PullNoCommonHistory
	default:
		return protocol.PullUnchanged
	}
}

// handleClone creates the addressed database from a remote.
func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	path := dbPath(r)
	var req protocol.CloneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.RemoteURL == "" {
		writeError(w, r, syncerr.New(syncerr.KindNotFound, "clone requires remote_url"))
		return
	}

	applied, err := s.engine.Clone(r.Context(), authContext(r), path, repo.CloneOptions{
		Label:   req.Label,
		Comment: req.Comment,
		Public:  req.Public,
	}, req.RemoteURL, s.outbound())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if applied == nil {
		applied = []string{}
	}
	writeJSON(w, http.StatusOK, protocol.CloneResponse{
		Envelope:       protocol.OK("clone complete"),
		AppliedCommits: applied,
	})
}

// handleBundle serializes a branch's history into a payload.
func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	path := dbPath(r)
	var req protocol.BundleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	payload, err := s.engine.Bundle(r.Context(), authContext(r), path, req.Branch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if payload == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", protocol.ContentTypeOctets)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// handleUnbundle admits a bundle payload into the addressed database.
func (s *Server) handleUnbundle(w http.ResponseWriter, r *http.Request) {
	path := dbPath(r)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, syncerr.Wrap(syncerr.KindNetwork, err, "reading bundle"))
		return
	}

	applied, err := s.engine.Unbundle(r.Context(), authContext(r), path, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if applied == nil {
		applied = []string{}
	}
	writeJSON(w, http.StatusOK, protocol.UnbundleResponse{
		Envelope:       protocol.OK("unbundle complete"),
		AppliedCommits: applied,
	})
}
