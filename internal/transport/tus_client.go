package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/stratadb/strata/internal/syncerr"
)

// TUS protocol constants (resumable upload 1.0.0).
const (
	tusVersion         = "1.0.0"
	tusHeaderResumable = "Tus-Resumable"
	tusHeaderLength    = "Upload-Length"
	tusHeaderOffset    = "Upload-Offset"
	tusContentType     = "application/offset+octet-stream"

	defaultChunkSize = 8 << 20
)

// uploadResumable uploads a payload in chunks and returns the resource URL
// the remote can unpack from. A failed or cancelled upload is deleted
// best-effort so the remote does not accumulate partial resources.
func (h *HTTP) uploadResumable(ctx context.Context, filesURL string, payload []byte) (resource string, err error) {
	resource, err = h.createUpload(ctx, filesURL, int64(len(payload)))
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			h.deleteUpload(resource)
		}
	}()

	for offset := int64(0); offset < int64(len(payload)); {
		if err = ctx.Err(); err != nil {
			return "", err
		}
		end := min(offset+h.chunkSize, int64(len(payload)))
		next, patchErr := h.patchChunk(ctx, resource, offset, payload[offset:end])
		if patchErr != nil {
			err = patchErr
			return "", err
		}
		offset = next
	}
	return resource, nil
}

func (h *HTTP) createUpload(ctx context.Context, filesURL string, length int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, filesURL, nil)
	if err != nil {
		return "", fmt.Errorf("building upload creation request: %w", err)
	}
	req.Header.Set(tusHeaderResumable, tusVersion)
	req.Header.Set(tusHeaderLength, strconv.FormatInt(length, 10))
	h.decorate(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return "", syncerr.Wrap(syncerr.KindNetwork, err, "creating resumable upload")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", syncerr.New(syncerr.KindNetwork, "upload creation answered %d", resp.StatusCode)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", syncerr.New(syncerr.KindNetwork, "upload creation returned no location")
	}
	base, err := url.Parse(filesURL)
	if err != nil {
		return "", fmt.Errorf("parsing files url: %w", err)
	}
	loc, err := base.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parsing upload location %s: %w", location, err)
	}
	return loc.String(), nil
}

func (h *HTTP) patchChunk(ctx context.Context, resource string, offset int64, chunk []byte) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, resource, bytes.NewReader(chunk))
	if err != nil {
		return 0, fmt.Errorf("building chunk request: %w", err)
	}
	req.ContentLength = int64(len(chunk))
	req.Header.Set(tusHeaderResumable, tusVersion)
	req.Header.Set(tusHeaderOffset, strconv.FormatInt(offset, 10))
	req.Header.Set("Content-Type", tusContentType)
	h.decorate(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, syncerr.Wrap(syncerr.KindNetwork, err, "uploading chunk at offset %d", offset)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, syncerr.New(syncerr.KindNetwork,
			"chunk upload at offset %d answered %d: %s", offset, resp.StatusCode, body)
	}

	next, err := strconv.ParseInt(resp.Header.Get(tusHeaderOffset), 10, 64)
	if err != nil || next <= offset {
		return 0, syncerr.New(syncerr.KindNetwork, "remote reported bad upload offset %q", resp.Header.Get(tusHeaderOffset))
	}
	return next, nil
}

// deleteUpload abandons a partial upload. Best effort: a fresh context is
// used because the operation's own context may already be cancelled.
func (h *HTTP) deleteUpload(resource string) {
	req, err := http.NewRequest(http.MethodDelete, resource, nil)
	if err != nil {
		return
	}
	req.Header.Set(tusHeaderResumable, tusVersion)
	h.decorate(req)
	if resp, err := h.client.Do(req); err == nil {
		_ = resp.Body.Close()
	}
}
