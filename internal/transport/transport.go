// Package transport provides the remote I/O capability used by the
// synchronization engines. Three implementations exist: HTTP for network
// remotes, Local for same-process repositories, and Memory for bundle
// payloads. Engines never hold a metadata transaction across a transport
// call.
package transport

import (
	"context"

	"github.com/stratadb/strata/internal/layer"
	"github.com/stratadb/strata/internal/meta"
)

// Transport exchanges payloads with a remote repository.
//
// RequestPack asks for the layers above baseline; a zero baseline requests
// full history. ok is false when the remote has nothing newer.
//
// SendPayload transmits a payload for the remote to unpack.
type Transport interface {
	RequestPack(ctx context.Context, remoteURL string, baseline layer.ID) (payload []byte, ok bool, err error)
	SendPayload(ctx context.Context, remoteURL string, payload []byte) error
}

// PackSource is the engine surface the Local transport serves packs from.
type PackSource interface {
	PackForRemote(ctx context.Context, path meta.DBPath, baseline layer.ID) (payload []byte, ok bool, err error)
	UnpackPayload(ctx context.Context, path meta.DBPath, payload []byte) (layer.ID, error)
}

// Local serves pack exchange against another database in the same process.
type Local struct {
	src  PackSource
	path meta.DBPath
}

var _ Transport = (*Local)(nil)

// NewLocal builds a transport against a same-process database.
func NewLocal(src PackSource, path meta.DBPath) *Local {
	return &Local{src: src, path: path}
}

// RequestPack implements Transport.
func (l *Local) RequestPack(ctx context.Context, _ string, baseline layer.ID) ([]byte, bool, error) {
	return l.src.PackForRemote(ctx, l.path, baseline)
}

// SendPayload implements Transport.
func (l *Local) SendPayload(ctx context.Context, _ string, payload []byte) error {
	_, err := l.src.UnpackPayload(ctx, l.path, payload)
	return err
}

// Memory replays a supplied payload and captures a sent one. Bundle is a
// push through a capturing Memory; unbundle is a pull through a replaying
// one.
type Memory struct {
	// Payload is returned by RequestPack; nil means the remote has nothing.
	Payload []byte
	// Captured holds the last payload sent.
	Captured []byte
	sent     bool
}

var _ Transport = (*Memory)(nil)

// NewReplay builds a Memory transport serving the given payload.
func NewReplay(payload []byte) *Memory {
	return &Memory{Payload: payload}
}

// NewCapture builds a Memory transport that records what is sent.
func NewCapture() *Memory {
	return &Memory{}
}

// RequestPack implements Transport.
func (m *Memory) RequestPack(_ context.Context, _ string, _ layer.ID) ([]byte, bool, error) {
	if m.Payload == nil {
		return nil, false, nil
	}
	return m.Payload, true, nil
}

// SendPayload implements Transport.
func (m *Memory) SendPayload(_ context.Context, _ string, payload []byte) error {
	m.Captured = payload
	m.sent = true
	return nil
}

// Sent reports whether a payload was transmitted.
func (m *Memory) Sent() bool {
	return m.sent
}
