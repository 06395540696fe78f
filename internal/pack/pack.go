// Package pack implements the self-describing binary container that carries
// a set of layers plus their parent pointers between repositories.
//
// Wire layout:
//
//	magic "TDPK", version 0x01
//	4-byte big-endian entry count N
//	N records: 20-byte layer id, 1-byte flags (bit0 = has-parent),
//	           20-byte parent id if flagged, 8-byte big-endian length, bytes
//
// A payload prepends a 20-byte repository head hint to a pack. Packs are
// byte-compatible between instances of the same protocol version.
package pack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/stratadb/strata/internal/layer"
)

var magic = [5]byte{'T', 'D', 'P', 'K', 0x01}

const flagHasParent = 0x01

// ErrBadMagic indicates the stream does not begin with a supported pack header.
var ErrBadMagic = errors.New("bad pack magic")

// ErrTruncated indicates the stream ended inside a record.
var ErrTruncated = errors.New("truncated pack")

// Entry is one layer carried by a pack. A zero Parent means the layer is a
// base layer.
type Entry struct {
	ID     layer.ID
	Parent layer.ID
	Data   []byte
}

// Member identifies a layer in a pack without materializing its bytes.
type Member struct {
	ID     layer.ID
	Parent layer.ID
}

// Build serializes entries into a pack.
func Build(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(magic[:])

	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(entries)))
	buf.Write(count[:])

	for _, e := range entries {
		if e.ID.IsZero() {
			return nil, fmt.Errorf("pack entry has empty layer id")
		}
		buf.Write(e.ID.Bytes())
		var flags byte
		if !e.Parent.IsZero() {
			flags |= flagHasParent
		}
		buf.WriteByte(flags)
		if flags&flagHasParent != 0 {
			buf.Write(e.Parent.Bytes())
		}
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(e.Data)))
		buf.Write(length[:])
		buf.Write(e.Data)
	}

	return buf.Bytes(), nil
}

// Reader streams entries out of a pack.
type Reader struct {
	r         *bytes.Reader
	remaining uint32
}

// NewReader validates the pack header and positions a Reader at the first
// record.
func NewReader(p []byte) (*Reader, error) {
	r := bytes.NewReader(p)

	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadMagic, err)
	}
	if hdr != magic {
		return nil, ErrBadMagic
	}

	var count [4]byte
	if _, err := io.ReadFull(r, count[:]); err != nil {
		return nil, fmt.Errorf("%w: reading entry count: %w", ErrTruncated, err)
	}

	return &Reader{r: r, remaining: binary.BigEndian.Uint32(count[:])}, nil
}

// Len returns the number of entries not yet read.
func (r *Reader) Len() int {
	return int(r.remaining)
}

// Next returns the next entry, or io.EOF once the pack is exhausted.
func (r *Reader) Next() (Entry, error) {
	e, data, err := r.next(true)
	if err != nil {
		return Entry{}, err
	}
	e.Data = data
	return e, nil
}

// NextMember returns the identity of the next entry, skipping its bytes.
func (r *Reader) NextMember() (Member, error) {
	e, _, err := r.next(false)
	if err != nil {
		return Member{}, err
	}
	return Member{ID: e.ID, Parent: e.Parent}, nil
}

func (r *Reader) next(materialize bool) (Entry, []byte, error) {
	if r.remaining == 0 {
		return Entry{}, nil, io.EOF
	}
	r.remaining--

	var e Entry
	var id [layer.IDLength]byte
	if _, err := io.ReadFull(r.r, id[:]); err != nil {
		return Entry{}, nil, fmt.Errorf("%w: reading layer id: %w", ErrTruncated, err)
	}
	e.ID = layer.ID(id)

	flags, err := r.r.ReadByte()
	if err != nil {
		return Entry{}, nil, fmt.Errorf("%w: reading flags: %w", ErrTruncated, err)
	}
	if flags&flagHasParent != 0 {
		var parent [layer.IDLength]byte
		if _, err := io.ReadFull(r.r, parent[:]); err != nil {
			return Entry{}, nil, fmt.Errorf("%w: reading parent id: %w", ErrTruncated, err)
		}
		e.Parent = layer.ID(parent)
	}

	var length [8]byte
	if _, err := io.ReadFull(r.r, length[:]); err != nil {
		return Entry{}, nil, fmt.Errorf("%w: reading payload length: %w", ErrTruncated, err)
	}
	size := binary.BigEndian.Uint64(length[:])
	if size > uint64(r.r.Len()) {
		return Entry{}, nil, fmt.Errorf("%w: payload length %d exceeds remaining %d", ErrTruncated, size, r.r.Len())
	}

	if !materialize {
		if _, err := r.r.Seek(int64(size), io.SeekCurrent); err != nil {
			return Entry{}, nil, fmt.Errorf("skipping payload: %w", err)
		}
		return e, nil, nil
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return Entry{}, nil, fmt.Errorf("%w: reading payload: %w", ErrTruncated, err)
	}
	return e, data, nil
}

// Members enumerates pack membership without materializing layer bytes.
func Members(p []byte) ([]Member, error) {
	r, err := NewReader(p)
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, r.Len())
	for {
		m, err := r.NextMember()
		if errors.Is(err, io.EOF) {
			return members, nil
		}
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
}

// BuildPayload prepends the sending repository's head layer id to a pack.
func BuildPayload(head layer.ID, p []byte) []byte {
	payload := make([]byte, 0, layer.IDLength+len(p))
	payload = append(payload, head.Bytes()...)
	return append(payload, p...)
}

// SplitPayload separates a payload into its repository head hint and pack.
func SplitPayload(payload []byte) (layer.ID, []byte, error) {
	if len(payload) < layer.IDLength {
		return layer.Zero, nil, fmt.Errorf("%w: payload shorter than head hint", ErrTruncated)
	}
	head, err := layer.FromBytes(payload[:layer.IDLength])
	if err != nil {
		return layer.Zero, nil, err
	}
	return head, payload[layer.IDLength:], nil
}
