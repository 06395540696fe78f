package history

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stratadb/strata/internal/layer"
	"github.com/stratadb/strata/internal/meta"
)

// Record is the decoded content of a commit's instance layer: the commit's
// metadata plus the opaque triple delta. The layer's own id is not encoded
// (it is the content address of these bytes); decoding fills it back in.
type Record struct {
	Commit meta.Commit `json:"commit"`
	Delta  []byte      `json:"delta,omitempty"`
}

// NewCommitID derives a commit id from the commit's content. Identical
// content yields identical ids on every repository, so copying commits
// never invents new ids.
func NewCommitID(author, message string, ts time.Time, parents []string, delta []byte) string {
	deltaSum := sha1.Sum(delta)
	h := sha1.New()
	fmt.Fprintf(h, "commit\x00%s\x00%s\x00%s\x00%s\x00%s",
		author, message, ts.UTC().Format(time.RFC3339Nano),
		strings.Join(parents, "\x00"), hex.EncodeToString(deltaSum[:]))
	return hex.EncodeToString(h.Sum(nil))
}

// EncodeRecord serializes a record into layer bytes and returns the
// resulting layer id. The commit's instance layer field is cleared before
// encoding; it is the address of the bytes being produced.
func EncodeRecord(rec Record) ([]byte, layer.ID, error) {
	rec.Commit.Layers.Instance = layer.Zero
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, layer.Zero, fmt.Errorf("encoding layer record: %w", err)
	}
	return data, layer.Hash(data), nil
}

// DecodeRecord parses layer bytes, restoring the commit's instance layer
// field from the layer's id.
func DecodeRecord(id layer.ID, data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding layer record %s: %w", id, err)
	}
	rec.Commit.Layers.Instance = id
	return rec, nil
}
