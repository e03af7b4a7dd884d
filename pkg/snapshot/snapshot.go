// Package snapshot persists a diagnostic mirror of the engine's
// resolved tree to an embedded key-value store so an operator can
// inspect recent state after a crash, without the engine itself ever
// reading it back: the filesystem config directory remains the sole
// source of truth. Compression follows ext/dsort/shard's use of
// pierrec/lz4 for on-the-fly tarball compression, applied here to
// per-snapshot JSON blobs; storage is tidwall/buntdb, an embedded
// ordered key-value store that needs no separate server process.
package snapshot

import (
	"bytes"
	"io"
	"sort"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pierrec/lz4/v3"
	"github.com/tidwall/buntdb"

	"github.com/reactree/reactree/pkg/value"
	"github.com/reactree/reactree/pkg/xlog"
)

const (
	bucketKey  = "snapshot"
	maxHistory = 8
)

// Store persists successive resolved-tree snapshots, keeping the most
// recent maxHistory and discarding older ones.
type Store struct {
	db *buntdb.DB
}

// Open opens (creating if necessary) the buntdb file at path.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save compresses and persists v under a timestamp-ordered key,
// pruning anything beyond maxHistory.
func (s *Store) Save(v *value.Value) error {
	raw, err := jsoniter.Marshal(toInterface(v))
	if err != nil {
		return err
	}
	compressed, err := compress(raw)
	if err != nil {
		return err
	}

	key := strconv.FormatInt(time.Now().UnixNano(), 10)
	err = s.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(indexKey(key), string(compressed), nil); err != nil {
			return err
		}
		return pruneLocked(tx)
	})
	if err != nil {
		xlog.Errorf("snapshot: save failed: %v", err)
	}
	return err
}

// Latest returns the most recently saved snapshot, decompressed and
// parsed back into a Value tree, or value.Absent if none exists.
func (s *Store) Latest() (*value.Value, error) {
	var latestKey string
	var latestVal string
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.DescendKeys(bucketKey+":*", func(key, val string) bool {
			latestKey, latestVal = key, val
			return false
		})
	})
	if err != nil {
		return nil, err
	}
	if latestKey == "" {
		return value.Absent, nil
	}

	raw, err := decompress([]byte(latestVal))
	if err != nil {
		return nil, err
	}
	var x interface{}
	if err := jsoniter.Unmarshal(raw, &x); err != nil {
		return nil, err
	}
	return value.Sanitize(x)
}

func indexKey(key string) string {
	return bucketKey + ":" + key
}

func pruneLocked(tx *buntdb.Tx) error {
	var keys []string
	if err := tx.AscendKeys(bucketKey+":*", func(key, _ string) bool {
		keys = append(keys, key)
		return true
	}); err != nil {
		return err
	}
	sort.Strings(keys)
	for len(keys) > maxHistory {
		if _, err := tx.Delete(keys[0]); err != nil {
			return err
		}
		keys = keys[1:]
	}
	return nil
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	return io.ReadAll(r)
}

// toInterface converts a Value tree into plain Go values suitable for
// jsoniter.Marshal, the inverse of value.Sanitize.
func toInterface(v *value.Value) interface{} {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		return v.Bool()
	case value.KindInt:
		return v.Int()
	case value.KindFloat:
		return v.Float()
	case value.KindString:
		return v.Str()
	case value.KindList:
		items := v.Items()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = toInterface(item)
		}
		return out
	case value.KindMap:
		keys := v.Keys()
		out := make(map[string]interface{}, len(keys))
		for _, k := range keys {
			out[k] = toInterface(v.Field(k))
		}
		return out
	default:
		return nil
	}
}
