// Package cache implements the persistent key/value store used to keep
// digests, behavior profiles, and consent state stable across sessions.
//
// Entries are stored as a {data, timestamp} JSON envelope. Validity is
// checked lazily at read time; expired or corrupt entries are deleted and
// reported as a miss, never as an error the caller has to handle.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/crypto/blake2b"
)

// DefaultValidity is the validity period applied when a caller passes a
// non-positive duration to Load.
const DefaultValidity = 30 * 24 * time.Hour

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache: store closed")

// Cache is the store contract shared by the sqlite and in-memory backends.
type Cache interface {
	// Save wraps value in a timestamped envelope and writes it under key,
	// replacing any previous entry.
	Save(key string, value any) error

	// Load reads the entry under key into out if it is younger than
	// validity (DefaultValidity when validity <= 0). It reports whether a
	// live entry was found. Expired and unparsable entries are deleted
	// and reported as a miss.
	Load(key string, validity time.Duration, out any) (bool, error)

	Delete(key string) error
	Close() error
}

// envelope is the persisted representation of an entry. Timestamp is
// milliseconds since the Unix epoch.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

func seal(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Data: data, Timestamp: time.Now().UnixMilli()})
}

// open unwraps a stored payload. It reports ok=false for corrupt payloads
// and stale timestamps.
func open(payload []byte, validity time.Duration, out any) bool {
	if validity <= 0 {
		validity = DefaultValidity
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return false
	}
	age := time.Since(time.UnixMilli(env.Timestamp))
	if age >= validity {
		return false
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return false
		}
	}
	return true
}

// Key derives the deterministic storage key for a prefix scoped to an
// origin. The same origin always resolves to the same key and two origins
// never collide under the same prefix.
func Key(origin, prefix string) string {
	sum := blake2b.Sum256([]byte(origin))
	return prefix + "-" + hex.EncodeToString(sum[:8])
}
