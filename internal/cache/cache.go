// Package cache is the widget's local key-value store: plain string values
// under well-known keys, used as a durability buffer between the widget and
// the backend.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Well-known keys. KeyDemoUsers is reserved for demo account records left by
// older clients; nothing writes it and Clear removes it with the rest.
const (
	KeyDemoUsers           = "finadvisor.demoUsers"
	KeyCurrentUser         = "finadvisor.currentUser"
	KeyAuthenticated       = "finadvisor.isAuthenticated"
	KeyPendingConversation = "finadvisor.pendingConversation"
	KeyCurrentMessages     = "finadvisor.currentMessages"
	KeyLanguage            = "finadvisor.language"
)

// Record kinds stored inside envelopes.
const (
	KindCurrentUser         = "current-user"
	KindAuth                = "auth"
	KindPendingConversation = "pending-conversation"
	KindCurrentMessages     = "current-messages"
	KindLanguage            = "language"
)

// EnvelopeVersion is the record layout written by this build.
const EnvelopeVersion = 1

// ErrCorrupt marks a value that is not a readable envelope.
var ErrCorrupt = errors.New("cache record is corrupt")

// Store is a string key-value store. Clear is idempotent.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
	Clear() error
	Keys() ([]string, error)
}

// Event reports keys whose values changed.
type Event struct {
	Keys []string
}

// Has reports whether key is among the changed keys.
func (e Event) Has(key string) bool {
	for _, k := range e.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Watcher delivers change events until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, fn func(Event)) error
}

// Envelope wraps every cached record.
type Envelope struct {
	Version int             `json:"version"`
	Kind    string          `json:"kind"`
	SavedAt time.Time       `json:"savedAt"`
	Data    json.RawMessage `json:"data"`
}

// Put encodes v as a current-version envelope under key.
func Put(s Store, key, kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	raw, err := json.Marshal(Envelope{Version: EnvelopeVersion, Kind: kind, SavedAt: time.Now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return s.Set(key, string(raw))
}

// Load decodes the envelope under key into v. It reports false when the key
// is missing or holds a record of another version or kind.
func Load(s Store, key, kind string, v any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	if env.Version != EnvelopeVersion || env.Kind != kind {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}
