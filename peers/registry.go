// SPDX-License-Identifier: MPL-2.0
//
// Portions of this file are based on the teacher's own directory.go
// (peerDirectory), generalized from "name/address -> Noise public key"
// lookups to "Noise public key -> outbound message channel" lookups, per
// spec.md §5/§6: "the surrounding server maintains a process-wide mapping
// from remote static key to message sender so that peers can be addressed
// by their identity key; that mapping is a collaborator, not part of the
// core."
package peers

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Key is a Noise static public key, the address by which peers are known
// to the registry.
type Key = [32]byte

// Sender is whatever a registered peer's outbound frames are pushed onto.
// It is left as a plain channel of opaque frames: encoding (payload.Message,
// transport framing) is the caller's concern, not the registry's.
type Sender chan<- []byte

// entry pairs a peer's sender with a registry-local id. Unregister uses the
// id to ignore a stale registration, and callers may use it for log
// correlation; it carries no cryptographic meaning.
type entry struct {
	id     uuid.UUID
	sender Sender
}

// Registry maps remote static keys to outbound senders. It is safe for
// concurrent use by multiple connection goroutines, mirroring the
// teacher's own Handshake.mutex sync.RWMutex idiom.
type Registry struct {
	mu      sync.RWMutex
	entries map[Key]entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[Key]entry)}
}

// Register associates key with sender, replacing any previous
// registration for the same key (e.g. a peer reconnecting). It returns the
// registry-local id assigned to this registration, suitable for log
// correlation.
func (r *Registry) Register(key Key, sender Sender) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = entry{id: id, sender: sender}
	return id
}

// Unregister removes key's registration, if any. It is a no-op if the
// registration's id no longer matches (the peer reconnected and was
// re-registered under a new id in the meantime), so a stale disconnect
// handler cannot evict a newer connection.
func (r *Registry) Unregister(key Key, id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok && e.id == id {
		delete(r.entries, key)
	}
}

// Lookup returns the sender registered for key, if any.
func (r *Registry) Lookup(key Key) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	return e.sender, true
}

// Send looks up key and pushes frame onto its sender. It returns an error
// if no peer is registered under key.
func (r *Registry) Send(key Key, frame []byte) error {
	sender, ok := r.Lookup(key)
	if !ok {
		return fmt.Errorf("peers: no registered sender for key %x", key)
	}
	sender <- frame
	return nil
}

// Len returns the number of currently registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
