// Package session holds the identity registry: which logical user each live
// peer connection has claimed.
package session

import (
	"sort"
	"sync"
)

// Entry is one peer/user pair.
type Entry struct {
	PeerID string
	UserID string
}

// Directory maps peer ids to user ids and back. Every operation takes the
// directory lock once and never blocks on I/O.
//
// A user id may be claimed by several peers. Lookups by user return the most
// recent claim that is still live; when it goes away the previous claim
// becomes addressable again.
type Directory struct {
	mu     sync.RWMutex
	users  map[string]string   // peer -> user
	claims map[string][]string // user -> peers, oldest first
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		users:  make(map[string]string),
		claims: make(map[string][]string),
	}
}

// Set maps peerID to userID, replacing any previous mapping for peerID.
// Setting the same pair again moves the claim to the most recent position.
func (d *Directory) Set(peerID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.users[peerID]; ok {
		d.dropClaim(prev, peerID)
	}
	d.users[peerID] = userID
	d.claims[userID] = append(d.claims[userID], peerID)
}

// Delete removes the mapping for peerID and returns the user it was mapped
// to. Deleting an unknown peer is a no-op.
func (d *Directory) Delete(peerID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	userID, ok := d.users[peerID]
	if !ok {
		return "", false
	}
	delete(d.users, peerID)
	d.dropClaim(userID, peerID)
	return userID, true
}

// GetUserID returns the user claimed by peerID.
func (d *Directory) GetUserID(peerID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	userID, ok := d.users[peerID]
	return userID, ok
}

// GetPeerID returns the peer that most recently claimed userID.
func (d *Directory) GetPeerID(userID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	peers := d.claims[userID]
	if len(peers) == 0 {
		return "", false
	}
	return peers[len(peers)-1], true
}

// Len returns the number of signed-in peers.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// Snapshot returns every entry sorted by peer id.
func (d *Directory) Snapshot() []Entry {
	d.mu.RLock()
	entries := make([]Entry, 0, len(d.users))
	for peer, user := range d.users {
		entries = append(entries, Entry{PeerID: peer, UserID: user})
	}
	d.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].PeerID < entries[j].PeerID })
	return entries
}

// dropClaim must be called with mu held.
func (d *Directory) dropClaim(userID, peerID string) {
	peers := d.claims[userID]
	for i, p := range peers {
		if p == peerID {
			peers = append(peers[:i:i], peers[i+1:]...)
			break
		}
	}
	if len(peers) == 0 {
		delete(d.claims, userID)
		return
	}
	d.claims[userID] = peers
}
