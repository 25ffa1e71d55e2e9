package flow

import (
	"sync"
	"time"
)

// Instance tracks one user's position inside one flow.
type Instance struct {
	Flow    string
	State   State
	Entered time.Time
}

type session struct {
	buckets   map[string]map[string]string
	instances map[string]*Instance
}

func newSession() *session {
	return &session{
		buckets:   make(map[string]map[string]string),
		instances: make(map[string]*Instance),
	}
}

// Store keeps per-user session buckets and flow instances. Buckets for
// different flow names under the same user never alias each other; clearing
// one is a no-op for all others.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*session
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*session)}
}

// Bucket is a handle to one user's scratch space for one flow. All access
// goes through the handle; the raw map never escapes the store.
type Bucket struct {
	store  *Store
	userID int64
	flow   string
}

// Bucket returns the handle for (userID, flowName). Missing buckets are
// created empty on first write, never signalled as failure.
func (s *Store) Bucket(userID int64, flowName string) Bucket {
	return Bucket{store: s, userID: userID, flow: flowName}
}

// Clear removes every key from the named bucket. Clearing twice, or
// clearing a bucket that never existed, is a no-op.
func (s *Store) Clear(userID int64, flowName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		delete(sess.buckets, flowName)
	}
}

// Has reports whether the named bucket exists and is non-empty.
func (s *Store) Has(userID int64, flowName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	return len(sess.buckets[flowName]) > 0
}

// HasAny reports whether the user owns any non-empty bucket.
func (s *Store) HasAny(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	for _, b := range sess.buckets {
		if len(b) > 0 {
			return true
		}
	}
	return false
}

func (s *Store) bucketMap(userID int64, flowName string, create bool) map[string]string {
	sess, ok := s.sessions[userID]
	if !ok {
		if !create {
			return nil
		}
		sess = newSession()
		s.sessions[userID] = sess
	}
	b, ok := sess.buckets[flowName]
	if !ok && create {
		b = make(map[string]string)
		sess.buckets[flowName] = b
	}
	return b
}

// Get returns the value for key and whether it is present.
func (b Bucket) Get(key string) (string, bool) {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	m := b.store.bucketMap(b.userID, b.flow, false)
	if m == nil {
		return "", false
	}
	v, ok := m[key]
	return v, ok
}

// Value returns the value for key, or empty when absent.
func (b Bucket) Value(key string) string {
	v, _ := b.Get(key)
	return v
}

// Set stores key=value, creating the bucket lazily.
func (b Bucket) Set(key, value string) {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	b.store.bucketMap(b.userID, b.flow, true)[key] = value
}

// Delete removes a single key.
func (b Bucket) Delete(key string) {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	if m := b.store.bucketMap(b.userID, b.flow, false); m != nil {
		delete(m, key)
	}
}

// Len returns the number of keys in the bucket.
func (b Bucket) Len() int {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	return len(b.store.bucketMap(b.userID, b.flow, false))
}

// Snapshot copies the bucket contents for read-only inspection.
func (b Bucket) Snapshot() map[string]string {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	m := b.store.bucketMap(b.userID, b.flow, false)
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Instance returns the flow instance for (userID, flowName) if one is active.
func (s *Store) Instance(userID int64, flowName string) (Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Instance{}, false
	}
	inst, ok := sess.instances[flowName]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}

// ActiveFlow returns the name of the flow currently owning the user, if any.
// At most one flow family owns a user at a time.
func (s *Store) ActiveFlow(userID int64) (Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Instance{}, false
	}
	for _, inst := range sess.instances {
		return *inst, true
	}
	return Instance{}, false
}

// SetInstance creates or updates the instance for (userID, flowName). An
// existing instance is resumed in place, never forked.
func (s *Store) SetInstance(userID int64, flowName string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = newSession()
		s.sessions[userID] = sess
	}
	if inst, ok := sess.instances[flowName]; ok {
		inst.State = state
		return
	}
	sess.instances[flowName] = &Instance{Flow: flowName, State: state, Entered: time.Now()}
}

// ClearInstance drops the instance for (userID, flowName).
func (s *Store) ClearInstance(userID int64, flowName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		delete(sess.instances, flowName)
	}
}

// DropUser removes every bucket and instance belonging to the user.
func (s *Store) DropUser(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
