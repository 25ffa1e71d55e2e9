package flow

import (
	"encoding/json"
	"fmt"
	"time"
)

// snapshot is the wire form of the store. Versioned so an incompatible
// payload is rejected instead of silently misread.
type snapshot struct {
	Version  int               `json:"version"`
	SavedAt  time.Time         `json:"saved_at"`
	Sessions []snapshotSession `json:"sessions"`
}

type snapshotSession struct {
	UserID    int64                        `json:"user_id"`
	Buckets   map[string]map[string]string `json:"buckets,omitempty"`
	Instances []snapshotInstance           `json:"instances,omitempty"`
}

type snapshotInstance struct {
	Flow    string    `json:"flow"`
	State   string    `json:"state"`
	Entered time.Time `json:"entered"`
}

const snapshotVersion = 1

// Export serializes every session to JSON. The payload round-trips through
// Restore; empty buckets are dropped on the way out.
func (s *Store) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{Version: snapshotVersion, SavedAt: time.Now().UTC()}
	for userID, sess := range s.sessions {
		out := snapshotSession{UserID: userID}
		for flowName, b := range sess.buckets {
			if len(b) == 0 {
				continue
			}
			if out.Buckets == nil {
				out.Buckets = make(map[string]map[string]string)
			}
			cp := make(map[string]string, len(b))
			for k, v := range b {
				cp[k] = v
			}
			out.Buckets[flowName] = cp
		}
		for _, inst := range sess.instances {
			out.Instances = append(out.Instances, snapshotInstance{
				Flow:    inst.Flow,
				State:   string(inst.State),
				Entered: inst.Entered,
			})
		}
		if out.Buckets == nil && len(out.Instances) == 0 {
			continue
		}
		snap.Sessions = append(snap.Sessions, out)
	}
	return json.Marshal(snap)
}

// Restore replaces the store contents with a previously exported payload.
// Unknown versions fail; validity of flow and state names is the caller's
// concern (Engine.Restore prunes them).
func (s *Store) Restore(payload []byte) error {
	var snap snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return fmt.Errorf("flow: decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("flow: unsupported snapshot version %d", snap.Version)
	}

	sessions := make(map[int64]*session, len(snap.Sessions))
	for _, in := range snap.Sessions {
		sess := newSession()
		for flowName, b := range in.Buckets {
			cp := make(map[string]string, len(b))
			for k, v := range b {
				cp[k] = v
			}
			sess.buckets[flowName] = cp
		}
		for _, inst := range in.Instances {
			sess.instances[inst.Flow] = &Instance{
				Flow:    inst.Flow,
				State:   State(inst.State),
				Entered: inst.Entered,
			}
		}
		sessions[in.UserID] = sess
	}

	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()
	return nil
}
