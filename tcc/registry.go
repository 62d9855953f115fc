package tcc

import (
	"sync"

	"github.com/brnsampaio/tcc-coordinator/participant"
	"github.com/brnsampaio/tcc-coordinator/txerr"
)

// registry is the in-process participantId -> Participant map. Reads are
// frequent, writes rare; callers must snapshot before a fan-out instead of
// holding the lock across participant operations.
type registry struct {
	mu         sync.RWMutex
	components map[string]participant.Participant
}

func newRegistry() *registry {
	return &registry{components: make(map[string]participant.Participant)}
}

func (r *registry) register(p participant.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.components[p.ID()]; exists {
		return txerr.ErrDuplicateParticipant
	}
	r.components[p.ID()] = p
	return nil
}

// snapshot returns the current participant set as a stable slice, taken
// under the read lock and safe to iterate after it's released.
func (r *registry) snapshot() []participant.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]participant.Participant, 0, len(r.components))
	for _, p := range r.components {
		out = append(out, p)
	}
	return out
}

func (r *registry) get(id string) (participant.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.components[id]
	return p, ok
}

func (r *registry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.components))
	for id := range r.components {
		out = append(out, id)
	}
	return out
}
