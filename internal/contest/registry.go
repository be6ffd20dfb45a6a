package contest

import "contest-miniapp-backend/internal/models"

// Registry holds the participants of one round in join order. It is not
// safe for concurrent use; the orchestrator serializes access.
type Registry struct {
	capacity     int
	participants []models.Participant
	index        map[string]int
}

func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity:     capacity,
		participants: make([]models.Participant, 0, capacity),
		index:        make(map[string]int, capacity),
	}
}

// Admit appends p after checking, in order, that the phase accepts entries,
// that p is not already present, and that there is room.
func (r *Registry) Admit(phase models.Phase, p models.Participant) error {
	if err := r.Check(phase, p.ID); err != nil {
		return err
	}

	r.index[p.ID] = len(r.participants)
	r.participants = append(r.participants, p)
	return nil
}

// Check runs the admission preconditions without changing the registry.
func (r *Registry) Check(phase models.Phase, id string) error {
	if !phase.AcceptsEntries() {
		return ErrWrongPhase
	}
	if _, ok := r.index[id]; ok {
		return ErrAlreadyJoined
	}
	if len(r.participants) >= r.capacity {
		return ErrFull
	}
	return nil
}

// Remove drops a participant. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) bool {
	pos, ok := r.index[id]
	if !ok {
		return false
	}

	r.participants = append(r.participants[:pos], r.participants[pos+1:]...)
	delete(r.index, id)
	for i := pos; i < len(r.participants); i++ {
		r.index[r.participants[i].ID] = i
	}
	return true
}

func (r *Registry) Contains(id string) bool {
	_, ok := r.index[id]
	return ok
}

func (r *Registry) Len() int {
	return len(r.participants)
}

func (r *Registry) Capacity() int {
	return r.capacity
}

// Participants returns a copy in join order.
func (r *Registry) Participants() []models.Participant {
	out := make([]models.Participant, len(r.participants))
	copy(out, r.participants)
	return out
}
