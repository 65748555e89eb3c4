package relay

// Store holds one FIFO queue of pending signaling messages per role. Entries
// are only ever removed wholesale by Clear. It is owned by the hub loop and
// is not safe for concurrent use.
type Store struct {
	queues     map[Role][]Message
	maxPerRole int
}

// NewStore returns empty queues. maxPerRole <= 0 means unbounded.
func NewStore(maxPerRole int) *Store {
	return &Store{
		queues:     make(map[Role][]Message, len(Roles)),
		maxPerRole: maxPerRole,
	}
}

// Attributable reports whether a message of type t may be stored in the
// queue owned by origin.
func Attributable(origin Role, t MessageType) bool {
	switch origin {
	case RoleCamera:
		return t == MessageTypeOffer || t == MessageTypeICECandidate
	case RoleComputer:
		return t == MessageTypeAnswer || t == MessageTypeICECandidate
	default:
		return false
	}
}

// Enqueue appends msg to the queue owned by origin.
func (s *Store) Enqueue(origin Role, msg Message) error {
	if msg.Origin != origin || !Attributable(origin, msg.Type) {
		return ErrNotAttributable
	}
	if s.maxPerRole > 0 && len(s.queues[origin]) >= s.maxPerRole {
		return ErrQueueFull
	}
	s.queues[origin] = append(s.queues[origin], msg)
	return nil
}

// DrainSnapshot returns a copy of the queue owned by owner without removing
// anything. Successive calls return the same prefix.
func (s *Store) DrainSnapshot(owner Role) []Message {
	q := s.queues[owner]
	out := make([]Message, len(q))
	copy(out, q)
	return out
}

// PendingFor returns what requester should receive on poll: the snapshot of
// the opposite role's queue.
func (s *Store) PendingFor(requester Role) []Message {
	if !requester.Valid() {
		return nil
	}
	return s.DrainSnapshot(requester.Opposite())
}

// Clear empties both queues.
func (s *Store) Clear() {
	for role := range s.queues {
		delete(s.queues, role)
	}
}

func (s *Store) Len(role Role) int {
	return len(s.queues[role])
}
