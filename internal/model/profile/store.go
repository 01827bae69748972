package profile

// Store exposes advisor profile retrieval for handlers and the responder.
type Store interface {
	List() []Profile
	FindByID(id string) (Profile, bool)
}

// MemoryStore implements Store with an in-memory slice. The backend loads it
// from Seed and picks the active advisor with Select.
type MemoryStore struct {
	items []Profile
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied profiles.
func NewMemoryStore(items []Profile) *MemoryStore {
	return &MemoryStore{items: append([]Profile(nil), items...)}
}

// List returns the configured profiles.
func (s *MemoryStore) List() []Profile {
	return append([]Profile(nil), s.items...)
}

// FindByID looks up a profile by identifier.
func (s *MemoryStore) FindByID(id string) (Profile, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Profile{}, false
}

// Default returns the default profile, falling back to the first entry.
func (s *MemoryStore) Default() (Profile, bool) {
	if p, ok := s.FindByID(DefaultID); ok {
		return p, true
	}
	if len(s.items) == 0 {
		return Profile{}, false
	}
	return s.items[0], true
}

// Select returns the profile named by id, as configured through
// ADVISOR_PROFILE. An empty or unknown id yields the default profile.
func (s *MemoryStore) Select(id string) (Profile, bool) {
	if id != "" {
		if p, ok := s.FindByID(id); ok {
			return p, true
		}
	}
	return s.Default()
}
