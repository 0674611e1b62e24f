package household

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used in development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	members   map[int64]*Member
	positions map[int64]Position
}

// Position is a stored last-known position.
type Position struct {
	Latitude   float64
	Longitude  float64
	RecordedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members:   make(map[int64]*Member),
		positions: make(map[int64]Position),
	}
}

// AddMember inserts or replaces a member record.
func (s *MemoryStore) AddMember(m Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = &m
}

func (s *MemoryStore) FindMember(ctx context.Context, userID int64) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *m
	if m.HouseholdID != nil {
		hh := *m.HouseholdID
		copied.HouseholdID = &hh
	}
	return &copied, nil
}

func (s *MemoryStore) IsMember(ctx context.Context, householdID, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[userID]
	if !ok || m.HouseholdID == nil {
		return false, nil
	}
	return *m.HouseholdID == householdID, nil
}

func (s *MemoryStore) SavePosition(ctx context.Context, userID int64, latitude, longitude float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[userID]; !ok {
		return ErrNotFound
	}
	s.positions[userID] = Position{Latitude: latitude, Longitude: longitude, RecordedAt: at}
	return nil
}

// LastPosition returns the stored position for a member, if any.
func (s *MemoryStore) LastPosition(userID int64) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[userID]
	return p, ok
}

func (s *MemoryStore) SetHouseholdSharing(ctx context.Context, householdID int64, enabled bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	for _, m := range s.members {
		if m.HouseholdID != nil && *m.HouseholdID == householdID {
			m.SharingEnabled = enabled
			updated++
		}
	}
	return updated, nil
}
