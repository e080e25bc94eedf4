package userstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps users in a map guarded by a RWMutex.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[int64]User
	emails map[string]int64
	nextID int64
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[int64]User),
		emails: make(map[string]int64),
		now:    time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Email != nil {
		if _, taken := s.emails[*u.Email]; taken {
			return User{}, ErrDuplicateEmail
		}
	}
	s.nextID++
	u.ID = s.nextID
	u.CreatedAt = s.now().UTC()
	s.users[u.ID] = u
	if u.Email != nil {
		s.emails[*u.Email] = u.ID
	}
	return u, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) List(_ context.Context, offset, limit int) ([]User, error) {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := []User{}
	if offset >= len(ids) {
		return out, nil
	}
	ids = ids[offset:]
	if limit < len(ids) {
		ids = ids[:limit]
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		// Deleted between the two locks.
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return false, nil
	}
	delete(s.users, id)
	if u.Email != nil {
		delete(s.emails, *u.Email)
	}
	return true, nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

var _ Store = (*MemoryStore)(nil)
