package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"crypto-dashboard/internal/domain"
)

// InMemoryWatchlistRepository keeps watchlists in process memory. It is used
// when no database is configured.
type InMemoryWatchlistRepository struct {
	mu    sync.RWMutex
	items map[string][]domain.WatchlistItem // by user id, in insertion order
	now   func() time.Time
}

var _ domain.WatchlistStore = (*InMemoryWatchlistRepository)(nil)

func NewInMemoryWatchlistRepository() *InMemoryWatchlistRepository {
	return &InMemoryWatchlistRepository{
		items: make(map[string][]domain.WatchlistItem),
		now:   time.Now,
	}
}

func (r *InMemoryWatchlistRepository) Add(_ context.Context, item domain.WatchlistItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items[item.UserID] {
		if existing.CoinID == item.CoinID {
			return nil
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = r.now().UTC()
	}
	r.items[item.UserID] = append(r.items[item.UserID], item)
	return nil
}

func (r *InMemoryWatchlistRepository) List(_ context.Context, userID string) ([]domain.WatchlistItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.WatchlistItem, len(r.items[userID]))
	copy(result, r.items[userID])
	sort.SliceStable(result, func(i, j int) bool { return result[i].AddedAt.Before(result[j].AddedAt) })
	return result, nil
}

func (r *InMemoryWatchlistRepository) Remove(_ context.Context, userID, coinID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.items[userID]
	for i, it := range list {
		if it.CoinID == coinID {
			r.items[userID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type cachedSession struct {
	user    domain.User
	expires time.Time
}

// MemorySessionCache is a process-local SessionCache.
type MemorySessionCache struct {
	mu       sync.Mutex
	sessions map[string]cachedSession
	now      func() time.Time
}

var _ domain.SessionCache = (*MemorySessionCache)(nil)

func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{
		sessions: make(map[string]cachedSession),
		now:      time.Now,
	}
}

func (c *MemorySessionCache) Get(_ context.Context, token string) (*domain.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[token]
	if !ok {
		return nil, false
	}
	if !c.now().Before(s.expires) {
		delete(c.sessions, token)
		return nil, false
	}
	u := s.user
	return &u, true
}

func (c *MemorySessionCache) Set(_ context.Context, token string, user *domain.User, ttl time.Duration) error {
	if user == nil || ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, s := range c.sessions {
		if !now.Before(s.expires) {
			delete(c.sessions, k)
		}
	}
	c.sessions[token] = cachedSession{user: *user, expires: now.Add(ttl)}
	return nil
}

func (c *MemorySessionCache) Delete(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, token)
	return nil
}
