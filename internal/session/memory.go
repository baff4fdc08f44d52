package session

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sakif/members-only/internal/apperror"
	"github.com/sakif/members-only/internal/model"
	"github.com/sakif/members-only/internal/repository"
)

var _ repository.SessionRepository = (*MemoryStore)(nil)

// MemoryStore keeps sessions in a bounded, expiring LRU. Sessions are lost
// on restart, which suits a single small deployment or development.
//
// When the cache is full the least recently used session is evicted; its
// owner simply becomes anonymous.
type MemoryStore struct {
	cache *expirable.LRU[string, model.Session]
}

// NewMemoryStore holds up to size sessions, each dropped ttl after its last
// write at the latest.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = 10000
	}
	return &MemoryStore{cache: expirable.NewLRU[string, model.Session](size, nil, ttl)}
}

// Get returns a copy, so the caller can mutate it freely until Save.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.Session, error) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return nil, apperror.NotFound("session", id)
	}
	sess.Flash = append([]string(nil), sess.Flash...)
	return &sess, nil
}

func (s *MemoryStore) Save(_ context.Context, sess *model.Session) error {
	cp := *sess
	cp.Flash = append([]string(nil), sess.Flash...)
	s.cache.Add(sess.ID, cp)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Remove(id)
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	n := 0
	for _, sess := range s.cache.Values() {
		if sess.Expired(now) {
			s.cache.Remove(sess.ID)
			n++
		}
	}
	return n, nil
}

// Len reports how many sessions are held.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
