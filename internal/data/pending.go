package data

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"hawx.me/code/countdown-auth/internal/logger"
	"hawx.me/code/countdown-auth/internal/random"
)

const (
	// PendingTTL is how long a login may sit between leaving for the provider and
	// coming back.
	PendingTTL = 15 * time.Minute

	// SweepInterval is how often expired pending logins are cleared out.
	SweepInterval = 5 * time.Minute

	pendingKeyLen = 32
)

// ErrTokenNotFound is returned when there is no live pending login for a key:
// it expired, was already used, or never existed.
var ErrTokenNotFound = errors.New("pending login not found")

// Pending is a login that has been started with a provider but not yet
// completed. Token and Secret are what the provider issued; for OAuth 2.0
// providers Secret holds the PKCE verifier instead.
type Pending struct {
	Token     string    `json:"token"`
	Secret    string    `json:"secret"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired returns true if the entry is no longer usable at now.
func (p Pending) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// PendingStore keeps pending logins in memory. All access goes through a single
// mutex, so a Take racing a Sweep or another Take sees either the whole entry
// or nothing.
type PendingStore struct {
	ttl    time.Duration
	now    func() time.Time
	newKey func() (string, error)

	mu      sync.Mutex
	entries map[string]Pending
}

// NewPendingStore creates an empty store where entries live for ttl. A zero ttl
// uses PendingTTL.
func NewPendingStore(ttl time.Duration) *PendingStore {
	if ttl <= 0 {
		ttl = PendingTTL
	}

	return &PendingStore{
		ttl:     ttl,
		now:     time.Now,
		newKey:  random.Generator(pendingKeyLen),
		entries: map[string]Pending{},
	}
}

// Store records the token and secret under a newly generated key, which is
// returned. The key has nothing to do with the token so that the provider's
// namespace never decides what we overwrite.
func (s *PendingStore) Store(ctx context.Context, token, secret string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		key, err := s.newKey()
		if err != nil {
			return "", err
		}
		if _, exists := s.entries[key]; exists {
			continue
		}

		now := s.now()
		s.entries[key] = Pending{
			Token:     token,
			Secret:    secret,
			IssuedAt:  now,
			ExpiresAt: now.Add(s.ttl),
		}
		return key, nil
	}
}

// Retrieve returns the entry for key without consuming it. An expired entry is
// evicted as soon as it is seen.
func (s *PendingStore) Retrieve(ctx context.Context, key string) (Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lookup(key, false)
}

// Take returns the entry for key and removes it in the same step, so a key can
// only ever be consumed once.
func (s *PendingStore) Take(ctx context.Context, key string) (Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lookup(key, true)
}

func (s *PendingStore) lookup(key string, consume bool) (Pending, error) {
	item, ok := s.entries[key]
	if !ok {
		return Pending{}, ErrTokenNotFound
	}

	if item.Expired(s.now()) {
		delete(s.entries, key)
		return Pending{}, ErrTokenNotFound
	}

	if consume {
		delete(s.entries, key)
	}

	return item, nil
}

// Remove deletes the entry for key, if there is one.
func (s *PendingStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	return nil
}

// Sweep deletes every expired entry and returns how many went.
func (s *PendingStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, item := range s.entries {
		if item.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}

	return removed
}

// Len returns the number of entries held, including expired ones that have not
// been swept yet.
func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Run calls Sweep every interval until ctx is done. A zero interval uses
// SweepInterval.
func (s *PendingStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = SweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				logger.Debug("data/pending swept expired logins", zap.Int("removed", removed))
			}
		}
	}
}
