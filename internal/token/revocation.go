package token

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RevocationStore is the blacklist consulted on every authentication attempt.
// The in-memory bounded implementation is the default; a shared external
// store (see RedisRevocationStore) can be swapped in for multi-node
// deployments without touching the middleware.
type RevocationStore interface {
	// Revoke blacklists a raw token until the access-token TTL elapses.
	Revoke(ctx context.Context, rawToken string) error
	// IsRevoked reports whether the token is currently blacklisted.
	IsRevoked(ctx context.Context, rawToken string) (bool, error)
	// Sweep removes expired entries and returns how many were dropped.
	Sweep(ctx context.Context) (int, error)
	// Len reports the current number of entries.
	Len() int
}

// Fingerprint derives the one-way lookup key for a raw token. Raw tokens are
// never stored; only this digest is.
func Fingerprint(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

// truncFingerprint is the loggable prefix of a fingerprint.
func truncFingerprint(fp string) string {
	if len(fp) > 10 {
		return fp[:10]
	}
	return fp
}

type revocationEntry struct {
	fingerprint string
	expiresAt   time.Time
}

// MemoryRevocationStore is a bounded, insertion-ordered blacklist. When the
// capacity is reached the oldest entry is evicted. Expired entries are
// dropped lazily on lookup and wholesale by Sweep.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	maxSize int
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewMemoryRevocationStore builds the default in-process store. Entries live
// for ttl, which should match the access-token TTL.
func NewMemoryRevocationStore(maxSize int, ttl time.Duration, logger *zap.Logger) *MemoryRevocationStore {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryRevocationStore{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Revoke inserts the token fingerprint, evicting the oldest entry when at
// capacity. Re-revoking an already blacklisted token refreshes its expiry.
func (s *MemoryRevocationStore) Revoke(ctx context.Context, rawToken string) error {
	fp := Fingerprint(rawToken)
	expiresAt := s.now().Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[fp]; ok {
		elem.Value.(*revocationEntry).expiresAt = expiresAt
		s.order.MoveToBack(elem)
		return nil
	}

	if s.order.Len() >= s.maxSize {
		oldest := s.order.Front()
		if oldest != nil {
			evicted := oldest.Value.(*revocationEntry)
			s.order.Remove(oldest)
			delete(s.entries, evicted.fingerprint)
			s.logger.Warn("blacklist at capacity, evicted oldest entry",
				zap.Int("size", s.order.Len()),
				zap.String("fingerprint", truncFingerprint(evicted.fingerprint)),
			)
		}
	}

	elem := s.order.PushBack(&revocationEntry{fingerprint: fp, expiresAt: expiresAt})
	s.entries[fp] = elem

	s.logger.Info("token blacklisted",
		zap.String("fingerprint", truncFingerprint(fp)),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}

// IsRevoked looks up the fingerprint, lazily deleting an entry whose expiry
// has already passed.
func (s *MemoryRevocationStore) IsRevoked(ctx context.Context, rawToken string) (bool, error) {
	fp := Fingerprint(rawToken)

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[fp]
	if !ok {
		return false, nil
	}

	entry := elem.Value.(*revocationEntry)
	if s.now().After(entry.expiresAt) {
		s.order.Remove(elem)
		delete(s.entries, fp)
		return false, nil
	}

	return true, nil
}

// Sweep drops every expired entry. Intended to run on a fixed interval from
// a background goroutine so memory stays bounded even without lookups.
func (s *MemoryRevocationStore) Sweep(ctx context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for elem := s.order.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(*revocationEntry)
		if now.After(entry.expiresAt) {
			s.order.Remove(elem)
			delete(s.entries, entry.fingerprint)
			removed++
		}
		elem = next
	}

	if removed > 0 {
		s.logger.Info("cleaned up expired blacklisted tokens", zap.Int("count", removed))
	}
	return removed, nil
}

// Len reports the number of live entries.
func (s *MemoryRevocationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// StartSweeper runs store.Sweep every interval until ctx is cancelled.
func StartSweeper(ctx context.Context, store RevocationStore, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := store.Sweep(ctx); err != nil {
					logger.Warn("blacklist sweep failed", zap.Error(err))
				}
			}
		}
	}()
}
