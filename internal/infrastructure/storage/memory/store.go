// Package memory provides an in-process implementation of the identifier stores.
// Used by tests, local development and `idctl --memory`. It is only safe
// within a single process.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"salonid/internal/core/identifier"
)

// DefaultClaimTTL is the claim expiry used when none is given.
const DefaultClaimTTL = 365 * 24 * time.Hour

type claimKey struct {
	key    identifier.SequenceKey
	number uint64
}

// Store implements SequenceStore, CollisionGuard, ClaimPurger and Registry.
// A single mutex stands in for the atomic primitives of a real store.
type Store struct {
	mu       sync.Mutex
	counters map[identifier.SequenceKey]*identifier.SequenceCounter
	claims   map[claimKey]identifier.ClaimedNumber
	ids      map[string]*identifier.GeneratedID

	claimTTL time.Duration
	now      func() time.Time
}

// Ensure compile-time interface compliance.
var (
	_ identifier.SequenceStore  = (*Store)(nil)
	_ identifier.CollisionGuard = (*Store)(nil)
	_ identifier.ClaimPurger    = (*Store)(nil)
	_ identifier.Registry       = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClaimTTL sets claim expiry.
func WithClaimTTL(ttl time.Duration) Option {
	return func(s *Store) { s.claimTTL = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		counters: make(map[identifier.SequenceKey]*identifier.SequenceCounter),
		claims:   make(map[claimKey]identifier.ClaimedNumber),
		ids:      make(map[string]*identifier.GeneratedID),
		claimTTL: DefaultClaimTTL,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// --- SequenceStore ---

// ReserveNext implements identifier.SequenceAllocator.
func (s *Store) ReserveNext(ctx context.Context, key identifier.SequenceKey) (uint64, bool, error) {
	return s.ReserveRange(ctx, key, 1)
}

// ReserveRange implements identifier.SequenceAllocator.
func (s *Store) ReserveRange(ctx context.Context, key identifier.SequenceKey, n int) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	if n < 1 {
		return 0, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counterLocked(key)
	if c.TotalGenerated+int64(n) > c.Capacity {
		return 0, false, nil
	}
	c.CounterValue += int64(n)
	c.TotalGenerated += int64(n)
	c.LastUsedAt = s.now().UTC()
	return uint64(c.CounterValue-int64(n)) + 1, true, nil
}

// SetSequence implements identifier.SequenceStore.
func (s *Store) SetSequence(ctx context.Context, key identifier.SequenceKey, counterValue, totalGenerated int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counterLocked(key)
	c.CounterValue = counterValue
	c.TotalGenerated = totalGenerated
	c.LastUsedAt = s.now().UTC()
	return nil
}

// ResetSequence implements identifier.SequenceStore.
func (s *Store) ResetSequence(ctx context.Context, key identifier.SequenceKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		return false, nil
	}
	c.CounterValue = 0
	c.TotalGenerated = 0
	c.LastUsedAt = s.now().UTC()
	return true, nil
}

// ListSequences implements identifier.SequenceStore.
func (s *Store) ListSequences(ctx context.Context, filter identifier.SequenceFilter) ([]identifier.SequenceCounter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]identifier.SequenceCounter, 0, len(s.counters))
	for _, c := range s.counters {
		if filter.Prefix != nil && c.Prefix != *filter.Prefix {
			continue
		}
		if filter.Scope != nil && c.Scope != *filter.Scope {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Prefix != out[j].Prefix {
			return out[i].Prefix < out[j].Prefix
		}
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		return out[i].DigitLength < out[j].DigitLength
	})
	return out, nil
}

func (s *Store) counterLocked(key identifier.SequenceKey) *identifier.SequenceCounter {
	c, ok := s.counters[key]
	if !ok {
		now := s.now().UTC()
		c = &identifier.SequenceCounter{
			Prefix:      key.Prefix,
			DigitLength: key.DigitLength,
			Scope:       key.Scope,
			Capacity:    int64(key.Capacity()),
			CreatedAt:   now,
			LastUsedAt:  now,
		}
		s.counters[key] = c
	}
	return c
}

// --- CollisionGuard ---

// TryClaim implements identifier.CollisionGuard.
func (s *Store) TryClaim(ctx context.Context, key identifier.SequenceKey, number uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimLocked(key, number), nil
}

// TryClaimMany implements identifier.CollisionGuard.
func (s *Store) TryClaimMany(ctx context.Context, key identifier.SequenceKey, numbers []uint64) ([]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]bool, len(numbers))
	for i, n := range numbers {
		out[i] = s.claimLocked(key, n)
	}
	return out, nil
}

func (s *Store) claimLocked(key identifier.SequenceKey, number uint64) bool {
	ck := claimKey{key: key, number: number}
	if _, taken := s.claims[ck]; taken {
		return false
	}
	now := s.now().UTC()
	s.claims[ck] = identifier.ClaimedNumber{
		Key:       key,
		Number:    number,
		CreatedAt: now,
		ExpiresAt: now.Add(s.claimTTL),
	}
	return true
}

// ReleaseAll implements identifier.CollisionGuard.
func (s *Store) ReleaseAll(ctx context.Context, key identifier.SequenceKey) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for ck := range s.claims {
		if ck.key == key {
			delete(s.claims, ck)
			n++
		}
	}
	return n, nil
}

// PurgeExpired implements identifier.ClaimPurger.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for ck, c := range s.claims {
		if !c.ExpiresAt.After(now) {
			delete(s.claims, ck)
			n++
		}
	}
	return n, nil
}

// --- Registry ---

// CreateIfAbsent implements identifier.Registry.
func (s *Store) CreateIfAbsent(ctx context.Context, rec *identifier.GeneratedID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(rec), nil
}

// CreateMany implements identifier.Registry.
func (s *Store) CreateMany(ctx context.Context, recs []*identifier.GeneratedID) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	created := make([]string, 0, len(recs))
	for _, rec := range recs {
		if s.createLocked(rec) {
			created = append(created, rec.ID)
		}
	}
	return created, nil
}

func (s *Store) createLocked(rec *identifier.GeneratedID) bool {
	if _, exists := s.ids[rec.ID]; exists {
		return false
	}
	cp := *rec
	cp.Metadata = maps.Clone(rec.Metadata)
	s.ids[rec.ID] = &cp
	return true
}

// Get implements identifier.Registry.
func (s *Store) Get(ctx context.Context, id string) (*identifier.GeneratedID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.ids[id]
	if !ok {
		return nil, identifier.ErrNotFound
	}
	cp := *rec
	cp.Metadata = maps.Clone(rec.Metadata)
	return &cp, nil
}

// ExistsWithEntity implements identifier.Registry.
func (s *Store) ExistsWithEntity(ctx context.Context, id, entityType string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.ids[id]
	return ok && rec.EntityType == entityType, nil
}

// Stats implements identifier.Registry.
func (s *Store) Stats(ctx context.Context, filter identifier.RegistryFilter) (identifier.RegistryStats, error) {
	if err := ctx.Err(); err != nil {
		return identifier.RegistryStats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := identifier.RegistryStats{PerEntity: make(map[string]identifier.EntityCount)}
	for _, rec := range s.ids {
		if filter.EntityType != nil && rec.EntityType != *filter.EntityType {
			continue
		}
		if filter.Scope != nil && rec.Scope != *filter.Scope {
			continue
		}
		stats.Total++

		ec := stats.PerEntity[rec.EntityType]
		ec.Count++
		if rec.CreatedAt.After(ec.LastIssuedAt) {
			ec.LastIssuedAt = rec.CreatedAt
		}
		stats.PerEntity[rec.EntityType] = ec

		if stats.LastIssuedAt == nil || rec.CreatedAt.After(*stats.LastIssuedAt) {
			t := rec.CreatedAt
			stats.LastIssuedAt = &t
		}
	}
	return stats, nil
}
