package identifier

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Registry.Get for unknown identifiers.
var ErrNotFound = errors.New("identifier not found")

// SequenceAllocator owns the monotonic counters.
// This is the domain contract - implementations live in infrastructure layer.
//
// Both reservations must be a single atomic store operation: the counter
// advances and capacity is checked together, or nothing changes.
type SequenceAllocator interface {
	// ReserveNext reserves one sequence value. ok=false signals the key's
	// capacity is exhausted; it is not an error.
	ReserveNext(ctx context.Context, key SequenceKey) (seq uint64, ok bool, err error)

	// ReserveRange reserves n contiguous values and returns the first one.
	// ok=false if fewer than n slots remain; nothing is reserved in that case.
	ReserveRange(ctx context.Context, key SequenceKey, n int) (start uint64, ok bool, err error)
}

// SequenceStore adds the administrative operations on counters.
type SequenceStore interface {
	SequenceAllocator

	// SetSequence forces the counter state of a key (migrations and tests).
	SetSequence(ctx context.Context, key SequenceKey, counterValue, totalGenerated int64) error

	// ResetSequence zeroes the counter of a key. Returns false if the key never existed.
	ResetSequence(ctx context.Context, key SequenceKey) (bool, error)

	// ListSequences returns counters matching the filter.
	ListSequences(ctx context.Context, filter SequenceFilter) ([]SequenceCounter, error)
}

// CollisionGuard durably claims dispersed numbers with first-writer-wins semantics.
type CollisionGuard interface {
	// TryClaim returns true iff this call created the claim.
	TryClaim(ctx context.Context, key SequenceKey, number uint64) (bool, error)

	// TryClaimMany claims each number independently; result[i] reports numbers[i].
	TryClaimMany(ctx context.Context, key SequenceKey, numbers []uint64) ([]bool, error)

	// ReleaseAll drops every claim of a key. Used by administrative reset only.
	ReleaseAll(ctx context.Context, key SequenceKey) (int64, error)
}

// Registry is the durable record of issued identifiers.
type Registry interface {
	// CreateIfAbsent inserts the record; false means the ID already exists.
	CreateIfAbsent(ctx context.Context, rec *GeneratedID) (bool, error)

	// CreateMany inserts records independently and returns the IDs actually created,
	// in input order. Duplicates are skipped.
	CreateMany(ctx context.Context, recs []*GeneratedID) ([]string, error)

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (*GeneratedID, error)

	// ExistsWithEntity reports whether id was issued for entityType.
	ExistsWithEntity(ctx context.Context, id, entityType string) (bool, error)

	// Stats aggregates issued IDs.
	Stats(ctx context.Context, filter RegistryFilter) (RegistryStats, error)
}

// ClaimPurger removes claims past their expiry. Implemented by stores without native TTL.
type ClaimPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
