package identifier

import (
	"fmt"
	"time"
)

// GlobalScope is the salt/key label used when no scope is given.
const GlobalScope = "global"

// SequenceKey addresses one monotonic counter.
// An empty Scope means the global namespace.
type SequenceKey struct {
	Prefix      string
	DigitLength int
	Scope       string
}

// String renders the key as "[scope-]PREFIX-L".
func (k SequenceKey) String() string {
	if k.Scope != "" {
		return fmt.Sprintf("%s-%s-%d", k.Scope, k.Prefix, k.DigitLength)
	}
	return fmt.Sprintf("%s-%d", k.Prefix, k.DigitLength)
}

// Capacity returns the size of the fixed-width range for the key's digit length.
func (k SequenceKey) Capacity() uint64 {
	return Capacity(k.DigitLength)
}

// SequenceCounter is the persisted state of one SequenceKey.
type SequenceCounter struct {
	Prefix         string    `db:"prefix" json:"prefix"`
	DigitLength    int       `db:"digit_length" json:"digitLength"`
	Scope          string    `db:"scope" json:"scope,omitempty"`
	CounterValue   int64     `db:"counter_value" json:"counterValue"`
	TotalGenerated int64     `db:"total_generated" json:"totalGenerated"`
	Capacity       int64     `db:"capacity" json:"capacity"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	LastUsedAt     time.Time `db:"last_used_at" json:"lastUsedAt"`
}

// Key returns the composite key of the counter.
func (c SequenceCounter) Key() SequenceKey {
	return SequenceKey{Prefix: c.Prefix, DigitLength: c.DigitLength, Scope: c.Scope}
}

// ClaimedNumber proves a dispersed number was handed out for a key.
type ClaimedNumber struct {
	Key       SequenceKey
	Number    uint64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// GeneratedID is the authoritative record of an issued identifier. Immutable.
type GeneratedID struct {
	ID          string         `json:"id"`
	EntityType  string         `json:"entityType"`
	Prefix      string         `json:"prefix"`
	Number      string         `json:"number"`
	DigitLength int            `json:"digitLength"`
	Scope       string         `json:"scope,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SequenceFilter narrows ListSequences. Nil fields match everything.
type SequenceFilter struct {
	Prefix *string
	Scope  *string
}

// RegistryFilter narrows registry aggregation. Nil fields match everything.
type RegistryFilter struct {
	EntityType *string
	Scope      *string
}

// EntityCount aggregates issued IDs of one entity type.
type EntityCount struct {
	Count        int64     `json:"count"`
	LastIssuedAt time.Time `json:"lastIssuedAt"`
}

// RegistryStats is the read-only aggregation of the registry.
type RegistryStats struct {
	Total        int64
	PerEntity    map[string]EntityCount
	LastIssuedAt *time.Time
}
