// Package identifier_repo provides the PostgreSQL implementation of the
// identifier stores: sequence counters, number claims and the ID registry.
//
// Every mutating operation is a single statement relying on PostgreSQL's
// own atomicity (INSERT ... ON CONFLICT). No read-then-write happens here.
package identifier_repo

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"salonid/internal/core/identifier"
	"salonid/internal/infrastructure/storage/postgres"
)

const (
	tableSequences = "id_sequences"
	tableClaims    = "id_claims"
	tableIDs       = "generated_ids"
)

var (
	sequenceColumns = postgres.ExtractDBColumns[identifier.SequenceCounter]()
	idColumns       = postgres.ExtractDBColumns[idRow]()
)

// DefaultClaimTTL is how long a claim is kept before PurgeExpired may drop it.
const DefaultClaimTTL = 365 * 24 * time.Hour

//go:embed schema.sql
var schemaSQL string

// Repo implements SequenceStore, CollisionGuard, ClaimPurger and Registry on PostgreSQL.
type Repo struct {
	db       postgres.QuerierProvider
	codec    *MetadataCodec
	claimTTL time.Duration
	now      func() time.Time
}

// Ensure compile-time interface compliance.
var (
	_ identifier.SequenceStore  = (*Repo)(nil)
	_ identifier.CollisionGuard = (*Repo)(nil)
	_ identifier.ClaimPurger    = (*Repo)(nil)
	_ identifier.Registry       = (*Repo)(nil)
)

// Option configures a Repo.
type Option func(*Repo)

// WithClaimTTL sets claim expiry.
func WithClaimTTL(ttl time.Duration) Option {
	return func(r *Repo) {
		if ttl > 0 {
			r.claimTTL = ttl
		}
	}
}

// WithClock overrides the time source for claim timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repo) { r.now = now }
}

// WithMetadataCodec overrides the registry metadata codec.
func WithMetadataCodec(c *MetadataCodec) Option {
	return func(r *Repo) { r.codec = c }
}

// New creates a repository. db is usually a *postgres.TxManager so that
// administrative operations join an open transaction.
func New(db postgres.QuerierProvider, opts ...Option) (*Repo, error) {
	r := &Repo{
		db:       db,
		claimTTL: DefaultClaimTTL,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.codec == nil {
		codec, err := NewMetadataCodec(DefaultCompressThreshold)
		if err != nil {
			return nil, err
		}
		r.codec = codec
	}
	return r, nil
}

// EnsureSchema creates tables and indexes if they do not exist.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure identifier schema: %w", err)
	}
	return nil
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *Repo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo) querier(ctx context.Context) postgres.Querier {
	return r.db.GetQuerier(ctx)
}
