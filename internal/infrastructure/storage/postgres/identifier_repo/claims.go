package identifier_repo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"salonid/internal/core/identifier"
)

const claimSQL = `
	INSERT INTO id_claims (prefix, scope, digit_length, number, created_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT DO NOTHING`

// TryClaim implements identifier.CollisionGuard.
func (r *Repo) TryClaim(ctx context.Context, key identifier.SequenceKey, number uint64) (bool, error) {
	tag, err := r.querier(ctx).Exec(ctx, claimSQL, r.claimArgs(key, number, r.now().UTC())...)
	if err != nil {
		return false, fmt.Errorf("claim %d on %s: %w", number, key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// TryClaimMany implements identifier.CollisionGuard.
// Claims are pipelined in one round-trip; each insert succeeds or conflicts independently.
func (r *Repo) TryClaimMany(ctx context.Context, key identifier.SequenceKey, numbers []uint64) ([]bool, error) {
	if len(numbers) == 0 {
		return nil, nil
	}

	now := r.now().UTC()
	batch := &pgx.Batch{}
	for _, n := range numbers {
		batch.Queue(claimSQL, r.claimArgs(key, n, now)...)
	}

	br := r.querier(ctx).SendBatch(ctx, batch)
	defer br.Close()

	claimed := make([]bool, len(numbers))
	for i, n := range numbers {
		tag, err := br.Exec()
		if err != nil {
			return nil, fmt.Errorf("claim %d on %s: %w", n, key, err)
		}
		claimed[i] = tag.RowsAffected() == 1
	}
	return claimed, nil
}

func (r *Repo) claimArgs(key identifier.SequenceKey, number uint64, now time.Time) []any {
	return []any{
		key.Prefix, key.Scope, key.DigitLength, strconv.FormatUint(number, 10),
		now, now.Add(r.claimTTL),
	}
}

// ReleaseAll implements identifier.CollisionGuard.
func (r *Repo) ReleaseAll(ctx context.Context, key identifier.SequenceKey) (int64, error) {
	tag, err := r.querier(ctx).Exec(ctx,
		`DELETE FROM id_claims WHERE prefix = $1 AND scope = $2 AND digit_length = $3`,
		key.Prefix, key.Scope, key.DigitLength,
	)
	if err != nil {
		return 0, fmt.Errorf("release claims of %s: %w", key, err)
	}
	return tag.RowsAffected(), nil
}

// PurgeExpired implements identifier.ClaimPurger.
func (r *Repo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	sql, args, err := r.Builder().
		Delete(tableClaims).
		Where(squirrel.LtOrEq{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge: %w", err)
	}

	tag, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("purge expired claims: %w", err)
	}
	return tag.RowsAffected(), nil
}
