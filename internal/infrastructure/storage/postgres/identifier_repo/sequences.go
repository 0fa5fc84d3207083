package identifier_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"salonid/internal/core/identifier"
)

// reserveSQL advances counter_value and total_generated by $4 in one statement.
// The conflict branch only applies while capacity remains; otherwise no row is
// returned and nothing changes.
const reserveSQL = `
	INSERT INTO id_sequences AS s
		(prefix, digit_length, scope, counter_value, total_generated, capacity, created_at, last_used_at)
	VALUES ($1, $2, $3, $4, $4, $5, now(), now())
	ON CONFLICT (prefix, digit_length, scope) DO UPDATE
	SET counter_value   = s.counter_value + EXCLUDED.counter_value,
		total_generated = s.total_generated + EXCLUDED.total_generated,
		last_used_at    = now()
	WHERE s.total_generated + EXCLUDED.total_generated <= s.capacity
	RETURNING counter_value`

// ReserveNext implements identifier.SequenceAllocator.
func (r *Repo) ReserveNext(ctx context.Context, key identifier.SequenceKey) (uint64, bool, error) {
	return r.ReserveRange(ctx, key, 1)
}

// ReserveRange implements identifier.SequenceAllocator.
func (r *Repo) ReserveRange(ctx context.Context, key identifier.SequenceKey, n int) (uint64, bool, error) {
	capacity := int64(key.Capacity())
	if n < 1 || int64(n) > capacity {
		return 0, false, nil
	}

	var counter int64
	err := r.querier(ctx).QueryRow(ctx, reserveSQL,
		key.Prefix, key.DigitLength, key.Scope, int64(n), capacity,
	).Scan(&counter)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reserve %d on %s: %w", n, key, err)
	}

	return uint64(counter-int64(n)) + 1, true, nil
}

// SetSequence implements identifier.SequenceStore.
func (r *Repo) SetSequence(ctx context.Context, key identifier.SequenceKey, counterValue, totalGenerated int64) error {
	_, err := r.querier(ctx).Exec(ctx, `
		INSERT INTO id_sequences
			(prefix, digit_length, scope, counter_value, total_generated, capacity, created_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (prefix, digit_length, scope) DO UPDATE
		SET counter_value   = EXCLUDED.counter_value,
			total_generated = EXCLUDED.total_generated,
			last_used_at    = now()`,
		key.Prefix, key.DigitLength, key.Scope, counterValue, totalGenerated, int64(key.Capacity()),
	)
	if err != nil {
		return fmt.Errorf("set sequence %s: %w", key, err)
	}
	return nil
}

// ResetSequence implements identifier.SequenceStore.
func (r *Repo) ResetSequence(ctx context.Context, key identifier.SequenceKey) (bool, error) {
	tag, err := r.querier(ctx).Exec(ctx, `
		UPDATE id_sequences
		SET counter_value = 0, total_generated = 0, last_used_at = now()
		WHERE prefix = $1 AND digit_length = $2 AND scope = $3`,
		key.Prefix, key.DigitLength, key.Scope,
	)
	if err != nil {
		return false, fmt.Errorf("reset sequence %s: %w", key, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListSequences implements identifier.SequenceStore.
func (r *Repo) ListSequences(ctx context.Context, filter identifier.SequenceFilter) ([]identifier.SequenceCounter, error) {
	sql, args, err := r.listSequencesQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sequences: %w", err)
	}

	var counters []identifier.SequenceCounter
	if err := pgxscan.Select(ctx, r.querier(ctx), &counters, sql, args...); err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	return counters, nil
}

func (r *Repo) listSequencesQuery(filter identifier.SequenceFilter) squirrel.SelectBuilder {
	q := r.Builder().
		Select(sequenceColumns...).
		From(tableSequences).
		OrderBy("prefix", "scope", "digit_length")

	if filter.Prefix != nil {
		q = q.Where(squirrel.Eq{"prefix": *filter.Prefix})
	}
	if filter.Scope != nil {
		q = q.Where(squirrel.Eq{"scope": *filter.Scope})
	}
	return q
}
