package identifier_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"salonid/internal/core/identifier"
)

const insertIDSQL = `
	INSERT INTO generated_ids
		(id, entity_type, prefix, number, digit_length, scope, created_at,
		 metadata, metadata_compressed, compression_algo)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO NOTHING`

// idRow is the scan target for generated_ids.
type idRow struct {
	ID                 string          `db:"id"`
	EntityType         string          `db:"entity_type"`
	Prefix             string          `db:"prefix"`
	Number             string          `db:"number"`
	DigitLength        int             `db:"digit_length"`
	Scope              string          `db:"scope"`
	CreatedAt          time.Time       `db:"created_at"`
	Metadata           []byte          `db:"metadata"`
	MetadataCompressed []byte          `db:"metadata_compressed"`
	CompressionAlgo    CompressionAlgo `db:"compression_algo"`
}

// entityRow is the scan target for per-entity aggregation.
type entityRow struct {
	EntityType   string    `db:"entity_type"`
	Count        int64     `db:"count"`
	LastIssuedAt time.Time `db:"last_issued_at"`
}

// CreateIfAbsent implements identifier.Registry.
func (r *Repo) CreateIfAbsent(ctx context.Context, rec *identifier.GeneratedID) (bool, error) {
	args, err := r.insertArgs(rec)
	if err != nil {
		return false, err
	}

	tag, err := r.querier(ctx).Exec(ctx, insertIDSQL, args...)
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", rec.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreateMany implements identifier.Registry.
func (r *Repo) CreateMany(ctx context.Context, recs []*identifier.GeneratedID) ([]string, error) {
	if len(recs) == 0 {
		return []string{}, nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		args, err := r.insertArgs(rec)
		if err != nil {
			return nil, err
		}
		batch.Queue(insertIDSQL, args...)
	}

	br := r.querier(ctx).SendBatch(ctx, batch)
	defer br.Close()

	created := make([]string, 0, len(recs))
	for _, rec := range recs {
		tag, err := br.Exec()
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", rec.ID, err)
		}
		if tag.RowsAffected() == 1 {
			created = append(created, rec.ID)
		}
	}
	return created, nil
}

func (r *Repo) insertArgs(rec *identifier.GeneratedID) ([]any, error) {
	meta, err := r.codec.Encode(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata of %s: %w", rec.ID, err)
	}
	return []any{
		rec.ID, rec.EntityType, rec.Prefix, rec.Number, rec.DigitLength, rec.Scope, rec.CreatedAt,
		meta.JSON, meta.Compressed, string(meta.Algo),
	}, nil
}

// Get implements identifier.Registry.
func (r *Repo) Get(ctx context.Context, id string) (*identifier.GeneratedID, error) {
	sql, args, err := r.Builder().
		Select(idColumns...).
		From(tableIDs).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row idRow
	err = pgxscan.Get(ctx, r.querier(ctx), &row, sql, args...)
	if pgxscan.NotFound(err) {
		return nil, identifier.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}

	metadata, err := r.codec.Decode(EncodedMetadata{
		JSON:       row.Metadata,
		Compressed: row.MetadataCompressed,
		Algo:       row.CompressionAlgo,
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}

	return &identifier.GeneratedID{
		ID:          row.ID,
		EntityType:  row.EntityType,
		Prefix:      row.Prefix,
		Number:      row.Number,
		DigitLength: row.DigitLength,
		Scope:       row.Scope,
		CreatedAt:   row.CreatedAt,
		Metadata:    metadata,
	}, nil
}

// ExistsWithEntity implements identifier.Registry.
func (r *Repo) ExistsWithEntity(ctx context.Context, id, entityType string) (bool, error) {
	var exists bool
	err := r.querier(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM generated_ids WHERE id = $1 AND entity_type = $2)`,
		id, entityType,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", id, err)
	}
	return exists, nil
}

// Stats implements identifier.Registry.
func (r *Repo) Stats(ctx context.Context, filter identifier.RegistryFilter) (identifier.RegistryStats, error) {
	sql, args, err := r.statsQuery(filter).ToSql()
	if err != nil {
		return identifier.RegistryStats{}, fmt.Errorf("build registry stats: %w", err)
	}

	var rows []entityRow
	if err := pgxscan.Select(ctx, r.querier(ctx), &rows, sql, args...); err != nil {
		return identifier.RegistryStats{}, fmt.Errorf("registry stats: %w", err)
	}

	stats := identifier.RegistryStats{PerEntity: make(map[string]identifier.EntityCount, len(rows))}
	for _, row := range rows {
		stats.Total += row.Count
		stats.PerEntity[row.EntityType] = identifier.EntityCount{
			Count:        row.Count,
			LastIssuedAt: row.LastIssuedAt,
		}
		if stats.LastIssuedAt == nil || row.LastIssuedAt.After(*stats.LastIssuedAt) {
			t := row.LastIssuedAt
			stats.LastIssuedAt = &t
		}
	}
	return stats, nil
}

func (r *Repo) statsQuery(filter identifier.RegistryFilter) squirrel.SelectBuilder {
	q := r.Builder().
		Select("entity_type", "COUNT(*) AS count", "MAX(created_at) AS last_issued_at").
		From(tableIDs).
		GroupBy("entity_type").
		OrderBy("entity_type")

	if filter.EntityType != nil {
		q = q.Where(squirrel.Eq{"entity_type": *filter.EntityType})
	}
	if filter.Scope != nil {
		q = q.Where(squirrel.Eq{"scope": *filter.Scope})
	}
	return q
}
