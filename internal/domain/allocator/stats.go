package allocator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"salonid/internal/core/apperror"
	"salonid/internal/core/identifier"
)

// SequenceUsage reports capacity consumption of one sequence key.
type SequenceUsage struct {
	Key         string          `json:"key"`
	Prefix      string          `json:"prefix"`
	DigitLength int             `json:"digitLength"`
	Scope       string          `json:"scope,omitempty"`
	Generated   int64           `json:"generated"`
	Capacity    int64           `json:"capacity"`
	Available   int64           `json:"available"`
	PercentUsed decimal.Decimal `json:"percentUsed"`
	LastUsedAt  time.Time       `json:"lastUsedAt"`
}

// StatsReport is the read-only aggregation returned by Stats.
type StatsReport struct {
	TotalIssued  int64                             `json:"totalIssued"`
	PerEntity    map[string]identifier.EntityCount `json:"perEntity"`
	Sequences    []SequenceUsage                   `json:"sequences"`
	LastIssuedAt *time.Time                        `json:"lastIssuedAt,omitempty"`
}

var hundred = decimal.NewFromInt(100)

// Stats aggregates issued identifiers and sequence capacity usage.
// entityType narrows both parts to that entity's prefix; scope narrows them
// to one scope ("" selects the global namespace).
func (s *Service) Stats(ctx context.Context, entityType *string, scope *string) (StatsReport, error) {
	ctx, span := tracer.Start(ctx, "allocator.Stats")
	defer span.End()

	var (
		regFilter identifier.RegistryFilter
		seqFilter identifier.SequenceFilter
	)
	if entityType != nil {
		entity, prefix, err := s.resolve(*entityType)
		if err != nil {
			return StatsReport{}, s.fail(span, err)
		}
		regFilter.EntityType = &entity
		seqFilter.Prefix = &prefix
	}
	if scope != nil {
		sc := scopeValue(scope)
		regFilter.Scope = &sc
		seqFilter.Scope = &sc
	}

	reg, err := s.registry.Stats(ctx, regFilter)
	if err != nil {
		return StatsReport{}, s.fail(span, apperror.NewStoreUnavailable("registry_stats", err))
	}
	counters, err := s.sequences.ListSequences(ctx, seqFilter)
	if err != nil {
		return StatsReport{}, s.fail(span, apperror.NewStoreUnavailable("list_sequences", err))
	}

	report := StatsReport{
		TotalIssued:  reg.Total,
		PerEntity:    reg.PerEntity,
		Sequences:    make([]SequenceUsage, 0, len(counters)),
		LastIssuedAt: reg.LastIssuedAt,
	}
	if report.PerEntity == nil {
		report.PerEntity = map[string]identifier.EntityCount{}
	}
	for _, c := range counters {
		report.Sequences = append(report.Sequences, usageOf(c))
	}
	return report, nil
}

func usageOf(c identifier.SequenceCounter) SequenceUsage {
	u := SequenceUsage{
		Key:         c.Key().String(),
		Prefix:      c.Prefix,
		DigitLength: c.DigitLength,
		Scope:       c.Scope,
		Generated:   c.TotalGenerated,
		Capacity:    c.Capacity,
		Available:   max(c.Capacity-c.TotalGenerated, 0),
		PercentUsed: decimal.Zero,
		LastUsedAt:  c.LastUsedAt,
	}
	if c.Capacity > 0 {
		u.PercentUsed = decimal.NewFromInt(c.TotalGenerated).
			Mul(hundred).
			Div(decimal.NewFromInt(c.Capacity)).
			Round(2)
	}
	return u
}
