package allocator

import (
	"context"
	"strconv"

	"salonid/internal/core/apperror"
	"salonid/internal/core/identifier"
)

// SelfCheckScope is the reserved scope used by SelfCheck.
const SelfCheckScope = "__selfcheck__"

// ResetSequence clears the counter and claims of one key. Test/dev only.
// Issued registry records are kept, so numbers reissued after a reset are
// still rejected by the registry.
func (s *Service) ResetSequence(ctx context.Context, prefix string, digitLength int, scope *string) error {
	ctx, span := tracer.Start(ctx, "allocator.ResetSequence")
	defer span.End()

	key, err := s.adminKey(prefix, digitLength, scope)
	if err != nil {
		return s.fail(span, err)
	}

	reset := func(ctx context.Context) error {
		existed, err := s.sequences.ResetSequence(ctx, key)
		if err != nil {
			return apperror.NewStoreUnavailable("reset_sequence", err)
		}
		released, err := s.guard.ReleaseAll(ctx, key)
		if err != nil {
			return apperror.NewStoreUnavailable("release_claims", err)
		}
		s.log.WithContext(ctx).Warnw("sequence reset",
			"sequence_key", key.String(),
			"existed", existed,
			"claims_released", released,
		)
		return nil
	}

	if s.txManager != nil {
		err = s.txManager.RunInTransaction(ctx, reset)
	} else {
		err = reset(ctx)
	}
	if err != nil {
		return s.fail(span, err)
	}
	return nil
}

// SetSequence forces the counter state of one key. Used for data migration
// and to simulate exhaustion (totalGenerated = capacity).
func (s *Service) SetSequence(ctx context.Context, prefix string, digitLength int, scope *string, counterValue, totalGenerated int64) error {
	key, err := s.adminKey(prefix, digitLength, scope)
	if err != nil {
		return err
	}
	capacity := key.Capacity()
	if counterValue < 0 || totalGenerated < 0 || uint64(totalGenerated) > capacity {
		return apperror.NewValidation("sequence values out of range").
			WithDetail("counter_value", counterValue).
			WithDetail("total_generated", totalGenerated).
			WithDetail("capacity", capacity)
	}
	if err := s.sequences.SetSequence(ctx, key, counterValue, totalGenerated); err != nil {
		return apperror.NewStoreUnavailable("set_sequence", err)
	}
	s.log.WithContext(ctx).Infow("sequence set",
		"sequence_key", key.String(),
		"counter_value", counterValue,
		"total_generated", totalGenerated,
	)
	return nil
}

func (s *Service) adminKey(prefix string, digitLength int, scope *string) (identifier.SequenceKey, error) {
	if !s.prefixes.KnownPrefix(prefix) {
		return identifier.SequenceKey{}, apperror.NewValidation("unknown prefix").WithDetail("prefix", prefix)
	}
	if digitLength < 1 || digitLength > identifier.MaxSupportedLength {
		return identifier.SequenceKey{}, apperror.NewValidation("digit length out of range").
			WithDetail("digit_length", digitLength)
	}
	return identifier.SequenceKey{Prefix: prefix, DigitLength: digitLength, Scope: scopeValue(scope)}, nil
}

// SelfCheckReport is the outcome of SelfCheck.
type SelfCheckReport struct {
	IDs           []string `json:"ids"`
	Unique        bool     `json:"unique"`
	NonSequential bool     `json:"nonSequential"`
	Valid         bool     `json:"valid"`
}

// OK reports whether every check passed.
func (r SelfCheckReport) OK() bool {
	return r.Unique && r.NonSequential && r.Valid
}

// SelfCheck issues three "nota" identifiers under SelfCheckScope and checks
// that they are distinct, registered and not consecutive numbers.
func (s *Service) SelfCheck(ctx context.Context) (SelfCheckReport, error) {
	scope := SelfCheckScope
	entity := "nota"
	meta := map[string]any{"source": "selfcheck"}

	report := SelfCheckReport{Unique: true, Valid: true}
	seen := make(map[string]struct{}, 3)
	numbers := make([]uint64, 0, 3)

	for range 3 {
		id, err := s.Generate(ctx, entity, &scope, meta)
		if err != nil {
			return report, err
		}
		report.IDs = append(report.IDs, id)

		if _, dup := seen[id]; dup {
			report.Unique = false
		}
		seen[id] = struct{}{}

		valid, err := s.Validate(ctx, id, &entity)
		if err != nil {
			return report, err
		}
		report.Valid = report.Valid && valid

		_, digits, _ := identifier.Parse(id)
		n, _ := strconv.ParseUint(digits, 10, 64)
		numbers = append(numbers, n)
	}

	report.NonSequential = !(numbers[1] == numbers[0]+1 && numbers[2] == numbers[1]+1)
	return report, nil
}

// PurgeExpiredClaims removes expired claims when the guard has no native expiry.
// Returns 0 for guards that expire claims themselves.
func (s *Service) PurgeExpiredClaims(ctx context.Context) (int64, error) {
	purger, ok := s.guard.(identifier.ClaimPurger)
	if !ok {
		return 0, nil
	}
	n, err := purger.PurgeExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, apperror.NewStoreUnavailable("purge_expired_claims", err)
	}
	if n > 0 {
		s.log.WithContext(ctx).Infow("expired claims purged", "count", n)
	}
	return n, nil
}
