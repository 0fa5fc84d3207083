// Package allocator issues entity-prefixed identifiers (CL-84721).
//
// Every call walks the same pipeline: reserve a sequence value, disperse it
// into the fixed-width range, claim the number, register the final ID.
// All atomicity lives in the backing store; the Service keeps no mutable
// state between calls and is safe to share across goroutines and processes.
package allocator

import (
	"context"
	"maps"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"salonid/internal/core/apperror"
	"salonid/internal/core/identifier"
	"salonid/internal/core/tx"
	"salonid/pkg/logger"
)

var tracer = otel.Tracer("salonid/allocator")

// Service is the allocator entry point.
type Service struct {
	sequences identifier.SequenceStore
	guard     identifier.CollisionGuard
	registry  identifier.Registry

	opts      identifier.Options
	disperser identifier.Disperser
	prefixes  *identifier.PrefixTable
	txManager tx.Manager // Optional - reset runs without a transaction when nil
	observer  Observer
	log       *logger.Logger
	now       func() time.Time
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithTxManager wraps administrative resets in a transaction.
func WithTxManager(m tx.Manager) Option {
	return func(s *Service) { s.txManager = m }
}

// WithObserver installs an allocation observer (metrics).
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithPrefixTable replaces the built-in entity prefix table.
func WithPrefixTable(t *identifier.PrefixTable) Option {
	return func(s *Service) {
		if t != nil {
			s.prefixes = t
		}
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the base logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService creates the allocator over the three store contracts.
func NewService(
	sequences identifier.SequenceStore,
	guard identifier.CollisionGuard,
	registry identifier.Registry,
	opts identifier.Options,
	options ...Option,
) (*Service, error) {
	if err := opts.Validate(); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}

	s := &Service{
		sequences: sequences,
		guard:     guard,
		registry:  registry,
		opts:      opts,
		disperser: identifier.NewDisperser(opts.Strategy),
		prefixes:  identifier.DefaultPrefixTable(),
		observer:  NopObserver(),
		log:       logger.Default(),
		now:       time.Now,
	}
	for _, o := range options {
		o(s)
	}
	s.log = s.log.WithComponent("allocator")
	return s, nil
}

// Options returns the effective allocator options.
func (s *Service) Options() identifier.Options {
	return s.opts
}

// Generate issues one identifier for entityType.
//
// Starting at the initial digit length, each length is retried up to
// MaxRetries times on collisions; a full length escalates to the next one.
// A nil or empty scope is the global namespace.
func (s *Service) Generate(ctx context.Context, entityType string, scope *string, metadata map[string]any) (string, error) {
	ctx, span := tracer.Start(ctx, "allocator.Generate",
		trace.WithAttributes(attribute.String("id.entity_type", entityType)))
	defer span.End()

	entity, prefix, err := s.resolve(entityType)
	if err != nil {
		return "", s.fail(span, err)
	}
	sc := scopeValue(scope)

	for length := s.opts.InitialLength; length <= s.opts.MaxLength; length++ {
		key := identifier.SequenceKey{Prefix: prefix, DigitLength: length, Scope: sc}

		id, exhausted, err := s.generateAtLength(ctx, key, entity, metadata)
		if err != nil {
			return "", s.fail(span, err)
		}
		if exhausted {
			s.escalate(ctx, key)
			continue
		}

		span.SetAttributes(attribute.String("id.value", id))
		s.observer.Issued(entity, 1)
		s.log.WithContext(ctx).Debugw("identifier issued", "id", id, "entity_type", entity, "scope", sc)
		return id, nil
	}

	return "", s.fail(span, apperror.NewCapacityExhausted(prefix, sc, s.opts.MaxLength))
}

// generateAtLength runs the bounded attempt loop for one digit length.
// exhausted=true means the key's capacity is used up and the caller should escalate.
func (s *Service) generateAtLength(
	ctx context.Context,
	key identifier.SequenceKey,
	entity string,
	metadata map[string]any,
) (id string, exhausted bool, err error) {
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		seq, ok, err := s.sequences.ReserveNext(ctx, key)
		if err != nil {
			return "", false, apperror.NewStoreUnavailable("reserve_next", err)
		}
		if !ok {
			return "", true, nil
		}

		number := s.disperser.Disperse(seq, key.DigitLength, key.Prefix, key.Scope)
		candidate := identifier.Format(key.Prefix, number, key.DigitLength)

		claimed, err := s.guard.TryClaim(ctx, key, number)
		if err != nil {
			return "", false, apperror.NewStoreUnavailable("try_claim", err)
		}
		if !claimed {
			s.collision(ctx, key, candidate, "claim", attempt)
			continue
		}

		created, err := s.registry.CreateIfAbsent(ctx, s.record(key, entity, number, metadata))
		if err != nil {
			return "", false, apperror.NewStoreUnavailable("create_if_absent", err)
		}
		if !created {
			s.collision(ctx, key, candidate, "registry", attempt)
			continue
		}

		return candidate, false, nil
	}

	s.log.WithContext(ctx).Errorw("identifier retries exhausted",
		"sequence_key", key.String(),
		"attempts", s.opts.MaxRetries,
	)
	return "", false, apperror.NewRetriesExhausted(key.String(), s.opts.MaxRetries)
}

// GenerateBatch issues up to count identifiers from one contiguous sequence range.
//
// Colliding numbers inside the batch are dropped, not retried, so the result
// may hold fewer than count IDs. Callers needing an exact count must request
// more and trim, or call Generate in a loop.
func (s *Service) GenerateBatch(ctx context.Context, entityType string, scope *string, count int, metadata map[string]any) ([]string, error) {
	ctx, span := tracer.Start(ctx, "allocator.GenerateBatch",
		trace.WithAttributes(
			attribute.String("id.entity_type", entityType),
			attribute.Int("id.count", count),
		))
	defer span.End()

	if count < 1 || count > s.opts.MaxBatch {
		return nil, s.fail(span, apperror.NewValidation("batch count out of range").
			WithDetail("count", count).
			WithDetail("max", s.opts.MaxBatch))
	}

	entity, prefix, err := s.resolve(entityType)
	if err != nil {
		return nil, s.fail(span, err)
	}
	sc := scopeValue(scope)

	for length := s.opts.InitialLength; length <= s.opts.MaxLength; length++ {
		key := identifier.SequenceKey{Prefix: prefix, DigitLength: length, Scope: sc}

		start, ok, err := s.sequences.ReserveRange(ctx, key, count)
		if err != nil {
			return nil, s.fail(span, apperror.NewStoreUnavailable("reserve_range", err))
		}
		if !ok {
			s.escalate(ctx, key)
			continue
		}

		ids, err := s.issueRange(ctx, key, entity, start, count, metadata)
		if err != nil {
			return nil, s.fail(span, err)
		}
		span.SetAttributes(attribute.Int("id.issued", len(ids)))
		return ids, nil
	}

	return nil, s.fail(span, apperror.NewCapacityExhausted(prefix, sc, s.opts.MaxLength))
}

func (s *Service) issueRange(
	ctx context.Context,
	key identifier.SequenceKey,
	entity string,
	start uint64,
	count int,
	metadata map[string]any,
) ([]string, error) {
	numbers := make([]uint64, count)
	for i := range numbers {
		numbers[i] = s.disperser.Disperse(start+uint64(i), key.DigitLength, key.Prefix, key.Scope)
	}

	claimed, err := s.guard.TryClaimMany(ctx, key, numbers)
	if err != nil {
		return nil, apperror.NewStoreUnavailable("try_claim_many", err)
	}

	records := make([]*identifier.GeneratedID, 0, count)
	for i, ok := range claimed {
		if !ok {
			s.observer.Collision(key.Prefix, "claim")
			continue
		}
		records = append(records, s.record(key, entity, numbers[i], metadata))
	}

	ids, err := s.registry.CreateMany(ctx, records)
	if err != nil {
		return nil, apperror.NewStoreUnavailable("create_many", err)
	}
	for range len(records) - len(ids) {
		s.observer.Collision(key.Prefix, "registry")
	}

	if dropped := count - len(ids); dropped > 0 {
		s.log.WithContext(ctx).Warnw("batch dropped colliding identifiers",
			"sequence_key", key.String(),
			"requested", count,
			"dropped", dropped,
		)
	}
	s.observer.Issued(entity, len(ids))
	return ids, nil
}

func (s *Service) record(key identifier.SequenceKey, entity string, number uint64, metadata map[string]any) *identifier.GeneratedID {
	id := identifier.Format(key.Prefix, number, key.DigitLength)
	return &identifier.GeneratedID{
		ID:          id,
		EntityType:  entity,
		Prefix:      key.Prefix,
		Number:      id[len(key.Prefix)+1:],
		DigitLength: key.DigitLength,
		Scope:       key.Scope,
		CreatedAt:   s.now().UTC(),
		Metadata:    maps.Clone(metadata),
	}
}

// resolve normalizes entityType and maps it to its prefix.
func (s *Service) resolve(entityType string) (entity, prefix string, err error) {
	entity = identifier.NormalizeEntity(entityType)
	prefix, ok := s.prefixes.Resolve(entity)
	if !ok {
		return "", "", apperror.NewInvalidEntity(entityType, s.prefixes.Entities())
	}
	return entity, prefix, nil
}

func (s *Service) collision(ctx context.Context, key identifier.SequenceKey, candidate, stage string, attempt int) {
	s.observer.Collision(key.Prefix, stage)
	s.log.WithContext(ctx).Warnw("identifier collision, retrying",
		"sequence_key", key.String(),
		"candidate", candidate,
		"stage", stage,
		"attempt", attempt,
	)
}

func (s *Service) escalate(ctx context.Context, key identifier.SequenceKey) {
	s.observer.Escalated(key.Prefix, key.DigitLength)
	s.log.WithContext(ctx).Warnw("sequence capacity exhausted, escalating digit length",
		"sequence_key", key.String(),
		"capacity", key.Capacity(),
		"next_length", key.DigitLength+1,
	)
}

// fail records err on the span and the observer, then returns it unchanged.
func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if appErr, ok := apperror.AsAppError(err); ok {
		s.observer.Failed(appErr.Code)
	} else {
		s.observer.Failed(apperror.CodeInternal)
	}
	return err
}

// scopeValue maps the optional scope to its stored form; "" is global.
func scopeValue(scope *string) string {
	if scope == nil {
		return ""
	}
	v := strings.TrimSpace(*scope)
	if strings.EqualFold(v, identifier.GlobalScope) {
		return ""
	}
	return v
}
