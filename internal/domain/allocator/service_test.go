package allocator

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonid/internal/core/apperror"
	"salonid/internal/core/identifier"
	"salonid/internal/infrastructure/storage/memory"
	"salonid/pkg/logger"
)

var issuedPattern = regexp.MustCompile(`^[A-Z]{2,3}-[0-9]{5,10}$`)

func ptr[T any](v T) *T { return &v }

type serviceFixture struct {
	svc   *Service
	store *memory.Store
}

func newFixture(t *testing.T, opts identifier.Options, options ...Option) serviceFixture {
	t.Helper()
	store := memory.New()
	options = append([]Option{WithLogger(logger.Nop())}, options...)
	svc, err := NewService(store, store, store, opts, options...)
	require.NoError(t, err)
	return serviceFixture{svc: svc, store: store}
}

func newDefaultFixture(t *testing.T, options ...Option) serviceFixture {
	return newFixture(t, identifier.DefaultOptions(), options...)
}

// recordingObserver counts events for assertions.
type recordingObserver struct {
	mu         sync.Mutex
	issued     map[string]int
	collisions map[string]int
	escalated  int
	failed     map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		issued:     map[string]int{},
		collisions: map[string]int{},
		failed:     map[string]int{},
	}
}

func (o *recordingObserver) Issued(entityType string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.issued[entityType] += n
}

func (o *recordingObserver) Collision(_ string, stage string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.collisions[stage]++
}

func (o *recordingObserver) Escalated(string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.escalated++
}

func (o *recordingObserver) Failed(code string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed[code]++
}

func TestNewService_RejectsBadOptions(t *testing.T) {
	store := memory.New()
	opts := identifier.DefaultOptions()
	opts.MaxRetries = 0

	_, err := NewService(store, store, store, opts)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestGenerate_FirstTwoClientIDs(t *testing.T) {
	f := newDefaultFixture(t)
	ctx := context.Background()

	first, err := f.svc.Generate(ctx, "cliente", nil, nil)
	require.NoError(t, err)
	second, err := f.svc.Generate(ctx, "cliente", nil, nil)
	require.NoError(t, err)

	assert.Regexp(t, `^CL-[0-9]{5}$`, first)
	assert.Regexp(t, `^CL-[0-9]{5}$`, second)
	assert.NotEqual(t, first, second)

	ok, err := f.svc.Validate(ctx, first, ptr("cliente"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGenerate_StoresRecord(t *testing.T) {
	at := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)
	f := newDefaultFixture(t, WithClock(func() time.Time { return at }))
	ctx := context.Background()

	meta := map[string]any{"sede": "norte"}
	id, err := f.svc.Generate(ctx, "Servicio", ptr("sede-1"), meta)
	require.NoError(t, err)

	rec, err := f.svc.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "servicio", rec.EntityType)
	assert.Equal(t, "SV", rec.Prefix)
	assert.Equal(t, 5, rec.DigitLength)
	assert.Equal(t, "sede-1", rec.Scope)
	assert.Equal(t, id[3:], rec.Number)
	assert.Equal(t, at, rec.CreatedAt)
	assert.Equal(t, "norte", rec.Metadata["sede"])

	entity, err := f.svc.EntityOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "servicio", entity)
}

func TestGenerate_GlobalScopeAliases(t *testing.T) {
	f := newDefaultFixture(t)
	ctx := context.Background()

	_, err := f.svc.Generate(ctx, "cliente", nil, nil)
	require.NoError(t, err)
	_, err = f.svc.Generate(ctx, "cliente", ptr(""), nil)
	require.NoError(t, err)
	_, err = f.svc.Generate(ctx, "cliente", ptr("global"), nil)
	require.NoError(t, err)

	counters, err := f.store.ListSequences(ctx, identifier.SequenceFilter{})
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, "", counters[0].Scope)
	assert.Equal(t, int64(3), counters[0].CounterValue)
}

func TestGenerate_InvalidEntity(t *testing.T) {
	obs := newRecordingObserver()
	f := newDefaultFixture(t, WithObserver(obs))

	_, err := f.svc.Generate(context.Background(), "dragon", nil, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidEntity))
	assert.Equal(t, 1, obs.failed[apperror.CodeInvalidEntity])

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Contains(t, appErr.Details["valid_entities"], "cliente")
}

func TestGenerate_EscalatesWhenCapacityExhausted(t *testing.T) {
	obs := newRecordingObserver()
	f := newDefaultFixture(t, WithObserver(obs))
	ctx := context.Background()

	// Simulate a full 5-digit key.
	require.NoError(t, f.svc.SetSequence(ctx, "CL", 5, nil, 90000, 90000))

	id, err := f.svc.Generate(ctx, "cliente", nil, nil)
	require.NoError(t, err)
	assert.Regexp(t, `^CL-[0-9]{6}$`, id)
	assert.Equal(t, 1, obs.escalated)

	ok, err := f.svc.Validate(ctx, id, ptr("cliente"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGenerate_CapacityExhausted(t *testing.T) {
	opts := identifier.DefaultOptions()
	opts.InitialLength = 1
	opts.MaxLength = 2
	f := newFixture(t, opts)
	ctx := context.Background()

	require.NoError(t, f.svc.SetSequence(ctx, "CL", 1, nil, 9, 9))
	require.NoError(t, f.svc.SetSequence(ctx, "CL", 2, nil, 90, 90))

	_, err := f.svc.Generate(ctx, "cliente", nil, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeCapacityExhausted))

	_, err = f.svc.GenerateBatch(ctx, "cliente", nil, 1, nil)
	assert.True(t, apperror.IsCode(err, apperror.CodeCapacityExhausted))
}

func TestGenerate_RetriesAfterClaimCollision(t *testing.T) {
	store := memory.New()
	obs := newRecordingObserver()

	calls := 0
	guard := &identifier.MockCollisionGuard{
		Next: store,
		TryClaimFunc: func(ctx context.Context, key identifier.SequenceKey, number uint64) (bool, error) {
			calls++
			if calls == 1 {
				return false, nil
			}
			return store.TryClaim(ctx, key, number)
		},
	}
	svc, err := NewService(store, guard, store, identifier.DefaultOptions(),
		WithLogger(logger.Nop()), WithObserver(obs))
	require.NoError(t, err)
	ctx := context.Background()

	id, err := svc.Generate(ctx, "cliente", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, obs.collisions["claim"])

	exists, err := svc.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	// The rejected attempt still consumed a sequence value.
	counters, err := store.ListSequences(ctx, identifier.SequenceFilter{})
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, int64(2), counters[0].CounterValue)

	// Sequence 1 was skipped, so the issued number is the dispersion of sequence 2.
	assert.Equal(t, identifier.Format("CL", identifier.Disperse(2, 5, "CL", ""), 5), id)
}

func TestGenerate_RetriesAfterRegistryCollision(t *testing.T) {
	obs := newRecordingObserver()
	f := newDefaultFixture(t, WithObserver(obs))
	ctx := context.Background()

	// A registry record without a claim, as left by a crashed earlier attempt.
	orphan := identifier.Format("CL", identifier.Disperse(1, 5, "CL", ""), 5)
	created, err := f.store.CreateIfAbsent(ctx, &identifier.GeneratedID{ID: orphan, EntityType: "cliente"})
	require.NoError(t, err)
	require.True(t, created)

	id, err := f.svc.Generate(ctx, "cliente", nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, orphan, id)
	assert.Equal(t, 1, obs.collisions["registry"])
}

func TestGenerate_RetriesExhausted(t *testing.T) {
	store := memory.New()
	guard := &identifier.MockCollisionGuard{
		TryClaimFunc: func(context.Context, identifier.SequenceKey, uint64) (bool, error) {
			return false, nil
		},
	}
	opts := identifier.DefaultOptions()
	opts.MaxRetries = 7
	svc, err := NewService(store, guard, store, opts, WithLogger(logger.Nop()))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Generate(ctx, "cita", nil, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeRetriesExhausted))

	// Exhausted retries do not escalate.
	counters, err := store.ListSequences(ctx, identifier.SequenceFilter{})
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, 5, counters[0].DigitLength)
	assert.Equal(t, int64(7), counters[0].CounterValue)
}

func TestGenerate_StoreUnavailable(t *testing.T) {
	store := memory.New()
	down := errors.New("connection refused")
	seqs := &failingSequences{SequenceStore: store, err: down}

	svc, err := NewService(seqs, store, store, identifier.DefaultOptions(), WithLogger(logger.Nop()))
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), "cliente", nil, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeStoreUnavailable))
	assert.ErrorIs(t, err, down)
}

type failingSequences struct {
	identifier.SequenceStore
	err error
}

func (f *failingSequences) ReserveNext(context.Context, identifier.SequenceKey) (uint64, bool, error) {
	return 0, false, f.err
}

func TestGenerate_ConcurrentCallersGetUniqueIDs(t *testing.T) {
	f := newDefaultFixture(t)
	ctx := context.Background()

	const workers, perWorker = 16, 40
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]struct{}, workers*perWorker)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				id, err := f.svc.Generate(ctx, "cita", ptr("sede-centro"), nil)
				if !assert.NoError(t, err) {
					return
				}
				assert.Regexp(t, issuedPattern, id)
				mu.Lock()
				_, dup := ids[id]
				ids[id] = struct{}{}
				mu.Unlock()
				assert.False(t, dup, "duplicate id %s", id)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, ids, workers*perWorker)
}

func TestGenerate_FeistelStrategy(t *testing.T) {
	opts := identifier.DefaultOptions()
	opts.Strategy = identifier.DispersionFeistel
	f := newFixture(t, opts)
	ctx := context.Background()

	id, err := f.svc.Generate(ctx, "factura", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, identifier.Format("FC", identifier.DisperseFeistel(1, 5, "FC", ""), 5), id)
}

func TestGenerateBatch(t *testing.T) {
	obs := newRecordingObserver()
	f := newDefaultFixture(t, WithObserver(obs))
	ctx := context.Background()

	ids, err := f.svc.GenerateBatch(ctx, "servicio", nil, 100, map[string]any{"import": "2026-q4"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(ids), 100)
	assert.NotEmpty(t, ids)

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		assert.Regexp(t, `^SV-[0-9]{5}$`, id)
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
	}
	assert.Equal(t, len(ids), obs.issued["servicio"])

	// A following single Generate continues after the reserved range.
	next, err := f.svc.Generate(ctx, "servicio", nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, seen, next)
}

func TestGenerateBatch_DropsCollisions(t *testing.T) {
	f := newDefaultFixture(t)
	ctx := context.Background()

	// Pre-claim the number sequence 3 will map to.
	key := identifier.SequenceKey{Prefix: "PR", DigitLength: 5}
	taken := identifier.Disperse(3, 5, "PR", "")
	ok, err := f.store.TryClaim(ctx, key, taken)
	require.NoError(t, err)
	require.True(t, ok)

	ids, err := f.svc.GenerateBatch(ctx, "producto", nil, 5, nil)
	require.NoError(t, err)
	assert.Len(t, ids, 4)
	assert.NotContains(t, ids, identifier.Format("PR", taken, 5))
}

func TestGenerateBatch_CountBounds(t *testing.T) {
	f := newDefaultFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateBatch(ctx, "servicio", nil, 0, nil)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = f.svc.GenerateBatch(ctx, "servicio", nil, identifier.DefaultMaxBatch+1, nil)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = f.svc.GenerateBatch(ctx, "dragon", nil, 1, nil)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidEntity))
}

func TestGenerateBatch_EscalatesWhenRangeDoesNotFit(t *testing.T) {
	f := newDefaultFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetSequence(ctx, "VT", 5, nil, 89990, 89990))

	ids, err := f.svc.GenerateBatch(ctx, "venta", nil, 20, nil)
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	for _, id := range ids {
		assert.Regexp(t, `^VT-[0-9]{6}$`, id)
	}
}
