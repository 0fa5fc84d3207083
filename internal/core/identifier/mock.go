package identifier

import (
	"context"
)

// MockCollisionGuard is a test implementation of CollisionGuard.
// Unset funcs fall through to Next, or claim everything when Next is nil.
type MockCollisionGuard struct {
	TryClaimFunc     func(ctx context.Context, key SequenceKey, number uint64) (bool, error)
	TryClaimManyFunc func(ctx context.Context, key SequenceKey, numbers []uint64) ([]bool, error)
	ReleaseAllFunc   func(ctx context.Context, key SequenceKey) (int64, error)

	// Next receives calls without an override.
	Next CollisionGuard
}

// TryClaim implements CollisionGuard.
func (m *MockCollisionGuard) TryClaim(ctx context.Context, key SequenceKey, number uint64) (bool, error) {
	if m.TryClaimFunc != nil {
		return m.TryClaimFunc(ctx, key, number)
	}
	if m.Next != nil {
		return m.Next.TryClaim(ctx, key, number)
	}
	return true, nil
}

// TryClaimMany implements CollisionGuard.
func (m *MockCollisionGuard) TryClaimMany(ctx context.Context, key SequenceKey, numbers []uint64) ([]bool, error) {
	if m.TryClaimManyFunc != nil {
		return m.TryClaimManyFunc(ctx, key, numbers)
	}
	if m.Next != nil {
		return m.Next.TryClaimMany(ctx, key, numbers)
	}
	out := make([]bool, len(numbers))
	for i := range out {
		out[i] = true
	}
	return out, nil
}

// ReleaseAll implements CollisionGuard.
func (m *MockCollisionGuard) ReleaseAll(ctx context.Context, key SequenceKey) (int64, error) {
	if m.ReleaseAllFunc != nil {
		return m.ReleaseAllFunc(ctx, key)
	}
	if m.Next != nil {
		return m.Next.ReleaseAll(ctx, key)
	}
	return 0, nil
}

// MockSequenceAllocator is a test implementation of SequenceAllocator.
type MockSequenceAllocator struct {
	ReserveNextFunc  func(ctx context.Context, key SequenceKey) (uint64, bool, error)
	ReserveRangeFunc func(ctx context.Context, key SequenceKey, n int) (uint64, bool, error)
}

// ReserveNext implements SequenceAllocator.
func (m *MockSequenceAllocator) ReserveNext(ctx context.Context, key SequenceKey) (uint64, bool, error) {
	if m.ReserveNextFunc != nil {
		return m.ReserveNextFunc(ctx, key)
	}
	return 1, true, nil
}

// ReserveRange implements SequenceAllocator.
func (m *MockSequenceAllocator) ReserveRange(ctx context.Context, key SequenceKey, n int) (uint64, bool, error) {
	if m.ReserveRangeFunc != nil {
		return m.ReserveRangeFunc(ctx, key, n)
	}
	return 1, true, nil
}

// Ensure compile-time interface compliance.
var (
	_ CollisionGuard    = (*MockCollisionGuard)(nil)
	_ SequenceAllocator = (*MockSequenceAllocator)(nil)
)
