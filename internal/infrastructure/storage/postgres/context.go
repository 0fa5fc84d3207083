package postgres

import (
	"context"
)

// staticProvider always returns the same Querier.
type staticProvider struct {
	q Querier
}

// StaticQuerier adapts a fixed Querier (a pool, a connection or a test double)
// to QuerierProvider. Transactions opened by a TxManager are not seen through it.
func StaticQuerier(q Querier) QuerierProvider {
	return staticProvider{q: q}
}

// GetQuerier implements QuerierProvider.
func (p staticProvider) GetQuerier(context.Context) Querier {
	return p.q
}
