// Package billing contains the subscription lifecycle core: the decision
// logic that moves a user's subscription between states in response to user
// intents and gateway webhook events, and the dues reconciliation that gates
// cancellation.
package billing

import (
	"context"

	"subhub/internal/types"
)

// DuesCalculator computes the outstanding charges a user owes for usage
// beyond the subscription's included allowance, scoped to the current
// billing period. Implementations must be pure reads: no side effects, and
// a zero amount when nothing is owed.
//
// The accrual rule is deployment-specific, so the service ships no real
// implementation; deployments inject their own strategy. Amounts are in the
// currency's major unit (rupees); the ledger converts to the minor unit
// when creating the dues order.
type DuesCalculator interface {
	ComputeDues(ctx context.Context, user *types.UserRecord) (amount int64, description string, err error)
}

// NoDues is the default DuesCalculator: every user owes nothing, so
// cancellation always proceeds immediately.
type NoDues struct{}

// ComputeDues returns zero for every user.
func (NoDues) ComputeDues(_ context.Context, _ *types.UserRecord) (int64, string, error) {
	return 0, "", nil
}

// DuesFunc adapts a plain function to the DuesCalculator interface.
type DuesFunc func(ctx context.Context, user *types.UserRecord) (int64, string, error)

// ComputeDues implements DuesCalculator.
func (f DuesFunc) ComputeDues(ctx context.Context, user *types.UserRecord) (int64, string, error) {
	return f(ctx, user)
}
