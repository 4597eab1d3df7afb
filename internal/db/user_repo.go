package db

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"subhub/internal/types"
)

// userColumns is the projection shared by both lookup paths.
const userColumns = `uid, email, phone,
	subscription_details, subscription_id, subscription_enabled,
	subscription_cancel_request_details, subscription_add_ons_history`

// UserRepo is the Postgres-backed user store. It is the sole writer of the
// subscription_* columns; contact fields are owned by the signup flow.
//
// No optimistic concurrency control is applied: two concurrent writes for
// the same user are last-write-wins, matching the store's documented
// semantics.
type UserRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewUserRepo creates a UserRepo backed by the given database connection
// (pool or transaction).
func NewUserRepo(db DBTX, logger *slog.Logger) *UserRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserRepo{db: db, logger: logger}
}

// GetByUserID returns the user record for the given opaque user id.
// Returns an AppError with code not_found_user when no record matches.
func (r *UserRepo) GetByUserID(ctx context.Context, userID string) (*types.UserRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE uid = $1`,
		userID,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user doesn't exist", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch user", err)
	}
	return u, nil
}

// GetBySubscriptionID returns the user record owning the given gateway
// subscription id. This is the only lookup keyed by subscription id; it
// serves webhook reconciliation, where a miss is expected and harmless.
func (r *UserRepo) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*types.UserRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE subscription_id = $1`,
		subscriptionID,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "no user holds this subscription", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch user by subscription id", err)
	}
	return u, nil
}

// SaveSubscription overwrites the stored subscription details and mirrors the
// gateway id into the denormalized subscription_id column in a single write.
func (r *UserRepo) SaveSubscription(ctx context.Context, userID string, sub *types.Subscription) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET subscription_details = $1,
		     subscription_id = $2
		 WHERE uid = $3`,
		*sub,
		sub.ID,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save subscription details", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user doesn't exist", nil)
	}
	return nil
}

// SaveCancelOrder stores the pending dues order created ahead of a
// cancellation. The column is overwritten, never appended: at most one
// pending dues order exists per user.
func (r *UserRepo) SaveCancelOrder(ctx context.Context, userID string, order *types.Order) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET subscription_cancel_request_details = $1
		 WHERE uid = $2`,
		*order,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save pending dues order", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user doesn't exist", nil)
	}
	return nil
}

// AppendAddOn appends the gateway add-on response to the user's add-on
// history. The append happens in SQL so the history only ever grows, even
// under concurrent add-on purchases.
func (r *UserRepo) AppendAddOn(ctx context.Context, userID string, addOn types.AddOn) error {
	payload, err := json.Marshal(addOn)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode add-on", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET subscription_add_ons_history =
		     COALESCE(subscription_add_ons_history, '[]'::jsonb) || $1::jsonb
		 WHERE uid = $2`,
		payload,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append add-on history", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user doesn't exist", nil)
	}
	return nil
}

// SaveStatusUpdate applies a webhook status event: the subscription details
// are always overwritten (the event is more current than any cached copy),
// and the enabled flag is set only when the status classified into one of
// the two buckets. A nil enabled leaves the stored flag untouched.
func (r *UserRepo) SaveStatusUpdate(ctx context.Context, userID string, enabled *bool, sub *types.Subscription) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET subscription_details = $1,
		     subscription_enabled = COALESCE($2, subscription_enabled)
		 WHERE uid = $3`,
		*sub,
		enabled,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to apply status update", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user doesn't exist", nil)
	}
	return nil
}

// scanUser maps one row of userColumns into a UserRecord, converting SQL
// NULLs into nil pointers.
func scanUser(row pgx.Row) (*types.UserRecord, error) {
	var (
		u          types.UserRecord
		subRaw     []byte
		subID      *string
		enabled    *bool
		orderRaw   []byte
		historyRaw []byte
	)

	if err := row.Scan(&u.UID, &u.Email, &u.Phone, &subRaw, &subID, &enabled, &orderRaw, &historyRaw); err != nil {
		return nil, err
	}

	if subID != nil {
		u.SubscriptionID = *subID
	}
	u.SubscriptionEnabled = enabled

	if len(subRaw) > 0 {
		var sub types.Subscription
		if err := json.Unmarshal(subRaw, &sub); err != nil {
			return nil, err
		}
		u.SubscriptionDetails = &sub
	}
	if len(orderRaw) > 0 {
		var order types.Order
		if err := json.Unmarshal(orderRaw, &order); err != nil {
			return nil, err
		}
		u.CancelRequestOrder = &order
	}
	if len(historyRaw) > 0 {
		if err := json.Unmarshal(historyRaw, &u.AddOnsHistory); err != nil {
			return nil, err
		}
	}

	return &u, nil
}
