package billing

import (
	"context"
	"errors"
	"log/slog"

	"subhub/internal/types"
)

// minorUnitFactor converts a major-unit amount (rupees) to the gateway's
// minor unit (paise).
const minorUnitFactor = 100

// defaultAddOnNote is used when an add-on purchase arrives without notes.
const defaultAddOnNote = "Monthly Additional Views Add On"

// cancelledMessage is returned to the caller after an immediate cancellation.
const cancelledMessage = "subscription cancelled successfully, no pending dues for the user"

// Gateway is the typed contract with the payment gateway. Calls are
// synchronous request/response; a failed call surfaces immediately as an
// error and is never retried at this layer.
type Gateway interface {
	CreateSubscription(ctx context.Context, planID, phone, email string) (*types.Subscription, error)
	UpdateSubscription(ctx context.Context, subscriptionID, newPlanID string) (*types.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*types.Subscription, error)
	CreateAddOn(ctx context.Context, subscriptionID string, item types.AddOnItem) (*types.AddOn, error)
	CreateOrder(ctx context.Context, amount int64, note string) (*types.Order, error)
}

// UserStore is the document-store contract for user records. The ledger is
// the sole writer of subscription fields.
type UserStore interface {
	GetByUserID(ctx context.Context, userID string) (*types.UserRecord, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*types.UserRecord, error)
	SaveSubscription(ctx context.Context, userID string, sub *types.Subscription) error
	SaveCancelOrder(ctx context.Context, userID string, order *types.Order) error
	AppendAddOn(ctx context.Context, userID string, addOn types.AddOn) error
	SaveStatusUpdate(ctx context.Context, userID string, enabled *bool, sub *types.Subscription) error
}

// SignatureVerifier validates a signed payment confirmation.
type SignatureVerifier interface {
	Verify(orderID, paymentID, signature string) bool
}

// PlanSet holds the two configured gateway plan ids.
type PlanSet struct {
	Service1 string
	Service2 string
}

// For resolves a validated PlanType to its gateway plan id.
func (p PlanSet) For(plan types.PlanType) string {
	if plan == types.PlanTypeService2 {
		return p.Service2
	}
	return p.Service1
}

// Ledger is the subscription state-transition core. Given stored state and
// an incoming intent or event, it decides which gateway call to issue and
// which store fields to update. All dependencies are injected; the ledger
// holds no hidden globals.
type Ledger struct {
	gateway  Gateway
	store    UserStore
	dues     DuesCalculator
	verifier SignatureVerifier
	plans    PlanSet
	logger   *slog.Logger
}

// NewLedger constructs a Ledger with its collaborators.
func NewLedger(
	gateway Gateway,
	store UserStore,
	dues DuesCalculator,
	verifier SignatureVerifier,
	plans PlanSet,
	logger *slog.Logger,
) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		gateway:  gateway,
		store:    store,
		dues:     dues,
		verifier: verifier,
		plans:    plans,
		logger:   logger,
	}
}

// ---------------------------------------------------------------------------
// Create / Upgrade
// ---------------------------------------------------------------------------

// CreateOrUpdate creates a subscription on the requested plan, or switches
// an existing subscription to it, and returns the gateway's short payment
// url for the front-end redirect.
//
// Three paths:
//   - No stored subscription: create on the gateway, persist the response.
//   - Stored plan equals the requested plan: return the stored short url
//     unchanged. Urls do not expire, so no gateway call and no store write
//     happen on this path.
//   - Different plan: update on the gateway with immediate effect, persist.
func (l *Ledger) CreateOrUpdate(ctx context.Context, userID string, plan types.PlanType) (string, error) {
	user, err := l.store.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}

	planID := l.plans.For(plan)

	if user.SubscriptionDetails == nil {
		sub, err := l.gateway.CreateSubscription(ctx, planID, user.Phone, user.Email)
		if err != nil {
			return "", err
		}
		if err := l.store.SaveSubscription(ctx, userID, sub); err != nil {
			return "", err
		}
		l.logger.InfoContext(ctx, "subscription created",
			"user_id", userID,
			"subscription_id", sub.ID,
			"plan_id", planID,
		)
		return sub.ShortURL, nil
	}

	if user.SubscriptionDetails.PlanID == planID {
		return user.SubscriptionDetails.ShortURL, nil
	}

	sub, err := l.gateway.UpdateSubscription(ctx, user.SubscriptionDetails.ID, planID)
	if err != nil {
		return "", err
	}
	if err := l.store.SaveSubscription(ctx, userID, sub); err != nil {
		return "", err
	}
	l.logger.InfoContext(ctx, "subscription plan switched",
		"user_id", userID,
		"subscription_id", sub.ID,
		"plan_id", planID,
	)
	return sub.ShortURL, nil
}

// ---------------------------------------------------------------------------
// Cancellation
// ---------------------------------------------------------------------------

// CancelOutcome reports which terminal state a CheckAndCancel request reached.
type CancelOutcome struct {
	// Cancelled is true when the subscription was cancelled immediately.
	Cancelled bool
	// Message is the success message for the immediate-cancellation path.
	Message string
	// OrderID is set when pending dues were found: an order was created for
	// front-end payment collection and the subscription was left untouched.
	OrderID string
}

// CheckAndCancel reconciles pending dues and then either cancels the
// subscription immediately (dues == 0) or creates a dues order and defers
// cancellation until the payment is verified (dues > 0).
func (l *Ledger) CheckAndCancel(ctx context.Context, userID string) (CancelOutcome, error) {
	user, err := l.store.GetByUserID(ctx, userID)
	if err != nil {
		return CancelOutcome{}, err
	}
	if !user.HasSubscription() {
		return CancelOutcome{}, types.NewAppError(
			types.ErrCodeValidationNoSubscription,
			"no subscription details available for the user",
			nil,
		)
	}

	amount, description, err := l.dues.ComputeDues(ctx, user)
	if err != nil {
		return CancelOutcome{}, err
	}

	subscriptionID := user.SubscriptionDetails.ID

	if amount == 0 {
		sub, err := l.gateway.CancelSubscription(ctx, subscriptionID)
		if err != nil {
			return CancelOutcome{}, err
		}
		if err := l.store.SaveSubscription(ctx, userID, sub); err != nil {
			return CancelOutcome{}, err
		}
		l.logger.InfoContext(ctx, "subscription cancelled",
			"user_id", userID,
			"subscription_id", subscriptionID,
		)
		return CancelOutcome{Cancelled: true, Message: cancelledMessage}, nil
	}

	order, err := l.gateway.CreateOrder(ctx, amount*minorUnitFactor, description)
	if err != nil {
		return CancelOutcome{}, err
	}
	if err := l.store.SaveCancelOrder(ctx, userID, order); err != nil {
		return CancelOutcome{}, err
	}
	l.logger.InfoContext(ctx, "dues order created ahead of cancellation",
		"user_id", userID,
		"subscription_id", subscriptionID,
		"order_id", order.ID,
		"amount_minor", amount*minorUnitFactor,
	)
	return CancelOutcome{OrderID: order.ID}, nil
}

// VerifyOutcome reports the result of a verify-then-cancel request.
type VerifyOutcome struct {
	// Verified is the payment-verification result. When false, no state
	// was changed.
	Verified bool
	// Cancelled is true when the follow-up cancellation fully succeeded
	// (gateway call and store write).
	Cancelled bool
	// CancelErr holds the failure of the post-verification cancellation.
	// Verification success is reported to the caller even when this is
	// set; that step already completed and the payment was collected.
	CancelErr error
}

// VerifyAndCancel validates the signed payment confirmation for the dues
// order and, on success, cancels the user's subscription and persists the
// gateway's cancellation response.
//
// The asymmetry on the partial-failure path is deliberate and mirrors the
// payment flow's contract: once the signature checks out the payment has
// been collected, so a failed cancellation must not be reported as a failed
// verification.
func (l *Ledger) VerifyAndCancel(ctx context.Context, userID, orderID, paymentID, signature string) (VerifyOutcome, error) {
	user, err := l.store.GetByUserID(ctx, userID)
	if err != nil {
		return VerifyOutcome{}, err
	}

	if !l.verifier.Verify(orderID, paymentID, signature) {
		l.logger.WarnContext(ctx, "payment verification failed",
			"user_id", userID,
			"order_id", orderID,
		)
		return VerifyOutcome{Verified: false}, nil
	}

	if !user.HasSubscription() {
		return VerifyOutcome{}, types.NewAppError(
			types.ErrCodeValidationNoSubscription,
			"no subscription details available for the user",
			nil,
		)
	}

	sub, err := l.gateway.CancelSubscription(ctx, user.SubscriptionDetails.ID)
	if err != nil {
		return VerifyOutcome{Verified: true, CancelErr: err}, nil
	}
	if err := l.store.SaveSubscription(ctx, userID, sub); err != nil {
		// Gateway cancelled but the store write failed: the two systems are
		// now inconsistent. There is no rollback; the outcome carries the
		// error so the caller can report the partial success.
		return VerifyOutcome{Verified: true, CancelErr: err}, nil
	}

	l.logger.InfoContext(ctx, "payment verified and subscription cancelled",
		"user_id", userID,
		"subscription_id", sub.ID,
		"order_id", orderID,
	)
	return VerifyOutcome{Verified: true, Cancelled: true}, nil
}

// ---------------------------------------------------------------------------
// Webhook Reconciliation
// ---------------------------------------------------------------------------

// ApplyStatusEvent reconciles a gateway status event into the stored record.
// The lookup is keyed by subscription id; an unknown id is a silent no-op so
// the webhook endpoint can acknowledge unconditionally.
//
// The enabled flag changes only when the status classifies into the
// activate or deactivate bucket; the stored subscription details are
// overwritten with the event payload either way, because the event is more
// current than any cached copy.
func (l *Ledger) ApplyStatusEvent(ctx context.Context, event *types.GatewayEvent) error {
	sub := event.Payload.Subscription

	user, err := l.store.GetBySubscriptionID(ctx, sub.ID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundSubscription {
			l.logger.InfoContext(ctx, "status event for unknown subscription dropped",
				"subscription_id", sub.ID,
				"status", string(sub.Status),
			)
			return nil
		}
		return err
	}

	var enabled *bool
	switch sub.Status.Effect() {
	case types.EffectActivate:
		v := true
		enabled = &v
	case types.EffectDeactivate:
		v := false
		enabled = &v
	case types.EffectUnknown:
		l.logger.WarnContext(ctx, "unrecognized subscription status; enabled flag unchanged",
			"subscription_id", sub.ID,
			"status", string(sub.Status),
		)
	}

	if err := l.store.SaveStatusUpdate(ctx, user.UID, enabled, &sub); err != nil {
		return err
	}

	l.logger.InfoContext(ctx, "subscription status reconciled",
		"user_id", user.UID,
		"subscription_id", sub.ID,
		"status", string(sub.Status),
	)
	return nil
}

// ---------------------------------------------------------------------------
// Add-Ons
// ---------------------------------------------------------------------------

// AddOn attaches a one-time add-on charge to the user's subscription and
// appends the gateway response to the add-on history. The amount arrives in
// the currency's major unit and is converted before the gateway call. Empty
// notes fall back to a fixed description.
func (l *Ledger) AddOn(ctx context.Context, userID string, amount int64, notes string) (*types.AddOn, error) {
	user, err := l.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.SubscriptionID == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationNoSubscription,
			"no subscription details available for the user",
			nil,
		)
	}

	if notes == "" {
		notes = defaultAddOnNote
	}

	addOn, err := l.gateway.CreateAddOn(ctx, user.SubscriptionID, types.AddOnItem{
		Name:        notes,
		Amount:      amount * minorUnitFactor,
		Description: "monthly subscription add ons",
	})
	if err != nil {
		return nil, err
	}

	if err := l.store.AppendAddOn(ctx, userID, *addOn); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "add-on purchased",
		"user_id", userID,
		"subscription_id", user.SubscriptionID,
		"add_on_id", addOn.ID,
		"amount_minor", amount*minorUnitFactor,
	)
	return addOn, nil
}
