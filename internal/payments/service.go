package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/zeuslykraios/alauda-api/internal/payments/providers"
	"github.com/zeuslykraios/alauda-api/pkg/db/models"
	"github.com/zeuslykraios/alauda-api/pkg/enums"
	pkgerrors "github.com/zeuslykraios/alauda-api/pkg/errors"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

// CreditGranter is the slice of the key service the reconciler needs.
type CreditGranter interface {
	GrantCredits(ctx context.Context, id uuid.UUID, amount int64) error
}

// StatusPoller resolves the provider-side status of an in-flight payment.
type StatusPoller interface {
	Check(ctx context.Context, providerRef string) (enums.PaymentStatus, bool, error)
}

// allowedTransitions is the payment state machine. Status only moves
// forward; terminal states have no outgoing edges.
var allowedTransitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentPending: {
		enums.PaymentApproved,
		enums.PaymentRejected,
		enums.PaymentCancelled,
		enums.PaymentInProcess,
	},
	enums.PaymentInProcess: {
		enums.PaymentApproved,
		enums.PaymentRejected,
		enums.PaymentCancelled,
	},
	enums.PaymentApproved: {
		enums.PaymentRefunded,
	},
}

func transitionAllowed(from, to enums.PaymentStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AckResult tells a webhook caller what happened without leaking internals.
type AckResult string

const (
	// AckProcessed means the notification approved the payment and credits
	// were granted.
	AckProcessed AckResult = "processed"
	// AckRecorded means the status moved but no crediting applied.
	AckRecorded AckResult = "recorded"
	// AckAlreadyProcessed means the payment was credited earlier.
	AckAlreadyProcessed AckResult = "already_processed"
	// AckIgnored means the notification does not apply to the record's
	// current state.
	AckIgnored AckResult = "ignored"
	// AckUnknown means no record matched the notification.
	AckUnknown AckResult = "unknown"
	// AckUnrecognized means an authentic payload could not be interpreted.
	AckUnrecognized AckResult = "unrecognized"
)

// Ack is the webhook ingestion outcome.
type Ack struct {
	Result  AckResult
	Payment *models.Payment
}

// SweepTally reports a reconcile batch outcome.
type SweepTally struct {
	Attempted        int
	Succeeded        int
	AlreadyProcessed int
	Failed           int
}

// ServiceParams groups reconciler dependencies. Poller is optional; without
// it in_process records wait for a webhook.
type ServiceParams struct {
	Repo        Repository
	Granter     CreditGranter
	Logger      *logger.Logger
	Poller      StatusPoller
	PendingTTL  time.Duration
	PollTimeout time.Duration
	Now         func() time.Time
}

// Service owns the payment lifecycle: creation, webhook reconciliation, and
// the scheduled sweeps. Crediting is at most once per payment, enforced by
// the conditional processed-flag claim.
type Service struct {
	repo        Repository
	granter     CreditGranter
	logg        *logger.Logger
	poller      StatusPoller
	pendingTTL  time.Duration
	pollTimeout time.Duration
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Granter == nil {
		return nil, errors.New("credit granter is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	pendingTTL := params.PendingTTL
	if pendingTTL <= 0 {
		pendingTTL = 24 * time.Hour
	}
	pollTimeout := params.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	return &Service{
		repo:        params.Repo,
		granter:     params.Granter,
		logg:        params.Logger,
		poller:      params.Poller,
		pendingTTL:  pendingTTL,
		pollTimeout: pollTimeout,
		now:         now,
	}, nil
}

// InitiateParams describes a new top-up attempt.
type InitiateParams struct {
	Provider    enums.PaymentProvider
	OwnerID     uuid.UUID
	APIKeyID    uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	ProviderRef string
}

// Initiate creates a pending payment. The credit amount is fixed here from
// the amount and currency; later rate changes never affect this record.
func (s *Service) Initiate(ctx context.Context, params InitiateParams) (*models.Payment, error) {
	if !params.Provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown provider %q", params.Provider))
	}
	if params.OwnerID == uuid.Nil || params.APIKeyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id and api key id are required")
	}
	credits, err := CreditsFor(params.Amount, params.Currency)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	payment := &models.Payment{
		ID:           uuid.New(),
		Provider:     params.Provider,
		OwnerID:      params.OwnerID,
		APIKeyID:     params.APIKeyID,
		Amount:       params.Amount,
		Currency:     strings.ToUpper(strings.TrimSpace(params.Currency)),
		CreditsToAdd: credits,
		Status:       enums.PaymentPending,
		ExpiresAt:    now.Add(s.pendingTTL),
	}
	if ref := strings.TrimSpace(params.ProviderRef); ref != "" {
		payment.ProviderRef = &ref
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment")
	}

	logCtx := s.logg.WithPaymentID(ctx, payment.ID.String())
	logCtx = s.logg.WithProvider(logCtx, string(payment.Provider))
	s.logg.Info(logCtx, "payment initiated")
	return payment, nil
}

// Get returns the payment by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

// ListByOwner returns the most recent payments for a subject.
func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Payment, error) {
	list, err := s.repo.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	return list, nil
}

// Cancel explicitly cancels a pending payment.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Payment, error) {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled by caller"
	}
	moved, err := s.repo.TransitionStatus(ctx, payment.ID, enums.PaymentPending, enums.PaymentCancelled, map[string]any{
		"cancel_reason": reason,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel payment")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment is %s, not pending", payment.Status))
	}
	return s.Get(ctx, id)
}

// ApplyNotification is the webhook entry point. It resolves the record,
// applies the status transition, and on approval grants credits once.
// Unmatched or non-applicable notifications are acknowledged, not erred.
func (s *Service) ApplyNotification(ctx context.Context, n *providers.Notification) (Ack, error) {
	if n == nil || !n.Identified() {
		s.logg.Warn(ctx, "payment notification carries no identifier")
		return Ack{Result: AckUnknown}, nil
	}

	payment, err := s.resolve(ctx, n)
	if err != nil {
		return Ack{}, err
	}
	if payment == nil {
		logCtx := s.logg.WithProvider(ctx, string(n.Provider))
		s.logg.Warn(logCtx, "payment notification matched no record")
		return Ack{Result: AckUnknown}, nil
	}

	logCtx := s.logg.WithPaymentID(ctx, payment.ID.String())
	logCtx = s.logg.WithProvider(logCtx, string(payment.Provider))

	if payment.Processed {
		return Ack{Result: AckAlreadyProcessed, Payment: payment}, nil
	}

	moved, err := s.transition(logCtx, payment, n)
	if err != nil {
		return Ack{}, err
	}
	if !moved {
		// The stored status changed under us or the edge is not in the
		// state machine. Reload once; a concurrent approver may have won.
		current, err := s.Get(logCtx, payment.ID)
		if err != nil {
			return Ack{}, err
		}
		if current.Processed {
			return Ack{Result: AckAlreadyProcessed, Payment: current}, nil
		}
		if n.Status == enums.PaymentApproved && current.CanProcess() {
			// A prior delivery moved the record to approved but the grant
			// never landed. Resume from the claim instead of waiting for
			// the sweep.
			payment = current
		} else {
			s.logg.Warn(logCtx, fmt.Sprintf("notification %s not applicable to status %s", n.Status, current.Status))
			return Ack{Result: AckIgnored, Payment: current}, nil
		}
	}

	if n.Status != enums.PaymentApproved {
		s.logg.Info(logCtx, fmt.Sprintf("payment moved to %s", n.Status))
		updated, err := s.Get(logCtx, payment.ID)
		if err != nil {
			return Ack{}, err
		}
		return Ack{Result: AckRecorded, Payment: updated}, nil
	}

	if err := s.process(logCtx, payment); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed) {
			updated, getErr := s.Get(logCtx, payment.ID)
			if getErr != nil {
				return Ack{}, getErr
			}
			return Ack{Result: AckAlreadyProcessed, Payment: updated}, nil
		}
		return Ack{}, err
	}
	updated, err := s.Get(logCtx, payment.ID)
	if err != nil {
		return Ack{}, err
	}
	return Ack{Result: AckProcessed, Payment: updated}, nil
}

// SweepApproved processes approved records the webhooks missed. Per-record
// failures are tallied, never fatal to the batch.
func (s *Service) SweepApproved(ctx context.Context, limit int) (SweepTally, error) {
	batch, err := s.repo.ListUnprocessedApproved(ctx, limit)
	if err != nil {
		return SweepTally{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list unprocessed payments")
	}

	tally := SweepTally{Attempted: len(batch)}
	var errs error
	for i := range batch {
		payment := &batch[i]
		logCtx := s.logg.WithPaymentID(ctx, payment.ID.String())
		err := s.process(logCtx, payment)
		switch {
		case err == nil:
			tally.Succeeded++
		case pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed):
			tally.AlreadyProcessed++
		default:
			tally.Failed++
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", payment.ID, err))
		}
	}
	return tally, errs
}

// SweepExpired cancels pending records past their expiry with a fixed
// "expired" reason.
func (s *Service) SweepExpired(ctx context.Context, limit int) (int64, error) {
	cancelled, err := s.repo.CancelExpiredPending(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel expired payments")
	}
	return cancelled, nil
}

// PollInProcess asks the provider for the current status of in-flight
// records and reconciles accordingly. Poll timeouts are retryable; the
// record stays in_process for the next tick.
func (s *Service) PollInProcess(ctx context.Context, limit int) (SweepTally, error) {
	if s.poller == nil {
		return SweepTally{}, nil
	}
	batch, err := s.repo.ListInProcess(ctx, limit)
	if err != nil {
		return SweepTally{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list in-process payments")
	}

	tally := SweepTally{Attempted: len(batch)}
	var errs error
	for i := range batch {
		payment := &batch[i]
		logCtx := s.logg.WithPaymentID(ctx, payment.ID.String())
		if payment.ProviderRef == nil || *payment.ProviderRef == "" {
			tally.Failed++
			errs = multierr.Append(errs, fmt.Errorf("payment %s: no provider reference to poll", payment.ID))
			continue
		}

		pollCtx, cancel := context.WithTimeout(logCtx, s.pollTimeout)
		status, settled, err := s.poller.Check(pollCtx, *payment.ProviderRef)
		cancel()
		if err != nil {
			tally.Failed++
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", payment.ID, err))
			continue
		}
		if !settled {
			continue
		}

		n := &providers.Notification{
			Provider:  payment.Provider,
			PaymentID: payment.ID,
			Status:    status,
			Reason:    "provider status poll",
		}
		moved, err := s.transition(logCtx, payment, n)
		if err != nil {
			tally.Failed++
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", payment.ID, err))
			continue
		}
		if !moved {
			tally.AlreadyProcessed++
			continue
		}
		if status != enums.PaymentApproved {
			tally.Succeeded++
			continue
		}
		switch err := s.process(logCtx, payment); {
		case err == nil:
			tally.Succeeded++
		case pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed):
			tally.AlreadyProcessed++
		default:
			tally.Failed++
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", payment.ID, err))
		}
	}
	return tally, errs
}

func (s *Service) resolve(ctx context.Context, n *providers.Notification) (*models.Payment, error) {
	if n.PaymentID != uuid.Nil {
		payment, err := s.repo.FindByID(ctx, n.PaymentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
		}
		if payment != nil {
			return payment, nil
		}
	}
	if n.ProviderRef == "" {
		return nil, nil
	}
	payment, err := s.repo.FindByProviderRef(ctx, n.Provider, n.ProviderRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment by reference")
	}
	return payment, nil
}

func (s *Service) transition(ctx context.Context, payment *models.Payment, n *providers.Notification) (bool, error) {
	if !transitionAllowed(payment.Status, n.Status) {
		return false, nil
	}

	fields := map[string]any{}
	if len(n.Raw) > 0 {
		fields["provider_payload"] = []byte(n.Raw)
	}
	if payment.ProviderRef == nil && n.ProviderRef != "" {
		fields["provider_ref"] = n.ProviderRef
	}
	switch n.Status {
	case enums.PaymentApproved:
		fields["approved_at"] = s.now().UTC()
	case enums.PaymentRejected, enums.PaymentCancelled:
		reason := n.Reason
		if reason == "" {
			reason = "declined by provider"
		}
		fields["cancel_reason"] = reason
	}

	moved, err := s.repo.TransitionStatus(ctx, payment.ID, payment.Status, n.Status, fields)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transition payment status")
	}
	if moved {
		payment.Status = n.Status
	}
	return moved, nil
}

// process grants the payment's credits exactly once. The conditional claim
// on the processed flag is what makes concurrent double-processing
// impossible; retries after a won claim surface AlreadyProcessed.
func (s *Service) process(ctx context.Context, payment *models.Payment) error {
	claimed, err := s.repo.ClaimProcessing(ctx, payment.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim payment processing")
	}
	if !claimed {
		return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "payment already processed")
	}

	if err := s.granter.GrantCredits(ctx, payment.APIKeyID, payment.CreditsToAdd); err != nil {
		// The claim stands: this payment will not be re-granted. It
		// stays visible as processed without credits_added for
		// operator follow-up.
		s.logg.Error(ctx, "credit grant failed after claim", err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "grant credits")
	}

	if err := s.repo.MarkCreditsAdded(ctx, payment.ID, s.now().UTC()); err != nil {
		s.logg.Error(ctx, "credits granted but flag write failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark credits added")
	}

	logCtx := s.logg.WithField(ctx, "credits", payment.CreditsToAdd)
	s.logg.Info(logCtx, "payment processed")
	return nil
}
