package keys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zeuslykraios/alauda-api/pkg/db"
	"github.com/zeuslykraios/alauda-api/pkg/db/models"
	"github.com/zeuslykraios/alauda-api/pkg/enums"
	pkgerrors "github.com/zeuslykraios/alauda-api/pkg/errors"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
	"github.com/zeuslykraios/alauda-api/pkg/plans"
)

const issueAttempts = 5

// ServiceParams groups dependencies for the key service.
type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
}

// Service orchestrates credential lifecycle operations.
type Service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds a key service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Service{repo: params.Repo, logg: params.Logger}, nil
}

// IssueParams configures a new credential.
type IssueParams struct {
	OwnerID   uuid.UUID
	Plan      enums.PlanTier
	ExpiresAt *time.Time
}

// IssuedKey pairs the stored record with the raw token, which is shown once.
type IssuedKey struct {
	Key   *models.APIKey
	Token string
}

// Issue creates a credential with the plan's starting balance. Token
// generation retries on digest collision a bounded number of times.
func (s *Service) Issue(ctx context.Context, params IssueParams) (*IssuedKey, error) {
	if params.OwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	if !params.Plan.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown plan %q", params.Plan))
	}
	plan := plans.For(params.Plan)

	for attempt := 0; attempt < issueAttempts; attempt++ {
		token, err := GenerateToken()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate token")
		}
		key := &models.APIKey{
			ID:          uuid.New(),
			TokenDigest: Digest(token),
			TokenHint:   Hint(token),
			OwnerID:     params.OwnerID,
			Plan:        params.Plan,
			Credits:     plan.StartingCredits,
			Active:      true,
			ExpiresAt:   params.ExpiresAt,
		}
		if err := s.repo.Create(ctx, key); err != nil {
			if db.IsUniqueViolation(err, "idx_api_keys_token_digest") {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist api key")
		}
		return &IssuedKey{Key: key, Token: token}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeExhausted, "token generation kept colliding")
}

// Get returns the credential by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load api key")
	}
	if key == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "api key not found")
	}
	return key, nil
}

// ListByOwner returns all credentials issued to a subject.
func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.APIKey, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	list, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list api keys")
	}
	return list, nil
}

// Authenticate resolves a raw token to its credential, or nil when unknown.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	key, err := s.repo.FindByDigest(ctx, Digest(token))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup api key")
	}
	return key, nil
}

// Revoke deactivates and suspends a credential. Keys are never hard-deleted.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID, reason string) (*models.APIKey, error) {
	key, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "revoked by administrator"
	}
	key.Active = false
	key.Suspended = true
	key.SuspendReason = &reason
	if err := s.repo.Update(ctx, key); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "revoke api key")
	}
	return key, nil
}

// Reactivate clears a suspension.
func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	key, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	key.Active = true
	key.Suspended = false
	key.SuspendReason = nil
	if err := s.repo.Update(ctx, key); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reactivate api key")
	}
	return key, nil
}

// GrantCredits adds credits to the balance. The operation is additive and
// safe to call repeatedly; callers own not granting twice for one payment.
func (s *Service) GrantCredits(ctx context.Context, id uuid.UUID, amount int64) error {
	if amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}
	key, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.AddCredits(ctx, key.ID, amount); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "grant credits")
	}
	if s.logg != nil {
		grantCtx := s.logg.WithFields(ctx, map[string]any{
			"api_key_id": key.ID.String(),
			"credits":    amount,
		})
		s.logg.Info(grantCtx, "credits granted")
	}
	return nil
}

// UpgradePlan moves a credential onto another tier and applies the tier's
// upgrade bonus when moving up the order.
func (s *Service) UpgradePlan(ctx context.Context, id uuid.UUID, tier enums.PlanTier) (*models.APIKey, error) {
	if !tier.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown plan %q", tier))
	}
	key, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	upgrading := tier.Rank() > key.Plan.Rank()
	key.Plan = tier
	if err := s.repo.Update(ctx, key); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update plan")
	}
	if bonus := plans.For(tier).UpgradeBonus; upgrading && bonus > 0 {
		if err := s.repo.AddCredits(ctx, key.ID, bonus); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply upgrade bonus")
		}
		key.Credits += bonus
	}
	return key, nil
}
