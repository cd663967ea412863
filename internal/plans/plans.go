// Package plans implements premium monthly savings and spending plans.
// A plan is a per-account monthly target; it never touches balances, so
// plan mutations stay outside the ledger transaction machinery.
package plans

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finledger/internal/billing"
	"finledger/internal/core"
	"finledger/internal/ledger"
)

// Plan types.
const (
	TypeSavings  = "savings"
	TypeSpending = "spending"
)

// Plan is a monthly target for one account.
type Plan struct {
	ID        string
	OwnerID   string
	AccountID string
	Type      string
	Amount    int64 // milli-units
	Month     time.Time
}

func (p Plan) Validate() error {
	if p.OwnerID == "" {
		return fmt.Errorf("%w: owner id is required", core.ErrInvalidArgument)
	}
	if p.AccountID == "" {
		return fmt.Errorf("%w: account id is required", core.ErrInvalidArgument)
	}
	if p.Type != TypeSavings && p.Type != TypeSpending {
		return fmt.Errorf("%w: plan type must be %q or %q", core.ErrInvalidArgument, TypeSavings, TypeSpending)
	}
	if p.Amount <= 0 {
		return fmt.Errorf("%w: plan amount must be positive", core.ErrInvalidArgument)
	}
	if p.Month.IsZero() {
		return fmt.Errorf("%w: plan month is required", core.ErrInvalidArgument)
	}
	return nil
}

// View is a plan joined with its account's name for listings.
type View struct {
	Plan
	AccountName string
}

// Store persists plans. Update and Delete are owner-scoped and report
// core.ErrNotFound for foreign or absent plans.
type Store interface {
	ListPlans(ctx context.Context, ownerID string) ([]View, error)
	CreatePlan(ctx context.Context, p Plan) error
	UpdatePlan(ctx context.Context, p Plan) error
	DeletePlan(ctx context.Context, ownerID, planID string) error
}

// Entitlements answers whether an owner may use premium features.
type Entitlements interface {
	IsEntitled(ctx context.Context, ownerID string) (bool, error)
}

type Service struct {
	store        Store
	ledger       ledger.Store
	entitlements Entitlements
}

func NewService(store Store, ledgerStore ledger.Store, entitlements Entitlements) *Service {
	return &Service{store: store, ledger: ledgerStore, entitlements: entitlements}
}

func (s *Service) List(ctx context.Context, ownerID string) ([]View, error) {
	if err := s.requireEntitled(ctx, ownerID); err != nil {
		return nil, err
	}
	views, err := s.store.ListPlans(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return views, nil
}

func (s *Service) Create(ctx context.Context, ownerID string, p Plan) (Plan, error) {
	if err := s.requireEntitled(ctx, ownerID); err != nil {
		return Plan{}, err
	}
	p.ID = core.NewID()
	p.OwnerID = ownerID
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	if _, err := s.ledger.GetAccount(ctx, ownerID, p.AccountID); err != nil {
		return Plan{}, err
	}
	if err := s.store.CreatePlan(ctx, p); err != nil {
		return Plan{}, fmt.Errorf("create plan: %w", err)
	}
	slog.InfoContext(ctx, "Plan created",
		"plan_id", p.ID, "account_id", p.AccountID, "type", p.Type, "amount", p.Amount)
	return p, nil
}

func (s *Service) Update(ctx context.Context, ownerID, planID string, p Plan) (Plan, error) {
	if err := s.requireEntitled(ctx, ownerID); err != nil {
		return Plan{}, err
	}
	p.ID = planID
	p.OwnerID = ownerID
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	if _, err := s.ledger.GetAccount(ctx, ownerID, p.AccountID); err != nil {
		return Plan{}, err
	}
	if err := s.store.UpdatePlan(ctx, p); err != nil {
		return Plan{}, fmt.Errorf("update plan: %w", err)
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, planID string) error {
	if err := s.requireEntitled(ctx, ownerID); err != nil {
		return err
	}
	if err := s.store.DeletePlan(ctx, ownerID, planID); err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	return nil
}

func (s *Service) requireEntitled(ctx context.Context, ownerID string) error {
	ok, err := s.entitlements.IsEntitled(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("check entitlement: %w", err)
	}
	if !ok {
		return billing.ErrNotEntitled
	}
	return nil
}
