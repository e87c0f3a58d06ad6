package service

import (
	"context"

	"market-escrow-api/internal/model"
	"market-escrow-api/internal/repository"
)

// LedgerService exposes balance reads and payout requests. Balances are
// credited only by escrow release; a payout request is advisory and
// deducts nothing.
type LedgerService struct {
	repo repository.MarketRepository
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(repo repository.MarketRepository) *LedgerService {
	if repo == nil {
		return nil
	}
	return &LedgerService{repo: repo}
}

// Balance returns the user's credit in cents, zero for unknown users.
func (s *LedgerService) Balance(ctx context.Context, userID int64) (int64, error) {
	return s.repo.GetBalance(ctx, userID)
}

// RequestWithdrawal records a payout request after checking the amount
// against the current balance. The check uses a possibly-stale read; the
// request never reserves funds.
func (s *LedgerService) RequestWithdrawal(ctx context.Context, userID, amountCents int64) (int64, error) {
	role, err := s.repo.GetRole(ctx, userID)
	if err != nil {
		return 0, err
	}
	if role != model.RoleSeller {
		return 0, ErrNotSeller
	}

	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	if amountCents > balance {
		return 0, ErrInsufficientBalance
	}

	return s.repo.CreatePayoutRequest(ctx, userID, amountCents)
}
