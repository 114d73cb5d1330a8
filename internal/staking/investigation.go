package staking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"staking-ledger/internal/domain"
	"staking-ledger/internal/observability"
	"staking-ledger/internal/storage"
)

// Deposit pulls amount of token from actingAs into custody and opens a new
// investigation. Returns the investigation ID.
func (s *Service) Deposit(ctx context.Context, actingAs, token common.Address, amount *uint256.Int) (id uint64, err error) {
	defer s.observe("deposit", time.Now(), &err)

	if actingAs == (common.Address{}) {
		return 0, ErrAddressIsEmpty
	}
	if actingAs == s.transferrer.Custody() {
		return 0, ErrCustodyAccount
	}
	if !validAmount(amount) {
		return 0, ErrInvalidAmount
	}

	now := s.now()
	var balance *uint256.Int
	err = s.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		if err := requireToken(ctx, tx, token); err != nil {
			return err
		}
		var err error
		if balance, err = tx.Credit(ctx, token, amount); err != nil {
			return err
		}
		id, err = tx.InsertInvestigation(ctx, &domain.Investigation{
			User:      actingAs,
			Token:     token,
			Amount:    amount.Clone(),
			StartDate: now,
		})
		if err != nil {
			return err
		}
		return s.transferrer.TransferIn(ctx, token, actingAs, amount)
	})
	if err != nil {
		return 0, fmt.Errorf("deposit: %w", translate(err))
	}

	s.logger.Info("investigation opened",
		zap.Uint64("investigation_id", id),
		zap.String("user", actingAs.Hex()),
		zap.String("token", token.Hex()),
		zap.String("amount", amount.Dec()),
		zap.Int64("start_date", now))
	observability.RecordDeposit(token.Hex(), "deposit", amount)
	observability.UpdateTokenBalance(token.Hex(), balance)
	s.record(ctx, &domain.LedgerEvent{
		Kind:            domain.EventDeposited,
		Token:           token,
		Account:         actingAs,
		InvestigationID: &id,
		Amount:          amount.Clone(),
		Balance:         balance.Clone(),
	})
	return id, nil
}

// GetByID returns a copy of the investigation. ID 0 and unallocated IDs fail
// with ErrNoSuchInvestigation.
func (s *Service) GetByID(ctx context.Context, id uint64) (*domain.Investigation, error) {
	if id == 0 {
		return nil, ErrNoSuchInvestigation
	}

	var inv *domain.Investigation
	err := s.ledger.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		inv, err = tx.GetInvestigation(ctx, id)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoSuchInvestigation
	}
	if err != nil {
		return nil, fmt.Errorf("get investigation %d: %w", id, err)
	}
	return inv, nil
}

// GetLastID returns the highest allocated investigation ID. ok is false
// before the first deposit.
func (s *Service) GetLastID(ctx context.Context) (id uint64, ok bool, err error) {
	err = s.ledger.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		id, err = tx.LastInvestigationID(ctx)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get last id: %w", err)
	}
	return id, true, nil
}

// ListByUser returns the investigations of user ordered by ID.
func (s *Service) ListByUser(ctx context.Context, user common.Address) ([]*domain.Investigation, error) {
	var invs []*domain.Investigation
	err := s.ledger.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		invs, err = tx.GetInvestigationsByUser(ctx, user)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list investigations of %s: %w", user.Hex(), err)
	}
	return invs, nil
}

// EstimateReward returns the reward investigation id would receive if
// settled at asOf (Unix seconds). Settled investigations stop accruing at
// their end date.
func (s *Service) EstimateReward(ctx context.Context, id uint64, asOf int64) (*uint256.Int, error) {
	inv, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.EndDate != nil && *inv.EndDate < asOf {
		asOf = *inv.EndDate
	}
	r, err := s.calculator.ComputeFor(inv, asOf)
	if err != nil {
		return nil, fmt.Errorf("estimate reward: %w", translate(err))
	}
	return r, nil
}

// ComputeReward evaluates the reward formula for a record-shaped input
// without touching the ledger.
func (s *Service) ComputeReward(amount *uint256.Int, startDate, asOf int64) (*uint256.Int, error) {
	r, err := s.calculator.Compute(amount, startDate, asOf)
	if err != nil {
		return nil, translate(err)
	}
	return r, nil
}

// Now returns the service clock in Unix seconds.
func (s *Service) Now() int64 {
	return s.now()
}
