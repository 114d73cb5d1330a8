// Package staking implements the staking ledger: token registry, custodial
// balances, investigations and their settlement.
package staking

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"staking-ledger/internal/custody"
	"staking-ledger/internal/domain"
	"staking-ledger/internal/events"
	"staking-ledger/internal/observability"
	"staking-ledger/internal/reward"
	"staking-ledger/internal/storage"
)

// Config holds the collaborators and parameters of a Service.
type Config struct {
	// Owner is the operator allowed to add tokens and withdraw from the pool.
	Owner common.Address

	Ledger      storage.Ledger
	Transferrer custody.Transferrer

	// Calculator defaults to reward.NewDefaultCalculator.
	Calculator *reward.Calculator

	// RefundPenaltyBps is withheld from the principal on refund and stays in the pool.
	RefundPenaltyBps uint64

	// Recorder receives an event for every committed operation. Optional.
	Recorder *events.Recorder

	// Clock defaults to time.Now.
	Clock func() time.Time

	Logger *zap.Logger
}

// Service is the staking ledger. Every mutating operation runs in one
// storage unit of work together with its custody transfer.
type Service struct {
	owner       common.Address
	ledger      storage.Ledger
	transferrer custody.Transferrer
	calculator  *reward.Calculator
	penaltyBps  uint64
	recorder    *events.Recorder
	clock       func() time.Time
	logger      *zap.Logger
}

// NewService creates a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("staking: ledger is required")
	}
	if cfg.Transferrer == nil {
		return nil, fmt.Errorf("staking: transferrer is required")
	}
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("staking: owner: %w", ErrAddressIsEmpty)
	}
	if cfg.Owner == cfg.Transferrer.Custody() {
		return nil, fmt.Errorf("staking: owner: %w", ErrCustodyAccount)
	}
	if cfg.RefundPenaltyBps > reward.BasisPoints {
		return nil, fmt.Errorf("staking: refund penalty %d bps exceeds %d", cfg.RefundPenaltyBps, reward.BasisPoints)
	}

	s := &Service{
		owner:       cfg.Owner,
		ledger:      cfg.Ledger,
		transferrer: cfg.Transferrer,
		calculator:  cfg.Calculator,
		penaltyBps:  cfg.RefundPenaltyBps,
		recorder:    cfg.Recorder,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
	if s.calculator == nil {
		s.calculator = reward.NewDefaultCalculator()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// Owner returns the operator address.
func (s *Service) Owner() common.Address {
	return s.owner
}

// AddToken registers token. Only the owner may add tokens; re-adding is a no-op.
func (s *Service) AddToken(ctx context.Context, actingAs, token common.Address) (err error) {
	defer s.observe("add_token", time.Now(), &err)

	if token == (common.Address{}) {
		return ErrAddressIsEmpty
	}
	if actingAs != s.owner {
		return ErrNotOwner
	}

	added := false
	err = s.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		ok, err := tx.IsTokenAvailable(ctx, token)
		if err != nil || ok {
			return err
		}
		added = true
		return tx.AddToken(ctx, token)
	})
	if err != nil {
		return fmt.Errorf("add token: %w", translate(err))
	}

	if added {
		s.logger.Info("token added", zap.String("token", token.Hex()))
		s.record(ctx, &domain.LedgerEvent{
			Kind:    domain.EventTokenAdded,
			Token:   token,
			Account: actingAs,
			Balance: new(uint256.Int),
		})
	}
	return nil
}

// IsAvailable reports whether token was registered.
func (s *Service) IsAvailable(ctx context.Context, token common.Address) (bool, error) {
	var ok bool
	err := s.ledger.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		ok, err = tx.IsTokenAvailable(ctx, token)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("is available: %w", err)
	}
	return ok, nil
}

// ListTokens returns the registered tokens in registration order.
func (s *Service) ListTokens(ctx context.Context) ([]common.Address, error) {
	var tokens []common.Address
	err := s.ledger.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		tokens, err = tx.ListTokens(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return tokens, nil
}

// GetBalance returns the custodial balance of token, zero for unknown tokens.
func (s *Service) GetBalance(ctx context.Context, token common.Address) (*uint256.Int, error) {
	var bal *uint256.Int
	err := s.ledger.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		bal, err = tx.GetBalance(ctx, token)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return bal, nil
}

// FundRewardPool pulls amount of token from actingAs into custody and
// credits the pool.
func (s *Service) FundRewardPool(ctx context.Context, actingAs, token common.Address, amount *uint256.Int) (balance *uint256.Int, err error) {
	defer s.observe("fund_reward_pool", time.Now(), &err)

	if actingAs == (common.Address{}) {
		return nil, ErrAddressIsEmpty
	}
	if actingAs == s.transferrer.Custody() {
		return nil, ErrCustodyAccount
	}
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}

	err = s.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		if err := requireToken(ctx, tx, token); err != nil {
			return err
		}
		var err error
		if balance, err = tx.Credit(ctx, token, amount); err != nil {
			return err
		}
		return s.transferrer.TransferIn(ctx, token, actingAs, amount)
	})
	if err != nil {
		return nil, fmt.Errorf("fund reward pool: %w", translate(err))
	}

	s.logger.Info("reward pool funded",
		zap.String("token", token.Hex()),
		zap.String("from", actingAs.Hex()),
		zap.String("amount", amount.Dec()),
		zap.String("balance", balance.Dec()))
	observability.RecordDeposit(token.Hex(), "fund", amount)
	observability.UpdateTokenBalance(token.Hex(), balance)
	s.record(ctx, &domain.LedgerEvent{
		Kind:    domain.EventPoolFunded,
		Token:   token,
		Account: actingAs,
		Amount:  amount.Clone(),
		Balance: balance.Clone(),
	})
	return balance, nil
}

// OwnerWithdraw debits amount from the pool of token and sends it to the owner.
func (s *Service) OwnerWithdraw(ctx context.Context, actingAs, token common.Address, amount *uint256.Int) (balance *uint256.Int, err error) {
	defer s.observe("owner_withdraw", time.Now(), &err)

	if actingAs != s.owner {
		return nil, ErrNotOwner
	}
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}

	err = s.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		if err := requireToken(ctx, tx, token); err != nil {
			return err
		}
		var err error
		if balance, err = tx.Debit(ctx, token, amount); err != nil {
			return err
		}
		return s.transferrer.TransferOut(ctx, token, s.owner, amount)
	})
	if err != nil {
		return nil, fmt.Errorf("owner withdraw: %w", translate(err))
	}

	s.logger.Info("owner withdrew from pool",
		zap.String("token", token.Hex()),
		zap.String("amount", amount.Dec()),
		zap.String("balance", balance.Dec()))
	observability.RecordPayout(token.Hex(), "owner_withdraw", amount, nil)
	observability.UpdateTokenBalance(token.Hex(), balance)
	s.record(ctx, &domain.LedgerEvent{
		Kind:    domain.EventOwnerWithdrawn,
		Token:   token,
		Account: s.owner,
		Amount:  amount.Clone(),
		Balance: balance.Clone(),
	})
	return balance, nil
}

// requireToken fails with ErrTokenNotAvailable unless token is registered.
func requireToken(ctx context.Context, tx storage.LedgerTx, token common.Address) error {
	ok, err := tx.IsTokenAvailable(ctx, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenNotAvailable
	}
	return nil
}

func validAmount(amount *uint256.Int) bool {
	return amount != nil && !amount.IsZero()
}

func (s *Service) now() int64 {
	return s.clock().Unix()
}

// observe records the outcome of an operation. err is read after the
// operation returns.
func (s *Service) observe(op string, start time.Time, err *error) {
	kind := ErrorKind(*err)
	observability.RecordOperation(op, kind, time.Since(start))
	if kind == KindInternal {
		s.logger.Error("ledger operation failed", zap.String("operation", op), zap.Error(*err))
	}
}

// record stamps and emits a committed event.
func (s *Service) record(ctx context.Context, e *domain.LedgerEvent) {
	if s.recorder == nil {
		return
	}
	e.OccurredAt = s.clock().UnixMilli()
	if e.Amount == nil {
		e.Amount = new(uint256.Int)
	}
	if e.Reward == nil {
		e.Reward = new(uint256.Int)
	}
	s.recorder.Record(ctx, e)
}
