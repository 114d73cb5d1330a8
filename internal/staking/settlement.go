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
	"staking-ledger/internal/reward"
	"staking-ledger/internal/storage"
)

// Settlement describes a committed withdraw or refund.
type Settlement struct {
	Investigation *domain.Investigation // settled record
	Reward        *uint256.Int          // accrued reward at settlement
	Penalty       *uint256.Int          // principal withheld, refunds only
	Payout        *uint256.Int          // principal - penalty + reward, sent to the user
	Balance       *uint256.Int          // token balance after settlement
}

// Withdraw settles investigation id for its owner, paying principal plus
// accrued reward. amount must equal the principal.
func (s *Service) Withdraw(ctx context.Context, actingAs common.Address, id uint64, amount *uint256.Int) (st *Settlement, err error) {
	defer s.observe("withdraw", time.Now(), &err)

	st, err = s.settle(ctx, id, func(inv *domain.Investigation) (*uint256.Int, error) {
		if inv.User != actingAs {
			return nil, ErrNotAllowedToWithdraw
		}
		if inv.IsSettled() {
			return nil, ErrTokensWereWithdrawn
		}
		if amount == nil {
			return nil, ErrInvalidAmount
		}
		if !inv.Amount.Eq(amount) {
			return nil, ErrAmountMismatch
		}
		return new(uint256.Int), nil
	})
	if err != nil {
		return nil, fmt.Errorf("withdraw %d: %w", id, err)
	}

	s.logger.Info("investigation withdrawn",
		zap.Uint64("investigation_id", id),
		zap.String("user", st.Investigation.User.Hex()),
		zap.String("reward", st.Reward.Dec()),
		zap.String("payout", st.Payout.Dec()))
	s.emitSettlement(ctx, domain.EventWithdrawn, "withdraw", st)
	return st, nil
}

// Refund settles investigation id on behalf of anyone. The payout always
// goes to the investigation owner.
func (s *Service) Refund(ctx context.Context, actingAs common.Address, id uint64) (st *Settlement, err error) {
	defer s.observe("refund", time.Now(), &err)

	st, err = s.settle(ctx, id, func(inv *domain.Investigation) (*uint256.Int, error) {
		if inv.IsSettled() {
			return nil, ErrTokensWereWithdrawn
		}
		return s.penalty(inv.Amount), nil
	})
	if err != nil {
		return nil, fmt.Errorf("refund %d: %w", id, err)
	}

	s.logger.Info("investigation refunded",
		zap.Uint64("investigation_id", id),
		zap.String("caller", actingAs.Hex()),
		zap.String("user", st.Investigation.User.Hex()),
		zap.String("penalty", st.Penalty.Dec()),
		zap.String("reward", st.Reward.Dec()),
		zap.String("payout", st.Payout.Dec()))
	s.emitSettlement(ctx, domain.EventRefunded, "refund", st)
	return st, nil
}

// settle runs the shared settlement transition. check validates the locked
// record and returns the penalty to withhold.
func (s *Service) settle(ctx context.Context, id uint64, check func(inv *domain.Investigation) (*uint256.Int, error)) (*Settlement, error) {
	if id == 0 {
		return nil, ErrNoSuchInvestigation
	}

	now := s.now()
	var st *Settlement
	err := s.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		inv, err := tx.GetInvestigation(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNoSuchInvestigation
		}
		if err != nil {
			return err
		}

		penalty, err := check(inv)
		if err != nil {
			return err
		}

		rwd, err := s.calculator.ComputeFor(inv, now)
		if err != nil {
			return err
		}

		payout := new(uint256.Int).Sub(inv.Amount, penalty)
		if _, overflow := payout.AddOverflow(payout, rwd); overflow {
			return reward.ErrOverflow
		}

		balance, err := tx.Debit(ctx, inv.Token, payout)
		if err != nil {
			return err
		}
		if err := tx.SettleInvestigation(ctx, id, now); err != nil {
			return err
		}
		if err := s.transferrer.TransferOut(ctx, inv.Token, inv.User, payout); err != nil {
			return err
		}

		end := now
		inv.EndDate = &end
		st = &Settlement{
			Investigation: inv,
			Reward:        rwd,
			Penalty:       penalty,
			Payout:        payout,
			Balance:       balance,
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return st, nil
}

// penalty returns principal * penaltyBps / BasisPoints, truncated.
func (s *Service) penalty(principal *uint256.Int) *uint256.Int {
	if s.penaltyBps == 0 {
		return new(uint256.Int)
	}
	p, _ := new(uint256.Int).MulDivOverflow(principal, uint256.NewInt(s.penaltyBps), uint256.NewInt(reward.BasisPoints))
	return p
}

func (s *Service) emitSettlement(ctx context.Context, kind domain.EventKind, reason string, st *Settlement) {
	inv := st.Investigation
	token := inv.Token.Hex()
	observability.RecordPayout(token, reason, st.Payout, st.Reward)
	observability.UpdateTokenBalance(token, st.Balance)

	id := inv.ID
	s.record(ctx, &domain.LedgerEvent{
		Kind:            kind,
		Token:           inv.Token,
		Account:         inv.User,
		InvestigationID: &id,
		Amount:          new(uint256.Int).Sub(inv.Amount, st.Penalty),
		Reward:          st.Reward.Clone(),
		Balance:         st.Balance.Clone(),
	})
}
