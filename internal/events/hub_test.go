package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staking-ledger/internal/domain"
)

var (
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	usdt = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
)

func event(kind domain.EventKind, token common.Address) *domain.LedgerEvent {
	return &domain.LedgerEvent{
		Kind:       kind,
		Token:      token,
		Amount:     uint256.NewInt(1),
		OccurredAt: 1000,
	}
}

func TestHub_PublishFiltersByToken(t *testing.T) {
	h := NewHub(4, nil)

	all := h.Subscribe(nil)
	onlyUSDT := h.Subscribe(&usdt)
	require.Equal(t, 2, h.Len())

	h.Publish(event(domain.EventDeposited, usdc))
	h.Publish(event(domain.EventPoolFunded, usdt))

	require.Len(t, all.C, 2)
	require.Len(t, onlyUSDT.C, 1)
	got := <-onlyUSDT.C
	assert.Equal(t, domain.EventPoolFunded, got.Kind)
}

func TestHub_DropsWhenFull(t *testing.T) {
	h := NewHub(1, nil)
	sub := h.Subscribe(nil)

	h.Publish(event(domain.EventDeposited, usdc))
	h.Publish(event(domain.EventWithdrawn, usdc)) // dropped

	got := <-sub.C
	assert.Equal(t, domain.EventDeposited, got.Kind)
	assert.Len(t, sub.C, 0)
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub(0, nil)
	sub := h.Subscribe(nil)

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	assert.Equal(t, 0, h.Len())

	_, open := <-sub.C
	assert.False(t, open)

	// Publishing after unsubscribe must not panic on the closed channel.
	h.Publish(event(domain.EventDeposited, usdc))
}
