package custody

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	vaultAddr = common.HexToAddress("0x00000000000000000000000000000000000c0de0")
	usdc      = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	alice     = common.HexToAddress("0x47ac0Fb4F2D84898e4D9E7b4DaB3C24507a6D503")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestVault_TransferIn(t *testing.T) {
	ctx := context.Background()
	v := NewVault(vaultAddr)

	require.NoError(t, v.Mint(ctx, usdc, alice, u(100)))
	require.NoError(t, v.Approve(ctx, usdc, alice, u(60)))

	require.NoError(t, v.TransferIn(ctx, usdc, alice, u(40)))
	assert.Equal(t, u(60), v.BalanceOf(usdc, alice))
	assert.Equal(t, u(40), v.BalanceOf(usdc, vaultAddr))
	assert.Equal(t, u(20), v.Allowance(usdc, alice))
}

func TestVault_TransferIn_AllowanceCheckedFirst(t *testing.T) {
	ctx := context.Background()
	v := NewVault(vaultAddr)

	// No balance and no allowance: allowance is reported.
	err := v.TransferIn(ctx, usdc, alice, u(1))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, v.Approve(ctx, usdc, alice, u(10)))
	err = v.TransferIn(ctx, usdc, alice, u(5))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// Failed transfers leave the allowance untouched.
	assert.Equal(t, u(10), v.Allowance(usdc, alice))
	assert.True(t, v.BalanceOf(usdc, vaultAddr).IsZero())
}

func TestVault_TransferOut(t *testing.T) {
	ctx := context.Background()
	v := NewVault(vaultAddr)

	err := v.TransferOut(ctx, usdc, alice, u(1))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	require.NoError(t, v.Mint(ctx, usdc, vaultAddr, u(50)))
	require.NoError(t, v.TransferOut(ctx, usdc, alice, u(50)))
	assert.Equal(t, u(50), v.BalanceOf(usdc, alice))
	assert.True(t, v.BalanceOf(usdc, vaultAddr).IsZero())
}

func TestVault_ApproveOverwrites(t *testing.T) {
	ctx := context.Background()
	v := NewVault(vaultAddr)

	require.NoError(t, v.Approve(ctx, usdc, alice, u(10)))
	require.NoError(t, v.Approve(ctx, usdc, alice, u(3)))
	assert.Equal(t, u(3), v.Allowance(usdc, alice))
}

func TestVault_MintOverflow(t *testing.T) {
	ctx := context.Background()
	v := NewVault(vaultAddr)

	max := new(uint256.Int).SetAllOne()
	require.NoError(t, v.Mint(ctx, usdc, alice, max))
	assert.ErrorIs(t, v.Mint(ctx, usdc, alice, u(1)), ErrInvalidAmount)
	assert.True(t, v.BalanceOf(usdc, alice).Eq(max))
}

func TestVault_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	v := NewVault(vaultAddr)
	require.NoError(t, v.Mint(ctx, usdc, alice, u(5)))

	bal := v.BalanceOf(usdc, alice)
	bal.SetUint64(1000)
	assert.Equal(t, u(5), v.BalanceOf(usdc, alice))
}

func TestVault_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := NewVault(vaultAddr)
	assert.ErrorIs(t, v.TransferIn(ctx, usdc, alice, u(1)), context.Canceled)
	assert.ErrorIs(t, v.TransferOut(ctx, usdc, alice, u(1)), context.Canceled)
}

func TestVault_NilAmount(t *testing.T) {
	ctx := context.Background()
	v := NewVault(vaultAddr)
	assert.ErrorIs(t, v.Mint(ctx, usdc, alice, nil), ErrInvalidAmount)
	assert.ErrorIs(t, v.Approve(ctx, usdc, alice, nil), ErrInvalidAmount)
	assert.ErrorIs(t, v.TransferIn(ctx, usdc, alice, nil), ErrInvalidAmount)
	assert.ErrorIs(t, v.TransferOut(ctx, usdc, alice, nil), ErrInvalidAmount)
}

func TestVault_RejectsSelfTransfer(t *testing.T) {
	ctx := context.Background()
	v := NewVault(vaultAddr)
	require.NoError(t, v.Mint(ctx, usdc, vaultAddr, u(100)))
	require.NoError(t, v.Approve(ctx, usdc, vaultAddr, u(100)))

	assert.ErrorIs(t, v.TransferIn(ctx, usdc, vaultAddr, u(10)), ErrSelfTransfer)
	assert.ErrorIs(t, v.TransferOut(ctx, usdc, vaultAddr, u(10)), ErrSelfTransfer)

	// The allowance is not consumed by a rejected pull.
	bal, allowance, err := v.Holdings(ctx, usdc, vaultAddr)
	require.NoError(t, err)
	assert.Equal(t, u(100), bal)
	assert.Equal(t, u(100), allowance)
}

func TestVault_Holdings(t *testing.T) {
	ctx := context.Background()
	v := NewVault(vaultAddr)
	require.NoError(t, v.Mint(ctx, usdc, alice, u(7)))
	require.NoError(t, v.Approve(ctx, usdc, alice, u(3)))

	bal, allowance, err := v.Holdings(ctx, usdc, alice)
	require.NoError(t, err)
	assert.Equal(t, u(7), bal)
	assert.Equal(t, u(3), allowance)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = v.Holdings(cancelled, usdc, alice)
	assert.ErrorIs(t, err, context.Canceled)
}
