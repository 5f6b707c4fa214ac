package chaincode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remittanceFixture(t *testing.T) (*mockStub, *RemittanceLedger, *TokenBank) {
	t.Helper()
	stub := newMockStub()
	admin := testCtx(stub, "admin")

	token := &TokenBank{}
	require.NoError(t, token.Init(admin))
	remit := &RemittanceLedger{}
	require.NoError(t, remit.Init(admin))
	require.NoError(t, remit.RegisterAsset(admin, asset))
	require.NoError(t, remit.SetTreasury(admin, "treasury"))
	require.NoError(t, remit.SetOperator(admin, "operator"))
	return stub, remit, token
}

func TestQuoteFeeCorridorAndDefault(t *testing.T) {
	stub, remit, _ := remittanceFixture(t)
	admin := testCtx(stub, "admin")

	require.NoError(t, remit.SetCorridorFee(admin, "US", "MX", 80))

	fee, err := remit.QuoteFee(testCtx(stub, "anyone"), "US", "MX", 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), fee)

	// Unpriced corridor falls back to the default rate (100 bps at init).
	fee, err = remit.QuoteFee(testCtx(stub, "anyone"), "US", "IN", 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), fee)

	// Pure: identical inputs, identical output, zero in zero out.
	again, err := remit.QuoteFee(testCtx(stub, "anyone"), "US", "MX", 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), again)
	zero, err := remit.QuoteFee(testCtx(stub, "anyone"), "US", "MX", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), zero)
}

func TestFeeCaps(t *testing.T) {
	stub, remit, _ := remittanceFixture(t)
	admin := testCtx(stub, "admin")

	err := remit.SetCorridorFee(admin, "US", "MX", 501)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	err = remit.SetDefaultFee(admin, 501)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	err = remit.SetTransferLimits(admin, 500, 500)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

// Scenario: an 80 bps US->MX corridor, a 1000-unit transfer. Fee is 8, the
// sender escrows 1008, the treasury is paid immediately.
func TestInitiateTransferEscrowsAndPaysFee(t *testing.T) {
	stub, remit, token := remittanceFixture(t)
	admin := testCtx(stub, "admin")
	alice := testCtx(stub, "alice")

	require.NoError(t, remit.SetCorridorFee(admin, "US", "MX", 80))
	require.NoError(t, token.Mint(admin, asset, "alice", 2000))

	transfer, err := remit.InitiateTransfer(alice, asset, 1000, "maria@mx", "US", "MX")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), transfer.ID)
	assert.Equal(t, uint64(8), transfer.Fee)
	assert.Equal(t, TransferPending, transfer.Status)

	held, err := token.BalanceOf(alice, asset, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(2000-1008), held)

	escrow, err := token.BalanceOf(alice, asset, RemittanceEscrowAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), escrow)

	treasury, err := token.BalanceOf(alice, asset, "treasury")
	require.NoError(t, err)
	assert.Equal(t, uint64(8), treasury)
}

func TestInitiateTransferValidation(t *testing.T) {
	stub, remit, token := remittanceFixture(t)
	admin := testCtx(stub, "admin")
	alice := testCtx(stub, "alice")
	require.NoError(t, token.Mint(admin, asset, "alice", 500))
	require.NoError(t, remit.SetTransferLimits(admin, 100, 10000))

	_, err := remit.InitiateTransfer(alice, "DOGE", 1000, "r", "US", "MX")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = remit.InitiateTransfer(alice, asset, 99, "r", "US", "MX")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = remit.InitiateTransfer(alice, asset, 100, "", "US", "MX")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	// 500 held, 500+fee needed.
	_, err = remit.InitiateTransfer(alice, asset, 500, "r", "US", "MX")
	require.Error(t, err)
	assert.Equal(t, KindInsufficientFunds, KindOf(err))
}

func TestCompleteTransferLifecycle(t *testing.T) {
	stub, remit, token := remittanceFixture(t)
	admin := testCtx(stub, "admin")
	alice := testCtx(stub, "alice")
	require.NoError(t, token.Mint(admin, asset, "alice", 2000))

	transfer, err := remit.InitiateTransfer(alice, asset, 1000, "maria@mx", "US", "MX")
	require.NoError(t, err)

	err = remit.CompleteTransfer(alice, transfer.ID)
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))

	require.NoError(t, remit.CompleteTransfer(testCtx(stub, "operator"), transfer.ID))

	got, err := remit.GetTransfer(alice, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, TransferCompleted, got.Status)

	// Terminal: no further lifecycle operation succeeds.
	err = remit.CompleteTransfer(admin, transfer.ID)
	require.Error(t, err)
	assert.Equal(t, KindState, KindOf(err))
	err = remit.CancelTransfer(alice, transfer.ID)
	require.Error(t, err)
	assert.Equal(t, KindState, KindOf(err))

	// Completion does not move the escrowed principal on-chain.
	escrow, err := token.BalanceOf(alice, asset, RemittanceEscrowAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), escrow)
}

// Scenario: cancelling a pending transfer refunds exactly the principal; the
// fee stays with the treasury; a second cancel fails.
func TestCancelTransferRefundsPrincipalOnly(t *testing.T) {
	stub, remit, token := remittanceFixture(t)
	admin := testCtx(stub, "admin")
	alice := testCtx(stub, "alice")
	require.NoError(t, remit.SetCorridorFee(admin, "US", "MX", 80))
	require.NoError(t, token.Mint(admin, asset, "alice", 1008))

	transfer, err := remit.InitiateTransfer(alice, asset, 1000, "maria@mx", "US", "MX")
	require.NoError(t, err)

	err = remit.CancelTransfer(testCtx(stub, "mallory"), transfer.ID)
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))

	require.NoError(t, remit.CancelTransfer(alice, transfer.ID))

	held, err := token.BalanceOf(alice, asset, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), held)

	treasury, err := token.BalanceOf(alice, asset, "treasury")
	require.NoError(t, err)
	assert.Equal(t, uint64(8), treasury)

	got, err := remit.GetTransfer(alice, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, TransferCancelled, got.Status)

	err = remit.CancelTransfer(alice, transfer.ID)
	require.Error(t, err)
	assert.Equal(t, KindState, KindOf(err))
}

func TestTransferIDsAreSequentialAndIndexed(t *testing.T) {
	stub, remit, token := remittanceFixture(t)
	admin := testCtx(stub, "admin")
	alice := testCtx(stub, "alice")
	bob := testCtx(stub, "bob")
	require.NoError(t, token.Mint(admin, asset, "alice", 10000))
	require.NoError(t, token.Mint(admin, asset, "bob", 10000))

	first, err := remit.InitiateTransfer(alice, asset, 100, "r1", "US", "MX")
	require.NoError(t, err)
	second, err := remit.InitiateTransfer(bob, asset, 200, "r2", "US", "PH")
	require.NoError(t, err)
	third, err := remit.InitiateTransfer(alice, asset, 300, "r3", "US", "IN")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first.ID)
	assert.Equal(t, uint64(2), second.ID)
	assert.Equal(t, uint64(3), third.ID)

	mine, err := remit.GetTransfersForAccount(alice, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, uint64(1), mine[0].ID)
	assert.Equal(t, uint64(3), mine[1].ID)

	_, err = remit.GetTransfer(alice, 99)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}
