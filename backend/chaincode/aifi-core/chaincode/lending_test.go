package chaincode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const asset = "USDC"

// lendingFixture wires the token bank, risk registry and lending ledger the
// way the deployed chaincode does: one shared world state, "admin" as every
// administrator.
func lendingFixture(t *testing.T) (*mockStub, *LendingLedger, *TokenBank, *RiskRegistry) {
	t.Helper()
	stub := newMockStub()
	admin := testCtx(stub, "admin")

	token := &TokenBank{}
	require.NoError(t, token.Init(admin))
	risk := &RiskRegistry{}
	require.NoError(t, risk.Init(admin))
	lending := &LendingLedger{}
	require.NoError(t, lending.Init(admin))
	require.NoError(t, lending.RegisterAsset(admin, asset))
	return stub, lending, token, risk
}

func fund(t *testing.T, stub *mockStub, token *TokenBank, account string, amount uint64) {
	t.Helper()
	require.NoError(t, token.Mint(testCtx(stub, "admin"), asset, account, amount))
}

func TestDepositAndWithdraw(t *testing.T) {
	stub, lending, token, _ := lendingFixture(t)
	alice := testCtx(stub, "alice")
	fund(t, stub, token, "alice", 1000)

	require.NoError(t, lending.Deposit(alice, asset, 600))

	balance, err := lending.GetBalance(alice, asset, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(600), balance)
	total, err := lending.GetPoolTotal(alice, asset)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), total)

	held, err := token.BalanceOf(alice, asset, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(400), held)

	require.NoError(t, lending.Withdraw(alice, asset, 200))
	balance, err = lending.GetBalance(alice, asset, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(400), balance)

	err = lending.Withdraw(alice, asset, 500)
	require.Error(t, err)
	assert.Equal(t, KindInsufficientFunds, KindOf(err))
}

func TestDepositValidation(t *testing.T) {
	stub, lending, token, _ := lendingFixture(t)
	alice := testCtx(stub, "alice")
	fund(t, stub, token, "alice", 1000)

	err := lending.Deposit(alice, "DOGE", 100)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	err = lending.Deposit(alice, asset, 0)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	// More than the caller holds: the underlying movement fails.
	err = lending.Deposit(alice, asset, 5000)
	require.Error(t, err)
	assert.Equal(t, KindTransfer, KindOf(err))
}

func TestDeregisteredAssetBlocksNewDeposits(t *testing.T) {
	stub, lending, token, _ := lendingFixture(t)
	admin := testCtx(stub, "admin")
	alice := testCtx(stub, "alice")
	fund(t, stub, token, "alice", 1000)

	require.NoError(t, lending.Deposit(alice, asset, 500))
	require.NoError(t, lending.DeregisterAsset(admin, asset))

	err := lending.Deposit(alice, asset, 100)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	// Existing balances still withdraw.
	require.NoError(t, lending.Withdraw(alice, asset, 500))
}

func TestInterestRateCeiling(t *testing.T) {
	stub, lending, _, _ := lendingFixture(t)
	admin := testCtx(stub, "admin")

	err := lending.SetInterestRate(admin, "HIGH", 5001)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	require.NoError(t, lending.SetInterestRate(admin, "HIGH", 5000))
	rate, err := lending.GetInterestRate(admin, "HIGH")
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), rate)
}

// Scenario: alice deposits 1000, borrows 400 at the MEDIUM default (10%
// annual); one year later full repayment is exactly 440 and the pool ends at
// 1040.
func TestBorrowRepayOneYear(t *testing.T) {
	stub, lending, token, _ := lendingFixture(t)
	alice := testCtx(stub, "alice")
	fund(t, stub, token, "alice", 1040)

	require.NoError(t, lending.Deposit(alice, asset, 1000))
	require.NoError(t, lending.Borrow(alice, asset, 400))

	total, err := lending.GetPoolTotal(alice, asset)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), total)

	loan, err := lending.GetLoan(alice, "alice", asset)
	require.NoError(t, err)
	assert.True(t, loan.Active)
	assert.Equal(t, TierMedium, loan.Tier)
	assert.Equal(t, uint64(1000), loan.RateBps)

	stub.advance(365 * 24 * time.Hour)

	quote, err := lending.RepayPreview(alice, asset)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), quote.Principal)
	assert.Equal(t, uint64(40), quote.Interest)
	assert.Equal(t, uint64(440), quote.Total)

	require.NoError(t, lending.Repay(alice, asset))

	total, err = lending.GetPoolTotal(alice, asset)
	require.NoError(t, err)
	assert.Equal(t, uint64(1040), total)

	loan, err = lending.GetLoan(alice, "alice", asset)
	require.NoError(t, err)
	assert.False(t, loan.Active)
	assert.Equal(t, uint64(40), loan.InterestPaid)

	held, err := token.BalanceOf(alice, asset, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), held)
}

func TestLoanTierSnapshotSurvivesReclassification(t *testing.T) {
	stub, lending, token, risk := lendingFixture(t)
	admin := testCtx(stub, "admin")
	alice := testCtx(stub, "alice")
	fund(t, stub, token, "alice", 1000)

	require.NoError(t, risk.SetTier(admin, "alice", "LOW"))
	require.NoError(t, lending.Deposit(alice, asset, 1000))
	require.NoError(t, lending.Borrow(alice, asset, 500))

	require.NoError(t, risk.SetTier(admin, "alice", "HIGH"))

	loan, err := lending.GetLoan(alice, "alice", asset)
	require.NoError(t, err)
	assert.Equal(t, TierLow, loan.Tier)
	assert.Equal(t, uint64(500), loan.RateBps)
}

func TestBorrowLiquidityAndDuplicateLoan(t *testing.T) {
	stub, lending, token, _ := lendingFixture(t)
	alice := testCtx(stub, "alice")
	bob := testCtx(stub, "bob")
	fund(t, stub, token, "alice", 100)
	require.NoError(t, lending.Deposit(alice, asset, 100))

	err := lending.Borrow(bob, asset, 150)
	require.Error(t, err)
	assert.Equal(t, KindLiquidity, KindOf(err))

	require.NoError(t, lending.Borrow(bob, asset, 50))
	err = lending.Borrow(bob, asset, 10)
	require.Error(t, err)
	assert.Equal(t, KindState, KindOf(err))
}

func TestRepayRequiresActiveLoanAndFunds(t *testing.T) {
	stub, lending, token, _ := lendingFixture(t)
	alice := testCtx(stub, "alice")
	bob := testCtx(stub, "bob")
	fund(t, stub, token, "alice", 1000)
	require.NoError(t, lending.Deposit(alice, asset, 1000))

	err := lending.Repay(bob, asset)
	require.Error(t, err)
	assert.Equal(t, KindState, KindOf(err))

	require.NoError(t, lending.Borrow(bob, asset, 400))
	stub.advance(365 * 24 * time.Hour)

	// Bob holds only the borrowed 400, interest makes it 440.
	err = lending.Repay(bob, asset)
	require.Error(t, err)
	assert.Equal(t, KindInsufficientFunds, KindOf(err))

	fund(t, stub, token, "bob", 40)
	require.NoError(t, lending.Repay(bob, asset))

	// Repaid loans stay settled; a second repay finds nothing active.
	err = lending.Repay(bob, asset)
	require.Error(t, err)
	assert.Equal(t, KindState, KindOf(err))

	// A fresh borrow over the settled loan record is allowed.
	require.NoError(t, lending.Borrow(bob, asset, 100))
}

func TestInterestDueTruncates(t *testing.T) {
	// 100 at 10% for half a year owes 4 (4.99... truncated), not 5.
	assert.Equal(t, uint64(4), interestDue(100, 1000, secondsPerYear/2-1))
	assert.Equal(t, uint64(5), interestDue(100, 1000, secondsPerYear/2))
	assert.Equal(t, uint64(0), interestDue(100, 1000, 0))
	assert.Equal(t, uint64(0), interestDue(100, 1000, -5))
	assert.Equal(t, uint64(0), interestDue(0, 1000, secondsPerYear))
}

// Conservation over deposit/withdraw only: the pool total equals the sum of
// account balances. Borrow/repay shift the total by outstanding principal
// and collected interest, checked in TestBorrowRepayOneYear.
func TestConservationAcrossAccounts(t *testing.T) {
	stub, lending, token, _ := lendingFixture(t)
	alice := testCtx(stub, "alice")
	bob := testCtx(stub, "bob")
	fund(t, stub, token, "alice", 700)
	fund(t, stub, token, "bob", 900)

	require.NoError(t, lending.Deposit(alice, asset, 700))
	require.NoError(t, lending.Deposit(bob, asset, 300))
	require.NoError(t, lending.Withdraw(alice, asset, 250))
	require.NoError(t, lending.Deposit(bob, asset, 600))
	require.NoError(t, lending.Withdraw(bob, asset, 100))

	aliceBal, err := lending.GetBalance(alice, asset, "alice")
	require.NoError(t, err)
	bobBal, err := lending.GetBalance(alice, asset, "bob")
	require.NoError(t, err)
	total, err := lending.GetPoolTotal(alice, asset)
	require.NoError(t, err)
	assert.Equal(t, aliceBal+bobBal, total)

	// Custody matches the counter: the pool account holds exactly the total.
	held, err := token.BalanceOf(alice, asset, LendingPoolAccount)
	require.NoError(t, err)
	assert.Equal(t, total, held)
}
