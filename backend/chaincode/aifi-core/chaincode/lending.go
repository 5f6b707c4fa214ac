package chaincode

import (
	"math/big"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/shopspring/decimal"
)

// LendingLedger manages pooled deposits and risk-tiered borrowing with
// time-based linear interest. The pool total tracks available liquidity:
// deposits and repayments credit it, withdrawals and borrows debit it.
type LendingLedger struct {
	contractapi.Contract
}

const (
	lendAdminKey   = "lend:admin"
	lendAssetKey   = "lendasset" // composite: asset
	lendRateKey    = "lendrate"  // composite: tier
	lendBalanceKey = "lendbal"   // composite: asset, account
	lendTotalKey   = "lendtotal" // composite: asset
	loanKey        = "loan"      // composite: account, asset

	// Annual rates are basis points, capped at 50%.
	maxAnnualRateBps = 5000
	bpsDenominator   = 10000
	secondsPerYear   = 365 * 24 * 60 * 60
)

// Default annual rates seeded at initialization.
var defaultRates = map[Tier]uint64{
	TierLow:    500,
	TierMedium: 1000,
	TierHigh:   1500,
}

// Loan is a borrowing position. The tier is snapshotted at origination and
// never changes, even if the registry later reclassifies the account. Repaid
// loans stay on the ledger with Active false.
type Loan struct {
	Account      string `json:"account"`
	Asset        string `json:"asset"`
	Principal    uint64 `json:"principal"`
	RateBps      uint64 `json:"rate_bps"`
	Tier         Tier   `json:"tier"`
	OriginatedAt int64  `json:"originated_at"`
	Active       bool   `json:"active"`
	RepaidAt     int64  `json:"repaid_at,omitempty"`
	InterestPaid uint64 `json:"interest_paid,omitempty"`
}

// RepayQuote is the amount a full repayment requires at a given moment.
type RepayQuote struct {
	Principal uint64 `json:"principal"`
	Interest  uint64 `json:"interest"`
	Total     uint64 `json:"total"`
}

type lendingEvent struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  uint64 `json:"amount"`
}

type assetRecord struct {
	Asset string `json:"asset"`
}

type rateRecord struct {
	Tier    Tier   `json:"tier"`
	RateBps uint64 `json:"rate_bps"`
}

type poolTotalRecord struct {
	Asset string `json:"asset"`
	Total uint64 `json:"total"`
}

// Init records the administrator and seeds the default per-tier rates.
func (l *LendingLedger) Init(ctx contractapi.TransactionContextInterface) error {
	admin, err := initAdmin(ctx, lendAdminKey)
	if err != nil {
		return err
	}
	for tier, rate := range defaultRates {
		if err := putRate(ctx, tier, rate); err != nil {
			return err
		}
	}
	return emitEvent(ctx, "lending.initialized", map[string]string{"admin": admin})
}

// RegisterAsset makes an asset eligible for deposits and loans.
func (l *LendingLedger) RegisterAsset(ctx contractapi.TransactionContextInterface, asset string) error {
	if _, err := requireAdmin(ctx, lendAdminKey); err != nil {
		return err
	}
	if asset == "" {
		return errValidation("asset must be non-empty")
	}
	key, err := ctx.GetStub().CreateCompositeKey(lendAssetKey, []string{asset})
	if err != nil {
		return err
	}
	var rec assetRecord
	found, err := getJSON(ctx, key, &rec)
	if err != nil {
		return err
	}
	if found {
		return errState("asset %s is already registered", asset)
	}
	if err := putJSON(ctx, key, assetRecord{Asset: asset}); err != nil {
		return err
	}
	return emitEvent(ctx, "lending.asset_registered", assetRecord{Asset: asset})
}

// DeregisterAsset withdraws an asset's eligibility. Existing balances and
// loans remain; only new deposits and borrows are blocked.
func (l *LendingLedger) DeregisterAsset(ctx contractapi.TransactionContextInterface, asset string) error {
	if _, err := requireAdmin(ctx, lendAdminKey); err != nil {
		return err
	}
	eligible, err := lendingAssetEligible(ctx, asset)
	if err != nil {
		return err
	}
	if !eligible {
		return errState("asset %s is not registered", asset)
	}
	key, err := ctx.GetStub().CreateCompositeKey(lendAssetKey, []string{asset})
	if err != nil {
		return err
	}
	if err := ctx.GetStub().DelState(key); err != nil {
		return err
	}
	return emitEvent(ctx, "lending.asset_deregistered", assetRecord{Asset: asset})
}

// SetInterestRate sets the annual rate for a tier, capped at 50%.
func (l *LendingLedger) SetInterestRate(ctx contractapi.TransactionContextInterface, tier string, rateBps uint64) error {
	if _, err := requireAdmin(ctx, lendAdminKey); err != nil {
		return err
	}
	parsed, err := parseTier(tier)
	if err != nil {
		return err
	}
	if rateBps > maxAnnualRateBps {
		return errValidation("rate %d bps exceeds the %d bps ceiling", rateBps, maxAnnualRateBps)
	}
	if err := putRate(ctx, parsed, rateBps); err != nil {
		return err
	}
	return emitEvent(ctx, "lending.rate_set", rateRecord{Tier: parsed, RateBps: rateBps})
}

// Deposit moves amount of an eligible asset from the caller into the pool.
func (l *LendingLedger) Deposit(ctx contractapi.TransactionContextInterface, asset string, amount uint64) error {
	account, err := caller(ctx)
	if err != nil {
		return err
	}
	eligible, err := lendingAssetEligible(ctx, asset)
	if err != nil {
		return err
	}
	if !eligible {
		return errValidation("asset %s is not eligible", asset)
	}
	if amount == 0 {
		return errValidation("amount must be positive")
	}

	// Bookkeeping first, asset movement last.
	balance, err := lendingBalance(ctx, asset, account)
	if err != nil {
		return err
	}
	if err := putLendingBalance(ctx, asset, account, balance+amount); err != nil {
		return err
	}
	total, err := poolTotal(ctx, asset)
	if err != nil {
		return err
	}
	if err := putPoolTotal(ctx, asset, total+amount); err != nil {
		return err
	}
	if err := tokenMove(ctx, asset, account, LendingPoolAccount, amount); err != nil {
		return err
	}
	return emitEvent(ctx, "lending.deposited", lendingEvent{Account: account, Asset: asset, Amount: amount})
}

// Withdraw returns amount of the caller's deposited balance. There is no
// loan-health check here: a withdrawal may leave an active loan uncovered.
func (l *LendingLedger) Withdraw(ctx contractapi.TransactionContextInterface, asset string, amount uint64) error {
	account, err := caller(ctx)
	if err != nil {
		return err
	}
	if amount == 0 {
		return errValidation("amount must be positive")
	}
	balance, err := lendingBalance(ctx, asset, account)
	if err != nil {
		return err
	}
	if balance < amount {
		return errInsufficientFunds("balance %d is less than %d", balance, amount)
	}
	total, err := poolTotal(ctx, asset)
	if err != nil {
		return err
	}
	if total < amount {
		return errLiquidity("pool holds %d of %s, cannot release %d", total, asset, amount)
	}
	if err := putLendingBalance(ctx, asset, account, balance-amount); err != nil {
		return err
	}
	if err := putPoolTotal(ctx, asset, total-amount); err != nil {
		return err
	}
	if err := tokenMove(ctx, asset, LendingPoolAccount, account, amount); err != nil {
		return err
	}
	return emitEvent(ctx, "lending.withdrawn", lendingEvent{Account: account, Asset: asset, Amount: amount})
}

// Borrow originates a loan against pool liquidity. The caller's current risk
// tier is read from the registry and frozen into the loan.
func (l *LendingLedger) Borrow(ctx contractapi.TransactionContextInterface, asset string, amount uint64) error {
	account, err := caller(ctx)
	if err != nil {
		return err
	}
	eligible, err := lendingAssetEligible(ctx, asset)
	if err != nil {
		return err
	}
	if !eligible {
		return errValidation("asset %s is not eligible", asset)
	}
	if amount == 0 {
		return errValidation("amount must be positive")
	}
	total, err := poolTotal(ctx, asset)
	if err != nil {
		return err
	}
	if total < amount {
		return errLiquidity("pool holds %d of %s, cannot lend %d", total, asset, amount)
	}
	existing, found, err := getLoan(ctx, account, asset)
	if err != nil {
		return err
	}
	if found && existing.Active {
		return errState("account already has an active %s loan", asset)
	}

	tier, _, err := storedTier(ctx, account)
	if err != nil {
		return err
	}
	rate, err := interestRate(ctx, tier)
	if err != nil {
		return err
	}
	now, err := txSeconds(ctx)
	if err != nil {
		return err
	}
	loan := Loan{
		Account:      account,
		Asset:        asset,
		Principal:    amount,
		RateBps:      rate,
		Tier:         tier,
		OriginatedAt: now,
		Active:       true,
	}
	if err := putLoan(ctx, &loan); err != nil {
		return err
	}
	if err := putPoolTotal(ctx, asset, total-amount); err != nil {
		return err
	}
	if err := tokenMove(ctx, asset, LendingPoolAccount, account, amount); err != nil {
		return err
	}
	return emitEvent(ctx, "lending.borrowed", loan)
}

// Repay settles the caller's active loan in full: principal plus linear
// interest for the elapsed time. Partial repayment is not supported at this
// layer.
func (l *LendingLedger) Repay(ctx contractapi.TransactionContextInterface, asset string) error {
	account, err := caller(ctx)
	if err != nil {
		return err
	}
	loan, found, err := getLoan(ctx, account, asset)
	if err != nil {
		return err
	}
	if !found || !loan.Active {
		return errState("account has no active %s loan", asset)
	}
	now, err := txSeconds(ctx)
	if err != nil {
		return err
	}
	interest := interestDue(loan.Principal, loan.RateBps, now-loan.OriginatedAt)
	due := loan.Principal + interest

	balance, err := tokenBalance(ctx, asset, account)
	if err != nil {
		return err
	}
	if balance < due {
		return errInsufficientFunds("repayment requires %d of %s, account holds %d", due, asset, balance)
	}

	loan.Active = false
	loan.RepaidAt = now
	loan.InterestPaid = interest
	if err := putLoan(ctx, loan); err != nil {
		return err
	}
	total, err := poolTotal(ctx, asset)
	if err != nil {
		return err
	}
	if err := putPoolTotal(ctx, asset, total+due); err != nil {
		return err
	}
	if err := tokenMove(ctx, asset, account, LendingPoolAccount, due); err != nil {
		return err
	}
	return emitEvent(ctx, "lending.repaid", loan)
}

// RepayPreview quotes the full-repayment amount without mutating anything.
func (l *LendingLedger) RepayPreview(ctx contractapi.TransactionContextInterface, asset string) (*RepayQuote, error) {
	account, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	loan, found, err := getLoan(ctx, account, asset)
	if err != nil {
		return nil, err
	}
	if !found || !loan.Active {
		return nil, errState("account has no active %s loan", asset)
	}
	now, err := txSeconds(ctx)
	if err != nil {
		return nil, err
	}
	interest := interestDue(loan.Principal, loan.RateBps, now-loan.OriginatedAt)
	return &RepayQuote{Principal: loan.Principal, Interest: interest, Total: loan.Principal + interest}, nil
}

// GetBalance returns an account's deposited balance of an asset.
func (l *LendingLedger) GetBalance(ctx contractapi.TransactionContextInterface, asset string, account string) (uint64, error) {
	return lendingBalance(ctx, asset, account)
}

// GetPoolTotal returns the pool's available liquidity for an asset.
func (l *LendingLedger) GetPoolTotal(ctx contractapi.TransactionContextInterface, asset string) (uint64, error) {
	return poolTotal(ctx, asset)
}

// GetLoan returns the loan record for (account, asset), active or not.
func (l *LendingLedger) GetLoan(ctx contractapi.TransactionContextInterface, account string, asset string) (*Loan, error) {
	loan, found, err := getLoan(ctx, account, asset)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errValidation("no %s loan recorded for %s", asset, account)
	}
	return loan, nil
}

// GetInterestRate returns the annual rate for a tier in basis points.
func (l *LendingLedger) GetInterestRate(ctx contractapi.TransactionContextInterface, tier string) (uint64, error) {
	parsed, err := parseTier(tier)
	if err != nil {
		return 0, err
	}
	return interestRate(ctx, parsed)
}

// interestDue computes principal * rate * elapsed / (10000 * secondsPerYear)
// with exact integer arithmetic, truncating toward zero. One full year at
// 1000 bps on a principal of 400 owes exactly 40.
func interestDue(principal, rateBps uint64, elapsedSeconds int64) uint64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	num := decimal.NewFromBigInt(new(big.Int).SetUint64(principal), 0).
		Mul(decimal.NewFromBigInt(new(big.Int).SetUint64(rateBps), 0)).
		Mul(decimal.NewFromInt(elapsedSeconds))
	den := decimal.NewFromInt(int64(bpsDenominator) * int64(secondsPerYear))
	quo, _ := num.QuoRem(den, 0)
	return quo.BigInt().Uint64()
}

func lendingAssetEligible(ctx contractapi.TransactionContextInterface, asset string) (bool, error) {
	if asset == "" {
		return false, nil
	}
	key, err := ctx.GetStub().CreateCompositeKey(lendAssetKey, []string{asset})
	if err != nil {
		return false, err
	}
	var rec assetRecord
	return getJSON(ctx, key, &rec)
}

func interestRate(ctx contractapi.TransactionContextInterface, tier Tier) (uint64, error) {
	key, err := ctx.GetStub().CreateCompositeKey(lendRateKey, []string{string(tier)})
	if err != nil {
		return 0, err
	}
	var rec rateRecord
	found, err := getJSON(ctx, key, &rec)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errState("no interest rate configured for tier %s", tier)
	}
	return rec.RateBps, nil
}

func putRate(ctx contractapi.TransactionContextInterface, tier Tier, rateBps uint64) error {
	key, err := ctx.GetStub().CreateCompositeKey(lendRateKey, []string{string(tier)})
	if err != nil {
		return err
	}
	return putJSON(ctx, key, rateRecord{Tier: tier, RateBps: rateBps})
}

func lendingBalance(ctx contractapi.TransactionContextInterface, asset, account string) (uint64, error) {
	key, err := ctx.GetStub().CreateCompositeKey(lendBalanceKey, []string{asset, account})
	if err != nil {
		return 0, err
	}
	var rec balanceRecord
	if _, err := getJSON(ctx, key, &rec); err != nil {
		return 0, err
	}
	return rec.Amount, nil
}

func putLendingBalance(ctx contractapi.TransactionContextInterface, asset, account string, amount uint64) error {
	key, err := ctx.GetStub().CreateCompositeKey(lendBalanceKey, []string{asset, account})
	if err != nil {
		return err
	}
	return putJSON(ctx, key, balanceRecord{Asset: asset, Account: account, Amount: amount})
}

func poolTotal(ctx contractapi.TransactionContextInterface, asset string) (uint64, error) {
	key, err := ctx.GetStub().CreateCompositeKey(lendTotalKey, []string{asset})
	if err != nil {
		return 0, err
	}
	var rec poolTotalRecord
	if _, err := getJSON(ctx, key, &rec); err != nil {
		return 0, err
	}
	return rec.Total, nil
}

func putPoolTotal(ctx contractapi.TransactionContextInterface, asset string, total uint64) error {
	key, err := ctx.GetStub().CreateCompositeKey(lendTotalKey, []string{asset})
	if err != nil {
		return err
	}
	return putJSON(ctx, key, poolTotalRecord{Asset: asset, Total: total})
}

func getLoan(ctx contractapi.TransactionContextInterface, account, asset string) (*Loan, bool, error) {
	key, err := ctx.GetStub().CreateCompositeKey(loanKey, []string{account, asset})
	if err != nil {
		return nil, false, err
	}
	var loan Loan
	found, err := getJSON(ctx, key, &loan)
	if err != nil {
		return nil, false, err
	}
	return &loan, found, nil
}

func putLoan(ctx contractapi.TransactionContextInterface, loan *Loan) error {
	key, err := ctx.GetStub().CreateCompositeKey(loanKey, []string{loan.Account, loan.Asset})
	if err != nil {
		return err
	}
	return putJSON(ctx, key, loan)
}
