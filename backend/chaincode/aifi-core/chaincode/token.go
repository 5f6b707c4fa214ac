package chaincode

import (
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// TokenBank is the fungible-asset sub-ledger the protocol contracts settle
// against. Every deposit, escrow, fee and payout is a balance movement here;
// the lending pool, the remittance escrow and the treasury are ordinary
// accounts from the bank's point of view.
type TokenBank struct {
	contractapi.Contract
}

const (
	tokenAdminKey   = "token:admin"
	tokenBalanceKey = "tokenbal"    // composite: asset, account
	tokenSupplyKey  = "tokensupply" // composite: asset

	// Custody accounts owned by the protocol contracts.
	LendingPoolAccount      = "pool.lending"
	RemittanceEscrowAccount = "escrow.remittance"
)

type balanceRecord struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

type supplyRecord struct {
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

type tokenEvent struct {
	Asset  string `json:"asset"`
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Init records the caller as the token administrator (the issuer).
func (t *TokenBank) Init(ctx contractapi.TransactionContextInterface) error {
	admin, err := initAdmin(ctx, tokenAdminKey)
	if err != nil {
		return err
	}
	return emitEvent(ctx, "token.initialized", map[string]string{"admin": admin})
}

// Mint issues new units of an asset to an account. Issuer-only.
func (t *TokenBank) Mint(ctx contractapi.TransactionContextInterface, asset string, account string, amount uint64) error {
	if _, err := requireAdmin(ctx, tokenAdminKey); err != nil {
		return err
	}
	if asset == "" || account == "" {
		return errValidation("asset and account must be non-empty")
	}
	if amount == 0 {
		return errValidation("amount must be positive")
	}
	supply, err := tokenSupply(ctx, asset)
	if err != nil {
		return err
	}
	if err := putTokenSupply(ctx, asset, supply+amount); err != nil {
		return err
	}
	if err := tokenCredit(ctx, asset, account, amount); err != nil {
		return err
	}
	return emitEvent(ctx, "token.minted", tokenEvent{Asset: asset, To: account, Amount: amount})
}

// Transfer moves units from the caller to another account.
func (t *TokenBank) Transfer(ctx contractapi.TransactionContextInterface, asset string, to string, amount uint64) error {
	from, err := caller(ctx)
	if err != nil {
		return err
	}
	if to == "" {
		return errValidation("recipient must be non-empty")
	}
	if amount == 0 {
		return errValidation("amount must be positive")
	}
	if err := tokenMove(ctx, asset, from, to, amount); err != nil {
		return err
	}
	return emitEvent(ctx, "token.transferred", tokenEvent{Asset: asset, From: from, To: to, Amount: amount})
}

// BalanceOf returns an account's holding of an asset.
func (t *TokenBank) BalanceOf(ctx contractapi.TransactionContextInterface, asset string, account string) (uint64, error) {
	return tokenBalance(ctx, asset, account)
}

// TotalSupply returns the minted supply of an asset.
func (t *TokenBank) TotalSupply(ctx contractapi.TransactionContextInterface, asset string) (uint64, error) {
	return tokenSupply(ctx, asset)
}

// Internal movement helpers used by the protocol contracts. A failed debit is
// a TRANSFER failure: the underlying asset movement could not be performed.

func tokenBalanceStateKey(ctx contractapi.TransactionContextInterface, asset, account string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(tokenBalanceKey, []string{asset, account})
}

func tokenBalance(ctx contractapi.TransactionContextInterface, asset, account string) (uint64, error) {
	key, err := tokenBalanceStateKey(ctx, asset, account)
	if err != nil {
		return 0, err
	}
	var rec balanceRecord
	if _, err := getJSON(ctx, key, &rec); err != nil {
		return 0, err
	}
	return rec.Amount, nil
}

func putTokenBalance(ctx contractapi.TransactionContextInterface, asset, account string, amount uint64) error {
	key, err := tokenBalanceStateKey(ctx, asset, account)
	if err != nil {
		return err
	}
	return putJSON(ctx, key, balanceRecord{Asset: asset, Account: account, Amount: amount})
}

func tokenSupply(ctx contractapi.TransactionContextInterface, asset string) (uint64, error) {
	key, err := ctx.GetStub().CreateCompositeKey(tokenSupplyKey, []string{asset})
	if err != nil {
		return 0, err
	}
	var rec supplyRecord
	if _, err := getJSON(ctx, key, &rec); err != nil {
		return 0, err
	}
	return rec.Amount, nil
}

func putTokenSupply(ctx contractapi.TransactionContextInterface, asset string, amount uint64) error {
	key, err := ctx.GetStub().CreateCompositeKey(tokenSupplyKey, []string{asset})
	if err != nil {
		return err
	}
	return putJSON(ctx, key, supplyRecord{Asset: asset, Amount: amount})
}

func tokenCredit(ctx contractapi.TransactionContextInterface, asset, account string, amount uint64) error {
	balance, err := tokenBalance(ctx, asset, account)
	if err != nil {
		return err
	}
	return putTokenBalance(ctx, asset, account, balance+amount)
}

func tokenDebit(ctx contractapi.TransactionContextInterface, asset, account string, amount uint64) error {
	balance, err := tokenBalance(ctx, asset, account)
	if err != nil {
		return err
	}
	if balance < amount {
		return errTransfer("account %s holds %d of %s, cannot move %d", account, balance, asset, amount)
	}
	return putTokenBalance(ctx, asset, account, balance-amount)
}

func tokenMove(ctx contractapi.TransactionContextInterface, asset, from, to string, amount uint64) error {
	if err := tokenDebit(ctx, asset, from, amount); err != nil {
		return err
	}
	return tokenCredit(ctx, asset, to, amount)
}
