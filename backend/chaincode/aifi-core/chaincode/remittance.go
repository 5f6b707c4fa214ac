package chaincode

import (
	"fmt"
	"math/big"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/shopspring/decimal"
)

// TransferStatus is the lifecycle state of a cross-border transfer.
// COMPLETED and CANCELLED are terminal.
type TransferStatus string

const (
	TransferPending   TransferStatus = "PENDING"
	TransferCompleted TransferStatus = "COMPLETED"
	TransferCancelled TransferStatus = "CANCELLED"
)

// Transfer is one cross-border remittance. The principal sits in escrow
// until completion (delivery happens off-chain) or cancellation (refund);
// the fee goes to the treasury the moment the transfer is initiated.
type Transfer struct {
	ID          uint64         `json:"id"`
	Sender      string         `json:"sender"`
	Recipient   string         `json:"recipient"`
	Asset       string         `json:"asset"`
	Amount      uint64         `json:"amount"`
	Fee         uint64         `json:"fee"`
	Origin      string         `json:"origin"`
	Destination string         `json:"destination"`
	CreatedAt   int64          `json:"created_at"`
	UpdatedAt   int64          `json:"updated_at"`
	Status      TransferStatus `json:"status"`
}

// RemittanceLedger is the escrow-and-fee settlement ledger for cross-border
// transfers with corridor-specific pricing.
type RemittanceLedger struct {
	contractapi.Contract
}

const (
	remitAdminKey      = "remit:admin"
	remitOperatorKey   = "remit:operator"
	remitTreasuryKey   = "remit:treasury"
	remitLimitsKey     = "remit:limits"
	remitDefaultFeeKey = "remit:defaultfee"
	remitSeqKey        = "remit:seq"
	remitAssetKey      = "remitasset" // composite: asset
	corridorKey        = "corridor"   // composite: origin, destination
	transferKey        = "transfer"   // composite: zero-padded id
	transferIndexKey   = "remitacct"  // composite: account, zero-padded id

	// Corridor fees are basis points, capped at 5%.
	maxFeeBps = 500
)

type corridorRecord struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	RateBps     uint64 `json:"rate_bps"`
}

type feeRecord struct {
	RateBps uint64 `json:"rate_bps"`
}

type limitsRecord struct {
	Min uint64 `json:"min"`
	Max uint64 `json:"max"`
}

type seqRecord struct {
	Next uint64 `json:"next"`
}

// Init records the administrator, who also starts as operator and treasury
// until SetOperator/SetTreasury replace them, and seeds pricing defaults.
func (r *RemittanceLedger) Init(ctx contractapi.TransactionContextInterface) error {
	admin, err := initAdmin(ctx, remitAdminKey)
	if err != nil {
		return err
	}
	if err := ctx.GetStub().PutState(remitOperatorKey, []byte(admin)); err != nil {
		return err
	}
	if err := ctx.GetStub().PutState(remitTreasuryKey, []byte(admin)); err != nil {
		return err
	}
	if err := putJSON(ctx, remitDefaultFeeKey, feeRecord{RateBps: 100}); err != nil {
		return err
	}
	if err := putJSON(ctx, remitLimitsKey, limitsRecord{Min: 1, Max: 1000000}); err != nil {
		return err
	}
	return emitEvent(ctx, "remittance.initialized", map[string]string{"admin": admin})
}

// RegisterAsset makes an asset eligible for transfers.
func (r *RemittanceLedger) RegisterAsset(ctx contractapi.TransactionContextInterface, asset string) error {
	if _, err := requireAdmin(ctx, remitAdminKey); err != nil {
		return err
	}
	if asset == "" {
		return errValidation("asset must be non-empty")
	}
	if err := addMember(ctx, remitAssetKey, asset); err != nil {
		return err
	}
	return emitEvent(ctx, "remittance.asset_registered", assetRecord{Asset: asset})
}

// DeregisterAsset withdraws an asset's eligibility for new transfers.
func (r *RemittanceLedger) DeregisterAsset(ctx contractapi.TransactionContextInterface, asset string) error {
	if _, err := requireAdmin(ctx, remitAdminKey); err != nil {
		return err
	}
	if err := removeMember(ctx, remitAssetKey, asset); err != nil {
		return err
	}
	return emitEvent(ctx, "remittance.asset_deregistered", assetRecord{Asset: asset})
}

// SetCorridorFee prices one (origin, destination) corridor.
func (r *RemittanceLedger) SetCorridorFee(ctx contractapi.TransactionContextInterface, origin string, destination string, rateBps uint64) error {
	if _, err := requireAdmin(ctx, remitAdminKey); err != nil {
		return err
	}
	if origin == "" || destination == "" {
		return errValidation("origin and destination must be non-empty")
	}
	if rateBps > maxFeeBps {
		return errValidation("rate %d bps exceeds the %d bps ceiling", rateBps, maxFeeBps)
	}
	key, err := ctx.GetStub().CreateCompositeKey(corridorKey, []string{origin, destination})
	if err != nil {
		return err
	}
	rec := corridorRecord{Origin: origin, Destination: destination, RateBps: rateBps}
	if err := putJSON(ctx, key, rec); err != nil {
		return err
	}
	return emitEvent(ctx, "remittance.corridor_fee_set", rec)
}

// SetDefaultFee prices every corridor without an explicit rate.
func (r *RemittanceLedger) SetDefaultFee(ctx contractapi.TransactionContextInterface, rateBps uint64) error {
	if _, err := requireAdmin(ctx, remitAdminKey); err != nil {
		return err
	}
	if rateBps > maxFeeBps {
		return errValidation("rate %d bps exceeds the %d bps ceiling", rateBps, maxFeeBps)
	}
	if err := putJSON(ctx, remitDefaultFeeKey, feeRecord{RateBps: rateBps}); err != nil {
		return err
	}
	return emitEvent(ctx, "remittance.default_fee_set", feeRecord{RateBps: rateBps})
}

// SetTransferLimits bounds the transfer principal.
func (r *RemittanceLedger) SetTransferLimits(ctx contractapi.TransactionContextInterface, min uint64, max uint64) error {
	if _, err := requireAdmin(ctx, remitAdminKey); err != nil {
		return err
	}
	if min >= max {
		return errValidation("min %d must be below max %d", min, max)
	}
	if err := putJSON(ctx, remitLimitsKey, limitsRecord{Min: min, Max: max}); err != nil {
		return err
	}
	return emitEvent(ctx, "remittance.limits_set", limitsRecord{Min: min, Max: max})
}

// SetTreasury routes all future fees to the given account.
func (r *RemittanceLedger) SetTreasury(ctx contractapi.TransactionContextInterface, account string) error {
	if _, err := requireAdmin(ctx, remitAdminKey); err != nil {
		return err
	}
	if account == "" {
		return errValidation("treasury must be non-empty")
	}
	if err := ctx.GetStub().PutState(remitTreasuryKey, []byte(account)); err != nil {
		return err
	}
	return emitEvent(ctx, "remittance.treasury_set", map[string]string{"treasury": account})
}

// SetOperator designates the off-chain delivery operator allowed to complete
// transfers.
func (r *RemittanceLedger) SetOperator(ctx contractapi.TransactionContextInterface, account string) error {
	if _, err := requireAdmin(ctx, remitAdminKey); err != nil {
		return err
	}
	if account == "" {
		return errValidation("operator must be non-empty")
	}
	if err := ctx.GetStub().PutState(remitOperatorKey, []byte(account)); err != nil {
		return err
	}
	return emitEvent(ctx, "remittance.operator_set", map[string]string{"operator": account})
}

// QuoteFee returns the fee for a corridor and amount. Pure: same inputs,
// same fee, no side effects.
func (r *RemittanceLedger) QuoteFee(ctx contractapi.TransactionContextInterface, origin string, destination string, amount uint64) (uint64, error) {
	rate, err := corridorRate(ctx, origin, destination)
	if err != nil {
		return 0, err
	}
	return feeFor(amount, rate), nil
}

// InitiateTransfer escrows amount+fee from the caller, forwards the fee to
// the treasury, and records the transfer as PENDING.
func (r *RemittanceLedger) InitiateTransfer(ctx contractapi.TransactionContextInterface, asset string, amount uint64, recipient string, origin string, destination string) (*Transfer, error) {
	sender, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	eligible, err := hasMember(ctx, remitAssetKey, asset)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, errValidation("asset %s is not eligible", asset)
	}
	if recipient == "" || origin == "" || destination == "" {
		return nil, errValidation("recipient, origin and destination must be non-empty")
	}
	var limits limitsRecord
	if _, err := getJSON(ctx, remitLimitsKey, &limits); err != nil {
		return nil, err
	}
	if amount < limits.Min || amount > limits.Max {
		return nil, errValidation("amount %d is outside the [%d, %d] limits", amount, limits.Min, limits.Max)
	}
	rate, err := corridorRate(ctx, origin, destination)
	if err != nil {
		return nil, err
	}
	fee := feeFor(amount, rate)

	balance, err := tokenBalance(ctx, asset, sender)
	if err != nil {
		return nil, err
	}
	if balance < amount+fee {
		return nil, errInsufficientFunds("transfer requires %d of %s, account holds %d", amount+fee, asset, balance)
	}

	id, err := nextTransferID(ctx)
	if err != nil {
		return nil, err
	}
	now, err := txSeconds(ctx)
	if err != nil {
		return nil, err
	}
	transfer := Transfer{
		ID:          id,
		Sender:      sender,
		Recipient:   recipient,
		Asset:       asset,
		Amount:      amount,
		Fee:         fee,
		Origin:      origin,
		Destination: destination,
		CreatedAt:   now,
		UpdatedAt:   now,
		Status:      TransferPending,
	}
	if err := putTransfer(ctx, &transfer); err != nil {
		return nil, err
	}
	if err := indexTransfer(ctx, &transfer); err != nil {
		return nil, err
	}
	treasury, err := treasuryAccount(ctx)
	if err != nil {
		return nil, err
	}
	if err := tokenMove(ctx, asset, sender, RemittanceEscrowAccount, amount+fee); err != nil {
		return nil, err
	}
	if fee > 0 {
		if err := tokenMove(ctx, asset, RemittanceEscrowAccount, treasury, fee); err != nil {
			return nil, err
		}
	}
	if err := emitEvent(ctx, "remittance.initiated", transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}

// CompleteTransfer records that off-chain delivery happened. Administrator
// or operator only. The escrowed principal does not move on-chain.
func (r *RemittanceLedger) CompleteTransfer(ctx contractapi.TransactionContextInterface, id uint64) error {
	ok, _, err := isAdmin(ctx, remitAdminKey)
	if err != nil {
		return err
	}
	if !ok {
		operator, opErr := ctx.GetStub().GetState(remitOperatorKey)
		if opErr != nil {
			return opErr
		}
		callerID, cErr := caller(ctx)
		if cErr != nil {
			return cErr
		}
		if operator == nil || string(operator) != callerID {
			return errAuthorization("caller is neither administrator nor operator")
		}
	}
	transfer, found, err := lookupTransfer(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return errValidation("transfer %d does not exist", id)
	}
	if transfer.Status != TransferPending {
		return errState("transfer %d is %s, not PENDING", id, transfer.Status)
	}
	now, err := txSeconds(ctx)
	if err != nil {
		return err
	}
	transfer.Status = TransferCompleted
	transfer.UpdatedAt = now
	if err := putTransfer(ctx, transfer); err != nil {
		return err
	}
	return emitEvent(ctx, "remittance.completed", transfer)
}

// CancelTransfer refunds the escrowed principal (the fee stays with the
// treasury) to the sender. Only the sender or the administrator may cancel.
func (r *RemittanceLedger) CancelTransfer(ctx contractapi.TransactionContextInterface, id uint64) error {
	callerID, err := caller(ctx)
	if err != nil {
		return err
	}
	transfer, found, err := lookupTransfer(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return errValidation("transfer %d does not exist", id)
	}
	ok, _, err := isAdmin(ctx, remitAdminKey)
	if err != nil {
		return err
	}
	if !ok && transfer.Sender != callerID {
		return errAuthorization("only the sender or the administrator may cancel")
	}
	if transfer.Status != TransferPending {
		return errState("transfer %d is %s, not PENDING", id, transfer.Status)
	}
	now, err := txSeconds(ctx)
	if err != nil {
		return err
	}
	transfer.Status = TransferCancelled
	transfer.UpdatedAt = now
	if err := putTransfer(ctx, transfer); err != nil {
		return err
	}
	if err := tokenMove(ctx, transfer.Asset, RemittanceEscrowAccount, transfer.Sender, transfer.Amount); err != nil {
		return err
	}
	return emitEvent(ctx, "remittance.cancelled", transfer)
}

// GetTransfer returns one transfer record.
func (r *RemittanceLedger) GetTransfer(ctx contractapi.TransactionContextInterface, id uint64) (*Transfer, error) {
	transfer, found, err := lookupTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errValidation("transfer %d does not exist", id)
	}
	return transfer, nil
}

// GetTransfersForAccount returns every transfer the account has sent, in
// initiation order.
func (r *RemittanceLedger) GetTransfersForAccount(ctx contractapi.TransactionContextInterface, account string) ([]*Transfer, error) {
	iter, err := ctx.GetStub().GetStateByPartialCompositeKey(transferIndexKey, []string{account})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	transfers := []*Transfer{}
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, err
		}
		var transfer Transfer
		if _, err := getJSON(ctx, string(kv.Value), &transfer); err != nil {
			return nil, err
		}
		transfers = append(transfers, &transfer)
	}
	return transfers, nil
}

func corridorRate(ctx contractapi.TransactionContextInterface, origin, destination string) (uint64, error) {
	if origin == "" || destination == "" {
		return 0, errValidation("origin and destination must be non-empty")
	}
	key, err := ctx.GetStub().CreateCompositeKey(corridorKey, []string{origin, destination})
	if err != nil {
		return 0, err
	}
	var corridor corridorRecord
	found, err := getJSON(ctx, key, &corridor)
	if err != nil {
		return 0, err
	}
	if found {
		return corridor.RateBps, nil
	}
	var fallback feeRecord
	if _, err := getJSON(ctx, remitDefaultFeeKey, &fallback); err != nil {
		return 0, err
	}
	return fallback.RateBps, nil
}

// feeFor computes amount * rate / 10000, truncating toward zero.
func feeFor(amount, rateBps uint64) uint64 {
	if amount == 0 || rateBps == 0 {
		return 0
	}
	num := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0).
		Mul(decimal.NewFromBigInt(new(big.Int).SetUint64(rateBps), 0))
	quo, _ := num.QuoRem(decimal.NewFromInt(bpsDenominator), 0)
	return quo.BigInt().Uint64()
}

func nextTransferID(ctx contractapi.TransactionContextInterface) (uint64, error) {
	var seq seqRecord
	if _, err := getJSON(ctx, remitSeqKey, &seq); err != nil {
		return 0, err
	}
	seq.Next++
	if err := putJSON(ctx, remitSeqKey, seq); err != nil {
		return 0, err
	}
	return seq.Next, nil
}

func transferStateKey(ctx contractapi.TransactionContextInterface, id uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(transferKey, []string{fmt.Sprintf("%012d", id)})
}

func putTransfer(ctx contractapi.TransactionContextInterface, transfer *Transfer) error {
	key, err := transferStateKey(ctx, transfer.ID)
	if err != nil {
		return err
	}
	return putJSON(ctx, key, transfer)
}

func lookupTransfer(ctx contractapi.TransactionContextInterface, id uint64) (*Transfer, bool, error) {
	key, err := transferStateKey(ctx, id)
	if err != nil {
		return nil, false, err
	}
	var transfer Transfer
	found, err := getJSON(ctx, key, &transfer)
	if err != nil {
		return nil, false, err
	}
	return &transfer, found, nil
}

// indexTransfer stores the transfer's state key under (sender, id) so
// account history reads are a single range scan.
func indexTransfer(ctx contractapi.TransactionContextInterface, transfer *Transfer) error {
	indexKey, err := ctx.GetStub().CreateCompositeKey(transferIndexKey, []string{transfer.Sender, fmt.Sprintf("%012d", transfer.ID)})
	if err != nil {
		return err
	}
	stateKey, err := transferStateKey(ctx, transfer.ID)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutState(indexKey, []byte(stateKey))
}

func treasuryAccount(ctx contractapi.TransactionContextInterface) (string, error) {
	treasury, err := ctx.GetStub().GetState(remitTreasuryKey)
	if err != nil {
		return "", err
	}
	if treasury == nil {
		return "", errState("treasury is not configured")
	}
	return string(treasury), nil
}
