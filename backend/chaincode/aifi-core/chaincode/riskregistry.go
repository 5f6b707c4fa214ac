package chaincode

import (
	"encoding/json"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Tier is the coarse creditworthiness bucket driving interest rates.
type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

// defaultTier applies to accounts that have never been assessed. An assessed
// account always has a stored record, so an explicit LOW never collides with
// the unset state.
const defaultTier = TierMedium

// RiskRegistry is the single source of truth for account risk
// classifications. Writes are restricted to one designated updater; raw tier
// reads are gated behind an authorized-reader set, while the coarse label is
// open to anyone.
type RiskRegistry struct {
	contractapi.Contract
}

const (
	riskAdminKey   = "risk:admin"
	riskUpdaterKey = "risk:updater"
	riskReaderKey  = "riskreader" // composite: identity
	riskTierKey    = "risktier"   // composite: account
)

type tierRecord struct {
	Account   string `json:"account"`
	Tier      Tier   `json:"tier"`
	UpdatedAt int64  `json:"updated_at"`
}

// Init records the caller as administrator and initial updater.
func (r *RiskRegistry) Init(ctx contractapi.TransactionContextInterface) error {
	admin, err := initAdmin(ctx, riskAdminKey)
	if err != nil {
		return err
	}
	if err := ctx.GetStub().PutState(riskUpdaterKey, []byte(admin)); err != nil {
		return err
	}
	return emitEvent(ctx, "risk.initialized", map[string]string{"admin": admin})
}

// SetUpdater replaces the sole account permitted to write tiers.
func (r *RiskRegistry) SetUpdater(ctx contractapi.TransactionContextInterface, newUpdater string) error {
	if _, err := requireAdmin(ctx, riskAdminKey); err != nil {
		return err
	}
	if newUpdater == "" {
		return errValidation("updater must be non-empty")
	}
	if err := ctx.GetStub().PutState(riskUpdaterKey, []byte(newUpdater)); err != nil {
		return err
	}
	return emitEvent(ctx, "risk.updater_set", map[string]string{"updater": newUpdater})
}

// AuthorizeReader grants an identity access to raw tier reads.
func (r *RiskRegistry) AuthorizeReader(ctx contractapi.TransactionContextInterface, reader string) error {
	if _, err := requireAdmin(ctx, riskAdminKey); err != nil {
		return err
	}
	if reader == "" {
		return errValidation("reader must be non-empty")
	}
	if err := addMember(ctx, riskReaderKey, reader); err != nil {
		return err
	}
	return emitEvent(ctx, "risk.reader_authorized", map[string]string{"reader": reader})
}

// RevokeReader removes an identity from the authorized-reader set.
func (r *RiskRegistry) RevokeReader(ctx contractapi.TransactionContextInterface, reader string) error {
	if _, err := requireAdmin(ctx, riskAdminKey); err != nil {
		return err
	}
	if reader == "" {
		return errValidation("reader must be non-empty")
	}
	if err := removeMember(ctx, riskReaderKey, reader); err != nil {
		return err
	}
	return emitEvent(ctx, "risk.reader_revoked", map[string]string{"reader": reader})
}

// SetTier overwrites one account's risk classification. Updater-only.
func (r *RiskRegistry) SetTier(ctx contractapi.TransactionContextInterface, account string, tier string) error {
	if err := requireUpdater(ctx); err != nil {
		return err
	}
	parsed, err := parseTier(tier)
	if err != nil {
		return err
	}
	if account == "" {
		return errValidation("account must be non-empty")
	}
	now, err := txSeconds(ctx)
	if err != nil {
		return err
	}
	if err := writeTier(ctx, account, parsed, now); err != nil {
		return err
	}
	return emitEvent(ctx, "risk.tier_set", tierRecord{Account: account, Tier: parsed, UpdatedAt: now})
}

// SetTiersBatch applies N classifications in one atomic call. The arguments
// are JSON string arrays; a length mismatch rejects the whole batch.
func (r *RiskRegistry) SetTiersBatch(ctx contractapi.TransactionContextInterface, accountsJSON string, tiersJSON string) error {
	if err := requireUpdater(ctx); err != nil {
		return err
	}
	var accounts, tiers []string
	if err := json.Unmarshal([]byte(accountsJSON), &accounts); err != nil {
		return errValidation("accounts is not a JSON string array: %v", err)
	}
	if err := json.Unmarshal([]byte(tiersJSON), &tiers); err != nil {
		return errValidation("tiers is not a JSON string array: %v", err)
	}
	if len(accounts) != len(tiers) {
		return errValidation("got %d accounts but %d tiers", len(accounts), len(tiers))
	}
	if len(accounts) == 0 {
		return errValidation("batch must not be empty")
	}
	now, err := txSeconds(ctx)
	if err != nil {
		return err
	}
	records := make([]tierRecord, 0, len(accounts))
	for i, account := range accounts {
		parsed, err := parseTier(tiers[i])
		if err != nil {
			return err
		}
		if account == "" {
			return errValidation("account at index %d is empty", i)
		}
		if err := writeTier(ctx, account, parsed, now); err != nil {
			return err
		}
		records = append(records, tierRecord{Account: account, Tier: parsed, UpdatedAt: now})
	}
	return emitEvent(ctx, "risk.tiers_batch_set", records)
}

// GetTier returns the stored tier, defaulting to MEDIUM when the account was
// never assessed. Restricted to the administrator, the updater and
// authorized readers.
func (r *RiskRegistry) GetTier(ctx contractapi.TransactionContextInterface, account string) (string, error) {
	id, err := caller(ctx)
	if err != nil {
		return "", err
	}
	allowed, err := canReadTier(ctx, id)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", errAuthorization("caller is not an authorized reader")
	}
	tier, _, err := storedTier(ctx, account)
	if err != nil {
		return "", err
	}
	return string(tier), nil
}

// GetTierLabel returns a human-readable label for anyone to read.
func (r *RiskRegistry) GetTierLabel(ctx contractapi.TransactionContextInterface, account string) (string, error) {
	tier, _, err := storedTier(ctx, account)
	if err != nil {
		return "", err
	}
	switch tier {
	case TierLow:
		return "Low Risk", nil
	case TierHigh:
		return "High Risk", nil
	default:
		return "Medium Risk", nil
	}
}

func requireUpdater(ctx contractapi.TransactionContextInterface) error {
	id, err := caller(ctx)
	if err != nil {
		return err
	}
	updater, err := ctx.GetStub().GetState(riskUpdaterKey)
	if err != nil {
		return err
	}
	if updater == nil {
		return errState("not initialized")
	}
	if string(updater) != id {
		return errAuthorization("caller is not the risk updater")
	}
	return nil
}

func canReadTier(ctx contractapi.TransactionContextInterface, id string) (bool, error) {
	admin, err := ctx.GetStub().GetState(riskAdminKey)
	if err != nil {
		return false, err
	}
	if admin != nil && string(admin) == id {
		return true, nil
	}
	updater, err := ctx.GetStub().GetState(riskUpdaterKey)
	if err != nil {
		return false, err
	}
	if updater != nil && string(updater) == id {
		return true, nil
	}
	return hasMember(ctx, riskReaderKey, id)
}

func parseTier(tier string) (Tier, error) {
	switch Tier(tier) {
	case TierLow, TierMedium, TierHigh:
		return Tier(tier), nil
	default:
		return "", errValidation("unknown risk tier %q", tier)
	}
}

func writeTier(ctx contractapi.TransactionContextInterface, account string, tier Tier, now int64) error {
	key, err := ctx.GetStub().CreateCompositeKey(riskTierKey, []string{account})
	if err != nil {
		return err
	}
	return putJSON(ctx, key, tierRecord{Account: account, Tier: tier, UpdatedAt: now})
}

// storedTier resolves an account's tier and whether it was explicitly
// assessed. Also consulted directly by the lending ledger at borrow time.
func storedTier(ctx contractapi.TransactionContextInterface, account string) (Tier, bool, error) {
	key, err := ctx.GetStub().CreateCompositeKey(riskTierKey, []string{account})
	if err != nil {
		return "", false, err
	}
	var rec tierRecord
	found, err := getJSON(ctx, key, &rec)
	if err != nil {
		return "", false, err
	}
	if !found {
		return defaultTier, false, nil
	}
	return rec.Tier, true, nil
}
