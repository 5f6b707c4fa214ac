package chaincode

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Shared world-state plumbing for all contracts in the chaincode. Records are
// stored as JSON like the rest of the platform expects; membership sets are
// individual composite keys so toggling one entry never rewrites a blob.

func getJSON(ctx contractapi.TransactionContextInterface, key string, v interface{}) (bool, error) {
	data, err := ctx.GetStub().GetState(key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %v", key, err)
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %v", key, err)
	}
	return true, nil
}

func putJSON(ctx contractapi.TransactionContextInterface, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %v", key, err)
	}
	return ctx.GetStub().PutState(key, data)
}

// caller returns the invoking client identity. On-chain, the identity string
// is the account: account-scoped operations never take the account as an
// argument, they act on behalf of the caller.
func caller(ctx contractapi.TransactionContextInterface) (string, error) {
	id, err := ctx.GetClientIdentity().GetID()
	if err != nil {
		return "", fmt.Errorf("failed to resolve caller identity: %v", err)
	}
	return id, nil
}

// txSeconds returns the transaction timestamp. Interest accrual and record
// timestamps must come from here, never from the wall clock, or endorsing
// peers would disagree on the result.
func txSeconds(ctx contractapi.TransactionContextInterface) (int64, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return 0, fmt.Errorf("failed to read tx timestamp: %v", err)
	}
	return ts.GetSeconds(), nil
}

// initAdmin records the bootstrap administrator for a contract namespace.
func initAdmin(ctx contractapi.TransactionContextInterface, key string) (string, error) {
	existing, err := ctx.GetStub().GetState(key)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %v", key, err)
	}
	if existing != nil {
		return "", errState("already initialized")
	}
	id, err := caller(ctx)
	if err != nil {
		return "", err
	}
	if err := ctx.GetStub().PutState(key, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

func isAdmin(ctx contractapi.TransactionContextInterface, key string) (bool, string, error) {
	id, err := caller(ctx)
	if err != nil {
		return false, "", err
	}
	admin, err := ctx.GetStub().GetState(key)
	if err != nil {
		return false, "", fmt.Errorf("failed to read %s: %v", key, err)
	}
	if admin == nil {
		return false, "", errState("not initialized")
	}
	return string(admin) == id, id, nil
}

func requireAdmin(ctx contractapi.TransactionContextInterface, key string) (string, error) {
	ok, id, err := isAdmin(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errAuthorization("caller is not the administrator")
	}
	return id, nil
}

// Membership sets. A set entry is a composite key whose presence is the
// membership; the stored value is a marker byte.

func addMember(ctx contractapi.TransactionContextInterface, objectType, member string) error {
	key, err := ctx.GetStub().CreateCompositeKey(objectType, []string{member})
	if err != nil {
		return err
	}
	existing, err := ctx.GetStub().GetState(key)
	if err != nil {
		return err
	}
	if existing != nil {
		return errState("%s is already a member", member)
	}
	return ctx.GetStub().PutState(key, []byte{0x01})
}

func removeMember(ctx contractapi.TransactionContextInterface, objectType, member string) error {
	key, err := ctx.GetStub().CreateCompositeKey(objectType, []string{member})
	if err != nil {
		return err
	}
	existing, err := ctx.GetStub().GetState(key)
	if err != nil {
		return err
	}
	if existing == nil {
		return errState("%s is not a member", member)
	}
	return ctx.GetStub().DelState(key)
}

func hasMember(ctx contractapi.TransactionContextInterface, objectType, member string) (bool, error) {
	key, err := ctx.GetStub().CreateCompositeKey(objectType, []string{member})
	if err != nil {
		return false, err
	}
	existing, err := ctx.GetStub().GetState(key)
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}

// emitEvent records the operation for off-chain indexers. Fabric keeps one
// event per transaction, and every public operation here performs exactly one
// state change, so each operation sets exactly one event.
func emitEvent(ctx contractapi.TransactionContextInterface, name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %v", name, err)
	}
	return ctx.GetStub().SetEvent(name, data)
}
