package chaincode

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Action maps a command hash to the component and operation an authorized
// relayer should invoke. The registry is a directory: it never executes
// anything itself.
type Action struct {
	Hash         string `json:"hash"`
	Target       string `json:"target"`
	Operation    string `json:"operation"`
	Description  string `json:"description"`
	Active       bool   `json:"active"`
	RegisteredAt int64  `json:"registered_at"`
}

// CommandRegistry is the deterministic lookup from a natural-language
// command signature to a callable target, curated by the administrator and
// consulted by authorized processors.
type CommandRegistry struct {
	contractapi.Contract
}

const (
	cmdAdminKey     = "cmd:admin"
	cmdLanguageKey  = "cmdlang" // composite: language code
	cmdProcessorKey = "cmdproc" // composite: identity
	cmdActionKey    = "action"  // composite: hash

	commandHashSeparator = "|"
)

// Init records the caller as administrator.
func (c *CommandRegistry) Init(ctx contractapi.TransactionContextInterface) error {
	admin, err := initAdmin(ctx, cmdAdminKey)
	if err != nil {
		return err
	}
	return emitEvent(ctx, "command.initialized", map[string]string{"admin": admin})
}

// AddLanguage registers a language code commands may be hashed under.
func (c *CommandRegistry) AddLanguage(ctx contractapi.TransactionContextInterface, code string) error {
	if _, err := requireAdmin(ctx, cmdAdminKey); err != nil {
		return err
	}
	if code == "" {
		return errValidation("language code must be non-empty")
	}
	if err := addMember(ctx, cmdLanguageKey, code); err != nil {
		return err
	}
	return emitEvent(ctx, "command.language_added", map[string]string{"code": code})
}

// RemoveLanguage deregisters a language code.
func (c *CommandRegistry) RemoveLanguage(ctx contractapi.TransactionContextInterface, code string) error {
	if _, err := requireAdmin(ctx, cmdAdminKey); err != nil {
		return err
	}
	if err := removeMember(ctx, cmdLanguageKey, code); err != nil {
		return err
	}
	return emitEvent(ctx, "command.language_removed", map[string]string{"code": code})
}

// AuthorizeProcessor grants an identity the right to resolve commands.
func (c *CommandRegistry) AuthorizeProcessor(ctx contractapi.TransactionContextInterface, processor string) error {
	if _, err := requireAdmin(ctx, cmdAdminKey); err != nil {
		return err
	}
	if processor == "" {
		return errValidation("processor must be non-empty")
	}
	if err := addMember(ctx, cmdProcessorKey, processor); err != nil {
		return err
	}
	return emitEvent(ctx, "command.processor_authorized", map[string]string{"processor": processor})
}

// RevokeProcessor removes an identity from the processor set.
func (c *CommandRegistry) RevokeProcessor(ctx contractapi.TransactionContextInterface, processor string) error {
	if _, err := requireAdmin(ctx, cmdAdminKey); err != nil {
		return err
	}
	if err := removeMember(ctx, cmdProcessorKey, processor); err != nil {
		return err
	}
	return emitEvent(ctx, "command.processor_revoked", map[string]string{"processor": processor})
}

// HashCommand derives the 32-byte registry key for a (language, template)
// pair: identical inputs always yield the identical hex digest. The language
// must be registered.
func (c *CommandRegistry) HashCommand(ctx contractapi.TransactionContextInterface, language string, template string) (string, error) {
	if language == "" || template == "" {
		return "", errValidation("language and template must be non-empty")
	}
	supported, err := hasMember(ctx, cmdLanguageKey, language)
	if err != nil {
		return "", err
	}
	if !supported {
		return "", errValidation("language %s is not supported", language)
	}
	sum := sha256.Sum256([]byte(language + commandHashSeparator + template))
	return hex.EncodeToString(sum[:]), nil
}

// RegisterAction binds a command hash to a target component and operation.
// An already-active hash is rejected; a deactivated one may be re-registered.
func (c *CommandRegistry) RegisterAction(ctx contractapi.TransactionContextInterface, hash string, target string, operation string, description string) error {
	if _, err := requireAdmin(ctx, cmdAdminKey); err != nil {
		return err
	}
	if err := validateHash(hash); err != nil {
		return err
	}
	if target == "" || operation == "" {
		return errValidation("target and operation must be non-empty")
	}
	existing, found, err := lookupAction(ctx, hash)
	if err != nil {
		return err
	}
	if found && existing.Active {
		return errState("hash %s is already registered", hash)
	}
	now, err := txSeconds(ctx)
	if err != nil {
		return err
	}
	action := Action{
		Hash:         hash,
		Target:       target,
		Operation:    operation,
		Description:  description,
		Active:       true,
		RegisteredAt: now,
	}
	if err := putAction(ctx, &action); err != nil {
		return err
	}
	return emitEvent(ctx, "command.action_registered", action)
}

// UpdateAction rewrites the target of an active hash.
func (c *CommandRegistry) UpdateAction(ctx contractapi.TransactionContextInterface, hash string, target string, operation string, description string) error {
	if _, err := requireAdmin(ctx, cmdAdminKey); err != nil {
		return err
	}
	if target == "" || operation == "" {
		return errValidation("target and operation must be non-empty")
	}
	action, found, err := lookupAction(ctx, hash)
	if err != nil {
		return err
	}
	if !found || !action.Active {
		return errState("hash %s is not active", hash)
	}
	action.Target = target
	action.Operation = operation
	action.Description = description
	if err := putAction(ctx, action); err != nil {
		return err
	}
	return emitEvent(ctx, "command.action_updated", *action)
}

// DeactivateAction retires an active hash. The record is kept for history.
func (c *CommandRegistry) DeactivateAction(ctx contractapi.TransactionContextInterface, hash string) error {
	if _, err := requireAdmin(ctx, cmdAdminKey); err != nil {
		return err
	}
	action, found, err := lookupAction(ctx, hash)
	if err != nil {
		return err
	}
	if !found || !action.Active {
		return errState("hash %s is not active", hash)
	}
	action.Active = false
	if err := putAction(ctx, action); err != nil {
		return err
	}
	return emitEvent(ctx, "command.action_deactivated", *action)
}

// Resolve returns the target for an active hash. Processor or administrator
// only; the caller then invokes the resolved operation through the normal
// account-authenticated path.
func (c *CommandRegistry) Resolve(ctx contractapi.TransactionContextInterface, hash string) (*Action, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ok, _, err := isAdmin(ctx, cmdAdminKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		authorized, err := hasMember(ctx, cmdProcessorKey, id)
		if err != nil {
			return nil, err
		}
		if !authorized {
			return nil, errAuthorization("caller is not an authorized processor")
		}
	}
	action, found, err := lookupAction(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !found || !action.Active {
		return nil, errState("hash %s is not active", hash)
	}
	return action, nil
}

// GetAction returns the stored metadata, active or not. Open to anyone.
func (c *CommandRegistry) GetAction(ctx contractapi.TransactionContextInterface, hash string) (*Action, error) {
	action, found, err := lookupAction(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errValidation("hash %s is not registered", hash)
	}
	return action, nil
}

func validateHash(hash string) error {
	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) != sha256.Size {
		return errValidation("hash must be a %d-byte hex digest", sha256.Size)
	}
	return nil
}

func putAction(ctx contractapi.TransactionContextInterface, action *Action) error {
	key, err := ctx.GetStub().CreateCompositeKey(cmdActionKey, []string{action.Hash})
	if err != nil {
		return err
	}
	return putJSON(ctx, key, action)
}

func lookupAction(ctx contractapi.TransactionContextInterface, hash string) (*Action, bool, error) {
	key, err := ctx.GetStub().CreateCompositeKey(cmdActionKey, []string{hash})
	if err != nil {
		return nil, false, err
	}
	var action Action
	found, err := getJSON(ctx, key, &action)
	if err != nil {
		return nil, false, err
	}
	return &action, found, nil
}
