package chaincode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandFixture(t *testing.T) (*mockStub, *CommandRegistry) {
	t.Helper()
	stub := newMockStub()
	admin := testCtx(stub, "admin")
	registry := &CommandRegistry{}
	require.NoError(t, registry.Init(admin))
	require.NoError(t, registry.AddLanguage(admin, "en"))
	require.NoError(t, registry.AuthorizeProcessor(admin, "voice-relay"))
	return stub, registry
}

func TestHashCommandDeterministic(t *testing.T) {
	stub, registry := commandFixture(t)
	anyone := testCtx(stub, "anyone")

	first, err := registry.HashCommand(anyone, "en", "send {amount} to {recipient}")
	require.NoError(t, err)
	second, err := registry.HashCommand(anyone, "en", "send {amount} to {recipient}")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	other, err := registry.HashCommand(anyone, "en", "repay my loan")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	_, err = registry.HashCommand(anyone, "es", "envia {amount} a {recipient}")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestRegisterActionLifecycle(t *testing.T) {
	stub, registry := commandFixture(t)
	admin := testCtx(stub, "admin")

	hash, err := registry.HashCommand(admin, "en", "borrow {amount}")
	require.NoError(t, err)

	err = registry.RegisterAction(testCtx(stub, "mallory"), hash, "LendingLedger", "Borrow", "borrow funds")
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))

	err = registry.RegisterAction(admin, "not-a-hash", "LendingLedger", "Borrow", "borrow funds")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	require.NoError(t, registry.RegisterAction(admin, hash, "LendingLedger", "Borrow", "borrow funds"))

	// Re-registering an active hash is rejected.
	err = registry.RegisterAction(admin, hash, "LendingLedger", "Borrow", "duplicate")
	require.Error(t, err)
	assert.Equal(t, KindState, KindOf(err))

	require.NoError(t, registry.UpdateAction(admin, hash, "LendingLedger", "RepayPreview", "quote repayment"))

	action, err := registry.GetAction(testCtx(stub, "anyone"), hash)
	require.NoError(t, err)
	assert.Equal(t, "RepayPreview", action.Operation)
	assert.True(t, action.Active)

	require.NoError(t, registry.DeactivateAction(admin, hash))
	err = registry.UpdateAction(admin, hash, "LendingLedger", "Borrow", "stale")
	require.Error(t, err)
	assert.Equal(t, KindState, KindOf(err))

	// The record survives deactivation, and the hash may be re-registered.
	action, err = registry.GetAction(testCtx(stub, "anyone"), hash)
	require.NoError(t, err)
	assert.False(t, action.Active)
	require.NoError(t, registry.RegisterAction(admin, hash, "LendingLedger", "Borrow", "borrow funds"))
}

func TestResolveAuthorization(t *testing.T) {
	stub, registry := commandFixture(t)
	admin := testCtx(stub, "admin")

	hash, err := registry.HashCommand(admin, "en", "check my balance")
	require.NoError(t, err)
	require.NoError(t, registry.RegisterAction(admin, hash, "LendingLedger", "GetBalance", "read balance"))

	_, err = registry.Resolve(testCtx(stub, "random-caller"), hash)
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))

	action, err := registry.Resolve(testCtx(stub, "voice-relay"), hash)
	require.NoError(t, err)
	assert.Equal(t, "LendingLedger", action.Target)
	assert.Equal(t, "GetBalance", action.Operation)

	require.NoError(t, registry.DeactivateAction(admin, hash))
	_, err = registry.Resolve(testCtx(stub, "voice-relay"), hash)
	require.Error(t, err)
	assert.Equal(t, KindState, KindOf(err))

	require.NoError(t, registry.RevokeProcessor(admin, "voice-relay"))
	_, err = registry.Resolve(testCtx(stub, "voice-relay"), hash)
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))
}

func TestLanguageToggle(t *testing.T) {
	stub, registry := commandFixture(t)
	admin := testCtx(stub, "admin")

	err := registry.AddLanguage(admin, "en")
	require.Error(t, err)
	assert.Equal(t, KindState, KindOf(err))

	require.NoError(t, registry.RemoveLanguage(admin, "en"))
	err = registry.RemoveLanguage(admin, "en")
	require.Error(t, err)
	assert.Equal(t, KindState, KindOf(err))

	_, err = registry.HashCommand(testCtx(stub, "anyone"), "en", "deposit {amount}")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}
