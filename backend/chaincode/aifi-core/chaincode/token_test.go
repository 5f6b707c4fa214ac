package chaincode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintIssuerOnly(t *testing.T) {
	stub := newMockStub()
	token := &TokenBank{}
	require.NoError(t, token.Init(testCtx(stub, "admin")))

	err := token.Mint(testCtx(stub, "mallory"), asset, "mallory", 1000)
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))

	require.NoError(t, token.Mint(testCtx(stub, "admin"), asset, "alice", 1000))
	supply, err := token.TotalSupply(testCtx(stub, "anyone"), asset)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), supply)
}

func TestTokenTransfer(t *testing.T) {
	stub := newMockStub()
	token := &TokenBank{}
	admin := testCtx(stub, "admin")
	require.NoError(t, token.Init(admin))
	require.NoError(t, token.Mint(admin, asset, "alice", 300))

	require.NoError(t, token.Transfer(testCtx(stub, "alice"), asset, "bob", 120))

	aliceBal, err := token.BalanceOf(admin, asset, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(180), aliceBal)
	bobBal, err := token.BalanceOf(admin, asset, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(120), bobBal)

	err = token.Transfer(testCtx(stub, "alice"), asset, "bob", 500)
	require.Error(t, err)
	assert.Equal(t, KindTransfer, KindOf(err))
}
