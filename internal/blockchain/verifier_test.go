package blockchain

import (
	"testing"

	"presale-referral/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewVerifier(t *testing.T) {
	log := zap.NewNop()

	v, err := NewVerifier(config.ChainConfig{Network: "solana-devnet"}, log)
	require.NoError(t, err)
	sol, ok := v.(*SolanaVerifier)
	require.True(t, ok)
	assert.Equal(t, "devnet", sol.network)

	v, err = NewVerifier(config.ChainConfig{Network: "evm", RPCURL: "http://localhost:8545"}, log)
	require.NoError(t, err)
	_, ok = v.(*EVMVerifier)
	assert.True(t, ok)

	v, err = NewVerifier(config.ChainConfig{Network: "evm"}, log)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = NewVerifier(config.ChainConfig{Network: "none"}, log)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = NewVerifier(config.ChainConfig{Network: "bitcoin"}, log)
	assert.Error(t, err)
}

func TestValidateWalletAddress(t *testing.T) {
	assert.True(t, ValidateWalletAddress("11111111111111111111111111111111"))
	assert.False(t, ValidateWalletAddress("not-a-wallet"))
}
