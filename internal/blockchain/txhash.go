package blockchain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/mr-tron/base58"
)

var evmTxHashPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

const solanaSignatureLen = 64

// ValidateTxHash accepts an EVM hash (0x + 64 hex) or a base58 Solana signature
func ValidateTxHash(txHash string) bool {
	if evmTxHashPattern.MatchString(txHash) {
		return true
	}
	if len(txHash) < 64 || len(txHash) > 90 {
		return false
	}
	raw, err := base58.Decode(txHash)
	if err != nil {
		return false
	}
	return len(raw) == solanaSignatureLen
}

// NewPayoutReference returns a fresh 0x-prefixed 32 byte reference identifying a
// claim to the payout operator. It is never looked up on chain.
func NewPayoutReference() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate payout reference: %w", err)
	}
	return "0x" + hex.EncodeToString(b), nil
}
