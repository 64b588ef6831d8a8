package blockchain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"presale-referral/internal/config"

	"go.uber.org/zap"
)

// TxVerification is what the chain reports for a transaction hash
type TxVerification struct {
	TxHash      string `json:"txHash"`
	Found       bool   `json:"found"`
	Success     bool   `json:"success"`
	BlockNumber int64  `json:"blockNumber"`
}

// Verifier confirms that a transaction exists on-chain and reports its block
type Verifier interface {
	VerifyTransaction(ctx context.Context, txHash string) (*TxVerification, error)
}

const defaultRPCTimeout = 30 * time.Second

// NewVerifier selects a verifier for the configured network. It returns nil
// when verification is not configured.
func NewVerifier(cfg config.ChainConfig, log *zap.Logger) (Verifier, error) {
	network := strings.ToLower(cfg.Network)

	switch {
	case strings.HasPrefix(network, "solana"):
		return NewSolanaVerifier(strings.TrimPrefix(strings.TrimPrefix(network, "solana"), "-"), cfg.RPCURL, log), nil
	case network == "evm":
		if cfg.RPCURL == "" {
			log.Warn("CHAIN_RPC_URL not set, on-chain verification disabled", zap.String("network", network))
			return nil, nil
		}
		return NewEVMVerifier(cfg.RPCURL, log), nil
	case network == "" || network == "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported chain network %q", cfg.Network)
	}
}
