package blockchain

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// SolanaVerifier verifies purchase signatures against a Solana cluster
type SolanaVerifier struct {
	rpcClient *rpc.Client
	network   string
	log       *zap.Logger
}

// NewSolanaVerifier creates a new Solana verifier. An explicit rpcURL wins over the network default.
func NewSolanaVerifier(network, rpcURL string, log *zap.Logger) *SolanaVerifier {
	if rpcURL == "" {
		switch network {
		case "mainnet-beta", "mainnet":
			rpcURL = rpc.MainNetBeta_RPC
		case "testnet":
			rpcURL = rpc.TestNet_RPC
		default:
			rpcURL = rpc.DevNet_RPC
		}
	}

	return &SolanaVerifier{
		rpcClient: rpc.New(rpcURL),
		network:   network,
		log:       log,
	}
}

// VerifyTransaction looks up the signature status. The slot is reported as the block number.
func (s *SolanaVerifier) VerifyTransaction(ctx context.Context, txHash string) (*TxVerification, error) {
	sig, err := solana.SignatureFromBase58(txHash)
	if err != nil {
		return nil, fmt.Errorf("invalid solana signature: %w", err)
	}

	status, err := s.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}

	result := &TxVerification{TxHash: txHash}
	if status == nil || len(status.Value) == 0 || status.Value[0] == nil {
		return result, nil
	}

	st := status.Value[0]
	confirmed := st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		st.ConfirmationStatus == rpc.ConfirmationStatusFinalized
	if !confirmed {
		return result, nil
	}

	result.Found = true
	result.BlockNumber = int64(st.Slot)
	result.Success = st.Err == nil
	if !result.Success {
		s.log.Warn("transaction failed on-chain",
			zap.String("tx_hash", txHash),
			zap.Any("error", st.Err),
		)
	}

	return result, nil
}

// ValidateWalletAddress validates a Solana wallet address format
func ValidateWalletAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}
