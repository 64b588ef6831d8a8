package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// RPCRequest represents a JSON-RPC request
type RPCRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// RPCResponse represents a JSON-RPC response
type RPCResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type txReceipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	Status          string `json:"status"`
}

// EVMVerifier verifies purchase transactions through eth_getTransactionReceipt
type EVMVerifier struct {
	rpcURL     string
	httpClient *http.Client
	log        *zap.Logger
}

// NewEVMVerifier creates a verifier for an EVM JSON-RPC endpoint
func NewEVMVerifier(rpcURL string, log *zap.Logger) *EVMVerifier {
	return &EVMVerifier{
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: defaultRPCTimeout},
		log:        log,
	}
}

// VerifyTransaction fetches the receipt. A missing receipt means the tx is not mined yet.
func (e *EVMVerifier) VerifyTransaction(ctx context.Context, txHash string) (*TxVerification, error) {
	resp, err := e.rpcCall(ctx, "eth_getTransactionReceipt", []interface{}{txHash})
	if err != nil {
		return nil, err
	}

	result := &TxVerification{TxHash: txHash}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return result, nil
	}

	var receipt txReceipt
	if err := json.Unmarshal(resp.Result, &receipt); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}

	block, err := parseHexInt(receipt.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("invalid block number %q: %w", receipt.BlockNumber, err)
	}

	result.Found = true
	result.BlockNumber = block
	result.Success = receipt.Status == "0x1"

	e.log.Debug("receipt fetched",
		zap.String("tx_hash", txHash),
		zap.Int64("block_number", block),
		zap.Bool("success", result.Success),
	)

	return result, nil
}

// rpcCall makes a JSON-RPC call to the node
func (e *EVMVerifier) rpcCall(ctx context.Context, method string, params []interface{}) (*RPCResponse, error) {
	request := RPCRequest{
		Jsonrpc: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}

	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.rpcURL, strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc endpoint returned status %d", resp.StatusCode)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, fmt.Errorf("RPC error: %s (code: %d)", rpcResp.Error.Message, rpcResp.Error.Code)
	}

	return &rpcResp, nil
}

func parseHexInt(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(s, "0x"), 16, 64)
}
