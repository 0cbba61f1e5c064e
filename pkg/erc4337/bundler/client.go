// Package bundler provides a stateless client for EIP-4337 bundler RPC
// endpoints, plus the classification of bundler failures into a closed set of
// typed causes.
package bundler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-resty/resty/v2"

	"github.com/SouravInsights/permissionless-go/metrics"
	"github.com/SouravInsights/permissionless-go/pkg/erc4337/userop"
)

// BundlerClient talks to an EIP-4337 bundler over JSON-RPC. The write path
// (eth_sendUserOperation, eth_estimateUserOperationGas) goes through a plain
// HTTP POST because several bundlers reject the batched framing go-ethereum's
// rpc.Client produces; read methods use the rpc.Client directly.
type BundlerClient struct {
	client *rpc.Client
	http   *resty.Client
	url    string
}

// NewBundlerClient creates a client connected to the given URL.
func NewBundlerClient(url string) (*BundlerClient, error) {
	c, err := rpc.DialHTTP(url)
	if err != nil {
		return nil, fmt.Errorf("error creating bundler client: %w", err)
	}

	httpClient := resty.New().
		SetBaseURL(url).
		SetHeader("Content-Type", "application/json")

	return &BundlerClient{client: c, http: httpClient, url: url}, nil
}

// Close closes the underlying RPC connection.
func (bc *BundlerClient) Close() {
	bc.client.Close()
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *jsonrpcError) toRaw() *RawBundlerError {
	raw := &RawBundlerError{Code: e.Code, Message: e.Message}
	if e.Data != nil {
		if s, ok := e.Data.(string); ok {
			raw.Data = s
		} else if b, err := json.Marshal(e.Data); err == nil {
			raw.Data = string(b)
		}
	}
	return raw
}

// callHTTP performs a single JSON-RPC call over raw HTTP and decodes the
// result into out. JSON-RPC error objects come back as classified
// UserOperationError values.
func (bc *BundlerClient) callHTTP(ctx context.Context, out any, method string, params ...any) error {
	if params == nil {
		params = []any{}
	}
	body := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}

	resp, err := bc.http.R().SetContext(ctx).SetBody(body).Post("")
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%s: HTTP %d: %s", method, resp.StatusCode(), resp.String())
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *jsonrpcError   `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("%s: failed to parse JSON response: %w", method, err)
	}

	if envelope.Error != nil {
		classified := Classify(envelope.Error.toRaw())
		metrics.IncClassifiedFailure(classified.Kind.String())
		return classified
	}
	if envelope.Result == nil {
		return fmt.Errorf("%s: missing result in JSON-RPC response", method)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

// SendUserOperation submits a signed UserOperation and returns its userOpHash.
func (bc *BundlerClient) SendUserOperation(
	ctx context.Context,
	op userop.UserOperation,
	entrypoint common.Address,
) (string, error) {
	var userOpHash string
	err := bc.callHTTP(ctx, &userOpHash, "eth_sendUserOperation", op, entrypoint.Hex())
	if err != nil {
		metrics.IncBundlerCall("eth_sendUserOperation", "error")
		return "", err
	}

	metrics.IncBundlerCall("eth_sendUserOperation", "ok")
	metrics.IncUserOpSent()
	return userOpHash, nil
}

// EstimateUserOperationGas asks the bundler to simulate the operation and
// return gas limits. The signature field only needs the right length; gas
// fields may be zero. override follows eth_call state-override semantics.
// https://eips.ethereum.org/EIPS/eip-4337#rpc-methods-eth-namespace
func (bc *BundlerClient) EstimateUserOperationGas(
	ctx context.Context,
	op userop.UserOperation,
	entrypoint common.Address,
	override map[string]any,
) (*GasEstimation, error) {
	if override == nil {
		override = map[string]any{}
	}

	var wire gasEstimationWire
	err := bc.callHTTP(ctx, &wire, "eth_estimateUserOperationGas", op, entrypoint.Hex(), override)
	if err != nil {
		metrics.IncBundlerCall("eth_estimateUserOperationGas", "error")
		return nil, err
	}

	metrics.IncBundlerCall("eth_estimateUserOperationGas", "ok")
	return wire.toEstimation(), nil
}

// UserOperationReceipt is the bundler's view of an executed operation. The
// enclosing transaction receipt is kept raw since its shape varies between
// bundler implementations.
type UserOperationReceipt struct {
	UserOpHash    common.Hash     `json:"userOpHash"`
	Sender        common.Address  `json:"sender"`
	Nonce         *hexutil.Big    `json:"nonce"`
	Paymaster     common.Address  `json:"paymaster"`
	ActualGasCost *hexutil.Big    `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big    `json:"actualGasUsed"`
	Success       bool            `json:"success"`
	Reason        string          `json:"reason"`
	Receipt       json.RawMessage `json:"receipt"`
}

// GetUserOperationReceipt fetches the receipt of a UserOperation. Returns
// (nil, nil) while the operation is still pending.
func (bc *BundlerClient) GetUserOperationReceipt(ctx context.Context, hash string) (*UserOperationReceipt, error) {
	var receipt *UserOperationReceipt
	if err := bc.client.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, ClassifyError(err)
	}
	return receipt, nil
}

// GetUserOperationByHash fetches a UserOperation by its hash. The result is
// left raw: bundlers wrap the op with inclusion metadata in varying shapes.
func (bc *BundlerClient) GetUserOperationByHash(ctx context.Context, hash string) (json.RawMessage, error) {
	var result json.RawMessage
	if err := bc.client.CallContext(ctx, &result, "eth_getUserOperationByHash", hash); err != nil {
		return nil, ClassifyError(err)
	}
	return result, nil
}

// SupportedEntryPoints lists the EntryPoint contracts the bundler accepts.
func (bc *BundlerClient) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var entrypoints []common.Address
	if err := bc.client.CallContext(ctx, &entrypoints, "eth_supportedEntryPoints"); err != nil {
		return nil, ClassifyError(err)
	}
	return entrypoints, nil
}

// SendBundleNow asks a development bundler to build a bundle immediately
// instead of waiting for its bundling interval. Production bundlers reject
// the method; callers treat the error as non-fatal.
func (bc *BundlerClient) SendBundleNow(ctx context.Context) error {
	var result string
	return bc.client.CallContext(ctx, &result, "debug_bundler_sendBundleNow")
}
