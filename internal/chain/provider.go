package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github/fastauth/go-migrate/internal/rpc"
)

// ErrAccessKeyNotFound signals that the queried account does not hold the
// public key. This is a recoverable business condition for callers, not an
// infrastructure fault, and is never retried.
var ErrAccessKeyNotFound = errors.New("access key not found on account")

// FailureError 交易已执行但链上状态为失败；不可重试，保留哈希与失败详情供审计
type FailureError struct {
	TransactionHash string
	Failure         json.RawMessage
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("transaction %s failed on chain: %s", e.TransactionHash, string(e.Failure))
}

// Terminal marks the error as non-retryable for the job queue.
func (e *FailureError) Terminal() bool { return true }

// ExecutionStatus 交易执行状态（SuccessValue / SuccessReceiptId / Failure 三选一）
type ExecutionStatus struct {
	SuccessValue     *string         `json:"SuccessValue,omitempty"`
	SuccessReceiptID *string         `json:"SuccessReceiptId,omitempty"`
	Failure          json.RawMessage `json:"Failure,omitempty"`
}

// Failed reports whether the transaction executed but did not succeed.
func (s ExecutionStatus) Failed() bool {
	return len(s.Failure) > 0
}

// ExecutionOutcome 广播后的执行结果
type ExecutionOutcome struct {
	TransactionHash string
	Status          ExecutionStatus
}

// Provider 链访问层：账户/密钥/区块查询与交易广播
type Provider interface {
	// AccessKeyNonce returns the current nonce of (account, publicKey).
	// Returns ErrAccessKeyNotFound when the account does not hold the key.
	AccessKeyNonce(ctx context.Context, accountID string, publicKey PublicKey) (uint64, error)

	// HasFullAccessKey reports whether the account holds publicKey with
	// full-access permission.
	HasFullAccessKey(ctx context.Context, accountID string, publicKey PublicKey) (bool, error)

	// AccountsByPublicKey reverse-looks-up the accounts controlled by the
	// given public key.
	AccountsByPublicKey(ctx context.Context, publicKey PublicKey) ([]string, error)

	// RecentBlockHash returns the hash of the latest final block.
	RecentBlockHash(ctx context.Context) ([32]byte, error)

	// MaxBlockHeight returns the current height plus a fixed safety margin,
	// used to bound delegate-action validity.
	MaxBlockHeight(ctx context.Context) (uint64, error)

	// CallFunction performs a read-only contract view call with JSON args.
	CallFunction(ctx context.Context, contractID, method string, args any) ([]byte, error)

	// BroadcastTransaction submits a signed transaction and waits for
	// execution.
	BroadcastTransaction(ctx context.Context, signed *SignedTransaction) (*ExecutionOutcome, error)
}

type provider struct {
	rpc             *rpc.Client
	accountIndexURL string
	http            *http.Client
	blockMargin     uint64
}

// NewProvider creates the chain provider on top of the pooled JSON-RPC
// client. accountIndexURL is the base URL of the public-key account index.
func NewProvider(client *rpc.Client, accountIndexURL string, blockMargin uint64, timeout time.Duration) Provider {
	return &provider{
		rpc:             client,
		accountIndexURL: strings.TrimSuffix(accountIndexURL, "/"),
		http:            &http.Client{Timeout: timeout},
		blockMargin:     blockMargin,
	}
}

type viewAccessKeyResult struct {
	Nonce      uint64          `json:"nonce"`
	Permission json.RawMessage `json:"permission"`
	Error      string          `json:"error"`
}

func (p *provider) viewAccessKey(ctx context.Context, accountID string, publicKey PublicKey) (*viewAccessKeyResult, error) {
	params := map[string]any{
		"request_type": "view_access_key",
		"finality":     "final",
		"account_id":   accountID,
		"public_key":   publicKey.String(),
	}

	var result viewAccessKeyResult
	if err := p.rpc.Call(ctx, "query", params, &result); err != nil {
		var rpcErr *rpc.Error
		if errors.As(err, &rpcErr) && rpcErr.Cause.Name == "UNKNOWN_ACCESS_KEY" {
			return nil, errors.Wrapf(ErrAccessKeyNotFound, "account %s, key %s", accountID, publicKey)
		}

		return nil, errors.Wrapf(err, "failed to view access key of %s", accountID)
	}

	// Older endpoints report a missing key inside the result body instead
	// of an RPC handler error.
	if result.Error != "" {
		return nil, errors.Wrapf(ErrAccessKeyNotFound, "account %s, key %s: %s", accountID, publicKey, result.Error)
	}

	return &result, nil
}

func (p *provider) AccessKeyNonce(ctx context.Context, accountID string, publicKey PublicKey) (uint64, error) {
	result, err := p.viewAccessKey(ctx, accountID, publicKey)
	if err != nil {
		return 0, err
	}

	return result.Nonce, nil
}

func (p *provider) HasFullAccessKey(ctx context.Context, accountID string, publicKey PublicKey) (bool, error) {
	result, err := p.viewAccessKey(ctx, accountID, publicKey)
	if err != nil {
		if errors.Is(err, ErrAccessKeyNotFound) {
			return false, nil
		}

		return false, err
	}

	// Permission is either the string "FullAccess" or a FunctionCall object.
	var permission string
	if err := json.Unmarshal(result.Permission, &permission); err != nil {
		return false, nil
	}

	return permission == "FullAccess", nil
}

type accountIndexResult struct {
	AccountIDs []string `json:"account_ids"`
}

func (p *provider) AccountsByPublicKey(ctx context.Context, publicKey PublicKey) ([]string, error) {
	if p.accountIndexURL == "" {
		return nil, errors.New("account index URL is not configured")
	}

	endpoint := fmt.Sprintf("%s/v0/public_key/%s", p.accountIndexURL, url.PathEscape(publicKey.String()))

	var result accountIndexResult
	err := p.rpc.Policy().DoFixed(ctx, "account_index", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errors.Wrap(err, "failed to build account index request")
		}

		res, err := p.http.Do(req)
		if err != nil {
			return &rpc.TransportError{Endpoint: endpoint, Err: err}
		}
		defer func() { _ = res.Body.Close() }()

		raw, err := io.ReadAll(res.Body)
		if err != nil {
			return &rpc.TransportError{Endpoint: endpoint, Err: err}
		}

		if res.StatusCode == http.StatusTooManyRequests {
			return &rpc.RateLimitError{Endpoint: endpoint}
		}

		if res.StatusCode != http.StatusOK {
			return &rpc.ServerError{Endpoint: endpoint, Status: res.StatusCode, Body: string(raw)}
		}

		return errors.Wrap(json.Unmarshal(raw, &result), "failed to decode account index response")
	})
	if err != nil {
		return nil, err
	}

	return result.AccountIDs, nil
}

type blockResult struct {
	Header struct {
		Hash   string `json:"hash"`
		Height uint64 `json:"height"`
	} `json:"header"`
}

func (p *provider) latestBlock(ctx context.Context) (*blockResult, error) {
	var result blockResult
	if err := p.rpc.Call(ctx, "block", map[string]any{"finality": "final"}, &result); err != nil {
		return nil, errors.Wrap(err, "failed to query latest block")
	}

	return &result, nil
}

func (p *provider) RecentBlockHash(ctx context.Context) ([32]byte, error) {
	block, err := p.latestBlock(ctx)
	if err != nil {
		return [32]byte{}, err
	}

	raw, err := base58.Decode(block.Header.Hash)
	if err != nil {
		return [32]byte{}, errors.Wrapf(err, "failed to decode block hash %q", block.Header.Hash)
	}

	if len(raw) != 32 {
		return [32]byte{}, errors.Errorf("block hash %q has %d bytes, want 32", block.Header.Hash, len(raw))
	}

	var hash [32]byte
	copy(hash[:], raw)

	return hash, nil
}

func (p *provider) MaxBlockHeight(ctx context.Context) (uint64, error) {
	block, err := p.latestBlock(ctx)
	if err != nil {
		return 0, err
	}

	return block.Header.Height + p.blockMargin, nil
}

type callFunctionResult struct {
	Result []int    `json:"result"`
	Logs   []string `json:"logs"`
}

func (p *provider) CallFunction(ctx context.Context, contractID, method string, args any) ([]byte, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal args for %s.%s", contractID, method)
	}

	params := map[string]any{
		"request_type": "call_function",
		"finality":     "final",
		"account_id":   contractID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(argsJSON),
	}

	var result callFunctionResult
	if err := p.rpc.Call(ctx, "query", params, &result); err != nil {
		return nil, errors.Wrapf(err, "failed to call %s.%s", contractID, method)
	}

	out := make([]byte, len(result.Result))
	for i, b := range result.Result {
		out[i] = byte(b)
	}

	return out, nil
}

type sendTxResult struct {
	Transaction struct {
		Hash string `json:"hash"`
	} `json:"transaction"`
	Status ExecutionStatus `json:"status"`
}

func (p *provider) BroadcastTransaction(ctx context.Context, signed *SignedTransaction) (*ExecutionOutcome, error) {
	encoded, err := signed.Base64()
	if err != nil {
		return nil, err
	}

	params := map[string]any{
		"signed_tx_base64": encoded,
		"wait_until":       "EXECUTED_OPTIMISTIC",
	}

	var result sendTxResult
	if err := p.rpc.Call(ctx, "send_tx", params, &result); err != nil {
		return nil, errors.Wrap(err, "failed to broadcast transaction")
	}

	return &ExecutionOutcome{
		TransactionHash: result.Transaction.Hash,
		Status:          result.Status,
	}, nil
}
