package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"solana-lending-index/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient talks JSON-RPC 2.0 to a Solana node. Transient failures are
// retried in a bounded loop with capped exponential backoff; when attempts
// are exhausted the last failure surfaces as a TransientRPCError so callers
// never mistake exhaustion for a permanent condition.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.client.Do(req)
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			return classifyRPCError(method, rpcResp.Error)
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return &TransientRPCError{Method: method, Err: lastErr}
}

// classifyRPCError sorts node-level errors into the retry taxonomy.
func classifyRPCError(method string, e *rpcError) error {
	switch e.Code {
	case codeSlotSkipped, codeLongTermStorageSlot:
		return ErrSlotSkipped
	case codeBlockNotAvailable, codeNodeBehind:
		return &TransientRPCError{Method: method, Err: e}
	}
	return &PermanentRPCError{Method: method, Code: e.Code, Err: e}
}

// GetSignaturesForAddress retrieves up to limit signatures for an address,
// newest first, starting before the given signature when non-empty.
func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, limit int, before string) ([]SignatureInfo, error) {
	config := map[string]interface{}{
		"commitment": "finalized",
	}
	if limit > 0 {
		config["limit"] = limit
	}
	if before != "" {
		config["before"] = before
	}

	var result []getSignaturesResult
	if err := c.call(ctx, "getSignaturesForAddress", []interface{}{address, config}, &result); err != nil {
		return nil, err
	}

	sigs := make([]SignatureInfo, len(result))
	for i, r := range result {
		sigs[i] = SignatureInfo{
			Signature: r.Signature,
			Slot:      r.Slot,
			BlockTime: r.BlockTime,
			Memo:      r.Memo,
		}
		if r.Err != nil {
			body := string(r.Err)
			sigs[i].Err = &body
		}
	}

	return sigs, nil
}

// getSignaturesResult is the raw RPC response item for getSignaturesForAddress.
type getSignaturesResult struct {
	Signature string          `json:"signature"`
	Slot      int64           `json:"slot"`
	BlockTime *int64          `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
	Memo      *string         `json:"memo"`
}

// GetBlock retrieves a block with full transaction bodies by slot number.
// Returns ErrSlotSkipped when the slot holds no block.
func (c *HTTPClient) GetBlock(ctx context.Context, slot int64) (*Block, error) {
	params := []interface{}{
		slot,
		map[string]interface{}{
			"encoding":                       "json",
			"transactionDetails":             "full",
			"commitment":                     "finalized",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result getBlockResult
	if err := c.call(ctx, "getBlock", params, &result); err != nil {
		return nil, err
	}

	block := &Block{
		Slot:      slot,
		BlockTime: result.BlockTime,
	}

	for _, wrapper := range result.Transactions {
		tx := Transaction{
			Slot: slot,
			Raw:  wrapper.Raw,
		}
		if result.BlockTime != nil {
			tx.BlockTime = *result.BlockTime
		}
		if len(wrapper.Transaction.Signatures) > 0 {
			tx.Signature = wrapper.Transaction.Signatures[0]
		}
		if wrapper.Transaction.Message != nil {
			tx.AccountKeys = wrapper.Transaction.Message.AccountKeys
		}
		block.Transactions = append(block.Transactions, tx)
	}

	return block, nil
}

// getBlockResult is the raw RPC response for getBlock. Each transaction
// wrapper keeps its raw JSON alongside the decoded envelope so the full
// encoded body can be persisted untouched.
type getBlockResult struct {
	BlockTime    *int64              `json:"blockTime"`
	Transactions []getBlockTxWrapper `json:"transactions"`
}

type getBlockTxWrapper struct {
	Transaction getBlockTx `json:"transaction"`
	Raw         json.RawMessage
}

func (w *getBlockTxWrapper) UnmarshalJSON(data []byte) error {
	type alias struct {
		Transaction getBlockTx `json:"transaction"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	w.Transaction = a.Transaction
	w.Raw = append([]byte(nil), data...)
	return nil
}

type getBlockTx struct {
	Signatures []string       `json:"signatures"`
	Message    *getBlockTxMsg `json:"message"`
}

type getBlockTxMsg struct {
	AccountKeys []string `json:"accountKeys"`
}

// GetTransaction retrieves an encoded transaction by signature.
// Returns nil if the transaction is unknown to the node.
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     "finalized",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var raw json.RawMessage
	if err := c.call(ctx, "getTransaction", params, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var result struct {
		Slot        int64  `json:"slot"`
		BlockTime   *int64 `json:"blockTime"`
		Transaction struct {
			Signatures []string       `json:"signatures"`
			Message    *getBlockTxMsg `json:"message"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}

	tx := &Transaction{
		Signature: signature,
		Slot:      result.Slot,
		Raw:       raw,
	}
	if result.BlockTime != nil {
		tx.BlockTime = *result.BlockTime
	}
	if result.Transaction.Message != nil {
		tx.AccountKeys = result.Transaction.Message.AccountKeys
	}

	return tx, nil
}

// GetFinalizedSlot retrieves the latest finalized slot.
func (c *HTTPClient) GetFinalizedSlot(ctx context.Context) (int64, error) {
	params := []interface{}{
		map[string]interface{}{"commitment": "finalized"},
	}
	var result int64
	if err := c.call(ctx, "getSlot", params, &result); err != nil {
		return 0, err
	}
	return result, nil
}
