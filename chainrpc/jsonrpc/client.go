// Package jsonrpc is the concrete chainrpc.DaemonClient implementation: a
// JSON-RPC-over-HTTP client for a monerod daemon's restricted RPC surface
// (get_info, get_block_headers_range, get_block, get_transactions,
// get_transaction_pool), with an optional RPC login sent as HTTP Basic
// credentials. HTTP digest challenge-response is not performed.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/xmrgateway/xmrgateway/chainrpc"
)

// Client is a chainrpc.DaemonClient backed by HTTP JSON-RPC calls to a
// monerod instance.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithDigestAuth sets the RPC login username and password. They are sent
// on every request as HTTP Basic credentials; HTTP digest
// challenge-response is not implemented.
func WithDigestAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithHTTPClient overrides the default HTTP client (a 30-second timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New returns a Client talking to the daemon at baseURL (e.g.
// "http://127.0.0.1:18081").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("jsonrpc: daemon returned error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	url := c.baseURL + "/json_rpc"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		httpReq.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("jsonrpc: request to %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("jsonrpc: decoding response to %s: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// callPlain hits a daemon "other" (non-JSON-RPC) endpoint such as
// /get_transactions, which monerod exposes as its own plain HTTP+JSON
// route rather than under /json_rpc.
func (c *Client) callPlain(ctx context.Context, path string, reqBody, out interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		httpReq.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("jsonrpc: request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(out)
}

type getInfoResult struct {
	Height uint64 `json:"height"`
}

// GetHeight implements chainrpc.DaemonClient.
func (c *Client) GetHeight(ctx context.Context) (uint64, error) {
	var res getInfoResult
	if err := c.call(ctx, "get_info", nil, &res); err != nil {
		return 0, err
	}
	return res.Height, nil
}

type blockHeader struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}

type getBlockHeadersRangeParams struct {
	StartHeight uint64 `json:"start_height"`
	EndHeight   uint64 `json:"end_height"`
}

type getBlockHeadersRangeResult struct {
	Headers []blockHeader `json:"headers"`
}

// GetBlockHeadersRange implements chainrpc.DaemonClient.
func (c *Client) GetBlockHeadersRange(ctx context.Context, from, to uint64) ([]chainrpc.BlockHeader, error) {
	var res getBlockHeadersRangeResult
	err := c.call(ctx, "get_block_headers_range", getBlockHeadersRangeParams{
		StartHeight: from,
		EndHeight:   to,
	}, &res)
	if err != nil {
		return nil, err
	}

	out := make([]chainrpc.BlockHeader, len(res.Headers))
	for i, h := range res.Headers {
		hash, err := decodeHash(h.Hash)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc: header at height %d: %w", h.Height, err)
		}
		out[i] = chainrpc.BlockHeader{Height: h.Height, Hash: hash}
	}
	return out, nil
}

type getBlockParams struct {
	Height uint64 `json:"height"`
}

type getBlockResult struct {
	Blob     string `json:"blob"`
	JSON     string `json:"json"`
	BlockHdr blockHeader `json:"block_header"`
}

type blockJSON struct {
	MinerTx  json.RawMessage `json:"miner_tx"`
	TxHashes []string        `json:"tx_hashes"`
}

type getTransactionsParams struct {
	TxsHashes []string `json:"txs_hashes"`
	Decode    bool     `json:"decode_as_json"`
}

type getTransactionsResult struct {
	Txs []txEntry `json:"txs"`
}

type txEntry struct {
	TxHash   string `json:"tx_hash"`
	AsJSON   string `json:"as_json"`
}

// GetBlock implements chainrpc.DaemonClient.
func (c *Client) GetBlock(ctx context.Context, height uint64) (chainrpc.Block, error) {
	var res getBlockResult
	if err := c.call(ctx, "get_block", getBlockParams{Height: height}, &res); err != nil {
		return chainrpc.Block{}, err
	}

	hash, err := decodeHash(res.BlockHdr.Hash)
	if err != nil {
		return chainrpc.Block{}, err
	}

	var bj blockJSON
	if err := json.Unmarshal([]byte(res.JSON), &bj); err != nil {
		return chainrpc.Block{}, fmt.Errorf("jsonrpc: parsing block json at height %d: %w", height, err)
	}

	block := chainrpc.Block{Height: height, Hash: hash}

	if len(bj.TxHashes) > 0 {
		var txRes getTransactionsResult
		err := c.callPlain(ctx, "/get_transactions", getTransactionsParams{
			TxsHashes: bj.TxHashes,
			Decode:    true,
		}, &txRes)
		if err != nil {
			return chainrpc.Block{}, fmt.Errorf("jsonrpc: fetching transactions for block %d: %w", height, err)
		}

		for _, entry := range txRes.Txs {
			tx, err := parseTransaction(entry.TxHash, entry.AsJSON)
			if err != nil {
				log.Warnf("jsonrpc: skipping unparseable transaction %s in block %d: %v",
					entry.TxHash, height, err)
				continue
			}
			block.Txs = append(block.Txs, tx)
		}
	}

	return block, nil
}

type getTransactionPoolResult struct {
	Transactions []poolTx `json:"transactions"`
}

type poolTx struct {
	IDHash string `json:"id_hash"`
}

// GetTransactionPool implements chainrpc.DaemonClient.
func (c *Client) GetTransactionPool(ctx context.Context) ([]chainrpc.TxpoolEntry, error) {
	var res getTransactionPoolResult
	if err := c.callPlain(ctx, "/get_transaction_pool", struct{}{}, &res); err != nil {
		return nil, fmt.Errorf("jsonrpc: fetching transaction pool: %w", err)
	}

	if len(res.Transactions) == 0 {
		return nil, nil
	}

	hashes := make([]string, len(res.Transactions))
	for i, t := range res.Transactions {
		hashes[i] = t.IDHash
	}

	var txRes getTransactionsResult
	err := c.callPlain(ctx, "/get_transactions", getTransactionsParams{
		TxsHashes: hashes,
		Decode:    true,
	}, &txRes)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: fetching pooled transaction bodies: %w", err)
	}

	entries := make([]chainrpc.TxpoolEntry, 0, len(txRes.Txs))
	for _, e := range txRes.Txs {
		tx, err := parseTransaction(e.TxHash, e.AsJSON)
		if err != nil {
			log.Warnf("jsonrpc: skipping unparseable pooled transaction %s: %v", e.TxHash, err)
			continue
		}
		entries = append(entries, chainrpc.TxpoolEntry{Tx: tx})
	}
	return entries, nil
}

func decodeHash(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("jsonrpc: expected 32-byte hash, got %d bytes", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
