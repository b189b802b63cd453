package jsonrpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeDaemon is a minimal monerod stand-in serving exactly the routes this
// package calls, with hand-built response bodies.
type fakeDaemon struct {
	height         uint64
	blockJSON      string
	blockHeader    blockHeader
	txHashes       []string
	txBodies       map[string]string // hash -> decode_as_json body
	poolHashes     []string
}

func (f *fakeDaemon) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/json_rpc", func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		switch req.Method {
		case "get_info":
			writeResult(w, getInfoResult{Height: f.height})
		case "get_block_headers_range":
			writeResult(w, getBlockHeadersRangeResult{Headers: []blockHeader{f.blockHeader}})
		case "get_block":
			writeResult(w, getBlockResult{
				JSON:     f.blockJSON,
				BlockHdr: f.blockHeader,
			})
		default:
			http.Error(w, "unknown method", http.StatusBadRequest)
		}
	})

	mux.HandleFunc("/get_transactions", func(w http.ResponseWriter, r *http.Request) {
		var req getTransactionsParams
		json.NewDecoder(r.Body).Decode(&req)

		var res getTransactionsResult
		for _, h := range req.TxsHashes {
			res.Txs = append(res.Txs, txEntry{TxHash: h, AsJSON: f.txBodies[h]})
		}
		json.NewEncoder(w).Encode(res)
	})

	mux.HandleFunc("/get_transaction_pool", func(w http.ResponseWriter, r *http.Request) {
		var res getTransactionPoolResult
		for _, h := range f.poolHashes {
			res.Transactions = append(res.Transactions, poolTx{IDHash: h})
		}
		json.NewEncoder(w).Encode(res)
	})

	return mux
}

func writeResult(w http.ResponseWriter, v interface{}) {
	b, _ := json.Marshal(v)
	resp := rpcResponse{Result: b}
	json.NewEncoder(w).Encode(resp)
}

func TestGetHeight(t *testing.T) {
	fd := &fakeDaemon{height: 12345}
	srv := httptest.NewServer(fd.handler())
	defer srv.Close()

	c := New(srv.URL)
	h, err := c.GetHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(12345), h)
}

func TestGetBlockHeadersRange(t *testing.T) {
	hash := "aa" + zeroHex(62)
	fd := &fakeDaemon{blockHeader: blockHeader{Height: 10, Hash: hash}}
	srv := httptest.NewServer(fd.handler())
	defer srv.Close()

	c := New(srv.URL)
	headers, err := c.GetBlockHeadersRange(context.Background(), 10, 10)
	require.NoError(t, err)
	require.Len(t, headers, 1)
	require.Equal(t, uint64(10), headers[0].Height)
}

func TestGetBlockParsesTransactions(t *testing.T) {
	txHash := "bb" + zeroHex(62)
	pubKey := "11" + zeroHex(62)

	// extra: tag 0x01 (tx pubkey) followed by the 32-byte key.
	extraInts := append([]int{0x01}, hexToInts(pubKey)...)
	extraJSON, _ := json.Marshal(extraInts)

	txBody := `{
		"version": 2,
		"unlock_time": 0,
		"vin": [],
		"vout": [
			{"amount": 0, "target": {"tagged_key": {"key": "` + ("cc" + zeroHex(62)) + `", "view_tag": "05"}}}
		],
		"extra": ` + string(extraJSON) + `,
		"rct_signatures": {"type": 6, "ecdhInfo": [{"amount": "0102030405060708"}]}
	}`

	fd := &fakeDaemon{
		blockHeader: blockHeader{Height: 99, Hash: "dd" + zeroHex(62)},
		blockJSON:   `{"miner_tx": {}, "tx_hashes": ["` + txHash + `"]}`,
		txBodies:    map[string]string{txHash: txBody},
	}
	srv := httptest.NewServer(fd.handler())
	defer srv.Close()

	c := New(srv.URL)
	block, err := c.GetBlock(context.Background(), 99)
	require.NoError(t, err)
	require.Equal(t, uint64(99), block.Height)
	require.Len(t, block.Txs, 1)

	tx := block.Txs[0]
	require.Equal(t, hexToArray32(pubKey), tx.TxPubKey)
	require.Len(t, tx.Outputs, 1)
	require.True(t, tx.Outputs[0].RingCT)
	require.True(t, tx.Outputs[0].HasViewTag)
	require.Equal(t, byte(0x05), tx.Outputs[0].ViewTag)
	require.Equal(t, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, tx.Outputs[0].EncryptedAmount)
}

func TestGetTransactionPoolFetchesBodies(t *testing.T) {
	txHash := "ee" + zeroHex(62)
	txBody := `{
		"version": 1,
		"unlock_time": 0,
		"vin": [],
		"vout": [{"amount": 5000, "target": {"key": "` + ("ff" + zeroHex(62)) + `"}}],
		"extra": []
	}`

	fd := &fakeDaemon{
		poolHashes: []string{txHash},
		txBodies:   map[string]string{txHash: txBody},
	}
	srv := httptest.NewServer(fd.handler())
	defer srv.Close()

	c := New(srv.URL)
	entries, err := c.GetTransactionPool(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.False(t, entries[0].Tx.Outputs[0].RingCT)
	require.Equal(t, uint64(5000), entries[0].Tx.Outputs[0].ClearAmount)
}

func zeroHex(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = '0'
	}
	return string(out)
}

func hexToInts(s string) []int {
	raw, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	out := make([]int, len(raw))
	for i, b := range raw {
		out[i] = int(b)
	}
	return out
}

func hexToArray32(s string) [32]byte {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	copy(out[:], raw)
	return out
}
