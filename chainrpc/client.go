// Package chainrpc defines the narrow, read-only interface the Scanner Loop
// depends on to talk to a Monero daemon: current chain tip, block headers
// and bodies, and the transaction pool. It knows nothing about wallets or
// spending; per the governing design this gateway never custodies funds.
package chainrpc

import "context"

// Output is one transaction output as the daemon reports it.
type Output struct {
	// Key is the one-time output public key, 32 bytes.
	Key [32]byte

	// EncryptedAmount is the RingCT-masked amount; meaningful only when
	// RingCT is true.
	EncryptedAmount [8]byte

	// ClearAmount is the plaintext amount for a pre-RingCT output;
	// meaningful only when RingCT is false.
	ClearAmount uint64

	RingCT bool

	HasViewTag bool
	ViewTag    byte
}

// Transaction is a parsed transaction, from either a block or the txpool.
type Transaction struct {
	// Hash is the transaction's ID, hex-agnostic 32-byte form.
	Hash [32]byte

	// TxPubKey is the transaction's main public key, extracted from its
	// extra field.
	TxPubKey [32]byte

	// AdditionalPubKeys holds one entry per Output when the transaction
	// used Monero's additional-tx-pubkeys mechanism (multiple
	// destination accounts); empty otherwise.
	AdditionalPubKeys [][32]byte

	Outputs []Output

	// UnlockTime is the transaction's unlock_time field.
	UnlockTime uint64
}

// Block is a parsed block: its height, hash, and the transactions within
// it (including the miner/coinbase transaction, which the scanner is free
// to ignore since it never pays a subaddress the gateway derived).
type Block struct {
	Height uint64
	Hash   [32]byte
	Txs    []Transaction
}

// BlockHeader is the lightweight (height, hash) pair the scanner's reorg
// check caches a window of.
type BlockHeader struct {
	Height uint64
	Hash   [32]byte
}

// TxpoolEntry is one transaction currently sitting in the daemon's mempool.
type TxpoolEntry struct {
	Tx Transaction
}

// DaemonClient is the full surface the Scanner Loop requires from a Monero
// daemon. A concrete implementation lives in a leaf package (jsonrpc);
// core code depends only on this interface, so the scanner's tests can run
// against a fake without a live daemon.
type DaemonClient interface {
	// GetHeight returns the daemon's current chain tip height.
	GetHeight(ctx context.Context) (uint64, error)

	// GetBlockHeadersRange returns the (height, hash) pair for every
	// height in [from, to] inclusive.
	GetBlockHeadersRange(ctx context.Context, from, to uint64) ([]BlockHeader, error)

	// GetBlock returns the fully parsed block at height.
	GetBlock(ctx context.Context, height uint64) (Block, error)

	// GetTransactionPool returns every transaction currently in the
	// daemon's mempool.
	GetTransactionPool(ctx context.Context) ([]TxpoolEntry, error)
}
