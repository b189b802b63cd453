package chainrpc

import (
	"context"
	"errors"
	"sort"
)

// FakeDaemonClient is an in-memory DaemonClient for tests: blocks and
// txpool entries are staged directly rather than fetched over the wire.
type FakeDaemonClient struct {
	Blocks  map[uint64]Block
	Txpool  []TxpoolEntry
	Height  uint64

	// GetBlockErr, if set, is returned by GetBlock for any height.
	GetBlockErr error
}

// NewFakeDaemonClient returns an empty FakeDaemonClient at height 0.
func NewFakeDaemonClient() *FakeDaemonClient {
	return &FakeDaemonClient{Blocks: make(map[uint64]Block)}
}

// AddBlock stages a block and advances Height if necessary.
func (f *FakeDaemonClient) AddBlock(b Block) {
	f.Blocks[b.Height] = b
	if b.Height > f.Height {
		f.Height = b.Height
	}
}

func (f *FakeDaemonClient) GetHeight(ctx context.Context) (uint64, error) {
	return f.Height, nil
}

func (f *FakeDaemonClient) GetBlockHeadersRange(ctx context.Context, from, to uint64) ([]BlockHeader, error) {
	var out []BlockHeader
	for h := from; h <= to; h++ {
		b, ok := f.Blocks[h]
		if !ok {
			continue
		}
		out = append(out, BlockHeader{Height: b.Height, Hash: b.Hash})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	return out, nil
}

func (f *FakeDaemonClient) GetBlock(ctx context.Context, height uint64) (Block, error) {
	if f.GetBlockErr != nil {
		return Block{}, f.GetBlockErr
	}
	b, ok := f.Blocks[height]
	if !ok {
		return Block{}, errors.New("chainrpc: no such block")
	}
	return b, nil
}

func (f *FakeDaemonClient) GetTransactionPool(ctx context.Context) ([]TxpoolEntry, error) {
	return f.Txpool, nil
}

var _ DaemonClient = (*FakeDaemonClient)(nil)
