package mrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/monarch-engine/monarch/internal/mlog"
	"github.com/monarch-engine/monarch/mchain"
	"github.com/monarch-engine/monarch/mwire"
)

// ChainClient reads chain state over JSON-RPC.
// It implements [mengine.ChainReader] and [mrelay.BlockSource].
//
// Subscriptions require a transport that supports them
// (websocket or IPC); plain HTTP serves the read methods only.
type ChainClient struct {
	log *slog.Logger
	c   *rpc.Client
	url string
}

// DialChain connects to the chain RPC endpoint at url.
func DialChain(ctx context.Context, log *slog.Logger, url string) (*ChainClient, error) {
	if log == nil {
		log = slog.Default()
	}
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial chain %s: %w", url, err)
	}
	return &ChainClient{log: log, c: c, url: url}, nil
}

// BestBlockNumber returns the number of the chain's best block.
func (c *ChainClient) BestBlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := c.c.CallContext(ctx, &n, "eth_blockNumber"); err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return uint64(n), nil
}

// rpcBlock is a typed header plus the hash the remote already computed.
type rpcBlock struct {
	mchain.Header
	Hash common.Hash `json:"hash"`
}

// SealedHeader returns the header with hash at the given number,
// or nil if the remote does not know the block.
func (c *ChainClient) SealedHeader(ctx context.Context, number uint64) (*mchain.SealedHeader, error) {
	var b *rpcBlock
	if err := c.c.CallContext(ctx, &b, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false); err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber %d: %w", number, err)
	}
	if b == nil {
		return nil, nil
	}
	return &mchain.SealedHeader{Header: b.Header, Hash: b.Hash}, nil
}

// BlockByNumber fetches the full block as a decoded wire tree,
// leaving field names exactly as the remote served them.
func (c *ChainClient) BlockByNumber(ctx context.Context, number uint64) (any, error) {
	var raw json.RawMessage
	if err := c.c.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(number), true); err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber %d: %w", number, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return mwire.Decode(raw)
}

// Subscribe streams new block headers from the remote.
// The returned channel closes when the subscription ends,
// whether by ctx cancellation or a transport failure.
func (c *ChainClient) Subscribe(ctx context.Context) (<-chan mchain.Header, error) {
	in := make(chan mchain.Header, 16)
	sub, err := c.c.EthSubscribe(ctx, in, "newHeads")
	if err != nil {
		return nil, fmt.Errorf("subscribe newHeads %s: %w", c.url, err)
	}

	out := make(chan mchain.Header, 16)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					c.log.Warn("Block subscription ended", "url", c.url, mlog.Err(err))
				}
				return
			case h := <-in:
				select {
				case out <- h:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close tears down the underlying connection.
func (c *ChainClient) Close() {
	c.c.Close()
}
