// Package chain is the bot's node access layer: pool reads, head and fee
// data, nonces, broadcast, and receipt lookups over JSON-RPC, plus the
// WebSocket new-head subscription.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/flashpath/arbbot/internal/gas"
)

// pairABIJSON is the constant-product pool read surface.
const pairABIJSON = `[
  {"type":"function","name":"getReserves","stateMutability":"view","inputs":[],"outputs":[
    {"name":"reserve0","type":"uint112"},
    {"name":"reserve1","type":"uint112"},
    {"name":"blockTimestampLast","type":"uint32"}]}
]`

// routerABIJSON is the quote surface of stable-swap routers.
const routerABIJSON = `[
  {"type":"function","name":"getBestRate","stateMutability":"view","inputs":[
    {"name":"from","type":"address"},
    {"name":"to","type":"address"},
    {"name":"amountIn","type":"uint256"}],"outputs":[
    {"name":"pool","type":"address"},
    {"name":"amountOut","type":"uint256"}]}
]`

// Client wraps an Ethereum JSON-RPC endpoint behind the narrow interfaces
// the pipeline consumes.
type Client struct {
	eth    *ethclient.Client
	pair   abi.ABI
	router abi.ABI
	logger *slog.Logger

	mu        sync.Mutex
	lastBlock uint64
}

func Dial(ctx context.Context, rpcURL string, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dialing %s: %w", rpcURL, err)
	}
	pair, err := abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parsing pair ABI: %w", err)
	}
	router, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parsing router ABI: %w", err)
	}
	return &Client{
		eth:    eth,
		pair:   pair,
		router: router,
		logger: logger.With("component", "chain"),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Reserves reads a constant-product pool's reserves, attributing them to the
// most recently observed block.
func (c *Client) Reserves(ctx context.Context, pool common.Address) (*big.Int, *big.Int, uint64, error) {
	data, err := c.pair.Pack("getReserves")
	if err != nil {
		return nil, nil, 0, fmt.Errorf("chain: packing getReserves: %w", err)
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, nil)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("chain: getReserves on %s: %w", pool.Hex(), err)
	}
	out, err := c.pair.Unpack("getReserves", raw)
	if err != nil || len(out) < 2 {
		return nil, nil, 0, fmt.Errorf("chain: unpacking getReserves on %s: %w", pool.Hex(), err)
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, 0, fmt.Errorf("chain: unexpected getReserves types on %s", pool.Hex())
	}
	return r0, r1, c.observedBlock(), nil
}

// BestRate quotes a stable-swap venue's router.
func (c *Client) BestRate(ctx context.Context, router, from, to common.Address, amountIn *big.Int) (common.Address, *big.Int, error) {
	data, err := c.router.Pack("getBestRate", from, to, amountIn)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("chain: packing getBestRate: %w", err)
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &router, Data: data}, nil)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("chain: getBestRate on %s: %w", router.Hex(), err)
	}
	out, err := c.router.Unpack("getBestRate", raw)
	if err != nil || len(out) < 2 {
		return common.Address{}, nil, fmt.Errorf("chain: unpacking getBestRate on %s: %w", router.Hex(), err)
	}
	pool, ok0 := out[0].(common.Address)
	amountOut, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return common.Address{}, nil, fmt.Errorf("chain: unexpected getBestRate types on %s", router.Hex())
	}
	return pool, amountOut, nil
}

// Head fetches the latest header for fee quoting.
func (c *Client) Head(ctx context.Context) (gas.Head, error) {
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return gas.Head{}, fmt.Errorf("chain: fetching head: %w", err)
	}
	return headFromHeader(header), nil
}

// SuggestTip returns the node's priority-fee suggestion.
func (c *Client) SuggestTip(ctx context.Context) (*big.Int, error) {
	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: suggesting tip: %w", err)
	}
	return tip, nil
}

// PendingNonce returns the account's next nonce including pending txs.
func (c *Client) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("chain: pending nonce for %s: %w", account.Hex(), err)
	}
	return nonce, nil
}

// Broadcast submits a signed transaction to the public pool.
func (c *Client) Broadcast(ctx context.Context, tx *types.Transaction) error {
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("chain: broadcasting %s: %w", tx.Hash(), err)
	}
	return nil
}

// Receipt fetches the receipt for a transaction hash; ethereum.NotFound
// until the transaction is included.
func (c *Client) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, hash)
}

// ObserveBlock records the latest block number seen by the head listener so
// reserve reads can attribute their data.
func (c *Client) ObserveBlock(number uint64) {
	c.mu.Lock()
	if number > c.lastBlock {
		c.lastBlock = number
	}
	c.mu.Unlock()
}

func (c *Client) observedBlock() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBlock
}

func headFromHeader(header *types.Header) gas.Head {
	ratio := 0.0
	if header.GasLimit > 0 {
		ratio = float64(header.GasUsed) / float64(header.GasLimit)
	}
	return gas.Head{
		Number:   header.Number.Uint64(),
		BaseFee:  header.BaseFee,
		GasRatio: ratio,
		Seen:     time.Now(),
	}
}
