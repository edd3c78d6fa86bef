package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Call is one read-only sub-call inside a batched aggregate request.
type Call struct {
	Target       common.Address
	Data         []byte
	AllowFailure bool
}

// Result mirrors one sub-call outcome. ReturnData is raw ABI-encoded bytes
// and is only meaningful when Success is true.
type Result struct {
	Success    bool
	ReturnData []byte
}

// Reader issues batched read-only contract calls with per-call failure
// isolation.
type Reader interface {
	Aggregate(ctx context.Context, calls []Call) ([]Result, error)
}

// conn is the per-endpoint surface the client needs; swapped in tests.
type conn interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Client aggregates reads through a Multicall3-style contract and rotates
// among configured RPC endpoints on connection-level failure. Sub-call
// failures never trigger rotation; only transport errors do.
type Client struct {
	endpoints []string
	multicall common.Address
	logger    *zap.Logger
	dial      func(ctx context.Context, url string) (conn, error)

	mu    sync.Mutex
	next  int
	conns map[string]conn
}

// NewClient builds a Client over the given endpoint list.
func NewClient(endpoints []string, multicall common.Address, logger *zap.Logger) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one rpc endpoint is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoints: endpoints,
		multicall: multicall,
		logger:    logger,
		dial:      dialEndpoint,
		conns:     make(map[string]conn),
	}, nil
}

func dialEndpoint(ctx context.Context, url string) (conn, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return ethclient.NewClient(rpcClient), nil
}

// Close closes every dialed endpoint connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cn := range c.conns {
		cn.Close()
	}
	c.conns = make(map[string]conn)
}

// current returns the connection for the active endpoint, dialing lazily.
func (c *Client) current(ctx context.Context) (conn, string, error) {
	c.mu.Lock()
	url := c.endpoints[c.next%len(c.endpoints)]
	cn, ok := c.conns[url]
	c.mu.Unlock()
	if ok {
		return cn, url, nil
	}

	cn, err := c.dial(ctx, url)
	if err != nil {
		return nil, url, fmt.Errorf("dial %s: %w", url, err)
	}

	c.mu.Lock()
	c.conns[url] = cn
	c.mu.Unlock()
	return cn, url, nil
}

// rotate advances to the next endpoint for subsequent top-level calls.
func (c *Client) rotate() {
	c.mu.Lock()
	c.next = (c.next + 1) % len(c.endpoints)
	c.mu.Unlock()
}

// maxCallsPerTrip bounds how many sub-calls share one eth_call round trip.
const maxCallsPerTrip = 500

// Aggregate executes the calls in order through the aggregator contract,
// chunking large batches. A failing sub-call reports Success=false without
// affecting siblings; a transport failure aborts the whole batch and rotates
// the endpoint for the next top-level call.
func (c *Client) Aggregate(ctx context.Context, calls []Call) ([]Result, error) {
	results := make([]Result, 0, len(calls))

	for start := 0; start < len(calls); start += maxCallsPerTrip {
		end := start + maxCallsPerTrip
		if end > len(calls) {
			end = len(calls)
		}

		chunk, err := c.aggregateOnce(ctx, calls[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, chunk...)
	}

	return results, nil
}

func (c *Client) aggregateOnce(ctx context.Context, calls []Call) ([]Result, error) {
	data, err := packAggregate(calls)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate: %w", err)
	}

	cn, url, err := c.current(ctx)
	if err != nil {
		c.rotate()
		return nil, err
	}

	msg := ethereum.CallMsg{To: &c.multicall, Data: data}
	resp, err := cn.CallContract(ctx, msg, nil)
	if err != nil {
		c.rotate()
		c.logger.Warn("aggregate call failed, rotating endpoint",
			zap.String("endpoint", url),
			zap.Int("calls", len(calls)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("aggregate via %s: %w", url, err)
	}

	results, err := unpackAggregate(resp)
	if err != nil {
		return nil, fmt.Errorf("unpack aggregate: %w", err)
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("aggregate returned %d results for %d calls", len(results), len(calls))
	}
	return results, nil
}
