package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/0xPexy/aletta-backend/internal/diagnosis"
	"github.com/0xPexy/aletta-backend/internal/metrics"
)

var (
	ErrNotFound         = errors.New("tracing: transaction not found")
	ErrChainUnavailable = errors.New("tracing: chain unavailable")
)

// Client fetches callTracer traces and deployed code from one chain.
type Client struct {
	chain   string
	rpc     *rpc.Client
	eth     *ethclient.Client
	metrics *metrics.TraceMetrics
}

func Dial(ctx context.Context, chain, endpoint string, m *metrics.TraceMetrics) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(ErrChainUnavailable, "dial %s: %v", chain, withoutURL(err))
	}
	return NewClient(chain, rpcClient, m), nil
}

func NewClient(chain string, rpcClient *rpc.Client, m *metrics.TraceMetrics) *Client {
	return &Client{
		chain:   chain,
		rpc:     rpcClient,
		eth:     ethclient.NewClient(rpcClient),
		metrics: m,
	}
}

type traceConfig struct {
	Tracer       string          `json:"tracer"`
	TracerConfig json.RawMessage `json:"tracerConfig,omitempty"`
	Timeout      string          `json:"timeout,omitempty"`
}

// TraceTransaction runs debug_traceTransaction with the callTracer and
// returns the root frame.
func (c *Client) TraceTransaction(ctx context.Context, hash common.Hash) (*diagnosis.RawCallFrame, error) {
	var result *diagnosis.RawCallFrame
	start := time.Now()
	err := c.rpc.CallContext(ctx, &result, "debug_traceTransaction", hash.Hex(), traceConfig{Tracer: "callTracer"})
	c.observe("debug_traceTransaction", start, err)
	if err != nil {
		return nil, c.mapError(ctx, err, "trace %s", hash.Hex())
	}
	if result == nil {
		return nil, errors.Wrapf(ErrNotFound, "trace %s on %s", hash.Hex(), c.chain)
	}
	return result, nil
}

func (c *Client) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	start := time.Now()
	code, err := c.eth.CodeAt(ctx, addr, nil)
	c.observe("eth_getCode", start, err)
	if err != nil {
		return nil, c.mapError(ctx, err, "code at %s", addr.Hex())
	}
	return code, nil
}

func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *Client) observe(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RPCRequestsTotal.WithLabelValues(c.chain, method, status).Inc()
	c.metrics.RPCLatency.WithLabelValues(c.chain, method).Observe(time.Since(start).Seconds())
}

// mapError keeps context errors intact so callers can tell a timeout from an
// unreachable node.
func (c *Client) mapError(ctx context.Context, err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, what)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Wrap(err, what)
	}
	err = withoutURL(err)
	if isNotFound(err) {
		return errors.Wrapf(ErrNotFound, "%s on %s: %v", what, c.chain, err)
	}
	return errors.Wrapf(ErrChainUnavailable, "%s on %s: %v", what, c.chain, err)
}

// withoutURL drops the request URL from transport errors. RPC URLs often
// carry API keys and the message ends up in API responses.
func withoutURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "unknown transaction")
}
