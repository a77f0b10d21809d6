package tracing

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/0xPexy/aletta-backend/internal/config"
	"github.com/0xPexy/aletta-backend/internal/diagnosis"
	"github.com/0xPexy/aletta-backend/internal/metrics"
)

type TraceClient interface {
	TraceTransaction(ctx context.Context, hash common.Hash) (*diagnosis.RawCallFrame, error)
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
	Close()
}

type DialFunc func(ctx context.Context, network config.Network) (TraceClient, error)

// Trace is a fetched call trace together with the deployed code of every
// callee, keyed by lowercase address. Codes is only populated on networks
// that run Stylus.
type Trace struct {
	Network config.Network
	Frames  []diagnosis.RawCallFrame
	Codes   map[string][]byte
}

type SourceOptions struct {
	TraceCacheSize   int
	CodeFetchWorkers int
	Metrics          *metrics.TraceMetrics
	Logger           *slog.Logger
	Dial             DialFunc
}

// Source resolves chain names to RPC clients and fetches traces through a
// shared cache. Clients are dialed on first use and kept until Close.
type Source struct {
	chains  config.ChainConfig
	dial    DialFunc
	workers int
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[string]TraceClient

	traces *lruCache[string, diagnosis.RawCallFrame]
	codes  *lruCache[string, []byte]
}

func NewSource(chains config.ChainConfig, opts SourceOptions) *Source {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dial := opts.Dial
	if dial == nil {
		m := opts.Metrics
		dial = func(ctx context.Context, n config.Network) (TraceClient, error) {
			return Dial(ctx, n.Name, n.RPCURL, m)
		}
	}
	workers := opts.CodeFetchWorkers
	if workers <= 0 {
		workers = 1
	}
	cacheSize := opts.TraceCacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}
	return &Source{
		chains:  chains,
		dial:    dial,
		workers: workers,
		logger:  logger.With("component", "tracing"),
		clients: make(map[string]TraceClient),
		traces:  newLRUCache[string, diagnosis.RawCallFrame]("trace", cacheSize, opts.Metrics),
		codes:   newLRUCache[string, []byte]("code", cacheSize*8, opts.Metrics),
	}
}

func (s *Source) Fetch(ctx context.Context, chain string, hash common.Hash) (*Trace, error) {
	network := s.chains.Resolve(chain)
	client, err := s.client(ctx, network)
	if err != nil {
		return nil, err
	}

	key := network.Name + ":" + strings.ToLower(hash.Hex())
	root, ok := s.traces.Get(key)
	if !ok {
		frame, err := client.TraceTransaction(ctx, hash)
		if err != nil {
			return nil, err
		}
		root = *frame
		s.traces.Set(key, root)
	}

	trace := &Trace{
		Network: network,
		Frames:  []diagnosis.RawCallFrame{root},
		Codes:   map[string][]byte{},
	}
	if network.Stylus {
		codes, err := s.fetchCodes(ctx, network, client, calleeAddresses(trace.Frames))
		if err != nil {
			return nil, err
		}
		trace.Codes = codes
	}
	return trace, nil
}

// Codes fetches the deployed code of every callee in frames, regardless of
// whether the network is marked as running Stylus.
func (s *Source) Codes(ctx context.Context, chain string, frames []diagnosis.RawCallFrame) (map[string][]byte, error) {
	network := s.chains.Resolve(chain)
	client, err := s.client(ctx, network)
	if err != nil {
		return nil, err
	}
	return s.fetchCodes(ctx, network, client, calleeAddresses(frames))
}

// fetchCodes looks up deployed code for each address with bounded
// concurrency. A failed lookup only costs WASM detection for that address, so
// it is logged and skipped.
func (s *Source) fetchCodes(ctx context.Context, network config.Network, client TraceClient, addrs []string) (map[string][]byte, error) {
	var (
		mu    sync.Mutex
		codes = make(map[string][]byte, len(addrs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, addr := range addrs {
		addr := addr
		g.Go(func() error {
			key := network.Name + ":" + addr
			code, ok := s.codes.Get(key)
			if !ok {
				var err error
				code, err = client.CodeAt(gctx, common.HexToAddress(addr))
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					s.logger.Warn("code lookup failed", "chain", network.Name, "address", addr, "error", err)
					return nil
				}
				s.codes.Set(key, code)
			}
			mu.Lock()
			codes[addr] = code
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "fetch callee code")
	}
	return codes, nil
}

func (s *Source) client(ctx context.Context, network config.Network) (TraceClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[network.Name]; ok {
		return c, nil
	}
	c, err := s.dial(ctx, network)
	if err != nil {
		return nil, err
	}
	s.clients[network.Name] = c
	s.logger.Info("chain client ready", "chain", network.Name, "chain_id", network.ChainID)
	return c, nil
}

func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, c := range s.clients {
		c.Close()
		delete(s.clients, name)
	}
}

func calleeAddresses(frames []diagnosis.RawCallFrame) []string {
	seen := map[string]struct{}{}
	var out []string
	stack := make([]*diagnosis.RawCallFrame, 0, len(frames))
	for i := len(frames) - 1; i >= 0; i-- {
		stack = append(stack, &frames[i])
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		addr := strings.ToLower(strings.TrimSpace(f.To))
		if common.IsHexAddress(addr) {
			if _, ok := seen[addr]; !ok {
				seen[addr] = struct{}{}
				out = append(out, addr)
			}
		}
		for i := len(f.Calls) - 1; i >= 0; i-- {
			stack = append(stack, &f.Calls[i])
		}
	}
	return out
}
