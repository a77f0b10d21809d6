package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/0xPexy/aletta-backend/internal/config"
	"github.com/0xPexy/aletta-backend/internal/diagnosis"
	"github.com/0xPexy/aletta-backend/internal/metrics"
	"github.com/0xPexy/aletta-backend/internal/store"
	"github.com/0xPexy/aletta-backend/internal/tracing"
)

var (
	ErrInvalidRequest = errors.New("analysis: invalid request")
	ErrTimeout        = errors.New("analysis: timed out")
	ErrNotFound       = errors.New("analysis: report not found")
)

type TraceSource interface {
	Fetch(ctx context.Context, chain string, hash common.Hash) (*tracing.Trace, error)
}

type ReportStore interface {
	SaveReport(ctx context.Context, rec *store.ReportRecord) error
	GetReport(ctx context.Context, id string, now time.Time) (*store.ReportRecord, error)
	FindLatestByTx(ctx context.Context, txHash, chain string, now time.Time) (*store.ReportRecord, error)
	ListReports(ctx context.Context, params store.ReportListParams, now time.Time) ([]store.ReportRecord, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Publisher receives a summary of every newly created report.
type Publisher interface {
	PublishReport(Summary)
}

type Request struct {
	Name   string `json:"name"`
	Chain  string `json:"chain"`
	TxHash string `json:"tx_hash"`
}

type Result struct {
	Report *diagnosis.Report
	// Cached is set when an unexpired report for the same transaction was
	// returned instead of running a new analysis.
	Cached bool
}

type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	TxHash    string    `json:"tx_hash"`
	Chain     string    `json:"chain"`
	Status    string    `json:"status"`
	RootCause string    `json:"root_cause"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Options struct {
	Config    config.AnalyzerConfig
	Chains    config.ChainConfig
	Source    TraceSource
	Store     ReportStore
	Decoder   diagnosis.Decoder
	Symbols   diagnosis.SymbolResolver
	Publisher Publisher
	Metrics   *metrics.AnalysisMetrics
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

// Service runs the fetch, analyze and persist pipeline.
type Service struct {
	cfg       config.AnalyzerConfig
	chains    config.ChainConfig
	source    TraceSource
	store     ReportStore
	decoder   diagnosis.Decoder
	symbols   diagnosis.SymbolResolver
	publisher Publisher
	metrics   *metrics.AnalysisMetrics
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	inflight singleflight.Group
}

func NewService(opts Options) *Service {
	s := &Service{
		cfg:       opts.Config,
		chains:    opts.Chains,
		source:    opts.Source,
		store:     opts.Store,
		decoder:   opts.Decoder,
		symbols:   opts.Symbols,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "analysis")
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString() }
	}
	if s.cfg.Timeout <= 0 {
		s.cfg.Timeout = 30 * time.Second
	}
	if s.cfg.ReportTTL <= 0 {
		s.cfg.ReportTTL = 720 * time.Hour
	}
	return s
}

// Analyze returns the diagnostic report for a transaction. Concurrent requests
// for the same transaction share one analysis.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	hash, err := ParseTxHash(req.TxHash)
	if err != nil {
		return nil, err
	}
	network := s.chains.Resolve(req.Chain)
	txHash := strings.ToLower(hash.Hex())
	start := s.now()

	existing, err := s.store.FindLatestByTx(ctx, txHash, network.Name, start)
	if err != nil {
		return nil, errors.Wrap(err, "find existing report")
	}
	if existing != nil {
		report, err := decodeRecord(existing)
		if err != nil {
			return nil, err
		}
		s.observe(network.Name, "cached", start, nil)
		return &Result{Report: report, Cached: true}, nil
	}

	// The shared run ignores the first caller's cancellation; each caller
	// stops waiting on its own.
	ch := s.inflight.DoChan(network.Name+":"+txHash, func() (any, error) {
		return s.run(context.WithoutCancel(ctx), req.Name, network, hash)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		s.observe(network.Name, "canceled", start, nil)
		return nil, errors.Wrap(ctx.Err(), "wait for analysis")
	case res = <-ch:
	}
	if err := res.Err; err != nil {
		s.observe(network.Name, errorOutcome(err), start, nil)
		s.logger.Warn("analysis failed", "chain", network.Name, "tx_hash", txHash, "error", err)
		return nil, err
	}
	report := res.Val.(*diagnosis.Report)
	s.observe(network.Name, string(report.Status), start, report)
	s.logger.Info("analysis complete",
		"id", report.ID,
		"chain", network.Name,
		"tx_hash", txHash,
		"status", report.Status,
		"suggestions", len(report.Suggestions),
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)
	return &Result{Report: report}, nil
}

func (s *Service) run(ctx context.Context, name string, network config.Network, hash common.Hash) (*diagnosis.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	trace, err := s.source.Fetch(ctx, network.Name, hash)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrTimeout, "fetch trace after %s", s.cfg.Timeout)
		}
		return nil, errors.Wrap(err, "fetch trace")
	}

	now := s.now()
	report, err := Diagnose(trace, DiagnoseParams{
		ID:        s.newID(),
		TxHash:    strings.ToLower(hash.Hex()),
		CreatedAt: now,
		Decoder:   s.decoder,
		Symbols:   s.symbols,
		InkPerGas: s.cfg.InkPerGas,
	})
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(report)
	if err != nil {
		return nil, errors.Wrap(err, "encode report")
	}
	rec := &store.ReportRecord{
		ID:         report.ID,
		Name:       strings.TrimSpace(name),
		TxHash:     report.TxHash,
		Chain:      report.Chain,
		Status:     string(report.Status),
		RootCause:  report.RootCause,
		ReportData: string(data),
		ExpiresAt:  now.Add(s.cfg.ReportTTL),
		CreatedAt:  now,
	}
	if err := s.store.SaveReport(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "save report")
	}
	if s.publisher != nil {
		s.publisher.PublishReport(summaryOf(rec))
	}
	return report, nil
}

// Report returns a stored report by id. Expired reports count as missing.
func (s *Service) Report(ctx context.Context, id string) (*diagnosis.Report, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.Wrapf(ErrNotFound, "report %q", id)
	}
	rec, err := s.store.GetReport(ctx, id, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "load report")
	}
	if rec == nil {
		return nil, errors.Wrapf(ErrNotFound, "report %s", id)
	}
	return decodeRecord(rec)
}

// LatestForTx returns the newest unexpired report for a transaction.
func (s *Service) LatestForTx(ctx context.Context, txHash, chain string) (*diagnosis.Report, error) {
	hash, err := ParseTxHash(txHash)
	if err != nil {
		return nil, err
	}
	network := s.chains.Resolve(chain)
	rec, err := s.store.FindLatestByTx(ctx, hash.Hex(), network.Name, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "load report")
	}
	if rec == nil {
		return nil, errors.Wrapf(ErrNotFound, "no report for %s on %s", strings.ToLower(hash.Hex()), network.Name)
	}
	return decodeRecord(rec)
}

func (s *Service) List(ctx context.Context, params store.ReportListParams) ([]Summary, error) {
	if params.Chain != "" {
		params.Chain = s.chains.Resolve(params.Chain).Name
	}
	recs, err := s.store.ListReports(ctx, params, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "list reports")
	}
	out := make([]Summary, 0, len(recs))
	for i := range recs {
		out = append(out, summaryOf(&recs[i]))
	}
	return out, nil
}

func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, errors.Wrap(err, "purge expired reports")
	}
	if n > 0 {
		if s.metrics != nil {
			s.metrics.ReportsPurged.Add(float64(n))
		}
		s.logger.Info("purged expired reports", "count", n)
	}
	return n, nil
}

// RunPurger removes expired reports every interval until ctx is done.
func (s *Service) RunPurger(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("purge failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) observe(chain, outcome string, start time.Time, report *diagnosis.Report) {
	if s.metrics == nil {
		return
	}
	s.metrics.AnalysesTotal.WithLabelValues(chain, outcome).Inc()
	s.metrics.Duration.WithLabelValues(chain).Observe(s.now().Sub(start).Seconds())
	if report == nil {
		return
	}
	for _, sg := range report.Suggestions {
		s.metrics.Suggestions.WithLabelValues(string(sg.Priority)).Inc()
	}
}

// ParseTxHash accepts a 0x-prefixed 32-byte hex string.
func ParseTxHash(v string) (common.Hash, error) {
	v = strings.TrimSpace(v)
	b, err := hexutil.Decode(v)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, errors.Wrapf(ErrInvalidRequest, "tx_hash must be a 0x-prefixed 32-byte hex string, got %q", v)
	}
	return common.BytesToHash(b), nil
}

func decodeRecord(rec *store.ReportRecord) (*diagnosis.Report, error) {
	var report diagnosis.Report
	if err := json.Unmarshal([]byte(rec.ReportData), &report); err != nil {
		return nil, errors.Wrapf(err, "decode report %s", rec.ID)
	}
	return &report, nil
}

func summaryOf(rec *store.ReportRecord) Summary {
	return Summary{
		ID:        rec.ID,
		Name:      rec.Name,
		TxHash:    rec.TxHash,
		Chain:     rec.Chain,
		Status:    rec.Status,
		RootCause: rec.RootCause,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}
}

func errorOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, tracing.ErrNotFound):
		return "not_found"
	case errors.Is(err, tracing.ErrChainUnavailable):
		return "chain_unavailable"
	case errors.Is(err, diagnosis.ErrMalformedTrace):
		return string(diagnosis.KindMalformedTrace)
	case errors.Is(err, diagnosis.ErrClassificationAmbiguous):
		return string(diagnosis.KindClassificationAmbiguous)
	case errors.Is(err, diagnosis.ErrInvariantViolation):
		return string(diagnosis.KindInvariantViolation)
	default:
		return "error"
	}
}
