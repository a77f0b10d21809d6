package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/0xPexy/aletta-backend/internal/analysis"
	cfgpkg "github.com/0xPexy/aletta-backend/internal/config"
	"github.com/0xPexy/aletta-backend/internal/diagnosis"
	"github.com/0xPexy/aletta-backend/internal/logging"
	"github.com/0xPexy/aletta-backend/internal/tracing"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one transaction and print the report as JSON",
	Long: "Analyze a transaction without the HTTP API. With --file the trace is read from a local " +
		"callTracer JSON dump; otherwise it is fetched from the chain's RPC endpoint.",
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("file", "", "path to a callTracer JSON trace")
	analyzeCmd.Flags().String("chain", "", "chain identifier (defaults to DEFAULT_CHAIN)")
	analyzeCmd.Flags().String("tx", "", "transaction hash")
	analyzeCmd.Flags().Bool("wasm-code", false, "look up deployed code to detect Stylus contracts when reading --file")
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("file")
	chain, _ := cmd.Flags().GetString("chain")
	tx, _ := cmd.Flags().GetString("tx")
	lookupCode, _ := cmd.Flags().GetBool("wasm-code")

	cfg := cfgpkg.Load()
	logger := logging.New(cfg.Log)
	hash, err := analysis.ParseTxHash(tx)
	if err != nil {
		if file == "" {
			return err
		}
		// Offline traces may come without a hash.
		hash = common.Hash{}
	}
	registry, err := loadABIs(cfg.Analyzer.ABIDir)
	if err != nil {
		return err
	}
	symbols, err := loadSymbols(cfg.Analyzer.SymbolsDir)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if cfg.Analyzer.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Analyzer.Timeout)
		defer cancel()
	}

	source := tracing.NewSource(cfg.Chain, tracing.SourceOptions{
		TraceCacheSize:   1,
		CodeFetchWorkers: cfg.Analyzer.CodeFetchWorkers,
		Logger:           logger,
	})
	defer source.Close()

	var trace *tracing.Trace
	if file != "" {
		frames, err := loadTraceFile(file)
		if err != nil {
			return err
		}
		trace = &tracing.Trace{Network: cfg.Chain.Resolve(chain), Frames: frames, Codes: map[string][]byte{}}
		if lookupCode {
			codes, err := source.Codes(ctx, trace.Network.Name, frames)
			if err != nil {
				return err
			}
			trace.Codes = codes
		}
	} else {
		trace, err = source.Fetch(ctx, chain, hash)
		if err != nil {
			return err
		}
	}

	report, err := analysis.Diagnose(trace, analysis.DiagnoseParams{
		ID:        uuid.NewString(),
		TxHash:    strings.ToLower(hash.Hex()),
		CreatedAt: time.Now().UTC(),
		Decoder:   registry,
		Symbols:   symbols,
		InkPerGas: cfg.Analyzer.InkPerGas,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// loadTraceFile accepts a single root frame, an array of root frames, or a raw
// JSON-RPC response whose result is either of those.
func loadTraceFile(path string) ([]diagnosis.RawCallFrame, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read trace file")
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Result) > 0 {
		raw = envelope.Result
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var frames []diagnosis.RawCallFrame
		if err := json.Unmarshal(raw, &frames); err != nil {
			return nil, errors.Wrapf(err, "decode trace file %s", path)
		}
		return frames, nil
	}
	var root diagnosis.RawCallFrame
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, errors.Wrapf(err, "decode trace file %s", path)
	}
	if root.Type == "" && len(root.Calls) == 0 {
		return nil, fmt.Errorf("trace file %s does not contain a call frame", path)
	}
	return []diagnosis.RawCallFrame{root}, nil
}
