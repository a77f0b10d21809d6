// Package diagnosis turns a callTracer trace into a diagnostic report: the
// reconstructed call tree, the frame where execution failed, a classified root
// cause, remediation suggestions and, for Stylus contracts, an ink summary with
// a replay command.
//
// The package is pure. It performs no I/O and keeps no state between calls,
// so Analyze may run concurrently on independent traces.
package diagnosis

import "time"

const DefaultInkPerGas = 10_000

type Request struct {
	ID        string
	TxHash    string
	Chain     string
	CreatedAt time.Time
	Frames    []RawCallFrame
}

// Options carries the optional helpers. The zero value analyzes with no ABI
// decoding and trusts only the wasm flag on frames.
type Options struct {
	Decoder        Decoder
	Wasm           WasmDetector
	Symbols        SymbolResolver
	InkPerGas      uint64
	ReplayEndpoint string
}

// Analyze runs the full pipeline over one trace.
func Analyze(req Request, opts Options) (*Report, error) {
	detector := opts.Wasm
	if detector == nil {
		detector = FlagDetector{}
	}
	inkPerGas := opts.InkPerGas
	if inkPerGas == 0 {
		inkPerGas = DefaultInkPerGas
	}

	tree, err := BuildTree(req.Frames, opts.Decoder, detector, inkPerGas)
	if err != nil {
		return nil, err
	}
	loc := Locate(tree)
	class, err := Classify(tree, loc, opts.Decoder)
	if err != nil {
		return nil, err
	}
	suggestions := Suggest(tree, loc, class)
	stylus := AnalyzeStylus(tree, loc, req.TxHash, req.Chain, opts.ReplayEndpoint)

	return Assemble(Identity{
		ID:        req.ID,
		TxHash:    req.TxHash,
		Chain:     req.Chain,
		CreatedAt: req.CreatedAt,
	}, tree, loc, class, suggestions, stylus, opts.Symbols)
}
