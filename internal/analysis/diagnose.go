package analysis

import (
	"time"

	"github.com/0xPexy/aletta-backend/internal/diagnosis"
	"github.com/0xPexy/aletta-backend/internal/tracing"
)

type DiagnoseParams struct {
	ID        string
	TxHash    string
	CreatedAt time.Time
	Decoder   diagnosis.Decoder
	Symbols   diagnosis.SymbolResolver
	InkPerGas uint64
}

// Diagnose runs the engine over a fetched trace. WASM frames are recognized by
// the tracer flag or by the Stylus prefix of their deployed code.
func Diagnose(trace *tracing.Trace, p DiagnoseParams) (*diagnosis.Report, error) {
	detector := diagnosis.AnyDetector{
		diagnosis.FlagDetector{},
		diagnosis.CodePrefixDetector{Codes: trace.Codes},
	}
	return diagnosis.Analyze(diagnosis.Request{
		ID:        p.ID,
		TxHash:    p.TxHash,
		Chain:     trace.Network.Name,
		CreatedAt: p.CreatedAt,
		Frames:    trace.Frames,
	}, diagnosis.Options{
		Decoder:        p.Decoder,
		Wasm:           detector,
		Symbols:        p.Symbols,
		InkPerGas:      p.InkPerGas,
		ReplayEndpoint: trace.Network.ReplayEndpoint(),
	})
}
