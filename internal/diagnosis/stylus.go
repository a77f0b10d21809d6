package diagnosis

import (
	"fmt"
	"math"
	"math/bits"
)

// AnalyzeStylus summarizes WASM execution. It returns nil when no frame ran a
// WASM contract.
func AnalyzeStylus(t *Tree, loc Location, txHash, chain, endpoint string) *StylusTrace {
	var (
		ink       uint64
		functions []string
		first     = -1
	)
	for i := 0; i < t.Len(); i++ {
		if !t.Node(i).Wasm {
			continue
		}
		if first < 0 {
			first = i
		}
		ink = addSaturating(ink, t.nodes[i].ink)
		functions = append(functions, t.Function(i))
	}
	if first < 0 {
		return nil
	}
	target := first
	if loc.Found() && t.Node(loc.Failing).Wasm {
		target = loc.Failing
	}
	return &StylusTrace{
		InkUsed:       ink,
		FunctionCalls: functions,
		ReplayCommand: ReplayCommand(endpoint, txHash, t.Node(target).To, chain),
	}
}

func ReplayCommand(endpoint, txHash, contract, chain string) string {
	return fmt.Sprintf("cargo stylus replay --endpoint %s --tx %s --contract-address %s  # chain: %s",
		endpoint, txHash, contract, chain)
}

// Ink totals saturate at MaxUint64 instead of wrapping.
func mulSaturating(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

func addSaturating(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}
