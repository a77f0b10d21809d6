package diagnosis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeStylusInkAndReplay(t *testing.T) {
	explicit := frame("CALL", addrRouter, addrWasm)
	explicit.Wasm = true
	explicit.InkUsed = "0x3e8"

	derived := frame("STATICCALL", addrWasm, addrToken)
	derived.GasUsed = "0x2"

	failing := withError(frame("CALL", addrRouter, addrVault), "wasm trap: unreachable")
	failing.Wasm = true

	root := withError(frame("CALL", addrEOA, addrRouter, explicit, failing), "execution reverted")
	detector := AnyDetector{FlagDetector{}, NewAddressSet(addrToken)}
	root.Calls[0].Calls = []RawCallFrame{derived}

	tree, err := BuildTree([]RawCallFrame{root}, nil, detector, 10)
	require.NoError(t, err)
	loc := Locate(tree)
	st := AnalyzeStylus(tree, loc, testTxHash, "arbitrum-sepolia", "https://sepolia-rollup.arbitrum.io/rpc")
	require.NotNil(t, st)

	// 1000 explicit + 2 gas * 10 + 21000 gas * 10 for the failing frame.
	assert.Equal(t, uint64(1000+20+210000), st.InkUsed)
	assert.Equal(t, []string{"0xa9059cbb", "0xa9059cbb", "0xa9059cbb"}, st.FunctionCalls)
	assert.Equal(t,
		"cargo stylus replay --endpoint https://sepolia-rollup.arbitrum.io/rpc --tx "+testTxHash+
			" --contract-address "+addrVault+"  # chain: arbitrum-sepolia",
		st.ReplayCommand)
}

func TestAnalyzeStylusUsesFirstWasmFrameWhenFailureIsEVM(t *testing.T) {
	wasm := frame("CALL", addrRouter, addrWasm)
	wasm.Wasm = true
	root := withError(frame("CALL", addrEOA, addrRouter, wasm, withError(frame("CALL", addrRouter, addrToken), "execution reverted: no")), "execution reverted")

	tree, err := BuildTree([]RawCallFrame{root}, nil, FlagDetector{}, DefaultInkPerGas)
	require.NoError(t, err)
	st := AnalyzeStylus(tree, Locate(tree), testTxHash, "arbitrum-one", "http://localhost:8547")
	require.NotNil(t, st)
	assert.Contains(t, st.ReplayCommand, "--contract-address "+addrWasm)
	assert.Equal(t, uint64(21000*DefaultInkPerGas), st.InkUsed)
}

func TestAnalyzeStylusAbsent(t *testing.T) {
	tree, err := BuildTree([]RawCallFrame{frame("CALL", addrEOA, addrToken)}, nil, FlagDetector{}, DefaultInkPerGas)
	require.NoError(t, err)
	assert.Nil(t, AnalyzeStylus(tree, Locate(tree), testTxHash, "arbitrum-one", ""))
}

func TestCodePrefixDetector(t *testing.T) {
	d := CodePrefixDetector{Codes: map[string][]byte{
		addrWasm:  {0xef, 0xf0, 0x00, 0x01},
		addrToken: {0x60, 0x80, 0x60, 0x40},
	}}
	assert.True(t, d.IsWasm(&RawCallFrame{To: "0x5000000000000000000000000000000000000005"}))
	assert.False(t, d.IsWasm(&RawCallFrame{To: addrToken}))
	assert.False(t, d.IsWasm(&RawCallFrame{To: addrVault}))
	assert.False(t, d.IsWasm(&RawCallFrame{}))
}
