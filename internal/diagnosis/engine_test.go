package diagnosis

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeSingleRevertedRoot(t *testing.T) {
	root := withError(frame("CALL", addrEOA, addrToken), "execution reverted: insufficient balance")
	r := analyze(t, []RawCallFrame{root}, Options{})

	assert.Equal(t, StatusReverted, r.Status)
	require.NotNil(t, r.FailingFrame)
	assert.Equal(t, "0xa9059cbb", r.FailingFrame.Function)
	assert.Equal(t, addrToken, r.FailingFrame.Contract)
	assert.Contains(t, r.RootCause, "insufficient balance")
	require.Len(t, r.Backtrace, 1)
	assert.Equal(t, uint32(0), r.Backtrace[0].Depth)
	assert.Nil(t, r.StylusTrace)
}

func TestAnalyzeOutOfGasThreeLevelsDeep(t *testing.T) {
	inner := withError(frame("DELEGATECALL", addrVault, addrToken), "out of gas")
	inner.Gas = "0x7530"
	inner.GasUsed = "0x7530"
	mid := withError(frame("CALL", addrRouter, addrVault, inner), "execution reverted")
	root := withError(frame("CALL", addrEOA, addrRouter, frame("STATICCALL", addrRouter, addrToken), mid), "execution reverted")

	r := analyze(t, []RawCallFrame{root}, Options{})

	assert.Equal(t, StatusOutOfGas, r.Status)
	require.Len(t, r.Backtrace, 3)
	for i, item := range r.Backtrace {
		assert.Equal(t, uint32(i), item.Depth)
	}
	assert.Equal(t, addrRouter, r.Backtrace[0].To)
	assert.Equal(t, addrVault, r.Backtrace[1].To)
	assert.Equal(t, addrToken, r.Backtrace[2].To)
	require.NotNil(t, r.FailingFrame)
	assert.Equal(t, addrToken, r.FailingFrame.Contract)
	require.NotEmpty(t, r.Suggestions)
	assert.Equal(t, PriorityHigh, r.Suggestions[0].Priority)
	assert.Contains(t, r.Suggestions[0].Issue, "ran out of gas")
}

func TestAnalyzeSuccess(t *testing.T) {
	root := frame("CALL", addrEOA, addrRouter, frame("DELEGATECALL", addrRouter, addrVault))
	r := analyze(t, []RawCallFrame{root}, Options{})

	assert.Equal(t, StatusSuccess, r.Status)
	assert.Nil(t, r.FailingFrame)
	assert.Empty(t, r.Backtrace)
	assert.NotNil(t, r.Suggestions)
	require.Len(t, r.Suggestions, 1)
	assert.Equal(t, PriorityMedium, r.Suggestions[0].Priority)
	assert.Contains(t, r.Suggestions[0].Issue, "DELEGATECALL")
}

func TestAnalyzeCaughtFailureStaysSuccess(t *testing.T) {
	root := frame("CALL", addrEOA, addrRouter,
		withError(frame("CALL", addrRouter, addrToken), "execution reverted"),
	)
	r := analyze(t, []RawCallFrame{root}, Options{})

	assert.Equal(t, StatusSuccess, r.Status)
	assert.Nil(t, r.FailingFrame)
	require.Len(t, r.Suggestions, 1)
	assert.Equal(t, PriorityLow, r.Suggestions[0].Priority)
	assert.Contains(t, r.Suggestions[0].Issue, "failed without failing its caller")
}

func TestAnalyzeFirstFailingBranchWins(t *testing.T) {
	first := withError(frame("CALL", addrRouter, addrVault), "execution reverted: first")
	second := withError(frame("CALL", addrRouter, addrToken), "execution reverted: second")
	root := withError(frame("CALL", addrEOA, addrRouter, first, second), "execution reverted")

	r := analyze(t, []RawCallFrame{root}, Options{})
	require.NotNil(t, r.FailingFrame)
	assert.Equal(t, addrVault, r.FailingFrame.Contract)
	assert.Contains(t, r.RootCause, "first")
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	reg := newTokenRegistry(t)
	call := frame("CALL", addrRouter, addrToken)
	call.Input = transferInput(t, addrVault, 3)
	call.Output = insufficientBalancePayload(t, 1, 3)
	call.Error = "execution reverted"
	wasm := frame("CALL", addrRouter, addrWasm)
	wasm.Wasm = true
	root := withError(frame("CALL", addrEOA, addrRouter, wasm, call), "execution reverted")
	frames := []RawCallFrame{root}

	encode := func(id string, at time.Time) []byte {
		r, err := Analyze(Request{ID: id, TxHash: testTxHash, Chain: "arbitrum-one", CreatedAt: at, Frames: frames},
			Options{Decoder: reg, ReplayEndpoint: "https://arb1.arbitrum.io/rpc"})
		require.NoError(t, err)
		r.ID = ""
		r.CreatedAt = time.Time{}
		b, err := json.Marshal(r)
		require.NoError(t, err)
		return b
	}
	a := encode("a", time.Now())
	b := encode("b", time.Now().Add(time.Hour))
	assert.Equal(t, string(a), string(b))
}

func TestAnalyzeSuggestionsSorted(t *testing.T) {
	creation := withError(RawCallFrame{Type: "CREATE2", From: addrRouter, Gas: "0x100", GasUsed: "0x10"}, "contract creation code storage out of gas")
	odd := frame("AUTHCALL", addrRouter, addrToken)
	caught := withError(frame("CALL", addrRouter, addrVault), "execution reverted")
	delegate := frame("DELEGATECALL", addrRouter, addrVault)
	root := withError(frame("CALL", addrEOA, addrRouter, odd, caught, delegate, creation), "execution reverted")
	root.GasUsed = root.Gas

	r := analyze(t, []RawCallFrame{root}, Options{})
	require.NotEmpty(t, r.Suggestions)
	for i := 1; i < len(r.Suggestions); i++ {
		assert.LessOrEqual(t, r.Suggestions[i-1].Priority.rank(), r.Suggestions[i].Priority.rank())
	}
}

func TestAnalyzeStylusPresence(t *testing.T) {
	cases := []struct {
		name   string
		frames []RawCallFrame
		opts   Options
		want   bool
	}{
		{name: "no wasm", frames: []RawCallFrame{frame("CALL", addrEOA, addrToken)}, want: false},
		{name: "flagged frame", frames: []RawCallFrame{{Type: "CALL", From: addrEOA, To: addrWasm, Wasm: true}}, want: true},
		{
			name:   "code prefix",
			frames: []RawCallFrame{frame("CALL", addrEOA, addrRouter, frame("CALL", addrRouter, addrWasm))},
			opts:   Options{Wasm: CodePrefixDetector{Codes: map[string][]byte{addrWasm: {0xef, 0xf0, 0x00, 0x00, 0x01}}}},
			want:   true,
		},
		{
			name:   "address set",
			frames: []RawCallFrame{frame("CALL", addrEOA, addrWasm)},
			opts:   Options{Wasm: NewAddressSet(addrWasm)},
			want:   true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := analyze(t, tc.frames, tc.opts)
			assert.Equal(t, tc.want, r.StylusTrace != nil)
		})
	}
}

func TestAnalyzeMalformed(t *testing.T) {
	_, err := Analyze(Request{ID: "x", TxHash: testTxHash, Chain: "arbitrum-one"}, Options{})
	require.True(t, errors.Is(err, ErrMalformedTrace))
}

func TestAnalyzeUnsupportedCallTypeIsNonFatal(t *testing.T) {
	root := withError(frame("CALL", addrEOA, addrRouter, withError(frame("EXTCALL", addrRouter, addrToken), "execution reverted: nope")), "execution reverted")
	r := analyze(t, []RawCallFrame{root}, Options{})

	assert.Equal(t, StatusReverted, r.Status)
	assert.Equal(t, "unsupported call type EXTCALL", r.CallTree[0].Calls[0].Anomaly)
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, KindUnsupportedCallType, r.Warnings[0].Kind)
	assert.Contains(t, r.Warnings[0].Detail, "frame 0.0")
	last := r.Suggestions[len(r.Suggestions)-1]
	assert.Equal(t, PriorityLow, last.Priority)
	assert.Contains(t, last.Issue, "EXTCALL")
}

func TestAnalyzeSourceLine(t *testing.T) {
	root := withError(frame("CALL", addrEOA, addrToken), "execution reverted: nope")
	r := analyze(t, []RawCallFrame{root}, Options{Symbols: symbolTable{addrToken + "#0xa9059cbb": 88}})
	require.NotNil(t, r.FailingFrame.SourceLine)
	assert.Equal(t, uint32(88), *r.FailingFrame.SourceLine)
}

type symbolTable map[string]uint32

func (s symbolTable) SourceLine(contract, function string) (uint32, bool) {
	line, ok := s[contract+"#"+function]
	return line, ok
}

func TestReportJSONShape(t *testing.T) {
	root := withError(frame("CALL", addrEOA, addrToken), "execution reverted: insufficient balance")
	r := analyze(t, []RawCallFrame{root}, Options{})
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "reverted", decoded["status"])
	assert.Contains(t, decoded, "failing_frame")
	assert.Contains(t, decoded, "call_tree")
	assert.Contains(t, decoded, "stylus_trace")
	assert.Nil(t, decoded["stylus_trace"])
}
