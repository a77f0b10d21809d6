package diagnosis

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

const (
	addrEOA    = "0x1000000000000000000000000000000000000001"
	addrRouter = "0x2000000000000000000000000000000000000002"
	addrVault  = "0x3000000000000000000000000000000000000003"
	addrToken  = "0x4000000000000000000000000000000000000004"
	addrWasm   = "0x5000000000000000000000000000000000000005"
	testTxHash = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

func frame(callType, from, to string, calls ...RawCallFrame) RawCallFrame {
	return RawCallFrame{
		Type:    callType,
		From:    from,
		To:      to,
		Value:   "0x0",
		Gas:     "0x186a0",
		GasUsed: "0x5208",
		Input:   "0xa9059cbb",
		Calls:   calls,
	}
}

func withError(f RawCallFrame, msg string) RawCallFrame {
	f.Error = msg
	return f
}

func errorStringPayload(t *testing.T, msg string) string {
	t.Helper()
	packed, err := revertErrorArgs.Pack(msg)
	require.NoError(t, err)
	return hexutil.Encode(append(append([]byte{}, errorStringSelector...), packed...))
}

func panicPayload(t *testing.T, code int64) string {
	t.Helper()
	packed, err := panicArgs.Pack(big.NewInt(code))
	require.NoError(t, err)
	return hexutil.Encode(append(append([]byte{}, panicSelector...), packed...))
}

func analyze(t *testing.T, frames []RawCallFrame, opts Options) *Report {
	t.Helper()
	r, err := Analyze(Request{
		ID:        "report-1",
		TxHash:    testTxHash,
		Chain:     "arbitrum-one",
		CreatedAt: time.Unix(1_700_000_000, 0).UTC(),
		Frames:    frames,
	}, opts)
	require.NoError(t, err)
	return r
}
