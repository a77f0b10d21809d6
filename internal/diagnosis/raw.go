package diagnosis

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

func parseUint64(v string) (uint64, bool) {
	n, ok := parseNumeric(v)
	if !ok {
		return 0, false
	}
	if n == nil {
		return 0, true
	}
	if !n.IsUint64() {
		return 0, false
	}
	return n.Uint64(), true
}

// parseNumeric accepts 0x-hex or decimal. An empty string is a valid absent value.
func parseNumeric(v string) (*big.Int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, true
	}
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		digits := v[2:]
		if digits == "" {
			return new(big.Int), true
		}
		num, ok := new(big.Int).SetString(digits, 16)
		if !ok || num.Sign() < 0 {
			return nil, false
		}
		return num, true
	}
	num, ok := new(big.Int).SetString(v, 10)
	if !ok || num.Sign() < 0 {
		return nil, false
	}
	return num, true
}

func parseValue(v string) (string, bool) {
	n, ok := parseNumeric(v)
	if !ok {
		return "", false
	}
	if n == nil {
		return "0", true
	}
	u, overflow := uint256.FromBig(n)
	if overflow {
		return "", false
	}
	return u.Dec(), true
}

func parseHexBytes(v string) ([]byte, bool) {
	v = strings.TrimSpace(v)
	if v == "" || v == "0x" || v == "0X" {
		return nil, true
	}
	if !strings.HasPrefix(v, "0x") && !strings.HasPrefix(v, "0X") {
		return nil, false
	}
	digits := v[2:]
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	b, err := hex.DecodeString(digits)
	if err != nil {
		return nil, false
	}
	return b, true
}

func parseAddress(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", true
	}
	if !common.IsHexAddress(v) {
		return "", false
	}
	return strings.ToLower(common.HexToAddress(v).Hex()), true
}

// revertPayload returns the bytes a frame reverted with. revertReason is
// 0x-prefixed hex or plain text depending on the client; unprefixed values are
// always text.
func revertPayload(output []byte, revertReason string) []byte {
	if len(output) > 0 {
		return output
	}
	reason := strings.TrimSpace(revertReason)
	if reason == "" {
		return nil
	}
	if strings.HasPrefix(reason, "0x") || strings.HasPrefix(reason, "0X") {
		if decoded, err := hexutil.Decode("0x" + reason[2:]); err == nil {
			return decoded
		}
	}
	return []byte(reason)
}

func encodeHex(b []byte) string {
	if len(b) == 0 {
		return "0x"
	}
	return hexutil.Encode(b)
}
