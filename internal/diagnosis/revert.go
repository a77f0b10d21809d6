package diagnosis

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	errorStringSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	panicSelector       = []byte{0x4e, 0x48, 0x7b, 0x71}

	revertErrorArgs = abi.Arguments{{Type: mustABIType("string")}}
	panicArgs       = abi.Arguments{{Type: mustABIType("uint256")}}
)

func mustABIType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Solidity Panic(uint256) codes.
const (
	PanicCompilerInserted    = 0x00
	PanicAssertFailed        = 0x01
	PanicArithmeticOverflow  = 0x11
	PanicDivideByZero        = 0x12
	PanicEnumConversion      = 0x21
	PanicIncorrectStorage    = 0x22
	PanicPopEmptyArray       = 0x31
	PanicArrayOutOfBounds    = 0x32
	PanicAllocateTooMuch     = 0x41
	PanicUninitializedFnCall = 0x51
)

func panicReason(code *big.Int) string {
	if !code.IsUint64() {
		return fmt.Sprintf("unknown panic code (0x%x)", code)
	}
	switch code.Uint64() {
	case PanicCompilerInserted:
		return "compiler inserted panic"
	case PanicAssertFailed:
		return "assertion failed"
	case PanicArithmeticOverflow:
		return "arithmetic underflow or overflow"
	case PanicDivideByZero:
		return "division or modulo by zero"
	case PanicEnumConversion:
		return "enum conversion out of bounds"
	case PanicIncorrectStorage:
		return "incorrectly encoded storage byte array"
	case PanicPopEmptyArray:
		return "pop on empty array"
	case PanicArrayOutOfBounds:
		return "array index out of bounds"
	case PanicAllocateTooMuch:
		return "too much memory allocated"
	case PanicUninitializedFnCall:
		return "call to uninitialized internal function"
	default:
		return fmt.Sprintf("unknown panic code (0x%x)", code)
	}
}

type revertKind int

const (
	revertNone revertKind = iota
	revertErrorString
	revertPanic
	revertCustom
)

type decodedRevert struct {
	kind   revertKind
	reason string
	panic  *big.Int
}

// decodeRevertPayload recognizes Error(string), Panic(uint256) and custom
// errors known to the decoder.
func decodeRevertPayload(payload []byte, to string, decoder Decoder) decodedRevert {
	if len(payload) < 4 {
		return decodedRevert{}
	}
	sel, args := payload[:4], payload[4:]
	switch {
	case bytes.Equal(sel, errorStringSelector):
		out, err := revertErrorArgs.Unpack(args)
		if err == nil && len(out) > 0 {
			if msg, ok := out[0].(string); ok {
				return decodedRevert{kind: revertErrorString, reason: msg}
			}
		}
	case bytes.Equal(sel, panicSelector):
		out, err := panicArgs.Unpack(args)
		if err == nil && len(out) > 0 {
			if code, ok := out[0].(*big.Int); ok {
				return decodedRevert{kind: revertPanic, reason: panicReason(code), panic: code}
			}
		}
	}
	if decoder != nil {
		if custom, ok := decoder.DecodeError(to, payload); ok && custom != nil {
			return decodedRevert{kind: revertCustom, reason: custom.String()}
		}
	}
	return decodedRevert{}
}

// payloadText returns the payload when it is a printable message rather than
// ABI data, as some clients put the plain reason in revertReason.
func payloadText(payload []byte) string {
	if len(payload) == 0 || !utf8.Valid(payload) {
		return ""
	}
	s := strings.TrimSpace(string(payload))
	for _, r := range s {
		if r < 0x20 && r != '\t' {
			return ""
		}
	}
	return s
}
