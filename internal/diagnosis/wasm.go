package diagnosis

import (
	"bytes"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// StylusPrefix is the discriminant Arbitrum prepends to activated WASM programs.
var StylusPrefix = []byte{0xEF, 0xF0, 0x00}

// WasmDetector decides whether a frame executed a WASM contract.
type WasmDetector interface {
	IsWasm(frame *RawCallFrame) bool
}

// FlagDetector trusts the wasm flag supplied alongside the trace.
type FlagDetector struct{}

func (FlagDetector) IsWasm(frame *RawCallFrame) bool { return frame.Wasm }

// CodePrefixDetector inspects deployed bytecode keyed by lower-case address.
type CodePrefixDetector struct {
	Codes map[string][]byte
}

func (d CodePrefixDetector) IsWasm(frame *RawCallFrame) bool {
	if len(d.Codes) == 0 || frame.To == "" {
		return false
	}
	return IsStylusCode(d.Codes[strings.ToLower(frame.To)])
}

func IsStylusCode(code []byte) bool {
	return bytes.HasPrefix(code, StylusPrefix)
}

// AddressSet marks a fixed set of contracts as WASM.
type AddressSet map[common.Address]struct{}

func NewAddressSet(addrs ...string) AddressSet {
	set := make(AddressSet, len(addrs))
	for _, a := range addrs {
		if common.IsHexAddress(a) {
			set[common.HexToAddress(a)] = struct{}{}
		}
	}
	return set
}

func (s AddressSet) IsWasm(frame *RawCallFrame) bool {
	if !common.IsHexAddress(frame.To) {
		return false
	}
	_, ok := s[common.HexToAddress(frame.To)]
	return ok
}

// AnyDetector reports WASM when any of its detectors does.
type AnyDetector []WasmDetector

func (a AnyDetector) IsWasm(frame *RawCallFrame) bool {
	for _, d := range a {
		if d != nil && d.IsWasm(frame) {
			return true
		}
	}
	return false
}
