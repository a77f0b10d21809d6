package diagnosis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type DecodedCall struct {
	Name string
	Args map[string]any
}

type DecodedError struct {
	Name string
	Args []any
}

// String renders the error as Name(arg0, arg1).
func (e *DecodedError) String() string {
	parts := make([]string, len(e.Args))
	for i, v := range e.Args {
		parts[i] = fmt.Sprintf("%v", normalizeValue(v))
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(parts, ", "))
}

// Decoder resolves calldata and revert payloads. It is best effort: a miss is
// reported with ok == false and never fails the analysis.
type Decoder interface {
	DecodeCall(to string, input []byte) (*DecodedCall, bool)
	DecodeError(to string, data []byte) (*DecodedError, bool)
}

// SymbolResolver maps a failing function to a source line when debug symbols
// are available.
type SymbolResolver interface {
	SourceLine(contract, function string) (uint32, bool)
}

type errSig struct {
	name   string
	inputs abi.Arguments
}

// ABIRegistry is a Decoder over a set of contract ABIs. Lookups try the ABI
// registered for the callee first, then every known selector.
type ABIRegistry struct {
	mu         sync.RWMutex
	byAddress  map[common.Address]*abi.ABI
	methods    map[[4]byte][]*abi.Method
	errorIndex map[[4]byte][]errSig
}

func NewABIRegistry() *ABIRegistry {
	return &ABIRegistry{
		byAddress:  make(map[common.Address]*abi.ABI),
		methods:    make(map[[4]byte][]*abi.Method),
		errorIndex: make(map[[4]byte][]errSig),
	}
}

// Register parses abiJSON and binds it to address. An empty address only
// feeds the global selector indexes.
func (r *ABIRegistry) Register(address string, abiJSON []byte) error {
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return fmt.Errorf("parse abi: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if address != "" {
		if !common.IsHexAddress(address) {
			return fmt.Errorf("invalid address %q", address)
		}
		r.byAddress[common.HexToAddress(address)] = &parsed
	}
	for name := range parsed.Methods {
		m := parsed.Methods[name]
		var key [4]byte
		copy(key[:], m.ID[:4])
		r.methods[key] = append(r.methods[key], &m)
	}
	for name, e := range parsed.Errors {
		var key [4]byte
		copy(key[:], e.ID[:4])
		r.errorIndex[key] = append(r.errorIndex[key], errSig{name: name, inputs: e.Inputs})
	}
	return nil
}

// LoadDir registers every <address>.json file in dir. Files whose base name is
// not an address are indexed by selector only.
func (r *ABIRegistry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return loaded, err
		}
		raw = unwrapArtifact(raw)
		base := strings.TrimSuffix(entry.Name(), ".json")
		address := ""
		if common.IsHexAddress(base) {
			address = base
		}
		if err := r.Register(address, raw); err != nil {
			return loaded, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		loaded++
	}
	return loaded, nil
}

// unwrapArtifact accepts either a bare ABI array or a compiler artifact with an
// "abi" field.
func unwrapArtifact(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return raw
	}
	var artifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(trimmed, &artifact); err != nil || len(artifact.ABI) == 0 {
		return raw
	}
	return artifact.ABI
}

func (r *ABIRegistry) DecodeCall(to string, input []byte) (*DecodedCall, bool) {
	if len(input) < 4 {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*abi.Method
	if contract, ok := r.contract(to); ok {
		if m, err := contract.MethodById(input[:4]); err == nil {
			candidates = append(candidates, m)
		}
	}
	var key [4]byte
	copy(key[:], input[:4])
	candidates = append(candidates, r.methods[key]...)

	for _, m := range candidates {
		args := make(map[string]interface{})
		if err := m.Inputs.UnpackIntoMap(args, input[4:]); err != nil {
			continue
		}
		for k, v := range args {
			args[k] = normalizeValue(v)
		}
		return &DecodedCall{Name: m.RawName, Args: args}, true
	}
	return nil, false
}

func (r *ABIRegistry) DecodeError(to string, data []byte) (*DecodedError, bool) {
	if len(data) < 4 {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if contract, ok := r.contract(to); ok {
		for name, e := range contract.Errors {
			if !bytes.Equal(e.ID[:4], data[:4]) {
				continue
			}
			if vs, err := e.Inputs.Unpack(data[4:]); err == nil {
				return &DecodedError{Name: name, Args: vs}, true
			}
		}
	}
	var key [4]byte
	copy(key[:], data[:4])
	for _, sig := range r.errorIndex[key] {
		vs, err := sig.inputs.Unpack(data[4:])
		if err != nil {
			continue
		}
		return &DecodedError{Name: sig.name, Args: vs}, true
	}
	return nil, false
}

func (r *ABIRegistry) contract(to string) (*abi.ABI, bool) {
	if !common.IsHexAddress(to) {
		return nil, false
	}
	c, ok := r.byAddress[common.HexToAddress(to)]
	return c, ok
}

// normalizeValue turns ABI-unpacked values into JSON-friendly ones so reports
// serialize identically on every run.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return "0"
		}
		return x.String()
	case common.Address:
		return strings.ToLower(x.Hex())
	case []byte:
		return hexutil.Encode(x)
	case [32]byte:
		return hexutil.Encode(x[:])
	case []common.Address:
		out := make([]any, len(x))
		for i, a := range x {
			out[i] = normalizeValue(a)
		}
		return out
	case []*big.Int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = normalizeValue(n)
		}
		return out
	default:
		return v
	}
}
