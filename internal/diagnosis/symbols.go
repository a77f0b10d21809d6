package diagnosis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// SymbolTable maps contract functions to source lines. Keys are the contract
// address and the display function name (decoded name or 0x selector).
type SymbolTable struct {
	mu    sync.RWMutex
	lines map[string]map[string]uint32
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{lines: map[string]map[string]uint32{}}
}

// Add records the line of function in contract.
func (s *SymbolTable) Add(contract, function string, line uint32) error {
	if !common.IsHexAddress(contract) {
		return fmt.Errorf("invalid contract address %q", contract)
	}
	function = symbolKey(function)
	if function == "" {
		return fmt.Errorf("empty function name for %s", contract)
	}
	addr := strings.ToLower(common.HexToAddress(contract).Hex())
	s.mu.Lock()
	defer s.mu.Unlock()
	fns := s.lines[addr]
	if fns == nil {
		fns = map[string]uint32{}
		s.lines[addr] = fns
	}
	fns[function] = line
	return nil
}

// LoadDir reads every <address>.json file in dir. Each file is an object of
// function name or selector to line number.
func (s *SymbolTable) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		address := strings.TrimSuffix(entry.Name(), ".json")
		if !common.IsHexAddress(address) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return loaded, err
		}
		var fns map[string]uint32
		if err := json.Unmarshal(raw, &fns); err != nil {
			return loaded, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		for fn, line := range fns {
			if err := s.Add(address, fn, line); err != nil {
				return loaded, fmt.Errorf("%s: %w", entry.Name(), err)
			}
		}
		loaded++
	}
	return loaded, nil
}

func (s *SymbolTable) SourceLine(contract, function string) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	line, ok := s.lines[strings.ToLower(contract)][symbolKey(function)]
	return line, ok
}

// Selectors compare case-insensitively, names do not.
func symbolKey(function string) string {
	function = strings.TrimSpace(function)
	if strings.HasPrefix(function, "0x") || strings.HasPrefix(function, "0X") {
		return strings.ToLower(function)
	}
	return function
}
