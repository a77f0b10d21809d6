package diagnosis

import (
	"strings"
	"time"
)

// RawCallFrame is one frame of a callTracer result. Numeric fields are kept as
// the node sent them (0x-hex or decimal) and validated while the tree is built.
type RawCallFrame struct {
	Type         string         `json:"type"`
	From         string         `json:"from"`
	To           string         `json:"to,omitempty"`
	Value        string         `json:"value,omitempty"`
	Gas          string         `json:"gas,omitempty"`
	GasUsed      string         `json:"gasUsed,omitempty"`
	Input        string         `json:"input,omitempty"`
	Output       string         `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
	RevertReason string         `json:"revertReason,omitempty"`
	InkUsed      string         `json:"inkUsed,omitempty"`
	Wasm         bool           `json:"wasm,omitempty"`
	Calls        []RawCallFrame `json:"calls,omitempty"`
}

type TxStatus string

const (
	StatusSuccess  TxStatus = "success"
	StatusReverted TxStatus = "reverted"
	StatusOutOfGas TxStatus = "outofgas"
	StatusFailed   TxStatus = "failed"
)

func (s TxStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusReverted, StatusOutOfGas, StatusFailed:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

const (
	CallTypeCall         = "CALL"
	CallTypeCallCode     = "CALLCODE"
	CallTypeDelegateCall = "DELEGATECALL"
	CallTypeStaticCall   = "STATICCALL"
	CallTypeCreate       = "CREATE"
	CallTypeCreate2      = "CREATE2"
	CallTypeSelfDestruct = "SELFDESTRUCT"
)

var knownCallTypes = map[string]struct{}{
	CallTypeCall:         {},
	CallTypeCallCode:     {},
	CallTypeDelegateCall: {},
	CallTypeStaticCall:   {},
	CallTypeCreate:       {},
	CallTypeCreate2:      {},
	CallTypeSelfDestruct: {},
}

func isCreation(callType string) bool {
	return callType == CallTypeCreate || callType == CallTypeCreate2
}

type CallNode struct {
	CallType     string         `json:"call_type"`
	From         string         `json:"from"`
	To           string         `json:"to"`
	Value        string         `json:"value"`
	Gas          uint64         `json:"gas"`
	GasUsed      uint64         `json:"gas_used"`
	Input        string         `json:"input"`
	Output       *string        `json:"output"`
	Error        *string        `json:"error"`
	FunctionName *string        `json:"function_name"`
	DecodedInput map[string]any `json:"decoded_input"`
	Wasm         bool           `json:"wasm,omitempty"`
	Anomaly      string         `json:"anomaly,omitempty"`
	Calls        []CallNode     `json:"calls"`
}

func (n *CallNode) failed() bool {
	return n.Error != nil && strings.TrimSpace(*n.Error) != ""
}

type BacktraceItem struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Function string `json:"function"`
	Depth    uint32 `json:"depth"`
}

type FailingFrame struct {
	Contract   string  `json:"contract"`
	Function   string  `json:"function"`
	Error      string  `json:"error"`
	SourceLine *uint32 `json:"source_line"`
}

type StylusTrace struct {
	InkUsed       uint64   `json:"ink_used"`
	FunctionCalls []string `json:"function_calls"`
	ReplayCommand string   `json:"replay_command"`
}

type Suggestion struct {
	Issue    string   `json:"issue"`
	Fix      string   `json:"fix"`
	Priority Priority `json:"priority"`
}

type Report struct {
	ID           string          `json:"id"`
	TxHash       string          `json:"tx_hash"`
	Chain        string          `json:"chain"`
	Status       TxStatus        `json:"status"`
	RootCause    string          `json:"root_cause"`
	FailingFrame *FailingFrame   `json:"failing_frame"`
	Backtrace    []BacktraceItem `json:"backtrace"`
	CallTree     []CallNode      `json:"call_tree"`
	StylusTrace  *StylusTrace    `json:"stylus_trace"`
	Suggestions  []Suggestion    `json:"suggestions"`
	Warnings     []Warning       `json:"warnings,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Warning is a non-fatal engine error kept on the report.
type Warning struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
}
