package diagnosis

import (
	"fmt"
	"math/big"
	"strings"
)

type Classification struct {
	Status    TxStatus
	RootCause string
	// Rule names the table entry that matched, empty on success.
	Rule string

	revert     revertKind
	PanicCode  *big.Int
	StylusCode string
}

type classifyInput struct {
	node     *CallNode
	function string
	payload  []byte
	decoder  Decoder
	errText  string
}

type classRule struct {
	name  string
	match func(in *classifyInput) (Classification, bool)
}

// classificationRules is evaluated in order; the first match wins. The
// generic rule always matches so every failing frame is classified.
var classificationRules = []classRule{
	{name: "out_of_gas", match: matchOutOfGas},
	{name: "revert", match: matchRevert},
	{name: "stylus", match: matchStylus},
	{name: "generic", match: matchGeneric},
}

// Classify maps the failing frame to a status and root cause.
func Classify(t *Tree, loc Location, decoder Decoder) (Classification, error) {
	if !loc.Found() {
		return Classification{Status: StatusSuccess, RootCause: "transaction executed successfully"}, nil
	}
	n := t.Node(loc.Failing)
	in := &classifyInput{
		node:     n,
		function: t.Function(loc.Failing),
		payload:  t.nodes[loc.Failing].payload,
		decoder:  decoder,
		errText:  strings.TrimSpace(*n.Error),
	}
	for _, rule := range classificationRules {
		c, ok := rule.match(in)
		if !ok {
			continue
		}
		c.Rule = rule.name
		if c.Status == StatusSuccess || !c.Status.Valid() || c.RootCause == "" {
			return Classification{}, &Error{
				Kind:   KindClassificationAmbiguous,
				Detail: fmt.Sprintf("rule %s produced status %q for failing frame %s", rule.name, c.Status, n.To),
			}
		}
		return c, nil
	}
	return Classification{}, &Error{
		Kind:   KindClassificationAmbiguous,
		Detail: fmt.Sprintf("no rule matched error %q", in.errText),
	}
}

func matchOutOfGas(in *classifyInput) (Classification, bool) {
	n := in.node
	exhausted := n.Gas > 0 && n.GasUsed >= n.Gas
	if !exhausted && !isOutOfGasError(in.errText) {
		return Classification{}, false
	}
	cause := fmt.Sprintf("out of gas in %s at %s", in.function, contractLabel(n))
	if n.Gas > 0 {
		cause += fmt.Sprintf(": used %d of %d gas", n.GasUsed, n.Gas)
	}
	return Classification{Status: StatusOutOfGas, RootCause: cause}, true
}

const revertedPrefix = "execution reverted"

// outOfGasErrors are the VM's own out-of-gas messages. A revert reason that
// merely mentions gas does not count.
var outOfGasErrors = []string{
	"out of gas",
	"contract creation code storage out of gas",
}

func isOutOfGasError(errText string) bool {
	lower := strings.ToLower(strings.TrimSpace(errText))
	if strings.HasPrefix(lower, revertedPrefix) {
		return false
	}
	for _, msg := range outOfGasErrors {
		if lower == msg || strings.HasPrefix(lower, msg+":") {
			return true
		}
	}
	return false
}

func matchRevert(in *classifyInput) (Classification, bool) {
	if d := decodeRevertPayload(in.payload, in.node.To, in.decoder); d.kind != revertNone {
		c := Classification{Status: StatusReverted, revert: d.kind}
		switch d.kind {
		case revertErrorString:
			c.RootCause = fmt.Sprintf("%s: %s", revertedPrefix, d.reason)
		case revertPanic:
			c.PanicCode = d.panic
			c.RootCause = fmt.Sprintf("%s: panic 0x%02x (%s)", revertedPrefix, d.panic, d.reason)
		case revertCustom:
			c.RootCause = fmt.Sprintf("%s: custom error %s", revertedPrefix, d.reason)
		}
		return c, true
	}

	lower := strings.ToLower(in.errText)
	if !strings.HasPrefix(lower, revertedPrefix) {
		return Classification{}, false
	}
	reason := strings.TrimSpace(strings.TrimPrefix(in.errText[len(revertedPrefix):], ":"))
	if reason == "" {
		reason = payloadText(in.payload)
	}
	if in.node.Wasm && stylusPanicFor(reason) != nil {
		return Classification{}, false
	}
	if reason != "" {
		return Classification{
			Status:    StatusReverted,
			RootCause: fmt.Sprintf("%s: %s", revertedPrefix, reason),
			revert:    revertErrorString,
		}, true
	}
	if in.node.Wasm {
		return Classification{}, false
	}
	return Classification{Status: StatusReverted, RootCause: revertedPrefix + " without a reason"}, true
}

type stylusPanic struct {
	code    string
	markers []string
	explain string
}

var stylusPanics = []stylusPanic{
	{code: "out_of_ink", markers: []string{"out of ink"}, explain: "the WASM program ran out of ink"},
	{code: "unreachable", markers: []string{"unreachable"}, explain: "the WASM program hit an unreachable instruction, usually a Rust panic"},
	{code: "memory_out_of_bounds", markers: []string{"memory out of bounds", "out of bounds memory access"}, explain: "the WASM program accessed memory out of bounds"},
	{code: "stack_overflow", markers: []string{"stack overflow", "call stack exhausted"}, explain: "the WASM program overflowed its stack"},
	{code: "divide_by_zero", markers: []string{"divide by zero", "integer divide by zero", "division by zero"}, explain: "the WASM program divided by zero"},
	{code: "integer_overflow", markers: []string{"integer overflow"}, explain: "the WASM program hit an integer overflow trap"},
	{code: "program_not_activated", markers: []string{"program not activated"}, explain: "the Stylus program is deployed but not activated"},
	{code: "program_needs_upgrade", markers: []string{"program needs upgrade"}, explain: "the Stylus program was activated with an older Stylus version and needs upgrade"},
	{code: "program_expired", markers: []string{"program expired"}, explain: "the Stylus program activation expired and must be reactivated"},
	{code: "max_recursion_depth", markers: []string{"max recursion depth"}, explain: "the Stylus program exceeded the maximum recursion depth"},
}

func matchStylus(in *classifyInput) (Classification, bool) {
	if !in.node.Wasm {
		return Classification{}, false
	}
	p := stylusPanicFor(in.errText + " " + payloadText(in.payload))
	if p == nil {
		return Classification{}, false
	}
	return Classification{
		Status:     StatusFailed,
		RootCause:  fmt.Sprintf("stylus %s in %s at %s: %s", p.code, in.function, contractLabel(in.node), p.explain),
		StylusCode: p.code,
	}, true
}

func stylusPanicFor(text string) *stylusPanic {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	for i := range stylusPanics {
		for _, marker := range stylusPanics[i].markers {
			if strings.Contains(lower, marker) {
				return &stylusPanics[i]
			}
		}
	}
	return nil
}

func matchGeneric(in *classifyInput) (Classification, bool) {
	return Classification{Status: StatusFailed, RootCause: "execution failed: " + in.errText}, true
}

func contractLabel(n *CallNode) string {
	if n.To == "" {
		return "contract creation"
	}
	return n.To
}
