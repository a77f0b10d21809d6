package diagnosis

import (
	"fmt"
	"sort"
)

type ruleContext struct {
	tree   *Tree
	loc    Location
	class  Classification
	caught []int
}

type suggestionRule struct {
	name     string
	priority Priority
	check    func(rc *ruleContext) (issue, fix string, ok bool)
}

// TightGasHeadroomPercent is the share of the gas limit above which a
// successful or reverted transaction is flagged as running close to it.
const TightGasHeadroomPercent = 95

var suggestionRules = []suggestionRule{
	{name: "gas-exhausted", priority: PriorityHigh, check: ruleGasExhausted},
	{name: "revert-reason", priority: PriorityHigh, check: ruleRevertReason},
	{name: "solidity-panic", priority: PriorityHigh, check: ruleSolidityPanic},
	{name: "stylus-failure", priority: PriorityHigh, check: ruleStylusFailure},
	{name: "delegatecall-unverified", priority: PriorityMedium, check: ruleDelegateCallUnverified},
	{name: "tight-gas-headroom", priority: PriorityMedium, check: ruleTightGasHeadroom},
	{name: "failed-creation", priority: PriorityMedium, check: ruleFailedCreation},
	{name: "swallowed-call-failure", priority: PriorityLow, check: ruleSwallowedCallFailure},
	{name: "unsupported-call-type", priority: PriorityLow, check: ruleUnsupportedCallType},
}

// Suggest evaluates every rule and returns the fired suggestions ordered by
// priority, keeping rule order within a priority.
func Suggest(t *Tree, loc Location, class Classification) []Suggestion {
	rc := &ruleContext{tree: t, loc: loc, class: class, caught: caughtFailures(t, loc)}
	out := make([]Suggestion, 0, 4)
	for _, rule := range suggestionRules {
		issue, fix, ok := rule.check(rc)
		if !ok {
			continue
		}
		out = append(out, Suggestion{Issue: issue, Fix: fix, Priority: rule.priority})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.rank() < out[j].Priority.rank()
	})
	return out
}

func ruleGasExhausted(rc *ruleContext) (string, string, bool) {
	if rc.class.Status != StatusOutOfGas {
		return "", "", false
	}
	n := rc.tree.Node(rc.loc.Failing)
	issue := fmt.Sprintf("%s ran out of gas", rc.tree.Function(rc.loc.Failing))
	if n.Gas > 0 {
		issue += fmt.Sprintf(" (%d of %d gas used)", n.GasUsed, n.Gas)
	}
	return issue, "Increase the transaction gas limit or reduce the work done in this call, e.g. bound loops and storage writes", true
}

func ruleRevertReason(rc *ruleContext) (string, string, bool) {
	if rc.class.Status != StatusReverted || rc.class.revert == revertPanic {
		return "", "", false
	}
	return fmt.Sprintf("%s reverted: %s", rc.tree.Function(rc.loc.Failing), rc.class.RootCause),
		"Check the require/revert condition in the failing function against the call arguments and the contract state at the time of the transaction",
		true
}

func ruleSolidityPanic(rc *ruleContext) (string, string, bool) {
	if rc.class.revert != revertPanic || rc.class.PanicCode == nil {
		return "", "", false
	}
	fix := "Guard the operation that triggered the panic with an explicit check"
	if rc.class.PanicCode.IsUint64() {
		switch rc.class.PanicCode.Uint64() {
		case PanicArithmeticOverflow:
			fix = "Validate operand ranges before arithmetic or use an unchecked block only where wrapping is intended"
		case PanicDivideByZero:
			fix = "Check that the divisor is non-zero before dividing"
		case PanicArrayOutOfBounds, PanicPopEmptyArray:
			fix = "Check the array length before indexing or popping"
		case PanicAssertFailed:
			fix = "An assert invariant was broken; review the state transition that precedes it"
		}
	}
	return fmt.Sprintf("Solidity panic in %s: %s", rc.tree.Function(rc.loc.Failing), rc.class.RootCause), fix, true
}

func ruleStylusFailure(rc *ruleContext) (string, string, bool) {
	if rc.class.StylusCode == "" {
		return "", "", false
	}
	fix := "Replay the transaction locally with cargo stylus replay to inspect the WASM execution"
	switch rc.class.StylusCode {
	case "out_of_ink":
		fix = "Raise the gas limit; ink is metered from gas at the chain's ink price"
	case "program_not_activated", "program_expired":
		fix = "Activate the program with cargo stylus activate before calling it"
	case "program_needs_upgrade":
		fix = "Reactivate the program against the current Stylus version"
	}
	return fmt.Sprintf("Stylus program failure: %s", rc.class.RootCause), fix, true
}

func ruleDelegateCallUnverified(rc *ruleContext) (string, string, bool) {
	for i := 0; i < rc.tree.Len(); i++ {
		n := rc.tree.Node(i)
		if n.CallType != CallTypeDelegateCall || n.FunctionName != nil {
			continue
		}
		return fmt.Sprintf("DELEGATECALL from %s to %s targets code with no known ABI", n.From, n.To),
			"Verify the delegate target's bytecode and ABI; a delegatecall runs foreign code against the caller's storage",
			true
	}
	return "", "", false
}

func ruleTightGasHeadroom(rc *ruleContext) (string, string, bool) {
	if rc.class.Status == StatusOutOfGas {
		return "", "", false
	}
	for _, r := range rc.tree.Roots() {
		n := rc.tree.Node(r)
		if n.Gas == 0 {
			continue
		}
		if n.GasUsed*100 >= n.Gas*TightGasHeadroomPercent {
			return fmt.Sprintf("Transaction used %d of its %d gas limit", n.GasUsed, n.Gas),
				"Leave more headroom in the gas limit; small state changes can push the transaction out of gas",
				true
		}
	}
	return "", "", false
}

func ruleFailedCreation(rc *ruleContext) (string, string, bool) {
	for i := 0; i < rc.tree.Len(); i++ {
		n := rc.tree.Node(i)
		if !isCreation(n.CallType) || !n.failed() {
			continue
		}
		return fmt.Sprintf("%s from %s failed: %s", n.CallType, n.From, *n.Error),
			"Check the constructor arguments, the init code size limit and, for CREATE2, that the salt was not already used",
			true
	}
	return "", "", false
}

func ruleSwallowedCallFailure(rc *ruleContext) (string, string, bool) {
	if len(rc.caught) == 0 {
		return "", "", false
	}
	n := rc.tree.Node(rc.caught[0])
	issue := fmt.Sprintf("%s to %s failed without failing its caller (%s)", n.CallType, n.To, *n.Error)
	if len(rc.caught) > 1 {
		issue += fmt.Sprintf(" and %d more", len(rc.caught)-1)
	}
	return issue, "Make sure the caller checks the return value of low-level calls or uses try/catch deliberately", true
}

func ruleUnsupportedCallType(rc *ruleContext) (string, string, bool) {
	for i := 0; i < rc.tree.Len(); i++ {
		n := rc.tree.Node(i)
		if n.Anomaly == "" {
			continue
		}
		return fmt.Sprintf("Trace contains a frame with %s", n.Anomaly),
			"Confirm the node's tracer version; the frame was kept but may be analyzed incompletely",
			true
	}
	return "", "", false
}
