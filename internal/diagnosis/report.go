package diagnosis

import (
	"sort"
	"strings"
	"time"
)

// Identity is the caller-supplied part of a report.
type Identity struct {
	ID        string
	TxHash    string
	Chain     string
	CreatedAt time.Time
}

// Assemble composes the stage outputs into a report and checks its
// invariants. A violation is returned as an error, never repaired.
func Assemble(id Identity, t *Tree, loc Location, class Classification, suggestions []Suggestion, stylus *StylusTrace, symbols SymbolResolver) (*Report, error) {
	r := &Report{
		ID:          id.ID,
		TxHash:      id.TxHash,
		Chain:       id.Chain,
		Status:      class.Status,
		RootCause:   class.RootCause,
		Backtrace:   loc.Backtrace(t),
		CallTree:    t.CallNodes(),
		StylusTrace: stylus,
		Suggestions: suggestions,
		CreatedAt:   id.CreatedAt,
	}
	if r.Suggestions == nil {
		r.Suggestions = []Suggestion{}
	}
	for _, w := range t.Warnings() {
		r.Warnings = append(r.Warnings, Warning{Kind: w.Kind, Detail: w.Detail})
	}
	if loc.Found() {
		n := t.Node(loc.Failing)
		ff := &FailingFrame{
			Contract: n.To,
			Function: t.Function(loc.Failing),
			Error:    *n.Error,
		}
		if symbols != nil {
			if line, ok := symbols.SourceLine(ff.Contract, ff.Function); ok {
				ff.SourceLine = &line
			}
		}
		r.FailingFrame = ff
	}
	if err := r.Validate(t.HasWasm()); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the report's internal consistency. hasWasm states whether
// the analyzed tree touched a WASM contract.
func (r *Report) Validate(hasWasm bool) error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return invariant("report id is empty")
	case strings.TrimSpace(r.TxHash) == "":
		return invariant("transaction hash is empty")
	case strings.TrimSpace(r.Chain) == "":
		return invariant("chain is empty")
	case !r.Status.Valid():
		return invariant("unknown status %q", r.Status)
	case len(r.CallTree) == 0:
		return invariant("call tree is empty")
	}

	success := r.Status == StatusSuccess
	if success && r.FailingFrame != nil {
		return invariant("status success with a failing frame")
	}
	if success && len(r.Backtrace) > 0 {
		return invariant("status success with a backtrace of %d items", len(r.Backtrace))
	}
	if !success && r.FailingFrame == nil {
		return invariant("status %s without a failing frame", r.Status)
	}
	if !success && len(r.Backtrace) == 0 {
		return invariant("status %s with an empty backtrace", r.Status)
	}
	if !success && strings.TrimSpace(r.RootCause) == "" {
		return invariant("status %s without a root cause", r.Status)
	}
	for i, item := range r.Backtrace {
		if item.Depth != uint32(i) {
			return invariant("backtrace item %d has depth %d", i, item.Depth)
		}
	}
	if n := len(r.Backtrace); n > 0 && r.FailingFrame != nil && r.Backtrace[n-1].To != r.FailingFrame.Contract {
		return invariant("backtrace ends at %s, failing frame is %s", r.Backtrace[n-1].To, r.FailingFrame.Contract)
	}
	if !sort.SliceIsSorted(r.Suggestions, func(i, j int) bool {
		return r.Suggestions[i].Priority.rank() < r.Suggestions[j].Priority.rank()
	}) {
		return invariant("suggestions are not ordered by priority")
	}
	for _, s := range r.Suggestions {
		if s.Priority.rank() > PriorityLow.rank() {
			return invariant("suggestion has unknown priority %q", s.Priority)
		}
	}
	if hasWasm != (r.StylusTrace != nil) {
		return invariant("stylus trace presence %t does not match wasm frames %t", r.StylusTrace != nil, hasWasm)
	}
	return nil
}
