package diagnosis

import (
	"fmt"
	"strconv"
	"strings"
)

// Tree is an arena of call nodes. Nodes are stored in pre-order, so index
// order is execution order and a parent always precedes its children.
type Tree struct {
	nodes    []treeNode
	roots    []int
	warnings []*Error
}

type treeNode struct {
	call     CallNode
	parent   int
	depth    int
	pos      int
	children []int

	input    []byte
	payload  []byte
	ink      uint64
	function string
}

type buildItem struct {
	raw    *RawCallFrame
	parent int
	depth  int
	pos    int
}

// BuildTree converts a raw callTracer forest into an arena tree. The raw
// frames are only read. Decoder and detector may be nil.
func BuildTree(frames []RawCallFrame, decoder Decoder, detector WasmDetector, inkPerGas uint64) (*Tree, error) {
	if len(frames) == 0 {
		return nil, &Error{Kind: KindMalformedTrace, Detail: "trace has no frames"}
	}
	t := &Tree{}
	stack := make([]buildItem, 0, len(frames))
	for i := len(frames) - 1; i >= 0; i-- {
		stack = append(stack, buildItem{raw: &frames[i], parent: -1, depth: 0, pos: i})
	}
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n, err := t.newNode(item, decoder, detector, inkPerGas)
		if err != nil {
			return nil, err
		}
		idx := len(t.nodes)
		t.nodes = append(t.nodes, n)
		if item.parent < 0 {
			t.roots = append(t.roots, idx)
		} else {
			t.nodes[item.parent].children = append(t.nodes[item.parent].children, idx)
		}
		calls := item.raw.Calls
		for i := len(calls) - 1; i >= 0; i-- {
			stack = append(stack, buildItem{raw: &calls[i], parent: idx, depth: item.depth + 1, pos: i})
		}
	}
	return t, nil
}

func (t *Tree) newNode(item buildItem, decoder Decoder, detector WasmDetector, inkPerGas uint64) (treeNode, error) {
	raw := item.raw
	fail := func(format string, args ...any) (treeNode, error) {
		return treeNode{}, malformed(t.tracePath(item.parent, item.pos), format, args...)
	}

	callType := strings.ToUpper(strings.TrimSpace(raw.Type))
	if callType == "" {
		return fail("missing call type")
	}
	from, ok := parseAddress(raw.From)
	if !ok {
		return fail("invalid from address %q", raw.From)
	}
	to, ok := parseAddress(raw.To)
	if !ok {
		return fail("invalid to address %q", raw.To)
	}
	value, ok := parseValue(raw.Value)
	if !ok {
		return fail("invalid value %q", raw.Value)
	}
	gas, ok := parseUint64(raw.Gas)
	if !ok {
		return fail("invalid gas %q", raw.Gas)
	}
	gasUsed, ok := parseUint64(raw.GasUsed)
	if !ok {
		return fail("invalid gasUsed %q", raw.GasUsed)
	}
	input, ok := parseHexBytes(raw.Input)
	if !ok {
		return fail("invalid input")
	}
	output, ok := parseHexBytes(raw.Output)
	if !ok {
		return fail("invalid output")
	}

	n := treeNode{
		parent: item.parent,
		depth:  item.depth,
		pos:    item.pos,
		input:  input,
		call: CallNode{
			CallType: callType,
			From:     from,
			To:       to,
			Value:    value,
			Gas:      gas,
			GasUsed:  gasUsed,
			Input:    encodeHex(input),
		},
	}
	if _, known := knownCallTypes[callType]; !known {
		n.call.Anomaly = fmt.Sprintf("unsupported call type %s", callType)
		t.warnings = append(t.warnings, &Error{
			Kind:   KindUnsupportedCallType,
			Detail: fmt.Sprintf("frame %s: %s", t.tracePath(item.parent, item.pos), n.call.Anomaly),
		})
	}
	if len(output) > 0 {
		out := encodeHex(output)
		n.call.Output = &out
	}
	if msg := strings.TrimSpace(raw.Error); msg != "" {
		n.call.Error = &msg
		n.payload = revertPayload(output, raw.RevertReason)
	}

	if detector != nil && detector.IsWasm(raw) {
		n.call.Wasm = true
		if raw.InkUsed != "" {
			ink, ok := parseUint64(raw.InkUsed)
			if !ok {
				return fail("invalid inkUsed %q", raw.InkUsed)
			}
			n.ink = ink
		} else {
			n.ink = mulSaturating(gasUsed, inkPerGas)
		}
	}

	if decoder != nil && len(input) >= 4 && !isCreation(callType) {
		if decoded, ok := decoder.DecodeCall(to, input); ok && decoded != nil && decoded.Name != "" {
			name := decoded.Name
			n.call.FunctionName = &name
			n.call.DecodedInput = decoded.Args
		}
	}
	n.function = displayFunction(&n.call, input)
	return n, nil
}

func displayFunction(call *CallNode, input []byte) string {
	switch {
	case call.FunctionName != nil:
		return *call.FunctionName
	case isCreation(call.CallType):
		return "constructor"
	case len(input) == 0 && call.Value != "0":
		return "receive"
	case len(input) < 4:
		return "fallback"
	default:
		return encodeHex(input[:4])
	}
}

// tracePath renders the traceAddress of a child at pos under parent, e.g. "0.2.1".
func (t *Tree) tracePath(parent, pos int) string {
	parts := []string{strconv.Itoa(pos)}
	for p := parent; p >= 0; p = t.nodes[p].parent {
		parts = append(parts, strconv.Itoa(t.nodes[p].pos))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

func (t *Tree) Len() int { return len(t.nodes) }

// Warnings lists the non-fatal problems met while building, in pre-order.
func (t *Tree) Warnings() []*Error { return t.warnings }

func (t *Tree) Roots() []int { return t.roots }

func (t *Tree) Node(i int) *CallNode { return &t.nodes[i].call }

func (t *Tree) Children(i int) []int { return t.nodes[i].children }

func (t *Tree) Parent(i int) int { return t.nodes[i].parent }

func (t *Tree) Depth(i int) int { return t.nodes[i].depth }

// Function is the display name of the node: the decoded name, or a selector
// or constructor/fallback/receive placeholder.
func (t *Tree) Function(i int) string { return t.nodes[i].function }

func (t *Tree) HasWasm() bool {
	for i := range t.nodes {
		if t.nodes[i].call.Wasm {
			return true
		}
	}
	return false
}

// PathTo returns the node indices from the root down to i, inclusive.
func (t *Tree) PathTo(i int) []int {
	path := make([]int, t.nodes[i].depth+1)
	for p := i; p >= 0; p = t.nodes[p].parent {
		path[t.nodes[p].depth] = p
	}
	return path
}

// CallNodes materializes the nested forest. Children are finished before
// their parents by walking the arena backwards.
func (t *Tree) CallNodes() []CallNode {
	built := make([]CallNode, len(t.nodes))
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := &t.nodes[i]
		cn := n.call
		cn.Calls = make([]CallNode, len(n.children))
		for j, c := range n.children {
			cn.Calls[j] = built[c]
		}
		built[i] = cn
	}
	out := make([]CallNode, len(t.roots))
	for j, r := range t.roots {
		out[j] = built[r]
	}
	return out
}
