package diagnosis

// Location is the outcome of failure location. Failing is -1 when the
// transaction succeeded.
type Location struct {
	Failing int
	Path    []int
}

func (l Location) Found() bool { return l.Failing >= 0 }

// Locate finds the frame where the transaction's failure originated. Only an
// errored root fails the transaction. From there the first errored child is
// followed until a frame has no errored children.
func Locate(t *Tree) Location {
	cur := -1
	for _, r := range t.Roots() {
		if t.Node(r).failed() {
			cur = r
			break
		}
	}
	if cur < 0 {
		return Location{Failing: -1}
	}
	for {
		next := -1
		for _, c := range t.Children(cur) {
			if t.Node(c).failed() {
				next = c
				break
			}
		}
		if next < 0 {
			break
		}
		cur = next
	}
	return Location{Failing: cur, Path: t.PathTo(cur)}
}

// Backtrace renders the root-to-failure path.
func (l Location) Backtrace(t *Tree) []BacktraceItem {
	items := make([]BacktraceItem, 0, len(l.Path))
	for i, idx := range l.Path {
		n := t.Node(idx)
		items = append(items, BacktraceItem{
			From:     n.From,
			To:       n.To,
			Function: t.Function(idx),
			Depth:    uint32(i),
		})
	}
	return items
}

// caughtFailures lists errored frames that did not fail the transaction,
// in execution order.
func caughtFailures(t *Tree, loc Location) []int {
	onPath := make(map[int]struct{}, len(loc.Path))
	for _, idx := range loc.Path {
		onPath[idx] = struct{}{}
	}
	var out []int
	for i := 0; i < t.Len(); i++ {
		if !t.Node(i).failed() {
			continue
		}
		if _, ok := onPath[i]; ok {
			continue
		}
		out = append(out, i)
	}
	return out
}
