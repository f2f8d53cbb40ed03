package treelayout

import (
	"strings"
	"testing"
)

func mustRoot(t *testing.T, e *Engine, key, label string) NodeID {
	t.Helper()
	id, err := e.AddRoot(NodeSpec{Key: key, Label: label})
	if err != nil {
		t.Fatalf("add root %s: %v", key, err)
	}
	return id
}

func mustChild(t *testing.T, e *Engine, parent NodeID, key, label string) NodeID {
	t.Helper()
	id, err := e.AddChild(parent, NodeSpec{Key: key, Label: label})
	if err != nil {
		t.Fatalf("add child %s: %v", key, err)
	}
	return id
}

func mustNode(t *testing.T, e *Engine, id NodeID) Node {
	t.Helper()
	n, ok := e.Node(id)
	if !ok {
		t.Fatalf("node %d not found", id)
	}
	return n
}

func TestRecompute_stacksSiblingsWithSpacing(t *testing.T) {
	const h, s = 16.0, 4.0
	e := New(Options{BaseIndent: 20, IndentUnit: 16, Spacing: s, RowHeight: h, Width: 100})
	root := mustRoot(t, e, "cable", "Cable 01")
	c1 := mustChild(t, e, root, "f1", "Fiber 1")
	c2 := mustChild(t, e, root, "f2", "Fiber 2")
	c3 := mustChild(t, e, root, "f3", "Fiber 3")

	if _, err := e.Expand(root); err != nil {
		t.Fatalf("expand: %v", err)
	}

	n1, n2, n3 := mustNode(t, e, c1), mustNode(t, e, c2), mustNode(t, e, c3)
	if n2.Geometry.Y != n1.Geometry.Y+h+s {
		t.Fatalf("expected c2.y = c1.y + H + S, got c1=%v c2=%v", n1.Geometry.Y, n2.Geometry.Y)
	}
	if n3.Geometry.Y != n2.Geometry.Y+h+s {
		t.Fatalf("expected c3.y = c2.y + H + S, got c2=%v c3=%v", n2.Geometry.Y, n3.Geometry.Y)
	}
	if n1.Geometry.X != n2.Geometry.X || n2.Geometry.X != n3.Geometry.X {
		t.Fatalf("siblings must share x, got %v %v %v", n1.Geometry.X, n2.Geometry.X, n3.Geometry.X)
	}
	if n1.Geometry.X != 20+16 || n1.Level != 1 {
		t.Fatalf("expected level 1 at x=36, got level %d x=%v", n1.Level, n1.Geometry.X)
	}
	if w, ht := e.Size(); w != 36+100 || ht != 4*(h+s) {
		t.Fatalf("unexpected content size %vx%v", w, ht)
	}
}

func TestAddChild_ordersByDisplayName(t *testing.T) {
	e := New(DefaultOptions())
	root := mustRoot(t, e, "cable", "Cable 01")
	mustChild(t, e, root, "c", "Fiber 10")
	mustChild(t, e, root, "a", "Fiber 2")
	mustChild(t, e, root, "b", "Fiber 1")

	var got []string
	for _, id := range mustNode(t, e, root).Children {
		got = append(got, mustNode(t, e, id).Label)
	}
	want := []string{"Fiber 1", "Fiber 2", "Fiber 10"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}

	// Order is stable across recomputes.
	e.Recompute()
	e.Recompute()
	var again []string
	for _, id := range mustNode(t, e, root).Children {
		again = append(again, mustNode(t, e, id).Label)
	}
	if strings.Join(again, ",") != strings.Join(want, ",") {
		t.Fatalf("order changed across recomputes: %v", again)
	}
}

func TestCollapse_hidesWholeSubtreeRegardlessOfOwnExpandState(t *testing.T) {
	e := New(DefaultOptions())
	root := mustRoot(t, e, "cable", "Cable 01")
	tube := mustChild(t, e, root, "t1", "Tube 1")
	fiber := mustChild(t, e, tube, "f1", "Fiber 1")

	if _, err := e.Expand(root); err != nil {
		t.Fatalf("expand root: %v", err)
	}
	if _, err := e.Expand(tube); err != nil {
		t.Fatalf("expand tube: %v", err)
	}
	if !mustNode(t, e, fiber).CellVisible {
		t.Fatalf("expected fiber visible after expanding its ancestors")
	}

	if _, err := e.Collapse(root); err != nil {
		t.Fatalf("collapse: %v", err)
	}
	for _, id := range []NodeID{tube, fiber} {
		n := mustNode(t, e, id)
		if n.CellVisible || n.Geometry != (Geometry{}) {
			t.Fatalf("expected %s hidden with zero geometry, got %+v", n.Key, n)
		}
	}
	if !mustNode(t, e, tube).Expanded {
		t.Fatalf("collapse of an ancestor must not reset the tube's own expanded flag")
	}

	if _, err := e.Expand(root); err != nil {
		t.Fatalf("re-expand: %v", err)
	}
	if !mustNode(t, e, fiber).CellVisible {
		t.Fatalf("expected fiber visible again since the tube stayed expanded")
	}
}

func TestSetVisible_hiddenChildDoesNotTakeSpace(t *testing.T) {
	e := New(Options{RowHeight: 10, Width: 50})
	root := mustRoot(t, e, "cable", "Cable")
	c1 := mustChild(t, e, root, "f1", "Fiber 1")
	c2 := mustChild(t, e, root, "f2", "Fiber 2")
	c3 := mustChild(t, e, root, "f3", "Fiber 3")
	if err := e.SetVisible(c2, false); err != nil {
		t.Fatalf("set visible: %v", err)
	}
	if _, err := e.Expand(root); err != nil {
		t.Fatalf("expand: %v", err)
	}

	if n := mustNode(t, e, c2); n.CellVisible {
		t.Fatalf("hidden node must not be cell visible")
	}
	if mustNode(t, e, c3).Geometry.Y != mustNode(t, e, c1).Geometry.Y+10 {
		t.Fatalf("expected c3 directly below c1")
	}
}

func TestRecompute_reportsOnlyChanges(t *testing.T) {
	e := New(DefaultOptions())
	root := mustRoot(t, e, "cable", "Cable")
	mustChild(t, e, root, "f1", "Fiber 1")

	first := e.Recompute()
	if len(first.Placements) != 2 {
		t.Fatalf("expected both nodes in the first batch, got %d", len(first.Placements))
	}
	if len(first.Events) != 2 || first.Events[0].Kind != EventAdded {
		t.Fatalf("expected two cell_added events, got %+v", first.Events)
	}

	second := e.Recompute()
	if len(second.Placements) != 0 || len(second.Events) != 0 {
		t.Fatalf("expected an empty batch, got %+v", second)
	}

	up, err := e.Expand(root)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(up.Placements) != 2 {
		t.Fatalf("expected root and child to change on expand, got %+v", up.Placements)
	}
	if len(up.Events) != 1 || up.Events[0].Kind != EventExpanded || up.Events[0].Key != "cable" {
		t.Fatalf("expected one expand event, got %+v", up.Events)
	}
}

func TestRecompute_rootsStackVertically(t *testing.T) {
	e := New(Options{RowHeight: 10, Spacing: 2, Width: 50})
	r1 := mustRoot(t, e, "c1", "Cable 1")
	mustChild(t, e, r1, "f1", "Fiber 1")
	r2 := mustRoot(t, e, "c2", "Cable 2")
	if _, err := e.Expand(r1); err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got := mustNode(t, e, r2).Geometry.Y; got != 24 {
		t.Fatalf("expected second root below the first root's rows, got y=%v", got)
	}
	if mustNode(t, e, r2).Level != 0 {
		t.Fatalf("roots are level 0")
	}
}

func TestNearestCellVisible(t *testing.T) {
	e := New(DefaultOptions())
	root := mustRoot(t, e, "cable", "Cable")
	tube := mustChild(t, e, root, "t1", "Tube 1")
	fiber := mustChild(t, e, tube, "f1", "Fiber 1")
	if _, err := e.Expand(root); err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got := e.NearestCellVisible(fiber); got != tube {
		t.Fatalf("expected tube as nearest visible ancestor, got %d", got)
	}
	if got := e.NearestCellVisible(tube); got != tube {
		t.Fatalf("a visible node is its own nearest visible node, got %d", got)
	}
}

func TestRemove_reportsRemovedKeys(t *testing.T) {
	e := New(DefaultOptions())
	root := mustRoot(t, e, "cable", "Cable")
	tube := mustChild(t, e, root, "t1", "Tube 1")
	mustChild(t, e, tube, "f1", "Fiber 1")
	e.Recompute()

	if err := e.Remove(tube); err != nil {
		t.Fatalf("remove: %v", err)
	}
	up := e.Recompute()
	if len(up.Removed) != 2 {
		t.Fatalf("expected tube and fiber removed, got %v", up.Removed)
	}
	if _, ok := e.Lookup("f1"); ok {
		t.Fatalf("removed key still resolvable")
	}
	if len(mustNode(t, e, root).Children) != 0 {
		t.Fatalf("expected root without children")
	}
}

func TestPlacement_truncatesLongLabels(t *testing.T) {
	e := New(DefaultOptions())
	long := "Backbone cable between central office and cabinet"
	mustRoot(t, e, "cable", long)
	p := e.Placements()[0]
	if !strings.HasSuffix(p.Label, " ...") || len([]rune(p.Label)) != 31+4 {
		t.Fatalf("expected truncated label, got %q", p.Label)
	}
}

func TestAddRoot_rejectsDuplicateKeys(t *testing.T) {
	e := New(DefaultOptions())
	mustRoot(t, e, "cable", "Cable")
	if _, err := e.AddRoot(NodeSpec{Key: "cable", Label: "Other"}); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
