package treelayout

import "kuwaiba/osp-core/internal/naming"

type EventKind string

const (
	EventAdded     EventKind = "cell_added"
	EventExpanded  EventKind = "expand"
	EventCollapsed EventKind = "collapse"
)

type Event struct {
	Kind EventKind `json:"kind"`
	Key  string    `json:"key"`
}

// Placement is the render state of one node.
type Placement struct {
	Key         string  `json:"key"`
	Label       string  `json:"label"`
	Style       string  `json:"style,omitempty"`
	Level       int     `json:"level"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	CellVisible bool    `json:"cell_visible"`
	Expanded    bool    `json:"expanded"`
	Expandable  bool    `json:"expandable"`
}

// Update is the batch produced by one Recompute.
type Update struct {
	// Placements holds only nodes whose placement changed.
	Placements []Placement `json:"placements"`
	Removed    []string    `json:"removed,omitempty"`
	Events     []Event     `json:"events,omitempty"`
	Width      float64     `json:"width"`
	Height     float64     `json:"height"`
}

// Recompute lays out every root depth-first. Each root gets its own y
// cursor starting at the bottom of the previous root. A child is laid out
// only when its parent is expanded and laid out and the child is visible;
// otherwise the child and its whole subtree get zero geometry and an
// invisible cell.
func (e *Engine) Recompute() Update {
	e.width, e.height = 0, 0
	var top float64
	for _, r := range e.roots {
		cursor := 0.0
		if e.nodes[r].visible {
			e.layout(r, 0, top, &cursor)
		} else {
			e.hide(r)
		}
		top += cursor
	}
	e.height = top

	up := Update{
		Removed: e.removed,
		Events:  e.events,
		Width:   e.width,
		Height:  e.height,
	}
	e.removed = nil
	e.events = nil

	e.walk(func(id NodeID) {
		p := e.placement(id)
		if prev, ok := e.last[id]; ok && prev == p {
			return
		}
		e.last[id] = p
		up.Placements = append(up.Placements, p)
	})
	return up
}

// Placements returns the current placement of every node, depth-first.
func (e *Engine) Placements() []Placement {
	out := make([]Placement, 0, len(e.byKey))
	e.walk(func(id NodeID) {
		out = append(out, e.placement(id))
	})
	return out
}

func (e *Engine) layout(id NodeID, level int, top float64, cursor *float64) {
	n := e.nodes[id]
	n.level = level
	w, h := e.size(n)
	n.geo = Geometry{
		X:      e.opts.BaseIndent + float64(level)*e.opts.IndentUnit,
		Y:      top + *cursor,
		Width:  w,
		Height: h,
	}
	n.cellVisible = true
	*cursor += h + e.opts.Spacing
	if right := n.geo.X + n.geo.Width; right > e.width {
		e.width = right
	}

	for _, c := range n.children {
		if n.expanded && e.nodes[c].visible {
			e.layout(c, level+1, top, cursor)
		} else {
			e.hide(c)
		}
	}
}

// hide zeroes a subtree. A node that is already hidden has a hidden subtree,
// so the walk stops there.
func (e *Engine) hide(id NodeID) {
	n := e.nodes[id]
	if !n.cellVisible && n.geo == (Geometry{}) {
		return
	}
	n.cellVisible = false
	n.geo = Geometry{}
	for _, c := range n.children {
		e.hide(c)
	}
}

func (e *Engine) size(n *node) (float64, float64) {
	w, h := n.width, n.height
	if w <= 0 {
		w = e.opts.Width
	}
	if h <= 0 {
		h = e.opts.RowHeight
	}
	return w, h
}

func (e *Engine) placement(id NodeID) Placement {
	n := e.nodes[id]
	return Placement{
		Key:         n.key,
		Label:       naming.TruncateLabel(n.label, e.opts.LabelLimit),
		Style:       n.style,
		Level:       n.level,
		X:           n.geo.X,
		Y:           n.geo.Y,
		Width:       n.geo.Width,
		Height:      n.geo.Height,
		CellVisible: n.cellVisible,
		Expanded:    n.expanded,
		Expandable:  n.expandable || len(n.children) > 0,
	}
}

func (e *Engine) walk(fn func(NodeID)) {
	var visit func(NodeID)
	visit = func(id NodeID) {
		fn(id)
		for _, c := range e.nodes[id].children {
			visit(c)
		}
	}
	for _, r := range e.roots {
		visit(r)
	}
}
