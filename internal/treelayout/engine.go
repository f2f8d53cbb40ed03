// Package treelayout computes geometry and visibility for an expandable tree.
// Nodes live in an arena and refer to each other by NodeID. Mutations only
// change state; Recompute lays the whole tree out again and returns what
// changed since the previous pass.
package treelayout

import (
	"fmt"
	"sort"
	"strings"

	"kuwaiba/osp-core/internal/naming"
)

type NodeID int

// None is the NodeID of "no node".
const None NodeID = -1

type Options struct {
	// BaseIndent is the x of level-0 nodes.
	BaseIndent float64
	IndentUnit float64
	// Spacing is the vertical gap after every laid-out node.
	Spacing    float64
	RowHeight  float64
	Width      float64
	LabelLimit int
}

// DefaultOptions: 20px left margin, 16px indent, 16px rows, a 16px toggle
// plus 5px gap plus 210px label per row.
func DefaultOptions() Options {
	return Options{
		BaseIndent: 20,
		IndentUnit: 16,
		Spacing:    0,
		RowHeight:  16,
		Width:      16 + 5 + 210,
		LabelLimit: naming.LabelLimit,
	}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.BaseIndent < 0 {
		o.BaseIndent = 0
	}
	if o.IndentUnit <= 0 {
		o.IndentUnit = def.IndentUnit
	}
	if o.Spacing < 0 {
		o.Spacing = 0
	}
	if o.RowHeight <= 0 {
		o.RowHeight = def.RowHeight
	}
	if o.Width <= 0 {
		o.Width = def.Width
	}
	if o.LabelLimit <= 0 {
		o.LabelLimit = def.LabelLimit
	}
	return o
}

// NodeSpec describes a node to insert. Zero Width/Height use the row defaults.
type NodeSpec struct {
	Key    string
	Label  string
	Style  string
	Width  float64
	Height float64
	Hidden bool
	// Expandable marks a node whose children are not loaded yet.
	Expandable bool
}

type Geometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node is a read-only snapshot of an arena node.
type Node struct {
	ID          NodeID
	Key         string
	Label       string
	Style       string
	Level       int
	Expanded    bool
	Visible     bool
	CellVisible bool
	Expandable  bool
	Geometry    Geometry
	Parent      NodeID
	Children    []NodeID
}

type node struct {
	key         string
	label       string
	style       string
	width       float64
	height      float64
	level       int
	expanded    bool
	visible     bool
	cellVisible bool
	expandable  bool
	removed     bool
	geo         Geometry
	parent      NodeID
	children    []NodeID
}

// Engine is owned by one session and is not safe for concurrent use.
type Engine struct {
	opts    Options
	nodes   []*node
	byKey   map[string]NodeID
	roots   []NodeID
	events  []Event
	removed []string
	last    map[NodeID]Placement
	width   float64
	height  float64
}

func New(opts Options) *Engine {
	return &Engine{
		opts:  opts.normalized(),
		byKey: make(map[string]NodeID),
		last:  make(map[NodeID]Placement),
	}
}

func (e *Engine) Options() Options { return e.opts }

// AddRoot appends a root. Roots keep their insertion order.
func (e *Engine) AddRoot(spec NodeSpec) (NodeID, error) {
	id, err := e.insert(spec, None, 0)
	if err != nil {
		return None, err
	}
	e.roots = append(e.roots, id)
	return id, nil
}

// AddChild inserts a child at its display-name position among its siblings.
func (e *Engine) AddChild(parent NodeID, spec NodeSpec) (NodeID, error) {
	p, err := e.get(parent)
	if err != nil {
		return None, err
	}
	id, err := e.insert(spec, parent, p.level+1)
	if err != nil {
		return None, err
	}
	idx := sort.Search(len(p.children), func(i int) bool {
		return e.less(id, p.children[i])
	})
	p.children = append(p.children, None)
	copy(p.children[idx+1:], p.children[idx:])
	p.children[idx] = id
	return id, nil
}

func (e *Engine) insert(spec NodeSpec, parent NodeID, level int) (NodeID, error) {
	key := strings.TrimSpace(spec.Key)
	if key == "" {
		return None, fmt.Errorf("node key is required")
	}
	if _, ok := e.byKey[key]; ok {
		return None, fmt.Errorf("node %q already exists", key)
	}
	id := NodeID(len(e.nodes))
	e.nodes = append(e.nodes, &node{
		key:        key,
		label:      spec.Label,
		style:      spec.Style,
		width:      spec.Width,
		height:     spec.Height,
		level:      level,
		visible:    !spec.Hidden,
		expandable: spec.Expandable,
		parent:     parent,
	})
	e.byKey[key] = id
	e.events = append(e.events, Event{Kind: EventAdded, Key: key})
	return id, nil
}

// Remove drops a node and its subtree.
func (e *Engine) Remove(id NodeID) error {
	n, err := e.get(id)
	if err != nil {
		return err
	}
	if n.parent != None {
		p := e.nodes[n.parent]
		p.children = removeID(p.children, id)
	} else {
		e.roots = removeID(e.roots, id)
	}
	e.drop(id)
	return nil
}

func (e *Engine) drop(id NodeID) {
	n := e.nodes[id]
	for _, c := range n.children {
		e.drop(c)
	}
	n.removed = true
	n.children = nil
	delete(e.byKey, n.key)
	if _, ok := e.last[id]; ok {
		delete(e.last, id)
		e.removed = append(e.removed, n.key)
	}
}

func (e *Engine) SetVisible(id NodeID, visible bool) error {
	n, err := e.get(id)
	if err != nil {
		return err
	}
	n.visible = visible
	return nil
}

func (e *Engine) SetExpandable(id NodeID, expandable bool) error {
	n, err := e.get(id)
	if err != nil {
		return err
	}
	n.expandable = expandable
	return nil
}

func (e *Engine) SetStyle(id NodeID, style string) error {
	n, err := e.get(id)
	if err != nil {
		return err
	}
	n.style = style
	return nil
}

// SetLabel relabels a node and moves it to its new sibling position.
func (e *Engine) SetLabel(id NodeID, label string) error {
	n, err := e.get(id)
	if err != nil {
		return err
	}
	n.label = label
	if n.parent != None {
		p := e.nodes[n.parent]
		sort.SliceStable(p.children, func(i, j int) bool {
			return e.less(p.children[i], p.children[j])
		})
	}
	return nil
}

// Expand marks id expanded and recomputes the layout.
func (e *Engine) Expand(id NodeID) (Update, error) {
	n, err := e.get(id)
	if err != nil {
		return Update{}, err
	}
	if !n.expanded {
		n.expanded = true
		e.events = append(e.events, Event{Kind: EventExpanded, Key: n.key})
	}
	return e.Recompute(), nil
}

// Collapse marks id collapsed and recomputes the layout. Descendants keep
// their own expanded flags but are hidden.
func (e *Engine) Collapse(id NodeID) (Update, error) {
	n, err := e.get(id)
	if err != nil {
		return Update{}, err
	}
	if n.expanded {
		n.expanded = false
		e.events = append(e.events, Event{Kind: EventCollapsed, Key: n.key})
	}
	return e.Recompute(), nil
}

func (e *Engine) Toggle(id NodeID) (Update, error) {
	n, err := e.get(id)
	if err != nil {
		return Update{}, err
	}
	if n.expanded {
		return e.Collapse(id)
	}
	return e.Expand(id)
}

func (e *Engine) Lookup(key string) (NodeID, bool) {
	id, ok := e.byKey[key]
	return id, ok
}

func (e *Engine) Node(id NodeID) (Node, bool) {
	n, err := e.get(id)
	if err != nil {
		return Node{}, false
	}
	return Node{
		ID:          id,
		Key:         n.key,
		Label:       n.label,
		Style:       n.style,
		Level:       n.level,
		Expanded:    n.expanded,
		Visible:     n.visible,
		CellVisible: n.cellVisible,
		Expandable:  n.expandable || len(n.children) > 0,
		Geometry:    n.geo,
		Parent:      n.parent,
		Children:    append([]NodeID(nil), n.children...),
	}, true
}

func (e *Engine) Roots() []NodeID {
	return append([]NodeID(nil), e.roots...)
}

// NearestCellVisible returns id itself when its cell is visible, otherwise
// its closest ancestor with a visible cell, or None.
func (e *Engine) NearestCellVisible(id NodeID) NodeID {
	for cur := id; cur != None; {
		n, err := e.get(cur)
		if err != nil {
			return None
		}
		if n.cellVisible {
			return cur
		}
		cur = n.parent
	}
	return None
}

// Size is the content size from the last Recompute.
func (e *Engine) Size() (width, height float64) {
	return e.width, e.height
}

func (e *Engine) get(id NodeID) (*node, error) {
	if id < 0 || int(id) >= len(e.nodes) || e.nodes[id].removed {
		return nil, fmt.Errorf("unknown node %d", id)
	}
	return e.nodes[id], nil
}

func (e *Engine) less(a, b NodeID) bool {
	na, nb := e.nodes[a], e.nodes[b]
	if c := naming.Compare(na.label, nb.label); c != 0 {
		return c < 0
	}
	return na.key < nb.key
}

func removeID(ids []NodeID, id NodeID) []NodeID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
