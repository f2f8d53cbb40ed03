package midspan

import (
	"sort"

	"kuwaiba/osp-core/internal/classes"
	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/naming"
	"kuwaiba/osp-core/internal/splice"
	"kuwaiba/osp-core/internal/treelayout"
)

// Cell is one tree node as handed to a renderer.
type Cell struct {
	treelayout.Placement
	Kind     string           `json:"kind"`
	Ref      connectivity.Ref `json:"ref"`
	Color    string           `json:"color"`
	State    string           `json:"state,omitempty"`
	Leftover bool             `json:"leftover,omitempty"`
	Flags    *splice.Flags    `json:"flags,omitempty"`
}

type PortCell struct {
	Key    string           `json:"key"`
	Ref    connectivity.Ref `json:"ref"`
	Label  string           `json:"label"`
	Style  string           `json:"style"`
	Color  string           `json:"color"`
	Row    int              `json:"row"`
	Column int              `json:"column"`
	X      float64          `json:"x"`
	Y      float64          `json:"y"`
	Width  float64          `json:"width"`
	Height float64          `json:"height"`
	State  string           `json:"state"`
	Mirror string           `json:"mirror"`
	Peers  []string         `json:"peers,omitempty"`
	Fiber  string           `json:"fiber,omitempty"`
	Flags  splice.Flags     `json:"flags"`
}

type Edge struct {
	Key    string           `json:"key"`
	Fiber  connectivity.Ref `json:"fiber"`
	Port   connectivity.Ref `json:"port"`
	Side   string           `json:"side"`
	Source string           `json:"source"`
	Target string           `json:"target"`
	// Direct is false while the fiber's own cell is hidden and the edge
	// starts at an ancestor instead.
	Direct bool   `json:"direct"`
	Style  string `json:"style"`
	Color  string `json:"color"`
}

type TreeView struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Cells  []Cell  `json:"cells"`
}

type PanelView struct {
	Device  connectivity.Ref `json:"device"`
	Style   string           `json:"style"`
	Color   string           `json:"color"`
	X       float64          `json:"x"`
	Y       float64          `json:"y"`
	Width   float64          `json:"width"`
	Height  float64          `json:"height"`
	Columns int              `json:"columns"`
	Ports   []PortCell       `json:"ports"`
}

// View is the complete render batch of a session.
type View struct {
	Session      string             `json:"session,omitempty"`
	Mode         Mode               `json:"mode"`
	ShowLeftover bool               `json:"show_leftover"`
	Exchange     bool               `json:"exchange"`
	Location     connectivity.Ref   `json:"location"`
	Cable        connectivity.Ref   `json:"cable"`
	Tree         TreeView           `json:"tree"`
	Panel        PanelView          `json:"panel"`
	Edges        []Edge             `json:"edges"`
	Events       []treelayout.Event `json:"events,omitempty"`
	Removed      []string           `json:"removed,omitempty"`
	Width        float64            `json:"width"`
	Height       float64            `json:"height"`
}

// View renders the current state without notifications.
func (s *Session) View() View {
	treeW, treeH := s.tree.Size()
	v := View{
		Mode:         s.mode,
		ShowLeftover: s.showLeftover,
		Exchange:     s.exchange,
		Location:     s.location,
		Cable:        s.cable,
		Tree:         TreeView{Y: layoutMargin, Width: treeW, Height: treeH},
		Panel: PanelView{
			Device:  s.device,
			Style:   classes.StyleDevice,
			Color:   s.panel.color,
			Y:       layoutMargin,
			Width:   s.panel.width,
			Height:  s.panel.height,
			Columns: s.panel.columns,
		},
	}
	if s.exchange {
		v.Panel.X = layoutMargin
		v.Tree.X = layoutMargin + s.panel.width + layoutGap
	} else {
		v.Panel.X = layoutMargin + treeW + layoutGap
	}

	for _, p := range s.tree.Placements() {
		v.Tree.Cells = append(v.Tree.Cells, s.cell(p))
	}
	for _, key := range s.panel.order {
		v.Panel.Ports = append(v.Panel.Ports, s.portCell(key, v.Panel.X, v.Panel.Y))
	}
	for _, e := range s.sortedEdges() {
		src, direct := s.source(e)
		if src == "" {
			continue
		}
		v.Edges = append(v.Edges, Edge{
			Key:    edgeKey(e.fiber, e.port),
			Fiber:  e.fiber,
			Port:   e.port,
			Side:   e.side.String(),
			Source: src,
			Target: e.port.Key(),
			Direct: direct,
			Style:  classes.StyleEdge,
			Color:  e.color,
		})
	}

	v.Width = max(v.Tree.X+v.Tree.Width, v.Panel.X+v.Panel.Width) + layoutMargin
	v.Height = max(v.Tree.Y+v.Tree.Height, v.Panel.Y+v.Panel.Height) + layoutMargin
	return v
}

func (s *Session) render(up treelayout.Update) View {
	v := s.View()
	v.Events = up.Events
	v.Removed = up.Removed
	return v
}

func (s *Session) cell(p treelayout.Placement) Cell {
	c := Cell{Placement: p, Kind: kindFiber.String()}
	obj, ok := s.objects[p.Key]
	if !ok {
		return c
	}
	c.Kind = obj.kind.String()
	c.Ref = obj.ref
	c.Color = obj.color
	c.Leftover = obj.leftover
	if obj.kind == kindFiber {
		if info, ok := s.machine.Fiber(obj.ref); ok {
			flags := info.Flags
			c.Flags = &flags
			c.State = info.State.String()
		}
	}
	return c
}

func (s *Session) portCell(key string, offX, offY float64) PortCell {
	sl := s.panel.slots[key]
	pc := PortCell{
		Key:    key,
		Ref:    sl.ref,
		Label:  naming.TruncateLabel(sl.ref.Name, naming.LabelLimit),
		Style:  classes.StylePort,
		Color:  classes.ColorFor(sl.ref.Class, ""),
		Row:    sl.row,
		Column: sl.column,
		X:      offX + sl.x,
		Y:      offY + sl.y,
		Width:  PortWidth,
		Height: PortHeight,
		State:  splice.PortFree.String(),
		Mirror: connectivity.MirrorNone.String(),
	}
	info, ok := s.machine.Port(sl.ref)
	if !ok {
		return pc
	}
	pc.State = info.State.String()
	pc.Mirror = info.Mirror.Kind().String()
	for _, peer := range info.Mirror.Peers() {
		pc.Peers = append(pc.Peers, peer.Key())
	}
	if f, _, ok := info.Fiber(); ok {
		pc.Fiber = f.Key()
	}
	pc.Flags = info.Flags
	return pc
}

func (s *Session) sortedEdges() []*edge {
	out := make([]*edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	rank := func(e *edge) int {
		if sl, ok := s.panel.slot(e.port.Key()); ok {
			return sl.index
		}
		return len(s.panel.order)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i].fiber.Key() < out[j].fiber.Key()
	})
	return out
}
