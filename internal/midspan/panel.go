package midspan

import (
	"context"

	"kuwaiba/osp-core/internal/classes"
	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/naming"
)

// Device panel geometry. Ports sit in rows; a port with mirrors gets a second
// column holding its peers, and a 1:N mirror row is N ports tall with the
// primary port centered.
const (
	PortWidth    = 120
	PortHeight   = 20
	panelMargin  = 10
	portSpacing  = 10
	layoutMargin = 15
	layoutGap    = 200
)

type portRow struct {
	port    connectivity.Ref
	mirrors []connectivity.Ref
}

type portSlot struct {
	ref    connectivity.Ref
	index  int
	row    int
	column int
	x, y   float64
}

type devicePanel struct {
	rows    []portRow
	slots   map[string]*portSlot
	order   []string
	columns int
	width   float64
	height  float64
	color   string
}

// loadPorts collects every port below the device, groups mirrored ports
// into rows and lays the rows out.
func (s *Session) loadPorts(ctx context.Context) error {
	ports, err := s.collectPorts(ctx)
	if err != nil {
		return err
	}
	naming.SortRefs(ports)

	p := devicePanel{slots: make(map[string]*portSlot), columns: 1}
	placed := make(map[string]struct{}, len(ports))
	for _, port := range ports {
		if _, ok := placed[port.Key()]; ok {
			continue
		}
		placed[port.Key()] = struct{}{}
		group, err := s.model.Mirrors(ctx, port)
		if err != nil {
			return err
		}
		row := portRow{port: port}
		peers := group.Peers()
		naming.SortRefs(peers)
		for _, peer := range peers {
			if _, ok := placed[peer.Key()]; ok {
				continue
			}
			placed[peer.Key()] = struct{}{}
			row.mirrors = append(row.mirrors, peer)
		}
		if len(row.mirrors) > 0 {
			p.columns = 2
		}
		p.rows = append(p.rows, row)
	}

	p.layout()
	for _, key := range p.order {
		if _, err := s.machine.SyncPort(ctx, p.slots[key].ref); err != nil {
			return err
		}
	}
	devObj, err := s.model.Object(ctx, s.device)
	if err != nil {
		return err
	}
	p.color = classes.ColorFor(devObj.Class, devObj.Attr(connectivity.AttrColor))
	s.panel = p
	return nil
}

func (s *Session) collectPorts(ctx context.Context) ([]connectivity.Ref, error) {
	store := s.model.Store()
	var ports []connectivity.Ref
	queue := []connectivity.Ref{s.device}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children, err := store.GetObjectChildren(ctx, cur)
		if err != nil {
			return nil, connectivity.Persist("get device children", err)
		}
		for _, c := range children {
			isPort, err := s.meta.IsSubclassOf(ctx, classes.GenericPort, c.Class)
			if err != nil {
				return nil, err
			}
			if isPort {
				ports = append(ports, c.Ref)
			}
			queue = append(queue, c.Ref)
		}
	}
	return ports, nil
}

// layout positions every slot relative to the panel's top-left corner.
func (p *devicePanel) layout() {
	p.order = p.order[:0]
	y := float64(panelMargin)
	for i, row := range p.rows {
		n := len(row.mirrors)
		if n < 1 {
			n = 1
		}
		rowHeight := float64(n*PortHeight + (n-1)*portSpacing)
		p.add(row.port, i, 0, panelMargin, y+(rowHeight-PortHeight)/2)
		for j, m := range row.mirrors {
			p.add(m, i, 1, panelMargin+PortWidth+portSpacing, y+float64(j*(PortHeight+portSpacing)))
		}
		y += rowHeight + portSpacing
	}

	p.width = 2*panelMargin + PortWidth
	if p.columns > 1 {
		p.width = 2*panelMargin + float64(p.columns*PortWidth+(p.columns-1)*portSpacing)
	}
	if len(p.rows) == 0 {
		p.height = 2*panelMargin + PortHeight
		return
	}
	p.height = y - portSpacing + panelMargin
}

func (p *devicePanel) add(ref connectivity.Ref, row, column int, x, y float64) {
	p.slots[ref.Key()] = &portSlot{ref: ref, index: len(p.order), row: row, column: column, x: x, y: y}
	p.order = append(p.order, ref.Key())
}

func (p *devicePanel) slot(key string) (*portSlot, bool) {
	sl, ok := p.slots[key]
	return sl, ok
}
