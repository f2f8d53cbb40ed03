package midspan

import (
	"context"

	"kuwaiba/osp-core/internal/classes"
	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/treelayout"
)

// edge is one splice between a fiber of the cable and a device port. anchor
// is the deepest loaded tree node known to contain the fiber; the edge is
// drawn from the nearest visible cell at or above it.
type edge struct {
	fiber  connectivity.Ref
	port   connectivity.Ref
	side   connectivity.Side
	anchor treelayout.NodeID
	color  string
}

func edgeKey(fiber, port connectivity.Ref) string {
	return fiber.Key() + "|" + port.Key()
}

// loadEdges creates an edge for every device port holding a fiber of this
// cable. Fibers of other cables are ignored.
func (s *Session) loadEdges(ctx context.Context, root treelayout.NodeID) error {
	store := s.model.Store()
	for _, key := range s.panel.order {
		info, ok := s.machine.Port(s.panel.slots[key].ref)
		if !ok {
			continue
		}
		fiber, side, ok := info.Fiber()
		if !ok {
			continue
		}
		inCable, err := store.IsParent(ctx, s.cable, fiber)
		if err != nil {
			return connectivity.Persist("check fiber cable", err)
		}
		if !inCable {
			continue
		}
		if fs, found, err := s.machine.SideOf(ctx, fiber, info.Ref); err != nil {
			return err
		} else if found {
			side = fs
		}
		obj, err := s.model.Object(ctx, fiber)
		if err != nil {
			return err
		}
		s.edges[edgeKey(fiber, info.Ref)] = &edge{
			fiber:  obj.Ref,
			port:   info.Ref,
			side:   side,
			anchor: root,
			color:  classes.ColorFor(obj.Class, obj.Attr(connectivity.AttrColor)),
		}
	}
	return nil
}

// reanchor moves the edges anchored at parent down to the newly loaded
// child that is the fiber or contains it.
func (s *Session) reanchor(ctx context.Context, parent treelayout.NodeID, added []*treeObject) error {
	if len(added) == 0 {
		return nil
	}
	store := s.model.Store()
	for _, e := range s.edges {
		if e.anchor != parent {
			continue
		}
		var target *treeObject
		for _, c := range added {
			if c.ref.Same(e.fiber) {
				target = c
				break
			}
		}
		if target == nil {
			for _, c := range added {
				if c.kind == kindFiber {
					continue
				}
				contains, err := store.IsParent(ctx, c.ref, e.fiber)
				if err != nil {
					return connectivity.Persist("check fiber container", err)
				}
				if contains {
					target = c
					break
				}
			}
		}
		if target != nil {
			e.anchor = target.id
		}
	}
	return nil
}

func (s *Session) addEdge(fiber *treeObject, port connectivity.Ref, side connectivity.Side) {
	s.edges[edgeKey(fiber.ref, port)] = &edge{
		fiber:  fiber.ref,
		port:   port,
		side:   side,
		anchor: fiber.id,
		color:  fiber.color,
	}
}

// source resolves the tree cell an edge is drawn from.
func (s *Session) source(e *edge) (string, bool) {
	id := s.tree.NearestCellVisible(e.anchor)
	if id == treelayout.None {
		return "", false
	}
	n, ok := s.tree.Node(id)
	if !ok {
		return "", false
	}
	return n.Key, n.Key == e.fiber.Key()
}
