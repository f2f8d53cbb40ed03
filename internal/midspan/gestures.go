package midspan

import (
	"context"

	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/treelayout"
)

func (s *Session) SetMode(mode Mode) View {
	if s.mode != mode {
		s.log.Debug().Str("mode", string(mode)).Msg("mode changed")
	}
	s.mode = mode
	return s.View()
}

// SetShowLeftover shows or hides every leftover fiber in the tree.
func (s *Session) SetShowLeftover(show bool) (View, error) {
	s.showLeftover = show
	for _, obj := range s.objects {
		if !obj.leftover {
			continue
		}
		if err := s.tree.SetVisible(obj.id, show); err != nil {
			return View{}, err
		}
	}
	return s.render(s.tree.Recompute()), nil
}

// SetExchange swaps the tree and the device panel horizontally.
func (s *Session) SetExchange(exchange bool) View {
	s.exchange = exchange
	return s.View()
}

// CompleteEdge handles a connection drawn between two cells. One end must be
// a fiber of the cable and the other a port of the device; the mode decides
// whether the fiber is spliced or cut.
func (s *Session) CompleteEdge(ctx context.Context, a, b string) (View, error) {
	fiber, port, err := s.resolveEdge(a, b)
	if err != nil {
		return View{}, err
	}

	switch s.mode {
	case CutMode:
		res, err := s.machine.Cut(ctx, fiber.ref, port)
		if err != nil {
			s.resyncQuietly(ctx, fiber.ref, port)
			return View{}, err
		}
		if res.Side != nil {
			s.addEdge(fiber, port, *res.Side)
		}
		if err := s.addLeftover(ctx, fiber, res.Leftover); err != nil {
			return View{}, err
		}
	default:
		side, err := s.machine.Splice(ctx, fiber.ref, port)
		if err != nil {
			s.resyncQuietly(ctx, fiber.ref, port)
			return View{}, err
		}
		s.addEdge(fiber, port, side)
	}
	return s.render(s.tree.Recompute()), nil
}

func (s *Session) resolveEdge(a, b string) (*treeObject, connectivity.Ref, error) {
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		obj, ok := s.objects[pair[0]]
		if !ok || obj.kind != kindFiber {
			continue
		}
		if sl, ok := s.panel.slot(pair[1]); ok {
			return obj, sl.ref, nil
		}
	}
	return nil, connectivity.Ref{}, connectivity.Invalid(connectivity.CodeInvalidGesture, nil,
		"connect a fiber of the cable to a port of the device")
}

// addLeftover places a new leftover fiber next to the fiber it was cut from.
func (s *Session) addLeftover(ctx context.Context, fiber *treeObject, leftover connectivity.Ref) error {
	n, ok := s.tree.Node(fiber.id)
	if !ok || n.Parent == treelayout.None {
		return nil
	}
	obj, err := s.model.Object(ctx, leftover)
	if err != nil {
		return err
	}
	_, err = s.addNode(ctx, n.Parent, obj, kindFiber)
	return err
}

// Release removes the splice between port and fiber. Releasing a splice that
// is already gone only drops its edge.
func (s *Session) Release(ctx context.Context, portKey, fiberKey string) (View, error) {
	sl, ok := s.panel.slot(portKey)
	if !ok {
		return View{}, connectivity.Invalid(connectivity.CodeInvalidGesture, nil,
			"%s is not a port of %s", portKey, s.device)
	}
	fiber, ok := connectivity.ParseKey(fiberKey)
	if !ok {
		return View{}, connectivity.Invalid(connectivity.CodeInvalidGesture, nil,
			"%q is not an object key", fiberKey)
	}
	if obj, ok := s.objects[fiberKey]; ok {
		fiber = obj.ref
	}

	side, found, err := s.machine.SideOf(ctx, fiber, sl.ref)
	if err != nil {
		return View{}, err
	}
	if found {
		if err := s.machine.Release(ctx, sl.ref, fiber, side); err != nil {
			s.resyncQuietly(ctx, fiber, sl.ref)
			return View{}, err
		}
	} else {
		s.log.Warn().Str("fiber", fiber.Key()).Str("port", sl.ref.Key()).Msg("release of absent splice ignored")
		if _, err := s.machine.SyncPort(ctx, sl.ref); err != nil {
			return View{}, err
		}
	}
	delete(s.edges, edgeKey(fiber, sl.ref))
	return s.render(s.tree.Recompute()), nil
}

// Expand loads the node's children on first use and expands it. Edges of
// fibers that just became visible start at their own cells again.
func (s *Session) Expand(ctx context.Context, key string) (View, error) {
	obj, err := s.node(key)
	if err != nil {
		return View{}, err
	}
	up, err := s.expand(ctx, obj)
	if err != nil {
		return View{}, err
	}
	return s.render(up), nil
}

// Collapse hides the node's subtree. Edges of hidden fibers move to the
// collapsed node.
func (s *Session) Collapse(key string) (View, error) {
	obj, err := s.node(key)
	if err != nil {
		return View{}, err
	}
	up, err := s.tree.Collapse(obj.id)
	if err != nil {
		return View{}, err
	}
	return s.render(up), nil
}

func (s *Session) Toggle(ctx context.Context, key string) (View, error) {
	obj, err := s.node(key)
	if err != nil {
		return View{}, err
	}
	n, _ := s.tree.Node(obj.id)
	if n.Expanded {
		return s.Collapse(key)
	}
	return s.Expand(ctx, key)
}

// Refresh re-reads every port and loaded fiber from the store and rebuilds
// the edges, for use after a failed gesture or an outside edit.
func (s *Session) Refresh(ctx context.Context) (View, error) {
	for _, key := range s.panel.order {
		if _, err := s.machine.SyncPort(ctx, s.panel.slots[key].ref); err != nil {
			return View{}, err
		}
	}
	for _, obj := range s.objects {
		if obj.kind != kindFiber {
			continue
		}
		if _, err := s.machine.SyncFiber(ctx, obj.ref); err != nil {
			return View{}, err
		}
	}

	root := s.objects[s.cable.Key()]
	s.edges = make(map[string]*edge)
	if err := s.loadEdges(ctx, root.id); err != nil {
		return View{}, err
	}
	for _, e := range s.edges {
		if obj, ok := s.objects[e.fiber.Key()]; ok {
			e.anchor = obj.id
			continue
		}
		e.anchor = s.deepestLoaded(ctx, root, e.fiber)
	}
	return s.render(s.tree.Recompute()), nil
}

// deepestLoaded finds the deepest loaded container containing fiber.
func (s *Session) deepestLoaded(ctx context.Context, root *treeObject, fiber connectivity.Ref) treelayout.NodeID {
	best := root.id
	bestLevel := 0
	for _, obj := range s.objects {
		if obj.kind != kindContainer {
			continue
		}
		contains, err := s.model.Store().IsParent(ctx, obj.ref, fiber)
		if err != nil || !contains {
			continue
		}
		if n, ok := s.tree.Node(obj.id); ok && n.Level >= bestLevel {
			best, bestLevel = obj.id, n.Level
		}
	}
	return best
}

func (s *Session) resyncQuietly(ctx context.Context, fiber, port connectivity.Ref) {
	if _, err := s.machine.SyncFiber(ctx, fiber); err != nil {
		s.log.Warn().Err(err).Str("fiber", fiber.Key()).Msg("fiber resync failed")
	}
	if _, err := s.machine.SyncPort(ctx, port); err != nil {
		s.log.Warn().Err(err).Str("port", port.Key()).Msg("port resync failed")
	}
}
