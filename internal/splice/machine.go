// Package splice applies splice, cut and release operations and keeps the
// per-object state and interaction flags in step with the store.
package splice

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"kuwaiba/osp-core/internal/compensate"
	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/metrics"
)

// Machine is owned by one session and is not safe for concurrent use.
type Machine struct {
	model   *connectivity.Model
	log     zerolog.Logger
	metrics *metrics.Metrics
	fibers  map[string]FiberInfo
	ports   map[string]PortInfo
}

func New(log zerolog.Logger, model *connectivity.Model, m *metrics.Metrics) *Machine {
	return &Machine{
		model:   model,
		log:     log,
		metrics: m,
		fibers:  make(map[string]FiberInfo),
		ports:   make(map[string]PortInfo),
	}
}

// CutResult describes a completed cut.
type CutResult struct {
	Leftover connectivity.Ref
	// Side is the side of the original fiber now holding the port, nil when
	// the cut did not connect a port.
	Side *connectivity.Side
}

func (m *Machine) Fiber(ref connectivity.Ref) (FiberInfo, bool) {
	f, ok := m.fibers[ref.Key()]
	return f, ok
}

func (m *Machine) Port(ref connectivity.Ref) (PortInfo, bool) {
	p, ok := m.ports[ref.Key()]
	return p, ok
}

// SyncFiber re-reads a fiber from the store.
func (m *Machine) SyncFiber(ctx context.Context, fiber connectivity.Ref) (FiberInfo, error) {
	obj, err := m.model.Object(ctx, fiber)
	if err != nil {
		return FiberInfo{}, err
	}
	ep, err := m.model.Endpoints(ctx, fiber)
	if err != nil {
		return FiberInfo{}, err
	}
	state := fiberStateOf(ep)
	leftover := connectivity.IsLeftover(obj)
	info := FiberInfo{
		Ref:       obj.Ref,
		State:     state,
		Endpoints: ep,
		Leftover:  leftover,
		Flags:     fiberFlags(state, leftover),
	}
	m.fibers[fiber.Key()] = info
	return info, nil
}

// SyncPort re-reads a port and, when it holds a fiber, that fiber's fill.
func (m *Machine) SyncPort(ctx context.Context, port connectivity.Ref) (PortInfo, error) {
	obj, err := m.model.Object(ctx, port)
	if err != nil {
		return PortInfo{}, err
	}
	ep, err := m.model.Endpoints(ctx, port)
	if err != nil {
		return PortInfo{}, err
	}
	mirror, err := m.model.Mirrors(ctx, port)
	if err != nil {
		return PortInfo{}, err
	}
	info := PortInfo{Ref: obj.Ref, Endpoints: ep, Mirror: mirror}
	info.State = portStateOf(ep, mirror)

	fiberFull := false
	if fiber, _, ok := info.Fiber(); ok {
		fep, err := m.model.Endpoints(ctx, fiber)
		if err != nil {
			return PortInfo{}, err
		}
		fiberFull = fep.Full()
	}
	info.Flags = portFlags(info.State, fiberFull)
	m.ports[port.Key()] = info
	return info, nil
}

// Splice connects fiber to port on the fiber's first free side (A, then B).
func (m *Machine) Splice(ctx context.Context, fiber, port connectivity.Ref) (connectivity.Side, error) {
	side, err := m.splice(ctx, fiber, port)
	m.record("splice", err)
	return side, err
}

func (m *Machine) splice(ctx context.Context, fiber, port connectivity.Ref) (connectivity.Side, error) {
	side, err := m.checkSplice(ctx, fiber, port)
	if err != nil {
		return side, err
	}
	if err := m.model.CreateRelationship(ctx, fiber, port, side, true); err != nil {
		return side, err
	}
	if err := m.resync(ctx, fiber, port); err != nil {
		return side, err
	}
	m.log.Info().
		Str("fiber", fiber.Key()).
		Str("port", port.Key()).
		Str("side", side.String()).
		Msg("fiber spliced")
	return side, nil
}

// checkSplice validates splice preconditions without writing.
func (m *Machine) checkSplice(ctx context.Context, fiber, port connectivity.Ref) (connectivity.Side, error) {
	p, err := m.SyncPort(ctx, port)
	if err != nil {
		return connectivity.SideA, err
	}
	switch p.State {
	case PortOccupied:
		return connectivity.SideA, connectivity.Invalid(connectivity.CodePortConnected, &p.Ref,
			"port %s is already connected", p.Ref.Name)
	case PortMirrored:
		return connectivity.SideA, connectivity.Invalid(connectivity.CodePortMirrored, &p.Ref,
			"port %s is mirrored and cannot be spliced", p.Ref.Name)
	}

	f, err := m.SyncFiber(ctx, fiber)
	if err != nil {
		return connectivity.SideA, err
	}
	if f.Leftover {
		return connectivity.SideA, connectivity.Invalid(connectivity.CodeLeftoverFiber, &f.Ref,
			"fiber %s is a leftover and cannot be spliced", f.Ref.Name)
	}
	side, ok := f.Endpoints.FirstFree()
	if !ok {
		return connectivity.SideA, connectivity.Invalid(connectivity.CodeFiberConnected, &f.Ref,
			"fiber %s is already connected on both ends", f.Ref.Name)
	}
	return side, nil
}

// Cut splits fiber at this enclosure. A leftover copy named like the fiber is
// created under every special parent of the fiber, then the fiber itself is
// spliced to port on its free side. The fiber keeps the endpoint(s) it already
// had. A zero port only creates the leftover. On any failure every created
// copy is deleted before the error is returned.
func (m *Machine) Cut(ctx context.Context, fiber, port connectivity.Ref) (CutResult, error) {
	res, err := m.cut(ctx, fiber, port)
	m.record("cut", err)
	return res, err
}

func (m *Machine) cut(ctx context.Context, fiber, port connectivity.Ref) (CutResult, error) {
	var res CutResult

	f, err := m.SyncFiber(ctx, fiber)
	if err != nil {
		return res, err
	}
	if f.Endpoints.Empty() {
		return res, connectivity.Invalid(connectivity.CodeFiberNotConnected, &f.Ref,
			"fiber %s is not connected, there is nothing to cut", f.Ref.Name)
	}
	if f.Leftover {
		return res, connectivity.Invalid(connectivity.CodeLeftoverFiber, &f.Ref,
			"fiber %s is a leftover and cannot be cut", f.Ref.Name)
	}

	connect := !port.IsZero()
	var side connectivity.Side
	if connect {
		if side, err = m.checkSplice(ctx, fiber, port); err != nil {
			return res, err
		}
	}

	store := m.model.Store()
	parents, err := store.GetSpecialParents(ctx, fiber)
	if err != nil {
		return res, connectivity.Persist("get special parents", err)
	}
	if len(parents) == 0 {
		return res, connectivity.Invalid(connectivity.CodeNoParent, &f.Ref,
			"fiber %s has no parent container", f.Ref.Name)
	}

	err = compensate.WithRollback(ctx, func(ctx context.Context, tx *compensate.Tx) error {
		copies, err := store.CopySpecialObjects(ctx, parents[0], []connectivity.Ref{fiber}, false)
		for _, c := range copies {
			tx.Defer("delete leftover "+c.Key(), func(ctx context.Context) error {
				return store.DeleteObject(ctx, c, true)
			})
		}
		if err != nil {
			return connectivity.Persist("copy fiber", err)
		}
		if len(copies) != 1 {
			return &connectivity.PersistenceError{Op: "copy fiber", Err: fmt.Errorf("expected 1 copy, got %d", len(copies))}
		}
		leftover := copies[0]

		for _, p := range parents[1:] {
			if err := store.AddParentToSpecialObject(ctx, leftover, p); err != nil {
				return connectivity.Persist("add leftover parent", err)
			}
		}
		if err := store.UpdateObject(ctx, leftover, map[string]string{
			connectivity.AttrName:     f.Ref.Name,
			connectivity.AttrLeftover: "true",
		}); err != nil {
			return connectivity.Persist("mark leftover", err)
		}

		if connect {
			if err := m.model.CreateRelationship(ctx, fiber, port, side, true); err != nil {
				return err
			}
		}
		leftover.Name = f.Ref.Name
		res.Leftover = leftover
		return nil
	})
	if err != nil {
		m.log.Error().Err(err).Str("fiber", fiber.Key()).Msg("cut failed, leftover copies removed")
		return CutResult{}, err
	}

	if connect {
		s := side
		res.Side = &s
		if err := m.resync(ctx, fiber, port); err != nil {
			return res, err
		}
	} else if _, err := m.SyncFiber(ctx, fiber); err != nil {
		return res, err
	}
	if _, err := m.SyncFiber(ctx, res.Leftover); err != nil {
		return res, err
	}

	ev := m.log.Info().Str("fiber", fiber.Key()).Str("leftover", res.Leftover.Key())
	if connect {
		ev = ev.Str("port", port.Key()).Str("side", side.String())
	}
	ev.Msg("fiber cut")
	return res, nil
}

// Release removes the fiber-port relationship on side. Releasing an absent
// relationship is a no-op.
func (m *Machine) Release(ctx context.Context, port, fiber connectivity.Ref, side connectivity.Side) error {
	err := m.release(ctx, port, fiber, side)
	m.record("release", err)
	return err
}

func (m *Machine) release(ctx context.Context, port, fiber connectivity.Ref, side connectivity.Side) error {
	if err := m.model.ReleaseRelationship(ctx, fiber, port, side); err != nil {
		return err
	}
	if err := m.resync(ctx, fiber, port); err != nil {
		return err
	}
	m.log.Info().
		Str("fiber", fiber.Key()).
		Str("port", port.Key()).
		Str("side", side.String()).
		Msg("fiber released")
	return nil
}

// SideOf finds the side of fiber that points at port.
func (m *Machine) SideOf(ctx context.Context, fiber, port connectivity.Ref) (connectivity.Side, bool, error) {
	ep, err := m.model.Endpoints(ctx, fiber)
	if err != nil {
		return connectivity.SideA, false, err
	}
	side, ok := ep.SideOf(port)
	return side, ok, nil
}

func (m *Machine) resync(ctx context.Context, fiber, port connectivity.Ref) error {
	if _, err := m.SyncFiber(ctx, fiber); err != nil {
		return err
	}
	_, err := m.SyncPort(ctx, port)
	return err
}

func (m *Machine) record(op string, err error) {
	switch {
	case err == nil:
		m.metrics.IncSpliceOperation(op, "ok")
	case isValidation(err):
		m.log.Warn().Err(err).Str("op", op).Msg("operation rejected")
		m.metrics.IncSpliceOperation(op, "rejected")
	default:
		m.metrics.IncSpliceOperation(op, "error")
	}
}

func isValidation(err error) bool {
	var ve *connectivity.ValidationError
	return errors.As(err, &ve)
}
