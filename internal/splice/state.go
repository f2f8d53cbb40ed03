package splice

import "kuwaiba/osp-core/internal/connectivity"

type FiberState int

const (
	FiberFree FiberState = iota
	FiberHalfSpliced
	FiberFullySpliced
)

func (s FiberState) String() string {
	switch s {
	case FiberHalfSpliced:
		return "half_spliced"
	case FiberFullySpliced:
		return "fully_spliced"
	default:
		return "free"
	}
}

func fiberStateOf(ep connectivity.Endpoints) FiberState {
	switch ep.Count() {
	case 0:
		return FiberFree
	case 1:
		return FiberHalfSpliced
	default:
		return FiberFullySpliced
	}
}

type PortState int

const (
	PortFree PortState = iota
	PortOccupied
	PortMirrored
)

func (s PortState) String() string {
	switch s {
	case PortOccupied:
		return "occupied"
	case PortMirrored:
		return "mirrored"
	default:
		return "free"
	}
}

// portStateOf gives a fiber connection precedence over a mirror group.
func portStateOf(ep connectivity.Endpoints, mirror connectivity.MirrorGroup) PortState {
	switch {
	case !ep.Empty():
		return PortOccupied
	case !mirror.IsNone():
		return PortMirrored
	default:
		return PortFree
	}
}

// Flags are the interaction flags a renderer applies to a cell.
type Flags struct {
	Selectable  bool `json:"selectable"`
	Connectable bool `json:"connectable"`
}

func fiberFlags(state FiberState, leftover bool) Flags {
	ok := state != FiberFullySpliced && !leftover
	return Flags{Selectable: ok, Connectable: ok}
}

func portFlags(state PortState, fiberFull bool) Flags {
	return Flags{
		Selectable:  !fiberFull,
		Connectable: state == PortFree,
	}
}

// FiberInfo is the machine's synchronized view of one fiber.
type FiberInfo struct {
	Ref       connectivity.Ref
	State     FiberState
	Endpoints connectivity.Endpoints
	Leftover  bool
	Flags     Flags
}

// PortInfo is the machine's synchronized view of one port.
type PortInfo struct {
	Ref       connectivity.Ref
	State     PortState
	Endpoints connectivity.Endpoints
	Mirror    connectivity.MirrorGroup
	Flags     Flags
}

// Fiber returns the fiber held by the port, if any.
func (p PortInfo) Fiber() (connectivity.Ref, connectivity.Side, bool) {
	if p.Endpoints.A != nil {
		return *p.Endpoints.A, connectivity.SideA, true
	}
	if p.Endpoints.B != nil {
		return *p.Endpoints.B, connectivity.SideB, true
	}
	return connectivity.Ref{}, connectivity.SideA, false
}
