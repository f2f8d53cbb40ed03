package connectivity

import (
	"fmt"
	"strings"
)

// Special relationship and attribute names shared with the inventory store.
const (
	RelEndpointA      = "endpointA"
	RelEndpointB      = "endpointB"
	RelMirror         = "mirror"
	RelMirrorMultiple = "mirrorMultiple"
	RelHasPath        = "ospmanHasPath"

	AttrName     = "name"
	AttrLeftover = "leftover"
	AttrColor    = "color"
)

// Ref identifies an inventory object. Identity is (Class, ID); Name is carried
// for display only.
type Ref struct {
	Class string `json:"class" yaml:"class"`
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
}

func (r Ref) Key() string {
	return r.Class + "/" + r.ID
}

func (r Ref) IsZero() bool {
	return r.Class == "" && r.ID == ""
}

func (r Ref) Same(o Ref) bool {
	return r.Class == o.Class && r.ID == o.ID
}

func (r Ref) String() string {
	if r.Name != "" {
		return fmt.Sprintf("%s [%s]", r.Name, r.Class)
	}
	return r.Key()
}

// ParseKey reverses Ref.Key.
func ParseKey(key string) (Ref, bool) {
	class, id, ok := strings.Cut(key, "/")
	if !ok || class == "" || id == "" {
		return Ref{}, false
	}
	return Ref{Class: class, ID: id}, true
}

// Object is a Ref plus its stored attributes.
type Object struct {
	Ref
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

func (o Object) Attr(name string) string {
	if o.Attributes == nil {
		return ""
	}
	return o.Attributes[name]
}

// Side is one of the two named connection slots of a fiber or container.
type Side int

const (
	SideA Side = iota
	SideB
)

func (s Side) RelName() string {
	if s == SideB {
		return RelEndpointB
	}
	return RelEndpointA
}

func (s Side) Other() Side {
	if s == SideB {
		return SideA
	}
	return SideB
}

func (s Side) String() string {
	if s == SideB {
		return "B"
	}
	return "A"
}

func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "A", strings.ToUpper(RelEndpointA):
		return SideA, nil
	case "B", strings.ToUpper(RelEndpointB):
		return SideB, nil
	default:
		return SideA, fmt.Errorf("unknown side %q", v)
	}
}

// Endpoints is the typed view of an object's endpointA/endpointB relationships.
type Endpoints struct {
	A *Ref `json:"a,omitempty"`
	B *Ref `json:"b,omitempty"`
}

func (e Endpoints) Get(s Side) *Ref {
	if s == SideB {
		return e.B
	}
	return e.A
}

func (e Endpoints) Occupied(s Side) bool {
	return e.Get(s) != nil
}

func (e Endpoints) Count() int {
	n := 0
	if e.A != nil {
		n++
	}
	if e.B != nil {
		n++
	}
	return n
}

func (e Endpoints) Empty() bool { return e.Count() == 0 }

func (e Endpoints) Full() bool { return e.Count() == 2 }

// FirstFree returns the first unoccupied side in order A, then B.
func (e Endpoints) FirstFree() (Side, bool) {
	switch {
	case e.A == nil:
		return SideA, true
	case e.B == nil:
		return SideB, true
	default:
		return SideA, false
	}
}

// SideOf reports which side currently points at ref.
func (e Endpoints) SideOf(ref Ref) (Side, bool) {
	if e.A != nil && e.A.Same(ref) {
		return SideA, true
	}
	if e.B != nil && e.B.Same(ref) {
		return SideB, true
	}
	return SideA, false
}

// MirrorKind tags the variant held by a MirrorGroup.
type MirrorKind int

const (
	MirrorNone MirrorKind = iota
	MirrorSingle
	MirrorMultiple
)

func (k MirrorKind) String() string {
	switch k {
	case MirrorSingle:
		return "single"
	case MirrorMultiple:
		return "multiple"
	default:
		return "none"
	}
}

// MirrorGroup is the port pairing variant: none, one peer, or two or more peers.
// The zero value is MirrorNone.
type MirrorGroup struct {
	kind  MirrorKind
	peers []Ref
}

func NoMirror() MirrorGroup { return MirrorGroup{} }

func SingleMirror(peer Ref) MirrorGroup {
	return MirrorGroup{kind: MirrorSingle, peers: []Ref{peer}}
}

func MultipleMirror(peers []Ref) (MirrorGroup, error) {
	if len(peers) < 2 {
		return MirrorGroup{}, fmt.Errorf("%w: a multiple mirror needs at least 2 peers, got %d", ErrInvalidState, len(peers))
	}
	cp := make([]Ref, len(peers))
	copy(cp, peers)
	return MirrorGroup{kind: MirrorMultiple, peers: cp}, nil
}

func (m MirrorGroup) Kind() MirrorKind { return m.kind }

func (m MirrorGroup) IsNone() bool { return m.kind == MirrorNone }

// Peer returns the single mirrored port.
func (m MirrorGroup) Peer() (Ref, bool) {
	if m.kind != MirrorSingle {
		return Ref{}, false
	}
	return m.peers[0], true
}

func (m MirrorGroup) Peers() []Ref {
	out := make([]Ref, len(m.peers))
	copy(out, m.peers)
	return out
}
