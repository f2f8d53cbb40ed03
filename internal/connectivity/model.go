package connectivity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Model reads and writes special relationships through a Store. It caches
// nothing; every call round-trips.
type Model struct {
	store Store
	log   zerolog.Logger
}

func NewModel(store Store, log zerolog.Logger) *Model {
	return &Model{store: store, log: log}
}

func (m *Model) Store() Store { return m.store }

func (m *Model) Object(ctx context.Context, ref Ref) (Object, error) {
	obj, err := m.store.GetObject(ctx, ref)
	if err != nil {
		return Object{}, Persist("get object", err)
	}
	return obj, nil
}

func (m *Model) Endpoints(ctx context.Context, obj Ref) (Endpoints, error) {
	attrs, err := m.store.GetSpecialAttributes(ctx, obj, RelEndpointA, RelEndpointB)
	if err != nil {
		return Endpoints{}, Persist("get endpoints", err)
	}
	var out Endpoints
	if refs := attrs[RelEndpointA]; len(refs) > 0 {
		r := refs[0]
		out.A = &r
	}
	if refs := attrs[RelEndpointB]; len(refs) > 0 {
		r := refs[0]
		out.B = &r
	}
	return out, nil
}

func (m *Model) HasEndpoint(ctx context.Context, obj Ref, side Side) (bool, error) {
	ep, err := m.Endpoints(ctx, obj)
	if err != nil {
		return false, err
	}
	return ep.Occupied(side), nil
}

// CreateRelationship relates from to to on the given side. It fails with
// ErrInvalidState when that side of from is already occupied.
func (m *Model) CreateRelationship(ctx context.Context, from, to Ref, side Side, isList bool) error {
	ep, err := m.Endpoints(ctx, from)
	if err != nil {
		return err
	}
	if cur := ep.Get(side); cur != nil {
		return fmt.Errorf("%w: %s side %s already holds %s", ErrInvalidState, from.Key(), side, cur.Key())
	}
	if err := m.store.CreateSpecialRelationship(ctx, from, to, side.RelName(), isList); err != nil {
		return Persist("create relationship", err)
	}
	return nil
}

// ReleaseRelationship removes the relationship if present. Releasing an absent
// relationship only logs a warning.
func (m *Model) ReleaseRelationship(ctx context.Context, from, to Ref, side Side) error {
	rel := side.RelName()
	attrs, err := m.store.GetSpecialAttributes(ctx, from, rel)
	if err != nil {
		return Persist("get endpoints", err)
	}
	found := false
	for _, r := range attrs[rel] {
		if r.Same(to) {
			found = true
			break
		}
	}
	if !found {
		m.log.Warn().
			Str("from", from.Key()).
			Str("to", to.Key()).
			Str("rel", rel).
			Msg("release skipped: relationship already absent")
		return nil
	}
	if err := m.store.ReleaseSpecialRelationship(ctx, from, to, rel); err != nil {
		return Persist("release relationship", err)
	}
	return nil
}

// Mirrors reads the port's mirror group. A port carrying both a mirror and a
// mirrorMultiple relationship is reported as ErrInvalidState.
func (m *Model) Mirrors(ctx context.Context, port Ref) (MirrorGroup, error) {
	attrs, err := m.store.GetSpecialAttributes(ctx, port, RelMirror, RelMirrorMultiple)
	if err != nil {
		return MirrorGroup{}, Persist("get mirrors", err)
	}
	single := attrs[RelMirror]
	multi := attrs[RelMirrorMultiple]
	switch {
	case len(single) > 0 && len(multi) > 0:
		return MirrorGroup{}, fmt.Errorf("%w: port %s has both %s and %s", ErrInvalidState, port.Key(), RelMirror, RelMirrorMultiple)
	case len(single) > 1:
		return MirrorGroup{}, fmt.Errorf("%w: port %s has %d %s peers", ErrInvalidState, port.Key(), len(single), RelMirror)
	case len(single) == 1:
		return SingleMirror(single[0]), nil
	case len(multi) == 1:
		return SingleMirror(multi[0]), nil
	case len(multi) > 1:
		return MultipleMirror(multi)
	default:
		return NoMirror(), nil
	}
}

func IsLeftover(obj Object) bool {
	return obj.Attr(AttrLeftover) == "true"
}
