package containerpath

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"kuwaiba/osp-core/internal/classes"
	"kuwaiba/osp-core/internal/compensate"
	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/metrics"
	"kuwaiba/osp-core/internal/naming"
)

// PathRequest asks for a new container between A and B.
type PathRequest struct {
	A        connectivity.Ref
	B        connectivity.Ref
	Class    string
	Name     string
	Template string
}

type Creator struct {
	log     zerolog.Logger
	store   connectivity.Store
	metrics *metrics.Metrics
}

func NewCreator(log zerolog.Logger, store connectivity.Store, m *metrics.Metrics) *Creator {
	return &Creator{log: log, store: store, metrics: m}
}

// CheckCommonParent returns the common parent of a and b. Having none, or
// only the dummy root, is a validation error.
func CheckCommonParent(ctx context.Context, store connectivity.Store, a, b connectivity.Ref) (connectivity.Ref, error) {
	p, err := store.GetCommonParent(ctx, a, b)
	if err != nil {
		return connectivity.Ref{}, connectivity.Persist("get common parent", err)
	}
	if p.IsZero() || p.Class == classes.DummyRoot {
		return connectivity.Ref{}, connectivity.Invalid(connectivity.CodeNoCommonParent, &a,
			"%s and %s have no common parent", displayName(a), displayName(b))
	}
	return p, nil
}

// SharedContainers lists the containers with one endpoint at a and the other
// at b, in display-name order.
func SharedContainers(ctx context.Context, model *connectivity.Model, a, b connectivity.Ref) ([]connectivity.Ref, error) {
	store := model.Store()
	read := func(obj connectivity.Ref) (map[string]connectivity.Ref, error) {
		attrs, err := store.GetSpecialAttributes(ctx, obj, connectivity.RelEndpointA, connectivity.RelEndpointB)
		if err != nil {
			return nil, connectivity.Persist("get endpoints", err)
		}
		out := make(map[string]connectivity.Ref)
		for _, refs := range attrs {
			for _, r := range refs {
				out[r.Key()] = r
			}
		}
		return out, nil
	}
	fromA, err := read(a)
	if err != nil {
		return nil, err
	}
	fromB, err := read(b)
	if err != nil {
		return nil, err
	}
	var shared []connectivity.Ref
	for k, r := range fromA {
		if _, ok := fromB[k]; ok {
			shared = append(shared, r)
		}
	}
	naming.SortRefs(shared)
	return shared, nil
}

// Create validates the selection and creates the container under the first
// selected container, adds the others as parents, relates it to every root it
// runs through and sets its endpoints. A failure deletes the new container.
func (c *Creator) Create(ctx context.Context, req PathRequest, sel *Selection) (connectivity.Ref, error) {
	if _, err := CheckCommonParent(ctx, c.store, req.A, req.B); err != nil {
		return connectivity.Ref{}, err
	}
	selected := sel.Selected()
	if len(selected) == 0 {
		return connectivity.Ref{}, connectivity.Invalid(connectivity.CodeEmptySelection, nil,
			"select at least one container for the path")
	}
	res := sel.Validate()
	c.metrics.IncPathValidation(res.Valid)
	if !res.Valid {
		names := make([]string, 0, len(res.Offending))
		for _, v := range res.Offending {
			names = append(names, displayName(v))
		}
		return connectivity.Ref{}, connectivity.Invalid(connectivity.CodeNotContinuous, nil,
			"the selected containers do not form a continuous path (check %s)", strings.Join(names, ", "))
	}

	var created connectivity.Ref
	err := compensate.WithRollback(ctx, func(ctx context.Context, tx *compensate.Tx) error {
		// Selected is in display-name order, so the first name hosts the container.
		ref, err := c.store.CreateSpecialObject(ctx, req.Class, selected[0],
			map[string]string{connectivity.AttrName: req.Name}, req.Template)
		if err != nil {
			return connectivity.Persist("create container", err)
		}
		tx.Defer("delete container "+ref.Key(), func(ctx context.Context) error {
			return c.store.DeleteObject(ctx, ref, true)
		})

		for _, p := range selected[1:] {
			if err := c.store.AddParentToSpecialObject(ctx, ref, p); err != nil {
				return connectivity.Persist("add container parent", err)
			}
		}
		for _, e := range sel.Edges() {
			if err := c.store.CreateSpecialRelationship(ctx, ref, e.Container, connectivity.RelHasPath, true); err != nil {
				return connectivity.Persist("relate path", err)
			}
		}
		if err := c.store.CreateSpecialRelationship(ctx, ref, req.A, connectivity.RelEndpointA, false); err != nil {
			return connectivity.Persist("set endpoint A", err)
		}
		if err := c.store.CreateSpecialRelationship(ctx, ref, req.B, connectivity.RelEndpointB, false); err != nil {
			return connectivity.Persist("set endpoint B", err)
		}
		ref.Name = req.Name
		created = ref
		return nil
	})
	if err != nil {
		c.log.Error().Err(err).Str("class", req.Class).Str("name", req.Name).Msg("create container failed")
		return connectivity.Ref{}, err
	}

	c.log.Info().
		Str("container", created.Key()).
		Str("a", req.A.Key()).
		Str("b", req.B.Key()).
		Int("segments", res.EdgeCount).
		Msg("container created")
	return created, nil
}

func displayName(r connectivity.Ref) string {
	if r.Name != "" {
		return r.Name
	}
	return r.Key()
}
