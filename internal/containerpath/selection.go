package containerpath

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set"

	"kuwaiba/osp-core/internal/classes"
	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/naming"
)

// Selection tracks which containers are chosen for a new path. Every
// candidate maps to the root containers it runs through; a root maps to
// itself.
type Selection struct {
	roots      map[string]Segment
	rootOrder  []string
	candidates map[string]*candidate
	selected   mapset.Set
}

type candidate struct {
	ref   connectivity.Ref
	roots mapset.Set
	root  bool
}

// Candidate is the public view of one selectable container.
type Candidate struct {
	Container connectivity.Ref   `json:"container"`
	Roots     []connectivity.Ref `json:"roots"`
	Root      bool               `json:"root"`
	Selected  bool               `json:"selected"`
}

// NewSelection starts with every root selected.
func NewSelection(roots []Segment) *Selection {
	s := &Selection{
		roots:      make(map[string]Segment, len(roots)),
		candidates: make(map[string]*candidate, len(roots)),
		selected:   mapset.NewSet(),
	}
	for _, r := range roots {
		key := r.Container.Key()
		if _, ok := s.roots[key]; ok {
			continue
		}
		s.roots[key] = r
		s.rootOrder = append(s.rootOrder, key)
		s.candidates[key] = &candidate{ref: r.Container, roots: mapset.NewSet(key), root: true}
		s.selected.Add(key)
	}
	return s
}

// AddNested registers a container nested inside the given roots.
func (s *Selection) AddNested(container connectivity.Ref, rootKeys ...string) error {
	key := container.Key()
	c, ok := s.candidates[key]
	if !ok {
		c = &candidate{ref: container, roots: mapset.NewSet()}
		s.candidates[key] = c
	}
	for _, rk := range rootKeys {
		if _, ok := s.roots[rk]; !ok {
			return fmt.Errorf("unknown root container %q", rk)
		}
		c.roots.Add(rk)
	}
	return nil
}

// Toggle deselects every selected container that shares a root with key,
// then selects key when checked.
func (s *Selection) Toggle(key string, checked bool) error {
	c, ok := s.candidates[key]
	if !ok {
		return fmt.Errorf("unknown container %q", key)
	}
	for _, k := range s.selected.ToSlice() {
		other := s.candidates[k.(string)]
		if other.roots.Intersect(c.roots).Cardinality() > 0 {
			s.selected.Remove(k)
		}
	}
	if checked {
		s.selected.Add(key)
	}
	return nil
}

func (s *Selection) IsSelected(key string) bool {
	return s.selected.Contains(key)
}

// Selected returns the selected containers in display-name order.
func (s *Selection) Selected() []connectivity.Ref {
	out := make([]connectivity.Ref, 0, s.selected.Cardinality())
	for _, k := range s.selected.ToSlice() {
		out = append(out, s.candidates[k.(string)].ref)
	}
	naming.SortRefs(out)
	return out
}

// Edges returns the root segments covered by the selection.
func (s *Selection) Edges() []Segment {
	covered := mapset.NewSet()
	for _, k := range s.selected.ToSlice() {
		covered = covered.Union(s.candidates[k.(string)].roots)
	}
	out := make([]Segment, 0, covered.Cardinality())
	for _, rk := range s.rootOrder {
		if covered.Contains(rk) {
			out = append(out, s.roots[rk])
		}
	}
	return out
}

func (s *Selection) Validate() Result {
	return Validate(s.Edges())
}

func (s *Selection) Candidates() []Candidate {
	out := make([]Candidate, 0, len(s.candidates))
	for key, c := range s.candidates {
		cand := Candidate{Container: c.ref, Root: c.root, Selected: s.selected.Contains(key)}
		for _, rk := range s.rootOrder {
			if c.roots.Contains(rk) {
				cand.Roots = append(cand.Roots, s.roots[rk].Container)
			}
		}
		out = append(out, cand)
	}
	sortCandidates(out)
	return out
}

// LoadSelection reads the root containers' endpoints and every container
// nested below them.
func LoadSelection(ctx context.Context, model *connectivity.Model, meta connectivity.Metadata, roots []connectivity.Ref) (*Selection, error) {
	segs := make([]Segment, 0, len(roots))
	for _, r := range roots {
		obj, err := model.Object(ctx, r)
		if err != nil {
			return nil, err
		}
		ep, err := model.Endpoints(ctx, r)
		if err != nil {
			return nil, err
		}
		segs = append(segs, Segment{Container: obj.Ref, A: ep.A, B: ep.B})
	}
	sel := NewSelection(segs)

	store := model.Store()
	for _, seg := range segs {
		rootKey := seg.Container.Key()
		seen := map[string]struct{}{rootKey: {}}
		queue := []connectivity.Ref{seg.Container}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			children, err := store.GetObjectSpecialChildren(ctx, cur)
			if err != nil {
				return nil, connectivity.Persist("get special children", err)
			}
			for _, child := range children {
				if _, ok := seen[child.Key()]; ok {
					continue
				}
				seen[child.Key()] = struct{}{}
				isContainer, err := meta.IsSubclassOf(ctx, classes.GenericPhysicalContainer, child.Class)
				if err != nil {
					return nil, err
				}
				if !isContainer {
					continue
				}
				if _, isRoot := sel.roots[child.Key()]; isRoot {
					continue
				}
				if err := sel.AddNested(child.Ref, rootKey); err != nil {
					return nil, err
				}
				queue = append(queue, child.Ref)
			}
		}
	}
	return sel, nil
}

func sortCandidates(cs []Candidate) {
	refs := make([]connectivity.Ref, len(cs))
	byKey := make(map[string]Candidate, len(cs))
	for i, c := range cs {
		refs[i] = c.Container
		byKey[c.Container.Key()] = c
	}
	naming.SortRefs(refs)
	for i, r := range refs {
		cs[i] = byKey[r.Key()]
	}
}
