package containerpath

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"

	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/inventory"
)

func newExampleStore(t *testing.T) *inventory.Store {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	seed, err := inventory.LoadSeed(filepath.Join(filepath.Dir(thisFile), "..", "..", "configs", "seed.example.yaml"))
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	s, err := inventory.NewFromSeed(context.Background(), seed)
	if err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	return s
}

var (
	b1 = connectivity.Ref{Class: "Building", ID: "b1"}
	b2 = connectivity.Ref{Class: "Building", ID: "b2"}
	b9 = connectivity.Ref{Class: "Building", ID: "b9"}
	m1 = connectivity.Ref{Class: "Manhole", ID: "m1"}
	d1 = connectivity.Ref{Class: "Conduit", ID: "d1"}
	d2 = connectivity.Ref{Class: "Conduit", ID: "d2"}
	c1 = connectivity.Ref{Class: "WireContainer", ID: "c1"}
)

func loadExampleSelection(t *testing.T, store *inventory.Store) *Selection {
	t.Helper()
	model := connectivity.NewModel(store, zerolog.Nop())
	sel, err := LoadSelection(context.Background(), model, store, []connectivity.Ref{d1, d2})
	if err != nil {
		t.Fatalf("load selection: %v", err)
	}
	return sel
}

func TestLoadSelection_rootsStartSelectedAndFormAPath(t *testing.T) {
	sel := loadExampleSelection(t, newExampleStore(t))

	if !sel.IsSelected(d1.Key()) || !sel.IsSelected(d2.Key()) {
		t.Fatalf("expected both roots selected")
	}
	res := sel.Validate()
	if !res.Valid || res.EndpointCount != 2 || res.InteriorCount != 1 {
		t.Fatalf("expected b1-m1-b2 to be a path, got %+v", res)
	}

	var nested int
	for _, c := range sel.Candidates() {
		if !c.Root {
			nested++
			if len(c.Roots) != 2 {
				t.Fatalf("expected %s to run through both ducts, got %+v", c.Container.Key(), c.Roots)
			}
		}
	}
	if nested != 3 {
		t.Fatalf("expected cable and two tubes as nested candidates, got %d", nested)
	}
}

func TestToggle_nestedDeselectsContainersSharingARoot(t *testing.T) {
	sel := NewSelection([]Segment{
		{Container: d1, A: &b1, B: &m1},
		{Container: d2, A: &m1, B: &b2},
	})
	if err := sel.AddNested(c1, d1.Key()); err != nil {
		t.Fatalf("add nested: %v", err)
	}

	if err := sel.Toggle(c1.Key(), true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if sel.IsSelected(d1.Key()) {
		t.Fatalf("expected d1 deselected when a container inside it is selected")
	}
	if !sel.IsSelected(d2.Key()) {
		t.Fatalf("d2 shares no root with c1 and must stay selected")
	}
	if !sel.IsSelected(c1.Key()) {
		t.Fatalf("expected c1 selected")
	}
	if edges := sel.Edges(); len(edges) != 2 {
		t.Fatalf("c1 covers d1, expected 2 root edges, got %d", len(edges))
	}

	if err := sel.Toggle(d1.Key(), true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if sel.IsSelected(c1.Key()) || !sel.IsSelected(d1.Key()) {
		t.Fatalf("reselecting the root must deselect the nested container")
	}

	if err := sel.Toggle(d2.Key(), false); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if sel.IsSelected(d2.Key()) {
		t.Fatalf("expected d2 deselected")
	}
	if err := sel.Toggle("Conduit/unknown", true); err == nil {
		t.Fatalf("expected unknown container error")
	}
}

func TestCheckCommonParent(t *testing.T) {
	store := newExampleStore(t)
	ctx := context.Background()

	p, err := CheckCommonParent(ctx, store, b1, b2)
	if err != nil || p.ID != "city1" {
		t.Fatalf("expected city1, got %+v %v", p, err)
	}
	_, err = CheckCommonParent(ctx, store, b1, b9)
	if ve, ok := connectivity.AsValidation(err); !ok || ve.Code != connectivity.CodeNoCommonParent {
		t.Fatalf("expected no_common_parent, got %v", err)
	}
}

func TestSharedContainers(t *testing.T) {
	store := newExampleStore(t)
	model := connectivity.NewModel(store, zerolog.Nop())

	shared, err := SharedContainers(context.Background(), model, b1, m1)
	if err != nil {
		t.Fatalf("shared: %v", err)
	}
	if len(shared) != 1 || shared[0].ID != "d1" {
		t.Fatalf("expected Duct A only, got %+v", shared)
	}
	shared, _ = SharedContainers(context.Background(), model, b1, b2)
	if len(shared) != 0 {
		t.Fatalf("no container joins b1 and b2 directly, got %+v", shared)
	}
}

func TestCreate_buildsContainerAlongPath(t *testing.T) {
	store := newExampleStore(t)
	ctx := context.Background()
	sel := loadExampleSelection(t, store)
	if err := sel.Toggle(c1.Key(), true); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	creator := NewCreator(zerolog.Nop(), store, nil)
	ref, err := creator.Create(ctx, PathRequest{A: b1, B: b2, Class: "WireContainer", Name: "Cable 02"}, sel)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ref.Name != "Cable 02" {
		t.Fatalf("unexpected ref %+v", ref)
	}

	parents, err := store.GetSpecialParents(ctx, ref)
	if err != nil || len(parents) != 1 || parents[0].ID != "c1" {
		t.Fatalf("expected new container inside c1, got %+v %v", parents, err)
	}
	attrs, err := store.GetSpecialAttributes(ctx, ref, connectivity.RelHasPath, connectivity.RelEndpointA, connectivity.RelEndpointB)
	if err != nil {
		t.Fatalf("attrs: %v", err)
	}
	if len(attrs[connectivity.RelHasPath]) != 2 {
		t.Fatalf("expected path relationships to both ducts, got %+v", attrs[connectivity.RelHasPath])
	}
	if a := attrs[connectivity.RelEndpointA]; len(a) != 1 || a[0].ID != "b1" {
		t.Fatalf("expected endpointA b1, got %+v", a)
	}
}

func TestCreate_rejectsBrokenPath(t *testing.T) {
	store := newExampleStore(t)
	extra := connectivity.Ref{Class: "Conduit", ID: "dx", Name: "Duct X"}
	broken := NewSelection([]Segment{
		{Container: d1, A: &b1, B: &m1},
		{Container: extra, A: &b2, B: &b9},
	})

	creator := NewCreator(zerolog.Nop(), store, nil)
	_, err := creator.Create(context.Background(), PathRequest{A: b1, B: b2, Class: "WireContainer", Name: "X"}, broken)
	if ve, ok := connectivity.AsValidation(err); !ok || ve.Code != connectivity.CodeNotContinuous {
		t.Fatalf("expected path_not_continuous, got %v", err)
	}

	empty := NewSelection(nil)
	_, err = creator.Create(context.Background(), PathRequest{A: b1, B: b2, Class: "WireContainer", Name: "X"}, empty)
	if ve, ok := connectivity.AsValidation(err); !ok || ve.Code != connectivity.CodeEmptySelection {
		t.Fatalf("expected empty_selection, got %v", err)
	}
}

type failingRelateStore struct {
	*inventory.Store
}

var errRelate = errors.New("relate failed")

func (f failingRelateStore) CreateSpecialRelationship(ctx context.Context, from, to connectivity.Ref, relName string, isList bool) error {
	if relName == connectivity.RelHasPath {
		return errRelate
	}
	return f.Store.CreateSpecialRelationship(ctx, from, to, relName, isList)
}

func TestCreate_deletesContainerOnFailure(t *testing.T) {
	base := newExampleStore(t)
	ctx := context.Background()
	sel := loadExampleSelection(t, base)

	before, _ := base.GetObjectSpecialChildren(ctx, d1)
	creator := NewCreator(zerolog.Nop(), failingRelateStore{base}, nil)
	_, err := creator.Create(ctx, PathRequest{A: b1, B: b2, Class: "WireContainer", Name: "Cable 03"}, sel)
	if !errors.Is(err, errRelate) || !connectivity.IsPersistence(err) {
		t.Fatalf("expected wrapped persistence failure, got %v", err)
	}
	after, _ := base.GetObjectSpecialChildren(ctx, d1)
	if len(after) != len(before) {
		t.Fatalf("expected the new container to be deleted, children %d -> %d", len(before), len(after))
	}
}

func TestCreate_requiresCommonParent(t *testing.T) {
	store := newExampleStore(t)
	sel := loadExampleSelection(t, store)
	creator := NewCreator(zerolog.Nop(), store, nil)
	_, err := creator.Create(context.Background(), PathRequest{A: b1, B: b9, Class: "WireContainer", Name: "X"}, sel)
	if ve, ok := connectivity.AsValidation(err); !ok || ve.Code != connectivity.CodeNoCommonParent {
		t.Fatalf("expected no_common_parent, got %v", err)
	}
}
