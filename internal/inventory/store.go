// Package inventory is an in-memory inventory store. It backs the service when
// no database is configured and is the reference behavior the Postgres
// queries are tested against.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"kuwaiba/osp-core/internal/classes"
	"kuwaiba/osp-core/internal/connectivity"
)

// RootRef stands for DummyRoot, the implicit parent of top-level objects.
var RootRef = connectivity.Ref{Class: classes.DummyRoot, ID: "-1", Name: "Root"}

type record struct {
	obj            connectivity.Object
	parent         string
	specialParents []string
}

type relation struct {
	from, to, name string
}

type Store struct {
	mu        sync.RWMutex
	objects   map[string]*record
	rels      []relation
	hierarchy map[string]string
	newID     func() string
}

func New() *Store {
	return &Store{
		objects:   make(map[string]*record),
		hierarchy: classes.Hierarchy(),
		newID:     uuid.NewString,
	}
}

// DefineClass adds or replaces a class in the metadata hierarchy.
func (s *Store) DefineClass(name, superclass string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hierarchy[name] = superclass
}

func (s *Store) PutClass(_ context.Context, name, superclass string) error {
	s.DefineClass(name, superclass)
	return nil
}

func (s *Store) IsSubclassOf(_ context.Context, superclass, class string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return classes.IsSubclassIn(s.hierarchy, superclass, class), nil
}

func (s *Store) PutObject(_ context.Context, obj connectivity.Object, parent connectivity.Ref, specialParents ...connectivity.Ref) error {
	return s.Put(obj, parent, specialParents...)
}

// Put inserts an object with a caller-chosen id. A zero parent means the
// object hangs from the root.
func (s *Store) Put(obj connectivity.Object, parent connectivity.Ref, specialParents ...connectivity.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if obj.Class == "" || obj.ID == "" {
		return fmt.Errorf("object needs class and id")
	}
	key := obj.Key()
	if _, ok := s.objects[key]; ok {
		return fmt.Errorf("object %s already exists", key)
	}
	rec := &record{obj: cloneObject(obj)}
	if obj.Name != "" {
		rec.obj.Attributes[connectivity.AttrName] = obj.Name
	}
	rec.obj.Name = rec.obj.Attributes[connectivity.AttrName]
	if !parent.IsZero() {
		if _, err := s.lookup(parent); err != nil {
			return err
		}
		rec.parent = parent.Key()
	}
	for _, p := range specialParents {
		if _, err := s.lookup(p); err != nil {
			return err
		}
		rec.specialParents = append(rec.specialParents, p.Key())
	}
	s.objects[key] = rec
	return nil
}

func (s *Store) GetObject(_ context.Context, ref connectivity.Ref) (connectivity.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.lookup(ref)
	if err != nil {
		return connectivity.Object{}, err
	}
	return cloneObject(rec.obj), nil
}

func (s *Store) GetSpecialAttributes(_ context.Context, obj connectivity.Ref, relNames ...string) (map[string][]connectivity.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.lookup(obj); err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(relNames))
	for _, n := range relNames {
		want[n] = struct{}{}
	}
	key := obj.Key()
	out := make(map[string][]connectivity.Ref)
	for _, r := range s.rels {
		if len(want) > 0 {
			if _, ok := want[r.name]; !ok {
				continue
			}
		}
		var peer string
		switch key {
		case r.from:
			peer = r.to
		case r.to:
			peer = r.from
		default:
			continue
		}
		if rec, ok := s.objects[peer]; ok {
			out[r.name] = append(out[r.name], rec.obj.Ref)
		}
	}
	return out, nil
}

func (s *Store) CreateSpecialRelationship(_ context.Context, from, to connectivity.Ref, relName string, isList bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(from); err != nil {
		return err
	}
	if _, err := s.lookup(to); err != nil {
		return err
	}
	fk, tk := from.Key(), to.Key()
	if !isList {
		kept := s.rels[:0]
		for _, r := range s.rels {
			if r.from == fk && r.name == relName {
				continue
			}
			kept = append(kept, r)
		}
		s.rels = kept
	}
	for _, r := range s.rels {
		if r.from == fk && r.to == tk && r.name == relName {
			return nil
		}
	}
	s.rels = append(s.rels, relation{from: fk, to: tk, name: relName})
	return nil
}

func (s *Store) ReleaseSpecialRelationship(_ context.Context, from, to connectivity.Ref, relName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fk, tk := from.Key(), to.Key()
	kept := s.rels[:0]
	for _, r := range s.rels {
		if r.name == relName && ((r.from == fk && r.to == tk) || (r.from == tk && r.to == fk)) {
			continue
		}
		kept = append(kept, r)
	}
	s.rels = kept
	return nil
}

func (s *Store) CreateObject(_ context.Context, class string, parent connectivity.Ref, attrs map[string]string) (connectivity.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &record{obj: newObject(class, s.newID(), attrs)}
	if !parent.IsZero() && parent.Class != classes.DummyRoot {
		if _, err := s.lookup(parent); err != nil {
			return connectivity.Ref{}, err
		}
		rec.parent = parent.Key()
	}
	s.objects[rec.obj.Key()] = rec
	return rec.obj.Ref, nil
}

// CreateSpecialObject creates obj under a special parent. When template names
// an existing object key its attributes are used as defaults.
func (s *Store) CreateSpecialObject(_ context.Context, class string, parent connectivity.Ref, attrs map[string]string, template string) (connectivity.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(parent); err != nil {
		return connectivity.Ref{}, err
	}
	merged := make(map[string]string)
	if template != "" {
		if tpl, ok := s.objects[template]; ok {
			for k, v := range tpl.obj.Attributes {
				merged[k] = v
			}
		}
	}
	for k, v := range attrs {
		merged[k] = v
	}
	rec := &record{obj: newObject(class, s.newID(), merged), specialParents: []string{parent.Key()}}
	s.objects[rec.obj.Key()] = rec
	return rec.obj.Ref, nil
}

func (s *Store) CopySpecialObjects(_ context.Context, parent connectivity.Ref, objs []connectivity.Ref, recursive bool) ([]connectivity.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(parent); err != nil {
		return nil, err
	}
	out := make([]connectivity.Ref, 0, len(objs))
	for _, o := range objs {
		src, err := s.lookup(o)
		if err != nil {
			return out, err
		}
		out = append(out, s.copyLocked(src, parent.Key(), recursive))
	}
	return out, nil
}

func (s *Store) copyLocked(src *record, parentKey string, recursive bool) connectivity.Ref {
	rec := &record{
		obj:            newObject(src.obj.Class, s.newID(), src.obj.Attributes),
		specialParents: []string{parentKey},
	}
	s.objects[rec.obj.Key()] = rec
	if recursive {
		for _, child := range s.specialChildrenLocked(src.obj.Key()) {
			s.copyLocked(child, rec.obj.Key(), true)
		}
	}
	return rec.obj.Ref
}

func (s *Store) AddParentToSpecialObject(_ context.Context, obj, parent connectivity.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookup(obj)
	if err != nil {
		return err
	}
	if _, err := s.lookup(parent); err != nil {
		return err
	}
	pk := parent.Key()
	for _, p := range rec.specialParents {
		if p == pk {
			return nil
		}
	}
	rec.specialParents = append(rec.specialParents, pk)
	return nil
}

func (s *Store) UpdateObject(_ context.Context, obj connectivity.Ref, attrs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookup(obj)
	if err != nil {
		return err
	}
	for k, v := range attrs {
		rec.obj.Attributes[k] = v
	}
	rec.obj.Name = rec.obj.Attributes[connectivity.AttrName]
	return nil
}

func (s *Store) DeleteObject(_ context.Context, obj connectivity.Ref, recursive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookup(obj)
	if err != nil {
		return err
	}
	key := rec.obj.Key()
	if !recursive && (len(s.childrenLocked(key)) > 0 || len(s.specialChildrenLocked(key)) > 0) {
		return fmt.Errorf("object %s has children", key)
	}
	s.deleteLocked(key)
	return nil
}

func (s *Store) deleteLocked(key string) {
	for _, child := range s.childrenLocked(key) {
		s.deleteLocked(child.obj.Key())
	}
	for _, child := range s.specialChildrenLocked(key) {
		child.specialParents = removeString(child.specialParents, key)
		if len(child.specialParents) == 0 {
			s.deleteLocked(child.obj.Key())
		}
	}
	kept := s.rels[:0]
	for _, r := range s.rels {
		if r.from == key || r.to == key {
			continue
		}
		kept = append(kept, r)
	}
	s.rels = kept
	delete(s.objects, key)
}

func (s *Store) GetObjectChildren(_ context.Context, obj connectivity.Ref) ([]connectivity.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.lookup(obj); err != nil {
		return nil, err
	}
	return objectsOf(s.childrenLocked(obj.Key())), nil
}

func (s *Store) GetObjectSpecialChildren(_ context.Context, obj connectivity.Ref) ([]connectivity.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.lookup(obj); err != nil {
		return nil, err
	}
	return objectsOf(s.specialChildrenLocked(obj.Key())), nil
}

func (s *Store) GetSpecialParents(_ context.Context, obj connectivity.Ref) ([]connectivity.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.lookup(obj)
	if err != nil {
		return nil, err
	}
	out := make([]connectivity.Ref, 0, len(rec.specialParents))
	for _, pk := range rec.specialParents {
		if p, ok := s.objects[pk]; ok {
			out = append(out, p.obj.Ref)
		}
	}
	return out, nil
}

func (s *Store) IsParent(_ context.Context, parent, child connectivity.Ref) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.lookup(child)
	if err != nil {
		return false, err
	}
	target := parent.Key()
	seen := make(map[string]struct{})
	queue := append([]string(nil), rec.specialParents...)
	if rec.parent != "" {
		queue = append(queue, rec.parent)
	}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if k == target {
			return true, nil
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		if r, ok := s.objects[k]; ok {
			queue = append(queue, r.specialParents...)
			if r.parent != "" {
				queue = append(queue, r.parent)
			}
		}
	}
	return false, nil
}

// GetCommonParent walks the containment chain. Top-level objects share
// RootRef.
func (s *Store) GetCommonParent(_ context.Context, a, b connectivity.Ref) (connectivity.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ra, err := s.lookup(a)
	if err != nil {
		return connectivity.Ref{}, err
	}
	rb, err := s.lookup(b)
	if err != nil {
		return connectivity.Ref{}, err
	}
	ancestors := make(map[string]struct{})
	for k := ra.parent; k != ""; k = s.objects[k].parent {
		ancestors[k] = struct{}{}
	}
	for k := rb.parent; k != ""; k = s.objects[k].parent {
		if _, ok := ancestors[k]; ok {
			return s.objects[k].obj.Ref, nil
		}
	}
	return RootRef, nil
}

func (s *Store) lookup(ref connectivity.Ref) (*record, error) {
	rec, ok := s.objects[ref.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", connectivity.ErrNotFound, ref.Key())
	}
	return rec, nil
}

func (s *Store) childrenLocked(key string) []*record {
	var out []*record
	for _, r := range s.objects {
		if r.parent == key {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out
}

func (s *Store) specialChildrenLocked(key string) []*record {
	var out []*record
	for _, r := range s.objects {
		for _, p := range r.specialParents {
			if p == key {
				out = append(out, r)
				break
			}
		}
	}
	sortRecords(out)
	return out
}

func sortRecords(rs []*record) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].obj.Key() < rs[j].obj.Key() })
}

func objectsOf(rs []*record) []connectivity.Object {
	out := make([]connectivity.Object, 0, len(rs))
	for _, r := range rs {
		out = append(out, cloneObject(r.obj))
	}
	return out
}

func newObject(class, id string, attrs map[string]string) connectivity.Object {
	obj := connectivity.Object{
		Ref:        connectivity.Ref{Class: class, ID: id},
		Attributes: make(map[string]string, len(attrs)),
	}
	for k, v := range attrs {
		obj.Attributes[k] = v
	}
	obj.Name = obj.Attributes[connectivity.AttrName]
	return obj
}

func cloneObject(o connectivity.Object) connectivity.Object {
	out := o
	out.Attributes = make(map[string]string, len(o.Attributes))
	for k, v := range o.Attributes {
		out.Attributes[k] = v
	}
	return out
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
