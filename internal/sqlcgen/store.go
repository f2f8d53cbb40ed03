package sqlcgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"kuwaiba/osp-core/internal/classes"
	"kuwaiba/osp-core/internal/connectivity"
)

// Postgres foreign_key_violation: one of the referenced objects is gone.
const pgForeignKeyViolation = "23503"

var rootRef = connectivity.Ref{Class: classes.DummyRoot, ID: "-1", Name: "Root"}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// inTx runs fn inside a transaction when the underlying DBTX can start one.
// A pgx.Tx starts a savepoint, so nesting is safe.
func (q *Queries) inTx(ctx context.Context, fn func(*Queries) error) error {
	b, ok := q.db.(beginner)
	if !ok {
		return fn(q)
	}
	tx, err := b.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(q.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func toObject(r ObjectRow) connectivity.Object {
	attrs := r.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return connectivity.Object{
		Ref:        connectivity.Ref{Class: r.Class, ID: r.ID, Name: attrs[connectivity.AttrName]},
		Attributes: attrs,
	}
}

func toObjects(rows []ObjectRow) []connectivity.Object {
	out := make([]connectivity.Object, 0, len(rows))
	for _, r := range rows {
		out = append(out, toObject(r))
	}
	return out
}

func notFound(ref connectivity.Ref) error {
	return fmt.Errorf("%w: %s", connectivity.ErrNotFound, ref.Key())
}

// mapErr turns missing rows and dangling references into ErrNotFound.
func mapErr(ref connectivity.Ref, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(ref)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%w: %s", connectivity.ErrNotFound, pgErr.Detail)
	}
	return err
}

func (q *Queries) mustExist(ctx context.Context, ref connectivity.Ref) error {
	ok, err := q.ObjectExists(ctx, ref.Class, ref.ID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(ref)
	}
	return nil
}

func parentArgs(parent connectivity.Ref) (*string, *string) {
	if parent.IsZero() || parent.Class == classes.DummyRoot {
		return nil, nil
	}
	c, id := parent.Class, parent.ID
	return &c, &id
}

func (q *Queries) PutClass(ctx context.Context, name, superclass string) error {
	var sup *string
	if superclass != "" {
		sup = &superclass
	}
	return q.UpsertClass(ctx, name, sup)
}

// IsSubclassOf consults the built-in hierarchy extended by the classes table.
func (q *Queries) IsSubclassOf(ctx context.Context, superclass, class string) (bool, error) {
	rows, err := q.ListClasses(ctx)
	if err != nil {
		return false, err
	}
	hierarchy := classes.Hierarchy()
	for _, c := range rows {
		sup := ""
		if c.Superclass != nil {
			sup = *c.Superclass
		}
		hierarchy[c.Name] = sup
	}
	return classes.IsSubclassIn(hierarchy, superclass, class), nil
}

// PutObject inserts an object with a caller-chosen id.
func (q *Queries) PutObject(ctx context.Context, obj connectivity.Object, parent connectivity.Ref, specialParents ...connectivity.Ref) error {
	if obj.Class == "" || obj.ID == "" {
		return fmt.Errorf("object needs class and id")
	}
	attrs := make(map[string]string, len(obj.Attributes)+1)
	for k, v := range obj.Attributes {
		attrs[k] = v
	}
	if obj.Name != "" {
		attrs[connectivity.AttrName] = obj.Name
	}
	return q.inTx(ctx, func(tq *Queries) error {
		pc, pid := parentArgs(parent)
		if err := tq.InsertObject(ctx, InsertObjectParams{Class: obj.Class, ID: obj.ID, Attributes: attrs, ParentClass: pc, ParentID: pid}); err != nil {
			return mapErr(parent, err)
		}
		for _, p := range specialParents {
			if err := tq.InsertSpecialParent(ctx, obj.Class, obj.ID, p.Class, p.ID); err != nil {
				return mapErr(p, err)
			}
		}
		return nil
	})
}

func (q *Queries) GetObject(ctx context.Context, ref connectivity.Ref) (connectivity.Object, error) {
	row, err := q.GetObjectRow(ctx, ref.Class, ref.ID)
	if err != nil {
		return connectivity.Object{}, mapErr(ref, err)
	}
	return toObject(row), nil
}

func (q *Queries) GetSpecialAttributes(ctx context.Context, obj connectivity.Ref, relNames ...string) (map[string][]connectivity.Ref, error) {
	if err := q.mustExist(ctx, obj); err != nil {
		return nil, err
	}
	rows, err := q.ListRelated(ctx, obj.Class, obj.ID, relNames)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]connectivity.Ref)
	for _, r := range rows {
		out[r.RelName] = append(out[r.RelName], toObject(r.ObjectRow).Ref)
	}
	return out, nil
}

// CreateSpecialRelationship relates from to to. Unless isList, any other
// relationship of the same name leaving from is replaced.
func (q *Queries) CreateSpecialRelationship(ctx context.Context, from, to connectivity.Ref, relName string, isList bool) error {
	return q.inTx(ctx, func(tq *Queries) error {
		if !isList {
			if err := tq.DeleteRelationshipsFrom(ctx, from.Class, from.ID, relName, to.Class, to.ID); err != nil {
				return err
			}
		}
		return mapErr(to, tq.InsertRelationship(ctx, from.Class, from.ID, to.Class, to.ID, relName))
	})
}

func (q *Queries) ReleaseSpecialRelationship(ctx context.Context, from, to connectivity.Ref, relName string) error {
	return q.DeleteRelationship(ctx, from.Class, from.ID, to.Class, to.ID, relName)
}

func (q *Queries) CreateObject(ctx context.Context, class string, parent connectivity.Ref, attrs map[string]string) (connectivity.Ref, error) {
	id := uuid.NewString()
	pc, pid := parentArgs(parent)
	if err := q.InsertObject(ctx, InsertObjectParams{Class: class, ID: id, Attributes: attrs, ParentClass: pc, ParentID: pid}); err != nil {
		return connectivity.Ref{}, mapErr(parent, err)
	}
	return connectivity.Ref{Class: class, ID: id, Name: attrs[connectivity.AttrName]}, nil
}

// CreateSpecialObject creates an object under a special parent. When template
// names an existing object key its attributes are used as defaults.
func (q *Queries) CreateSpecialObject(ctx context.Context, class string, parent connectivity.Ref, attrs map[string]string, template string) (connectivity.Ref, error) {
	merged := make(map[string]string)
	if tplRef, ok := connectivity.ParseKey(template); ok {
		tpl, err := q.GetObjectRow(ctx, tplRef.Class, tplRef.ID)
		switch {
		case err == nil:
			for k, v := range tpl.Attributes {
				merged[k] = v
			}
		case !errors.Is(err, pgx.ErrNoRows):
			return connectivity.Ref{}, err
		}
	}
	for k, v := range attrs {
		merged[k] = v
	}

	ref := connectivity.Ref{Class: class, ID: uuid.NewString(), Name: merged[connectivity.AttrName]}
	err := q.inTx(ctx, func(tq *Queries) error {
		if err := tq.mustExist(ctx, parent); err != nil {
			return err
		}
		if err := tq.InsertObject(ctx, InsertObjectParams{Class: ref.Class, ID: ref.ID, Attributes: merged}); err != nil {
			return err
		}
		return mapErr(parent, tq.InsertSpecialParent(ctx, ref.Class, ref.ID, parent.Class, parent.ID))
	})
	if err != nil {
		return connectivity.Ref{}, err
	}
	return ref, nil
}

// CopySpecialObjects copies objs, attributes only, under parent.
func (q *Queries) CopySpecialObjects(ctx context.Context, parent connectivity.Ref, objs []connectivity.Ref, recursive bool) ([]connectivity.Ref, error) {
	var out []connectivity.Ref
	err := q.inTx(ctx, func(tq *Queries) error {
		if err := tq.mustExist(ctx, parent); err != nil {
			return err
		}
		for _, o := range objs {
			src, err := tq.GetObjectRow(ctx, o.Class, o.ID)
			if err != nil {
				return mapErr(o, err)
			}
			ref, err := tq.copyObject(ctx, src, parent, recursive)
			if err != nil {
				return err
			}
			out = append(out, ref)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queries) copyObject(ctx context.Context, src ObjectRow, parent connectivity.Ref, recursive bool) (connectivity.Ref, error) {
	ref := toObject(ObjectRow{Class: src.Class, ID: uuid.NewString(), Attributes: src.Attributes}).Ref
	if err := q.InsertObject(ctx, InsertObjectParams{Class: ref.Class, ID: ref.ID, Attributes: src.Attributes}); err != nil {
		return connectivity.Ref{}, err
	}
	if err := q.InsertSpecialParent(ctx, ref.Class, ref.ID, parent.Class, parent.ID); err != nil {
		return connectivity.Ref{}, mapErr(parent, err)
	}
	if !recursive {
		return ref, nil
	}
	children, err := q.ListSpecialChildren(ctx, src.Class, src.ID)
	if err != nil {
		return connectivity.Ref{}, err
	}
	for _, c := range children {
		if _, err := q.copyObject(ctx, c, ref, true); err != nil {
			return connectivity.Ref{}, err
		}
	}
	return ref, nil
}

func (q *Queries) AddParentToSpecialObject(ctx context.Context, obj, parent connectivity.Ref) error {
	if err := q.mustExist(ctx, obj); err != nil {
		return err
	}
	return mapErr(parent, q.InsertSpecialParent(ctx, obj.Class, obj.ID, parent.Class, parent.ID))
}

func (q *Queries) UpdateObject(ctx context.Context, obj connectivity.Ref, attrs map[string]string) error {
	n, err := q.MergeObjectAttributes(ctx, obj.Class, obj.ID, attrs)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(obj)
	}
	return nil
}

// DeleteObject removes obj. Recursive deletion also removes its children and
// every special child left without a special parent.
func (q *Queries) DeleteObject(ctx context.Context, obj connectivity.Ref, recursive bool) error {
	return q.inTx(ctx, func(tq *Queries) error {
		if err := tq.mustExist(ctx, obj); err != nil {
			return err
		}
		if !recursive {
			children, err := tq.ListChildren(ctx, obj.Class, obj.ID)
			if err != nil {
				return err
			}
			special, err := tq.ListSpecialChildren(ctx, obj.Class, obj.ID)
			if err != nil {
				return err
			}
			if len(children) > 0 || len(special) > 0 {
				return fmt.Errorf("object %s has children", obj.Key())
			}
			return tq.DeleteObjectRow(ctx, obj.Class, obj.ID)
		}

		doomed, err := tq.collectDoomed(ctx, obj)
		if err != nil {
			return err
		}
		for _, ref := range doomed {
			if err := tq.DeleteObjectRow(ctx, ref.Class, ref.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// collectDoomed gathers obj, its containment subtree and, until nothing
// changes, every special child whose special parents are all doomed.
func (q *Queries) collectDoomed(ctx context.Context, obj connectivity.Ref) ([]connectivity.Ref, error) {
	doomed := map[string]connectivity.Ref{}
	var order []connectivity.Ref
	var addTree func(ref connectivity.Ref) error
	addTree = func(ref connectivity.Ref) error {
		if _, ok := doomed[ref.Key()]; ok {
			return nil
		}
		doomed[ref.Key()] = ref
		order = append(order, ref)
		children, err := q.ListChildren(ctx, ref.Class, ref.ID)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := addTree(connectivity.Ref{Class: c.Class, ID: c.ID}); err != nil {
				return err
			}
		}
		return nil
	}
	if err := addTree(obj); err != nil {
		return nil, err
	}

	for changed := true; changed; {
		changed = false
		for _, ref := range append([]connectivity.Ref(nil), order...) {
			special, err := q.ListSpecialChildren(ctx, ref.Class, ref.ID)
			if err != nil {
				return nil, err
			}
			for _, c := range special {
				child := connectivity.Ref{Class: c.Class, ID: c.ID}
				if _, ok := doomed[child.Key()]; ok {
					continue
				}
				parents, err := q.ListSpecialParents(ctx, c.Class, c.ID)
				if err != nil {
					return nil, err
				}
				orphan := true
				for _, p := range parents {
					if _, ok := doomed[p.Class+"/"+p.ID]; !ok {
						orphan = false
						break
					}
				}
				if orphan {
					if err := addTree(child); err != nil {
						return nil, err
					}
					changed = true
				}
			}
		}
	}
	return order, nil
}

func (q *Queries) GetObjectChildren(ctx context.Context, obj connectivity.Ref) ([]connectivity.Object, error) {
	if err := q.mustExist(ctx, obj); err != nil {
		return nil, err
	}
	rows, err := q.ListChildren(ctx, obj.Class, obj.ID)
	if err != nil {
		return nil, err
	}
	return toObjects(rows), nil
}

func (q *Queries) GetObjectSpecialChildren(ctx context.Context, obj connectivity.Ref) ([]connectivity.Object, error) {
	if err := q.mustExist(ctx, obj); err != nil {
		return nil, err
	}
	rows, err := q.ListSpecialChildren(ctx, obj.Class, obj.ID)
	if err != nil {
		return nil, err
	}
	return toObjects(rows), nil
}

func (q *Queries) GetSpecialParents(ctx context.Context, obj connectivity.Ref) ([]connectivity.Ref, error) {
	if err := q.mustExist(ctx, obj); err != nil {
		return nil, err
	}
	rows, err := q.ListSpecialParents(ctx, obj.Class, obj.ID)
	if err != nil {
		return nil, err
	}
	out := make([]connectivity.Ref, 0, len(rows))
	for _, r := range rows {
		out = append(out, toObject(r).Ref)
	}
	return out, nil
}

func (q *Queries) IsParent(ctx context.Context, parent, child connectivity.Ref) (bool, error) {
	if err := q.mustExist(ctx, child); err != nil {
		return false, err
	}
	return q.IsAncestor(ctx, parent.Class, parent.ID, child.Class, child.ID)
}

// GetCommonParent walks the containment chain. Top-level objects share the
// root.
func (q *Queries) GetCommonParent(ctx context.Context, a, b connectivity.Ref) (connectivity.Ref, error) {
	if err := q.mustExist(ctx, a); err != nil {
		return connectivity.Ref{}, err
	}
	if err := q.mustExist(ctx, b); err != nil {
		return connectivity.Ref{}, err
	}
	row, err := q.NearestCommonAncestor(ctx, a.Class, a.ID, b.Class, b.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return rootRef, nil
	}
	if err != nil {
		return connectivity.Ref{}, err
	}
	return toObject(row).Ref, nil
}

var (
	_ connectivity.Store    = (*Queries)(nil)
	_ connectivity.Metadata = (*Queries)(nil)
)
