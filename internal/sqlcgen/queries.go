package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const upsertClass = `-- name: UpsertClass :exec
INSERT INTO classes (name, superclass)
VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET superclass = EXCLUDED.superclass
`

func (q *Queries) UpsertClass(ctx context.Context, name string, superclass *string) error {
	_, err := q.db.Exec(ctx, upsertClass, name, superclass)
	return err
}

const listClasses = `-- name: ListClasses :many
SELECT name, superclass FROM classes ORDER BY name
`

func (q *Queries) ListClasses(ctx context.Context) ([]Class, error) {
	rows, err := q.db.Query(ctx, listClasses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Class
	for rows.Next() {
		var i Class
		if err := rows.Scan(&i.Name, &i.Superclass); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertObject = `-- name: InsertObject :exec
INSERT INTO objects (class, id, attributes, parent_class, parent_id)
VALUES ($1, $2, COALESCE($3::jsonb, '{}'::jsonb), $4, $5)
`

type InsertObjectParams struct {
	Class       string
	ID          string
	Attributes  map[string]string
	ParentClass *string
	ParentID    *string
}

func (q *Queries) InsertObject(ctx context.Context, arg InsertObjectParams) error {
	if arg.Attributes == nil {
		arg.Attributes = map[string]string{}
	}
	_, err := q.db.Exec(ctx, insertObject, arg.Class, arg.ID, arg.Attributes, arg.ParentClass, arg.ParentID)
	return err
}

const getObjectRow = `-- name: GetObjectRow :one
SELECT class, id, attributes FROM objects WHERE class = $1 AND id = $2
`

func (q *Queries) GetObjectRow(ctx context.Context, class, id string) (ObjectRow, error) {
	row := q.db.QueryRow(ctx, getObjectRow, class, id)
	var i ObjectRow
	err := row.Scan(&i.Class, &i.ID, &i.Attributes)
	return i, err
}

const objectExists = `-- name: ObjectExists :one
SELECT EXISTS (SELECT 1 FROM objects WHERE class = $1 AND id = $2)
`

func (q *Queries) ObjectExists(ctx context.Context, class, id string) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, objectExists, class, id).Scan(&ok)
	return ok, err
}

const mergeObjectAttributes = `-- name: MergeObjectAttributes :execrows
UPDATE objects
SET attributes = attributes || $3::jsonb,
    updated_at = now()
WHERE class = $1 AND id = $2
`

func (q *Queries) MergeObjectAttributes(ctx context.Context, class, id string, attrs map[string]string) (int64, error) {
	tag, err := q.db.Exec(ctx, mergeObjectAttributes, class, id, attrs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const deleteObjectRow = `-- name: DeleteObjectRow :exec
DELETE FROM objects WHERE class = $1 AND id = $2
`

func (q *Queries) DeleteObjectRow(ctx context.Context, class, id string) error {
	_, err := q.db.Exec(ctx, deleteObjectRow, class, id)
	return err
}

const listChildren = `-- name: ListChildren :many
SELECT class, id, attributes
FROM objects
WHERE parent_class = $1 AND parent_id = $2
ORDER BY class || '/' || id COLLATE "C"
`

func (q *Queries) ListChildren(ctx context.Context, class, id string) ([]ObjectRow, error) {
	return q.queryObjects(ctx, listChildren, class, id)
}

const listSpecialChildren = `-- name: ListSpecialChildren :many
SELECT o.class, o.id, o.attributes
FROM special_parents sp
JOIN objects o ON o.class = sp.class AND o.id = sp.id
WHERE sp.parent_class = $1 AND sp.parent_id = $2
ORDER BY o.class || '/' || o.id COLLATE "C"
`

func (q *Queries) ListSpecialChildren(ctx context.Context, class, id string) ([]ObjectRow, error) {
	return q.queryObjects(ctx, listSpecialChildren, class, id)
}

const listSpecialParents = `-- name: ListSpecialParents :many
SELECT o.class, o.id, o.attributes
FROM special_parents sp
JOIN objects o ON o.class = sp.parent_class AND o.id = sp.parent_id
WHERE sp.class = $1 AND sp.id = $2
ORDER BY sp.seq
`

func (q *Queries) ListSpecialParents(ctx context.Context, class, id string) ([]ObjectRow, error) {
	return q.queryObjects(ctx, listSpecialParents, class, id)
}

const insertSpecialParent = `-- name: InsertSpecialParent :exec
INSERT INTO special_parents (class, id, parent_class, parent_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING
`

func (q *Queries) InsertSpecialParent(ctx context.Context, class, id, parentClass, parentID string) error {
	_, err := q.db.Exec(ctx, insertSpecialParent, class, id, parentClass, parentID)
	return err
}

const listRelated = `-- name: ListRelated :many
SELECT r.name, o.class, o.id, o.attributes, r.seq
FROM special_relationships r
JOIN objects o ON o.class = r.to_class AND o.id = r.to_id
WHERE r.from_class = $1 AND r.from_id = $2
  AND (cardinality($3::text[]) = 0 OR r.name = ANY($3::text[]))
UNION ALL
SELECT r.name, o.class, o.id, o.attributes, r.seq
FROM special_relationships r
JOIN objects o ON o.class = r.from_class AND o.id = r.from_id
WHERE r.to_class = $1 AND r.to_id = $2
  AND NOT (r.from_class = $1 AND r.from_id = $2)
  AND (cardinality($3::text[]) = 0 OR r.name = ANY($3::text[]))
ORDER BY 5
`

func (q *Queries) ListRelated(ctx context.Context, class, id string, relNames []string) ([]RelatedObject, error) {
	if relNames == nil {
		relNames = []string{}
	}
	rows, err := q.db.Query(ctx, listRelated, class, id, relNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RelatedObject
	for rows.Next() {
		var i RelatedObject
		var seq int64
		if err := rows.Scan(&i.RelName, &i.Class, &i.ID, &i.Attributes, &seq); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteRelationshipsFrom = `-- name: DeleteRelationshipsFrom :exec
DELETE FROM special_relationships
WHERE from_class = $1 AND from_id = $2 AND name = $3
  AND NOT (to_class = $4 AND to_id = $5)
`

func (q *Queries) DeleteRelationshipsFrom(ctx context.Context, fromClass, fromID, name, keepClass, keepID string) error {
	_, err := q.db.Exec(ctx, deleteRelationshipsFrom, fromClass, fromID, name, keepClass, keepID)
	return err
}

const insertRelationship = `-- name: InsertRelationship :exec
INSERT INTO special_relationships (from_class, from_id, to_class, to_id, name)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT DO NOTHING
`

func (q *Queries) InsertRelationship(ctx context.Context, fromClass, fromID, toClass, toID, name string) error {
	_, err := q.db.Exec(ctx, insertRelationship, fromClass, fromID, toClass, toID, name)
	return err
}

const deleteRelationship = `-- name: DeleteRelationship :exec
DELETE FROM special_relationships
WHERE name = $5
  AND ((from_class = $1 AND from_id = $2 AND to_class = $3 AND to_id = $4)
    OR (from_class = $3 AND from_id = $4 AND to_class = $1 AND to_id = $2))
`

func (q *Queries) DeleteRelationship(ctx context.Context, aClass, aID, bClass, bID, name string) error {
	_, err := q.db.Exec(ctx, deleteRelationship, aClass, aID, bClass, bID, name)
	return err
}

// Containment plus special containment, walked upwards from ($3, $4).
const isAncestor = `-- name: IsAncestor :one
WITH RECURSIVE links AS (
  SELECT class, id, parent_class, parent_id FROM special_parents
  UNION ALL
  SELECT class, id, parent_class, parent_id FROM objects WHERE parent_class IS NOT NULL
), up (class, id) AS (
  SELECT parent_class, parent_id FROM links WHERE class = $3 AND id = $4
  UNION
  SELECT l.parent_class, l.parent_id FROM links l JOIN up ON l.class = up.class AND l.id = up.id
)
SELECT EXISTS (SELECT 1 FROM up WHERE class = $1 AND id = $2)
`

func (q *Queries) IsAncestor(ctx context.Context, parentClass, parentID, childClass, childID string) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, isAncestor, parentClass, parentID, childClass, childID).Scan(&ok)
	return ok, err
}

const nearestCommonAncestor = `-- name: NearestCommonAncestor :one
WITH RECURSIVE a_up (class, id, depth) AS (
  SELECT parent_class, parent_id, 1 FROM objects
  WHERE class = $1 AND id = $2 AND parent_class IS NOT NULL
  UNION ALL
  SELECT o.parent_class, o.parent_id, a.depth + 1 FROM objects o
  JOIN a_up a ON o.class = a.class AND o.id = a.id
  WHERE o.parent_class IS NOT NULL
), b_up (class, id, depth) AS (
  SELECT parent_class, parent_id, 1 FROM objects
  WHERE class = $3 AND id = $4 AND parent_class IS NOT NULL
  UNION ALL
  SELECT o.parent_class, o.parent_id, b.depth + 1 FROM objects o
  JOIN b_up b ON o.class = b.class AND o.id = b.id
  WHERE o.parent_class IS NOT NULL
)
SELECT o.class, o.id, o.attributes
FROM b_up b
JOIN a_up a ON a.class = b.class AND a.id = b.id
JOIN objects o ON o.class = b.class AND o.id = b.id
ORDER BY b.depth
LIMIT 1
`

func (q *Queries) NearestCommonAncestor(ctx context.Context, aClass, aID, bClass, bID string) (ObjectRow, error) {
	row := q.db.QueryRow(ctx, nearestCommonAncestor, aClass, aID, bClass, bID)
	var i ObjectRow
	err := row.Scan(&i.Class, &i.ID, &i.Attributes)
	return i, err
}

func (q *Queries) queryObjects(ctx context.Context, sql string, args ...any) ([]ObjectRow, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ObjectRow
	for rows.Next() {
		var i ObjectRow
		if err := rows.Scan(&i.Class, &i.ID, &i.Attributes); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
