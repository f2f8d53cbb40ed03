package connectivity

import "context"

// Store is the persistence collaborator. Special relationships are queryable
// from either end: GetSpecialAttributes(port, RelEndpointA) returns the fiber
// that was related to the port with RelEndpointA.
//
// *inventory.Store and *sqlcgen.Queries satisfy this.
type Store interface {
	GetObject(ctx context.Context, ref Ref) (Object, error)
	GetSpecialAttributes(ctx context.Context, obj Ref, relNames ...string) (map[string][]Ref, error)
	CreateSpecialRelationship(ctx context.Context, from, to Ref, relName string, isList bool) error
	ReleaseSpecialRelationship(ctx context.Context, from, to Ref, relName string) error

	CreateObject(ctx context.Context, class string, parent Ref, attrs map[string]string) (Ref, error)
	CreateSpecialObject(ctx context.Context, class string, parent Ref, attrs map[string]string, template string) (Ref, error)
	CopySpecialObjects(ctx context.Context, parent Ref, objs []Ref, recursive bool) ([]Ref, error)
	AddParentToSpecialObject(ctx context.Context, obj, parent Ref) error
	UpdateObject(ctx context.Context, obj Ref, attrs map[string]string) error
	DeleteObject(ctx context.Context, obj Ref, recursive bool) error

	GetObjectChildren(ctx context.Context, obj Ref) ([]Object, error)
	GetObjectSpecialChildren(ctx context.Context, obj Ref) ([]Object, error)
	GetSpecialParents(ctx context.Context, obj Ref) ([]Ref, error)
	// IsParent reports whether parent is a special ancestor of child.
	IsParent(ctx context.Context, parent, child Ref) (bool, error)
	// GetCommonParent returns the nearest common containment ancestor, or the
	// zero Ref when there is none.
	GetCommonParent(ctx context.Context, a, b Ref) (Ref, error)
}

// Metadata answers class hierarchy questions.
type Metadata interface {
	IsSubclassOf(ctx context.Context, superclass, class string) (bool, error)
}
