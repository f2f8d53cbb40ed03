// Package midspan drives a mid-span splicing session: the fiber tree of one
// cable on one side, the ports of one device on the other, and the splices
// between them, all inside one location.
package midspan

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"kuwaiba/osp-core/internal/classes"
	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/metrics"
	"kuwaiba/osp-core/internal/naming"
	"kuwaiba/osp-core/internal/splice"
	"kuwaiba/osp-core/internal/treelayout"
)

// Mode decides what completing a fiber-to-port edge does.
type Mode string

const (
	SpliceMode Mode = "splice"
	CutMode    Mode = "cut"
)

func ParseMode(v string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(v))) {
	case SpliceMode:
		return SpliceMode, nil
	case CutMode:
		return CutMode, nil
	default:
		return "", fmt.Errorf("unknown mode %q", v)
	}
}

// Deps are the collaborators a session is built from.
type Deps struct {
	Store    connectivity.Store
	Metadata connectivity.Metadata
	Log      zerolog.Logger
	Metrics  *metrics.Metrics
	Layout   treelayout.Options
}

type nodeKind int

const (
	kindCable nodeKind = iota
	kindContainer
	kindFiber
)

func (k nodeKind) String() string {
	switch k {
	case kindCable:
		return "cable"
	case kindContainer:
		return "container"
	default:
		return "fiber"
	}
}

type treeObject struct {
	ref      connectivity.Ref
	id       treelayout.NodeID
	kind     nodeKind
	color    string
	leftover bool
	loaded   bool
}

// Session is not safe for concurrent use; Registry serializes gestures.
type Session struct {
	log     zerolog.Logger
	model   *connectivity.Model
	meta    connectivity.Metadata
	machine *splice.Machine
	tree    *treelayout.Engine

	location connectivity.Ref
	device   connectivity.Ref
	cable    connectivity.Ref

	mode         Mode
	showLeftover bool
	exchange     bool

	objects map[string]*treeObject
	panel   devicePanel
	edges   map[string]*edge
}

// Open binds a session to one cable and one device inside location. The
// cable's root is expanded and the splices already stored between the
// device's ports and the cable's fibers become edges.
func Open(ctx context.Context, deps Deps, location, device, cable connectivity.Ref) (*Session, View, error) {
	model := connectivity.NewModel(deps.Store, deps.Log)
	s := &Session{
		log:     deps.Log.With().Str("cable", cable.Key()).Str("device", device.Key()).Logger(),
		model:   model,
		meta:    deps.Metadata,
		machine: splice.New(deps.Log, model, deps.Metrics),
		tree:    treelayout.New(deps.Layout),
		mode:    SpliceMode,
		objects: make(map[string]*treeObject),
		edges:   make(map[string]*edge),
	}

	locObj, err := model.Object(ctx, location)
	if err != nil {
		return nil, View{}, err
	}
	devObj, err := model.Object(ctx, device)
	if err != nil {
		return nil, View{}, err
	}
	cableObj, err := model.Object(ctx, cable)
	if err != nil {
		return nil, View{}, err
	}
	s.location, s.device, s.cable = locObj.Ref, devObj.Ref, cableObj.Ref

	isContainer, err := s.meta.IsSubclassOf(ctx, classes.GenericPhysicalContainer, cable.Class)
	if err != nil {
		return nil, View{}, err
	}
	if !isContainer {
		return nil, View{}, connectivity.Invalid(connectivity.CodeWrongClass, &s.cable,
			"%s is not a cable", s.cable)
	}
	inside, err := model.Store().IsParent(ctx, s.location, s.device)
	if err != nil {
		return nil, View{}, connectivity.Persist("check device location", err)
	}
	if !inside {
		return nil, View{}, connectivity.Invalid(connectivity.CodeNotInLocation, &s.device,
			"%s is not inside %s", s.device, s.location)
	}

	rootID, err := s.tree.AddRoot(treelayout.NodeSpec{
		Key:        s.cable.Key(),
		Label:      s.cable.Name,
		Style:      classes.StyleCable,
		Expandable: true,
	})
	if err != nil {
		return nil, View{}, err
	}
	root := &treeObject{
		ref:   s.cable,
		id:    rootID,
		kind:  kindCable,
		color: classes.ColorFor(cableObj.Class, cableObj.Attr(connectivity.AttrColor)),
	}
	s.objects[root.ref.Key()] = root

	if err := s.loadPorts(ctx); err != nil {
		return nil, View{}, err
	}
	if err := s.loadEdges(ctx, rootID); err != nil {
		return nil, View{}, err
	}
	up, err := s.expand(ctx, root)
	if err != nil {
		return nil, View{}, err
	}

	s.log.Info().
		Str("location", s.location.Key()).
		Int("ports", len(s.panel.order)).
		Int("edges", len(s.edges)).
		Msg("mid-span session opened")
	return s, s.render(up), nil
}

func (s *Session) Mode() Mode { return s.mode }

func (s *Session) ShowLeftover() bool { return s.showLeftover }

// classify decides how a special child of a tree node shows up in the tree.
func (s *Session) classify(ctx context.Context, class string) (nodeKind, bool, error) {
	isLink, err := s.meta.IsSubclassOf(ctx, classes.GenericPhysicalLink, class)
	if err != nil {
		return 0, false, err
	}
	if isLink {
		return kindFiber, true, nil
	}
	isContainer, err := s.meta.IsSubclassOf(ctx, classes.GenericPhysicalContainer, class)
	if err != nil {
		return 0, false, err
	}
	if isContainer {
		return kindContainer, true, nil
	}
	return 0, false, nil
}

// loadChildren adds the fibers and containers inside obj to the tree. An
// object already in the tree under another parent is not added twice.
func (s *Session) loadChildren(ctx context.Context, obj *treeObject) error {
	children, err := s.model.Store().GetObjectSpecialChildren(ctx, obj.ref)
	if err != nil {
		return connectivity.Persist("get special children", err)
	}
	naming.SortObjects(children)

	added := make([]*treeObject, 0, len(children))
	for _, c := range children {
		if _, ok := s.objects[c.Key()]; ok {
			continue
		}
		kind, ok, err := s.classify(ctx, c.Class)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		child, err := s.addNode(ctx, obj.id, c, kind)
		if err != nil {
			return err
		}
		added = append(added, child)
	}
	obj.loaded = true
	if len(added) == 0 {
		if err := s.tree.SetExpandable(obj.id, false); err != nil {
			return err
		}
	}
	return s.reanchor(ctx, obj.id, added)
}

func (s *Session) addNode(ctx context.Context, parent treelayout.NodeID, obj connectivity.Object, kind nodeKind) (*treeObject, error) {
	to := &treeObject{
		ref:   obj.Ref,
		kind:  kind,
		color: classes.ColorFor(obj.Class, obj.Attr(connectivity.AttrColor)),
	}
	spec := treelayout.NodeSpec{
		Key:        obj.Key(),
		Label:      obj.Name,
		Style:      classes.StyleCable,
		Expandable: kind != kindFiber,
	}
	if kind == kindFiber {
		to.leftover = connectivity.IsLeftover(obj)
		spec.Style = classes.StyleFiber
		if to.leftover {
			spec.Style = classes.StyleLeftover
			spec.Hidden = !s.showLeftover
		}
		if _, err := s.machine.SyncFiber(ctx, obj.Ref); err != nil {
			return nil, err
		}
	}
	id, err := s.tree.AddChild(parent, spec)
	if err != nil {
		return nil, err
	}
	to.id = id
	s.objects[obj.Key()] = to
	return to, nil
}

func (s *Session) expand(ctx context.Context, obj *treeObject) (treelayout.Update, error) {
	if !obj.loaded && obj.kind != kindFiber {
		if err := s.loadChildren(ctx, obj); err != nil {
			return treelayout.Update{}, err
		}
	}
	return s.tree.Expand(obj.id)
}

func (s *Session) node(key string) (*treeObject, error) {
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: tree node %s", connectivity.ErrNotFound, key)
	}
	return obj, nil
}
