package classes

import (
	"sort"
	"strings"
)

// DummyRoot is the parent of every top-level object. Two objects whose only
// common parent is DummyRoot have no common parent.
const DummyRoot = "DummyRoot"

const (
	InventoryObject = "InventoryObject"

	GenericLocation = "GenericLocation"
	Building        = "Building"
	Manhole         = "Manhole"
	Pole            = "Pole"

	GenericCommunicationsElement = "GenericCommunicationsElement"
	SpliceBox                    = "SpliceBox"
	ODF                          = "ODF"
	Router                       = "Router"

	GenericPort    = "GenericPort"
	OpticalPort    = "OpticalPort"
	ElectricalPort = "ElectricalPort"

	GenericPhysicalContainer = "GenericPhysicalContainer"
	WireContainer            = "WireContainer"
	Conduit                  = "Conduit"

	GenericPhysicalLink = "GenericPhysicalLink"
	OpticalLink         = "OpticalLink"
)

var superclasses = map[string]string{
	InventoryObject: "",

	GenericLocation: InventoryObject,
	Building:        GenericLocation,
	Manhole:         GenericLocation,
	Pole:            GenericLocation,

	GenericCommunicationsElement: InventoryObject,
	SpliceBox:                    GenericCommunicationsElement,
	ODF:                          GenericCommunicationsElement,
	Router:                       GenericCommunicationsElement,

	GenericPort:    InventoryObject,
	OpticalPort:    GenericPort,
	ElectricalPort: GenericPort,

	GenericPhysicalContainer: InventoryObject,
	WireContainer:            GenericPhysicalContainer,
	Conduit:                  GenericPhysicalContainer,

	GenericPhysicalLink: InventoryObject,
	OpticalLink:         GenericPhysicalLink,
}

// Hierarchy returns a copy of the built-in class -> superclass map.
func Hierarchy() map[string]string {
	out := make(map[string]string, len(superclasses))
	for k, v := range superclasses {
		out[k] = v
	}
	return out
}

func All() []string {
	out := make([]string, 0, len(superclasses))
	for k := range superclasses {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func IsKnown(class string) bool {
	_, ok := superclasses[strings.TrimSpace(class)]
	return ok
}

// IsSubclassOf walks the built-in hierarchy. A class is a subclass of itself.
func IsSubclassOf(superclass, class string) bool {
	return IsSubclassIn(superclasses, superclass, class)
}

// IsSubclassIn walks an arbitrary class -> superclass map.
func IsSubclassIn(hierarchy map[string]string, superclass, class string) bool {
	seen := make(map[string]struct{})
	for cur := class; cur != ""; cur = hierarchy[cur] {
		if cur == superclass {
			return true
		}
		if _, ok := seen[cur]; ok {
			return false
		}
		seen[cur] = struct{}{}
	}
	return false
}
