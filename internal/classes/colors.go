package classes

import "strings"

// Style tokens handed to renderers. They are tokens, not colors: the renderer
// maps them to its own palette.
const (
	StyleCable    = "cable"
	StyleFiber    = "fiber"
	StyleLeftover = "fiber-leftover"
	StylePort     = "port"
	StyleDevice   = "device"
	StyleEdge     = "edge"
)

var classColors = map[string]string{
	WireContainer:            "#6b6b6b",
	Conduit:                  "#8c6d46",
	GenericPhysicalContainer: "#6b6b6b",
	OpticalLink:              "#1f78b4",
	GenericPhysicalLink:      "#1f78b4",
	OpticalPort:              "#33a02c",
	ElectricalPort:           "#ff7f00",
	GenericPort:              "#33a02c",
	SpliceBox:                "#b15928",
	ODF:                      "#b15928",

	GenericCommunicationsElement: "#b15928",
}

// ColorFor resolves an object's color: an explicit color attribute wins, then
// the nearest class in the hierarchy with a color.
func ColorFor(class, attr string) string {
	if c := strings.TrimSpace(attr); c != "" {
		return c
	}
	seen := make(map[string]struct{})
	for cur := class; cur != ""; cur = superclasses[cur] {
		if c, ok := classColors[cur]; ok {
			return c
		}
		if _, ok := seen[cur]; ok {
			break
		}
		seen[cur] = struct{}{}
	}
	return "#000000"
}
