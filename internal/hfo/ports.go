package hfo

// The eight logical roles. Every daemon and every event is tagged with one.
// Ports are labels only; no runtime behavior hangs off them.
const (
	PortP0 = "P0" // OBSERVE
	PortP1 = "P1" // BRIDGE
	PortP2 = "P2" // SHAPE
	PortP3 = "P3" // INJECT
	PortP4 = "P4" // DISRUPT
	PortP5 = "P5" // IMMUNIZE
	PortP6 = "P6" // ASSIMILATE
	PortP7 = "P7" // NAVIGATE
)

// Ports lists all eight ports in order.
var Ports = []string{PortP0, PortP1, PortP2, PortP3, PortP4, PortP5, PortP6, PortP7}

// PortLabels maps each port to its short role label.
var PortLabels = map[string]string{
	PortP0: "OBSERVE",
	PortP1: "BRIDGE",
	PortP2: "SHAPE",
	PortP3: "INJECT",
	PortP4: "DISRUPT",
	PortP5: "IMMUNIZE",
	PortP6: "ASSIMILATE",
	PortP7: "NAVIGATE",
}

// ValidPort reports whether p names one of the eight ports.
func ValidPort(p string) bool {
	_, ok := PortLabels[p]
	return ok
}
