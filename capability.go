package membench

// Capability names an optional adapter feature. The set is static per
// adapter type, fixed at construction, and advertised before any test
// relies on it.
type Capability string

const (
	CapabilityReplay         Capability = "replay"
	CapabilityProvenance     Capability = "provenance"
	CapabilityFaultInjection Capability = "fault_injection"
	CapabilityVersioning     Capability = "versioning"
)

// AllCapabilities lists every capability the harness knows about.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityReplay,
		CapabilityProvenance,
		CapabilityFaultInjection,
		CapabilityVersioning,
	}
}

// CapabilitySet is an immutable-by-convention capability lookup.
type CapabilitySet map[Capability]bool

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = true
	}
	return s
}

// Has reports whether c is in the set. Pure lookup, no I/O.
func (s CapabilitySet) Has(c Capability) bool {
	return s[c]
}
