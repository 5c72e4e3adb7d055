package framework

import "golang.org/x/exp/slices"

// Capabilities is a list of strings representing test service capabilities. The meanings of
// these strings are defined in package servicedef.
type Capabilities []string

// Has returns true if the specified string appears in the list.
func (cs Capabilities) Has(name string) bool {
	return slices.Contains(cs, name)
}

// Missing returns the names in required that do not appear in the list, in their original order.
func (cs Capabilities) Missing(required ...string) []string {
	var ret []string
	for _, r := range required {
		if !cs.Has(r) {
			ret = append(ret, r)
		}
	}
	return ret
}
