// Package version reports the release of the uplink tooling.
package version

import "fmt"

// Release components.
const (
	Major = 0
	Minor = 1
	Patch = 0
	Label = "" // pre-release label, e.g. "rc1"
)

// Name is the product name printed by Full.
const Name = "SATCOM Uplink"

// String returns the release as vMAJOR.MINOR.PATCH[-LABEL].
func String() string {
	v := fmt.Sprintf("v%d.%d.%d", Major, Minor, Patch)
	if Label != "" {
		v += "-" + Label
	}
	return v
}

// Full returns the product name and release.
func Full() string {
	return Name + " " + String()
}
