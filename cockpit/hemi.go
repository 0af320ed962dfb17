package cockpit

import (
	"fmt"
	"strings"
)

// Hemisphere names a cortical hemisphere as used in requests and store keys.
// Both is only valid in requests, where it means left and right arrays are
// addressed as one concatenated array, left first.
type Hemisphere string

const (
	Left  Hemisphere = "left"
	Right Hemisphere = "right"
	Both  Hemisphere = "both"
)

// Hemispheres lists the hemispheres held for every surface map, in concatenation order.
var Hemispheres = []Hemisphere{Left, Right}

// ParseHemisphere parses a request hemisphere.
func ParseHemisphere(s string) (Hemisphere, error) {
	switch Hemisphere(s) {
	case Left, Right, Both:
		return Hemisphere(s), nil
	default:
		return "", fmt.Errorf("unknown hemisphere %q", s)
	}
}

// ParseSide converts a dataset description side ("lh", "rh", "left" or "right")
// into a Hemisphere.  The second value is false for anything else.
func ParseSide(side string) (Hemisphere, bool) {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case "lh", "left":
		return Left, true
	case "rh", "right":
		return Right, true
	}
	return "", false
}

// Side returns the short description form ("lh" or "rh") of a single hemisphere.
func (h Hemisphere) Side() string {
	switch h {
	case Left:
		return "lh"
	case Right:
		return "rh"
	}
	return ""
}

// Single returns true if h designates exactly one hemisphere.
func (h Hemisphere) Single() bool {
	return h == Left || h == Right
}

func (h Hemisphere) String() string {
	return string(h)
}
