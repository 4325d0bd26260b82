package math

import "golang.org/x/exp/constraints"

// Clamp returns f limited to [low, high]. Works for integers and floats.
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// WrapDegrees brings an angle that drifted by less than a full turn back
// into [-180, 180].
func WrapDegrees(deg float32) float32 {
	switch {
	case deg < -180:
		return deg + 360
	case deg > 180:
		return deg - 360
	}
	return deg
}
