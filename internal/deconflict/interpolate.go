package deconflict

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Interpolate returns the linearly interpolated position at t between two
// adjacent waypoints. t must lie within [before.t, after.t]; callers must not
// use it to extrapolate.
func Interpolate(before, after Waypoint, t float64) (Point, error) {
	t0, ok0 := before.Time()
	t1, ok1 := after.Time()
	if !ok0 || !ok1 {
		return Point{}, fmt.Errorf("%w: waypoints must have time defined for interpolation", ErrInvalidInput)
	}
	if t1 == t0 {
		if t == t0 {
			return before.Point(), nil
		}
		return Point{}, fmt.Errorf("%w: zero-length segment at t=%g", ErrInvalidInput, t0)
	}
	if t1 < t0 {
		return Point{}, fmt.Errorf("%w: segment times out of order (%g > %g)", ErrInvalidInput, t0, t1)
	}
	return lerp(before.Point(), after.Point(), (t-t0)/(t1-t0)), nil
}

// lerp pins the endpoints so ratio 0 and 1 reproduce them without rounding.
func lerp(a, b Point, ratio float64) Point {
	switch ratio {
	case 0:
		return a
	case 1:
		return b
	}
	av := a.Vec()
	return Point(r3.Add(av, r3.Scale(ratio, r3.Sub(b.Vec(), av))))
}
