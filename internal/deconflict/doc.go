// Package deconflict checks a primary vehicle's planned trajectory against
// other vehicles' planned trajectories for losses of separation.
//
// Trajectories are piecewise-linear and time-tagged:
// - Interpolate computes a position inside one waypoint segment
// - Sample turns a trajectory into positions on a fixed time grid
// - Check compares the primary against each traffic trajectory on that grid
//
// Everything here is a pure computation over caller-owned values; nothing is
// cached between calls.
package deconflict
