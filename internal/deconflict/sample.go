package deconflict

import (
	"fmt"
	"math"
	"sort"
)

// TimedPoint is a trajectory position at one grid time. Index is the position of
// T within the grid passed to Sample.
type TimedPoint struct {
	Index int     `json:"index"`
	T     float64 `json:"t"`
	Pos   Point   `json:"pos"`
}

// Sample returns one position for every grid time covered by a segment of
// tr. Grid times before the first waypoint or after the last one are skipped.
//
// When a grid time falls on an interior waypoint the earlier segment is used.
func Sample(tr Trajectory, grid []float64) ([]TimedPoint, error) {
	pos, ok, n, err := sampleAligned(tr, grid)
	if err != nil {
		return nil, err
	}
	out := make([]TimedPoint, 0, n)
	for i := range grid {
		if ok[i] {
			out = append(out, TimedPoint{Index: i, T: grid[i], Pos: pos[i]})
		}
	}
	return out, nil
}

// sampleAligned returns positions indexed like grid, with ok[i] reporting
// coverage, and the number of covered entries.
func sampleAligned(tr Trajectory, grid []float64) ([]Point, []bool, int, error) {
	pos := make([]Point, len(grid))
	ok := make([]bool, len(grid))
	wps := tr.Waypoints
	if len(wps) < 2 {
		return pos, ok, 0, nil
	}
	times, err := waypointTimes(tr)
	if err != nil {
		return nil, nil, 0, err
	}

	n := 0
	for i, t := range grid {
		seg, found := findSegment(times, t)
		if !found {
			continue
		}
		p, err := Interpolate(wps[seg], wps[seg+1], t)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("drone %q segment %d: %w", tr.DroneID, seg, err)
		}
		pos[i] = p
		ok[i] = true
		n++
	}
	return pos, ok, n, nil
}

// findSegment returns the lowest i with times[i] <= t <= times[i+1].
// times must be non-decreasing.
func findSegment(times []float64, t float64) (int, bool) {
	segs := len(times) - 1
	i := sort.Search(segs, func(i int) bool { return times[i+1] >= t })
	if i >= segs || times[i] > t {
		return 0, false
	}
	return i, true
}

func waypointTimes(tr Trajectory) ([]float64, error) {
	times := make([]float64, len(tr.Waypoints))
	for i, wp := range tr.Waypoints {
		t, ok := wp.Time()
		if !ok {
			return nil, fmt.Errorf("%w: drone %q waypoint %d has no time", ErrInvalidInput, tr.DroneID, i)
		}
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("%w: drone %q waypoint %d time is not finite", ErrInvalidInput, tr.DroneID, i)
		}
		if i > 0 && t < times[i-1] {
			return nil, fmt.Errorf("%w: drone %q waypoints must be sorted by t (index %d)", ErrInvalidInput, tr.DroneID, i)
		}
		times[i] = t
	}
	return times, nil
}

// ValidateTrajectory reports whether tr can be sampled.
func ValidateTrajectory(tr Trajectory) error {
	if len(tr.Waypoints) < 2 {
		return nil
	}
	_, err := waypointTimes(tr)
	return err
}
