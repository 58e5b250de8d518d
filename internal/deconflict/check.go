package deconflict

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// maxGridPoints bounds the grid a single check may allocate.
const maxGridPoints = 1 << 24

// TimeGrid returns window.TStart, window.TStart+dt, ... strictly below
// window.TEnd. Each value is computed from its index so long grids do not
// accumulate rounding error. Grid times are strictly increasing; a dt too
// small to advance t at the window's magnitude is ErrInvalidConfig.
func TimeGrid(window MissionWindow, dt float64) ([]float64, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("%w: dt_s must be > 0", ErrInvalidConfig)
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	span := (window.TEnd - window.TStart) / dt
	if span > maxGridPoints {
		return nil, fmt.Errorf("%w: window [%g, %g) at dt_s=%g exceeds %d grid points", ErrInvalidConfig, window.TStart, window.TEnd, dt, maxGridPoints)
	}

	grid := make([]float64, 0, int(math.Ceil(span)))
	for k := 0; ; k++ {
		t := window.TStart + float64(k)*dt
		if t >= window.TEnd {
			break
		}
		if k > 0 && t <= grid[k-1] {
			return nil, fmt.Errorf("%w: dt_s=%g is below the time resolution at t=%g", ErrInvalidConfig, dt, grid[k-1])
		}
		grid = append(grid, t)
	}
	return grid, nil
}

// SeparationSample is the primary/other geometry at one grid time covered by
// both trajectories.
type SeparationSample struct {
	Index        int     `json:"index"`
	Time         float64 `json:"time"`
	Distance     float64 `json:"distance"`
	VerticalDist float64 `json:"vertical_distance"`
	PrimaryPoint Point   `json:"primary_point"`
	OtherPoint   Point   `json:"other_point"`
}

type SeparationSeries struct {
	OtherID string             `json:"other_id"`
	Samples []SeparationSample `json:"samples"`
}

type track struct {
	pos []Point
	ok  []bool
	n   int
}

// Separations returns, per traffic trajectory and in traffic order, the
// horizontal distance to the primary at every shared grid time. A series is
// empty when either side has no coverage in the window.
func Separations(primary Trajectory, traffic []Trajectory, window MissionWindow, cfg Config) ([]SeparationSeries, error) {
	grid, prim, err := prepare(primary, window, cfg)
	if err != nil {
		return nil, err
	}
	out := make([]SeparationSeries, 0, len(traffic))
	for _, other := range traffic {
		s, err := separation(grid, prim, other)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Check reports every grid time at which a traffic trajectory is within
// cfg.MinSepXYM of the primary in the horizontal plane. With cfg.VerticalGate
// set, the vertical distance must also be within cfg.MinSepZM.
//
// Conflicts are ordered by traffic index, then time.
func Check(primary Trajectory, traffic []Trajectory, window MissionWindow, cfg Config) (CheckResult, error) {
	grid, prim, err := prepare(primary, window, cfg)
	if err != nil {
		return CheckResult{}, err
	}
	var conflicts []ConflictRecord
	for _, other := range traffic {
		s, err := separation(grid, prim, other)
		if err != nil {
			return CheckResult{}, err
		}
		conflicts = append(conflicts, conflictsIn(s, cfg)...)
	}
	return newResult(conflicts), nil
}

func newResult(conflicts []ConflictRecord) CheckResult {
	res := CheckResult{Status: StatusClear, Conflicts: conflicts}
	if len(conflicts) > 0 {
		res.Status = StatusConflict
	}
	return res
}

func prepare(primary Trajectory, window MissionWindow, cfg Config) ([]float64, track, error) {
	if err := cfg.Validate(); err != nil {
		return nil, track{}, err
	}
	grid, err := TimeGrid(window, cfg.DtS)
	if err != nil {
		return nil, track{}, err
	}
	pos, ok, n, err := sampleAligned(primary, grid)
	if err != nil {
		return nil, track{}, err
	}
	return grid, track{pos: pos, ok: ok, n: n}, nil
}

func separation(grid []float64, prim track, other Trajectory) (SeparationSeries, error) {
	s := SeparationSeries{OtherID: other.DroneID}
	pos, ok, n, err := sampleAligned(other, grid)
	if err != nil {
		return s, err
	}
	if prim.n == 0 || n == 0 {
		return s, nil
	}
	for i := range grid {
		if !prim.ok[i] || !ok[i] {
			continue
		}
		p, o := prim.pos[i], pos[i]
		s.Samples = append(s.Samples, SeparationSample{
			Index:        i,
			Time:         grid[i],
			Distance:     horizontalDistance(p, o),
			VerticalDist: math.Abs(p.Z - o.Z),
			PrimaryPoint: p,
			OtherPoint:   o,
		})
	}
	return s, nil
}

func conflictsIn(s SeparationSeries, cfg Config) []ConflictRecord {
	var out []ConflictRecord
	for _, smp := range s.Samples {
		if smp.Distance > cfg.MinSepXYM {
			continue
		}
		if cfg.VerticalGate && smp.VerticalDist > cfg.MinSepZM {
			continue
		}
		out = append(out, ConflictRecord{
			OtherID:      s.OtherID,
			Time:         smp.Time,
			Distance:     smp.Distance,
			PrimaryPoint: smp.PrimaryPoint,
			OtherPoint:   smp.OtherPoint,
		})
	}
	return out
}

func horizontalDistance(a, b Point) float64 {
	d := r3.Sub(a.Vec(), b.Vec())
	d.Z = 0
	return r3.Norm(d)
}
