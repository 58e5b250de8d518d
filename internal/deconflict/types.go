package deconflict

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	StatusClear    = "clear"
	StatusConflict = "conflict detected"
)

// Waypoint is one control point of a trajectory. T is seconds from mission
// start; a nil T marks static geometry that cannot be used for time queries.
type Waypoint struct {
	X float64  `json:"x" yaml:"x"`
	Y float64  `json:"y" yaml:"y"`
	Z float64  `json:"z,omitempty" yaml:"z,omitempty"`
	T *float64 `json:"t,omitempty" yaml:"t,omitempty"`
}

// At returns a timed waypoint.
func At(x, y, z, t float64) Waypoint {
	return Waypoint{X: x, Y: y, Z: z, T: &t}
}

// Time reports the waypoint timestamp and whether it is set.
func (w Waypoint) Time() (float64, bool) {
	if w.T == nil {
		return 0, false
	}
	return *w.T, true
}

func (w Waypoint) Point() Point {
	return Point{X: w.X, Y: w.Y, Z: w.Z}
}

// Trajectory is one drone's waypoints, ordered by time.
type Trajectory struct {
	DroneID   string     `json:"drone_id" yaml:"drone_id"`
	Waypoints []Waypoint `json:"waypoints" yaml:"waypoints"`
}

// TimeRange returns the first and last waypoint timestamps.
func (tr Trajectory) TimeRange() (start, end float64, ok bool) {
	if len(tr.Waypoints) == 0 {
		return 0, 0, false
	}
	start, ok0 := tr.Waypoints[0].Time()
	end, ok1 := tr.Waypoints[len(tr.Waypoints)-1].Time()
	if !ok0 || !ok1 {
		return 0, 0, false
	}
	return start, end, true
}

// MissionWindow is the half-open interval [TStart, TEnd) over which a check
// is evaluated.
type MissionWindow struct {
	TStart float64 `json:"t_start" yaml:"t_start"`
	TEnd   float64 `json:"t_end" yaml:"t_end"`
}

// NewMissionWindow returns [start, end) or ErrInvalidConfig.
func NewMissionWindow(start, end float64) (MissionWindow, error) {
	w := MissionWindow{TStart: start, TEnd: end}
	if err := w.Validate(); err != nil {
		return MissionWindow{}, err
	}
	return w, nil
}

// MissionWindowFor spans the trajectory's first to last timestamp.
func MissionWindowFor(tr Trajectory) (MissionWindow, error) {
	start, end, ok := tr.TimeRange()
	if !ok {
		return MissionWindow{}, fmt.Errorf("%w: trajectory %q has no timed endpoints", ErrInvalidInput, tr.DroneID)
	}
	return NewMissionWindow(start, end)
}

func (w MissionWindow) Validate() error {
	if !finite(w.TStart) || !finite(w.TEnd) {
		return fmt.Errorf("%w: window bounds must be finite", ErrInvalidConfig)
	}
	if w.TEnd < w.TStart {
		return fmt.Errorf("%w: window t_end %g before t_start %g", ErrInvalidConfig, w.TEnd, w.TStart)
	}
	return nil
}

// Config holds the tunable parameters of a check.
//
// MinSepZM is only applied when VerticalGate is set. MergeGapS is used by
// MergeWindows; CorridorBufferM is carried for presentation layers.
type Config struct {
	MinSepXYM       float64 `json:"min_sep_xy_m" yaml:"min_sep_xy_m"`
	MinSepZM        float64 `json:"min_sep_z_m" yaml:"min_sep_z_m"`
	DtS             float64 `json:"dt_s" yaml:"dt_s"`
	MergeGapS       float64 `json:"merge_gap_s" yaml:"merge_gap_s"`
	CorridorBufferM float64 `json:"corridor_buffer_m" yaml:"corridor_buffer_m"`
	VerticalGate    bool    `json:"vertical_gate" yaml:"vertical_gate"`
}

// DefaultConfig returns the stock separation thresholds and grid step.
func DefaultConfig() Config {
	return Config{
		MinSepXYM:       5.0,
		MinSepZM:        2.0,
		DtS:             0.5,
		MergeGapS:       1.0,
		CorridorBufferM: 10.0,
	}
}

func (c Config) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"min_sep_xy_m", c.MinSepXYM},
		{"min_sep_z_m", c.MinSepZM},
		{"dt_s", c.DtS},
		{"merge_gap_s", c.MergeGapS},
		{"corridor_buffer_m", c.CorridorBufferM},
	}
	for _, f := range fields {
		if !finite(f.v) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidConfig, f.name)
		}
		if f.v < 0 {
			return fmt.Errorf("%w: %s must be >= 0", ErrInvalidConfig, f.name)
		}
	}
	if c.DtS <= 0 {
		return fmt.Errorf("%w: dt_s must be > 0", ErrInvalidConfig)
	}
	return nil
}

// Point is an (x, y, z) position. It serializes as a JSON array.
type Point r3.Vec

func (p Point) Vec() r3.Vec { return r3.Vec(p) }

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{p.X, p.Y, p.Z})
}

func (p *Point) UnmarshalJSON(b []byte) error {
	var a [3]float64
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*p = Point{X: a[0], Y: a[1], Z: a[2]}
	return nil
}

// ConflictRecord is one grid time at which another drone is within separation.
type ConflictRecord struct {
	OtherID      string  `json:"other_id"`
	Time         float64 `json:"time"`
	Distance     float64 `json:"distance"`
	PrimaryPoint Point   `json:"primary_point"`
	OtherPoint   Point   `json:"other_point"`
}

type CheckResult struct {
	Status    string           `json:"status"`
	Conflicts []ConflictRecord `json:"conflicts"`
}

// MarshalJSON keeps "conflicts" an array for clear results.
func (r CheckResult) MarshalJSON() ([]byte, error) {
	type plain CheckResult
	out := plain(r)
	if out.Conflicts == nil {
		out.Conflicts = []ConflictRecord{}
	}
	return json.Marshal(out)
}

func (r CheckResult) Clear() bool {
	return len(r.Conflicts) == 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
