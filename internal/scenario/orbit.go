package scenario

import (
	"fmt"
	"math"

	"uav-deconflict/internal/deconflict"
)

const maxOrbitWaypoints = 100000

// Orbiters generates synthetic traffic circling a common center, evenly
// spaced in phase, with altitudes staggered around AltM.
type Orbiters struct {
	Count       int     `yaml:"count"`
	IDPrefix    string  `yaml:"id_prefix"`
	CenterX     float64 `yaml:"center_x"`
	CenterY     float64 `yaml:"center_y"`
	RadiusM     float64 `yaml:"radius_m"`
	AltM        float64 `yaml:"alt_m"`
	AltStaggerM float64 `yaml:"alt_stagger_m"`
	PeriodS     float64 `yaml:"period_s"`
	StartS      float64 `yaml:"start_s"`
	DurationS   float64 `yaml:"duration_s"`
	StepS       float64 `yaml:"step_s"`
}

func (o Orbiters) withDefaults() Orbiters {
	if o.IDPrefix == "" {
		o.IDPrefix = "orbit"
	}
	if o.RadiusM <= 0 {
		o.RadiusM = 30
	}
	if o.PeriodS <= 0 {
		o.PeriodS = 60
	}
	if o.DurationS <= 0 {
		o.DurationS = o.PeriodS
	}
	if o.StepS <= 0 {
		o.StepS = 1
	}
	return o
}

// Trajectories returns Count piecewise-linear approximations of the orbits,
// with one waypoint every StepS seconds from StartS through StartS+DurationS.
func (o Orbiters) Trajectories() ([]deconflict.Trajectory, error) {
	if o.Count <= 0 {
		return nil, nil
	}
	o = o.withDefaults()

	steps := int(math.Ceil(o.DurationS / o.StepS))
	if steps*o.Count > maxOrbitWaypoints {
		return nil, fmt.Errorf("%d orbiters at step_s=%g over %gs exceed %d waypoints", o.Count, o.StepS, o.DurationS, maxOrbitWaypoints)
	}

	end := o.StartS + o.DurationS
	out := make([]deconflict.Trajectory, 0, o.Count)
	for i := 0; i < o.Count; i++ {
		offset := 2 * math.Pi * (float64(i) / float64(o.Count))
		alt := o.AltM + float64(i-o.Count/2)*o.AltStaggerM

		wps := make([]deconflict.Waypoint, 0, steps+1)
		for k := 0; k <= steps; k++ {
			t := o.StartS + float64(k)*o.StepS
			if t > end {
				t = end
			}
			theta := 2*math.Pi*(t-o.StartS)/o.PeriodS + offset
			wps = append(wps, deconflict.At(
				o.CenterX+o.RadiusM*math.Cos(theta),
				o.CenterY+o.RadiusM*math.Sin(theta),
				alt,
				t,
			))
		}
		out = append(out, deconflict.Trajectory{
			DroneID:   fmt.Sprintf("%s-%02d", o.IDPrefix, i+1),
			Waypoints: wps,
		})
	}
	return out, nil
}
