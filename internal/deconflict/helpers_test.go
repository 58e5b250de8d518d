package deconflict

import "math"

func ptr(v float64) *float64 { return &v }

func nan() float64 { return math.NaN() }

// crossing is the primary/intruder pair whose paths cross at (5, 0) at t=5.
func crossing() (Trajectory, Trajectory) {
	primary := traj("primary", At(0, 0, 0, 0), At(10, 0, 0, 10))
	intruder := traj("intruder", At(5, -5, 0, 0), At(5, 5, 0, 10))
	return primary, intruder
}

func cfgWith(minSepXY float64) Config {
	cfg := DefaultConfig()
	cfg.MinSepXYM = minSepXY
	return cfg
}
