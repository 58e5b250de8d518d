package deconflict

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTimeGrid_HalfOpen(t *testing.T) {
	grid, err := TimeGrid(MissionWindow{TStart: 0, TEnd: 10}, 0.5)
	if err != nil {
		t.Fatalf("TimeGrid: %v", err)
	}
	if len(grid) != 20 {
		t.Fatalf("len=%d want 20", len(grid))
	}
	if grid[0] != 0 || grid[19] != 9.5 {
		t.Fatalf("bounds: first=%v last=%v", grid[0], grid[19])
	}

	grid, err = TimeGrid(MissionWindow{TStart: 3, TEnd: 3}, 0.5)
	if err != nil {
		t.Fatalf("TimeGrid(empty): %v", err)
	}
	if len(grid) != 0 {
		t.Fatalf("zero-length window: len=%d want 0", len(grid))
	}
}

func TestTimeGrid_NoDrift(t *testing.T) {
	grid, err := TimeGrid(MissionWindow{TStart: 0, TEnd: 1000}, 0.1)
	if err != nil {
		t.Fatalf("TimeGrid: %v", err)
	}
	if len(grid) != 10000 {
		t.Fatalf("len=%d want 10000", len(grid))
	}
	if got := grid[9999]; math.Abs(got-999.9) > 1e-9 {
		t.Fatalf("last=%v want 999.9", got)
	}
}

func TestTimeGrid_LargeStartStrictlyIncreasing(t *testing.T) {
	grid, err := TimeGrid(MissionWindow{TStart: 1e12, TEnd: 1e12 + 100}, 1)
	if err != nil {
		t.Fatalf("TimeGrid: %v", err)
	}
	if len(grid) != 100 {
		t.Fatalf("len=%d want 100", len(grid))
	}
	for i := 1; i < len(grid); i++ {
		if grid[i] <= grid[i-1] {
			t.Fatalf("grid[%d]=%v not after grid[%d]=%v", i, grid[i], i-1, grid[i-1])
		}
	}
}

func TestTimeGrid_Invalid(t *testing.T) {
	cases := []struct {
		name string
		w    MissionWindow
		dt   float64
	}{
		{"ZeroStep", MissionWindow{TStart: 0, TEnd: 10}, 0},
		{"NegativeStep", MissionWindow{TStart: 0, TEnd: 10}, -0.5},
		{"NaNStep", MissionWindow{TStart: 0, TEnd: 10}, math.NaN()},
		{"Reversed", MissionWindow{TStart: 10, TEnd: 0}, 0.5},
		{"TooLarge", MissionWindow{TStart: 0, TEnd: 1e9}, 1e-3},
		{"BelowResolution", MissionWindow{TStart: 1e17, TEnd: 1e17 + 100}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := TimeGrid(tc.w, tc.dt); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err=%v want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfigAndWindowValidation(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.DtS = 0
	if err := bad.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("dt_s=0: err=%v", err)
	}
	bad = DefaultConfig()
	bad.MinSepXYM = math.Inf(1)
	if err := bad.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("min_sep_xy_m=+Inf: err=%v", err)
	}
	if _, err := NewMissionWindow(5, 4); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("reversed window: err=%v", err)
	}
	w, err := MissionWindowFor(traj("p", At(0, 0, 0, 2), At(1, 0, 0, 7)))
	if err != nil {
		t.Fatalf("MissionWindowFor: %v", err)
	}
	if w != (MissionWindow{TStart: 2, TEnd: 7}) {
		t.Fatalf("window=%+v", w)
	}
	if _, err := MissionWindowFor(traj("p")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty trajectory: err=%v", err)
	}
}

func TestCheck_CrossingConflict(t *testing.T) {
	primary, intruder := crossing()
	res, err := Check(primary, []Trajectory{intruder}, MissionWindow{TStart: 0, TEnd: 10}, cfgWith(2.0))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Status != StatusConflict {
		t.Fatalf("status=%q want %q", res.Status, StatusConflict)
	}

	var times []float64
	for _, c := range res.Conflicts {
		if c.OtherID != "intruder" {
			t.Fatalf("other_id=%q", c.OtherID)
		}
		if c.Distance > 2.0 {
			t.Fatalf("t=%v distance=%v exceeds threshold", c.Time, c.Distance)
		}
		times = append(times, c.Time)
	}
	if diff := cmp.Diff([]float64{4, 4.5, 5, 5.5, 6}, times); diff != "" {
		t.Fatalf("conflict times (-want +got):\n%s", diff)
	}

	mid := res.Conflicts[2]
	if mid.Distance != 0 {
		t.Fatalf("t=5 distance=%v want 0", mid.Distance)
	}
	if mid.PrimaryPoint != (Point{X: 5}) || mid.OtherPoint != (Point{X: 5}) {
		t.Fatalf("t=5 points: primary=%+v other=%+v", mid.PrimaryPoint, mid.OtherPoint)
	}
}

func TestCheck_NearMissIsClear(t *testing.T) {
	primary := traj("primary", At(0, 0, 0, 0), At(10, 0, 0, 10))
	intruder := traj("intruder", At(0, 3.1, 0, 0), At(10, 3.1, 0, 10))

	res, err := Check(primary, []Trajectory{intruder}, MissionWindow{TStart: 0, TEnd: 10}, cfgWith(3.0))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Status != StatusClear || len(res.Conflicts) != 0 {
		t.Fatalf("status=%q conflicts=%d want clear", res.Status, len(res.Conflicts))
	}
}

func TestCheck_TemporalSeparationIsClear(t *testing.T) {
	primary := traj("primary", At(0, 0, 0, 0), At(10, 0, 0, 10))
	intruder := traj("intruder", At(5, -5, 0, 15), At(5, 5, 0, 25))

	res, err := Check(primary, []Trajectory{intruder}, MissionWindow{TStart: 0, TEnd: 10}, cfgWith(2.0))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Status != StatusClear || len(res.Conflicts) != 0 {
		t.Fatalf("status=%q conflicts=%d want clear", res.Status, len(res.Conflicts))
	}
}

func TestCheck_DisjointCoverageInsideWindowIsClear(t *testing.T) {
	// Same place, different times, both inside the window.
	primary := traj("primary", At(0, 0, 0, 0), At(1, 0, 0, 4))
	intruder := traj("intruder", At(0, 0, 0, 6), At(1, 0, 0, 10))

	res, err := Check(primary, []Trajectory{intruder}, MissionWindow{TStart: 0, TEnd: 12}, cfgWith(5))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Status != StatusClear {
		t.Fatalf("status=%q want clear", res.Status)
	}
}

func TestCheck_ZeroLengthWindowIsClear(t *testing.T) {
	primary, intruder := crossing()
	res, err := Check(primary, []Trajectory{intruder}, MissionWindow{TStart: 5, TEnd: 5}, cfgWith(100))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Status != StatusClear || len(res.Conflicts) != 0 {
		t.Fatalf("status=%q conflicts=%d", res.Status, len(res.Conflicts))
	}
}

func TestCheck_WindowBoundsConflicts(t *testing.T) {
	primary, intruder := crossing()
	window := MissionWindow{TStart: 4.5, TEnd: 5.5}
	res, err := Check(primary, []Trajectory{intruder}, window, cfgWith(2.0))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(res.Conflicts) != 2 {
		t.Fatalf("conflicts=%d want 2", len(res.Conflicts))
	}
	for _, c := range res.Conflicts {
		if c.Time < window.TStart || c.Time >= window.TEnd {
			t.Fatalf("conflict at t=%v outside window %+v", c.Time, window)
		}
	}
}

func TestCheck_PartialOverlapOnlyReportsSharedTimes(t *testing.T) {
	primary := traj("primary", At(0, 0, 0, 0), At(10, 0, 0, 10))
	// Hovers on the primary's path from t=7 onward.
	intruder := traj("intruder", At(8, 0, 0, 7), At(8, 0, 0, 30))

	res, err := Check(primary, []Trajectory{intruder}, MissionWindow{TStart: 0, TEnd: 10}, cfgWith(1.2))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	var times []float64
	for _, c := range res.Conflicts {
		times = append(times, c.Time)
	}
	if diff := cmp.Diff([]float64{7, 7.5, 8, 8.5, 9}, times); diff != "" {
		t.Fatalf("conflict times (-want +got):\n%s", diff)
	}
}

func TestCheck_OrdersByTrafficThenTime(t *testing.T) {
	primary, intruder := crossing()
	late := traj("late", At(2, 0, 0, 0), At(2, 0, 0, 10))
	res, err := Check(primary, []Trajectory{late, intruder}, MissionWindow{TStart: 0, TEnd: 10}, cfgWith(1.2))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	lastIdx := 0
	lastTime := math.Inf(-1)
	order := map[string]int{"late": 0, "intruder": 1}
	for _, c := range res.Conflicts {
		idx := order[c.OtherID]
		if idx < lastIdx || (idx == lastIdx && c.Time <= lastTime) {
			t.Fatalf("out of order record %+v", c)
		}
		lastIdx, lastTime = idx, c.Time
	}
	if res.Conflicts[0].OtherID != "late" {
		t.Fatalf("first record from %q want late", res.Conflicts[0].OtherID)
	}
}

func TestCheck_SeparationIsSymmetric(t *testing.T) {
	a := traj("a", At(0, 0, 0, 0), At(7, 3, 1, 4), At(-2, 9, 0, 12))
	b := traj("b", At(3, -4, 2, 1), At(1, 8, 0, 6), At(6, 6, 3, 11))
	window := MissionWindow{TStart: 0, TEnd: 12}

	ab, err := Separations(a, []Trajectory{b}, window, DefaultConfig())
	if err != nil {
		t.Fatalf("Separations(a,b): %v", err)
	}
	ba, err := Separations(b, []Trajectory{a}, window, DefaultConfig())
	if err != nil {
		t.Fatalf("Separations(b,a): %v", err)
	}
	if len(ab[0].Samples) == 0 || len(ab[0].Samples) != len(ba[0].Samples) {
		t.Fatalf("sample counts: ab=%d ba=%d", len(ab[0].Samples), len(ba[0].Samples))
	}
	for i := range ab[0].Samples {
		x, y := ab[0].Samples[i], ba[0].Samples[i]
		if x.Time != y.Time || x.Distance != y.Distance {
			t.Fatalf("t=%v: d(a,b)=%v d(b,a)=%v", x.Time, x.Distance, y.Distance)
		}
	}
}

func TestCheck_ThresholdMonotonic(t *testing.T) {
	primary := traj("primary", At(0, 0, 0, 0), At(20, 0, 0, 20))
	traffic := []Trajectory{
		traj("x1", At(10, -10, 0, 0), At(10, 10, 0, 20)),
		traj("x2", At(0, 4, 0, 0), At(20, -2, 0, 20)),
	}
	window := MissionWindow{TStart: 0, TEnd: 20}

	key := func(c ConflictRecord) [2]any { return [2]any{c.OtherID, c.Time} }
	var prev map[[2]any]bool
	for _, sep := range []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13} {
		res, err := Check(primary, traffic, window, cfgWith(sep))
		if err != nil {
			t.Fatalf("Check(%v): %v", sep, err)
		}
		cur := map[[2]any]bool{}
		for _, c := range res.Conflicts {
			cur[key(c)] = true
		}
		for k := range prev {
			if !cur[k] {
				t.Fatalf("raising threshold to %v dropped conflict %v", sep, k)
			}
		}
		prev = cur
	}
}

func TestCheck_VerticalGate(t *testing.T) {
	primary, intruder := crossing()
	intruder.Waypoints[0].Z = 10
	intruder.Waypoints[1].Z = 10
	window := MissionWindow{TStart: 0, TEnd: 10}

	cfg := cfgWith(2.0)
	res, err := Check(primary, []Trajectory{intruder}, window, cfg)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Status != StatusConflict {
		t.Fatalf("horizontal-only: status=%q want conflict", res.Status)
	}
	if got := res.Conflicts[0].OtherPoint.Z; got != 10 {
		t.Fatalf("other z=%v want 10 carried into record", got)
	}

	cfg.VerticalGate = true
	res, err = Check(primary, []Trajectory{intruder}, window, cfg)
	if err != nil {
		t.Fatalf("Check(gated): %v", err)
	}
	if res.Status != StatusClear {
		t.Fatalf("gated: status=%q want clear", res.Status)
	}
}

func TestCheck_Errors(t *testing.T) {
	primary, intruder := crossing()
	window := MissionWindow{TStart: 0, TEnd: 10}

	bad := cfgWith(2)
	bad.DtS = 0
	if _, err := Check(primary, []Trajectory{intruder}, window, bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("dt_s=0: err=%v want ErrInvalidConfig", err)
	}

	broken := traj("broken", At(0, 0, 0, 0), Waypoint{X: 3, Y: 3})
	if _, err := Check(primary, []Trajectory{intruder, broken}, window, cfgWith(2)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("untimed traffic: err=%v want ErrInvalidInput", err)
	}
	if _, err := Check(broken, []Trajectory{intruder}, window, cfgWith(2)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("untimed primary: err=%v want ErrInvalidInput", err)
	}
}

func TestCheckResult_JSONShape(t *testing.T) {
	b, err := json.Marshal(CheckResult{Status: StatusClear})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got := string(b); got != `{"status":"clear","conflicts":[]}` {
		t.Fatalf("clear json=%s", got)
	}

	primary, intruder := crossing()
	res, err := Check(primary, []Trajectory{intruder}, MissionWindow{TStart: 5, TEnd: 5.5}, cfgWith(2.0))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	b, err = json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"status":"conflict detected","conflicts":[{"other_id":"intruder","time":5,"distance":0,"primary_point":[5,0,0],"other_point":[5,0,0]}]}`
	if got := string(b); got != want {
		t.Fatalf("json=%s\nwant %s", got, want)
	}

	var back CheckResult
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(res, back); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}
