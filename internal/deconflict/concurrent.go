package deconflict

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// CheckConcurrent is Check with traffic trajectories evaluated by up to
// workers goroutines. The result, including which error is reported when
// several trajectories are invalid, is identical to Check for the same inputs.
//
// An invalid trajectory does not stop the others; only ctx cancels the
// remaining work, in which case ctx.Err() is returned.
func CheckConcurrent(ctx context.Context, primary Trajectory, traffic []Trajectory, window MissionWindow, cfg Config, workers int) (CheckResult, error) {
	if workers <= 1 || len(traffic) < 2 {
		return Check(primary, traffic, window, cfg)
	}
	grid, prim, err := prepare(primary, window, cfg)
	if err != nil {
		return CheckResult{}, err
	}

	slots := make([][]ConflictRecord, len(traffic))
	errs := make([]error, len(traffic))

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range traffic {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := separation(grid, prim, traffic[i])
			if err != nil {
				errs[i] = err
				return nil
			}
			slots[i] = conflictsIn(s, cfg)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return CheckResult{}, err
	}
	for _, err := range errs {
		if err != nil {
			return CheckResult{}, err
		}
	}

	var conflicts []ConflictRecord
	for _, s := range slots {
		conflicts = append(conflicts, s...)
	}
	return newResult(conflicts), nil
}
