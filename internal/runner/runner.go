// Package runner executes scenarios against the deconfliction core and fans
// the results out to metrics and run history.
package runner

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	"uav-deconflict/internal/deconflict"
	"uav-deconflict/internal/metrics"
	"uav-deconflict/internal/scenario"
	"uav-deconflict/internal/store"
)

// Report is the outcome of one scenario run.
type Report struct {
	RunID    string                 `json:"run_id,omitempty"`
	Scenario string                 `json:"scenario"`
	Result   deconflict.CheckResult `json:"result"`
	Summary  deconflict.Summary     `json:"summary"`
}

// Runner holds the shared base config and optional sinks. Store and Metrics
// may be nil. Workers 0 uses GOMAXPROCS.
type Runner struct {
	Base    deconflict.Config
	Workers int
	Store   *store.Store
	Metrics *metrics.Metrics
}

// Run checks sc with the base config and the scenario's overrides applied.
// Check errors are returned unrecorded; a failed history write is logged and
// the report is still returned.
func (r *Runner) Run(ctx context.Context, sc *scenario.Scenario) (Report, error) {
	cfg := sc.Config(r.Base)

	workers := r.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	res, err := deconflict.CheckConcurrent(ctx, sc.Primary, sc.Traffic, sc.Window, cfg, workers)
	took := time.Since(start)
	if err != nil {
		r.Metrics.ObserveCheckError()
		return Report{}, fmt.Errorf("scenario %q: %w", sc.Name, err)
	}
	r.Metrics.ObserveCheck(sc.Name, len(sc.Traffic), res, took)

	rep := Report{
		Scenario: sc.Name,
		Result:   res,
		Summary:  deconflict.Summarize(res, cfg),
	}
	log.Printf("[check] scenario=%s status=%q conflicts=%d intruders=%d took=%s",
		sc.Name, res.Status, len(res.Conflicts), len(rep.Summary.Intruders), took.Round(time.Microsecond))

	if r.Store != nil {
		run, err := r.Store.Record(ctx, store.Run{
			Scenario:     sc.Name,
			PrimaryID:    sc.Primary.DroneID,
			TrafficCount: len(sc.Traffic),
			Window:       sc.Window,
			Config:       cfg,
			Result:       res,
			Primary:      sc.Primary,
			Traffic:      sc.Traffic,
		})
		if err != nil {
			log.Printf("[check] record scenario=%s failed: %v", sc.Name, err)
		} else {
			rep.RunID = run.ID
		}
	}
	return rep, nil
}
