package main

import (
	"fmt"
	"io"
	"strings"

	"uav-deconflict/internal/runner"
)

func printSummary(w io.Writer, rep runner.Report) {
	s := rep.Summary
	fmt.Fprintf(w, "scenario: %s\n", rep.Scenario)
	if rep.RunID != "" {
		fmt.Fprintf(w, "run_id: %s\n", rep.RunID)
	}
	fmt.Fprintf(w, "status: %s\n", s.Status)
	fmt.Fprintf(w, "conflicts: %d\n", s.Conflicts)
	if len(s.Intruders) > 0 {
		fmt.Fprintf(w, "intruders: %s\n", strings.Join(s.Intruders, ", "))
	}
	if len(s.Windows) > 0 {
		fmt.Fprintf(w, "windows:\n")
		for _, win := range s.Windows {
			fmt.Fprintf(w, "  %s t=[%g, %g] samples=%d min_distance=%.3f at t=%g\n",
				win.OtherID, win.Start, win.End, win.Samples, win.MinDistance, win.MinTime)
		}
	}
	fmt.Fprintln(w)
}
