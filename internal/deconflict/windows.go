package deconflict

// ConflictWindow is a run of conflict records against one intruder with no
// gap longer than the merge gap between consecutive records.
type ConflictWindow struct {
	OtherID     string  `json:"other_id"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	MinDistance float64 `json:"min_distance"`
	MinTime     float64 `json:"min_time"`
	Samples     int     `json:"samples"`
}

// MergeWindows groups records into windows per intruder. Consecutive records
// for the same intruder join a window when they are at most gapS apart,
// plus half a grid step of tolerance for rounding in the grid times.
//
// records must be in CheckResult order. Windows keep that order.
func MergeWindows(records []ConflictRecord, gapS, dtS float64) []ConflictWindow {
	if len(records) == 0 {
		return nil
	}
	limit := gapS + dtS/2

	var out []ConflictWindow
	cur := -1
	for _, r := range records {
		if cur >= 0 {
			w := &out[cur]
			if w.OtherID == r.OtherID && r.Time >= w.End && r.Time-w.End <= limit {
				w.End = r.Time
				w.Samples++
				if r.Distance < w.MinDistance {
					w.MinDistance = r.Distance
					w.MinTime = r.Time
				}
				continue
			}
		}
		out = append(out, ConflictWindow{
			OtherID:     r.OtherID,
			Start:       r.Time,
			End:         r.Time,
			MinDistance: r.Distance,
			MinTime:     r.Time,
			Samples:     1,
		})
		cur = len(out) - 1
	}
	return out
}

// Summary is a compact report of a check result.
type Summary struct {
	Status    string           `json:"status"`
	Conflicts int              `json:"conflicts"`
	Intruders []string         `json:"intruders"`
	Windows   []ConflictWindow `json:"windows"`
}

func Summarize(res CheckResult, cfg Config) Summary {
	s := Summary{
		Status:    res.Status,
		Conflicts: len(res.Conflicts),
		Intruders: []string{},
		Windows:   MergeWindows(res.Conflicts, cfg.MergeGapS, cfg.DtS),
	}
	seen := map[string]bool{}
	for _, c := range res.Conflicts {
		if !seen[c.OtherID] {
			seen[c.OtherID] = true
			s.Intruders = append(s.Intruders, c.OtherID)
		}
	}
	if s.Windows == nil {
		s.Windows = []ConflictWindow{}
	}
	return s
}
