package web

import (
	"sync/atomic"
	"time"

	"uav-deconflict/internal/deconflict"
)

type Status struct {
	startUnixNano  int64
	checks         uint64
	conflictChecks uint64
	errors         uint64
	lastCheckNano  int64
	lastErrorNano  int64
	lastScenario   atomic.Value // string
	lastStatus     atomic.Value // string
	info           atomic.Value // map[string]any
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.lastScenario.Store("")
	s.lastStatus.Store("")
	s.info.Store(map[string]any{})
	return s
}

// SetInfo publishes static process info such as the base check config.
func (s *Status) SetInfo(info map[string]any) {
	if info != nil {
		s.info.Store(info)
	}
}

func (s *Status) MarkCheck(nowUTC time.Time, scenario string, res deconflict.CheckResult) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.AddUint64(&s.checks, 1)
	if !res.Clear() {
		atomic.AddUint64(&s.conflictChecks, 1)
	}
	s.lastScenario.Store(scenario)
	s.lastStatus.Store(res.Status)
	atomic.StoreInt64(&s.lastCheckNano, nowUTC.UnixNano())
}

func (s *Status) MarkError(nowUTC time.Time) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.AddUint64(&s.errors, 1)
	atomic.StoreInt64(&s.lastErrorNano, nowUTC.UnixNano())
}

type StatusSnapshot struct {
	Service             string         `json:"service"`
	NowUTC              string         `json:"now_utc"`
	UptimeSec           int64          `json:"uptime_sec"`
	ChecksTotal         uint64         `json:"checks_total"`
	ConflictChecksTotal uint64         `json:"conflict_checks_total"`
	ErrorsTotal         uint64         `json:"errors_total"`
	LastScenario        string         `json:"last_scenario,omitempty"`
	LastStatus          string         `json:"last_status,omitempty"`
	LastCheckUTC        string         `json:"last_check_utc,omitempty"`
	LastErrorUTC        string         `json:"last_error_utc,omitempty"`
	Info                map[string]any `json:"info"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	uptime := nowUTC.Sub(start)
	if uptime < 0 {
		uptime = 0
	}
	lastCheck := atomic.LoadInt64(&s.lastCheckNano)

	snap := StatusSnapshot{
		Service:             "uav-deconflict",
		NowUTC:              nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:           int64(uptime.Seconds()),
		ChecksTotal:         atomic.LoadUint64(&s.checks),
		ConflictChecksTotal: atomic.LoadUint64(&s.conflictChecks),
		ErrorsTotal:         atomic.LoadUint64(&s.errors),
		LastScenario:        s.lastScenario.Load().(string),
		LastStatus:          s.lastStatus.Load().(string),
		Info:                s.info.Load().(map[string]any),
	}
	if lastCheck != 0 {
		snap.LastCheckUTC = time.Unix(0, lastCheck).UTC().Format(time.RFC3339Nano)
	}
	if lastErr := atomic.LoadInt64(&s.lastErrorNano); lastErr != 0 {
		snap.LastErrorUTC = time.Unix(0, lastErr).UTC().Format(time.RFC3339Nano)
	}
	return snap
}
