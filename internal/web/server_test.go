package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"uav-deconflict/internal/deconflict"
	"uav-deconflict/internal/metrics"
	"uav-deconflict/internal/runner"
	"uav-deconflict/internal/store"
)

const crossingBody = `{
  "name": "crossing",
  "check": {"min_sep_xy_m": 2},
  "primary": {"drone_id": "primary", "waypoints": [{"x": 0, "y": 0, "t": 0}, {"x": 10, "y": 0, "t": 10}]},
  "traffic": [{"drone_id": "intruder", "waypoints": [{"x": 5, "y": -5, "t": 0}, {"x": 5, "y": 5, "t": 10}]}]
}`

func newTestServer(t *testing.T, withStore bool) (*httptest.Server, *Status) {
	t.Helper()
	r := &runner.Runner{Base: deconflict.DefaultConfig(), Workers: 2, Metrics: metrics.New()}
	if withStore {
		st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
		if err != nil {
			t.Fatalf("store.Open() error: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		r.Store = st
	}
	status := NewStatus()
	logs := NewLogBuffer(100)
	ts := httptest.NewServer(Handler(Options{Status: status, Logs: logs, Runner: r, MaxBodyBytes: 4096}))
	t.Cleanup(ts.Close)
	return ts, status
}

func getJSON(t *testing.T, url string, wantCode int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantCode {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("get %s status=%d want %d body=%q", url, resp.StatusCode, wantCode, b)
	}
	if out == nil {
		return
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func postCheck(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/check", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post check: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestAPIStatus(t *testing.T) {
	ts, status := newTestServer(t, false)
	status.SetInfo(map[string]any{"min_sep_xy_m": 5.0})

	var snap StatusSnapshot
	getJSON(t, ts.URL+"/api/status", http.StatusOK, &snap)
	if snap.Service != "uav-deconflict" {
		t.Fatalf("service=%q", snap.Service)
	}
	if snap.ChecksTotal != 0 || snap.LastCheckUTC != "" {
		t.Fatalf("fresh status=%+v", snap)
	}
	if snap.Info["min_sep_xy_m"] != 5.0 {
		t.Fatalf("info=%v", snap.Info)
	}
}

func TestRootPage(t *testing.T) {
	ts, _ := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "UAV deconfliction") {
		t.Fatalf("unexpected root page")
	}

	getJSON(t, ts.URL+"/nope", http.StatusNotFound, nil)
}

func TestAPICheck_RecordsRun(t *testing.T) {
	ts, _ := newTestServer(t, true)

	resp := postCheck(t, ts, crossingBody)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status=%d body=%q", resp.StatusCode, b)
	}
	var rep runner.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.Scenario != "crossing" || rep.Result.Status != deconflict.StatusConflict {
		t.Fatalf("report=%+v", rep)
	}
	if len(rep.Result.Conflicts) != 5 {
		t.Fatalf("conflicts=%d want 5", len(rep.Result.Conflicts))
	}
	if rep.RunID == "" {
		t.Fatalf("expected run id")
	}

	var list struct {
		Runs []runListItem `json:"runs"`
	}
	getJSON(t, ts.URL+"/api/runs?scenario=crossing", http.StatusOK, &list)
	if len(list.Runs) != 1 || list.Runs[0].ID != rep.RunID || list.Runs[0].ConflictCount != 5 {
		t.Fatalf("runs=%+v", list.Runs)
	}

	var got struct {
		ID      string             `json:"id"`
		Summary deconflict.Summary `json:"summary"`
		Traffic []deconflict.Trajectory
	}
	getJSON(t, ts.URL+"/api/runs/"+rep.RunID, http.StatusOK, &got)
	if got.ID != rep.RunID || len(got.Summary.Windows) != 1 || len(got.Traffic) != 1 {
		t.Fatalf("run=%+v", got)
	}
	if w := got.Summary.Windows[0]; w.Start != 4 || w.End != 6 || w.MinDistance != 0 {
		t.Fatalf("window=%+v", w)
	}

	chart, err := http.Get(ts.URL + "/api/runs/" + rep.RunID + "/chart")
	if err != nil {
		t.Fatalf("get chart: %v", err)
	}
	defer chart.Body.Close()
	html, _ := io.ReadAll(chart.Body)
	if chart.StatusCode != http.StatusOK || !strings.Contains(string(html), "intruder") {
		t.Fatalf("chart status=%d", chart.StatusCode)
	}

	var snap StatusSnapshot
	getJSON(t, ts.URL+"/api/status", http.StatusOK, &snap)
	if snap.ChecksTotal != 1 || snap.ConflictChecksTotal != 1 || snap.LastScenario != "crossing" {
		t.Fatalf("status=%+v", snap)
	}

	mresp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer mresp.Body.Close()
	mb, _ := io.ReadAll(mresp.Body)
	if !strings.Contains(string(mb), `deconflict_checks_total{status="conflict detected"} 1`) {
		t.Fatalf("metrics missing check counter:\n%s", mb)
	}
}

func TestAPICheck_Rejects(t *testing.T) {
	ts, status := newTestServer(t, false)

	unsorted := strings.Replace(crossingBody, `{"x": 10, "y": 0, "t": 10}`, `{"x": 10, "y": 0, "t": -1}`, 1)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"NotYAML", "{", http.StatusBadRequest},
		{"NoPrimary", `{"traffic": []}`, http.StatusBadRequest},
		{"FileRefs", `{"primary_file": "/etc/passwd"}`, http.StatusBadRequest},
		{"Unsorted", unsorted, http.StatusBadRequest},
		{"BadStep", strings.Replace(crossingBody, `"min_sep_xy_m": 2`, `"dt_s": 0`, 1), http.StatusBadRequest},
		{"TooLarge", `{"name": "` + strings.Repeat("x", 5000) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postCheck(t, ts, tc.body)
			if resp.StatusCode != tc.want {
				b, _ := io.ReadAll(resp.Body)
				t.Fatalf("status=%d want %d body=%q", resp.StatusCode, tc.want, b)
			}
		})
	}

	resp, err := http.Get(ts.URL + "/api/check")
	if err != nil {
		t.Fatalf("get check: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed || resp.Header.Get("Allow") != http.MethodPost {
		t.Fatalf("status=%d allow=%q", resp.StatusCode, resp.Header.Get("Allow"))
	}

	if snap := status.Snapshot(time.Time{}); snap.ChecksTotal != 0 {
		t.Fatalf("rejected requests counted as checks: %+v", snap)
	}
}

func TestAPIRuns_HistoryDisabled(t *testing.T) {
	ts, _ := newTestServer(t, false)
	getJSON(t, ts.URL+"/api/runs", http.StatusNotFound, nil)
	getJSON(t, ts.URL+"/api/runs/abc", http.StatusNotFound, nil)
}

func TestAPIRuns_Errors(t *testing.T) {
	ts, _ := newTestServer(t, true)
	getJSON(t, ts.URL+"/api/runs?limit=0", http.StatusBadRequest, nil)
	getJSON(t, ts.URL+"/api/runs?limit=abc", http.StatusBadRequest, nil)
	getJSON(t, ts.URL+"/api/runs/does-not-exist", http.StatusNotFound, nil)
	getJSON(t, ts.URL+"/api/runs/a/b", http.StatusNotFound, nil)

	var list struct {
		Runs []runListItem `json:"runs"`
	}
	getJSON(t, ts.URL+"/api/runs", http.StatusOK, &list)
	if list.Runs == nil || len(list.Runs) != 0 {
		t.Fatalf("runs=%v want empty list", list.Runs)
	}
}

func TestAPILogs(t *testing.T) {
	logs := NewLogBuffer(3)
	fmt.Fprint(logs, "[check] one\n[web] two\n[check] thr")
	fmt.Fprint(logs, "ee\n[check] four\n")

	r := &runner.Runner{Base: deconflict.DefaultConfig()}
	ts := httptest.NewServer(Handler(Options{Logs: logs, Runner: r}))
	defer ts.Close()

	var resp LogsResponse
	getJSON(t, ts.URL+"/api/logs?component=check", http.StatusOK, &resp)
	if resp.Dropped != 1 {
		t.Fatalf("dropped=%d want 1", resp.Dropped)
	}
	want := []string{"[check] three", "[check] four"}
	if fmt.Sprint(resp.Lines) != fmt.Sprint(want) {
		t.Fatalf("lines=%q want %q", resp.Lines, want)
	}
	getJSON(t, ts.URL+"/api/logs?tail=0", http.StatusBadRequest, nil)

	// No metrics configured: /metrics is not mounted.
	getJSON(t, ts.URL+"/metrics", http.StatusNotFound, nil)
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", deconflict.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("x: %w", deconflict.ErrInvalidConfig), http.StatusBadRequest},
		{context.Canceled, http.StatusServiceUnavailable},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := errorStatus(tc.err); got != tc.want {
			t.Fatalf("errorStatus(%v)=%d want %d", tc.err, got, tc.want)
		}
	}
}

func TestAPIAbout(t *testing.T) {
	ts, _ := newTestServer(t, false)

	var about AboutResponse
	getJSON(t, ts.URL+"/api/about", http.StatusOK, &about)
	if about.Service != "uav-deconflict" || about.GoVersion == "" {
		t.Fatalf("about=%+v", about)
	}
	if len(about.Endpoints) == 0 || about.Endpoints[0] != "POST /api/check" {
		t.Fatalf("endpoints=%v", about.Endpoints)
	}
}
