package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"uav-deconflict/internal/deconflict"
	"uav-deconflict/internal/render"
	"uav-deconflict/internal/runner"
	"uav-deconflict/internal/scenario"
	"uav-deconflict/internal/store"
)

//go:embed assets/*
var embeddedAssets embed.FS

// Options wires the handler to its collaborators. Runner is required;
// Runner.Store and Runner.Metrics enable run history and /metrics.
type Options struct {
	Status       *Status
	Logs         *LogBuffer
	Runner       *runner.Runner
	MaxBodyBytes int64
}

func Handler(opts Options) http.Handler {
	if opts.Status == nil {
		opts.Status = NewStatus()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	status := opts.Status
	run := opts.Runner

	mux := http.NewServeMux()

	assetsFS, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		assetsFS = nil
	}

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, status.Snapshot(time.Now().UTC()))
	})

	// Check a scenario posted as JSON (or YAML) in the scenario script schema.
	mux.HandleFunc("/api/check", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, opts.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "read body failed", http.StatusBadRequest)
			return
		}
		script, err := scenario.ParseScript(b)
		if err != nil {
			http.Error(w, "invalid scenario: "+err.Error(), http.StatusBadRequest)
			return
		}
		if script.HasFileRefs() {
			http.Error(w, "primary_file and traffic_files are not accepted over http", http.StatusBadRequest)
			return
		}
		sc, err := scenario.New(script)
		if err != nil {
			http.Error(w, "invalid scenario: "+err.Error(), http.StatusBadRequest)
			return
		}

		rep, err := run.Run(r.Context(), sc)
		if err != nil {
			status.MarkError(time.Now().UTC())
			http.Error(w, err.Error(), errorStatus(err))
			return
		}
		status.MarkCheck(time.Now().UTC(), rep.Scenario, rep.Result)
		writeJSON(w, http.StatusOK, rep)
	})

	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if run.Store == nil {
			http.Error(w, "run history disabled", http.StatusNotFound)
			return
		}
		q := r.URL.Query()
		limit := 50
		if s := strings.TrimSpace(q.Get("limit")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 500 {
				http.Error(w, "limit must be an integer in [1,500]", http.StatusBadRequest)
				return
			}
			limit = v
		}
		runs, err := run.Store.List(r.Context(), store.ListOptions{Scenario: q.Get("scenario"), Limit: limit})
		if err != nil {
			log.Printf("[web] list runs failed: %v", err)
			http.Error(w, "list runs failed", http.StatusInternalServerError)
			return
		}
		items := make([]runListItem, 0, len(runs))
		for _, rn := range runs {
			items = append(items, newRunListItem(rn))
		}
		writeJSON(w, http.StatusOK, struct {
			Runs []runListItem `json:"runs"`
		}{Runs: items})
	})

	// /api/runs/{id} and /api/runs/{id}/chart.
	mux.HandleFunc("/api/runs/", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if run.Store == nil {
			http.Error(w, "run history disabled", http.StatusNotFound)
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		id, chart := strings.CutSuffix(rest, "/chart")
		if id == "" || strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}
		rn, err := run.Store.Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Printf("[web] get run %s failed: %v", id, err)
			http.Error(w, "get run failed", http.StatusInternalServerError)
			return
		}

		if !chart {
			writeJSON(w, http.StatusOK, struct {
				store.Run
				Summary deconflict.Summary `json:"summary"`
			}{Run: rn, Summary: deconflict.Summarize(rn.Result, rn.Config)})
			return
		}

		series, err := deconflict.Separations(rn.Primary, rn.Traffic, rn.Window, rn.Config)
		if err != nil {
			http.Error(w, err.Error(), errorStatus(err))
			return
		}
		var buf bytes.Buffer
		if err := render.SeparationChart(&buf, rn.Scenario, series, rn.Config); err != nil {
			log.Printf("[web] render chart for run %s failed: %v", id, err)
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(buf.Bytes())
	})

	if opts.Logs != nil {
		mux.Handle("/api/logs", opts.Logs.Handler())
	}

	mux.Handle("/api/about", AboutHandler())

	if run.Metrics != nil {
		mux.Handle("/metrics", run.Metrics.Handler())
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if assetsFS == nil {
			snap := status.Snapshot(time.Now().UTC())
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>UAV deconfliction</title></head><body>")
			_, _ = fmt.Fprintf(w, "<h1>UAV deconfliction</h1><p>Use <a href=\"/api/status\">/api/status</a>.</p>")
			_, _ = fmt.Fprintf(w, "<pre>checks_total=%d\nlast_status=%s</pre></body></html>", snap.ChecksTotal, snap.LastStatus)
			return
		}
		b, err := fs.ReadFile(assetsFS, "index.html")
		if err != nil {
			http.Error(w, "ui unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(b)
	})

	if run.Metrics != nil {
		return run.Metrics.Middleware(mux)
	}
	return mux
}

type runListItem struct {
	ID            string                   `json:"id"`
	Scenario      string                   `json:"scenario"`
	PrimaryID     string                   `json:"primary_id"`
	TrafficCount  int                      `json:"traffic_count"`
	Status        string                   `json:"status"`
	ConflictCount int                      `json:"conflict_count"`
	Window        deconflict.MissionWindow `json:"window"`
	CheckedAtUTC  string                   `json:"checked_at_utc"`
}

func newRunListItem(rn store.Run) runListItem {
	return runListItem{
		ID:            rn.ID,
		Scenario:      rn.Scenario,
		PrimaryID:     rn.PrimaryID,
		TrafficCount:  rn.TrafficCount,
		Status:        rn.Result.Status,
		ConflictCount: len(rn.Result.Conflicts),
		Window:        rn.Window,
		CheckedAtUTC:  rn.CheckedAt.UTC().Format(time.RFC3339Nano),
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

// errorStatus maps check errors to a response code. Caller mistakes are 400.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, deconflict.ErrInvalidInput), errors.Is(err, deconflict.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func Serve(ctx context.Context, listenAddr string, opts Options) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Printf("[web] listening on %s", listenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
