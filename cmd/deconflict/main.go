package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"uav-deconflict/internal/config"
	"uav-deconflict/internal/deconflict"
	"uav-deconflict/internal/metrics"
	"uav-deconflict/internal/render"
	"uav-deconflict/internal/runner"
	"uav-deconflict/internal/scenario"
	"uav-deconflict/internal/store"
	"uav-deconflict/internal/web"
)

const (
	exitOK       = 0
	exitError    = 1
	exitConflict = 2
)

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("deconflict", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath string
		scenarios  stringList
		serve      bool
		strict     bool
		textOut    bool
	)
	fs.StringVar(&configPath, "config", "", "Path to YAML config (built-in defaults when empty)")
	fs.Var(&scenarios, "scenario", "Scenario file to check; repeatable, replaces config scenarios")
	fs.BoolVar(&serve, "serve", false, "Serve the HTTP API after checking scenarios")
	fs.BoolVar(&strict, "strict", false, "Exit with status 2 when any scenario has a conflict")
	fs.BoolVar(&textOut, "summary", false, "Print a text summary per scenario instead of JSON")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			fmt.Fprintf(stderr, "config load failed: %v\n", err)
			return exitError
		}
	}
	if len(scenarios) > 0 {
		cfg.Scenarios = scenarios
	}
	serve = serve || cfg.Web.Enable

	logs := web.NewLogBuffer(2000)
	restoreLog := setupLogging(cfg.Log, stderr, logs)
	defer restoreLog()

	scs, err := loadScenarios(cfg.Scenarios)
	if err != nil {
		log.Printf("[main] %v", err)
		return exitError
	}

	r := &runner.Runner{Base: cfg.Check.Config, Workers: cfg.Check.Workers}
	if serve {
		r.Metrics = metrics.New()
	}
	if cfg.Store.Enable {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			log.Printf("[main] store open failed: %v", err)
			return exitError
		}
		defer st.Close()
		r.Store = st
	}

	status := web.NewStatus()
	status.SetInfo(baseInfo(cfg))

	pretty := wantPretty(cfg.Output.Pretty, stdout)
	enc := json.NewEncoder(stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}

	code := exitOK
	conflict := false
	for _, sc := range scs {
		rep, err := r.Run(ctx, sc)
		if err != nil {
			status.MarkError(time.Now().UTC())
			log.Printf("[main] %v", err)
			code = exitError
			continue
		}
		status.MarkCheck(time.Now().UTC(), rep.Scenario, rep.Result)
		if !rep.Result.Clear() {
			conflict = true
		}

		if textOut {
			printSummary(stdout, rep)
		} else if err := enc.Encode(rep); err != nil {
			log.Printf("[main] write output failed: %v", err)
			return exitError
		}

		if err := writeArtifacts(cfg.Output, sc, sc.Config(cfg.Check.Config), rep.Result); err != nil {
			log.Printf("[main] scenario=%s artifacts failed: %v", sc.Name, err)
			code = exitError
		}
	}

	if serve {
		err := web.Serve(ctx, cfg.Web.Listen, web.Options{
			Status:       status,
			Logs:         logs,
			Runner:       r,
			MaxBodyBytes: cfg.Web.MaxBodyBytes,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[web] server stopped: %v", err)
			return exitError
		}
	}

	if code == exitOK && strict && conflict {
		return exitConflict
	}
	return code
}

// setupLogging routes the standard logger to stderr or a rotated file, and
// always into logs for /api/logs.
func setupLogging(lc config.LogConfig, stderr io.Writer, logs *web.LogBuffer) func() {
	prevOut, prevFlags := log.Writer(), log.Flags()

	var dest io.Writer = stderr
	var closer io.Closer
	if strings.TrimSpace(lc.Path) != "" {
		lj := &lumberjack.Logger{
			Filename:   lc.Path,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAgeDays,
			Compress:   lc.Compress,
		}
		dest, closer = lj, lj
	}
	log.SetOutput(io.MultiWriter(dest, logs))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)

	return func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
		if closer != nil {
			_ = closer.Close()
		}
	}
}

func loadScenarios(paths []string) ([]*scenario.Scenario, error) {
	if len(paths) == 0 {
		scs, err := scenario.Builtin()
		if err != nil {
			return nil, fmt.Errorf("builtin scenarios: %w", err)
		}
		log.Printf("[main] no scenarios configured; running %d built-in", len(scs))
		return scs, nil
	}
	out := make([]*scenario.Scenario, 0, len(paths))
	for _, p := range paths {
		sc, err := scenario.Load(p)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", p, err)
		}
		out = append(out, sc)
	}
	return out, nil
}

func wantPretty(mode string, stdout io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := stdout.(*os.File)
	return ok && isTerminal(f)
}

func writeArtifacts(oc config.OutputConfig, sc *scenario.Scenario, cfg deconflict.Config, res deconflict.CheckResult) error {
	if oc.PlotDir != "" {
		p, err := render.Paths(sc.Name, sc.Primary, sc.Traffic, res, cfg)
		if err != nil {
			return err
		}
		path, err := render.SavePNG(oc.PlotDir, sc.Name, p)
		if err != nil {
			return err
		}
		log.Printf("[render] plot %s", path)
	}
	if oc.ChartDir != "" {
		series, err := deconflict.Separations(sc.Primary, sc.Traffic, sc.Window, cfg)
		if err != nil {
			return err
		}
		path, err := render.SaveSeparationChart(oc.ChartDir, sc.Name, series, cfg)
		if err != nil {
			return err
		}
		log.Printf("[render] chart %s", path)
	}
	return nil
}

func baseInfo(cfg config.Config) map[string]any {
	c := cfg.Check
	return map[string]any{
		"min_sep_xy_m":      c.MinSepXYM,
		"min_sep_z_m":       c.MinSepZM,
		"dt_s":              c.DtS,
		"merge_gap_s":       c.MergeGapS,
		"corridor_buffer_m": c.CorridorBufferM,
		"vertical_gate":     c.VerticalGate,
		"workers":           c.Workers,
		"store":             cfg.Store.Enable,
	}
}
