package scenario

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"uav-deconflict/internal/deconflict"
)

// Script is a deconfliction scenario description.
//
// Times are seconds from mission start. JSON documents are accepted as well
// since JSON is valid YAML.
//
// YAML schema (v1):
//
//	version: 1
//	name: crossing
//	window: {t_start: 0, t_end: 10}   # optional, defaults to the primary's span
//	check:                            # optional overrides of the base config
//	  min_sep_xy_m: 2
//	primary:
//	  drone_id: primary
//	  waypoints:
//	    - {x: 0, y: 0, t: 0}
//	    - {x: 10, y: 0, t: 10}
//	primary_file: primary.json        # alternative to primary
//	traffic:
//	  - drone_id: intruder
//	    waypoints: ...
//	traffic_files: [traffic.json]
//	orbiters: {count: 4, radius_m: 30, period_s: 60, duration_s: 120}
//
// Relative file paths resolve against the script's directory.
type Script struct {
	Version      int                       `yaml:"version"`
	Name         string                    `yaml:"name"`
	Window       *deconflict.MissionWindow `yaml:"window"`
	Check        CheckOverrides            `yaml:"check"`
	Primary      *deconflict.Trajectory    `yaml:"primary"`
	PrimaryFile  string                    `yaml:"primary_file"`
	Traffic      []deconflict.Trajectory   `yaml:"traffic"`
	TrafficFiles []string                  `yaml:"traffic_files"`
	Orbiters     *Orbiters                 `yaml:"orbiters"`

	baseDir string
}

// CheckOverrides replaces individual fields of a base deconflict.Config.
type CheckOverrides struct {
	MinSepXYM       *float64 `yaml:"min_sep_xy_m" json:"min_sep_xy_m,omitempty"`
	MinSepZM        *float64 `yaml:"min_sep_z_m" json:"min_sep_z_m,omitempty"`
	DtS             *float64 `yaml:"dt_s" json:"dt_s,omitempty"`
	MergeGapS       *float64 `yaml:"merge_gap_s" json:"merge_gap_s,omitempty"`
	CorridorBufferM *float64 `yaml:"corridor_buffer_m" json:"corridor_buffer_m,omitempty"`
	VerticalGate    *bool    `yaml:"vertical_gate" json:"vertical_gate,omitempty"`
}

func (o CheckOverrides) Apply(base deconflict.Config) deconflict.Config {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&base.MinSepXYM, o.MinSepXYM)
	set(&base.MinSepZM, o.MinSepZM)
	set(&base.DtS, o.DtS)
	set(&base.MergeGapS, o.MergeGapS)
	set(&base.CorridorBufferM, o.CorridorBufferM)
	if o.VerticalGate != nil {
		base.VerticalGate = *o.VerticalGate
	}
	return base
}

// LoadScript reads and unmarshals a scenario script from path.
func LoadScript(path string) (Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Script{}, err
	}
	s, err := ParseScript(b)
	if err != nil {
		return Script{}, fmt.Errorf("%s: %w", path, err)
	}
	s.baseDir = filepath.Dir(path)
	if s.Name == "" {
		base := filepath.Base(path)
		s.Name = base[:len(base)-len(filepath.Ext(base))]
	}
	return s, nil
}

// ParseScript parses a YAML (or JSON) scenario script.
func ParseScript(b []byte) (Script, error) {
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Script{}, err
	}
	return s, nil
}

// HasFileRefs reports whether the script loads trajectories from files.
func (s Script) HasFileRefs() bool {
	return s.PrimaryFile != "" || len(s.TrafficFiles) > 0
}

// LoadTrajectory reads a single {drone_id, waypoints} document.
func LoadTrajectory(path string) (deconflict.Trajectory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return deconflict.Trajectory{}, err
	}
	var tr deconflict.Trajectory
	if err := yaml.Unmarshal(b, &tr); err != nil {
		return deconflict.Trajectory{}, fmt.Errorf("%s: %w", path, err)
	}
	return tr, nil
}

// Scenario is the validated, runtime representation of a Script.
type Scenario struct {
	Name    string
	Primary deconflict.Trajectory
	Traffic []deconflict.Trajectory
	Window  deconflict.MissionWindow
	Check   CheckOverrides
}

// Config returns base with the scenario's overrides applied.
func (s *Scenario) Config(base deconflict.Config) deconflict.Config {
	return s.Check.Apply(base)
}

// Load reads, resolves, and validates a scenario script.
func Load(path string) (*Scenario, error) {
	script, err := LoadScript(path)
	if err != nil {
		return nil, err
	}
	return New(script)
}

// New resolves file references in script and validates the result.
func New(script Script) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}

	primary, err := script.primary()
	if err != nil {
		return nil, err
	}
	traffic, err := script.traffic()
	if err != nil {
		return nil, err
	}

	if primary.DroneID == "" {
		return nil, fmt.Errorf("primary.drone_id is required")
	}
	if len(primary.Waypoints) < 2 {
		return nil, fmt.Errorf("primary.waypoints needs at least 2 timed waypoints")
	}
	if err := deconflict.ValidateTrajectory(primary); err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}

	seen := map[string]bool{primary.DroneID: true}
	for i, tr := range traffic {
		if tr.DroneID == "" {
			return nil, fmt.Errorf("traffic[%d].drone_id is required", i)
		}
		if seen[tr.DroneID] {
			return nil, fmt.Errorf("traffic[%d].drone_id %q is not unique", i, tr.DroneID)
		}
		seen[tr.DroneID] = true
		if err := deconflict.ValidateTrajectory(tr); err != nil {
			return nil, fmt.Errorf("traffic[%d]: %w", i, err)
		}
	}

	var window deconflict.MissionWindow
	if script.Window != nil {
		window, err = deconflict.NewMissionWindow(script.Window.TStart, script.Window.TEnd)
	} else {
		window, err = deconflict.MissionWindowFor(primary)
	}
	if err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}

	if err := script.Check.Apply(deconflict.DefaultConfig()).Validate(); err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}

	name := script.Name
	if name == "" {
		name = primary.DroneID
	}
	return &Scenario{
		Name:    name,
		Primary: primary,
		Traffic: traffic,
		Window:  window,
		Check:   script.Check,
	}, nil
}

func (s Script) resolve(path string) string {
	if filepath.IsAbs(path) || s.baseDir == "" {
		return path
	}
	return filepath.Join(s.baseDir, path)
}

func (s Script) primary() (deconflict.Trajectory, error) {
	switch {
	case s.Primary != nil && s.PrimaryFile != "":
		return deconflict.Trajectory{}, fmt.Errorf("primary and primary_file cannot both be set")
	case s.Primary != nil:
		return *s.Primary, nil
	case s.PrimaryFile != "":
		return LoadTrajectory(s.resolve(s.PrimaryFile))
	}
	return deconflict.Trajectory{}, fmt.Errorf("primary is required")
}

func (s Script) traffic() ([]deconflict.Trajectory, error) {
	out := append([]deconflict.Trajectory(nil), s.Traffic...)
	for _, p := range s.TrafficFiles {
		tr, err := LoadTrajectory(s.resolve(p))
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	if s.Orbiters != nil {
		orb, err := s.Orbiters.Trajectories()
		if err != nil {
			return nil, fmt.Errorf("orbiters: %w", err)
		}
		out = append(out, orb...)
	}
	return out, nil
}
