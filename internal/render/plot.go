package render

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"uav-deconflict/internal/deconflict"
)

var (
	primaryColor  = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	conflictColor = color.RGBA{R: 220, G: 30, B: 30, A: 255}
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 8 * vg.Inch
)

// Paths builds a top-down plot of the primary and traffic routes with a
// marker at the primary position of every conflict. The axes are padded by
// cfg.CorridorBufferM (at least 1 m) around all waypoints.
func Paths(title string, primary deconflict.Trajectory, traffic []deconflict.Trajectory, res deconflict.CheckResult, cfg deconflict.Config) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	b := newBounds()

	for i, tr := range traffic {
		line, err := pathLine(tr, &b)
		if err != nil {
			return nil, fmt.Errorf("traffic %q: %w", tr.DroneID, err)
		}
		if line == nil {
			continue
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add(tr.DroneID, line)
	}

	prim, err := pathLine(primary, &b)
	if err != nil {
		return nil, fmt.Errorf("primary %q: %w", primary.DroneID, err)
	}
	if prim != nil {
		prim.Color = primaryColor
		prim.Width = vg.Points(2)
		p.Add(prim)
		p.Legend.Add(primary.DroneID+" (primary)", prim)
	}

	if len(res.Conflicts) > 0 {
		pts := make(plotter.XYs, 0, len(res.Conflicts))
		for _, c := range res.Conflicts {
			pts = append(pts, plotter.XY{X: c.PrimaryPoint.X, Y: c.PrimaryPoint.Y})
			b.add(c.PrimaryPoint.X, c.PrimaryPoint.Y)
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Color = conflictColor
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add(fmt.Sprintf("conflict (%d)", len(res.Conflicts)), sc)
	}

	if b.ok() {
		pad := math.Max(cfg.CorridorBufferM, 1)
		p.X.Min, p.X.Max = b.minX-pad, b.maxX+pad
		p.Y.Min, p.Y.Max = b.minY-pad, b.maxY+pad
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// WritePNG encodes the plot as PNG to w.
func WritePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG writes the plot to dir/name.png, creating dir if needed, and
// returns the file path.
func SavePNG(dir, name string, p *plot.Plot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(name)+".png")
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return "", fmt.Errorf("save plot: %w", err)
	}
	return path, nil
}

func pathLine(tr deconflict.Trajectory, b *bounds) (*plotter.Line, error) {
	if len(tr.Waypoints) == 0 {
		return nil, nil
	}
	pts := make(plotter.XYs, 0, len(tr.Waypoints))
	for _, wp := range tr.Waypoints {
		if !isFinite(wp.X) || !isFinite(wp.Y) {
			return nil, fmt.Errorf("%w: non-finite waypoint position", deconflict.ErrInvalidInput)
		}
		pts = append(pts, plotter.XY{X: wp.X, Y: wp.Y})
		b.add(wp.X, wp.Y)
	}
	return plotter.NewLine(pts)
}

type bounds struct {
	minX, maxX, minY, maxY float64
}

func newBounds() bounds {
	return bounds{minX: math.Inf(1), maxX: math.Inf(-1), minY: math.Inf(1), maxY: math.Inf(-1)}
}

func (b *bounds) add(x, y float64) {
	b.minX = math.Min(b.minX, x)
	b.maxX = math.Max(b.maxX, x)
	b.minY = math.Min(b.minY, y)
	b.maxY = math.Max(b.maxY, y)
}

func (b bounds) ok() bool { return b.minX <= b.maxX && b.minY <= b.maxY }

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
