package export

import (
	"bufio"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/san-kum/motorsync/internal/dynamo"
)

var (
	masterColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	slaveColor  = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
	goalColor   = color.RGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff}
)

type series struct {
	name  string
	color color.Color
	dash  bool
	value func(dynamo.Sample) float64
}

// PositionPlot charts both sensed positions against the master goal.
func PositionPlot(title string, samples []dynamo.Sample) (*plot.Plot, error) {
	return linePlot(title, "position (units)", samples, []series{
		{"goal", goalColor, true, func(s dynamo.Sample) float64 { return float64(s.MasterGoal) }},
		{"master", masterColor, false, func(s dynamo.Sample) float64 { return float64(s.MasterPos) }},
		{"slave", slaveColor, false, func(s dynamo.Sample) float64 { return float64(s.SlavePos) }},
	})
}

// OutputPlot charts both side outputs.
func OutputPlot(title string, samples []dynamo.Sample) (*plot.Plot, error) {
	return linePlot(title, "output", samples, []series{
		{"master", masterColor, false, func(s dynamo.Sample) float64 { return float64(s.MasterOut) }},
		{"slave", slaveColor, false, func(s dynamo.Sample) float64 { return float64(s.SlaveOut) }},
	})
}

func linePlot(title, ylabel string, samples []dynamo.Sample, lines []series) (*plot.Plot, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("plot data invalid: no samples")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = ylabel
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.Add(plotter.NewGrid())

	for _, ln := range lines {
		pts := make(plotter.XYs, len(samples))
		for i, s := range samples {
			pts[i].X = s.T
			pts[i].Y = ln.value(s)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = ln.color
		if ln.dash {
			line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		}
		p.Add(line)
		p.Legend.Add(ln.name, line)
	}
	p.Legend.Top = true
	return p, nil
}

// WritePNG renders p at widthIn x heightIn inches.
func WritePNG(w io.Writer, p *plot.Plot, widthIn, heightIn float64) error {
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch),
		vgimg.UseDPI(150),
	)
	p.Draw(draw.New(c))

	bw := bufio.NewWriter(w)
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return bw.Flush()
}
