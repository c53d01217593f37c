package report

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/armtune/tuner-core/pkg/models"
)

// PlotResponse renders one trial's response curve and the set-point
// line to a PNG. Plotting is best effort: callers log failures and
// move on, the trial itself is already persisted.
func PlotResponse(path string, trial *models.Trial, dumpRateMs int) error {
	if len(trial.Series) == 0 {
		return fmt.Errorf("trial %d has no series to plot", trial.ID)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Trial %d %s", trial.ID, trial.Gains)
	p.X.Label.Text = "time (ms)"
	p.Y.Label.Text = "angle"

	response := make(plotter.XYs, len(trial.Series))
	for i, v := range trial.Series {
		response[i].X = float64((i + 1) * dumpRateMs)
		response[i].Y = v
	}
	line, err := plotter.NewLine(response)
	if err != nil {
		return fmt.Errorf("building response line: %w", err)
	}
	p.Add(line)
	p.Legend.Add("response", line)

	setPoint := plotter.XYs{
		{X: response[0].X, Y: trial.SetPoint},
		{X: response[len(response)-1].X, Y: trial.SetPoint},
	}
	spLine, err := plotter.NewLine(setPoint)
	if err != nil {
		return fmt.Errorf("building set-point line: %w", err)
	}
	spLine.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(spLine)
	p.Legend.Add("set point", spLine)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("saving plot: %w", err)
	}
	return nil
}
