package main

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const histogramBins = 20

// writeHistogram saves a histogram of the residuals. The image format follows the extension.
func writeHistogram(path, title string, residuals []float64) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "residual"
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(plotter.Values(residuals), histogramBins)
	if err != nil {
		return errors.Wrap(err, "cannot bin residuals")
	}
	p.Add(h)
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
