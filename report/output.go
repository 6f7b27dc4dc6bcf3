package report

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"bitbucket.org/stratsel/stratsel/sampler"
)

// WriteSamples writes chain states as tab separated values with a
// header line p1..pD.
func WriteSamples(w io.Writer, c *sampler.Chain) error {
	bw := bufio.NewWriter(w)
	for d := 0; d < c.D; d++ {
		if d != 0 {
			bw.WriteByte('\t')
		}
		bw.WriteString("p" + strconv.Itoa(d+1))
	}
	bw.WriteByte('\n')
	for i := 0; i < c.Len(); i++ {
		for d, v := range c.Row(i) {
			if d != 0 {
				bw.WriteByte('\t')
			}
			bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// SaveSamples writes chain states to a file, gzip compressed if the
// name ends with .gz.
func SaveSamples(fn string, c *sampler.Chain) (err error) {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if !strings.HasSuffix(fn, ".gz") {
		return WriteSamples(f, c)
	}
	zw := gzip.NewWriter(f)
	if err = WriteSamples(zw, c); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// TracePlot saves a trace plot of all parameters (value by
// iteration) to a file; the format follows the extension.
func TracePlot(fn string, c *sampler.Chain) error {
	p := plot.New()
	p.Title.Text = "Trace"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "value"

	lines := make([]interface{}, 0, 2*c.D)
	for d := 0; d < c.D; d++ {
		pts := make(plotter.XYs, c.Len())
		for i := range pts {
			pts[i].X = float64(i)
			pts[i].Y = c.Row(i)[d]
		}
		lines = append(lines, "p"+strconv.Itoa(d+1), pts)
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 4*vg.Inch, fn)
}

// Histogram saves a histogram of parameter d.
func Histogram(fn string, c *sampler.Chain, d, bins int) error {
	p := plot.New()
	p.Title.Text = "p" + strconv.Itoa(d+1)

	vals := make(plotter.Values, c.Len())
	for i := range vals {
		vals[i] = c.Row(i)[d]
	}
	h, err := plotter.NewHist(vals, bins)
	if err != nil {
		return err
	}
	h.Normalize(1)
	p.Add(h)
	return p.Save(4*vg.Inch, 4*vg.Inch, fn)
}
