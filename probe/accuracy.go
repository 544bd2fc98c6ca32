package probe

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AccuracyReport summarizes repeated measurements of one point.
type AccuracyReport struct {
	X, Y    float64
	Samples []float64

	Min, Max, Range float64
	Mean, Median    float64

	// StdDev is the sample standard deviation, zero for a single sample.
	StdDev float64
}

// Accuracy measures (x, y) n times and reports the spread. The probe is
// raised between measurements and stowed after the last.
func (p *Probe) Accuracy(ctx context.Context, x, y float64, n int, probeRelative bool) (*AccuracyReport, error) {
	if n < 1 {
		return nil, errors.New("need at least one sample")
	}

	rep := &AccuracyReport{X: x, Y: y, Samples: make([]float64, 0, n)}
	for i := range n {
		raise := Raise
		if i == n-1 {
			raise = LastStow
		}
		z, err := p.ProbeAt(ctx, Request{
			X:             x,
			Y:             y,
			Raise:         raise,
			ProbeRelative: probeRelative,
			SanityCheck:   true,
		})
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i+1, err)
		}
		rep.Samples = append(rep.Samples, z)
	}

	rep.Min = floats.Min(rep.Samples)
	rep.Max = floats.Max(rep.Samples)
	rep.Range = rep.Max - rep.Min
	if n == 1 {
		rep.Mean = rep.Samples[0]
	} else {
		rep.Mean, rep.StdDev = stat.MeanStdDev(rep.Samples, nil)
	}

	sorted := slices.Clone(rep.Samples)
	slices.Sort(sorted)
	rep.Median = median(sorted)

	p.log.Info("probe accuracy",
		"x", x, "y", y, "n", n,
		"mean", rep.Mean, "stddev", rep.StdDev,
		"min", rep.Min, "max", rep.Max, "range", rep.Range,
	)
	return rep, nil
}
