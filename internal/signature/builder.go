// Package signature learns which support patterns preceded churn and scores
// accounts against that learned pattern.
package signature

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"github.com/godilite/churnradar/internal/features"
	"github.com/godilite/churnradar/internal/repository/models"
)

type summary struct {
	mean, median, stddev float64
	n                    int
}

func summarize(values []float64) summary {
	s := summary{n: len(values)}
	if s.n == 0 {
		return s
	}
	data := stats.Float64Data(values)
	s.mean, _ = stats.Mean(data)
	s.median, _ = stats.Median(data)
	if s.n > 1 {
		s.stddev, _ = stats.StandardDeviationSample(data)
	}
	return s
}

// pooledStdDev combines two sample standard deviations weighted by their
// degrees of freedom. It is 0 when fewer than two degrees of freedom exist.
func pooledStdDev(a, b summary) float64 {
	dof := a.n + b.n - 2
	if dof <= 0 {
		return 0
	}
	return math.Sqrt((dof1(a)*a.stddev*a.stddev + dof1(b)*b.stddev*b.stddev) / float64(dof))
}

func dof1(s summary) float64 {
	return math.Max(float64(s.n-1), 0)
}

// Build compares churned and active feature distributions dimension by
// dimension. It returns nil when no churned vector is available.
func Build(churned, active []features.Vector, windowDays int, now time.Time) *models.Signature {
	if len(churned) == 0 {
		return nil
	}

	sig := &models.Signature{
		ID:           uuid.New(),
		CreatedAt:    now,
		WindowDays:   windowDays,
		ChurnedCount: len(churned),
		ActiveCount:  len(active),
		Features:     make([]models.SignatureFeature, 0, len(features.Names)),
	}

	totalSeparation := 0.0
	for _, name := range features.Names {
		c := summarize(column(churned, name))
		a := summarize(column(active, name))

		f := models.SignatureFeature{
			Name:          name,
			ChurnedMean:   c.mean,
			ChurnedMedian: c.median,
			ChurnedStdDev: c.stddev,
			ActiveMean:    a.mean,
			ActiveMedian:  a.median,
			ActiveStdDev:  a.stddev,
			Threshold:     (c.mean + a.mean) / 2,
			Direction:     models.HigherMeansRisk,
		}
		if c.mean < a.mean {
			f.Direction = models.LowerMeansRisk
		}
		if pooled := pooledStdDev(c, a); pooled > 0 {
			f.Separation = math.Abs(c.mean-a.mean) / pooled
		}
		totalSeparation += f.Separation
		sig.Features = append(sig.Features, f)
	}

	for i := range sig.Features {
		if totalSeparation > 0 {
			sig.Features[i].Weight = sig.Features[i].Separation / totalSeparation
		} else {
			sig.Features[i].Weight = 1 / float64(len(sig.Features))
		}
	}
	return sig
}

func column(vectors []features.Vector, name string) []float64 {
	out := make([]float64, 0, len(vectors))
	for i := range vectors {
		if v, ok := vectors[i].Get(name); ok {
			out = append(out, v)
		}
	}
	return out
}
