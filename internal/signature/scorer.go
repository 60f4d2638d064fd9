package signature

import (
	"fmt"
	"math"
	"sort"

	"github.com/godilite/churnradar/internal/features"
	"github.com/godilite/churnradar/internal/repository/models"
)

// Result is the outcome of scoring one feature vector against a signature.
type Result struct {
	Score          float64
	RiskLevel      string
	MatchedSignals []models.MatchedSignal
	Confidence     string
}

// Score interpolates every shared feature between the active mean (0) and the
// churned mean (100) and returns the signature-weighted average.
func Score(vector *features.Vector, sig *models.Signature, thresholds models.RiskThresholds) Result {
	res := Result{RiskLevel: models.RiskLow, Confidence: models.ConfidenceLow}
	if vector == nil || sig == nil {
		return res
	}

	var weighted, totalWeight float64
	for _, f := range sig.Features {
		value, ok := vector.Get(f.Name)
		if !ok {
			continue
		}
		sub := subScore(value, f)
		weighted += f.Weight * sub
		totalWeight += f.Weight

		if fires(value, f) {
			res.MatchedSignals = append(res.MatchedSignals, models.MatchedSignal{
				Feature:     f.Name,
				Value:       value,
				SubScore:    sub,
				Explanation: explain(value, f),
			})
		}
	}

	if totalWeight > 0 {
		res.Score = weighted / totalWeight
	}
	res.RiskLevel = thresholds.Level(res.Score)
	res.Confidence = confidence(vector)

	sort.SliceStable(res.MatchedSignals, func(i, j int) bool {
		return res.MatchedSignals[i].SubScore > res.MatchedSignals[j].SubScore
	})
	return res
}

func subScore(value float64, f models.SignatureFeature) float64 {
	span := f.ChurnedMean - f.ActiveMean
	if span == 0 {
		return 0
	}
	return clamp((value-f.ActiveMean)/span*100, 0, 100)
}

func fires(value float64, f models.SignatureFeature) bool {
	if f.Separation <= 0 {
		return false
	}
	if f.Direction == models.LowerMeansRisk {
		return value <= f.Threshold
	}
	return value >= f.Threshold
}

func explain(value float64, f models.SignatureFeature) string {
	return fmt.Sprintf("%s is %.2f (churned avg %.2f, active avg %.2f)",
		f.Name, value, f.ChurnedMean, f.ActiveMean)
}

func confidence(vector *features.Vector) string {
	count, _ := vector.Get(features.TicketCount)
	switch {
	case count >= 10:
		return models.ConfidenceHigh
	case count >= 5:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
