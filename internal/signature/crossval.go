package signature

import (
	"errors"
	"time"

	"github.com/godilite/churnradar/internal/features"
	"github.com/godilite/churnradar/internal/repository/models"
)

// MinHoldouts is the smallest number of usable churned samples a
// leave-one-out run accepts.
const MinHoldouts = 3

var ErrInsufficientData = errors.New("insufficient churned samples for cross-validation")

// Holdout is one churned account's training and test vectors. AllTime feeds
// signature construction; AtChurn is the windowed vector at the churn date
// and is what the held-out signature must recover.
type Holdout struct {
	AccountID string
	AllTime   *features.Vector
	AtChurn   *features.Vector
}

// Miss is a churned account the held-out signature failed to flag.
type Miss struct {
	AccountID string  `json:"account_id"`
	Score     float64 `json:"score"`
	RiskLevel string  `json:"risk_level"`
}

// ValidationReport holds leave-one-out metrics. Recall, Precision and F1 are
// percentages in [0,100].
type ValidationReport struct {
	WindowDays     int     `json:"window_days"`
	Holdouts       int     `json:"holdouts"`
	ActiveScored   int     `json:"active_scored"`
	TruePositives  int     `json:"true_positives"`
	FalseNegatives int     `json:"false_negatives"`
	FalsePositives int     `json:"false_positives"`
	Recall         float64 `json:"recall"`
	Precision      float64 `json:"precision"`
	F1             float64 `json:"f1"`
	Missed         []Miss  `json:"missed"`
}

// CrossValidate rebuilds the signature once per usable holdout with that
// holdout excluded, and checks whether the rebuilt signature rates it high or
// critical. Active vectors are scored against the full signature to count
// false positives.
func CrossValidate(holdouts []Holdout, active []features.Vector, windowDays int, thresholds models.RiskThresholds, now time.Time) (*ValidationReport, error) {
	usable := 0
	for _, h := range holdouts {
		if h.AtChurn != nil {
			usable++
		}
	}
	if usable < MinHoldouts {
		return nil, ErrInsufficientData
	}

	report := &ValidationReport{WindowDays: windowDays, Holdouts: usable}

	for i, h := range holdouts {
		if h.AtChurn == nil {
			continue
		}
		sig := Build(trainingSet(holdouts, i), active, windowDays, now)
		res := Score(h.AtChurn, sig, thresholds)
		if sig != nil && models.Elevated(res.RiskLevel) {
			report.TruePositives++
			continue
		}
		report.FalseNegatives++
		report.Missed = append(report.Missed, Miss{
			AccountID: h.AccountID,
			Score:     res.Score,
			RiskLevel: res.RiskLevel,
		})
	}

	if full := Build(trainingSet(holdouts, -1), active, windowDays, now); full != nil {
		for i := range active {
			report.ActiveScored++
			if models.Elevated(Score(&active[i], full, thresholds).RiskLevel) {
				report.FalsePositives++
			}
		}
	}

	report.Recall = percent(report.TruePositives, report.TruePositives+report.FalseNegatives)
	report.Precision = percent(report.TruePositives, report.TruePositives+report.FalsePositives)
	if sum := report.Recall + report.Precision; sum > 0 {
		report.F1 = 2 * report.Recall * report.Precision / sum
	}
	return report, nil
}

// trainingSet returns the all-time vectors of every holdout except skip.
func trainingSet(holdouts []Holdout, skip int) []features.Vector {
	out := make([]features.Vector, 0, len(holdouts))
	for i, h := range holdouts {
		if i == skip || h.AllTime == nil {
			continue
		}
		out = append(out, *h.AllTime)
	}
	return out
}

func percent(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}
