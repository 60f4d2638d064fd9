// Package heuristic scores accounts on seven coarse support-load components.
// It needs no churn history, so a risk value exists for every matched account
// even before a signature can be learned.
package heuristic

import (
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/godilite/churnradar/internal/repository/models"
)

const (
	day         = 24 * time.Hour
	recentDays  = 30
	horizonDays = 90
)

// Weights are the per-component shares of the overall score.
type Weights struct {
	Volume     float64 `yaml:"volume"`
	Escalation float64 `yaml:"escalation"`
	Sentiment  float64 `yaml:"sentiment"`
	Velocity   float64 `yaml:"velocity"`
	Resolution float64 `yaml:"resolution"`
	Breadth    float64 `yaml:"breadth"`
	Recency    float64 `yaml:"recency"`
}

func DefaultWeights() Weights {
	return Weights{
		Volume:     0.20,
		Escalation: 0.20,
		Sentiment:  0.15,
		Velocity:   0.20,
		Resolution: 0.10,
		Breadth:    0.10,
		Recency:    0.05,
	}
}

func (w Weights) total() float64 {
	return w.Volume + w.Escalation + w.Sentiment + w.Velocity + w.Resolution + w.Breadth + w.Recency
}

// Subject is one account and the tickets of its linked organization covering
// at least the last 90 days.
type Subject struct {
	AccountID string
	Tickets   []models.Ticket
}

// Fleet holds the population statistics components are measured against.
type Fleet struct {
	MedianTickets30d  float64
	MeanResolutionHrs float64
}

type Scorer struct {
	weights    Weights
	thresholds models.RiskThresholds
}

func NewScorer(weights Weights, thresholds models.RiskThresholds) *Scorer {
	return &Scorer{weights: weights, thresholds: thresholds}
}

type activity struct {
	tickets30d      int
	tickets90d      int
	escalations90d  int
	rated90d        int
	bad90d          int
	open            int
	categories      int
	resolutionHours float64
	resolved        int
	daysSinceLast   int
}

func summarize(tickets []models.Ticket, now time.Time) activity {
	var a activity
	recentStart := now.Add(-recentDays * day)
	horizonStart := now.Add(-horizonDays * day)
	categories := make(map[string]struct{})
	var last time.Time

	for _, t := range tickets {
		if t.CreatedAt.After(now) {
			continue
		}
		if t.CreatedAt.After(last) {
			last = t.CreatedAt
		}
		if t.UnresolvedAt(now) {
			a.open++
		}
		if t.CreatedAt.Before(horizonStart) {
			continue
		}
		a.tickets90d++
		if t.CreatedAt.After(recentStart) {
			a.tickets30d++
		}
		if t.Escalated || t.Type == models.TicketTypeEscalation {
			a.escalations90d++
		}
		switch t.Satisfaction {
		case models.SatisfactionBad:
			a.bad90d++
			a.rated90d++
		case models.SatisfactionGood:
			a.rated90d++
		}
		if t.Category != "" {
			categories[t.Category] = struct{}{}
		}
		if t.ResolvedAt != nil && !t.ResolvedAt.After(now) {
			a.resolutionHours += t.ResolvedAt.Sub(t.CreatedAt).Hours()
			a.resolved++
		}
	}
	a.categories = len(categories)
	a.daysSinceLast = -1
	if !last.IsZero() {
		a.daysSinceLast = int(now.Sub(last) / day)
	}
	return a
}

func (a activity) avgResolutionHours() float64 {
	if a.resolved == 0 {
		return 0
	}
	return a.resolutionHours / float64(a.resolved)
}

// FleetStats computes the median 30-day ticket count over all subjects and
// the mean resolution time over subjects with at least one resolved ticket.
func FleetStats(subjects []Subject, now time.Time) Fleet {
	counts := make(stats.Float64Data, 0, len(subjects))
	resolution := make(stats.Float64Data, 0, len(subjects))
	for _, s := range subjects {
		a := summarize(s.Tickets, now)
		counts = append(counts, float64(a.tickets30d))
		if a.resolved > 0 {
			resolution = append(resolution, a.avgResolutionHours())
		}
	}

	var f Fleet
	if len(counts) > 0 {
		f.MedianTickets30d, _ = stats.Median(counts)
	}
	if len(resolution) > 0 {
		f.MeanResolutionHrs, _ = stats.Mean(resolution)
	}
	return f
}

// ScoreAll scores every subject against statistics of the whole population.
func (s *Scorer) ScoreAll(subjects []Subject, now time.Time) []models.RiskScore {
	fleet := FleetStats(subjects, now)
	out := make([]models.RiskScore, 0, len(subjects))
	for _, subj := range subjects {
		out = append(out, s.Score(subj, fleet, now))
	}
	return out
}

// Score computes one account's components relative to fleet.
func (s *Scorer) Score(subj Subject, fleet Fleet, now time.Time) models.RiskScore {
	a := summarize(subj.Tickets, now)

	volumeRatio := float64(a.tickets30d) / math.Max(fleet.MedianTickets30d, 1)
	escalationRate := ratio(a.escalations90d, a.tickets90d)
	badRate := ratio(a.bad90d, a.rated90d)
	acceleration := 0.0
	if a.tickets90d > 0 {
		acceleration = float64(a.tickets30d) / (float64(a.tickets90d) / 3)
	}
	resolutionRatio := 0.0
	if fleet.MeanResolutionHrs > 0 && a.resolved > 0 {
		resolutionRatio = a.avgResolutionHours() / fleet.MeanResolutionHrs
	}

	rs := models.RiskScore{
		AccountID:           subj.AccountID,
		VolumeScore:         tier(volumeRatio, volumeTiers),
		EscalationScore:     tier(escalationRate, escalationTiers),
		SentimentScore:      tier(badRate, sentimentTiers),
		VelocityScore:       tier(acceleration, velocityTiers),
		ResolutionScore:     tier(resolutionRatio, resolutionTiers),
		BreadthScore:        tier(float64(a.categories), breadthTiers),
		RecencyScore:        recencyScore(a),
		Tickets30d:          a.tickets30d,
		Tickets90d:          a.tickets90d,
		Escalations90d:      a.escalations90d,
		BadSatisfaction90d:  a.bad90d,
		OpenTickets:         a.open,
		DaysSinceLastTicket: a.daysSinceLast,
		ScoredAt:            now,
	}

	w := s.weights
	weighted := w.Volume*rs.VolumeScore +
		w.Escalation*rs.EscalationScore +
		w.Sentiment*rs.SentimentScore +
		w.Velocity*rs.VelocityScore +
		w.Resolution*rs.ResolutionScore +
		w.Breadth*rs.BreadthScore +
		w.Recency*rs.RecencyScore
	if total := w.total(); total > 0 {
		rs.Overall = weighted / total
	}
	rs.RiskLevel = s.thresholds.Level(rs.Overall)

	if rs.VolumeScore >= 50 {
		rs.RiskFactors = append(rs.RiskFactors, fmt.Sprintf("ticket volume %.1fx fleet median (%d tickets in 30 days)", volumeRatio, a.tickets30d))
	}
	if rs.EscalationScore >= 50 {
		rs.RiskFactors = append(rs.RiskFactors, fmt.Sprintf("%.0f%% of tickets escalated in 90 days", escalationRate*100))
	}
	if rs.SentimentScore >= 50 {
		rs.RiskFactors = append(rs.RiskFactors, fmt.Sprintf("%d of %d satisfaction ratings bad in 90 days", a.bad90d, a.rated90d))
	}
	if rs.VelocityScore >= 50 {
		rs.RiskFactors = append(rs.RiskFactors, fmt.Sprintf("ticket rate up %.1fx vs 90-day average", acceleration))
	}
	if rs.ResolutionScore >= 50 {
		rs.RiskFactors = append(rs.RiskFactors, fmt.Sprintf("resolution time %.1fx fleet average", resolutionRatio))
	}
	if rs.BreadthScore >= 50 {
		rs.RiskFactors = append(rs.RiskFactors, fmt.Sprintf("issues span %d categories", a.categories))
	}
	if rs.RecencyScore >= 50 {
		if a.open > 0 {
			rs.RiskFactors = append(rs.RiskFactors, fmt.Sprintf("%d tickets currently open", a.open))
		} else {
			rs.RiskFactors = append(rs.RiskFactors, fmt.Sprintf("last ticket %d days ago", a.daysSinceLast))
		}
	}
	return rs
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
