package heuristic

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godilite/churnradar/internal/repository/models"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type ticketOpt func(*models.Ticket)

func resolvedAfter(h int) ticketOpt {
	return func(t *models.Ticket) {
		at := t.CreatedAt.Add(time.Duration(h) * time.Hour)
		t.ResolvedAt = &at
		t.Status = models.TicketStatusSolved
	}
}

func category(c string) ticketOpt { return func(t *models.Ticket) { t.Category = c } }

func rated(s string) ticketOpt { return func(t *models.Ticket) { t.Satisfaction = s } }

func escalated() ticketOpt { return func(t *models.Ticket) { t.Escalated = true } }

func ticket(daysAgo int, opts ...ticketOpt) models.Ticket {
	t := models.Ticket{
		ID:        fmt.Sprintf("t-%d-%d", daysAgo, len(opts)),
		CreatedAt: now.Add(-time.Duration(daysAgo) * day),
		Status:    models.TicketStatusOpen,
	}
	for _, o := range opts {
		o(&t)
	}
	return t
}

func fleet() []Subject {
	quiet := Subject{AccountID: "quiet", Tickets: []models.Ticket{
		ticket(40, resolvedAfter(5), category("billing"), rated(models.SatisfactionGood)),
		ticket(60, resolvedAfter(5), category("billing"), rated(models.SatisfactionGood)),
	}}
	normal := Subject{AccountID: "normal", Tickets: []models.Ticket{
		ticket(5, resolvedAfter(10), category("billing")),
		ticket(15, resolvedAfter(10), category("login")),
		ticket(45, resolvedAfter(10), category("billing")),
		ticket(75, resolvedAfter(10), category("login")),
	}}

	cats := []string{"billing", "login", "outage", "parts", "scheduling", "invoices"}
	hot := Subject{AccountID: "hot"}
	for i := 1; i <= 12; i++ {
		opts := []ticketOpt{resolvedAfter(20), category(cats[i%len(cats)])}
		if i%3 == 0 {
			opts = append(opts, escalated())
		}
		switch {
		case i <= 6:
			opts = append(opts, rated(models.SatisfactionBad))
		case i <= 8:
			opts = append(opts, rated(models.SatisfactionGood))
		}
		hot.Tickets = append(hot.Tickets, ticket(i, opts...))
	}
	return []Subject{quiet, normal, hot}
}

func byAccount(scores []models.RiskScore) map[string]models.RiskScore {
	out := make(map[string]models.RiskScore, len(scores))
	for _, s := range scores {
		out[s.AccountID] = s
	}
	return out
}

func TestTier(t *testing.T) {
	cases := []struct {
		name  string
		value float64
		steps []step
		want  float64
	}{
		{"volume top", 3, volumeTiers, 100},
		{"volume just below top", 2.99, volumeTiers, 75},
		{"volume at fleet median", 1, volumeTiers, 25},
		{"volume below median", 0.9, volumeTiers, 0},
		{"any escalation", 0.01, escalationTiers, 25},
		{"no escalation", 0, escalationTiers, 0},
		{"half bad", 0.5, sentimentTiers, 100},
		{"velocity steady", 1, velocityTiers, 25},
		{"velocity slowing", 0.5, velocityTiers, 0},
		{"single category", 1, breadthTiers, 0},
		{"six categories", 6, breadthTiers, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tier(tc.value, tc.steps))
		})
	}
}

func TestFleetStats(t *testing.T) {
	t.Run("population statistics", func(t *testing.T) {
		f := FleetStats(fleet(), now)
		assert.InDelta(t, 2.0, f.MedianTickets30d, 1e-9)
		assert.InDelta(t, 35.0/3, f.MeanResolutionHrs, 1e-9)
	})

	t.Run("empty population", func(t *testing.T) {
		f := FleetStats(nil, now)
		assert.Zero(t, f.MedianTickets30d)
		assert.Zero(t, f.MeanResolutionHrs)
	})
}

func TestScoreAll(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), models.DefaultRiskThresholds())
	scores := byAccount(scorer.ScoreAll(fleet(), now))
	require.Len(t, scores, 3)

	t.Run("hot account", func(t *testing.T) {
		hot := scores["hot"]
		assert.Equal(t, 100.0, hot.VolumeScore)
		assert.Equal(t, 100.0, hot.EscalationScore)
		assert.Equal(t, 100.0, hot.SentimentScore)
		assert.Equal(t, 100.0, hot.VelocityScore)
		assert.Equal(t, 75.0, hot.ResolutionScore)
		assert.Equal(t, 100.0, hot.BreadthScore)
		assert.Equal(t, 75.0, hot.RecencyScore)
		assert.InDelta(t, 96.25, hot.Overall, 1e-9)
		assert.Equal(t, models.RiskCritical, hot.RiskLevel)

		assert.Equal(t, 12, hot.Tickets30d)
		assert.Equal(t, 12, hot.Tickets90d)
		assert.Equal(t, 4, hot.Escalations90d)
		assert.Equal(t, 6, hot.BadSatisfaction90d)
		assert.Zero(t, hot.OpenTickets)
		assert.Equal(t, 1, hot.DaysSinceLastTicket)
		assert.Len(t, hot.RiskFactors, 7)
		assert.Contains(t, hot.RiskFactors, "issues span 6 categories")
		assert.Contains(t, hot.RiskFactors, "last ticket 1 days ago")
		assert.Equal(t, now, hot.ScoredAt)
	})

	t.Run("normal account", func(t *testing.T) {
		normal := scores["normal"]
		assert.Equal(t, 25.0, normal.VolumeScore)
		assert.Equal(t, 75.0, normal.VelocityScore)
		assert.Equal(t, 0.0, normal.ResolutionScore)
		assert.Equal(t, 25.0, normal.BreadthScore)
		assert.Equal(t, 75.0, normal.RecencyScore)
		assert.InDelta(t, 26.25, normal.Overall, 1e-9)
		assert.Equal(t, models.RiskMedium, normal.RiskLevel)
		assert.Len(t, normal.RiskFactors, 2)
	})

	t.Run("quiet account", func(t *testing.T) {
		quiet := scores["quiet"]
		assert.Equal(t, 25.0, quiet.RecencyScore)
		assert.InDelta(t, 1.25, quiet.Overall, 1e-9)
		assert.Equal(t, models.RiskLow, quiet.RiskLevel)
		assert.Equal(t, 40, quiet.DaysSinceLastTicket)
		assert.Empty(t, quiet.RiskFactors)
	})
}

func TestScore(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), models.DefaultRiskThresholds())

	t.Run("open ticket pins recency", func(t *testing.T) {
		subj := Subject{AccountID: "a", Tickets: []models.Ticket{ticket(200)}}
		rs := scorer.Score(subj, Fleet{}, now)

		assert.Equal(t, 100.0, rs.RecencyScore)
		assert.Equal(t, 1, rs.OpenTickets)
		assert.Zero(t, rs.Tickets90d)
		assert.Contains(t, rs.RiskFactors, "1 tickets currently open")
	})

	t.Run("no tickets", func(t *testing.T) {
		rs := scorer.Score(Subject{AccountID: "empty"}, Fleet{}, now)

		assert.Zero(t, rs.Overall)
		assert.Equal(t, -1, rs.DaysSinceLastTicket)
		assert.Equal(t, models.RiskLow, rs.RiskLevel)
		assert.Empty(t, rs.RiskFactors)
	})

	t.Run("zero fleet median falls back", func(t *testing.T) {
		subj := Subject{AccountID: "a", Tickets: []models.Ticket{
			ticket(1, resolvedAfter(1)), ticket(2, resolvedAfter(1)), ticket(3, resolvedAfter(1)),
		}}
		rs := scorer.Score(subj, Fleet{}, now)

		assert.Equal(t, 100.0, rs.VolumeScore)
		assert.Zero(t, rs.ResolutionScore)
		assert.False(t, math.IsNaN(rs.Overall))
	})

	t.Run("future tickets ignored", func(t *testing.T) {
		rs := scorer.Score(Subject{AccountID: "a", Tickets: []models.Ticket{ticket(-3)}}, Fleet{}, now)
		assert.Zero(t, rs.Tickets30d)
		assert.Equal(t, -1, rs.DaysSinceLastTicket)
	})

	t.Run("custom weights", func(t *testing.T) {
		only := NewScorer(Weights{Recency: 2}, models.DefaultRiskThresholds())
		rs := only.Score(Subject{AccountID: "a", Tickets: []models.Ticket{ticket(3, resolvedAfter(1))}}, Fleet{}, now)
		assert.InDelta(t, 75.0, rs.Overall, 1e-9)
		assert.Equal(t, models.RiskCritical, rs.RiskLevel)
	})

	t.Run("default weights sum to one", func(t *testing.T) {
		assert.InDelta(t, 1.0, DefaultWeights().total(), 1e-9)
	})
}
