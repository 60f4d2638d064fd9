package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/godilite/churnradar/internal/heuristic"
	"github.com/godilite/churnradar/internal/repository/models"
)

// RunHeuristicAnalysis scores every confirmed-matched active account on the
// seven heuristic components and replaces all stored risk scores.
func (s *ChurnService) RunHeuristicAnalysis(ctx context.Context) (*HeuristicReport, error) {
	started := time.Now()
	dbCtx, cancel := context.WithTimeout(ctx, passTimeout)
	defer cancel()

	matched, err := s.storage.ListMatchedAccounts(dbCtx)
	if err != nil {
		return nil, storageErr(err)
	}

	now := s.clock()
	subjects := make([]heuristic.Subject, 0, len(matched))
	values := make(map[string]decimal.Decimal, len(matched))
	for _, m := range matched {
		if m.Account.IsChurned() {
			continue
		}
		// Full history: open state and recency look past the 90-day counters.
		tickets, err := s.storage.AllTicketsForOrganization(dbCtx, m.OrganizationID)
		if err != nil {
			return nil, storageErr(err)
		}
		subjects = append(subjects, heuristic.Subject{AccountID: m.Account.ID, Tickets: tickets})
		values[m.Account.ID] = m.Account.Value
	}

	scorer := heuristic.NewScorer(s.settings.Weights, s.settings.RiskThresholds)
	fleet := heuristic.FleetStats(subjects, now)
	scores := make([]models.RiskScore, 0, len(subjects))
	for _, subj := range subjects {
		scores = append(scores, scorer.Score(subj, fleet, now))
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Overall > scores[j].Overall
	})

	if err := s.storage.ReplaceRiskScores(dbCtx, scores); err != nil {
		return nil, storageErr(err)
	}

	report := &HeuristicReport{
		ScoredAt:      now,
		Fleet:         fleet,
		Scores:        scores,
		CountsByLevel: emptyLevelCounts(),
		ValueAtRisk:   make(map[string]decimal.Decimal, 4),
	}
	for _, rs := range scores {
		report.CountsByLevel[rs.RiskLevel]++
		report.ValueAtRisk[rs.RiskLevel] = report.ValueAtRisk[rs.RiskLevel].Add(values[rs.AccountID])
	}

	s.logger.Info("heuristic pass complete",
		zap.Int("scored", len(scores)),
		zap.Int("critical", report.CountsByLevel[models.RiskCritical]),
		zap.Int("high", report.CountsByLevel[models.RiskHigh]),
		zap.Float64("median_tickets_30d", fleet.MedianTickets30d),
		zap.Duration("elapsed", time.Since(started)))

	return report, nil
}

func emptyLevelCounts() map[string]int {
	return map[string]int{
		models.RiskCritical: 0,
		models.RiskHigh:     0,
		models.RiskMedium:   0,
		models.RiskLow:      0,
	}
}
