package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/godilite/churnradar/internal/features"
	"github.com/godilite/churnradar/internal/repository/models"
	"github.com/godilite/churnradar/internal/signature"
)

// activeSample is a matched, non-churned account with tickets in the window.
type activeSample struct {
	account models.Account
	vector  features.Vector
}

type population struct {
	holdouts []signature.Holdout
	active   []activeSample
	// unscored counts active accounts with no tickets in the window.
	unscored int
}

func (p population) churnedVectors(excluded map[string]bool) []features.Vector {
	out := make([]features.Vector, 0, len(p.holdouts))
	for _, h := range p.holdouts {
		if excluded[h.AccountID] || h.AllTime == nil {
			continue
		}
		out = append(out, *h.AllTime)
	}
	return out
}

func (p population) activeVectors() []features.Vector {
	out := make([]features.Vector, 0, len(p.active))
	for _, a := range p.active {
		out = append(out, a.vector)
	}
	return out
}

// collect loads churned all-time vectors, churn-date vectors and trailing
// active vectors for every confirmed-matched account.
func (s *ChurnService) collect(ctx context.Context, windowDays int) (population, error) {
	dbCtx, cancel := context.WithTimeout(ctx, passTimeout)
	defer cancel()

	matched, err := s.storage.ListMatchedAccounts(dbCtx)
	if err != nil {
		return population{}, storageErr(err)
	}

	now := s.clock()
	var pop population
	for _, m := range matched {
		if m.Account.IsChurned() {
			allTime, err := s.allTimeVector(dbCtx, m.OrganizationID)
			if err != nil {
				return population{}, err
			}
			if allTime == nil {
				continue
			}
			h := signature.Holdout{AccountID: m.Account.ID, AllTime: allTime}
			if m.Account.ChurnDate != nil {
				if h.AtChurn, err = s.windowVector(dbCtx, m.OrganizationID, *m.Account.ChurnDate, windowDays); err != nil {
					return population{}, err
				}
			}
			pop.holdouts = append(pop.holdouts, h)
			continue
		}

		v, err := s.windowVector(dbCtx, m.OrganizationID, now, windowDays)
		if err != nil {
			return population{}, err
		}
		if v == nil {
			pop.unscored++
			continue
		}
		pop.active = append(pop.active, activeSample{account: m.Account, vector: *v})
	}
	return pop, nil
}

func (s *ChurnService) window(windowDays int) int {
	if windowDays <= 0 {
		return s.settings.WindowDays
	}
	return windowDays
}

// BuildSignature learns a signature from every usable churned account not in
// excluded. It is persisted only when excluded is empty. A nil signature with
// a nil error means no churned account had any tickets.
func (s *ChurnService) BuildSignature(ctx context.Context, windowDays int, excluded []string) (*models.Signature, error) {
	windowDays = s.window(windowDays)
	pop, err := s.collect(ctx, windowDays)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}

	sig := signature.Build(pop.churnedVectors(skip), pop.activeVectors(), windowDays, s.clock())
	if sig == nil {
		s.logger.Info("no signature buildable", zap.Int("window_days", windowDays))
		return nil, nil
	}
	if len(excluded) == 0 {
		if err := s.saveSignature(ctx, sig); err != nil {
			return nil, err
		}
	}
	return sig, nil
}

func (s *ChurnService) saveSignature(ctx context.Context, sig *models.Signature) error {
	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := s.storage.SaveSignature(dbCtx, sig); err != nil {
		return storageErr(err)
	}
	s.logger.Info("signature stored",
		zap.String("signature_id", sig.ID.String()),
		zap.Int("window_days", sig.WindowDays),
		zap.Int("churned", sig.ChurnedCount),
		zap.Int("active", sig.ActiveCount))
	return nil
}

// CrossValidate runs leave-one-out validation over the churned population.
// It returns signature.ErrInsufficientData when too few churned accounts have
// tickets in the window before their churn date.
func (s *ChurnService) CrossValidate(ctx context.Context, windowDays int) (*signature.ValidationReport, error) {
	windowDays = s.window(windowDays)
	pop, err := s.collect(ctx, windowDays)
	if err != nil {
		return nil, err
	}
	return s.validate(pop, windowDays)
}

func (s *ChurnService) validate(pop population, windowDays int) (*signature.ValidationReport, error) {
	report, err := signature.CrossValidate(pop.holdouts, pop.activeVectors(), windowDays, s.settings.RiskThresholds, s.clock())
	if err != nil {
		return nil, err
	}
	s.logger.Info("cross-validation complete",
		zap.Int("holdouts", report.Holdouts),
		zap.Float64("recall", report.Recall),
		zap.Float64("precision", report.Precision),
		zap.Float64("f1", report.F1))
	return report, nil
}

// RunSignatureAnalysis scores every active matched account against the newest
// fresh signature, building one when none qualifies or when opts.Rebuild is
// set. With fewer usable churned accounts than the configured minimum it
// skips, optionally running the heuristic pass instead.
func (s *ChurnService) RunSignatureAnalysis(ctx context.Context, windowDays int, opts SignatureOptions) (*SignatureReport, error) {
	windowDays = s.window(windowDays)
	pop, err := s.collect(ctx, windowDays)
	if err != nil {
		return nil, err
	}

	report := &SignatureReport{
		WindowDays:     windowDays,
		ChurnedSamples: len(pop.holdouts),
		ActiveSamples:  len(pop.active),
		Unscored:       pop.unscored,
		CountsByLevel:  emptyLevelCounts(),
	}

	if len(pop.holdouts) < s.settings.MinChurned || len(pop.holdouts) == 0 {
		report.Skipped = true
		report.Reason = fmt.Sprintf("%d churned accounts with tickets, need %d", len(pop.holdouts), s.settings.MinChurned)
		s.logger.Warn("signature analysis skipped",
			zap.Int("churned", len(pop.holdouts)),
			zap.Int("min_churned", s.settings.MinChurned),
			zap.Bool("heuristic_fallback", s.settings.HeuristicFallback))

		if s.settings.HeuristicFallback {
			if report.Heuristic, err = s.RunHeuristicAnalysis(ctx); err != nil {
				return nil, err
			}
		}
		return report, nil
	}

	now := s.clock()
	var sig *models.Signature
	if !opts.Rebuild {
		dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
		sig, err = s.storage.LatestSignature(dbCtx, windowDays, now.Add(-s.settings.SignatureMaxAge))
		cancel()
		if err != nil {
			return nil, storageErr(err)
		}
	}
	if sig == nil {
		sig = signature.Build(pop.churnedVectors(nil), pop.activeVectors(), windowDays, now)
		report.Rebuilt = true
	}
	report.Signature = sig

	predictions := make([]models.ChurnPrediction, 0, len(pop.active))
	for i := range pop.active {
		res := signature.Score(&pop.active[i].vector, sig, s.settings.RiskThresholds)
		predictions = append(predictions, models.ChurnPrediction{
			AccountID:      pop.active[i].account.ID,
			SignatureID:    sig.ID,
			Score:          res.Score,
			RiskLevel:      res.RiskLevel,
			MatchedSignals: res.MatchedSignals,
			Confidence:     res.Confidence,
			ScoredAt:       now,
		})
		report.CountsByLevel[res.RiskLevel]++
	}
	sort.SliceStable(predictions, func(i, j int) bool {
		return predictions[i].Score > predictions[j].Score
	})

	dbCtx, cancel := context.WithTimeout(ctx, passTimeout)
	defer cancel()
	if report.Rebuilt {
		err = s.storage.SaveSignatureWithPredictions(dbCtx, sig, predictions)
	} else {
		err = s.storage.ReplacePredictions(dbCtx, predictions)
	}
	if err != nil {
		return nil, storageErr(err)
	}
	report.Predictions = predictions

	s.logger.Info("signature analysis complete",
		zap.String("signature_id", sig.ID.String()),
		zap.Bool("rebuilt", report.Rebuilt),
		zap.Int("scored", len(predictions)),
		zap.Int("unscored", pop.unscored),
		zap.Int("critical", report.CountsByLevel[models.RiskCritical]),
		zap.Int("high", report.CountsByLevel[models.RiskHigh]))

	if opts.Validate {
		report.Validation, err = s.validate(pop, windowDays)
		switch {
		case errors.Is(err, signature.ErrInsufficientData):
			s.logger.Warn("cross-validation skipped", zap.Error(err))
		case err != nil:
			return nil, err
		}
	}
	return report, nil
}
