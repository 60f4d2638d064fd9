package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/godilite/churnradar/internal/repository/models"
	"github.com/google/uuid"
)

// SaveSignature persists a signature and its per-feature rows atomically.
func (r *ChurnRepository) SaveSignature(ctx context.Context, sig *models.Signature) error {
	return r.withTx(ctx, "SaveSignature", func(tx *sql.Tx) error {
		return insertSignature(ctx, tx, sig)
	})
}

// SaveSignatureWithPredictions stores a new signature and swaps in the
// predictions scored against it in one transaction, so stored predictions
// never reference a signature that failed to persist or vice versa.
func (r *ChurnRepository) SaveSignatureWithPredictions(ctx context.Context, sig *models.Signature, predictions []models.ChurnPrediction) error {
	return r.withTx(ctx, "SaveSignatureWithPredictions", func(tx *sql.Tx) error {
		if err := insertSignature(ctx, tx, sig); err != nil {
			return err
		}
		return replacePredictions(ctx, tx, predictions)
	})
}

func insertSignature(ctx context.Context, e execer, sig *models.Signature) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO churn_signatures (id, created_at, window_days, churned_count, active_count)
		VALUES (?, ?, ?, ?, ?)
	`, sig.ID.String(), formatTime(sig.CreatedAt), sig.WindowDays, sig.ChurnedCount, sig.ActiveCount)
	if err != nil {
		return fmt.Errorf("insert signature: %w", err)
	}
	for i, f := range sig.Features {
		_, err := e.ExecContext(ctx, `
			INSERT INTO signature_features (signature_id, position, name,
				churned_mean, churned_median, churned_stddev,
				active_mean, active_median, active_stddev,
				separation, direction, threshold, weight)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sig.ID.String(), i, f.Name,
			f.ChurnedMean, f.ChurnedMedian, f.ChurnedStdDev,
			f.ActiveMean, f.ActiveMedian, f.ActiveStdDev,
			f.Separation, f.Direction, f.Threshold, f.Weight)
		if err != nil {
			return fmt.Errorf("insert signature feature %s: %w", f.Name, err)
		}
	}
	return nil
}

// LatestSignature returns the newest signature for the window created at or
// after notBefore, or nil when none qualifies.
func (r *ChurnRepository) LatestSignature(ctx context.Context, windowDays int, notBefore time.Time) (*models.Signature, error) {
	var sig models.Signature
	var id, createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, window_days, churned_count, active_count
		FROM churn_signatures
		WHERE window_days = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT 1
	`, windowDays, formatTime(notBefore)).Scan(&id, &createdAt, &sig.WindowDays, &sig.ChurnedCount, &sig.ActiveCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query LatestSignature: %w", err)
	}
	if sig.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse signature id %q: %w", id, err)
	}
	if sig.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse signature created_at: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT name, churned_mean, churned_median, churned_stddev,
			active_mean, active_median, active_stddev,
			separation, direction, threshold, weight
		FROM signature_features
		WHERE signature_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query signature features: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f models.SignatureFeature
		if err := rows.Scan(&f.Name, &f.ChurnedMean, &f.ChurnedMedian, &f.ChurnedStdDev,
			&f.ActiveMean, &f.ActiveMedian, &f.ActiveStdDev,
			&f.Separation, &f.Direction, &f.Threshold, &f.Weight); err != nil {
			return nil, fmt.Errorf("scan signature feature: %w", err)
		}
		sig.Features = append(sig.Features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signature features: %w", err)
	}
	return &sig, nil
}

// ReplacePredictions swaps the whole prediction set in one transaction.
func (r *ChurnRepository) ReplacePredictions(ctx context.Context, predictions []models.ChurnPrediction) error {
	return r.withTx(ctx, "ReplacePredictions", func(tx *sql.Tx) error {
		return replacePredictions(ctx, tx, predictions)
	})
}

func replacePredictions(ctx context.Context, e execer, predictions []models.ChurnPrediction) error {
	if _, err := e.ExecContext(ctx, `DELETE FROM churn_predictions`); err != nil {
		return fmt.Errorf("clear predictions: %w", err)
	}
	for _, p := range predictions {
		signals, err := encodeJSON(p.MatchedSignals)
		if err != nil {
			return fmt.Errorf("encode matched signals for %s: %w", p.AccountID, err)
		}
		_, err = e.ExecContext(ctx, `
			INSERT INTO churn_predictions (account_id, signature_id, score, risk_level,
				matched_signals, confidence, scored_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.AccountID, p.SignatureID.String(), p.Score, p.RiskLevel, signals, p.Confidence, formatTime(p.ScoredAt))
		if err != nil {
			return fmt.Errorf("insert prediction %s: %w", p.AccountID, err)
		}
	}
	return nil
}

func (r *ChurnRepository) ListPredictions(ctx context.Context) ([]models.ChurnPrediction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, signature_id, score, risk_level, matched_signals, confidence, scored_at
		FROM churn_predictions
		ORDER BY score DESC, account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query ListPredictions: %w", err)
	}
	defer rows.Close()

	var out []models.ChurnPrediction
	for rows.Next() {
		var p models.ChurnPrediction
		var sigID, signals, scoredAt string
		if err := rows.Scan(&p.AccountID, &sigID, &p.Score, &p.RiskLevel, &signals, &p.Confidence, &scoredAt); err != nil {
			return nil, fmt.Errorf("scan ListPredictions row: %w", err)
		}
		p.SignatureID, _ = uuid.Parse(sigID)
		p.ScoredAt, _ = parseTime(scoredAt)
		r.decodeJSON("matched_signals", p.AccountID, signals, &p.MatchedSignals)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListPredictions: %w", err)
	}
	return out, nil
}

// ReplaceRiskScores swaps the whole heuristic result set in one transaction.
func (r *ChurnRepository) ReplaceRiskScores(ctx context.Context, scores []models.RiskScore) error {
	return r.withTx(ctx, "ReplaceRiskScores", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM risk_scores`); err != nil {
			return fmt.Errorf("clear risk scores: %w", err)
		}
		for _, s := range scores {
			factors, err := encodeJSON(s.RiskFactors)
			if err != nil {
				return fmt.Errorf("encode risk factors for %s: %w", s.AccountID, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO risk_scores (account_id, volume_score, escalation_score, sentiment_score,
					velocity_score, resolution_score, breadth_score, recency_score, overall, risk_level,
					tickets_30d, tickets_90d, escalations_90d, bad_satisfaction_90d, open_tickets,
					days_since_last_ticket, risk_factors, scored_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, s.AccountID, s.VolumeScore, s.EscalationScore, s.SentimentScore,
				s.VelocityScore, s.ResolutionScore, s.BreadthScore, s.RecencyScore, s.Overall, s.RiskLevel,
				s.Tickets30d, s.Tickets90d, s.Escalations90d, s.BadSatisfaction90d, s.OpenTickets,
				s.DaysSinceLastTicket, factors, formatTime(s.ScoredAt))
			if err != nil {
				return fmt.Errorf("insert risk score %s: %w", s.AccountID, err)
			}
		}
		return nil
	})
}

func (r *ChurnRepository) ListRiskScores(ctx context.Context) ([]models.RiskScore, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, volume_score, escalation_score, sentiment_score,
			velocity_score, resolution_score, breadth_score, recency_score, overall, risk_level,
			tickets_30d, tickets_90d, escalations_90d, bad_satisfaction_90d, open_tickets,
			days_since_last_ticket, risk_factors, scored_at
		FROM risk_scores
		ORDER BY overall DESC, account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query ListRiskScores: %w", err)
	}
	defer rows.Close()

	var out []models.RiskScore
	for rows.Next() {
		var s models.RiskScore
		var factors, scoredAt string
		if err := rows.Scan(&s.AccountID, &s.VolumeScore, &s.EscalationScore, &s.SentimentScore,
			&s.VelocityScore, &s.ResolutionScore, &s.BreadthScore, &s.RecencyScore, &s.Overall, &s.RiskLevel,
			&s.Tickets30d, &s.Tickets90d, &s.Escalations90d, &s.BadSatisfaction90d, &s.OpenTickets,
			&s.DaysSinceLastTicket, &factors, &scoredAt); err != nil {
			return nil, fmt.Errorf("scan ListRiskScores row: %w", err)
		}
		s.ScoredAt, _ = parseTime(scoredAt)
		r.decodeJSON("risk_factors", s.AccountID, factors, &s.RiskFactors)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListRiskScores: %w", err)
	}
	return out, nil
}
