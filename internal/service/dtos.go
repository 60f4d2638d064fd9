package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/godilite/churnradar/internal/heuristic"
	"github.com/godilite/churnradar/internal/repository/models"
	"github.com/godilite/churnradar/internal/signature"
)

// MatchDetail is one account's matching outcome.
type MatchDetail struct {
	AccountID        string
	AccountName      string
	OrganizationID   string
	OrganizationName string
	Score            float64
	Method           string
}

type MatchReport struct {
	HighConfidence []MatchDetail
	NeedsReview    []MatchDetail
	Unmatched      []MatchDetail
	// Skipped counts accounts whose confirmed or manual link was left alone.
	Skipped int
}

type HeuristicReport struct {
	ScoredAt      time.Time
	Fleet         heuristic.Fleet
	Scores        []models.RiskScore
	CountsByLevel map[string]int
	ValueAtRisk   map[string]decimal.Decimal
}

type SignatureOptions struct {
	Rebuild  bool
	Validate bool
}

type SignatureReport struct {
	WindowDays     int
	ChurnedSamples int
	ActiveSamples  int
	// Unscored counts active matched accounts with no tickets in the window.
	Unscored int

	Skipped bool
	Reason  string

	Signature     *models.Signature
	Rebuilt       bool
	Predictions   []models.ChurnPrediction
	CountsByLevel map[string]int
	Validation    *signature.ValidationReport
	Heuristic     *HeuristicReport
}
