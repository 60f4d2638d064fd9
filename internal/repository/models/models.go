package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account statuses as exported by the CRM.
const (
	AccountStatusActive  = "active"
	AccountStatusChurned = "churned"
)

type Account struct {
	ID          string
	Name        string
	Status      string
	Value       decimal.Decimal
	ChurnDate   *time.Time
	ChurnReason string
	Extra       map[string]string
}

// IsChurned reports whether the account left, either by status or by a recorded churn date.
func (a Account) IsChurned() bool {
	return a.ChurnDate != nil || a.Status == AccountStatusChurned
}

type Organization struct {
	ID      string
	Name    string
	Domains []string
	Extra   map[string]string
}

// Satisfaction outcomes.
const (
	SatisfactionGood = "good"
	SatisfactionBad  = "bad"
)

// Ticket statuses.
const (
	TicketStatusNew     = "new"
	TicketStatusOpen    = "open"
	TicketStatusPending = "pending"
	TicketStatusHold    = "hold"
	TicketStatusSolved  = "solved"
	TicketStatusClosed  = "closed"
)

// Ticket priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// TicketTypeEscalation marks escalation-class records.
const TicketTypeEscalation = "escalation"

type Ticket struct {
	ID             string
	OrganizationID *string
	CreatedAt      time.Time
	ResolvedAt     *time.Time
	Category       string
	Escalated      bool
	Satisfaction   string
	Priority       string
	ReopenCount    int
	Status         string
	Type           string
	Extra          map[string]string
}

// IsHighPriority reports whether the ticket was filed as high or urgent.
func (t Ticket) IsHighPriority() bool {
	return t.Priority == PriorityHigh || t.Priority == PriorityUrgent
}

// UnresolvedAt reports whether the ticket was still open at ref.
func (t Ticket) UnresolvedAt(ref time.Time) bool {
	if t.ResolvedAt != nil {
		return t.ResolvedAt.After(ref)
	}
	return t.Status != TicketStatusSolved && t.Status != TicketStatusClosed
}

// Match methods.
const (
	MatchExact        = "exact"
	MatchTokenOverlap = "token_overlap"
	MatchEditDistance = "edit_distance"
	MatchManual       = "manual"
)

// Link statuses.
const (
	LinkHighConfidence = "high_confidence"
	LinkNeedsReview    = "needs_review"
	LinkUnmatched      = "unmatched"
)

type AccountLink struct {
	AccountID               string
	OrganizationID          *string
	CandidateOrganizationID *string
	Method                  string
	Confidence              float64
	Confirmed               bool
	Status                  string
	UpdatedAt               time.Time
}

// Locked reports whether automatic matching must leave this link alone.
func (l AccountLink) Locked() bool {
	return l.Confirmed || l.Method == MatchManual
}

// MatchedAccount is an account joined with its confirmed organization.
type MatchedAccount struct {
	Account        Account
	OrganizationID string
}

// Feature directions.
const (
	HigherMeansRisk = "higher_means_risk"
	LowerMeansRisk  = "lower_means_risk"
)

type SignatureFeature struct {
	Name          string
	ChurnedMean   float64
	ChurnedMedian float64
	ChurnedStdDev float64
	ActiveMean    float64
	ActiveMedian  float64
	ActiveStdDev  float64
	Separation    float64
	Direction     string
	Threshold     float64
	Weight        float64
}

type Signature struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	WindowDays   int
	ChurnedCount int
	ActiveCount  int
	Features     []SignatureFeature
}

// Feature returns the named feature statistics.
func (s *Signature) Feature(name string) (SignatureFeature, bool) {
	for _, f := range s.Features {
		if f.Name == name {
			return f, true
		}
	}
	return SignatureFeature{}, false
}

// Risk levels shared by both scorers.
const (
	RiskCritical = "critical"
	RiskHigh     = "high"
	RiskMedium   = "medium"
	RiskLow      = "low"
)

// Prediction confidence tiers.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

type MatchedSignal struct {
	Feature     string  `json:"feature"`
	Value       float64 `json:"value"`
	SubScore    float64 `json:"sub_score"`
	Explanation string  `json:"explanation"`
}

type ChurnPrediction struct {
	AccountID      string
	SignatureID    uuid.UUID
	Score          float64
	RiskLevel      string
	MatchedSignals []MatchedSignal
	Confidence     string
	ScoredAt       time.Time
}

type RiskScore struct {
	AccountID           string
	VolumeScore         float64
	EscalationScore     float64
	SentimentScore      float64
	VelocityScore       float64
	ResolutionScore     float64
	BreadthScore        float64
	RecencyScore        float64
	Overall             float64
	RiskLevel           string
	Tickets30d          int
	Tickets90d          int
	Escalations90d      int
	BadSatisfaction90d  int
	OpenTickets         int
	DaysSinceLastTicket int
	RiskFactors         []string
	ScoredAt            time.Time
}

// RiskThresholds are the lower score bounds of each risk level.
type RiskThresholds struct {
	Critical float64
	High     float64
	Medium   float64
}

func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{Critical: 75, High: 50, Medium: 25}
}

// Level maps a 0-100 score to a risk level.
func (t RiskThresholds) Level(score float64) string {
	switch {
	case score >= t.Critical:
		return RiskCritical
	case score >= t.High:
		return RiskHigh
	case score >= t.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Elevated reports whether a risk level warrants action.
func Elevated(level string) bool {
	return level == RiskCritical || level == RiskHigh
}
