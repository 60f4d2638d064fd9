package service

import (
	"context"
	"time"

	"github.com/godilite/churnradar/internal/repository/models"
)

// ChurnRepository defines the storage operations the churn service depends on.
type ChurnRepository interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	ListOrganizations(ctx context.Context) ([]models.Organization, error)

	TicketsForOrganization(ctx context.Context, organizationID string, start, end time.Time) ([]models.Ticket, error)
	AllTicketsForOrganization(ctx context.Context, organizationID string) ([]models.Ticket, error)

	ListLinks(ctx context.Context) ([]models.AccountLink, error)
	SaveLinks(ctx context.Context, links []models.AccountLink) error
	SetManualLink(ctx context.Context, accountID, organizationID string, at time.Time) error
	ListMatchedAccounts(ctx context.Context) ([]models.MatchedAccount, error)

	SaveSignature(ctx context.Context, sig *models.Signature) error
	LatestSignature(ctx context.Context, windowDays int, notBefore time.Time) (*models.Signature, error)
	ReplacePredictions(ctx context.Context, predictions []models.ChurnPrediction) error
	// SaveSignatureWithPredictions stores a new signature and its predictions atomically.
	SaveSignatureWithPredictions(ctx context.Context, sig *models.Signature, predictions []models.ChurnPrediction) error
	ReplaceRiskScores(ctx context.Context, scores []models.RiskScore) error
}

// Cacher stores JSON-encodable values with a TTL. Get must return an error
// wrapping cache.ErrMiss (or any error, treated as a miss) when absent.
type Cacher interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}
