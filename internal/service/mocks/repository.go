package mocks

import (
	"context"
	"errors"
	"time"

	"github.com/godilite/churnradar/internal/repository/models"
)

// MockChurnRepository is a mock implementation of the ChurnRepository interface
// for testing the service layer.
type MockChurnRepository struct {
	GetAccountFunc                   func(ctx context.Context, id string) (*models.Account, error)
	ListAccountsFunc                 func(ctx context.Context) ([]models.Account, error)
	GetOrganizationFunc              func(ctx context.Context, id string) (*models.Organization, error)
	ListOrganizationsFunc            func(ctx context.Context) ([]models.Organization, error)
	TicketsForOrganizationFunc       func(ctx context.Context, organizationID string, start, end time.Time) ([]models.Ticket, error)
	AllTicketsForOrganizationFunc    func(ctx context.Context, organizationID string) ([]models.Ticket, error)
	ListLinksFunc                    func(ctx context.Context) ([]models.AccountLink, error)
	SaveLinksFunc                    func(ctx context.Context, links []models.AccountLink) error
	SetManualLinkFunc                func(ctx context.Context, accountID, organizationID string, at time.Time) error
	ListMatchedAccountsFunc          func(ctx context.Context) ([]models.MatchedAccount, error)
	SaveSignatureFunc                func(ctx context.Context, sig *models.Signature) error
	LatestSignatureFunc              func(ctx context.Context, windowDays int, notBefore time.Time) (*models.Signature, error)
	ReplacePredictionsFunc           func(ctx context.Context, predictions []models.ChurnPrediction) error
	SaveSignatureWithPredictionsFunc func(ctx context.Context, sig *models.Signature, predictions []models.ChurnPrediction) error
	ReplaceRiskScoresFunc            func(ctx context.Context, scores []models.RiskScore) error
}

func notImplemented(name string) error {
	return errors.New(name + "Func not implemented")
}

func (m *MockChurnRepository) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	if m.GetAccountFunc != nil {
		return m.GetAccountFunc(ctx, id)
	}
	return nil, notImplemented("GetAccount")
}

func (m *MockChurnRepository) ListAccounts(ctx context.Context) ([]models.Account, error) {
	if m.ListAccountsFunc != nil {
		return m.ListAccountsFunc(ctx)
	}
	return nil, notImplemented("ListAccounts")
}

func (m *MockChurnRepository) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	if m.GetOrganizationFunc != nil {
		return m.GetOrganizationFunc(ctx, id)
	}
	return nil, notImplemented("GetOrganization")
}

func (m *MockChurnRepository) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	if m.ListOrganizationsFunc != nil {
		return m.ListOrganizationsFunc(ctx)
	}
	return nil, notImplemented("ListOrganizations")
}

func (m *MockChurnRepository) TicketsForOrganization(ctx context.Context, organizationID string, start, end time.Time) ([]models.Ticket, error) {
	if m.TicketsForOrganizationFunc != nil {
		return m.TicketsForOrganizationFunc(ctx, organizationID, start, end)
	}
	return nil, notImplemented("TicketsForOrganization")
}

func (m *MockChurnRepository) AllTicketsForOrganization(ctx context.Context, organizationID string) ([]models.Ticket, error) {
	if m.AllTicketsForOrganizationFunc != nil {
		return m.AllTicketsForOrganizationFunc(ctx, organizationID)
	}
	return nil, notImplemented("AllTicketsForOrganization")
}

func (m *MockChurnRepository) ListLinks(ctx context.Context) ([]models.AccountLink, error) {
	if m.ListLinksFunc != nil {
		return m.ListLinksFunc(ctx)
	}
	return nil, notImplemented("ListLinks")
}

func (m *MockChurnRepository) SaveLinks(ctx context.Context, links []models.AccountLink) error {
	if m.SaveLinksFunc != nil {
		return m.SaveLinksFunc(ctx, links)
	}
	return notImplemented("SaveLinks")
}

func (m *MockChurnRepository) SetManualLink(ctx context.Context, accountID, organizationID string, at time.Time) error {
	if m.SetManualLinkFunc != nil {
		return m.SetManualLinkFunc(ctx, accountID, organizationID, at)
	}
	return notImplemented("SetManualLink")
}

func (m *MockChurnRepository) ListMatchedAccounts(ctx context.Context) ([]models.MatchedAccount, error) {
	if m.ListMatchedAccountsFunc != nil {
		return m.ListMatchedAccountsFunc(ctx)
	}
	return nil, notImplemented("ListMatchedAccounts")
}

func (m *MockChurnRepository) SaveSignature(ctx context.Context, sig *models.Signature) error {
	if m.SaveSignatureFunc != nil {
		return m.SaveSignatureFunc(ctx, sig)
	}
	return notImplemented("SaveSignature")
}

func (m *MockChurnRepository) LatestSignature(ctx context.Context, windowDays int, notBefore time.Time) (*models.Signature, error) {
	if m.LatestSignatureFunc != nil {
		return m.LatestSignatureFunc(ctx, windowDays, notBefore)
	}
	return nil, notImplemented("LatestSignature")
}

func (m *MockChurnRepository) ReplacePredictions(ctx context.Context, predictions []models.ChurnPrediction) error {
	if m.ReplacePredictionsFunc != nil {
		return m.ReplacePredictionsFunc(ctx, predictions)
	}
	return notImplemented("ReplacePredictions")
}

func (m *MockChurnRepository) SaveSignatureWithPredictions(ctx context.Context, sig *models.Signature, predictions []models.ChurnPrediction) error {
	if m.SaveSignatureWithPredictionsFunc != nil {
		return m.SaveSignatureWithPredictionsFunc(ctx, sig, predictions)
	}
	return notImplemented("SaveSignatureWithPredictions")
}

func (m *MockChurnRepository) ReplaceRiskScores(ctx context.Context, scores []models.RiskScore) error {
	if m.ReplaceRiskScoresFunc != nil {
		return m.ReplaceRiskScoresFunc(ctx, scores)
	}
	return notImplemented("ReplaceRiskScores")
}
