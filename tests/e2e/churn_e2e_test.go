//go:build e2e

package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/godilite/churnradar/internal/features"
	"github.com/godilite/churnradar/internal/repository"
	"github.com/godilite/churnradar/internal/repository/models"
	"github.com/godilite/churnradar/internal/service"
	"github.com/godilite/churnradar/pkg/cache"
)

var testNow = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(repository.Schema)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

type seed struct {
	ctx  context.Context
	t    *testing.T
	repo *repository.ChurnRepository
}

// org creates an organization and an account with the given CRM name.
func (s seed) org(id, accountName, orgName string, churnDate *time.Time) {
	s.t.Helper()
	require.NoError(s.t, s.repo.UpsertOrganization(s.ctx, models.Organization{ID: "org-" + id, Name: orgName}))

	status := models.AccountStatusActive
	if churnDate != nil {
		status = models.AccountStatusChurned
	}
	require.NoError(s.t, s.repo.UpsertAccount(s.ctx, models.Account{
		ID:        "acct-" + id,
		Name:      accountName,
		Status:    status,
		Value:     decimal.NewFromInt(1000),
		ChurnDate: churnDate,
	}))
}

// tickets files n solved tickets for org spread across the 50 days before end.
// Every other ticket is escalated when hot is set.
func (s seed) tickets(id string, n int, end time.Time, hot bool) {
	s.t.Helper()
	orgID := "org-" + id
	for i := 0; i < n; i++ {
		created := end.Add(-time.Duration(i*50/n+1) * 24 * time.Hour)
		resolved := created.Add(6 * time.Hour)
		satisfaction := models.SatisfactionGood
		escalated := false
		if hot && i%2 == 0 {
			satisfaction = models.SatisfactionBad
			escalated = true
			resolved = created.Add(72 * time.Hour)
		}
		require.NoError(s.t, s.repo.UpsertTicket(s.ctx, models.Ticket{
			ID:             fmt.Sprintf("%s-t%03d", id, i),
			OrganizationID: &orgID,
			CreatedAt:      created,
			ResolvedAt:     &resolved,
			Category:       fmt.Sprintf("cat-%d", i%3),
			Escalated:      escalated,
			Satisfaction:   satisfaction,
			Priority:       models.PriorityNormal,
			Status:         models.TicketStatusSolved,
		}))
	}
}

func newService(t *testing.T, repo *repository.ChurnRepository) *service.ChurnService {
	t.Helper()
	featureCache, err := cache.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = featureCache.Close() })

	return service.NewChurnService(repo, zap.NewNop(),
		service.WithClock(func() time.Time { return testNow }),
		service.WithCache(featureCache, time.Hour))
}

func TestE2E_ChurnPipeline(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewChurnRepository(setupTestDB(t), zap.NewNop())
	s := seed{ctx: ctx, t: t, repo: repo}

	churnDate := testNow.AddDate(0, -4, 0)
	for i, n := range []int{30, 40, 50} {
		id := fmt.Sprintf("churned%d", i)
		s.org(id, fmt.Sprintf("Harbor Freight Lines %d", i), fmt.Sprintf("Harbor Freight Lines %d", i), &churnDate)
		s.tickets(id, n, churnDate, true)
	}
	for i, n := range []int{5, 10, 15} {
		id := fmt.Sprintf("active%d", i)
		s.org(id, fmt.Sprintf("Meadow Bakery %d", i), fmt.Sprintf("Meadow Bakery %d", i), nil)
		s.tickets(id, n, testNow, false)
	}
	s.org("hot", "Joe's Auto Repair Inc", "Joes Auto Repair", nil)
	s.tickets("hot", 45, testNow, true)
	s.org("dormant", "Quiet Pines Lodge", "Quiet Pines Lodge", nil)
	s.tickets("dormant", 4, testNow.AddDate(0, 0, -200), false)
	s.org("stranger", "Zephyr Holdings", "Unrelated Widgets", nil)

	svc := newService(t, repo)

	t.Run("matching links every known name", func(t *testing.T) {
		report, err := svc.RunMatching(ctx)
		require.NoError(t, err)

		assert.Len(t, report.HighConfidence, 8)
		assert.Empty(t, report.NeedsReview)
		require.Len(t, report.Unmatched, 1)
		assert.Equal(t, "acct-stranger", report.Unmatched[0].AccountID)

		links, err := repo.ListLinks(ctx)
		require.NoError(t, err)
		for _, l := range links {
			if l.AccountID != "acct-hot" {
				continue
			}
			assert.True(t, l.Confirmed)
			require.NotNil(t, l.OrganizationID)
			assert.Equal(t, "org-hot", *l.OrganizationID)
			assert.GreaterOrEqual(t, l.Confidence, 0.85)
		}
	})

	t.Run("organizations without recent tickets have no vector", func(t *testing.T) {
		tickets, err := repo.AllTicketsForOrganization(ctx, "org-dormant")
		require.NoError(t, err)
		require.Len(t, tickets, 4)
		assert.Nil(t, features.Extract("org-dormant", tickets, testNow, 90))
	})

	t.Run("signature separates churned from active and flags the hot account", func(t *testing.T) {
		report, err := svc.RunSignatureAnalysis(ctx, 90, service.SignatureOptions{Validate: true})
		require.NoError(t, err)
		require.False(t, report.Skipped)
		require.NotNil(t, report.Signature)

		assert.True(t, report.Rebuilt)
		assert.Equal(t, 3, report.ChurnedSamples)
		assert.Equal(t, 4, report.ActiveSamples)
		assert.Equal(t, 1, report.Unscored)

		count, ok := report.Signature.Feature(features.TicketCount)
		require.True(t, ok)
		assert.InDelta(t, 40, count.ChurnedMean, 1e-9)
		assert.InDelta(t, 18.75, count.ActiveMean, 1e-9)
		assert.InDelta(t, 29.375, count.Threshold, 1e-9)
		assert.Equal(t, models.HigherMeansRisk, count.Direction)
		assert.Greater(t, count.Separation, 0.0)

		var weights float64
		for _, f := range report.Signature.Features {
			weights += f.Weight
		}
		assert.InDelta(t, 1, weights, 1e-9)

		require.Len(t, report.Predictions, 4)
		top := report.Predictions[0]
		assert.Equal(t, "acct-hot", top.AccountID)
		assert.True(t, models.Elevated(top.RiskLevel), "got %s at %.1f", top.RiskLevel, top.Score)
		assert.Equal(t, "high", top.Confidence)

		var countSignal *models.MatchedSignal
		for i := range top.MatchedSignals {
			if top.MatchedSignals[i].Feature == features.TicketCount {
				countSignal = &top.MatchedSignals[i]
			}
		}
		require.NotNil(t, countSignal)
		assert.Equal(t, 45.0, countSignal.Value)
		assert.Equal(t, 100.0, countSignal.SubScore)

		require.NotNil(t, report.Validation)
		assert.Equal(t, 3, report.Validation.Holdouts)
		assert.Equal(t, 3, report.Validation.TruePositives+report.Validation.FalseNegatives)

		stored, err := repo.ListPredictions(ctx)
		require.NoError(t, err)
		assert.Len(t, stored, 4)
	})

	t.Run("fresh signature is reused", func(t *testing.T) {
		first, err := repo.LatestSignature(ctx, 90, testNow.Add(-time.Hour))
		require.NoError(t, err)
		require.NotNil(t, first)

		report, err := svc.RunSignatureAnalysis(ctx, 90, service.SignatureOptions{})
		require.NoError(t, err)
		assert.False(t, report.Rebuilt)
		assert.Equal(t, first.ID, report.Signature.ID)
	})

	t.Run("heuristic baseline covers active matched accounts", func(t *testing.T) {
		report, err := svc.RunHeuristicAnalysis(ctx)
		require.NoError(t, err)

		require.Len(t, report.Scores, 5)
		assert.Equal(t, "acct-hot", report.Scores[0].AccountID)
		for _, rs := range report.Scores {
			assert.GreaterOrEqual(t, rs.Overall, 0.0)
			assert.LessOrEqual(t, rs.Overall, 100.0)
		}

		stored, err := repo.ListRiskScores(ctx)
		require.NoError(t, err)
		assert.Len(t, stored, 5)
	})

	t.Run("manual link survives rematching", func(t *testing.T) {
		require.NoError(t, svc.SetManualLink(ctx, "acct-stranger", "org-dormant"))

		report, err := svc.RunMatching(ctx)
		require.NoError(t, err)
		assert.Equal(t, 9, report.Skipped)

		links, err := repo.ListLinks(ctx)
		require.NoError(t, err)
		for _, l := range links {
			if l.AccountID == "acct-stranger" {
				assert.Equal(t, models.MatchManual, l.Method)
				require.NotNil(t, l.OrganizationID)
				assert.Equal(t, "org-dormant", *l.OrganizationID)
			}
		}
	})
}

func TestE2E_TooFewChurnedFallsBackToHeuristics(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewChurnRepository(setupTestDB(t), zap.NewNop())
	s := seed{ctx: ctx, t: t, repo: repo}

	churnDate := testNow.AddDate(0, -2, 0)
	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("churned%d", i)
		s.org(id, fmt.Sprintf("Granite Works %d", i), fmt.Sprintf("Granite Works %d", i), &churnDate)
		s.tickets(id, 20, churnDate, true)
	}
	s.org("active", "Lakeside Clinic", "Lakeside Clinic", nil)
	s.tickets("active", 8, testNow, false)

	svc := newService(t, repo)
	_, err := svc.RunMatching(ctx)
	require.NoError(t, err)

	sig, err := svc.BuildSignature(ctx, 90, nil)
	require.NoError(t, err)
	assert.NotNil(t, sig)

	report, err := svc.RunSignatureAnalysis(ctx, 90, service.SignatureOptions{Validate: true})
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Nil(t, report.Signature)
	assert.Empty(t, report.Predictions)
	require.NotNil(t, report.Heuristic)
	require.Len(t, report.Heuristic.Scores, 1)
	assert.Equal(t, "acct-active", report.Heuristic.Scores[0].AccountID)

	_, err = svc.CrossValidate(ctx, 90)
	assert.Error(t, err)
}
