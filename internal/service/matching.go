package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/godilite/churnradar/internal/matching"
	"github.com/godilite/churnradar/internal/repository/models"
)

// RunMatching links every account without a confirmed or manual link to its
// best organization candidate and stores all links in one transaction.
func (s *ChurnService) RunMatching(ctx context.Context) (*MatchReport, error) {
	dbCtx, cancel := context.WithTimeout(ctx, passTimeout)
	defer cancel()

	accounts, err := s.storage.ListAccounts(dbCtx)
	if err != nil {
		return nil, storageErr(err)
	}
	orgs, err := s.storage.ListOrganizations(dbCtx)
	if err != nil {
		return nil, storageErr(err)
	}
	links, err := s.storage.ListLinks(dbCtx)
	if err != nil {
		return nil, storageErr(err)
	}

	locked := make(map[string]bool, len(links))
	for _, l := range links {
		if l.Locked() {
			locked[l.AccountID] = true
		}
	}

	now := s.clock()
	matcher := matching.NewMatcher(orgs, s.settings.MatchThresholds)
	report := &MatchReport{}
	updates := make([]models.AccountLink, 0, len(accounts))

	for _, a := range accounts {
		if locked[a.ID] {
			report.Skipped++
			continue
		}

		res := matcher.Match(a)
		link := models.AccountLink{
			AccountID:  a.ID,
			Method:     res.Method,
			Confidence: res.Score,
			Confirmed:  res.Confirmed,
			Status:     res.Status,
			UpdatedAt:  now,
		}
		detail := MatchDetail{
			AccountID:   a.ID,
			AccountName: a.Name,
			Score:       res.Score,
			Method:      res.Method,
		}
		if res.Organization != nil {
			id := res.Organization.ID
			link.CandidateOrganizationID = &id
			if res.Matched() {
				link.OrganizationID = &id
			}
			detail.OrganizationID = id
			detail.OrganizationName = res.Organization.Name
		}
		updates = append(updates, link)

		switch res.Status {
		case models.LinkHighConfidence:
			report.HighConfidence = append(report.HighConfidence, detail)
		case models.LinkNeedsReview:
			report.NeedsReview = append(report.NeedsReview, detail)
		default:
			report.Unmatched = append(report.Unmatched, detail)
		}
	}

	if len(updates) > 0 {
		if err := s.storage.SaveLinks(dbCtx, updates); err != nil {
			return nil, storageErr(err)
		}
	}

	s.logger.Info("matching pass complete",
		zap.Int("accounts", len(accounts)),
		zap.Int("organizations", len(orgs)),
		zap.Int("high_confidence", len(report.HighConfidence)),
		zap.Int("needs_review", len(report.NeedsReview)),
		zap.Int("unmatched", len(report.Unmatched)),
		zap.Int("skipped", report.Skipped))

	return report, nil
}

// SetManualLink pins an account to an organization. Automatic passes never
// revisit the link afterwards.
func (s *ChurnService) SetManualLink(ctx context.Context, accountID, organizationID string) error {
	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	account, err := s.storage.GetAccount(dbCtx, accountID)
	if err != nil {
		return storageErr(err)
	}
	if account == nil {
		return ErrUnknownAccount
	}
	org, err := s.storage.GetOrganization(dbCtx, organizationID)
	if err != nil {
		return storageErr(err)
	}
	if org == nil {
		return ErrUnknownOrganization
	}

	if err := s.storage.SetManualLink(dbCtx, accountID, organizationID, s.clock()); err != nil {
		return storageErr(err)
	}

	s.logger.Info("manual link set",
		zap.String("account_id", accountID),
		zap.String("organization_id", organizationID))
	return nil
}
