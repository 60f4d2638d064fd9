package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/godilite/churnradar/internal/repository/models"
)

const linkColumns = `account_id, organization_id, candidate_organization_id, method,
	confidence, confirmed, status, updated_at`

func (r *ChurnRepository) ListLinks(ctx context.Context) ([]models.AccountLink, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+linkColumns+` FROM account_links ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("query ListLinks: %w", err)
	}
	defer rows.Close()

	var out []models.AccountLink
	for rows.Next() {
		var l models.AccountLink
		var orgID, candidateID sql.NullString
		var confirmed int
		var updatedAt string
		if err := rows.Scan(&l.AccountID, &orgID, &candidateID, &l.Method,
			&l.Confidence, &confirmed, &l.Status, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan ListLinks row: %w", err)
		}
		l.OrganizationID = nullString(orgID)
		l.CandidateOrganizationID = nullString(candidateID)
		l.Confirmed = confirmed != 0
		if t, err := parseTime(updatedAt); err == nil {
			l.UpdatedAt = t
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListLinks: %w", err)
	}
	return out, nil
}

// SaveLinks writes automatic match results in one transaction. Rows that are
// already confirmed or manual are left untouched.
func (r *ChurnRepository) SaveLinks(ctx context.Context, links []models.AccountLink) error {
	const query = `
		INSERT INTO account_links (` + linkColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			organization_id = excluded.organization_id,
			candidate_organization_id = excluded.candidate_organization_id,
			method = excluded.method,
			confidence = excluded.confidence,
			confirmed = excluded.confirmed,
			status = excluded.status,
			updated_at = excluded.updated_at
		WHERE account_links.confirmed = 0 AND account_links.method != 'manual'
	`
	return r.withTx(ctx, "SaveLinks", func(tx *sql.Tx) error {
		for _, l := range links {
			if err := insertLink(ctx, tx, query, l); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetManualLink unconditionally pins an account to an organization.
func (r *ChurnRepository) SetManualLink(ctx context.Context, accountID, organizationID string, at time.Time) error {
	const query = `
		INSERT INTO account_links (` + linkColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			organization_id = excluded.organization_id,
			candidate_organization_id = excluded.candidate_organization_id,
			method = excluded.method,
			confidence = excluded.confidence,
			confirmed = excluded.confirmed,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	org := organizationID
	return insertLink(ctx, r.db, query, models.AccountLink{
		AccountID:               accountID,
		OrganizationID:          &org,
		CandidateOrganizationID: &org,
		Method:                  models.MatchManual,
		Confidence:              1.0,
		Confirmed:               true,
		Status:                  models.LinkHighConfidence,
		UpdatedAt:               at,
	})
}

func insertLink(ctx context.Context, e execer, query string, l models.AccountLink) error {
	_, err := e.ExecContext(ctx, query, l.AccountID, l.OrganizationID, l.CandidateOrganizationID,
		l.Method, l.Confidence, boolToInt(l.Confirmed), l.Status, formatTime(l.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert link %s: %w", l.AccountID, err)
	}
	return nil
}

// ListMatchedAccounts joins every confirmed link to its account.
func (r *ChurnRepository) ListMatchedAccounts(ctx context.Context) ([]models.MatchedAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.status, a.value, a.churn_date, a.churn_reason, a.extra, l.organization_id
		FROM account_links AS l
		JOIN accounts AS a ON a.id = l.account_id
		WHERE l.confirmed = 1 AND l.organization_id IS NOT NULL
		ORDER BY a.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query ListMatchedAccounts: %w", err)
	}
	defer rows.Close()

	var out []models.MatchedAccount
	for rows.Next() {
		var orgID string
		a, err := r.scanAccount(scanFunc(func(dest ...any) error {
			return rows.Scan(append(dest, &orgID)...)
		}))
		if err != nil {
			return nil, fmt.Errorf("scan ListMatchedAccounts row: %w", err)
		}
		out = append(out, models.MatchedAccount{Account: a, OrganizationID: orgID})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListMatchedAccounts: %w", err)
	}
	return out, nil
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }
