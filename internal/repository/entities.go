package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/godilite/churnradar/internal/repository/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UpsertAccount inserts or refreshes an account. A churn date, once stored, is never replaced.
func (r *ChurnRepository) UpsertAccount(ctx context.Context, a models.Account) error {
	extra, err := encodeJSON(a.Extra)
	if err != nil {
		return fmt.Errorf("encode account extra: %w", err)
	}
	const query = `
		INSERT INTO accounts (id, name, status, value, churn_date, churn_reason, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			value = excluded.value,
			churn_date = COALESCE(accounts.churn_date, excluded.churn_date),
			churn_reason = CASE WHEN accounts.churn_date IS NULL THEN excluded.churn_reason ELSE accounts.churn_reason END,
			extra = excluded.extra
	`
	_, err = r.db.ExecContext(ctx, query,
		a.ID, a.Name, a.Status, a.Value.String(), formatTimePtr(a.ChurnDate), a.ChurnReason, extra)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", a.ID, err)
	}
	return nil
}

// SetChurnDate attaches a churn date to an account that does not have one yet.
func (r *ChurnRepository) SetChurnDate(ctx context.Context, accountID string, date time.Time, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET churn_date = ?, churn_reason = ?
		WHERE id = ? AND churn_date IS NULL
	`, formatTime(date), reason, accountID)
	if err != nil {
		return fmt.Errorf("set churn date %s: %w", accountID, err)
	}
	return nil
}

const accountColumns = `id, name, status, value, churn_date, churn_reason, extra`

func (r *ChurnRepository) scanAccount(row interface{ Scan(...any) error }) (models.Account, error) {
	var a models.Account
	var value, extra string
	var churnDate sql.NullString
	if err := row.Scan(&a.ID, &a.Name, &a.Status, &value, &churnDate, &a.ChurnReason, &extra); err != nil {
		return a, err
	}
	v, err := decimal.NewFromString(value)
	if err != nil {
		r.logger.Warn("dropping malformed account value", zap.String("id", a.ID), zap.Error(err))
		v = decimal.Zero
	}
	a.Value = v
	a.ChurnDate = r.parseTimePtr("churn_date", a.ID, churnDate)
	r.decodeJSON("extra", a.ID, extra, &a.Extra)
	return a, nil
}

func (r *ChurnRepository) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := r.scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query GetAccount: %w", err)
	}
	return &a, nil
}

func (r *ChurnRepository) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query ListAccounts: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		a, err := r.scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ListAccounts row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListAccounts: %w", err)
	}
	return out, nil
}

func (r *ChurnRepository) UpsertOrganization(ctx context.Context, o models.Organization) error {
	domains, err := encodeJSON(o.Domains)
	if err != nil {
		return fmt.Errorf("encode organization domains: %w", err)
	}
	extra, err := encodeJSON(o.Extra)
	if err != nil {
		return fmt.Errorf("encode organization extra: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, domains, extra) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			domains = excluded.domains,
			extra = excluded.extra
	`, o.ID, o.Name, domains, extra)
	if err != nil {
		return fmt.Errorf("upsert organization %s: %w", o.ID, err)
	}
	return nil
}

const organizationColumns = `id, name, domains, extra`

func (r *ChurnRepository) scanOrganization(row interface{ Scan(...any) error }) (models.Organization, error) {
	var o models.Organization
	var domains, extra string
	if err := row.Scan(&o.ID, &o.Name, &domains, &extra); err != nil {
		return o, err
	}
	r.decodeJSON("domains", o.ID, domains, &o.Domains)
	r.decodeJSON("extra", o.ID, extra, &o.Extra)
	return o, nil
}

func (r *ChurnRepository) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = ?`, id)
	o, err := r.scanOrganization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query GetOrganization: %w", err)
	}
	return &o, nil
}

func (r *ChurnRepository) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+organizationColumns+` FROM organizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query ListOrganizations: %w", err)
	}
	defer rows.Close()

	var out []models.Organization
	for rows.Next() {
		o, err := r.scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ListOrganizations row: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListOrganizations: %w", err)
	}
	return out, nil
}

// UpsertTicket stores a ticket; re-ingesting the same ID overwrites it.
func (r *ChurnRepository) UpsertTicket(ctx context.Context, t models.Ticket) error {
	extra, err := encodeJSON(t.Extra)
	if err != nil {
		return fmt.Errorf("encode ticket extra: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tickets (id, organization_id, created_at, resolved_at, category, escalated,
			satisfaction, priority, reopen_count, status, type, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			organization_id = excluded.organization_id,
			created_at = excluded.created_at,
			resolved_at = excluded.resolved_at,
			category = excluded.category,
			escalated = excluded.escalated,
			satisfaction = excluded.satisfaction,
			priority = excluded.priority,
			reopen_count = excluded.reopen_count,
			status = excluded.status,
			type = excluded.type,
			extra = excluded.extra
	`, t.ID, t.OrganizationID, formatTime(t.CreatedAt), formatTimePtr(t.ResolvedAt), t.Category,
		boolToInt(t.Escalated), t.Satisfaction, t.Priority, t.ReopenCount, t.Status, t.Type, extra)
	if err != nil {
		return fmt.Errorf("upsert ticket %s: %w", t.ID, err)
	}
	return nil
}

const ticketColumns = `id, organization_id, created_at, resolved_at, category, escalated,
	satisfaction, priority, reopen_count, status, type, extra`

// TicketsForOrganization returns tickets created within [start, end].
func (r *ChurnRepository) TicketsForOrganization(ctx context.Context, organizationID string, start, end time.Time) ([]models.Ticket, error) {
	return r.queryTickets(ctx, "TicketsForOrganization", `
		SELECT `+ticketColumns+` FROM tickets
		WHERE organization_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at
	`, organizationID, formatTime(start), formatTime(end))
}

// AllTicketsForOrganization returns the organization's full history.
func (r *ChurnRepository) AllTicketsForOrganization(ctx context.Context, organizationID string) ([]models.Ticket, error) {
	return r.queryTickets(ctx, "AllTicketsForOrganization", `
		SELECT `+ticketColumns+` FROM tickets
		WHERE organization_id = ?
		ORDER BY created_at
	`, organizationID)
}

func (r *ChurnRepository) queryTickets(ctx context.Context, op, query string, args ...any) ([]models.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", op, err)
	}
	defer rows.Close()

	var out []models.Ticket
	for rows.Next() {
		var t models.Ticket
		var orgID, resolvedAt sql.NullString
		var createdAt, extra string
		var escalated int
		if err := rows.Scan(&t.ID, &orgID, &createdAt, &resolvedAt, &t.Category, &escalated,
			&t.Satisfaction, &t.Priority, &t.ReopenCount, &t.Status, &t.Type, &extra); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", op, err)
		}
		created, err := parseTime(createdAt)
		if err != nil {
			r.logger.Warn("skipping ticket with malformed created_at", zap.String("id", t.ID), zap.Error(err))
			continue
		}
		t.CreatedAt = created
		t.OrganizationID = nullString(orgID)
		t.ResolvedAt = r.parseTimePtr("resolved_at", t.ID, resolvedAt)
		t.Escalated = escalated != 0
		r.decodeJSON("extra", t.ID, extra, &t.Extra)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", op, err)
	}
	return out, nil
}
