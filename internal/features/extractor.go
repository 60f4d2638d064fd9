// Package features turns an organization's ticket history into a fixed set of
// numeric dimensions used by the churn signature.
package features

import (
	"time"

	"github.com/godilite/churnradar/internal/repository/models"
)

// Feature names, in canonical order.
const (
	TicketCount          = "ticket_count"
	TicketsPerMonth      = "tickets_per_month"
	EscalationRate       = "escalation_rate"
	BadSatisfactionRate  = "bad_satisfaction_rate"
	AvgResolutionHours   = "avg_resolution_hours"
	ReopenRate           = "reopen_rate"
	UniqueCategoryCount  = "unique_category_count"
	HighPriorityRate     = "high_priority_rate"
	TicketVelocity       = "ticket_velocity"
	EscalationRecordRate = "escalation_record_rate"
	ReopensPerRecord     = "reopens_per_record"
	UnresolvedRate       = "unresolved_rate"
)

// Names lists every dimension of a Vector.
var Names = []string{
	TicketCount,
	TicketsPerMonth,
	EscalationRate,
	BadSatisfactionRate,
	AvgResolutionHours,
	ReopenRate,
	UniqueCategoryCount,
	HighPriorityRate,
	TicketVelocity,
	EscalationRecordRate,
	ReopensPerRecord,
	UnresolvedRate,
}

const (
	day = 24 * time.Hour

	recentDays   = 30
	priorDays    = 60
	maxVelocity  = 5.0
	newActivity  = 2.0
	daysPerMonth = 30.0
)

// Vector is one organization's feature values over one window.
type Vector struct {
	OrganizationID string             `json:"organization_id"`
	Values         map[string]float64 `json:"values"`
}

// Get returns a dimension's value and whether it is present.
func (v *Vector) Get(name string) (float64, bool) {
	if v == nil {
		return 0, false
	}
	val, ok := v.Values[name]
	return val, ok
}

// LookbackDays is how far before the reference time a caller must load
// tickets so that both the window and the velocity sub-windows are covered.
func LookbackDays(windowDays int) int {
	if windowDays < recentDays+priorDays {
		return recentDays + priorDays
	}
	return windowDays
}

// Extract computes the vector over tickets created in [ref-windowDays, ref].
// tickets should cover LookbackDays(windowDays); records outside the window
// only feed ticket_velocity. It returns nil when the window holds no tickets.
func Extract(organizationID string, tickets []models.Ticket, ref time.Time, windowDays int) *Vector {
	if windowDays <= 0 {
		return nil
	}
	start := ref.Add(-time.Duration(windowDays) * day)

	inWindow := make([]models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.CreatedAt.Before(start) || t.CreatedAt.After(ref) {
			continue
		}
		inWindow = append(inWindow, t)
	}
	if len(inWindow) == 0 {
		return nil
	}

	months := float64(windowDays) / daysPerMonth
	return &Vector{
		OrganizationID: organizationID,
		Values:         compute(inWindow, tickets, months, ref, true),
	}
}

// ExtractAllTime computes the vector over the full history with months taken
// from the first-to-last record span (at least one). The latest record is the
// reference time for velocity. It returns nil for an empty history.
func ExtractAllTime(organizationID string, tickets []models.Ticket) *Vector {
	if len(tickets) == 0 {
		return nil
	}
	first, last := tickets[0].CreatedAt, tickets[0].CreatedAt
	for _, t := range tickets[1:] {
		if t.CreatedAt.Before(first) {
			first = t.CreatedAt
		}
		if t.CreatedAt.After(last) {
			last = t.CreatedAt
		}
	}

	months := last.Sub(first).Hours() / 24 / daysPerMonth
	if months < 1 {
		months = 1
	}
	return &Vector{
		OrganizationID: organizationID,
		Values:         compute(tickets, tickets, months, last, false),
	}
}

// compute assumes len(scope) > 0. When bounded, resolutions after ref are not
// yet known and count as open.
func compute(scope, history []models.Ticket, months float64, ref time.Time, bounded bool) map[string]float64 {
	n := float64(len(scope))

	var escalated, good, bad, reopened, highPriority, escalationRecords, reopens, unresolved int
	var resolvedCount int
	var resolutionHours float64
	categories := make(map[string]struct{})

	for _, t := range scope {
		if t.Escalated {
			escalated++
		}
		switch t.Satisfaction {
		case models.SatisfactionGood:
			good++
		case models.SatisfactionBad:
			bad++
		}
		if t.ReopenCount > 0 {
			reopened++
			reopens += t.ReopenCount
		}
		if t.IsHighPriority() {
			highPriority++
		}
		if t.Type == models.TicketTypeEscalation {
			escalationRecords++
		}
		if t.Category != "" {
			categories[t.Category] = struct{}{}
		}

		open := t.ResolvedAt == nil && t.Status != models.TicketStatusSolved && t.Status != models.TicketStatusClosed
		if bounded {
			open = t.UnresolvedAt(ref)
		}
		if open {
			unresolved++
		}

		if t.ResolvedAt != nil && !t.ResolvedAt.Before(t.CreatedAt) && (!bounded || !t.ResolvedAt.After(ref)) {
			resolvedCount++
			resolutionHours += t.ResolvedAt.Sub(t.CreatedAt).Hours()
		}
	}

	values := map[string]float64{
		TicketCount:          n,
		TicketsPerMonth:      n / months,
		EscalationRate:       float64(escalated) / n,
		BadSatisfactionRate:  ratio(bad, good+bad),
		AvgResolutionHours:   0,
		ReopenRate:           float64(reopened) / n,
		UniqueCategoryCount:  float64(len(categories)),
		HighPriorityRate:     float64(highPriority) / n,
		TicketVelocity:       velocity(history, ref),
		EscalationRecordRate: float64(escalationRecords) / n,
		ReopensPerRecord:     float64(reopens) / n,
		UnresolvedRate:       float64(unresolved) / n,
	}
	if resolvedCount > 0 {
		values[AvgResolutionHours] = resolutionHours / float64(resolvedCount)
	}
	return values
}

// velocity compares the 30 days up to ref with the monthly average of the 60
// days before that.
func velocity(history []models.Ticket, ref time.Time) float64 {
	recentStart := ref.Add(-recentDays * day)
	priorStart := recentStart.Add(-priorDays * day)

	var recent, prior int
	for _, t := range history {
		switch {
		case t.CreatedAt.After(ref):
		case t.CreatedAt.After(recentStart):
			recent++
		case t.CreatedAt.After(priorStart):
			prior++
		}
	}

	priorMonthly := float64(prior) / (priorDays / daysPerMonth)
	if priorMonthly == 0 {
		if recent > 0 {
			return newActivity
		}
		return 0
	}
	v := float64(recent) / priorMonthly
	if v > maxVelocity {
		return maxVelocity
	}
	return v
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
