package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godilite/churnradar/internal/repository/models"
)

var ref = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) time.Time {
	return ref.Add(-time.Duration(d) * 24 * time.Hour)
}

func timePtr(t time.Time) *time.Time { return &t }

func TestExtract_EmptyWindowIsNil(t *testing.T) {
	t.Run("no tickets at all", func(t *testing.T) {
		assert.Nil(t, Extract("O1", nil, ref, 90))
	})

	t.Run("tickets only outside the window", func(t *testing.T) {
		tickets := []models.Ticket{
			{ID: "old", CreatedAt: daysAgo(120)},
			{ID: "future", CreatedAt: ref.Add(time.Hour)},
		}
		assert.Nil(t, Extract("O1", tickets, ref, 90))
	})

	t.Run("non-positive window", func(t *testing.T) {
		assert.Nil(t, Extract("O1", []models.Ticket{{CreatedAt: ref}}, ref, 0))
	})
}

func TestExtract_Values(t *testing.T) {
	tickets := []models.Ticket{
		{ID: "t1", CreatedAt: daysAgo(80), ResolvedAt: timePtr(daysAgo(80).Add(10 * time.Hour)), Category: "billing",
			Satisfaction: models.SatisfactionGood, Priority: models.PriorityNormal, Status: models.TicketStatusClosed},
		{ID: "t2", CreatedAt: daysAgo(50), ResolvedAt: timePtr(daysAgo(50).Add(30 * time.Hour)), Category: "outage",
			Escalated: true, Satisfaction: models.SatisfactionBad, Priority: models.PriorityUrgent, ReopenCount: 2,
			Status: models.TicketStatusSolved, Type: models.TicketTypeEscalation},
		{ID: "t3", CreatedAt: daysAgo(10), Category: "outage", Priority: models.PriorityHigh, Status: models.TicketStatusOpen},
		{ID: "t4", CreatedAt: daysAgo(5), ResolvedAt: timePtr(ref.Add(48 * time.Hour)), Category: "billing",
			Satisfaction: models.SatisfactionBad, ReopenCount: 1, Status: models.TicketStatusSolved},
		{ID: "before-window", CreatedAt: daysAgo(100), Category: "ignored"},
	}

	v := Extract("O1", tickets, ref, 90)
	require.NotNil(t, v)
	assert.Equal(t, "O1", v.OrganizationID)
	assert.Len(t, v.Values, len(Names))

	assert.Equal(t, 4.0, v.Values[TicketCount])
	assert.InDelta(t, 4.0/3.0, v.Values[TicketsPerMonth], 1e-9)
	assert.Equal(t, 0.25, v.Values[EscalationRate])
	assert.InDelta(t, 2.0/3.0, v.Values[BadSatisfactionRate], 1e-9)
	assert.InDelta(t, 20.0, v.Values[AvgResolutionHours], 1e-9)
	assert.Equal(t, 0.5, v.Values[ReopenRate])
	assert.Equal(t, 2.0, v.Values[UniqueCategoryCount])
	assert.Equal(t, 0.5, v.Values[HighPriorityRate])
	assert.Equal(t, 0.25, v.Values[EscalationRecordRate])
	assert.Equal(t, 0.75, v.Values[ReopensPerRecord])
	// t3 is open; t4 resolves after ref.
	assert.Equal(t, 0.5, v.Values[UnresolvedRate])
	// recent 30d: t3, t4 = 2; prior 60d: t1, t2 = 2 -> monthly 1.
	assert.Equal(t, 2.0, v.Values[TicketVelocity])
}

func TestExtract_NeverNaN(t *testing.T) {
	tickets := []models.Ticket{{ID: "only", CreatedAt: daysAgo(1)}}

	v := Extract("O1", tickets, ref, 30)
	require.NotNil(t, v)
	for _, name := range Names {
		val, ok := v.Get(name)
		require.True(t, ok, name)
		assert.False(t, math.IsNaN(val), name)
		assert.False(t, math.IsInf(val, 0), name)
	}
	assert.Equal(t, 0.0, v.Values[BadSatisfactionRate])
	assert.Equal(t, 0.0, v.Values[AvgResolutionHours])
	assert.Equal(t, 1.0, v.Values[UnresolvedRate])
}

func TestVelocity(t *testing.T) {
	t.Run("new activity with no prior history", func(t *testing.T) {
		assert.Equal(t, 2.0, velocity([]models.Ticket{{CreatedAt: daysAgo(3)}}, ref))
	})

	t.Run("no activity at all", func(t *testing.T) {
		assert.Equal(t, 0.0, velocity([]models.Ticket{{CreatedAt: daysAgo(200)}}, ref))
	})

	t.Run("clamped", func(t *testing.T) {
		tickets := []models.Ticket{{CreatedAt: daysAgo(60)}}
		for i := 0; i < 20; i++ {
			tickets = append(tickets, models.Ticket{CreatedAt: daysAgo(i % 25)})
		}
		assert.Equal(t, maxVelocity, velocity(tickets, ref))
	})

	t.Run("slowing down", func(t *testing.T) {
		tickets := []models.Ticket{
			{CreatedAt: daysAgo(40)}, {CreatedAt: daysAgo(45)}, {CreatedAt: daysAgo(70)}, {CreatedAt: daysAgo(80)},
			{CreatedAt: daysAgo(2)},
		}
		assert.Equal(t, 0.5, velocity(tickets, ref))
	})
}

func TestExtractAllTime(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		assert.Nil(t, ExtractAllTime("O1", nil))
	})

	t.Run("months come from the observed span", func(t *testing.T) {
		tickets := []models.Ticket{
			{ID: "a", CreatedAt: daysAgo(300), Status: models.TicketStatusClosed},
			{ID: "b", CreatedAt: daysAgo(150), Status: models.TicketStatusClosed},
			{ID: "c", CreatedAt: daysAgo(0), Status: models.TicketStatusOpen},
		}
		v := ExtractAllTime("O1", tickets)
		require.NotNil(t, v)
		assert.Equal(t, 3.0, v.Values[TicketCount])
		assert.InDelta(t, 0.3, v.Values[TicketsPerMonth], 1e-9)
		assert.InDelta(t, 1.0/3.0, v.Values[UnresolvedRate], 1e-9)
	})

	t.Run("short span counts as one month", func(t *testing.T) {
		tickets := []models.Ticket{
			{ID: "a", CreatedAt: daysAgo(3)},
			{ID: "b", CreatedAt: daysAgo(1)},
		}
		v := ExtractAllTime("O1", tickets)
		require.NotNil(t, v)
		assert.Equal(t, 2.0, v.Values[TicketsPerMonth])
	})
}

func TestLookbackDays(t *testing.T) {
	assert.Equal(t, 90, LookbackDays(30))
	assert.Equal(t, 90, LookbackDays(90))
	assert.Equal(t, 180, LookbackDays(180))
}
