package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"gymdesk/internal/models"
)

// DashboardHandler aggregates membership and revenue figures for the admin
// dashboard.
type DashboardHandler struct {
	db *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

// Stats returns member counts, the current month's revenue, the year's
// revenue, and a per-plan revenue breakdown. Only confirmed payments count
// toward revenue.
func (h *DashboardHandler) Stats(c echo.Context) error {
	var members []models.Member
	if err := h.db.WithContext(c.Request().Context()).Find(&members).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch dashboard stats")
	}

	now := time.Now()
	stats := buildStats(members, now)
	return respond(c, http.StatusOK, "", stats)
}

type dashboardStats struct {
	TotalMembers    int   `json:"totalMembers"`
	ActiveMembers   int   `json:"activeMembers"`
	PendingPayments int   `json:"pendingPayments"`
	ExpiredMembers  int   `json:"expiredMembers"`
	MonthlyRevenue  int64 `json:"monthlyRevenue"`
	YearlyRevenue   int64 `json:"yearlyRevenue"`

	RevenueByPlan map[models.Plan]int64 `json:"revenueByPlan"`
	MembersByPlan map[models.Plan]int   `json:"membersByPlan"`
}

func buildStats(members []models.Member, now time.Time) dashboardStats {
	stats := dashboardStats{
		RevenueByPlan: map[models.Plan]int64{},
		MembersByPlan: map[models.Plan]int{},
	}
	for _, p := range models.AllPlans() {
		stats.RevenueByPlan[p] = 0
		stats.MembersByPlan[p] = 0
	}

	year, month, _ := now.Date()
	for _, m := range members {
		stats.TotalMembers++
		stats.MembersByPlan[m.Plan]++

		switch m.SubscriptionStatusAt(now) {
		case models.SubscriptionActive:
			stats.ActiveMembers++
		case models.SubscriptionExpired:
			stats.ExpiredMembers++
		}
		if m.PaymentStatus == models.PaymentStatusPending {
			stats.PendingPayments++
		}

		if m.PaymentStatus != models.PaymentStatusConfirmed {
			continue
		}
		price := m.Plan.Price()
		stats.RevenueByPlan[m.Plan] += price

		sy, sm, _ := m.StartDate.Date()
		if sy == year {
			stats.YearlyRevenue += price
			if sm == month {
				stats.MonthlyRevenue += price
			}
		}
	}
	return stats
}
