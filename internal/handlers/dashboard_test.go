package handlers

import (
	"testing"
	"time"

	"gymdesk/internal/models"
)

func TestBuildStats(t *testing.T) {
	now := time.Date(2026, time.August, 20, 10, 0, 0, 0, time.UTC)

	members := []models.Member{
		// active this month, confirmed: counts toward month and year
		{Plan: models.PlanThreeMonth, StartDate: now.AddDate(0, 0, -5), EndDate: now.AddDate(0, 3, 0), PaymentStatus: models.PaymentStatusConfirmed},
		// active, joined earlier this year: yearly revenue only
		{Plan: models.PlanYearly, StartDate: time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), EndDate: now.AddDate(0, 6, 0), PaymentStatus: models.PaymentStatusConfirmed},
		// joined last year: no revenue this year
		{Plan: models.PlanSixMonth, StartDate: time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC), EndDate: now.AddDate(0, 1, 0), PaymentStatus: models.PaymentStatusConfirmed},
		// pending payment: member counted, no revenue
		{Plan: models.PlanOneMonth, StartDate: now, EndDate: now.AddDate(0, 1, 0), PaymentStatus: models.PaymentStatusPending},
		// expired
		{Plan: models.PlanOneMonth, StartDate: now.AddDate(0, -2, 0), EndDate: now.AddDate(0, -1, 0), PaymentStatus: models.PaymentStatusConfirmed},
	}

	stats := buildStats(members, now)

	if stats.TotalMembers != 5 {
		t.Errorf("TotalMembers = %d; want 5", stats.TotalMembers)
	}
	if stats.ActiveMembers != 3 {
		t.Errorf("ActiveMembers = %d; want 3", stats.ActiveMembers)
	}
	if stats.PendingPayments != 1 {
		t.Errorf("PendingPayments = %d; want 1", stats.PendingPayments)
	}
	if stats.ExpiredMembers != 1 {
		t.Errorf("ExpiredMembers = %d; want 1", stats.ExpiredMembers)
	}

	if want := models.PlanThreeMonth.Price(); stats.MonthlyRevenue != want {
		t.Errorf("MonthlyRevenue = %d; want %d", stats.MonthlyRevenue, want)
	}
	// Confirmed members who joined this year: 3month (this month),
	// yearly (February) and the expired 1month member (June). The 2025
	// join contributes nothing this year.
	if want := models.PlanThreeMonth.Price() + models.PlanYearly.Price() + models.PlanOneMonth.Price(); stats.YearlyRevenue != want {
		t.Errorf("YearlyRevenue = %d; want %d", stats.YearlyRevenue, want)
	}

	if got := stats.RevenueByPlan[models.PlanSixMonth]; got != models.PlanSixMonth.Price() {
		t.Errorf("RevenueByPlan[6month] = %d; want %d", got, models.PlanSixMonth.Price())
	}
	if got := stats.RevenueByPlan[models.PlanOneMonth]; got != models.PlanOneMonth.Price() {
		t.Errorf("RevenueByPlan[1month] = %d; want %d (pending member excluded)", got, models.PlanOneMonth.Price())
	}
	if got := stats.MembersByPlan[models.PlanOneMonth]; got != 2 {
		t.Errorf("MembersByPlan[1month] = %d; want 2", got)
	}
	if got := stats.MembersByPlan[models.PlanTwoMonth]; got != 0 {
		t.Errorf("MembersByPlan[2month] = %d; want 0", got)
	}
}
