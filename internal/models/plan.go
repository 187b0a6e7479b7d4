package models

import (
	"fmt"
	"time"
)

// Plan is a fixed membership duration/price tier.
type Plan string

const (
	PlanOneMonth   Plan = "1month"
	PlanTwoMonth   Plan = "2month"
	PlanThreeMonth Plan = "3month"
	PlanSixMonth   Plan = "6month"
	PlanYearly     Plan = "yearly"
)

// AllPlans lists every plan in display order.
func AllPlans() []Plan {
	return []Plan{PlanOneMonth, PlanTwoMonth, PlanThreeMonth, PlanSixMonth, PlanYearly}
}

// ParsePlan validates a plan identifier coming from a form or API payload.
func ParsePlan(s string) (Plan, error) {
	switch Plan(s) {
	case PlanOneMonth, PlanTwoMonth, PlanThreeMonth, PlanSixMonth, PlanYearly:
		return Plan(s), nil
	}
	return "", fmt.Errorf("unknown plan %q", s)
}

// Price returns the plan price in INR.
func (p Plan) Price() int64 {
	switch p {
	case PlanOneMonth:
		return 1500
	case PlanTwoMonth:
		return 2500
	case PlanThreeMonth:
		return 3500
	case PlanSixMonth:
		return 5000
	case PlanYearly:
		return 8000
	}
	return 0
}

// Months returns the membership duration in calendar months.
func (p Plan) Months() int {
	switch p {
	case PlanOneMonth:
		return 1
	case PlanTwoMonth:
		return 2
	case PlanThreeMonth:
		return 3
	case PlanSixMonth:
		return 6
	case PlanYearly:
		return 12
	}
	return 0
}

// Name returns the human-readable plan name.
func (p Plan) Name() string {
	switch p {
	case PlanOneMonth:
		return "1 Month"
	case PlanTwoMonth:
		return "2 Months"
	case PlanThreeMonth:
		return "3 Months"
	case PlanSixMonth:
		return "6 Months"
	case PlanYearly:
		return "1 Year"
	}
	return string(p)
}

// EndDate projects the membership end date for a subscription starting at start.
func (p Plan) EndDate(start time.Time) time.Time {
	return start.AddDate(0, p.Months(), 0)
}
