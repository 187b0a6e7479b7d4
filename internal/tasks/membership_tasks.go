package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"gymdesk/internal/models"
)

// NotifyExpiringMembersArgs configures the expiry notification sweep.
type NotifyExpiringMembersArgs struct {
	// DaysAhead also notifies members whose membership ends within this
	// many days, not only already-expired ones. Zero means expired only.
	DaysAhead int `json:"days_ahead"`
}

// NotifyExpiringMembersTaskDef emails expired and soon-to-expire members a
// tokenized renewal link.
type NotifyExpiringMembersTaskDef struct{}

func (t *NotifyExpiringMembersTaskDef) TaskID() string {
	return "notify_expiring_members"
}

func (t *NotifyExpiringMembersTaskDef) CreateTask(args NotifyExpiringMembersArgs, due time.Time, recurringInterval *string) (*models.ScheduledTask, error) {
	taskType := models.ScheduledTaskTypeOneTime
	if recurringInterval != nil {
		taskType = models.ScheduledTaskTypeRecurring
	}
	return BuildScheduledTask(t.TaskID(), args, due, recurringInterval, taskType, 3)
}

func (t *NotifyExpiringMembersTaskDef) HandleExecution(ctx context.Context, deps Deps, task models.ScheduledTask) (map[string]interface{}, error) {
	daysAhead := 0
	if v, ok := task.Arguments["days_ahead"].(float64); ok {
		daysAhead = int(v)
	}

	now := time.Now()
	cutoff := now.AddDate(0, 0, daysAhead)

	var members []models.Member
	err := deps.DB.WithContext(ctx).
		Where("end_date < ? AND payment_status = ?", cutoff, models.PaymentStatusConfirmed).
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("fetch expiring members: %w", err)
	}

	notified := 0
	failed := 0
	var failures []string
	for _, m := range members {
		if ctx.Err() != nil {
			break
		}

		token, err := deps.Tokens.IssueRenewalToken(m.ID)
		if err != nil {
			failed++
			failures = append(failures, fmt.Sprintf("%s: token: %v", m.Email, err))
			continue
		}
		if err := deps.Email.SendExpiryNotice(&m, token); err != nil {
			log.Printf("expiry notice failed for member %d: %v", m.ID, err)
			failed++
			failures = append(failures, fmt.Sprintf("%s: %v", m.Email, err))
			continue
		}
		notified++
	}

	result := map[string]interface{}{
		"total":    len(members),
		"notified": notified,
		"failed":   failed,
	}
	if failed > 0 {
		result["errors"] = failures
	}
	return result, nil
}

// NotifyExpiringMembersTask is the singleton instance of NotifyExpiringMembersTaskDef
var NotifyExpiringMembersTask = &NotifyExpiringMembersTaskDef{}

// SweepPaymentSessionsTaskDef closes open payment sessions whose deadline
// passed, so abandoned sessions do not linger as created.
type SweepPaymentSessionsTaskDef struct{}

func (t *SweepPaymentSessionsTaskDef) TaskID() string {
	return "sweep_payment_sessions"
}

func (t *SweepPaymentSessionsTaskDef) CreateTask(due time.Time, recurringInterval *string) (*models.ScheduledTask, error) {
	taskType := models.ScheduledTaskTypeOneTime
	if recurringInterval != nil {
		taskType = models.ScheduledTaskTypeRecurring
	}
	return BuildScheduledTask(t.TaskID(), struct{}{}, due, recurringInterval, taskType, 1)
}

func (t *SweepPaymentSessionsTaskDef) HandleExecution(ctx context.Context, deps Deps, task models.ScheduledTask) (map[string]interface{}, error) {
	expired, err := deps.Payments.ExpireOverdue(ctx)
	if err != nil {
		return nil, fmt.Errorf("expire overdue sessions: %w", err)
	}
	return map[string]interface{}{"expired": expired}, nil
}

// SweepPaymentSessionsTask is the singleton instance of SweepPaymentSessionsTaskDef
var SweepPaymentSessionsTask = &SweepPaymentSessionsTaskDef{}
