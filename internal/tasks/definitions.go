package tasks

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"gymdesk/internal/models"
)

// DefineTasks registers all available tasks
func DefineTasks() {
	RegisterHandler(NotifyExpiringMembersTask.TaskID(), NotifyExpiringMembersTask.HandleExecution)
	RegisterHandler(SweepPaymentSessionsTask.TaskID(), SweepPaymentSessionsTask.HandleExecution)
}

// SeedRecurringTasks creates the standing recurring tasks if they do not
// exist yet: a daily expiry notification sweep and a quarter-hourly payment
// session sweep. Safe to run on every startup.
func SeedRecurringTasks(db *gorm.DB) error {
	daily := "FREQ=DAILY"
	notify, err := NotifyExpiringMembersTask.CreateTask(NotifyExpiringMembersArgs{DaysAhead: 3}, nextMorning(time.Now()), &daily)
	if err != nil {
		return fmt.Errorf("build notify task: %w", err)
	}
	if err := seedTask(db, notify); err != nil {
		return err
	}

	quarterHourly := "FREQ=MINUTELY;INTERVAL=15"
	sweep, err := SweepPaymentSessionsTask.CreateTask(time.Now(), &quarterHourly)
	if err != nil {
		return fmt.Errorf("build sweep task: %w", err)
	}
	return seedTask(db, sweep)
}

func seedTask(db *gorm.DB, task *models.ScheduledTask) error {
	var count int64
	err := db.Model(&models.ScheduledTask{}).
		Where("task_name = ? AND status = ?", task.TaskName, models.ScheduledTaskStatusActive).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("check existing %s: %w", task.TaskName, err)
	}
	if count > 0 {
		return nil
	}

	if err := db.Create(task).Error; err != nil {
		return fmt.Errorf("seed %s: %w", task.TaskName, err)
	}
	log.Printf("Seeded recurring task %s (due %s)", task.TaskName, task.Due.Format(time.RFC3339))
	return nil
}

// nextMorning returns 09:00 local on the next day.
func nextMorning(now time.Time) time.Time {
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 9, 0, 0, 0, now.Location())
}
