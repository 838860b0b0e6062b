package di

import (
	"fmt"

	"github.com/degiro-portfolio/degiro-portfolio/internal/clientdata"
	"github.com/degiro-portfolio/degiro-portfolio/internal/config"
	"github.com/degiro-portfolio/degiro-portfolio/internal/reliability"
	"github.com/degiro-portfolio/degiro-portfolio/internal/scheduler"
	"github.com/rs/zerolog"
)

// Fixed maintenance schedules (seconds field first)
const (
	walCheckpointSchedule     = "0 0 * * * *"
	dailyMaintenanceSchedule  = "0 0 2 * * *"
	clientDataCleanupSchedule = "0 15 4 * * *"
)

// RegisterJobs creates the scheduler and registers every background job.
// The scheduler is not started here.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	sched := scheduler.New(container.EventManager, log)
	container.Scheduler = sched

	jobs := &JobInstances{
		MarketDataRefresh: scheduler.NewMarketDataRefreshJob(container.MarketDataService, cfg.RequestTimeout*10, log),
		WALCheckpoint:     reliability.NewWALCheckpointJob(container.DB, log),
		DailyMaintenance:  reliability.NewDailyMaintenanceJob(container.DB, cfg.DataDir, log),
		ClientDataCleanup: clientdata.NewCleanupJob(container.ClientDataRepo, log),
	}
	if container.BackupService != nil {
		jobs.Backup = reliability.NewBackupJob(container.BackupService, cfg.RequestTimeout*5, log)
	}

	registrations := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.MarketDataSchedule, jobs.MarketDataRefresh},
		{walCheckpointSchedule, jobs.WALCheckpoint},
		{dailyMaintenanceSchedule, jobs.DailyMaintenance},
		{clientDataCleanupSchedule, jobs.ClientDataCleanup},
	}
	if jobs.Backup != nil {
		registrations = append(registrations, struct {
			schedule string
			job      scheduler.Job
		}{cfg.Backup.Schedule, jobs.Backup})
	}

	for _, reg := range registrations {
		if err := sched.AddJob(reg.schedule, reg.job); err != nil {
			return nil, fmt.Errorf("failed to register %s job: %w", reg.job.Name(), err)
		}
	}

	return jobs, nil
}
