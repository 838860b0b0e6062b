package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/degiro-portfolio/degiro-portfolio/internal/config"
	"github.com/degiro-portfolio/degiro-portfolio/internal/database"
	"github.com/degiro-portfolio/degiro-portfolio/internal/di"
	"github.com/degiro-portfolio/degiro-portfolio/internal/reliability"
	"github.com/degiro-portfolio/degiro-portfolio/internal/scheduler"
	"github.com/degiro-portfolio/degiro-portfolio/internal/version"
)

// SystemHandlers serves host, database, job and backup status
type SystemHandlers struct {
	db        *database.DB
	scheduler *scheduler.Scheduler
	backups   *reliability.BackupService
	cfg       *config.Config
	started   time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers backed by the container's services
func NewSystemHandlers(container *di.Container, cfg *config.Config, started time.Time, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		db:        container.DB,
		scheduler: container.Scheduler,
		backups:   container.BackupService,
		cfg:       cfg,
		started:   started,
		log:       log.With().Str("component", "system_handlers").Logger(),
	}
}

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Status           string                `json:"status"`
	Version          string                `json:"version"`
	UptimeSeconds    int64                 `json:"uptime_seconds"`
	CPUPercent       float64               `json:"cpu_percent"`
	MemoryPercent    float64               `json:"memory_percent"`
	DiskFreeBytes    uint64                `json:"disk_free_bytes"`
	DiskUsedPercent  float64               `json:"disk_used_percent"`
	DataDirMB        float64               `json:"data_dir_mb"`
	Database         *database.Stats       `json:"database,omitempty"`
	PriceProvider    string                `json:"price_provider"`
	SchedulerEnabled bool                  `json:"scheduler_enabled"`
	BackupsEnabled   bool                  `json:"backups_enabled"`
	Jobs             []scheduler.JobStatus `json:"jobs"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	response := SystemStatusResponse{
		Status:           "ok",
		Version:          version.Version,
		UptimeSeconds:    int64(time.Since(h.started).Seconds()),
		PriceProvider:    h.cfg.PriceProvider,
		SchedulerEnabled: h.cfg.SchedulerEnabled,
		BackupsEnabled:   h.backups != nil,
		Jobs:             h.jobs(),
	}

	response.CPUPercent, response.MemoryPercent = h.getSystemStats()

	if usage, err := disk.Usage(h.cfg.DataDir); err == nil {
		response.DiskFreeBytes = usage.Free
		response.DiskUsedPercent = usage.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to get disk usage")
	}
	response.DataDirMB = h.getDirSize(h.cfg.DataDir)

	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get database statistics")
		response.Status = "degraded"
	} else {
		response.Database = stats
	}

	writeJSON(w, http.StatusOK, response, h.log)
}

// HandleJobsStatus handles GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	}, h.log)
}

// HandleRunJob handles POST /api/system/jobs/{name}.
// The job runs in the background; its outcome shows up in the job status.
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	known := false
	for _, job := range h.jobs() {
		if job.Name == name {
			known = true
			break
		}
	}
	if !known {
		writeError(w, http.StatusNotFound, "Unknown job "+name, h.log)
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job run triggered")
	go func() {
		if _, err := h.scheduler.RunNow(name); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "started",
		"message": "Job " + name + " started",
	}, h.log)
}

// HandleCreateBackup handles POST /api/backup
func (h *SystemHandlers) HandleCreateBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		writeError(w, http.StatusServiceUnavailable, "Backups are not configured", h.log)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout*5)
	defer cancel()

	result, err := h.backups.CreateAndUploadBackup(ctx)
	if err != nil {
		if errors.Is(err, reliability.ErrBackupInProgress) {
			writeError(w, http.StatusConflict, "A backup is already running", h.log)
			return
		}
		h.log.Error().Err(err).Msg("Manual backup failed")
		writeError(w, http.StatusInternalServerError, "Backup failed: "+err.Error(), h.log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"backup":  result,
	}, h.log)
}

// HandleListBackups handles GET /api/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		writeError(w, http.StatusServiceUnavailable, "Backups are not configured", h.log)
		return
	}

	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		writeError(w, http.StatusBadGateway, "Failed to list backups", h.log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	}, h.log)
}

func (h *SystemHandlers) jobs() []scheduler.JobStatus {
	if h.scheduler == nil {
		return []scheduler.JobStatus{}
	}
	return h.scheduler.Status()
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats returns CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
