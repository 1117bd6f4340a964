package controllers

import (
	"net/http"
	"time"

	"turnover_backend/models"
	"turnover_backend/scheduler"
	"turnover_backend/services"

	"github.com/gin-gonic/gin"
)

// PipelineController exposes run administration: manual pipeline triggers,
// the in-flight run registry, scheduled job status and the Mongo mirror.
type PipelineController struct {
	sched  *scheduler.Scheduler
	store  *services.TurnoverStore
	mirror *services.MongoMirror
}

// NewPipelineController creates a new pipeline controller
func NewPipelineController(sched *scheduler.Scheduler, store *services.TurnoverStore, mirror *services.MongoMirror) *PipelineController {
	return &PipelineController{
		sched:  sched,
		store:  store,
		mirror: mirror,
	}
}

// SubmitRunRequest is the manual run payload
type SubmitRunRequest struct {
	Venue       string `json:"venue" binding:"required"`
	ScheduledAt string `json:"scheduled_at"` // RFC3339, optional
}

// SubmitRun triggers a pipeline run outside the daily schedule. The run is
// fire-and-forget: the response confirms submission, not completion.
// POST /api/v1/runs
func (pc *PipelineController) SubmitRun(c *gin.Context) {
	var req SubmitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Venue is required"})
		return
	}

	venue, err := models.ParseVenue(req.Venue)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var scheduledAt *time.Time
	if req.ScheduledAt != "" {
		t, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scheduled_at must be RFC3339"})
			return
		}
		scheduledAt = &t
	}

	handle, err := pc.sched.Submit(venue, scheduledAt)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"submitted": true,
		"venue":     handle.Run.Venue,
		"cutoff_at": handle.Run.CutoffAt.Format(time.RFC3339),
	})
}

// RunStatus describes one tracked run for the admin API
type RunStatus struct {
	Venue       models.Venue `json:"venue"`
	ScheduledAt *string      `json:"scheduled_at,omitempty"`
	CutoffAt    string       `json:"cutoff_at"`
	Running     bool         `json:"running"`
	Error       string       `json:"error,omitempty"`
}

// GetRuns returns the tracked run registry
// GET /api/v1/runs
func (pc *PipelineController) GetRuns(c *gin.Context) {
	handles := pc.sched.Runs()
	statuses := make([]RunStatus, 0, len(handles))
	for _, h := range handles {
		status := RunStatus{
			Venue:    h.Run.Venue,
			CutoffAt: h.Run.CutoffAt.Format(time.RFC3339),
			Running:  h.Running(),
		}
		if h.Run.ScheduledAt != nil {
			s := h.Run.ScheduledAt.Format(time.RFC3339)
			status.ScheduledAt = &s
		}
		if err := h.Err(); err != nil {
			status.Error = err.Error()
		}
		statuses = append(statuses, status)
	}

	c.JSON(http.StatusOK, gin.H{"runs": statuses, "total": len(statuses)})
}

// GetJobs returns the registered daily triggers and their fire times
// GET /api/v1/scheduler/jobs
func (pc *PipelineController) GetJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": pc.sched.Jobs()})
}

// SyncMongo pushes the store contents to the Atlas mirror
// POST /api/v1/sync/mongo
func (pc *PipelineController) SyncMongo(c *gin.Context) {
	if !pc.mirror.IsConfigured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Mongo mirror not configured"})
		return
	}

	written, err := pc.mirror.SyncStore(pc.store)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "written": written})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "written": written})
}

// GetMongoStatus returns mirror connection and last-sync state
// GET /api/v1/sync/mongo/status
func (pc *PipelineController) GetMongoStatus(c *gin.Context) {
	c.JSON(http.StatusOK, pc.mirror.Status())
}
