package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"turnover_backend/config"
	"turnover_backend/models"
	"turnover_backend/services"

	"github.com/go-co-op/gocron"
)

// Job tags, one per venue trigger
const (
	ASXJobTag = "asx-daily-turnover"
	USJobTag  = "us-daily-turnover"
)

// maxTrackedRuns bounds the run-handle registry; finished runs beyond this
// are pruned oldest-first
const maxTrackedRuns = 20

// Scheduler manages the two daily turnover triggers
type Scheduler struct {
	cron     *gocron.Scheduler
	cfg      *config.Config
	pipeline *services.TurnoverPipeline
	mirror   *services.MongoMirror
	store    *services.TurnoverStore
	location *time.Location

	mu      sync.Mutex
	handles []*services.RunHandle
}

// NewScheduler creates a scheduler firing in the configured timezone
func NewScheduler(cfg *config.Config, pipeline *services.TurnoverPipeline, store *services.TurnoverStore, mirror *services.MongoMirror) (*Scheduler, error) {
	loc, err := cfg.ScheduleLocation()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cron:     gocron.NewScheduler(loc),
		cfg:      cfg,
		pipeline: pipeline,
		mirror:   mirror,
		store:    store,
		location: loc,
	}, nil
}

// Start registers both daily triggers and starts firing them asynchronously
func (s *Scheduler) Start() error {
	log.Println("Starting scheduler...")

	_, err := s.cron.Every(1).Day().At(s.cfg.ASXScheduleTime).Tag(ASXJobTag).Do(func() {
		s.fire(models.VenueASX, s.cfg.ASXScheduleTime)
	})
	if err != nil {
		return fmt.Errorf("failed to register ASX job: %w", err)
	}

	_, err = s.cron.Every(1).Day().At(s.cfg.USScheduleTime).Tag(USJobTag).Do(func() {
		s.fire(models.VenueUS, s.cfg.USScheduleTime)
	})
	if err != nil {
		return fmt.Errorf("failed to register US job: %w", err)
	}

	s.cron.StartAsync()
	log.Printf("Scheduler started: %s at %s, %s at %s (%s)",
		models.VenueASX, s.cfg.ASXScheduleTime, models.VenueUS, s.cfg.USScheduleTime, s.location)
	return nil
}

// Stop stops the trigger loop. In-flight runs keep going; they hold their
// own goroutines and the store outlives the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// fire handles one trigger firing: submit a pipeline run with the scheduled
// fire time passed through, and mirror the store once the run finishes
func (s *Scheduler) fire(venue models.Venue, at string) {
	log.Printf("Scheduled task for %s is running...", venue)

	scheduledAt, err := s.scheduledTimeToday(at)
	if err != nil {
		log.Printf("Error resolving scheduled time for %s: %v", venue, err)
		return
	}

	handle, err := s.Submit(venue, &scheduledAt)
	if err != nil {
		log.Printf("Error submitting run for %s: %v", venue, err)
		return
	}

	go func() {
		if err := handle.Wait(); err != nil {
			log.Printf("Scheduled task for %s failed: %v", venue, err)
			return
		}
		log.Printf("Scheduled task for %s completed.", venue)
		if s.mirror != nil && s.mirror.IsConfigured() {
			if _, err := s.mirror.SyncStore(s.store); err != nil {
				log.Printf("Mirror sync after %s run failed: %v", venue, err)
			}
		}
	}()
}

// Submit starts a pipeline run and registers its handle. Used by the trigger
// path above and by the manual-run endpoint.
func (s *Scheduler) Submit(venue models.Venue, scheduledAt *time.Time) (*services.RunHandle, error) {
	handle, err := s.pipeline.SubmitRun(venue, scheduledAt)
	if err != nil {
		return nil, err
	}
	s.track(handle)
	return handle, nil
}

func (s *Scheduler) track(handle *services.RunHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = append(s.handles, handle)
	// Prune finished runs oldest-first once the registry is over budget
	for len(s.handles) > maxTrackedRuns {
		pruned := false
		for i, h := range s.handles {
			if !h.Running() {
				s.handles = append(s.handles[:i], s.handles[i+1:]...)
				pruned = true
				break
			}
		}
		if !pruned {
			break
		}
	}
}

// Runs returns the tracked run handles, newest last
func (s *Scheduler) Runs() []*services.RunHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*services.RunHandle, len(s.handles))
	copy(out, s.handles)
	return out
}

// CancelAll cancels every tracked in-flight run (graceful shutdown hook)
func (s *Scheduler) CancelAll() {
	for _, h := range s.Runs() {
		if h.Running() {
			h.Cancel()
		}
	}
}

// JobInfo describes one registered trigger for the admin API
type JobInfo struct {
	Tag     string    `json:"tag"`
	LastRun time.Time `json:"last_run"`
	NextRun time.Time `json:"next_run"`
}

// Jobs returns the registered triggers and their next fire times
func (s *Scheduler) Jobs() []JobInfo {
	jobs := s.cron.Jobs()
	infos := make([]JobInfo, 0, len(jobs))
	for _, job := range jobs {
		tag := ""
		if tags := job.Tags(); len(tags) > 0 {
			tag = tags[0]
		}
		infos = append(infos, JobInfo{
			Tag:     tag,
			LastRun: job.LastRun(),
			NextRun: job.NextRun(),
		})
	}
	return infos
}

// scheduledTimeToday resolves an HH:MM trigger time to today's date in the
// scheduler timezone, mirroring the instant the trigger fired at
func (s *Scheduler) scheduledTimeToday(at string) (time.Time, error) {
	parsed, err := time.Parse("15:04", at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule time %q: %w", at, err)
	}
	now := time.Now().In(s.location)
	return time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, s.location), nil
}
