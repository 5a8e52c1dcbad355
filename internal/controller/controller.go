// Package controller owns the single active crawl job and drives its
// sequential execution against the scrape collaborator.
package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talbz/holmes-ma/internal/crawl"
	"github.com/talbz/holmes-ma/internal/event"
)

// skippedReason is the recorded failure reason for clubs never attempted
// because an earlier club aborted the whole run.
const skippedReason = "skipped after critical error"

// Publisher receives every event the controller emits. Publish must not
// block; the broadcaster satisfies this.
type Publisher interface {
	Publish(evt event.Event)
}

// Config wires the controller's collaborators.
type Config struct {
	// BaseContext is the parent context for background crawl loops
	// (defaults to context.Background()).
	BaseContext context.Context
	Scraper     crawl.Scraper
	Source      crawl.ClubSource
	Sink        crawl.RecordSink
	Publisher   Publisher
	Clock       crawl.Clock
	Logger      *zap.Logger
}

// Controller runs at most one crawl job at a time. All public methods are
// safe for concurrent use; Start and Stop return immediately and never block
// on crawl execution.
type Controller struct {
	cfg    Config
	logger *zap.Logger

	mu            sync.Mutex
	job           crawl.Job
	store         *crawl.StatusStore
	clubs         map[string]crawl.Club
	stopRequested bool
}

// New constructs a Controller. Scraper, Source, Publisher and Clock are
// required; Sink may be nil when persistence is disabled.
func New(cfg Config) (*Controller, error) {
	if cfg.Scraper == nil {
		return nil, fmt.Errorf("controller: scraper is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("controller: club source is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("controller: publisher is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("controller: clock is required")
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:    cfg,
		logger: logger,
		job:    crawl.Job{State: crawl.JobIdle},
		store:  crawl.NewStatusStore(cfg.Clock),
		clubs:  make(map[string]crawl.Club),
	}, nil
}

// Start begins a new crawl run in the background and returns its job ID.
// It fails with crawl.ErrAlreadyRunning while a job is running or stopping,
// and with crawl.ErrNoFailedClubs for a retry run with nothing to retry.
func (c *Controller) Start(mode crawl.Mode, opts crawl.ScrapeOptions) (uuid.UUID, error) {
	c.mu.Lock()
	if c.job.State == crawl.JobRunning || c.job.State == crawl.JobStopping {
		c.mu.Unlock()
		return uuid.Nil, crawl.ErrAlreadyRunning
	}

	var runNames []string
	if mode == crawl.ModeRetryFailed {
		if len(c.store.FailedNames()) == 0 {
			c.mu.Unlock()
			return uuid.Nil, crawl.ErrNoFailedClubs
		}
		runNames = c.store.Initialize(nil, crawl.ModeRetryFailed)
	}

	now := c.cfg.Clock.Now()
	job := crawl.Job{
		ID:        uuid.New(),
		State:     crawl.JobRunning,
		Mode:      mode,
		StartedAt: now,
		Message:   "מתחיל איסוף נתונים",
	}
	if mode == crawl.ModeRetryFailed {
		job.TotalClubs = len(runNames)
	}
	c.job = job
	c.stopRequested = false
	c.mu.Unlock()

	go c.run(job.ID, mode, opts, runNames)
	return job.ID, nil
}

// Stop requests cooperative cancellation. The in-flight club is allowed to
// finish; the loop exits at the next club boundary and the job lands in a
// completed state with StoppedEarly set. Stop never blocks.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.job.State != crawl.JobRunning && c.job.State != crawl.JobStopping {
		c.mu.Unlock()
		return crawl.ErrNotRunning
	}
	alreadyStopping := c.job.State == crawl.JobStopping
	c.job.State = crawl.JobStopping
	c.job.Message = "עוצר את תהליך האיסוף"
	c.stopRequested = true
	jobID := c.job.ID
	c.mu.Unlock()

	if !alreadyStopping {
		c.publish(event.Warning(jobID, "stop requested", c.cfg.Clock.Now()))
	}
	return nil
}

// Snapshot returns the current job plus every club status. It is the
// broadcaster's snapshot source and backs the HTTP status endpoint.
func (c *Controller) Snapshot() crawl.Snapshot {
	c.mu.Lock()
	job := c.job
	c.mu.Unlock()
	return crawl.Snapshot{Job: job, Clubs: c.store.Statuses()}
}

// run is the single background crawl loop. It never panics across the
// goroutine boundary; every failure becomes an event.
func (c *Controller) run(jobID uuid.UUID, mode crawl.Mode, opts crawl.ScrapeOptions, runNames []string) {
	ctx := c.cfg.BaseContext

	if mode == crawl.ModeFull {
		c.publish(event.Progress(jobID, 0, "מאתר רשימת סניפים", c.cfg.Clock.Now()))
		clubs, err := c.cfg.Source.Clubs(ctx)
		if err != nil || len(clubs) == 0 {
			if err == nil {
				err = fmt.Errorf("club source returned no clubs")
			}
			c.logger.Error("club discovery failed", zap.Error(err))
			c.finishCritical(jobID, fmt.Sprintf("איתור רשימת הסניפים נכשל: %v", err))
			return
		}
		names := make([]string, 0, len(clubs))
		c.mu.Lock()
		c.clubs = make(map[string]crawl.Club, len(clubs))
		for _, club := range clubs {
			c.clubs[club.Name] = club
			names = append(names, club.Name)
		}
		runNames = c.store.Initialize(names, crawl.ModeFull)
		c.job.TotalClubs = len(runNames)
		job := c.job
		c.mu.Unlock()
		c.publish(event.JobStarted(job, c.cfg.Clock.Now()))
	} else {
		c.mu.Lock()
		job := c.job
		c.mu.Unlock()
		c.publish(event.JobStarted(job, c.cfg.Clock.Now()))
	}

	if c.cfg.Sink != nil {
		c.mu.Lock()
		startedAt := c.job.StartedAt
		c.mu.Unlock()
		if err := c.cfg.Sink.BeginJob(jobID, startedAt); err != nil {
			c.logger.Error("record sink begin failed", zap.Error(err))
			c.finishCritical(jobID, fmt.Sprintf("פתיחת קובץ הפלט נכשלה: %v", err))
			return
		}
	}

	total := len(runNames)
	processed := 0
	critical := false

	for i, name := range runNames {
		c.mu.Lock()
		stopped := c.stopRequested
		c.mu.Unlock()
		if stopped {
			break
		}

		c.beginClub(jobID, name, i, total)
		records, err := c.scrapeClub(ctx, jobID, name, opts)
		switch {
		case err != nil && crawl.IsCritical(err):
			c.failClub(jobID, name, err.Error())
			critical = true
		case err != nil:
			c.failClub(jobID, name, err.Error())
		default:
			c.succeedClub(jobID, name, records)
		}

		processed++
		percent := processed * 100 / total
		c.mu.Lock()
		if percent > c.job.Progress {
			c.job.Progress = percent
		}
		c.job.CurrentDay = ""
		c.mu.Unlock()
		c.publish(event.Progress(jobID, percent, fmt.Sprintf("הושלם עיבוד %d מתוך %d סניפים", processed, total), c.cfg.Clock.Now()))

		if critical {
			c.skipRemaining(jobID)
			break
		}
	}

	c.finish(jobID, critical)
}

func (c *Controller) beginClub(jobID uuid.UUID, name string, index, total int) {
	c.mu.Lock()
	c.job.CurrentIndex = index
	c.job.CurrentClub = name
	c.job.Message = fmt.Sprintf("מעבד סניף %d/%d: %s", index+1, total, name)
	c.mu.Unlock()

	if err := c.store.Transition(name, crawl.ClubProcessing, ""); err != nil {
		// Programming-error class; logged, never user-surfaced.
		c.logger.Error("club transition failed", zap.String("club", name), zap.Error(err))
	}
	c.publish(event.ClubProcessing(jobID, name, index+1, total, c.cfg.Clock.Now()))
}

func (c *Controller) scrapeClub(ctx context.Context, jobID uuid.UUID, name string, opts crawl.ScrapeOptions) ([]crawl.ScheduleRecord, error) {
	c.mu.Lock()
	club, ok := c.clubs[name]
	c.mu.Unlock()
	if !ok {
		club = crawl.Club{Name: name}
	}

	onDay := func(day string) {
		c.mu.Lock()
		c.job.CurrentDay = day
		c.mu.Unlock()
		c.publish(event.DayProcessing(jobID, name, day, c.cfg.Clock.Now()))
	}
	onWarn := func(message string) {
		c.logger.Warn("scrape warning", zap.String("club", name), zap.String("message", message))
		c.publish(event.Warning(jobID, message, c.cfg.Clock.Now()))
	}

	result, err := c.cfg.Scraper.ScrapeClub(ctx, club, opts, onDay, onWarn)
	if err != nil {
		return nil, err
	}
	if c.cfg.Sink != nil {
		if err := c.cfg.Sink.WriteClub(ctx, name, result.Records); err != nil {
			return nil, fmt.Errorf("persist records: %w", err)
		}
	}
	return result.Records, nil
}

func (c *Controller) succeedClub(jobID uuid.UUID, name string, records []crawl.ScheduleRecord) {
	if err := c.store.Transition(name, crawl.ClubSucceeded, ""); err != nil {
		c.logger.Error("club transition failed", zap.String("club", name), zap.Error(err))
	}
	c.publish(event.ClubSucceeded(jobID, name, len(records), c.cfg.Clock.Now()))
}

func (c *Controller) failClub(jobID uuid.UUID, name, reason string) {
	if err := c.store.Transition(name, crawl.ClubFailed, reason); err != nil {
		c.logger.Error("club transition failed", zap.String("club", name), zap.Error(err))
	}
	c.logger.Warn("club failed", zap.String("club", name), zap.String("reason", reason))
	c.publish(event.ClubFailed(jobID, name, reason, c.cfg.Clock.Now()))
}

// skipRemaining fails every still-pending club after a critical abort so the
// run ends with a status for all of its clubs.
func (c *Controller) skipRemaining(jobID uuid.UUID) {
	skipped := c.store.MarkPendingFailed(skippedReason)
	now := c.cfg.Clock.Now()
	for _, name := range skipped {
		c.publish(event.ClubFailed(jobID, name, skippedReason, now))
	}
}

// finishCritical terminates a run that never reached the club loop.
func (c *Controller) finishCritical(jobID uuid.UUID, message string) {
	c.mu.Lock()
	c.job.CriticalError = true
	c.job.Message = message
	c.mu.Unlock()
	c.publish(event.Warning(jobID, message, c.cfg.Clock.Now()))
	c.finish(jobID, true)
}

func (c *Controller) finish(jobID uuid.UUID, critical bool) {
	counts := crawl.Snapshot{Clubs: c.store.Statuses()}.Counts()
	now := c.cfg.Clock.Now()

	c.mu.Lock()
	c.job.CriticalError = c.job.CriticalError || critical
	c.job.StoppedEarly = c.stopRequested
	c.job.CurrentClub = ""
	c.job.CurrentDay = ""
	c.job.CompletedAt = &now

	switch {
	case c.job.CriticalError && counts.Succeeded == 0:
		c.job.State = crawl.JobFailed
		c.job.Message = "תהליך איסוף הנתונים נכשל"
	case c.job.StoppedEarly:
		c.job.State = crawl.JobCompleted
		c.job.Message = "תהליך איסוף הנתונים הופסק"
	case counts.Failed > 0:
		c.job.State = crawl.JobCompleted
		c.job.Message = "איסוף הנתונים הסתיים (עם שגיאות בחלק מהסניפים)"
	default:
		c.job.State = crawl.JobCompleted
		c.job.Message = "איסוף הנתונים הסתיים בהצלחה"
	}
	job := c.job
	c.mu.Unlock()

	c.logger.Info("crawl job finished",
		zap.String("job_id", jobID.String()),
		zap.String("state", string(job.State)),
		zap.Bool("stopped_early", job.StoppedEarly),
		zap.Bool("critical_error", job.CriticalError),
		zap.Int("succeeded", counts.Succeeded),
		zap.Int("failed", counts.Failed),
	)
	c.publish(event.JobFinished(job, counts.Succeeded, counts.Failed, now))
}

func (c *Controller) publish(evt event.Event) {
	c.cfg.Publisher.Publish(evt)
}
