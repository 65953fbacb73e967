package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bolagsradar/internal/common"
	"github.com/ternarybob/bolagsradar/internal/models"
	"github.com/ternarybob/bolagsradar/internal/storage/sqlite"
)

// StageHandler processes one claimed job at its current stage and
// returns the payload to hand the next stage, or an error describing
// what went wrong. Returning a *BlockedError (via errors.As) tells the
// orchestrator to cool the job down instead of retrying immediately.
type StageHandler interface {
	Stage() models.Stage
	Process(ctx context.Context, job models.Job) ([]byte, error)
}

// BlockedError signals that a handler detected the remote host blocking
// this client; the orchestrator records a block_events row and puts the
// job into cool-down rather than retrying immediately.
type BlockedError struct {
	Host   string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked by %s: %s", e.Host, e.Reason)
}

// RateLimitedError signals that a source's own rate limit rejected the
// request (e.g. the Registry Adapter's 429). The orchestrator re-queues
// the job as Pending after RetryAfter without counting it as a failed
// attempt, per spec.md's §5 rate-limit-enforcement note.
type RateLimitedError struct {
	Host       string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Host, e.RetryAfter)
}

// Orchestrator drives the Discovery -> Registry -> Graph -> Scraped
// pipeline: one worker pool per stage, claiming batches from the job
// store, dispatching to the stage's handler, and advancing or failing
// the job based on the result. Generalized from teacher's
// crawler.Service worker-pool-per-crawl-job shape to a worker-pool-
// per-pipeline-stage shape.
type Orchestrator struct {
	store    *sqlite.JobStore
	config   *common.Config
	logger   arbor.ILogger
	handlers map[models.Stage]StageHandler

	wg        sync.WaitGroup
	completed atomic.Int64
}

// RunOptions scopes one invocation of Run: which stages to drive, an
// optional cap on how many jobs reach their final stage before returning,
// and whether to keep running after the scoped queues empty out.
type RunOptions struct {
	Stages       []models.Stage // empty = driven by config.Limits.StagesEnabled (or all stages if that's empty too)
	MaxJobs      int            // 0 = unbounded
	Watch        bool           // false = drain the scoped queues once, then return
	PollInterval time.Duration  // how long an idle worker waits before re-polling; 0 = default 2s
}

// resolveStages turns opts.Stages (if set) or config.Limits.StagesEnabled
// (if set) into the ordered subset of models.StageOrder to run workers for.
func (o *Orchestrator) resolveStages(opts RunOptions) []models.Stage {
	if len(opts.Stages) > 0 {
		return opts.Stages
	}
	if len(o.config.Limits.StagesEnabled) == 0 {
		return models.StageOrder
	}

	enabled := make(map[models.Stage]bool, len(o.config.Limits.StagesEnabled))
	for _, name := range o.config.Limits.StagesEnabled {
		enabled[models.Stage(name)] = true
	}

	var stages []models.Stage
	for _, stage := range models.StageOrder {
		if enabled[stage] {
			stages = append(stages, stage)
		}
	}
	return stages
}

// New creates an Orchestrator. handlers must have one entry per stage
// the orchestrator will actually run workers for; a stage with no
// registered handler is skipped with a warning.
func New(store *sqlite.JobStore, config *common.Config, logger arbor.ILogger, handlers []StageHandler) *Orchestrator {
	byStage := make(map[models.Stage]StageHandler, len(handlers))
	for _, h := range handlers {
		byStage[h.Stage()] = h
	}
	return &Orchestrator{store: store, config: config, logger: logger, handlers: byStage}
}

// Run starts one worker pool per stage named by opts (or by
// config.Limits.StagesEnabled when opts.Stages is empty) plus the
// maintenance sweep. With opts.Watch it blocks until ctx is cancelled;
// otherwise it returns once the scoped stages' queues have drained or
// opts.MaxJobs jobs have reached their final stage, whichever comes
// first. Either way it waits for in-flight work to finish before
// returning.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	concurrency := map[models.Stage]int{
		models.StageDiscovery: o.config.Concurrency.Discovery,
		models.StageRegistry:  o.config.Concurrency.Registry,
		models.StageGraph:     o.config.Concurrency.Graph,
		models.StageScraped:   o.config.Concurrency.Scraped,
	}

	stages := o.resolveStages(opts)
	if len(stages) == 0 {
		return fmt.Errorf("orchestrator: no stages resolved to run (check --stage / limits.stages_enabled)")
	}

	for _, stage := range stages {
		handler, ok := o.handlers[stage]
		if !ok {
			o.logger.Warn().Str("stage", string(stage)).Msg("No handler registered for stage, skipping worker pool")
			continue
		}

		n := concurrency[stage]
		if n <= 0 {
			n = 1
		}
		pollInterval := opts.PollInterval
		if pollInterval <= 0 {
			pollInterval = 2 * time.Second
		}
		for i := 0; i < n; i++ {
			o.wg.Add(1)
			go o.stageWorker(runCtx, stage, handler, i, opts.MaxJobs, pollInterval, cancel)
		}
	}

	o.wg.Add(1)
	go o.maintenanceLoop(runCtx)

	if !opts.Watch {
		o.wg.Add(1)
		go o.drainMonitor(runCtx, stages, cancel)
	}

	<-runCtx.Done()
	o.logger.Info().Msg("Shutdown requested, waiting for in-flight work to finish")
	o.wg.Wait()
	o.logger.Info().Msg("Orchestrator stopped")

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// drainMonitor cancels cancel once none of the scoped stages have a
// claimable (Pending, not cooling down) or in-flight job left, i.e. the
// bounded (non-watch) run has nothing further to do.
func (o *Orchestrator) drainMonitor(ctx context.Context, stages []models.Stage, cancel context.CancelFunc) {
	defer o.wg.Done()

	scoped := make(map[models.Stage]bool, len(stages))
	for _, s := range stages {
		scoped[s] = true
	}

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stats, err := o.store.Stats(ctx)
		if err != nil {
			o.logger.Error().Err(err).Msg("Drain monitor: failed to compute stats")
			continue
		}

		outstanding := 0
		for stage, byStatus := range stats.Counts {
			if !scoped[stage] {
				continue
			}
			outstanding += byStatus[models.StatusPending] + byStatus[models.StatusInProgress]
		}
		if outstanding == 0 {
			o.logger.Info().Msg("Scoped stages drained, stopping run")
			cancel()
			return
		}
	}
}

func (o *Orchestrator) stageWorker(ctx context.Context, stage models.Stage, handler StageHandler, workerIndex int, maxJobs int, emptyBackoff time.Duration, stop context.CancelFunc) {
	defer o.wg.Done()

	log := o.logger.WithContextWriter(fmt.Sprintf("%s-%d", stage, workerIndex))
	log.Debug().Str("stage", string(stage)).Int("worker", workerIndex).Msg("Stage worker started")

	batchSize := o.config.Limits.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if stage == models.StageScraped && !o.withinActiveHours() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(emptyBackoff):
			}
			continue
		}

		jobs, err := o.store.ClaimNext(ctx, stage, batchSize)
		if err != nil {
			log.Error().Err(err).Str("stage", string(stage)).Msg("Failed to claim jobs")
			select {
			case <-ctx.Done():
				return
			case <-time.After(emptyBackoff):
			}
			continue
		}

		if len(jobs) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(emptyBackoff):
			}
			continue
		}

		for _, job := range jobs {
			o.processJob(ctx, handler, job, log)
			if maxJobs > 0 && o.completed.Load() >= int64(maxJobs) {
				log.Info().Int64("completed", o.completed.Load()).Msg("Reached --max job cap, stopping run")
				stop()
				return
			}
		}
	}
}

func (o *Orchestrator) processJob(ctx context.Context, handler StageHandler, job models.Job, log arbor.ILogger) {
	stageCtx, cancel := context.WithTimeout(ctx, o.config.Timing.StageTimeout)
	defer cancel()

	start := time.Now()
	payload, err := handler.Process(stageCtx, job)
	duration := time.Since(start)

	if err == nil {
		if completeErr := o.store.CompleteStage(ctx, job.OrgNr, job.Stage, payload); completeErr != nil {
			log.Error().Err(completeErr).Str("org_nr", job.OrgNr.String()).Msg("Failed to record completed stage")
		} else {
			log.Info().
				Str("org_nr", job.OrgNr.String()).
				Str("stage", string(job.Stage)).
				Dur("duration", duration).
				Msg("Stage completed")
			if _, hasNext := models.NextStage(job.Stage); !hasNext {
				o.completed.Add(1)
			}
		}
		return
	}

	var blocked *BlockedError
	if errors.As(err, &blocked) {
		cooldown := time.Now().Add(o.config.Timing.BlockCooldown)
		if blockErr := o.store.BlockJob(ctx, job.OrgNr, blocked.Host, blocked.Reason, cooldown); blockErr != nil {
			log.Error().Err(blockErr).Str("org_nr", job.OrgNr.String()).Msg("Failed to record blocked job")
		} else {
			log.Warn().
				Str("org_nr", job.OrgNr.String()).
				Str("host", blocked.Host).
				Time("cooldown_until", cooldown).
				Msg("Job blocked, entering cool-down")
		}
		return
	}

	var rateLimited *RateLimitedError
	if errors.As(err, &rateLimited) {
		cooldown := time.Now().Add(rateLimited.RetryAfter)
		if deferErr := o.store.DeferJob(ctx, job.OrgNr, cooldown); deferErr != nil {
			log.Error().Err(deferErr).Str("org_nr", job.OrgNr.String()).Msg("Failed to defer rate-limited job")
		} else {
			log.Warn().
				Str("org_nr", job.OrgNr.String()).
				Str("host", rateLimited.Host).
				Time("retry_after", cooldown).
				Msg("Job rate limited, re-queueing without counting an attempt")
		}
		return
	}

	giveUp := job.Attempts+1 >= o.config.Retry.MaxRetries

	if failErr := o.store.FailJob(ctx, job.OrgNr, err.Error(), giveUp); failErr != nil {
		log.Error().Err(failErr).Str("org_nr", job.OrgNr.String()).Msg("Failed to record job failure")
	}

	level := log.Warn()
	if giveUp {
		level = log.Error()
	}
	level.
		Err(err).
		Str("org_nr", job.OrgNr.String()).
		Str("stage", string(job.Stage)).
		Bool("give_up", giveUp).
		Dur("duration", duration).
		Msg("Stage processing failed")
}

func (o *Orchestrator) withinActiveHours() bool {
	now := time.Now()
	if o.config.Timing.SkipWeekends {
		if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}

	start, end := o.config.Timing.ActiveHoursStart, o.config.Timing.ActiveHoursEnd
	if start == "" || end == "" {
		return true
	}

	clock := now.Format("15:04")
	if start <= end {
		return clock >= start && clock <= end
	}
	// window wraps midnight, e.g. 22:00-06:00
	return clock >= start || clock <= end
}

// maintenanceLoop periodically resets stale in-progress jobs and
// cooled-down blocked jobs back to pending, per spec.md's crash-recovery
// requirement. Scheduled by a standard 5-field cron expression
// (Timing.MaintenanceSchedule) rather than a bare ticker, so operators
// can e.g. sweep more often during business hours than overnight;
// MaintenanceInterval remains as the fallback if the schedule fails to
// parse at runtime (it's validated up front by LoadFromFiles).
func (o *Orchestrator) maintenanceLoop(ctx context.Context) {
	defer o.wg.Done()

	schedule := o.config.Timing.MaintenanceSchedule
	if schedule == "" || common.ValidateMaintenanceSchedule(schedule) != nil {
		o.runTickerMaintenance(ctx)
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { o.runMaintenance(ctx) }); err != nil {
		o.logger.Error().Err(err).Str("schedule", schedule).Msg("Failed to register maintenance cron schedule, falling back to fixed interval")
		o.runTickerMaintenance(ctx)
		return
	}

	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
}

func (o *Orchestrator) runTickerMaintenance(ctx context.Context) {
	interval := o.config.Timing.MaintenanceInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runMaintenance(ctx)
		}
	}
}

func (o *Orchestrator) runMaintenance(ctx context.Context) {
	if n, err := o.store.ResetBlocked(ctx); err != nil {
		o.logger.Error().Err(err).Msg("Maintenance: failed to reset blocked jobs")
	} else if n > 0 {
		o.logger.Info().Int("count", n).Msg("Maintenance: reset cooled-down blocked jobs")
	}

	if n, err := o.store.ResetInProgress(ctx, o.config.Timing.StaleJobTimeout); err != nil {
		o.logger.Error().Err(err).Msg("Maintenance: failed to reset stale in-progress jobs")
	} else if n > 0 {
		o.logger.Info().Int("count", n).Msg("Maintenance: reset stale in-progress jobs")
	}

	stats, err := o.store.Stats(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("Maintenance: failed to compute stats")
		return
	}
	o.logger.Info().Int("total_jobs", stats.Total).Msg("Pipeline progress")
}
