package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bolagsradar/internal/adapters/discovery"
	"github.com/ternarybob/bolagsradar/internal/adapters/registry"
	"github.com/ternarybob/bolagsradar/internal/adapters/scraped"
	"github.com/ternarybob/bolagsradar/internal/common"
	"github.com/ternarybob/bolagsradar/internal/models"
	"github.com/ternarybob/bolagsradar/internal/orchestrator"
	"github.com/ternarybob/bolagsradar/internal/sink"
	"github.com/ternarybob/bolagsradar/internal/storage/sqlite"
)

var runFlags struct {
	stage    string
	max      int
	watch    bool
	interval int
}

var runCmd = &subcommand{
	short: "run the pipeline, optionally scoped to one stage, bounded, or in continuous watch mode",
	registerFlags: func(fs *flag.FlagSet) {
		fs.StringVar(&runFlags.stage, "stage", "", "comma-separated stages to drive (discovery,registry,graph,scraped); default: limits.stages_enabled")
		fs.IntVar(&runFlags.max, "max", 0, "stop once this many jobs reach their final stage (default: limits.max_jobs_per_run, 0 = unbounded)")
		fs.BoolVar(&runFlags.watch, "watch", false, "keep running after the scoped queues drain, until interrupted")
		fs.IntVar(&runFlags.interval, "interval", 0, "seconds an idle worker waits before re-polling (default 2)")
	},
	run: runRun,
}

func parseStages(csv string) ([]models.Stage, error) {
	if csv == "" {
		return nil, nil
	}
	var stages []models.Stage
	valid := map[models.Stage]bool{}
	for _, s := range models.StageOrder {
		valid[s] = true
	}
	for _, part := range strings.Split(csv, ",") {
		name := models.Stage(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if !valid[name] {
			return nil, fmt.Errorf("unknown stage %q", name)
		}
		stages = append(stages, name)
	}
	return stages, nil
}

func runRun(config *common.Config, logger arbor.ILogger, fs *flag.FlagSet) error {
	stages, err := parseStages(runFlags.stage)
	if err != nil {
		return err
	}

	db, err := openDB(config, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqlite.NewJobStore(db, logger)

	graphSink, err := sink.NewQueueSink(db.Raw(), "graph-sink")
	if err != nil {
		return fmt.Errorf("build graph sink: %w", err)
	}

	discoveryAdapter, err := discovery.New(config, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Discovery adapter unavailable (mTLS certificate not configured?), Discovery stage will still pass jobs through")
	}
	defer func() {
		if discoveryAdapter != nil {
			discoveryAdapter.Close()
		}
	}()

	registryAdapter := registry.New(config, logger)
	defer registryAdapter.Close()

	scrapedAdapter := scraped.New(config, logger)
	defer scrapedAdapter.Close()

	handlers := []orchestrator.StageHandler{
		discovery.NewHandler(),
		registryAdapter,
		sink.NewGraphHandler(store, graphSink, logger),
		scrapedAdapter,
	}

	orch := orchestrator.New(store, config, logger, handlers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	maxJobs := runFlags.max
	if maxJobs == 0 {
		maxJobs = config.Limits.MaxJobsPerRun
	}
	opts := orchestrator.RunOptions{
		Stages:  stages,
		MaxJobs: maxJobs,
		Watch:   runFlags.watch,
	}
	if runFlags.interval > 0 {
		opts.PollInterval = time.Duration(runFlags.interval) * time.Second
	}

	logger.Info().
		Str("environment", config.Environment).
		Str("stages", stageNamesCSV(opts.Stages)).
		Int("max_jobs", opts.MaxJobs).
		Bool("watch", opts.Watch).
		Msg("Starting bolagsradar pipeline")
	return orch.Run(ctx, opts)
}

func stageNamesCSV(stages []models.Stage) string {
	if len(stages) == 0 {
		return "(config default)"
	}
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	return strings.Join(names, ",")
}
