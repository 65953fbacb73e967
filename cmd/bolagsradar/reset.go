package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bolagsradar/internal/common"
	"github.com/ternarybob/bolagsradar/internal/storage/sqlite"
)

var resetFlags struct {
	inProgress bool
	blocked    bool
	// staleOnly is kept as a deprecated alias for -in-progress.
	staleOnly bool
}

var resetCmd = &subcommand{
	short: "requeue stale in-progress and/or blocked jobs",
	registerFlags: func(fs *flag.FlagSet) {
		fs.BoolVar(&resetFlags.inProgress, "in-progress", false, "only reset stale in-progress jobs, leave blocked jobs alone")
		fs.BoolVar(&resetFlags.blocked, "blocked", false, "only force-reset blocked jobs (ignoring cool-down), leave in-progress jobs alone")
		fs.BoolVar(&resetFlags.staleOnly, "stale-only", false, "deprecated alias for -in-progress")
	},
	run: runReset,
}

func runReset(config *common.Config, logger arbor.ILogger, fs *flag.FlagSet) error {
	db, err := openDB(config, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqlite.NewJobStore(db, logger)
	ctx := context.Background()

	onlyInProgress := resetFlags.inProgress || resetFlags.staleOnly
	onlyBlocked := resetFlags.blocked
	if onlyInProgress && onlyBlocked {
		return fmt.Errorf("reset: -in-progress and -blocked are mutually exclusive; omit both to reset everything")
	}

	if !onlyBlocked {
		staleCount, err := store.ResetInProgress(ctx, config.Timing.StaleJobTimeout)
		if err != nil {
			return fmt.Errorf("reset stale in-progress jobs: %w", err)
		}
		fmt.Printf("reset %d stale in-progress job(s)\n", staleCount)
	}

	if !onlyInProgress {
		var blockedCount int
		var err error
		if onlyBlocked {
			// Explicit -blocked is an operator override: force the reset
			// even for jobs still inside their cool-down window.
			blockedCount, err = store.ForceResetBlocked(ctx)
		} else {
			blockedCount, err = store.ResetBlocked(ctx)
		}
		if err != nil {
			return fmt.Errorf("reset blocked jobs: %w", err)
		}
		fmt.Printf("reset %d blocked job(s)\n", blockedCount)
	}

	return nil
}
