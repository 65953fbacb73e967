package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bolagsradar/internal/common"
	"github.com/ternarybob/bolagsradar/internal/models"
	"github.com/ternarybob/bolagsradar/internal/storage/sqlite"
)

var statsCmd = &subcommand{
	short:         "print a stage x status job count breakdown plus recent request health",
	registerFlags: func(fs *flag.FlagSet) {},
	run:           runStats,
}

func runStats(config *common.Config, logger arbor.ILogger, fs *flag.FlagSet) error {
	db, err := openDB(config, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqlite.NewJobStore(db, logger)
	stats, err := store.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("compute stats: %w", err)
	}

	statuses := []models.Status{
		models.StatusPending,
		models.StatusInProgress,
		models.StatusCompleted,
		models.StatusFailed,
		models.StatusBlocked,
		models.StatusSkipped,
	}

	fmt.Printf("%-12s", "stage")
	for _, status := range statuses {
		fmt.Printf("%14s", status)
	}
	fmt.Println()

	for _, stage := range models.StageOrder {
		fmt.Printf("%-12s", stage)
		counts := stats.Counts[stage]
		for _, status := range statuses {
			fmt.Printf("%14d", counts[status])
		}
		fmt.Println()
	}

	fmt.Printf("\ntotal jobs: %d\n", stats.Total)

	reqStats, err := store.RequestStats(context.Background())
	if err != nil {
		return fmt.Errorf("compute request stats: %w", err)
	}
	fmt.Printf("requests today: %d\n", reqStats.Today)
	fmt.Printf("error rate (last 60 min): %.1f%% (%d/%d)\n",
		reqStats.ErrorRate60Min()*100, reqStats.Last60MinError, reqStats.Last60Min)

	return nil
}
