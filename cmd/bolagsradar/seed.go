package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bolagsradar/internal/common"
	"github.com/ternarybob/bolagsradar/internal/models"
	"github.com/ternarybob/bolagsradar/internal/storage/sqlite"
)

var seedFlags struct {
	file     string
	priority int
}

var seedCmd = &subcommand{
	short: "enqueue organisation numbers as already discovery-complete, pending at Registry",
	registerFlags: func(fs *flag.FlagSet) {
		fs.StringVar(&seedFlags.file, "file", "", "path to a file with one organisation number per line (default: read stdin)")
		fs.IntVar(&seedFlags.priority, "priority", 0, "priority assigned to every seeded job (higher claims first)")
	},
	run: runSeed,
}

func runSeed(config *common.Config, logger arbor.ILogger, fs *flag.FlagSet) error {
	source := os.Stdin
	if seedFlags.file != "" {
		f, err := os.Open(seedFlags.file)
		if err != nil {
			return fmt.Errorf("open seed file: %w", err)
		}
		defer f.Close()
		source = f
	}

	var orgNrs []models.OrgNumber
	scanner := bufio.NewScanner(source)
	var lineNo int
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		orgNr, err := models.CanonicalizeOrgNumber(line)
		if err != nil {
			logger.Warn().Int("line", lineNo).Str("value", line).Err(err).Msg("Skipping invalid organisation number")
			continue
		}
		orgNrs = append(orgNrs, orgNr)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read seed input: %w", err)
	}

	if len(orgNrs) == 0 {
		logger.Warn().Msg("No valid organisation numbers to seed")
		return nil
	}

	db, err := openDB(config, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqlite.NewJobStore(db, logger)
	ctx := context.Background()
	inserted, err := store.AddJobs(ctx, orgNrs, seedFlags.priority, models.StageRegistry)
	if err != nil {
		return fmt.Errorf("seed jobs: %w", err)
	}

	logger.Info().
		Int("read", len(orgNrs)).
		Int("inserted", inserted).
		Int("already_known", len(orgNrs)-inserted).
		Msg("Seed complete")
	return nil
}
