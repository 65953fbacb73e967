package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bolagsradar/internal/adapters/discovery"
	"github.com/ternarybob/bolagsradar/internal/common"
	"github.com/ternarybob/bolagsradar/internal/models"
	"github.com/ternarybob/bolagsradar/internal/storage/sqlite"
)

var discoverFlags struct {
	legalFormCode string
	onlyActive    bool
	limit         int
	pageSize      int
}

var discoverCmd = &subcommand{
	short: "page through the Discovery source and enqueue newly found organisation numbers",
	registerFlags: func(fs *flag.FlagSet) {
		fs.StringVar(&discoverFlags.legalFormCode, "legal-form", "", "restrict to one legal form code")
		fs.BoolVar(&discoverFlags.onlyActive, "only-active", true, "restrict to currently active organisations")
		fs.IntVar(&discoverFlags.limit, "limit", 0, "stop after enqueueing this many organisation numbers (0 = unbounded)")
		fs.IntVar(&discoverFlags.pageSize, "page-size", 500, "organisations fetched per page (capped at the source's max_page)")
	},
	run: runDiscover,
}

func runDiscover(config *common.Config, logger arbor.ILogger, fs *flag.FlagSet) error {
	adapter, err := discovery.New(config, logger)
	if err != nil {
		return fmt.Errorf("build discovery adapter: %w", err)
	}
	defer adapter.Close()

	ctx := context.Background()
	filters := discovery.Filters{LegalFormCode: discoverFlags.legalFormCode, OnlyActive: discoverFlags.onlyActive}

	total, err := adapter.CountAvailable(ctx, filters)
	if err != nil {
		return fmt.Errorf("count available organisations: %w", err)
	}
	logger.Info().Int("available", total).Msg("Discovery sweep starting")

	db, err := openDB(config, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	store := sqlite.NewJobStore(db, logger)

	var enqueued int
	for offset := 0; offset < total; offset += discoverFlags.pageSize {
		if discoverFlags.limit > 0 && enqueued >= discoverFlags.limit {
			break
		}

		page, err := adapter.FetchPage(ctx, offset, discoverFlags.pageSize, filters)
		if err != nil {
			return fmt.Errorf("fetch discovery page at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		orgNrs := make([]models.OrgNumber, 0, len(page))
		for _, record := range page {
			orgNr, err := models.CanonicalizeOrgNumber(record.OrgNr)
			if err != nil {
				continue
			}
			orgNrs = append(orgNrs, orgNr)
		}

		inserted, err := store.AddJobs(ctx, orgNrs, 0, models.StageRegistry)
		if err != nil {
			return fmt.Errorf("enqueue discovery page at offset %d: %w", offset, err)
		}
		enqueued += inserted

		logger.Debug().Int("offset", offset).Int("page_size", len(page)).Int("inserted", inserted).Msg("Discovery page processed")
	}

	logger.Info().Int("enqueued", enqueued).Msg("Discovery sweep complete")
	return nil
}
