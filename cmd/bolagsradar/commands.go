package main

import (
	"flag"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bolagsradar/internal/common"
	"github.com/ternarybob/bolagsradar/internal/storage/sqlite"
)

// openDB opens the job store's SQLite database using the configured
// path, with the same tuning pragmas the teacher's storage layer applies
// (WAL mode, a single serialized writer connection).
func openDB(config *common.Config, logger arbor.ILogger) (*sqlite.DB, error) {
	return sqlite.Open(logger, &sqlite.Config{
		Path:           config.Storage.DatabasePath,
		Environment:    config.Environment,
		ResetOnStartup: false,
		BusyTimeoutMS:  5000,
		CacheSizeMB:    64,
		WALMode:        true,
	})
}

// subcommand is one bolagsradar CLI verb: its own flag set and its own
// run function, dispatched by os.Args[1] in main. Mirrors the teacher's
// one-file-per-subcommand cmd/ layout, minus the cobra scaffolding the
// teacher never actually wired up.
type subcommand struct {
	short         string
	registerFlags func(fs *flag.FlagSet)
	run           func(config *common.Config, logger arbor.ILogger, fs *flag.FlagSet) error
}

var subcommands = map[string]*subcommand{
	"seed":     seedCmd,
	"discover": discoverCmd,
	"run":      runCmd,
	"stats":    statsCmd,
	"reset":    resetCmd,
	"export":   exportCmd,
}
