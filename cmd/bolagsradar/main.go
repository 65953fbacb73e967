package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bolagsradar/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags.
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	sub := os.Args[1]
	if sub == "-version" || sub == "--version" || sub == "-v" {
		fmt.Printf("bolagsradar version %s (%s)\n", common.GetVersion(), common.GetBuild())
		return
	}

	cmd, ok := subcommands[sub]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n\n", sub)
		printUsage()
		os.Exit(1)
	}

	fs := flag.NewFlagSet(sub, flag.ExitOnError)
	var configFiles configPaths
	fs.Var(&configFiles, "config", "configuration file path (repeatable, later files override earlier ones)")
	fs.Var(&configFiles, "c", "configuration file path (shorthand)")
	cmd.registerFlags(fs)

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(1)
	}

	config, logger, err := bootstrap(configFiles)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("failed to initialize")
		os.Exit(1)
	}

	if err := cmd.run(config, logger, fs); err != nil {
		logger.Fatal().Err(err).Msg(fmt.Sprintf("%s failed", sub))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: bolagsradar <command> [flags]")
	fmt.Fprintln(os.Stderr, "commands:")
	for _, name := range []string{"seed", "discover", "run", "stats", "reset", "export"} {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", name, subcommands[name].short)
	}
}

// bootstrap loads configuration and initializes the logger, in the order
// the teacher's main.go uses: defaults -> config files -> environment,
// then logger, then startup banner. Subcommand flags are not merged into
// the returned Config.
func bootstrap(configFiles configPaths) (*common.Config, arbor.ILogger, error) {
	if len(configFiles) == 0 {
		if _, err := os.Stat("bolagsradar.toml"); err == nil {
			configFiles = append(configFiles, "bolagsradar.toml")
		} else if _, err := os.Stat("deployments/local/bolagsradar.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/bolagsradar.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := common.SetupLogger(config)
	common.PrintBanner(config, logger)

	return config, logger, nil
}
