package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner.
func PrintBanner(config *Config, logger arbor.ILogger) {
	version := GetVersion()
	build := GetBuild()

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("BOLAGSRADAR")
	b.PrintCenteredText("Swedish Company Data Acquisition Pipeline")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 18)
	b.PrintKeyValue("Build", build, 18)
	b.PrintKeyValue("Environment", config.Environment, 18)
	b.PrintKeyValue("Database", config.Storage.DatabasePath, 18)
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("version", version).
		Str("build", build).
		Str("environment", config.Environment).
		Str("database", config.Storage.DatabasePath).
		Msg("bolagsradar started")

	printCapabilities(config, logger)
	fmt.Printf("\n")
}

func printCapabilities(config *Config, logger arbor.ILogger) {
	fmt.Printf("Stages enabled:\n")
	fmt.Printf("   - discovery  (seed org numbers)\n")
	fmt.Printf("   - registry   (Bolagsverket enrichment)\n")
	fmt.Printf("   - graph      (downstream sink emission)\n")
	fmt.Printf("   - scraped    (allabolag.se director enrichment)\n")

	logger.Info().
		Int("discovery_concurrency", config.Concurrency.Discovery).
		Int("registry_concurrency", config.Concurrency.Registry).
		Int("scraped_concurrency", config.Concurrency.Scraped).
		Bool("scraped_chromedp", config.Behavior.ScrapedUseChromedp).
		Msg("pipeline concurrency")
}

// PrintShutdownBanner displays the application shutdown banner.
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText("BOLAGSRADAR")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("bolagsradar shutting down")
}

// PrintColorizedMessage prints a message with the given color. It does not
// log: the logger argument is unused, and callers log separately.
func PrintColorizedMessage(color, message string, logger arbor.ILogger) {
	fmt.Printf("%s%s%s\n", color, message, banner.ColorReset)
}

// PrintSuccess prints a success message in green and logs it.
func PrintSuccess(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorGreen, fmt.Sprintf("✓ %s", message), logger)
	logger.Info().Str("type", "success").Msg(message)
}

// PrintError prints an error message in red and logs it.
func PrintError(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorRed, fmt.Sprintf("✗ %s", message), logger)
	logger.Error().Str("type", "error").Msg(message)
}

// PrintWarning prints a warning message in yellow and logs it.
func PrintWarning(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorYellow, fmt.Sprintf("⚠ %s", message), logger)
	logger.Warn().Str("type", "warning").Msg(message)
}

// PrintInfo prints an info message in cyan and logs it.
func PrintInfo(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorCyan, fmt.Sprintf("ℹ %s", message), logger)
	logger.Info().Str("type", "info").Msg(message)
}
