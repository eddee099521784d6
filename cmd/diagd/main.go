// Diagd - diagnostics daemon entry point
//
// The daemon runs the local diagnostics pipeline: it classifies and
// records application errors, watches connectivity, keeps analytics
// over the error stream, and serves the loopback dashboard. One-shot
// commands read the same on-disk state without starting the daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/armorclaw/diagnostics/internal/device"
	"github.com/armorclaw/diagnostics/internal/sched"
	"github.com/armorclaw/diagnostics/pkg/analytics"
	"github.com/armorclaw/diagnostics/pkg/config"
	"github.com/armorclaw/diagnostics/pkg/dashboard"
	errsys "github.com/armorclaw/diagnostics/pkg/errors"
	"github.com/armorclaw/diagnostics/pkg/logger"
	"github.com/armorclaw/diagnostics/pkg/netmon"
	"github.com/armorclaw/diagnostics/pkg/pipeline"
	"github.com/armorclaw/diagnostics/pkg/privacy"
	"github.com/armorclaw/diagnostics/pkg/seal"
)

var (
	version   = "1.4.2"
	buildTime = "unknown"
)

// Terminal styles for rendered command output
var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4DA3FF"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

type cliConfig struct {
	command      string
	configPath   string
	configOutput string
	dataDir      string
	logLevel     string
	verbose      bool
	version      bool
	help         bool
	// stats/report/export flags
	period     string
	format     string
	sealExport bool
	// patterns flags
	minCount int
	trending bool
	days     int
	// logs flags
	logFile   string
	clearLogs bool
	// check flags
	lanScan    bool
	lanService string
}

func main() {
	cliCfg := parseFlags()

	if cliCfg.version || cliCfg.command == "version" {
		printVersion()
		return
	}

	if cliCfg.help || cliCfg.command == "help" {
		printHelp()
		return
	}

	if cliCfg.command == "init" {
		runInitCommand(cliCfg)
		return
	}

	if cliCfg.command == "validate" {
		runValidateCommand(cliCfg)
		return
	}

	if cliCfg.command == "check" {
		runCheckCommand(cliCfg)
		return
	}

	if cliCfg.command == "stats" {
		runStatsCommand(cliCfg)
		return
	}

	if cliCfg.command == "patterns" {
		runPatternsCommand(cliCfg)
		return
	}

	if cliCfg.command == "report" {
		runReportCommand(cliCfg)
		return
	}

	if cliCfg.command == "logs" {
		runLogsCommand(cliCfg)
		return
	}

	if cliCfg.command == "export" {
		runExportCommand(cliCfg)
		return
	}

	if cliCfg.command == "codes" {
		runCodesCommand(cliCfg)
		return
	}

	if cliCfg.command != "" && cliCfg.command != "daemon" {
		printHelp()
		log.Fatalf("Unknown command: %s", cliCfg.command)
	}

	// Default: run the daemon in the foreground
	runDaemonCommand(cliCfg)
}

func parseFlags() cliConfig {
	cfg := cliConfig{}

	flag.StringVar(&cfg.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&cfg.configOutput, "config-output", "", "Output path for 'init' command")
	flag.StringVar(&cfg.dataDir, "data-dir", "", "Data directory (overrides config)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&cfg.verbose, "v", false, "Verbose logging (sets log level to debug)")
	flag.BoolVar(&cfg.version, "version", false, "Print version and exit")
	flag.BoolVar(&cfg.help, "help", false, "Show help message")

	// stats / report / export flags
	flag.StringVar(&cfg.period, "period", "", "Time window, e.g. 1h, 24h, 7d (stats, report, export)")
	flag.StringVar(&cfg.format, "format", "json", "Export format: json, csv, text (export command)")
	flag.BoolVar(&cfg.sealExport, "seal", false, "Encrypt the export with a passphrase (export command)")

	// patterns flags
	flag.IntVar(&cfg.minCount, "min", 0, "Minimum occurrences for a pattern (patterns command)")
	flag.BoolVar(&cfg.trending, "trending", false, "Show only recent spikes (patterns command)")
	flag.IntVar(&cfg.days, "days", 0, "Trailing days for trending (patterns command)")

	// logs flags
	flag.StringVar(&cfg.logFile, "file", "", "Print one log file by name (logs command)")
	flag.BoolVar(&cfg.clearLogs, "clear", false, "Delete all log files (logs command)")

	// check flags
	flag.BoolVar(&cfg.lanScan, "lan", false, "Also scan the local network (check command)")
	flag.StringVar(&cfg.lanService, "service", "", "mDNS service to scan for, empty scans the common set (check command)")

	flag.Parse()

	args := flag.Args()
	if len(args) > 0 {
		cfg.command = args[0]
	}

	if cfg.verbose {
		cfg.logLevel = "debug"
	}

	return cfg
}

// loadConfig loads the configuration and applies CLI overrides.
func loadConfig(cliCfg cliConfig) *config.Config {
	cfg, err := config.Load(cliCfg.configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cliCfg.dataDir != "" {
		cfg.DataDir = cliCfg.dataDir
	}
	if cliCfg.logLevel != "" {
		cfg.Logger.Level = cliCfg.logLevel
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// openPipeline assembles the pipeline over the on-disk state for
// one-shot commands. The caller must Stop it.
func openPipeline(cliCfg cliConfig) (*pipeline.Pipeline, *config.Config) {
	cfg := loadConfig(cliCfg)
	pipe, err := pipeline.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to open diagnostics data: %v", err)
	}
	return pipe, cfg
}

// parsePeriodArg parses a --period value like "90m", "24h" or "7d".
// Empty input means the fallback; garbage is fatal.
func parsePeriodArg(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			log.Fatalf("Invalid period: %s", raw)
		}
		return time.Duration(n) * 24 * time.Hour
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Fatalf("Invalid period: %s", raw)
	}
	return d
}

// periodLabel is the human form of the period for headings.
func periodLabel(raw, fallback string) string {
	if raw == "" {
		return fallback
	}
	return raw
}

func sevStyle(s errsys.Severity) lipgloss.Style {
	switch {
	case s.AtLeast(errsys.SeverityCritical):
		return errStyle
	case s == errsys.SeverityError:
		return errStyle
	case s == errsys.SeverityWarning:
		return warnStyle
	default:
		return mutedStyle
	}
}

// runInitCommand generates an example configuration file
func runInitCommand(cliCfg cliConfig) {
	outputPath := cliCfg.configOutput
	if outputPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to determine home directory: %v", err)
		}
		outputPath = filepath.Join(homeDir, ".diagd", "config.toml")
	}
	if err := config.GenerateExampleConfig(outputPath); err != nil {
		log.Fatalf("Failed to generate example config: %v", err)
	}
	log.Printf("✓ Example configuration written to: %s", outputPath)
	log.Println("✓ Edit this file to customize the diagnostics daemon")
	log.Println("")
	log.Println("Quick start:")
	log.Println("  1. Start the daemon:    diagd daemon")
	log.Println("  2. Open the dashboard:  http://127.0.0.1:8675")
	log.Println("  3. Check connectivity:  diagd check")
}

// runValidateCommand validates the configuration
func runValidateCommand(cliCfg cliConfig) {
	cfg := loadConfig(cliCfg)
	log.Printf("✓ Configuration is valid!")
	log.Printf("  Data directory: %s", cfg.DataDir)
	log.Printf("  Log store:      %s", cfg.LogDir())
	log.Printf("  Analytics:      %s", cfg.AnalyticsDir())
	if cfg.IsArchiveEnabled() {
		log.Printf("  Archive:        %s (retention %d days)", cfg.ArchivePath(), cfg.Archive.RetentionDays)
	} else {
		log.Printf("  Archive:        disabled")
	}
	if cfg.IsDashboardEnabled() {
		log.Printf("  Dashboard:      %s", cfg.Dashboard.Addr)
	} else {
		log.Printf("  Dashboard:      disabled")
	}
}

// runDaemonCommand runs the pipeline, scheduler, and dashboard in the
// foreground until SIGINT or SIGTERM.
func runDaemonCommand(cliCfg cliConfig) {
	cfg := loadConfig(cliCfg)

	scrubber := privacy.New()
	appLog, err := logger.New(cfg.ToLoggerConfig("diagd", scrubber))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	log.Printf("Starting diagnostics daemon v%s", cfg.AppVersion)
	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("Host: %s", device.Collect().String())

	pipe, err := pipeline.New(cfg, appLog)
	if err != nil {
		log.Fatalf("Failed to assemble pipeline: %v", err)
	}
	if err := pipe.Start(); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}
	log.Println("Pipeline started")

	var dash *dashboard.Server
	if cfg.IsDashboardEnabled() {
		dash = dashboard.New(dashboard.Config{
			Addr:           cfg.Dashboard.Addr,
			AuthToken:      cfg.Dashboard.AuthToken,
			MaxConnections: cfg.Dashboard.MaxConnections,
		}, pipe, appLog)
		if err := dash.Start(); err != nil {
			pipe.Stop()
			log.Fatalf("Failed to start dashboard: %v", err)
		}
		log.Printf("Dashboard: %s", dash.URL())
		if cfg.Dashboard.AuthToken == "" {
			log.Printf("Warning: dashboard runs without an auth token")
		}
	}

	scheduler := sched.New(appLog)
	if cfg.Schedule.Enabled {
		mustAdd := func(name, spec string, job func()) {
			if err := scheduler.Add(name, spec, job); err != nil {
				log.Fatalf("Failed to schedule %s: %v", name, err)
			}
		}

		if cfg.Analytics.AutoCleanupEnabled {
			mustAdd("analytics-cleanup", sched.SpecAnalyticsCleanup, func() {
				if n, err := pipe.Engine().Cleanup(); err != nil {
					appLog.Warn("analytics cleanup failed", "error", err)
				} else if n > 0 {
					appLog.Info("analytics cleanup done", "removed", n)
				}
			})
		}

		if pipe.Archive() != nil {
			mustAdd("archive-prune", sched.SpecArchivePrune, func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				if n, err := pipe.Archive().Cleanup(ctx, cfg.Archive.RetentionDays); err != nil {
					appLog.Warn("archive prune failed", "error", err)
				} else if n > 0 {
					appLog.Info("archive prune done", "removed", n)
				}
			})
		}

		mustAdd("daily-report", sched.SpecDailyReport, func() {
			pipe.Engine().GenerateReport(24 * time.Hour)
		})

		scheduler.Start()
		log.Printf("Scheduler running (%d jobs)", scheduler.Entries())
	}

	// Wait for interrupt signal
	shutdownCtx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("\nShutting down...")

		if cfg.Schedule.Enabled {
			scheduler.Stop()
		}

		if dash != nil {
			ctx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := dash.Stop(ctx); err != nil {
				log.Printf("Dashboard shutdown: %v", err)
			}
			stopCancel()
		}

		pipe.Stop()
		cancel()
	}()

	<-shutdownCtx.Done()
	log.Println("Diagnostics daemon stopped")
}

// runCheckCommand probes connectivity once and prints the result
func runCheckCommand(cliCfg cliConfig) {
	cfg := loadConfig(cliCfg)
	mon := netmon.New(cfg.ToMonitorConfig(), nil, nil)

	fmt.Print("Probing internet connectivity... ")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	online := mon.CheckInternet(ctx)
	cancel()

	if online {
		fmt.Println(okStyle.Render("online"))
	} else {
		fmt.Println(errStyle.Render("offline"))
	}

	snap := mon.Snapshot()
	fmt.Printf("  Status: %s\n", snap.Status)
	fmt.Printf("  Link:   %s\n", snap.Link)

	if cliCfg.lanScan {
		target := cliCfg.lanService
		if target == "" {
			target = "common services"
		}
		fmt.Printf("\nScanning LAN for %s...\n", target)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		devices, err := mon.ScanLAN(ctx, cliCfg.lanService)
		cancel()
		if err != nil {
			log.Fatalf("LAN scan failed: %v", err)
		}
		if len(devices) == 0 {
			fmt.Println(mutedStyle.Render("  no devices found"))
			return
		}
		for _, d := range devices {
			line := fmt.Sprintf("  %-24s %s:%d", d.Name, d.Addr, d.Port)
			if d.Info != "" {
				line += " " + mutedStyle.Render(d.Info)
			}
			fmt.Println(line)
		}
	}
}

// runStatsCommand prints error statistics over a period
func runStatsCommand(cliCfg cliConfig) {
	pipe, _ := openPipeline(cliCfg)
	defer pipe.Stop()

	period := parsePeriodArg(cliCfg.period, 24*time.Hour)
	st := pipe.Engine().Statistics(period)

	fmt.Println(titleStyle.Render(fmt.Sprintf("Error statistics (last %s)", periodLabel(cliCfg.period, "24h"))))
	fmt.Printf("  Total errors:   %d\n", st.TotalErrors)
	fmt.Printf("  Affected users: %d\n", st.AffectedUsers)
	fmt.Printf("  Events per day: %.1f\n", st.EventsPerDay)
	if !st.OldestError.IsZero() {
		fmt.Printf("  Window:         %s to %s\n",
			st.OldestError.Format("2006-01-02 15:04"),
			st.NewestError.Format("2006-01-02 15:04"))
	}

	if st.TotalErrors == 0 {
		return
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("By severity"))
	order := []errsys.Severity{
		errsys.SeverityFatal, errsys.SeverityCritical, errsys.SeverityError,
		errsys.SeverityWarning, errsys.SeverityInfo,
	}
	for _, sev := range order {
		if n := st.BySeverity[sev.Label()]; n > 0 {
			fmt.Printf("  %s %d\n", sevStyle(sev).Width(9).Render(sev.Label()), n)
		}
	}

	if len(st.TopErrors) > 0 {
		fmt.Println()
		fmt.Println(titleStyle.Render("Most frequent"))
		for _, tc := range st.TopErrors {
			fmt.Printf("  %-28s %d\n", tc.Type, tc.Count)
		}
	}
}

// runPatternsCommand prints recurring error patterns
func runPatternsCommand(cliCfg cliConfig) {
	pipe, _ := openPipeline(cliCfg)
	defer pipe.Stop()

	var patterns []analytics.Pattern
	if cliCfg.trending {
		patterns = pipe.Engine().Trending(cliCfg.days)
		fmt.Println(titleStyle.Render("Trending errors"))
	} else {
		patterns = pipe.Engine().DetectPatterns(cliCfg.minCount)
		fmt.Println(titleStyle.Render("Recurring errors"))
	}

	if len(patterns) == 0 {
		fmt.Println(mutedStyle.Render("  none detected"))
		return
	}

	for _, p := range patterns {
		fmt.Printf("  %s %-24s code %-5d %3dx  last %s\n",
			sevStyle(p.Severity).Width(9).Render(p.Severity.Label()),
			p.ErrorType, p.Code, p.Occurrences,
			p.LastSeen.Format("2006-01-02 15:04"))
	}
}

// runReportCommand generates and prints a diagnostics report
func runReportCommand(cliCfg cliConfig) {
	pipe, _ := openPipeline(cliCfg)
	defer pipe.Stop()

	period := parsePeriodArg(cliCfg.period, 24*time.Hour)
	rep := pipe.Engine().GenerateReport(period)

	fmt.Println(titleStyle.Render(fmt.Sprintf("Diagnostics report, %s", rep.GeneratedAt.Format("2006-01-02 15:04"))))
	fmt.Printf("  Period:         last %s\n", periodLabel(cliCfg.period, "24h"))
	fmt.Printf("  Total errors:   %d\n", rep.Stats.TotalErrors)
	fmt.Printf("  Affected users: %d\n", rep.Stats.AffectedUsers)
	if len(rep.Domains) > 0 {
		fmt.Printf("  Domains:        %s\n", strings.Join(rep.Domains, ", "))
	}

	if len(rep.TopPatterns) > 0 {
		fmt.Println()
		fmt.Println(titleStyle.Render("Top patterns"))
		for _, p := range rep.TopPatterns {
			fmt.Printf("  - %s\n", p)
		}
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("Recommendations"))
	if len(rep.Recommendations) == 0 {
		fmt.Println(okStyle.Render("  nothing to report"))
		return
	}
	for _, r := range rep.Recommendations {
		fmt.Printf("  %s %s\n", warnStyle.Render("!"), r)
	}
}

// runLogsCommand lists, prints, or clears the on-disk log files
func runLogsCommand(cliCfg cliConfig) {
	pipe, _ := openPipeline(cliCfg)
	defer pipe.Stop()
	store := pipe.Store()

	if cliCfg.clearLogs {
		if err := store.Clear(); err != nil {
			log.Fatalf("Failed to clear logs: %v", err)
		}
		log.Println("✓ Log files cleared")
		return
	}

	if cliCfg.logFile != "" {
		content, err := store.ReadFile(cliCfg.logFile)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", cliCfg.logFile, err)
		}
		fmt.Print(content)
		return
	}

	files, err := store.Files()
	if err != nil {
		log.Fatalf("Failed to list logs: %v", err)
	}
	if len(files) == 0 {
		fmt.Println(mutedStyle.Render("no log files"))
		return
	}

	var total int64
	fmt.Println(titleStyle.Render("Log files"))
	for _, f := range files {
		fmt.Printf("  %-36s %8d B  %s\n", f.Name, f.Size, f.ModTime.Format("2006-01-02 15:04"))
		total += f.Size
	}
	fmt.Printf("  %d files, %d bytes\n", len(files), total)
}

// runExportCommand writes tracked events to a file, optionally sealed
func runExportCommand(cliCfg cliConfig) {
	pipe, _ := openPipeline(cliCfg)
	defer pipe.Stop()

	period := parsePeriodArg(cliCfg.period, 0)
	path, err := pipe.Engine().Export(cliCfg.format, period)
	if err != nil {
		if errsys.IsKind(err, errsys.KindEmptyDataset) {
			log.Fatal("No events to export")
		}
		log.Fatalf("Export failed: %v", err)
	}

	if !cliCfg.sealExport {
		log.Printf("✓ Export written to: %s", path)
		return
	}

	pass, err := seal.ReadPassphrase("Passphrase: ")
	if err != nil {
		log.Fatalf("Failed to read passphrase: %v", err)
	}
	confirm, err := seal.ReadPassphrase("Confirm passphrase: ")
	if err != nil {
		log.Fatalf("Failed to read passphrase: %v", err)
	}
	if pass != confirm {
		os.Remove(path)
		log.Fatal("Passphrases do not match")
	}

	sealed, err := seal.Seal(path, pass)
	if err != nil {
		log.Fatalf("Failed to seal export: %v", err)
	}
	if err := os.Remove(path); err != nil {
		log.Printf("Warning: plaintext export left at %s: %v", path, err)
	}
	log.Printf("✓ Sealed export written to: %s", sealed)
}

// runCodesCommand prints the error code registry
func runCodesCommand(cliCfg cliConfig) {
	for _, domain := range errsys.Domains() {
		defs := errsys.DefinitionsByDomain(domain)
		if len(defs) == 0 {
			continue
		}
		fmt.Println(titleStyle.Render(strings.ToUpper(string(domain))))
		for _, def := range defs {
			line := fmt.Sprintf("  %4d  %s %-24s %s",
				def.Code,
				sevStyle(def.Severity).Width(9).Render(def.Severity.Label()),
				def.Name, def.Message)
			if def.Retryable {
				line += mutedStyle.Render(" (retryable)")
			}
			fmt.Println(line)
			if def.Hint != "" {
				fmt.Println(mutedStyle.Render("        hint: " + def.Hint))
			}
		}
		fmt.Println()
	}
}

func printVersion() {
	fmt.Printf("diagd v%s\n", version)
	fmt.Printf("Build time: %s\n", buildTime)
	fmt.Printf("Host: %s\n", device.Collect().String())
}

func printHelp() {
	helpText := `USAGE:
    diagd [command] [flags]

COMMANDS:
    daemon      Run the diagnostics daemon (default)
    init        Initialize configuration file
    validate    Validate configuration
    check       Probe connectivity, optionally scan the LAN
    stats       Show error statistics
    patterns    Show recurring or trending error patterns
    report      Generate a diagnostics report
    logs        List, print, or clear log files
    export      Export tracked events to a file
    codes       Print the error code registry
    version     Show version information
    help        Show this help message

EXAMPLES:
    # First-time setup
    diagd init
    diagd daemon

    # Inspect the last day
    diagd stats --period 24h
    diagd patterns --min 3
    diagd report

    # Trending errors over the last three days
    diagd patterns --trending --days 3

    # Export everything as CSV, encrypted
    diagd export --format csv --seal

    # Connectivity diagnosis with LAN scan
    diagd check --lan

FLAGS:
    -config string      Path to configuration file (default: ~/.diagd/config.toml)
    -data-dir string    Data directory (overrides config)
    -period string      Time window, e.g. 1h, 24h, 7d
    -v                  Verbose (debug) logging
    -version            Show version information
    -help               Show this help message

CONFIGURATION:
    The daemon loads configuration from ~/.diagd/config.toml by default.
    Create one with: diagd init

ENVIRONMENT VARIABLES:
    DIAG_DATA_DIR           Data directory
    DIAG_LOGGER_LEVEL       Daemon log level
    DIAG_DASHBOARD_ADDR     Dashboard listen address
    DIAG_DASHBOARD_TOKEN    Dashboard auth token
    DIAG_ARCHIVE_KEY        Archive encryption key
`
	fmt.Println(helpText)
}
