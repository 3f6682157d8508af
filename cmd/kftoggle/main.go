package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	_ "time/tzdata" // embedded zone database for hosts without one

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/kftoggle/pkg/config"
	"github.com/umputun/kftoggle/pkg/journal"
	"github.com/umputun/kftoggle/pkg/schedule"
	"github.com/umputun/kftoggle/pkg/scheduler"
	"github.com/umputun/kftoggle/pkg/store"
)

// Opts with all CLI options
type Opts struct {
	File    string `short:"f" long:"file" env:"KILLFEED_FILE" description:"managed json file (default KillFeed.json)"`
	Config  string `short:"c" long:"config" env:"CONFIG" description:"yaml configuration file"`
	LogFile string `long:"log" env:"LOG_FILE" description:"log file (default kftoggle.log)"`
	Journal string `long:"journal" env:"JOURNAL" description:"sqlite journal of changes"`
	Once    bool   `long:"once" description:"run a single check and exit"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

// errStartup marks failures detected before the scheduler loop starts
var errStartup = errors.New("startup failed")

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	out, closeLog, err := logWriter(cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	setupLog(opts.Debug, out, !opts.NoColor && cfg.Log.File == "")

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[PANIC] unexpected failure: %v", r)
			closeLog()
			os.Exit(1)
		}
	}()

	log.Printf("[INFO] starting kftoggle version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, cfg, opts.Once); err != nil {
		log.Printf("[ERROR] %v", err)
		closeLog()
		os.Exit(1)
	}
	log.Print("[INFO] shutdown complete")
}

// loadConfig makes configuration from the optional yaml file and CLI overrides
func loadConfig(opts Opts) (*config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return nil, err
		}
	}

	if opts.File != "" {
		cfg.File.Path = opts.File
	}
	if opts.LogFile != "" {
		cfg.Log.File = opts.LogFile
	}
	if opts.Journal != "" {
		cfg.Journal.Path = opts.Journal
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// run checks the managed file and starts the scheduler, blocks until ctx is canceled.
// With once set it performs a single reconcile cycle instead.
func run(ctx context.Context, cfg *config.Config, once bool) error {
	fileStore := store.NewFileStore(nil, cfg.File.Path, store.WithBackupSuffix(cfg.File.BackupSuffix))
	exists, err := fileStore.Exists()
	if err != nil {
		return fmt.Errorf("%w: %v", errStartup, err)
	}
	if !exists {
		log.Printf("[ERROR] file not found: %s", cfg.File.Path)
		log.Print("[ERROR] check that the path is correct and the file exists")
		return fmt.Errorf("%w: file %s not found", errStartup, cfg.File.Path)
	}

	loc, err := cfg.GetLocation()
	if err != nil {
		return fmt.Errorf("%w: %v", errStartup, err)
	}

	params := scheduler.Params{
		Store:    fileStore,
		Rule:     schedule.Default,
		Interval: cfg.Schedule.Interval,
		Location: loc,
		Path:     cfg.File.Path,
	}

	if cfg.Journal.Path != "" {
		j, err := journal.New(ctx, cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("%w: %v", errStartup, err)
		}
		defer func() {
			if err := j.Close(); err != nil {
				log.Printf("[WARN] failed to close journal: %v", err)
			}
		}()
		reportLastTransition(ctx, j)
		params.Journal = j
	}

	log.Printf("[INFO] monitoring file: %s, schedule: %s", cfg.File.Path, schedule.Default)
	sched := scheduler.NewScheduler(params)

	if once {
		res := sched.Reconcile(ctx)
		log.Printf("[INFO] [%s] status: %s (m_Enable = %d)", res.At.Format("2006-01-02 15:04:05"),
			res.Desired, int(res.Desired))
		return res.Err
	}
	return sched.Run(ctx)
}

func reportLastTransition(ctx context.Context, j *journal.Journal) {
	recent, err := j.Recent(ctx, 1)
	if err != nil {
		log.Printf("[WARN] can't read journal: %v", err)
		return
	}
	if len(recent) == 0 {
		log.Print("[DEBUG] journal is empty")
		return
	}
	log.Printf("[INFO] last recorded change: %s set to %d at %s", recent[0].Path, int(recent[0].To),
		recent[0].At.Local().Format("2006-01-02 15:04:05"))
}

// logWriter returns writer for logs, stdout and the log file if set
func logWriter(logFile string) (w io.Writer, closer func(), err error) {
	if logFile == "" {
		return os.Stdout, func() {}, nil
	}
	fh, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // path from CLI
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", logFile, err)
	}
	return io.MultiWriter(os.Stdout, fh), func() { _ = fh.Close() }, nil
}

func setupLog(dbg bool, out io.Writer, colors bool) {
	logOpts := []lgr.Option{lgr.Out(out), lgr.Err(io.Discard)}
	if dbg {
		logOpts = append(logOpts, lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.CallerFile, lgr.CallerFunc)
	}

	if colors {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
