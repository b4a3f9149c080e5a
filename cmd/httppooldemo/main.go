// Command httppooldemo exercises the pool standalone: it submits one
// Dropable bulk request against whatever endpoints are configured, waits
// for a shutdown signal, then (when show_nerdstats is set) reports
// process stats. It exists so the
// library's wiring can be driven without embedding it in a real capture
// engine process.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	httppool "github.com/arkime/httppool"
	"github.com/arkime/httppool/internal/config"
	"github.com/arkime/httppool/internal/logger"
	"github.com/arkime/httppool/internal/version"
	"github.com/arkime/httppool/pkg/container"
	"github.com/arkime/httppool/pkg/format"
	"github.com/arkime/httppool/pkg/nerdstats"
	"github.com/arkime/httppool/pkg/profiler"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	}
	version.PrintVersionInfo(false, vlog)

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(&logger.Config{
		Level:      cfg.Logging.Level,
		LogDir:     cfg.Logging.File,
		Theme:      "default",
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		FileOutput: cfg.Logging.File != "",
		PrettyLogs: !container.IsContainerised(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	sink := logger.NewNonBlockingSink(logInstance, 256)
	defer sink.Close()

	if cfg.Engineering.Debug > 0 {
		profiler.InitialiseProfiler("127.0.0.1:6060")
	}

	styledLogger.Info("Initialising", "version", version.Version, "pid", os.Getpid())

	server, err := httppool.CreateServer(
		strings.Join(cfg.Pool.Hostnames, ","),
		cfg.Pool.MaxConns,
		cfg.Pool.MaxOutstandingRequests,
		cfg.Pool.Compress,
		httppool.WithLogger(sink),
	)
	if err != nil {
		logger.FatalWithLogger(logInstance, "failed to create server", "error", err)
	}
	server.SetRetries(cfg.Pool.MaxRetries)
	server.SetHeaders(cfg.Pool.DefaultHeaders)
	if cfg.Engineering.Debug > 0 {
		server.SetPrintErrors()
	}
	if cfg.Pool.LogESRequests {
		server.SetLogRequests()
	}
	server.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		styledLogger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	styledLogger.InfoWithCount("Endpoints configured", len(cfg.Pool.Hostnames))

	server.Send(
		"POST",
		"/_bulk",
		[]byte(`{"index":{}}`+"\n"+`{"demo":true}`+"\n"),
		nil,
		true,
		func(status int, body []byte, _ interface{}) {
			styledLogger.Info("Demo request completed", "status", status, "body_len", len(body))
		},
		nil,
	)

	<-ctx.Done()

	server.Exit()

	if cfg.Engineering.ShowNerdStats {
		reportProcessStats(styledLogger, startTime)
	}
	styledLogger.Info("httppool has shut down")
}

func reportProcessStats(l *logger.StyledLogger, startTime time.Time) {
	runtime.GC()

	stats := nerdstats.Snapshot(startTime)

	l.Info("Process Memory Stats",
		"heap_alloc", format.Bytes(stats.HeapAlloc),
		"heap_sys", format.Bytes(stats.HeapSys),
		"heap_inuse", format.Bytes(stats.HeapInuse),
		"total_alloc", format.Bytes(stats.TotalAlloc),
	)

	l.Info("Goroutine Stats",
		"num_goroutines", stats.NumGoroutines,
		"goroutine_health", stats.GetGoroutineHealthStatus(),
	)

	l.Info("Runtime Stats",
		"uptime", format.Duration(stats.Uptime),
		"go_version", stats.GoVersion,
		"num_cpu", stats.NumCPU,
	)
}
