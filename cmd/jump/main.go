// Command jump serves the jump analysis API and, when a serial device or a
// fixtures file is given, pumps its samples into a pinned live session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/jump.report/internal/api"
	"github.com/banshee-data/jump.report/internal/db"
	"github.com/banshee-data/jump.report/internal/serialmux"
	"github.com/banshee-data/jump.report/internal/sessions"
	"github.com/banshee-data/jump.report/internal/timeutil"
	"github.com/banshee-data/jump.report/internal/version"
)

var (
	listen       = flag.String("listen", "", "Listen address (overrides config listen)")
	port         = flag.String("port", "", "Serial device streaming samples (overrides config sample_port)")
	baudRate     = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	framing      = flag.String("framing", serialmux.DefaultFraming, "Serial data bits, parity and stop bits")
	devMode      = flag.Bool("dev", false, "Replay -fixtures instead of opening a serial device")
	fixturesFile = flag.String("fixtures", "fixtures.txt", "Sample lines replayed in dev mode")
	devInterval  = flag.Duration("dev-interval", 33*time.Millisecond, "Delay between replayed lines in dev mode")
	dbFile       = flag.String("db", "jump.db", "SQLite results database")
	configFile   = flag.String("config", "", "JSON configuration file")
	resultsDir   = flag.String("results-dir", "", "Directory for results archives (overrides config results_dir)")
	keepBaseline = flag.Bool("keep-baseline", true, "Keep the calibrated baseline when the feed sends a reset")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Current())
		return
	}
	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbFile, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	applyFlagOverrides(cfg, *listen, *port, *resultsDir)

	m, live, err := openSampleFeed(*devMode, *fixturesFile, cfg.GetSamplePort(), serialmux.PortOptions{BaudRate: *baudRate, Framing: *framing}, *devInterval)
	if err != nil {
		log.Fatalf("failed to open sample feed: %v", err)
	}
	defer m.Close()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	reg := sessions.NewRegistry(timeutil.RealClock{}, cfg.GetSessionIdleTimeout())
	srv := api.NewServer(reg, database, cfg)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		reg.Run(ctx)
		log.Print("session expiry routine terminated")
	}()

	if live {
		liveID, sess, err := reg.Create(cfg.SessionConfig())
		if err != nil {
			log.Fatalf("failed to create live session: %v", err)
		}
		if err := reg.Pin(liveID); err != nil {
			log.Fatalf("failed to pin live session: %v", err)
		}
		srv.SetSampleFeed(m, liveID)
		log.Printf("live session %s receiving samples", liveID)

		// run the monitor routine to manage IO on the serial port
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, err := serialmux.Pump(ctx, m, sess, pumpOptions(cfg, liveID, *keepBaseline))
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("sample pump failed: %v", err)
			}
			log.Printf("pump routine terminated: %d lines, %d samples, %d commands, %d dropped, %d invalid",
				stats.Lines, stats.Samples, stats.Commands, stats.Dropped, stats.Invalid)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := srv.ServeMux()
		m.AttachAdminRoutes(mux)
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach database admin routes: %v", err)
		}

		server := &http.Server{
			Addr:              cfg.GetListen(),
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: jump [flags]\n       jump [flags] migrate <action>\n\nFlags:\n")
	flag.PrintDefaults()
	fmt.Fprintln(out)
	db.PrintMigrateHelp(out)
}
