package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/crankcase-data/power.report/internal/api"
	"github.com/crankcase-data/power.report/internal/calibration"
	"github.com/crankcase-data/power.report/internal/config"
	"github.com/crankcase-data/power.report/internal/feed"
	"github.com/crankcase-data/power.report/internal/fsutil"
	"github.com/crankcase-data/power.report/internal/intel"
	"github.com/crankcase-data/power.report/internal/learner"
	"github.com/crankcase-data/power.report/internal/live"
	"github.com/crankcase-data/power.report/internal/monitoring"
	"github.com/crankcase-data/power.report/internal/power"
	"github.com/crankcase-data/power.report/internal/rider"
	"github.com/crankcase-data/power.report/internal/ridestore"
	"github.com/crankcase-data/power.report/internal/session"
	"github.com/crankcase-data/power.report/internal/timeutil"
	"github.com/crankcase-data/power.report/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Run against the synthetic sensor feed instead of the serial port")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	configPath = flag.String("config", "", "Path to JSON config file")
)

func main() {
	flag.Parse()

	if *devMode {
		monitoring.Debug()
	}
	log := monitoring.Logger()
	defer log.Sync()
	log.Infow("starting", "version", version.Version, "git_sha", version.GitSHA, "build_time", version.BuildTime)

	var err error
	cfg := config.Empty()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalw("failed to load config", "path", *configPath, "error", err)
		}
	}
	addr := cfg.GetListenAddr()
	if *listen != "" {
		addr = *listen
	}

	clock := timeutil.RealClock{}
	fsys := fsutil.OSFileSystem{}

	defaults := rider.Parameters{
		MassKg:         cfg.GetRiderMassKg(),
		CdA:            cfg.GetRiderCdA(),
		Crr:            cfg.GetRiderCrr(),
		DrivetrainLoss: cfg.GetDrivetrainLossFrac(),
		FTPWatts:       cfg.GetRiderFTPWatts(),
	}
	params, err := rider.LoadParams(fsys, cfg.GetParamsPath(), defaults)
	if err != nil {
		log.Fatalw("failed to load rider parameters", "error", err)
	}
	riderH, err := rider.NewHolder(params, rider.SaveParamsFunc(fsys, cfg.GetParamsPath()))
	if err != nil {
		log.Fatalw("invalid rider parameters", "error", err)
	}

	store, err := ridestore.Open(cfg.GetDBPath())
	if err != nil {
		log.Fatalw("failed to open ride store", "path", cfg.GetDBPath(), "error", err)
	}
	defer store.Close()

	retrainer := learner.NewRetrainer(store, riderH, log)
	engine := intel.NewEngine(riderH, retrainer, log)
	calib := calibration.NewSession(riderH, clock, log)
	hub := live.NewHub(log)
	hub.SetInitDataProvider(func() interface{} { return riderH.Snapshot() })

	sess := session.NewManager(session.Deps{
		Rider:         riderH,
		Estimator:     power.NewEstimator(riderH),
		Engine:        engine,
		Calibration:   calib,
		Store:         store,
		Retrainer:     retrainer,
		Sink:          hub,
		Clock:         clock,
		Log:           log,
		RetrainOnStop: cfg.GetRetrainOnRideEnd(),
	})

	var src feed.Source
	if *devMode {
		src = feed.NewMockMux(time.Second)
		log.Infow("running with synthetic sensor feed")
	} else {
		src, err = feed.OpenReal(cfg.GetSensorPort(), nil)
		if err != nil {
			log.Fatalw("failed to open sensor port", "port", cfg.GetSensorPort(), "error", err)
		}
	}
	defer src.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Seed the learned coefficients from whatever history the store holds.
	retrainer.Submit(ctx, clock.Now(), nil)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := src.Monitor(ctx); err != nil && err != context.Canceled {
			log.Errorw("sensor monitor failed", "error", err)
		}
		log.Infow("sensor monitor stopped")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		id, lines := src.Subscribe()
		defer src.Unsubscribe(id)
		sess.Run(ctx, lines)
		log.Infow("tick loop stopped")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.GetRetrainInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				retrainer.Submit(ctx, clock.Now(), nil)
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		srv := api.NewServer(api.Deps{
			Session:     sess,
			Rider:       riderH,
			Calibration: calib,
			Store:       store,
			Retrainer:   retrainer,
			Hub:         hub,
			Engine:      engine,
			Clock:       clock,
			Log:         log,
		})
		server := &http.Server{
			Addr:    addr,
			Handler: api.LoggingMiddleware(log, srv.ServeMux()),
		}

		go func() {
			log.Infow("http server listening", "addr", addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalw("http server failed", "error", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorw("http shutdown error", "error", err)
		}
		log.Infow("http server stopped")
	}()

	wg.Wait()

	// Flush any ride still in progress so the segments are not lost.
	if sess.Active() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := sess.StopRide(flushCtx); err != nil {
			log.Errorw("failed to flush active ride on shutdown", "error", err)
		} else {
			log.Infow("active ride flushed on shutdown")
		}
	}
	log.Infow("shutdown complete")
}
