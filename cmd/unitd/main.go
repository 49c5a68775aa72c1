// Command unitd is the supervisor binary: it loads one or more unit files,
// starts each in order, and runs until a quit signal arrives or any unit
// terminates, then stops everything and exits non-zero if any unit failed
// to start.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edirooss/unitd/internal/eventpub"
	"github.com/edirooss/unitd/internal/statusapi"
	"github.com/edirooss/unitd/internal/supervisor"
	"github.com/edirooss/unitd/internal/unitconfig"
)

func buildLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	return zap.Must(cfg.Build())
}

// pubAdapter bridges internal/supervisor's decoupled TransitionPublisher
// interface to internal/eventpub.Publisher's concrete type.
type pubAdapter struct{ pub *eventpub.Publisher }

func (a pubAdapter) Publish(ctx context.Context, t supervisor.EventpubTransition) {
	a.pub.Publish(ctx, eventpub.Transition{
		Unit:      t.Unit,
		State:     t.State,
		ExitCode:  t.ExitCode,
		Timestamp: time.Now(),
	})
}

func unitName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func main() {
	httpAddr := flag.String("http-addr", "", "if set, serve the read-only status API on this address")
	redisAddr := flag.String("redis-addr", "", "if set, publish unit transitions to this Redis address")
	redisDB := flag.Int("redis-db", 0, "Redis database index for -redis-addr")
	flag.Parse()

	unitFiles := flag.Args()
	if len(unitFiles) == 0 {
		fmt.Println("Usage: unitd [-http-addr=host:port] [-redis-addr=host:port] unit-file [unit-file ...]")
		os.Exit(1)
	}

	log := buildLogger().Named("main")
	defer log.Sync()

	var publisher *eventpub.Publisher
	if *redisAddr != "" {
		publisher = eventpub.New(*redisAddr, *redisDB, "unitd:transitions", log)
		defer publisher.Close()
	}

	pool := supervisor.NewPool(log)
	pool.SetQuitSignal(syscall.SIGTERM)

	ctx, cancelOnInterrupt := context.WithCancel(context.Background())
	defer cancelOnInterrupt()
	go func() {
		sigint := supervisor.WaitForSignal(log, syscall.SIGINT)
		<-sigint.Done()
		cancelOnInterrupt()
	}()

	var lastWebrun unitconfig.WebrunSection
	for _, path := range unitFiles {
		cfg, err := unitconfig.ReadFile(path)
		if err != nil {
			log.Error("failed to load unit file", zap.String("path", path), zap.Error(err))
			os.Exit(1)
		}
		lastWebrun = cfg.Webrun

		opts := supervisor.Options{}
		if publisher != nil {
			opts.Publisher = pubAdapter{pub: publisher}
		}

		unit := supervisor.New(log, unitName(path), &cfg.Service, opts)
		if ok := pool.StartSync(ctx, unit); !ok {
			log.Error("unit failed to start; aborting remaining units", zap.String("unit", unit.Name()))
			break
		}
	}

	var httpServer *http.Server
	if *httpAddr != "" {
		srv := statusapi.New(log, pool, lastWebrun)
		httpServer = &http.Server{Addr: *httpAddr, Handler: srv.Handler()}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("status API server stopped", zap.Error(err))
			}
		}()
	}

	if err := pool.Run(ctx); err != nil {
		log.Error("pool run failed", zap.Error(err))
	}

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}

	if pool.AnyStartFailed() {
		os.Exit(1)
	}
	os.Exit(0)
}
