package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/meshwire/rtms/internal/adapters/http"
	"github.com/meshwire/rtms/internal/adapters/media"
	sigctl "github.com/meshwire/rtms/internal/adapters/signal"
	"github.com/meshwire/rtms/internal/app"
	"github.com/meshwire/rtms/internal/auth"
	"github.com/meshwire/rtms/internal/config"
	"github.com/meshwire/rtms/internal/domain"
	"github.com/meshwire/rtms/internal/feed"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return
	}
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := auth.Load(cfg.CredentialsPath)
	if err != nil {
		// No credentials means every handshake fails; keep serving so
		// health probes still answer.
		log.Error().Err(err).Msg("failed to load credentials")
		store = auth.NewStore(nil, nil, "")
	}

	registry := app.NewRegistry()
	feeder := feed.NewFeeder(feed.LoadSource(cfg.DataDir))
	relay := media.NewRelay(ctx, registry, feeder, cfg)
	relay.Roster = demoRoster()
	ctl := sigctl.NewController(registry, store, relay, cfg)

	var signalingUp atomic.Bool
	ready := func() bool { return signalingUp.Load() && relay.Ready() }

	signalingSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.SignalingPort),
		Handler: sigctl.SetupRouter(ctx, ctl),
	}
	controlSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.HTTPPort),
		Handler: router.SetupRouter(cfg, store, ready),
	}

	go func() {
		log.Info().Str("addr", signalingSrv.Addr).Msg("signaling server started")
		signalingUp.Store(true)
		if err := signalingSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("signaling server error")
		}
		signalingUp.Store(false)
	}()
	go func() {
		log.Info().Str("addr", controlSrv.Addr).Msg("control plane started")
		if err := controlSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("control plane error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := signalingSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("signaling server forced to shutdown")
	}
	if err := relay.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("media relay forced to shutdown")
	}
	if err := controlSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("control plane forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

// demoRoster seeds the participants replayed to event subscribers; the
// relay serves pre-recorded media, so the attendee list is fixed too.
func demoRoster() []domain.Participant {
	var roster []domain.Participant
	for _, name := range []string{"Host", "Guest Speaker"} {
		p, err := domain.NewParticipant(name)
		if err != nil {
			log.Warn().Err(err).Str("name", name).Msg("skipping roster entry")
			continue
		}
		roster = append(roster, *p)
	}
	return roster
}
