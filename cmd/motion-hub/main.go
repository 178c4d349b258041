package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/motion-hub/motion-hub/internal/api"
	"github.com/motion-hub/motion-hub/internal/config"
	"github.com/motion-hub/motion-hub/internal/integration"
	"github.com/motion-hub/motion-hub/internal/server"
	"github.com/motion-hub/motion-hub/internal/session"
	"github.com/motion-hub/motion-hub/internal/storage"
	"github.com/motion-hub/motion-hub/internal/transport"
	"github.com/motion-hub/motion-hub/pkg/motion"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/motion-hub.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Connect to database
	store, err := storage.NewPostgresStore(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	log.Info().Msg("Connected to database")

	// Select the link transport
	dialer, err := buildDialer(&cfg.Hub)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build transport")
	}

	// Session manager
	manager := session.NewManager(session.Config{
		Timings: session.Timings{
			IdleTimeout:    cfg.Hub.IdleTimeout,
			ConnectTimeout: cfg.Hub.ConnectTimeout,
			CommandTimeout: cfg.Hub.CommandTimeout,
		},
		StatusFreshness: cfg.Hub.StatusFreshness,
	}, dialer, store)
	defer manager.Close()

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start REST API server
	apiServer := api.NewRESTServer(cfg, store, manager)

	// WaitGroup for services
	var wg sync.WaitGroup

	// Start API server
	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := apiServer.ListenAndServe(addr); err != nil {
			log.Fatal().Err(err).Msg("REST API server failed")
		}
	}()

	// Optional: Start NATS bridge
	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")

		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("motion-hub"),
			nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info().Msg("Reconnected to NATS")
			}),
			nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
				log.Error().
					Err(err).
					Str("subject", sub.Subject).
					Msg("NATS error")
			}),
		)

		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without NATS support")
		} else {
			defer nc.Close()
			log.Info().Msg("Connected to NATS")

			bridge := server.NewNATSBridge(nc, manager)

			wg.Add(1)
			go func() {
				defer wg.Done()
				log.Info().Msg("Starting NATS bridge")
				if err := bridge.Start(ctx); err != nil && err != context.Canceled {
					log.Error().Err(err).Msg("NATS bridge stopped")
				}
			}()
		}
	} else {
		log.Info().Msg("NATS not configured, running in standalone mode")
	}

	// Optional: Start integration forwarder
	forwarder := integration.NewForwarderService(cfg.Integrations, manager)
	if forwarder.Enabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := forwarder.Start(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("Integration forwarder stopped")
			}
		}()
	}

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	// Cancel context
	cancel()

	// Shutdown API server
	if err := apiServer.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	// Wait for all services
	wg.Wait()

	log.Info().Msg("Motion hub stopped")
}

// buildDialer constructs the configured link transport
func buildDialer(cfg *config.HubConfig) (transport.Dialer, error) {
	switch cfg.Transport {
	case "sim":
		dialer := transport.NewSimDialer()
		for _, addr := range cfg.SimMotors {
			mac, err := motion.ParseMAC(addr)
			if err != nil {
				return nil, fmt.Errorf("invalid sim motor address %q: %w", addr, err)
			}
			dialer.AddMotor(transport.NewSimMotor(mac))
		}
		log.Info().Int("motors", len(cfg.SimMotors)).Msg("Using simulated transport")
		return dialer, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
