package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/adapters"
	"github.com/aklnz/realtime-transit-engine/internal/api"
	"github.com/aklnz/realtime-transit-engine/internal/apc"
	"github.com/aklnz/realtime-transit-engine/internal/apperr"
	"github.com/aklnz/realtime-transit-engine/internal/clock"
	"github.com/aklnz/realtime-transit-engine/internal/config"
	"github.com/aklnz/realtime-transit-engine/internal/detector"
	"github.com/aklnz/realtime-transit-engine/internal/dilaxadapter"
	"github.com/aklnz/realtime-transit-engine/internal/dispatch"
	"github.com/aklnz/realtime-transit-engine/internal/domain"
	"github.com/aklnz/realtime-transit-engine/internal/godmode"
	"github.com/aklnz/realtime-transit-engine/internal/keylock"
	"github.com/aklnz/realtime-transit-engine/internal/kvstore"
	"github.com/aklnz/realtime-transit-engine/internal/messaging"
	"github.com/aklnz/realtime-transit-engine/internal/metrics"
	"github.com/aklnz/realtime-transit-engine/internal/r9k"
	"github.com/aklnz/realtime-transit-engine/internal/smartrak"
	"github.com/aklnz/realtime-transit-engine/internal/tripresolver"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.MQTTBrokerURL, "mqtt-url", "", "MQTT broker URL (overrides MQTT_BROKER_URL)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	startTime := time.Now()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Str("log_level", level.String()).
		Msg("realtime-transit-engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk, err := clock.New(cfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Timezone).Msg("failed to load timezone")
	}

	// Redis-backed KV store.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse REDIS_URL")
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()
	store := kvstore.NewRedis(rdb, clk)

	// Identity token source for the Block Management collaborator.
	var tokens adapters.TokenSource
	if cfg.Env == "dev" {
		tokens = adapters.DevTokenSource{Token: cfg.BlockMgtAuthorization}
	} else {
		tokens = adapters.NewOAuthTokenSource(cfg.IdentityTokenURL, cfg.IdentityClientID, cfg.IdentityClientSecret)
	}

	const adapterTimeout = 10 * time.Second
	blockMgt := adapters.NewBlockMgt(cfg.BlockMgtURL, adapterTimeout, tokens, log.With().Str("component", "block-mgt").Logger())
	fleet := adapters.NewFleet(cfg.FleetURL, adapterTimeout, tokens, store, log.With().Str("component", "fleet").Logger())
	ccStatic := adapters.NewCCStatic(cfg.CCStaticURL, adapterTimeout, log.With().Str("component", "cc-static").Logger())
	gtfsStatic := adapters.NewGTFSStatic(cfg.GTFSStaticURL, adapterTimeout, log.With().Str("component", "gtfs-static").Logger())
	tripMgt := adapters.NewTripMgt(cfg.TripManagementURL, adapterTimeout, log.With().Str("component", "trip-mgt").Logger())

	locks := keylock.New()
	tracker := apc.NewTracker(store, locks, log.With().Str("component", "apc").Logger())
	trips := tripresolver.New(tripMgt, clk)

	r9kTransformer := r9k.New(ccStatic, blockMgt, clk, log.With().Str("component", "r9k").Logger())
	dilaxProcessor := dilaxadapter.New(fleet, blockMgt, ccStatic, gtfsStatic, tracker, log.With().Str("component", "dilax-adapter").Logger())
	locationProcessor := smartrak.NewLocationProcessor(store, locks, fleet, blockMgt, trips, tracker, clk,
		log.With().Str("component", "smartrak-location").Logger(), cfg.AccuracyThreshold, int64(cfg.TripDurationBuffer.Seconds()))
	serialDataProcessor := smartrak.NewSerialDataProcessor(store, locks, trips,
		log.With().Str("component", "smartrak-serial").Logger(), cfg.SerialDataFilterThreshold)
	info := smartrak.NewInfo(store, fleet)

	godModeRegistry := godmode.New(cfg.GodModeEnabled())

	detectorLog := log.With().Str("component", "detector").Logger()
	const (
		detectionThreshold = time.Hour
		detectionRetention = 7 * 24 * time.Hour
	)
	det := detector.New(store, blockMgt, tracker, clk, detectorLog, detectionThreshold, detectionRetention)
	if err := det.RefreshAllocations(ctx); err != nil {
		log.Warn().Err(err).Msg("initial allocation refresh failed")
	}

	// MQTT transport.
	registry := dispatch.NewRegistry(cfg.Env)
	mqttLog := log.With().Str("component", "mqtt").Logger()
	mqttClient, err := messaging.Connect(messaging.Options{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		Topics:    []string{cfg.Env + "-#"},
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		Log:       mqttLog,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
	}
	defer mqttClient.Close()

	dispatcher := dispatch.New(registry, locks, cfg.WorkerConcurrency, log.With().Str("component", "dispatch").Logger())
	mqttClient.SetMessageHandler(func(topic string, payload []byte) {
		dispatcher.Dispatch(ctx, topic, payload)
	})

	registry.Register("realtime-r9k.v1", nil, func(ctx context.Context, _ string, payload []byte) error {
		metrics.MessagesReceivedTotal.WithLabelValues("realtime-r9k.v1").Inc()
		update, err := r9k.Parse(payload)
		if err != nil {
			return err
		}
		if err := update.Validate(clk); err != nil {
			return err
		}
		events, err := r9kTransformer.Events(ctx, update)
		if err != nil {
			return err
		}
		return r9kTransformer.Publish(ctx, events, mqttClient)
	})

	registry.Register("realtime-dilax-apc.v2", nil, func(ctx context.Context, _ string, payload []byte) error {
		metrics.MessagesReceivedTotal.WithLabelValues("realtime-dilax-apc.v2").Inc()
		var event domain.DilaxMessage
		if err := json.Unmarshal(payload, &event); err != nil {
			return apperr.InvalidMessage(err.Error())
		}
		return dilaxProcessor.Process(ctx, event, mqttClient)
	})

	const (
		vehiclePositionTopic = "realtime-gtfs-vp.v1"
		deadReckoningTopic   = "realtime-dead-reckoning.v1"
	)

	smarTrakHandler := func(topic string) dispatch.Handler {
		return func(ctx context.Context, _ string, payload []byte) error {
			metrics.MessagesReceivedTotal.WithLabelValues(topic).Inc()
			var event domain.SmarTrakMessage
			if err := json.Unmarshal(payload, &event); err != nil {
				return apperr.InvalidMessage(err.Error())
			}
			godModeRegistry.Preprocess(&event)
			if event.EventType == domain.SmarTrakEventSerialData {
				return serialDataProcessor.Process(ctx, event)
			}
			outputs, err := locationProcessor.Process(ctx, topic, event)
			if err != nil {
				return err
			}
			for _, out := range outputs {
				if out.IsDeadReckoning {
					payload, err := json.Marshal(out.DeadReckoning)
					if err != nil {
						return err
					}
					if err := mqttClient.Publish(ctx, deadReckoningTopic, out.Key, payload); err != nil {
						return err
					}
					continue
				}
				payload, err := json.Marshal(out.VehiclePosition)
				if err != nil {
					return err
				}
				if err := mqttClient.Publish(ctx, vehiclePositionTopic, out.Key, payload); err != nil {
					return err
				}
			}
			return nil
		}
	}
	for _, topic := range []string{r9k.OutboundTopic, "realtime-caf-avl.v1", "realtime-train-avl.v1"} {
		registry.Register(topic, nil, smarTrakHandler(topic))
	}

	registry.Register("realtime-passenger-count.v1", nil, func(ctx context.Context, _ string, payload []byte) error {
		metrics.MessagesReceivedTotal.WithLabelValues("realtime-passenger-count.v1").Inc()
		var event domain.PassengerCountEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return apperr.InvalidMessage(err.Error())
		}
		return tracker.UpdateFromPassengerCount(ctx, event)
	})

	// Detector ticker.
	detectorTicker := time.NewTicker(cfg.DetectorInterval)
	go func() {
		defer detectorTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-detectorTicker.C:
				metrics.DetectorRunsTotal.Inc()
				if err := det.RefreshAllocations(ctx); err != nil {
					detectorLog.Warn().Err(err).Msg("allocation refresh failed")
					continue
				}
				detections, err := det.Detect(ctx)
				if err != nil {
					detectorLog.Warn().Err(err).Msg("detection run failed")
					continue
				}
				if len(detections) > 0 {
					metrics.DetectorDetectionsTotal.Add(float64(len(detections)))
				}
			}
		}
	}()

	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:     cfg,
		Store:      store,
		MQTT:       mqttClient,
		Publisher:  mqttClient,
		Detector:   det,
		Info:       info,
		GodMode:    godModeRegistry,
		EngineStat: engineStats{dispatcher: dispatcher, mqtt: mqttClient},
		Version:    fmt.Sprintf("%s (commit=%s, built=%s)", version, commit, buildTime),
		StartTime:  startTime,
		Log:        httpLog,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("listen", cfg.HTTPAddr).
		Str("version", version).
		Dur("startup_ms", time.Since(startTime)).
		Msg("realtime-transit-engine ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dispatcher.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("realtime-transit-engine stopped")
}

// engineStats adapts the dispatcher and MQTT client to metrics.EngineStats.
type engineStats struct {
	dispatcher *dispatch.Dispatcher
	mqtt       *messaging.Client
}

func (s engineStats) QueueDepth() int     { return s.dispatcher.QueueDepth() }
func (s engineStats) MQTTConnected() bool { return s.mqtt.IsConnected() }
