package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/config"
	"github.com/LeonardoBeccarini/irrigation-advisor/internal/services/advisor"
	"github.com/LeonardoBeccarini/irrigation-advisor/internal/services/gateway"
	"github.com/LeonardoBeccarini/irrigation-advisor/internal/services/irrigation"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/cache"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/logging"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/metrics"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/rabbitmq"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/upstream"
)

func main() {
	cfg := config.Load()

	log, err := logging.New("irrigation-advisor", cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewCollector("irrigation_advisor", prometheus.DefaultRegisterer)

	// === Cache ===
	var store cache.Store
	switch cfg.CacheBackend {
	case "redis":
		rc, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "advisor:", log)
		if err != nil {
			log.Fatal("redis connection error", zap.Error(err))
		}
		defer func() { _ = rc.Close() }()
		store = rc
	default:
		mem := cache.NewMemory(cfg.CacheMaxEntries)
		sweeper, err := cache.NewSweeper(mem, cfg.CacheSweepSpec, log)
		if err != nil {
			log.Fatal("cache sweeper", zap.Error(err))
		}
		sweeper.Start()
		defer sweeper.Stop()
		store = mem
	}

	// === Upstream ===
	deps := gateway.Deps{
		Limiter: upstream.NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		Cache:   store,
		Retry: upstream.NewRetryer(upstream.RetryConfig{
			Attempts:  cfg.RetryAttempts,
			BaseDelay: cfg.RetryBaseDelay,
			MaxDelay:  cfg.RetryMaxDelay,
		}, log, m),
		Log:     log,
		Metrics: m,
	}
	var providers []advisor.BreakerReporter
	if cfg.WeatherConfigured() {
		deps.Weather = upstream.NewClient(upstream.ClientConfig{
			Name:            "owm",
			BaseURL:         cfg.OWMBaseURL,
			Timeout:         cfg.UpstreamTimeout,
			BreakerFailures: cfg.BreakerFailures,
			BreakerOpenFor:  cfg.BreakerOpenFor,
		}, log, m)
		deps.WeatherAPIKey = cfg.OWMAPIKey
		providers = append(providers, deps.Weather)
	} else {
		log.Warn("weather provider not configured, serving synthetic weather")
	}
	if cfg.SoilConfigured() {
		deps.Soil = upstream.NewClient(upstream.ClientConfig{
			Name:            "soil",
			BaseURL:         cfg.SoilBaseURL,
			Timeout:         cfg.UpstreamTimeout,
			BreakerFailures: cfg.BreakerFailures,
			BreakerOpenFor:  cfg.BreakerOpenFor,
		}, log, m)
		deps.Tokens = upstream.NewTokenManager(upstream.TokenConfig{
			Provider:     "soil",
			TokenURL:     cfg.SoilTokenURL,
			ClientID:     cfg.SoilClientID,
			ClientSecret: cfg.SoilClientSecret,
			Margin:       cfg.TokenMargin,
			Timeout:      cfg.UpstreamTimeout,
		}, log, m)
		providers = append(providers, deps.Soil)
	} else {
		log.Warn("soil provider not configured, serving synthetic soil data")
	}

	gw := gateway.New(gateway.Config{
		TTLCurrent:        cfg.TTLCurrent,
		TTLForecast:       cfg.TTLForecast,
		TTLHistory:        cfg.TTLHistory,
		TTLSoil:           cfg.TTLSoil,
		SyntheticFallback: cfg.SyntheticFallback,
	}, deps)

	// === Pipeline ===
	engine := irrigation.NewEngine(irrigation.EngineConfig{
		Cost: irrigation.CostConfig{
			WaterPerLiter:  cfg.WaterCostPerL,
			EnergyPerLiter: cfg.EnergyCostPerL,
			CO2PerLiter:    cfg.CO2PerL,
			Currency:       cfg.Currency,
		},
	})
	model := irrigation.DefaultBalanceModel()
	model.BaselineFraction = cfg.MoistureBaseline
	model.DefaultDays = cfg.DefaultDaysSince
	svc := irrigation.NewService(gw, model, engine, log, m)

	// === InfluxDB (opzionale) ===
	var (
		sinks    []advisor.Sink
		recorder *advisor.Recorder
		influx   influxdb2.Client
	)
	if cfg.InfluxURL != "" {
		opts := influxdb2.DefaultOptions().
			SetBatchSize(uint(cfg.InfluxBatch)).
			SetFlushInterval(uint(cfg.InfluxFlush.Milliseconds()))
		influx = influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken, opts)
		defer influx.Close()
		recorder = advisor.NewRecorder(influx.WriteAPI(cfg.InfluxOrg, cfg.InfluxBucket), log)
		sinks = append(sinks, recorder.Record)
	}

	adv := advisor.NewAdvisor(svc, log, m, sinks...)

	// === MQTT (opzionale) ===
	health := advisor.HealthConfig{Recorder: recorder, Providers: providers, MinErrorAge: 2 * time.Second}
	if cfg.MQTTEnabled {
		client, err := rabbitmq.NewRabbitMQConn(ctx, cfg.Rabbit, log)
		if err != nil {
			log.Fatal("mqtt connection error", zap.Error(err))
		}
		health.MQTT = client

		h := advisor.NewMQTTHandler(adv, rabbitmq.NewPublisher(client, log), cache.NewMemory(20000), log, m)
		h.SetResultTopicTemplate(cfg.ResultTopic)
		h.SetTimeout(cfg.RequestTimeout)
		h.SetDedupTTL(cfg.DedupTTL)

		consumer := rabbitmq.NewConsumer(client, cfg.RequestTopics, 1, log)
		consumer.SetHandler(h.Handle)
		go func() {
			if err := consumer.ConsumeMessage(ctx); err != nil {
				log.Error("mqtt consumer stopped", zap.Error(err))
				stop()
			}
		}()
	}

	// === HTTP ===
	router := mux.NewRouter()
	advisor.NewHTTPHandler(adv, gw, cfg.RequestTimeout, log).RegisterRoutes(router)
	router.Handle("/healthz", advisor.NewHealthHandler(health)).Methods(http.MethodGet)
	router.Handle("/readyz", advisor.NewReadyHandler(health)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())
	if influx != nil {
		router.Handle("/v1/recommendations/latest", advisor.NewLatestHandler(influx.QueryAPI(cfg.InfluxOrg), cfg.InfluxBucket, log)).Methods(http.MethodGet)
	}

	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("addr", hs.Addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	// === gRPC ===
	var gs *grpc.Server
	if cfg.GRPCPort > 0 {
		addr := ":" + strconv.Itoa(cfg.GRPCPort)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			log.Fatal("grpc listen", zap.String("addr", addr), zap.Error(err))
		}
		gs = grpc.NewServer()
		advisor.RegisterAdvisoryServer(gs, advisor.NewGrpcHandler(adv))
		go func() {
			log.Info("grpc listening", zap.String("addr", addr))
			if err := gs.Serve(lis); err != nil {
				log.Error("grpc serve error", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.ReadinessGrace)
	defer cancel()
	_ = hs.Shutdown(shCtx)
	if gs != nil {
		gs.GracefulStop()
	}
	if recorder != nil {
		// consenti il flush dei punti in coda
		recorder.Flush()
	}
}
