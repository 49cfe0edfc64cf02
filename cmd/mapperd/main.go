package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gorilla "github.com/gorilla/handlers"

	"github.com/signalsfoundry/coverage-mapper/core"
	"github.com/signalsfoundry/coverage-mapper/internal/api"
	"github.com/signalsfoundry/coverage-mapper/internal/engine"
	"github.com/signalsfoundry/coverage-mapper/internal/ingest"
	"github.com/signalsfoundry/coverage-mapper/internal/logging"
	"github.com/signalsfoundry/coverage-mapper/internal/observability"
)

func main() {
	httpAddr := flag.String("http-addr", ":8080", "HTTP address the coverage API listens on")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	scenarioPath := flag.String("scenario", "configs/survey_scenario.json", "Path to the survey scenario JSON")
	interval := flag.Duration("recompute-interval", 5*time.Second, "cadence of automatic coverage recomputes")
	brokers := flag.String("kafka-brokers", "", "comma-separated Kafka brokers for the sample stream (empty disables ingest)")
	topic := flag.String("kafka-topic", "coverage.samples", "Kafka topic carrying measurement samples")
	group := flag.String("kafka-group", "coverage-mapper", "Kafka consumer group")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	scenario := loadScenario(log, *scenarioPath)

	collector, err := observability.NewSurveyCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	tracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	eng := engine.New(scenario, log, engine.WithMetricsRecorder(collector))

	sched := engine.NewScheduler(time.Now().UTC(), *interval, engine.RealTime)
	sched.AddListener(func(time.Time) {
		if err := eng.Recompute(ctx); err != nil {
			log.Error(ctx, "scheduled recompute failed", logging.Err(err))
		}
	})

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schedDone := sched.Run(stopCtx, 0)

	consumerDone := startConsumer(stopCtx, log, eng, *brokers, *topic, *group)

	server := api.NewServer(eng, log, collector)
	httpSrv := &http.Server{
		Addr:    *httpAddr,
		Handler: gorilla.RecoveryHandler()(gorilla.CompressHandler(server.Router())),
	}
	go func() {
		log.Info(ctx, "starting coverage API", logging.String("addr", *httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "HTTP server exited", logging.Err(err))
		}
	}()

	<-stopCtx.Done()
	log.Info(ctx, "shutting down coverage mapper")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	<-schedDone
	if consumerDone != nil {
		<-consumerDone
	}
	tracing.ShutdownWithTimeout(5 * time.Second)
}

func loadScenario(log logging.Logger, path string) *core.SurveyScenario {
	f, err := os.Open(path)
	if err != nil {
		log.Error(context.Background(), "failed to open survey scenario",
			logging.String("path", path), logging.Err(err))
		os.Exit(1)
	}
	defer f.Close()

	scenario, err := core.LoadSurveyScenario(f)
	if err != nil {
		log.Error(context.Background(), "failed to parse survey scenario",
			logging.String("path", path), logging.Err(err))
		os.Exit(1)
	}
	log.Info(context.Background(), "loaded survey scenario",
		logging.String("path", path),
		logging.Int("anchors", len(scenario.Anchors)),
		logging.Int("candidates", len(scenario.Candidates)),
	)
	return scenario
}

func serveMetrics(addr string, collector *observability.SurveyCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func startConsumer(ctx context.Context, log logging.Logger, eng *engine.MappingEngine, brokers, topic, group string) <-chan struct{} {
	if brokers == "" {
		log.Info(ctx, "Kafka ingest disabled, samples arrive over HTTP only")
		return nil
	}

	consumer, err := ingest.NewConsumer(ingest.ConsumerConfig{
		Brokers: strings.Split(brokers, ","),
		Topic:   topic,
		GroupID: group,
	}, eng, log)
	if err != nil {
		log.Error(ctx, "failed to build sample consumer", logging.Err(err))
		os.Exit(1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer consumer.Close()
		if err := consumer.Run(ctx); err != nil && err != context.Canceled {
			log.Error(ctx, "sample consumer exited", logging.Err(err))
		}
	}()
	return done
}
