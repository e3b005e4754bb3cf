package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/CAFxX/httpcompression"
	"github.com/dgraph-io/badger/v4"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"golang.org/x/sync/errgroup"

	"github.com/JetBrains/intellij-plugins-sub025/internal/envutil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/httputil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/location"
	"github.com/JetBrains/intellij-plugins-sub025/internal/logutil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/storageprovider"
	"github.com/JetBrains/intellij-plugins-sub025/internal/storageutil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/store"
	"github.com/JetBrains/intellij-plugins-sub025/internal/stream"
)

type environment struct {
	config ServiceConfig
	logger zerolog.Logger

	registry *prometheus.Registry
	store    *store.Store
	resolver location.Resolver

	snapshots      storageutil.ObjectHandler
	closeSnapshots func() error

	eventsReader *stream.KafkaSource
	eventsWriter *kafka.Writer
}

var release string

func newEnvironment(ctx context.Context, config ServiceConfig, logger zerolog.Logger) (*environment, error) {
	e := environment{
		config:   config,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	e.store = store.New(logger, store.WithRegisterer(e.registry))

	var err error
	e.snapshots, e.closeSnapshots, err = openSnapshots(ctx, config)
	if err != nil {
		return nil, err
	}

	e.resolver = location.FrameParser{}
	if config.LocationResolverURL != "" {
		r, err := location.NewHTTPResolver(config.LocationResolverURL, logger)
		if err != nil {
			_ = e.closeSnapshots()
			return nil, err
		}
		e.resolver = location.Chain{r}
	}

	if len(config.EventsKafkaBrokers) > 0 {
		e.eventsReader = stream.NewKafkaSource(kafka.ReaderConfig{
			Brokers: config.EventsKafkaBrokers,
			GroupID: config.EventsKafkaGroupID,
			Topic:   config.EventsKafkaTopic,
		}, logger)
		e.eventsWriter = &kafka.Writer{
			Addr:         kafka.TCP(config.EventsKafkaBrokers...),
			Balancer:     kafka.CRC32Balancer{},
			BatchSize:    100,
			Compression:  kafka.Lz4,
			ReadTimeout:  3 * time.Second,
			Topic:        config.EventsKafkaTopic,
			WriteTimeout: 3 * time.Second,
		}
	}
	return &e, nil
}

func openSnapshots(ctx context.Context, config ServiceConfig) (storageutil.ObjectHandler, func() error, error) {
	switch config.SnapshotsBackend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		return &storageprovider.Gcs{BucketHandle: client.Bucket(config.SnapshotsBucket)}, client.Close, nil
	case "blob":
		bucket, err := blob.OpenBucket(ctx, config.SnapshotsBucket)
		if err != nil {
			return nil, nil, err
		}
		return &storageprovider.Blob{Bucket: bucket}, bucket.Close, nil
	case "badger":
		opts := badger.DefaultOptions(config.SnapshotsBucket).WithLogger(nil)
		if config.SnapshotsBucket == "" {
			opts = opts.WithInMemory(true)
		}
		db, err := badger.Open(opts)
		if err != nil {
			return nil, nil, err
		}
		return &storageprovider.Badger{DB: db}, db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown snapshots backend %q", config.SnapshotsBackend)
}

func (e *environment) shutdown() {
	if e.eventsReader != nil {
		if err := e.eventsReader.Close(); err != nil {
			sentry.CaptureException(err)
		}
	}
	if e.eventsWriter != nil {
		if err := e.eventsWriter.Close(); err != nil {
			sentry.CaptureException(err)
		}
	}
	if err := e.closeSnapshots(); err != nil {
		sentry.CaptureException(err)
	}
	sentry.Flush(5 * time.Second)
}

func (e *environment) newRouter() (*httprouter.Router, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodPost, "/events", e.postEvents},
		{http.MethodGet, "/calltree", e.getCallTree},
		{http.MethodGet, "/calltree/callees", e.getCallees},
		{http.MethodGet, "/calltree/callers", e.getCallers},
		{http.MethodGet, "/functions", e.getFunctions},
		{http.MethodGet, "/memory/allocations", e.getAllocationSites},
		{http.MethodGet, "/memory/classes", e.getClasses},
		{http.MethodGet, "/memory/classes/:class/pages/:page", e.getClassPage},
		{http.MethodGet, "/memory/objects/:id/back_references", e.getBackReferences},
		{http.MethodGet, "/memory/objects/:id/retainers", e.getRetainers},
		{http.MethodDelete, "/performance", e.deletePerformance},
		{http.MethodDelete, "/memory", e.deleteMemory},
		{http.MethodGet, "/stats", e.getStats},
		{http.MethodPost, "/snapshots", e.postSnapshot},
		{http.MethodPost, "/snapshots/:snapshot_id/restore", e.postRestore},
		{http.MethodGet, "/health", e.getHealth},
	}

	router := httprouter.New()

	for _, route := range routes {
		handlerFunc := httputil.DecompressPayload(route.handler)
		handler := compress(handlerFunc)

		router.Handler(route.method, route.path, handler)
	}
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))

	return router, nil
}

func main() {
	envName := envutil.GetEnvOrFallback("SENTRY_ENVIRONMENT", "development")
	config, err := loadConfig(envName)
	if err != nil {
		log.Fatal().Err(err).Msg("error loading configuration")
	}

	logutil.ConfigureLogger(config.LogLevel)

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              config.SentryDSN,
		EnableTracing:    true,
		Environment:      config.Environment,
		Release:          release,
		TracesSampleRate: 1.0,
		BeforeSend:       httputil.SetHTTPStatusCodeTag,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newEnvironment(ctx, config, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("error setting up environment")
	}

	router, err := env.newRouter()
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("error setting up the router")
	}

	server := http.Server{
		Addr:    ":" + config.Port,
		Handler: sentryhttp.New(sentryhttp.Options{}).Handle(router),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return server.Shutdown(cctx)
	})
	if env.eventsReader != nil {
		g.Go(func() error {
			// a broken stream leaves what was ingested queryable
			err := env.store.Consume(gctx, env.eventsReader)
			if err != nil && !errors.Is(err, context.Canceled) {
				sentry.CaptureException(err)
				log.Err(err).Msg("event stream stopped")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		sentry.CaptureException(err)
		log.Err(err).Msg("server failed")
	}

	// Shutdown the rest of the environment after the HTTP connections are closed
	env.shutdown()
}

func (e *environment) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
