// router-demo runs the command router against a NATS-backed cluster,
// periodically fanning an opaque ping payload out to all masters and
// exposing Prometheus metrics.
//
// Configuration is environment-driven:
//
//	KVROUTE_NATS_URL       NATS server URL (default nats://127.0.0.1:4222)
//	KVROUTE_SUBJECT_PREFIX subject prefix (default kvroute)
//	KVROUTE_METRICS_ADDR   /metrics listen address (default :9100)
//	KVROUTE_MAX_REDIRECTS  redirect budget per unit (default 5)
//	KVROUTE_INTERVAL       fan-out interval (default 5s)
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	natsadapter "github.com/codewandler/kvroute-go/adapters/nats"
	promadapter "github.com/codewandler/kvroute-go/adapters/prometheus"
	"github.com/codewandler/kvroute-go/core/cluster"
	"github.com/codewandler/kvroute-go/core/router"
)

type config struct {
	NATSURL       string        `envconfig:"NATS_URL" default:"nats://127.0.0.1:4222"`
	SubjectPrefix string        `envconfig:"SUBJECT_PREFIX" default:"kvroute"`
	MetricsAddr   string        `envconfig:"METRICS_ADDR" default:":9100"`
	MaxRedirects  int           `envconfig:"MAX_REDIRECTS" default:"5"`
	Interval      time.Duration `envconfig:"INTERVAL" default:"5s"`
}

func main() {
	log := slog.Default()

	var cfg config
	if err := envconfig.Process("kvroute", &cfg); err != nil {
		log.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := natsadapter.NewProvider(natsadapter.Config{
		Connect:       natsadapter.ConnectURL(cfg.NATSURL),
		Log:           log,
		SubjectPrefix: cfg.SubjectPrefix,
	})
	if err != nil {
		log.Error("failed to connect", slog.String("url", cfg.NATSURL), slog.Any("error", err))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()

	r, err := router.New(router.Options[*natsadapter.Conn]{
		Topology:     cluster.NewCachedProvider(provider, cluster.DefaultTopologyTTL),
		Resources:    provider,
		Translator:   natsadapter.NewTranslator(),
		MaxRedirects: cfg.MaxRedirects,
		Log:          log,
		Metrics:      promadapter.NewRouterMetrics(reg),
	})
	if err != nil {
		log.Error("failed to create router", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Warn("shutdown", slog.Any("error", err))
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	defer srv.Shutdown(context.Background())

	log.Info("router-demo started",
		slog.String("nats", cfg.NATSURL),
		slog.String("metrics", cfg.MetricsAddr),
	)

	ping := func(ctx context.Context, conn *natsadapter.Conn) (string, error) {
		b, err := conn.Do(ctx, []byte("PING"))
		return string(b), err
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			agg, err := router.ExecuteOnAllMasters(ctx, r, ping)
			if err != nil {
				log.Warn("fan-out failed", slog.Any("error", err))
				continue
			}
			for _, nr := range agg.Results() {
				log.Info("pong", slog.String("node", nr.Node.String()), slog.String("reply", nr.Value))
			}
		}
	}
}
