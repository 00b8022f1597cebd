package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/dnscache"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"datacache/internal/config"
	"datacache/internal/fetcher"
	httpserver "datacache/internal/server/http"
	"datacache/internal/telemetry"
	"datacache/internal/upstream"
	"datacache/pkg/logger"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "datacache",
		Usage: "serve a remote JSON document from a 24h in-memory cache",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yaml",
				Usage:   "path to YAML config or inline YAML",
				Sources: cli.EnvVars("APP_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "env",
				Value:   "dev",
				Usage:   "runtime environment (dev, prod)",
				Sources: cli.EnvVars("APP_ENV"),
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP service",
				Action: serve,
			},
			{
				Name:   "fetch",
				Usage:  "fetch the document once and print it",
				Action: fetchOnce,
			},
		},
	}
}

// runtime is everything built from config for one process.
type runtime struct {
	conf     *config.FinalConfig
	resolver *dnscache.Resolver
	fetcher  *fetcher.Fetcher[json.RawMessage]
	cleanup  func()
}

func build(cmd *cli.Command, obs fetcher.Observer) (*runtime, error) {
	env := cmd.String("env")
	_ = os.Setenv("APP_ENV", env)

	conf, err := loadConfig(cmd.String("config"), cmd.IsSet("config"))
	if err != nil {
		return nil, err
	}

	cleanup := logger.Setup(env, conf.Log.Level)

	var resolver *dnscache.Resolver
	if !conf.Source.DisableDNSCache {
		resolver = &dnscache.Resolver{}
	}

	client := upstream.New(upstream.Config{
		Timeout:      conf.SourceTimeout(),
		UserAgent:    conf.Source.UserAgent,
		MaxBodyBytes: conf.Source.MaxBodyBytes,
	}, resolver)

	f := fetcher.New(client, fetcher.JSONDecoder[json.RawMessage](conf.Source.RequiredFields...), fetcher.Options{
		URL:      conf.Source.URL,
		TTL:      conf.TTL(),
		Observer: obs,
		Logger:   log.Log,
	})

	return &runtime{conf: conf, resolver: resolver, fetcher: f, cleanup: cleanup}, nil
}

// loadConfig reads the config file; a missing default file falls back to env.
func loadConfig(path string, explicit bool) (*config.FinalConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
		raw, err := config.LoadEnv()
		if err != nil {
			return nil, err
		}
		return config.Finalize(raw)
	}
	conf, err := config.Build(path)
	if err != nil {
		return nil, fmt.Errorf("build config: %w", err)
	}
	return conf, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	rt, err := build(cmd, metrics)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	startLog := logStartup(log.Log, rt)

	if rt.conf.Cache.WarmOnStart {
		if _, err := rt.fetcher.Load(ctx); err != nil {
			startLog.WithError(err).Warn("cache warm-up failed")
		}
	}

	srv := httpserver.New(httpserver.Deps{
		Config:   rt.conf,
		Data:     rt.fetcher,
		Metrics:  metrics,
		Gatherer: reg,
		Logger:   log.Log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	if rt.resolver != nil {
		refresher := &upstream.ResolverRefresher{
			Resolver: rt.resolver,
			Interval: rt.conf.DNSRefresh(),
			Logger:   log.Log,
		}
		g.Go(func() error { return refresher.Run(gctx) })
	}

	return g.Wait()
}

// logStartup announces the service and dumps the effective config at debug.
func logStartup(base log.Interface, rt *runtime) log.Interface {
	l := base.WithField("url", rt.conf.Source.URL)
	l.WithFields(log.Fields{
		"ttl":       rt.conf.TTL().String(),
		"dns_cache": rt.resolver != nil,
	}).Info("starting datacache")

	pretty, err := rt.conf.Pretty()
	if err != nil {
		l.WithError(err).Warn("render config")
		return l
	}
	l.Debugf("effective config:\n%s", pretty)
	return l
}

func fetchOnce(ctx context.Context, cmd *cli.Command) error {
	rt, err := build(cmd, nil)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	data, err := rt.fetcher.Get(ctx)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return fmt.Errorf("format data: %w", err)
	}
	out.WriteByte('\n')

	w := cmd.Root().Writer
	if w == nil {
		w = os.Stdout
	}
	_, err = out.WriteTo(w)
	return err
}
