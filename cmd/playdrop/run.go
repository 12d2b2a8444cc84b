package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/keithlinneman/playdrop/internal/archive"
	"github.com/keithlinneman/playdrop/internal/cfg"
	"github.com/keithlinneman/playdrop/internal/health"
	"github.com/keithlinneman/playdrop/internal/httpmw"
	"github.com/keithlinneman/playdrop/internal/httpserver"
	"github.com/keithlinneman/playdrop/internal/log"
	"github.com/keithlinneman/playdrop/internal/metrics"
	"github.com/keithlinneman/playdrop/internal/mirror"
	"github.com/keithlinneman/playdrop/internal/opshttp"
	"github.com/keithlinneman/playdrop/internal/otelx"
	"github.com/keithlinneman/playdrop/internal/prof"
	"github.com/keithlinneman/playdrop/internal/publish"
	"github.com/keithlinneman/playdrop/internal/ratelimit"
	"github.com/keithlinneman/playdrop/internal/sitehandler"
	"github.com/keithlinneman/playdrop/internal/uploadhttp"
	"github.com/keithlinneman/playdrop/internal/uploads"
	v "github.com/keithlinneman/playdrop/internal/version"
	"github.com/keithlinneman/playdrop/internal/webassets"
	"github.com/keithlinneman/playdrop/internal/xerrors"
)

const (
	component = "server"

	// load balancers need a few failed readiness checks before they stop
	// routing new uploads here
	drainPeriod     = 30 * time.Second
	shutdownTimeout = 10 * time.Second

	// uploads stream large bodies over slow links
	uploadIOTimeout = 5 * time.Minute
)

type stopFunc = func(context.Context) error

// run wires every component, serves until ctx is cancelled and then drains.
func run(ctx context.Context, conf cfg.App, vi v.Info) error {
	L, err := newLogger(conf, vi)
	if err != nil {
		return xerrors.Wrap(err, "logger")
	}
	defer L.Sync()
	ctx = log.WithContext(ctx, L)
	policy, _ := archive.ParseUnsafePolicy(conf.UnsafeEntryPolicy)
	logStartup(ctx, L, conf, vi, policy)

	m := metrics.New()
	m.SetBuildInfoFromVersion(vi.AppName, component, vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       vi.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": component,
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope disabled after start failure", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer stopProf()

	// the collector runs on localhost, so plaintext grpc
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   vi.AppName,
		Component: component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "tracing disabled after init failure")
		shutdownOTEL = func(context.Context) error { return nil }
	}

	registry := uploads.NewRegistry()
	var archiveMirror *mirror.S3
	if conf.MirrorS3Bucket != "" {
		if archiveMirror, err = mirror.NewS3(ctx, mirror.Options{
			Logger: L,
			Bucket: conf.MirrorS3Bucket,
			Prefix: conf.MirrorS3Prefix,
		}); err != nil {
			return xerrors.Wrap(err, "archive mirror")
		}
	}

	gwOpts := publish.Options{
		Logger:   L,
		Registry: registry,
		Extractor: archive.NewExtractor(archive.Options{
			Logger:        L,
			MaxEntryBytes: conf.MaxEntryBytes,
			MaxTotalBytes: conf.MaxExtractBytes,
			MaxEntries:    conf.MaxEntries,
			Policy:        policy,
		}),
		Root:           conf.UploadRoot,
		Prefix:         conf.PublicPrefix,
		EntryDocument:  conf.EntryDocument,
		MaxUploadBytes: conf.MaxUploadBytes,
		Metrics:        m,
	}
	swOpts := uploads.SweeperOptions{
		Logger:    L,
		Registry:  registry,
		Root:      conf.UploadRoot,
		Retention: conf.Retention,
		Interval:  conf.SweepInterval,
		Metrics:   m,
	}
	// assigned only when set so the interfaces never hold a typed nil
	if archiveMirror != nil {
		gwOpts.Mirror = archiveMirror
		swOpts.Mirror = archiveMirror
	}
	gateway, err := publish.New(gwOpts)
	if err != nil {
		return xerrors.Wrap(err, "publication gateway")
	}

	// uploads that survived a restart are served again; the sweeper reclaims the rest
	restored, err := uploads.Rebuild(ctx, L, registry, conf.UploadRoot, conf.EntryDocument)
	if err != nil {
		return xerrors.Wrapf(err, "rebuild registry from %s", conf.UploadRoot)
	}
	m.SetUploadsActive(registry.Len())
	L.Info(ctx, "upload registry rebuilt", "restored", restored)

	sweeper := uploads.NewSweeper(swOpts)
	go func() {
		if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
			L.Error(ctx, err, "sweeper stopped")
		}
	}()

	limiter := newUploadLimiter(ctx, L, conf, m)
	api := uploadhttp.NewAPI(uploadhttp.Options{
		Logger:           L,
		Publisher:        gateway,
		Catalog:          registry,
		MaxUploadBytes:   conf.MaxUploadBytes,
		RecentLimit:      conf.RecentLimit,
		Retention:        conf.Retention,
		UploadMiddleware: []func(http.Handler) http.Handler{limiter.Middleware},
	})
	site, err := sitehandler.New(&sitehandler.Options{
		Logger:     L,
		Uploads:    registry,
		Prefix:     conf.PublicPrefix,
		FallbackFS: webassets.FallbackFS(),
	})
	if err != nil {
		return xerrors.Wrap(err, "site handler")
	}

	var gate health.ShutdownGate
	liveness := health.Fixed(true, "")
	readiness := health.All(gate.Probe(), health.WritableDir(conf.UploadRoot))

	stopSite, err := httpserver.Start(ctx, httpserver.Options{
		Logger:        L,
		Port:          conf.HTTPPort,
		Health:        liveness,
		Readiness:     readiness,
		ClientIPOpts:  httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		APIRoutes:     api.RegisterRoutes,
		ContentPrefix: site.Prefix(),
		Content:       site,
		SiteHandler:   http.HandlerFunc(site.NotFound),
		UseRecoverMW:  true,
		OnPanic:       m.IncHttpPanic,
		MetricsMW:     m.Middleware,
		ReadTimeout:   uploadIOTimeout,
		WriteTimeout:  uploadIOTimeout,
	})
	if err != nil {
		return xerrors.Wrap(err, "site listener")
	}

	// metrics, probes, pprof and manual sweeps; public peers are refused
	stopOps, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       liveness,
		Readiness:    readiness,
		Sweeper:      sweeper,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		_ = stopSite(context.Background())
		return xerrors.Wrap(err, "ops listener")
	}

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd readiness not sent", "reason", err.Error())
	}

	<-ctx.Done()
	drain(L, &gate)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range []struct {
		name string
		stop stopFunc
	}{
		{"site http", stopSite},
		{"ops http", stopOps},
		{"otel", shutdownOTEL},
	} {
		if err := s.stop(shutdownCtx); err != nil {
			L.Error(shutdownCtx, err, "shutdown failed", "part", s.name)
		}
	}
	L.Info(shutdownCtx, "shutdown complete")
	return nil
}

func newLogger(conf cfg.App, vi v.Info) (log.Logger, error) {
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, err
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		return nil, err
	}
	lg, err := log.New(log.Options{
		App:               vi.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		BuildId:           vi.BuildId,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		IncludeErrorLinks: conf.IncludeErrorLinks,
		MaxErrorLinks:     conf.MaxErrorLinks,
	})
	if err != nil {
		return nil, err
	}
	return lg.With("component", component), nil
}

func logStartup(ctx context.Context, L log.Logger, conf cfg.App, vi v.Info, policy archive.UnsafePolicy) {
	L.Info(ctx, "starting",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.Dirty(),
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"trusted_hops", conf.TrustedHops,
		"tracing", conf.EnableTracing,
		"pyroscope", conf.EnablePyroscope,
		"pprof", conf.EnablePprof,
		"upload_root", conf.UploadRoot,
		"public_prefix", conf.PublicPrefix,
		"entry_document", conf.EntryDocument,
		"max_upload", humanize.IBytes(uint64(conf.MaxUploadBytes)),
		"max_entry", humanize.IBytes(uint64(conf.MaxEntryBytes)),
		"max_extract", humanize.IBytes(uint64(conf.MaxExtractBytes)),
		"max_entries", conf.MaxEntries,
		"retention", conf.Retention.String(),
		"sweep_interval", conf.SweepInterval.String(),
		"unsafe_entry_policy", string(policy),
		"upload_rate", conf.UploadRate,
		"upload_burst", conf.UploadBurst,
		"mirror_s3_bucket", conf.MirrorS3Bucket,
	)
}

// newUploadLimiter throttles POST /upload per client ip; reads are not limited.
func newUploadLimiter(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics) *ratelimit.IPLimiter {
	return ratelimit.New(ctx,
		ratelimit.WithRate(conf.UploadRate, conf.UploadBurst),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		// logged once per ip until its bucket is evicted
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "upload rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limiter full, refusing new uploaders until some are evicted")
		}),
	)
}

// drain fails readiness and waits for the load balancer to notice. A second
// signal skips the wait.
func drain(L log.Logger, gate *health.ShutdownGate) {
	ctx := context.Background()
	gate.Set("draining")
	L.Info(ctx, "draining", "period", drainPeriod.String())

	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)
	select {
	case <-time.After(drainPeriod):
	case <-force:
		L.Warn(ctx, "second signal, skipping drain")
	}
}
