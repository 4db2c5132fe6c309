package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/idpgate/internal/audit"
	"github.com/dropDatabas3/idpgate/internal/cache"
	cachememory "github.com/dropDatabas3/idpgate/internal/cache/memory"
	cacheredis "github.com/dropDatabas3/idpgate/internal/cache/redis"
	"github.com/dropDatabas3/idpgate/internal/config"
	"github.com/dropDatabas3/idpgate/internal/directory"
	httpserver "github.com/dropDatabas3/idpgate/internal/http"
	ctrl "github.com/dropDatabas3/idpgate/internal/http/controllers/idp"
	mw "github.com/dropDatabas3/idpgate/internal/http/middlewares"
	"github.com/dropDatabas3/idpgate/internal/http/router"
	svc "github.com/dropDatabas3/idpgate/internal/http/services/idp"
	"github.com/dropDatabas3/idpgate/internal/observability/logger"
	"github.com/dropDatabas3/idpgate/internal/rate"
	"github.com/dropDatabas3/idpgate/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	configPath := flag.String("config", os.Getenv("IDPGATE_CONFIG"), "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "idpgate",
	})
	defer logger.Sync()
	mainLog := logger.L().With(logger.Component("main"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Cache backend (link sessions + rate limiting)
	var cacheClient cache.Client
	var limiter mw.RateLimiter
	switch cfg.Cache.Kind {
	case "redis":
		rc, err := cacheredis.New(cache.Config{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			mainLog.Fatal("redis connection failed", logger.Err(err))
		}
		cacheClient = rc
		if cfg.Rate.Enabled {
			limiter = limiterAdapter{rate.NewRedisLimiter(
				cacheredis.Underlying(rc),
				cfg.Cache.Redis.Prefix+":rl",
				cfg.Rate.Callback.Limit,
				config.DurationOr(cfg.Rate.Callback.Window, time.Minute),
			)}
		}
	default:
		cacheClient = cachememory.New(config.DurationOr(cfg.Cache.Memory.DefaultTTL, 2*time.Minute))
		if cfg.Rate.Enabled {
			limiter = limiterAdapter{rate.NewMemoryLimiter(
				cfg.Rate.Callback.Limit,
				config.DurationOr(cfg.Rate.Callback.Window, time.Minute),
			)}
		}
	}
	defer cacheClient.Close()

	dir := directory.NewHTTP(directory.HTTPConfig{
		BaseURL: cfg.Directory.BaseURL,
		Token:   cfg.Directory.Token,
		Timeout: config.DurationOr(cfg.Directory.Timeout, 15*time.Second),
	})

	linkStore := session.NewStore(cacheClient, config.DurationOr(cfg.Link.SessionTTL, time.Hour))
	var signer *session.TokenSigner
	if cfg.Link.SigningSecret != "" {
		signer = &session.TokenSigner{Secret: []byte(cfg.Link.SigningSecret)}
	}

	auditor, err := audit.NewRecorder(ctx, cfg.Audit.DSN)
	if err != nil {
		mainLog.Fatal("audit pool failed", logger.Err(err))
	}
	defer auditor.Close()

	metricsHandler, err := httpserver.RegisterMetrics(httpserver.MetricsConfig{
		AuditPool: auditor.Pool,
	})
	if err != nil {
		mainLog.Fatal("metrics registration failed", logger.Err(err))
	}

	callbackSvc := svc.NewCallbackService(svc.CallbackDeps{
		Directory: dir,
		Links:     linkStore,
	})

	handler := router.New(router.Deps{
		Callback: ctrl.NewCallbackController(ctrl.CallbackControllerDeps{
			Service:           callbackSvc,
			Signer:            signer,
			Auditor:           auditor,
			RecordDecision:    httpserver.RecordCallbackDecision,
			FingerprintCookie: cfg.Link.FingerprintCookie,
		}),
		LinkSession: ctrl.NewLinkSessionController(linkStore, signer, cfg.Link.FingerprintCookie),
		Health:      ctrl.NewHealthController(cacheClient),
		Metrics:     metricsHandler,
		Instrument:  httpserver.WithMetrics,
		RateLimiter: limiter,
	})

	srv := httpserver.NewServer(httpserver.ServerConfig{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  config.DurationOr(cfg.Server.ReadTimeout, 10*time.Second),
		WriteTimeout: config.DurationOr(cfg.Server.WriteTimeout, 30*time.Second),
	}, handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mainLog.Info("server listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		mainLog.Info("shutting down")
		return httpserver.Shutdown(srv, 10*time.Second)
	})

	if err := g.Wait(); err != nil {
		mainLog.Fatal("server error", logger.Err(err))
	}
}

// limiterAdapter adapta rate.Limiter a la interfaz del middleware.
type limiterAdapter struct {
	inner rate.Limiter
}

func (a limiterAdapter) Allow(ctx context.Context, key string) (mw.RateLimitResult, error) {
	res, err := a.inner.Allow(ctx, key)
	return mw.RateLimitResult{
		Allowed:     res.Allowed,
		Remaining:   res.Remaining,
		RetryAfter:  res.RetryAfter,
		CurrentHits: res.CurrentHits,
	}, err
}
