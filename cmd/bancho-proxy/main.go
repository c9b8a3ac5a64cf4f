package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"bancho-proxy/internal/client"
	"bancho-proxy/internal/config"
	"bancho-proxy/internal/handler"
	"bancho-proxy/internal/logging"
	"bancho-proxy/internal/metrics"
	"bancho-proxy/internal/middleware"
	"bancho-proxy/internal/model"
	"bancho-proxy/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("bancho-proxy"),
		kong.Description("Reverse proxy for the bancho server behind Cloudflare."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newRoute,
			newLogger,
			metrics.New,
			client.NewUpstreamClient,
			fx.Annotate(
				service.NewProxyService,
				fx.From(new(*client.UpstreamClient)),
			),
			handler.NewProxyHandler,
			handler.NewHealthHandler,
			fx.Annotate(newProxyEcho, fx.ResultTags(`name:"proxy"`)),
			fx.Annotate(newAdminEcho, fx.ResultTags(`name:"admin"`)),
		),
		fx.Invoke(
			fx.Annotate(handler.RegisterRoutes, fx.ParamTags(`name:"proxy"`, `name:"admin"`)),
			warnConfigPermissions,
			fx.Annotate(startServers, fx.ParamTags(``, `name:"proxy"`, `name:"admin"`)),
		),
	).Run()
}

func newRoute(cfg *config.Config) model.RouteConfig {
	return cfg.BuildRoute()
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
}

func newProxyEcho(cfg *config.Config, route model.RouteConfig, proxy *handler.ProxyHandler, m *metrics.Metrics, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Clients hold long-poll requests open, so only the header read is bounded.
	// Request bodies and streamed responses are limited by BodyLimit and the
	// upstream header timeout instead of ReadTimeout/WriteTimeout.
	e.Server.ReadHeaderTimeout = route.ReadTimeout
	e.Server.ReadTimeout = 0
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second

	e.Use(echomw.Recover())
	e.Use(middleware.CORS(route.CORSOrigin))
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.MetricsMiddleware(m, route))
	// Unknown hosts are answered by the proxy handler before any limit applies.
	e.Use(middleware.VirtualHosts(route, proxy.Handle))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimiter(cfg.Server.RateLimit.RequestsPerSecond))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func newAdminEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServers(lc fx.Lifecycle, proxyEcho, adminEcho *echo.Echo, cfg *config.Config, route model.RouteConfig, logger *slog.Logger) {
	lc.Append(serverHook("proxy", proxyEcho, cfg.Server.Addr(), logger,
		"server_names", route.ServerNames(),
		"upstream", route.Upstream.Addr(),
	))
	if cfg.Admin.Enabled {
		lc.Append(serverHook("admin", adminEcho, cfg.Admin.Addr(), logger))
	}
}

// serverHook binds addr on start so a port conflict fails startup, then serves
// in the background until shutdown.
func serverHook(name string, e *echo.Echo, addr string, logger *slog.Logger, attrs ...any) fx.Hook {
	return fx.Hook{
		OnStart: func(_ context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s listener %s: %w", name, addr, err)
			}
			logger.Info("starting server", append([]any{"listener", name, "addr", addr}, attrs...)...)
			go func() {
				if err := e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", "listener", name, "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server", "listener", name)
			return e.Shutdown(ctx)
		},
	}
}
