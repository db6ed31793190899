package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/pixelrelay/pixelrelay/internal/config"
	"github.com/pixelrelay/pixelrelay/internal/handlers"
	"github.com/pixelrelay/pixelrelay/internal/logger"
	"github.com/pixelrelay/pixelrelay/internal/pipeline"
	"github.com/pixelrelay/pixelrelay/internal/sink"
	"github.com/pixelrelay/pixelrelay/internal/server"
	"github.com/pixelrelay/pixelrelay/internal/transform"
)

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// provideSink returns the storage sink capability, or nil when credentials
// are absent. A nil sink means the upload endpoint is not registered at all.
func provideSink(log *slog.Logger, cfg config.Config) (pipeline.Sink, error) {
	storageCfg := sink.Config{
		Endpoint:      cfg.Storage.Endpoint,
		Region:        cfg.Storage.Region,
		Bucket:        cfg.Storage.Bucket,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		UseSSL:        cfg.Storage.UseSSL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	}
	if !storageCfg.Configured() {
		log.Info("storage sink not configured, upload endpoint disabled")
		return nil, nil
	}
	s, err := sink.New(log, storageCfg)
	if err != nil {
		return nil, fmt.Errorf("storage sink: %w", err)
	}
	return s, nil
}

func providePipeline(log *slog.Logger, transformer pipeline.Transformer, s pipeline.Sink) *pipeline.Pipeline {
	return pipeline.New(log, transformer, s)
}

func provideConvertHandler(log *slog.Logger, p *pipeline.Pipeline, cfg config.Config) *handlers.ConvertHandler {
	return handlers.NewConvertHandler(log, p, cfg.Convert.DefaultFormat)
}

func provideUploadHandler(log *slog.Logger, p *pipeline.Pipeline, cfg config.Config) server.Handler {
	if !p.CanStore() {
		return nil
	}
	return handlers.NewUploadHandler(log, p, cfg.Convert.DefaultFormat)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr,
		params.Config.Server.MaxUploadBytes, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

func main() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,

			fx.Annotate(transform.New, fx.As(new(pipeline.Transformer))),
			provideSink,
			providePipeline,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideConvertHandler),
			fx.Annotate(provideUploadHandler, fx.ResultTags(`group:"server_handlers"`)),

			provideServer,
		),
		fx.Invoke(
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}
