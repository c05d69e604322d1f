package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/cubbscratchstudios/splat/internal/capture"
	"github.com/cubbscratchstudios/splat/internal/config"
	"github.com/cubbscratchstudios/splat/internal/db"
	"github.com/cubbscratchstudios/splat/internal/discord"
	"github.com/cubbscratchstudios/splat/internal/handlers"
	"github.com/cubbscratchstudios/splat/internal/impersonate"
	"github.com/cubbscratchstudios/splat/internal/logger"
	"github.com/cubbscratchstudios/splat/internal/message"
	"github.com/cubbscratchstudios/splat/internal/message/event"
	"github.com/cubbscratchstudios/splat/internal/metrics"
	"github.com/cubbscratchstudios/splat/internal/msglog"
	"github.com/cubbscratchstudios/splat/internal/server"
	"github.com/cubbscratchstudios/splat/internal/version"
	"github.com/cubbscratchstudios/splat/internal/wordfilter"
)

const (
	dbConnectTimeout = 10 * time.Second
	gatewayTimeout   = 30 * time.Second
)

func runServe(configPath string) error {
	app := fx.New(
		fx.Provide(
			func() (config.Config, error) { return loadConfig(configPath) },
			provideLogger,
			metrics.New,
			event.NewHub,
			func(h *event.Hub) event.Subscriber { return h },
			provideBackend,
			provideStore,
			provideFilter,
			provideCaptureService,
			provideSession,
			provideImpersonation,
			provideMsgLog,
			provideRetention,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewMetricsHandler),
			provideServerHandler(handlers.NewFilterHandler),
			provideServerHandler(provideCaptureHandler),
			provideServerHandler(provideMessageHandler),
			provideServerHandler(provideImpersonationHandler),

			provideServer,
		),
		fx.Invoke(
			startMsgLog,
			startCapture,
			startGateway,
			startRetention,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideBackend(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (message.Backend, error) {
	if strings.EqualFold(cfg.Storage.Driver, config.StorageDriverMemory) {
		log.Warn("using in-memory message store, captured messages are lost on restart")
		return message.NewMemoryBackend(), nil
	}
	if cfg.Postgres.AutoMigrate {
		migrations, err := migrationsFS()
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrate(log, cfg.Postgres, migrations, "up", nil); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbConnectTimeout)
	defer cancel()
	pool, err := db.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := db.Ping(ctx, pool, dbConnectTimeout); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			pool.Close()
			return nil
		},
	})
	return message.NewPostgresBackend(pool), nil
}

func provideStore(log *slog.Logger, backend message.Backend, m *metrics.Metrics) *message.Store {
	return message.NewStore(log, backend, message.WithMetrics(m))
}

func provideFilter(log *slog.Logger, cfg config.Config) (*wordfilter.Filter, error) {
	wf := cfg.WordFilter
	rules := make([]wordfilter.Rule, 0, len(wf.Rules))
	for _, r := range wf.Rules {
		rules = append(rules, wordfilter.Rule{
			Term:      r.Term,
			Mode:      wordfilter.Mode(r.Mode),
			Threshold: r.Threshold,
			MinLength: r.MinLength,
			Allow:     r.Allow,
		})
	}
	f, err := wordfilter.New(wordfilter.Config{
		Terms:     wf.Terms,
		Rules:     rules,
		Allow:     wf.Allow,
		MinLength: wf.MinLength,
		Ignore: wordfilter.Ignore{
			Users:    wf.Ignore.Users,
			Channels: wf.Ignore.Channels,
			Guilds:   wf.Ignore.Guilds,
		},
	})
	if err != nil {
		return nil, err
	}
	log.Info("word filter loaded", slog.Int("terms", len(f.Terms())))
	return f, nil
}

func provideCaptureService(log *slog.Logger, cfg config.Config, filter *wordfilter.Filter, store *message.Store, hub *event.Hub, m *metrics.Metrics, shutdowner fx.Shutdowner) *capture.Service {
	svc := capture.NewService(log, capture.NewNormalizer(filter), store, hub, m, capture.Options{
		Workers:      cfg.Capture.Workers,
		QueueSize:    cfg.Capture.QueueSize,
		RetryMax:     cfg.Capture.RetryMax,
		RetryBackoff: time.Duration(cfg.Capture.RetryBackoffMs) * time.Millisecond,
	})
	svc.OnCorruption(func(err error) {
		log.Error("message store corrupt, shutting down", slog.Any("error", err))
		_ = shutdowner.Shutdown(fx.ExitCode(1))
	})
	return svc
}

// provideSession returns nil when no bot token is configured; the HTTP API still works.
func provideSession(log *slog.Logger, cfg config.Config) (*discordgo.Session, error) {
	if strings.TrimSpace(cfg.Discord.BotToken) == "" {
		log.Warn("discord bot token not set, gateway and webhooks disabled")
		return nil, nil
	}
	return discord.NewSession(cfg.Discord)
}

func provideImpersonation(log *slog.Logger, cfg config.Config, store *message.Store, session *discordgo.Session, m *metrics.Metrics) *impersonate.Service {
	var sinks impersonate.SinkProvider
	if session != nil {
		sinks = discord.NewWebhookProvider(log, session, cfg.Discord, nil)
	}
	return impersonate.NewService(log, store, impersonate.NewRenderer(log, store), impersonate.NewPoster(log, m), sinks)
}

func provideMsgLog(log *slog.Logger, cfg config.Config, session *discordgo.Session, hub event.Subscriber) *msglog.Logger {
	var sink msglog.Sink
	if session != nil {
		sink = discord.NewLogSink(session)
	}
	return msglog.New(log, cfg.MsgLog, sink, hub, discord.StateGuildNames{Session: session})
}

func provideRetention(log *slog.Logger, cfg config.Config, store *message.Store) (*message.Retention, error) {
	maxAge, err := message.ParseRetention(cfg.History.Retention)
	if err != nil {
		return nil, err
	}
	return message.NewRetention(log, store, cfg.History.PurgeSchedule, maxAge)
}

func provideCaptureHandler(log *slog.Logger, svc *capture.Service) *handlers.CaptureHandler {
	return handlers.NewCaptureHandler(log, svc)
}

func provideMessageHandler(log *slog.Logger, store *message.Store) *handlers.MessageHandler {
	return handlers.NewMessageHandler(log, store)
}

func provideImpersonationHandler(log *slog.Logger, svc *impersonate.Service) *handlers.ImpersonationHandler {
	return handlers.NewImpersonationHandler(log, svc)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Server.APIToken, params.ServerHandlers...)
}

func startMsgLog(lc fx.Lifecycle, l *msglog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			l.Start(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			l.Stop()
			return nil
		},
	})
}

func startCapture(lc fx.Lifecycle, svc *capture.Service) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return svc.Stop(ctx)
		},
	})
}

func startGateway(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, session *discordgo.Session, svc *capture.Service) {
	if session == nil {
		return
	}
	gw := discord.NewGateway(log, session, svc, cfg.Discord.IgnoreWebhooks)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
			defer cancel()
			return gw.Open(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return gw.Close()
		},
	})
}

func startRetention(lc fx.Lifecycle, r *message.Retention) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return r.Start()
		},
		OnStop: func(ctx context.Context) error {
			return r.Stop(ctx)
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	log.Info("starting splat", slog.String("version", version.GetInfo()))
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
