package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/vibee/vibee/internal/api"
	"github.com/vibee/vibee/internal/auth"
	"github.com/vibee/vibee/internal/bus"
	"github.com/vibee/vibee/internal/channel"
	"github.com/vibee/vibee/internal/config"
	"github.com/vibee/vibee/internal/history"
	"github.com/vibee/vibee/internal/lock"
	"github.com/vibee/vibee/internal/logging"
	"github.com/vibee/vibee/internal/metrics"
	"github.com/vibee/vibee/internal/profile"
	"github.com/vibee/vibee/internal/room"
	"github.com/vibee/vibee/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional override for testing; nil = load from disk
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideGuard,
			provideAuthClient,
			provideHistoryClient,
			provideRoomManager,
			provideSessionService,
			provideRoomService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

// Logger routes fx's own events through the daemon logger.
func Logger() fx.Option {
	return fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: l.Named("fx")}
	})
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, p.Config.Validate()
	}
	if err := config.LoadEnvFile(profile.EnvPath()); err != nil {
		return nil, err
	}
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName), cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// The lock is taken as a dependency so the store is never opened by a
// second daemon for the same profile.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed() {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("to", result.To))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.To))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideGuard(db *store.DB, b *bus.Bus, logger *zap.Logger) (*auth.Guard, error) {
	g := auth.NewGuard(db, b, logger.Named("auth"))
	cred, err := g.Restore()
	if err != nil {
		return nil, err
	}
	if cred == nil {
		logger.Info("no stored credential, login required")
	}
	return g, nil
}

func provideAuthClient(cfg *config.Config) *auth.Client {
	return auth.NewClient(cfg.ServerURL, &http.Client{Timeout: 15 * time.Second})
}

func provideHistoryClient(cfg *config.Config) *history.Client {
	return history.NewClient(cfg.ServerURL, &http.Client{Timeout: 15 * time.Second})
}

func provideRoomManager(cfg *config.Config, g *auth.Guard, hc *history.Client, db *store.DB, b *bus.Bus, logger *zap.Logger) *room.Manager {
	return room.NewManager(room.Config{
		WSURL:          cfg.WSURL,
		PageSize:       cfg.PageSize,
		ConnectTimeout: cfg.ConnectTimeout.Duration,
		Backoff: channel.Backoff{
			Base:        cfg.Reconnect.BaseDelay.Duration,
			Max:         cfg.Reconnect.MaxDelay.Duration,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		},
	}, g, hc, db, b, logger.Named("room"))
}

func provideSessionService(p Params, g *auth.Guard, ac *auth.Client, m *room.Manager) *api.SessionService {
	return api.NewSessionService(p.ProfileName, g, ac, m)
}

func provideRoomService(p Params, m *room.Manager, b *bus.Bus, logger *zap.Logger) *api.RoomService {
	return api.NewRoomService(p.ProfileName, m, b, logger.Named("api"))
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *Server, roomSvc *api.RoomService, lk *lock.Lock, db *store.DB, m *room.Manager, b *bus.Bus, logger *zap.Logger) {
	var metricsSrv *http.Server
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			metrics.Init()
			metrics.TrackBusDrops(b.Dropped)
			if cfg.MetricsAddr != "" {
				s, addr, err := metrics.Serve(cfg.MetricsAddr)
				if err != nil {
					return err
				}
				metricsSrv = s
				logger.Info("metrics listening", zap.String("addr", addr.String()))
			}

			// Tear down the room on logout or invalidation.
			m.Start(context.Background())

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			roomSvc.Shutdown()
			srv.Stop(ctx)
			m.Stop()
			if metricsSrv != nil {
				_ = metricsSrv.Shutdown(ctx)
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
