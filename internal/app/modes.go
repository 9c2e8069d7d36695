package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veilcast/veilcast/internal/confidential"
	"github.com/veilcast/veilcast/internal/ledger"
	"github.com/veilcast/veilcast/internal/server"
	"github.com/veilcast/veilcast/internal/server/handler"
	"github.com/veilcast/veilcast/internal/server/ws"
	"github.com/veilcast/veilcast/internal/service"
)

// shutdownGrace is how long in-flight HTTP requests get to finish.
const shutdownGrace = 10 * time.Second

// stack bundles the core runtime objects shared by both modes.
type stack struct {
	engine *confidential.Engine
	ledger *ledger.Ledger
	stats  *service.StatsService
	sink   *fanOutSink
}

// buildStack constructs the confidential engine, the ledger, and the
// read-side services, then binds the notification fan-out.
func (a *App) buildStack(deps *Dependencies) *stack {
	engine := confidential.NewEngine()
	sink := newFanOutSink(deps.SignalBus, deps.Notifier, deps.Archiver, a.logger)

	led := ledger.New(ledger.Config{
		Arithmetic:    engine,
		Sink:          sink,
		Events:        deps.Events,
		Submissions:   deps.Submissions,
		Finalizations: deps.Finalizations,
		Logger:        a.logger,
	})

	stats := service.NewStatsService(led, deps.StatsCache, a.logger)
	sink.Bind(led, stats)

	return &stack{
		engine: engine,
		ledger: led,
		stats:  stats,
		sink:   sink,
	}
}

// startOracle runs the in-process decryption oracle, which consumes the
// engine's request queue and delivers cleartexts back to the ledger after the
// configured latency.
func (a *App) startOracle(ctx context.Context, g *errgroup.Group, st *stack) {
	oracle := confidential.NewOracle(
		st.engine,
		st.ledger.OnDecryptionComplete,
		a.cfg.Oracle.Latency.Duration,
		a.logger,
	)
	g.Go(func() error {
		return oracle.Run(ctx)
	})
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The hub is started only when a signal bus is wired.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, st *stack) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			Events:    st.ledger.EventCount,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.cfg.Mode, st.ledger.EventCount, a.logger),
		Events:      handler.NewEventHandler(st.ledger, deps.Events, a.logger),
		Submissions: handler.NewSubmissionHandler(st.ledger, st.engine, a.cfg.Server.RequireSignatures, a.logger),
		Finalize:    handler.NewFinalizeHandler(st.ledger, deps.Archiver, deps.CallbackAuth, a.logger),
		Stats:       handler.NewStatsHandler(st.stats, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		// Shut the server down when the context is cancelled.
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return ctx.Err()
		}
	})
}

// ServeMode runs the full stack: durable archives, the signal bus, the
// WebSocket hub, the HTTP API, and the in-process oracle.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "serve mode starting")

	g, ctx := errgroup.WithContext(ctx)
	st := a.buildStack(deps)

	a.startOracle(ctx, g, st)
	a.startHTTPServer(ctx, g, deps, st)

	err := g.Wait()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// LocalMode runs the ledger and HTTP API with no external infrastructure:
// no archives, no Redis, no blob store. The oracle runs in-process and the
// operator identity is available as a default admin.
func (a *App) LocalMode(ctx context.Context, deps *Dependencies) error {
	if deps.Identity != nil {
		a.logger.InfoContext(ctx, "local mode starting",
			slog.String("operator", deps.Identity.Address().Hex()),
		)
	} else {
		a.logger.InfoContext(ctx, "local mode starting")
	}

	g, ctx := errgroup.WithContext(ctx)
	st := a.buildStack(deps)

	a.startOracle(ctx, g, st)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, st)
	}

	err := g.Wait()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}
