package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner is a background loop that returns when its context is done.
type Runner func(ctx context.Context) error

// Serve runs the HTTP handler, the admin gRPC health server, the health
// prober and any extra runners until ctx is canceled or one of them fails,
// then shuts the servers down gracefully.
func (d *Deps) Serve(ctx context.Context, handler http.Handler, runners ...Runner) error {
	srvCfg := d.Config.Server

	httpLis, err := net.Listen("tcp", srvCfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srvCfg.HTTPAddr, err)
	}
	grpcLis, err := net.Listen("tcp", srvCfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		return fmt.Errorf("failed to listen on %s: %w", srvCfg.GRPCAddr, err)
	}
	return d.serve(ctx, httpLis, grpcLis, handler, runners...)
}

func (d *Deps) serve(ctx context.Context, httpLis, grpcLis net.Listener, handler http.Handler, runners ...Runner) error {
	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: d.writeTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.Log.Info("http server listening", slog.String("addr", httpLis.Addr().String()))
		if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return d.Health.Serve(grpcLis) })
	g.Go(func() error { return d.Health.Run(gctx) })
	for _, run := range runners {
		g.Go(func() error { return run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		d.Log.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), d.Config.Server.ShutdownTimeout)
		defer cancel()

		d.Health.Shutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// writeTimeout leaves room past the request timeout so a handler that hits
// its deadline can still write the error response.
func (d *Deps) writeTimeout() time.Duration {
	if t := d.Config.Server.RequestTimeout; t > 0 {
		return t + 5*time.Second
	}
	return 10 * time.Second
}
