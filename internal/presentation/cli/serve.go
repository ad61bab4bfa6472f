package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appnotif "github.com/Zhima-Mochi/minishop-orders/internal/application/notification"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	httppresentation "github.com/Zhima-Mochi/minishop-orders/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-orders/internal/presentation/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(root *rootOptions) *cobra.Command {
	var (
		httpAddr    string
		grpcAddr    string
		autoMigrate bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the notification dispatcher and the gRPC health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return root.withApp(cmd, func(ctx context.Context, a *app) error {
				if httpAddr != "" {
					a.cfg.HTTPAddr = httpAddr
				}
				if grpcAddr != "" {
					a.cfg.GRPCHealthAddr = grpcAddr
				}
				return runServe(ctx, a, autoMigrate)
			})
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (HTTP_ADDR)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-health-addr", "", "gRPC health listen address (GRPC_HEALTH_ADDR)")
	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "apply pending migrations before serving")
	return cmd
}

func runServe(ctx context.Context, a *app, autoMigrate bool) error {
	log := a.systemLogger()

	if autoMigrate {
		applied, err := a.store.migrate(ctx)
		if err != nil {
			return err
		}
		if len(applied) > 0 {
			log.Info("migrations_applied", observability.F("files", applied))
		}
	}

	ch := a.openChannels(log)
	defer func() {
		if err := ch.Close(); err != nil {
			log.Warn("channel_close_failed", observability.F("error", err))
		}
	}()

	// Handlers must be registered before the bus starts.
	dispatcher := appnotif.NewDispatcher(appnotif.NewPlanner(a.grants, a.ids), ch.senders, a.retryPolicy(), a.tel)
	workerpresentation.NewNotificationWorker(dispatcher, a.bus, a.tel).Start()
	a.bus.Start(ctx)

	handler := httppresentation.NewHandler(a.orders, a.payments, ch.sessions, httppresentation.Options{
		RequestTimeout: a.cfg.RequestTimeout,
		SessionTTL:     a.cfg.LiveSessionTTL,
		Health:         a.store.ping,
	}, a.tel)
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	handler.Mount(mux)

	server := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	health := newHealthServer(a.store.ping, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("store", a.store.driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_server_error", observability.F("error", err))
			return err
		}
		return nil
	})
	g.Go(func() error {
		return health.Serve(gctx, a.cfg.GRPCHealthAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Error("http_server_shutdown_error", observability.F("error", err))
		} else {
			log.Info("http_server_stopped")
		}
		// Drain queued notifications after the last request has committed.
		a.bus.Stop(shutdownCtx)
		return err
	})
	return g.Wait()
}
