package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	appaudit "github.com/Zhima-Mochi/minishop-orders/internal/application/audit"
	appinv "github.com/Zhima-Mochi/minishop-orders/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-orders/internal/application/payment"
	domaudit "github.com/Zhima-Mochi/minishop-orders/internal/domain/audit"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/notification"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/authz"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/sqlstore"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/config"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/keylock"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const tracerName = "minishop.orders"

// storage is the persistence backend selected by STORE_DRIVER.
type storage struct {
	driver  string
	uow     application.UnitOfWork
	orders  domorder.Repository
	stock   dominv.Repository
	audit   domaudit.Reader
	ping    func(ctx context.Context) error
	migrate func(ctx context.Context) ([]string, error)
	close   func() error
}

func openStorage(ctx context.Context, cfg config.Config) (*storage, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if driver == "memory" {
		s := memory.NewStore(cfg.LockTimeout)
		return &storage{
			driver:  driver,
			uow:     s,
			orders:  s.Orders(),
			stock:   s.Inventory(),
			audit:   s.AuditLog(),
			ping:    func(context.Context) error { return nil },
			migrate: func(context.Context) ([]string, error) { return nil, nil },
			close:   func() error { return nil },
		}, nil
	}
	s, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver:   driver,
		DSN:      cfg.StoreDSN,
		LockWait: cfg.LockTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &storage{
		driver:  driver,
		uow:     s,
		orders:  s.Orders(),
		stock:   s.Inventory(),
		audit:   s.AuditLog(),
		ping:    s.Ping,
		migrate: s.Migrate,
		close:   s.Close,
	}, nil
}

// app holds the process-wide dependencies shared by every command.
type app struct {
	cfg      config.Config
	zap      *zap.Logger
	logger   *zaplogger.Logger
	registry *prometheus.Registry
	tel      observability.Observability
	store    *storage
	bus      *outbox.Bus
	grants   *authz.Static
	ids      application.IDGenerator

	orders    *apporder.Service
	payments  *apppayment.Workflow
	inventory *appinv.Service
	recorder  *appaudit.Recorder

	shutdownTracing func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	base, err := logging.NewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(base)
	logger := zaplogger.New(base)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := infraobs.RegisterMetrics(prometrics.New(registry, ""))
	if err != nil {
		_ = base.Sync()
		return nil, err
	}

	shutdownTracing, err := oteltrace.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		_ = base.Sync()
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	tel := infraobs.New(oteltrace.New(tracerName), logger, metrics)

	store, err := openStorage(ctx, cfg)
	if err != nil {
		_ = shutdownTracing(ctx)
		_ = base.Sync()
		return nil, err
	}

	a := &app{
		cfg:             cfg,
		zap:             base,
		logger:          logger,
		registry:        registry,
		tel:             tel,
		store:           store,
		grants:          authz.NewStatic(buildGrants(cfg)),
		ids:             id.NewUUIDGenerator(),
		shutdownTracing: shutdownTracing,
	}
	a.bus = outbox.NewBus(logger,
		outbox.WithPartitions(cfg.DispatchPartitions, cfg.DispatchQueueSize),
		outbox.WithHandlerTimeout(cfg.DispatchHandlerTimeout),
	)
	a.wireServices()
	return a, nil
}

func (a *app) wireServices() {
	a.recorder = appaudit.NewRecorder(a.ids, a.store.audit, a.tel)
	machine := apporder.NewMachine(apporder.MachineDeps{
		UnitOfWork: a.store.uow,
		Orders:     a.store.orders,
		Ledger:     appinv.NewLedger(a.tel),
		Recorder:   a.recorder,
		Authorizer: a.grants,
		Locks:      keylock.New(a.cfg.LockTimeout),
		Publisher:  a.bus,
	}, a.tel)
	create := apporder.NewCreateOrderUseCase(a.store.orders, a.ids, a.grants, a.bus, a.tel)
	a.orders = apporder.NewService(create, machine, a.store.orders, a.recorder, a.grants, a.tel)
	submit := apppayment.NewSubmitProofUseCase(a.store.uow, machine, a.grants, a.bus, a.tel)
	a.payments = apppayment.NewWorkflow(submit, machine)
	a.inventory = appinv.NewService(a.store.stock, a.tel)
}

// systemLogger carries the fixed trace fields used outside any request.
func (a *app) systemLogger() *zaplogger.Logger {
	return zaplogger.New(logging.WithTrace(a.zap, logging.SystemTraceID, logging.SystemSpanID))
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.store.close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := a.shutdownTracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *app) retryPolicy() notification.RetryPolicy {
	return notification.RetryPolicy{
		MaxAttempts: a.cfg.NotifyMaxAttempts,
		BaseDelay:   a.cfg.NotifyBaseDelay,
		Multiplier:  a.cfg.NotifyMultiplier,
		MaxDelay:    a.cfg.NotifyMaxDelay,
	}.Normalize()
}

func buildGrants(cfg config.Config) authz.Grants {
	g := authz.Grants{
		Owners:           make(map[string]string, len(cfg.StoreOwners)),
		Admins:           make(map[string][]string, len(cfg.StoreAdmins)),
		DeliveryBots:     cfg.DeliveryBots,
		DefaultChannels:  authz.ParseChannels(cfg.NotifyChannels),
		ChannelOverrides: make(map[string][]notification.Channel, len(cfg.NotifyChannelOverrides)),
	}
	for store, owner := range cfg.StoreOwners {
		if owner = strings.TrimSpace(owner); owner != "" {
			g.Owners[strings.TrimSpace(store)] = owner
		}
	}
	for store, admins := range cfg.StoreAdmins {
		g.Admins[strings.TrimSpace(store)] = authz.SplitList(admins)
	}
	for recipient, channels := range cfg.NotifyChannelOverrides {
		g.ChannelOverrides[strings.TrimSpace(recipient)] = authz.ParseChannels(authz.SplitList(channels))
	}
	return g
}
