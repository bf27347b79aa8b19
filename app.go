package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"omc-erp/internal/audit"
	"omc-erp/internal/config"
	dealerpricing "omc-erp/internal/dealers/adapters/pricing"
	dealerapp "omc-erp/internal/dealers/application"
	dealers "omc-erp/internal/dealers/domain"
	dealerrepo "omc-erp/internal/dealers/infrastructure/postgres"
	"omc-erp/internal/dealers/infrastructure/throttle"
	"omc-erp/internal/eventing"
	eventingrepo "omc-erp/internal/eventing/infrastructure/postgres"
	masterdatarepo "omc-erp/internal/masterdata/infrastructure/postgres"
	"omc-erp/internal/observability/metrics"
	pricingapp "omc-erp/internal/pricing/application"
	pricing "omc-erp/internal/pricing/domain"
	pricingrepo "omc-erp/internal/pricing/infrastructure/postgres"
	"omc-erp/internal/pricing/infrastructure/ratecache"
	uppfapp "omc-erp/internal/uppf/application"
	uppf "omc-erp/internal/uppf/domain"
	uppfrepo "omc-erp/internal/uppf/infrastructure/postgres"
	"omc-erp/internal/uppf/infrastructure/storage"
	uppfinterfaces "omc-erp/internal/uppf/interfaces"
	"omc-erp/internal/uppf/notify"
)

// app holds the wired services shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB
	xdb    *sqlx.DB
	redis  *redis.Client

	windows     *pricingapp.WindowService
	calculator  *pricingapp.Calculator
	validator   *pricingapp.PriceValidator
	bulk        *pricingapp.BulkOrchestrator
	importer    *pricingapp.TemplateImporter
	settlements *dealerapp.SettlementService
	loans       *dealerapp.LoanService
	claims      *uppfapp.ClaimService
	batcher     *uppfapp.Batcher
	notifier    *notify.Notifier

	publisher  *eventing.Publisher
	dispatcher *eventing.Dispatcher
}

// throttledRates throttles lookups while publishing straight to the repository.
type throttledRates struct {
	*ratecache.ThrottledRateStore
	publisher pricing.RatePublisher
}

func (t throttledRates) Publish(ctx context.Context, rates []pricing.ComponentRate) error {
	return t.publisher.Publish(ctx, rates)
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	pricingPolicy, err := policy.PricingPolicy()
	if err != nil {
		return nil, err
	}
	dealerPolicy, err := policy.DealerPolicy()
	if err != nil {
		return nil, err
	}
	uppfPolicy, err := policy.UPPFPolicy()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, db: db, xdb: sqlx.NewDb(db, "pgx")}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(a.xdb)
	validate := validator.New()

	if err := a.wirePricing(ctx, pricingPolicy, auditRepo, validate); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wireDealers(dealerPolicy, auditRepo); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wireUPPF(ctx, uppfPolicy, auditRepo); err != nil {
		a.Close()
		return nil, err
	}
	a.wireEventing()
	return a, nil
}

func (a *app) wirePricing(ctx context.Context, policy pricing.Policy, auditLog audit.Logger, validate *validator.Validate) error {
	windowRepo := pricingrepo.NewWindowRepository(a.db)
	priceRepo := pricingrepo.NewStationPriceRepository(a.db)
	rateRepo := pricingrepo.NewRateRepository(a.db, pricingrepo.WithRateTenant(a.cfg.TenantID))
	stations := masterdatarepo.NewStationRepository(a.db, masterdatarepo.WithStationTenant(a.cfg.TenantID))

	throttled, err := ratecache.NewThrottledRateStore(rateRepo, a.cfg.Pricing.LookupRPS, a.cfg.Pricing.LookupBurst)
	if err != nil {
		return err
	}
	var cache ratecache.RateCache
	if a.cfg.Redis.Addr != "" {
		client, err := ratecache.DialRedis(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
		if err != nil {
			a.logger.Warn("rate cache disabled", zap.Error(err))
		} else {
			a.redis = client
			cache = ratecache.NewRedisRateCache(client)
		}
	}
	rates, err := ratecache.NewCachedRateStore(throttledRates{ThrottledRateStore: throttled, publisher: rateRepo}, cache, a.cfg.Redis.RateTTL, a.logger)
	if err != nil {
		return err
	}

	a.windows, err = pricingapp.NewWindowService(windowRepo, rates, priceRepo, validate, auditLog, pricingapp.SystemClock{}, a.logger)
	if err != nil {
		return err
	}
	a.calculator, err = pricingapp.NewCalculator(windowRepo, rates, nil, policy, pricingapp.SystemClock{}, a.logger)
	if err != nil {
		return err
	}
	a.validator, err = pricingapp.NewPriceValidator(a.calculator)
	if err != nil {
		return err
	}
	a.bulk, err = pricingapp.NewBulkOrchestrator(a.calculator, stations, priceRepo, pricingapp.BulkOptions{
		Concurrency:   a.cfg.Pricing.BulkConcurrency,
		LookupTimeout: a.cfg.Pricing.LookupTimeout,
	}, a.logger)
	if err != nil {
		return err
	}
	a.importer, err = pricingapp.NewTemplateImporter(windowRepo, rates, policy, validate, pricingapp.SystemClock{}, a.logger)
	return err
}

func (a *app) wireDealers(policy dealers.Policy, auditLog audit.Logger) error {
	ledger := dealerrepo.NewLedgerReader(a.db)
	var sales dealers.SalesVolumeReader = ledger
	if a.cfg.Pricing.LookupRPS > 0 {
		limited, err := throttle.NewSalesReader(ledger, a.cfg.Pricing.LookupRPS, a.cfg.Pricing.LookupBurst)
		if err != nil {
			return err
		}
		sales = limited
	}
	margins, err := dealerpricing.NewMarginRateReader(pricingrepo.NewStationPriceRepository(a.db))
	if err != nil {
		return err
	}
	loans := dealerrepo.NewLoanRepository(a.db)
	a.settlements, err = dealerapp.NewSettlementService(
		dealerrepo.NewSettlementRepository(a.db),
		sales,
		margins,
		loans,
		ledger,
		masterdatarepo.NewStationRepository(a.db, masterdatarepo.WithStationTenant(a.cfg.TenantID)),
		dealerapp.WithPolicy(policy),
		dealerapp.WithAuditLogger(auditLog),
		dealerapp.WithLogger(a.logger),
		dealerapp.WithConcurrency(a.cfg.Pricing.BulkConcurrency),
	)
	if err != nil {
		return err
	}
	a.loans, err = dealerapp.NewLoanService(loans, dealerapp.SystemClock{}, a.logger)
	return err
}

func (a *app) wireUPPF(ctx context.Context, policy uppf.Policy, auditLog audit.Logger) error {
	windows := pricingrepo.NewWindowRepository(a.db)
	claimRepo := uppfrepo.NewClaimRepository(a.xdb)

	store, err := a.documentStore(ctx)
	if err != nil {
		return err
	}
	opts := []uppfapp.Option{
		uppfapp.WithPolicy(policy),
		uppfapp.WithAuditLogger(auditLog),
		uppfapp.WithLogger(a.logger),
	}
	a.claims, err = uppfapp.NewClaimService(claimRepo, uppfrepo.NewRouteReader(a.xdb), windows, opts...)
	if err != nil {
		return err
	}
	a.batcher, err = uppfapp.NewBatcher(
		windows,
		claimRepo,
		uppfrepo.NewSubmissionRepository(a.xdb),
		uppfinterfaces.NPADocumentGenerator{Company: a.cfg.CompanyName},
		store,
		opts...,
	)
	if err != nil {
		return err
	}
	return a.wireNotifier()
}

// wireNotifier leaves a.notifier nil when no webhook is configured.
func (a *app) wireNotifier() error {
	cfg := a.cfg.Notify
	if cfg.WebhookURL == "" {
		return nil
	}
	channel, err := notify.NewWebhookChannel(cfg.WebhookURL, notify.WithTimeout(cfg.Timeout), notify.WithFormat(cfg.Format))
	if err != nil {
		return err
	}
	tpl, err := notify.NewTemplate(cfg.Template)
	if err != nil {
		return fmt.Errorf("notify template: %w", err)
	}
	a.notifier, err = notify.NewNotifier(channel, tpl, notify.WithCooldown(cfg.Cooldown), notify.WithLogger(a.logger))
	return err
}

func (a *app) documentStore(ctx context.Context) (uppfapp.DocumentStore, error) {
	docs := a.cfg.Documents
	switch docs.Backend {
	case "s3":
		store, err := storage.NewS3DocumentStore(ctx, storage.S3Options{
			Bucket:          docs.S3Bucket,
			Region:          docs.S3Region,
			Endpoint:        docs.S3Endpoint,
			PathStyle:       docs.S3PathStyle,
			AccessKeyID:     docs.S3AccessKeyID,
			SecretAccessKey: docs.S3SecretKey,
			Prefix:          docs.S3KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "", "fs":
		store, err := storage.NewFileDocumentStore(docs.RootDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("documents: unknown backend %q", docs.Backend)
	}
}

func (a *app) wireEventing() {
	outbox := eventingrepo.NewOutboxStore(a.db)
	samples := []any{
		pricing.StationPricesCalculated{},
		pricing.PricingWindowActivated{},
		pricing.PricingWindowClosed{},
		pricing.ComponentRatesPublished{},
		dealers.SettlementCalculated{},
		dealers.SettlementStatusChanged{},
		dealers.LoanDisbursed{},
		uppf.ClaimCreated{},
		uppf.ClaimStatusChanged{},
		uppf.ClaimReconciled{},
		uppf.SubmissionCreated{},
		uppf.SubmissionStatusChanged{},
	}
	registry := eventing.NewRegistry(samples...)
	bus := eventing.NewBus()
	for _, sample := range samples {
		bus.Subscribe(sample, a.logEvent)
	}
	if a.notifier != nil {
		bus.Subscribe(uppf.SubmissionStatusChanged{}, a.notifier.HandleEvent)
	}
	a.publisher = eventing.NewPublisher(outbox, a.cfg.TenantID, a.logger)
	a.dispatcher = eventing.NewDispatcher(bus, outbox, registry, outbox, a.logger)
}

func (a *app) logEvent(ctx context.Context, event any) error {
	fields := []zap.Field{zap.String("event_type", eventing.TypeName(event))}
	if env, ok := eventing.EnvelopeFromContext(ctx); ok {
		fields = append(fields, zap.String("event_id", env.EventID), zap.String("subject_id", env.SubjectID))
	}
	a.logger.Info("event delivered", fields...)
	return nil
}

// publish writes the events of a completed operation to the outbox.
func (a *app) publish(ctx context.Context, events []any) {
	if len(events) == 0 {
		return
	}
	if err := a.publisher.PublishAll(ctx, events); err != nil {
		a.logger.Error("outbox publish failed", zap.Int("events", len(events)), zap.Error(err))
	}
}

// serveMetrics exposes /metrics and /healthz until ctx is done.
func (a *app) serveMetrics(ctx context.Context) {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdown)
	}()
	a.logger.Info("metrics listening", zap.String("addr", addr))
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
