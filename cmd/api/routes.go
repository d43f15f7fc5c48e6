package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-telco/internal/adminqueue"
	"github.com/noah-isme/backend-telco/internal/analytics"
	"github.com/noah-isme/backend-telco/internal/audit"
	"github.com/noah-isme/backend-telco/internal/auth"
	"github.com/noah-isme/backend-telco/internal/billing"
	"github.com/noah-isme/backend-telco/internal/campaign"
	"github.com/noah-isme/backend-telco/internal/catalog"
	"github.com/noah-isme/backend-telco/internal/checkout"
	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/config"
	"github.com/noah-isme/backend-telco/internal/health"
	"github.com/noah-isme/backend-telco/internal/install"
	"github.com/noah-isme/backend-telco/internal/lock"
	"github.com/noah-isme/backend-telco/internal/obs"
	"github.com/noah-isme/backend-telco/internal/order"
	"github.com/noah-isme/backend-telco/internal/payment"
	"github.com/noah-isme/backend-telco/internal/pricing"
	"github.com/noah-isme/backend-telco/internal/queue"
	"github.com/noah-isme/backend-telco/internal/ratelimit"
	"github.com/noah-isme/backend-telco/internal/resilience"
	"github.com/noah-isme/backend-telco/internal/security"
	"github.com/noah-isme/backend-telco/internal/store"
	"github.com/noah-isme/backend-telco/internal/support"
)

// server carries the dependencies the router is assembled from. main fills it
// from live connections; tests fill it with in-memory fakes.
type server struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    store.Store
	redis    *redis.Client
	email    common.EmailSender
	verifier auth.Verifier
	checker  health.Checker
	breakers map[string]*resilience.Breaker
	dlq      queue.Store
	metrics  *obs.HTTPMetrics
	tracing  bool
	pprof    http.Handler
	// policy is exposed so main can drain pending audit writes on shutdown.
	policy *audit.BestEffortPolicy
}

func (s *server) routes() http.Handler {
	cfg := s.cfg
	logger := s.logger

	auditSvc := &audit.Service{Store: s.store, Enabled: cfg.AuditEnabled, SamplingRate: cfg.AuditSamplingRate}
	auditLog := obs.Component(logger, "audit")
	s.policy = audit.NewBestEffortPolicy(auditSvc, cfg.AuditTimeout, &auditLog)
	recorder := audit.HTTPRecorder{
		Service: auditSvc,
		OnError: func(err error) { auditLog.Warn().Err(err).Msg("audit record failed") },
	}
	audited := func(action, resource string) func(http.Handler) http.Handler {
		return recorder.Middleware(audit.HTTPConfig{Action: action, ResourceType: resource, ResourceIDParam: "id"})
	}

	authMW := auth.Middleware{Service: s.verifier, Profiles: s.store}
	meHandler := &auth.Handler{Profiles: s.store}
	idem := common.Idem{R: s.redis, TTL: cfg.IdempotencyTTL}
	limiter := ratelimit.Limiter{Client: s.redis, Prefix: "telco:ratelimit:"}
	publicLimit := func(scope string) func(http.Handler) http.Handler {
		return ratelimit.Handler{
			Limiter: limiter,
			Config:  ratelimit.Config{Key: ratelimit.ByClientIP(scope), Window: time.Minute, Max: cfg.RateLimitPublicPerMin},
			OnError: func(err error) { logger.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable") },
		}.Middleware
	}

	svcLog := func(name string) *zerolog.Logger {
		l := obs.Component(logger, name)
		return &l
	}

	catalogHandler := catalog.NewHandler()
	draftHandler := &checkout.Handler{Svc: &checkout.Service{
		Redis:  s.redis,
		Orders: s.store,
		Email:  s.email,
		Logger: svcLog("checkout"),
		TTL:    cfg.DraftOrderTTL,
	}}
	orderHandler := &order.Handler{Svc: &order.Service{Orders: s.store, Guests: s.store, Profiles: s.store}}
	supportHandler := &support.Handler{Svc: &support.Service{Store: s.store, Email: s.email, Logger: svcLog("support")}}
	billingHandler := &billing.Handler{Svc: &billing.Service{
		Invoices: s.store,
		Mandates: s.store,
		Profiles: s.store,
		Email:    s.email,
		Logger:   svcLog("billing"),
	}}
	paymentHandler := &payment.Handler{Svc: &payment.Service{
		Store:    s.store,
		Profiles: s.store,
		Email:    s.email,
		Logger:   svcLog("payment"),
		LinkBase: cfg.PaymentLinkBase,
		TTL:      cfg.PaymentRequestTTL,
	}}
	installHandler := &install.Handler{Svc: &install.Service{Store: s.store}}
	enqueuer := queue.Enqueuer{R: s.redis, Prefix: cfg.QueueRedisPrefix, MaxAttempts: cfg.QueueMaxAttempts}
	campaignHandler := &campaign.Handler{Svc: &campaign.Service{
		Store:    s.store,
		Profiles: s.store,
		Queue:    enqueuer,
		Lock:     lock.Locker{R: s.redis},
	}}
	kpiHandler := &analytics.Handler{Svc: &analytics.Service{
		Orders:   s.store,
		Profiles: s.store,
		Tickets:  s.store,
		Invoices: s.store,
		Payments: s.store,
		Installs: s.store,
		R:        s.redis,
		TTL:      cfg.KPICacheTTL,
		Logger:   svcLog("analytics"),
	}}
	queueHandler := &adminqueue.Handler{
		Svc:      &adminqueue.Service{Store: s.store},
		Boundary: adminqueue.Boundary{Policy: s.policy, Timeout: cfg.WidgetTimeout, Logger: svcLog("adminqueue")},
	}
	dlqHandler := &queue.AdminHandler{
		Store:             s.dlq,
		Queue:             enqueuer,
		Kinds:             []string{campaign.TaskKind},
		Logger:            obs.Component(logger, "queue"),
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
	}
	auditHandler := audit.Handler{Store: s.store}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.tracing {
		r.Use(obs.TracingMiddleware)
	}
	if s.metrics != nil {
		r.Use(obs.HTTPObs{Metrics: s.metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.IsProduction(), NoStore: true}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Idempotent-Replayed", "Partial-Write", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if s.pprof != nil {
		r.Mount("/debug/pprof", s.pprof)
	}

	healthHandler := health.Handler{Checker: s.checker, Breakers: s.breakers}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: security.DefaultMaxBody, RequireJSON: true}.Middleware)

		v.Get("/plans", catalogHandler.Plans)
		v.Get("/plans/{serviceType}", catalogHandler.PlansByService)
		v.Get("/addons", catalogHandler.Addons)
		v.Get("/addons/grouped", pricing.Handler{}.AddonGroups)
		v.Post("/bundles/quote", pricing.Handler{}.Quote)
		v.Get("/track-order", orderHandler.Track)
		v.With(publicLimit("tickets")).Post("/support/tickets", supportHandler.Create)

		v.Route("/draft-orders/{sessionId}", func(d chi.Router) {
			d.Put("/", draftHandler.Put)
			d.Get("/", draftHandler.Get)
			d.Delete("/", draftHandler.Delete)
			d.With(publicLimit("draft-submit"), idem.Middleware).Post("/submit", draftHandler.Submit)
		})

		v.Group(func(c chi.Router) {
			c.Use(authMW.RequireAuth)
			c.Get("/me", meHandler.Me)
			c.Get("/orders", orderHandler.Mine)
		})

		v.Route("/admin", func(a chi.Router) {
			a.Use(authMW.RequireAuth)
			a.Use(authMW.RequireRole(auth.RoleAdmin, auth.RoleSupport))

			a.Get("/queues", queueHandler.Dashboard)
			a.Get("/queues/{widget}", queueHandler.Widget)
			a.Get("/kpis", kpiHandler.KPIs)
			a.Get("/audit-logs", auditHandler.List)

			a.Get("/orders", orderHandler.AdminList)
			a.With(audited("order.status", "order")).Patch("/orders/{id}/status", orderHandler.PatchStatus)

			a.Get("/tickets", supportHandler.List)
			a.With(audited("ticket.status", "support_ticket")).Patch("/tickets/{id}/status", supportHandler.UpdateStatus)

			a.Get("/invoices", billingHandler.ListInvoices)
			a.Get("/invoices/{id}", billingHandler.GetInvoice)
			a.With(idem.Middleware, audited("invoice.create", "invoice")).Post("/invoices", billingHandler.CreateInvoice)
			a.With(audited("invoice.status", "invoice")).Patch("/invoices/{id}/status", billingHandler.PatchInvoiceStatus)
			a.Get("/mandates", billingHandler.ListMandates)
			a.With(audited("mandate.status", "dd_mandate")).Patch("/mandates/{id}/status", billingHandler.PatchMandateStatus)

			a.Get("/payment-requests", paymentHandler.List)
			a.With(idem.Middleware, audited("payment_request.create", "payment_request")).Post("/payment-requests", paymentHandler.Create)
			a.With(audited("payment_request.status", "payment_request")).Patch("/payment-requests/{id}/status", paymentHandler.PatchStatus)

			a.Get("/installations", installHandler.List)
			a.Get("/technicians", installHandler.Technicians)
			a.Get("/installation-slots", installHandler.Slots)
			a.With(audited("installation.assign", "installation")).Post("/installations/{id}/assign", installHandler.Assign)

			a.Get("/campaigns", campaignHandler.List)
			a.With(audited("campaign.create", "campaign")).Post("/campaigns", campaignHandler.Create)
			a.With(idem.Middleware, audited("campaign.send", "campaign")).Post("/campaigns/{id}/send", campaignHandler.Send)

			a.Route("/tasks", func(t chi.Router) {
				t.Use(authMW.RequireRole(auth.RoleAdmin))
				t.Get("/stats", dlqHandler.Stats)
				t.Get("/dlq", dlqHandler.ListDLQ)
				t.With(audited("task.replay", "queue_dlq")).Post("/dlq/replay", dlqHandler.ReplayDLQ)
			})
		})
	})
	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
